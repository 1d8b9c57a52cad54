package httpapi

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/example/weather-tracker/internal/registry"
	"github.com/example/weather-tracker/internal/weather"
)

// statusUpstreamUnreachable signals that open-meteo.com could not be reached.
const statusUpstreamUnreachable = 523

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *weather.Service, reg *registry.Store) {
	app.Post("/weather/current", func(c *fiber.Ctx) error {
		var coords weather.Coordinates
		if err := c.BodyParser(&coords); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(coords); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		snapshot, err := service.CurrentWeather(c.Context(), coords)
		if err != nil {
			return mapWeatherError(err)
		}
		return c.JSON(snapshot)
	})

	app.Post("/cities/add", func(c *fiber.Ctx) error {
		var req addCityRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusConflict, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.UserID <= 0 {
			return fiber.NewError(fiber.StatusConflict, "user id must be a positive integer")
		}

		// Fetch the initial snapshot before the row exists, so a freshly
		// tracked city is never reported with empty weather.
		snapshot, err := service.CurrentWeather(c.Context(), req.Coordinates)
		if err != nil {
			return mapWeatherError(err)
		}

		err = reg.AddCity(c.Context(), req.UserID, req.Name, req.Coordinates, &snapshot)
		switch {
		case errors.Is(err, registry.ErrAlreadyTracked):
			return fiber.NewError(fiber.StatusConflict, "this city already exists")
		case errors.Is(err, registry.ErrUnknownUser):
			return fiber.NewError(fiber.StatusUnauthorized, "unknown user")
		case err != nil:
			return fiber.NewError(fiber.StatusInternalServerError, "failed to add city")
		}
		return c.SendStatus(fiber.StatusOK)
	})

	app.Get("/cities/list/:user_id", func(c *fiber.Ctx) error {
		userID, err := strconv.ParseInt(c.Params("user_id"), 10, 64)
		if err != nil || userID <= 0 {
			return fiber.NewError(fiber.StatusConflict, "user id must be a positive integer")
		}

		cities, err := reg.ListCities(c.Context(), userID)
		switch {
		case errors.Is(err, registry.ErrUnknownUser):
			return fiber.NewError(fiber.StatusUnauthorized, "unknown user")
		case err != nil:
			return fiber.NewError(fiber.StatusInternalServerError, "failed to list cities")
		}
		return c.JSON(cities)
	})

	app.Post("/cities/weather", func(c *fiber.Ctx) error {
		var req cityWeatherRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		values, err := service.CityWeatherAt(c.Context(), req.UserID, req.Name, *req.RequestTime, req.Params)
		switch {
		case errors.Is(err, registry.ErrNotTracked):
			return fiber.NewError(fiber.StatusBadRequest, "this city is untracked")
		case errors.Is(err, weather.ErrInvalidParams),
			errors.Is(err, weather.ErrHourOutOfRange):
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		case err != nil:
			return mapWeatherError(err)
		}
		return c.JSON(values)
	})

	app.Post("/user/register", func(c *fiber.Ctx) error {
		var req registerUserRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		id, err := reg.RegisterUser(c.Context(), req.Login)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to register user")
		}
		return c.JSON(id)
	})
}

// mapWeatherError converts provider-level failures into HTTP errors.
func mapWeatherError(err error) error {
	switch {
	case errors.Is(err, weather.ErrInvalidCoordinates):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, weather.ErrUpstreamUnavailable):
		return fiber.NewError(statusUpstreamUnreachable, "the open-meteo.com is unreachable")
	case errors.Is(err, weather.ErrUpstreamProtocol):
		return fiber.NewError(fiber.StatusBadGateway, "unexpected upstream response")
	default:
		return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch weather data")
	}
}

// addCityRequest is the body of POST /cities/add.
type addCityRequest struct {
	Name        string              `json:"name" validate:"required,max=300"`
	Coordinates weather.Coordinates `json:"coordinates"`
	UserID      int64               `json:"user_id"`
}

// cityWeatherRequest is the body of POST /cities/weather.
type cityWeatherRequest struct {
	Name        string            `json:"name" validate:"required,max=300"`
	RequestTime *weather.TimeOfDay `json:"request_time" validate:"required"`
	UserID      int64              `json:"user_id" validate:"gt=0"`
	Params      []string           `json:"params" validate:"required"`
}

// registerUserRequest is the body of POST /user/register.
type registerUserRequest struct {
	Login string `json:"login" validate:"required,max=300"`
}
