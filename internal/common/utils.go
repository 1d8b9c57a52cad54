package common

import "strings"

// HasAny returns true if s contains any of the substrings. Used to classify
// driver error messages that carry no structured code.
func HasAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
