package utils

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strictPolicy = bluemonday.StrictPolicy()
	ugcPolicy    = bluemonday.UGCPolicy()
)

// SanitizeText strips all markup, for titles and single-line fields.
func SanitizeText(input string) string {
	return strings.TrimSpace(strictPolicy.Sanitize(input))
}

// SanitizeRich keeps safe user-generated markup, for descriptions and report bodies.
func SanitizeRich(input string) string {
	return strings.TrimSpace(ugcPolicy.Sanitize(input))
}
