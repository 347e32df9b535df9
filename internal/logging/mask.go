package logging

import (
	"regexp"
)

var (
	rePassword = regexp.MustCompile(`(?i)(password["']?\s*[=:]\s*["']?)([^\s;,"'&]+)`)
	reToken    = regexp.MustCompile(`(?i)(token=|bearer\s+)([A-Za-z0-9._-]+)`)
	reURLCreds = regexp.MustCompile(`(?i)(://)([^:/@\s]+):([^@\s]+)(@)`)
	reSession  = regexp.MustCompile(`(?i)(session=)([^\s;]+)`)
)

// Mask replaces secret-looking values in s with "***" so error strings can be
// logged or shown without leaking passwords or session cookies.
func Mask(s string) string {
	out := s
	out = rePassword.ReplaceAllString(out, "$1***")
	out = reToken.ReplaceAllString(out, "$1***")
	out = reURLCreds.ReplaceAllString(out, "$1*:*$4")
	out = reSession.ReplaceAllString(out, "$1***")
	return out
}
