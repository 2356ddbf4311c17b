// Package device derives stable identities and human-readable titles for the
// clients a user signs in from.
package device

import (
	"strings"

	"github.com/google/uuid"
)

// fingerprintNamespace scopes device ids to this service. Changing it would
// re-key every device, so it is fixed.
var fingerprintNamespace = uuid.MustParse("7b8a1f52-3c6e-4d9a-b1e0-5f2c8d4a9e31")

// ID derives a deterministic device id from the user and the client's
// observable traits. The same user signing in again from the same client
// maps to the same id, which lets login reuse the existing session instead
// of piling up duplicates.
func ID(userID, title, userAgent, ip string) string {
	seed := userID + "|" + title + "|" + userAgent + "|" + ip
	return uuid.NewSHA1(fingerprintNamespace, []byte(seed)).String()
}

// TitleFromUserAgent maps a raw User-Agent header to a short browser/OS
// label for the device list.
func TitleFromUserAgent(ua string) string {
	browser := browserName(ua)
	os := osName(ua)
	if browser == "" {
		return "Unknown Browser"
	}
	if os == "" {
		return browser
	}
	return browser + " on " + os
}

func browserName(ua string) string {
	switch {
	// Edge ships a Chrome token, so it must be checked first.
	case strings.Contains(ua, "Edg/"), strings.Contains(ua, "Edge/"):
		return "Edge"
	case strings.Contains(ua, "Chrome/"):
		return "Chrome"
	case strings.Contains(ua, "Firefox/"):
		return "Firefox"
	case strings.Contains(ua, "Safari/"):
		return "Safari"
	default:
		return ""
	}
}

func osName(ua string) string {
	switch {
	case strings.Contains(ua, "Windows"):
		return "Windows"
	case strings.Contains(ua, "Mac OS X"), strings.Contains(ua, "Macintosh"):
		return "Mac"
	case strings.Contains(ua, "Linux"):
		return "Linux"
	default:
		return ""
	}
}
