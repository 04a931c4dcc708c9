// Package device turns raw User-Agent headers into short, log-safe descriptions.
package device

import (
	"strings"

	"github.com/mssola/useragent"
)

const unknownDevice = "Unknown Device"

// Info is the parsed view of a User-Agent kept on audit events.
type Info struct {
	DisplayName string
	Bot         bool
	Mobile      bool
}

// Parse extracts browser, OS and bot/mobile flags from a User-Agent string.
func Parse(userAgent string) Info {
	userAgent = strings.TrimSpace(userAgent)
	if userAgent == "" {
		return Info{DisplayName: unknownDevice}
	}
	ua := useragent.New(userAgent)
	return Info{
		DisplayName: displayName(ua),
		Bot:         ua.Bot(),
		Mobile:      ua.Mobile(),
	}
}

// ParseUserAgent returns a display name such as "Chrome on Linux x86_64".
func ParseUserAgent(userAgent string) string {
	return Parse(userAgent).DisplayName
}

func displayName(ua *useragent.UserAgent) string {
	browser, _ := ua.Browser()
	if browser == "" {
		browser = "Unknown Browser"
	}
	os := ua.OS()
	if os == "" {
		os = ua.Platform()
	}
	if os == "" {
		os = "Unknown OS"
	}
	return strings.Join(strings.Fields(browser+" on "+os), " ")
}
