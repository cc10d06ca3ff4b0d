package consent

import (
	"strings"

	"github.com/mssola/useragent"
)

// DescribeUserAgent summarizes a user agent string for humans, e.g.
// "Firefox 128.0 on Windows 10". Empty input yields "".
func DescribeUserAgent(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	ua := useragent.New(raw)
	name, version := ua.Browser()
	browser := strings.TrimSpace(name + " " + version)

	desc := browser
	if os := ua.OS(); os != "" {
		if desc != "" {
			desc += " on "
		}
		desc += os
	}
	if ua.Mobile() {
		desc += " (mobile)"
	}
	if ua.Bot() {
		desc = "bot: " + desc
	}
	return strings.TrimSpace(desc)
}
