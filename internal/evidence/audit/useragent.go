package audit

import (
	"strings"

	"github.com/mssola/useragent"
)

const maxUserAgentSummary = 256

// SummarizeUserAgent reduces a raw User-Agent header to "browser version
// (os)" so audit events stay readable and bounded.
func SummarizeUserAgent(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	ua := useragent.New(raw)

	var summary string
	name, version := ua.Browser()
	switch {
	case ua.Bot():
		summary = "bot " + name
	case name != "":
		summary = strings.TrimSpace(name + " " + version)
		if osInfo := ua.OS(); osInfo != "" {
			summary += " (" + osInfo + ")"
		}
	default:
		summary = raw
	}
	if len(summary) > maxUserAgentSummary {
		summary = summary[:maxUserAgentSummary]
	}
	return summary
}
