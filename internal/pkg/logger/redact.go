package logger

import (
	"regexp"
	"strings"
)

var addressRe = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

// RedactEmail keeps the first two characters of the local part and the
// domain: "john.doe@example.com" becomes "jo***@example.com". Local parts
// of two characters or fewer are masked entirely.
func RedactEmail(email string) string {
	local, domain, ok := strings.Cut(strings.TrimSpace(email), "@")
	if !ok || domain == "" || strings.Contains(domain, "@") {
		return "***@***"
	}
	if len(local) <= 2 {
		return "***@" + domain
	}
	return local[:2] + "***@" + domain
}

func redactPIIValue(key, val string) string {
	key = strings.ToLower(key)
	if val != "" && (key == "to" || strings.Contains(key, "email")) {
		return RedactEmail(val)
	}
	return addressRe.ReplaceAllStringFunc(val, RedactEmail)
}
