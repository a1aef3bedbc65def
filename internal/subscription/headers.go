// Package subscription builds and merges the response headers that
// subscription clients read traffic and expiry accounting from.
package subscription

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Header names understood by subscription clients.
const (
	HeaderUserInfo           = "subscription-userinfo"
	HeaderContentDisposition = "content-disposition"
	HeaderUpdateInterval     = "profile-update-interval"
)

// Info is the caller supplied overlay for a subscription. Every field is
// optional and kept as the raw string the caller sent.
type Info struct {
	Name     string `json:"name,omitempty"`
	Expire   string `json:"expire,omitempty"`
	Upload   string `json:"upload,omitempty"`
	Download string `json:"download,omitempty"`
	Total    string `json:"total,omitempty"`
}

// Bare dates are read as the end of that day in UTC+8.
var (
	bareDatePattern = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
	yearPattern     = regexp.MustCompile(`^\d{4}$`)
	unixPattern     = regexp.MustCompile(`^\d{9,}$`)
	expireZone      = time.FixedZone("UTC+8", 8*60*60)
)

var expireLayouts = []string{
	time.RFC3339,
	time.RFC1123,
	time.RFC1123Z,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/1/2",
	"2006/1/2 15:04:05",
}

// BuildHeaders renders info into subscription response headers. A nil info
// yields an empty map. Fields that are blank or fail to parse are omitted
// one by one.
func BuildHeaders(info *Info) map[string]string {
	headers := map[string]string{}
	if info == nil {
		return headers
	}

	var parts []string
	for _, f := range []struct {
		name  string
		value string
	}{
		{"upload", info.Upload},
		{"download", info.Download},
		{"total", info.Total},
	} {
		if v := strings.TrimSpace(f.value); v != "" {
			parts = append(parts, fmt.Sprintf("%s=%d", f.name, ParseSize(v)))
		}
	}

	if v := strings.TrimSpace(info.Expire); v != "" {
		if t, ok := ParseExpire(v); ok {
			parts = append(parts, fmt.Sprintf("expire=%d", t.Unix()))
		}
	}

	if len(parts) > 0 {
		headers[HeaderUserInfo] = strings.Join(parts, "; ")
	}

	if name := strings.TrimSpace(info.Name); name != "" {
		headers[HeaderContentDisposition] = AttachmentDisposition(name)
	}

	return headers
}

// ParseExpire parses an expiry date. It reports false when s is not a date.
func ParseExpire(s string) (time.Time, bool) {
	if m := bareDatePattern.FindStringSubmatch(s); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		t := time.Date(year, time.Month(month), day, 23, 59, 59, 0, expireZone)
		// time.Date normalizes out of range values, reject those.
		if t.Year() != year || int(t.Month()) != month || t.Day() != day {
			return time.Time{}, false
		}
		return t, true
	}

	// A bare year lasts until its final second
	if yearPattern.MatchString(s) {
		year, _ := strconv.Atoi(s)
		return time.Date(year, time.December, 31, 23, 59, 59, 0, expireZone), true
	}

	if unixPattern.MatchString(s) {
		sec, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return time.Time{}, false
		}
		return time.Unix(sec, 0), true
	}

	for _, layout := range expireLayouts {
		if t, err := time.ParseInLocation(layout, s, expireZone); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// AttachmentDisposition returns an attachment content-disposition with the
// RFC 5987 encoded filename.
func AttachmentDisposition(name string) string {
	return "attachment; filename*=UTF-8''" + EncodeFilename(name)
}

// EncodeFilename percent-encodes name for a filename* parameter.
func EncodeFilename(name string) string {
	return strings.ReplaceAll(url.QueryEscape(name), "+", "%20")
}
