package subscription

import (
	"net/http"
	"strings"
)

// Field is one key=value pair of a subscription-userinfo header.
type Field struct {
	Key   string
	Value string
}

// ParseUserInfo splits a subscription-userinfo value on ";" and then on the
// first "=" of each segment. Order of first appearance is kept, later
// duplicates overwrite the value.
func ParseUserInfo(s string) []Field {
	var fields []Field
	index := map[string]int{}
	for _, segment := range strings.Split(s, ";") {
		key, value, ok := strings.Cut(segment, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" {
			continue
		}
		if i, seen := index[key]; seen {
			fields[i].Value = value
			continue
		}
		index[key] = len(fields)
		fields = append(fields, Field{Key: key, Value: value})
	}
	return fields
}

// Merge overlays the headers built from custom onto the upstream response
// headers. Custom userinfo fields win and keep their order, upstream fields
// missing from the overlay are appended in upstream order. A configured name
// replaces the upstream content-disposition. profile-update-interval is
// always passed through.
func Merge(custom *Info, upstream http.Header) map[string]string {
	out := map[string]string{}
	built := BuildHeaders(custom)
	upstreamInfo := upstream.Get(HeaderUserInfo)

	if info, ok := built[HeaderUserInfo]; ok {
		out[HeaderUserInfo] = mergeUserInfo(info, upstreamInfo)
	} else if upstreamInfo != "" {
		out[HeaderUserInfo] = upstreamInfo
	}

	if disposition, ok := built[HeaderContentDisposition]; ok {
		out[HeaderContentDisposition] = disposition
	} else if v := upstream.Get(HeaderContentDisposition); v != "" {
		out[HeaderContentDisposition] = v
	}

	if v := upstream.Get(HeaderUpdateInterval); v != "" {
		out[HeaderUpdateInterval] = v
	}

	return out
}

func mergeUserInfo(custom, upstream string) string {
	parts := strings.Split(custom, "; ")
	have := make(map[string]bool, len(parts))
	for _, p := range parts {
		key, _, _ := strings.Cut(p, "=")
		have[key] = true
	}

	for _, f := range ParseUserInfo(upstream) {
		if !have[f.Key] {
			parts = append(parts, f.Key+"="+f.Value)
		}
	}
	return strings.Join(parts, "; ")
}
