package subscription

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var sizePattern = regexp.MustCompile(`(?i)^(\d+(?:\.\d+)?)?\s*(B|KB|MB|GB|TB)?$`)

var unitMultipliers = map[string]float64{
	"B":  1,
	"KB": 1 << 10,
	"MB": 1 << 20,
	"GB": 1 << 30,
	"TB": 1 << 40,
}

// ParseSize converts a human readable size such as "10GB" or "1.5 mb" into
// bytes. Units are powers of 1024 and default to bytes. Input that does not
// match yields 0.
func ParseSize(s string) int64 {
	m := sizePattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil || m[1] == "" {
		return 0
	}

	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}

	mult := 1.0
	if m[2] != "" {
		mult = unitMultipliers[strings.ToUpper(m[2])]
	}

	return int64(math.Floor(n * mult))
}
