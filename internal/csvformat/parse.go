package csvformat

import (
	"errors"
	"strconv"
	"strings"
)

// parseBool accepts "true" and "false" in any ASCII case, after trimming.
func parseBool(s string) (bool, bool) {
	s = strings.TrimSpace(s)
	switch {
	case equalFoldASCII(s, "true"):
		return true, true
	case equalFoldASCII(s, "false"):
		return false, true
	}
	return false, false
}

func parseInt64(s string) (int64, bool) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return v, err == nil
}

// parseFloat64 accepts decimal and exponent forms plus inf/infinity/nan.
// Out-of-range literals saturate to ±Inf instead of failing.
func parseFloat64(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	// strconv also understands hex floats and underscores, which are not CSV numbers.
	if s == "" || strings.ContainsAny(s, "xX_") {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		var ne *strconv.NumError
		if errors.As(err, &ne) && errors.Is(ne.Err, strconv.ErrRange) {
			return v, true
		}
		return 0, false
	}
	return v, true
}

func equalFoldASCII(s, lower string) bool {
	if len(s) != len(lower) {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if 'A' <= c && c <= 'Z' {
			c += 'a' - 'A'
		}
		if c != lower[i] {
			return false
		}
	}
	return true
}
