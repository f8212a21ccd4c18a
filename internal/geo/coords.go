// Package geo provides the geometric predicates used by the filter
// pipeline and the interaction detector: coordinate parsing,
// point-in-polygon containment, and great-circle distance.
package geo

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseError reports a coordinate string that matches none of the
// accepted formats. The offending input is preserved so callers can
// log it alongside the record they are dropping.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid coordinate %q: %s", e.Input, e.Reason)
}

// ParseCoordinate converts a textual latitude or longitude into signed
// decimal degrees. Three shapes are accepted:
//
//   - plain decimal degrees: "-34.6467"
//   - DDMMSS.SSS (six digits before the decimal point): "343312.000"
//   - DDDMMSS.SSS (seven digits before the decimal point): "1385155.000"
//
// Degree/minute/second fields combine as deg + min/60 + sec/3600. A
// leading '+' or '-' and surrounding whitespace are allowed. Anything
// else returns a *ParseError.
func ParseCoordinate(s string) (float64, error) {
	body := strings.TrimSpace(s)
	if body == "" {
		return 0, &ParseError{Input: s, Reason: "empty string"}
	}

	sign := 1.0
	switch body[0] {
	case '+':
		body = body[1:]
	case '-':
		sign = -1
		body = body[1:]
	}
	if body == "" {
		return 0, &ParseError{Input: s, Reason: "sign without digits"}
	}

	intPart, frac, _ := strings.Cut(body, ".")
	for _, r := range intPart {
		if r < '0' || r > '9' {
			return 0, &ParseError{Input: s, Reason: "non-digit in degree field"}
		}
	}

	switch n := len(intPart); {
	case n >= 1 && n <= 3:
		v, err := strconv.ParseFloat(body, 64)
		if err != nil {
			return 0, &ParseError{Input: s, Reason: "malformed decimal degrees"}
		}
		return normalizeZero(sign * v), nil
	case n == 6:
		return parseDMS(s, sign, intPart, frac, 2)
	case n == 7:
		return parseDMS(s, sign, intPart, frac, 3)
	default:
		return 0, &ParseError{Input: s, Reason: fmt.Sprintf("%d digits before decimal point", n)}
	}
}

// parseDMS splits the integer field as degrees (degDigits wide),
// minutes (2), seconds (the rest, plus any fractional part).
func parseDMS(orig string, sign float64, intPart, frac string, degDigits int) (float64, error) {
	deg, err := strconv.ParseFloat(intPart[:degDigits], 64)
	if err != nil {
		return 0, &ParseError{Input: orig, Reason: "malformed degrees field"}
	}
	min, err := strconv.ParseFloat(intPart[degDigits:degDigits+2], 64)
	if err != nil {
		return 0, &ParseError{Input: orig, Reason: "malformed minutes field"}
	}
	secStr := intPart[degDigits+2:]
	if frac != "" {
		secStr += "." + frac
	}
	sec, err := strconv.ParseFloat(secStr, 64)
	if err != nil {
		return 0, &ParseError{Input: orig, Reason: "malformed seconds field"}
	}
	return normalizeZero(sign * (deg + min/60 + sec/3600)), nil
}

// normalizeZero collapses -0.0 so "+000000.000" and "-000000.000"
// parse to the same value.
func normalizeZero(v float64) float64 {
	if v == 0 {
		return 0
	}
	return v
}
