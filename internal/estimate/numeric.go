package estimate

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// Value is a raw, user-entered cell value. It decodes from JSON strings,
// numbers and null so stored estimates written by older clients still load.
type Value string

// UnmarshalJSON accepts "12", 12 and null.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = ""
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Value(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		// booleans and objects carry no magnitude
		*v = ""
		return nil
	}
	*v = Value(n.String())
	return nil
}

// String returns the raw text.
func (v Value) String() string {
	return string(v)
}

// IsBlank reports whether the value holds only whitespace.
func (v Value) IsBlank() bool {
	return strings.TrimSpace(string(v)) == ""
}

// Int parses the value with Numeric.
func (v Value) Int() int64 {
	return Numeric(string(v))
}

// Numeric parses user-entered or formatted text into an integer magnitude.
// Every non-digit character is dropped, so "1,234" and "$1 234" both yield
// 1234. A leading '-' (after trimming) makes the result negative. Input
// without digits yields 0; magnitudes past int64 saturate at its bounds.
// Numeric never fails.
func Numeric(text string) int64 {
	s := strings.TrimSpace(text)
	negative := strings.HasPrefix(s, "-")

	var n int64
	saturated := false
	for i := 0; i < len(s) && !saturated; i++ {
		c := s[i]
		if c < '0' || c > '9' {
			continue
		}
		d := int64(c - '0')
		if n > (math.MaxInt64-d)/10 {
			saturated = true
			continue
		}
		n = n*10 + d
	}

	switch {
	case saturated && negative:
		return math.MinInt64
	case saturated:
		return math.MaxInt64
	case negative:
		return -n
	}
	return n
}

// FormatNumber renders n with thousands separators and no fractional
// digits: -1234567 becomes "-1,234,567". Numeric(FormatNumber(n)) == n.
func FormatNumber(n int64) string {
	return humanize.Comma(n)
}

// parsePercentage reads a provider percentage the way the dashboard always
// has: optional sign, then leading digits; anything unparseable counts as 0.
func parsePercentage(v Value) int64 {
	s := strings.TrimSpace(string(v))
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	start := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == start {
		return 0
	}

	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0
	}
	return n
}
