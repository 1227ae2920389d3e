// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package scpi

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// QuoteString formats s as SCPI string data: enclosed in double quotes with
// embedded quotes doubled.
func QuoteString(s string) string {
	return string(Quote) + strings.ReplaceAll(s, `"`, `""`) + string(Quote)
}

// FormatFloat formats a voltage as the shortest decimal that parses back to
// the same float32.
func FormatFloat(v float32) string {
	return strconv.FormatFloat(float64(v), 'g', -1, 32)
}

// ParseFloat parses a single-precision numeric field.
func ParseFloat(s string) (float32, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 32)
	if err != nil {
		return 0, err
	}
	return float32(f), nil
}

// checkText validates a string argument against its field width. The frame
// delimiter and NUL cannot be carried inside a field.
func checkText(field string, s string, width int) error {
	if len(s) > width {
		return fmt.Errorf("%s is %d bytes, max %d", field, len(s), width)
	}
	if i := strings.IndexAny(s, "\r\n\x00"); i >= 0 {
		return fmt.Errorf("%s contains control byte 0x%02X at offset %d", field, s[i], i)
	}
	return nil
}

// boundText interprets a decoded text field like a fixed-width buffer: the
// value ends at the first NUL and never exceeds width bytes. Truncation
// backs up to a rune boundary.
func boundText(s string, width int) string {
	if i := strings.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	if len(s) <= width {
		return s
	}
	cut := width
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// splitFields splits a reply line into its comma-separated fields. Quoted
// fields are unescaped; unquoted fields are trimmed of surrounding blanks.
func splitFields(line string) ([]string, error) {
	var fields []string
	i := 0
	for {
		for i < len(line) && line[i] == ' ' {
			i++
		}
		if i < len(line) && line[i] == Quote {
			var b strings.Builder
			i++
			closed := false
			for i < len(line) {
				c := line[i]
				if c == Quote {
					if i+1 < len(line) && line[i+1] == Quote {
						b.WriteByte(Quote)
						i += 2
						continue
					}
					i++
					closed = true
					break
				}
				b.WriteByte(c)
				i++
			}
			if !closed {
				return nil, fmt.Errorf("unterminated string at field %d", len(fields))
			}
			for i < len(line) && line[i] == ' ' {
				i++
			}
			if i < len(line) && line[i] != Separator {
				return nil, fmt.Errorf("unexpected byte %q after string at field %d", line[i], len(fields))
			}
			fields = append(fields, b.String())
		} else {
			end := strings.IndexByte(line[i:], Separator)
			if end < 0 {
				end = len(line) - i
			}
			fields = append(fields, strings.TrimSpace(line[i:i+end]))
			i += end
		}
		if i >= len(line) {
			return fields, nil
		}
		// line[i] is a separator
		i++
	}
}

// validVoltage rejects values the device cannot represent.
func validVoltage(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
