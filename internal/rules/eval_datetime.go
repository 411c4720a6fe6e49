// internal/rules/eval_datetime.go
package rules

import (
	"strconv"
	"strings"
	"time"
)

/*
 * Date operators: date_format and to_unixtime.
 *
 * Rule files spell formats in strftime notation (%Y-%m-%d and friends);
 * convertStrftime rewrites them to Go reference layouts. Layouts carrying a
 * zone token parse as absolute instants; naive layouts are interpreted in
 * the supplied timezone (default UTC), with date-only forms at midnight.
 *
 * When no input format is supplied, auto-detection tries RFC3339, RFC2822,
 * a set of offset-carrying layouts, then naive layouts in a fixed order.
 * Timezone arguments accept UTC, Z, and ±HH[:MM]/±HHMM offsets with hours
 * 0-23 and minutes 0-59.
 *
 * Argument disambiguation mirrors the loose call forms: with three args the
 * third is a timezone when it looks like one, otherwise an input format
 * (string or ordered list); to_unixtime's middle argument is a unit when it
 * is s/ms, otherwise a timezone.
 */

// strftimeTokens maps strftime directives to Go layout fragments.
var strftimeTokens = map[byte]string{
	'Y': "2006",
	'y': "06",
	'm': "01",
	'd': "02",
	'e': "_2",
	'H': "15",
	'I': "03",
	'M': "04",
	'S': "05",
	'p': "PM",
	'a': "Mon",
	'A': "Monday",
	'b': "Jan",
	'B': "January",
	'j': "002",
	'z': "-0700",
	'T': "15:04:05",
	'F': "2006-01-02",
	'%': "%",
}

// convertStrftime rewrites a strftime pattern to a Go layout.
// %:z becomes a colon offset and %.f / %f an optional fraction; unknown
// directives and plain text pass through unchanged.
func convertStrftime(format string) string {
	var layout strings.Builder
	i := 0
	for i < len(format) {
		if format[i] != '%' || i+1 >= len(format) {
			layout.WriteByte(format[i])
			i++
			continue
		}

		next := format[i+1]
		switch {
		case next == ':' && i+2 < len(format) && format[i+2] == 'z':
			layout.WriteString("-07:00")
			i += 3
		case next == '.' && i+2 < len(format) && format[i+2] == 'f':
			layout.WriteString(".999999999")
			i += 3
		case next == 'f':
			layout.WriteString("999999999")
			i += 2
		default:
			if fragment, ok := strftimeTokens[next]; ok {
				layout.WriteString(fragment)
			} else {
				layout.WriteByte('%')
				layout.WriteByte(next)
			}
			i += 2
		}
	}
	return layout.String()
}

// layoutHasZone reports whether a Go layout carries zone information.
func layoutHasZone(layout string) bool {
	return strings.Contains(layout, "-0700") ||
		strings.Contains(layout, "-07:00") ||
		strings.Contains(layout, "Z07")
}

// Offset-carrying layouts tried during auto-detection, before naive forms.
var defaultLayoutsWithZone = []string{
	"2006-01-02T15:04:05-07:00",
	"2006-01-02 15:04:05-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05-0700",
	"2006-01-02 15:04:05-0700",
	"2006/01/02 15:04:05-07:00",
	"2006/01/02 15:04:05-0700",
}

// Naive layouts tried during auto-detection, interpreted in the default or
// supplied timezone.
var defaultLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"20060102",
	"2006-01-02 15:04",
	"2006/01/02 15:04",
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006/01/02 15:04:05.999999999",
}

var rfc2822Layouts = []string{
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"2 Jan 2006 15:04:05 -0700",
	"2 Jan 2006 15:04:05 MST",
}

// parseDatetime parses value using explicit strftime formats when given,
// otherwise the auto-detection chain.
func parseDatetime(value string, formats []string, tz *time.Location, path string) (time.Time, *TransformError) {
	if formats != nil {
		return parseDatetimeWithFormats(value, formats, tz, path)
	}

	if dt, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return dt, nil
	}
	for _, layout := range rfc2822Layouts {
		if dt, err := time.Parse(layout, value); err == nil {
			return dt, nil
		}
	}
	for _, layout := range defaultLayoutsWithZone {
		if dt, err := time.Parse(layout, value); err == nil {
			return dt, nil
		}
	}

	loc := tz
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range defaultLayouts {
		if dt, err := time.ParseInLocation(layout, value, loc); err == nil {
			return dt, nil
		}
	}

	return time.Time{}, exprError("date format is invalid", path)
}

func parseDatetimeWithFormats(value string, formats []string, tz *time.Location, path string) (time.Time, *TransformError) {
	loc := tz
	if loc == nil {
		loc = time.UTC
	}

	for _, format := range formats {
		layout := convertStrftime(format)
		if layoutHasZone(layout) {
			if dt, err := time.Parse(layout, value); err == nil {
				return dt, nil
			}
			continue
		}
		if dt, err := time.ParseInLocation(layout, value, loc); err == nil {
			return dt, nil
		}
	}

	return time.Time{}, exprError("date format is invalid", path)
}

const timezoneErrMsg = "timezone must be UTC or an offset like +09:00"

// looksLikeTimezone distinguishes a timezone argument from an input format.
func looksLikeTimezone(value string) bool {
	if strings.EqualFold(value, "utc") || value == "Z" {
		return true
	}
	return strings.HasPrefix(value, "+") || strings.HasPrefix(value, "-")
}

// parseTimezone parses UTC/Z or a ±HH[:MM]/±HHMM offset.
func parseTimezone(value, path string) (*time.Location, *TransformError) {
	if strings.EqualFold(value, "utc") || value == "Z" {
		return time.UTC, nil
	}

	var sign int
	switch {
	case strings.HasPrefix(value, "+"):
		sign = 1
	case strings.HasPrefix(value, "-"):
		sign = -1
	default:
		return nil, exprError(timezoneErrMsg, path)
	}

	rest := value[1:]
	var hours, minutes int
	var err error

	if h, m, found := strings.Cut(rest, ":"); found {
		hours, err = strconv.Atoi(h)
		if err != nil {
			return nil, exprError(timezoneErrMsg, path)
		}
		minutes, err = strconv.Atoi(m)
		if err != nil {
			return nil, exprError(timezoneErrMsg, path)
		}
	} else {
		switch len(rest) {
		case 2:
			hours, err = strconv.Atoi(rest)
			if err != nil {
				return nil, exprError(timezoneErrMsg, path)
			}
		case 4:
			hours, err = strconv.Atoi(rest[:2])
			if err != nil {
				return nil, exprError(timezoneErrMsg, path)
			}
			minutes, err = strconv.Atoi(rest[2:])
			if err != nil {
				return nil, exprError(timezoneErrMsg, path)
			}
		default:
			return nil, exprError(timezoneErrMsg, path)
		}
	}

	if hours < 0 || hours > 23 || minutes < 0 || minutes > 59 {
		return nil, exprError(timezoneErrMsg, path)
	}

	offset := sign * (hours*3600 + minutes*60)
	return time.FixedZone(value, offset), nil
}

// parseFormatList accepts an input_format argument as a non-empty string or
// a non-empty array of non-empty strings.
func parseFormatList(value any, path string) ([]string, *TransformError) {
	switch v := value.(type) {
	case string:
		if v == "" {
			return nil, exprError("input_format must not be empty", path)
		}
		return []string{v}, nil
	case []any:
		if len(v) == 0 {
			return nil, exprError("input_format must not be empty", path)
		}
		formats := make([]string, 0, len(v))
		for i, item := range v {
			itemPath := path + "[" + strconv.Itoa(i) + "]"
			s, ok := item.(string)
			if !ok {
				return nil, exprError("input_format must be a string or array of strings", itemPath)
			}
			if s == "" {
				return nil, exprError("input_format must not be empty", itemPath)
			}
			formats = append(formats, s)
		}
		return formats, nil
	default:
		return nil, exprError("input_format must be a string or array of strings", path)
	}
}

func opDateFormat(e *evaluator, c opCall) (EvalResult, *TransformError) {
	value, ok, err := e.argStringAt(c, 0)
	if err != nil || !ok {
		return missingResult(), err
	}
	outputFormat, ok, err := e.argStringAt(c, 1)
	if err != nil || !ok {
		return missingResult(), err
	}

	var inputFormats []string
	var tz *time.Location

	if c.totalLen() >= 3 {
		inputValue, ok, err := e.argNonNullAt(c, 2)
		if err != nil || !ok {
			return missingResult(), err
		}
		if s, isString := inputValue.(string); isString && looksLikeTimezone(s) {
			tz, err = parseTimezone(s, c.argPath(2))
			if err != nil {
				return missingResult(), err
			}
		} else {
			inputFormats, err = parseFormatList(inputValue, c.argPath(2))
			if err != nil {
				return missingResult(), err
			}
		}
	}

	if c.totalLen() == 4 {
		tzValue, ok, err := e.argStringAt(c, 3)
		if err != nil || !ok {
			return missingResult(), err
		}
		tz, err = parseTimezone(tzValue, c.argPath(3))
		if err != nil {
			return missingResult(), err
		}
	}

	dt, derr := parseDatetime(value, inputFormats, tz, c.argPath(0))
	if derr != nil {
		return missingResult(), derr
	}
	if tz != nil {
		dt = dt.In(tz)
	}

	return present(dt.Format(convertStrftime(outputFormat))), nil
}

func opToUnixtime(e *evaluator, c opCall) (EvalResult, *TransformError) {
	value, ok, err := e.argStringAt(c, 0)
	if err != nil || !ok {
		return missingResult(), err
	}

	unit := "s"
	var tz *time.Location

	if c.totalLen() >= 2 {
		argValue, ok, err := e.argStringAt(c, 1)
		if err != nil || !ok {
			return missingResult(), err
		}
		if c.totalLen() == 3 {
			if argValue != "s" && argValue != "ms" {
				return missingResult(), exprError("unit must be s or ms", c.argPath(1))
			}
			unit = argValue
		} else if argValue == "s" || argValue == "ms" {
			unit = argValue
		} else if looksLikeTimezone(argValue) {
			tz, err = parseTimezone(argValue, c.argPath(1))
			if err != nil {
				return missingResult(), err
			}
		} else {
			return missingResult(), exprError("unit must be s or ms", c.argPath(1))
		}
	}

	if c.totalLen() == 3 {
		tzValue, ok, err := e.argStringAt(c, 2)
		if err != nil || !ok {
			return missingResult(), err
		}
		tz, err = parseTimezone(tzValue, c.argPath(2))
		if err != nil {
			return missingResult(), err
		}
	}

	dt, derr := parseDatetime(value, nil, tz, c.argPath(0))
	if derr != nil {
		return missingResult(), derr
	}

	var timestamp int64
	if unit == "ms" {
		timestamp = dt.UnixMilli()
	} else {
		timestamp = dt.Unix()
	}

	return present(timestamp), nil
}
