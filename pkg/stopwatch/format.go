package stopwatch

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type unit struct {
	size  uint64
	label string
}

// Largest first. Human rendering walks this table.
var humanUnits = []unit{
	{uint64(time.Hour), "h"},
	{uint64(time.Minute), "m"},
	{uint64(time.Second), "s"},
	{uint64(time.Millisecond), "ms"},
	{uint64(time.Microsecond), "µs"},
	{uint64(time.Nanosecond), "ns"},
}

// String renders the duration according to its policy.
func (d Duration) String() string {
	if d.policy.Mode == Numeric {
		return d.numericString()
	}
	return d.humanString()
}

// magnitude returns the sign and absolute value. The absolute value of
// math.MinInt64 does not fit in an int64, hence the uint64.
func (d Duration) magnitude() (neg bool, mag uint64) {
	if d.nanos < 0 {
		return true, uint64(-(d.nanos + 1)) + 1
	}
	return false, uint64(d.nanos)
}

func (d Duration) humanString() string {
	if d.policy.Format != "" {
		return d.layoutString()
	}

	neg, mag := d.magnitude()
	if mag == 0 {
		return "0s"
	}

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, u := range humanUnits {
		if mag < u.size {
			continue
		}
		b.WriteString(strconv.FormatUint(mag/u.size, 10))
		b.WriteString(u.label)
		if i+1 < len(humanUnits) {
			next := humanUnits[i+1]
			if rest := (mag % u.size) / next.size; rest != 0 {
				b.WriteString(strconv.FormatUint(rest, 10))
				b.WriteString(next.label)
			}
		}
		break
	}
	return b.String()
}

// components splits mag into hours, minutes, seconds, milliseconds,
// microseconds and nanoseconds.
func components(mag uint64) [6]uint64 {
	var parts [6]uint64
	for i, u := range humanUnits {
		parts[i] = mag / u.size
		mag %= u.size
	}
	return parts
}

// layoutString expands the %H %M %s %m %u %n placeholders of the format.
// A format without placeholders is returned verbatim.
func (d Duration) layoutString() string {
	format := d.policy.Format
	if !hasPlaceholder(format) {
		return format
	}

	neg, mag := d.magnitude()
	parts := components(mag)
	r := strings.NewReplacer(
		"%%", "%",
		"%H", strconv.FormatUint(parts[0], 10),
		"%M", strconv.FormatUint(parts[1], 10),
		"%s", strconv.FormatUint(parts[2], 10),
		"%m", strconv.FormatUint(parts[3], 10),
		"%u", strconv.FormatUint(parts[4], 10),
		"%n", strconv.FormatUint(parts[5], 10),
	)
	out := r.Replace(format)
	if neg {
		return "-" + out
	}
	return out
}

func hasPlaceholder(format string) bool {
	for i := 0; i+1 < len(format); i++ {
		if format[i] != '%' {
			continue
		}
		c := format[i+1]
		if c == '%' {
			i++
			continue
		}
		if strings.IndexByte("HMsmun", c) >= 0 {
			return true
		}
	}
	return false
}

func (d Duration) numericString() string {
	secs := d.Count()
	if d.policy.Format == "" {
		return strconv.FormatFloat(secs, 'g', 6, 64)
	}
	if verb, ok := floatFormat(d.policy.Format); ok {
		if out := fmt.Sprintf(verb, secs); !strings.Contains(out, "%!") {
			return out
		}
	}
	return d.policy.Format
}

// maxFormatDigits bounds width and precision; fmt rejects values of a
// million or more.
const maxFormatDigits = 6

// floatFormat turns a numeric format hint into a printf format taking a
// single float64. It accepts either a bare precision (".3") or a printf
// string containing exactly one float verb, with "%%" escapes allowed.
func floatFormat(format string) (string, bool) {
	if len(format) > 1 && format[0] == '.' && allDigits(format[1:]) && len(format)-1 <= maxFormatDigits {
		return "%" + format + "f", true
	}

	verbs := 0
	for i := 0; i < len(format); i++ {
		if format[i] != '%' {
			continue
		}
		i++
		if i < len(format) && format[i] == '%' {
			continue
		}
		for i < len(format) && strings.IndexByte("+-# 0", format[i]) >= 0 {
			i++
		}
		if i = skipDigits(format, i); i < 0 {
			return "", false
		}
		if i < len(format) && format[i] == '.' {
			if i = skipDigits(format, i+1); i < 0 {
				return "", false
			}
		}
		if i >= len(format) || strings.IndexByte("eEfFgGv", format[i]) < 0 {
			return "", false
		}
		verbs++
	}
	return format, verbs == 1
}

// skipDigits returns the index after the digit run starting at i, or -1
// when the run is longer than maxFormatDigits.
func skipDigits(s string, i int) int {
	start := i
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	if i-start > maxFormatDigits {
		return -1
	}
	return i
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return s != ""
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
