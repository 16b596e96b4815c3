package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	Day  = 24 * time.Hour
	Week = 7 * Day
)

// Duration is a time.Duration that reads "1d12h" or "2w" style values from YAML.
type Duration time.Duration

// Std converts back to a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	v, err := ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// calendarUnits extends time.ParseDuration. Longer suffixes come first so "ms"
// is not read as "m".
var calendarUnits = []struct {
	suffix string
	size   time.Duration
}{
	{"ns", time.Nanosecond},
	{"us", time.Microsecond},
	{"µs", time.Microsecond},
	{"ms", time.Millisecond},
	{"w", Week},
	{"d", Day},
	{"h", time.Hour},
	{"m", time.Minute},
	{"s", time.Second},
}

// ParseDuration accepts everything time.ParseDuration does plus d (days) and
// w (weeks). An empty string is zero.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if !strings.ContainsAny(s, "dw") {
		return time.ParseDuration(s)
	}

	var total time.Duration
	for rest := s; rest != ""; {
		n := strings.IndexFunc(rest, func(r rune) bool {
			return (r < '0' || r > '9') && r != '.'
		})
		if n <= 0 {
			return 0, fmt.Errorf("bad duration %q", s)
		}
		val, err := strconv.ParseFloat(rest[:n], 64)
		if err != nil {
			return 0, fmt.Errorf("bad duration %q: %w", s, err)
		}
		rest = rest[n:]

		matched := false
		for _, u := range calendarUnits {
			if strings.HasPrefix(rest, u.suffix) {
				total += time.Duration(val * float64(u.size))
				rest = rest[len(u.suffix):]
				matched = true
				break
			}
		}
		if !matched {
			return 0, fmt.Errorf("bad duration %q: unknown unit at %q", s, rest)
		}
	}
	return total, nil
}

// Distance is a length in meters. YAML accepts "250m", "1.5km" or a bare number.
type Distance float64

func (d Distance) Meters() float64 { return float64(d) }

func (d *Distance) UnmarshalYAML(node *yaml.Node) error {
	if node.Tag == "!!int" || node.Tag == "!!float" {
		var f float64
		if err := node.Decode(&f); err != nil {
			return err
		}
		*d = Distance(f)
		return nil
	}

	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	v, err := ParseDistance(raw)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Distance(v)
	return nil
}

// MarshalYAML writes whole kilometers as "Nkm" and everything else in meters.
func (d Distance) MarshalYAML() (any, error) {
	m := float64(d)
	if km := m / 1000; m >= 1000 && km == float64(int64(km)) {
		return strconv.FormatInt(int64(km), 10) + "km", nil
	}
	return strconv.FormatFloat(m, 'g', -1, 64) + "m", nil
}

// ParseDistance returns meters.
func ParseDistance(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	scale := 1.0
	if num, ok := strings.CutSuffix(s, "km"); ok {
		s, scale = num, 1000
	} else {
		s = strings.TrimSuffix(s, "m")
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("bad distance: %w", err)
	}
	return v * scale, nil
}
