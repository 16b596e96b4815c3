package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"wikimap/pkg/features"
)

// DefaultTimeout bounds a probe without its own timeout.
const DefaultTimeout = 5 * time.Second

// CheckFunc returns nil when the dependency is usable.
type CheckFunc func(ctx context.Context) error

// Probe is a single startup check.
type Probe struct {
	Name     string
	Check    CheckFunc
	Critical bool // A failure prevents startup
	Timeout  time.Duration
}

// Result holds the outcome of a single probe.
type Result struct {
	Probe    Probe
	Error    error
	Duration time.Duration
}

// Run executes the probes in order.
func Run(ctx context.Context, probes []Probe) []Result {
	results := make([]Result, len(probes))
	for i, p := range probes {
		timeout := p.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		start := time.Now()
		checkCtx, cancel := context.WithTimeout(ctx, timeout)
		err := p.Check(checkCtx)
		cancel()

		results[i] = Result{Probe: p, Error: err, Duration: time.Since(start)}
	}
	return results
}

// AnalyzeResults logs a summary and joins the errors of failed critical probes.
func AnalyzeResults(results []Result) error {
	var criticalErrors []error

	slog.Info("Startup Checks Summary")
	for _, r := range results {
		status := "PASS"
		if r.Error != nil {
			status = "FAIL"
		}
		msg := fmt.Sprintf("[%s] %-20s (%v)", status, r.Probe.Name, r.Duration.Round(time.Millisecond))

		switch {
		case r.Error == nil:
			slog.Info(msg)
		case r.Probe.Critical:
			slog.Error(msg, "error", r.Error)
			criticalErrors = append(criticalErrors, fmt.Errorf("%s: %w", r.Probe.Name, r.Error))
		default:
			slog.Warn(msg, "error", r.Error)
		}
	}
	return errors.Join(criticalErrors...)
}

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Database checks that the cache database answers.
func Database(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		if err := p.PingContext(ctx); err != nil {
			return fmt.Errorf("database ping: %w", err)
		}
		return nil
	}
}

// GeoSearch checks that the feature source answers a tiny search at lat/lon.
// An empty result is fine, only errors fail.
func GeoSearch(src features.Source, lat, lon float64) CheckFunc {
	return func(ctx context.Context) error {
		if _, err := src.GeoSearch(ctx, lat, lon, 10, 1); err != nil {
			return fmt.Errorf("geosearch: %w", err)
		}
		return nil
	}
}
