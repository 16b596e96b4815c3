package probe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wikimap/pkg/model"
)

func TestRun(t *testing.T) {
	ok := func(context.Context) error { return nil }
	minor := func(context.Context) error { return errors.New("minor issue") }
	hang := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}

	results := Run(context.Background(), []Probe{
		{Name: "db", Check: ok, Critical: true},
		{Name: "thumbs", Check: minor},
		{Name: "slow", Check: hang, Timeout: 20 * time.Millisecond},
	})

	require.Len(t, results, 3)
	assert.NoError(t, results[0].Error)
	assert.EqualError(t, results[1].Error, "minor issue")
	assert.ErrorIs(t, results[2].Error, context.DeadlineExceeded)
	assert.Less(t, results[2].Duration, DefaultTimeout)
}

func TestAnalyzeResults(t *testing.T) {
	boom := errors.New("boom")
	advisory := Result{Probe: Probe{Name: "geosearch"}, Error: boom}
	critical := Result{Probe: Probe{Name: "database", Critical: true}, Error: boom}
	passed := Result{Probe: Probe{Name: "database", Critical: true}}

	assert.NoError(t, AnalyzeResults(nil))
	assert.NoError(t, AnalyzeResults([]Result{passed}))
	assert.NoError(t, AnalyzeResults([]Result{advisory}))

	err := AnalyzeResults([]Result{advisory, critical})
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "database: boom")
	assert.NotContains(t, err.Error(), "geosearch")
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) PingContext(ctx context.Context) error { return f(ctx) }

type sourceFunc func(ctx context.Context, lat, lon, radius float64, limit int) ([]model.Feature, error)

func (f sourceFunc) GeoSearch(ctx context.Context, lat, lon, radius float64, limit int) ([]model.Feature, error) {
	return f(ctx, lat, lon, radius, limit)
}

func TestChecks(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, Database(pingFunc(func(context.Context) error { return nil }))(ctx))
	assert.ErrorContains(t, Database(pingFunc(func(context.Context) error { return errors.New("locked") }))(ctx), "locked")

	var gotLimit int
	ok := sourceFunc(func(_ context.Context, lat, lon, radius float64, limit int) ([]model.Feature, error) {
		gotLimit = limit
		return nil, nil
	})
	assert.NoError(t, GeoSearch(ok, 31.24, 121.49)(ctx))
	assert.Equal(t, 1, gotLimit)

	failing := sourceFunc(func(context.Context, float64, float64, float64, int) ([]model.Feature, error) {
		return nil, errors.New("status 503")
	})
	assert.ErrorContains(t, GeoSearch(failing, 31.24, 121.49)(ctx), "503")
}
