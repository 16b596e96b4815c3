package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wikimap/pkg/config"
	"wikimap/pkg/features"
	"wikimap/pkg/geo"
	"wikimap/pkg/model"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func startSession(t *testing.T, src *fakeSource) (*Session, *fakeConn) {
	t.Helper()
	cfg := config.DefaultConfig()
	conn := newFakeConn()
	fetcher := features.NewFetcher(src, nil, cfg.Fetch, "en", 500)
	s := NewSession("test", conn, &cfg.Declutter, fetcher, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(context.Background())
	}()
	t.Cleanup(func() {
		conn.close()
		<-done
	})
	return s, conn
}

func TestSession_Lifecycle(t *testing.T) {
	src := &fakeSource{features: heritage()}
	s, conn := startSession(t, src)

	// Zoom in past the threshold
	conn.in <- cameraMsg(21)
	conn.in <- inbound{Type: msgZoomEnd}

	require.Eventually(t, func() bool { return len(conn.sent(msgOpen)) == 2 }, waitFor, tick)
	assert.True(t, conn.hasMode("auto"))
	assert.Len(t, conn.sent(msgFeatures), 1)
	assert.ElementsMatch(t, []int64{1, 2}, idsOf(conn.sent(msgOpen)))

	open := conn.sent(msgOpen)[0]
	assert.Contains(t, open.HTML, "pointer-events")
	assert.NotZero(t, open.Lon)

	// The user closes the Peace Hotel popup
	conn.in <- inbound{Type: msgClose, ID: 1}
	require.Eventually(t, func() bool {
		ids := s.Engine().Suppressed()
		return len(ids) == 1 && ids[0] == 1
	}, waitFor, tick)
	assert.Equal(t, 1, s.OpenPopups())

	// Panning does not bring it back
	conn.in <- inbound{Type: msgMoveEnd}
	s.Engine().Recompute()
	time.Sleep(120 * time.Millisecond)
	s.Engine().Recompute()
	assert.Len(t, conn.sent(msgOpen), 2)

	// Measured footprint for the remaining popup
	rect := geo.Rect{Left: 560, Right: 740, Top: 80, Bottom: 300}
	conn.in <- inbound{Type: msgFootprint, ID: 2, Rect: &rect}
	require.Eventually(t, func() bool {
		r, ok := s.Footprint(2)
		return ok && r == rect
	}, waitFor, tick)

	// Zoom back out
	conn.in <- cameraMsg(19.5)
	conn.in <- inbound{Type: msgZoomEnd}
	require.Eventually(t, func() bool { return conn.hasMode("inactive") }, waitFor, tick)
	assert.Equal(t, []int64{2}, idsOf(conn.sent(msgRemove)))
	assert.Zero(t, s.OpenPopups())
	assert.Empty(t, s.Engine().Suppressed())

	_, ok := s.Footprint(2)
	assert.False(t, ok)
}

func TestSession_ClickOpensSuppressed(t *testing.T) {
	src := &fakeSource{features: heritage()}
	s, conn := startSession(t, src)

	conn.in <- cameraMsg(21)
	conn.in <- inbound{Type: msgZoomEnd}
	require.Eventually(t, func() bool { return len(conn.sent(msgOpen)) == 2 }, waitFor, tick)

	conn.in <- inbound{Type: msgClose, ID: 2}
	require.Eventually(t, func() bool { return s.OpenPopups() == 1 }, waitFor, tick)

	// Unknown ids are ignored, known ones reopen
	conn.in <- inbound{Type: msgClick, ID: 999}
	conn.in <- inbound{Type: msgClick, ID: 2}
	require.Eventually(t, func() bool { return len(conn.sent(msgOpen)) == 3 }, waitFor, tick)
	assert.Empty(t, s.Engine().Suppressed())
}

func TestSession_WaitsForIdle(t *testing.T) {
	src := &fakeSource{features: heritage()}
	s, conn := startSession(t, src)

	moving := cameraMsg(21)
	moving.Moving = true
	conn.in <- moving
	conn.in <- inbound{Type: msgZoomEnd}

	require.Eventually(t, func() bool { return conn.hasMode("auto") }, waitFor, tick)
	require.Eventually(t, func() bool { return len(conn.sent(msgFeatures)) == 1 }, waitFor, tick)
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, s.OpenPopups())

	conn.in <- inbound{Type: msgIdle}
	assert.Eventually(t, func() bool { return s.OpenPopups() == 2 }, waitFor, tick)
}

func TestSession_RenderedFeatures(t *testing.T) {
	cfg := config.DefaultConfig()
	s := NewSession("rf", newFakeConn(), &cfg.Declutter, nil, nil)

	_, err := s.RenderedFeatures("wikipedia")
	assert.Error(t, err, "camera not ready")

	msg := cameraMsg(21)
	s.setCamera(&msg)
	s.SetFeatures(heritage())

	got, err := s.RenderedFeatures("wikipedia")
	require.NoError(t, err)
	assert.Len(t, got, 2, "off-screen marker is not rendered")

	got, err = s.RenderedFeatures("photos")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSession_RendererContract(t *testing.T) {
	cfg := config.DefaultConfig()
	conn := newFakeConn()
	s := NewSession("rc", conn, &cfg.Declutter, nil, nil)

	f := model.Feature{PageID: 5, Title: "Customs House", Lon: bund.Lon(), Lat: bund.Lat()}
	p, err := s.Create(f, "<div></div>")
	require.NoError(t, err)

	_, err = s.Create(f, "<div></div>")
	assert.Error(t, err, "one popup per identity")

	closed := 0
	p.OnClose(func() { closed++ })

	// Engine-initiated removal: no close callback, one remove command
	require.NoError(t, p.Remove())
	require.NoError(t, p.Remove())
	assert.Equal(t, 0, closed)
	assert.Equal(t, []int64{5}, idsOf(conn.sent(msgRemove)))

	// A late close from the client for a removed popup is ignored
	s.handle(context.Background(), &inbound{Type: msgClose, ID: 5})
	assert.Equal(t, 0, closed)

	p, err = s.Create(f, "<div></div>")
	require.NoError(t, err)
	p.OnClose(func() { closed++ })
	s.handle(context.Background(), &inbound{Type: msgClose, ID: 5})
	assert.Equal(t, 1, closed)
	assert.Zero(t, s.OpenPopups())
}
