package api

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"wikimap/pkg/camera"
	"wikimap/pkg/geo"
	"wikimap/pkg/model"
)

var bund = orb.Point{121.4903, 31.2400}

// fakeSource serves a fixed feature set to every geosearch.
type fakeSource struct {
	mu       sync.Mutex
	calls    int
	features []model.Feature
	err      error
}

func (s *fakeSource) GeoSearch(ctx context.Context, lat, lon, radius float64, limit int) ([]model.Feature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.features, s.err
}

// heritage returns two features well apart at zoom 21 on an 800x600 canvas,
// and one far off-screen.
func heritage() []model.Feature {
	v := camera.NewViewport(bund, 21, 800, 600)
	at := func(id int64, title string, x, y float64) model.Feature {
		ll, _ := v.Unproject(geo.ScreenPoint{X: x, Y: y})
		return model.Feature{PageID: id, Title: title, Lon: ll.Lon(), Lat: ll.Lat(), ThumbWidth: 100, ThumbHeight: 100}
	}
	return []model.Feature{
		at(1, "Peace Hotel", 150, 300),
		at(2, "Bank of China Building", 650, 300),
		at(3, "Oriental Pearl Tower", 5000, 300),
	}
}

func cameraMsg(zoom float64) inbound {
	return inbound{Type: msgCamera, Center: [2]float64{bund.Lon(), bund.Lat()}, Zoom: zoom, Width: 800, Height: 600}
}

// fakeConn is an in-memory transport.
type fakeConn struct {
	in     chan inbound
	closed chan struct{}
	once   sync.Once

	mu  sync.Mutex
	out []outbound
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan inbound, 16), closed: make(chan struct{})}
}

func (c *fakeConn) ReadJSON(v any) error {
	select {
	case msg := <-c.in:
		*v.(*inbound) = msg
		return nil
	case <-c.closed:
		return io.EOF
	}
}

func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.out = append(c.out, v.(outbound))
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) close() { c.once.Do(func() { close(c.closed) }) }

// sent returns the messages of type typ written so far.
func (c *fakeConn) sent(typ string) []outbound {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []outbound
	for _, m := range c.out {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

func (c *fakeConn) hasMode(mode string) bool {
	for _, m := range c.sent(msgMode) {
		if m.Mode == mode {
			return true
		}
	}
	return false
}

func idsOf(msgs []outbound) []int64 {
	ids := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	return ids
}
