package declutter

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"wikimap/pkg/camera"
	"wikimap/pkg/config"
	"wikimap/pkg/geo"
	"wikimap/pkg/model"
)

// Candidate is a feature considered for popup placement in one recompute cycle.
type Candidate struct {
	Feature model.Feature
	Point   geo.ScreenPoint // Projected marker position
	Dist    float64         // Pixel distance to the projected viewport center
	Size    float64         // Estimated popup edge length
	Rect    geo.Rect        // Estimated popup footprint, hanging above the marker
}

// EstimateSize derives a popup edge length from the thumbnail dimensions:
// the geometric mean of width and height, clamped to [SizeMin, SizeMax].
// Missing or non-positive dimensions use SizeFallback.
func EstimateSize(f *model.Feature, cfg *config.DeclutterConfig) float64 {
	size := cfg.SizeFallback
	if f.ThumbWidth > 0 && f.ThumbHeight > 0 {
		w := math.Max(1, float64(f.ThumbWidth))
		h := math.Max(1, float64(f.ThumbHeight))
		size = math.Sqrt(w * h)
	}
	return geo.Clamp(size, cfg.SizeMin, cfg.SizeMax)
}

// AnchoredRect returns a size×size rectangle horizontally centered on p whose
// bottom edge touches p.
func AnchoredRect(p geo.ScreenPoint, size float64) geo.Rect {
	half := size / 2
	return geo.Rect{
		Left:   p.X - half,
		Right:  p.X + half,
		Top:    p.Y - size,
		Bottom: p.Y,
	}
}

// distGrid is the resolution at which distances are compared. Projection
// round-trips leave noise far below it, so markers that sit at the same
// on-screen distance tie and fall back to the page id order.
const distGrid = 1e-3

func distRank(d float64) float64 {
	return math.Round(d / distGrid)
}

// Project turns features into candidates ordered by distance to the viewport
// center, ties broken by ascending page id.
// Features without identity and duplicate identities are dropped.
// An error means the camera itself cannot project and the cycle must be abandoned.
func Project(cam camera.Camera, features []model.Feature, cfg *config.DeclutterConfig) ([]Candidate, error) {
	center, err := cam.Project(cam.Center())
	if err != nil {
		return nil, fmt.Errorf("project center: %w", err)
	}

	seen := make(map[int64]bool, len(features))
	candidates := make([]Candidate, 0, len(features))

	for i := range features {
		f := &features[i]
		if !f.HasIdentity() || seen[f.PageID] {
			continue
		}

		sp, err := cam.Project(f.Point())
		if err != nil {
			if errors.Is(err, camera.ErrNotReady) {
				return nil, err
			}
			// Bad coordinate on one feature: skip it, keep the batch
			continue
		}
		seen[f.PageID] = true

		size := EstimateSize(f, cfg)
		candidates = append(candidates, Candidate{
			Feature: *f,
			Point:   sp,
			Dist:    sp.DistanceTo(center),
			Size:    size,
			Rect:    AnchoredRect(sp, size),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if di, dj := distRank(candidates[i].Dist), distRank(candidates[j].Dist); di != dj {
			return di < dj
		}
		return candidates[i].Feature.PageID < candidates[j].Feature.PageID
	})

	return candidates, nil
}
