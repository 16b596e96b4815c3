package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"wikimap/pkg/config"
)

// ConfigProvider returns the active configuration. MapHandler satisfies it.
type ConfigProvider interface {
	Config() *config.Config
}

// ConfigHandler serves the tuning a map client needs to mirror the engine,
// such as the zoom at which popups start opening.
type ConfigHandler struct {
	cfg ConfigProvider
}

func NewConfigHandler(cfg ConfigProvider) *ConfigHandler {
	return &ConfigHandler{cfg: cfg}
}

// ConfigResponse represents the config API response.
type ConfigResponse struct {
	Layer           string  `json:"layer"`
	ZoomThreshold   float64 `json:"zoom_threshold"`
	MaxOverlapRatio float64 `json:"max_overlap_ratio"`
	SizeMin         float64 `json:"size_min"`
	SizeMax         float64 `json:"size_max"`
	MaxOpen         int     `json:"max_open"`
	WaitForIdle     bool    `json:"wait_for_idle"`
	MinRadius       float64 `json:"min_radius_m"`
	MaxRadius       float64 `json:"max_radius_m"`
	Lang            string  `json:"lang"`
}

// HandleGet handles GET /api/config.
func (h *ConfigHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	cfg := h.cfg.Config()
	d := cfg.Declutter

	resp := ConfigResponse{
		Layer:           d.Layer,
		ZoomThreshold:   d.ZoomThreshold,
		MaxOverlapRatio: d.MaxOverlapRatio,
		SizeMin:         d.SizeMin,
		SizeMax:         d.SizeMax,
		MaxOpen:         d.MaxOpen,
		WaitForIdle:     d.WaitForIdle,
		MinRadius:       cfg.Fetch.MinRadius.Meters(),
		MaxRadius:       cfg.Fetch.MaxRadius.Meters(),
		Lang:            cfg.Wikipedia.Lang,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to write config response", "error", err)
	}
}
