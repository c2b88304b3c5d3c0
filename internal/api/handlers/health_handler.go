package handlers

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/disk"
)

// Pinger reports database reachability.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// UsageReporter reports disk usage of the upload volume.
type UsageReporter interface {
	Usage(ctx context.Context) (*disk.UsageStat, error)
}

// HealthHandler reports whether the database and the upload volume are usable.
type HealthHandler struct {
	db      Pinger
	uploads UsageReporter
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(db Pinger, uploads UsageReporter) *HealthHandler {
	return &HealthHandler{db: db, uploads: uploads}
}

// uploadVolume omits the mount path so the server layout is not exposed.
type uploadVolume struct {
	Total       uint64  `json:"total"`
	Free        uint64  `json:"free"`
	UsedPercent float64 `json:"usedPercent"`
}

type healthResponse struct {
	Status   string        `json:"status"`
	Database string        `json:"database"`
	Uploads  *uploadVolume `json:"uploads,omitempty"`
}

// Get handles GET /api/v1/health.
func (h *HealthHandler) Get(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Database: "ok"}
	status := http.StatusOK

	if err := h.db.PingContext(r.Context()); err != nil {
		log.Error().Err(err).Msg("Health check: database unreachable")
		resp.Status, resp.Database = "degraded", "unreachable"
		status = http.StatusServiceUnavailable
	}

	usage, err := h.uploads.Usage(r.Context())
	if err != nil {
		log.Warn().Err(err).Msg("Health check: could not read upload volume usage")
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	} else {
		resp.Uploads = &uploadVolume{
			Total:       usage.Total,
			Free:        usage.Free,
			UsedPercent: usage.UsedPercent,
		}
	}

	writeJSON(w, status, resp)
}
