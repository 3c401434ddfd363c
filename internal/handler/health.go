package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"wms-proxy-go/internal/config"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	version Version
}

// StatusResponse is the body of GET /proxy/status.
type StatusResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	UpstreamURL string `json:"upstream_url"`
	TargetCRS   string `json:"target_crs"`
	DefaultCRS  string `json:"default_crs"`
	Strict      bool   `json:"strict"`
	TimeoutMS   int64  `json:"timeout_ms"`
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status returns proxy status information. Upstream credentials are never included.
func (h *HealthHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, StatusResponse{
		Status:      "ok",
		Version:     string(h.version),
		UpstreamURL: h.cfg.Upstream.BaseURL,
		TargetCRS:   h.cfg.WMS.TargetCRS,
		DefaultCRS:  h.cfg.WMS.DefaultCRS,
		Strict:      h.cfg.WMS.Strict,
		TimeoutMS:   h.cfg.Upstream.Timeout().Milliseconds(),
	})
}
