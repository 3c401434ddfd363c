// Package service implements the core proxy forwarding logic.
package service

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"wms-proxy-go/internal/client"
	"wms-proxy-go/internal/config"
	"wms-proxy-go/internal/crs"
	"wms-proxy-go/internal/metrics"
	"wms-proxy-go/internal/model"
	"wms-proxy-go/internal/wms"
)

// forwardableRequestHeaders are the only request headers forwarded upstream.
var forwardableRequestHeaders = []string{
	"Accept",
	"Accept-Language",
}

// forwardableResponseHeaders are the only response headers forwarded to the client.
var forwardableResponseHeaders = map[string]bool{
	"Content-Type":   true,
	"Content-Length": true,
	"Cache-Control":  true,
	"Etag":           true,
	"Last-Modified":  true,
	"Expires":        true,
	"Date":           true,
}

const userAgent = "wms-proxy-go/1.0"

// ProxyService rewrites inbound map requests and relays them to the upstream WMS.
type ProxyService struct {
	client    *client.WMSClient
	cfg       *config.Config
	logger    *slog.Logger
	metrics   *metrics.Metrics
	rebuilder *wms.Rebuilder
	baseURL   *url.URL
	auth      string
}

// NewProxyService creates a ProxyService. The metrics parameter is optional.
func NewProxyService(c *client.WMSClient, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*ProxyService, error) {
	u, err := url.Parse(cfg.Upstream.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream base_url: %w", err)
	}

	target := crs.Parse(cfg.WMS.TargetCRS)
	if !target.Known() {
		return nil, fmt.Errorf("unsupported target CRS %q", cfg.WMS.TargetCRS)
	}
	source := crs.Parse(cfg.WMS.DefaultCRS)
	if !source.Known() {
		return nil, fmt.Errorf("unsupported default CRS %q", cfg.WMS.DefaultCRS)
	}

	return &ProxyService{
		client:  c,
		cfg:     cfg,
		logger:  logger.With("component", "proxy_service"),
		metrics: m,
		rebuilder: &wms.Rebuilder{
			Target:        target,
			DefaultSource: source,
			Strict:        cfg.WMS.Strict,
			UpperCaseKeys: cfg.WMS.UpperCase(),
		},
		baseURL: u,
		auth:    cfg.Upstream.Authorization(),
	}, nil
}

// Forward rewrites the bbox and crs of a map request, sends it to the upstream
// WMS and returns the buffered response.
//
// Validation errors (wms.ErrMissingParameter, wms.ErrMalformedBBox,
// crs.ErrOutOfDomain) are returned before any upstream call is made.
func (s *ProxyService) Forward(pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	res, err := s.rebuilder.Rebuild(wms.Split(pr.Query))
	if err != nil {
		return nil, fmt.Errorf("rebuild query: %w", err)
	}
	s.recordOutcome(res)

	upstreamURL := s.buildUpstreamURL(res.Values)
	header := s.filterRequestHeaders(pr.Header)

	s.logger.Debug("forwarding request",
		"source_crs", res.Source.String(),
		"outcome", string(res.Outcome),
	)

	resp, err := s.client.Relay(pr.Ctx, upstreamURL, header)
	if err != nil {
		return nil, fmt.Errorf("forward to upstream: %w", err)
	}

	resp.Header = s.filterResponseHeaders(resp.Header)
	return resp, nil
}

// buildUpstreamURL merges the rebuilt query into the base URL's own query.
// Rebuilt parameters replace base parameters of the same name.
func (s *ProxyService) buildUpstreamURL(query url.Values) string {
	u := *s.baseURL

	q := u.Query()
	for k, v := range query {
		q[k] = v
	}
	u.RawQuery = q.Encode()

	return u.String()
}

func (s *ProxyService) filterRequestHeaders(src http.Header) http.Header {
	dst := make(http.Header)
	for _, key := range forwardableRequestHeaders {
		if vals := src.Values(key); len(vals) > 0 {
			dst[http.CanonicalHeaderKey(key)] = vals
		}
	}
	dst.Set("User-Agent", userAgent)
	if s.auth != "" {
		dst.Set("Authorization", s.auth)
	}
	return dst
}

func (s *ProxyService) filterResponseHeaders(src http.Header) http.Header {
	dst := make(http.Header)
	for key, vals := range src {
		if forwardableResponseHeaders[http.CanonicalHeaderKey(key)] {
			dst[key] = vals
		}
	}
	return dst
}

func (s *ProxyService) recordOutcome(res wms.Result) {
	if s.metrics == nil || res.Outcome == "" {
		return
	}
	s.metrics.BBoxNormalizations.WithLabelValues(
		res.Source.String(),
		s.rebuilder.Target.String(),
		string(res.Outcome),
	).Inc()
}
