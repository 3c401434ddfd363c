// Package client provides the upstream HTTP client for the WMS service.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"wms-proxy-go/internal/config"
	"wms-proxy-go/internal/metrics"
	"wms-proxy-go/internal/model"
)

// drainLimit caps how much of an error body is read to allow connection reuse.
const drainLimit = 4 << 10

// WMSClient sends map requests to the upstream WMS.
type WMSClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
	timeout    time.Duration
	maxBody    int64
}

// NewWMSClient creates a WMSClient with connection pooling. The upstream
// timeout is applied per call by Relay, not on the http.Client.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewWMSClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *WMSClient {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	maxBody := cfg.Upstream.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 32 << 20
	}

	return &WMSClient{
		httpClient: &http.Client{Transport: transport},
		logger:     logger.With("component", "wms_client"),
		metrics:    m,
		timeout:    cfg.Upstream.Timeout(),
		maxBody:    maxBody,
	}
}

// Do executes an HTTP request against the upstream and returns the raw response.
// The caller is responsible for closing the response body.
func (c *WMSClient) Do(req *http.Request) (*http.Response, error) {
	c.logger.Debug("upstream request",
		"method", req.Method,
		"path", req.URL.Path,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller
	duration := time.Since(start).Seconds()

	method := metrics.NormalizeMethod(req.Method)

	if err != nil {
		if c.metrics != nil {
			c.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
		}
		return nil, fmt.Errorf("upstream request: %w", err)
	}

	if c.metrics != nil {
		status := strconv.Itoa(resp.StatusCode)
		c.metrics.UpstreamDuration.WithLabelValues(method).Observe(duration)
		c.metrics.UpstreamResponses.WithLabelValues(method, status).Inc()
	}

	return resp, nil
}

// Relay issues a single GET to url with the given headers and buffers the
// whole response. It never retries.
//
// The call is bounded by the configured timeout and by ctx: when either fires
// the pending request is aborted. A non-2xx status yields *UpstreamError, an
// expired timeout ErrUpstreamTimeout, and a connection-level failure
// ErrNetworkFailure. Cancellation of ctx is reported as context.Canceled.
func (c *WMSClient) Relay(ctx context.Context, url string, header http.Header) (*model.ProxyResponse, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	if header != nil {
		req.Header = header
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, c.classify(ctx, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, drainLimit))
		return nil, &UpstreamError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, c.classify(ctx, fmt.Errorf("read upstream body: %w", err))
	}
	if int64(len(body)) > c.maxBody {
		c.recordFailure("body_limit")
		return nil, fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, c.maxBody)
	}

	return &model.ProxyResponse{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Header:      resp.Header,
		Body:        body,
	}, nil
}

// classify maps a transport error onto the relay's error kinds using the state
// of the call's context.
func (c *WMSClient) classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		c.recordFailure("timeout")
		return fmt.Errorf("%w after %s: %w", ErrUpstreamTimeout, c.timeout, err)
	case errors.Is(ctx.Err(), context.Canceled):
		c.recordFailure("canceled")
		return fmt.Errorf("%w: %w", context.Canceled, err)
	default:
		c.recordFailure("network")
		return fmt.Errorf("%w: %w", ErrNetworkFailure, err)
	}
}

func (c *WMSClient) recordFailure(reason string) {
	if c.metrics != nil {
		c.metrics.UpstreamFailures.WithLabelValues(reason).Inc()
	}
}
