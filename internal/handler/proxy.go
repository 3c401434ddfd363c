package handler

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/labstack/echo/v4"

	"wms-proxy-go/internal/client"
	"wms-proxy-go/internal/config"
	"wms-proxy-go/internal/crs"
	"wms-proxy-go/internal/middleware"
	"wms-proxy-go/internal/model"
	"wms-proxy-go/internal/service"
	"wms-proxy-go/internal/wms"
)

// errorPrefix starts every plain-text error body.
const errorPrefix = "Error in proxy server: "

var (
	// credentialParamPattern matches credential query parameters in URLs embedded in error messages.
	credentialParamPattern = regexp.MustCompile(`(?i)((?:api_?key|token|password)=)[^&\s"]+`)
	// userinfoPattern matches the password part of URL userinfo.
	userinfoPattern = regexp.MustCompile(`(://[^/@\s"]*?:)[^@/\s"]+@`)
)

// ProxyHandler serves map requests through the upstream WMS.
type ProxyHandler struct {
	service *service.ProxyService
	cors    config.CORSConfig
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.ProxyService, cfg *config.Config, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		cors:    cfg.CORS,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// Handle relays a map request and writes the upstream image bytes unchanged.
func (h *ProxyHandler) Handle(c echo.Context) error {
	resp, err := h.forward(c)
	if err != nil {
		return h.mapError(c, err)
	}

	for key, vals := range resp.Header {
		for _, v := range vals {
			c.Response().Header().Add(key, v)
		}
	}

	contentType := resp.ContentType
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}
	return c.Blob(http.StatusOK, contentType, resp.Body)
}

// HandleEnvelope relays a map request and answers with a JSON envelope
// carrying the status, headers and base64 body. Failures are reported inside
// the envelope; the outer response is always 200. CORS headers are part of the
// envelope headers on success and on error.
func (h *ProxyHandler) HandleEnvelope(c echo.Context) error {
	headers := middleware.CORSHeaders(h.cors, c.Request().Header.Get(echo.HeaderOrigin))

	resp, err := h.forward(c)
	if err != nil {
		status, reason := h.classify(c, err)
		headers[echo.HeaderContentType] = echo.MIMETextPlainCharsetUTF8
		return c.JSON(http.StatusOK, model.Envelope{
			StatusCode: status,
			Headers:    headers,
			Body:       errorPrefix + reason,
		})
	}

	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}
	headers[echo.HeaderContentType] = resp.ContentType

	return c.JSON(http.StatusOK, model.Envelope{
		StatusCode:      http.StatusOK,
		Headers:         headers,
		Body:            base64.StdEncoding.EncodeToString(resp.Body),
		IsBase64Encoded: true,
	})
}

func (h *ProxyHandler) forward(c echo.Context) (*model.ProxyResponse, error) {
	req := c.Request()
	return h.service.Forward(&model.ProxyRequest{
		Ctx:    req.Context(),
		Query:  req.URL.Query(),
		Header: req.Header,
	})
}

func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	status, reason := h.classify(c, err)
	return c.String(status, errorPrefix+reason)
}

// classify logs err once and returns the status code and client-facing reason.
// Request problems are 400; every upstream failure is 500.
func (h *ProxyHandler) classify(c echo.Context, err error) (int, string) {
	status, reason := http.StatusInternalServerError, "upstream request failed"

	var (
		missing  *wms.MissingParameterError
		upstream *client.UpstreamError
	)
	switch {
	case errors.As(err, &missing):
		status, reason = http.StatusBadRequest, missing.Error()
	case errors.Is(err, wms.ErrMalformedBBox), errors.Is(err, crs.ErrOutOfDomain):
		status, reason = http.StatusBadRequest, sanitizeError(err)
	case errors.As(err, &upstream):
		reason = upstream.Error()
	case errors.Is(err, client.ErrUpstreamTimeout):
		reason = client.ErrUpstreamTimeout.Error()
	case errors.Is(err, context.Canceled):
		reason = "client disconnected"
	case errors.Is(err, client.ErrBodyTooLarge):
		reason = client.ErrBodyTooLarge.Error()
	case errors.Is(err, client.ErrNetworkFailure):
		reason = client.ErrNetworkFailure.Error()
	}

	level := slog.LevelError
	if status < http.StatusInternalServerError {
		level = slog.LevelWarn
	}
	h.logger.Log(c.Request().Context(), level, "proxy error",
		"err", sanitizeError(err),
		"status", status,
		"path", c.Request().URL.Path,
	)

	return status, reason
}

// sanitizeError redacts credentials from error messages that may contain upstream URLs.
func sanitizeError(err error) string {
	s := credentialParamPattern.ReplaceAllString(err.Error(), "${1}[REDACTED]")
	return userinfoPattern.ReplaceAllString(s, "${1}[REDACTED]@")
}
