package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"wms-proxy-go/internal/config"
)

var (
	corsAllowMethods = []string{http.MethodGet, http.MethodOptions}
	corsAllowHeaders = []string{echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization}
)

// CORS returns Echo's CORS middleware configured for browser map clients.
// Only GET and OPTIONS are allowed; the proxy has no other methods.
func CORS(cfg config.CORSConfig) echo.MiddlewareFunc {
	return echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     cfg.AllowOrigins,
		AllowMethods:     corsAllowMethods,
		AllowHeaders:     corsAllowHeaders,
		AllowCredentials: cfg.AllowCredentials,
		ExposeHeaders:    []string{echo.HeaderContentType, echo.HeaderContentLength, echo.HeaderXRequestID},
		MaxAge:           3600,
	})
}

// CORSHeaders returns the CORS response headers for a request from origin, for
// responses that carry their headers in a body (function envelopes) rather
// than on the HTTP response. Allow-Origin is omitted when origin is not allowed.
func CORSHeaders(cfg config.CORSConfig, origin string) map[string]string {
	h := map[string]string{
		echo.HeaderAccessControlAllowMethods: strings.Join(corsAllowMethods, ","),
		echo.HeaderAccessControlAllowHeaders: strings.Join(corsAllowHeaders, ","),
	}
	if o := allowedOrigin(cfg, origin); o != "" {
		h[echo.HeaderAccessControlAllowOrigin] = o
	}
	if cfg.AllowCredentials {
		h[echo.HeaderAccessControlAllowCredentials] = "true"
	}
	return h
}

// allowedOrigin mirrors the origin matching of the CORS middleware. A wildcard
// is echoed back as the request origin when credentials are allowed.
func allowedOrigin(cfg config.CORSConfig, origin string) string {
	for _, o := range cfg.AllowOrigins {
		switch {
		case o == "*" && cfg.AllowCredentials && origin != "":
			return origin
		case o == "*":
			return "*"
		case origin != "" && strings.EqualFold(o, origin):
			return origin
		}
	}
	return ""
}
