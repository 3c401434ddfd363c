// Package model defines shared types for the proxy.
package model

import (
	"context"
	"net/http"
	"net/url"
)

// ProxyRequest is one inbound map request, owned for the duration of the call.
type ProxyRequest struct {
	Ctx    context.Context
	Query  url.Values
	Header http.Header
}

// ProxyResponse is a fully buffered upstream response. The body is opaque
// image bytes and is never re-encoded by the proxy.
type ProxyResponse struct {
	StatusCode  int
	ContentType string
	Header      http.Header
	Body        []byte
}

// Envelope is the function-as-a-service response shape: the upstream answer
// wrapped in JSON, with binary bodies base64 encoded.
type Envelope struct {
	StatusCode      int               `json:"statusCode"`
	Headers         map[string]string `json:"headers"`
	Body            string            `json:"body"`
	IsBase64Encoded bool              `json:"isBase64Encoded"`
}
