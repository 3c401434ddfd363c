// Package crs identifies the coordinate reference systems the proxy understands
// and converts points between them.
package crs

import (
	"net/url"
	"strings"
)

// Identifier is one of the coordinate reference systems known to the proxy.
type Identifier int

const (
	// Unknown is any CRS outside the supported set. Requests carrying it are
	// forwarded without reprojection.
	Unknown Identifier = iota
	// WebMercator is the spherical Mercator projection (EPSG:3857), in meters.
	WebMercator
	// WGS84 is geographic WGS 84 (EPSG:4326), in degrees.
	WGS84
	// CRS84 is the OGC alias of geographic WGS 84 (CRS:84), in degrees.
	CRS84
)

var codes = map[Identifier]string{
	WebMercator: "EPSG:3857",
	WGS84:       "EPSG:4326",
	CRS84:       "CRS:84",
}

// maxUnescape bounds how many layers of percent-encoding Parse strips.
const maxUnescape = 3

// Parse canonicalizes a CRS string as it appears on the wire. Case, surrounding
// whitespace and percent-encoding (EPSG%3A4326, EPSG%253A4326) are ignored.
// Anything outside the supported set yields Unknown.
func Parse(s string) Identifier {
	v := strings.TrimSpace(s)
	for range maxUnescape {
		if !strings.Contains(v, "%") {
			break
		}
		u, err := url.QueryUnescape(v)
		if err != nil || u == v {
			break
		}
		v = strings.TrimSpace(u)
	}

	v = strings.ToUpper(v)
	for id, code := range codes {
		if v == code {
			return id
		}
	}
	return Unknown
}

// String returns the canonical wire form, e.g. "EPSG:3857".
func (id Identifier) String() string {
	if code, ok := codes[id]; ok {
		return code
	}
	return "unknown"
}

// Known reports whether id is part of the supported set.
func (id Identifier) Known() bool {
	_, ok := codes[id]
	return ok
}

// Geographic reports whether id measures angles (degrees of longitude and latitude).
func (id Identifier) Geographic() bool {
	return id == WGS84 || id == CRS84
}

// LatitudeFirst reports whether bbox text in id is written latitude first.
// EPSG:4326 is, as the upstream service expects; CRS:84 is longitude first.
func (id Identifier) LatitudeFirst() bool {
	return id == WGS84
}

// SameLogical reports whether a and b describe the same coordinate space, so a
// point in one is already a point in the other. EPSG:4326 and CRS:84 share the
// WGS 84 datum and are treated as one space.
func SameLogical(a, b Identifier) bool {
	if !a.Known() || !b.Known() {
		return false
	}
	return a == b || (a.Geographic() && b.Geographic())
}
