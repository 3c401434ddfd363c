// Package wms rewrites inbound WMS GetMap queries for the upstream service:
// bounding boxes are reprojected into the upstream CRS and the query is
// re-encoded with the deployment's key conventions.
package wms

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"wms-proxy-go/internal/crs"
)

// ErrMalformedBBox is returned when a bbox is not four finite comma-separated numbers.
var ErrMalformedBBox = errors.New("malformed bbox")

// BBox is a parsed bounding box. Bound.Min holds the first coordinate pair and
// Bound.Max the second, exactly as they appeared in the text.
type BBox struct {
	Bound orb.Bound
	CRS   crs.Identifier
}

// Outcome describes what normalization did to a bounding box.
type Outcome string

const (
	OutcomeUnchanged   Outcome = "unchanged"
	OutcomeReprojected Outcome = "reprojected"
	OutcomePassThrough Outcome = "passthrough"
)

// ParseBBox parses "minx,miny,maxx,maxy".
func ParseBBox(text string, id crs.Identifier) (BBox, error) {
	parts := strings.Split(text, ",")
	if len(parts) != 4 {
		return BBox{}, fmt.Errorf("%w: expected 4 comma-separated values, got %d", ErrMalformedBBox, len(parts))
	}

	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return BBox{}, fmt.Errorf("%w: field %d: %w", ErrMalformedBBox, i+1, err)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return BBox{}, fmt.Errorf("%w: field %d is not finite", ErrMalformedBBox, i+1)
		}
		v[i] = f
	}

	return BBox{
		Bound: orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}},
		CRS:   id,
	}, nil
}

// String serializes the box in the order it was read.
func (b BBox) String() string {
	return formatBBox(b.Bound.Min[0], b.Bound.Min[1], b.Bound.Max[0], b.Bound.Max[1])
}

// Normalize reprojects bboxText from sourceCRS into targetCRS.
//
// The text is always parsed first, so a malformed bbox fails even when no
// reprojection is needed. When both CRS strings name the same space the input
// is returned unchanged, and when either is unknown it is passed through.
// EPSG:4326 boxes are written and read latitude first (lat,lon,lat,lon), which
// is the axis order the upstream service expects. CRS:84 boxes are lon,lat.
func Normalize(bboxText, sourceCRS, targetCRS string) (string, error) {
	out, _, err := normalize(bboxText, crs.Parse(sourceCRS), crs.Parse(targetCRS))
	return out, err
}

func normalize(text string, src, dst crs.Identifier) (string, Outcome, error) {
	b, err := ParseBBox(text, src)
	if err != nil {
		return "", "", err
	}

	switch {
	case !src.Known() || !dst.Known():
		return text, OutcomePassThrough, nil
	case crs.SameLogical(src, dst):
		return text, OutcomeUnchanged, nil
	}

	lower, upper := b.Bound.Min, b.Bound.Max
	if src.LatitudeFirst() {
		lower, upper = swapAxes(lower), swapAxes(upper)
	}

	lower, err = crs.Transform(src, dst, lower)
	if err != nil {
		return "", "", fmt.Errorf("reproject lower corner: %w", err)
	}
	upper, err = crs.Transform(src, dst, upper)
	if err != nil {
		return "", "", fmt.Errorf("reproject upper corner: %w", err)
	}

	if dst.LatitudeFirst() {
		lower, upper = swapAxes(lower), swapAxes(upper)
	}

	return formatBBox(lower[0], lower[1], upper[0], upper[1]), OutcomeReprojected, nil
}

// swapAxes turns a latitude-first pair into (lon, lat) and back.
func swapAxes(p orb.Point) orb.Point {
	return orb.Point{p[1], p[0]}
}

func formatBBox(v ...float64) string {
	s := make([]string, len(v))
	for i, f := range v {
		s[i] = strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strings.Join(s, ",")
}
