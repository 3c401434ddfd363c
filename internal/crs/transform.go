package crs

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/wroge/wgs84"
)

var (
	// ErrUnsupportedPair is returned when either side of a transform is outside
	// the supported set. It is not fatal: callers forward the input unchanged.
	ErrUnsupportedPair = errors.New("unsupported CRS pair")

	// ErrOutOfDomain is returned for points that have no finite image in the
	// target CRS, or that are not valid coordinates in the source CRS.
	ErrOutOfDomain = errors.New("coordinate outside CRS domain")
)

var (
	mercatorToLonLat = wgs84.Transform(wgs84.WebMercator(), wgs84.LonLat())
	lonLatToMercator = wgs84.Transform(wgs84.LonLat(), wgs84.WebMercator())
)

// Transform converts p from src to dst. Points are (east, north): for the
// geographic systems that is (longitude, latitude) in degrees, for Web Mercator
// (x, y) in meters.
func Transform(src, dst Identifier, p orb.Point) (orb.Point, error) {
	if !src.Known() || !dst.Known() {
		return p, fmt.Errorf("%w: %s -> %s", ErrUnsupportedPair, src, dst)
	}
	if !finite(p) {
		return p, fmt.Errorf("%w: %v in %s", ErrOutOfDomain, p, src)
	}
	if SameLogical(src, dst) {
		return p, nil
	}
	if src.Geographic() && math.Abs(p.Lat()) > 90 {
		return p, fmt.Errorf("%w: latitude %v in %s", ErrOutOfDomain, p.Lat(), src)
	}

	var out orb.Point
	if src == WebMercator {
		lon, lat, _ := mercatorToLonLat(p.X(), p.Y(), 0)
		out = orb.Point{lon, lat}
	} else {
		x, y, _ := lonLatToMercator(p.Lon(), p.Lat(), 0)
		out = orb.Point{x, y}
	}

	if !finite(out) {
		return p, fmt.Errorf("%w: %v from %s to %s", ErrOutOfDomain, p, src, dst)
	}
	return out, nil
}

func finite(p orb.Point) bool {
	for _, v := range p {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
