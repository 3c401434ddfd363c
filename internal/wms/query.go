package wms

import (
	"errors"
	"fmt"
	"maps"
	"net/url"
	"slices"
	"strings"

	"wms-proxy-go/internal/crs"
)

// ErrMissingParameter is returned in strict mode when bbox or crs is absent.
var ErrMissingParameter = errors.New("missing required parameter")

// MissingParameterError names the absent parameter.
type MissingParameterError struct {
	Name string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingParameter, e.Name)
}

func (e *MissingParameterError) Unwrap() error { return ErrMissingParameter }

const (
	keyBBox = "bbox"
	keyCRS  = "crs"
)

// Query is an inbound parameter set split into the fields the proxy rewrites
// and the fields it forwards untouched.
type Query struct {
	BBox    string
	BBoxKey string // inbound spelling, empty when absent
	CRS     string
	CRSKey  string // inbound spelling, empty when absent
	Params  url.Values
}

// HasBBox reports whether the inbound query carried a bbox.
func (q Query) HasBBox() bool { return q.BBoxKey != "" }

// HasCRS reports whether the inbound query carried a crs.
func (q Query) HasCRS() bool { return q.CRSKey != "" }

// Split extracts bbox and crs (matched case-insensitively) from values. Only
// the first value of each is used. When several spellings are present the one
// that sorts first wins (BBOX before bbox) and the others are dropped. The rest
// is copied into Params.
func Split(values url.Values) Query {
	q := Query{Params: make(url.Values, len(values))}
	for _, k := range slices.Sorted(maps.Keys(values)) {
		vs := values[k]
		switch {
		case strings.EqualFold(k, keyBBox) && len(vs) > 0 && !q.HasBBox():
			q.BBox, q.BBoxKey = vs[0], k
		case strings.EqualFold(k, keyCRS) && len(vs) > 0 && !q.HasCRS():
			q.CRS, q.CRSKey = vs[0], k
		case strings.EqualFold(k, keyBBox), strings.EqualFold(k, keyCRS):
			// duplicate spelling
		default:
			q.Params[k] = append([]string(nil), vs...)
		}
	}
	return q
}

// Rebuilder turns a Query into the upstream query string.
type Rebuilder struct {
	// Target is the CRS the upstream service expects.
	Target crs.Identifier
	// DefaultSource is assumed for the bbox when the request has no crs and
	// Strict is false.
	DefaultSource crs.Identifier
	// Strict rejects requests without bbox or crs.
	Strict bool
	// UpperCaseKeys upper-cases every parameter name.
	UpperCaseKeys bool
}

// Result is a rebuilt query along with what happened to its bbox.
type Result struct {
	Values  url.Values
	Source  crs.Identifier
	Outcome Outcome // empty when no bbox was forwarded
}

// Encode returns the URL-encoded query string.
func (r Result) Encode() string {
	return r.Values.Encode()
}

// Rebuild validates q, normalizes its bbox into the target CRS and applies the
// key casing policy. Parameter order is not preserved.
func (r *Rebuilder) Rebuild(q Query) (Result, error) {
	if r.Strict {
		if !q.HasBBox() {
			return Result{}, &MissingParameterError{Name: keyBBox}
		}
		if !q.HasCRS() {
			return Result{}, &MissingParameterError{Name: keyCRS}
		}
	}

	out := make(url.Values, len(q.Params)+2)
	for k, vs := range q.Params {
		k = r.key(k)
		out[k] = append(out[k], vs...)
	}

	res := Result{Values: out, Source: crs.Parse(q.CRS)}
	if !q.HasCRS() {
		res.Source = r.DefaultSource
	}

	crsKey := r.key(keyOr(q.CRSKey, keyCRS))
	if q.HasCRS() {
		out.Set(crsKey, q.CRS)
	}

	if !q.HasBBox() {
		return res, nil
	}

	bbox, outcome, err := normalize(q.BBox, res.Source, r.Target)
	if err != nil {
		return Result{}, err
	}
	res.Outcome = outcome

	out.Set(r.key(keyOr(q.BBoxKey, keyBBox)), bbox)
	switch outcome {
	case OutcomeReprojected:
		out.Set(crsKey, r.Target.String())
	case OutcomeUnchanged:
		// EPSG:4326 and CRS:84 boxes stay in their own axis order.
		out.Set(crsKey, res.Source.String())
	}
	return res, nil
}

func (r *Rebuilder) key(k string) string {
	if r.UpperCaseKeys {
		return strings.ToUpper(k)
	}
	return k
}

func keyOr(k, fallback string) string {
	if k == "" {
		return fallback
	}
	return k
}
