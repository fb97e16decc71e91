package router

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mohammed-shakir/aoi-tiling/internal/geo"
	"github.com/mohammed-shakir/aoi-tiling/internal/shapeio"
	"github.com/mohammed-shakir/aoi-tiling/internal/tiling"
)

// TileRequest is the body of every tiling endpoint. Omitted numeric fields and
// includeBoundingBox take the server defaults. geoJson may be an object or a
// string holding the document.
type TileRequest struct {
	GeoJSON            json.RawMessage `json:"geoJson"`
	MaxTileArea        *float64        `json:"maxTileArea,omitempty"`
	MinTileArea        *float64        `json:"minTileArea,omitempty"`
	CoverageThreshold  *float64        `json:"coverageThreshold,omitempty"`
	IncludeBoundingBox *bool           `json:"includeBoundingBox,omitempty"`
}

type requestError struct{ msg string }

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

// ParseTileRequest decodes and validates a request body against defaults.
func ParseTileRequest(body []byte, defaults tiling.Policy) (geo.Shape, tiling.Policy, error) {
	var req TileRequest
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&req); err != nil {
		return nil, tiling.Policy{}, badRequest("decode request: %v", err)
	}
	doc := bytes.TrimSpace(req.GeoJSON)
	if len(doc) == 0 || bytes.Equal(doc, []byte("null")) {
		return nil, tiling.Policy{}, badRequest("missing required field: geoJson")
	}
	if doc[0] == '"' {
		var s string
		if err := json.Unmarshal(doc, &s); err != nil {
			return nil, tiling.Policy{}, badRequest("geoJson: %v", err)
		}
		doc = []byte(s)
	}

	shape, err := shapeio.Decode(doc)
	if err != nil {
		return nil, tiling.Policy{}, err
	}

	p := defaults
	if req.MaxTileArea != nil {
		p.MaxTileArea = *req.MaxTileArea
	}
	if req.MinTileArea != nil {
		p.MinTileArea = *req.MinTileArea
	}
	if req.CoverageThreshold != nil {
		p.CoverageThreshold = *req.CoverageThreshold
	}
	if req.IncludeBoundingBox != nil {
		p.IncludeBoundingBox = *req.IncludeBoundingBox
	}
	if err := p.Validate(); err != nil {
		return nil, tiling.Policy{}, err
	}
	return shape, p, nil
}

// isClientError reports errors caused by the request itself.
func isClientError(err error) bool {
	var re *requestError
	var ring *geo.RingError
	return errors.As(err, &re) ||
		errors.As(err, &ring) ||
		shapeio.IsValidation(err) ||
		errors.Is(err, tiling.ErrInvalidPolicy)
}
