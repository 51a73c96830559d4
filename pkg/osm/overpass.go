package osm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"

	"walkroutes/pkg/route"
)

// DefaultOverpassURL is the public Overpass interpreter endpoint.
const DefaultOverpassURL = "https://overpass-api.de/api/interpreter"

// maxResponseBytes caps how much of an Overpass response is read.
const maxResponseBytes = 32 << 20

var (
	// ErrNoElements is returned when the response carries no elements array.
	ErrNoElements = errors.New("overpass response has no elements")
	// ErrStatus is returned for non-2xx responses.
	ErrStatus = errors.New("overpass request failed")
)

// HTTPDoer is the subset of *http.Client used by Overpass.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Overpass queries an Overpass API interpreter for railway and highway ways.
type Overpass struct {
	url    string
	client HTTPDoer
}

// NewOverpass creates a client with its own http.Client bounded by timeout.
func NewOverpass(url string, timeout time.Duration) *Overpass {
	return NewOverpassWithDoer(url, &http.Client{Timeout: timeout})
}

// NewOverpassWithDoer creates a client that sends requests through doer.
func NewOverpassWithDoer(url string, doer HTTPDoer) *Overpass {
	if url == "" {
		url = DefaultOverpassURL
	}
	return &Overpass{url: url, client: doer}
}

// Query builds the Overpass QL request for all railway and highway ways
// inside bound, including tags and per-way geometry.
func Query(bound orb.Bound) string {
	box := fmt.Sprintf("%f,%f,%f,%f",
		bound.Min.Lat(), bound.Min.Lon(), bound.Max.Lat(), bound.Max.Lon())
	return fmt.Sprintf(`[out:json][timeout:25];(way["railway"](%s);way["highway"](%s););out tags geom;`, box, box)
}

type overpassResponse struct {
	Elements *[]overpassElement `json:"elements"`
}

type overpassElement struct {
	Type     string            `json:"type"`
	ID       int64             `json:"id"`
	Tags     map[string]string `json:"tags"`
	Geometry []overpassPoint   `json:"geometry"`
}

type overpassPoint struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
}

// Features issues one query for bound and decodes the returned ways.
func (o *Overpass) Features(ctx context.Context, bound orb.Bound) ([]Feature, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, strings.NewReader(Query(bound)))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: HTTP %d", ErrStatus, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return decodeOverpass(data)
}

func decodeOverpass(data []byte) ([]Feature, error) {
	var parsed overpassResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if parsed.Elements == nil {
		return nil, ErrNoElements
	}

	features := make([]Feature, 0, len(*parsed.Elements))
	for _, el := range *parsed.Elements {
		geom := make([]route.Coordinate, 0, len(el.Geometry))
		for _, p := range el.Geometry {
			// Overpass emits null entries for nodes outside the clipped area.
			if p.Lat == nil || p.Lon == nil {
				continue
			}
			geom = append(geom, route.Coordinate{Lat: *p.Lat, Lng: *p.Lon})
		}
		features = append(features, Feature{
			ID:       osm.WayID(el.ID),
			Tags:     tagsFromMap(el.Tags),
			Geometry: geom,
		})
	}
	return features, nil
}
