package export

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/tkrajina/gpxgo/gpx"

	"walkroutes/pkg/route"
)

// ErrBadCoordinate is reported for a KML tuple with a non-numeric lon or lat.
var ErrBadCoordinate = errors.New("malformed coordinate")

// Import is the result of decoding an upload. A malformed payload yields no
// points with Degraded set and the cause in Err.
type Import struct {
	Points   []route.Coordinate
	Degraded bool
	Err      error
}

func failed(err error) Import {
	return Import{Points: []route.Coordinate{}, Degraded: true, Err: err}
}

// ParseGPX returns every track point in document order.
func ParseGPX(data []byte) Import {
	doc, err := gpx.ParseBytes(data)
	if err != nil {
		return failed(fmt.Errorf("parse gpx: %w", err))
	}

	points := make([]route.Coordinate, 0)
	for _, trk := range doc.Tracks {
		for _, seg := range trk.Segments {
			for _, p := range seg.Points {
				points = append(points, route.Coordinate{
					Lat:  p.Latitude,
					Lng:  p.Longitude,
					Node: p.Type == nodeType,
				})
			}
		}
	}
	return Import{Points: points}
}

// ParseKML returns the points of every <coordinates> element in document order.
func ParseKML(data []byte) Import {
	dec := xml.NewDecoder(bytes.NewReader(data))
	points := make([]route.Coordinate, 0)
	inCoords := false
	var text strings.Builder

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return failed(fmt.Errorf("parse kml: %w", err))
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "coordinates" {
				inCoords = true
				text.Reset()
			}
		case xml.CharData:
			if inCoords {
				text.Write(t)
			}
		case xml.EndElement:
			if t.Name.Local != "coordinates" || !inCoords {
				continue
			}
			inCoords = false
			pts, err := parseTuples(text.String())
			if err != nil {
				return failed(err)
			}
			points = append(points, pts...)
		}
	}
	return Import{Points: points}
}

// parseTuples parses whitespace separated lon,lat[,alt] tuples.
func parseTuples(s string) ([]route.Coordinate, error) {
	fields := strings.Fields(s)
	out := make([]route.Coordinate, 0, len(fields))
	for _, f := range fields {
		parts := strings.Split(f, ",")
		if len(parts) < 2 {
			continue
		}
		lon, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrBadCoordinate, f)
		}
		lat, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrBadCoordinate, f)
		}
		out = append(out, route.Coordinate{Lat: lat, Lng: lon})
	}
	return out, nil
}

// Segment name suffixes for imported tracks.
const (
	SuffixGPX = "track"
	SuffixKML = "trail"
)

// ImportRoute wraps imported points in a route with one UNKNOWN segment
// named "<name> <suffix>". The segment is preliminary for PRELIMINARY routes.
func ImportRoute(name, suffix string, status route.Status, points []route.Coordinate) route.Route {
	if status == "" {
		status = route.Preliminary
	}
	seg := route.NewSegment(name+" "+suffix, route.Unknown, status == route.Preliminary, points)
	return route.New(name, status, []route.Segment{seg})
}
