// Package export encodes routes as GPX, KML, KMZ and GeoJSON and decodes
// track points from GPX and KML uploads.
package export

import (
	"archive/zip"
	"bytes"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/tkrajina/gpxgo/gpx"
	"github.com/twpayne/go-kml"

	"walkroutes/pkg/route"
)

// Creator is written into GPX headers.
const Creator = "walkroutes"

// KMZEntry is the name of the KML document inside a KMZ archive.
const KMZEntry = "route.kml"

// nodeType marks named waypoints in GPX <type> elements.
const nodeType = "node"

// Content types per format.
const (
	ContentTypeGPX     = "application/gpx+xml"
	ContentTypeKML     = "application/vnd.google-earth.kml+xml"
	ContentTypeKMZ     = "application/vnd.google-earth.kmz"
	ContentTypeGeoJSON = "application/geo+json"
)

// GPX renders one track per segment.
func GPX(r route.Route) ([]byte, error) {
	doc := &gpx.GPX{Version: "1.1", Creator: Creator, Name: r.Name}
	for _, seg := range r.Segments {
		trkseg := gpx.GPXTrackSegment{Points: make([]gpx.GPXPoint, 0, len(seg.Points))}
		for _, p := range seg.Points {
			pt := gpx.GPXPoint{Point: gpx.Point{Latitude: p.Lat, Longitude: p.Lng}}
			if p.Node {
				pt.Type = nodeType
			}
			trkseg.Points = append(trkseg.Points, pt)
		}
		doc.Tracks = append(doc.Tracks, gpx.GPXTrack{
			Name:     seg.Name,
			Type:     string(seg.Surface),
			Segments: []gpx.GPXTrackSegment{trkseg},
		})
	}

	data, err := doc.ToXml(gpx.ToXmlParams{Version: "1.1", Indent: true})
	if err != nil {
		return nil, fmt.Errorf("encode gpx: %w", err)
	}
	return data, nil
}

// KML renders a Document with one LineString placemark per segment.
func KML(r route.Route) ([]byte, error) {
	placemarks := make([]kml.Element, 0, len(r.Segments)+1)
	placemarks = append(placemarks, kml.Name(r.Name))
	for _, seg := range r.Segments {
		coords := make([]kml.Coordinate, len(seg.Points))
		for i, p := range seg.Points {
			coords[i] = kml.Coordinate{Lon: p.Lng, Lat: p.Lat}
		}
		placemarks = append(placemarks, kml.Placemark(
			kml.Name(seg.Name),
			kml.Description(string(seg.Surface)),
			kml.LineString(
				kml.Tessellate(true),
				kml.Coordinates(coords...),
			),
		))
	}

	var buf bytes.Buffer
	if err := kml.KML(kml.Document(placemarks...)).WriteIndent(&buf, "", "  "); err != nil {
		return nil, fmt.Errorf("encode kml: %w", err)
	}
	return buf.Bytes(), nil
}

// KMZ wraps the KML rendering in a zip archive with a single entry.
func KMZ(r route.Route) ([]byte, error) {
	doc, err := KML(r)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(KMZEntry)
	if err != nil {
		return nil, fmt.Errorf("create kmz entry: %w", err)
	}
	if _, err := w.Write(doc); err != nil {
		return nil, fmt.Errorf("write kmz entry: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close kmz: %w", err)
	}
	return buf.Bytes(), nil
}

// GeoJSON renders a FeatureCollection with one LineString feature per segment.
func GeoJSON(r route.Route) ([]byte, error) {
	fc := geojson.NewFeatureCollection()
	for _, seg := range r.Segments {
		line := make(orb.LineString, len(seg.Points))
		nodes := make([]int, 0)
		for i, p := range seg.Points {
			line[i] = orb.Point{p.Lng, p.Lat}
			if p.Node {
				nodes = append(nodes, i)
			}
		}

		f := geojson.NewFeature(line)
		f.ID = seg.ID
		f.Properties["route_id"] = r.ID.String()
		f.Properties["route_name"] = r.Name
		f.Properties["status"] = string(r.Status)
		f.Properties["name"] = seg.Name
		f.Properties["surface_type"] = string(seg.Surface)
		f.Properties["preliminary"] = seg.Preliminary
		f.Properties["nodes"] = nodes
		fc.Append(f)
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode geojson: %w", err)
	}
	return data, nil
}
