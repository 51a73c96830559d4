package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"walkroutes/pkg/export"
	"walkroutes/pkg/geo"
	"walkroutes/pkg/metrics"
	"walkroutes/pkg/osm"
	"walkroutes/pkg/route"
	"walkroutes/pkg/surface"
)

func main() {
	input := flag.String("input", "", "Path to a .gpx or .kml track")
	name := flag.String("name", "", "Route name (defaults to the file name)")
	final := flag.Bool("final", false, "Evaluate as a FINAL route (classify surfaces)")
	overpassURL := flag.String("overpass", osm.DefaultOverpassURL, "Overpass interpreter URL")
	pbf := flag.String("pbf", "", "Classify against a local .osm.pbf extract instead of Overpass")
	workers := flag.Int("workers", metrics.DefaultWorkers, "Concurrent segment classifications")
	flag.Parse()

	if *input == "" {
		fmt.Fprintln(os.Stderr, "Usage: routemetrics --input <track.gpx|track.kml> [--final] [--pbf extract.osm.pbf | --overpass URL] [--name NAME]")
		os.Exit(1)
	}

	status := route.Preliminary
	if *final {
		status = route.Final
	}

	start := time.Now()

	log.Printf("Reading %s...", *input)
	r, err := loadRoute(*input, *name, status)
	if err != nil {
		log.Fatalf("Failed to read track: %v", err)
	}
	log.Printf("Loaded %d points", r.PointCount())

	var source osm.Source
	if *final {
		if *pbf != "" {
			log.Printf("Loading OSM extract %s...", *pbf)
			f, err := os.Open(*pbf)
			if err != nil {
				log.Fatalf("Failed to open extract: %v", err)
			}
			ext, err := osm.LoadExtract(context.Background(), f, extractOptions(r))
			f.Close()
			if err != nil {
				log.Fatalf("Failed to load extract: %v", err)
			}
			log.Printf("Extract: %d features", ext.Len())
			source = ext
		} else {
			log.Printf("Using Overpass at %s", *overpassURL)
			source = osm.NewOverpass(*overpassURL, 30*time.Second)
		}
	}

	engine := metrics.NewEngine(surface.NewClassifier(source), metrics.WithWorkers(*workers))
	m := engine.Build(context.Background(), r)
	if m.Degraded {
		log.Println("WARNING: surface lookup failed for at least one segment; affected distance counted as UNKNOWN")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		log.Fatalf("Failed to write metrics: %v", err)
	}
	log.Printf("Done in %s", time.Since(start).Round(time.Millisecond))
}

// extractOptions limits the extract to the area around the track. A route
// without points loads the whole file.
func extractOptions(r route.Route) osm.ExtractOptions {
	var points []route.Coordinate
	for _, seg := range r.Segments {
		points = append(points, seg.Points...)
	}
	if len(points) == 0 {
		return osm.ExtractOptions{}
	}
	return osm.ExtractOptions{Bound: geo.PaddedBound(points, surface.BoundPadding)}
}

// loadRoute parses a GPX or KML file into a single-segment route.
func loadRoute(path, name string, status route.Status) (route.Route, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return route.Route{}, err
	}

	var imp export.Import
	var suffix string
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".gpx":
		imp, suffix = export.ParseGPX(data), export.SuffixGPX
	case ".kml":
		imp, suffix = export.ParseKML(data), export.SuffixKML
	default:
		return route.Route{}, fmt.Errorf("unsupported file type %q", ext)
	}
	if imp.Degraded {
		return route.Route{}, imp.Err
	}
	if len(imp.Points) == 0 {
		return route.Route{}, fmt.Errorf("no points in %s", path)
	}

	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return export.ImportRoute(name, suffix, status, imp.Points), nil
}
