package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"walkroutes/pkg/export"
	"walkroutes/pkg/history"
	"walkroutes/pkg/metrics"
	"walkroutes/pkg/route"
	"walkroutes/pkg/store"
)

const (
	maxBodyBytes   = 1 << 20
	maxImportBytes = 16 << 20
)

// MetricsBuilder computes route metrics.
type MetricsBuilder interface {
	Build(ctx context.Context, r route.Route) metrics.Metrics
	Evaluate(ctx context.Context, segments []route.Segment, status route.Status, name string) metrics.Metrics
}

// Handlers holds the HTTP handlers and their dependencies.
type Handlers struct {
	store   *store.Store
	metrics MetricsBuilder
	geodata string
	logger  *zap.Logger
}

// NewHandlers creates handlers over a store and a metrics builder.
// geodata names the surface source reported by /stats.
func NewHandlers(s *store.Store, m MetricsBuilder, geodata string, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		store:   s,
		metrics: m,
		geodata: geodata,
		logger:  logger,
	}
}

// HandleListRoutes handles GET /api/v1/routes.
func (h *Handlers) HandleListRoutes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.FindAll())
}

// HandleCreateRoute handles POST /api/v1/routes.
func (h *Handlers) HandleCreateRoute(w http.ResponseWriter, r *http.Request) {
	var req RouteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if code, field := validateRouteRequest(req); code != "" {
		writeError(w, http.StatusBadRequest, code, field)
		return
	}

	saved := h.store.Save(route.New(req.Name, req.Status, req.Segments))
	h.logger.Info("route created",
		zap.Stringer("route_id", saved.ID),
		zap.Int("segments", len(saved.Segments)),
	)
	h.writeRoute(w, r, saved)
}

// HandleGetRoute handles GET /api/v1/routes/{id}.
func (h *Handlers) HandleGetRoute(w http.ResponseWriter, r *http.Request) {
	id, ok := routeID(w, r)
	if !ok {
		return
	}
	rt, found := h.store.FindByID(id)
	if !found {
		writeError(w, http.StatusNotFound, "route_not_found", "")
		return
	}
	h.writeRoute(w, r, rt)
}

// HandleUpdateRoute handles PUT /api/v1/routes/{id}.
func (h *Handlers) HandleUpdateRoute(w http.ResponseWriter, r *http.Request) {
	id, ok := routeID(w, r)
	if !ok {
		return
	}
	var req RouteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if code, field := validateRouteRequest(req); code != "" {
		writeError(w, http.StatusBadRequest, code, field)
		return
	}

	updated, err := h.store.Update(id, func(rt *route.Route) error {
		rt.Name = req.Name
		rt.Status = req.Status
		rt.Segments = req.Segments
		return nil
	})
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.writeRoute(w, r, updated)
}

// HandleSetStatus handles POST /api/v1/routes/{id}/status.
func (h *Handlers) HandleSetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := routeID(w, r)
	if !ok {
		return
	}
	var req StatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !req.Status.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_status", "status")
		return
	}

	updated, err := h.store.Update(id, func(rt *route.Route) error {
		rt.Status = req.Status
		return nil
	})
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.writeRoute(w, r, updated)
}

// HandleAddPoint handles POST /api/v1/routes/{id}/points. It responds with
// the appended point.
func (h *Handlers) HandleAddPoint(w http.ResponseWriter, r *http.Request) {
	id, ok := routeID(w, r)
	if !ok {
		return
	}
	var req AddPointRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.SegmentID) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "segment_id")
		return
	}
	if req.Lat == nil || req.Lng == nil {
		writeError(w, http.StatusBadRequest, "invalid_coordinates", "point")
		return
	}
	p := route.Coordinate{Lat: *req.Lat, Lng: *req.Lng, Node: req.Node}
	if err := validateCoord(p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_coordinates", "point")
		return
	}

	if _, err := h.store.AppendPoint(id, req.SegmentID, p); err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleUndo handles POST /api/v1/routes/{id}/undo.
func (h *Handlers) HandleUndo(w http.ResponseWriter, r *http.Request) {
	id, ok := routeID(w, r)
	if !ok {
		return
	}
	rt, err := h.store.Undo(id)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.writeRoute(w, r, rt)
}

// HandleRedo handles POST /api/v1/routes/{id}/redo.
func (h *Handlers) HandleRedo(w http.ResponseWriter, r *http.Request) {
	id, ok := routeID(w, r)
	if !ok {
		return
	}
	rt, err := h.store.Redo(id)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.writeRoute(w, r, rt)
}

// HandleMetrics handles POST /api/v1/routes/metrics for unsaved routes.
func (h *Handlers) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	var req RouteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Status == "" {
		req.Status = route.Preliminary
	}
	if !req.Status.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_status", "status")
		return
	}
	if code, field := validateSegments(req.Segments); code != "" {
		writeError(w, http.StatusBadRequest, code, field)
		return
	}
	writeJSON(w, http.StatusOK, h.metrics.Evaluate(r.Context(), req.Segments, req.Status, req.Name))
}

// HandleNearest handles POST /api/v1/routes/nearest.
func (h *Handlers) HandleNearest(w http.ResponseWriter, r *http.Request) {
	var req NearbyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Lat == nil || req.Lng == nil {
		writeError(w, http.StatusBadRequest, "invalid_coordinates", "target")
		return
	}
	target := route.Coordinate{Lat: *req.Lat, Lng: *req.Lng}
	if err := validateCoord(target); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_coordinates", "target")
		return
	}
	threshold := req.ThresholdMeters
	if threshold == 0 {
		threshold = DefaultNearbyThresholdMeters
	}
	if threshold < 0 || math.IsNaN(threshold) {
		writeError(w, http.StatusBadRequest, "invalid_threshold", "threshold_meters")
		return
	}

	hit, found := h.store.FindNearest(target, threshold)
	if !found {
		writeError(w, http.StatusNotFound, "no_point_nearby", "")
		return
	}
	writeJSON(w, http.StatusOK, NearbyResponse{
		RouteID:        hit.Route.ID.String(),
		RouteName:      hit.Route.Name,
		SegmentID:      hit.SegmentID,
		Point:          hit.Point,
		DistanceMeters: hit.DistanceMeters,
	})
}

// HandleExport handles GET /api/v1/routes/{id}/export/{format}.
func (h *Handlers) HandleExport(w http.ResponseWriter, r *http.Request) {
	id, ok := routeID(w, r)
	if !ok {
		return
	}

	format := r.PathValue("format")
	var encode func(route.Route) ([]byte, error)
	var contentType string
	switch format {
	case "gpx":
		encode, contentType = export.GPX, export.ContentTypeGPX
	case "kml":
		encode, contentType = export.KML, export.ContentTypeKML
	case "kmz":
		encode, contentType = export.KMZ, export.ContentTypeKMZ
	case "geojson":
		encode, contentType = export.GeoJSON, export.ContentTypeGeoJSON
	default:
		writeError(w, http.StatusNotFound, "unsupported_format", "format")
		return
	}

	rt, found := h.store.FindByID(id)
	if !found {
		writeError(w, http.StatusNotFound, "route_not_found", "")
		return
	}
	data, err := encode(rt)
	if err != nil {
		h.logger.Error("export failed", zap.String("format", format), zap.Stringer("route_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=route-%s.%s", rt.ID, format))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// HandleImport handles POST /api/v1/import/{format}. The body is the
// base64-encoded document. Unparseable documents still create an empty
// route, flagged with X-Import-Degraded.
func (h *Handlers) HandleImport(w http.ResponseWriter, r *http.Request) {
	format := r.PathValue("format")
	var parse func([]byte) export.Import
	var suffix string
	switch format {
	case "gpx":
		parse, suffix = export.ParseGPX, export.SuffixGPX
	case "kml":
		parse, suffix = export.ParseKML, export.SuffixKML
	default:
		writeError(w, http.StatusNotFound, "unsupported_format", "format")
		return
	}

	status := route.Status(r.URL.Query().Get("status"))
	if status == "" {
		status = route.Preliminary
	}
	if !status.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_status", "status")
		return
	}
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		name = "Import " + strings.ToUpper(format)
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "")
		return
	}
	payload, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "body")
		return
	}

	imp := parse(payload)
	if imp.Degraded {
		h.logger.Warn("import degraded", zap.String("format", format), zap.Error(imp.Err))
		w.Header().Set("X-Import-Degraded", "true")
	}

	saved := h.store.Save(export.ImportRoute(name, suffix, status, imp.Points))
	h.logger.Info("route imported",
		zap.String("format", format),
		zap.Stringer("route_id", saved.ID),
		zap.Int("points", len(imp.Points)),
	)
	h.writeRoute(w, r, saved)
}

// HandleDeleteAll handles DELETE /api/v1/routes.
func (h *Handlers) HandleDeleteAll(w http.ResponseWriter, r *http.Request) {
	h.store.DeleteAll()
	w.WriteHeader(http.StatusNoContent)
}

// HandleHealth handles GET /api/v1/health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// HandleStats handles GET /api/v1/stats.
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatsResponse{
		Routes:        h.store.Len(),
		HistoryRoutes: h.store.History().Len(),
		Geodata:       h.geodata,
	})
}

func (h *Handlers) writeRoute(w http.ResponseWriter, r *http.Request, rt route.Route) {
	m := h.metrics.Build(r.Context(), rt)
	if m.Degraded {
		h.logger.Warn("metrics degraded", zap.Stringer("route_id", rt.ID))
	}
	writeJSON(w, http.StatusOK, RouteResponse{Route: rt, Metrics: m})
}

func (h *Handlers) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrRouteNotFound):
		writeError(w, http.StatusNotFound, "route_not_found", "")
	case errors.Is(err, store.ErrSegmentNotFound):
		writeError(w, http.StatusNotFound, "segment_not_found", "segment_id")
	case errors.Is(err, history.ErrNothingToUndo):
		writeError(w, http.StatusBadRequest, "nothing_to_undo", "")
	case errors.Is(err, history.ErrNothingToRedo):
		writeError(w, http.StatusBadRequest, "nothing_to_redo", "")
	default:
		h.logger.Error("store error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "")
	}
}

func routeID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "id")
		return uuid.Nil, false
	}
	return id, true
}

// decodeJSON enforces the JSON content type and decodes a bounded body.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "application/json" {
		writeError(w, http.StatusBadRequest, "invalid_request", "")
		return false
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "")
		return false
	}
	return true
}

func validateRouteRequest(req RouteRequest) (code, field string) {
	if strings.TrimSpace(req.Name) == "" {
		return "invalid_name", "name"
	}
	if !req.Status.Valid() {
		return "invalid_status", "status"
	}
	return validateSegments(req.Segments)
}

func validateSegments(segments []route.Segment) (code, field string) {
	seen := make(map[string]bool, len(segments))
	for i, s := range segments {
		if s.ID != "" {
			if seen[s.ID] {
				return "invalid_request", fmt.Sprintf("segments[%d].id", i)
			}
			seen[s.ID] = true
		}
		if s.Surface != "" && !s.Surface.Valid() {
			return "invalid_surface_type", fmt.Sprintf("segments[%d].surface_type", i)
		}
		for j, p := range s.Points {
			if err := validateCoord(p); err != nil {
				return "invalid_coordinates", fmt.Sprintf("segments[%d].points[%d]", i, j)
			}
		}
	}
	return "", ""
}

func validateCoord(c route.Coordinate) error {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lng, 0) {
		return errors.New("coordinates must be finite numbers")
	}
	if c.Lat < -90 || c.Lat > 90 || c.Lng < -180 || c.Lng > 180 {
		return errors.New("coordinates out of range")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, field string) {
	writeJSON(w, status, ErrorResponse{Error: code, Field: field})
}
