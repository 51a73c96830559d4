package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"walkroutes/pkg/metrics"
	"walkroutes/pkg/route"
	"walkroutes/pkg/store"
)

// mockMetrics implements MetricsBuilder for testing.
type mockMetrics struct {
	result metrics.Metrics
}

func (m *mockMetrics) Build(ctx context.Context, r route.Route) metrics.Metrics {
	return m.result
}

func (m *mockMetrics) Evaluate(ctx context.Context, segments []route.Segment, status route.Status, name string) metrics.Metrics {
	out := m.result
	out.TotalKm = float64(len(segments))
	return out
}

func newTestServer(t *testing.T) (http.Handler, *store.Store) {
	t.Helper()
	s := store.New(nil)
	h := NewHandlers(s, &mockMetrics{result: metrics.Metrics{TotalKm: 1.65, EstimatedMinutes: 22}}, "overpass", nil)
	srv := NewServer(DefaultConfig(":0"), h, nil)
	return srv.Handler, s
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response: %v. body: %s", err, w.Body.String())
	}
	return v
}

const createBody = `{
  "name": "City walk",
  "status": "PRELIMINARY",
  "segments": [{
    "name": "center",
    "surface_type": "ASPHALT",
    "preliminary": true,
    "points": [{"lat": 56.84, "lng": 60.59, "node": true}, {"lat": 56.83, "lng": 60.57}]
  }]
}`

func createRoute(t *testing.T, h http.Handler) RouteResponse {
	t.Helper()
	w := do(t, h, "POST", "/api/v1/routes", createBody)
	if w.Code != http.StatusOK {
		t.Fatalf("create status = %d, want 200. body: %s", w.Code, w.Body.String())
	}
	return decode[RouteResponse](t, w)
}

func TestCreateAndGetRoute(t *testing.T) {
	h, _ := newTestServer(t)
	created := createRoute(t, h)

	if created.Route.Name != "City walk" {
		t.Errorf("Name = %q", created.Route.Name)
	}
	if len(created.Route.Segments) != 1 || created.Route.Segments[0].ID == "" {
		t.Fatalf("segments = %+v", created.Route.Segments)
	}
	if created.Metrics.TotalKm != 1.65 {
		t.Errorf("metrics not embedded: %+v", created.Metrics)
	}

	w := do(t, h, "GET", "/api/v1/routes/"+created.Route.ID.String(), "")
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", w.Code)
	}
	got := decode[RouteResponse](t, w)
	if got.Route.ID != created.Route.ID {
		t.Errorf("ID = %s, want %s", got.Route.ID, created.Route.ID)
	}

	list := decode[[]route.Route](t, do(t, h, "GET", "/api/v1/routes", ""))
	if len(list) != 1 {
		t.Errorf("list length = %d, want 1", len(list))
	}
}

func TestCreateRoute_Validation(t *testing.T) {
	h, _ := newTestServer(t)

	tests := []struct {
		name      string
		body      string
		wantField string
	}{
		{"blank name", `{"name":" ","status":"FINAL"}`, "name"},
		{"bad status", `{"name":"x","status":"DRAFT"}`, "status"},
		{"missing status", `{"name":"x"}`, "status"},
		{"bad surface", `{"name":"x","status":"FINAL","segments":[{"surface_type":"SAND"}]}`, "segments[0].surface_type"},
		{"bad coordinate", `{"name":"x","status":"FINAL","segments":[{"points":[{"lat":91,"lng":0}]}]}`, "segments[0].points[0]"},
		{"duplicate segment id", `{"name":"x","status":"FINAL","segments":[{"id":"a"},{"id":"b"},{"id":"a"}]}`, "segments[2].id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, "POST", "/api/v1/routes", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			if resp := decode[ErrorResponse](t, w); resp.Field != tt.wantField {
				t.Errorf("field = %q, want %q", resp.Field, tt.wantField)
			}
		})
	}
}

func TestCreateRoute_InvalidJSON(t *testing.T) {
	h, _ := newTestServer(t)
	if w := do(t, h, "POST", "/api/v1/routes", "not json"); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestCreateRoute_MissingContentType(t *testing.T) {
	h, _ := newTestServer(t)
	req := httptest.NewRequest("POST", "/api/v1/routes", strings.NewReader(createBody))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestGetRoute_NotFoundAndBadID(t *testing.T) {
	h, _ := newTestServer(t)

	if w := do(t, h, "GET", "/api/v1/routes/4b1d3a52-7d0c-4a8f-9f43-1b1e8b1f0c11", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown id: status = %d, want 404", w.Code)
	}
	if w := do(t, h, "GET", "/api/v1/routes/not-a-uuid", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad id: status = %d, want 400", w.Code)
	}
}

func TestUpdateAndStatus(t *testing.T) {
	h, _ := newTestServer(t)
	id := createRoute(t, h).Route.ID.String()

	w := do(t, h, "PUT", "/api/v1/routes/"+id, `{"name":"Renamed","status":"FINAL","segments":[]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d. body: %s", w.Code, w.Body.String())
	}
	updated := decode[RouteResponse](t, w)
	if updated.Route.Name != "Renamed" || updated.Route.Status != route.Final || len(updated.Route.Segments) != 0 {
		t.Errorf("update not applied: %+v", updated.Route)
	}

	w = do(t, h, "POST", "/api/v1/routes/"+id+"/status", `{"status":"PRELIMINARY"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status change = %d", w.Code)
	}
	if got := decode[RouteResponse](t, w); got.Route.Status != route.Preliminary {
		t.Errorf("Status = %s, want PRELIMINARY", got.Route.Status)
	}

	if w := do(t, h, "POST", "/api/v1/routes/"+id+"/status", `{"status":"DONE"}`); w.Code != http.StatusBadRequest {
		t.Errorf("invalid status: %d, want 400", w.Code)
	}
}

func TestAddPointUndoRedo(t *testing.T) {
	h, _ := newTestServer(t)
	created := createRoute(t, h)
	id := created.Route.ID.String()
	segID := created.Route.Segments[0].ID

	body := fmt.Sprintf(`{"segment_id":%q,"lat":56.82,"lng":60.55,"node":true}`, segID)
	w := do(t, h, "POST", "/api/v1/routes/"+id+"/points", body)
	if w.Code != http.StatusOK {
		t.Fatalf("add point = %d. body: %s", w.Code, w.Body.String())
	}
	p := decode[route.Coordinate](t, w)
	if p.Lat != 56.82 || !p.Node {
		t.Errorf("point = %+v", p)
	}

	w = do(t, h, "POST", "/api/v1/routes/"+id+"/undo", "")
	if w.Code != http.StatusOK {
		t.Fatalf("undo = %d", w.Code)
	}
	if n := len(decode[RouteResponse](t, w).Route.Segments[0].Points); n != 2 {
		t.Errorf("points after undo = %d, want 2", n)
	}

	w = do(t, h, "POST", "/api/v1/routes/"+id+"/redo", "")
	if w.Code != http.StatusOK {
		t.Fatalf("redo = %d", w.Code)
	}
	if n := len(decode[RouteResponse](t, w).Route.Segments[0].Points); n != 3 {
		t.Errorf("points after redo = %d, want 3", n)
	}

	if w := do(t, h, "POST", "/api/v1/routes/"+id+"/redo", ""); w.Code != http.StatusBadRequest {
		t.Errorf("redo with empty stack = %d, want 400", w.Code)
	}
}

func TestUndo_NothingToUndo(t *testing.T) {
	h, _ := newTestServer(t)
	id := createRoute(t, h).Route.ID.String()

	w := do(t, h, "POST", "/api/v1/routes/"+id+"/undo", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if resp := decode[ErrorResponse](t, w); resp.Error != "nothing_to_undo" {
		t.Errorf("error = %q", resp.Error)
	}
}

func TestAddPoint_NotFound(t *testing.T) {
	h, _ := newTestServer(t)
	id := createRoute(t, h).Route.ID.String()

	w := do(t, h, "POST", "/api/v1/routes/"+id+"/points", `{"segment_id":"nope","lat":1,"lng":2}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown segment = %d, want 404", w.Code)
	}
	w = do(t, h, "POST", "/api/v1/routes/"+id+"/points", `{"segment_id":"nope","lng":2}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing lat = %d, want 400", w.Code)
	}
}

func TestMetrics(t *testing.T) {
	h, _ := newTestServer(t)
	w := do(t, h, "POST", "/api/v1/routes/metrics", `{"name":"draft","segments":[{"points":[]},{"points":[]}]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d. body: %s", w.Code, w.Body.String())
	}
	if m := decode[metrics.Metrics](t, w); m.TotalKm != 2 {
		t.Errorf("TotalKm = %f, want 2", m.TotalKm)
	}
}

func TestNearest(t *testing.T) {
	h, _ := newTestServer(t)
	created := createRoute(t, h)

	w := do(t, h, "POST", "/api/v1/routes/nearest", `{"lat":56.8401,"lng":60.5901}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d. body: %s", w.Code, w.Body.String())
	}
	resp := decode[NearbyResponse](t, w)
	if resp.RouteID != created.Route.ID.String() || resp.RouteName != "City walk" {
		t.Errorf("nearest = %+v", resp)
	}
	if resp.DistanceMeters <= 0 || resp.DistanceMeters >= DefaultNearbyThresholdMeters {
		t.Errorf("DistanceMeters = %f", resp.DistanceMeters)
	}

	w = do(t, h, "POST", "/api/v1/routes/nearest", `{"lat":56.8401,"lng":60.5901,"threshold_meters":5}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("tight threshold = %d, want 404", w.Code)
	}
}

func TestExport(t *testing.T) {
	h, _ := newTestServer(t)
	id := createRoute(t, h).Route.ID.String()

	tests := []struct {
		format      string
		contentType string
		contains    string
	}{
		{"gpx", "application/gpx+xml", "<trkpt"},
		{"kml", "application/vnd.google-earth.kml+xml", "<coordinates>"},
		{"kmz", "application/vnd.google-earth.kmz", "route.kml"},
		{"geojson", "application/geo+json", `"FeatureCollection"`},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			w := do(t, h, "GET", "/api/v1/routes/"+id+"/export/"+tt.format, "")
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d", w.Code)
			}
			if got := w.Header().Get("Content-Type"); got != tt.contentType {
				t.Errorf("Content-Type = %q, want %q", got, tt.contentType)
			}
			wantDisp := "attachment; filename=route-" + id + "." + tt.format
			if got := w.Header().Get("Content-Disposition"); got != wantDisp {
				t.Errorf("Content-Disposition = %q", got)
			}
			if !strings.Contains(w.Body.String(), tt.contains) {
				t.Errorf("body missing %q", tt.contains)
			}
		})
	}

	if w := do(t, h, "GET", "/api/v1/routes/"+id+"/export/shp", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown format = %d, want 404", w.Code)
	}
}

func TestImportGPX(t *testing.T) {
	h, s := newTestServer(t)
	doc := `<gpx version="1.1" creator="t" xmlns="http://www.topografix.com/GPX/1/1"><trk><trkseg>
<trkpt lat="56.84" lon="60.59"></trkpt><trkpt lat="56.835" lon="60.58"></trkpt><trkpt lat="56.83" lon="60.57"></trkpt>
</trkseg></trk></gpx>`
	body := base64.StdEncoding.EncodeToString([]byte(doc))

	req := httptest.NewRequest("POST", "/api/v1/import/gpx", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d. body: %s", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Import-Degraded") != "" {
		t.Error("clean import flagged as degraded")
	}

	resp := decode[RouteResponse](t, w)
	if resp.Route.Name != "Import GPX" || resp.Route.Status != route.Preliminary {
		t.Errorf("route = %+v", resp.Route)
	}
	seg := resp.Route.Segments[0]
	if seg.Name != "Import GPX track" || len(seg.Points) != 3 || !seg.Preliminary {
		t.Errorf("segment = %+v", seg)
	}
	if s.Len() != 1 {
		t.Errorf("store size = %d, want 1", s.Len())
	}
}

func TestImportMalformed(t *testing.T) {
	h, _ := newTestServer(t)
	body := base64.StdEncoding.EncodeToString([]byte("<kml><coordinates>x,y</coordinates></kml>"))

	req := httptest.NewRequest("POST", "/api/v1/import/kml?name=Hike&status=FINAL", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if w.Header().Get("X-Import-Degraded") != "true" {
		t.Error("expected degraded header")
	}
	resp := decode[RouteResponse](t, w)
	if resp.Route.Name != "Hike" || resp.Route.Status != route.Final || len(resp.Route.Segments[0].Points) != 0 {
		t.Errorf("route = %+v", resp.Route)
	}

	req = httptest.NewRequest("POST", "/api/v1/import/kml", strings.NewReader("%%% not base64"))
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad base64 = %d, want 400", w.Code)
	}
}

func TestDeleteAllAndStats(t *testing.T) {
	h, _ := newTestServer(t)
	createRoute(t, h)
	createRoute(t, h)

	stats := decode[StatsResponse](t, do(t, h, "GET", "/api/v1/stats", ""))
	if stats.Routes != 2 || stats.HistoryRoutes != 2 || stats.Geodata != "overpass" {
		t.Errorf("stats = %+v", stats)
	}

	if w := do(t, h, "DELETE", "/api/v1/routes", ""); w.Code != http.StatusNoContent {
		t.Fatalf("delete = %d, want 204", w.Code)
	}
	stats = decode[StatsResponse](t, do(t, h, "GET", "/api/v1/stats", ""))
	if stats.Routes != 0 || stats.HistoryRoutes != 2 {
		t.Errorf("after delete: %+v", stats)
	}
}

func TestHandleHealth(t *testing.T) {
	h, _ := newTestServer(t)
	w := do(t, h, "GET", "/api/v1/health", "")

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if resp := decode[HealthResponse](t, w); resp.Status != "ok" {
		t.Errorf("status = %q, want 'ok'", resp.Status)
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
}

func TestMiddleware_ConcurrencyLimit(t *testing.T) {
	s := store.New(nil)
	h := NewHandlers(s, &mockMetrics{}, "none", nil)
	cfg := DefaultConfig(":0")
	cfg.MaxConcurrent = 1
	sem := make(chan struct{}, cfg.MaxConcurrent)
	sem <- struct{}{} // occupied

	w := httptest.NewRecorder()
	withMiddleware(h.HandleHealth, sem, cfg, zap.NewNop())(w, httptest.NewRequest("GET", "/api/v1/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
	if w.Header().Get("Retry-After") != "1" {
		t.Error("missing Retry-After")
	}
}

func TestMiddleware_Recovery(t *testing.T) {
	sem := make(chan struct{}, 1)
	panicky := func(w http.ResponseWriter, r *http.Request) { panic("boom") }

	w := httptest.NewRecorder()
	withMiddleware(panicky, sem, DefaultConfig(":0"), zap.NewNop())(w, httptest.NewRequest("GET", "/", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}
