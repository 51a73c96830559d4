package api

import (
	"walkroutes/pkg/metrics"
	"walkroutes/pkg/route"
)

// DefaultNearbyThresholdMeters applies when a nearest-point query omits the threshold.
const DefaultNearbyThresholdMeters = 50.0

// RouteRequest is the JSON body for POST /api/v1/routes and PUT /api/v1/routes/{id}.
type RouteRequest struct {
	Name     string          `json:"name"`
	Status   route.Status    `json:"status"`
	Segments []route.Segment `json:"segments"`
}

// StatusRequest is the JSON body for POST /api/v1/routes/{id}/status.
type StatusRequest struct {
	Status route.Status `json:"status"`
}

// AddPointRequest is the JSON body for POST /api/v1/routes/{id}/points.
type AddPointRequest struct {
	SegmentID string   `json:"segment_id"`
	Lat       *float64 `json:"lat"`
	Lng       *float64 `json:"lng"`
	Node      bool     `json:"node"`
}

// NearbyRequest is the JSON body for POST /api/v1/routes/nearest.
type NearbyRequest struct {
	Lat             *float64 `json:"lat"`
	Lng             *float64 `json:"lng"`
	ThresholdMeters float64  `json:"threshold_meters"`
}

// RouteResponse pairs a route with its metrics.
type RouteResponse struct {
	Route   route.Route     `json:"route"`
	Metrics metrics.Metrics `json:"metrics"`
}

// NearbyResponse is the JSON response for a nearest-point hit.
type NearbyResponse struct {
	RouteID        string           `json:"route_id"`
	RouteName      string           `json:"route_name"`
	SegmentID      string           `json:"segment_id"`
	Point          route.Coordinate `json:"point"`
	DistanceMeters float64          `json:"distance_meters"`
}

// ErrorResponse is the JSON response for errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// StatsResponse is the JSON response for GET /api/v1/stats.
type StatsResponse struct {
	Routes        int    `json:"routes"`
	HistoryRoutes int    `json:"history_routes"`
	Geodata       string `json:"geodata"`
}

// HealthResponse is the JSON response for GET /api/v1/health.
type HealthResponse struct {
	Status string `json:"status"`
}
