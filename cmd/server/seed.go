package main

import (
	"walkroutes/pkg/route"
	"walkroutes/pkg/store"
)

// seedRoutes replaces the store contents with two demo routes around
// Yekaterinburg and returns how many were saved.
func seedRoutes(s *store.Store) int {
	s.DeleteAll()

	archive := route.New("Archive forest loop", route.Final, []route.Segment{
		route.NewSegment("Forest stretch", route.ForestTrail, false, []route.Coordinate{
			{Lat: 56.839, Lng: 60.605, Node: true},
			{Lat: 56.845, Lng: 60.62},
			{Lat: 56.85, Lng: 60.64},
			{Lat: 56.86, Lng: 60.66, Node: true},
		}),
	})

	draft := route.New("Draft city walk", route.Preliminary, []route.Segment{
		route.NewSegment("City streets", route.Asphalt, true, []route.Coordinate{
			{Lat: 56.84, Lng: 60.59, Node: true},
			{Lat: 56.83, Lng: 60.57},
			{Lat: 56.82, Lng: 60.55, Node: true},
		}),
	})

	s.Save(archive)
	s.Save(draft)
	return 2
}
