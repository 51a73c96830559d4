package main

import (
	"testing"

	"walkroutes/pkg/route"
	"walkroutes/pkg/store"
)

func TestSeedRoutes(t *testing.T) {
	s := store.New(nil)
	s.Save(route.New("stale", route.Preliminary, nil))

	if n := seedRoutes(s); n != 2 {
		t.Fatalf("expected 2 seeded routes, got %d", n)
	}
	all := s.FindAll()
	if len(all) != 2 {
		t.Fatalf("expected store to hold 2 routes, got %d", len(all))
	}

	var finals, prelims int
	for _, r := range all {
		if r.Name == "stale" {
			t.Fatal("stale route survived seeding")
		}
		switch r.Status {
		case route.Final:
			finals++
		case route.Preliminary:
			prelims++
		}
		for _, seg := range r.Segments {
			if len(seg.Points) < 2 {
				t.Fatalf("segment %q has %d points", seg.Name, len(seg.Points))
			}
		}
	}
	if finals != 1 || prelims != 1 {
		t.Fatalf("expected one final and one preliminary, got %d/%d", finals, prelims)
	}
}
