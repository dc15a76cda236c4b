package scheduler

import (
	"testing"
	"time"
)

func TestTimerTriggerConfigMatches(t *testing.T) {
	cfg := TimerTriggerConfig{
		Hours:    []int{8, 20},
		Weekdays: []time.Weekday{time.Monday, time.Wednesday},
	}

	mon8 := time.Date(2026, 7, 27, 8, 0, 0, 0, time.UTC) // a Monday
	if !cfg.matches(mon8) {
		t.Fatalf("expected match on configured hour/weekday")
	}

	mon9 := time.Date(2026, 7, 27, 9, 0, 0, 0, time.UTC)
	if cfg.matches(mon9) {
		t.Fatalf("hour outside the configured set should not match")
	}

	tue8 := time.Date(2026, 7, 28, 8, 0, 0, 0, time.UTC)
	if cfg.matches(tue8) {
		t.Fatalf("weekday outside the configured set should not match")
	}

	open := TimerTriggerConfig{}
	if !open.matches(mon9) {
		t.Fatalf("empty Hours/Weekdays should match every tick")
	}
}

func TestGeofenceShapeCircleContains(t *testing.T) {
	shape := GeofenceShape{CenterLat: 37.7749, CenterLon: -122.4194, RadiusMeters: 1000}

	if !shape.contains(37.7749, -122.4194) {
		t.Fatalf("center point should be inside the circle")
	}
	if shape.contains(38.5, -122.4194) {
		t.Fatalf("point far outside the radius should not be inside")
	}
}

func TestGeofenceShapePolygonContains(t *testing.T) {
	// A simple 1x1 degree square.
	square := GeofenceShape{
		Vertices: []LatLon{
			{Lat: 0, Lon: 0},
			{Lat: 0, Lon: 1},
			{Lat: 1, Lon: 1},
			{Lat: 1, Lon: 0},
		},
		// Circle fields deliberately left at zero to prove Vertices takes
		// precedence once it has at least three points.
	}

	if !square.contains(0.5, 0.5) {
		t.Fatalf("point inside the polygon should be contained")
	}
	if square.contains(2, 2) {
		t.Fatalf("point outside the polygon should not be contained")
	}
	if square.contains(-0.5, 0.5) {
		t.Fatalf("point outside the polygon (below) should not be contained")
	}
}

func TestGeofenceShapeFallsBackToCircleWithoutVertices(t *testing.T) {
	shape := GeofenceShape{CenterLat: 10, CenterLon: 10, RadiusMeters: 500}
	if !shape.contains(10, 10) {
		t.Fatalf("fewer than 3 vertices should fall back to circle containment")
	}
}
