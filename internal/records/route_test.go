package records

import (
	"errors"
	"testing"
	"time"
)

func routePoint(lat, lon float64) RoutePoint {
	return RoutePoint{
		Latitude:  lat,
		Longitude: lon,
		Timestamp: time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC),
	}
}

func TestComputeBoundsMatchesExactExtremes(t *testing.T) {
	points := []RoutePoint{
		routePoint(41.8781, -87.6298),
		routePoint(41.8902, -87.6100),
		routePoint(41.8650, -87.6450),
	}

	bounds, err := ComputeBounds(points)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bounds.MinLatitude != 41.8650 || bounds.MaxLatitude != 41.8902 {
		t.Fatalf("unexpected latitude bounds: %+v", bounds)
	}
	if bounds.MinLongitude != -87.6450 || bounds.MaxLongitude != -87.6100 {
		t.Fatalf("unexpected longitude bounds: %+v", bounds)
	}
}

func TestComputeBoundsSinglePointCollapses(t *testing.T) {
	bounds, err := ComputeBounds([]RoutePoint{routePoint(51.5074, -0.1278)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bounds.MinLatitude != bounds.MaxLatitude || bounds.MinLongitude != bounds.MaxLongitude {
		t.Fatalf("expected degenerate box for single point: %+v", bounds)
	}
}

func TestComputeBoundsRejectsEmptySequence(t *testing.T) {
	if _, err := ComputeBounds(nil); !errors.Is(err, ErrEmptyRoute) {
		t.Fatalf("expected ErrEmptyRoute, got %v", err)
	}
}

func TestComputeBoundsRejectsInvalidCoordinate(t *testing.T) {
	points := []RoutePoint{routePoint(91.0, 0.0)}
	if _, err := ComputeBounds(points); !errors.Is(err, ErrInvalidCoordinate) {
		t.Fatalf("expected ErrInvalidCoordinate, got %v", err)
	}
}

func TestNewWorkoutRouteStoresCountAndBounds(t *testing.T) {
	points := []RoutePoint{
		routePoint(48.8566, 2.3522),
		routePoint(48.8600, 2.3400),
	}

	route, err := NewWorkoutRoute(7, points)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if route.WorkoutID != 7 {
		t.Fatalf("expected workout id 7, got %d", route.WorkoutID)
	}
	if route.PointCount != 2 {
		t.Fatalf("expected point count 2, got %d", route.PointCount)
	}

	decoded, err := DecodePoints(route.PointsJSON)
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if len(decoded) != 2 || decoded[0].Latitude != 48.8566 {
		t.Fatalf("unexpected decoded points: %+v", decoded)
	}
}

func TestEncodeMetadataEmptyMapIsEmptyString(t *testing.T) {
	encoded, err := EncodeMetadata(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if encoded != "" {
		t.Fatalf("expected empty string, got %q", encoded)
	}
}

func TestDecodeMetadataRoundTrip(t *testing.T) {
	encoded, err := EncodeMetadata(map[string]string{"indoor": "true"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	decoded, err := DecodeMetadata(encoded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded["indoor"] != "true" {
		t.Fatalf("unexpected metadata: %+v", decoded)
	}
}
