package records

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEmptyRoute indicates a route submission with no points.
	ErrEmptyRoute = errors.New("records: route requires at least one point")
	// ErrInvalidCoordinate indicates a latitude or longitude outside its valid range.
	ErrInvalidCoordinate = errors.New("records: coordinate out of range")
)

// RoutePoint is one GPS sample within a workout route. Optional fields are
// omitted from the wire format when absent.
type RoutePoint struct {
	Latitude           float64   `json:"lat"`
	Longitude          float64   `json:"lon"`
	Timestamp          time.Time `json:"timestamp"`
	Altitude           *float64  `json:"altitude,omitempty"`
	Speed              *float64  `json:"speed,omitempty"`
	HorizontalAccuracy *float64  `json:"horizontal_accuracy,omitempty"`
}

// Validate checks the coordinate ranges of a single point.
func (p RoutePoint) Validate() error {
	if p.Latitude < -90 || p.Latitude > 90 {
		return fmt.Errorf("%w: latitude %f", ErrInvalidCoordinate, p.Latitude)
	}
	if p.Longitude < -180 || p.Longitude > 180 {
		return fmt.Errorf("%w: longitude %f", ErrInvalidCoordinate, p.Longitude)
	}
	return nil
}

// RouteBounds is the bounding box over a point sequence.
type RouteBounds struct {
	MinLatitude  float64
	MaxLatitude  float64
	MinLongitude float64
	MaxLongitude float64
}

// ComputeBounds returns the exact min/max latitude and longitude over all
// points. The sequence must be non-empty and every point valid.
func ComputeBounds(points []RoutePoint) (RouteBounds, error) {
	if len(points) == 0 {
		return RouteBounds{}, ErrEmptyRoute
	}
	bounds := RouteBounds{
		MinLatitude:  points[0].Latitude,
		MaxLatitude:  points[0].Latitude,
		MinLongitude: points[0].Longitude,
		MaxLongitude: points[0].Longitude,
	}
	for _, point := range points {
		if err := point.Validate(); err != nil {
			return RouteBounds{}, err
		}
		if point.Latitude < bounds.MinLatitude {
			bounds.MinLatitude = point.Latitude
		}
		if point.Latitude > bounds.MaxLatitude {
			bounds.MaxLatitude = point.Latitude
		}
		if point.Longitude < bounds.MinLongitude {
			bounds.MinLongitude = point.Longitude
		}
		if point.Longitude > bounds.MaxLongitude {
			bounds.MaxLongitude = point.Longitude
		}
	}
	return bounds, nil
}

// EncodePoints serializes a point sequence for storage.
func EncodePoints(points []RoutePoint) (string, error) {
	encoded, err := json.Marshal(points)
	if err != nil {
		return "", fmt.Errorf("records: encode route points: %w", err)
	}
	return string(encoded), nil
}

// DecodePoints deserializes a stored point sequence.
func DecodePoints(encoded string) ([]RoutePoint, error) {
	var points []RoutePoint
	if err := json.Unmarshal([]byte(encoded), &points); err != nil {
		return nil, fmt.Errorf("records: decode route points: %w", err)
	}
	return points, nil
}

// NewWorkoutRoute builds a route row for the given parent workout, computing
// the bounding box and point count from the sequence.
func NewWorkoutRoute(workoutID uint, points []RoutePoint) (WorkoutRoute, error) {
	bounds, err := ComputeBounds(points)
	if err != nil {
		return WorkoutRoute{}, err
	}
	encoded, err := EncodePoints(points)
	if err != nil {
		return WorkoutRoute{}, err
	}
	return WorkoutRoute{
		WorkoutID:    workoutID,
		PointsJSON:   encoded,
		PointCount:   len(points),
		MinLatitude:  bounds.MinLatitude,
		MaxLatitude:  bounds.MaxLatitude,
		MinLongitude: bounds.MinLongitude,
		MaxLongitude: bounds.MaxLongitude,
	}, nil
}

// EncodeMetadata serializes a free-form metadata map for storage. Nil and
// empty maps encode to the empty string.
func EncodeMetadata(metadata map[string]string) (string, error) {
	if len(metadata) == 0 {
		return "", nil
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("records: encode metadata: %w", err)
	}
	return string(encoded), nil
}

// DecodeMetadata deserializes a stored metadata blob. The empty string
// decodes to nil.
func DecodeMetadata(encoded string) (map[string]string, error) {
	if encoded == "" {
		return nil, nil
	}
	var metadata map[string]string
	if err := json.Unmarshal([]byte(encoded), &metadata); err != nil {
		return nil, fmt.Errorf("records: decode metadata: %w", err)
	}
	return metadata, nil
}
