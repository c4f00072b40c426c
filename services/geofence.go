package services

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jakekinchen/TrailMates-sub002/models"
)

// Ring is a closed polygon boundary. The last point is implicitly joined
// back to the first; it does not need to be repeated.
type Ring []models.Coordinate

// Geofence holds the trail boundary: one outer ring plus the inner
// activity zones. A point counts as on-trail only when it is inside the
// outer ring AND inside at least one zone; the outer-only band is
// boundary buffer, not active trail.
type Geofence struct {
	outer Ring
	zones []Ring
}

// NewGeofence validates the ring data up front. Malformed polygon data is
// a configuration error, so construction is the only place this can fail.
func NewGeofence(outer Ring, zones []Ring) (*Geofence, error) {
	if len(outer) < 3 {
		return nil, fmt.Errorf("outer boundary needs at least 3 points, got %d", len(outer))
	}
	for i, z := range zones {
		if len(z) < 3 {
			return nil, fmt.Errorf("activity zone %d needs at least 3 points, got %d", i, len(z))
		}
	}
	return &Geofence{outer: outer, zones: zones}, nil
}

type geofenceFile struct {
	Outer Ring   `json:"outer"`
	Zones []Ring `json:"zones"`
}

// NewGeofenceFromFile loads trail geometry from a JSON file.
func NewGeofenceFromFile(path string) (*Geofence, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trail boundary: %w", err)
	}
	var f geofenceFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode trail boundary: %w", err)
	}
	return NewGeofence(f.Outer, f.Zones)
}

// IsOnTrail reports whether the point is inside the outer boundary and at
// least one activity zone.
func (g *Geofence) IsOnTrail(p models.Coordinate) bool {
	if !g.outer.contains(p) {
		return false
	}
	for _, z := range g.zones {
		if z.contains(p) {
			return true
		}
	}
	return false
}

// contains is the standard even-odd ray cast: a ray from the point toward
// +longitude crosses the ring an odd number of times iff the point is
// inside.
func (r Ring) contains(p models.Coordinate) bool {
	inside := false
	n := len(r)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		yi, xi := r[i].Latitude, r[i].Longitude
		yj, xj := r[j].Latitude, r[j].Longitude
		if (yi > p.Latitude) != (yj > p.Latitude) &&
			p.Longitude < (xj-xi)*(p.Latitude-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}
