// Package staticmap prepares tracks for map rendering: it downsamples
// the position stream to a bounded point set and hands the points to a
// renderer. Pixel generation itself always happens elsewhere.
package staticmap

import (
	"fmt"

	activity "github.com/lucasjlepore/activity-engine"
)

// DefaultSampleCount is the point budget used when the caller does not
// give one. It keeps render payloads small while leaving route shape
// intact at typical map sizes.
const DefaultSampleCount = 200

// GeoPoint is one downsampled map coordinate.
type GeoPoint struct {
	Latitude    float64
	Longitude   float64
	Altitude    float64
	HasAltitude bool
}

// SampleForMap reduces the track to at most target points by uniform
// stride over the samples that carry a position fix. The first and last
// fix always survive. A target of zero or less means
// DefaultSampleCount. It fails with ErrNoGeodata when the track has no
// position data at all.
func SampleForMap(t *activity.Track, target int) ([]GeoPoint, error) {
	points := make([]GeoPoint, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		s := t.At(i)
		if !s.HasGPS() {
			continue
		}
		p := GeoPoint{Latitude: s.Latitude, Longitude: s.Longitude}
		if s.Has(activity.FieldAltitude) {
			p.Altitude = s.Altitude
			p.HasAltitude = true
		}
		points = append(points, p)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: no samples with a position fix", activity.ErrNoGeodata)
	}

	if target <= 0 {
		target = DefaultSampleCount
	}
	if len(points) <= target {
		return points, nil
	}
	if target == 1 {
		return points[:1], nil
	}

	// idx = i*(n-1)/(target-1) visits 0 and n-1 exactly and never
	// repeats an index while n > target.
	out := make([]GeoPoint, target)
	n := len(points)
	for i := 0; i < target; i++ {
		out[i] = points[i*(n-1)/(target-1)]
	}
	return out, nil
}
