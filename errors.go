package activity

import "errors"

var (
	// ErrEmptyTrack is returned when a derivation needs at least one sample.
	ErrEmptyTrack = errors.New("activity: track has no samples")

	// ErrNoGeodata is returned when a derivation needs position fixes and
	// the track carries none.
	ErrNoGeodata = errors.New("activity: track has no position data")
)
