package activity

import (
	"fmt"
	"time"
)

// FieldMask marks which optional Sample fields carry a value.
type FieldMask uint8

const (
	FieldLatitude FieldMask = 1 << iota
	FieldLongitude
	FieldAltitude
	FieldDistance
	FieldSpeed
	FieldPower
	FieldCadence
	FieldHeartRate
)

// Has reports whether every field in f is set.
func (m FieldMask) Has(f FieldMask) bool {
	return m&f == f
}

// Sample is one time-series observation from a device recording.
// Timestamp is always present; every other field is valid only when its
// FieldMask bit is set. An unset field holds the zero value and must be
// treated as absent, never as a measured zero.
type Sample struct {
	Timestamp time.Time
	Latitude  float64 // degrees, positive north
	Longitude float64 // degrees, positive east
	Altitude  float64 // meters
	Distance  float64 // cumulative meters
	Speed     float64 // m/s
	Power     uint16  // watts
	Cadence   uint8   // rpm
	HeartRate uint8   // bpm
	Fields    FieldMask
}

// Has reports whether the sample carries every field in f.
func (s Sample) Has(f FieldMask) bool {
	return s.Fields.Has(f)
}

// HasGPS reports whether the sample carries a full position fix.
func (s Sample) HasGPS() bool {
	return s.Fields.Has(FieldLatitude | FieldLongitude)
}

// Track is an ordered, immutable sequence of Samples plus provenance.
// Construct with NewTrack; all accessors return copies or values so a
// Track can be shared across goroutines without locking.
type Track struct {
	samples  []Sample
	source   string
	warnings []string
}

// NewTrack builds a Track from decoded samples. The slice contents are
// copied. Samples are kept in the given order; a timestamp that moves
// backwards is recorded as a warning, not repaired, since decoders emit
// samples in stream order.
func NewTrack(samples []Sample, source string, warnings []string) *Track {
	t := &Track{
		samples:  append([]Sample(nil), samples...),
		source:   source,
		warnings: append([]string(nil), warnings...),
	}
	for i := 1; i < len(t.samples); i++ {
		if t.samples[i].Timestamp.Before(t.samples[i-1].Timestamp) {
			msg := fmt.Sprintf("timestamp regression at sample %d", i)
			// Rebuilding a track from stored warnings must not double
			// the message.
			if !containsWarning(t.warnings, msg) {
				t.warnings = append(t.warnings, msg)
			}
			break
		}
	}
	return t
}

func containsWarning(warnings []string, msg string) bool {
	for _, w := range warnings {
		if w == msg {
			return true
		}
	}
	return false
}

// Len returns the number of samples.
func (t *Track) Len() int {
	return len(t.samples)
}

// At returns the sample at index i.
func (t *Track) At(i int) Sample {
	return t.samples[i]
}

// Samples returns a copy of the full sample sequence.
func (t *Track) Samples() []Sample {
	return append([]Sample(nil), t.samples...)
}

// Source identifies the format the track was decoded from.
func (t *Track) Source() string {
	return t.source
}

// Warnings returns decode-time warnings attached to the track.
func (t *Track) Warnings() []string {
	return append([]string(nil), t.warnings...)
}

// StartTime returns the first sample timestamp, or the zero time for an
// empty track.
func (t *Track) StartTime() time.Time {
	if len(t.samples) == 0 {
		return time.Time{}
	}
	return t.samples[0].Timestamp
}

// EndTime returns the last sample timestamp, or the zero time for an
// empty track.
func (t *Track) EndTime() time.Time {
	if len(t.samples) == 0 {
		return time.Time{}
	}
	return t.samples[len(t.samples)-1].Timestamp
}
