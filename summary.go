package activity

import (
	"math"
	"time"
)

const earthRadiusM = 6371000.0

// Config holds the thresholds used when deriving summary metrics.
// The zero value is usable; zero fields fall back to DefaultConfig values.
type Config struct {
	// StopSpeed is the speed in m/s at or below which a sample counts as
	// stationary.
	StopSpeed float64

	// MinStopDuration is the shortest stationary run subtracted from
	// active time. Shorter dips below StopSpeed do not fragment active
	// time.
	MinStopDuration time.Duration

	// ElevationWindow is the moving-average window, in samples, applied
	// to altitude before climb deltas are summed.
	ElevationWindow int

	// ElevationNoise is the minimum climb in meters counted toward
	// elevation gain. Smaller rises are treated as sensor jitter.
	ElevationNoise float64
}

// DefaultConfig returns the thresholds used when a Config field is unset.
func DefaultConfig() Config {
	return Config{
		StopSpeed:       0.7,
		MinStopDuration: 30 * time.Second,
		ElevationWindow: 5,
		ElevationNoise:  1.0,
	}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.StopSpeed <= 0 {
		c.StopSpeed = def.StopSpeed
	}
	if c.MinStopDuration <= 0 {
		c.MinStopDuration = def.MinStopDuration
	}
	if c.ElevationWindow <= 0 {
		c.ElevationWindow = def.ElevationWindow
	}
	if c.ElevationNoise <= 0 {
		c.ElevationNoise = def.ElevationNoise
	}
	return c
}

// Summary is the derived aggregate view of one Track. It is a pure
// function of the track and the thresholds; recomputing it never changes
// the result.
type Summary struct {
	TotalDistance float64       // meters
	ElevationGain float64       // meters
	ActiveTime    time.Duration // elapsed minus stopped intervals
	StartTime     time.Time
	SampleCount   int

	// DistanceIncomplete is set when part of the recording carried
	// neither cumulative distance nor position fixes, so some movement
	// may be unmeasured.
	DistanceIncomplete bool
}

// Summarize computes the Summary for t. It fails with ErrEmptyTrack when
// the track has no samples.
func Summarize(t *Track, cfg Config) (Summary, error) {
	if t == nil || t.Len() == 0 {
		return Summary{}, ErrEmptyTrack
	}
	cfg = cfg.normalized()

	s := Summary{
		StartTime:   t.At(0).Timestamp,
		SampleCount: t.Len(),
	}
	s.TotalDistance, s.DistanceIncomplete = totalDistance(t)
	s.ElevationGain = elevationGain(t, cfg)
	s.ActiveTime = activeTime(t, cfg)
	return s, nil
}

// totalDistance prefers the device's cumulative distance counter when it
// is present and monotonic, otherwise sums great-circle distance between
// consecutive position fixes.
func totalDistance(t *Track) (float64, bool) {
	var first, last, prev float64
	count := 0
	monotonic := true
	for i := 0; i < t.Len(); i++ {
		s := t.At(i)
		if !s.Has(FieldDistance) {
			continue
		}
		if count == 0 {
			first = s.Distance
		} else if s.Distance < prev {
			monotonic = false
			break
		}
		prev = s.Distance
		last = s.Distance
		count++
	}
	if monotonic && count >= 2 {
		return last - first, false
	}

	sum := 0.0
	var prevLat, prevLon float64
	haveFix := false
	missing := false
	for i := 0; i < t.Len(); i++ {
		s := t.At(i)
		if !s.HasGPS() {
			missing = true
			continue
		}
		if haveFix {
			sum += haversine(prevLat, prevLon, s.Latitude, s.Longitude)
		}
		prevLat, prevLon = s.Latitude, s.Longitude
		haveFix = true
	}
	if !haveFix {
		return 0, t.Len() > 1
	}
	return sum, missing
}

// haversine returns the great-circle distance in meters between two
// points given in degrees.
func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	rLat1 := lat1 * math.Pi / 180
	rLat2 := lat2 * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusM * c
}

// elevationGain sums climbs of the smoothed altitude series. The
// reference altitude follows descents immediately, but a rise must clear
// the noise threshold before it counts.
func elevationGain(t *Track, cfg Config) float64 {
	alts := make([]float64, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		if s := t.At(i); s.Has(FieldAltitude) {
			alts = append(alts, s.Altitude)
		}
	}
	if len(alts) < 2 {
		return 0
	}

	sm := smooth(alts, cfg.ElevationWindow)
	gain := 0.0
	ref := sm[0]
	for _, v := range sm[1:] {
		switch {
		case v < ref:
			ref = v
		case v-ref >= cfg.ElevationNoise:
			gain += v - ref
			ref = v
		}
	}
	return gain
}

// smooth applies a centered moving average, shrinking the window at the
// edges.
func smooth(values []float64, window int) []float64 {
	if window <= 1 || len(values) < 2 {
		return append([]float64(nil), values...)
	}
	half := window / 2
	out := make([]float64, len(values))
	for i := range values {
		lo := i - half
		if lo < 0 {
			lo = 0
		}
		hi := i + half
		if hi >= len(values) {
			hi = len(values) - 1
		}
		sum := 0.0
		for j := lo; j <= hi; j++ {
			sum += values[j]
		}
		out[i] = sum / float64(hi-lo+1)
	}
	return out
}

// activeTime subtracts qualifying stationary runs from the elapsed span.
// A run qualifies only when the time between its first and last
// stationary sample reaches MinStopDuration.
func activeTime(t *Track, cfg Config) time.Duration {
	if t.Len() < 2 {
		return 0
	}
	elapsed := t.EndTime().Sub(t.StartTime())
	if elapsed <= 0 {
		return 0
	}

	stopped := make([]bool, t.Len())
	for i := range stopped {
		if spd, ok := sampleSpeed(t, i); ok && spd <= cfg.StopSpeed {
			stopped[i] = true
		}
	}

	var stoppedTotal time.Duration
	for i := 0; i < len(stopped); {
		if !stopped[i] {
			i++
			continue
		}
		j := i
		for j+1 < len(stopped) && stopped[j+1] {
			j++
		}
		span := t.At(j).Timestamp.Sub(t.At(i).Timestamp)
		if span >= cfg.MinStopDuration {
			stoppedTotal += span
		}
		i = j + 1
	}

	active := elapsed - stoppedTotal
	if active < 0 {
		return 0
	}
	return active
}

// sampleSpeed returns the measured speed of sample i, or a speed
// inferred from distance or position deltas against the previous sample.
// A sample whose speed cannot be determined is treated as moving.
func sampleSpeed(t *Track, i int) (float64, bool) {
	s := t.At(i)
	if s.Has(FieldSpeed) {
		return s.Speed, true
	}
	if i == 0 {
		return 0, false
	}
	p := t.At(i - 1)
	dt := s.Timestamp.Sub(p.Timestamp).Seconds()
	if dt <= 0 {
		return 0, false
	}
	if s.Has(FieldDistance) && p.Has(FieldDistance) {
		d := s.Distance - p.Distance
		if d < 0 {
			d = 0
		}
		return d / dt, true
	}
	if s.HasGPS() && p.HasGPS() {
		return haversine(p.Latitude, p.Longitude, s.Latitude, s.Longitude) / dt, true
	}
	return 0, false
}
