package fitdecode

import (
	"time"

	activity "github.com/lucasjlepore/activity-engine"
)

// The record message carries the per-second sample stream.
const recordMesgNum = 20

// Record message field numbers.
const (
	fieldPositionLat      = 0
	fieldPositionLong     = 1
	fieldAltitude         = 2
	fieldHeartRate        = 3
	fieldCadence          = 4
	fieldDistance         = 5
	fieldSpeed            = 6
	fieldPower            = 7
	fieldEnhancedSpeed    = 73
	fieldEnhancedAltitude = 78
	fieldTimestamp        = 253
)

// timeEpoch is the zero point of on-wire timestamps, seconds since
// 1989-12-31T00:00:00Z.
var timeEpoch = time.Date(1989, 12, 31, 0, 0, 0, 0, time.UTC)

func timestampToUTC(seconds uint32) time.Time {
	return timeEpoch.Add(time.Duration(seconds) * time.Second)
}

// semicirclesToDegrees converts the 32-bit fixed-point position unit,
// where 2^31 semicircles span 180 degrees.
func semicirclesToDegrees(v float64) float64 {
	return v * (180.0 / 2147483648.0)
}

// applyRecordField writes one decoded record field into the sample,
// applying the field's scale and offset. Plain altitude and speed never
// overwrite their enhanced counterparts; the enhanced fields always
// win. Fields this pipeline does not track are ignored.
func applyRecordField(s *activity.Sample, num byte, v float64) {
	switch num {
	case fieldPositionLat:
		s.Latitude = semicirclesToDegrees(v)
		s.Fields |= activity.FieldLatitude
	case fieldPositionLong:
		s.Longitude = semicirclesToDegrees(v)
		s.Fields |= activity.FieldLongitude
	case fieldAltitude:
		if !s.Has(activity.FieldAltitude) {
			s.Altitude = v/5 - 500
			s.Fields |= activity.FieldAltitude
		}
	case fieldEnhancedAltitude:
		s.Altitude = v/5 - 500
		s.Fields |= activity.FieldAltitude
	case fieldHeartRate:
		s.HeartRate = uint8(v)
		s.Fields |= activity.FieldHeartRate
	case fieldCadence:
		s.Cadence = uint8(v)
		s.Fields |= activity.FieldCadence
	case fieldDistance:
		s.Distance = v / 100
		s.Fields |= activity.FieldDistance
	case fieldSpeed:
		if !s.Has(activity.FieldSpeed) {
			s.Speed = v / 1000
			s.Fields |= activity.FieldSpeed
		}
	case fieldEnhancedSpeed:
		s.Speed = v / 1000
		s.Fields |= activity.FieldSpeed
	case fieldPower:
		s.Power = uint16(v)
		s.Fields |= activity.FieldPower
	}
}
