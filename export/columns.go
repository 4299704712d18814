package export

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	activity "github.com/lucasjlepore/activity-engine"
)

// Column names accepted by Columns.
const (
	ColTimestamp    = "timestamp"
	ColPower        = "power"
	ColDistance     = "distance"
	ColSpeed        = "speed"
	ColAltitude     = "altitude"
	ColPositionLat  = "position_lat"
	ColPositionLong = "position_long"
	ColCadence      = "cadence"
	ColHeartRate    = "heart_rate"
)

// DefaultColumns returns the column set used when the caller requests
// none.
func DefaultColumns() []string {
	return []string{
		ColTimestamp, ColPower, ColDistance, ColSpeed,
		ColAltitude, ColPositionLat, ColPositionLong,
	}
}

// columnExtractors yields each column's value for one sample, with a
// presence flag. Numeric columns come out as float64, timestamps as
// RFC 3339 strings.
var columnExtractors = map[string]func(activity.Sample) (any, bool){
	ColTimestamp: func(s activity.Sample) (any, bool) {
		return s.Timestamp.UTC().Format(time.RFC3339), true
	},
	ColPower: func(s activity.Sample) (any, bool) {
		return float64(s.Power), s.Has(activity.FieldPower)
	},
	ColDistance: func(s activity.Sample) (any, bool) {
		return s.Distance, s.Has(activity.FieldDistance)
	},
	ColSpeed: func(s activity.Sample) (any, bool) {
		return s.Speed, s.Has(activity.FieldSpeed)
	},
	ColAltitude: func(s activity.Sample) (any, bool) {
		return s.Altitude, s.Has(activity.FieldAltitude)
	},
	ColPositionLat: func(s activity.Sample) (any, bool) {
		return s.Latitude, s.Has(activity.FieldLatitude)
	},
	ColPositionLong: func(s activity.Sample) (any, bool) {
		return s.Longitude, s.Has(activity.FieldLongitude)
	},
	ColCadence: func(s activity.Sample) (any, bool) {
		return float64(s.Cadence), s.Has(activity.FieldCadence)
	},
	ColHeartRate: func(s activity.Sample) (any, bool) {
		return float64(s.HeartRate), s.Has(activity.FieldHeartRate)
	},
}

// Columns extracts the named columns from a track. Each column holds
// only the values of samples that carry the field, so a track with no
// position data yields empty position columns rather than an error.
// Unknown names are dropped silently; an empty request means
// DefaultColumns.
func Columns(t *activity.Track, names []string) map[string][]any {
	if len(names) == 0 {
		names = DefaultColumns()
	}
	out := make(map[string][]any, len(names))
	for _, name := range names {
		extract, ok := columnExtractors[name]
		if !ok {
			continue
		}
		col := make([]any, 0, t.Len())
		for i := 0; i < t.Len(); i++ {
			if v, present := extract(t.At(i)); present {
				col = append(col, v)
			}
		}
		out[name] = col
	}
	return out
}

// EncodeColumns serializes a column mapping for transport.
func EncodeColumns(cols map[string][]any) ([]byte, error) {
	b, err := msgpack.Marshal(cols)
	if err != nil {
		return nil, fmt.Errorf("export: marshal columns: %w", err)
	}
	return b, nil
}

// DecodeColumns reverses EncodeColumns.
func DecodeColumns(b []byte) (map[string][]any, error) {
	var cols map[string][]any
	if err := msgpack.Unmarshal(b, &cols); err != nil {
		return nil, fmt.Errorf("export: unmarshal columns: %w", err)
	}
	return cols, nil
}
