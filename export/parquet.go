package export

import (
	"math"

	parquetbuffer "github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	activity "github.com/lucasjlepore/activity-engine"
)

type parquetRow struct {
	TSUTCISO  string  `parquet:"name=ts_utc_iso, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	ElapsedS  float64 `parquet:"name=elapsed_s, type=DOUBLE"`
	LatDeg    float64 `parquet:"name=position_lat, type=DOUBLE"`
	LonDeg    float64 `parquet:"name=position_long, type=DOUBLE"`
	AltitudeM float64 `parquet:"name=altitude_m, type=DOUBLE"`
	DistanceM float64 `parquet:"name=distance_m, type=DOUBLE"`
	SpeedMPS  float64 `parquet:"name=speed_mps, type=DOUBLE"`
	PowerW    float64 `parquet:"name=power_w, type=DOUBLE"`
	CadRPM    float64 `parquet:"name=cadence_rpm, type=DOUBLE"`
	HRBPM     float64 `parquet:"name=hr_bpm, type=DOUBLE"`
}

func rowForSample(s activity.Sample, start int64) parquetRow {
	return parquetRow{
		TSUTCISO:  s.Timestamp.UTC().Format("2006-01-02T15:04:05Z"),
		ElapsedS:  float64(s.Timestamp.Unix() - start),
		LatDeg:    fieldOrNaN(s, activity.FieldLatitude, s.Latitude),
		LonDeg:    fieldOrNaN(s, activity.FieldLongitude, s.Longitude),
		AltitudeM: fieldOrNaN(s, activity.FieldAltitude, s.Altitude),
		DistanceM: fieldOrNaN(s, activity.FieldDistance, s.Distance),
		SpeedMPS:  fieldOrNaN(s, activity.FieldSpeed, s.Speed),
		PowerW:    fieldOrNaN(s, activity.FieldPower, float64(s.Power)),
		CadRPM:    fieldOrNaN(s, activity.FieldCadence, float64(s.Cadence)),
		HRBPM:     fieldOrNaN(s, activity.FieldHeartRate, float64(s.HeartRate)),
	}
}

// fieldOrNaN keeps absent fields distinguishable in an all-DOUBLE
// schema.
func fieldOrNaN(s activity.Sample, f activity.FieldMask, v float64) float64 {
	if !s.Has(f) {
		return math.NaN()
	}
	return v
}

// MarshalParquet renders the track as an in-memory parquet file, one
// row per sample, snappy-compressed.
func MarshalParquet(t *activity.Track) ([]byte, error) {
	fw := parquetbuffer.NewBufferFile()
	pw, err := writer.NewParquetWriter(fw, new(parquetRow), 4)
	if err != nil {
		return nil, err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	start := t.StartTime().Unix()
	for i := 0; i < t.Len(); i++ {
		if err := pw.Write(rowForSample(t.At(i), start)); err != nil {
			_ = pw.WriteStop()
			return nil, err
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}
	return append([]byte(nil), fw.Bytes()...), nil
}

// WriteParquet writes the track to a parquet file on disk.
func WriteParquet(path string, t *activity.Track) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return err
	}
	pw, err := writer.NewParquetWriter(fw, new(parquetRow), 4)
	if err != nil {
		_ = fw.Close()
		return err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	start := t.StartTime().Unix()
	for i := 0; i < t.Len(); i++ {
		if err := pw.Write(rowForSample(t.At(i), start)); err != nil {
			_ = pw.WriteStop()
			_ = fw.Close()
			return err
		}
	}
	if err := pw.WriteStop(); err != nil {
		_ = fw.Close()
		return err
	}
	return fw.Close()
}
