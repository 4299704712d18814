// Package blobcodec persists sample tracks as compact self-contained
// blobs. The payload is a column-oriented msgpack document compressed
// with snappy, framed by a magic tag, a format version and a checksum,
// so a blob can be validated and decoded with no external schema.
package blobcodec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"time"

	"github.com/golang/snappy"
	"github.com/vmihailenco/msgpack/v5"

	activity "github.com/lucasjlepore/activity-engine"
)

// ErrCorruptBlob reports a blob that fails structural validation:
// wrong magic, unknown version, checksum mismatch, or an undecodable
// payload.
var ErrCorruptBlob = errors.New("blobcodec: corrupt blob")

const (
	blobMagic   = "ATRK"
	blobVersion = 1

	// magic + version byte + crc32 of the compressed payload.
	frameSize = len(blobMagic) + 1 + 4
)

// blobPayload is the column layout of one track. Every column has one
// entry per sample; absent fields hold the zero value and the mask says
// which ones are real. Keeping the arrays dense makes the round trip
// exact.
type blobPayload struct {
	Source     string    `msgpack:"source"`
	Warnings   []string  `msgpack:"warnings"`
	Timestamps []int64   `msgpack:"timestamps"`
	Masks      []uint8   `msgpack:"masks"`
	Lat        []float64 `msgpack:"lat"`
	Lon        []float64 `msgpack:"lon"`
	Alt        []float64 `msgpack:"alt"`
	Dist       []float64 `msgpack:"dist"`
	Speed      []float64 `msgpack:"speed"`
	Power      []uint16  `msgpack:"power"`
	Cadence    []uint8   `msgpack:"cadence"`
	HeartRate  []uint8   `msgpack:"heart_rate"`
}

// Encode serializes a track into a framed blob.
func Encode(t *activity.Track) ([]byte, error) {
	n := t.Len()
	p := blobPayload{
		Source:     t.Source(),
		Warnings:   t.Warnings(),
		Timestamps: make([]int64, n),
		Masks:      make([]uint8, n),
		Lat:        make([]float64, n),
		Lon:        make([]float64, n),
		Alt:        make([]float64, n),
		Dist:       make([]float64, n),
		Speed:      make([]float64, n),
		Power:      make([]uint16, n),
		Cadence:    make([]uint8, n),
		HeartRate:  make([]uint8, n),
	}
	for i := 0; i < n; i++ {
		s := t.At(i)
		p.Timestamps[i] = s.Timestamp.UnixNano()
		p.Masks[i] = uint8(s.Fields)
		p.Lat[i] = s.Latitude
		p.Lon[i] = s.Longitude
		p.Alt[i] = s.Altitude
		p.Dist[i] = s.Distance
		p.Speed[i] = s.Speed
		p.Power[i] = s.Power
		p.Cadence[i] = s.Cadence
		p.HeartRate[i] = s.HeartRate
	}

	raw, err := msgpack.Marshal(&p)
	if err != nil {
		return nil, fmt.Errorf("blobcodec: marshal payload: %w", err)
	}
	compressed := snappy.Encode(nil, raw)

	out := make([]byte, frameSize+len(compressed))
	copy(out, blobMagic)
	out[len(blobMagic)] = blobVersion
	binary.LittleEndian.PutUint32(out[len(blobMagic)+1:frameSize], crc32.ChecksumIEEE(compressed))
	copy(out[frameSize:], compressed)
	return out, nil
}

// Decode reconstructs a track from a framed blob. Any structural
// defect fails with an error wrapping ErrCorruptBlob.
func Decode(blob []byte) (*activity.Track, error) {
	if len(blob) < frameSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the frame", ErrCorruptBlob, len(blob))
	}
	if string(blob[:len(blobMagic)]) != blobMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrCorruptBlob)
	}
	if v := blob[len(blobMagic)]; v != blobVersion {
		return nil, fmt.Errorf("%w: unknown version %d", ErrCorruptBlob, v)
	}
	stored := binary.LittleEndian.Uint32(blob[len(blobMagic)+1 : frameSize])
	compressed := blob[frameSize:]
	if computed := crc32.ChecksumIEEE(compressed); stored != computed {
		return nil, fmt.Errorf("%w: checksum mismatch: stored 0x%08X, computed 0x%08X", ErrCorruptBlob, stored, computed)
	}

	raw, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, fmt.Errorf("%w: decompress: %v", ErrCorruptBlob, err)
	}
	var p blobPayload
	if err := msgpack.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: unmarshal payload: %v", ErrCorruptBlob, err)
	}

	n := len(p.Timestamps)
	for name, l := range map[string]int{
		"masks": len(p.Masks), "lat": len(p.Lat), "lon": len(p.Lon),
		"alt": len(p.Alt), "dist": len(p.Dist), "speed": len(p.Speed),
		"power": len(p.Power), "cadence": len(p.Cadence), "heart_rate": len(p.HeartRate),
	} {
		if l != n {
			return nil, fmt.Errorf("%w: column %s has %d entries, want %d", ErrCorruptBlob, name, l, n)
		}
	}

	samples := make([]activity.Sample, n)
	for i := 0; i < n; i++ {
		samples[i] = activity.Sample{
			Timestamp: time.Unix(0, p.Timestamps[i]).UTC(),
			Latitude:  p.Lat[i],
			Longitude: p.Lon[i],
			Altitude:  p.Alt[i],
			Distance:  p.Dist[i],
			Speed:     p.Speed[i],
			Power:     p.Power[i],
			Cadence:   p.Cadence[i],
			HeartRate: p.HeartRate[i],
			Fields:    activity.FieldMask(p.Masks[i]),
		}
	}
	return activity.NewTrack(samples, p.Source, p.Warnings), nil
}
