// Package fitdecode turns binary activity recordings into sample tracks.
//
// The decoder is deliberately forgiving: recordings cut short by a
// device crash or dead battery still carry usable data, so recoverable
// problems surface as track warnings rather than errors. Options.Strict
// restores fail-fast behavior for pipelines that prefer it.
package fitdecode

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/tormoder/fit/dyncrc16"

	activity "github.com/lucasjlepore/activity-engine"
)

const (
	headerSizeNoCRC = 12
	headerSizeCRC   = 14

	compressedHeaderMask    = 0x80
	compressedLocalMesgMask = 0x60
	compressedTimeMask      = 0x1F
	mesgDefinitionMask      = 0x40
	devDataMask             = 0x20
	localMesgNumMask        = 0x0F

	// How many payloads of each unknown message number are retained as
	// hex warnings when Options.RetainUnknown is set.
	maxRetainedPayloads = 3
)

var le = binary.LittleEndian

// Options controls decoding policy.
type Options struct {
	// Strict makes truncation and loss of record framing fail with
	// ErrTruncatedStream instead of producing a partial track.
	Strict bool

	// RetainUnknown records the payloads of messages this decoder has
	// no profile for as hex-encoded warnings, capped per message
	// number. Useful when diagnosing a new device model.
	RetainUnknown bool
}

type fileHeader struct {
	size     byte
	protocol byte
	profile  uint16
	dataSize uint32
}

type fieldDef struct {
	num  byte
	size int
	base byte
}

type mesgDef struct {
	arch   binary.ByteOrder
	global uint16
	fields []fieldDef
	// size is the full data message payload including developer fields.
	size int
	// skip marks definitions that parsed well enough to size data
	// messages but not to decode them.
	skip bool
}

// Decode parses one complete in-memory recording and returns its sample
// track. Recoverable defects are reported through the track's warning
// list; the error is non-nil only for the failures named by the
// sentinel errors in this package.
func Decode(data []byte, opts Options) (*activity.Track, error) {
	hdr, warnings, err := parseHeader(data)
	if err != nil {
		return nil, err
	}

	start := int(hdr.size)
	end := start + int(hdr.dataSize)
	truncated := false
	switch {
	case end > len(data):
		if opts.Strict {
			return nil, fmt.Errorf("%w: header declares %d data bytes, stream carries %d",
				ErrTruncatedStream, hdr.dataSize, len(data)-start)
		}
		truncated = true
		warnings = append(warnings, fmt.Sprintf(
			"stream truncated: header declares %d data bytes, stream carries %d",
			hdr.dataSize, len(data)-start))
		end = len(data)
	case end+2 > len(data):
		if opts.Strict {
			return nil, fmt.Errorf("%w: file checksum missing", ErrTruncatedStream)
		}
		truncated = true
		warnings = append(warnings, "file checksum missing")
	default:
		stored := le.Uint16(data[end : end+2])
		if computed := dyncrc16.Checksum(data[:end]); stored != computed {
			warnings = append(warnings, fmt.Sprintf(
				"file checksum mismatch: stored 0x%04X, computed 0x%04X", stored, computed))
		}
		if end+2 < len(data) {
			warnings = append(warnings, fmt.Sprintf("%d trailing bytes after checksum", len(data)-end-2))
		}
	}

	// Local message definitions live only for the duration of this
	// call; nothing leaks between files.
	defs := make(map[byte]*mesgDef)
	var samples []activity.Sample
	var lastTimestamp uint32
	warnedEarlyCompressed := false
	warnedNoTimestamp := false
	retained := make(map[uint16]int)

	i := start
scan:
	for i < end {
		h := data[i]
		i++

		switch {
		case h&compressedHeaderMask != 0:
			local := (h & compressedLocalMesgMask) >> 5
			offset := uint32(h & compressedTimeMask)
			def := defs[local]
			if def == nil {
				if opts.Strict {
					return nil, fmt.Errorf("%w: data message references undefined local type %d at offset %d",
						ErrTruncatedStream, local, i-1)
				}
				warnings = append(warnings, fmt.Sprintf(
					"lost record framing: undefined local type %d at offset %d", local, i-1))
				break scan
			}
			if i+def.size > end {
				if opts.Strict {
					return nil, fmt.Errorf("%w: record at offset %d overruns the data region",
						ErrTruncatedStream, i-1)
				}
				truncated = true
				warnings = append(warnings, fmt.Sprintf("record at offset %d cut off mid-message", i-1))
				break scan
			}
			if lastTimestamp == 0 {
				if !warnedEarlyCompressed {
					warnings = append(warnings, "compressed timestamp before any absolute timestamp; samples dropped")
					warnedEarlyCompressed = true
				}
				i += def.size
				continue
			}
			// 5-bit rollover arithmetic against the previous absolute
			// timestamp.
			ts := lastTimestamp&^compressedTimeMask | offset
			if offset < lastTimestamp&compressedTimeMask {
				ts += compressedTimeMask + 1
			}
			lastTimestamp = ts
			if def.skip || def.global != recordMesgNum {
				i += def.size
				continue
			}
			s := activity.Sample{Timestamp: timestampToUTC(ts)}
			decodeRecordInto(&s, data[i:i+def.size], def, &lastTimestamp)
			samples = append(samples, s)
			i += def.size

		case h&mesgDefinitionMask != 0:
			def, n, derr := parseDefinition(data[i:end], h)
			if derr != nil {
				if opts.Strict {
					return nil, fmt.Errorf("%w: %v at offset %d", ErrTruncatedStream, derr, i-1)
				}
				truncated = true
				warnings = append(warnings, fmt.Sprintf("%v at offset %d", derr, i-1))
				break scan
			}
			if def.skip {
				warnings = append(warnings, fmt.Sprintf(
					"definition for local type %d uses an unknown architecture; its data will be skipped",
					h&localMesgNumMask))
			}
			defs[h&localMesgNumMask] = def
			i += n

		default:
			local := h & localMesgNumMask
			def := defs[local]
			if def == nil {
				if opts.Strict {
					return nil, fmt.Errorf("%w: data message references undefined local type %d at offset %d",
						ErrTruncatedStream, local, i-1)
				}
				warnings = append(warnings, fmt.Sprintf(
					"lost record framing: undefined local type %d at offset %d", local, i-1))
				break scan
			}
			if i+def.size > end {
				if opts.Strict {
					return nil, fmt.Errorf("%w: record at offset %d overruns the data region",
						ErrTruncatedStream, i-1)
				}
				truncated = true
				warnings = append(warnings, fmt.Sprintf("record at offset %d cut off mid-message", i-1))
				break scan
			}
			if def.skip || def.global != recordMesgNum {
				if opts.RetainUnknown && !def.skip && retained[def.global] < maxRetainedPayloads {
					retained[def.global]++
					warnings = append(warnings, fmt.Sprintf("unknown message %d payload %s",
						def.global, hex.EncodeToString(data[i:i+def.size])))
				}
				i += def.size
				continue
			}
			var s activity.Sample
			decodeRecordInto(&s, data[i:i+def.size], def, &lastTimestamp)
			i += def.size
			if s.Timestamp.IsZero() {
				if !warnedNoTimestamp {
					warnings = append(warnings, "record without a valid timestamp; samples dropped")
					warnedNoTimestamp = true
				}
				continue
			}
			samples = append(samples, s)
		}
	}

	if truncated && len(samples) == 0 {
		return nil, fmt.Errorf("%w: no complete samples before the cut", ErrTruncatedStream)
	}

	source := fmt.Sprintf("fit/%d.%d", hdr.protocol>>4, hdr.protocol&0x0F)
	return activity.NewTrack(samples, source, warnings), nil
}

// parseHeader validates the 12 or 14 byte preamble.
func parseHeader(data []byte) (fileHeader, []string, error) {
	if len(data) < headerSizeNoCRC {
		return fileHeader{}, nil, fmt.Errorf("%w: %d bytes is shorter than the minimum preamble", ErrMalformedHeader, len(data))
	}
	size := data[0]
	if size != headerSizeNoCRC && size != headerSizeCRC {
		return fileHeader{}, nil, fmt.Errorf("%w: impossible header size %d", ErrMalformedHeader, size)
	}
	if len(data) < int(size) {
		return fileHeader{}, nil, fmt.Errorf("%w: %d bytes is shorter than the declared %d byte header", ErrMalformedHeader, len(data), size)
	}
	if string(data[8:12]) != ".FIT" {
		return fileHeader{}, nil, fmt.Errorf("%w: missing .FIT tag", ErrMalformedHeader)
	}
	protocol := data[1]
	if major := protocol >> 4; major > 2 {
		return fileHeader{}, nil, fmt.Errorf("%w: protocol %d.%d", ErrUnsupportedVersion, major, protocol&0x0F)
	}

	hdr := fileHeader{
		size:     size,
		protocol: protocol,
		profile:  le.Uint16(data[2:4]),
		dataSize: le.Uint32(data[4:8]),
	}

	var warnings []string
	if size == headerSizeCRC {
		// A stored zero means the writer skipped the header checksum.
		stored := le.Uint16(data[12:14])
		if stored != 0 {
			if computed := dyncrc16.Checksum(data[:12]); stored != computed {
				warnings = append(warnings, fmt.Sprintf(
					"header checksum mismatch: stored 0x%04X, computed 0x%04X", stored, computed))
			}
		}
	}
	return hdr, warnings, nil
}

// parseDefinition reads a definition message body (everything after the
// record header byte) and returns the definition plus the number of
// bytes consumed.
func parseDefinition(data []byte, recordHeader byte) (*mesgDef, int, error) {
	if len(data) < 5 {
		return nil, 0, fmt.Errorf("definition message cut off")
	}
	archByte := data[1]
	var arch binary.ByteOrder
	skip := false
	switch archByte {
	case 0:
		arch = binary.LittleEndian
	case 1:
		arch = binary.BigEndian
	default:
		// Keep little-endian so the global number still reads; the
		// data messages are size-skipped to preserve framing.
		arch = binary.LittleEndian
		skip = true
	}
	global := arch.Uint16(data[2:4])
	fieldCount := int(data[4])
	n := 5

	if len(data) < n+3*fieldCount {
		return nil, 0, fmt.Errorf("definition message cut off")
	}
	fields := make([]fieldDef, 0, fieldCount)
	size := 0
	for f := 0; f < fieldCount; f++ {
		fields = append(fields, fieldDef{
			num:  data[n],
			size: int(data[n+1]),
			base: data[n+2],
		})
		size += int(data[n+1])
		n += 3
	}

	if recordHeader&devDataMask != 0 {
		if len(data) < n+1 {
			return nil, 0, fmt.Errorf("definition message cut off")
		}
		devCount := int(data[n])
		n++
		if len(data) < n+3*devCount {
			return nil, 0, fmt.Errorf("definition message cut off")
		}
		// Developer fields are not decoded, but their sizes still count
		// toward the data message payload.
		for f := 0; f < devCount; f++ {
			size += int(data[n+1])
			n += 3
		}
	}

	return &mesgDef{arch: arch, global: global, fields: fields, size: size, skip: skip}, n, nil
}

// decodeRecordInto applies the record message fields in payload to s.
// Fields carrying their base type's invalid sentinel stay absent, as do
// fields with unknown base types or sizes that do not fit them.
func decodeRecordInto(s *activity.Sample, payload []byte, def *mesgDef, lastTimestamp *uint32) {
	off := 0
	for _, f := range def.fields {
		raw := payload[off : off+f.size]
		off += f.size

		width, ok := baseSizes[f.base]
		if !ok || f.size < width {
			continue
		}
		// Array fields decode their first element.
		v, valid := decodeScalar(raw[:width], f.base, def.arch)
		if !valid {
			continue
		}
		if f.num == fieldTimestamp {
			*lastTimestamp = uint32(v)
			s.Timestamp = timestampToUTC(*lastTimestamp)
			continue
		}
		applyRecordField(s, f.num, v)
	}
}
