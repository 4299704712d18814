package fitdecode

import (
	"encoding/binary"
	"math"
)

// Base type tags as they appear in definition message field triples.
const (
	baseEnum    = 0x00
	baseSint8   = 0x01
	baseUint8   = 0x02
	baseSint16  = 0x83
	baseUint16  = 0x84
	baseSint32  = 0x85
	baseUint32  = 0x86
	baseString  = 0x07
	baseFloat32 = 0x88
	baseFloat64 = 0x89
	baseUint8z  = 0x0A
	baseUint16z = 0x8B
	baseUint32z = 0x8C
	baseByte    = 0x0D
	baseSint64  = 0x8E
	baseUint64  = 0x8F
	baseUint64z = 0x90
)

// baseSizes maps a base type tag to the width of one element. Tags
// absent from the map are unknown to this decoder and their fields are
// skipped by their declared size.
var baseSizes = map[byte]int{
	baseEnum:    1,
	baseSint8:   1,
	baseUint8:   1,
	baseSint16:  2,
	baseUint16:  2,
	baseSint32:  4,
	baseUint32:  4,
	baseString:  1,
	baseFloat32: 4,
	baseFloat64: 8,
	baseUint8z:  1,
	baseUint16z: 2,
	baseUint32z: 4,
	baseByte:    1,
	baseSint64:  8,
	baseUint64:  8,
	baseUint64z: 8,
}

// decodeScalar reads one element of the given base type and reports
// whether it holds a real value. Each base type reserves a sentinel bit
// pattern meaning "field present but unmeasured"; those decode as
// ok=false. Strings and opaque byte fields are not scalars and also
// report false.
func decodeScalar(raw []byte, base byte, arch binary.ByteOrder) (float64, bool) {
	switch base {
	case baseEnum, baseUint8:
		v := raw[0]
		return float64(v), v != 0xFF
	case baseSint8:
		v := int8(raw[0])
		return float64(v), v != 0x7F
	case baseUint8z:
		v := raw[0]
		return float64(v), v != 0x00
	case baseSint16:
		v := int16(arch.Uint16(raw))
		return float64(v), v != 0x7FFF
	case baseUint16:
		v := arch.Uint16(raw)
		return float64(v), v != 0xFFFF
	case baseUint16z:
		v := arch.Uint16(raw)
		return float64(v), v != 0x0000
	case baseSint32:
		v := int32(arch.Uint32(raw))
		return float64(v), v != 0x7FFFFFFF
	case baseUint32:
		v := arch.Uint32(raw)
		return float64(v), v != 0xFFFFFFFF
	case baseUint32z:
		v := arch.Uint32(raw)
		return float64(v), v != 0
	case baseFloat32:
		bits := arch.Uint32(raw)
		return float64(math.Float32frombits(bits)), bits != 0xFFFFFFFF
	case baseFloat64:
		bits := arch.Uint64(raw)
		return math.Float64frombits(bits), bits != 0xFFFFFFFFFFFFFFFF
	case baseSint64:
		v := int64(arch.Uint64(raw))
		return float64(v), v != 0x7FFFFFFFFFFFFFFF
	case baseUint64:
		v := arch.Uint64(raw)
		return float64(v), v != 0xFFFFFFFFFFFFFFFF
	case baseUint64z:
		v := arch.Uint64(raw)
		return float64(v), v != 0
	default:
		return 0, false
	}
}
