package fitdecode

import (
	"bytes"
	"fmt"
	"time"

	"github.com/tormoder/fit"
)

// FileInfo identifies the device that produced a recording. It comes
// from the file identification message every writer emits first, so it
// is available without decoding the sample stream.
type FileInfo struct {
	Type         string
	Manufacturer string
	Product      string
	SerialNumber uint32
	TimeCreated  time.Time
}

// DeviceInfo reads the file identification message from a raw
// recording.
func DeviceInfo(data []byte) (FileInfo, error) {
	_, id, err := fit.DecodeHeaderAndFileID(bytes.NewReader(data))
	if err != nil {
		return FileInfo{}, fmt.Errorf("fitdecode: read file id: %w", err)
	}
	info := FileInfo{
		Type:         fmt.Sprint(id.Type),
		Manufacturer: fmt.Sprint(id.Manufacturer),
		Product:      fmt.Sprint(id.GetProduct()),
		SerialNumber: id.SerialNumber,
	}
	if !id.TimeCreated.IsZero() {
		info.TimeCreated = id.TimeCreated.UTC()
	}
	return info, nil
}
