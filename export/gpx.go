// Package export renders tracks into interchange formats: GPX XML,
// named column extracts, and columnar parquet snapshots. Everything
// here is a pure view over a track; nothing writes back.
package export

import (
	"encoding/xml"
	"fmt"
	"time"

	activity "github.com/lucasjlepore/activity-engine"
)

const gpxCreator = "activity-engine"

type gpxFile struct {
	XMLName  xml.Name     `xml:"gpx"`
	Version  string       `xml:"version,attr"`
	Creator  string       `xml:"creator,attr"`
	Xmlns    string       `xml:"xmlns,attr"`
	Metadata *gpxMetadata `xml:"metadata,omitempty"`
	Track    gpxTrack     `xml:"trk"`
}

type gpxMetadata struct {
	Name string `xml:"name,omitempty"`
	Time string `xml:"time,omitempty"`
}

type gpxTrack struct {
	Name    string     `xml:"name,omitempty"`
	Segment gpxSegment `xml:"trkseg"`
}

type gpxSegment struct {
	Points []gpxPoint `xml:"trkpt"`
}

type gpxPoint struct {
	Lat  float64  `xml:"lat,attr"`
	Lon  float64  `xml:"lon,attr"`
	Ele  *float64 `xml:"ele,omitempty"`
	Time string   `xml:"time,omitempty"`
}

// GPX renders the track as a GPX 1.1 document. Samples without a
// position fix are left out entirely rather than written as zero
// coordinates. It fails with ErrNoGeodata when no sample carries a fix.
func GPX(t *activity.Track, name string) ([]byte, error) {
	var points []gpxPoint
	for i := 0; i < t.Len(); i++ {
		s := t.At(i)
		if !s.HasGPS() {
			continue
		}
		p := gpxPoint{
			Lat:  s.Latitude,
			Lon:  s.Longitude,
			Time: s.Timestamp.UTC().Format(time.RFC3339),
		}
		if s.Has(activity.FieldAltitude) {
			ele := s.Altitude
			p.Ele = &ele
		}
		points = append(points, p)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: no samples with a position fix", activity.ErrNoGeodata)
	}

	doc := gpxFile{
		Version: "1.1",
		Creator: gpxCreator,
		Xmlns:   "http://www.topografix.com/GPX/1/1",
		Metadata: &gpxMetadata{
			Name: name,
			Time: t.StartTime().UTC().Format(time.RFC3339),
		},
		Track: gpxTrack{
			Name:    name,
			Segment: gpxSegment{Points: points},
		},
	}
	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export: marshal gpx: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}
