package qc

import (
	"context"
	"strings"
	"time"
)

// ReportType is the type attribute of every report emitted by seisqc.
const ReportType = "report"

// WaveformID identifies a channel in the NET.STA.LOC.CHA scheme.
type WaveformID struct {
	NetworkCode  string `json:"networkCode"`
	StationCode  string `json:"stationCode"`
	LocationCode string `json:"locationCode"`
	ChannelCode  string `json:"channelCode"`
}

// String renders the ID as NET.STA.LOC.CHA.
func (w WaveformID) String() string {
	return w.NetworkCode + "." + w.StationCode + "." + w.LocationCode + "." + w.ChannelCode
}

// WaveformIDFunc maps a stream ID to a waveform ID.
type WaveformIDFunc func(streamID string) WaveformID

// ParseStreamID splits NET.STA.LOC.CHA. Missing trailing components are
// left empty.
func ParseStreamID(streamID string) WaveformID {
	parts := strings.SplitN(streamID, ".", 4)
	for len(parts) < 4 {
		parts = append(parts, "")
	}
	return WaveformID{
		NetworkCode:  parts[0],
		StationCode:  parts[1],
		LocationCode: parts[2],
		ChannelCode:  parts[3],
	}
}

// Report is a single waveform quality observation.
type Report struct {
	WaveformID       WaveformID `json:"waveformID"`
	CreatorID        string     `json:"creatorID"`
	Created          time.Time  `json:"created"`
	Start            time.Time  `json:"start"`
	End              time.Time  `json:"end"`
	Type             string     `json:"type"`
	Parameter        string     `json:"parameter"`
	Value            float64    `json:"value"`
	LowerUncertainty float64    `json:"lowerUncertainty"`
	UpperUncertainty float64    `json:"upperUncertainty"`
	WindowLength     float64    `json:"windowLength"`
}

// Sink receives emitted reports. Implementations must be safe for
// concurrent use; the slice passed to Send belongs to the sink.
type Sink interface {
	Name() string
	Send(ctx context.Context, reports []Report) error
}
