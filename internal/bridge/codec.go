package bridge

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Luminance bounds in percent.
const (
	minLuminance = 0
	maxLuminance = 100
)

// DecodeOnOff returns true only for "true" and "1".
func DecodeOnOff(raw string) bool {
	return raw == "true" || raw == "1"
}

// DecodeRGB parses "#RRGGBB" or "RRGGBB".
//
// Parameters:
//   - raw: Payload string
//
// Returns:
//   - r, g, b: Colour channels
//   - error: ErrInvalidFormat unless exactly six hex digits follow the optional '#'
func DecodeRGB(raw string) (r, g, b uint8, err error) {
	hex := strings.TrimPrefix(raw, "#")
	if len(hex) != 6 {
		return 0, 0, 0, fmt.Errorf("%w: color format should be html-rgb #RRGGBB, got %q", ErrInvalidFormat, raw)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("%w: color format should be html-rgb #RRGGBB, got %q", ErrInvalidFormat, raw)
	}
	return uint8(v >> 16), uint8(v >> 8), uint8(v), nil //nolint:gosec // masked to 24 bits by the length check
}

// EncodeRGB formats a colour as "#RRGGBB".
func EncodeRGB(r, g, b uint8) string {
	return fmt.Sprintf("#%02X%02X%02X", r, g, b)
}

// DecodeLuminance parses a decimal percentage and clamps it to [0,100].
//
// Returns:
//   - int: Clamped luminance
//   - bool: True if the value was clamped
//   - error: ErrParse for non-numeric input
func DecodeLuminance(raw string) (int, bool, error) {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, false, fmt.Errorf("%w: luminance %q", ErrParse, raw)
	}
	clamped := clamp(v, minLuminance, maxLuminance)
	return clamped, clamped != v, nil
}

// DecodeTemperature parses a decimal colour temperature and clamps it to
// the device's [minTemp,maxTemp].
//
// Returns:
//   - int: Clamped temperature
//   - bool: True if the value was clamped
//   - error: ErrParse for non-numeric input
func DecodeTemperature(raw string, minTemp, maxTemp int) (int, bool, error) {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, false, fmt.Errorf("%w: temperature %q", ErrParse, raw)
	}
	clamped := clamp(v, minTemp, maxTemp)
	return clamped, clamped != v, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// StatusPayload is published on <root>/status/<id>/<DATAPOINT>.
type StatusPayload struct {
	Val      any        `json:"val"`
	TS       int64      `json:"ts"`
	Lightify StatusMeta `json:"lightify"`
}

// StatusMeta describes the device and datapoint a status value belongs to.
type StatusMeta struct {
	Bridge             string `json:"bridge"`
	Device             uint64 `json:"device"`
	DeviceName         string `json:"deviceName"`
	DeviceType         string `json:"deviceType"`
	DeviceTypeValue    int    `json:"deviceTypeValue"`
	DeviceSubType      string `json:"deviceSubType"`
	DeviceSubTypeValue int    `json:"deviceSubTypeValue"`
	Addr               uint64 `json:"addr"`
	Idx                uint16 `json:"idx"`
	Datapoint          string `json:"datapoint"`
	DatapointType      string `json:"datapointType"`
}

// EncodeStatus builds the status payload for one datapoint of a device.
//
// The result depends only on its arguments.
//
// Parameters:
//   - d: Device snapshot
//   - dp: Datapoint taken from d.Datapoints()
//   - bridge: Gateway address reported in the metadata
//   - now: Timestamp of the reading
//
// Returns:
//   - []byte: JSON payload
//   - error: If the value cannot be encoded
func EncodeStatus(d Device, dp Datapoint, bridge string, now time.Time) ([]byte, error) {
	meta := d.meta()
	meta.Bridge = bridge
	meta.Datapoint = dp.Name
	meta.DatapointType = datapointType(dp.Value)

	payload, err := json.Marshal(StatusPayload{
		Val:      dp.Value,
		TS:       now.UnixMilli(),
		Lightify: meta,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding status %s/%s: %w", strconv.FormatUint(d.ID(), 10), dp.Name, err)
	}
	return payload, nil
}

// datapointType names the JSON kind of a status value.
func datapointType(v any) string {
	switch v.(type) {
	case bool:
		return "bool"
	case string:
		return "string"
	case int, int64, uint8, uint16, uint32, uint64, float64:
		return "number"
	default:
		return "unknown"
	}
}
