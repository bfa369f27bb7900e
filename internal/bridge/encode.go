package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/dzerrenner/mqtt-lightify/internal/lightify"
)

// lightJSON is the info-command encoding of a light.
type lightJSON struct {
	Name               string             `json:"name"`
	Addr               uint64             `json:"addr"`
	Idx                uint16             `json:"idx"`
	Reachable          bool               `json:"reachable"`
	LastSeen           uint32             `json:"last_seen"`
	On                 bool               `json:"on"`
	Lum                int                `json:"lum"`
	Temp               int                `json:"temp"`
	MinTemp            int                `json:"min_temp"`
	MaxTemp            int                `json:"max_temp"`
	Red                int                `json:"red"`
	Green              int                `json:"green"`
	Blue               int                `json:"blue"`
	Groups             []uint16           `json:"groups"`
	TypeID             uint8              `json:"type_id"`
	DeviceName         string             `json:"devicename"`
	Version            string             `json:"version"`
	Deleted            bool               `json:"deleted"`
	DeviceType         string             `json:"deviceType"`
	DeviceTypeValue    int                `json:"deviceTypeValue"`
	DeviceSubType      string             `json:"deviceSubType"`
	DeviceSubTypeValue int                `json:"deviceSubTypeValue"`
	SupportedFeatures  []lightify.Feature `json:"supported_features"`
}

// groupJSON is the info-command encoding of a group.
type groupJSON struct {
	Name              string             `json:"name"`
	Idx               uint16             `json:"idx"`
	Lights            []uint64           `json:"lights"`
	Reachable         bool               `json:"reachable"`
	LightNames        []string           `json:"light_names"`
	On                bool               `json:"on"`
	Lum               int                `json:"lum"`
	Temp              int                `json:"temp"`
	MinTemp           int                `json:"min_temp"`
	MaxTemp           int                `json:"max_temp"`
	Red               int                `json:"red"`
	Green             int                `json:"green"`
	Blue              int                `json:"blue"`
	Deleted           bool               `json:"deleted"`
	SupportedFeatures []lightify.Feature `json:"supported_features"`
}

// sceneJSON is the info-command encoding of a scene.
type sceneJSON struct {
	Name    string `json:"name"`
	Idx     uint16 `json:"idx"`
	Group   uint16 `json:"group"`
	Deleted bool   `json:"deleted"`
}

func encodeLight(l lightify.Light) lightJSON {
	return lightJSON{
		Name:               l.Name,
		Addr:               l.Addr,
		Idx:                l.Idx,
		Reachable:          l.Reachable,
		LastSeen:           l.LastSeen,
		On:                 l.On,
		Lum:                l.Lum,
		Temp:               l.Temp,
		MinTemp:            l.MinTemp(),
		MaxTemp:            l.MaxTemp(),
		Red:                l.Red,
		Green:              l.Green,
		Blue:               l.Blue,
		Groups:             nonNil(l.Groups),
		TypeID:             l.TypeID,
		DeviceName:         l.DeviceName(),
		Version:            l.Version,
		Deleted:            l.Deleted,
		DeviceType:         l.DeviceType().String(),
		DeviceTypeValue:    int(l.DeviceType()),
		DeviceSubType:      l.DeviceSubType().String(),
		DeviceSubTypeValue: int(l.DeviceSubType()),
		SupportedFeatures:  nonNil(l.SupportedFeatures()),
	}
}

func encodeGroup(g lightify.Group) groupJSON {
	return groupJSON{
		Name:              g.Name,
		Idx:               g.Idx,
		Lights:            nonNil(g.Lights),
		Reachable:         g.Reachable,
		LightNames:        nonNil(g.LightNames),
		On:                g.On,
		Lum:               g.Lum,
		Temp:              g.Temp,
		MinTemp:           g.MinTemp,
		MaxTemp:           g.MaxTemp,
		Red:               g.Red,
		Green:             g.Green,
		Blue:              g.Blue,
		Deleted:           g.Deleted,
		SupportedFeatures: nonNil(g.Features),
	}
}

// nonNil keeps empty lists as [] rather than null in the JSON output.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// EncodeLights encodes a light map keyed by decimal address.
func EncodeLights(lights map[uint64]lightify.Light) ([]byte, error) {
	out := make(map[uint64]lightJSON, len(lights))
	for addr, l := range lights {
		out[addr] = encodeLight(l)
	}
	return marshal("lights", out)
}

// EncodeGroups encodes a group map keyed by decimal index.
func EncodeGroups(groups map[uint16]lightify.Group) ([]byte, error) {
	out := make(map[uint16]groupJSON, len(groups))
	for idx, g := range groups {
		out[idx] = encodeGroup(g)
	}
	return marshal("groups", out)
}

// EncodeScenes encodes a scene map keyed by decimal index.
func EncodeScenes(scenes map[uint16]lightify.Scene) ([]byte, error) {
	out := make(map[uint16]sceneJSON, len(scenes))
	for idx, s := range scenes {
		out[idx] = sceneJSON{Name: s.Name, Idx: s.Idx, Group: s.Group, Deleted: s.Deleted}
	}
	return marshal("scenes", out)
}

func marshal(what string, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", what, err)
	}
	return data, nil
}
