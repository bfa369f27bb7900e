package lightify

import (
	"fmt"
	"slices"
)

// DeviceType is the coarse device class reported by the gateway.
type DeviceType int

// Device types.
const (
	DeviceTypeUnknown DeviceType = 0
	DeviceTypeLight   DeviceType = 1
	DeviceTypePlug    DeviceType = 2
	DeviceTypeSensor  DeviceType = 3
	DeviceTypeSwitch  DeviceType = 4
)

var deviceTypeNames = map[DeviceType]string{
	DeviceTypeUnknown: "UNKNOWN",
	DeviceTypeLight:   "LIGHT",
	DeviceTypePlug:    "PLUG",
	DeviceTypeSensor:  "SENSOR",
	DeviceTypeSwitch:  "SWITCH",
}

// String returns the upper-case name used in status payloads.
func (t DeviceType) String() string {
	if n, ok := deviceTypeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("DeviceType(%d)", int(t))
}

// DeviceSubType refines DeviceType.
type DeviceSubType int

// Device subtypes.
const (
	SubTypeUnknown           DeviceSubType = 0
	SubTypeLightTunableWhite DeviceSubType = 1
	SubTypeLightFixedWhite   DeviceSubType = 2
	SubTypeLightRGB          DeviceSubType = 3
	SubTypePlug              DeviceSubType = 4
	SubTypeContactSensor     DeviceSubType = 5
	SubTypeMotionSensor      DeviceSubType = 6
	SubTypeSwitchTwoButtons  DeviceSubType = 7
	SubTypeSwitchFourButtons DeviceSubType = 8
)

var subTypeNames = map[DeviceSubType]string{
	SubTypeUnknown:           "UNKNOWN",
	SubTypeLightTunableWhite: "LIGHT_TUNABLE_WHITE",
	SubTypeLightFixedWhite:   "LIGHT_FIXED_WHITE",
	SubTypeLightRGB:          "LIGHT_RGB",
	SubTypePlug:              "PLUG",
	SubTypeContactSensor:     "CONTACT_SENSOR",
	SubTypeMotionSensor:      "MOTION_SENSOR",
	SubTypeSwitchTwoButtons:  "SWITCH_TWO_BUTTONS",
	SubTypeSwitchFourButtons: "SWITCH_FOUR_BUTTONS",
}

// String returns the upper-case name used in status payloads.
func (s DeviceSubType) String() string {
	if n, ok := subTypeNames[s]; ok {
		return n
	}
	return fmt.Sprintf("DeviceSubType(%d)", int(s))
}

// Feature is a controllable capability of a light or group.
type Feature string

// Features, named as the bridge reports them in supported_features.
const (
	FeatureOnOff       Feature = "on"
	FeatureLuminance   Feature = "lum"
	FeatureTemperature Feature = "temp"
	FeatureRGB         Feature = "rgb"
)

// deviceInfo describes one gateway type_id.
type deviceInfo struct {
	deviceType DeviceType
	subType    DeviceSubType
	name       string
	features   []Feature
	minTemp    int
	maxTemp    int
}

// deviceTypes maps the type_id byte of a light record.
var deviceTypes = map[uint8]deviceInfo{
	2: {DeviceTypeLight, SubTypeLightTunableWhite, "Tunable White",
		[]Feature{FeatureOnOff, FeatureLuminance, FeatureTemperature}, 2700, 6500},
	4: {DeviceTypeLight, SubTypeLightFixedWhite, "Fixed White",
		[]Feature{FeatureOnOff, FeatureLuminance}, 2700, 2700},
	10: {DeviceTypeLight, SubTypeLightRGB, "RGBW",
		[]Feature{FeatureOnOff, FeatureLuminance, FeatureTemperature, FeatureRGB}, 2000, 6500},
	16: {DeviceTypePlug, SubTypePlug, "Plug",
		[]Feature{FeatureOnOff}, 0, 0},
	32: {DeviceTypeSensor, SubTypeContactSensor, "Contact Sensor", nil, 0, 0},
	33: {DeviceTypeSensor, SubTypeMotionSensor, "Motion Sensor", nil, 0, 0},
	64: {DeviceTypeSwitch, SubTypeSwitchTwoButtons, "Switch 2 Buttons", nil, 0, 0},
	65: {DeviceTypeSwitch, SubTypeSwitchFourButtons, "Switch 4 Buttons", nil, 0, 0},
}

func lookupType(typeID uint8) deviceInfo {
	if info, ok := deviceTypes[typeID]; ok {
		return info
	}
	return deviceInfo{name: fmt.Sprintf("Unknown (%d)", typeID)}
}

// Target addresses a mutation to a single light or to a group.
type Target struct {
	addr  uint64
	group bool
}

// LightTarget addresses the light with the given 64-bit address.
func LightTarget(addr uint64) Target { return Target{addr: addr} }

// GroupTarget addresses the group with the given index.
func GroupTarget(idx uint16) Target { return Target{addr: uint64(idx), group: true} }

// IsGroup reports whether the target is a group.
func (t Target) IsGroup() bool { return t.group }

// ID returns the light address or the group index.
func (t Target) ID() uint64 { return t.addr }

// Light is a snapshot of one light as last reported by the gateway.
type Light struct {
	Addr      uint64
	Idx       uint16
	Name      string
	TypeID    uint8
	Version   string
	Reachable bool
	LastSeen  uint32
	On        bool
	Lum       int
	Temp      int
	Red       int
	Green     int
	Blue      int
	Groups    []uint16
	Deleted   bool
}

// DeviceType returns the device class from the type table.
func (l Light) DeviceType() DeviceType { return lookupType(l.TypeID).deviceType }

// DeviceSubType returns the device subclass from the type table.
func (l Light) DeviceSubType() DeviceSubType { return lookupType(l.TypeID).subType }

// DeviceName returns the product name for the light's type.
func (l Light) DeviceName() string { return lookupType(l.TypeID).name }

// MinTemp returns the lowest colour temperature the light accepts.
func (l Light) MinTemp() int { return lookupType(l.TypeID).minTemp }

// MaxTemp returns the highest colour temperature the light accepts.
func (l Light) MaxTemp() int { return lookupType(l.TypeID).maxTemp }

// SupportedFeatures returns the capabilities of the light's type.
func (l Light) SupportedFeatures() []Feature {
	return slices.Clone(lookupType(l.TypeID).features)
}

// Supports reports whether the light's type has feature f.
func (l Light) Supports(f Feature) bool {
	return slices.Contains(lookupType(l.TypeID).features, f)
}

// Target returns the mutation target for this light.
func (l Light) Target() Target { return LightTarget(l.Addr) }

// Group is a gateway group. Its state is derived from its member lights.
type Group struct {
	Idx        uint16
	Name       string
	Lights     []uint64
	LightNames []string
	Reachable  bool
	On         bool
	Lum        int
	Temp       int
	MinTemp    int
	MaxTemp    int
	Red        int
	Green      int
	Blue       int
	Features   []Feature
	Deleted    bool
}

// Supports reports whether any member light has feature f.
func (g Group) Supports(f Feature) bool { return slices.Contains(g.Features, f) }

// Target returns the mutation target for this group.
func (g Group) Target() Target { return GroupTarget(g.Idx) }

// Scene is a stored gateway scene bound to a group.
type Scene struct {
	Idx     uint16
	Name    string
	Group   uint16
	Deleted bool
}
