package bridge

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/dzerrenner/mqtt-lightify/internal/lightify"
)

// Gateway is the lighting-bridge collaborator. *lightify.Client satisfies it.
type Gateway interface {
	// Update refreshes lights, groups and scenes from the gateway.
	Update(ctx context.Context) error

	Lights() map[uint64]lightify.Light
	Groups() map[uint16]lightify.Group
	Scenes() map[uint16]lightify.Scene

	SetOnOff(ctx context.Context, t lightify.Target, on bool) error
	SetRGB(ctx context.Context, t lightify.Target, r, g, b uint8, transition uint16) error
	SetLuminance(ctx context.Context, t lightify.Target, lum uint8, transition uint16) error
	SetTemperature(ctx context.Context, t lightify.Target, temp, transition uint16) error
}

var _ Gateway = (*lightify.Client)(nil)

// Kind tags the variant held by a Device.
type Kind int

// Device kinds.
const (
	KindLight Kind = iota + 1
	KindGroup
	KindScene
)

// String returns the lower-case kind name.
func (k Kind) String() string {
	switch k {
	case KindLight:
		return "light"
	case KindGroup:
		return "group"
	case KindScene:
		return "scene"
	default:
		return "unknown"
	}
}

// Device is a read-only snapshot of one light, group or scene.
//
// Lights are identified by their 64-bit address, groups and scenes by
// their gateway index.
type Device struct {
	kind  Kind
	id    uint64
	light lightify.Light
	group lightify.Group
	scene lightify.Scene
}

// NewLightDevice wraps a light snapshot.
func NewLightDevice(l lightify.Light) Device {
	return Device{kind: KindLight, id: l.Addr, light: l}
}

// NewGroupDevice wraps a group snapshot.
func NewGroupDevice(g lightify.Group) Device {
	return Device{kind: KindGroup, id: uint64(g.Idx), group: g}
}

// NewSceneDevice wraps a scene snapshot.
func NewSceneDevice(s lightify.Scene) Device {
	return Device{kind: KindScene, id: uint64(s.Idx), scene: s}
}

// Kind returns the variant tag.
func (d Device) Kind() Kind { return d.kind }

// ID returns the registry key.
func (d Device) ID() uint64 { return d.id }

// Light returns the light variant.
func (d Device) Light() (lightify.Light, bool) { return d.light, d.kind == KindLight }

// Group returns the group variant.
func (d Device) Group() (lightify.Group, bool) { return d.group, d.kind == KindGroup }

// Scene returns the scene variant.
func (d Device) Scene() (lightify.Scene, bool) { return d.scene, d.kind == KindScene }

// Name returns the user-assigned name.
func (d Device) Name() string {
	switch d.kind {
	case KindLight:
		return d.light.Name
	case KindGroup:
		return d.group.Name
	case KindScene:
		return d.scene.Name
	}
	return ""
}

// Reachable reports whether the gateway can currently reach the device.
// A scene is never reachable.
func (d Device) Reachable() bool {
	switch d.kind {
	case KindLight:
		return d.light.Reachable
	case KindGroup:
		return d.group.Reachable
	}
	return false
}

// Supports reports whether the device has the capability.
func (d Device) Supports(f lightify.Feature) bool {
	switch d.kind {
	case KindLight:
		return d.light.Supports(f)
	case KindGroup:
		return d.group.Supports(f)
	}
	return false
}

// TempRange returns the colour temperature bounds used for clamping.
func (d Device) TempRange() (minTemp, maxTemp int) {
	switch d.kind {
	case KindLight:
		return d.light.MinTemp(), d.light.MaxTemp()
	case KindGroup:
		return d.group.MinTemp, d.group.MaxTemp
	}
	return 0, 0
}

// Target returns the gateway target for mutations. Scenes have none.
func (d Device) Target() (lightify.Target, bool) {
	switch d.kind {
	case KindLight:
		return d.light.Target(), true
	case KindGroup:
		return d.group.Target(), true
	}
	return lightify.Target{}, false
}

// Datapoint is one named status value.
type Datapoint struct {
	Name  string
	Value any
}

// Datapoints returns every status value published for the device, in
// publication order.
func (d Device) Datapoints() []Datapoint {
	switch d.kind {
	case KindLight:
		l := d.light
		return []Datapoint{
			{"NAME", l.Name},
			{"REACHABLE", l.Reachable},
			{"LAST_SEEN", l.LastSeen},
			{"ON", l.On},
			{"LUM", l.Lum},
			{"TEMP", l.Temp},
			{"MIN_TEMP", l.MinTemp()},
			{"MAX_TEMP", l.MaxTemp()},
			{"RED", l.Red},
			{"GREEN", l.Green},
			{"BLUE", l.Blue},
			{"TYPE_ID", l.TypeID},
			{"DEVICENAME", l.DeviceName()},
			{"VERSION", l.Version},
			{"DELETED", l.Deleted},
		}
	case KindGroup:
		g := d.group
		return []Datapoint{
			{"NAME", g.Name},
			{"REACHABLE", g.Reachable},
			{"ON", g.On},
			{"LUM", g.Lum},
			{"TEMP", g.Temp},
			{"MIN_TEMP", g.MinTemp},
			{"MAX_TEMP", g.MaxTemp},
			{"RED", g.Red},
			{"GREEN", g.Green},
			{"BLUE", g.Blue},
			{"DELETED", g.Deleted},
		}
	case KindScene:
		s := d.scene
		return []Datapoint{
			{"NAME", s.Name},
			{"GROUP", s.Group},
			{"DELETED", s.Deleted},
		}
	}
	return nil
}

// meta returns the device part of the status metadata.
func (d Device) meta() StatusMeta {
	m := StatusMeta{Device: d.id, Addr: d.id}
	switch d.kind {
	case KindLight:
		m.DeviceName = d.light.DeviceName()
		m.DeviceType = d.light.DeviceType().String()
		m.DeviceTypeValue = int(d.light.DeviceType())
		m.DeviceSubType = d.light.DeviceSubType().String()
		m.DeviceSubTypeValue = int(d.light.DeviceSubType())
		m.Idx = d.light.Idx
	case KindGroup:
		m.DeviceName = d.group.Name
		m.DeviceType = "GROUP"
		m.DeviceSubType = "GROUP"
		m.Idx = d.group.Idx
	case KindScene:
		m.DeviceName = d.scene.Name
		m.DeviceType = "SCENE"
		m.DeviceSubType = "SCENE"
		m.Idx = d.scene.Idx
	}
	return m
}

// Registry is the bridge's snapshot of gateway devices.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Refresh replaces the whole snapshot; readers see the old or the new one.
type Registry struct {
	gw Gateway

	mu     sync.RWMutex
	lights map[uint64]Device
	groups map[uint64]Device
	scenes map[uint64]Device
}

// NewRegistry returns an empty registry backed by gw.
func NewRegistry(gw Gateway) *Registry {
	return &Registry{
		gw:     gw,
		lights: make(map[uint64]Device),
		groups: make(map[uint64]Device),
		scenes: make(map[uint64]Device),
	}
}

// Refresh re-reads every device from the gateway and rebuilds the registry.
//
// Parameters:
//   - ctx: Context for cancellation/timeout
//
// Returns:
//   - error: ErrRegistryUnreachable if the gateway cannot be queried; the
//     previous snapshot is left untouched
func (r *Registry) Refresh(ctx context.Context) error {
	if err := r.gw.Update(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrRegistryUnreachable, err)
	}

	lights := make(map[uint64]Device)
	for addr, l := range r.gw.Lights() {
		lights[addr] = NewLightDevice(l)
	}
	groups := make(map[uint64]Device)
	for idx, g := range r.gw.Groups() {
		groups[uint64(idx)] = NewGroupDevice(g)
	}
	scenes := make(map[uint64]Device)
	for idx, s := range r.gw.Scenes() {
		scenes[uint64(idx)] = NewSceneDevice(s)
	}

	r.mu.Lock()
	r.lights, r.groups, r.scenes = lights, groups, scenes
	r.mu.Unlock()
	return nil
}

// Get returns the light with the given address, or else the group with
// the given index.
//
// Returns:
//   - Device: The device snapshot
//   - error: ErrNotFound if neither exists
func (r *Registry) Get(id uint64) (Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if d, ok := r.lights[id]; ok {
		return d, nil
	}
	if d, ok := r.groups[id]; ok {
		return d, nil
	}
	return Device{}, fmt.Errorf("%w: device %d not in device list", ErrNotFound, id)
}

// ListByKind returns all devices of a kind ordered by id.
func (r *Registry) ListByKind(kind Kind) []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var src map[uint64]Device
	switch kind {
	case KindLight:
		src = r.lights
	case KindGroup:
		src = r.groups
	case KindScene:
		src = r.scenes
	default:
		return nil
	}

	devices := make([]Device, 0, len(src))
	for _, d := range src {
		devices = append(devices, d)
	}
	slices.SortFunc(devices, func(a, b Device) int { return cmp.Compare(a.id, b.id) })
	return devices
}

// Counts returns the number of devices per kind.
func (r *Registry) Counts() map[Kind]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[Kind]int{
		KindLight: len(r.lights),
		KindGroup: len(r.groups),
		KindScene: len(r.scenes),
	}
}
