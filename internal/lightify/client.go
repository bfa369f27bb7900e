package lightify

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Default timeouts for gateway communication.
const (
	// defaultConnectTimeout is the maximum time to wait for the TCP connection.
	defaultConnectTimeout = 10 * time.Second

	// defaultRequestTimeout bounds one request/response exchange.
	defaultRequestTimeout = 10 * time.Second

	// DefaultPort is the gateway's TCP port.
	DefaultPort = 4000
)

// Config holds gateway connection configuration.
type Config struct {
	// Address is the gateway "host:port".
	Address string

	// ConnectTimeout is the maximum time to wait for connection.
	// Default: 10 seconds.
	ConnectTimeout time.Duration

	// RequestTimeout bounds a single request when the context has no
	// earlier deadline.
	// Default: 10 seconds.
	RequestTimeout time.Duration
}

// Stats holds operational statistics.
type Stats struct {
	RequestsTotal uint64
	ErrorsTotal   uint64
	RedialsTotal  uint64
	LastActivity  time.Time
	Connected     bool
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Client talks to a Lightify gateway and caches the last known state of its
// lights, groups and scenes.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Requests are serialised on the single gateway connection.
//
// Reconnection:
//   - A failed exchange closes the connection; the next request dials again.
//   - There is no background reconnect loop.
type Client struct {
	cfg Config

	// reqMu serialises request/response exchanges and guards conn and seq.
	reqMu  sync.Mutex
	conn   net.Conn
	seq    uint32
	closed bool

	// stateMu guards the cached device state.
	stateMu sync.RWMutex
	lights  map[uint64]*Light
	groups  map[uint16]*Group
	scenes  map[uint16]*Scene

	logger   Logger
	loggerMu sync.RWMutex

	requestsTotal atomic.Uint64
	errorsTotal   atomic.Uint64
	redialsTotal  atomic.Uint64
	lastActivity  atomic.Int64
}

// Dial connects to the gateway.
//
// No device state is fetched; call Update or UpdateAllLightStatus before
// reading Lights, Groups or Scenes.
//
// Parameters:
//   - ctx: Context for cancellation of the initial connection
//   - cfg: Connection configuration
//
// Returns:
//   - *Client: Connected client ready for use
//   - error: ErrConnectionFailed if the gateway cannot be reached
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}

	c := &Client{
		cfg:    cfg,
		lights: make(map[uint64]*Light),
		groups: make(map[uint16]*Group),
		scenes: make(map[uint16]*Scene),
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	c.lastActivity.Store(time.Now().Unix())

	return c, nil
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(dialCtx, "tcp", c.cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrConnectionFailed, c.cfg.Address, err)
	}
	return conn, nil
}

// SetLogger sets the logger for the client.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	defer c.loggerMu.Unlock()
	c.logger = logger
}

// Close closes the gateway connection. Further requests return ErrNotConnected.
func (c *Client) Close() error {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// IsConnected reports whether a gateway connection is currently open.
func (c *Client) IsConnected() bool {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()
	return c.conn != nil && !c.closed
}

// HealthCheck reports ErrNotConnected after Close.
func (c *Client) HealthCheck(_ context.Context) error {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()
	if c.closed {
		return ErrNotConnected
	}
	return nil
}

// Stats returns operational statistics.
func (c *Client) Stats() Stats {
	return Stats{
		RequestsTotal: c.requestsTotal.Load(),
		ErrorsTotal:   c.errorsTotal.Load(),
		RedialsTotal:  c.redialsTotal.Load(),
		LastActivity:  time.Unix(c.lastActivity.Load(), 0),
		Connected:     c.IsConnected(),
	}
}

// request performs one exchange and checks that the reply matches.
func (c *Client) request(ctx context.Context, flag, command uint8, body []byte) (response, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	if c.closed {
		return response{}, ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return response{}, fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}

	if c.conn == nil {
		conn, err := c.dial(ctx)
		if err != nil {
			c.errorsTotal.Add(1)
			return response{}, err
		}
		c.conn = conn
		c.redialsTotal.Add(1)
		c.logInfo("reconnected to lightify gateway", "address", c.cfg.Address)
	}

	c.seq++
	seq := c.seq
	c.requestsTotal.Add(1)

	deadline := time.Now().Add(c.cfg.RequestTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return response{}, c.failLocked(fmt.Errorf("set deadline: %w", err))
	}

	if _, err := c.conn.Write(encodeRequest(flag, command, seq, body)); err != nil {
		return response{}, c.failLocked(fmt.Errorf("write: %w", err))
	}

	frame, err := readFrame(c.conn)
	if err != nil {
		return response{}, c.failLocked(fmt.Errorf("read: %w", err))
	}

	resp, err := parseResponse(frame)
	if err != nil {
		return response{}, c.failLocked(err)
	}
	if resp.command != command || resp.seq != seq {
		return response{}, c.failLocked(fmt.Errorf("%w: sent cmd=0x%02X seq=%d, got cmd=0x%02X seq=%d",
			ErrProtocolDesync, command, seq, resp.command, resp.seq))
	}

	c.lastActivity.Store(time.Now().Unix())

	if resp.status != 0 {
		c.errorsTotal.Add(1)
		return response{}, fmt.Errorf("%w: command 0x%02X status %d", ErrGatewayStatus, command, resp.status)
	}
	return resp, nil
}

// failLocked drops the connection after a transport or framing error so the
// next request starts on a fresh stream. reqMu must be held.
func (c *Client) failLocked(err error) error {
	c.errorsTotal.Add(1)
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.logError("lightify request failed", err)
	return fmt.Errorf("%w: %w", ErrRequestFailed, err)
}

// Update refreshes lights, groups and scenes.
//
// Parameters:
//   - ctx: Context for cancellation/timeout
//
// Returns:
//   - error: First failing request, wrapped
func (c *Client) Update(ctx context.Context) error {
	if err := c.UpdateAllLightStatus(ctx); err != nil {
		return err
	}
	if err := c.UpdateGroupList(ctx); err != nil {
		return err
	}
	return c.UpdateSceneList(ctx)
}

// UpdateAllLightStatus fetches the status of every paired light.
//
// Lights the gateway no longer reports stay cached with Deleted set.
func (c *Client) UpdateAllLightStatus(ctx context.Context) error {
	resp, err := c.request(ctx, flagLight, cmdAllLightStatus, []byte{0x01})
	if err != nil {
		return fmt.Errorf("update light status: %w", err)
	}
	lights, err := parseLights(resp.body)
	if err != nil {
		return fmt.Errorf("update light status: %w", err)
	}

	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	for _, l := range c.lights {
		l.Deleted = true
	}
	for i := range lights {
		l := lights[i]
		c.lights[l.Addr] = &l
	}
	c.deriveGroupsLocked()
	return nil
}

// UpdateGroupList fetches the group names and indexes.
func (c *Client) UpdateGroupList(ctx context.Context) error {
	resp, err := c.request(ctx, flagLight, cmdGroupList, nil)
	if err != nil {
		return fmt.Errorf("update group list: %w", err)
	}
	records, err := parseGroups(resp.body)
	if err != nil {
		return fmt.Errorf("update group list: %w", err)
	}

	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	for _, g := range c.groups {
		g.Deleted = true
	}
	for _, rec := range records {
		g, ok := c.groups[rec.idx]
		if !ok {
			g = &Group{Idx: rec.idx}
			c.groups[rec.idx] = g
		}
		g.Name = rec.name
		g.Deleted = false
	}
	c.deriveGroupsLocked()
	return nil
}

// UpdateSceneList fetches the stored scenes.
func (c *Client) UpdateSceneList(ctx context.Context) error {
	resp, err := c.request(ctx, flagLight, cmdSceneList, nil)
	if err != nil {
		return fmt.Errorf("update scene list: %w", err)
	}
	records, err := parseScenes(resp.body)
	if err != nil {
		return fmt.Errorf("update scene list: %w", err)
	}

	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	for _, s := range c.scenes {
		s.Deleted = true
	}
	for _, rec := range records {
		c.scenes[rec.idx] = &Scene{Idx: rec.idx, Name: rec.name, Group: rec.group}
	}
	return nil
}

// deriveGroupsLocked recomputes member lists and aggregate state of every
// group from the cached lights. The first member (lowest light index)
// supplies lum, temp and colour; on and reachable are true if any member is.
// stateMu must be held for writing.
func (c *Client) deriveGroupsLocked() {
	members := make(map[uint16][]*Light)
	for _, l := range c.lights {
		if l.Deleted {
			continue
		}
		for _, idx := range l.Groups {
			members[idx] = append(members[idx], l)
		}
	}

	for idx, g := range c.groups {
		lights := members[idx]
		slices.SortFunc(lights, func(a, b *Light) int { return int(a.Idx) - int(b.Idx) })

		g.Lights = g.Lights[:0]
		g.LightNames = g.LightNames[:0]
		g.Features = g.Features[:0]
		g.Reachable, g.On = false, false
		g.Lum, g.Temp, g.Red, g.Green, g.Blue = 0, 0, 0, 0, 0
		g.MinTemp, g.MaxTemp = 0, 0

		for i, l := range lights {
			g.Lights = append(g.Lights, l.Addr)
			g.LightNames = append(g.LightNames, l.Name)
			g.Reachable = g.Reachable || l.Reachable
			g.On = g.On || l.On
			if i == 0 {
				g.Lum, g.Temp = l.Lum, l.Temp
				g.Red, g.Green, g.Blue = l.Red, l.Green, l.Blue
			}
			for _, f := range l.SupportedFeatures() {
				if !slices.Contains(g.Features, f) {
					g.Features = append(g.Features, f)
				}
			}
			if l.Supports(FeatureTemperature) {
				if g.MinTemp == 0 || l.MinTemp() < g.MinTemp {
					g.MinTemp = l.MinTemp()
				}
				if l.MaxTemp() > g.MaxTemp {
					g.MaxTemp = l.MaxTemp()
				}
			}
		}
	}
}

// Lights returns a snapshot of the cached lights keyed by address.
func (c *Client) Lights() map[uint64]Light {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()

	out := make(map[uint64]Light, len(c.lights))
	for addr, l := range c.lights {
		cp := *l
		cp.Groups = slices.Clone(l.Groups)
		out[addr] = cp
	}
	return out
}

// Groups returns a snapshot of the cached groups keyed by index.
func (c *Client) Groups() map[uint16]Group {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()

	out := make(map[uint16]Group, len(c.groups))
	for idx, g := range c.groups {
		cp := *g
		cp.Lights = slices.Clone(g.Lights)
		cp.LightNames = slices.Clone(g.LightNames)
		cp.Features = slices.Clone(g.Features)
		out[idx] = cp
	}
	return out
}

// Scenes returns a snapshot of the cached scenes keyed by index.
func (c *Client) Scenes() map[uint16]Scene {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()

	out := make(map[uint16]Scene, len(c.scenes))
	for idx, s := range c.scenes {
		out[idx] = *s
	}
	return out
}

// SetOnOff switches a light or group.
//
// Parameters:
//   - ctx: Context for cancellation/timeout
//   - t: LightTarget or GroupTarget
//   - on: Desired state
//
// Returns:
//   - error: If the request fails or the gateway rejects it
func (c *Client) SetOnOff(ctx context.Context, t Target, on bool) error {
	body := append(encodeTarget(t), boolByte(on))
	if _, err := c.request(ctx, targetFlag(t), cmdOnOff, body); err != nil {
		return fmt.Errorf("set on/off: %w", err)
	}
	c.apply(t, func(l *Light) { l.On = on })
	return nil
}

// SetLuminance sets brightness (0-100) over transition tenths of a second.
// A non-zero luminance also switches the target on.
func (c *Client) SetLuminance(ctx context.Context, t Target, lum uint8, transition uint16) error {
	body := append(encodeTarget(t), lum, 0, 0)
	binary.LittleEndian.PutUint16(body[targetSize+1:], transition)
	if _, err := c.request(ctx, targetFlag(t), cmdLuminance, body); err != nil {
		return fmt.Errorf("set luminance: %w", err)
	}
	c.apply(t, func(l *Light) {
		l.Lum = int(lum)
		if lum > 0 {
			l.On = true
		}
	})
	return nil
}

// SetTemperature sets the colour temperature in Kelvin over transition
// tenths of a second.
func (c *Client) SetTemperature(ctx context.Context, t Target, temp, transition uint16) error {
	body := append(encodeTarget(t), 0, 0, 0, 0)
	binary.LittleEndian.PutUint16(body[targetSize:], temp)
	binary.LittleEndian.PutUint16(body[targetSize+2:], transition)
	if _, err := c.request(ctx, targetFlag(t), cmdTemperature, body); err != nil {
		return fmt.Errorf("set temperature: %w", err)
	}
	c.apply(t, func(l *Light) { l.Temp = int(temp) })
	return nil
}

// SetRGB sets the colour over transition tenths of a second.
func (c *Client) SetRGB(ctx context.Context, t Target, r, g, b uint8, transition uint16) error {
	body := append(encodeTarget(t), r, g, b, 0xFF, 0, 0)
	binary.LittleEndian.PutUint16(body[targetSize+4:], transition)
	if _, err := c.request(ctx, targetFlag(t), cmdColour, body); err != nil {
		return fmt.Errorf("set rgb: %w", err)
	}
	c.apply(t, func(l *Light) { l.Red, l.Green, l.Blue = int(r), int(g), int(b) })
	return nil
}

// apply mirrors an accepted mutation into the cache: the light itself, or
// every member of the group.
func (c *Client) apply(t Target, mutate func(*Light)) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	if !t.group {
		if l, ok := c.lights[t.addr]; ok {
			mutate(l)
		}
		c.deriveGroupsLocked()
		return
	}

	idx := uint16(t.addr) //nolint:gosec // group targets hold a uint16 index
	for _, l := range c.lights {
		if slices.Contains(l.Groups, idx) {
			mutate(l)
		}
	}
	c.deriveGroupsLocked()
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

func (c *Client) logInfo(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()
	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (c *Client) logError(msg string, err error) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()
	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
