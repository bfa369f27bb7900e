package bridge

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dzerrenner/mqtt-lightify/internal/history"
	"github.com/dzerrenner/mqtt-lightify/internal/infrastructure/config"
	"github.com/dzerrenner/mqtt-lightify/internal/infrastructure/mqtt"
	"github.com/dzerrenner/mqtt-lightify/internal/lightify"
)

// Controller operation constants.
const (
	// syncTimeout bounds the registry refresh after a connect.
	syncTimeout = 30 * time.Second

	// messageTimeout bounds the handling of one inbound message.
	messageTimeout = 30 * time.Second

	// handlerQoS is used for every publish made from a message handler.
	// Handlers run on the transport's delivery goroutine and must not wait
	// for acknowledgements.
	handlerQoS byte = 0
)

// Transport is the MQTT collaborator. *mqtt.Client satisfies it.
type Transport interface {
	// SetWill registers the last will. Must be called before Connect.
	SetWill(topic string, payload []byte, qos byte, retained bool) error

	// SetOnConnect registers the callback run on every (re)connect.
	SetOnConnect(callback func())

	// SetOnDisconnect registers the callback run when the connection is lost.
	SetOnDisconnect(callback func(err error))

	// Connect establishes the first connection. Reconnects are the
	// transport's responsibility.
	Connect() error

	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error

	// Close publishes the last will and disconnects.
	Close() error
}

var _ Transport = (*mqtt.Client)(nil)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Options holds the collaborators and settings for a Controller.
type Options struct {
	// Config is the lightify section of config.yaml.
	Config config.LightifyConfig

	// QoS is used for the subscription and connection-state publishes.
	QoS byte

	// Transport is the MQTT client.
	Transport Transport

	// Gateway is the Lightify gateway client.
	Gateway Gateway

	// History is optional. Without it set commands are not recorded and
	// the history command is unknown.
	History history.Repository

	// Metrics is optional.
	Metrics *Metrics

	// Logger is optional.
	Logger Logger

	// Now overrides the clock used for status timestamps.
	Now func() time.Time
}

// channelHandler handles one routed message.
type channelHandler func(ctx context.Context, addr TopicAddress, payload []byte) error

// Status is a point-in-time view of the controller for health reporting.
type Status struct {
	Phase           Phase
	ConnectionState ConnectionState
	Devices         map[Kind]int
}

// Controller bridges the MQTT topic surface to the Lightify gateway.
//
// Lifecycle:
//
//	Disconnected -> Connecting -> Syncing -> Ready
//
// On every transport connect the controller publishes connection state 1,
// subscribes to <root>/#, refreshes the registry, installs the channel
// handlers, publishes connection state 2 and triggers a get for every
// light. A transport disconnect returns it to Disconnected.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Messages are handled one at a time in delivery order.
type Controller struct {
	router      Router
	bridge      string
	transitions config.TransitionsConfig
	qos         byte

	transport Transport
	gw        Gateway
	registry  *Registry
	history   history.Repository
	metrics   *Metrics
	now       func() time.Time
	commands  map[string]commandHandler

	mu       sync.Mutex
	phase    Phase
	state    ConnectionState
	sessions int
	handlers map[Channel]channelHandler

	ctx       context.Context
	cancel    context.CancelFunc
	fatal     chan struct{}
	fatalOnce sync.Once
	fatalErr  error
	stopOnce  sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewController creates a controller. Call Start or Run to connect.
func NewController(opts Options) (*Controller, error) {
	if opts.Transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if opts.Gateway == nil {
		return nil, fmt.Errorf("gateway is required")
	}

	topic := opts.Config.Topic
	if topic == "" {
		topic = config.DefaultTopic
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Controller{
		router:      NewRouter(topic),
		bridge:      opts.Config.Host,
		transitions: opts.Config.Transitions,
		qos:         opts.QoS,
		transport:   opts.Transport,
		gw:          opts.Gateway,
		registry:    NewRegistry(opts.Gateway),
		history:     opts.History,
		metrics:     opts.Metrics,
		now:         now,
		ctx:         ctx,
		cancel:      cancel,
		fatal:       make(chan struct{}),
		logger:      opts.Logger,
	}
	c.commands = c.buildCommands()

	return c, nil
}

// Start registers the last will and connection callbacks and connects the
// transport. It returns once the first connection is acknowledged; the
// session then runs on the transport's goroutines until Stop.
//
// Returns:
//   - error: If the will cannot be registered or the connection fails
func (c *Controller) Start() error {
	if err := c.transport.SetWill(c.router.ConnectedTopic(), StateDisconnected.Payload(), c.qos, true); err != nil {
		return fmt.Errorf("registering last will: %w", err)
	}
	c.transport.SetOnConnect(c.HandleConnect)
	c.transport.SetOnDisconnect(c.HandleDisconnect)

	c.logInfo("starting lightify bridge", "topic", c.router.Root(), "gateway", c.bridge)

	if err := c.transport.Connect(); err != nil {
		return fmt.Errorf("connecting transport: %w", err)
	}
	return nil
}

// Run starts the controller and blocks until ctx is cancelled or the
// session fails, then stops it.
//
// Returns:
//   - error: nil after cancellation, the session error after a failure, or
//     the Start error
func (c *Controller) Run(ctx context.Context) error {
	if err := c.Start(); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		c.logInfo("shutdown requested")
		c.Stop()
		return nil
	case <-c.fatal:
		c.Stop()
		return c.Err()
	}
}

// Stop unsubscribes, closes the transport (publishing connection state 0)
// and cancels in-flight gateway requests. Safe to call more than once.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		c.cancel()

		if err := c.transport.Unsubscribe(c.router.Filter()); err != nil {
			c.logDebug("unsubscribe on stop failed", "error", err)
		}

		c.mu.Lock()
		c.phase = PhaseDisconnected
		c.state = StateDisconnected
		c.handlers = nil
		c.mu.Unlock()
		c.metrics.state(StateDisconnected)

		if err := c.transport.Close(); err != nil {
			c.logError("closing transport", "error", err)
		}
		c.logInfo("lightify bridge stopped")
	})
}

// Done is closed when the session fails with a fatal error.
func (c *Controller) Done() <-chan struct{} { return c.fatal }

// Err returns the fatal session error, if any.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fatalErr
}

// ConnectionState returns the last connection state set by the controller.
func (c *Controller) ConnectionState() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns the current phase, connection state and device counts.
func (c *Controller) Status() Status {
	c.mu.Lock()
	phase, state := c.phase, c.state
	c.mu.Unlock()
	return Status{Phase: phase, ConnectionState: state, Devices: c.registry.Counts()}
}

// SetLogger sets the logger for the controller.
func (c *Controller) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	defer c.loggerMu.Unlock()
	c.logger = logger
}

// HandleConnect runs the connect sequence. It is registered as the
// transport's connect callback and runs once per (re)connect.
func (c *Controller) HandleConnect() {
	if err := c.sync(); err != nil {
		if errors.Is(err, mqtt.ErrNotConnected) {
			// Lost again mid-sync; the transport reconnects and calls us again.
			c.logWarn("connection lost during sync", "error", err)
			return
		}
		c.fail(err)
	}
}

func (c *Controller) sync() error {
	c.mu.Lock()
	resuming := c.sessions > 0
	c.sessions++
	c.phase = PhaseConnecting
	c.handlers = nil
	c.mu.Unlock()

	if resuming {
		if err := c.setConnectionState(StateDisconnected); err != nil {
			c.logWarn("publishing connection state", "error", err)
		}
	}
	if err := c.setConnectionState(StateConnecting); err != nil {
		c.logWarn("publishing connection state", "error", err)
	}

	filter := c.router.Filter()
	if err := c.transport.Subscribe(filter, c.qos, c.handleMessage); err != nil {
		return fmt.Errorf("subscribing to %s: %w", filter, err)
	}
	c.logInfo("subscribed", "topic", filter)

	c.mu.Lock()
	c.phase = PhaseSyncing
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(c.ctx, syncTimeout)
	defer cancel()
	if err := c.refresh(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	c.handlers = map[Channel]channelHandler{
		ChannelGet:     c.handleGet,
		ChannelSet:     c.handleSet,
		ChannelCommand: c.handleCommand,
	}
	c.phase = PhaseReady
	c.mu.Unlock()

	if err := c.setConnectionState(StateReady); err != nil {
		c.logWarn("publishing connection state", "error", err)
	}

	c.logDevices()

	for _, d := range c.registry.ListByKind(KindLight) {
		if err := c.transport.Publish(c.router.GetTopic(d.ID()), nil, handlerQoS, false); err != nil {
			c.logWarn("publishing initial get", "device", d.ID(), "error", err)
		}
	}
	return nil
}

// HandleDisconnect is registered as the transport's connection-lost callback.
// Connection state drops to 0 locally; nothing can be published.
func (c *Controller) HandleDisconnect(err error) {
	c.mu.Lock()
	c.phase = PhaseDisconnected
	c.state = StateDisconnected
	c.handlers = nil
	c.mu.Unlock()
	c.metrics.state(StateDisconnected)

	c.logWarn("transport disconnected", "error", err)
}

// setConnectionState records and publishes s (retained).
func (c *Controller) setConnectionState(s ConnectionState) error {
	if err := s.Validate(); err != nil {
		c.logError("invalid connection state", "error", err)
		return err
	}

	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.metrics.state(s)

	if err := c.transport.Publish(c.router.ConnectedTopic(), s.Payload(), c.qos, true); err != nil {
		return fmt.Errorf("publishing connection state %d: %w", s, err)
	}
	return nil
}

func (c *Controller) refresh(ctx context.Context) error {
	if err := c.registry.Refresh(ctx); err != nil {
		return err
	}
	c.metrics.deviceCounts(c.registry.Counts())
	return nil
}

// fail records the first fatal error and releases Run.
func (c *Controller) fail(err error) {
	c.fatalOnce.Do(func() {
		c.mu.Lock()
		c.fatalErr = err
		c.mu.Unlock()
		close(c.fatal)
	})
	c.logError("lightify session failed", "error", err)
}

// handleMessage is the single subscription handler for <root>/#.
func (c *Controller) handleMessage(topic string, payload []byte) error {
	addr, err := c.router.Parse(topic)
	if err != nil {
		c.logDebug("ignoring topic", "topic", topic)
		return nil
	}
	c.metrics.message(addr.Channel)

	c.mu.Lock()
	handler := c.handlers[addr.Channel]
	c.mu.Unlock()
	if handler == nil {
		c.report(fmt.Errorf("%w: dropping %s", ErrNotReady, topic))
		return nil
	}

	ctx, cancel := context.WithTimeout(c.ctx, messageTimeout)
	defer cancel()

	if err := handler(ctx, addr, payload); err != nil {
		c.report(err, "topic", topic)
	}
	return nil
}

// handleGet refreshes the registry and publishes every datapoint of the
// addressed device. The datapoint segment and payload are ignored.
func (c *Controller) handleGet(ctx context.Context, addr TopicAddress, _ []byte) error {
	if err := c.refresh(ctx); err != nil {
		c.fail(err)
		return err
	}

	d, err := c.registry.Get(addr.DeviceID)
	if err != nil {
		return err
	}
	return c.publishStatus(d)
}

func (c *Controller) publishStatus(d Device) error {
	now := c.now()
	var errs []error
	for _, dp := range d.Datapoints() {
		payload, err := EncodeStatus(d, dp, c.bridge, now)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := c.transport.Publish(c.router.StatusTopic(d.ID(), dp.Name), payload, handlerQoS, false); err != nil {
			errs = append(errs, fmt.Errorf("publishing %s: %w", dp.Name, err))
		}
	}
	return errors.Join(errs...)
}

// setFeatures maps writable datapoints to the capability they need.
var setFeatures = map[string]lightify.Feature{
	"STATE": lightify.FeatureOnOff,
	"RGB":   lightify.FeatureRGB,
	"LUM":   lightify.FeatureLuminance,
	"TEMP":  lightify.FeatureTemperature,
}

// handleSet decodes and applies one datapoint write, records it, and then
// republishes the device status whatever the outcome. An unknown device
// drops the message without a republish.
func (c *Controller) handleSet(ctx context.Context, addr TopicAddress, payload []byte) error {
	d, err := c.registry.Get(addr.DeviceID)
	if err != nil {
		return err
	}

	datapoint := strings.ToUpper(addr.Datapoint)
	entry := history.Entry{
		DeviceID:  strconv.FormatUint(addr.DeviceID, 10),
		Datapoint: datapoint,
		Payload:   strings.ToValidUTF8(string(payload), ""),
		CreatedAt: c.now(),
	}

	if err := c.applySet(ctx, d, datapoint, entry.Payload, &entry); err != nil {
		c.report(err, "device", addr.DeviceID, "datapoint", datapoint)
	}
	c.recordHistory(ctx, entry)

	return c.handleGet(ctx, TopicAddress{Channel: ChannelGet, DeviceID: addr.DeviceID}, nil)
}

// applySet performs the mutation for one datapoint and fills in the value
// and outcome of entry.
func (c *Controller) applySet(ctx context.Context, d Device, datapoint, raw string, entry *history.Entry) error {
	feature, ok := setFeatures[datapoint]
	target, hasTarget := d.Target()
	if !ok || !hasTarget {
		entry.Outcome = history.OutcomeUnsupported
		return fmt.Errorf("%w: %s", ErrUnknownDatapoint, datapoint)
	}
	if !d.Supports(feature) {
		c.metrics.recordError(errKindUnknownCapability)
		c.logWarn("device does not support datapoint",
			"device", d.ID(), "datapoint", datapoint, "feature", string(feature))
	}

	var err error
	switch datapoint {
	case "STATE":
		on := DecodeOnOff(raw)
		entry.Value = strconv.FormatBool(on)
		err = c.gw.SetOnOff(ctx, target, on)

	case "RGB":
		r, g, b, decodeErr := DecodeRGB(raw)
		if decodeErr != nil {
			entry.Outcome = history.OutcomeInvalidFormat
			return decodeErr
		}
		entry.Value = EncodeRGB(r, g, b)
		err = c.gw.SetRGB(ctx, target, r, g, b, transition(c.transitions.RGB))

	case "LUM":
		lum, clamped, decodeErr := DecodeLuminance(raw)
		if decodeErr != nil {
			entry.Outcome = history.OutcomeParseError
			return decodeErr
		}
		if clamped {
			c.warnClamped(entry, d, raw, lum)
		}
		entry.Value = strconv.Itoa(lum)
		err = c.gw.SetLuminance(ctx, target, uint8(lum), transition(c.transitions.Lum)) //nolint:gosec // clamped to 0-100

	case "TEMP":
		minTemp, maxTemp := d.TempRange()
		temp, clamped, decodeErr := DecodeTemperature(raw, minTemp, maxTemp)
		if decodeErr != nil {
			entry.Outcome = history.OutcomeParseError
			return decodeErr
		}
		if clamped {
			c.warnClamped(entry, d, raw, temp)
		}
		entry.Value = strconv.Itoa(temp)
		err = c.gw.SetTemperature(ctx, target, uint16(temp), transition(c.transitions.Temp)) //nolint:gosec // clamped to the device range
	}

	if err != nil {
		entry.Outcome = history.OutcomeFailed
		return fmt.Errorf("%w: %s on device %d: %w", ErrMutationFailed, datapoint, d.ID(), err)
	}
	c.metrics.mutation(datapoint)
	if entry.Outcome == "" {
		entry.Outcome = history.OutcomeApplied
	}
	return nil
}

func (c *Controller) warnClamped(entry *history.Entry, d Device, raw string, applied int) {
	entry.Outcome = history.OutcomeClamped
	c.metrics.recordError(errKindRangeClamped)
	c.logWarn("value out of range, clamping",
		"device", d.ID(), "datapoint", entry.Datapoint, "requested", raw, "applied", applied)
}

// transition converts a configured transition time to the wire field.
func transition(tenths int) uint16 {
	if tenths <= 0 {
		return 0
	}
	if tenths > 0xFFFF {
		return 0xFFFF
	}
	return uint16(tenths)
}

func (c *Controller) recordHistory(ctx context.Context, entry history.Entry) {
	if c.history == nil {
		return
	}
	if err := c.history.Record(ctx, entry); err != nil {
		c.logError("recording command history", "error", err, "device", entry.DeviceID)
	}
}

// report logs a per-message error at the level its kind calls for and
// counts it.
func (c *Controller) report(err error, keysAndValues ...any) {
	kind, warn := classify(err)
	c.metrics.recordError(kind)

	kv := append([]any{"error", err, "kind", kind}, keysAndValues...)
	if warn {
		c.logWarn("message dropped", kv...)
		return
	}
	c.logError("message failed", kv...)
}

// classify maps an error to its metrics kind and whether it is a warning.
func classify(err error) (kind string, warn bool) {
	switch {
	case errors.Is(err, ErrNotFound):
		return errKindNotFound, true
	case errors.Is(err, ErrNotReady):
		return errKindNotReady, true
	case errors.Is(err, ErrUnknownDatapoint):
		return errKindUnknownDatapoint, true
	case errors.Is(err, ErrInvalidFormat):
		return errKindInvalidFormat, false
	case errors.Is(err, ErrParse):
		return errKindParse, false
	case errors.Is(err, ErrUnknownCommand), errors.Is(err, ErrUnknownAccessor):
		return errKindUnknownCommand, false
	case errors.Is(err, ErrMutationFailed):
		return errKindMutation, false
	case errors.Is(err, ErrRegistryUnreachable):
		return errKindRegistry, false
	default:
		return errKindOther, false
	}
}

// logDevices logs the registry contents after a sync.
func (c *Controller) logDevices() {
	for _, kind := range []Kind{KindLight, KindGroup, KindScene} {
		devices := c.registry.ListByKind(kind)
		c.logInfo("available devices", "kind", kind.String(), "count", len(devices))
		for _, d := range devices {
			c.logDebug("device", "kind", kind.String(), "id", d.ID(), "name", d.Name(), "reachable", d.Reachable())
		}
	}
}

func (c *Controller) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

func (c *Controller) logDebug(msg string, keysAndValues ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (c *Controller) logInfo(msg string, keysAndValues ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (c *Controller) logWarn(msg string, keysAndValues ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (c *Controller) logError(msg string, keysAndValues ...any) {
	if logger := c.getLogger(); logger != nil {
		logger.Error(msg, keysAndValues...)
	}
}
