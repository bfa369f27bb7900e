package archive

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dzerrenner/mqtt-lightify/internal/infrastructure/config"
	"github.com/dzerrenner/mqtt-lightify/internal/infrastructure/mqtt"
)

// storeTimeout bounds one sink write.
const storeTimeout = 10 * time.Second

// Transport is the MQTT collaborator. *mqtt.Client satisfies it.
type Transport interface {
	SetOnConnect(callback func())
	Connect() error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
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

// Options holds the collaborators and settings for an Archiver.
type Options struct {
	Config    config.ArchiveConfig
	QoS       byte
	Transport Transport
	Sink      Sink

	// Metrics is optional.
	Metrics *Metrics

	// Logger is optional.
	Logger Logger

	// Now overrides the clock used for document timestamps.
	Now func() time.Time
}

// Archiver subscribes to sensor status topics and stores changed readings.
//
// The subscription is issued from the connect callback so it is renewed on
// every reconnect. A failed store is logged and counted; it never stops the
// archiver.
type Archiver struct {
	subscribe string
	qos       byte
	filter    *Filter
	transport Transport
	sink      Sink
	metrics   *Metrics
	logger    Logger
	now       func() time.Time

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// New creates an archiver. Call Start or Run to connect.
func New(opts Options) (*Archiver, error) {
	if opts.Transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if opts.Sink == nil {
		return nil, fmt.Errorf("sink is required")
	}
	if err := mqtt.ValidateFilter(opts.Config.Subscribe); err != nil {
		return nil, fmt.Errorf("archive.subscribe: %w", err)
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Archiver{
		subscribe: opts.Config.Subscribe,
		qos:       opts.QoS,
		filter:    NewFilter(opts.Config.Topics, opts.Config.SourceKey),
		transport: opts.Transport,
		sink:      opts.Sink,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		now:       now,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start registers the connect callback and connects the transport.
func (a *Archiver) Start() error {
	a.transport.SetOnConnect(a.handleConnect)

	a.logInfo("starting sensor archive", "subscribe", a.subscribe, "topics", len(a.filter.rooms))
	if err := a.transport.Connect(); err != nil {
		return fmt.Errorf("connecting transport: %w", err)
	}
	return nil
}

// Run starts the archiver and blocks until ctx is cancelled.
func (a *Archiver) Run(ctx context.Context) error {
	if err := a.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	a.logInfo("shutdown requested")
	a.Stop()
	return nil
}

// Stop unsubscribes and closes the transport and the sink. Safe to call
// more than once.
func (a *Archiver) Stop() {
	a.stopOnce.Do(func() {
		a.cancel()
		if err := a.transport.Unsubscribe(a.subscribe); err != nil {
			a.logDebug("unsubscribe on stop failed", "error", err)
		}
		if err := a.transport.Close(); err != nil {
			a.logError("closing transport", "error", err)
		}
		if err := a.sink.Close(); err != nil {
			a.logError("closing sink", "error", err)
		}
		a.logInfo("sensor archive stopped")
	})
}

func (a *Archiver) handleConnect() {
	if err := a.transport.Subscribe(a.subscribe, a.qos, a.handleMessage); err != nil {
		a.logError("subscribing", "topic", a.subscribe, "error", err)
		return
	}
	a.logInfo("subscribed", "topic", a.subscribe)
}

// handleMessage filters one message and stores it when it passes.
func (a *Archiver) handleMessage(topic string, payload []byte) error {
	doc, ok, err := a.filter.Match(topic, payload, a.now())
	if err != nil {
		a.metrics.result(resultInvalid)
		a.logError("dropping message", "topic", topic, "error", err)
		return nil
	}
	if !ok {
		a.metrics.result(resultFiltered)
		return nil
	}

	ctx, cancel := context.WithTimeout(a.ctx, storeTimeout)
	defer cancel()

	if err := a.sink.Store(ctx, doc); err != nil {
		a.metrics.result(resultFailed)
		level := a.logError
		if errors.Is(err, context.Canceled) {
			level = a.logDebug
		}
		level("storing reading", "topic", topic, "room", doc.Room, "error", err)
		return nil
	}

	a.metrics.result(resultStored)
	a.logInfo("archived reading", "topic", topic, "room", doc.Room, "val", doc.Val)
	return nil
}

func (a *Archiver) logDebug(msg string, keysAndValues ...any) {
	if a.logger != nil {
		a.logger.Debug(msg, keysAndValues...)
	}
}

func (a *Archiver) logInfo(msg string, keysAndValues ...any) {
	if a.logger != nil {
		a.logger.Info(msg, keysAndValues...)
	}
}

func (a *Archiver) logError(msg string, keysAndValues ...any) {
	if a.logger != nil {
		a.logger.Error(msg, keysAndValues...)
	}
}
