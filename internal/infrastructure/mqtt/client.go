package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/dzerrenner/mqtt-lightify/internal/infrastructure/config"
)

const (
	connectTimeout   = 10 * time.Second
	operationTimeout = 5 * time.Second
	keepAlive        = 60 * time.Second

	// disconnectQuiesceMS is how long Disconnect lets in-flight work finish.
	disconnectQuiesceMS = 500

	maxQoS = 2
)

// Logger receives handler failures and reconnect notices.
// *logging.Logger and *slog.Logger satisfy it.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

type lastWill struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// MessageHandler processes one received message.
//
// Handlers run one at a time in arrival order on paho's router goroutine.
// A handler that publishes must do so at QoS 0, otherwise it waits on an
// acknowledgement that the blocked router cannot deliver. A returned error
// is logged and otherwise ignored.
type MessageHandler func(topic string, payload []byte) error

// Client is a paho client configured for clean sessions and ordered
// delivery.
//
// Reconnects are left to paho. Subscriptions belong to a single session:
// the broker forgets them on disconnect and so does the client, so callers
// subscribe from the OnConnect callback. All methods are safe for
// concurrent use.
type Client struct {
	opts   *pahomqtt.ClientOptions
	broker string

	// paho is created by Connect.
	paho pahomqtt.Client

	mu           sync.Mutex
	connected    bool
	will         *lastWill
	subscribed   map[string]byte
	onConnect    func()
	onDisconnect func(error)
	logger       Logger
}

// NewClient prepares a client for the configured broker. Nothing is sent
// until Connect; register the will and the callbacks first.
func NewClient(cfg config.MQTTConfig) *Client {
	c := &Client{
		broker:     cfg.BrokerURL(),
		subscribed: make(map[string]byte),
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(c.broker).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetOrderMatters(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second).
		SetConnectTimeout(connectTimeout).
		SetKeepAlive(keepAlive)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username).SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.sessionUp() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.sessionDown(err) })
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		if log := c.log(); log != nil {
			log.Warn("MQTT reconnecting", "broker", c.broker)
		}
	})

	c.opts = opts
	return c
}

// SetWill registers the message the broker publishes if the session ends
// without a clean disconnect. Close publishes it too, so subscribers see
// the same value either way. Must be called before Connect.
func (c *Client) SetWill(topic string, payload []byte, qos byte, retained bool) error {
	if err := ValidateTopic(topic); err != nil {
		return err
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}

	c.mu.Lock()
	c.will = &lastWill{topic: topic, payload: payload, qos: qos, retained: retained}
	c.mu.Unlock()
	c.opts.SetBinaryWill(topic, payload, qos, retained)
	return nil
}

// Connect opens the first session. OnConnect runs for it and again after
// every automatic reconnect.
//
// Returns:
//   - error: ErrConnectionFailed if the broker does not accept the session in time
func (c *Client) Connect() error {
	c.paho = pahomqtt.NewClient(c.opts)

	token := c.paho.Connect()
	if !token.WaitTimeout(connectTimeout) {
		// ConnectRetry keeps dialling in the background until told to stop.
		c.paho.Disconnect(0)
		return fmt.Errorf("%w: no answer from %s after %v", ErrConnectionFailed, c.broker, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnect handler runs on its own goroutine and may still be pending.
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	return nil
}

// Close publishes the will, then disconnects cleanly.
func (c *Client) Close() error {
	if c.paho == nil {
		return nil
	}

	c.mu.Lock()
	will := c.will
	c.mu.Unlock()

	if will != nil && c.IsConnected() {
		c.paho.Publish(will.topic, will.qos, will.retained, will.payload).WaitTimeout(operationTimeout)
	}
	c.paho.Disconnect(disconnectQuiesceMS)

	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	return nil
}

// HealthCheck reports ErrNotConnected while no session is up.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports whether a session is currently up.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	connected := c.connected
	c.mu.Unlock()
	return connected && c.paho != nil && c.paho.IsConnected()
}

// SetOnConnect sets the callback run at the start of every session.
func (c *Client) SetOnConnect(callback func()) {
	c.mu.Lock()
	c.onConnect = callback
	c.mu.Unlock()
}

// SetOnDisconnect sets the callback run when a session is lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.mu.Lock()
	c.onDisconnect = callback
	c.mu.Unlock()
}

// SetLogger sets the logger for handler failures. Without one they are
// dropped silently.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) log() Logger {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logger
}

func (c *Client) sessionUp() {
	c.mu.Lock()
	c.connected = true
	callback := c.onConnect
	c.mu.Unlock()

	if callback != nil {
		callback()
	}
}

func (c *Client) sessionDown(err error) {
	c.mu.Lock()
	c.connected = false
	clear(c.subscribed)
	callback := c.onDisconnect
	c.mu.Unlock()

	if callback != nil {
		callback(err)
	}
}
