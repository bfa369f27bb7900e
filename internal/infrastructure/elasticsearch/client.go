package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	es8 "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/dzerrenner/mqtt-lightify/internal/infrastructure/config"
)

// Default timeouts for Elasticsearch operations.
const (
	defaultConnectTimeout = 10 * time.Second
	defaultIndexTimeout   = 5 * time.Second
)

// Client wraps the official go-elasticsearch v8 client for the sensor archive.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	es  *es8.Client
	cfg config.ElasticsearchConfig
}

// Connect creates a client for the configured cluster and verifies it
// answers a ping.
//
// Parameters:
//   - cfg: archive.elasticsearch section of config.yaml
//
// Returns:
//   - *Client: Client ready for indexing
//   - error: ErrNotConfigured without addresses, or ErrConnectionFailed
func Connect(cfg config.ElasticsearchConfig) (*Client, error) {
	if len(cfg.Addresses) == 0 {
		return nil, ErrNotConfigured
	}

	es, err := es8.NewClient(es8.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c := &Client{es: es, cfg: cfg}

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()
	if err := c.HealthCheck(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return c, nil
}

// HealthCheck pings the cluster.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if the cluster answered without error
func (c *Client) HealthCheck(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping: %w", err)
	}
	defer drain(res)
	if res.IsError() {
		return fmt.Errorf("elasticsearch ping: %s", res.Status())
	}
	return nil
}

// Index stores doc (JSON-encoded) in index with a generated id.
//
// Parameters:
//   - ctx: Context for timeout/cancellation (defaultIndexTimeout applies on top)
//   - index: Target index, created on demand by the cluster
//   - doc: Any JSON-marshalable document
//
// Returns:
//   - error: ErrIndexFailed wrapping the transport or cluster error
func (c *Client) Index(ctx context.Context, index string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: encoding document: %w", ErrIndexFailed, err)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultIndexTimeout)
	defer cancel()

	res, err := c.es.Index(index, bytes.NewReader(body), c.es.Index.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIndexFailed, err)
	}
	defer drain(res)

	if res.IsError() {
		return fmt.Errorf("%w: %s: %s", ErrIndexFailed, index, res.Status())
	}
	return nil
}

// DailyIndex returns "<prefix>-YYYY-MM-DD" for t in UTC.
func (c *Client) DailyIndex(t time.Time) string {
	return DailyIndex(c.cfg.IndexPrefix, t)
}

// DailyIndex returns "<prefix>-YYYY-MM-DD" for t in UTC.
func DailyIndex(prefix string, t time.Time) string {
	return fmt.Sprintf("%s-%s", prefix, t.UTC().Format(time.DateOnly))
}

// Close satisfies the archive sink lifecycle. The HTTP transport keeps no session.
func (c *Client) Close() error {
	return nil
}

func drain(res *esapi.Response) {
	if res == nil || res.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, res.Body)
	res.Body.Close()
}
