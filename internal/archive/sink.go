package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/dzerrenner/mqtt-lightify/internal/infrastructure/config"
	"github.com/dzerrenner/mqtt-lightify/internal/infrastructure/elasticsearch"
	"github.com/dzerrenner/mqtt-lightify/internal/infrastructure/influxdb"
)

// Sink stores archived documents.
type Sink interface {
	Store(ctx context.Context, doc Document) error
	Close() error
}

// Indexer is the Elasticsearch operation the ElasticsearchSink needs.
// *elasticsearch.Client satisfies it.
type Indexer interface {
	Index(ctx context.Context, index string, doc any) error
	DailyIndex(t time.Time) string
	Close() error
}

var _ Indexer = (*elasticsearch.Client)(nil)

// ElasticsearchSink indexes each document into a daily index.
type ElasticsearchSink struct {
	client Indexer
}

// NewElasticsearchSink creates a sink on an Elasticsearch client.
func NewElasticsearchSink(client Indexer) *ElasticsearchSink {
	return &ElasticsearchSink{client: client}
}

// Store indexes doc into the index for its timestamp's day.
func (s *ElasticsearchSink) Store(ctx context.Context, doc Document) error {
	if err := s.client.Index(ctx, s.client.DailyIndex(doc.Timestamp), doc); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreFailed, err)
	}
	return nil
}

// HealthCheck pings the cluster when the client supports it.
func (s *ElasticsearchSink) HealthCheck(ctx context.Context) error {
	return healthCheck(ctx, s.client)
}

// Close closes the underlying client.
func (s *ElasticsearchSink) Close() error {
	return s.client.Close()
}

// PointWriter is the InfluxDB operation the InfluxSink needs.
// *influxdb.Client satisfies it.
type PointWriter interface {
	WriteSensorReading(room, topic string, value any, data string, ts time.Time)
	Close() error
}

var _ PointWriter = (*influxdb.Client)(nil)

// InfluxSink writes each document as a sensor_readings point. Writes are
// batched by the client; failures arrive on its error callback.
type InfluxSink struct {
	client PointWriter
}

// NewInfluxSink creates a sink on an InfluxDB client.
func NewInfluxSink(client PointWriter) *InfluxSink {
	return &InfluxSink{client: client}
}

// Store queues doc for writing.
func (s *InfluxSink) Store(_ context.Context, doc Document) error {
	s.client.WriteSensorReading(doc.Room, doc.Topic, doc.Val, doc.Data, doc.Timestamp)
	return nil
}

// HealthCheck pings the server when the client supports it.
func (s *InfluxSink) HealthCheck(ctx context.Context) error {
	return healthCheck(ctx, s.client)
}

// Close flushes pending points and closes the client.
func (s *InfluxSink) Close() error {
	return s.client.Close()
}

func healthCheck(ctx context.Context, client any) error {
	if hc, ok := client.(interface{ HealthCheck(context.Context) error }); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

// OpenSink connects the backend named in cfg.Backend.
//
// Parameters:
//   - cfg: archive section of config.yaml
//   - onAsyncError: Receives asynchronous write failures (InfluxDB only), may be nil
//
// Returns:
//   - Sink: Connected sink
//   - error: Connection failure or unknown backend
func OpenSink(cfg config.ArchiveConfig, onAsyncError func(error)) (Sink, error) {
	switch cfg.Backend {
	case config.BackendElasticsearch:
		client, err := elasticsearch.Connect(cfg.Elasticsearch)
		if err != nil {
			return nil, err
		}
		return NewElasticsearchSink(client), nil

	case config.BackendInfluxDB:
		client, err := influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return nil, err
		}
		if onAsyncError != nil {
			client.SetOnError(onAsyncError)
		}
		return NewInfluxSink(client), nil

	default:
		return nil, fmt.Errorf("unknown archive backend %q", cfg.Backend)
	}
}
