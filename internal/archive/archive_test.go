package archive

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/dzerrenner/mqtt-lightify/internal/infrastructure/config"
	"github.com/dzerrenner/mqtt-lightify/internal/infrastructure/mqtt"
)

const (
	couchTopic = "hm/status/HmIP-eTRV-2 000A18A9A3C01B:1/ACTUAL_TEMPERATURE"
	lampTopic  = "hm/status/HMIP-PS 000218A995F0CB:3/STATE"
)

var testRooms = map[string]string{
	couchTopic: "Wohnzimmer Couch",
	lampTopic:  "Stehlampe Fenster",
}

// =============================================================================
// Mocks
// =============================================================================

type mockTransport struct {
	mu           sync.Mutex
	onConnect    func()
	handlers     map[string]mqtt.MessageHandler
	unsubscribed []string
	closed       int
	subscribeErr error
}

func newMockTransport() *mockTransport {
	return &mockTransport{handlers: make(map[string]mqtt.MessageHandler)}
}

func (m *mockTransport) SetOnConnect(callback func()) { m.onConnect = callback }

func (m *mockTransport) Connect() error {
	if m.onConnect != nil {
		m.onConnect()
	}
	return nil
}

func (m *mockTransport) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribeErr != nil {
		return m.subscribeErr
	}
	m.handlers[topic] = handler
	return nil
}

func (m *mockTransport) Unsubscribe(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unsubscribed = append(m.unsubscribed, topic)
	delete(m.handlers, topic)
	return nil
}

func (m *mockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

func (m *mockTransport) SimulateMessage(topic string, payload []byte) {
	m.mu.Lock()
	var matched []mqtt.MessageHandler
	for filter, h := range m.handlers {
		if mqtt.Match(filter, topic) {
			matched = append(matched, h)
		}
	}
	m.mu.Unlock()
	for _, h := range matched {
		_ = h(topic, payload)
	}
}

type memorySink struct {
	mu       sync.Mutex
	docs     []Document
	storeErr error
	closed   int
}

func (s *memorySink) Store(_ context.Context, doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.storeErr != nil {
		return s.storeErr
	}
	s.docs = append(s.docs, doc)
	return nil
}

func (s *memorySink) Close() error {
	s.closed++
	return nil
}

type fakeIndexer struct {
	index  string
	doc    any
	err    error
	closed bool
}

func (f *fakeIndexer) Index(_ context.Context, index string, doc any) error {
	f.index, f.doc = index, doc
	return f.err
}

func (f *fakeIndexer) DailyIndex(t time.Time) string {
	return "hm-" + t.UTC().Format(time.DateOnly)
}

func (f *fakeIndexer) Close() error {
	f.closed = true
	return nil
}

type fakeWriter struct {
	room, topic, data string
	value             any
	ts                time.Time
	closed            bool
}

func (f *fakeWriter) WriteSensorReading(room, topic string, value any, data string, ts time.Time) {
	f.room, f.topic, f.value, f.data, f.ts = room, topic, value, data, ts
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

// =============================================================================
// Filter
// =============================================================================

func TestFilterMatch(t *testing.T) {
	f := NewFilter(testRooms, "hm")
	now := time.Date(2026, 10, 16, 23, 30, 0, 0, time.FixedZone("CEST", 2*3600))

	tests := []struct {
		name    string
		topic   string
		payload string
		wantOK  bool
		wantErr error
		wantVal any
	}{
		{"changed reading", couchTopic, `{"val":21.5,"hm":{"change":true}}`, true, nil, 21.5},
		{"unchanged reading", couchTopic, `{"val":21.5,"hm":{"change":false}}`, false, nil, nil},
		{"missing change flag", couchTopic, `{"val":21.5,"hm":{}}`, false, nil, nil},
		{"missing source object", couchTopic, `{"val":21.5}`, false, nil, nil},
		{"numeric change flag", couchTopic, `{"val":21.5,"hm":{"change":1}}`, true, nil, 21.5},
		{"boolean value", lampTopic, `{"val":true,"hm":{"change":true}}`, true, nil, true},
		{"unmapped topic", "hm/status/other/STATE", `{"val":1,"hm":{"change":true}}`, false, nil, nil},
		{"unmapped non-json", "hm/status/other/STATE", `not json`, false, nil, nil},
		{"mapped non-json", couchTopic, `not json`, false, ErrInvalidPayload, nil},
		{"mapped json array", couchTopic, `[1,2]`, false, ErrInvalidPayload, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, ok, err := f.Match(tt.topic, []byte(tt.payload), now)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Match() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Match() error = %v", err)
			}
			if ok != tt.wantOK {
				t.Fatalf("Match() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if doc.Room != testRooms[tt.topic] || doc.Topic != tt.topic || doc.Data != tt.payload {
				t.Errorf("doc = %+v", doc)
			}
			if doc.Val != tt.wantVal {
				t.Errorf("Val = %v, want %v", doc.Val, tt.wantVal)
			}
			if doc.Timestamp.Location() != time.UTC || !doc.Timestamp.Equal(now) {
				t.Errorf("Timestamp = %v, want %v in UTC", doc.Timestamp, now)
			}
		})
	}
}

func TestFilterCustomSourceKey(t *testing.T) {
	f := NewFilter(testRooms, "ccu")

	if _, ok, _ := f.Match(couchTopic, []byte(`{"val":1,"hm":{"change":true}}`), time.Now()); ok {
		t.Error("matched on the wrong source key")
	}
	if _, ok, _ := f.Match(couchTopic, []byte(`{"val":1,"ccu":{"change":true}}`), time.Now()); !ok {
		t.Error("did not match on the configured source key")
	}
}

func TestDocumentJSON(t *testing.T) {
	doc := Document{
		Room:      "Küche",
		Topic:     couchTopic,
		Data:      `{"val":20}`,
		Val:       float64(20),
		Timestamp: time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC),
	}
	b, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	for _, key := range []string{"room", "topic", "data", "val", "timestamp"} {
		if _, ok := got[key]; !ok {
			t.Errorf("document missing %q: %s", key, b)
		}
	}
	if got["timestamp"] != "2026-10-16T08:00:00Z" {
		t.Errorf("timestamp = %v", got["timestamp"])
	}
}

// =============================================================================
// Sinks
// =============================================================================

func TestElasticsearchSink(t *testing.T) {
	idx := &fakeIndexer{}
	sink := NewElasticsearchSink(idx)
	doc := Document{Room: "Esszimmer", Topic: couchTopic, Timestamp: time.Date(2026, 10, 16, 23, 59, 0, 0, time.UTC)}

	if err := sink.Store(context.Background(), doc); err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if idx.index != "hm-2026-10-16" {
		t.Errorf("index = %q", idx.index)
	}
	if stored, ok := idx.doc.(Document); !ok || stored.Room != "Esszimmer" {
		t.Errorf("doc = %#v", idx.doc)
	}

	idx.err = errors.New("cluster red")
	if err := sink.Store(context.Background(), doc); !errors.Is(err, ErrStoreFailed) {
		t.Errorf("Store() error = %v, want ErrStoreFailed", err)
	}

	if err := sink.Close(); err != nil || !idx.closed {
		t.Errorf("Close() = %v, closed %v", err, idx.closed)
	}
}

func TestInfluxSink(t *testing.T) {
	w := &fakeWriter{}
	sink := NewInfluxSink(w)
	ts := time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)

	err := sink.Store(context.Background(), Document{Room: "Küche", Topic: couchTopic, Data: `{"val":19}`, Val: 19.0, Timestamp: ts})
	if err != nil {
		t.Fatalf("Store() error = %v", err)
	}
	if w.room != "Küche" || w.topic != couchTopic || w.value != 19.0 || w.data != `{"val":19}` || !w.ts.Equal(ts) {
		t.Errorf("written = %+v", w)
	}
	if err := sink.Close(); err != nil || !w.closed {
		t.Errorf("Close() = %v, closed %v", err, w.closed)
	}
}

func TestOpenSink_UnknownBackend(t *testing.T) {
	if _, err := OpenSink(config.ArchiveConfig{Backend: "mongodb"}, nil); err == nil {
		t.Error("OpenSink() error = nil for unknown backend")
	}
}

// =============================================================================
// Archiver
// =============================================================================

func newTestArchiver(t *testing.T) (*Archiver, *mockTransport, *memorySink, *Metrics) {
	t.Helper()
	transport := newMockTransport()
	sink := &memorySink{}
	metrics := NewMetrics(prometheus.NewRegistry())

	a, err := New(Options{
		Config:    config.ArchiveConfig{Subscribe: "hm/status/#", SourceKey: "hm", Topics: testRooms},
		Transport: transport,
		Sink:      sink,
		Metrics:   metrics,
		Now:       func() time.Time { return time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(a.Stop)
	return a, transport, sink, metrics
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Options{Sink: &memorySink{}, Config: config.ArchiveConfig{Subscribe: "a/#"}}); err == nil {
		t.Error("New() without transport error = nil")
	}
	if _, err := New(Options{Transport: newMockTransport(), Config: config.ArchiveConfig{Subscribe: "a/#"}}); err == nil {
		t.Error("New() without sink error = nil")
	}
	if _, err := New(Options{Transport: newMockTransport(), Sink: &memorySink{}, Config: config.ArchiveConfig{Subscribe: "a/#/b"}}); err == nil {
		t.Error("New() with invalid filter error = nil")
	}
}

func TestArchiver_StoresChangedReadings(t *testing.T) {
	a, transport, sink, metrics := newTestArchiver(t)
	if err := a.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	transport.SimulateMessage(couchTopic, []byte(`{"val":21.5,"hm":{"change":true}}`))
	transport.SimulateMessage(couchTopic, []byte(`{"val":21.5,"hm":{"change":false}}`))
	transport.SimulateMessage("hm/status/unmapped/STATE", []byte(`{"val":1,"hm":{"change":true}}`))
	transport.SimulateMessage(lampTopic, []byte(`garbage`))
	transport.SimulateMessage("other/status/x", []byte(`{"val":1,"hm":{"change":true}}`))

	if len(sink.docs) != 1 {
		t.Fatalf("stored %d documents, want 1", len(sink.docs))
	}
	if sink.docs[0].Room != "Wohnzimmer Couch" || sink.docs[0].Val != 21.5 {
		t.Errorf("stored = %+v", sink.docs[0])
	}

	for result, want := range map[string]float64{resultStored: 1, resultFiltered: 2, resultInvalid: 1} {
		if got := testutil.ToFloat64(metrics.messages.WithLabelValues(result)); got != want {
			t.Errorf("archive_messages_total{result=%q} = %v, want %v", result, got, want)
		}
	}
}

func TestArchiver_StoreFailureKeepsRunning(t *testing.T) {
	a, transport, sink, metrics := newTestArchiver(t)
	if err := a.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	sink.storeErr = ErrStoreFailed
	transport.SimulateMessage(couchTopic, []byte(`{"val":20,"hm":{"change":true}}`))
	sink.storeErr = nil
	transport.SimulateMessage(couchTopic, []byte(`{"val":21,"hm":{"change":true}}`))

	if len(sink.docs) != 1 || sink.docs[0].Val != float64(21) {
		t.Errorf("stored = %+v", sink.docs)
	}
	if got := testutil.ToFloat64(metrics.messages.WithLabelValues(resultFailed)); got != 1 {
		t.Errorf("failed = %v, want 1", got)
	}
}

func TestArchiver_ResubscribesOnReconnect(t *testing.T) {
	a, transport, sink, _ := newTestArchiver(t)
	if err := a.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Broker restart: subscriptions are gone until the connect callback runs.
	transport.mu.Lock()
	clear(transport.handlers)
	transport.mu.Unlock()
	transport.SimulateMessage(couchTopic, []byte(`{"val":1,"hm":{"change":true}}`))

	if err := transport.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	transport.SimulateMessage(couchTopic, []byte(`{"val":2,"hm":{"change":true}}`))

	if len(sink.docs) != 1 || sink.docs[0].Val != float64(2) {
		t.Errorf("stored = %+v", sink.docs)
	}
}

func TestArchiver_RunStopsOnCancel(t *testing.T) {
	a, transport, sink, _ := newTestArchiver(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	a.Stop()

	if transport.closed != 1 || sink.closed != 1 {
		t.Errorf("closed transport %d sink %d, want 1 each", transport.closed, sink.closed)
	}
	if len(transport.unsubscribed) != 1 || transport.unsubscribed[0] != "hm/status/#" {
		t.Errorf("unsubscribed = %v", transport.unsubscribed)
	}
}
