//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/couchcryptid/fluview-etl/internal/adapter/delphi"
	kafkaadapter "github.com/couchcryptid/fluview-etl/internal/adapter/kafka"
	"github.com/couchcryptid/fluview-etl/internal/config"
	"github.com/couchcryptid/fluview-etl/internal/domain"
	"github.com/couchcryptid/fluview-etl/internal/observability"
	"github.com/couchcryptid/fluview-etl/internal/pipeline"
	"github.com/couchcryptid/fluview-etl/internal/store/memory"
)

const kafkaImage = "confluentinc/confluent-local:7.5.0"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node Kafka container and returns its broker
// address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()

	container, err := tckafka.Run(ctx, kafkaImage, tckafka.WithClusterID("fluview-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate kafka container: %v", err)
		}
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

// createTopic creates a single-partition topic via the cluster controller.
func createTopic(t *testing.T, broker, topic string) {
	t.Helper()

	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err, "dial broker")
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	controllerConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err, "dial controller")
	defer controllerConn.Close()

	require.NoError(t, controllerConn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

func newConsumer(t *testing.T, broker, topic string) *kafkago.Reader {
	t.Helper()

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       topic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

func uniqueTopic() string {
	return fmt.Sprintf("fluview-observations-%d", time.Now().UnixNano())
}

// publishedMessage holds a deserialized message read from the
// observation topic.
type publishedMessage struct {
	Observation domain.Observation
	Key         string
	Headers     map[string]string
}

// readPublished reads a single message from the consumer and deserializes it.
func readPublished(ctx context.Context, t *testing.T, consumer *kafkago.Reader) publishedMessage {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from observation topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var obs domain.Observation
	require.NoError(t, json.Unmarshal(msg.Value, &obs), "unmarshal observation message")

	return publishedMessage{Observation: obs, Key: string(msg.Key), Headers: headers}
}

// TestPublisherRoundTrip verifies the adapter layer: observations written
// through the Publisher come back off the topic with the expected key,
// headers, and body.
func TestPublisherRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	topic := uniqueTopic()
	createTopic(t, broker, topic)

	cfg := &config.Config{KafkaBrokers: []string{broker}, KafkaTopic: topic}
	publisher := kafkaadapter.NewPublisher(cfg, discardLogger())
	t.Cleanup(func() { _ = publisher.Close() })

	day, err := domain.ParseDay("2025-01-06")
	require.NoError(t, err)
	value := 1.8
	obs := []domain.Observation{
		{Date: day, Region: "MA", Value: &value, Metric: domain.MetricILI, SourceID: "ma-202502", Epiweek: 202502},
		{Date: day, Region: "VT", Value: nil, Metric: domain.MetricILI, SourceID: "vt-202502", Epiweek: 202502},
	}
	require.NoError(t, publisher.Publish(ctx, obs))

	consumer := newConsumer(t, broker, topic)

	first := readPublished(ctx, t, consumer)
	assert.Equal(t, "ma-202502", first.Key)
	assert.Equal(t, "ili", first.Headers["metric"])
	assert.Equal(t, "202502", first.Headers["epiweek"])
	assert.Equal(t, "MA", first.Observation.Region)
	assert.Equal(t, "2025-01-06", first.Observation.Date.String())
	require.NotNil(t, first.Observation.Value)
	assert.Equal(t, 1.8, *first.Observation.Value)

	second := readPublished(ctx, t, consumer)
	assert.Equal(t, "vt-202502", second.Key)
	assert.Nil(t, second.Observation.Value, "missing wili must publish as null")
}

// TestRunPublishesThroughKafka wires the full run path (fetch, normalize,
// save, publish) against a mocked upstream and real Kafka.
func TestRunPublishesThroughKafka(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	topic := uniqueTopic()
	createTopic(t, broker, topic)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"result":1,"message":"success","epidata":[`+
			`{"region":"ma","epiweek":202502,"wili":1.8},`+
			`{"region":"ma","epiweek":202503,"wili":2.4}]}`)
	}))
	t.Cleanup(upstream.Close)

	cfg := &config.Config{
		DelphiBaseURL: upstream.URL,
		DelphiTimeout: 10 * time.Second,
		KafkaBrokers:  []string{broker},
		KafkaTopic:    topic,
	}

	metrics := observability.NewMetricsForTesting()
	logger := discardLogger()

	fetcher := delphi.NewClient(cfg, metrics, logger)
	publisher := kafkaadapter.NewPublisher(cfg, logger)
	t.Cleanup(func() { _ = publisher.Close() })

	st := memory.NewStore()
	runner := pipeline.NewRunner(fetcher, st, publisher, nil, metrics, logger)

	report, err := runner.Run(ctx, pipeline.RunRequest{Region: "ma"})
	require.NoError(t, err)
	assert.Equal(t, 2, report.RowsLoaded)

	consumer := newConsumer(t, broker, topic)
	first := readPublished(ctx, t, consumer)
	second := readPublished(ctx, t, consumer)

	assert.ElementsMatch(t, []string{"ma-202502", "ma-202503"}, []string{first.Key, second.Key})
	for _, pm := range []publishedMessage{first, second} {
		assert.Equal(t, "MA", pm.Observation.Region)
		assert.Equal(t, "ili", pm.Headers["metric"])
		require.NotNil(t, pm.Observation.Value)
	}

	rows, err := st.ReadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 2, "published rows must also be persisted")
}
