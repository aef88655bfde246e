package kafka

import (
	"context"
	"testing"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestTraceContextSurvivesHeaders(t *testing.T) {
	prop := propagation.TraceContext{}

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	// producer side
	headers := []kafka.Header{}
	prop.Inject(ctx, kafkaHeaderCarrier{headers: &headers})
	require.NotEmpty(t, headers)
	assert.Contains(t, kafkaHeaderCarrier{headers: &headers}.Keys(), "traceparent")

	// consumer side
	rec := &kgo.Record{}
	for _, h := range headers {
		rec.Headers = append(rec.Headers, kgo.RecordHeader{Key: h.Key, Value: h.Value})
	}
	out := trace.SpanContextFromContext(prop.Extract(context.Background(), kgoRecordCarrier{record: rec}))

	assert.Equal(t, traceID, out.TraceID())
	assert.Equal(t, spanID, out.SpanID())
	assert.Equal(t, "", kgoRecordCarrier{record: rec}.Get("missing"))
}
