package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/lsm/churnflow/internal/analytics"
	"github.com/lsm/churnflow/internal/kafka"
	"github.com/lsm/churnflow/internal/pipeline"
	"github.com/lsm/churnflow/internal/producer"
)

func TestParseStringFlag(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		flag    string
		want    string
		wantErr bool
	}{
		{name: "flag found", args: []string{"--mode", "batch"}, flag: "--mode", want: "batch"},
		{name: "flag absent", args: []string{"--other", "x"}, flag: "--mode", want: ""},
		{name: "flag without value", args: []string{"--mode"}, flag: "--mode", wantErr: true},
		{name: "flag at end", args: []string{"--rate", "5", "--mode", "streaming"}, flag: "--mode", want: "streaming"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseStringFlag(tt.args, tt.flag)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr = %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseDurationFlag(t *testing.T) {
	d, err := parseDurationFlag([]string{"--duration", "2m"}, "--duration", time.Second)
	if err != nil || d != 2*time.Minute {
		t.Fatalf("got %v, %v", d, err)
	}
	d, err = parseDurationFlag(nil, "--duration", time.Second)
	if err != nil || d != time.Second {
		t.Fatalf("default: got %v, %v", d, err)
	}
	if _, err := parseDurationFlag([]string{"--duration", "fast"}, "--duration", 0); err == nil {
		t.Fatal("expected error for unparseable duration")
	}
	if _, err := parseDurationFlag([]string{"--duration", "-1s"}, "--duration", 0); err == nil {
		t.Fatal("expected error for negative duration")
	}
}

func TestParseFloatFlag(t *testing.T) {
	v, err := parseFloatFlag([]string{"--rate", "2.5"}, "--rate", 10)
	if err != nil || v != 2.5 {
		t.Fatalf("got %v, %v", v, err)
	}
	if _, err := parseFloatFlag([]string{"--rate", "0"}, "--rate", 10); err == nil {
		t.Fatal("expected error for non-positive rate")
	}
}

// publishCounter counts publishes per topic, failing none.
type publishCounter struct {
	published map[string]int
}

func (p *publishCounter) Publish(ctx context.Context, topic string, key, value []byte, headers map[string]string) error {
	if p.published == nil {
		p.published = make(map[string]int)
	}
	p.published[topic]++
	return nil
}

func (p *publishCounter) Close() error { return nil }

func TestRunProduce_Help(t *testing.T) {
	if err := RunProduce([]string{"-h"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRunProduce_InvalidMode(t *testing.T) {
	orig := newProducerPublisher
	t.Cleanup(func() { newProducerPublisher = orig })
	newProducerPublisher = func(cluster *kafka.ClusterConfig) (producer.Publisher, error) {
		return &publishCounter{}, nil
	}

	err := RunProduce([]string{"--mode", "firehose"})
	if err == nil || !strings.Contains(err.Error(), "mode") {
		t.Fatalf("expected mode error, got %v", err)
	}
}

func TestRunProduce_BatchCount(t *testing.T) {
	counter := &publishCounter{}
	orig := newProducerPublisher
	t.Cleanup(func() { newProducerPublisher = orig })
	newProducerPublisher = func(cluster *kafka.ClusterConfig) (producer.Publisher, error) {
		return counter, nil
	}

	if err := RunProduce([]string{"--mode", "batch", "--num-events", "7", "--seed", "42"}); err != nil {
		t.Fatalf("produce failed: %v", err)
	}
	if counter.published["customer-events"] != 7 {
		t.Fatalf("published %d events, want 7", counter.published["customer-events"])
	}
}

func TestRunProduce_ReplayFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "events.jsonl")
	lines := `{"event_id":"e-1","customer_id":"c-1","plan_tier":"pro","tenure_months":12,"usage_score":0.8}
{"event_id":"e-2","customer_id":"c-2","plan_tier":"free","tenure_months":1,"usage_score":0.1}
`
	if err := os.WriteFile(path, []byte(lines), 0o644); err != nil {
		t.Fatal(err)
	}

	counter := &publishCounter{}
	orig := newProducerPublisher
	t.Cleanup(func() { newProducerPublisher = orig })
	newProducerPublisher = func(cluster *kafka.ClusterConfig) (producer.Publisher, error) {
		return counter, nil
	}

	// The file runs out before --num-events; the run ends at EOF.
	if err := RunProduce([]string{"--mode", "batch", "--num-events", "10", "--file", path}); err != nil {
		t.Fatalf("produce failed: %v", err)
	}
	if counter.published["customer-events"] != 2 {
		t.Fatalf("published %d events, want 2", counter.published["customer-events"])
	}
}

func TestRunConsume_RequiresExactlyOneMode(t *testing.T) {
	if err := RunConsume([]string{}); err == nil {
		t.Fatal("expected error with no mode")
	}
	err := RunConsume([]string{"--batch", "--continuous"})
	if err == nil || !strings.Contains(err.Error(), "--batch or --continuous") {
		t.Fatalf("expected mode conflict error, got %v", err)
	}
}

func TestRunConsume_MissingModelIsFatal(t *testing.T) {
	err := RunConsume([]string{"--batch", "--model", filepath.Join(t.TempDir(), "absent.yaml")})
	if err == nil || !strings.Contains(err.Error(), "model") {
		t.Fatalf("expected model load error, got %v", err)
	}
}

func TestRunConsume_UnreachableBrokerIsFatal(t *testing.T) {
	orig := pingBroker
	t.Cleanup(func() { pingBroker = orig })
	pingBroker = func(ctx context.Context, cluster *kafka.ClusterConfig) error {
		return fmt.Errorf("broker unreachable at %v: dial refused", cluster.Brokers)
	}

	err := RunConsume([]string{"--batch", "--model", writeModelFile(t)})
	if err == nil || !strings.Contains(err.Error(), "unreachable") {
		t.Fatalf("expected broker unreachable error, got %v", err)
	}
}

// stubSource serves scripted records then quiesces.
type stubSource struct {
	records   []*kgo.Record
	committed int
}

func (s *stubSource) Poll(ctx context.Context, timeout time.Duration) ([]*kgo.Record, error) {
	records := s.records
	s.records = nil
	return records, nil
}

func (s *stubSource) Commit(ctx context.Context, records ...*kgo.Record) error {
	s.committed += len(records)
	return nil
}

func (s *stubSource) Topic() string { return "customer-events" }

func (s *stubSource) Close() error { return nil }

func writeModelFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.yaml")
	artifact := `version: churn-v1
intercept: -1.0
threshold: 0.5
weights:
  tenure_months: -0.04
  usage_score: -2.0
encoders:
  plan_tier:
    free: 0.8
    basic: 0.3
    pro: -0.2
    enterprise: -0.7
`
	if err := os.WriteFile(path, []byte(artifact), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunConsume_BatchDrainsStubbedSource(t *testing.T) {
	source := &stubSource{records: []*kgo.Record{
		{Topic: "customer-events", Offset: 0, Key: []byte("c-1"),
			Value: []byte(`{"event_id":"e-1","customer_id":"c-1","plan_tier":"free","tenure_months":2,"usage_score":0.3}`)},
	}}
	counter := &publishCounter{}

	origSource, origPub, origPing := newRecordSource, newPipelinePublisher, pingBroker
	t.Cleanup(func() { newRecordSource, newPipelinePublisher, pingBroker = origSource, origPub, origPing })
	newRecordSource = func(cfg kafka.ConsumerConfig, logger *slog.Logger) (pipeline.RecordSource, error) {
		return source, nil
	}
	newPipelinePublisher = func(cluster *kafka.ClusterConfig) (pipeline.Publisher, error) {
		return counter, nil
	}
	pingBroker = func(ctx context.Context, cluster *kafka.ClusterConfig) error { return nil }

	err := RunConsume([]string{
		"--batch", "--model", writeModelFile(t),
		"--poll-timeout", "10ms", "--quiescence", "10ms",
	})
	if err != nil {
		t.Fatalf("consume failed: %v", err)
	}
	if counter.published["scored-predictions"] != 1 {
		t.Fatalf("published %d predictions, want 1", counter.published["scored-predictions"])
	}
	if source.committed != 1 {
		t.Fatalf("expected 1 committed record, got %d", source.committed)
	}
}

// mockTopicAdmin records lifecycle calls.
type mockTopicAdmin struct {
	ensured []string
	deleted []string
	flushed []string
	cleaned bool
	keepSet map[string]bool
}

func (m *mockTopicAdmin) Ensure(ctx context.Context, spec kafka.TopicSpec) error {
	m.ensured = append(m.ensured, spec.Name)
	return nil
}

func (m *mockTopicAdmin) Delete(ctx context.Context, name string) error {
	m.deleted = append(m.deleted, name)
	return nil
}

func (m *mockTopicAdmin) Flush(ctx context.Context, spec kafka.TopicSpec) error {
	m.flushed = append(m.flushed, spec.Name)
	return nil
}

func (m *mockTopicAdmin) Cleanup(ctx context.Context, keep map[string]bool) ([]string, error) {
	m.cleaned = true
	m.keepSet = keep
	return []string{"stray-topic"}, nil
}

func (m *mockTopicAdmin) Close() {}

func TestRunTopics_Subcommands(t *testing.T) {
	admin := &mockTopicAdmin{}
	orig := newTopicAdmin
	t.Cleanup(func() { newTopicAdmin = orig })
	newTopicAdmin = func(cluster *kafka.ClusterConfig, logger *slog.Logger) (topicAdmin, error) {
		return admin, nil
	}

	if err := RunTopics([]string{"ensure"}); err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if len(admin.ensured) != 2 || admin.ensured[0] != "customer-events" || admin.ensured[1] != "scored-predictions" {
		t.Fatalf("ensured topics: %v", admin.ensured)
	}

	if err := RunTopics([]string{"delete"}); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if len(admin.deleted) != 2 {
		t.Fatalf("deleted topics: %v", admin.deleted)
	}

	if err := RunTopics([]string{"flush"}); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	if len(admin.flushed) != 2 {
		t.Fatalf("flushed topics: %v", admin.flushed)
	}

	if err := RunTopics([]string{"cleanup"}); err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if !admin.cleaned || !admin.keepSet["customer-events.dlq"] {
		t.Fatalf("cleanup keep set: %v", admin.keepSet)
	}
}

func TestRunTopics_UnknownSubcommand(t *testing.T) {
	err := RunTopics([]string{"truncate"})
	if err == nil || !strings.Contains(err.Error(), "unknown topics subcommand") {
		t.Fatalf("expected unknown subcommand error, got %v", err)
	}
}

type stubAnalyticsSource struct {
	polls [][]*kgo.Record
}

func (s *stubAnalyticsSource) Poll(ctx context.Context, timeout time.Duration) ([]*kgo.Record, error) {
	if len(s.polls) == 0 {
		return nil, nil
	}
	records := s.polls[0]
	s.polls = s.polls[1:]
	return records, nil
}

func (s *stubAnalyticsSource) Close() error { return nil }

func TestRunAnalytics_StubbedSource(t *testing.T) {
	source := &stubAnalyticsSource{polls: [][]*kgo.Record{{
		{Topic: "scored-predictions", Offset: 0,
			Value: []byte(`{"event_id":"e-1","customer_id":"c-1","churn_probability":0.9,"churn_label":true,"model_version":"churn-v1","scored_at":"2026-08-26T00:00:00Z"}`)},
	}}}

	orig := newAnalyticsSource
	t.Cleanup(func() { newAnalyticsSource = orig })
	newAnalyticsSource = func(cluster *kafka.ClusterConfig, topic string, logger *slog.Logger) (analytics.Source, error) {
		return source, nil
	}

	if err := RunAnalytics([]string{"--poll-timeout", "10ms"}); err != nil {
		t.Fatalf("analytics failed: %v", err)
	}
}

func TestRunScore_OfflinePrediction(t *testing.T) {
	dir := t.TempDir()
	eventPath := filepath.Join(dir, "event.json")
	payload := `{"event_id":"e-1","customer_id":"c-1","plan_tier":"enterprise","tenure_months":48,"usage_score":0.95}`
	if err := os.WriteFile(eventPath, []byte(payload), 0o644); err != nil {
		t.Fatal(err)
	}

	err := RunScore([]string{"--event", eventPath, "--model", writeModelFile(t)})
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}
}

func TestRunScore_RequiresEvent(t *testing.T) {
	err := RunScore([]string{"--model", writeModelFile(t)})
	if err == nil || !strings.Contains(err.Error(), "--event") {
		t.Fatalf("expected missing event error, got %v", err)
	}
}

func TestRunScore_SchemaMismatchSurfaces(t *testing.T) {
	dir := t.TempDir()
	eventPath := filepath.Join(dir, "event.json")
	// usage_score is missing from the payload.
	payload := `{"event_id":"e-1","customer_id":"c-1","plan_tier":"pro","tenure_months":3}`
	if err := os.WriteFile(eventPath, []byte(payload), 0o644); err != nil {
		t.Fatal(err)
	}

	err := RunScore([]string{"--event", eventPath, "--model", writeModelFile(t)})
	if err == nil {
		t.Fatal("expected schema mismatch error")
	}
	if !strings.Contains(err.Error(), "usage_score") {
		t.Fatalf("expected error naming the missing feature, got %v", err)
	}
}

func TestRunConsume_InvalidDurationFlag(t *testing.T) {
	err := RunConsume([]string{"--batch", "--poll-interval", "soon"})
	if err == nil || !strings.Contains(err.Error(), "--poll-interval") {
		t.Fatalf("expected flag error, got %v", err)
	}
}
