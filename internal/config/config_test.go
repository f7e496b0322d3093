package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Topics.Input.Name != "customer-events" || cfg.Topics.Scored.Name != "scored-predictions" {
		t.Fatalf("unexpected default topics: %+v", cfg.Topics)
	}
	if cfg.Group != "churnflow-scoring" {
		t.Fatalf("unexpected default group: %s", cfg.Group)
	}
	if len(cfg.Cluster.Brokers) == 0 {
		t.Fatal("expected default brokers")
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "churnflow.yaml", `
cluster:
  brokers:
    - broker-1:9092
    - broker-2:9092
topics:
  input:
    name: events-staging
    partitions: 6
    replicationFactor: 3
group: churnflow-staging
model: artifacts/churn-v2.yaml
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(cfg.Cluster.Brokers) != 2 || cfg.Cluster.Brokers[0] != "broker-1:9092" {
		t.Fatalf("brokers not overridden: %v", cfg.Cluster.Brokers)
	}
	if cfg.Topics.Input.Name != "events-staging" || cfg.Topics.Input.Partitions != 6 {
		t.Fatalf("input topic not overridden: %+v", cfg.Topics.Input)
	}
	// Fields absent from the file keep their defaults.
	if cfg.Topics.Scored.Name != "scored-predictions" {
		t.Fatalf("scored topic default lost: %+v", cfg.Topics.Scored)
	}
	if cfg.Model != "artifacts/churn-v2.yaml" {
		t.Fatalf("model not overridden: %s", cfg.Model)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidConfigRejected(t *testing.T) {
	cases := map[string]string{
		"no brokers": `
cluster:
  brokers: []
`,
		"empty group": `
group: ""
`,
		"bad topic partitions": `
topics:
  input:
    name: customer-events
    partitions: 0
    replicationFactor: 1
`,
		"not yaml": `{{{`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "churnflow.yaml", content)
			if _, err := Load(path); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestKeep_IncludesDeadLetterTopic(t *testing.T) {
	keep := Default().Keep()
	want := map[string]bool{
		"customer-events":     true,
		"scored-predictions":  true,
		"customer-events.dlq": true,
	}
	if len(keep) != len(want) {
		t.Fatalf("keep set = %v", keep)
	}
	for _, name := range keep {
		if !want[name] {
			t.Fatalf("unexpected topic in keep set: %s", name)
		}
	}
}
