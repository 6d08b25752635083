package main

import (
	"testing"

	"github.com/psyche-network/psyche/coordinator"
)

func TestParseFlagsDefaults(t *testing.T) {
	cfg, exit, _ := parseFlags([]string{"--run-id", "test-run"})
	if exit {
		t.Fatal("expected no exit for valid flags")
	}
	if cfg.runID != "test-run" {
		t.Fatalf("expected run id test-run, got %s", cfg.runID)
	}
	if cfg.listenAddr != "127.0.0.1:20331" {
		t.Fatalf("expected default listen addr, got %s", cfg.listenAddr)
	}
	if cfg.runConfig.MinClients != 1 || cfg.runConfig.WitnessNodes != 8 {
		t.Fatalf("unexpected default run config: %+v", cfg.runConfig)
	}
	if cfg.model.LLM == nil || cfg.model.LLM.Architecture != "llama" {
		t.Fatalf("unexpected default model: %+v", cfg.model)
	}
	if err := cfg.runConfig.Check(); err != nil {
		t.Fatalf("expected default run config to validate, got %v", err)
	}
	if err := cfg.model.Check(); err != nil {
		t.Fatalf("expected default model to validate, got %v", err)
	}
}

func TestParseFlagsMissingRunID(t *testing.T) {
	_, exit, code := parseFlags(nil)
	if !exit || code != 2 {
		t.Fatalf("expected exit code 2 when --run-id is missing, got exit=%v code=%d", exit, code)
	}
}

func TestParseFlagsOverridesPropagate(t *testing.T) {
	cfg, exit, _ := parseFlags([]string{
		"--run-id", "test-run",
		"--listen-addr", "0.0.0.0:9000",
		"--witness-nodes", "16",
		"--witness-quorum", "9",
		"--verification-percent", "50",
		"--model-architecture", "mixtral",
		"--checkpoint-source", "p2p",
	})
	if exit {
		t.Fatal("expected no exit for valid flags")
	}
	if cfg.listenAddr != "0.0.0.0:9000" {
		t.Fatalf("expected overridden listen addr, got %s", cfg.listenAddr)
	}
	if cfg.runConfig.WitnessNodes != 16 || cfg.runConfig.WitnessQuorum != 9 {
		t.Fatalf("expected witness overrides to propagate, got %+v", cfg.runConfig)
	}
	if cfg.runConfig.VerificationPercent != 50 {
		t.Fatalf("expected verification percent 50, got %d", cfg.runConfig.VerificationPercent)
	}
	if cfg.model.LLM.Architecture != "mixtral" {
		t.Fatalf("expected architecture mixtral, got %s", cfg.model.LLM.Architecture)
	}
	if cfg.model.LLM.Checkpoint.Source != parseCheckpointSource("p2p") {
		t.Fatalf("expected p2p checkpoint source, got %v", cfg.model.LLM.Checkpoint.Source)
	}
}

func TestParseCheckpointSourceDefaultsToHub(t *testing.T) {
	if got := parseCheckpointSource("bogus"); got != coordinator.CheckpointHub {
		t.Fatalf("expected unknown checkpoint source to default to hub, got %v", got)
	}
}
