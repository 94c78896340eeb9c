package logging

import (
	"testing"

	"github.com/gen4sp/runpodComfyUICtrlVersion/internal/config"
)

func TestNewSetsLevelAndFormat(t *testing.T) {
	log := New(config.LoggingConfig{Level: "debug", Format: "json"})
	if log.GetLevel().String() != "debug" {
		t.Fatalf("expected level debug, got %s", log.GetLevel())
	}
}

func TestNewDefaultsToInfoOnBadLevel(t *testing.T) {
	log := New(config.LoggingConfig{Level: "not-a-level", Format: "text"})
	if log.GetLevel().String() != "info" {
		t.Fatalf("expected fallback level info, got %s", log.GetLevel())
	}
}

func TestPhaseAndKindAddFields(t *testing.T) {
	log := NewDefault()
	entry := WithKind(log.Phase("realize"), "network")
	if entry.Data["phase"] != "realize" || entry.Data["kind"] != "network" {
		t.Fatalf("unexpected fields: %#v", entry.Data)
	}
}
