package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flowpilot-io/durable"
)

func TestNewTriggerRejectsBadSpec(t *testing.T) {
	eng := durable.NewInMemoryEngine()
	_, err := NewTrigger(TriggerConfig{Schedule: "not a cron spec", Workflow: "diagnose"}, eng, nil)
	if !errors.Is(err, ErrInvalidCronSpec) {
		t.Fatalf("err = %v, want ErrInvalidCronSpec", err)
	}
}

func TestTriggerNextRun(t *testing.T) {
	eng := durable.NewInMemoryEngine()
	tr, err := NewTrigger(TriggerConfig{Schedule: "0 2 * * *", Workflow: "diagnose"}, eng, nil)
	if err != nil {
		t.Fatalf("NewTrigger: %v", err)
	}

	next := tr.NextRun()
	if !next.After(time.Now()) {
		t.Errorf("NextRun = %v, should be in the future", next)
	}
	if next.Hour() != 2 || next.Minute() != 0 {
		t.Errorf("NextRun = %v, want 02:00", next)
	}
}

func TestStartTriggersFailsFast(t *testing.T) {
	eng := durable.NewInMemoryEngine()
	cfgs := []TriggerConfig{
		{Schedule: "0 2 * * *", Workflow: "diagnose"},
		{Schedule: "bogus", Workflow: "diagnose"},
	}
	if _, err := StartTriggers(context.Background(), cfgs, eng, nil); err == nil {
		t.Fatal("expected error for invalid trigger in list")
	}
}
