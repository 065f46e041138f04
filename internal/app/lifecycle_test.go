package app

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLifecycleRunsStartupOnce(t *testing.T) {
	runs := 0
	l := NewLifecycle(nil, StartupStep{Name: "counters", Run: func(context.Context) error {
		runs++
		return nil
	}})
	if l.Initialized() {
		t.Fatalf("new lifecycle must not be initialized")
	}
	for i := 0; i < 3; i++ {
		if err := l.OnReady(context.Background()); err != nil {
			t.Fatalf("ready %d: %v", i, err)
		}
	}
	if runs != 1 {
		t.Fatalf("startup ran %d times", runs)
	}
	status := l.Status()
	if !status.Initialized || status.ReadyEvents != 3 || status.StartedAt.IsZero() {
		t.Fatalf("status = %+v", status)
	}
}

func TestLifecycleRetriesFailedStartup(t *testing.T) {
	fail := true
	l := NewLifecycle(nil, StartupStep{Name: "commands", Run: func(context.Context) error {
		if fail {
			return errors.New("gateway refused")
		}
		return nil
	}})
	if err := l.OnReady(context.Background()); err == nil {
		t.Fatalf("expected startup error")
	}
	if l.Initialized() {
		t.Fatalf("failed startup must leave lifecycle uninitialized")
	}
	fail = false
	if err := l.OnReady(context.Background()); err != nil {
		t.Fatalf("second ready: %v", err)
	}
	if !l.Initialized() {
		t.Fatalf("expected initialized")
	}
}

func TestLifecycleAnswersWhileStartupRuns(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	l := NewLifecycle(nil, StartupStep{Name: "commands", Run: func(context.Context) error {
		close(entered)
		<-release
		return nil
	}})

	done := make(chan error, 1)
	go func() { done <- l.OnReady(context.Background()) }()
	<-entered

	answered := make(chan bool, 1)
	go func() { answered <- l.Initialized() }()
	select {
	case got := <-answered:
		if got {
			t.Fatalf("lifecycle reported initialized before startup finished")
		}
	case <-time.After(time.Second):
		t.Fatalf("Initialized blocked while a startup step was running")
	}
	if status := l.Status(); status.ReadyEvents != 1 || status.Initialized {
		t.Fatalf("status during startup = %+v", status)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("ready: %v", err)
	}
	if !l.Initialized() {
		t.Fatalf("expected initialized")
	}
}
