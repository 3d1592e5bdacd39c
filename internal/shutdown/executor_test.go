package shutdown

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestCommandExecutorArgs(t *testing.T) {
	tests := []struct {
		name string
		call func(e *CommandExecutor) error
		want []string
	}{
		{"schedule one minute", func(e *CommandExecutor) error { return e.Schedule(context.Background(), time.Minute) }, []string{"sudo", "shutdown", "-P", "+1"}},
		{"schedule rounds up", func(e *CommandExecutor) error { return e.Schedule(context.Background(), 90*time.Second) }, []string{"sudo", "shutdown", "-P", "+2"}},
		{"schedule zero is now", func(e *CommandExecutor) error { return e.Schedule(context.Background(), 0) }, []string{"sudo", "shutdown", "-P", "now"}},
		{"cancel", func(e *CommandExecutor) error { return e.Cancel(context.Background()) }, []string{"sudo", "shutdown", "-c"}},
		{"poweroff", func(e *CommandExecutor) error { return e.PowerOff(context.Background()) }, []string{"sudo", "shutdown", "-P", "now"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewCommandExecutor(nil, zerolog.Nop())
			var got []string
			e.run = func(_ context.Context, name string, args ...string) ([]byte, error) {
				got = append([]string{name}, args...)
				return nil, nil
			}
			if err := tt.call(e); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("argv = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCommandExecutorCustomPrefixAndError(t *testing.T) {
	e := NewCommandExecutor([]string{"/usr/sbin/shutdown"}, zerolog.Nop())
	e.run = func(_ context.Context, name string, args ...string) ([]byte, error) {
		if name != "/usr/sbin/shutdown" || !reflect.DeepEqual(args, []string{"-c"}) {
			t.Errorf("unexpected argv %s %v", name, args)
		}
		return []byte("Failed to talk to shutdownd\n"), errors.New("exit status 1")
	}

	err := e.Cancel(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "Failed to talk to shutdownd") {
		t.Errorf("error %q does not carry command output", err)
	}
}

type fakeLogind struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeLogind) PowerOff(bool) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
}

func (f *fakeLogind) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestLogindExecutorCountdown(t *testing.T) {
	conn := &fakeLogind{}
	e := newLogindExecutor(conn, zerolog.Nop())
	ctx := context.Background()

	if err := e.Schedule(ctx, 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(time.Second)
	for conn.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if conn.count() != 1 {
		t.Fatalf("power off called %d times after countdown, want 1", conn.count())
	}
}

func TestLogindExecutorCancel(t *testing.T) {
	conn := &fakeLogind{}
	e := newLogindExecutor(conn, zerolog.Nop())
	ctx := context.Background()

	if err := e.Schedule(ctx, 30*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if err := e.Cancel(ctx); err != nil {
		t.Fatal(err)
	}
	time.Sleep(60 * time.Millisecond)
	if conn.count() != 0 {
		t.Errorf("power off called %d times after cancel, want 0", conn.count())
	}

	if err := e.PowerOff(ctx); err != nil {
		t.Fatal(err)
	}
	if conn.count() != 1 {
		t.Errorf("power off called %d times, want 1", conn.count())
	}
}
