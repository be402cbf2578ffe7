package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/keystone-cm/filedesk/internal/events"
)

func TestLoggerWritesConsoleFormat(t *testing.T) {
	prev := zerolog.GlobalLevel()
	SetGlobalLevel(zerolog.DebugLevel)
	defer SetGlobalLevel(prev)

	var buf bytes.Buffer
	l := NewLogger(&buf, nil)
	l.Infof("listed %d entries", 3)
	l.Debugf("debug %s", "line")

	out := buf.String()
	if !strings.Contains(out, "listed 3 entries") {
		t.Errorf("output missing info line: %q", out)
	}
	if !strings.Contains(out, "debug line") {
		t.Errorf("output missing debug line: %q", out)
	}
}

func TestLoggerMirrorsWarningsToBus(t *testing.T) {
	bus := events.NewEventBus(10)
	defer bus.Close()
	ch := bus.Subscribe(events.EventLog)

	var buf bytes.Buffer
	l := NewLogger(&buf, bus)
	l.Warnf("cycle at %s", "9")

	select {
	case ev := <-ch:
		logEv, ok := ev.(*events.LogEvent)
		if !ok {
			t.Fatalf("got %T, want *events.LogEvent", ev)
		}
		if logEv.Level != events.WarnLevel || logEv.Message != "cycle at 9" {
			t.Errorf("log event = %+v", logEv)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("warning was not published to the bus")
	}
}

func TestLoggerAddFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "filedesk.log")

	var buf bytes.Buffer
	l := NewLogger(&buf, nil)
	if err := l.AddFile(path); err != nil {
		t.Fatalf("AddFile failed: %v", err)
	}
	l.Warnf("written to file")
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"message":"written to file"`) {
		t.Errorf("log file = %q", data)
	}
}
