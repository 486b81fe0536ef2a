package util

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestManualClock(t *testing.T) {
	start := time.Unix(100, 0)
	c := NewManualClock(start)

	immediate := c.After(0)
	select {
	case <-immediate:
	default:
		t.Fatal("zero duration timer should fire immediately")
	}

	short, long := c.After(time.Second), c.After(3*time.Second)
	c.Advance(2 * time.Second)
	select {
	case at := <-short:
		if !at.Equal(start.Add(2 * time.Second)) {
			t.Errorf("fired at %v", at)
		}
	default:
		t.Fatal("1s timer did not fire after 2s")
	}
	select {
	case <-long:
		t.Fatal("3s timer fired early")
	default:
	}
	c.Advance(time.Second)
	select {
	case <-long:
	default:
		t.Fatal("3s timer did not fire")
	}
	if !c.Now().Equal(start.Add(3 * time.Second)) {
		t.Errorf("now = %v", c.Now())
	}
}

func TestNewLoggerWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "node.log")
	logger, err := NewLoggerWithFile(path, false)
	if err != nil {
		t.Fatal(err)
	}
	logger.Debug("hidden")
	logger.Info("node_started")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "node_started") || strings.Contains(string(data), "hidden") {
		t.Errorf("log file = %s", data)
	}
}
