package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, "info")

	l.WithFields(logrus.Fields{"event_id": "e1", "count": 3}).Info("trade queued")

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if line["msg"] != "trade queued" {
		t.Errorf("unexpected msg: %v", line["msg"])
	}
	if line["event_id"] != "e1" {
		t.Errorf("unexpected event_id: %v", line["event_id"])
	}
	if line["level"] != "info" {
		t.Errorf("unexpected level: %v", line["level"])
	}
}

func TestNewLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, "warn")

	l.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info should be suppressed at warn level, got %q", buf.String())
	}

	l.Warn("visible")
	if buf.Len() == 0 {
		t.Error("warn should be emitted at warn level")
	}
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, "not-a-level")
	if l.GetLevel() != logrus.InfoLevel {
		t.Errorf("got level %v, want info fallback", l.GetLevel())
	}
}

func TestGetReturnsSingleton(t *testing.T) {
	a := Get()
	b := Get()
	if a == nil || a != b {
		t.Error("Get must return one shared logger")
	}
}
