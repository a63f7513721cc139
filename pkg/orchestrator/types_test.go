package orchestrator

import "testing"

func TestMessage(t *testing.T) {
	msg := Message{Role: "user", Content: "Hello"}
	if msg.Role != "user" {
		t.Errorf("Expected role 'user', got '%s'", msg.Role)
	}
}

func TestNoOpLogger(t *testing.T) {
	var l Logger = &NoOpLogger{}
	// Must not panic regardless of arg shape.
	l.Debug("msg", "k", "v")
	l.Info("msg")
	l.Warn("msg", "k", 1)
	l.Error("msg", "err", nil)
}
