package livereg

import (
	"encoding/json"
	"testing"
)

func TestFailFlushesQueuedFramesThenClosesSend(t *testing.T) {
	s := testService(t)
	c := NewClient(s, nil, Subscription{Instrument: "@NQ#"})

	c.SendJSON(map[string]any{"type": "initialization_progress"})
	c.Fail("Failed to initialize live regression subscription")
	c.SendJSON(map[string]any{"type": "late"})
	c.Fail("repeated failure must be a no-op")

	// The write pump drains the channel in order: the frame queued
	// before the failure, then the error, then closed.
	first := <-c.send
	var frame map[string]string
	if err := json.Unmarshal(first, &frame); err != nil || frame["type"] != "initialization_progress" {
		t.Errorf("first frame = %s", first)
	}

	second := <-c.send
	if err := json.Unmarshal(second, &frame); err != nil {
		t.Fatalf("decoding error frame: %v", err)
	}
	if frame["type"] != "error" || frame["message"] != "Failed to initialize live regression subscription" {
		t.Errorf("error frame = %s", second)
	}

	if _, ok := <-c.send; ok {
		t.Error("send channel must be closed after the error frame")
	}
}
