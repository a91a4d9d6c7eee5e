package notify

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type captureSender struct {
	mu   sync.Mutex
	got  []Message
	err  error
	slow chan struct{}
}

func (s *captureSender) Send(msg Message) error {
	if s.slow != nil {
		<-s.slow
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, msg)
	return s.err
}

func (s *captureSender) messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.got))
	copy(out, s.got)
	return out
}

func TestDispatcherDelivers(t *testing.T) {
	sender := &captureSender{}
	d := NewDispatcher(sender, 8)
	d.Publish(Message{To: []string{"a@corp.test"}, Subject: "hello"})
	d.Publish(Message{To: []string{"b@corp.test"}, Subject: "world"})
	d.Close()

	got := sender.messages()
	if len(got) != 2 {
		t.Fatalf("delivered %d messages, want 2", len(got))
	}
	if got[0].Subject != "hello" || got[1].Subject != "world" {
		t.Fatalf("messages out of order: %+v", got)
	}
}

func TestPublishSkipsEmptyRecipients(t *testing.T) {
	sender := &captureSender{}
	d := NewDispatcher(sender, 8)
	d.Publish(Message{Subject: "nobody"})
	d.Close()
	if len(sender.messages()) != 0 {
		t.Fatal("message without recipients should be skipped")
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	sender := &captureSender{slow: make(chan struct{})}
	d := NewDispatcher(sender, 1)

	// First message occupies the worker, second fills the buffer, third must
	// be dropped rather than block.
	d.Publish(Message{To: []string{"x"}, Subject: "first"})
	deadline := time.After(time.Second)
	for {
		d.mu.Lock()
		queued := len(d.ch)
		d.mu.Unlock()
		if queued == 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("worker never picked up first message")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	d.Publish(Message{To: []string{"x"}, Subject: "second"})

	done := make(chan struct{})
	go func() {
		d.Publish(Message{To: []string{"x"}, Subject: "third"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on full buffer")
	}

	close(sender.slow)
	d.Close()
	if got := sender.messages(); len(got) != 2 {
		t.Fatalf("delivered %d messages, want 2 (third dropped)", len(got))
	}
}

func TestSenderFailureIsSwallowed(t *testing.T) {
	sender := &captureSender{err: errors.New("smtp down")}
	d := NewDispatcher(sender, 4)
	d.Publish(Message{To: []string{"x"}, Subject: "doomed"})
	d.Close()
	if len(sender.messages()) != 1 {
		t.Fatal("message should still have been attempted")
	}
}

func TestPublishAfterCloseIsNoop(t *testing.T) {
	sender := &captureSender{}
	d := NewDispatcher(sender, 4)
	d.Close()
	d.Publish(Message{To: []string{"x"}, Subject: "late"})
	if len(sender.messages()) != 0 {
		t.Fatal("publish after close should be dropped")
	}
}
