// Package notify delivers best-effort notifications after a mutation has
// committed. Delivery failures and overload never propagate back to the
// operation that produced the message: by the time a message is published
// the transaction is already durable.
package notify

import (
	"log"
	"sync"
)

// Message is one outbound notification.
type Message struct {
	To      []string
	Subject string
	Body    string
}

// Sender delivers one message. Implementations wrap a real transport
// (SMTP, chat webhook); LogSender is the default.
type Sender interface {
	Send(msg Message) error
}

// LogSender writes deliveries to the process log.
type LogSender struct{}

func (LogSender) Send(msg Message) error {
	log.Printf("notify: to=%v subject=%q", msg.To, msg.Subject)
	return nil
}

// Dispatcher fans messages out to a Sender on a single background
// goroutine. Publish never blocks: when the buffer is full the message is
// dropped with a log line.
type Dispatcher struct {
	ch     chan Message
	sender Sender
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewDispatcher starts the delivery goroutine. A non-positive buffer gets a
// small default.
func NewDispatcher(sender Sender, buffer int) *Dispatcher {
	if sender == nil {
		sender = LogSender{}
	}
	if buffer <= 0 {
		buffer = 16
	}
	d := &Dispatcher{
		ch:     make(chan Message, buffer),
		sender: sender,
	}
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for msg := range d.ch {
		if err := d.sender.Send(msg); err != nil {
			log.Printf("notify: delivery failed subject=%q: %v", msg.Subject, err)
		}
	}
}

// Publish enqueues a message without blocking. Messages with no recipients
// are skipped.
func (d *Dispatcher) Publish(msg Message) {
	if d == nil || len(msg.To) == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	select {
	case d.ch <- msg:
	default:
		log.Printf("notify: buffer full, dropped subject=%q", msg.Subject)
	}
}

// Close stops accepting messages and waits for the queued ones to drain.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.ch)
	d.mu.Unlock()
	d.wg.Wait()
}
