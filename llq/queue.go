// Package llq provides the fixed-capacity single-producer/single-consumer
// queues that hand data channel PDUs between the time-critical link layer
// and the non-real-time upper layers.
//
// Each direction of a connection gets its own queue: the link layer produces
// into the inbound queue and consumes from the outbound one, the channel
// multiplexer does the reverse. Capacity is fixed at compile time and all
// slot storage lives inside the Queue value, so steady-state operation
// performs no allocation. Enqueueing into a full queue fails immediately
// with ErrQueueFull; it never blocks.
package llq

import (
	"errors"
	"sync/atomic"
)

const (
	// Capacity is the number of PDU slots per queue.
	Capacity = 16

	// HeaderSize is the size of a data channel PDU header.
	HeaderSize = 2

	// MaxPayload is the largest data channel payload a slot can hold
	// (Bluetooth 4.1 limit, no data length extension).
	MaxPayload = 27

	slotSize = HeaderSize + MaxPayload
)

var (
	// ErrQueueFull is returned by Produce when no slot is free.
	ErrQueueFull = errors.New("llq: queue full")

	// ErrQueueEmpty is returned by consume operations on an empty queue.
	ErrQueueEmpty = errors.New("llq: queue empty")

	// ErrPayloadSize is returned when a payload exceeds MaxPayload.
	ErrPayloadSize = errors.New("llq: payload exceeds slot size")
)

// PDU is one queued data channel PDU: the raw 16-bit header followed by the
// payload. The backing array belongs to the queue slot; a *PDU obtained from
// Peek is valid only until the matching Pop.
type PDU struct {
	buf [slotSize]byte
	n   uint8
}

// Header returns the raw 16-bit data channel header.
func (p *PDU) Header() uint16 {
	return uint16(p.buf[0]) | uint16(p.buf[1])<<8
}

// Payload returns the payload bytes following the header.
func (p *PDU) Payload() []byte {
	return p.buf[HeaderSize:p.n]
}

// Bytes returns header and payload as transmitted.
func (p *PDU) Bytes() []byte {
	return p.buf[:p.n]
}

func (p *PDU) set(header uint16, payload []byte) {
	p.buf[0] = byte(header)
	p.buf[1] = byte(header >> 8)
	copy(p.buf[HeaderSize:], payload)
	p.n = uint8(HeaderSize + len(payload))
}

// Queue is a bounded SPSC ring of PDUs. Split it with Producer and Consumer;
// each half must be used from a single goroutine (or interrupt context) at a
// time.
type Queue struct {
	slots [Capacity]PDU
	head  uint32 // next slot to consume, owned by Consumer
	tail  uint32 // next slot to fill, owned by Producer
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{}
}

// Split returns the two halves of the queue.
func (q *Queue) Split() (*Producer, *Consumer) {
	return &Producer{q: q}, &Consumer{q: q}
}

func (q *Queue) length() uint32 {
	return atomic.LoadUint32(&q.tail) - atomic.LoadUint32(&q.head)
}

// Producer is the writing half of a Queue.
type Producer struct {
	q *Queue
}

// Free returns the number of currently free slots. The value is a snapshot;
// the consumer may free more slots at any time, never fewer.
func (p *Producer) Free() int {
	return Capacity - int(p.q.length())
}

// Produce copies one PDU into the queue. It fails with ErrQueueFull when no
// slot is free and ErrPayloadSize when the payload cannot fit a slot; the
// queue is unchanged on failure.
func (p *Producer) Produce(header uint16, payload []byte) error {
	if len(payload) > MaxPayload {
		return ErrPayloadSize
	}
	if p.q.length() == Capacity {
		return ErrQueueFull
	}
	tail := atomic.LoadUint32(&p.q.tail)
	p.q.slots[tail%Capacity].set(header, payload)
	atomic.AddUint32(&p.q.tail, 1)
	return nil
}

// Consumer is the reading half of a Queue.
type Consumer struct {
	q *Queue
}

// HasData reports whether a PDU is ready to consume.
func (c *Consumer) HasData() bool {
	return c.q.length() != 0
}

// Peek returns the next PDU without removing it. The returned PDU stays
// valid until Pop is called. Peeking an empty queue returns false.
//
// The peek/pop split is what lets the link layer leave a PDU queued when it
// cannot be acknowledged yet (no space downstream) and see it again on the
// next connection event.
func (c *Consumer) Peek() (*PDU, bool) {
	if c.q.length() == 0 {
		return nil, false
	}
	head := atomic.LoadUint32(&c.q.head)
	return &c.q.slots[head%Capacity], true
}

// Pop removes the PDU last returned by Peek. Popping an empty queue returns
// ErrQueueEmpty.
func (c *Consumer) Pop() error {
	if c.q.length() == 0 {
		return ErrQueueEmpty
	}
	atomic.AddUint32(&c.q.head, 1)
	return nil
}
