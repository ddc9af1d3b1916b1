package queue

import (
	"github.com/oleiade/lane"

	"github.com/c360/micropipe/message"
	"github.com/c360/micropipe/pkg/buffer"
)

// storage is the FIFO behind a queue.
type storage interface {
	push(msg message.Message) (bool, error)
	pop() (message.Message, bool)
	len() int
	close()
}

// unboundedStorage grows without limit; push never blocks.
type unboundedStorage struct {
	q *lane.Queue
}

func newUnboundedStorage() *unboundedStorage {
	return &unboundedStorage{q: lane.NewQueue()}
}

func (s *unboundedStorage) push(msg message.Message) (bool, error) {
	s.q.Enqueue(msg)
	return true, nil
}

func (s *unboundedStorage) pop() (message.Message, bool) {
	item := s.q.Dequeue()
	if item == nil {
		return message.Message{}, false
	}
	return item.(message.Message), true
}

func (s *unboundedStorage) len() int {
	return s.q.Size()
}

func (s *unboundedStorage) close() {}

// boundedStorage holds at most capacity messages in a ring.
type boundedStorage struct {
	ring *buffer.Ring[message.Message]
}

func newBoundedStorage(capacity int, policy buffer.OverflowPolicy, onDrop func(message.Message)) *boundedStorage {
	return &boundedStorage{
		ring: buffer.NewRing(capacity,
			buffer.WithOverflowPolicy[message.Message](policy),
			buffer.WithDropCallback[message.Message](onDrop),
		),
	}
}

func (s *boundedStorage) push(msg message.Message) (bool, error) {
	return s.ring.Write(msg)
}

func (s *boundedStorage) pop() (message.Message, bool) {
	return s.ring.Read()
}

func (s *boundedStorage) len() int {
	return s.ring.Size()
}

func (s *boundedStorage) close() {
	s.ring.Close()
}
