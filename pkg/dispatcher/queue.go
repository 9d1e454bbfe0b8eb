package dispatcher

import (
	"sync"
	"time"

	"example.com/sharecore/pkg/command"
)

// Queue is the unbounded FIFO feeding the dispatch loop. Submit never blocks,
// so producers on any goroutine can use it.
type Queue struct {
	mu     sync.Mutex
	items  []command.Command
	signal chan struct{}
}

func NewQueue() *Queue {
	return &Queue{signal: make(chan struct{}, 1)}
}

// Submit appends cmd to the queue
func (q *Queue) Submit(cmd command.Command) {
	q.mu.Lock()
	q.items = append(q.items, cmd)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// next blocks until a command is available
func (q *Queue) next() command.Command {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			cmd := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			q.mu.Unlock()
			return cmd
		}
		q.mu.Unlock()
		<-q.signal
	}
}

// Len returns the number of queued commands
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// CaptureListener forwards capture worker notifications into a queue
type CaptureListener struct {
	queue *Queue
}

func NewCaptureListener(q *Queue) *CaptureListener {
	return &CaptureListener{queue: q}
}

func (l *CaptureListener) SessionEnded(sessionID, sourceID string, err error) {
	l.queue.Submit(command.CaptureEnded{SessionID: sessionID, SourceID: sourceID, Err: err})
}

func (l *CaptureListener) PreviewFrame(sourceID string, jpeg []byte, width, height int) {
	l.queue.Submit(command.PreviewFrame{
		SourceID:  sourceID,
		JPEG:      jpeg,
		Width:     width,
		Height:    height,
		Timestamp: time.Now().UnixMilli(),
	})
}
