package clipboard

import (
	"sync"
	"time"
)

// pendingEntry is one outstanding SendInitiatePaste this side is
// waiting on a client reply for: the serial a local paste gesture is
// addressed to, the mime/format it asked for, and the timer that
// cancels it if no reply ever comes.
type pendingEntry struct {
	serial   uint32
	mimeType string
	formatID uint32
	enqueued time.Time
	timer    *time.Timer
}

// pendingFIFO is the correlation mechanism §8 requires: the RDP wire
// protocol gives no way to tag a FormatDataResponse with the request
// it answers, so the only correct pairing is arrival order. Grounded
// on manager.rs's pending_portal_requests VecDeque.
type pendingFIFO struct {
	mu      sync.Mutex
	entries []*pendingEntry
}

func newPendingFIFO() *pendingFIFO { return &pendingFIFO{} }

// push enqueues entry at the back, to be fulfilled strictly after
// every entry already queued. Callers must push before dispatching
// the SendInitiatePaste that can produce a reply, or a fast reply
// could arrive before the entry exists.
func (q *pendingFIFO) push(e *pendingEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, e)
}

// popFront removes and returns the oldest entry — the one a newly
// arrived RdpDataResponse is always deemed to answer.
func (q *pendingFIFO) popFront() (*pendingEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return nil, false
	}
	e := q.entries[0]
	q.entries = q.entries[1:]
	return e, true
}

// removeSerial removes one entry by serial regardless of its queue
// position, used by the per-entry timeout to cancel a specific paste
// without disturbing the FIFO order of the rest.
func (q *pendingFIFO) removeSerial(serial uint32) (*pendingEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, e := range q.entries {
		if e.serial == serial {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return e, true
		}
	}
	return nil, false
}

// drainAll empties the queue and returns everything it held, used when
// one response or error resolves (or invalidates) every other
// outstanding request from the same paste gesture.
func (q *pendingFIFO) drainAll() []*pendingEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.entries
	q.entries = nil
	return out
}

func (q *pendingFIFO) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
