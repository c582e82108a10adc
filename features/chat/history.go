package chat

import (
	"sync"
	"time"
)

const defaultHistorySize = 50

type Exchange struct {
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	Status   string    `json:"status"`
	At       time.Time `json:"at"`
}

// History keeps the most recent exchanges served by this process.
type History struct {
	mu      sync.Mutex
	max     int
	entries []Exchange
}

func NewHistory(max int) *History {
	if max <= 0 {
		max = defaultHistorySize
	}
	return &History{max: max}
}

func (h *History) Append(e Exchange) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, e)
	if over := len(h.entries) - h.max; over > 0 {
		h.entries = append(h.entries[:0:0], h.entries[over:]...)
	}
}

func (h *History) Entries() []Exchange {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Exchange, len(h.entries))
	copy(out, h.entries)
	return out
}

func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = nil
}
