package realtime

import "sync"

// BacktestStreamHub fans out per-backtest progress snapshots to any
// websocket clients subscribed to that backtest's id. It is
// independent of WebSocketManager's engine-wide broadcast: a snapshot
// published under one backtest id only reaches subscribers of that id.
type BacktestStreamHub struct {
	mu   sync.Mutex
	subs map[string]map[chan interface{}]bool
}

// NewBacktestStreamHub creates an empty hub.
func NewBacktestStreamHub() *BacktestStreamHub {
	return &BacktestStreamHub{subs: make(map[string]map[chan interface{}]bool)}
}

// Subscribe registers a new listener for id's snapshots and returns
// its channel along with an unsubscribe function. The caller must call
// unsubscribe exactly once, which closes the channel.
func (h *BacktestStreamHub) Subscribe(id string) (<-chan interface{}, func()) {
	ch := make(chan interface{}, 64)

	h.mu.Lock()
	if h.subs[id] == nil {
		h.subs[id] = make(map[chan interface{}]bool)
	}
	h.subs[id][ch] = true
	h.mu.Unlock()

	unsubscribe := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if set, ok := h.subs[id]; ok {
			if _, present := set[ch]; present {
				delete(set, ch)
				close(ch)
			}
			if len(set) == 0 {
				delete(h.subs, id)
			}
		}
	}
	return ch, unsubscribe
}

// Publish sends payload to every current subscriber of id. A
// subscriber whose buffer is full has the snapshot dropped rather than
// blocking the backtest run that's publishing it.
func (h *BacktestStreamHub) Publish(id string, payload interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[id] {
		select {
		case ch <- payload:
		default:
		}
	}
}
