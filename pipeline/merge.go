package pipeline

import "github.com/alexherrero/chronoline/event"

// Merge pairs the Feed's primary chronological stream (trades and
// orders) with the simulator's per-trade echo into one record per
// input event: order events pass straight through unchanged, and
// trade events are combined with their echo's Transaction (nil when
// the trade produced no fill) before being forwarded. Because the
// simulator echoes every trade it consumes — filled or not — Merge
// never blocks a trade waiting on a fill that will never arrive; it
// only ever waits for that trade's definitive echo.
type Merge struct {
	id  string
	out chan event.Envelope

	main *sourceState
	tx   *sourceState

	closed bool
}

// NewMerge builds a Merge component. mainID/mainIn is the Feed's
// already-ordered trade/order stream; txID/txIn is the simulator's
// per-trade echo (trade events only, Transaction attached when the
// trade was filled).
func NewMerge(id, mainID string, mainIn <-chan event.Envelope, txID string, txIn <-chan event.Envelope, outBuffer int) *Merge {
	return &Merge{
		id:   id,
		out:  make(chan event.Envelope, outBuffer),
		main: &sourceState{id: mainID, in: mainIn},
		tx:   &sourceState{id: txID, in: txIn},
	}
}

// ID implements Component.
func (m *Merge) ID() string { return m.id }

// Type implements Component.
func (m *Merge) Type() ComponentType { return TypeConduit }

// Out returns Merge's combined, paired output stream.
func (m *Merge) Out() <-chan event.Envelope { return m.out }

// Open acquires no external resources.
func (m *Merge) Open() error { return nil }

// DoWork tops up both source buffers, then decides what to emit: an
// order is forwarded the moment it's buffered, with no dependency on
// the echo stream at all. A trade is held until its matching echo
// shows up on tx (or tx is exhausted, in which case the trade is
// forwarded unfilled) — the two streams stay in lockstep because the
// simulator produces exactly one echo per trade it consumes, in the
// same relative order the Feed emitted them.
func (m *Merge) DoWork() (done bool, err error) {
	fillSource(m.main)
	fillSource(m.tx)

	if m.main.buffer == nil {
		if m.main.done {
			m.finish()
			return true, nil
		}
		return false, nil
	}

	head := *m.main.buffer
	if head.Type != event.TypeTrade {
		m.main.buffer = nil
		m.out <- head
		return false, nil
	}

	if m.tx.buffer == nil {
		if m.tx.done {
			m.main.buffer = nil
			m.out <- head
			return false, nil
		}
		return false, nil
	}

	echo := *m.tx.buffer
	m.tx.buffer = nil
	m.main.buffer = nil
	head.Transaction = echo.Transaction
	m.out <- head
	return false, nil
}

// fillSource performs one non-blocking read attempt on s, discarding
// filler events: they carry no timestamp and must never be treated as
// a trade's echo.
func fillSource(s *sourceState) {
	if s.done || s.buffer != nil {
		return
	}
	for {
		select {
		case ev, ok := <-s.in:
			if !ok {
				s.done = true
				return
			}
			if ev.IsFiller() {
				continue
			}
			s.buffer = &ev
			return
		default:
			return
		}
	}
}

func (m *Merge) finish() {
	if !m.closed {
		close(m.out)
		m.closed = true
	}
}

// Done implements Component.
func (m *Merge) Done() error {
	m.finish()
	return nil
}

// Kill implements Component: identical to Done, Merge holds no
// external resources beyond its own output channel.
func (m *Merge) Kill() error {
	return m.Done()
}
