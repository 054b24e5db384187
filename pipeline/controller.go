package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// State is one of the Controller's three lifecycle phases.
type State int

const (
	// StateRunning dispatches heartbeats and lets components work.
	StateRunning State = iota
	// StateShutdown is entered by Shutdown. Heartbeats are broadcast in
	// this state exactly as in StateRunning; nothing holds back work or
	// waits for components to drain.
	StateShutdown
	// StateTerminate ends the Controller's Run loop at its next
	// heartbeat. Components are not signalled; each stops only when its
	// own context is cancelled or its DoWork reports done or an error.
	StateTerminate
)

const (
	// DefaultHeartbeatInterval is how often the Controller broadcasts
	// ctime to tracked components.
	DefaultHeartbeatInterval = 1 * time.Second
	// DefaultHeartbeatTimeout is how long the Controller waits for
	// replies before declaring stragglers failed.
	DefaultHeartbeatTimeout = 2 * time.Second
	// maxConsecutiveMisses is how many heartbeats in a row a component
	// may miss before the Controller removes it from tracking.
	maxConsecutiveMisses = 2
)

// Controller supervises N components: it broadcasts the current
// timestamp every heartbeat period, collects replies, computes
// good/bad/new component sets, and moves to TERMINATE when a
// component fails.
type Controller struct {
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	// Freeform, when true, admits any identity that replies as newly
	// tracked instead of treating it as a protocol error.
	Freeform bool

	mu        sync.Mutex
	state     State
	topology  map[string]bool
	tracked   map[string]bool
	misses    map[string]int
	tickChans map[string]chan time.Time

	replies   chan HeartbeatReply
	exception chan ExceptionReport
	doneCh    chan struct{}
	closeOnce sync.Once
}

// NewController creates a Controller. topology is the set of component
// identities expected to show up; pass nil and freeform=true to accept
// any identity that announces itself.
func NewController(topology []string, freeform bool) *Controller {
	top := make(map[string]bool, len(topology))
	for _, id := range topology {
		top[id] = true
	}
	return &Controller{
		HeartbeatInterval: DefaultHeartbeatInterval,
		HeartbeatTimeout:  DefaultHeartbeatTimeout,
		Freeform:          freeform,
		state:             StateRunning,
		topology:          top,
		tracked:           make(map[string]bool),
		misses:            make(map[string]int),
		tickChans:         make(map[string]chan time.Time),
		replies:           make(chan HeartbeatReply, 64),
		exception:         make(chan ExceptionReport, 1),
		doneCh:            make(chan struct{}),
	}
}

// Register subscribes a component to the heartbeat broadcast, returning
// the channel it must select on to receive each tick's ctime.
func (c *Controller) Register(id string) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	c.tickChans[id] = ch
	return ch
}

// Reply is how a component answers a heartbeat: OK (still alive), Done
// (clean exit, removed from tracking silently), or Exception (failure,
// triggers system-wide TERMINATE).
func (c *Controller) Reply(reply HeartbeatReply) {
	c.replies <- reply
}

// State returns the Controller's current lifecycle phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Exceptions returns the channel on which the terminal ExceptionReport
// is delivered, if the run fails. Nothing is sent on clean completion,
// and the channel is never closed.
func (c *Controller) Exceptions() <-chan ExceptionReport {
	return c.exception
}

// Done reports when the Controller's Run loop has exited.
func (c *Controller) Done() <-chan struct{} {
	return c.doneCh
}

// Run drives the heartbeat protocol until ctx is cancelled or a fatal
// error forces TERMINATE. It is meant to run in its own goroutine.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(c.HeartbeatInterval)
	defer ticker.Stop()
	defer c.closeOnce.Do(func() { close(c.doneCh) })

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.beat() {
				return
			}
		}
	}
}

// beat runs a single heartbeat cycle: broadcast, collect, reconcile.
// Returns true when the Controller should stop its Run loop.
func (c *Controller) beat() (terminate bool) {
	ctime := time.Now()

	c.mu.Lock()
	if c.state == StateTerminate {
		c.mu.Unlock()
		return true
	}
	for id, ch := range c.tickChans {
		select {
		case ch <- ctime:
		default:
			log.Warn().Str("component", id).Msg("heartbeat channel full, component slow to drain")
		}
	}
	c.mu.Unlock()

	responded := make(map[string]bool)
	deadline := time.After(c.HeartbeatTimeout)

collect:
	for {
		select {
		case reply := <-c.replies:
			switch reply.Status {
			case StatusOK:
				responded[reply.ComponentID] = true
				c.noteResponse(reply.ComponentID)
			case StatusDone:
				c.noteDone(reply.ComponentID)
			case StatusException:
				c.noteException(reply.ComponentID, reply.Err)
				return true
			}
		case <-deadline:
			break collect
		}
	}

	c.reconcile(responded)

	c.mu.Lock()
	term := c.state == StateTerminate
	c.mu.Unlock()
	return term
}

// noteResponse admits a new identity (if freeform or in topology) or
// records a protocol error otherwise.
func (c *Controller) noteResponse(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tracked[id] {
		return
	}
	if c.topology[id] || c.Freeform {
		c.tracked[id] = true
		log.Info().Str("component", id).Msg("controller: new component tracked")
		return
	}
	err := &ProtocolError{ComponentID: id}
	log.Error().Err(err).Msg("controller: unknown identity on control channel")
	c.raiseException(newExceptionReport(id, "ProtocolError", err))
}

func (c *Controller) noteDone(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tracked, id)
	delete(c.misses, id)
	delete(c.tickChans, id)
	log.Info().Str("component", id).Msg("controller: component done")
}

func (c *Controller) noteException(id string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		err = &AlgorithmError{ComponentID: id}
	}
	c.raiseException(newExceptionReport(id, "Exception", err))
}

// reconcile computes good/bad/new against the responded set and
// applies heartbeat-miss bookkeeping. Caller must not hold c.mu.
func (c *Controller) reconcile(responded map[string]bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateTerminate {
		return
	}

	for id := range c.tracked {
		if responded[id] {
			c.misses[id] = 0
			continue
		}
		c.misses[id]++
		if c.misses[id] >= maxConsecutiveMisses {
			err := &HeartbeatTimeoutError{ComponentID: id, Missed: c.misses[id]}
			delete(c.tracked, id)
			delete(c.misses, id)
			delete(c.tickChans, id)
			log.Error().Err(err).Msg("controller: component failed heartbeat")
			c.raiseException(newExceptionReport(id, "HeartbeatTimeout", err))
			return
		}
	}
}

// raiseException transitions to TERMINATE and delivers the report.
// Caller must hold c.mu.
func (c *Controller) raiseException(report ExceptionReport) {
	if c.state == StateTerminate {
		return
	}
	c.state = StateTerminate
	select {
	case c.exception <- report:
	default:
	}
}

// Shutdown moves a running Controller to StateShutdown. It only changes
// the state: heartbeats continue, and components are neither drained
// nor stopped.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateRunning {
		c.state = StateShutdown
	}
}

// Terminate moves the Controller to StateTerminate, so its Run loop
// exits at the next heartbeat. Components are not signalled or stopped.
func (c *Controller) Terminate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateTerminate
}

// Tracked returns a snapshot of the currently tracked component ids.
func (c *Controller) Tracked() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.tracked))
	for id := range c.tracked {
		ids = append(ids, id)
	}
	return ids
}

// NewComponentID generates a random component identity suffix, for
// components whose topology slot is not a fixed well-known name (e.g.
// one TradeSource per symbol group).
func NewComponentID(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8]
}
