package pipeline

import "context"

// RunComponent drives a single Component's lifecycle loop: Open, then
// confirm/do_work until the component reports done, errors, or ctx is
// cancelled. It is meant to run in its own goroutine, one per
// component, with the Controller supervising all of them over the
// heartbeat protocol.
func RunComponent(ctx context.Context, c *Controller, comp Component) error {
	if err := comp.Open(); err != nil {
		return err
	}
	tick := c.Register(comp.ID())

	for {
		select {
		case <-ctx.Done():
			_ = comp.Kill()
			return ctx.Err()
		case ctime := <-tick:
			c.Reply(HeartbeatReply{ComponentID: comp.ID(), Status: StatusOK, CTime: ctime})
		default:
		}

		done, err := comp.DoWork()
		if err != nil {
			c.Reply(HeartbeatReply{ComponentID: comp.ID(), Status: StatusException, Err: err})
			_ = comp.Kill()
			return err
		}
		if done {
			_ = comp.Done()
			c.Reply(HeartbeatReply{ComponentID: comp.ID(), Status: StatusDone})
			return nil
		}
	}
}
