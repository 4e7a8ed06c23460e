package itemcollector

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Command names handled by [Collector.HandleCommand].
const (
	CommandStart = "ISTART"
	CommandStop  = "ISTOP"
)

// allTargets are the target names that select every registered session.
var allTargets = []string{"ASF", "all"}

// msgNoSessions is returned when a target list selects nothing.
const msgNoSessions = "No sessions registered"

// HandleCommand executes an ISTART or ISTOP command issued by the session
// named caller.
//
// Without a target argument the command applies to caller; with one it
// applies to the comma-separated target list. Command names are matched
// case-insensitively. handled is false for any other command or argument
// count, in which case the host should try other handlers. Access control
// is the host's concern.
func (c *Collector) HandleCommand(ctx context.Context, caller string, args []string) (response string, handled bool) {
	if len(args) == 0 || len(args) > 2 {
		return "", false
	}

	targets := caller
	if len(args) == 2 {
		targets = args[1]
	}

	switch strings.ToUpper(args[0]) {
	case CommandStart:
		return c.StartIdling(ctx, targets), true
	case CommandStop:
		return c.StopIdling(ctx, targets), true
	default:
		return "", false
	}
}

// StartIdling starts idling on every session named in the comma-separated
// targets list and returns one response line per target.
//
// "ASF" or "all" selects every registered session. Each unknown name yields
// a single "<name>: not found" line. Known targets are started in parallel
// and independently of each other; lines keep the order of the list.
func (c *Collector) StartIdling(ctx context.Context, targets string) string {
	return c.fanOut(ctx, targets, func(ctx context.Context, name string, reg *registration) string {
		if err := reg.controller.Start(ctx); err != nil {
			c.logger.Error("failed to start item idling", "session", name, "error", err)
			return name + ": Failed to start item idling: " + err.Error()
		}
		return name + ": Successfully started item idling"
	})
}

// StopIdling stops idling on every session named in targets. See
// [Collector.StartIdling] for the target syntax.
func (c *Collector) StopIdling(ctx context.Context, targets string) string {
	return c.fanOut(ctx, targets, func(ctx context.Context, name string, reg *registration) string {
		if err := reg.controller.Stop(ctx); err != nil {
			c.logger.Error("failed to stop item idling", "session", name, "error", err)
			return name + ": Failed to stop item idling: " + err.Error()
		}
		return name + ": Successfully stopped item idling"
	})
}

// target is one resolved entry of a target list.
type target struct {
	name string
	reg  *registration
}

// resolveTargets splits a target list into known sessions and unknown
// names, preserving order and dropping duplicates.
func (c *Collector) resolveTargets(targets string) []target {
	var resolved []target
	seen := make(map[string]bool)

	add := func(name string) {
		if seen[name] {
			return
		}
		seen[name] = true
		reg, _ := c.lookup(name)
		resolved = append(resolved, target{name: name, reg: reg})
	}

	for _, raw := range strings.Split(targets, ",") {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		if isAllTarget(name) {
			for _, n := range c.names() {
				add(n)
			}
			continue
		}
		add(name)
	}
	return resolved
}

func isAllTarget(name string) bool {
	for _, all := range allTargets {
		if strings.EqualFold(name, all) {
			return true
		}
	}
	return false
}

// fanOut runs action for every known target in parallel and joins the
// non-empty responses in target order.
func (c *Collector) fanOut(ctx context.Context, targets string, action func(context.Context, string, *registration) string) string {
	resolved := c.resolveTargets(targets)
	if len(resolved) == 0 {
		return msgNoSessions
	}

	responses := make([]string, len(resolved))
	var g errgroup.Group
	for i, t := range resolved {
		if t.reg == nil {
			responses[i] = t.name + ": not found"
			continue
		}
		g.Go(func() error {
			responses[i] = action(ctx, t.name, t.reg)
			return nil
		})
	}
	_ = g.Wait()

	lines := make([]string, 0, len(responses))
	for _, r := range responses {
		if r != "" {
			lines = append(lines, r)
		}
	}
	return strings.Join(lines, "\n")
}
