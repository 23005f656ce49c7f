package resolve

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/dgallion1/docmark/internal/warn"
)

// State is the lifecycle position of one placeholder.
type State int

const (
	Collected State = iota
	Dispatched
	Resolved
	Failed
	Skipped
)

func (s State) String() string {
	switch s {
	case Collected:
		return "collected"
	case Dispatched:
		return "dispatched"
	case Resolved:
		return "resolved"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Placeholder is an image waiting for a description. Placeholders without
// data or marked Skipped are never dispatched.
type Placeholder struct {
	ID      string
	Name    string
	Data    []byte
	MIME    string
	Skipped bool
}

// Result is the final state of one placeholder.
type Result struct {
	ID          string
	State       State
	Description string
	Err         error
}

// Results maps placeholder ids to outcomes. It is built after the join and
// read-only afterwards.
type Results struct {
	byID     map[string]Result
	order    []string
	Warnings []warn.Warning
}

// Alt returns the resolved description for id.
func (r *Results) Alt(id string) (string, bool) {
	if r == nil {
		return "", false
	}
	res, ok := r.byID[id]
	if !ok || res.State != Resolved {
		return "", false
	}
	return res.Description, true
}

// Get returns the result for id.
func (r *Results) Get(id string) (Result, bool) {
	res, ok := r.byID[id]
	return res, ok
}

// All returns results in placeholder order.
func (r *Results) All() []Result {
	out := make([]Result, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Count returns how many placeholders ended in state s.
func (r *Results) Count(s State) int {
	n := 0
	for _, res := range r.byID {
		if res.State == s {
			n++
		}
	}
	return n
}

type entry struct {
	ph    Placeholder
	state State
	desc  string
	err   error
}

// Coordinator owns the placeholder arena for one conversion.
type Coordinator struct {
	entries []*entry
	prompt  string
}

// New indexes placeholders in order. An empty prompt means DefaultPrompt.
func New(placeholders []Placeholder, prompt string) *Coordinator {
	if prompt == "" {
		prompt = DefaultPrompt
	}
	c := &Coordinator{prompt: prompt, entries: make([]*entry, 0, len(placeholders))}
	for _, ph := range placeholders {
		e := &entry{ph: ph}
		if ph.Skipped || len(ph.Data) == 0 {
			e.state = Skipped
		}
		if e.ph.MIME == "" && len(ph.Data) > 0 {
			e.ph.MIME = SniffMIME(ph.Name, ph.Data)
		}
		c.entries = append(c.entries, e)
	}
	return c
}

// ResolveSequential describes placeholders one at a time in order.
func (c *Coordinator) ResolveSequential(ctx context.Context, d Describer) *Results {
	for _, e := range c.entries {
		if e.state != Collected {
			continue
		}
		if err := ctx.Err(); err != nil {
			e.state, e.err = Failed, err
			continue
		}
		e.state = Dispatched
		text, err := d.Describe(ctx, e.ph.Data, e.ph.MIME, c.prompt)
		c.settle(e, text, err)
	}
	return c.results()
}

// ResolveConcurrent dispatches every pending placeholder at once and joins
// all of them. Outcomes are matched back by placeholder, not by completion
// order. On cancellation the remaining calls are abandoned and fail.
func (c *Coordinator) ResolveConcurrent(ctx context.Context, d AsyncDescriber) *Results {
	pending := make([]<-chan Outcome, len(c.entries))
	for i, e := range c.entries {
		if e.state != Collected {
			continue
		}
		if ctx.Err() != nil {
			e.state, e.err = Failed, ctx.Err()
			continue
		}
		e.state = Dispatched
		pending[i] = d.DescribeAsync(ctx, e.ph.Data, e.ph.MIME, c.prompt)
	}
	for i, ch := range pending {
		if ch == nil {
			continue
		}
		e := c.entries[i]
		select {
		case out := <-ch:
			c.settle(e, out.Text, out.Err)
		case <-ctx.Done():
			e.state, e.err = Failed, ctx.Err()
		}
	}
	return c.results()
}

func (c *Coordinator) settle(e *entry, text string, err error) {
	text = strings.TrimSpace(text)
	switch {
	case err != nil:
		e.state, e.err = Failed, err
	case text == "":
		e.state, e.err = Failed, errors.New("empty description")
	default:
		e.state, e.desc = Resolved, text
	}
}

// results freezes the arena into the id-keyed map. Warnings follow
// placeholder order.
func (c *Coordinator) results() *Results {
	r := &Results{byID: make(map[string]Result, len(c.entries))}
	for _, e := range c.entries {
		r.byID[e.ph.ID] = Result{ID: e.ph.ID, State: e.state, Description: e.desc, Err: e.err}
		r.order = append(r.order, e.ph.ID)
		if e.state == Failed {
			reason := "failed"
			if errors.Is(e.err, context.Canceled) || errors.Is(e.err, context.DeadlineExceeded) {
				reason = "cancelled"
			}
			r.Warnings = append(r.Warnings, warn.Warning{
				Code:     warn.UnsupportedFeature,
				Message:  fmt.Sprintf("image description %s: %v", reason, e.err),
				Location: e.ph.Name,
			})
		}
	}
	return r
}
