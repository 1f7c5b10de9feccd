// Package preview keeps a live rendering of an edited windfile up to date by
// calling the generation service as the text and the selected target change.
package preview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"windci/internal/apperror"
	"windci/internal/core"
	"windci/internal/service"
)

// DefaultDebounce collapses bursts of edits into one request.
const DefaultDebounce = 300 * time.Millisecond

// Generator is the generation service as seen by the coordinator.
type Generator interface {
	Generate(ctx context.Context, target core.Target, text string) (*service.Result, error)
}

// State is the coordinator's position in its state machine.
type State int

const (
	Idle State = iota
	Validating
	Blocked
	Requesting
	Rendered
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Validating:
		return "validating"
	case Blocked:
		return "blocked"
	case Requesting:
		return "requesting"
	case Rendered:
		return "rendered"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Render is one successful generation.
type Render struct {
	Target  core.Target
	Text    string
	Key     string
	Elapsed time.Duration
	// Seq is the request sequence number that produced the render.
	Seq uint64
}

// View is a snapshot of what the preview shows.
type View struct {
	State  State
	Target core.Target
	// Render is the last render for Target, nil when there is none yet.
	Render  *Render
	Markers []apperror.Marker
	// Err is the last request failure. It does not replace Render.
	Err error
}

// Text returns the rendered text or a placeholder.
func (v View) Text() string {
	if v.Render != nil {
		return v.Render.Text
	}
	return fmt.Sprintf("# no %s preview yet", v.Target.WireName())
}

// Options configures a Coordinator.
type Options struct {
	Debounce time.Duration
	Target   core.Target
	Logger   *slog.Logger
}

type input struct {
	text    string
	markers []apperror.Marker
	target  core.Target
	version uint64
}

type result struct {
	seq uint64
	res *service.Result
	err error
}

// Coordinator serializes edits, target changes and responses on one event
// loop. At most one request is in flight; a newer edit cancels it and its
// response is dropped when it arrives.
type Coordinator struct {
	gen      Generator
	debounce time.Duration
	logger   *slog.Logger

	wake    chan struct{}
	results chan result

	mu   sync.Mutex
	in   input
	view View
	subs []chan View
}

// New creates a coordinator. Call Run to start it.
func New(gen Generator, opts Options) *Coordinator {
	target := opts.Target
	if target == "" {
		target = core.TargetBash
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	debounce := opts.Debounce
	if debounce < 0 {
		debounce = 0
	}
	return &Coordinator{
		gen:      gen,
		debounce: debounce,
		logger:   logger.With("component", "preview"),
		wake:     make(chan struct{}, 1),
		results:  make(chan result),
		in:       input{target: target},
		view:     View{State: Idle, Target: target},
	}
}

// Edit records new text and the markers the local validator reported for it.
// It never blocks.
func (c *Coordinator) Edit(text string, markers []apperror.Marker) {
	c.mu.Lock()
	c.in.text = text
	c.in.markers = markers
	c.in.version++
	c.mu.Unlock()
	c.notify()
}

// SelectTarget switches the previewed target. It never blocks.
func (c *Coordinator) SelectTarget(t core.Target) {
	c.mu.Lock()
	if c.in.target != t {
		c.in.target = t
		c.in.version++
	}
	c.mu.Unlock()
	c.notify()
}

// View returns the current snapshot.
func (c *Coordinator) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

// Subscribe returns a channel receiving every published snapshot. Slow
// subscribers miss intermediate snapshots. The channel is closed when Run returns.
func (c *Coordinator) Subscribe() <-chan View {
	ch := make(chan View, 16)
	c.mu.Lock()
	c.subs = append(c.subs, ch)
	c.mu.Unlock()
	return ch
}

func (c *Coordinator) notify() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// loop holds the state owned by the Run goroutine.
type loop struct {
	handled  uint64
	current  input
	seq      uint64
	latest   uint64 // seq whose response may still be rendered, 0 for none
	busy     bool
	pending  bool // issue once the cancelled request has returned
	cancel   context.CancelFunc
	debounce *time.Timer
	fire     <-chan time.Time
	renders  map[core.Target]*Render
}

// Run processes events until ctx is done.
func (c *Coordinator) Run(ctx context.Context) error {
	l := &loop{renders: make(map[core.Target]*Render)}
	defer func() {
		if l.cancel != nil {
			l.cancel()
		}
		if l.debounce != nil {
			l.debounce.Stop()
		}
		c.mu.Lock()
		for _, ch := range c.subs {
			close(ch)
		}
		c.subs = nil
		c.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.wake:
			c.onInput(l)
		case <-l.fire:
			l.fire = nil
			c.issue(ctx, l)
		case r := <-c.results:
			c.onResult(ctx, l, r)
		}
	}
}

func (c *Coordinator) onInput(l *loop) {
	c.mu.Lock()
	in := c.in
	c.mu.Unlock()
	if in.version == l.handled {
		return
	}
	l.handled = in.version
	l.current = in

	// responses to earlier input are stale from here on, and so is a
	// request queued behind a cancelled one
	l.latest = 0
	l.pending = false
	if l.cancel != nil {
		l.cancel()
	}
	c.publish(l, Validating, in.markers, nil)

	switch {
	case in.text == "":
		l.stopTimer()
		c.publish(l, Idle, in.markers, nil)
		return
	case apperror.HasErrors(in.markers):
		l.stopTimer()
		c.publish(l, Blocked, in.markers, nil)
		return
	}
	l.arm(c.debounce)
}

func (c *Coordinator) issue(ctx context.Context, l *loop) {
	if l.busy {
		l.pending = true
		return
	}
	l.seq++
	l.latest = l.seq
	l.busy = true
	reqCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel

	seq, target, text := l.seq, l.current.target, l.current.text
	c.logger.Debug("requesting preview", slog.Uint64("seq", seq), slog.String("target", target.WireName()))
	go func() {
		defer cancel()
		res, err := c.gen.Generate(reqCtx, target, text)
		if err == nil && res == nil {
			err = apperror.New(apperror.Internal, "generator returned no result")
		}
		select {
		case c.results <- result{seq: seq, res: res, err: err}:
		case <-ctx.Done():
		}
	}()
	c.publish(l, Requesting, l.current.markers, nil)
}

func (c *Coordinator) onResult(ctx context.Context, l *loop, r result) {
	l.busy = false
	l.cancel = nil
	if l.pending {
		l.pending = false
		c.issue(ctx, l)
		return
	}
	if r.seq != l.latest {
		c.logger.Debug("dropping stale preview", slog.Uint64("seq", r.seq))
		return
	}
	l.latest = 0

	if r.err != nil {
		state := Idle
		if l.renders[l.current.target] != nil {
			state = Rendered
		}
		markers := l.current.markers
		if apperror.IsKind(r.err, apperror.TransportFailure) {
			c.logger.Warn("preview request failed", slog.Any("error", r.err))
		} else {
			state = Blocked
			var appErr *apperror.Error
			if errors.As(r.err, &appErr) && len(appErr.Markers) > 0 {
				markers = appErr.Markers
			}
			c.logger.Info("preview rejected by service", slog.Any("error", r.err))
		}
		c.publish(l, state, markers, r.err)
		return
	}

	l.renders[r.res.Target] = &Render{
		Target:  r.res.Target,
		Text:    r.res.Text,
		Key:     r.res.Key,
		Elapsed: r.res.Elapsed,
		Seq:     r.seq,
	}
	c.publish(l, Rendered, l.current.markers, nil)
}

func (c *Coordinator) publish(l *loop, state State, markers []apperror.Marker, err error) {
	v := View{
		State:   state,
		Target:  l.current.target,
		Render:  l.renders[l.current.target],
		Markers: markers,
		Err:     err,
	}

	c.mu.Lock()
	c.view = v
	subs := c.subs
	c.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- v:
		default:
		}
	}
}

func (l *loop) arm(d time.Duration) {
	l.stopTimer()
	l.debounce = time.NewTimer(d)
	l.fire = l.debounce.C
}

func (l *loop) stopTimer() {
	if l.debounce != nil {
		l.debounce.Stop()
	}
	l.fire = nil
}
