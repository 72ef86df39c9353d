package console

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"webterm/internal/backend"
)

const (
	// DefaultExecuteTimeout bounds a single command execution.
	DefaultExecuteTimeout = 30 * time.Second
	// DefaultDiagnosticsCapacity is how many failure records a session keeps.
	DefaultDiagnosticsCapacity = 200

	defaultSubscriberBufCap = 64
)

// DefaultWelcome is the system message every transcript starts with.
const DefaultWelcome = "Welcome to the web terminal.\nType 'help' to see available commands. Use the up and down arrows to browse command history."

var (
	ErrEmptyInput   = errors.New("input is empty")
	ErrBusy         = errors.New("a command is already running")
	ErrDisconnected = errors.New("terminal server is not connected")
	ErrClosed       = errors.New("console session closed")
)

// UpdateKind tells subscribers what changed.
type UpdateKind string

const (
	UpdateState UpdateKind = "state"
	UpdateEntry UpdateKind = "entry"
)

// Update is a change notification. Entry is set for UpdateEntry.
type Update struct {
	Kind  UpdateKind
	State State
	Entry *Entry
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger used for connectivity and failure events.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// WithPollInterval sets the polling cadence.
func WithPollInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithExecuteTimeout bounds each command execution. Zero disables the bound.
func WithExecuteTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d >= 0 {
			c.executeTimeout = d
		}
	}
}

// WithHistoryLimit caps the number of remembered commands.
func WithHistoryLimit(n int) Option {
	return func(c *Controller) {
		c.history = NewHistory(n)
	}
}

// WithWelcome replaces the initial system message.
func WithWelcome(text string) Option {
	return func(c *Controller) {
		c.welcome = text
	}
}

// WithDiagnosticsCapacity sets how many failure records are retained.
func WithDiagnosticsCapacity(n int) Option {
	return func(c *Controller) {
		c.diags = NewRingBuffer(n)
	}
}

// Controller owns the state of one console session. All state changes run
// on a single event-loop goroutine; network calls run elsewhere and post
// their results back to it.
type Controller struct {
	backend        Backend
	log            logrus.FieldLogger
	pollInterval   time.Duration
	executeTimeout time.Duration
	welcome        string
	diags          *RingBuffer

	// Owned by the loop goroutine.
	state    State
	history  *History
	inflight chan Entry
	subs     map[string]chan Update

	ops  chan func()
	quit chan struct{}
	done chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	lifecycleMu sync.Mutex
	started     bool
	closed      bool
}

// New creates a session controller bound to b and starts its event loop.
// Polling begins with Start.
func New(b Backend, opts ...Option) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		backend:        b,
		log:            logrus.StandardLogger(),
		pollInterval:   DefaultPollInterval,
		executeTimeout: DefaultExecuteTimeout,
		welcome:        DefaultWelcome,
		diags:          NewRingBuffer(DefaultDiagnosticsCapacity),
		history:        NewHistory(DefaultHistoryLimit),
		subs:           make(map[string]chan Update),
		ops:            make(chan func()),
		quit:           make(chan struct{}),
		done:           make(chan struct{}),
		ctx:            ctx,
		cancel:         cancel,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.state = State{
		Transcript:    []Entry{newEntry(SystemInput, c.welcome, false)},
		HistoryCursor: NoCursor,
	}

	go c.loop()
	return c
}

// Start begins polling the service. The first cycle runs immediately.
func (c *Controller) Start() error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.started {
		return nil
	}
	c.started = true

	p := &poller{
		backend:   c.backend,
		interval:  c.pollInterval,
		timeout:   probeTimeout(c.pollInterval),
		connected: c.isConnected,
		report: func(res pollResult) {
			c.post(func() { c.applyPoll(res) })
		},
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		p.run(c.ctx)
	}()
	return nil
}

// Close stops polling, abandons any in-flight command and ends the event
// loop. No poll result is applied once Close has been called.
func (c *Controller) Close() {
	c.lifecycleMu.Lock()
	if c.closed {
		c.lifecycleMu.Unlock()
		return
	}
	c.closed = true
	c.lifecycleMu.Unlock()

	close(c.quit)
	c.cancel()
	<-c.done
	c.wg.Wait()
}

// Done is closed once the controller has shut down.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

func (c *Controller) loop() {
	defer close(c.done)
	for {
		select {
		case <-c.quit:
			c.shutdown()
			return
		case op := <-c.ops:
			select {
			case <-c.quit:
				c.shutdown()
				return
			default:
			}
			op()
		}
	}
}

func (c *Controller) shutdown() {
	if c.inflight != nil {
		close(c.inflight)
		c.inflight = nil
	}
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
}

// do runs fn on the loop and waits for it.
func (c *Controller) do(fn func()) error {
	ran := make(chan struct{})
	select {
	case c.ops <- func() { fn(); close(ran) }:
	case <-c.quit:
		return ErrClosed
	}
	select {
	case <-ran:
		return nil
	case <-c.done:
		select {
		case <-ran:
			return nil
		default:
			return ErrClosed
		}
	}
}

// post queues fn on the loop without waiting. Dropped after Close.
func (c *Controller) post(fn func()) {
	select {
	case c.ops <- fn:
	case <-c.quit:
	}
}

// SetInput replaces the uncommitted input text.
func (c *Controller) SetInput(text string) error {
	return c.do(func() {
		if c.state.PendingInput == text {
			return
		}
		c.state.PendingInput = text
		c.notifyState()
	})
}

// Submit runs the pending input. It is a no-op returning ErrEmptyInput,
// ErrBusy or ErrDisconnected when the input is blank, a command is already
// running, or the service is unreachable. The returned channel yields the
// appended transcript entry.
func (c *Controller) Submit() (<-chan Entry, error) {
	var (
		result <-chan Entry
		err    error
	)
	if derr := c.do(func() { result, err = c.submit() }); derr != nil {
		return nil, derr
	}
	return result, err
}

// Execute submits command as if it had been typed and waits for its entry.
func (c *Controller) Execute(ctx context.Context, command string) (Entry, error) {
	var (
		result <-chan Entry
		err    error
	)
	derr := c.do(func() {
		prev := c.state.PendingInput
		c.state.PendingInput = command
		result, err = c.submit()
		if err != nil {
			c.state.PendingInput = prev
		}
	})
	if derr != nil {
		return Entry{}, derr
	}
	if err != nil {
		return Entry{}, err
	}

	select {
	case entry, ok := <-result:
		if !ok {
			return Entry{}, ErrClosed
		}
		return entry, nil
	case <-ctx.Done():
		return Entry{}, ctx.Err()
	}
}

func (c *Controller) submit() (<-chan Entry, error) {
	command := strings.TrimSpace(c.state.PendingInput)
	if command == "" {
		return nil, ErrEmptyInput
	}
	if c.state.Busy {
		return nil, ErrBusy
	}
	if !c.state.Connected {
		return nil, ErrDisconnected
	}

	c.state.Busy = true
	result := make(chan Entry, 1)
	c.inflight = result
	cwd := c.state.PromptDirectory()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		out := execute(c.ctx, c.backend, c.executeTimeout, command, cwd)
		c.post(func() { c.complete(out, result) })
	}()

	c.notifyState()
	return result, nil
}

func (c *Controller) complete(out outcome, result chan Entry) {
	entry := out.entry
	c.state.Transcript = append(c.state.Transcript, entry)
	if entry.Clear {
		c.state.ViewStart = len(c.state.Transcript)
	}
	if out.dir != nil {
		c.state.WorkingDirectory = *out.dir
	}
	c.history.Push(entry.Input)
	c.state.PendingInput = ""
	c.state.Busy = false

	if out.diag != nil {
		c.diags.Write(*out.diag)
		if out.diag.Kind != "command" {
			c.log.WithFields(logrus.Fields{
				"op":      out.diag.Op,
				"kind":    out.diag.Kind,
				"command": entry.Input,
			}).Warn("command could not be delivered: " + out.diag.Message)
		}
	}

	if c.inflight == result {
		c.inflight = nil
	}
	result <- entry
	close(result)

	c.notifyEntry(entry)
}

// RecallPrevious loads the next older history command into the input and
// returns the resulting input text.
func (c *Controller) RecallPrevious() (string, error) {
	return c.recall(c.history.Previous)
}

// RecallNext loads the next newer history command into the input, or
// clears the input when stepping past the newest one. It returns the
// resulting input text.
func (c *Controller) RecallNext() (string, error) {
	return c.recall(c.history.Next)
}

func (c *Controller) recall(step func() (string, bool)) (string, error) {
	var input string
	err := c.do(func() {
		if cmd, ok := step(); ok {
			c.state.PendingInput = cmd
			c.notifyState()
		}
		input = c.state.PendingInput
	})
	return input, err
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() (State, error) {
	var s State
	err := c.do(func() { s = c.snapshot() })
	return s, err
}

// Diagnostics returns recent failure records, oldest first.
func (c *Controller) Diagnostics() []Diagnostic {
	return c.diags.ReadAll()
}

// Subscribe registers for change notifications and returns the state at
// the moment of registration. Slow subscribers miss notifications rather
// than stall the session. The channel is closed by Unsubscribe or Close.
func (c *Controller) Subscribe() (string, <-chan Update, State, error) {
	id := uuid.New().String()
	ch := make(chan Update, defaultSubscriberBufCap)
	var s State
	err := c.do(func() {
		c.subs[id] = ch
		s = c.snapshot()
	})
	if err != nil {
		return "", nil, State{}, err
	}
	return id, ch, s, nil
}

// Unsubscribe removes a subscriber and closes its channel.
func (c *Controller) Unsubscribe(id string) {
	c.do(func() {
		if ch, ok := c.subs[id]; ok {
			close(ch)
			delete(c.subs, id)
		}
	})
}

func (c *Controller) isConnected() bool {
	var connected bool
	c.do(func() { connected = c.state.Connected })
	return connected
}

func (c *Controller) applyPoll(res pollResult) {
	changed := false

	if res.connected != c.state.Connected {
		changed = true
		c.state.Connected = res.connected
		if res.connected {
			c.log.WithField("remote", backendAddr(c.backend)).Info("terminal server connected")
			c.diags.Write(Diagnostic{Op: "health", Kind: "connectivity", Message: "connected"})
		} else {
			msg := "disconnected"
			if res.probeErr != nil {
				msg = res.probeErr.Error()
			}
			c.log.WithFields(logrus.Fields{
				"remote": backendAddr(c.backend),
				"kind":   backend.Kind(res.probeErr),
			}).Warn("terminal server unreachable: " + msg)
			c.diags.Write(Diagnostic{Op: "health", Kind: backend.Kind(res.probeErr), Message: msg})
		}
	}

	if res.metricsErr != nil {
		c.diags.Write(Diagnostic{Op: "system-info", Kind: backend.Kind(res.metricsErr), Message: res.metricsErr.Error()})
	}
	if res.metrics != nil && *res.metrics != c.state.Metrics {
		changed = true
		c.state.Metrics = *res.metrics
	}

	if changed {
		c.notifyState()
	}
}

func (c *Controller) snapshot() State {
	s := c.state.clone()
	s.History = c.history.Entries()
	s.HistoryCursor = c.history.Cursor()
	return s
}

func (c *Controller) notifyState() {
	c.fanOut(Update{Kind: UpdateState, State: c.snapshot()})
}

func (c *Controller) notifyEntry(entry Entry) {
	c.fanOut(Update{Kind: UpdateEntry, State: c.snapshot(), Entry: &entry})
}

func (c *Controller) fanOut(u Update) {
	for _, ch := range c.subs {
		select {
		case ch <- u:
		default:
			// Subscriber channel full, drop the update.
		}
	}
}

func backendAddr(b Backend) string {
	if a, ok := b.(interface{ BaseURL() string }); ok {
		return a.BaseURL()
	}
	return ""
}
