package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
)

// RunResult is what a completed (or failed) run leaves behind.
type RunResult struct {
	RunID     string         `json:"runId"`
	FlowID    string         `json:"flowId"`
	Visits    int            `json:"visits"`
	Committed int            `json:"committed"`
	Variables map[string]any `json:"variables"`
	Events    []Event        `json:"events,omitempty"`
}

// Engine owns the flows of one project and runs them against a record
// store and a notifier. At most one run is active per Engine; use separate
// engines for concurrent runs.
type Engine struct {
	l        *slog.Logger
	cfg      Config
	store    RecordStore
	notifier Notifier
	aliases  *AliasCache
	executor *Executor

	running atomic.Bool

	mu        sync.RWMutex
	project   *projectIndex
	flows     map[string]*Flow
	destroyed bool
}

type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.l = l
	}
}

func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

// WithAliasCache shares field alias tables between engines.
func WithAliasCache(cache *AliasCache) Option {
	return func(e *Engine) {
		e.aliases = cache
	}
}

// New builds an engine. A nil notifier logs effects instead of surfacing them.
func New(store RecordStore, notifier Notifier, opts ...Option) *Engine {
	e := &Engine{
		l:     slog.Default(),
		cfg:   NewConfig(),
		store: store,
		flows: make(map[string]*Flow),
	}
	for _, opt := range opts {
		opt(e)
	}
	if notifier == nil {
		notifier = NewLogNotifier(e.l)
	}
	if e.aliases == nil {
		e.aliases = NewAliasCache(e.cfg.AliasCacheTTL)
	}
	e.notifier = notifier
	e.executor = NewExecutor(e.l, store, notifier)
	return e
}

// Init loads the project's collections and field aliases. It can be called
// again to switch to or refresh a project.
func (e *Engine) Init(ctx context.Context, projectID string) error {
	e.mu.RLock()
	destroyed := e.destroyed
	e.mu.RUnlock()
	if destroyed {
		return ErrDestroyed
	}

	project, err := e.store.GetProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("error loading project %s: %w", projectID, err)
	}

	table, ok := e.aliases.Get(projectID)
	if !ok {
		fields, err := e.store.ListFields(ctx, projectID)
		if err != nil {
			return fmt.Errorf("error loading fields of project %s: %w", projectID, err)
		}
		table = NewAliasTable(fields)
		e.aliases.Put(projectID, table)
	}

	e.mu.Lock()
	e.project = newProjectIndex(project, table)
	e.mu.Unlock()

	e.l.InfoContext(ctx, fmt.Sprintf("Engine initialized for project %s (%d collections)", projectID, len(project.Collections)))
	return nil
}

// RegisterFlow validates a flow and makes it available to Trigger.
func (e *Engine) RegisterFlow(flow *Flow) error {
	if err := Validate(flow, e.cfg); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return ErrDestroyed
	}
	e.flows[flow.ID] = flow
	return nil
}

// Flows lists the registered flows ordered by id.
func (e *Engine) Flows() []*Flow {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Flow, 0, len(e.flows))
	for _, f := range e.flows {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ExecuteFlow runs flow to completion. A second call while a run is active
// returns ErrBusy without waiting. Failures are reported as *FlowError; on a
// runtime failure the partial RunResult is returned alongside the error.
func (e *Engine) ExecuteFlow(ctx context.Context, flow *Flow, trigger TriggerContext) (*RunResult, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer e.running.Store(false)

	e.mu.RLock()
	project, destroyed := e.project, e.destroyed
	e.mu.RUnlock()
	switch {
	case destroyed:
		return nil, ErrDestroyed
	case project == nil:
		return nil, ErrNotInitialized
	}

	p, err := compile(flow, e.cfg)
	if err != nil {
		e.l.ErrorContext(ctx, fmt.Sprintf("Flow %s failed validation", flowID(flow)), "error", err)
		return nil, err
	}

	exec := newExecution(ctx, p, project, trigger)
	runErr := e.executor.Run(exec)

	result := &RunResult{
		RunID:     exec.ID,
		FlowID:    flow.ID,
		Visits:    exec.Visits,
		Committed: exec.Committed,
		Variables: plainVariables(exec.Vars),
		Events:    exec.Events,
	}
	return result, runErr
}

// Trigger locates the flow selected by the trigger and runs it. A failed
// run is surfaced to the user as a single error notification.
func (e *Engine) Trigger(ctx context.Context, trigger TriggerContext) (*RunResult, error) {
	flow, ok := e.match(trigger)
	if !ok {
		return nil, fmt.Errorf("%w: id=%q event=%q component=%q", ErrFlowNotFound, trigger.FlowID, trigger.Event, trigger.ComponentID)
	}

	result, err := e.ExecuteFlow(ctx, flow, trigger)
	if err == nil || errors.Is(err, ErrBusy) {
		return result, err
	}

	msg := fmt.Sprintf("flow %s failed: %s", flow.DisplayName(), failureReason(err))
	if nerr := e.notifier.Notify(ctx, NotifyError, msg); nerr != nil {
		e.l.ErrorContext(ctx, "Error sending failure notification", "flow", flow.ID, "error", nerr)
	}
	return result, err
}

func (e *Engine) match(trigger TriggerContext) (*Flow, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if trigger.FlowID != "" {
		f, ok := e.flows[trigger.FlowID]
		return f, ok
	}
	ids := make([]string, 0, len(e.flows))
	for id := range e.flows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if trigger.Matches(e.flows[id]) {
			return e.flows[id], true
		}
	}
	return nil, false
}

// Busy reports whether a run is in progress.
func (e *Engine) Busy() bool {
	return e.running.Load()
}

// Destroy releases the project and the registered flows. The engine cannot
// be used afterwards.
func (e *Engine) Destroy() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.project = nil
	e.flows = make(map[string]*Flow)
	e.destroyed = true
}

func plainVariables(vars *VariableStore) map[string]any {
	snapshot := vars.Snapshot()
	out := make(map[string]any, len(snapshot))
	for k, v := range snapshot {
		out[k] = v.Any()
	}
	return out
}

func failureReason(err error) string {
	var fe *FlowError
	if errors.As(err, &fe) {
		if fe.Cause != nil {
			return fe.Message + ": " + fe.Cause.Error()
		}
		return fe.Message
	}
	return err.Error()
}

func flowID(flow *Flow) string {
	if flow == nil {
		return "<nil>"
	}
	return flow.ID
}
