// ABOUTME: Engine drives a compiled diagram from its start nodes to a terminal condition
// ABOUTME: with a single cooperative scheduler loop; readiness is decided by tokens alone.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dipeo/dipeo-engine/compiler"
	"github.com/dipeo/dipeo-engine/domain"
	"github.com/dipeo/dipeo-engine/eventbus"
	"github.com/dipeo/dipeo-engine/handler"
	"github.com/dipeo/dipeo-engine/resolve"
	"github.com/dipeo/dipeo-engine/token"
)

// TerminalStatus names why a Run returned.
type TerminalStatus string

const (
	TerminalCompleted TerminalStatus = "COMPLETED"
	TerminalFailed    TerminalStatus = "FAILED"
	TerminalAborted   TerminalStatus = "ABORTED"
)

// Config configures one Engine instance. An Engine is stateless between
// runs; every field here is shared across every Run call.
type Config struct {
	Handlers    *handler.Registry
	Registry    *resolve.Registry
	Bus         *eventbus.Bus
	Concurrency int // max in-flight handler dispatches; default 1
	RetryPolicy RetryPolicy
	GracePeriod time.Duration // bound on cooperative cancellation
	Checkpoint  *CheckpointStore
}

// Engine drives one or more diagram executions, sharing handlers, the
// transform rule registry and the event bus across them.
type Engine struct {
	cfg Config

	mu     sync.Mutex
	active map[domain.ExecutionID]context.CancelFunc
}

// NewEngine constructs an Engine from cfg, filling in defaults for zero
// fields (concurrency 1, standard retry policy, 10s grace period).
func NewEngine(cfg Config) *Engine {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.RetryPolicy.MaxAttempts == 0 {
		cfg.RetryPolicy = RetryPolicyStandard()
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = 10 * time.Second
	}
	return &Engine{cfg: cfg, active: make(map[domain.ExecutionID]context.CancelFunc)}
}

// Cancel requests cooperative cancellation of a running execution by ID.
// Reports false if no such execution is currently running on this Engine.
func (e *Engine) Cancel(execID domain.ExecutionID) bool {
	e.mu.Lock()
	cancel, ok := e.active[execID]
	e.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

// RunResult summarizes the outcome of one execution: terminal status,
// which nodes failed, and the final observable state of every node.
type RunResult struct {
	ExecutionID domain.ExecutionID
	Status      TerminalStatus
	FailedNodes []domain.NodeID
	NodeStates  map[domain.NodeID]domain.NodeExecutionState
	Err         error
}

// nodeResult is what one async handler dispatch reports back to the
// scheduler loop over resultsCh.
type nodeResult struct {
	node    domain.NodeID
	epoch   int
	outputs handler.Output
	err     error
}

// run holds all per-execution mutable state. A fresh run is created for
// every Run call; nothing here is shared across executions.
type run struct {
	execID domain.ExecutionID
	diag   *compiler.ExecutableDiagram
	cfg    Config

	tokens    *token.Manager
	states    *StateTracker
	resolver  *resolve.Resolver
	variables *domain.Variables

	ranks           map[domain.NodeID]int
	loopControllers map[domain.NodeID]bool
	seq             int64
	inFlight        map[domain.NodeID]bool
	mu              sync.Mutex
	resultsCh       chan nodeResult
}

// Run compiles nothing (the diagram must already be compiled) and drives
// it to completion. vars seeds the initial Variables snapshot fed to
// every start node.
func (e *Engine) Run(ctx context.Context, diag *compiler.ExecutableDiagram, vars map[string]any) RunResult {
	r := e.newRun(domain.NewExecutionID(), diag)
	for k, v := range vars {
		r.variables.Set(k, v)
	}
	return e.drive(ctx, r)
}

// ResumeFromCheckpoint re-runs diag under the checkpointed execution's
// identity, restoring variables, per-node fire counts and the token
// epoch before re-seeding the start nodes. Token queues are not part of
// a checkpoint, so completed nodes keep their counts (FIRST_ONLY joins
// and max-iteration limits pick up where the interrupted run stopped)
// while in-flight work is simply re-driven from the start nodes.
func (e *Engine) ResumeFromCheckpoint(ctx context.Context, diag *compiler.ExecutableDiagram, cp *Checkpoint) RunResult {
	r := e.newRun(cp.ExecutionID, diag)
	for k, v := range cp.Variables {
		r.variables.Set(k, v)
	}
	fireCounts := make(map[domain.NodeID]int, len(cp.Nodes))
	for id, n := range cp.Nodes {
		fireCounts[id] = n.ExecutionCount
		status := n.Status
		if status == domain.NodeStatusRunning || status == domain.NodeStatusAborted {
			// Interrupted mid-firing; eligible to run again.
			status = domain.NodeStatusPending
		}
		r.states.Restore(id, status, n.ExecutionCount)
	}
	r.tokens.Restore(cp.Epoch, fireCounts)
	return e.drive(ctx, r)
}

func (e *Engine) newRun(execID domain.ExecutionID, diag *compiler.ExecutableDiagram) *run {
	r := &run{
		execID:          execID,
		diag:            diag,
		cfg:             e.cfg,
		tokens:          token.NewManager(diag),
		states:          NewStateTracker(nodeIDs(diag)),
		variables:       domain.NewVariables(),
		ranks:           computeRanks(diag),
		loopControllers: computeLoopControllers(diag),
		inFlight:        make(map[domain.NodeID]bool),
		resultsCh:       make(chan nodeResult, maxInt(e.cfg.Concurrency, 1)),
	}
	r.resolver = resolve.NewResolver(diag, e.cfg.Registry)
	return r
}

func (e *Engine) drive(ctx context.Context, r *run) RunResult {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.mu.Lock()
	e.active[r.execID] = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.active, r.execID)
		e.mu.Unlock()
	}()

	r.emit(eventbus.EventExecutionStarted, "", nil)
	status, failedNodes, err := r.loop(runCtx)

	switch status {
	case TerminalCompleted:
		r.emit(eventbus.EventExecutionCompleted, "", map[string]any{"failed_nodes": failedNodes})
	case TerminalAborted:
		r.emit(eventbus.EventExecutionAborted, "", nil)
	case TerminalFailed:
		r.emit(eventbus.EventExecutionError, "", map[string]any{"error": errString(err)})
	}

	return RunResult{
		ExecutionID: r.execID,
		Status:      status,
		FailedNodes: failedNodes,
		NodeStates:  r.states.SnapshotAll(),
		Err:         err,
	}
}

// emit publishes one typed event with the next sequence number. Retry
// events are emitted from handler-dispatch goroutines, so the counter is
// atomic rather than scheduler-owned.
func (r *run) emit(t eventbus.EventType, node domain.NodeID, payload any) {
	if r.cfg.Bus == nil {
		return
	}
	r.cfg.Bus.Publish(eventbus.Event{
		Type:        t,
		ExecutionID: r.execID,
		NodeID:      node,
		Timestamp:   time.Now(),
		Payload:     payload,
		SequenceNo:  atomic.AddInt64(&r.seq, 1),
	})
}

// loop is the main cooperative scheduler. It seeds tokens on start
// nodes, then repeatedly dispatches the highest-priority ready node until
// no node is ready and none is in flight, cancellation is requested, or a
// fatal error occurs.
func (r *run) loop(ctx context.Context) (TerminalStatus, []domain.NodeID, error) {
	r.seedStartNodes(ctx)

	concurrency := r.cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	for {
		if ctx.Err() != nil {
			r.awaitInFlight()
			return TerminalAborted, r.sortedFailedNodes(), ctx.Err()
		}

		r.mu.Lock()
		nInFlight := len(r.inFlight)
		r.mu.Unlock()

		ready := r.readyNodes()
		dispatched := false
		for len(ready) > 0 && nInFlight < concurrency {
			n := ready[0]
			ready = ready[1:]
			if r.isMaxedPersonJob(n) {
				r.tokens.ConsumeInbound(n)
				r.states.TransitionToMaxIter(n)
				continue
			}
			r.dispatchAsync(ctx, n)
			nInFlight++
			dispatched = true
		}

		if !dispatched && nInFlight == 0 {
			// Either every endpoint fired, or the diagram went quiescent
			// (nothing ready, nothing running, a join never satisfied).
			// Both are ordinary terminal conditions, not errors; nodes
			// that never became ready are reported SKIPPED in the
			// terminal summary.
			r.finalize()
			return TerminalCompleted, r.sortedFailedNodes(), nil
		}

		select {
		case res := <-r.resultsCh:
			fatal := r.applyResult(res)
			if fatal != nil {
				r.awaitInFlight()
				return TerminalFailed, r.sortedFailedNodes(), fatal
			}
		case <-ctx.Done():
			r.awaitInFlight()
			return TerminalAborted, r.sortedFailedNodes(), ctx.Err()
		}
	}
}

// seedStartNodes fires every start node once at the token manager's current
// epoch (0 for a fresh run, the restored epoch on resume) and places its
// outputs as tokens on its outbound edges. Start nodes run through their
// registered handler like any other node (so observers see the usual
// NODE_STARTED/NODE_COMPLETED pair); a missing handler degrades to
// seeding the raw variable snapshot directly.
func (r *run) seedStartNodes(ctx context.Context) {
	epoch := r.tokens.CurrentEpoch()
	starts := make([]domain.NodeID, 0, len(r.diag.StartNodes))
	for id := range r.diag.StartNodes {
		starts = append(starts, id)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })

	for _, id := range starts {
		if len(r.diag.Outgoing(id)) == 0 {
			continue
		}
		fallback := domain.NewEnvelope(r.variables.Snapshot(), id, r.execID, domain.ContentTypeVariable)

		node, _ := r.diag.Node(id)
		outputs := map[string]domain.Envelope{}
		if h, ok := r.cfg.Handlers.Get(node.Type); ok {
			r.states.TransitionToRunning(id, epoch)
			r.emit(eventbus.EventNodeStarted, id, nil)
			out, err := h.Execute(ctx, nil, handler.Context{
				ExecutionID: r.execID,
				NodeID:      id,
				Config:      node.Config,
				Variables:   r.variables,
				FireCount:   r.states.ExecutionCount,
			})
			if err != nil {
				r.states.TransitionToFailed(id, classify(err))
				r.emit(eventbus.EventNodeError, id, map[string]any{"message": err.Error()})
				continue
			}
			r.states.TransitionToCompleted(id, out["default"])
			r.emit(eventbus.EventNodeCompleted, id, nil)
			r.emit(eventbus.EventNodeOutput, id, nil)
			outputs = out
		}

		// Any outgoing port the handler did not name still gets the
		// variable snapshot, so edges off custom-labelled start handles
		// are seeded too.
		for _, e := range r.diag.Outgoing(id) {
			if _, ok := outputs[e.SourceOutputPort]; !ok {
				outputs[e.SourceOutputPort] = fallback
			}
		}
		r.tokens.EmitOutputs(id, outputs, epoch)
	}
}

// readyNodes returns every node whose join predicate is currently
// satisfied, ordered by the node ordering policy: topological rank, then
// execution count, then lexicographic NodeID.
func (r *run) readyNodes() []domain.NodeID {
	epoch := r.tokens.CurrentEpoch()
	var ready []domain.NodeID
	r.mu.Lock()
	for id := range r.diag.Nodes {
		if r.inFlight[id] {
			continue
		}
		if r.states.IsTerminal(id) {
			continue
		}
		if r.tokens.HasNewInputs(id, epoch) {
			ready = append(ready, id)
		}
	}
	r.mu.Unlock()

	sort.Slice(ready, func(i, j int) bool {
		a, b := ready[i], ready[j]
		if r.ranks[a] != r.ranks[b] {
			return r.ranks[a] < r.ranks[b]
		}
		ca, cb := r.states.ExecutionCount(a), r.states.ExecutionCount(b)
		if ca != cb {
			return ca < cb
		}
		return a < b
	})
	return ready
}

// isMaxedPersonJob reports whether node is a PERSON_JOB that has already
// reached its configured max_iteration limit and should be drained and
// parked rather than dispatched.
func (r *run) isMaxedPersonJob(n domain.NodeID) bool {
	node, ok := r.diag.Node(n)
	if !ok || node.Type != domain.NodeTypePersonJob {
		return false
	}
	cfg, ok := node.Config.(compiler.PersonJobConfig)
	if !ok || cfg.MaxIteration <= 0 {
		return false
	}
	return r.states.ExecutionCount(n) >= cfg.MaxIteration
}

// dispatchAsync consumes n's inbound tokens, resolves its input, and fires
// its handler on a new goroutine, reporting the outcome on resultsCh.
func (r *run) dispatchAsync(ctx context.Context, n domain.NodeID) {
	epoch := r.tokens.CurrentEpoch()
	execCount := r.states.ExecutionCount(n)

	consumed := r.tokens.ConsumeInbound(n)
	if len(consumed) == 0 && len(r.diag.Incoming(n)) > 0 {
		// Another goroutine raced us to this node's tokens between
		// readyNodes() and here; skip this round, it will be
		// re-evaluated on the next loop iteration.
		return
	}

	inputs, err := r.resolver.Resolve(n, consumed, execCount)
	if err != nil {
		r.mu.Lock()
		delete(r.inFlight, n)
		r.mu.Unlock()
		r.resultsCh <- nodeResult{node: n, epoch: epoch, err: err}
		return
	}

	r.mu.Lock()
	r.inFlight[n] = true
	r.mu.Unlock()

	r.states.TransitionToRunning(n, epoch)
	r.emit(eventbus.EventNodeStarted, n, nil)

	go func() {
		outputs, err := r.dispatchWithRetry(ctx, n, inputs, execCount)
		r.resultsCh <- nodeResult{node: n, epoch: epoch, outputs: outputs, err: err}
	}()
}

// applyResult processes one completed (or failed) dispatch: updates node
// state, emits events, feeds outputs back to the token manager, and
// decides whether a loop-controller condition node should begin a new
// epoch. Returns a non-nil error only for INTERNAL-class failures, which
// abort the whole execution.
func (r *run) applyResult(res nodeResult) error {
	r.mu.Lock()
	delete(r.inFlight, res.node)
	r.mu.Unlock()

	if res.err != nil {
		nerr := classify(res.err)
		r.states.TransitionToFailed(res.node, nerr)
		r.emit(eventbus.EventNodeError, res.node, map[string]any{
			"kind":    string(nerr.Kind),
			"message": nerr.Error(),
		})
		if nerr.Kind == ErrInternal {
			return nerr
		}
		return nil
	}

	node, _ := r.diag.Node(res.node)
	outputs := res.outputs
	if node.Type == domain.NodeTypeCondition {
		outputs = routeConditionOutput(outputs)
	}

	var lastOutput domain.Envelope
	if def, ok := outputs["default"]; ok {
		lastOutput = def
	} else if tv, ok := outputs[domain.HandleLabelCondTrue]; ok {
		lastOutput = tv
	} else if fv, ok := outputs[domain.HandleLabelCondFalse]; ok {
		lastOutput = fv
	}
	r.states.TransitionToCompleted(res.node, lastOutput)
	r.emit(eventbus.EventNodeCompleted, res.node, nil)
	r.emit(eventbus.EventNodeOutput, res.node, nil)

	epoch := res.epoch
	if node.Type == domain.NodeTypeCondition && r.loopControllers[res.node] {
		if _, fired := outputs[domain.HandleLabelCondTrue]; fired {
			epoch = r.tokens.BeginEpoch()
		}
	}

	r.tokens.EmitOutputs(res.node, outputs, epoch)
	r.saveCheckpoint()
	return nil
}

// saveCheckpoint snapshots execution state after each completed firing
// when a CheckpointStore is configured. Best-effort: a failed write never
// interrupts the run.
func (r *run) saveCheckpoint() {
	if r.cfg.Checkpoint == nil {
		return
	}
	cp := NewCheckpoint(r.execID, r.tokens.CurrentEpoch(), nodeIDs(r.diag), r.states, r.variables)
	_ = r.cfg.Checkpoint.Save(cp)
}

// dispatchWithRetry fires n's handler, retrying retryable failures per the
// engine's retry policy with exponential backoff, and enforcing n's
// timeout.
func (r *run) dispatchWithRetry(ctx context.Context, n domain.NodeID, inputs handler.Input, execCount int) (out handler.Output, err error) {
	node, ok := r.diag.Node(n)
	if !ok {
		return nil, fmt.Errorf("engine: unknown node %q", n)
	}
	h, ok := r.cfg.Handlers.Get(node.Type)
	if !ok {
		return nil, &NodeError{Kind: ErrInternal, Err: fmt.Errorf("no handler registered for node type %q", node.Type)}
	}

	policy := r.cfg.RetryPolicy
	hctx := handler.Context{
		ExecutionID: r.execID,
		NodeID:      n,
		Config:      node.Config,
		Variables:   r.variables,
		ExecCount:   execCount,
		FireCount:   r.states.ExecutionCount,
	}

	var lastErr error
	for attempt := 0; attempt < maxInt(policy.MaxAttempts, 1); attempt++ {
		out, err = r.fireHandler(ctx, h, inputs, hctx, n)
		if err == nil {
			return out, nil
		}
		lastErr = err
		nerr := classify(err)
		if !nerr.Retryable || !policy.ShouldRetry(err) || attempt == policy.MaxAttempts-1 {
			return nil, nerr
		}
		r.emit(eventbus.EventNodeError, n, map[string]any{
			"kind": string(nerr.Kind), "retryable": true, "attempt": attempt + 1,
		})
		sleepWithContext(ctx.Done(), policy.Backoff.DelayForAttempt(attempt))
	}
	return nil, classify(lastErr)
}

// fireHandler runs one attempt of h.Execute under a bounded timeout,
// converting a handler panic into an INTERNAL error instead of taking
// down the scheduler.
func (r *run) fireHandler(ctx context.Context, h handler.NodeHandler, inputs handler.Input, hctx handler.Context, n domain.NodeID) (out handler.Output, err error) {
	timeout := timeoutFor(h.Type())
	callCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if p := recover(); p != nil {
				err = &NodeError{Kind: ErrInternal, Err: fmt.Errorf("panic in node %q handler: %v", n, p)}
			}
		}()
		out, err = h.Execute(callCtx, inputs, hctx)
	}()

	select {
	case <-done:
		return out, err
	case <-callCtx.Done():
		<-done
		if err != nil {
			return nil, err
		}
		return nil, &NodeError{Kind: ErrHandlerTimeout, Retryable: false, Err: callCtx.Err()}
	}
}

// timeoutFor returns the default handler timeout for a node type.
func timeoutFor(t domain.NodeType) time.Duration {
	switch t {
	case domain.NodeTypePersonJob:
		return 5 * time.Minute
	case domain.NodeTypeApiJob:
		return 60 * time.Second
	case domain.NodeTypeShellJob:
		return 2 * time.Minute
	case domain.NodeTypeCodeJob:
		return 30 * time.Second
	case domain.NodeTypeSubdiagram:
		return 10 * time.Minute
	default:
		return 15 * time.Second
	}
}

// awaitInFlight blocks, draining resultsCh, until every dispatched
// handler has reported back — the grace period bound on cooperative
// cancellation. Handlers are expected to observe ctx.Done() and
// return promptly; this only guards against handlers that never do.
func (r *run) awaitInFlight() {
	deadline := time.After(r.cfg.GracePeriod)
	for {
		r.mu.Lock()
		n := len(r.inFlight)
		r.mu.Unlock()
		if n == 0 {
			r.finalize()
			return
		}
		select {
		case res := <-r.resultsCh:
			r.mu.Lock()
			delete(r.inFlight, res.node)
			r.mu.Unlock()
			if res.err != nil {
				r.states.TransitionToFailed(res.node, classify(res.err))
			}
		case <-deadline:
			r.finalize()
			return
		}
	}
}

// finalize marks every node still in flight or PENDING as ABORTED/SKIPPED
// once the loop has exited: on quiescent completion, and from
// awaitInFlight when its deadline passes with handlers still running.
func (r *run) finalize() {
	r.mu.Lock()
	for n := range r.inFlight {
		r.states.TransitionToAborted(n)
	}
	r.mu.Unlock()
	for id := range r.diag.Nodes {
		if r.states.Get(id).Status == domain.NodeStatusPending {
			r.states.TransitionToSkipped(id, "execution ended before node became ready")
		}
	}
}

func (r *run) sortedFailedNodes() []domain.NodeID {
	f := r.states.FailedNodes()
	sort.Slice(f, func(i, j int) bool { return f[i] < f[j] })
	return f
}

// computeLoopControllers identifies every CONDITION node that is a genuine
// loop controller: one whose condtrue branch can reach itself again. Only
// these nodes advance the token epoch on a condtrue firing; a
// condition node used purely for one-shot branching must not drop tokens
// queued elsewhere in the diagram.
func computeLoopControllers(d *compiler.ExecutableDiagram) map[domain.NodeID]bool {
	controllers := make(map[domain.NodeID]bool)
	for id := range d.ConditionNodes {
		for _, e := range d.Outgoing(id) {
			if e.SourceOutputPort != domain.HandleLabelCondTrue {
				continue
			}
			if reaches(d, e.TargetNode, id, make(map[domain.NodeID]bool)) {
				controllers[id] = true
			}
		}
	}
	return controllers
}

// reaches reports whether target is reachable from start by following
// outgoing edges, via depth-first search with cycle protection.
func reaches(d *compiler.ExecutableDiagram, start, target domain.NodeID, visited map[domain.NodeID]bool) bool {
	if start == target {
		return true
	}
	if visited[start] {
		return false
	}
	visited[start] = true
	for _, e := range d.Outgoing(start) {
		if reaches(d, e.TargetNode, target, visited) {
			return true
		}
	}
	return false
}

func nodeIDs(d *compiler.ExecutableDiagram) []domain.NodeID {
	ids := make([]domain.NodeID, 0, len(d.Nodes))
	for id := range d.Nodes {
		ids = append(ids, id)
	}
	return ids
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
