// Package engine wires every leaf component (§2's Timer Service, Task
// Queue, Procedure Runtime, Serving-Cell Model, PHY Controller Facade,
// SI Scheduling, Procedures, Event Router) into the Stack: the single
// owned root spec.md §9 says to pass explicitly rather than treat as a
// process-wide global. Stack also implements spec.md §6's upward
// interface — the surface GW, PHY sync, low MAC, and NAS call into.
//
// Grounded on cmd/simulator/main.go's wiring of state/scheduler/
// observability into one root object.
package engine

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ranstack/rrcue/internal/cell"
	"github.com/ranstack/rrcue/internal/clock"
	"github.com/ranstack/rrcue/internal/config"
	"github.com/ranstack/rrcue/internal/event"
	"github.com/ranstack/rrcue/internal/logging"
	"github.com/ranstack/rrcue/internal/metrics"
	"github.com/ranstack/rrcue/internal/phyfacade"
	"github.com/ranstack/rrcue/internal/ports"
	"github.com/ranstack/rrcue/internal/proc"
	"github.com/ranstack/rrcue/internal/procedures"
	"github.com/ranstack/rrcue/internal/rrcenv"
	"github.com/ranstack/rrcue/internal/rrcstate"
	"github.com/ranstack/rrcue/internal/taskqueue"
	"github.com/ranstack/rrcue/internal/trace"
)

// backgroundWorkers is the fixed size of the CPU-heavy offload pool
// (spec.md §5): "a background_tasks pool (2 workers) exists strictly
// for CPU-heavy offloads (e.g. ASN.1 decode)".
const backgroundWorkers = 2

// taskQueueCapacity bounds each producer's sub-queue in the MPSC task
// queue (spec.md §5).
const taskQueueCapacity = 64

// ErrSwitchedOff is returned by RunTTI while the stack is switched off.
var ErrSwitchedOff = errors.New("engine: switched off")

// Deps bundles everything Init needs: the downward ports (spec.md §6),
// the engine config, and the UE identity/required-SIB list every
// procedure reads off Env.
type Deps struct {
	Config config.Engine
	Log    logging.Logger

	MetricsRegisterer prometheus.Registerer
	Trace             trace.Config

	PHY  ports.PHY
	MAC  ports.MAC
	RLC  ports.RLC
	PDCP ports.PDCP
	GW   ports.GW
	USIM ports.USIM
	NAS  ports.NAS

	UEIdentity   [2]uint32
	RequiredSIBs []int
}

// Snapshot is the value get_metrics(out) fills in (spec.md §6).
type Snapshot struct {
	State              string
	ProceduresInFlight int
	TimersArmed        int
	TasksPending       int
}

// Stack is the engine root spec.md §9 calls "the stack singleton...
// confined to one thread; treat as an owned root passed explicitly, not
// a global." Every field below is constructed once by Init and lives
// for the process lifetime; all mutation happens on the stack thread
// Run drives, except where noted.
type Stack struct {
	log            logging.Logger
	cfg            config.Engine
	stats          *metrics.Collector
	tracerShutdown trace.Shutdown

	clock    *clock.Service
	tasks    *taskqueue.Queue
	cells    *cell.MeasCellList
	state    *rrcstate.Machine
	phy      *phyfacade.Facade
	env      *rrcenv.Env
	procs    *rrcenv.Procedures
	steppers []rrcenv.Stepper

	ports Deps

	mu         sync.Mutex
	tti        int
	switchedOn bool
	started    bool

	bg     chan func()
	bgDone sync.WaitGroup
}

// New constructs and wires a Stack (spec.md §6 init(args, phy, gw) →
// status; status is the returned error). The stack starts switched on
// and IDLE, with its background offload pool already running; callers
// still must call Run in a goroutine of their own to drive the stack
// thread's wait_pop → execute loop.
func New(ctx context.Context, deps Deps) (*Stack, error) {
	if deps.PHY == nil || deps.MAC == nil || deps.RLC == nil || deps.PDCP == nil ||
		deps.GW == nil || deps.USIM == nil || deps.NAS == nil {
		return nil, errors.New("engine: all downward ports are required")
	}
	if err := config.Validate(deps.Config); err != nil {
		return nil, err
	}

	log := deps.Log
	if log == nil {
		log = logging.Noop()
	}

	stats, err := metrics.New(deps.MetricsRegisterer)
	if err != nil {
		return nil, err
	}
	tracer, shutdown, err := trace.Init(ctx, deps.Trace, log)
	if err != nil {
		return nil, err
	}

	s := &Stack{
		log:            log,
		cfg:            deps.Config,
		stats:          stats,
		tracerShutdown: shutdown,
		clock:          clock.New(),
		tasks:          taskqueue.New(taskQueueCapacity),
		cells:          cell.New(deps.Config.MaxNeighbours),
		state:          rrcstate.New(),
		ports:          deps,
		switchedOn:     true,
		bg:             make(chan func(), taskQueueCapacity),
	}
	s.phy = phyfacade.New(deps.PHY, queuePoster{s.tasks}, log, stats)

	procDeps := proc.Deps{Metrics: stats, Log: log, Tracer: tracer}
	s.procs = &rrcenv.Procedures{
		CellSearch:    proc.New("cell_search", procedures.NewCellSearchProc, procDeps),
		SIAcquire:     proc.New("si_acquire", procedures.NewSIAcquireProc, procDeps),
		SCellConfig:   proc.New("serving_cell_config", procedures.NewServingCellConfigProc, procDeps),
		CellSelection: proc.New("cell_selection", procedures.NewCellSelectionProc, procDeps),
		PLMNSearch:    proc.New("plmn_search", procedures.NewPLMNSearchProc, procDeps),
		ConnRequest:   proc.New("connection_request", procedures.NewConnectionRequestProc, procDeps),
		ProcessPCCH:   proc.New("process_pcch", procedures.NewProcessPCCHProc, procDeps),
		GoIdle:        proc.New("go_idle", procedures.NewGoIdleProc, procDeps),
		CellReselect:  proc.New("cell_reselection", procedures.NewCellReselectionProc, procDeps),
		Reestablish:   proc.New("reestablishment", procedures.NewReestablishmentProc, procDeps),
		Handover:      proc.New("handover", procedures.NewHandoverProc, procDeps),
	}
	s.steppers = []rrcenv.Stepper{
		s.procs.CellSearch, s.procs.SIAcquire, s.procs.SCellConfig, s.procs.CellSelection,
		s.procs.PLMNSearch, s.procs.ConnRequest, s.procs.ProcessPCCH, s.procs.GoIdle,
		s.procs.CellReselect, s.procs.Reestablish, s.procs.Handover,
	}

	s.env = &rrcenv.Env{
		Log:          log,
		Config:       deps.Config,
		Clock:        s.clock,
		Cells:        s.cells,
		State:        s.state,
		T310:         s.clock.GetUniqueTimer(),
		PHY:          s.phy,
		MAC:          deps.MAC,
		RLC:          deps.RLC,
		PDCP:         deps.PDCP,
		GW:           deps.GW,
		USIM:         deps.USIM,
		NAS:          deps.NAS,
		Tasks:        s.tasks,
		CurrentTTI:   s.GetCurrentTTI,
		UEIdentity:   deps.UEIdentity,
		RequiredSIBs: deps.RequiredSIBs,
		Procs:        s.procs,
		CallbackList: &rrcenv.CallbackList{},
	}

	s.startBackground()
	s.started = true
	return s, nil
}

// Run drives the stack thread's main loop (spec.md §5: wait_pop →
// execute) until ctx is cancelled or Stop closes the task queue.
// Callers run this in its own goroutine; every procedure step, timer
// callback, and event dispatch happens here, never concurrently with
// another Run call.
func (s *Stack) Run(ctx context.Context) {
	for {
		task, ok := s.tasks.WaitPop()
		if !ok {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		task()
	}
}

// Stop tears the stack down: stops accepting new tasks, drains the
// background pool, and flushes the tracer (spec.md §6 stop()).
func (s *Stack) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	close(s.bg)
	s.bgDone.Wait()
	s.tasks.Close()
	trace.ShutdownWithTimeout(context.Background(), s.tracerShutdown, s.log)
}

// SwitchOn re-enables tick processing (spec.md §6 switch_on/off()).
func (s *Stack) SwitchOn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.switchedOn = true
	return true
}

// SwitchOff suspends tick processing without tearing down the wiring.
func (s *Stack) SwitchOff() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.switchedOn = false
	return true
}

// GetCurrentTTI returns the last TTI value processed by RunTTI (spec.md
// §6 get_current_tti()).
func (s *Stack) GetCurrentTTI() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tti
}

// MetricsHandler exposes the wired Prometheus collector's /metrics
// handler, for cmd/rrcued to mount on an HTTP mux.
func (s *Stack) MetricsHandler() http.Handler { return s.stats.Handler() }

// GetMetrics fills out with a point-in-time snapshot and reports success
// (spec.md §6 get_metrics(out) → bool).
func (s *Stack) GetMetrics(out *Snapshot) bool {
	if out == nil {
		return false
	}
	*out = Snapshot{
		State:              s.state.Current().String(),
		ProceduresInFlight: s.inFlightCount(),
		TimersArmed:        s.clock.ArmedCount(),
		TasksPending:       s.tasks.Len(),
	}
	return true
}

func (s *Stack) inFlightCount() int {
	n := 0
	for _, st := range s.steppers {
		if st.IsRunning() {
			n++
		}
	}
	return n + s.env.CallbackList.Len()
}

// WriteSDU forwards an uplink SDU write from GW down to PDCP (spec.md
// §6's "write_sdu(lcid, buf, blocking) from GW" upward call).
func (s *Stack) WriteSDU(lcid int, buf []byte, blocking bool) error {
	return s.ports.PDCP.WriteSDU(lcid, buf, blocking)
}

// InSync is PHY sync's upward notification that synchronization has
// been (re)acquired; it stops T310 per spec.md GLOSSARY and Env.T310's
// contract (armed only by OutOfSync; stopped here and by reestablishment
// and handover).
func (s *Stack) InSync() {
	_ = s.tasks.TryPush("phy-sync", func() {
		s.env.T310.Stop()
	})
}

// OutOfSync is PHY sync's upward notification that synchronization has
// been lost; it arms T310, whose expiry triggers connection-
// reestablishment if the UE is still CONNECTED when it fires (spec.md
// §4.14 precondition, §7 taxonomy: RLF is a lower-layer failure).
func (s *Stack) OutOfSync() {
	_ = s.tasks.TryPush("phy-sync", func() {
		s.env.T310.Set(s.cfg.T310MS, s.onT310Expiry)
	})
}

func (s *Stack) onT310Expiry() {
	if s.state.Current() != rrcstate.CONNECTED {
		return
	}
	serving := s.cells.Serving()
	if serving == nil {
		return
	}
	args := rrcenv.ReestArgs{
		Cause:        "rlf",
		SourcePCI:    serving.PCI,
		SourceEARFCN: serving.EARFCN,
		RNTI:         s.ports.MAC.GetRNTIs().CRNTI,
	}
	if s.procs.Reestablish.IsIdle() {
		if _, err := s.procs.Reestablish.Launch(context.Background(), s.env, args); err != nil {
			s.log.Warn(context.Background(), "reestablishment launch failed after T310 expiry",
				logging.String("error", err.Error()))
		}
	}
}

// HandleSIB1 records a decoded SIB1 against the cell identified by id
// (spec.md §8's meas_cells.reset_sibs()/handle_sib1(sib) invariant) and
// wakes SI-acquire if it is currently waiting on SIB1. Decoding the SIB1
// payload itself is the out-of-scope ASN.1 boundary (spec.md §1); the
// caller (MAC/RLC's decode completion, not modelled as a port here since
// it carries no other engine-visible state) hands over the already-
// decoded struct.
func (s *Stack) HandleSIB1(id cell.ID, sib *cell.SIB1) error {
	return s.tasks.TryPush("mac-decode", func() {
		c := s.cellByID(id)
		if c == nil {
			return
		}
		c.HandleSIB1(sib)
		s.procs.SIAcquire.TriggerIfCurrent(context.Background(), s.procs.SIAcquire.Generation(),
			event.SIBReceived{SIBIndex: 0})
	})
}

// HandleSIB records receipt of SIB(sibIndex+1) for i >= 1, SIB1's
// higher-index siblings (spec.md §4.3 sib_index convention). Same
// decode-completion boundary as HandleSIB1.
func (s *Stack) HandleSIB(id cell.ID, sibIndex int) error {
	return s.tasks.TryPush("mac-decode", func() {
		c := s.cellByID(id)
		if c == nil {
			return
		}
		c.HandleSIB(sibIndex)
		s.procs.SIAcquire.TriggerIfCurrent(context.Background(), s.procs.SIAcquire.Generation(),
			event.SIBReceived{SIBIndex: sibIndex})
	})
}

func (s *Stack) cellByID(id cell.ID) *cell.Cell {
	if serving := s.cells.Serving(); serving != nil && serving.ID() == id {
		return serving
	}
	if n, ok := s.cells.FindNeighbour(id); ok {
		return n
	}
	return nil
}

// ConnectionSetupReceived signals connection-request's awaited
// RRCConnectionSetup arrival (spec.md §4.10 step 4). Same decode-
// completion boundary as HandleSIB1: the message itself is decoded
// out of scope (spec.md §1), this only reports its arrival.
func (s *Stack) ConnectionSetupReceived() error {
	return s.tasks.TryPush("rrc-msg", func() {
		s.procs.ConnRequest.TriggerIfCurrent(context.Background(), s.procs.ConnRequest.Generation(),
			event.RRCConnectionSetupReceived{})
	})
}

// ConnectionRejectReceived signals connection-request's awaited
// RRCConnectionReject arrival (spec.md §4.10 step 4, branch (c)). Same
// decode-completion boundary as ConnectionSetupReceived.
func (s *Stack) ConnectionRejectReceived() error {
	return s.tasks.TryPush("rrc-msg", func() {
		s.procs.ConnRequest.TriggerIfCurrent(context.Background(), s.procs.ConnRequest.Generation(),
			event.RRCConnectionReject{})
	})
}

// RACompleted signals handover's awaited random-access outcome (spec.md
// §4.15). MAC's random-access state machine is a named out-of-scope
// collaborator (spec.md §1); this is its one observable completion.
func (s *Stack) RACompleted(ok bool) error {
	return s.tasks.TryPush("rrc-msg", func() {
		s.procs.Handover.TriggerIfCurrent(context.Background(), s.procs.Handover.Generation(),
			event.RACompleted{OK: ok})
	})
}

// PagingCompleted signals process-pcch's awaited NAS paging outcome
// (spec.md §4.11). ports.NAS.Paging only reports whether the paging
// request was accepted; NAS reports the actual page's outcome later
// through this call, same as ConnectionSetupReceived/RACompleted.
func (s *Stack) PagingCompleted(ok bool) error {
	return s.tasks.TryPush("nas", func() {
		s.procs.ProcessPCCH.TriggerIfCurrent(context.Background(), s.procs.ProcessPCCH.Generation(),
			event.PagingComplete{OK: ok})
	})
}

// StartCellSearch is the upward hook a low-MAC layer may call to
// request a direct cell search outside the full RRC procedure chain
// (spec.md §6). Left unimplemented, like the NR stack shim's commented
// in_sync/out_of_sync hooks (spec.md §9 Open Questions): no low-MAC
// caller is named anywhere in spec.md §4, so there is no procedure to
// route the completion to.
func (s *Stack) StartCellSearch() bool { return false }

// StartCellSelect is StartCellSearch's cell-select counterpart, equally
// unimplemented for the same reason.
func (s *Stack) StartCellSelect(cell.ID) bool { return false }

// RunTTI submits the tick task spec.md §5 describes: "one task that, in
// order, runs MAC tick, RRC tick, timer step." MAC's own tick is a
// named out-of-scope collaborator (spec.md §1); this posts only the RRC
// tick and timer step, which is this engine's share of that ordering.
func (s *Stack) RunTTI(tti int) error {
	s.mu.Lock()
	on := s.switchedOn
	s.mu.Unlock()
	if !on {
		return ErrSwitchedOff
	}
	return s.tasks.TryPush("tick", func() { s.tick(tti) })
}

func (s *Stack) tick(tti int) {
	s.mu.Lock()
	s.tti = tti
	s.mu.Unlock()

	ctx := context.Background()
	for _, st := range s.steppers {
		if st.IsRunning() {
			st.Run(ctx)
		}
	}
	s.env.CallbackList.StepAll(ctx)
	s.clock.StepAll(1)

	s.stats.SetInFlight(s.inFlightCount())
	s.stats.SetTimersArmed(s.clock.ArmedCount())
}

// RequestConnection is the NAS-triggered entry point for spec.md §4.10:
// posts a connection-request launch onto the stack thread and returns
// immediately. Completion surfaces to NAS via
// ConnectionRequestCompleted, per that procedure's Then.
func (s *Stack) RequestConnection(dedicatedInfoNAS []byte) error {
	return s.tasks.TryPush("nas", func() {
		if _, err := s.procs.ConnRequest.Launch(context.Background(), s.env, rrcenv.ConnRequestArgs{
			DedicatedInfoNAS: dedicatedInfoNAS,
		}); err != nil {
			s.log.Warn(context.Background(), "connection-request launch failed",
				logging.String("error", err.Error()))
			s.ports.NAS.ConnectionRequestCompleted(false)
		}
	})
}

// ProcessPaging is PCCH's trigger for spec.md §4.11.
func (s *Stack) ProcessPaging(msg rrcenv.Paging) error {
	return s.tasks.TryPush("pcch", func() {
		if _, err := s.procs.ProcessPCCH.Launch(context.Background(), s.env, msg); err != nil {
			s.log.Warn(context.Background(), "process-pcch launch failed",
				logging.String("error", err.Error()))
		}
	})
}

// Reconfigure is the RRCConnectionReconfiguration trigger for spec.md
// §4.15's handover.
func (s *Stack) Reconfigure(mci rrcenv.MobilityControlInfo) error {
	return s.tasks.TryPush("rrc-msg", func() {
		if _, err := s.procs.Handover.Launch(context.Background(), s.env, rrcenv.HandoverArgs{
			MobilityControlInfo: mci,
		}); err != nil {
			s.log.Warn(context.Background(), "handover launch failed",
				logging.String("error", err.Error()))
		}
	})
}

// SearchPLMNs is NAS's trigger for spec.md §4.9.
func (s *Stack) SearchPLMNs() error {
	return s.tasks.TryPush("nas", func() {
		if _, err := s.procs.PLMNSearch.Launch(context.Background(), s.env, struct{}{}); err != nil {
			s.log.Warn(context.Background(), "plmn-search launch failed",
				logging.String("error", err.Error()))
			s.ports.NAS.PLMNSearchCompleted(nil, -1)
		}
	})
}

// GoIdle is NAS's trigger for spec.md §4.12.
func (s *Stack) GoIdle() error {
	return s.tasks.TryPush("nas", func() {
		if _, err := s.procs.GoIdle.Launch(context.Background(), s.env, struct{}{}); err != nil {
			s.log.Warn(context.Background(), "go-idle launch failed",
				logging.String("error", err.Error()))
		}
	})
}

// EnqueueBackgroundTask offloads fn onto the two-worker background pool
// (spec.md §5), returning a task id. fn's error is delivered back onto
// the stack thread via NotifyBackgroundTaskResult once it finishes.
func (s *Stack) EnqueueBackgroundTask(fn func() error) string {
	id := uuid.NewString()
	job := func() {
		err := fn()
		s.NotifyBackgroundTaskResult(event.BackgroundResult{TaskID: id, Err: err})
	}
	select {
	case s.bg <- job:
	default:
		s.log.Warn(context.Background(), "background task dropped: pool saturated", logging.String("task_id", id))
	}
	return id
}

// NotifyBackgroundTaskResult posts a background pool completion back
// onto the stack thread (spec.md §5, §6). No procedure currently
// subscribes to background_task_result — ASN.1 decode offload is out of
// scope (spec.md §1) — so this only logs; it exists so a future
// offloaded step has somewhere to report into without touching the
// concurrency model.
func (s *Stack) NotifyBackgroundTaskResult(res event.BackgroundResult) {
	_ = s.tasks.TryPush("background", func() {
		if res.Err != nil {
			s.log.Warn(context.Background(), "background task failed",
				logging.String("task_id", res.TaskID), logging.String("error", res.Err.Error()))
			return
		}
		s.log.Debug(context.Background(), "background task completed", logging.String("task_id", res.TaskID))
	})
}

// DeferCallback arms a one-shot timer whose callback runs on the stack
// thread after ms milliseconds of TTI advancement (spec.md §6
// defer_callback(ms, fn)).
func (s *Stack) DeferCallback(ms int, fn func()) clock.ID {
	return s.clock.DeferCallback(ms, func() {
		if err := s.tasks.TryPush("defer", fn); err != nil {
			s.log.Warn(context.Background(), "deferred callback dropped: task queue full")
		}
	})
}

// DeferTask posts fn directly onto the task queue for execution on the
// stack thread at the next drain (spec.md §6 defer_task(task)).
func (s *Stack) DeferTask(fn func()) error {
	return s.tasks.TryPush("external", fn)
}

// queuePoster adapts *taskqueue.Queue to phyfacade.Poster: Queue.TryPush
// takes taskqueue.Task, a defined type, which does not itself satisfy an
// interface method parameterized on the bare func() literal type.
type queuePoster struct{ q *taskqueue.Queue }

func (p queuePoster) TryPush(producer string, fn func()) error { return p.q.TryPush(producer, fn) }

func (s *Stack) startBackground() {
	s.bgDone.Add(backgroundWorkers)
	for i := 0; i < backgroundWorkers; i++ {
		go func() {
			defer s.bgDone.Done()
			for job := range s.bg {
				job()
			}
		}()
	}
}
