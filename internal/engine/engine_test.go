package engine

import (
	"context"
	"testing"
	"time"

	"github.com/ranstack/rrcue/internal/cell"
	"github.com/ranstack/rrcue/internal/config"
	"github.com/ranstack/rrcue/internal/logging"
	"github.com/ranstack/rrcue/internal/ports"
	"github.com/ranstack/rrcue/internal/rrcenv"
	"github.com/ranstack/rrcue/internal/rrcstate"
)

type testPorts struct {
	phy  *ports.FakePHY
	mac  *ports.FakeMAC
	rlc  *ports.FakeRLC
	pdcp *ports.FakePDCP
	gw   *ports.FakeGW
	usim *ports.FakeUSIM
	nas  *ports.FakeNAS
}

func newTestStack(t *testing.T) (*Stack, testPorts) {
	t.Helper()
	tp := testPorts{
		phy:  ports.NewFakePHY(),
		mac:  ports.NewFakeMAC(),
		rlc:  ports.NewFakeRLC(),
		pdcp: ports.NewFakePDCP(),
		gw:   ports.NewFakeGW(),
		usim: ports.NewFakeUSIM(),
		nas:  ports.NewFakeNAS(),
	}
	s, err := New(context.Background(), Deps{
		Config:       config.Default(),
		Log:          logging.Noop(),
		PHY:          tp.phy,
		MAC:          tp.mac,
		RLC:          tp.rlc,
		PDCP:         tp.pdcp,
		GW:           tp.gw,
		USIM:         tp.usim,
		NAS:          tp.nas,
		UEIdentity:   [2]uint32{1, 2},
		RequiredSIBs: []int{0, 1, 2},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.Stop)
	return s, tp
}

// drain runs every task currently queued, without blocking, so a test can
// step the stack thread synchronously instead of racing a live Run goroutine.
func drain(s *Stack) {
	for {
		task, ok := s.tasks.TryPop()
		if !ok {
			return
		}
		task()
	}
}

func TestNewRejectsMissingPort(t *testing.T) {
	_, err := New(context.Background(), Deps{
		Config: config.Default(),
		MAC:    ports.NewFakeMAC(),
		RLC:    ports.NewFakeRLC(),
		PDCP:   ports.NewFakePDCP(),
		GW:     ports.NewFakeGW(),
		USIM:   ports.NewFakeUSIM(),
		NAS:    ports.NewFakeNAS(),
	})
	if err == nil {
		t.Fatalf("New: want error for missing PHY, got nil")
	}
}

func TestRunTTIRejectedWhileSwitchedOff(t *testing.T) {
	s, _ := newTestStack(t)
	s.SwitchOff()
	if err := s.RunTTI(0); err != ErrSwitchedOff {
		t.Fatalf("RunTTI while off: err = %v, want ErrSwitchedOff", err)
	}
	s.SwitchOn()
	if err := s.RunTTI(0); err != nil {
		t.Fatalf("RunTTI after SwitchOn: %v", err)
	}
	drain(s)
}

func TestRunTTIAdvancesCurrentTTI(t *testing.T) {
	s, _ := newTestStack(t)
	if err := s.RunTTI(42); err != nil {
		t.Fatalf("RunTTI: %v", err)
	}
	drain(s)
	if got := s.GetCurrentTTI(); got != 42 {
		t.Fatalf("GetCurrentTTI() = %d, want 42", got)
	}
}

func TestGetMetricsInitialSnapshot(t *testing.T) {
	s, _ := newTestStack(t)
	var snap Snapshot
	if !s.GetMetrics(&snap) {
		t.Fatalf("GetMetrics returned false")
	}
	if snap.State != "IDLE" {
		t.Fatalf("snap.State = %q, want IDLE", snap.State)
	}
	if snap.ProceduresInFlight != 0 || snap.TimersArmed != 0 || snap.TasksPending != 0 {
		t.Fatalf("snap = %+v, want all-zero counters", snap)
	}
	if s.GetMetrics(nil) {
		t.Fatalf("GetMetrics(nil) returned true, want false")
	}
}

func TestRequestConnectionLaunchesConnRequest(t *testing.T) {
	s, tp := newTestStack(t)
	tp.phy.AcceptSearch = false // force a lower-layer failure quickly, no need to camp

	if err := s.RequestConnection([]byte("attach")); err != nil {
		t.Fatalf("RequestConnection: %v", err)
	}
	drain(s)

	if !s.procs.ConnRequest.IsRunning() && !s.procs.CellSelection.IsRunning() {
		t.Fatalf("neither connection-request nor its cell-selection sub-procedure is running")
	}
	if s.state.Current() != rrcstate.CONNECTING {
		t.Fatalf("state = %v, want CONNECTING", s.state.Current())
	}
}

func TestOutOfSyncArmsT310AndTriggersReestablishOnExpiry(t *testing.T) {
	s, tp := newTestStack(t)

	serving, err := s.cells.GetOrCreateNeighbour(cell.ID{EARFCN: 6400, PCI: 1})
	if err != nil {
		t.Fatalf("GetOrCreateNeighbour: %v", err)
	}
	s.cells.PromoteToServing(serving)
	if err := s.state.ToConnecting(); err != nil {
		t.Fatalf("ToConnecting: %v", err)
	}
	if err := s.state.ToConnected(); err != nil {
		t.Fatalf("ToConnected: %v", err)
	}
	sec := s.state.Security()
	sec.Activate()
	s.state.SetSecurity(sec)
	tp.mac.RNTIs = ports.RNTIs{CRNTI: 99}

	s.OutOfSync()
	drain(s)
	if !s.env.T310.IsRunning() {
		t.Fatalf("T310 not armed after OutOfSync")
	}

	s.clock.StepAll(s.cfg.T310MS)

	if !s.procs.Reestablish.IsRunning() {
		t.Fatalf("reestablishment was not launched on T310 expiry")
	}
}

func TestInSyncStopsT310(t *testing.T) {
	s, _ := newTestStack(t)
	s.OutOfSync()
	drain(s)
	if !s.env.T310.IsRunning() {
		t.Fatalf("T310 not armed after OutOfSync")
	}
	s.InSync()
	drain(s)
	if s.env.T310.IsRunning() {
		t.Fatalf("T310 still armed after InSync")
	}
}

func TestGoIdleLaunchesGoIdleProc(t *testing.T) {
	s, _ := newTestStack(t)
	if err := s.state.ToConnecting(); err != nil {
		t.Fatalf("ToConnecting: %v", err)
	}
	if err := s.state.ToConnected(); err != nil {
		t.Fatalf("ToConnected: %v", err)
	}
	if err := s.GoIdle(); err != nil {
		t.Fatalf("GoIdle: %v", err)
	}
	drain(s)
	if !s.procs.GoIdle.IsRunning() && s.state.Current() != rrcstate.IDLE {
		t.Fatalf("go-idle neither running nor completed: state = %v", s.state.Current())
	}
}

func TestSearchPLMNsNotifiesNASOnLaunchFailure(t *testing.T) {
	s, tp := newTestStack(t)
	// Occupy the handle so the next launch is rejected as busy.
	if _, err := s.procs.PLMNSearch.Launch(context.Background(), s.env, struct{}{}); err != nil {
		t.Fatalf("priming launch: %v", err)
	}

	if err := s.SearchPLMNs(); err != nil {
		t.Fatalf("SearchPLMNs: %v", err)
	}
	drain(s)

	if tp.nas.PLMNCount != -1 {
		t.Fatalf("PLMNCount = %d, want -1 after launch failure", tp.nas.PLMNCount)
	}
}

func TestWriteSDUForwardsToPDCP(t *testing.T) {
	s, tp := newTestStack(t)
	if err := s.WriteSDU(1, []byte("hello"), false); err != nil {
		t.Fatalf("WriteSDU: %v", err)
	}
	if len(tp.pdcp.Written) != 1 || string(tp.pdcp.Written[0]) != "hello" {
		t.Fatalf("pdcp.Written = %v, want one entry \"hello\"", tp.pdcp.Written)
	}
}

func TestDeferTaskRunsOnDrain(t *testing.T) {
	s, _ := newTestStack(t)
	ran := false
	if err := s.DeferTask(func() { ran = true }); err != nil {
		t.Fatalf("DeferTask: %v", err)
	}
	drain(s)
	if !ran {
		t.Fatalf("deferred task did not run")
	}
}

func TestDeferCallbackFiresAfterClockAdvance(t *testing.T) {
	s, _ := newTestStack(t)
	ran := false
	s.DeferCallback(50, func() { ran = true })
	s.clock.StepAll(50)
	drain(s)
	if !ran {
		t.Fatalf("deferred callback did not fire")
	}
}

func TestEnqueueBackgroundTaskDeliversResult(t *testing.T) {
	s, _ := newTestStack(t)
	done := make(chan struct{})

	id := s.EnqueueBackgroundTask(func() error {
		close(done)
		return nil
	})
	if id == "" {
		t.Fatalf("EnqueueBackgroundTask returned empty id")
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("background task did not run")
	}

	// NotifyBackgroundTaskResult posts back onto the stack thread; give the
	// worker goroutine a moment to enqueue it, then drain.
	deadline := time.Now().Add(time.Second)
	for s.tasks.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	drain(s)
}

func TestHandleSIB1MarksServingCell(t *testing.T) {
	s, _ := newTestStack(t)
	id := cell.ID{EARFCN: 6400, PCI: 1}
	serving, err := s.cells.GetOrCreateNeighbour(id)
	if err != nil {
		t.Fatalf("GetOrCreateNeighbour: %v", err)
	}
	s.cells.PromoteToServing(serving)

	if err := s.HandleSIB1(id, &cell.SIB1{SIWinLen: 2}); err != nil {
		t.Fatalf("HandleSIB1: %v", err)
	}
	drain(s)

	if !s.cells.HasSIB1() {
		t.Fatalf("serving cell missing SIB1 after HandleSIB1")
	}
}

func TestReconfigureRejectsMissingNeighbour(t *testing.T) {
	s, _ := newTestStack(t)
	serving, err := s.cells.GetOrCreateNeighbour(cell.ID{EARFCN: 6400, PCI: 1})
	if err != nil {
		t.Fatalf("GetOrCreateNeighbour: %v", err)
	}
	s.cells.PromoteToServing(serving)

	if err := s.Reconfigure(rrcenv.MobilityControlInfo{TargetPCI: 2}); err != nil {
		t.Fatalf("Reconfigure: %v", err)
	}
	drain(s)

	if s.procs.Handover.IsRunning() {
		t.Fatalf("handover left running after init-time rejection of an unknown target")
	}
}

func TestMetricsHandlerIsNotNil(t *testing.T) {
	s, _ := newTestStack(t)
	if s.MetricsHandler() == nil {
		t.Fatalf("MetricsHandler() returned nil")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	s, _ := newTestStack(t)
	s.Stop()
	s.Stop()
}
