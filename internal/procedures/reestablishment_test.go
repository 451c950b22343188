package procedures

import (
	"context"
	"testing"

	"github.com/ranstack/rrcue/internal/cell"
	"github.com/ranstack/rrcue/internal/event"
	"github.com/ranstack/rrcue/internal/ports"
	"github.com/ranstack/rrcue/internal/rrcenv"
	"github.com/ranstack/rrcue/internal/rrcstate"
)

// reestablishReady puts env into the CONNECTED-with-security-and-C-RNTI
// state reestablishment's Init requires to actually attempt (spec.md
// §4.14's precondition check).
func reestablishReady(t *testing.T, env *rrcenv.Env, tf testFakes) {
	t.Helper()
	if err := env.State.ToConnecting(); err != nil {
		t.Fatalf("ToConnecting: %v", err)
	}
	if err := env.State.ToConnected(); err != nil {
		t.Fatalf("ToConnected: %v", err)
	}
	env.State.ActivateSecurity()
	tf.mac.RNTIs = ports.RNTIs{CRNTI: 0x4601}
}

func TestReestablishmentSkipsAttemptWhenPreconditionsUnmet(t *testing.T) {
	env, _ := newTestEnv(t)
	// state is IDLE, no security, no C-RNTI: precondition fails immediately.

	fut, err := env.Procs.Reestablish.Launch(context.Background(), env, rrcenv.ReestArgs{Cause: "other"})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	result, ok := fut.Value()
	if !ok || result.Err != nil {
		t.Fatalf("result = %+v ok=%v, want success", result, ok)
	}
	if result.Value.Attempted {
		t.Fatalf("result.Attempted = true, want false")
	}
}

func TestReestablishmentSucceedsWhenServingCellMeetsCriteria(t *testing.T) {
	env, tf := newTestEnv(t)
	reestablishReady(t, env, tf)
	serving := seedCampedCell(t, env, tf, cell.ID{EARFCN: 6400, PCI: 1})
	tf.phy.InSync = true
	serving.RSRP = -80
	tf.rlc.Bearers[1] = true

	fut, err := env.Procs.Reestablish.Launch(context.Background(), env, rrcenv.ReestArgs{
		Cause: "handoverFailure", SourcePCI: 1, SourceEARFCN: 6400, RNTI: 0x4601,
	})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	// cell-selection's "reuse the camped cell" branch settles synchronously
	// inside Launch; one more Run picks that completion up.
	env.Procs.Reestablish.Run(context.Background())
	result, ok := fut.Value()
	if !ok || result.Err != nil {
		t.Fatalf("result = %+v ok=%v, want success", result, ok)
	}
	if !result.Value.Attempted || result.Value.Aborted {
		t.Fatalf("result = %+v, want Attempted=true Aborted=false", result.Value)
	}
	if len(tf.pdcp.Written) != 1 {
		t.Fatalf("pdcp.Written = %v, want one RRCConnectionReestablishmentRequest", tf.pdcp.Written)
	}
	if tf.rlc.Suspended == nil {
		t.Fatalf("no RLC bearers suspended at reestablishment start")
	}
}

func TestReestablishmentAbortsOnT311ExpiryDuringReselection(t *testing.T) {
	env, tf := newTestEnv(t)
	reestablishReady(t, env, tf)
	// no serving cell / no candidates: cell-selection falls back to
	// cell-search and never syncs, so the round never finishes before T311.

	fut, err := env.Procs.Reestablish.Launch(context.Background(), env, rrcenv.ReestArgs{
		Cause: "reconfigurationFailure",
	})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if fut.IsComplete() {
		t.Fatalf("reestablishment completed before T311 expiry")
	}

	env.Clock.StepAll(env.Config.T311MS)

	result, ok := fut.Value()
	if !ok || result.Err != nil {
		t.Fatalf("result = %+v ok=%v, want success (aborted)", result, ok)
	}
	if !result.Value.Attempted || !result.Value.Aborted {
		t.Fatalf("result = %+v, want Attempted=true Aborted=true", result.Value)
	}
	if env.State.Current() != rrcstate.IDLE && !env.Procs.GoIdle.IsRunning() {
		t.Fatalf("go-idle not launched after T311 abort")
	}
}

func TestReestablishmentIgnoresUnrelatedTimerExpiredEvent(t *testing.T) {
	env, tf := newTestEnv(t)
	reestablishReady(t, env, tf)

	fut, err := env.Procs.Reestablish.Launch(context.Background(), env, rrcenv.ReestArgs{Cause: "otherFailure"})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if fut.IsComplete() {
		t.Fatalf("reestablishment completed immediately, want waiting on cell-selection")
	}

	// deliver a TimerExpired event directly, bypassing the clock, whose
	// zero timer id is not T311's: React's TimerExpired branch ignores it.
	env.Procs.Reestablish.Trigger(context.Background(), event.TimerExpired{})
	if fut.IsComplete() {
		t.Fatalf("reestablishment aborted on an unrelated TimerExpired event")
	}
}
