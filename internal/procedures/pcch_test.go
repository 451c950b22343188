package procedures

import (
	"context"
	"testing"

	"github.com/ranstack/rrcue/internal/cell"
	"github.com/ranstack/rrcue/internal/event"
	"github.com/ranstack/rrcue/internal/rrcenv"
)

func TestProcessPCCHPagesNASOnMatchingSTMSI(t *testing.T) {
	env, tf := newTestEnv(t)
	// env.State starts IDLE, UEIdentity is [2]uint32{1, 2} (testenv_test.go).

	fut, err := env.Procs.ProcessPCCH.Launch(context.Background(), env, rrcenv.Paging{
		Records: []rrcenv.PagingRecord{{STMSI: [2]uint32{1, 2}, HasSTMSI: true}},
	})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if fut.IsComplete() {
		t.Fatalf("process-pcch completed before PagingComplete, want waiting on NAS")
	}
	if len(tf.nas.PagingCalls) != 1 || tf.nas.PagingCalls[0] != [2]uint32{1, 2} {
		t.Fatalf("nas.PagingCalls = %v, want one call with the matching S-TMSI", tf.nas.PagingCalls)
	}

	env.Procs.ProcessPCCH.Trigger(context.Background(), event.PagingComplete{OK: true})

	result, ok := fut.Value()
	if !ok || result.Err != nil {
		t.Fatalf("result = %+v ok=%v, want success", result, ok)
	}
}

func TestProcessPCCHIgnoresNonMatchingSTMSI(t *testing.T) {
	env, tf := newTestEnv(t)

	fut, err := env.Procs.ProcessPCCH.Launch(context.Background(), env, rrcenv.Paging{
		Records: []rrcenv.PagingRecord{{STMSI: [2]uint32{9, 9}, HasSTMSI: true}},
	})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	result, ok := fut.Value()
	if !ok || result.Err != nil {
		t.Fatalf("result = %+v ok=%v, want immediate success (no match, no records left)", result, ok)
	}
	if len(tf.nas.PagingCalls) != 0 {
		t.Fatalf("nas.PagingCalls = %v, want no calls for a non-matching S-TMSI", tf.nas.PagingCalls)
	}
}

func TestProcessPCCHErrorsWhenNASRejectsPaging(t *testing.T) {
	env, tf := newTestEnv(t)
	tf.nas.PagingOK = false

	fut, err := env.Procs.ProcessPCCH.Launch(context.Background(), env, rrcenv.Paging{
		Records: []rrcenv.PagingRecord{{STMSI: [2]uint32{1, 2}, HasSTMSI: true}},
	})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	result, ok := fut.Value()
	if !ok || result.Err != ErrLowerLayerFailure {
		t.Fatalf("result = %+v ok=%v, want ErrLowerLayerFailure", result, ok)
	}
}

func TestProcessPCCHErrorsWhenPagingCompleteReportsFailure(t *testing.T) {
	env, _ := newTestEnv(t)

	fut, err := env.Procs.ProcessPCCH.Launch(context.Background(), env, rrcenv.Paging{
		Records: []rrcenv.PagingRecord{{STMSI: [2]uint32{1, 2}, HasSTMSI: true}},
	})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}

	env.Procs.ProcessPCCH.Trigger(context.Background(), event.PagingComplete{OK: false})

	result, ok := fut.Value()
	if !ok || result.Err != ErrLowerLayerFailure {
		t.Fatalf("result = %+v ok=%v, want ErrLowerLayerFailure", result, ok)
	}
}

func TestProcessPCCHReconfiguresServingCellOnSysInfoModPresent(t *testing.T) {
	env, tf := newTestEnv(t)
	serving := seedCampedCell(t, env, tf, cell.ID{EARFCN: 6400, PCI: 1})

	fut, err := env.Procs.ProcessPCCH.Launch(context.Background(), env, rrcenv.Paging{
		Records: []rrcenv.PagingRecord{{SysInfoModPresent: true}},
	})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if serving.SIBs.Has(1) {
		t.Fatalf("ResetSIBs did not clear the serving cell's SIB bitmap")
	}
	if !env.Procs.SCellConfig.IsRunning() {
		t.Fatalf("process-pcch did not launch serving-cell-config after sys_info_mod_present")
	}

	// the reset cell no longer carries its SIBs, so serving-cell-config
	// must reacquire them via si-acquire before the round settles.
	if fut.IsComplete() {
		t.Fatalf("process-pcch completed before serving-cell-config finished")
	}
	serving.HandleSIB1(&cell.SIB1{
		SchedInfoList: []cell.SchedInfo{{SIPeriodicity: 16, SIBMapInfo: []int{3}}},
	})
	env.Procs.SIAcquire.Trigger(context.Background(), event.SIBReceived{SIBIndex: 0})
	env.Procs.ProcessPCCH.Run(context.Background())
	serving.HandleSIB(1)
	env.Procs.SIAcquire.Trigger(context.Background(), event.SIBReceived{SIBIndex: 1})
	env.Procs.ProcessPCCH.Run(context.Background())
	serving.HandleSIB(2)
	env.Procs.SIAcquire.Trigger(context.Background(), event.SIBReceived{SIBIndex: 2})
	env.Procs.ProcessPCCH.Run(context.Background())

	result, ok := fut.Value()
	if !ok || result.Err != nil {
		t.Fatalf("result = %+v ok=%v, want success", result, ok)
	}
}

func TestProcessPCCHAdvancesThroughMultipleRecords(t *testing.T) {
	env, tf := newTestEnv(t)

	fut, err := env.Procs.ProcessPCCH.Launch(context.Background(), env, rrcenv.Paging{
		Records: []rrcenv.PagingRecord{
			{STMSI: [2]uint32{9, 9}, HasSTMSI: true}, // non-matching, skipped
			{STMSI: [2]uint32{1, 2}, HasSTMSI: true}, // matching
		},
	})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if len(tf.nas.PagingCalls) != 1 {
		t.Fatalf("nas.PagingCalls = %v, want the non-matching record skipped and only the second paged", tf.nas.PagingCalls)
	}

	env.Procs.ProcessPCCH.Trigger(context.Background(), event.PagingComplete{OK: true})

	result, ok := fut.Value()
	if !ok || result.Err != nil {
		t.Fatalf("result = %+v ok=%v, want success", result, ok)
	}
}
