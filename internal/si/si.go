// Package si implements SI Scheduling (spec.md §4.3): computing the
// SI-window (start_tti, length) for a requested SIB index from the
// current TTI and a decoded SIB1, deterministically per the 3GPP
// scheduling formulas spec.md reproduces.
//
// Pure functions, grounded directly on spec.md's formulas and
// cross-checked against original_source/srsue's
// si_acquire_proc::start_si_acquire.
package si

import "github.com/ranstack/rrcue/internal/cell"

// FrameLenTTI is the number of TTIs (1ms subframes) per radio frame.
const FrameLenTTI = 10

// HyperframeTTIs is the SFN wraparound period in TTIs (1024 frames).
const HyperframeTTIs = 10240

// SIB1Periodicity is the fixed SIB1 scheduling period in radio frames
// (spec.md §4.3, §6).
const SIB1Periodicity = 20

// SibTypeFor returns the raw SIB type number spec.md's sib_map_info uses
// for sibIndex (e.g. SIB3 is encoded as 3), i.e. sibIndex+1.
func SibTypeFor(sibIndex int) int { return sibIndex + 1 }

// SibStartTTI computes spec.md §4.3's
// sib_start_tti(t, T, offset, a) = ((T*10)*(1+t/(T*10)) + offset*10 + a) mod 10240.
func SibStartTTI(t, periodFrames, offset, a int) int {
	block := periodFrames * FrameLenTTI
	return ((block * (1 + t/block)) + offset*FrameLenTTI + a) % HyperframeTTIs
}

// ComputePeriodicityAndIdx returns (T, n) for sibIndex per spec.md §4.3.
// ok is false ("not scheduled") when sibIndex >= 2 and no sched_info_list
// entry maps to it.
func ComputePeriodicityAndIdx(sibIndex int, sib1 *cell.SIB1) (period, idx int, ok bool) {
	switch {
	case sibIndex == 1:
		if sib1 == nil || len(sib1.SchedInfoList) == 0 {
			return 0, -1, false
		}
		return sib1.SchedInfoList[0].SIPeriodicity, 0, true
	case sibIndex >= 2:
		if sib1 == nil {
			return 0, -1, false
		}
		want := SibTypeFor(sibIndex)
		for k, entry := range sib1.SchedInfoList {
			for _, m := range entry.SIBMapInfo {
				if m == want {
					return entry.SIPeriodicity, k, true
				}
			}
		}
		return 0, -1, false
	default:
		// sibIndex == 0 (SIB1) has no sched_info_list entry of its own.
		return 0, -1, false
	}
}

// Window is the (start, length) SI acquisition window for a SIB index,
// in TTIs.
type Window struct {
	Start  int
	Length int
}

// ComputeWindow computes the SI-window for sibIndex at the current TTI t,
// per spec.md §4.3. ok is false if sibIndex >= 1 and the SIB is not
// scheduled (absent from sib1's sched_info_list).
func ComputeWindow(t, sibIndex int, sib1 *cell.SIB1) (Window, bool) {
	if sibIndex == 0 {
		return Window{Start: SibStartTTI(t, 2, 0, 5), Length: 1}, true
	}

	period, idx, ok := ComputePeriodicityAndIdx(sibIndex, sib1)
	if !ok {
		return Window{}, false
	}

	x := idx * sib1.SIWinLen
	a := x % FrameLenTTI
	offset := x / FrameLenTTI
	start := SibStartTTI(t, period, offset, a)
	return Window{Start: start, Length: sib1.SIWinLen}, true
}
