package procedures

import (
	"math"

	"github.com/ranstack/rrcue/internal/cell"
)

// sib1Of returns c's decoded SIB1, or nil if c is nil or has none.
func sib1Of(c *cell.Cell) *cell.SIB1 {
	if c == nil {
		return nil
	}
	return c.SIB1
}

// negInfRSRP is the RSRP a cell is demoted to after a failed selection
// attempt (spec.md §4.8 steps 2-3), ranking it below every other cell.
var negInfRSRP = math.Inf(-1)

// meetsSelectionCriteria is TS 36.304 §5.2's cell-selection S-criterion,
// simplified to the single RSRP gate spec.md §4.8 names
// (cell_selection_criteria); PLMN/TAC whitelist checks are part of the
// out-of-scope NAS/PLMN-selection boundary.
func meetsSelectionCriteria(c *cell.Cell, rsrpThreshold float64) bool {
	return c != nil && !math.IsNaN(c.RSRP) && c.RSRP >= rsrpThreshold
}
