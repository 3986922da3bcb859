package workflow

import (
	"boletodesk/internal/grouping"
	"boletodesk/internal/reconcile"
)

// Pairs joins the current documents with their fiscal notes. It is empty
// until documents exist.
func (w *Workflow) Pairs() []reconcile.Pair {
	state := w.State()
	if !state.Facts().HasDocuments {
		return []reconcile.Pair{}
	}
	return reconcile.PairDocuments(state.Documents, state.Notes)
}

// View returns the grouping preview joined with reconciliation reports. It
// is empty while the result stage is locked or the preview has not loaded.
func (w *Workflow) View() grouping.View {
	state := w.State()
	if !state.Facts().HasResult {
		return grouping.BuildView(nil, nil)
	}
	return grouping.BuildView(state.Preview, state.Notes)
}
