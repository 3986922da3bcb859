package grouping

import (
	"boletodesk/internal/reconcile"
	"boletodesk/internal/records"
)

// Item is one document of a group with its note and reconciliation report.
type Item struct {
	Document records.CollectionDocument `json:"document"`
	Note     *records.FiscalNote        `json:"note,omitempty"`
	Report   reconcile.Report           `json:"report"`
}

// Group is one candidate outbound message.
type Group struct {
	To      []string             `json:"to"`
	CC      []string             `json:"cc"`
	Subject string               `json:"subject"`
	Items   []Item               `json:"items"`
	Notes   []records.FiscalNote `json:"notes"`
}

// View is the rendered grouping preview of an operation.
type View struct {
	TotalGroups   int     `json:"total_groups"`
	TotalApproved int     `json:"total_approved"`
	Groups        []Group `json:"groups"`
}

// Empty reports whether the view has nothing to show.
func (v View) Empty() bool {
	return len(v.Groups) == 0
}

// BuildView joins preview with reconciliation reports. Notes are looked up in
// the group first, then in the operation-wide notes. A nil preview yields an
// empty view.
func BuildView(preview *records.SendPreview, notes []records.FiscalNote) View {
	if preview == nil {
		return View{Groups: []Group{}}
	}
	operationIndex := reconcile.IndexNotes(notes)
	view := View{
		TotalGroups:   preview.TotalGroups,
		TotalApproved: preview.TotalApproved,
		Groups:        make([]Group, 0, len(preview.Groups)),
	}
	for _, g := range preview.Groups {
		groupIndex := reconcile.IndexNotes(g.Notes)
		group := Group{
			To:      g.To,
			CC:      g.CC,
			Subject: g.Subject,
			Items:   make([]Item, 0, len(g.Documents)),
			Notes:   g.Notes,
		}
		for _, doc := range g.Documents {
			note := reconcile.FindNote(doc, groupIndex)
			if note == nil {
				note = reconcile.FindNote(doc, operationIndex)
			}
			if note != nil {
				copied := *note
				note = &copied
			}
			group.Items = append(group.Items, Item{Document: doc, Note: note, Report: reconcile.Reconcile(doc, note)})
		}
		view.Groups = append(view.Groups, group)
	}
	return view
}
