package mockbackend

import (
	"fmt"
	"slices"
	"strings"

	"boletodesk/internal/records"
)

// groupForSend builds one message per distinct sorted recipient set. Approved
// documents whose note has no valid address are left out. Documents inside a
// group are ordered by due date (DD-MM), missing dates last.
func groupForSend(op *operation) []records.EmailGroup {
	notes := make(map[string]*note, len(op.notes))
	for _, n := range op.notes {
		notes[n.rec.ID] = n
	}

	type member struct {
		doc  *document
		note *note
	}
	var (
		order  []string
		groups = map[string][]member{}
	)
	for _, doc := range op.docs {
		if !doc.rec.Status.IsApproved() || doc.noteID == "" {
			continue
		}
		n := notes[doc.noteID]
		if n == nil || len(n.rec.Emails) == 0 {
			continue
		}
		recipients := slices.Clone(n.rec.Emails)
		slices.Sort(recipients)
		key := strings.Join(recipients, "\x00")
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], member{doc: doc, note: n})
	}

	out := make([]records.EmailGroup, 0, len(order))
	for _, key := range order {
		members := groups[key]
		slices.SortStableFunc(members, func(a, b member) int {
			return strings.Compare(dueSortKey(a.doc.rec.DueDate), dueSortKey(b.doc.rec.DueDate))
		})

		group := records.EmailGroup{
			To:        strings.Split(key, "\x00"),
			CC:        append([]string{}, op.fidc.CCEmails...),
			Documents: []records.CollectionDocument{},
			Notes:     []records.FiscalNote{},
		}
		var numbers []string
		seenNotes := map[string]bool{}
		for _, m := range members {
			group.Documents = append(group.Documents, m.doc.rec)
			if m.doc.rec.InvoiceNumber != "" {
				numbers = append(numbers, m.doc.rec.InvoiceNumber)
			}
			if !seenNotes[m.note.rec.ID] {
				seenNotes[m.note.rec.ID] = true
				group.Notes = append(group.Notes, m.note.rec)
			}
		}
		group.Subject = subjectFor(numbers)
		out = append(out, group)
	}
	return out
}

func subjectFor(numbers []string) string {
	return fmt.Sprintf("Boleto e Nota Fiscal (%s)", strings.Join(numbers, ", "))
}

// dueSortKey turns DD-MM into MM-DD so dates sort chronologically.
func dueSortKey(due string) string {
	if due == "" {
		due = "99-99"
	}
	day, month, ok := strings.Cut(due, "-")
	if !ok {
		return due
	}
	return month + "-" + day
}
