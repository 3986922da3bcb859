package reconcile

import (
	"boletodesk/internal/records"
	"boletodesk/internal/textutil"
)

// Pair is a collection document, its fiscal note when one matches, and the
// report comparing them.
type Pair struct {
	Document records.CollectionDocument `json:"document"`
	Note     *records.FiscalNote        `json:"note,omitempty"`
	Report   Report                     `json:"report"`
}

// IndexNotes maps invoice keys to notes. The first note wins on duplicate
// keys; notes without a key are skipped.
func IndexNotes(notes []records.FiscalNote) map[string]*records.FiscalNote {
	index := make(map[string]*records.FiscalNote, len(notes))
	for i := range notes {
		key := textutil.InvoiceKey(notes[i].InvoiceNumber)
		if key == "" {
			continue
		}
		if _, exists := index[key]; exists {
			continue
		}
		index[key] = &notes[i]
	}
	return index
}

// FindNote returns the note sharing doc's invoice key, or nil.
func FindNote(doc records.CollectionDocument, index map[string]*records.FiscalNote) *records.FiscalNote {
	key := textutil.InvoiceKey(doc.InvoiceNumber)
	if key == "" {
		return nil
	}
	return index[key]
}

// PairDocuments joins docs and notes by invoice key, keeping document order.
// An unmatched document is a valid pair with a nil note.
func PairDocuments(docs []records.CollectionDocument, notes []records.FiscalNote) []Pair {
	index := IndexNotes(notes)
	pairs := make([]Pair, 0, len(docs))
	for _, doc := range docs {
		note := FindNote(doc, index)
		if note != nil {
			copied := *note
			note = &copied
		}
		pairs = append(pairs, Pair{Document: doc, Note: note, Report: Reconcile(doc, note)})
	}
	return pairs
}

// Summary counts row statuses across paired reports plus unpaired documents.
type Summary struct {
	Paired        int `json:"paired"`
	Unpaired      int `json:"unpaired"`
	Exact         int `json:"exact"`
	Partial       int `json:"partial"`
	Divergent     int `json:"divergent"`
	NotApplicable int `json:"not_applicable"`
}

// Summarize tallies the reports of pairs.
func Summarize(pairs []Pair) Summary {
	var s Summary
	for _, pair := range pairs {
		if !pair.Report.Paired() {
			s.Unpaired++
			continue
		}
		s.Paired++
		for _, row := range pair.Report.Rows {
			switch row.Status {
			case MatchExact:
				s.Exact++
			case MatchPartial:
				s.Partial++
			case MatchDivergent:
				s.Divergent++
			case MatchNotApplicable:
				s.NotApplicable++
			}
		}
	}
	return s
}
