// Package undoredo keeps a linear edit history for one resource draft.
package undoredo

import "github.com/rpattn/resourcekit/internal/domain"

// Ledger is a cursor into a list of snapshots. Index 0 is the original.
// A Ledger is not safe for concurrent use.
type Ledger struct {
	history []domain.Object
	cursor  int
}

// New starts a ledger whose original snapshot is a copy of original.
func New(original domain.Object) *Ledger {
	return &Ledger{history: []domain.Object{original.Clone()}}
}

// Current returns a copy of the snapshot at the cursor.
func (l *Ledger) Current() domain.Object {
	return l.history[l.cursor].Clone()
}

// Original returns a copy of the first snapshot.
func (l *Ledger) Original() domain.Object {
	return l.history[0].Clone()
}

// Update discards any redo snapshots and appends next.
func (l *Ledger) Update(next domain.Object) {
	l.history = append(l.history[:l.cursor+1], next.Clone())
	l.cursor++
}

// Undo moves the cursor back one snapshot. It reports false at the start of
// the history.
func (l *Ledger) Undo() bool {
	if !l.CanUndo() {
		return false
	}
	l.cursor--
	return true
}

// Redo moves the cursor forward one snapshot. It reports false at the end of
// the history.
func (l *Ledger) Redo() bool {
	if !l.CanRedo() {
		return false
	}
	l.cursor++
	return true
}

// Reset drops every snapshot after the original.
func (l *Ledger) Reset() {
	l.history = l.history[:1]
	l.cursor = 0
}

func (l *Ledger) CanUndo() bool { return l.cursor > 0 }

func (l *Ledger) CanRedo() bool { return l.cursor < len(l.history)-1 }

// Len returns the number of snapshots held.
func (l *Ledger) Len() int { return len(l.history) }

// Position returns the cursor index.
func (l *Ledger) Position() int { return l.cursor }

// Diff returns the fields of the current snapshot whose values differ from
// the original. Fields removed since the original are not represented.
func (l *Ledger) Diff() domain.Object {
	original, current := l.history[0], l.history[l.cursor]
	out := domain.Object{}
	for key, value := range current {
		if before, ok := original[key]; ok && domain.Equal(before, value) {
			continue
		}
		out[key] = domain.Clone(value)
	}
	return out
}
