package preferences

// Ledger is the ordered set of uncommitted cell edits, keyed by cell index. At most one
// change exists per cell; replacing a change keeps its original position.
type Ledger struct {
	order   []CellIndex
	changes map[CellIndex]PendingChange
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{changes: make(map[CellIndex]PendingChange)}
}

// Upsert inserts the change or replaces the one already recorded for its cell.
func (l *Ledger) Upsert(change PendingChange) {
	if change.CellIndex == "" {
		change.CellIndex = NewCellIndex(change.PeriodID, change.DayOfWeek)
	}
	if l.changes == nil {
		l.changes = make(map[CellIndex]PendingChange)
	}
	if _, exists := l.changes[change.CellIndex]; !exists {
		l.order = append(l.order, change.CellIndex)
	}
	l.changes[change.CellIndex] = change
}

// Remove drops the change for a cell and reports whether one existed.
func (l *Ledger) Remove(cellIndex CellIndex) bool {
	if _, exists := l.changes[cellIndex]; !exists {
		return false
	}
	delete(l.changes, cellIndex)
	for position, key := range l.order {
		if key == cellIndex {
			l.order = append(l.order[:position], l.order[position+1:]...)
			break
		}
	}
	return true
}

// Clear empties the ledger.
func (l *Ledger) Clear() {
	l.order = nil
	l.changes = make(map[CellIndex]PendingChange)
}

// Get returns the pending change for a cell.
func (l *Ledger) Get(cellIndex CellIndex) (PendingChange, bool) {
	change, ok := l.changes[cellIndex]
	return change, ok
}

// All returns a copy of the changes in ledger order.
func (l *Ledger) All() []PendingChange {
	all := make([]PendingChange, 0, len(l.order))
	for _, key := range l.order {
		all = append(all, l.changes[key])
	}
	return all
}

// Len returns the number of pending changes.
func (l *Ledger) Len() int {
	return len(l.order)
}
