package preferences

// Project returns the preference a cell shows: the pending change overlaid on the last
// fetched server record. It performs no I/O and is safe to call on every render.
func Project(cell CellInfo, pending *PendingChange) PreferenceType {
	serverType := PreferenceNone
	if cell.CurrentPreference != nil {
		serverType = cell.CurrentPreference.Type()
	}
	if pending == nil {
		return serverType
	}
	if pending.OperationType == OperationDelete {
		return PreferenceNone
	}
	return pending.NewPreferenceType
}
