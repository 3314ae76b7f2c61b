package preferences

import "testing"

func TestLedgerUpsertKeepsLastValuePerCell(t *testing.T) {
	ledger := NewLedger()
	day := mustDay(t, 2)
	types := []PreferenceType{
		PreferenceMustSchedule,
		PreferenceMustNotSchedule,
		PreferencePrefersToSchedule,
		PreferencePrefersNotToSchedule,
	}
	for _, preferenceType := range types {
		ledger.Upsert(newCreateChange(3, day, preferenceType))
	}

	if ledger.Len() != 1 {
		t.Fatalf("expected exactly one entry, got %d", ledger.Len())
	}
	change, ok := ledger.Get("3-2")
	if !ok {
		t.Fatalf("expected entry for cell 3-2")
	}
	if change.NewPreferenceType != PreferencePrefersNotToSchedule {
		t.Fatalf("expected last upserted type, got %s", change.NewPreferenceType)
	}
}

func TestLedgerReplaceKeepsPosition(t *testing.T) {
	ledger := NewLedger()
	ledger.Upsert(newCreateChange(1, mustDay(t, 1), PreferenceMustSchedule))
	ledger.Upsert(newCreateChange(2, mustDay(t, 1), PreferenceMustSchedule))
	ledger.Upsert(newCreateChange(3, mustDay(t, 1), PreferenceMustSchedule))
	ledger.Upsert(newCreateChange(1, mustDay(t, 1), PreferenceMustNotSchedule))

	all := ledger.All()
	expected := []CellIndex{"1-1", "2-1", "3-1"}
	if len(all) != len(expected) {
		t.Fatalf("expected %d entries, got %d", len(expected), len(all))
	}
	for index, cellIndex := range expected {
		if all[index].CellIndex != cellIndex {
			t.Fatalf("expected %s at position %d, got %s", cellIndex, index, all[index].CellIndex)
		}
	}
	if all[0].NewPreferenceType != PreferenceMustNotSchedule {
		t.Fatalf("expected replaced value in place, got %s", all[0].NewPreferenceType)
	}
}

func TestLedgerRemoveAndClear(t *testing.T) {
	ledger := NewLedger()
	ledger.Upsert(newCreateChange(1, mustDay(t, 1), PreferenceMustSchedule))
	ledger.Upsert(newCreateChange(2, mustDay(t, 3), PreferenceMustSchedule))

	if !ledger.Remove("1-1") {
		t.Fatalf("expected removal of existing entry")
	}
	if ledger.Remove("1-1") {
		t.Fatalf("expected second removal to report false")
	}
	if ledger.Len() != 1 || ledger.All()[0].CellIndex != "2-3" {
		t.Fatalf("unexpected ledger contents: %#v", ledger.All())
	}

	ledger.Clear()
	if ledger.Len() != 0 || len(ledger.All()) != 0 {
		t.Fatalf("expected empty ledger after clear")
	}
	if _, ok := ledger.Get("2-3"); ok {
		t.Fatalf("expected no entry after clear")
	}
}

func TestLedgerDerivesMissingCellIndex(t *testing.T) {
	ledger := NewLedger()
	ledger.Upsert(PendingChange{OperationType: OperationCreate, PeriodID: 7, DayOfWeek: mustDay(t, 9), NewPreferenceType: PreferenceMustSchedule})
	if _, ok := ledger.Get("7-9"); !ok {
		t.Fatalf("expected entry keyed by derived cell index")
	}
}
