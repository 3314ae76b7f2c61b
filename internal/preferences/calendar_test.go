package preferences

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCalendarSingleCreate(t *testing.T) {
	calendar := newTestCalendar(t, TeacherAdapter, newFakeStore())
	calendar.SetBrush(PreferencePrefersToSchedule)

	if err := calendar.OnCellClick(PeriodRef{ID: 3}, 2); err != nil {
		t.Fatalf("unexpected click error: %v", err)
	}

	changes := calendar.PendingChanges()
	if len(changes) != 1 {
		t.Fatalf("expected one pending change, got %d", len(changes))
	}
	expected := PendingChange{
		OperationType:     OperationCreate,
		PeriodID:          3,
		DayOfWeek:         2,
		CellIndex:         "3-2",
		NewPreferenceType: PreferencePrefersToSchedule,
	}
	if changes[0] != expected {
		t.Fatalf("unexpected pending change %#v", changes[0])
	}
	if got := calendar.Project("3-2"); got != PreferencePrefersToSchedule {
		t.Fatalf("expected projection PREFERS_TO_SCHEDULE, got %q", got)
	}
	if calendar.PendingCount() != 1 {
		t.Fatalf("expected pending count 1, got %d", calendar.PendingCount())
	}
}

func TestCalendarSecondClickReplacesChange(t *testing.T) {
	testCases := []struct {
		name          string
		records       []SchedulePreference
		wantOperation OperationType
	}{
		{name: "empty-cell", wantOperation: OperationCreate},
		{
			name:          "existing-record",
			records:       []SchedulePreference{storedPreference("pref-32", 3, 2, PreferencePrefersToSchedule)},
			wantOperation: OperationUpdate,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			calendar := newTestCalendar(t, TeacherAdapter, newFakeStore(testCase.records...))
			calendar.SetBrush(PreferenceMustSchedule)
			if err := calendar.OnCellClick(PeriodRef{ID: 3}, 2); err != nil {
				t.Fatalf("unexpected click error: %v", err)
			}
			calendar.SetBrush(PreferenceMustNotSchedule)
			if err := calendar.OnCellClick(PeriodRef{ID: 3}, 2); err != nil {
				t.Fatalf("unexpected click error: %v", err)
			}

			changes := calendar.PendingChanges()
			if len(changes) != 1 {
				t.Fatalf("expected exactly one pending change, got %d", len(changes))
			}
			if changes[0].OperationType != testCase.wantOperation {
				t.Fatalf("expected %s, got %s", testCase.wantOperation, changes[0].OperationType)
			}
			if changes[0].NewPreferenceType != PreferenceMustNotSchedule {
				t.Fatalf("expected MUST_NOT_SCHEDULE, got %s", changes[0].NewPreferenceType)
			}
		})
	}
}

func TestCalendarTeacherToggleOffDeletes(t *testing.T) {
	store := newFakeStore(storedPreference("pref-51", 5, 1, PreferenceMustSchedule))
	calendar := newTestCalendar(t, TeacherAdapter, store)
	calendar.SetBrush(PreferenceMustSchedule)

	if err := calendar.OnCellClick(PeriodRef{ID: 5}, 1); err != nil {
		t.Fatalf("unexpected click error: %v", err)
	}

	change, ok := calendar.Pending("5-1")
	if !ok {
		t.Fatalf("expected pending change for 5-1")
	}
	if change.OperationType != OperationDelete || change.PreferenceUUID != "pref-51" {
		t.Fatalf("expected delete of pref-51, got %#v", change)
	}
	if got := calendar.Project("5-1"); got != PreferenceNone {
		t.Fatalf("expected empty projection, got %q", got)
	}
}

func TestCalendarClassDoesNotToggle(t *testing.T) {
	store := newFakeStore(storedPreference("pref-51", 5, 1, PreferenceMustSchedule))
	calendar := newTestCalendar(t, ClassAdapter, store)
	calendar.SetBrush(PreferenceMustSchedule)

	if err := calendar.OnCellClick(PeriodRef{ID: 5}, 1); err != nil {
		t.Fatalf("unexpected click error: %v", err)
	}
	if calendar.PendingCount() != 0 {
		t.Fatalf("expected no pending change, got %d", calendar.PendingCount())
	}
	if got := calendar.Project("5-1"); got != PreferenceMustSchedule {
		t.Fatalf("expected server projection, got %q", got)
	}
}

func TestCalendarCancelsSameSessionCreate(t *testing.T) {
	calendar := newTestCalendar(t, TeacherAdapter, newFakeStore())
	calendar.SetBrush(PreferenceMustSchedule)

	for click := 0; click < 2; click++ {
		if err := calendar.OnCellClick(PeriodRef{ID: 2}, 4); err != nil {
			t.Fatalf("unexpected click error: %v", err)
		}
	}
	if calendar.PendingCount() != 0 {
		t.Fatalf("expected create to be cancelled, got %#v", calendar.PendingChanges())
	}
}

func TestCalendarRevertToServerTypeClearsChange(t *testing.T) {
	store := newFakeStore(storedPreference("pref-13", 1, 3, PreferencePrefersToSchedule))
	calendar := newTestCalendar(t, TeacherAdapter, store)

	calendar.SetBrush(PreferenceMustSchedule)
	if err := calendar.OnCellClick(PeriodRef{ID: 1}, 3); err != nil {
		t.Fatalf("unexpected click error: %v", err)
	}
	calendar.SetBrush(PreferencePrefersToSchedule)
	if err := calendar.OnCellClick(PeriodRef{ID: 1}, 3); err != nil {
		t.Fatalf("unexpected click error: %v", err)
	}
	if calendar.PendingCount() != 0 {
		t.Fatalf("expected cell to return to clean state, got %#v", calendar.PendingChanges())
	}
}

func TestCalendarRejectsInvalidClicks(t *testing.T) {
	calendar := newTestCalendar(t, TeacherAdapter, newFakeStore())

	if err := calendar.OnCellClick(PeriodRef{ID: 1}, 1); !IsValidationError(err) {
		t.Fatalf("expected validation error without brush, got %v", err)
	}

	calendar.SetBrush(PreferenceMustSchedule)
	if err := calendar.OnCellClick(PeriodRef{UUID: "not-a-period"}, 1); !IsResolutionError(err) {
		t.Fatalf("expected resolution error, got %v", err)
	}
	if err := calendar.OnCellClick(PeriodRef{ID: 1}, 8); !IsValidationError(err) {
		t.Fatalf("expected validation error for week-two day on weekly plan, got %v", err)
	}
	if calendar.PendingCount() != 0 {
		t.Fatalf("expected rejected clicks to leave ledger empty")
	}

	if err := calendar.OnCellClick(PeriodRef{UUID: "0190a1b2-0000-7000-8000-000000000005"}, 7); err != nil {
		t.Fatalf("unexpected click error: %v", err)
	}
	if _, ok := calendar.Pending("5-7"); !ok {
		t.Fatalf("expected uuid reference to resolve to period 5")
	}
}

func TestCalendarSaveReconcilesWithServer(t *testing.T) {
	store := newFakeStore(
		storedPreference("pref-11", 1, 1, PreferenceMustSchedule),
		storedPreference("pref-21", 2, 1, PreferencePrefersToSchedule),
	)
	calendar := newTestCalendar(t, TeacherAdapter, store)

	calendar.SetBrush(PreferenceMustSchedule)
	mustClick(t, calendar, PeriodRef{ID: 1}, 1)
	mustClick(t, calendar, PeriodRef{ID: 3}, 5)
	calendar.SetBrush(PreferencePrefersNotToSchedule)
	mustClick(t, calendar, PeriodRef{ID: 2}, 1)

	report, err := calendar.OnSave(context.Background())
	if err != nil {
		t.Fatalf("unexpected save error: %v", err)
	}
	if report.Summary() != "3 succeeded, 0 failed" {
		t.Fatalf("unexpected summary %q", report.Summary())
	}
	if calendar.PendingCount() != 0 {
		t.Fatalf("expected ledger to be cleared")
	}
	if got := calendar.Project("1-1"); got != PreferenceNone {
		t.Fatalf("expected deleted cell to be empty, got %q", got)
	}
	if got := calendar.Project("3-5"); got != PreferenceMustSchedule {
		t.Fatalf("expected created cell from server, got %q", got)
	}
	if got := calendar.Project("2-1"); got != PreferencePrefersNotToSchedule {
		t.Fatalf("expected updated cell from server, got %q", got)
	}
	if len(calendar.Snapshot()) != 2 {
		t.Fatalf("expected two records after commit, got %d", len(calendar.Snapshot()))
	}
}

func TestCalendarRefetchFailureKeepsLastSnapshot(t *testing.T) {
	store := newFakeStore(storedPreference("pref-11", 1, 1, PreferenceMustSchedule))
	calendar := newTestCalendar(t, ClassAdapter, store)
	store.fetchErr = errors.New("refetch unavailable")

	calendar.SetBrush(PreferenceMustNotSchedule)
	mustClick(t, calendar, PeriodRef{ID: 1}, 1)

	report, err := calendar.OnSave(context.Background())
	if err != nil {
		t.Fatalf("unexpected save error: %v", err)
	}
	if report.RefetchErr == nil {
		t.Fatalf("expected refetch failure in report")
	}
	if calendar.PendingCount() != 0 {
		t.Fatalf("expected ledger to be cleared after failed refetch")
	}
	if got := calendar.Project("1-1"); got != PreferenceMustSchedule {
		t.Fatalf("expected stale clean state, got %q", got)
	}
}

type blockingStore struct {
	*fakeStore
	started chan struct{}
	release chan struct{}
}

func (s *blockingStore) CreatePreference(ctx context.Context, entity Entity, periodID PeriodID, day DayOfWeek, preferenceType PreferenceType) (SchedulePreference, error) {
	close(s.started)
	<-s.release
	return s.fakeStore.CreatePreference(ctx, entity, periodID, day, preferenceType)
}

func TestCalendarRejectsInputWhileCommitting(t *testing.T) {
	store := &blockingStore{fakeStore: newFakeStore(), started: make(chan struct{}), release: make(chan struct{})}
	calendar, err := NewCalendar(CalendarConfig{
		Entity:  mustEntity(t, TeacherAdapter, "teacher-1"),
		Store:   store,
		Periods: testPeriods(),
	})
	if err != nil {
		t.Fatalf("unexpected calendar error: %v", err)
	}
	calendar.SetBrush(PreferenceMustSchedule)
	mustClick(t, calendar, PeriodRef{ID: 1}, 1)

	done := make(chan CommitReport, 1)
	go func() {
		report, _ := calendar.OnSave(context.Background())
		done <- report
	}()

	select {
	case <-store.started:
	case <-time.After(2 * time.Second):
		t.Fatal("commit did not start")
	}

	if !calendar.IsCommitting() {
		t.Fatalf("expected committing flag during save")
	}
	if err := calendar.OnCellClick(PeriodRef{ID: 2}, 2); !errors.Is(err, ErrCommitInProgress) {
		t.Fatalf("expected click rejection, got %v", err)
	}
	if _, err := calendar.OnSave(context.Background()); !errors.Is(err, ErrCommitInProgress) {
		t.Fatalf("expected save rejection, got %v", err)
	}
	if err := calendar.OnDiscard(); !errors.Is(err, ErrCommitInProgress) {
		t.Fatalf("expected discard rejection, got %v", err)
	}
	if got := calendar.Project("1-1"); got != PreferenceMustSchedule {
		t.Fatalf("expected pending overlay while committing, got %q", got)
	}

	close(store.release)
	select {
	case report := <-done:
		if report.Succeeded() != 1 {
			t.Fatalf("unexpected report %s", report.Summary())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("commit did not finish")
	}
	if calendar.IsCommitting() {
		t.Fatalf("expected committing flag to reset")
	}
}

func TestCalendarDiscardAndGrid(t *testing.T) {
	calendar, err := NewCalendar(CalendarConfig{
		Entity:   mustEntity(t, ClassAdapter, "class-1"),
		Store:    newFakeStore(storedPreference("pref-29", 2, 9, PreferenceMustNotSchedule)),
		Periods:  testPeriods(),
		Biweekly: true,
	})
	if err != nil {
		t.Fatalf("unexpected calendar error: %v", err)
	}
	if err := calendar.Load(context.Background()); err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	calendar.SetBrush(PreferenceMustSchedule)
	mustClick(t, calendar, PeriodRef{ID: 1}, 14)

	cells := calendar.Cells()
	if len(cells) != 4*14 {
		t.Fatalf("expected 56 cells, got %d", len(cells))
	}
	if cells[0].Cell.CellIndex() != "1-1" || cells[13].Cell.CellIndex() != "1-14" {
		t.Fatalf("unexpected cell ordering")
	}
	if cells[13].Pending == nil || cells[13].Effective != PreferenceMustSchedule {
		t.Fatalf("expected pending overlay on 1-14")
	}
	if cells[14+8].Effective != PreferenceMustNotSchedule {
		t.Fatalf("expected server state on 2-9, got %q", cells[14+8].Effective)
	}

	if err := calendar.OnDiscard(); err != nil {
		t.Fatalf("unexpected discard error: %v", err)
	}
	if calendar.PendingCount() != 0 || calendar.Project("1-14") != PreferenceNone {
		t.Fatalf("expected discard to restore clean state")
	}
}

func TestNewCalendarValidatesConfig(t *testing.T) {
	if _, err := NewCalendar(CalendarConfig{Entity: Entity{UUID: "x", Adapter: TeacherAdapter}}); err == nil {
		t.Fatalf("expected error for missing store")
	}
	if _, err := NewCalendar(CalendarConfig{Store: newFakeStore()}); err == nil {
		t.Fatalf("expected error for missing entity")
	}
}

func mustClick(t *testing.T, calendar *Calendar, ref PeriodRef, day int) {
	t.Helper()
	if err := calendar.OnCellClick(ref, day); err != nil {
		t.Fatalf("unexpected click error: %v", err)
	}
}
