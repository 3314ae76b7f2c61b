package preferences

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

type storeCall struct {
	method         string
	preferenceUUID string
	periodID       PeriodID
	day            DayOfWeek
	preferenceType PreferenceType
}

// fakeStore keeps records in memory and records every call in order.
type fakeStore struct {
	mu        sync.Mutex
	records   map[string]SchedulePreference
	calls     []storeCall
	failOn    map[string]error
	fetchErr  error
	nextID    int
	fetchHits int
}

func newFakeStore(records ...SchedulePreference) *fakeStore {
	store := &fakeStore{records: make(map[string]SchedulePreference), failOn: make(map[string]error)}
	for _, record := range records {
		store.records[record.UUID] = record
	}
	return store
}

// failKey is "create:<cellIndex>", "update:<uuid>" or "delete:<uuid>".
func (s *fakeStore) fail(key string, err error) {
	s.failOn[key] = err
}

func (s *fakeStore) CreatePreference(_ context.Context, _ Entity, periodID PeriodID, day DayOfWeek, preferenceType PreferenceType) (SchedulePreference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, storeCall{method: "create", periodID: periodID, day: day, preferenceType: preferenceType})
	if err := s.failOn["create:"+NewCellIndex(periodID, day).String()]; err != nil {
		return SchedulePreference{}, err
	}
	s.nextID++
	record := SchedulePreference{
		UUID:      fmt.Sprintf("pref-new-%d", s.nextID),
		PeriodID:  periodID,
		DayOfWeek: day,
		Flags:     FlagsFor(preferenceType),
	}
	s.records[record.UUID] = record
	return record, nil
}

func (s *fakeStore) UpdatePreference(_ context.Context, _ Entity, preferenceUUID string, periodID PeriodID, day DayOfWeek, preferenceType PreferenceType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, storeCall{method: "update", preferenceUUID: preferenceUUID, periodID: periodID, day: day, preferenceType: preferenceType})
	if err := s.failOn["update:"+preferenceUUID]; err != nil {
		return err
	}
	record, ok := s.records[preferenceUUID]
	if !ok {
		return errors.New("not found")
	}
	record.Flags = FlagsFor(preferenceType)
	s.records[preferenceUUID] = record
	return nil
}

func (s *fakeStore) DeletePreference(_ context.Context, _ Entity, preferenceUUID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, storeCall{method: "delete", preferenceUUID: preferenceUUID})
	if err := s.failOn["delete:"+preferenceUUID]; err != nil {
		return err
	}
	if _, ok := s.records[preferenceUUID]; !ok {
		return errors.New("not found")
	}
	delete(s.records, preferenceUUID)
	return nil
}

func (s *fakeStore) FetchPreferences(_ context.Context, _ Entity) ([]SchedulePreference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchHits++
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	records := make([]SchedulePreference, 0, len(s.records))
	for _, record := range s.records {
		records = append(records, record)
	}
	return records, nil
}

func (s *fakeStore) methods() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	methods := make([]string, 0, len(s.calls))
	for _, call := range s.calls {
		methods = append(methods, call.method)
	}
	return methods
}

func mustEntity(t *testing.T, adapter EntityAdapter, uuid string) Entity {
	t.Helper()
	entity, err := NewEntity(adapter, uuid)
	if err != nil {
		t.Fatalf("unexpected entity error: %v", err)
	}
	return entity
}

func mustDay(t *testing.T, value int) DayOfWeek {
	t.Helper()
	day, err := NewDayOfWeek(value)
	if err != nil {
		t.Fatalf("unexpected day error: %v", err)
	}
	return day
}

func storedPreference(uuid string, periodID PeriodID, day DayOfWeek, preferenceType PreferenceType) SchedulePreference {
	return SchedulePreference{UUID: uuid, PeriodID: periodID, DayOfWeek: day, Flags: FlagsFor(preferenceType)}
}

func testPeriods() []Period {
	return []Period{
		{ID: 1, UUID: "0190a1b2-0000-7000-8000-000000000001", Name: "Period 1", Position: 1},
		{ID: 3, UUID: "0190a1b2-0000-7000-8000-000000000003", Name: "Period 3", Position: 3},
		{ID: 2, UUID: "0190a1b2-0000-7000-8000-000000000002", Name: "Period 2", Position: 2},
		{ID: 5, UUID: "0190a1b2-0000-7000-8000-000000000005", Name: "Period 5", Position: 5},
	}
}

func newTestCalendar(t *testing.T, adapter EntityAdapter, store *fakeStore) *Calendar {
	t.Helper()
	calendar, err := NewCalendar(CalendarConfig{
		Entity:  mustEntity(t, adapter, "entity-1"),
		Store:   store,
		Periods: testPeriods(),
	})
	if err != nil {
		t.Fatalf("unexpected calendar error: %v", err)
	}
	if err := calendar.Load(context.Background()); err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	return calendar
}
