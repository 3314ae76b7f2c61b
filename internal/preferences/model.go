package preferences

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PreferenceType enumerates the mutually exclusive scheduling preferences of a cell.
type PreferenceType string

const (
	// PreferenceNone marks a cell without an active preference.
	PreferenceNone PreferenceType = ""
	// PreferenceMustSchedule requires the entity to be scheduled in the cell.
	PreferenceMustSchedule PreferenceType = "MUST_SCHEDULE"
	// PreferenceMustNotSchedule forbids scheduling the entity in the cell.
	PreferenceMustNotSchedule PreferenceType = "MUST_NOT_SCHEDULE"
	// PreferencePrefersToSchedule is a soft request to schedule the entity in the cell.
	PreferencePrefersToSchedule PreferenceType = "PREFERS_TO_SCHEDULE"
	// PreferencePrefersNotToSchedule is a soft request to avoid the cell.
	PreferencePrefersNotToSchedule PreferenceType = "PREFERS_NOT_TO_SCHEDULE"
)

// preferencePriority orders the types for resolving records with several flags set.
var preferencePriority = [4]PreferenceType{
	PreferenceMustSchedule,
	PreferenceMustNotSchedule,
	PreferencePrefersToSchedule,
	PreferencePrefersNotToSchedule,
}

// OperationType enumerates pending change operations.
type OperationType string

const (
	// OperationCreate inserts a preference for a cell without one.
	OperationCreate OperationType = "CREATE"
	// OperationUpdate changes the type of an existing preference.
	OperationUpdate OperationType = "UPDATE"
	// OperationDelete removes an existing preference.
	OperationDelete OperationType = "DELETE"
)

const (
	minDayOfWeek = 1
	maxDayOfWeek = 14
	daysPerWeek  = 7
)

var (
	// ErrInvalidPreferenceType indicates an unknown preference type label.
	ErrInvalidPreferenceType = errors.New("preferences: invalid preference type")
	// ErrInvalidPeriodID indicates a non-positive period identifier.
	ErrInvalidPeriodID = errors.New("preferences: invalid period id")
	// ErrInvalidDayOfWeek indicates a day outside the 1-14 range.
	ErrInvalidDayOfWeek = errors.New("preferences: invalid day of week")
	// ErrInvalidCellIndex indicates a malformed cell index string.
	ErrInvalidCellIndex = errors.New("preferences: invalid cell index")
)

// ParsePreferenceType validates a wire label. The empty string maps to PreferenceNone.
func ParsePreferenceType(raw string) (PreferenceType, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(raw))
	if trimmed == "" {
		return PreferenceNone, nil
	}
	for _, candidate := range preferencePriority {
		if string(candidate) == trimmed {
			return candidate, nil
		}
	}
	return PreferenceNone, fmt.Errorf("%w: %q", ErrInvalidPreferenceType, raw)
}

// String returns the wire label.
func (t PreferenceType) String() string {
	return string(t)
}

// IsNone reports whether no preference is active.
func (t PreferenceType) IsNone() bool {
	return t == PreferenceNone
}

// Label returns a short human readable label used by grid renderers.
func (t PreferenceType) Label() string {
	switch t {
	case PreferenceMustSchedule:
		return "must"
	case PreferenceMustNotSchedule:
		return "must not"
	case PreferencePrefersToSchedule:
		return "prefers"
	case PreferencePrefersNotToSchedule:
		return "prefers not"
	default:
		return ""
	}
}

// PeriodID is the authoritative numeric period identifier.
type PeriodID int64

// NewPeriodID validates the value and returns a PeriodID.
func NewPeriodID(value int64) (PeriodID, error) {
	if value <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidPeriodID, value)
	}
	return PeriodID(value), nil
}

// Int64 exposes the raw identifier.
func (id PeriodID) Int64() int64 {
	return int64(id)
}

// DayOfWeek numbers days 1-7 for week one and 8-14 for the second week of biweekly plans.
type DayOfWeek int

// NewDayOfWeek validates the value and returns a DayOfWeek.
func NewDayOfWeek(value int) (DayOfWeek, error) {
	if value < minDayOfWeek || value > maxDayOfWeek {
		return 0, fmt.Errorf("%w: %d", ErrInvalidDayOfWeek, value)
	}
	return DayOfWeek(value), nil
}

// Int exposes the raw day number.
func (d DayOfWeek) Int() int {
	return int(d)
}

// Week returns 1 or 2.
func (d DayOfWeek) Week() int {
	return (int(d)-1)/daysPerWeek + 1
}

// Weekday maps the day onto time.Weekday with day 1 being Monday.
func (d DayOfWeek) Weekday() time.Weekday {
	return time.Weekday(((int(d)-1)%daysPerWeek + 1) % daysPerWeek)
}

// CellIndex is the canonical "{periodId}-{dayOfWeek}" key of a grid cell.
type CellIndex string

// NewCellIndex builds the key for a resolved period and day.
func NewCellIndex(periodID PeriodID, day DayOfWeek) CellIndex {
	return CellIndex(strconv.FormatInt(periodID.Int64(), 10) + "-" + strconv.Itoa(day.Int()))
}

// ParseCellIndex splits a key back into its period and day.
func ParseCellIndex(raw string) (PeriodID, DayOfWeek, error) {
	periodPart, dayPart, found := strings.Cut(strings.TrimSpace(raw), "-")
	if !found {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidCellIndex, raw)
	}
	periodValue, err := strconv.ParseInt(periodPart, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidCellIndex, raw)
	}
	periodID, err := NewPeriodID(periodValue)
	if err != nil {
		return 0, 0, err
	}
	dayValue, err := strconv.Atoi(dayPart)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidCellIndex, raw)
	}
	day, err := NewDayOfWeek(dayValue)
	if err != nil {
		return 0, 0, err
	}
	return periodID, day, nil
}

// String returns the key.
func (c CellIndex) String() string {
	return string(c)
}

// PreferenceFlags holds the four mutually exclusive boolean flags of a stored record.
type PreferenceFlags struct {
	MustSchedule         bool
	MustNotSchedule      bool
	PrefersToSchedule    bool
	PrefersNotToSchedule bool
}

// FlagsFor returns flags with exactly the given type set.
func FlagsFor(t PreferenceType) PreferenceFlags {
	return PreferenceFlags{
		MustSchedule:         t == PreferenceMustSchedule,
		MustNotSchedule:      t == PreferenceMustNotSchedule,
		PrefersToSchedule:    t == PreferencePrefersToSchedule,
		PrefersNotToSchedule: t == PreferencePrefersNotToSchedule,
	}
}

// Type returns the highest priority flag that is set, or PreferenceNone.
func (f PreferenceFlags) Type() PreferenceType {
	values := [4]bool{f.MustSchedule, f.MustNotSchedule, f.PrefersToSchedule, f.PrefersNotToSchedule}
	for index, set := range values {
		if set {
			return preferencePriority[index]
		}
	}
	return PreferenceNone
}

// Count returns how many flags are set.
func (f PreferenceFlags) Count() int {
	count := 0
	for _, set := range [4]bool{f.MustSchedule, f.MustNotSchedule, f.PrefersToSchedule, f.PrefersNotToSchedule} {
		if set {
			count++
		}
	}
	return count
}

// SchedulePreference is a read-only snapshot of a committed server record.
type SchedulePreference struct {
	UUID         string
	PeriodID     PeriodID
	DayOfWeek    DayOfWeek
	Flags        PreferenceFlags
	CreatedBy    string
	CreatedDate  time.Time
	ModifiedBy   string
	ModifiedDate time.Time
}

// Type returns the normalized preference type of the record.
func (p SchedulePreference) Type() PreferenceType {
	return p.Flags.Type()
}

// CellIndex returns the key of the cell the record occupies.
func (p SchedulePreference) CellIndex() CellIndex {
	return NewCellIndex(p.PeriodID, p.DayOfWeek)
}

// CellInfo identifies one rendered grid cell and the record currently known for it.
type CellInfo struct {
	PeriodID          PeriodID
	PeriodUUID        string
	DayOfWeek         DayOfWeek
	CurrentPreference *SchedulePreference
}

// CellIndex returns the key of the cell.
func (c CellInfo) CellIndex() CellIndex {
	return NewCellIndex(c.PeriodID, c.DayOfWeek)
}

// PendingChange is an uncommitted intention against a single cell.
type PendingChange struct {
	OperationType     OperationType
	PeriodID          PeriodID
	DayOfWeek         DayOfWeek
	CellIndex         CellIndex
	PreferenceUUID    string
	NewPreferenceType PreferenceType
}

func newCreateChange(periodID PeriodID, day DayOfWeek, t PreferenceType) PendingChange {
	return PendingChange{
		OperationType:     OperationCreate,
		PeriodID:          periodID,
		DayOfWeek:         day,
		CellIndex:         NewCellIndex(periodID, day),
		NewPreferenceType: t,
	}
}

func newUpdateChange(existing SchedulePreference, t PreferenceType) PendingChange {
	return PendingChange{
		OperationType:     OperationUpdate,
		PeriodID:          existing.PeriodID,
		DayOfWeek:         existing.DayOfWeek,
		CellIndex:         existing.CellIndex(),
		PreferenceUUID:    existing.UUID,
		NewPreferenceType: t,
	}
}

func newDeleteChange(existing SchedulePreference) PendingChange {
	return PendingChange{
		OperationType:  OperationDelete,
		PeriodID:       existing.PeriodID,
		DayOfWeek:      existing.DayOfWeek,
		CellIndex:      existing.CellIndex(),
		PreferenceUUID: existing.UUID,
	}
}
