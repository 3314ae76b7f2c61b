package preferences

import (
	"sort"
	"strconv"
	"strings"
)

// Period is one row of the preference grid as loaded from the plan settings.
type Period struct {
	ID       PeriodID
	UUID     string
	Name     string
	Position int
}

// PeriodRef is the possibly ambiguous period reference carried by a rendered cell.
type PeriodRef struct {
	ID   int64
	UUID string
}

// ParsePeriodRef reads a numeric id or a uuid from user input.
func ParsePeriodRef(raw string) PeriodRef {
	trimmed := strings.TrimSpace(raw)
	if value, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return PeriodRef{ID: value}
	}
	return PeriodRef{UUID: trimmed}
}

// PeriodCatalog resolves period references against the loaded period list.
type PeriodCatalog struct {
	ordered []Period
	byUUID  map[string]Period
}

// NewPeriodCatalog indexes periods by uuid and orders them by position, then id.
func NewPeriodCatalog(periods []Period) *PeriodCatalog {
	ordered := append([]Period(nil), periods...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Position != ordered[j].Position {
			return ordered[i].Position < ordered[j].Position
		}
		return ordered[i].ID < ordered[j].ID
	})
	byUUID := make(map[string]Period, len(ordered))
	for _, period := range ordered {
		if period.UUID != "" {
			byUUID[strings.ToLower(period.UUID)] = period
		}
	}
	return &PeriodCatalog{ordered: ordered, byUUID: byUUID}
}

// Periods returns the periods in grid order.
func (c *PeriodCatalog) Periods() []Period {
	if c == nil {
		return nil
	}
	return append([]Period(nil), c.ordered...)
}

// Resolve maps a cell reference to its numeric period id and cell index. A numeric id
// wins when present; otherwise the uuid is looked up. Unresolvable references fail with
// a ResolutionError so no change is ever keyed on an invalid id.
func (c *PeriodCatalog) Resolve(ref PeriodRef, day DayOfWeek) (PeriodID, CellIndex, error) {
	if ref.ID != 0 {
		periodID, err := NewPeriodID(ref.ID)
		if err != nil {
			return 0, "", &ResolutionError{PeriodID: ref.ID, PeriodUUID: ref.UUID, Reason: "invalid numeric id"}
		}
		return periodID, NewCellIndex(periodID, day), nil
	}

	key := strings.ToLower(strings.TrimSpace(ref.UUID))
	if key == "" {
		return 0, "", &ResolutionError{Reason: "empty period reference"}
	}
	if c == nil {
		return 0, "", &ResolutionError{PeriodUUID: ref.UUID, Reason: "no periods loaded"}
	}
	period, ok := c.byUUID[key]
	if !ok {
		return 0, "", &ResolutionError{PeriodUUID: ref.UUID, Reason: "unknown period"}
	}
	if _, err := NewPeriodID(period.ID.Int64()); err != nil {
		return 0, "", &ResolutionError{PeriodUUID: ref.UUID, Reason: "period has no numeric id"}
	}
	return period.ID, NewCellIndex(period.ID, day), nil
}
