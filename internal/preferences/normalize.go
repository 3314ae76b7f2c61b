package preferences

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrMalformedRecord indicates a preference record that cannot be normalized.
var ErrMalformedRecord = errors.New("preferences: malformed preference record")

var auditTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

type wireRecord struct {
	UUID            string  `json:"uuid"`
	PeriodID        int64   `json:"periodId"`
	DayOfWeek       int     `json:"dayOfWeek"`
	PreferenceType  *string `json:"preferenceType"`
	PreferenceValue *bool   `json:"preferenceValue"`
	CreatedBy       string  `json:"createdBy"`
	CreatedDate     string  `json:"createdDate"`
	ModifiedBy      string  `json:"modifiedBy"`
	ModifiedDate    string  `json:"modifiedDate"`
}

type wireEntity struct {
	SchedulePreferences []json.RawMessage `json:"schedulePreferences"`
}

// CellPayload is the cell and preference carried by a record or a mutation body.
type CellPayload struct {
	PeriodID  PeriodID
	DayOfWeek DayOfWeek
	Flags     PreferenceFlags
}

// DecodeCellPayload reads periodId, dayOfWeek and the preference of a body. Bodies carry
// either the adapter's four flags or a preferenceType label; both shapes collapse into
// PreferenceFlags here so nothing downstream inspects raw field presence.
func DecodeCellPayload(adapter EntityAdapter, raw json.RawMessage) (CellPayload, error) {
	var record wireRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return CellPayload{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return CellPayload{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return decodeCell(adapter, record, fields)
}

// DecodePreference normalizes one record.
func DecodePreference(adapter EntityAdapter, raw json.RawMessage) (SchedulePreference, error) {
	var record wireRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return SchedulePreference{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return SchedulePreference{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}

	if strings.TrimSpace(record.UUID) == "" {
		return SchedulePreference{}, fmt.Errorf("%w: missing uuid", ErrMalformedRecord)
	}
	cell, err := decodeCell(adapter, record, fields)
	if err != nil {
		return SchedulePreference{}, err
	}

	return SchedulePreference{
		UUID:         strings.TrimSpace(record.UUID),
		PeriodID:     cell.PeriodID,
		DayOfWeek:    cell.DayOfWeek,
		Flags:        cell.Flags,
		CreatedBy:    record.CreatedBy,
		CreatedDate:  parseAuditTime(record.CreatedDate),
		ModifiedBy:   record.ModifiedBy,
		ModifiedDate: parseAuditTime(record.ModifiedDate),
	}, nil
}

func decodeCell(adapter EntityAdapter, record wireRecord, fields map[string]json.RawMessage) (CellPayload, error) {
	periodID, err := NewPeriodID(record.PeriodID)
	if err != nil {
		return CellPayload{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	day, err := NewDayOfWeek(record.DayOfWeek)
	if err != nil {
		return CellPayload{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}

	flags, hasFlags, err := decodeFlags(adapter.Flags, fields)
	if err != nil {
		return CellPayload{}, err
	}
	if !hasFlags && record.PreferenceType != nil {
		preferenceType, err := ParsePreferenceType(*record.PreferenceType)
		if err != nil {
			return CellPayload{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
		}
		if record.PreferenceValue == nil || *record.PreferenceValue {
			flags = FlagsFor(preferenceType)
		}
	}
	return CellPayload{PeriodID: periodID, DayOfWeek: day, Flags: flags}, nil
}

// DecodeEntityPreferences decodes the body of GET /{resource}/{uuid}/preferences: an entity
// object embedding schedulePreferences, or a bare array of records.
func DecodeEntityPreferences(adapter EntityAdapter, body []byte) ([]SchedulePreference, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMalformedRecord)
	}

	var rawRecords []json.RawMessage
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &rawRecords); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
		}
	} else {
		var entity wireEntity
		if err := json.Unmarshal(trimmed, &entity); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
		}
		rawRecords = entity.SchedulePreferences
	}

	preferences := make([]SchedulePreference, 0, len(rawRecords))
	for _, raw := range rawRecords {
		preference, err := DecodePreference(adapter, raw)
		if err != nil {
			return nil, err
		}
		preferences = append(preferences, preference)
	}
	return preferences, nil
}

func decodeFlags(names FlagNames, fields map[string]json.RawMessage) (PreferenceFlags, bool, error) {
	var values [4]bool
	present := false
	for index, name := range names.ordered() {
		raw, ok := fields[name]
		if !ok || string(raw) == "null" {
			continue
		}
		present = true
		if err := json.Unmarshal(raw, &values[index]); err != nil {
			return PreferenceFlags{}, false, fmt.Errorf("%w: flag %s: %v", ErrMalformedRecord, name, err)
		}
	}
	return PreferenceFlags{
		MustSchedule:         values[0],
		MustNotSchedule:      values[1],
		PrefersToSchedule:    values[2],
		PrefersNotToSchedule: values[3],
	}, present, nil
}

func parseAuditTime(raw string) time.Time {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}
	}
	for _, layout := range auditTimeLayouts {
		if parsed, err := time.Parse(layout, trimmed); err == nil {
			return parsed.UTC()
		}
	}
	return time.Time{}
}
