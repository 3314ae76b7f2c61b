package records

import (
	"time"

	"github.com/MarcoPoloResearchLab/plangrid/internal/preferences"
)

// Period is a persisted plan period.
type Period struct {
	ID               int64  `gorm:"column:id;primaryKey;autoIncrement"`
	UUID             string `gorm:"column:uuid;size:190;not null;uniqueIndex"`
	PlanSettingsUUID string `gorm:"column:plan_settings_uuid;size:190;not null;index:idx_periods_plan_position,priority:1"`
	Name             string `gorm:"column:name;size:190;not null;default:''"`
	Position         int    `gorm:"column:position;not null;default:0;index:idx_periods_plan_position,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Period) TableName() string {
	return "periods"
}

// ToDomain converts the row into a grid period.
func (p Period) ToDomain() preferences.Period {
	return preferences.Period{
		ID:       preferences.PeriodID(p.ID),
		UUID:     p.UUID,
		Name:     p.Name,
		Position: p.Position,
	}
}

// Preference is a persisted schedule preference. A cell holds at most one row.
type Preference struct {
	UUID                 string `gorm:"column:uuid;primaryKey;size:190;not null"`
	EntityKind           string `gorm:"column:entity_kind;size:32;not null;uniqueIndex:idx_preferences_cell,priority:1"`
	EntityUUID           string `gorm:"column:entity_uuid;size:190;not null;uniqueIndex:idx_preferences_cell,priority:2"`
	PeriodID             int64  `gorm:"column:period_id;not null;uniqueIndex:idx_preferences_cell,priority:3"`
	DayOfWeek            int    `gorm:"column:day_of_week;not null;uniqueIndex:idx_preferences_cell,priority:4"`
	MustSchedule         bool   `gorm:"column:must_schedule;not null;default:false"`
	MustNotSchedule      bool   `gorm:"column:must_not_schedule;not null;default:false"`
	PrefersToSchedule    bool   `gorm:"column:prefers_to_schedule;not null;default:false"`
	PrefersNotToSchedule bool   `gorm:"column:prefers_not_to_schedule;not null;default:false"`
	CreatedBy            string `gorm:"column:created_by;size:190;not null;default:''"`
	CreatedAtSeconds     int64  `gorm:"column:created_at_s;not null"`
	ModifiedBy           string `gorm:"column:modified_by;size:190;not null;default:''"`
	ModifiedAtSeconds    int64  `gorm:"column:modified_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Preference) TableName() string {
	return "schedule_preferences"
}

// Flags returns the stored flag set.
func (p Preference) Flags() preferences.PreferenceFlags {
	return preferences.PreferenceFlags{
		MustSchedule:         p.MustSchedule,
		MustNotSchedule:      p.MustNotSchedule,
		PrefersToSchedule:    p.PrefersToSchedule,
		PrefersNotToSchedule: p.PrefersNotToSchedule,
	}
}

func (p *Preference) setFlags(flags preferences.PreferenceFlags) {
	p.MustSchedule = flags.MustSchedule
	p.MustNotSchedule = flags.MustNotSchedule
	p.PrefersToSchedule = flags.PrefersToSchedule
	p.PrefersNotToSchedule = flags.PrefersNotToSchedule
}

// ToDomain converts the row into the snapshot shape used by calendars.
func (p Preference) ToDomain() preferences.SchedulePreference {
	return preferences.SchedulePreference{
		UUID:         p.UUID,
		PeriodID:     preferences.PeriodID(p.PeriodID),
		DayOfWeek:    preferences.DayOfWeek(p.DayOfWeek),
		Flags:        p.Flags(),
		CreatedBy:    p.CreatedBy,
		CreatedDate:  time.Unix(p.CreatedAtSeconds, 0).UTC(),
		ModifiedBy:   p.ModifiedBy,
		ModifiedDate: time.Unix(p.ModifiedAtSeconds, 0).UTC(),
	}
}

// PreferenceInput carries a validated create or update request.
type PreferenceInput struct {
	EntityKind string
	EntityUUID string
	PeriodID   preferences.PeriodID
	DayOfWeek  preferences.DayOfWeek
	Flags      preferences.PreferenceFlags
	Actor      string
}
