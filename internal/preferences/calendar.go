package preferences

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

const opCellClick = "preferences.cell_click"

// CalendarConfig describes one preference calendar session.
type CalendarConfig struct {
	Entity      Entity
	Store       Store
	Periods     []Period
	Biweekly    bool
	Logger      *zap.Logger
	Concurrency int
}

// CellView is the rendered state of one grid cell.
type CellView struct {
	Cell      CellInfo
	Effective PreferenceType
	Pending   *PendingChange
}

// Calendar owns the ledger and the last fetched server state for one entity. Input is
// rejected with ErrCommitInProgress while a save is running.
type Calendar struct {
	mu         sync.Mutex
	entity     Entity
	store      Store
	committer  *Committer
	catalog    *PeriodCatalog
	days       int
	logger     *zap.Logger
	ledger     *Ledger
	snapshot   map[CellIndex]SchedulePreference
	brush      PreferenceType
	committing atomic.Bool
}

// NewCalendar validates the configuration and returns an empty calendar session.
func NewCalendar(cfg CalendarConfig) (*Calendar, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	if cfg.Entity.UUID == "" {
		return nil, errMissingEntity
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	committer, err := NewCommitter(CommitterConfig{
		Store:       cfg.Store,
		Logger:      logger,
		Concurrency: cfg.Concurrency,
	})
	if err != nil {
		return nil, err
	}
	days := daysPerWeek
	if cfg.Biweekly {
		days = maxDayOfWeek
	}
	return &Calendar{
		entity:    cfg.Entity,
		store:     cfg.Store,
		committer: committer,
		catalog:   NewPeriodCatalog(cfg.Periods),
		days:      days,
		logger:    logger.With(zap.String("entity", cfg.Entity.Key())),
		ledger:    NewLedger(),
		snapshot:  make(map[CellIndex]SchedulePreference),
	}, nil
}

// Entity returns the calendar's subject entity.
func (c *Calendar) Entity() Entity {
	return c.entity
}

// Days returns 7 for weekly plans and 14 for biweekly plans.
func (c *Calendar) Days() int {
	return c.days
}

// Periods returns the grid rows.
func (c *Calendar) Periods() []Period {
	return c.catalog.Periods()
}

// Load replaces the server snapshot with a fresh read.
func (c *Calendar) Load(ctx context.Context) error {
	preferences, err := c.store.FetchPreferences(ctx, c.entity)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replaceSnapshot(preferences)
	return nil
}

// SetBrush selects the preference type painted by subsequent clicks.
func (c *Calendar) SetBrush(preferenceType PreferenceType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.brush = preferenceType
}

// Brush returns the active brush.
func (c *Calendar) Brush() PreferenceType {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.brush
}

// OnCellClick records the click as a pending change. Unresolvable periods return a
// ResolutionError and invalid clicks a ValidationError; neither touches the ledger.
func (c *Calendar) OnCellClick(ref PeriodRef, rawDay int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.committing.Load() {
		return ErrCommitInProgress
	}

	day, err := NewDayOfWeek(rawDay)
	if err != nil || day.Int() > c.days {
		return &ValidationError{Reason: "day outside the plan"}
	}

	periodID, cellIndex, err := c.catalog.Resolve(ref, day)
	if err != nil {
		c.logger.Warn("cell click discarded",
			zap.String("operation", opCellClick),
			zap.String("reason", "period_unresolved"),
			zap.Error(err))
		return err
	}

	brush := c.brush
	if brush.IsNone() {
		return &ValidationError{CellIndex: cellIndex, Reason: "no preference type selected"}
	}

	existing, hasExisting := c.snapshot[cellIndex]
	cell := CellInfo{PeriodID: periodID, PeriodUUID: ref.UUID, DayOfWeek: day}
	if hasExisting {
		cell.CurrentPreference = &existing
	}
	var pendingPtr *PendingChange
	if pending, ok := c.ledger.Get(cellIndex); ok {
		pendingPtr = &pending
	}

	if Project(cell, pendingPtr) == brush {
		if !c.entity.Adapter.ToggleOff {
			return nil
		}
		if hasExisting {
			c.ledger.Upsert(newDeleteChange(existing))
		} else {
			// A same-session create is cancelled rather than deleted server side.
			c.ledger.Remove(cellIndex)
		}
		return nil
	}

	if hasExisting {
		if existing.Type() == brush {
			c.ledger.Remove(cellIndex)
			return nil
		}
		c.ledger.Upsert(newUpdateChange(existing, brush))
		return nil
	}
	c.ledger.Upsert(newCreateChange(periodID, day, brush))
	return nil
}

// Project returns the effective preference of a cell.
func (c *Calendar) Project(cellIndex CellIndex) PreferenceType {
	c.mu.Lock()
	defer c.mu.Unlock()
	cell, pending := c.cellState(cellIndex)
	return Project(cell, pending)
}

// Cells returns every cell of the grid in period, then day order.
func (c *Calendar) Cells() []CellView {
	c.mu.Lock()
	defer c.mu.Unlock()
	periods := c.catalog.Periods()
	views := make([]CellView, 0, len(periods)*c.days)
	for _, period := range periods {
		for dayValue := 1; dayValue <= c.days; dayValue++ {
			cellIndex := NewCellIndex(period.ID, DayOfWeek(dayValue))
			cell, pending := c.cellState(cellIndex)
			cell.PeriodUUID = period.UUID
			views = append(views, CellView{
				Cell:      cell,
				Effective: Project(cell, pending),
				Pending:   pending,
			})
		}
	}
	return views
}

// Pending returns the pending change for a cell.
func (c *Calendar) Pending(cellIndex CellIndex) (PendingChange, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ledger.Get(cellIndex)
}

// PendingChanges returns all pending changes in ledger order.
func (c *Calendar) PendingChanges() []PendingChange {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ledger.All()
}

// PendingCount returns the number of uncommitted cell edits.
func (c *Calendar) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ledger.Len()
}

// IsCommitting reports whether a save is in flight.
func (c *Calendar) IsCommitting() bool {
	return c.committing.Load()
}

// Snapshot returns the last fetched server records.
func (c *Calendar) Snapshot() []SchedulePreference {
	c.mu.Lock()
	defer c.mu.Unlock()
	preferences := make([]SchedulePreference, 0, len(c.snapshot))
	for _, preference := range c.snapshot {
		preferences = append(preferences, preference)
	}
	sort.Slice(preferences, func(i, j int) bool {
		if preferences[i].PeriodID != preferences[j].PeriodID {
			return preferences[i].PeriodID < preferences[j].PeriodID
		}
		return preferences[i].DayOfWeek < preferences[j].DayOfWeek
	})
	return preferences
}

// OnSave commits the ledger. The ledger is always cleared afterwards; the snapshot is
// replaced only when the post-commit refetch succeeded.
func (c *Calendar) OnSave(ctx context.Context) (CommitReport, error) {
	if !c.committing.CompareAndSwap(false, true) {
		return CommitReport{}, ErrCommitInProgress
	}
	defer c.committing.Store(false)

	c.mu.Lock()
	working := NewLedger()
	for _, change := range c.ledger.All() {
		working.Upsert(change)
	}
	c.mu.Unlock()

	report := c.committer.Commit(ctx, c.entity, working)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.ledger.Clear()
	if report.RefetchErr == nil {
		c.replaceSnapshot(report.Snapshot)
	}
	return report, nil
}

// OnDiscard drops every pending change.
func (c *Calendar) OnDiscard() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.committing.Load() {
		return ErrCommitInProgress
	}
	c.ledger.Clear()
	return nil
}

func (c *Calendar) cellState(cellIndex CellIndex) (CellInfo, *PendingChange) {
	periodID, day, _ := ParseCellIndex(cellIndex.String())
	cell := CellInfo{PeriodID: periodID, DayOfWeek: day}
	if existing, ok := c.snapshot[cellIndex]; ok {
		cell.CurrentPreference = &existing
	}
	if pending, ok := c.ledger.Get(cellIndex); ok {
		return cell, &pending
	}
	return cell, nil
}

func (c *Calendar) replaceSnapshot(preferences []SchedulePreference) {
	snapshot := make(map[CellIndex]SchedulePreference, len(preferences))
	for _, preference := range preferences {
		snapshot[preference.CellIndex()] = preference
	}
	c.snapshot = snapshot
}
