package preferences

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	opCommit  = "preferences.commit"
	opRefetch = "preferences.refetch"
)

// Store is the remote preference resource the committer flushes changes to.
type Store interface {
	CreatePreference(ctx context.Context, entity Entity, periodID PeriodID, day DayOfWeek, preferenceType PreferenceType) (SchedulePreference, error)
	UpdatePreference(ctx context.Context, entity Entity, preferenceUUID string, periodID PeriodID, day DayOfWeek, preferenceType PreferenceType) error
	DeletePreference(ctx context.Context, entity Entity, preferenceUUID string) error
	FetchPreferences(ctx context.Context, entity Entity) ([]SchedulePreference, error)
}

// CommitEntry is the outcome of one pending change.
type CommitEntry struct {
	Change  PendingChange
	Success bool
	Err     error
	// Created holds the stored record returned by a successful create.
	Created *SchedulePreference
}

// ErrorDetail returns the failure message, or an empty string on success.
func (e CommitEntry) ErrorDetail() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// CommitReport summarizes a commit attempt.
type CommitReport struct {
	Entries []CommitEntry
	// Snapshot is the server state fetched after the commit; nil when RefetchErr is set.
	Snapshot   []SchedulePreference
	RefetchErr error
}

// Succeeded counts successful entries.
func (r CommitReport) Succeeded() int {
	count := 0
	for _, entry := range r.Entries {
		if entry.Success {
			count++
		}
	}
	return count
}

// Failed counts failed entries.
func (r CommitReport) Failed() int {
	return len(r.Entries) - r.Succeeded()
}

// Failures returns the failed entries in report order.
func (r CommitReport) Failures() []CommitEntry {
	var failures []CommitEntry
	for _, entry := range r.Entries {
		if !entry.Success {
			failures = append(failures, entry)
		}
	}
	return failures
}

// Summary renders the aggregate message shown after every commit.
func (r CommitReport) Summary() string {
	return strconv.Itoa(r.Succeeded()) + " succeeded, " + strconv.Itoa(r.Failed()) + " failed"
}

// CommitterConfig configures a Committer.
type CommitterConfig struct {
	Store  Store
	Logger *zap.Logger
	// Concurrency bounds in-flight calls within one partition. Values below 2 keep every
	// call sequential.
	Concurrency int
}

// Committer drains a ledger against the store: creates, then updates, then deletes.
type Committer struct {
	store       Store
	logger      *zap.Logger
	concurrency int
}

// NewCommitter validates the configuration and returns a Committer.
func NewCommitter(cfg CommitterConfig) (*Committer, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Committer{store: cfg.Store, logger: logger, concurrency: concurrency}, nil
}

// Commit flushes every pending change, clears the ledger and refetches the entity's
// preferences. Failures never abort the batch and never escape as errors: they are
// reported per entry, and a failed refetch is reported in RefetchErr.
func (c *Committer) Commit(ctx context.Context, entity Entity, ledger *Ledger) CommitReport {
	changes := ledger.All()
	creates, updates, deletes := partition(changes)

	report := CommitReport{Entries: make([]CommitEntry, 0, len(changes))}
	for _, batch := range [][]PendingChange{creates, updates, deletes} {
		report.Entries = append(report.Entries, c.runPartition(ctx, entity, batch)...)
	}

	ledger.Clear()

	snapshot, err := c.store.FetchPreferences(ctx, entity)
	if err != nil {
		report.RefetchErr = err
		c.logger.Error("preference refetch failed",
			zap.String("operation", opRefetch),
			zap.String("entity", entity.Key()),
			zap.Error(err))
	} else {
		report.Snapshot = snapshot
	}

	c.logger.Info("preference commit finished",
		zap.String("operation", opCommit),
		zap.String("entity", entity.Key()),
		zap.Int("succeeded", report.Succeeded()),
		zap.Int("failed", report.Failed()),
		zap.Bool("refetched", report.RefetchErr == nil))
	return report
}

func partition(changes []PendingChange) (creates, updates, deletes []PendingChange) {
	for _, change := range changes {
		switch change.OperationType {
		case OperationCreate:
			creates = append(creates, change)
		case OperationUpdate:
			updates = append(updates, change)
		case OperationDelete:
			deletes = append(deletes, change)
		default:
			// Unknown operations are reported as failures after the deletes.
			deletes = append(deletes, change)
		}
	}
	return creates, updates, deletes
}

func (c *Committer) runPartition(ctx context.Context, entity Entity, batch []PendingChange) []CommitEntry {
	entries := make([]CommitEntry, len(batch))
	if c.concurrency <= 1 || len(batch) <= 1 {
		for index, change := range batch {
			entries[index] = c.apply(ctx, entity, change)
		}
		return entries
	}

	var group errgroup.Group
	group.SetLimit(c.concurrency)
	for index, change := range batch {
		group.Go(func() error {
			entries[index] = c.apply(ctx, entity, change)
			return nil
		})
	}
	_ = group.Wait()
	return entries
}

func (c *Committer) apply(ctx context.Context, entity Entity, change PendingChange) CommitEntry {
	entry := CommitEntry{Change: change}
	var err error
	switch change.OperationType {
	case OperationCreate:
		if change.NewPreferenceType.IsNone() {
			err = &ValidationError{CellIndex: change.CellIndex, Reason: "create without preference type"}
			break
		}
		var created SchedulePreference
		created, err = c.store.CreatePreference(ctx, entity, change.PeriodID, change.DayOfWeek, change.NewPreferenceType)
		if err == nil {
			entry.Created = &created
		}
	case OperationUpdate:
		if change.PreferenceUUID == "" || change.NewPreferenceType.IsNone() {
			err = &ValidationError{CellIndex: change.CellIndex, Reason: "update requires preference uuid and type"}
			break
		}
		err = c.store.UpdatePreference(ctx, entity, change.PreferenceUUID, change.PeriodID, change.DayOfWeek, change.NewPreferenceType)
	case OperationDelete:
		if change.PreferenceUUID == "" {
			err = &ValidationError{CellIndex: change.CellIndex, Reason: "delete requires preference uuid"}
			break
		}
		err = c.store.DeletePreference(ctx, entity, change.PreferenceUUID)
	default:
		err = &ValidationError{CellIndex: change.CellIndex, Reason: fmt.Sprintf("unknown operation %q", change.OperationType)}
	}

	if err != nil {
		entry.Err = err
		c.logger.Warn("pending change failed",
			zap.String("operation", opCommit),
			zap.String("entity", entity.Key()),
			zap.String("cell_index", change.CellIndex.String()),
			zap.String("change", string(change.OperationType)),
			zap.Error(err))
		return entry
	}
	entry.Success = true
	return entry
}
