package records

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/plangrid/internal/preferences"
)

var (
	// ErrNotFound indicates a preference or period that does not exist.
	ErrNotFound = errors.New("records: not found")
	// ErrPreferenceExists indicates a second record for an occupied cell.
	ErrPreferenceExists = errors.New("records: preference already exists for cell")
	// ErrInvalidPreference indicates a request that fails validation.
	ErrInvalidPreference = errors.New("records: invalid preference")

	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// ServiceError carries an operation.reason code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew        = "records.service.new"
	opCreatePreference  = "records.create_preference"
	opUpdatePreference  = "records.update_preference"
	opDeletePreference  = "records.delete_preference"
	opListPreferences   = "records.list_preferences"
	opListPeriods       = "records.list_periods"
	opSeedPeriods       = "records.seed_periods"
	defaultPlanSettings = "default"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// IDProvider issues record identifiers.
type IDProvider interface {
	NewID() (string, error)
}

type uuidProvider struct{}

// NewUUIDProvider constructs an IDProvider that issues UUIDv7 identifiers.
func NewUUIDProvider() IDProvider {
	return &uuidProvider{}
}

func (p *uuidProvider) NewID() (string, error) {
	value, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return value.String(), nil
}

// ServiceConfig wires the preference record service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service persists periods and schedule preferences.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService validates the configuration and returns a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// CreatePreference inserts a record for an empty cell.
func (s *Service) CreatePreference(ctx context.Context, input PreferenceInput) (Preference, error) {
	if err := validateInput(input); err != nil {
		return Preference{}, newServiceError(opCreatePreference, "invalid_input", err)
	}

	var created Preference
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.requirePeriod(tx, opCreatePreference, input.PeriodID); err != nil {
			return err
		}
		occupied, err := s.findCell(tx, input, "")
		if err != nil {
			s.logError(opCreatePreference, "cell_select_failed", err, zap.String("entity_uuid", input.EntityUUID))
			return newServiceError(opCreatePreference, "cell_select_failed", err)
		}
		if occupied != nil {
			return newServiceError(opCreatePreference, "duplicate_cell",
				fmt.Errorf("%w: %s", ErrPreferenceExists, preferences.NewCellIndex(input.PeriodID, input.DayOfWeek)))
		}

		preferenceUUID, err := s.idProvider.NewID()
		if err != nil {
			s.logError(opCreatePreference, "id_generation_failed", err)
			return newServiceError(opCreatePreference, "id_generation_failed", err)
		}
		now := s.clock().UTC().Unix()
		created = Preference{
			UUID:              preferenceUUID,
			EntityKind:        input.EntityKind,
			EntityUUID:        input.EntityUUID,
			PeriodID:          input.PeriodID.Int64(),
			DayOfWeek:         input.DayOfWeek.Int(),
			CreatedBy:         input.Actor,
			CreatedAtSeconds:  now,
			ModifiedBy:        input.Actor,
			ModifiedAtSeconds: now,
		}
		created.setFlags(input.Flags)
		if err := tx.Create(&created).Error; err != nil {
			s.logError(opCreatePreference, "insert_failed", err, zap.String("entity_uuid", input.EntityUUID))
			return newServiceError(opCreatePreference, "insert_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return Preference{}, txErr
	}
	return created, nil
}

// UpdatePreference rewrites the flags and cell of an existing record of the given entity kind.
func (s *Service) UpdatePreference(ctx context.Context, entityKind string, preferenceUUID string, input PreferenceInput) (Preference, error) {
	input.EntityKind = entityKind
	if err := validateFlags(input.Flags); err != nil {
		return Preference{}, newServiceError(opUpdatePreference, "invalid_input", err)
	}
	if _, err := preferences.NewPeriodID(input.PeriodID.Int64()); err != nil {
		return Preference{}, newServiceError(opUpdatePreference, "invalid_input", fmt.Errorf("%w: %v", ErrInvalidPreference, err))
	}
	if _, err := preferences.NewDayOfWeek(input.DayOfWeek.Int()); err != nil {
		return Preference{}, newServiceError(opUpdatePreference, "invalid_input", fmt.Errorf("%w: %v", ErrInvalidPreference, err))
	}

	var updated Preference
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.takePreference(tx, opUpdatePreference, entityKind, preferenceUUID)
		if err != nil {
			return err
		}
		if err := s.requirePeriod(tx, opUpdatePreference, input.PeriodID); err != nil {
			return err
		}
		input.EntityUUID = existing.EntityUUID
		occupied, err := s.findCell(tx, input, existing.UUID)
		if err != nil {
			s.logError(opUpdatePreference, "cell_select_failed", err, zap.String("preference_uuid", preferenceUUID))
			return newServiceError(opUpdatePreference, "cell_select_failed", err)
		}
		if occupied != nil {
			return newServiceError(opUpdatePreference, "duplicate_cell",
				fmt.Errorf("%w: %s", ErrPreferenceExists, preferences.NewCellIndex(input.PeriodID, input.DayOfWeek)))
		}

		existing.PeriodID = input.PeriodID.Int64()
		existing.DayOfWeek = input.DayOfWeek.Int()
		existing.setFlags(input.Flags)
		existing.ModifiedBy = input.Actor
		existing.ModifiedAtSeconds = s.clock().UTC().Unix()
		if err := tx.Save(&existing).Error; err != nil {
			s.logError(opUpdatePreference, "save_failed", err, zap.String("preference_uuid", preferenceUUID))
			return newServiceError(opUpdatePreference, "save_failed", err)
		}
		updated = existing
		return nil
	})
	if txErr != nil {
		return Preference{}, txErr
	}
	return updated, nil
}

// DeletePreference removes a record and returns what was removed.
func (s *Service) DeletePreference(ctx context.Context, entityKind string, preferenceUUID string) (Preference, error) {
	var deleted Preference
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.takePreference(tx, opDeletePreference, entityKind, preferenceUUID)
		if err != nil {
			return err
		}
		if err := tx.Delete(&Preference{}, "uuid = ?", existing.UUID).Error; err != nil {
			s.logError(opDeletePreference, "delete_failed", err, zap.String("preference_uuid", preferenceUUID))
			return newServiceError(opDeletePreference, "delete_failed", err)
		}
		deleted = existing
		return nil
	})
	if txErr != nil {
		return Preference{}, txErr
	}
	return deleted, nil
}

// ListPreferences returns an entity's records ordered by cell.
func (s *Service) ListPreferences(ctx context.Context, entityKind string, entityUUID string) ([]Preference, error) {
	if strings.TrimSpace(entityUUID) == "" {
		return nil, newServiceError(opListPreferences, "missing_entity_uuid", preferences.ErrInvalidEntityUUID)
	}
	var rows []Preference
	if err := s.db.WithContext(ctx).
		Where("entity_kind = ? AND entity_uuid = ?", entityKind, entityUUID).
		Order("period_id ASC, day_of_week ASC").
		Find(&rows).Error; err != nil {
		s.logError(opListPreferences, "query_failed", err, zap.String("entity_uuid", entityUUID))
		return nil, newServiceError(opListPreferences, "query_failed", err)
	}
	return rows, nil
}

// ListPeriods returns the periods of a plan ordered by position.
func (s *Service) ListPeriods(ctx context.Context, planSettingsUUID string) ([]Period, error) {
	var rows []Period
	if err := s.db.WithContext(ctx).
		Where("plan_settings_uuid = ?", planSettingsKey(planSettingsUUID)).
		Order("position ASC, id ASC").
		Find(&rows).Error; err != nil {
		s.logError(opListPeriods, "query_failed", err, zap.String("plan_settings_uuid", planSettingsUUID))
		return nil, newServiceError(opListPeriods, "query_failed", err)
	}
	return rows, nil
}

// SeedPeriods creates the named periods for a plan that has none yet. Existing plans are returned unchanged.
func (s *Service) SeedPeriods(ctx context.Context, planSettingsUUID string, names []string) ([]Period, error) {
	plan := planSettingsKey(planSettingsUUID)
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Period{}).Where("plan_settings_uuid = ?", plan).Count(&count).Error; err != nil {
			s.logError(opSeedPeriods, "count_failed", err, zap.String("plan_settings_uuid", plan))
			return newServiceError(opSeedPeriods, "count_failed", err)
		}
		if count > 0 {
			return nil
		}
		for index, name := range names {
			periodUUID, err := s.idProvider.NewID()
			if err != nil {
				s.logError(opSeedPeriods, "id_generation_failed", err)
				return newServiceError(opSeedPeriods, "id_generation_failed", err)
			}
			row := Period{
				UUID:             periodUUID,
				PlanSettingsUUID: plan,
				Name:             strings.TrimSpace(name),
				Position:         index + 1,
			}
			if err := tx.Create(&row).Error; err != nil {
				s.logError(opSeedPeriods, "insert_failed", err, zap.String("plan_settings_uuid", plan))
				return newServiceError(opSeedPeriods, "insert_failed", err)
			}
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	return s.ListPeriods(ctx, plan)
}

func (s *Service) requirePeriod(tx *gorm.DB, operation string, periodID preferences.PeriodID) error {
	var count int64
	if err := tx.Model(&Period{}).Where("id = ?", periodID.Int64()).Count(&count).Error; err != nil {
		s.logError(operation, "period_select_failed", err)
		return newServiceError(operation, "period_select_failed", err)
	}
	if count == 0 {
		return newServiceError(operation, "unknown_period", fmt.Errorf("%w: period %d does not exist", ErrInvalidPreference, periodID))
	}
	return nil
}

func (s *Service) takePreference(tx *gorm.DB, operation string, entityKind string, preferenceUUID string) (Preference, error) {
	var existing Preference
	err := tx.Where("uuid = ? AND entity_kind = ?", strings.TrimSpace(preferenceUUID), entityKind).Take(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Preference{}, newServiceError(operation, "not_found", fmt.Errorf("%w: preference %s", ErrNotFound, preferenceUUID))
	}
	if err != nil {
		s.logError(operation, "preference_select_failed", err, zap.String("preference_uuid", preferenceUUID))
		return Preference{}, newServiceError(operation, "preference_select_failed", err)
	}
	return existing, nil
}

func (s *Service) findCell(tx *gorm.DB, input PreferenceInput, excludeUUID string) (*Preference, error) {
	var occupied Preference
	query := tx.Where("entity_kind = ? AND entity_uuid = ? AND period_id = ? AND day_of_week = ?",
		input.EntityKind, input.EntityUUID, input.PeriodID.Int64(), input.DayOfWeek.Int())
	if excludeUUID != "" {
		query = query.Where("uuid <> ?", excludeUUID)
	}
	err := query.Take(&occupied).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &occupied, nil
}

func validateInput(input PreferenceInput) error {
	if _, err := preferences.AdapterForKind(input.EntityKind); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPreference, err)
	}
	if strings.TrimSpace(input.EntityUUID) == "" {
		return fmt.Errorf("%w: entity uuid is required", ErrInvalidPreference)
	}
	if _, err := preferences.NewPeriodID(input.PeriodID.Int64()); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPreference, err)
	}
	if _, err := preferences.NewDayOfWeek(input.DayOfWeek.Int()); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPreference, err)
	}
	return validateFlags(input.Flags)
}

func validateFlags(flags preferences.PreferenceFlags) error {
	if flags.Count() != 1 {
		return fmt.Errorf("%w: exactly one preference flag must be set, got %d", ErrInvalidPreference, flags.Count())
	}
	return nil
}

func planSettingsKey(planSettingsUUID string) string {
	trimmed := strings.TrimSpace(planSettingsUUID)
	if trimmed == "" {
		return defaultPlanSettings
	}
	return trimmed
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("records service error", attrs...)
}
