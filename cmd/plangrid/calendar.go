package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/plangrid/internal/apiclient"
	"github.com/MarcoPoloResearchLab/plangrid/internal/export"
	"github.com/MarcoPoloResearchLab/plangrid/internal/preferences"
)

type entityFlags struct {
	kind     string
	uuid     string
	biweekly bool
}

func (f *entityFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.kind, "entity", preferences.TeacherAdapter.Kind, "Entity kind (teacher, class)")
	cmd.Flags().StringVar(&f.uuid, "uuid", "", "Entity uuid")
	cmd.Flags().BoolVar(&f.biweekly, "biweekly", false, "Render a two week plan")
	_ = cmd.MarkFlagRequired("uuid")
}

// cellClick is one --cell value: a period reference and a day number.
type cellClick struct {
	ref preferences.PeriodRef
	day int
}

// parseCellClick reads "<periodId|periodUuid>-<day>". The day follows the last dash so
// uuid references keep their own dashes.
func parseCellClick(raw string) (cellClick, error) {
	trimmed := strings.TrimSpace(raw)
	separator := strings.LastIndex(trimmed, "-")
	if separator <= 0 || separator == len(trimmed)-1 {
		return cellClick{}, fmt.Errorf("cell %q must look like <period>-<day>", raw)
	}
	day, err := strconv.Atoi(trimmed[separator+1:])
	if err != nil {
		return cellClick{}, fmt.Errorf("cell %q has a non numeric day", raw)
	}
	return cellClick{ref: preferences.ParsePeriodRef(trimmed[:separator]), day: day}, nil
}

func openCalendar(ctx context.Context, flags entityFlags) (*preferences.Calendar, *zap.Logger, error) {
	appConfig, logger, err := loadRuntime()
	if err != nil {
		return nil, nil, err
	}
	if err := appConfig.ValidateClient(); err != nil {
		return nil, logger, err
	}

	adapter, err := preferences.AdapterForKind(flags.kind)
	if err != nil {
		return nil, logger, err
	}
	entity, err := preferences.NewEntity(adapter, flags.uuid)
	if err != nil {
		return nil, logger, err
	}

	client, err := apiclient.New(apiclient.Config{
		BaseURL: appConfig.APIBaseURL,
		Session: apiclient.Session{
			Token:            appConfig.APIToken,
			OrganizationUUID: appConfig.OrganizationUUID,
			PlanSettingsUUID: appConfig.PlanSettingsUUID,
		},
		Timeout: appConfig.APITimeout,
		Logger:  logger,
	})
	if err != nil {
		return nil, logger, err
	}
	periods, err := client.ListPeriods(ctx)
	if err != nil {
		return nil, logger, fmt.Errorf("list periods: %w", err)
	}

	calendar, err := preferences.NewCalendar(preferences.CalendarConfig{
		Entity:      entity,
		Store:       client,
		Periods:     periods,
		Biweekly:    flags.biweekly,
		Logger:      logger,
		Concurrency: appConfig.CommitConcurrency,
	})
	if err != nil {
		return nil, logger, err
	}
	if err := calendar.Load(ctx); err != nil {
		return nil, logger, fmt.Errorf("load preferences: %w", err)
	}
	return calendar, logger, nil
}

func gridInput(calendar *preferences.Calendar) export.GridInput {
	return export.GridInput{
		Title:   calendar.Entity().Key(),
		Periods: calendar.Periods(),
		Days:    calendar.Days(),
		Cells:   calendar.Cells(),
	}
}

func newGridCommand() *cobra.Command {
	var flags entityFlags
	cmd := &cobra.Command{
		Use:   "grid",
		Short: "Print the projected preference grid of an entity",
		RunE: func(cmd *cobra.Command, args []string) error {
			calendar, logger, err := openCalendar(cmd.Context(), flags)
			if logger != nil {
				defer logger.Sync() //nolint:errcheck
			}
			if err != nil {
				return err
			}
			return export.WriteText(cmd.OutOrStdout(), gridInput(calendar))
		},
	}
	flags.register(cmd)
	return cmd
}

func newPaintCommand() *cobra.Command {
	var (
		flags entityFlags
		brush string
		cells []string
	)
	cmd := &cobra.Command{
		Use:   "paint",
		Short: "Paint cells with a preference and save the changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			preferenceType, err := preferences.ParsePreferenceType(brush)
			if err != nil {
				return err
			}
			clicks := make([]cellClick, 0, len(cells))
			for _, raw := range cells {
				click, err := parseCellClick(raw)
				if err != nil {
					return err
				}
				clicks = append(clicks, click)
			}

			calendar, logger, err := openCalendar(cmd.Context(), flags)
			if logger != nil {
				defer logger.Sync() //nolint:errcheck
			}
			if err != nil {
				return err
			}
			return paint(cmd.Context(), cmd.OutOrStdout(), calendar, preferenceType, clicks)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&brush, "brush", "", "Preference type to paint (MUST_SCHEDULE, MUST_NOT_SCHEDULE, PREFERS_TO_SCHEDULE, PREFERS_NOT_TO_SCHEDULE)")
	cmd.Flags().StringArrayVar(&cells, "cell", nil, "Cell to click as <periodId|periodUuid>-<day>; repeatable")
	_ = cmd.MarkFlagRequired("brush")
	_ = cmd.MarkFlagRequired("cell")
	return cmd
}

// paint applies the clicks in order and commits. Rejected clicks are reported and skipped.
func paint(ctx context.Context, out io.Writer, calendar *preferences.Calendar, brush preferences.PreferenceType, clicks []cellClick) error {
	calendar.SetBrush(brush)
	for _, click := range clicks {
		if err := calendar.OnCellClick(click.ref, click.day); err != nil {
			fmt.Fprintf(out, "skipped %s-%d: %v\n", describeRef(click.ref), click.day, err)
		}
	}
	if calendar.PendingCount() == 0 {
		fmt.Fprintln(out, "nothing to save")
		return nil
	}

	report, err := calendar.OnSave(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, report.Summary())
	for _, failure := range report.Failures() {
		fmt.Fprintf(out, "failed %s %s: %s\n", failure.Change.OperationType, failure.Change.CellIndex, failure.ErrorDetail())
	}
	if report.RefetchErr != nil {
		fmt.Fprintf(out, "refetch failed: %v\n", report.RefetchErr)
	}
	return nil
}

func describeRef(ref preferences.PeriodRef) string {
	if ref.UUID != "" {
		return ref.UUID
	}
	return strconv.FormatInt(ref.ID, 10)
}

func newExportCommand() *cobra.Command {
	var (
		flags  entityFlags
		output string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the projected preference grid to an xlsx workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			calendar, logger, err := openCalendar(cmd.Context(), flags)
			if logger != nil {
				defer logger.Sync() //nolint:errcheck
			}
			if err != nil {
				return err
			}
			file, err := os.Create(output)
			if err != nil {
				return err
			}
			if err := export.WriteGrid(file, gridInput(calendar)); err != nil {
				_ = file.Close()
				return err
			}
			if err := file.Close(); err != nil {
				return err
			}
			logger.Info("grid exported", zap.String("path", output), zap.String("entity", calendar.Entity().Key()))
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&output, "out", "preferences.xlsx", "Output workbook path")
	return cmd
}
