package export

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/xuri/excelize/v2"

	"github.com/MarcoPoloResearchLab/plangrid/internal/preferences"
)

const (
	daysPerWeek   = 7
	pendingMarker = "*"
	headerRow     = 2
	firstDataRow  = 3
)

var (
	// ErrInvalidGrid indicates a grid without periods or with an unsupported day count.
	ErrInvalidGrid = errors.New("export: invalid grid")

	weekdayNames = [daysPerWeek]string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}
)

// GridInput is a projected preference grid ready for rendering.
type GridInput struct {
	Title   string
	Periods []preferences.Period
	// Days is 7 for weekly plans and 14 for biweekly plans.
	Days  int
	Cells []preferences.CellView
}

func (g GridInput) validate() error {
	if len(g.Periods) == 0 {
		return fmt.Errorf("%w: no periods", ErrInvalidGrid)
	}
	if g.Days != daysPerWeek && g.Days != 2*daysPerWeek {
		return fmt.Errorf("%w: %d days", ErrInvalidGrid, g.Days)
	}
	return nil
}

func (g GridInput) weeks() int {
	return g.Days / daysPerWeek
}

func (g GridInput) cellTexts() map[preferences.CellIndex]string {
	texts := make(map[preferences.CellIndex]string, len(g.Cells))
	for _, view := range g.Cells {
		texts[view.Cell.CellIndex()] = CellText(view)
	}
	return texts
}

// CellText is the label of the effective preference, suffixed with * while a change is pending.
func CellText(view preferences.CellView) string {
	text := view.Effective.Label()
	if view.Pending != nil {
		text += pendingMarker
	}
	return text
}

// SheetName returns the worksheet name of a week.
func SheetName(week int) string {
	return fmt.Sprintf("Week %d", week)
}

// WriteGrid renders the grid as an xlsx workbook with one sheet per week.
func WriteGrid(w io.Writer, input GridInput) error {
	if err := input.validate(); err != nil {
		return err
	}

	workbook := excelize.NewFile()
	defer workbook.Close()

	headerStyle, err := workbook.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#D9E1F2"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return err
	}

	texts := input.cellTexts()
	for week := 1; week <= input.weeks(); week++ {
		sheet := SheetName(week)
		if week == 1 {
			if err := workbook.SetSheetName("Sheet1", sheet); err != nil {
				return err
			}
		} else if _, err := workbook.NewSheet(sheet); err != nil {
			return err
		}
		if err := writeWeek(workbook, sheet, week, input, texts, headerStyle); err != nil {
			return fmt.Errorf("export: %s: %w", sheet, err)
		}
	}
	workbook.SetActiveSheet(0)

	return workbook.Write(w)
}

func writeWeek(workbook *excelize.File, sheet string, week int, input GridInput, texts map[preferences.CellIndex]string, headerStyle int) error {
	if title := strings.TrimSpace(input.Title); title != "" {
		if err := workbook.SetCellValue(sheet, "A1", title); err != nil {
			return err
		}
	}

	if err := workbook.SetCellValue(sheet, cellName(1, headerRow), "Period"); err != nil {
		return err
	}
	for offset, name := range weekdayNames {
		if err := workbook.SetCellValue(sheet, cellName(offset+2, headerRow), name); err != nil {
			return err
		}
	}
	lastColumn, err := excelize.ColumnNumberToName(daysPerWeek + 1)
	if err != nil {
		return err
	}
	if err := workbook.SetCellStyle(sheet, cellName(1, headerRow), cellName(daysPerWeek+1, headerRow), headerStyle); err != nil {
		return err
	}
	if err := workbook.SetColWidth(sheet, "A", "A", 16); err != nil {
		return err
	}
	if err := workbook.SetColWidth(sheet, "B", lastColumn, 14); err != nil {
		return err
	}

	firstDay := (week-1)*daysPerWeek + 1
	for rowOffset, period := range input.Periods {
		row := firstDataRow + rowOffset
		if err := workbook.SetCellValue(sheet, cellName(1, row), period.Name); err != nil {
			return err
		}
		for dayOffset := 0; dayOffset < daysPerWeek; dayOffset++ {
			day := preferences.DayOfWeek(firstDay + dayOffset)
			text := texts[preferences.NewCellIndex(period.ID, day)]
			if text == "" {
				continue
			}
			if err := workbook.SetCellValue(sheet, cellName(dayOffset+2, row), text); err != nil {
				return err
			}
		}
	}
	return nil
}

// WriteText renders the grid as aligned plain text, one block per week.
func WriteText(w io.Writer, input GridInput) error {
	if err := input.validate(); err != nil {
		return err
	}
	texts := input.cellTexts()
	table := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if title := strings.TrimSpace(input.Title); title != "" {
		fmt.Fprintln(table, title)
	}
	for week := 1; week <= input.weeks(); week++ {
		if input.weeks() > 1 {
			fmt.Fprintln(table, SheetName(week))
		}
		fmt.Fprintln(table, "Period\t"+strings.Join(weekdayNames[:], "\t"))
		firstDay := (week-1)*daysPerWeek + 1
		for _, period := range input.Periods {
			columns := make([]string, 0, daysPerWeek+1)
			columns = append(columns, period.Name)
			for dayOffset := 0; dayOffset < daysPerWeek; dayOffset++ {
				text := texts[preferences.NewCellIndex(period.ID, preferences.DayOfWeek(firstDay+dayOffset))]
				if text == "" {
					text = "."
				}
				columns = append(columns, text)
			}
			fmt.Fprintln(table, strings.Join(columns, "\t"))
		}
	}
	return table.Flush()
}

func cellName(column int, row int) string {
	name, _ := excelize.CoordinatesToCellName(column, row)
	return name
}
