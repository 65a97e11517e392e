package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

// ExcelExporter builds a multi-sheet workbook
type ExcelExporter struct {
	file        *excelize.File
	options     ExcelOptions
	headerStyle int
	dateStyle   int
	numberStyle int
	sheets      int
}

// ExcelOptions configures Excel export behavior
type ExcelOptions struct {
	FreezeHeader    bool   `json:"freeze_header"`
	AutoFilter      bool   `json:"auto_filter"`
	AutoWidth       bool   `json:"auto_width"`
	TimestampFormat string `json:"timestamp_format"`
	NumberFormat    string `json:"number_format"`
	HeaderFill      string `json:"header_fill"`
	HeaderFont      string `json:"header_font"`
}

// DefaultExcelOptions returns default Excel export options
func DefaultExcelOptions() ExcelOptions {
	return ExcelOptions{
		FreezeHeader:    true,
		AutoFilter:      true,
		AutoWidth:       true,
		TimestampFormat: "yyyy-mm-dd hh:mm:ss",
		NumberFormat:    "#,##0.00",
		HeaderFill:      "4472C4",
		HeaderFont:      "FFFFFF",
	}
}

// NewExcelExporter creates a new Excel exporter
func NewExcelExporter(options ExcelOptions) (*ExcelExporter, error) {
	file := excelize.NewFile()
	e := &ExcelExporter{file: file, options: options}

	var err error
	e.headerStyle, err = file.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: options.HeaderFont},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{options.HeaderFill}},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}
	e.dateStyle, err = file.NewStyle(&excelize.Style{CustomNumFmt: &options.TimestampFormat})
	if err != nil {
		return nil, fmt.Errorf("failed to create date style: %w", err)
	}
	e.numberStyle, err = file.NewStyle(&excelize.Style{CustomNumFmt: &options.NumberFormat})
	if err != nil {
		return nil, fmt.Errorf("failed to create number style: %w", err)
	}
	return e, nil
}

// AddSheet writes a sheet with a styled header row and the given rows.
func (e *ExcelExporter) AddSheet(name string, columns []string, rows [][]any) error {
	if e.sheets == 0 {
		if err := e.file.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("failed to rename sheet: %w", err)
		}
	} else if _, err := e.file.NewSheet(name); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	e.sheets++

	widths := make([]float64, len(columns))
	for i, col := range columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := e.file.SetCellValue(name, cell, col); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
		widths[i] = estimateWidth(col)
	}
	last, _ := excelize.CoordinatesToCellName(len(columns), 1)
	if err := e.file.SetCellStyle(name, "A1", last, e.headerStyle); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	for r, row := range rows {
		for c, val := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := e.setCellValue(name, cell, val); err != nil {
				return fmt.Errorf("failed to set cell value: %w", err)
			}
			if c < len(widths) {
				widths[c] = max(widths[c], estimateWidth(val))
			}
		}
	}

	if e.options.FreezeHeader {
		if err := e.file.SetPanes(name, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		}); err != nil {
			return fmt.Errorf("failed to freeze header: %w", err)
		}
	}
	if e.options.AutoFilter && len(rows) > 0 {
		if err := e.file.AutoFilter(name, "A1:"+last, nil); err != nil {
			return fmt.Errorf("failed to add filter: %w", err)
		}
	}
	if e.options.AutoWidth {
		for i, w := range widths {
			col, _ := excelize.ColumnNumberToName(i + 1)
			e.file.SetColWidth(name, col, col, min(max(w, 10), 50))
		}
	}
	return nil
}

// WriteTo writes the workbook to w
func (e *ExcelExporter) WriteTo(w io.Writer) error {
	return e.file.Write(w)
}

// Close releases the workbook
func (e *ExcelExporter) Close() error {
	return e.file.Close()
}

func (e *ExcelExporter) setCellValue(sheet, cell string, val any) error {
	switch v := val.(type) {
	case nil:
		return e.file.SetCellValue(sheet, cell, "")
	case time.Time:
		if v.IsZero() {
			return e.file.SetCellValue(sheet, cell, "")
		}
		if err := e.file.SetCellValue(sheet, cell, v); err != nil {
			return err
		}
		return e.file.SetCellStyle(sheet, cell, cell, e.dateStyle)
	case *float64:
		if v == nil {
			return e.file.SetCellValue(sheet, cell, "")
		}
		return e.setCellValue(sheet, cell, *v)
	case float64:
		if err := e.file.SetCellValue(sheet, cell, v); err != nil {
			return err
		}
		return e.file.SetCellStyle(sheet, cell, cell, e.numberStyle)
	default:
		return e.file.SetCellValue(sheet, cell, v)
	}
}

// estimateWidth approximates the display width of a value
func estimateWidth(val any) float64 {
	if val == nil {
		return 0
	}
	if t, ok := val.(time.Time); ok {
		if t.IsZero() {
			return 0
		}
		return 20
	}
	return float64(len(fmt.Sprintf("%v", val))) * 1.2
}
