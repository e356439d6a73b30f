package httpapi

import (
	"bytes"
	"fmt"

	"frostbase-alarm/internal/models"

	"github.com/xuri/excelize/v2"
)

// AlarmHistoryExportHeader 报警历史导出表头
var AlarmHistoryExportHeader = []string{
	"Event ID",
	"Truck ID",
	"Metric",
	"Value",
	"Min",
	"Max",
	"Unit",
	"Message",
	"Triggered At",
}

var alarmHistoryColumnWidths = []float64{38, 28, 14, 10, 10, 10, 8, 60, 22}

const alarmHistorySheet = "Alarm History"

// GenerateAlarmHistoryExport 生成报警历史 Excel（events 为空时只有表头）
func GenerateAlarmHistoryExport(events []*models.AlarmEvent) ([]byte, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(alarmHistorySheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range AlarmHistoryExportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(alarmHistorySheet, cell, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(alarmHistorySheet, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}

		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(alarmHistorySheet, name, name, alarmHistoryColumnWidths[col]); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for i, e := range events {
		row := []any{
			e.EventID,
			e.TruckID,
			e.Metric.Title(),
			e.Value,
			e.MinValue,
			e.MaxValue,
			e.Metric.Unit(),
			e.Message,
			e.TriggeredAt.Format("2006-01-02 15:04:05"),
		}
		// 从第2行开始（第1行是表头）
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetSheetRow(alarmHistorySheet, cell, &row); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	// 冻结表头
	if err := f.SetPanes(alarmHistorySheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}

	return buf.Bytes(), nil
}
