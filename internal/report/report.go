// Package report exports a learner's roadmap progress as an XLSX workbook.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-tutor/internal/progress"
	"github.com/p-n-ai/pai-tutor/internal/roadmap"
)

const (
	SheetRoadmap  = "Roadmap"
	SheetAttempts = "Attempts"
)

// ContentType is the MIME type of the workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var (
	roadmapHeader  = []any{"Order", "Topic", "Level", "XP Reward", "Unlocked", "Completed", "Quiz Score"}
	attemptsHeader = []any{"Topic", "Attempt", "Score", "Questions", "Passed", "Taken At"}
)

// Build lays out the roadmap and attempt history in a new workbook.
// The caller must Close the returned file.
func Build(snap roadmap.Snapshot, attempts []progress.Attempt) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := build(f, snap, attempts); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func build(f *excelize.File, snap roadmap.Snapshot, attempts []progress.Attempt) error {
	if err := f.SetSheetName("Sheet1", SheetRoadmap); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}
	if _, err := f.NewSheet(SheetAttempts); err != nil {
		return fmt.Errorf("adding sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("creating style: %w", err)
	}

	titles := make(map[string]string, len(snap.Topics))
	rows := [][]any{roadmapHeader}
	for _, t := range snap.Topics {
		titles[t.ID] = t.Title
		rows = append(rows, []any{t.OrderIndex, t.Title, string(t.Level), t.XPReward, yesNo(t.Unlocked), yesNo(t.Completed), t.Score})
	}
	rows = append(rows,
		[]any{},
		[]any{"", "Total XP", "", snap.Summary.TotalXP},
		[]any{"", "Completed", "", fmt.Sprintf("%d / %d (%d%%)", snap.Summary.Completed, snap.Summary.Total, snap.Summary.Percent)},
	)
	if err := writeRows(f, SheetRoadmap, rows); err != nil {
		return err
	}

	rows = [][]any{attemptsHeader}
	for _, a := range attempts {
		title := titles[a.TopicID]
		if title == "" {
			title = a.TopicID
		}
		rows = append(rows, []any{title, a.AttemptNumber, a.Score, a.TotalQuestions, yesNo(a.Passed), a.CreatedAt.UTC().Format(time.DateTime)})
	}
	if err := writeRows(f, SheetAttempts, rows); err != nil {
		return err
	}

	for _, sheet := range []string{SheetRoadmap, SheetAttempts} {
		if err := f.SetRowStyle(sheet, 1, 1, bold); err != nil {
			return fmt.Errorf("styling %s: %w", sheet, err)
		}
		if err := f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
			return fmt.Errorf("freezing %s header: %w", sheet, err)
		}
	}
	if err := f.SetColWidth(SheetRoadmap, "B", "B", 32); err != nil {
		return fmt.Errorf("sizing columns: %w", err)
	}
	if err := f.SetColWidth(SheetAttempts, "A", "A", 32); err != nil {
		return fmt.Errorf("sizing columns: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("writing %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

// Write builds the workbook and streams it to w.
func Write(w io.Writer, snap roadmap.Snapshot, attempts []progress.Attempt) error {
	f, err := Build(snap, attempts)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
