package report_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-tutor/internal/curriculum"
	"github.com/p-n-ai/pai-tutor/internal/progress"
	"github.com/p-n-ai/pai-tutor/internal/report"
	"github.com/p-n-ai/pai-tutor/internal/roadmap"
)

func TestWrite(t *testing.T) {
	snap := roadmap.Snapshot{
		Topics: []roadmap.TopicView{
			{Topic: curriculum.Topic{ID: "t0", Title: "What is Multiplication?", Level: curriculum.LevelBeginner, OrderIndex: 0, XPReward: 50}, Unlocked: true, Completed: true, Score: 80},
			{Topic: curriculum.Topic{ID: "t1", Title: "Times Tables 2-5", Level: curriculum.LevelIntermediate, OrderIndex: 1, XPReward: 75}, Unlocked: true},
		},
		Summary: roadmap.Summary{TotalXP: 50, Completed: 1, Total: 2, Percent: 50},
	}
	taken := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	attempts := []progress.Attempt{
		{TopicID: "t0", AttemptNumber: 1, Score: 40, TotalQuestions: 5, CreatedAt: taken},
		{TopicID: "t0", AttemptNumber: 2, Score: 80, TotalQuestions: 5, Passed: true, CreatedAt: taken.Add(time.Hour)},
	}

	var buf bytes.Buffer
	if err := report.Write(&buf, snap, attempts); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	if got := f.GetSheetList(); len(got) != 2 || got[0] != report.SheetRoadmap || got[1] != report.SheetAttempts {
		t.Fatalf("sheets = %v", got)
	}

	rows, err := f.GetRows(report.SheetRoadmap)
	if err != nil {
		t.Fatalf("GetRows(Roadmap) error = %v", err)
	}
	if rows[0][1] != "Topic" || rows[1][1] != "What is Multiplication?" || rows[1][5] != "Yes" || rows[1][6] != "80" {
		t.Errorf("roadmap rows = %v", rows[:3])
	}
	if rows[2][5] != "No" {
		t.Errorf("t1 completed = %q, want No", rows[2][5])
	}
	if v, _ := f.GetCellValue(report.SheetRoadmap, "D5"); v != "50" {
		t.Errorf("total XP cell = %q, want 50", v)
	}

	rows, err = f.GetRows(report.SheetAttempts)
	if err != nil {
		t.Fatalf("GetRows(Attempts) error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("attempt rows = %d, want header + 2", len(rows))
	}
	if rows[1][0] != "What is Multiplication?" || rows[1][4] != "No" || rows[2][4] != "Yes" {
		t.Errorf("attempt rows = %v", rows)
	}
	if rows[2][5] != "2026-03-14 10:30:00" {
		t.Errorf("taken at = %q", rows[2][5])
	}
}

func TestWrite_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := report.Write(&buf, roadmap.Snapshot{}, nil); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if buf.Len() == 0 {
		t.Error("workbook is empty")
	}
}
