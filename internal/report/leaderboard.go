// Package report renders leaderboards as spreadsheets for teachers.
package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"learnpath-service/internal/domain"
)

const sheet = "Leaderboard"

var header = []interface{}{
	"Rank", "Student ID", "Name", "Total Score", "Average %",
	"Quizzes", "Lessons", "Activities",
}

// WriteLeaderboard writes the board as a single-sheet XLSX workbook.
func WriteLeaderboard(w io.Writer, board domain.Leaderboard) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", "H1", bold); err != nil {
		return err
	}

	for i, e := range board.Entries {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{
			e.Rank, e.StudentID, e.DisplayName, e.TotalScore,
			e.AveragePercentage, e.CompletedQuizzes, e.CompletedLessons, e.CompletedActivities,
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	if err := f.SetColWidth(sheet, "B", "C", 24); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
