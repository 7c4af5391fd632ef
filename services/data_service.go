package services

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"
)

var historyCSVHeader = []string{
	"id", "kind", "disease", "year", "month", "current_cases", "active_cases",
	"predicted_cases", "accuracy", "latency_ms", "created_at",
}

// WriteHistoryCSV exports prediction records for spreadsheets. Missing figures
// are written as empty cells.
func WriteHistoryCSV(w io.Writer, records []PredictionRecord) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(historyCSVHeader); err != nil {
		return err
	}

	for _, r := range records {
		row := []string{
			r.ID,
			r.Kind,
			r.Disease,
			strconv.Itoa(r.Year),
			strconv.Itoa(r.Month),
			strconv.Itoa(r.CurrentCases),
			strconv.Itoa(r.ActiveCases),
			formatFigure(r.PredictedCases),
			formatFigure(r.Accuracy),
			strconv.FormatInt(r.LatencyMs, 10),
			r.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func formatFigure(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
