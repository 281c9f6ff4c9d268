package http

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/wcharczuk/go-chart/v2"

	"tally/internal/auth"
	"tally/internal/core"
)

var errNoExpenseData = errors.New("no expense data to chart")

func (s *Server) cachedSummary(r *http.Request, id auth.Identity) ([]core.CategoryAmount, error) {
	if summary, ok := s.summaryCache.Get(id.UserID); ok {
		return summary, nil
	}
	summary, err := s.ledger.Summary(r.Context(), id)
	if err != nil {
		return nil, err
	}
	s.summaryCache.Set(id.UserID, summary)
	return summary, nil
}

// handleSummaryChart renders the per-category expense split as a PNG pie.
func (s *Server) handleSummaryChart(w http.ResponseWriter, r *http.Request) {
	id, err := identityFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	summary, err := s.cachedSummary(r, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if len(summary) == 0 {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: errNoExpenseData.Error()})
		return
	}

	png, err := renderSummaryPie(summary)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func renderSummaryPie(summary []core.CategoryAmount) ([]byte, error) {
	values := make([]chart.Value, 0, len(summary))
	for _, c := range summary {
		if c.Amount.Cents <= 0 {
			continue
		}
		values = append(values, chart.Value{
			Label: c.Name + " " + c.Amount.String(),
			Value: float64(c.Amount.Cents) / 100.0,
		})
	}
	if len(values) == 0 {
		return nil, errNoExpenseData
	}

	pie := chart.PieChart{
		Title:  "Expenses by category",
		Width:  600,
		Height: 600,
		Values: values,
	}

	var buf bytes.Buffer
	if err := pie.Render(chart.PNG, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
