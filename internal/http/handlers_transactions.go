package http

import (
	"net/http"

	"tally/internal/core"
)

type transactionRequest struct {
	Kind     string `json:"kind"`
	Category string `json:"category"`
	Date     string `json:"date"`
	Amount   string `json:"amount"`
	Note     string `json:"note"`
}

type transactionResponse struct {
	ID       int64  `json:"id"`
	Kind     string `json:"kind"`
	Category string `json:"category"`
	Date     string `json:"date"`
	Amount   string `json:"amount"`
	Note     string `json:"note,omitempty"`
}

func toTransactionResponse(t core.Transaction) transactionResponse {
	return transactionResponse{
		ID:       t.ID,
		Kind:     string(t.Kind),
		Category: t.Category,
		Date:     t.Date.Format("2006-01-02"),
		Amount:   t.Amount.String(),
		Note:     t.Note,
	}
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	id, err := identityFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	txs, err := s.ledger.List(r.Context(), id, r.URL.Query().Get("category"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]transactionResponse, 0, len(txs))
	for _, t := range txs {
		out = append(out, toTransactionResponse(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAppendTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := identityFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req transactionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	date, err := parseDate(req.Date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	cents, err := core.ParseDecimalToCents(req.Amount)
	if err != nil {
		writeError(w, r, core.ErrInvalidAmount)
		return
	}

	tx := core.Transaction{
		Kind:     core.Kind(req.Kind),
		Category: req.Category,
		Date:     date,
		Amount:   core.Money{Cents: cents},
		Note:     req.Note,
	}
	txID, err := s.ledger.Append(r.Context(), id, tx)
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.invalidateCaches(id.UserID)
	tx.ID = txID
	tx.Owner = id.UserID
	writeJSON(w, http.StatusCreated, toTransactionResponse(tx))
}

func (s *Server) handleClearTransactions(w http.ResponseWriter, r *http.Request) {
	id, err := identityFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.ledger.Clear(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	s.invalidateCaches(id.UserID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	id, err := identityFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	balance, ok := s.balanceCache.Get(id.UserID)
	if !ok {
		balance, err = s.ledger.Balance(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		s.balanceCache.Set(id.UserID, balance)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"balance":       balance.String(),
		"balance_cents": balance.Cents,
	})
}

type categoryAmountResponse struct {
	Category string `json:"category"`
	Amount   string `json:"amount"`
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
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

	out := make([]categoryAmountResponse, 0, len(summary))
	for _, c := range summary {
		out = append(out, categoryAmountResponse{Category: c.Name, Amount: c.Amount.String()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.ledger.Categories(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}
