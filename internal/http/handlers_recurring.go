package http

import (
	"net/http"

	"tally/internal/core"
)

type ruleRequest struct {
	Kind      string `json:"kind"`
	Frequency string `json:"frequency"`
	Category  string `json:"category"`
	Amount    string `json:"amount"`
	Anchor    string `json:"anchor"`
}

type ruleResponse struct {
	ID               int64  `json:"id"`
	Kind             string `json:"kind"`
	Frequency        string `json:"frequency"`
	Category         string `json:"category"`
	Amount           string `json:"amount"`
	LastMaterialized string `json:"last_materialized"`
}

func toRuleResponse(r core.RecurrenceRule) ruleResponse {
	return ruleResponse{
		ID:               r.ID,
		Kind:             string(r.Kind),
		Frequency:        string(r.Frequency),
		Category:         r.Category,
		Amount:           r.Amount.String(),
		LastMaterialized: r.LastMaterialized.Format("2006-01-02"),
	}
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	id, err := identityFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	rules, err := s.catchup.ListRules(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]ruleResponse, 0, len(rules))
	for _, rule := range rules {
		out = append(out, toRuleResponse(rule))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	id, err := identityFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req ruleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	anchor, err := parseDate(req.Anchor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	cents, err := core.ParseDecimalToCents(req.Amount)
	if err != nil {
		writeError(w, r, core.ErrInvalidAmount)
		return
	}

	rule := core.RecurrenceRule{
		Kind:             core.Kind(req.Kind),
		Frequency:        core.Frequency(req.Frequency),
		Category:         req.Category,
		Amount:           core.Money{Cents: cents},
		LastMaterialized: anchor,
	}
	ruleID, err := s.catchup.CreateRule(r.Context(), id, rule)
	if err != nil {
		writeError(w, r, err)
		return
	}

	rule.ID = ruleID
	rule.Owner = id.UserID
	writeJSON(w, http.StatusCreated, toRuleResponse(rule))
}
