package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/walletpay/backend/internal/services"
)

// LedgerHandler serves read-only views of the ledger and chart of accounts.
type LedgerHandler struct {
	ledger *services.DoubleLedgerService
	chart  *services.ChartOfAccounts
}

func NewLedgerHandler(ledger *services.DoubleLedgerService, chart *services.ChartOfAccounts) *LedgerHandler {
	return &LedgerHandler{ledger: ledger, chart: chart}
}

func (h *LedgerHandler) TransactionEntries(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entries, err := h.ledger.LedgerEntries(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"transaction_id": id,
		"entries":        entries,
		"count":          len(entries),
	})
}

func (h *LedgerHandler) EntriesByRef(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ledgerRef")
	entries, err := h.ledger.LedgerEntriesByRef(r.Context(), ref)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ledger_ref": ref,
		"entries":    entries,
	})
}

func (h *LedgerHandler) TrialBalance(w http.ResponseWriter, r *http.Request) {
	tb, err := h.ledger.TrialBalance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tb)
}

func (h *LedgerHandler) Accounts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"accounts": h.chart.Accounts()})
}
