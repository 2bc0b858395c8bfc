package http

import (
	"bytes"
	"errors"
	"net/http"

	"fintrack/internal/core"
	"fintrack/internal/ledger"
	applog "fintrack/internal/log"
)

type (
	totalsView struct {
		Income   string
		Expenses string
		Balance  string
		Negative bool
	}

	rowView struct {
		ID       int64
		Title    string
		Category string
		Type     core.TransactionType
		Amount   string
		Width    int
	}

	categoryView struct {
		Name   string
		Type   core.TransactionType
		Amount string
		Width  int
	}

	splitView struct {
		IncomePct  int
		ExpensePct int
	}

	// formState is echoed back into the form after a rejected submit.
	formState struct {
		Title    string
		Amount   string
		Category string
		Type     string
		Errors   []core.FieldError
	}

	dashboardView struct {
		Count        int
		Totals       totalsView
		Transactions []rowView
		Categories   []categoryView
		Split        splitView
		Form         formState
	}
)

// buildDashboard derives every chart from one snapshot so the table, totals
// and bars always agree.
func buildDashboard(snap ledger.Snapshot, form formState) dashboardView {
	agg := snap.Aggregates
	v := dashboardView{
		Count: len(snap.Transactions),
		Totals: totalsView{
			Income:   formatMoney(agg.TotalIncome),
			Expenses: formatMoney(agg.TotalExpenses),
			Balance:  formatMoney(agg.Balance),
			Negative: agg.Balance.Cents < 0,
		},
		Form: form,
	}

	var maxTx int64
	for _, t := range snap.Transactions {
		maxTx = max(maxTx, t.Amount.Cents)
	}
	for _, t := range snap.Transactions {
		v.Transactions = append(v.Transactions, rowView{
			ID:       t.ID,
			Title:    t.Title,
			Category: t.Category,
			Type:     t.Type,
			Amount:   formatMoney(t.Amount),
			Width:    percentOf(t.Amount.Cents, maxTx),
		})
	}

	var maxCat int64
	for _, c := range snap.ByCategory {
		maxCat = max(maxCat, c.Amount.Cents)
	}
	for _, c := range snap.ByCategory {
		v.Categories = append(v.Categories, categoryView{
			Name:   c.Name,
			Type:   c.Type,
			Amount: formatMoney(c.Amount),
			Width:  percentOf(c.Amount.Cents, maxCat),
		})
	}

	v.Split.IncomePct, v.Split.ExpensePct = incomeSplit(agg.TotalIncome.Cents, agg.TotalExpenses.Cents)
	return v
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	s.renderDashboard(w, r, http.StatusOK, formState{Type: string(core.Expense)})
}

func (s *Server) renderDashboard(w http.ResponseWriter, r *http.Request, status int, form formState) {
	ctx := r.Context()
	if s.templates == nil {
		http.Error(w, "templates unavailable", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, "index.html", buildDashboard(s.ledger.Snapshot(), form)); err != nil {
		applog.NewStructuredLogger(applog.FromContext(ctx)).LogError(ctx, "Template render failed", err,
			applog.ComponentTemplate, applog.OpRender, nil)
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleFormCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		writeParseError(w, err)
		return
	}
	in := p.TransactionInput()

	t, err := s.ledger.Add(ctx, in)
	var verr *core.ValidationError
	switch {
	case errors.As(err, &verr):
		s.renderDashboard(w, r, http.StatusBadRequest, formState{
			Title:    in.Title,
			Amount:   in.Amount,
			Category: in.Category,
			Type:     in.Type,
			Errors:   verr.Fields,
		})
		return
	case err != nil:
		applog.NewStructuredLogger(applog.FromContext(ctx)).LogError(ctx, "Ledger mutation failed", err,
			applog.ComponentLedger, applog.OpCreate, nil)
		http.Error(w, "could not save the transaction, please retry", http.StatusInternalServerError)
		return
	}

	applog.NewStructuredLogger(applog.FromContext(ctx)).
		LogTransactionCreated(ctx, t.ID, t.Amount.Cents, string(t.Type), t.Category)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleFormDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := parseID(r.PathValue("id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	removed, err := s.ledger.Remove(ctx, id)
	if err != nil {
		applog.NewStructuredLogger(applog.FromContext(ctx)).LogError(ctx, "Ledger mutation failed", err,
			applog.ComponentLedger, applog.OpDelete, nil)
		http.Error(w, "could not delete the transaction, please retry", http.StatusInternalServerError)
		return
	}

	applog.NewStructuredLogger(applog.FromContext(ctx)).LogTransactionDeleted(ctx, id, removed)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
