package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/ledger"
	applog "fintrack/internal/log"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Payload(map[string]any{
		"status":     "ok",
		"timestamp":  time.Now().Format(time.RFC3339),
		"uptime":     time.Since(s.started).String(),
		"requests":   s.tracer.GetMetrics(),
		"rate_limit": s.limiter.GetMetrics(),
		"security":   s.detector.GetMetrics(),
	}).Write(w)
}

// handleReady checks templates and, when a journal is attached, that it is
// reachable and agrees with the in-memory totals.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]string)

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	if err := s.ledger.CheckJournal(ctx); err != nil {
		checks["journal"] = "failed: " + err.Error()
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["journal"] = "ok"
	}

	NewJSONResponse().Status(httpStatus).Payload(map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	items := s.ledger.List()
	if items == nil {
		items = []core.Transaction{}
	}
	NewJSONResponse().Payload(items).Write(w)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	in, err := ParseTransactionInput(w, r)
	if err != nil {
		writeParseError(w, err)
		return
	}

	t, err := s.ledger.Add(ctx, in)
	if err != nil {
		s.writeLedgerError(ctx, w, err, applog.OpCreate)
		return
	}

	applog.NewStructuredLogger(applog.FromContext(ctx)).
		LogTransactionCreated(ctx, t.ID, t.Amount.Cents, string(t.Type), t.Category)
	CreatedResponse(t).Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := parseID(r.PathValue("id"))
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	removed, err := s.ledger.Remove(ctx, id)
	if err != nil {
		s.writeLedgerError(ctx, w, err, applog.OpDelete)
		return
	}

	applog.NewStructuredLogger(applog.FromContext(ctx)).LogTransactionDeleted(ctx, id, removed)
	DeletedResponse(removed).Write(w)
}

type summaryBody struct {
	core.Aggregates
	ByCategory []core.CategoryAmount `json:"byCategory"`
	Count      int                   `json:"count"`
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	snap := s.ledger.Snapshot()
	body := summaryBody{
		Aggregates: snap.Aggregates,
		ByCategory: snap.ByCategory,
		Count:      len(snap.Transactions),
	}
	if body.ByCategory == nil {
		body.ByCategory = []core.CategoryAmount{}
	}
	NewJSONResponse().Payload(body).Write(w)
}

func writeParseError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrBodyTooLarge) {
		ErrorResponse(http.StatusRequestEntityTooLarge, err.Error()).Write(w)
		return
	}
	BadRequestError(err.Error()).Write(w)
}

// writeLedgerError maps ledger failures onto status codes. Validation
// problems are the caller's fault; anything else is ours.
func (s *Server) writeLedgerError(ctx context.Context, w http.ResponseWriter, err error, op string) {
	var verr *core.ValidationError
	if errors.As(err, &verr) {
		applog.FromContext(ctx).WarnContext(ctx, "Transaction rejected",
			applog.FieldError, err,
			applog.FieldErrorType, applog.ErrorTypeValidation,
			applog.FieldOperation, op)
		ValidationErrorResponse(verr).Write(w)
		return
	}

	errType := applog.ErrorTypeInternal
	if errors.Is(err, ledger.ErrJournal) {
		errType = applog.ErrorTypeDatabase
	}
	applog.NewStructuredLogger(applog.FromContext(ctx)).LogError(ctx, "Ledger mutation failed", err,
		applog.ComponentLedger, op, applog.NewFields().WithErrorType(errType))
	InternalServerError("could not save the change, please retry").Write(w)
}
