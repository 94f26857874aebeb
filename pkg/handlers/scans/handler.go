package scans

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/de-tools/storage-guard/pkg/handlers/response"
	"github.com/de-tools/storage-guard/pkg/models/api"
	"github.com/de-tools/storage-guard/pkg/models/domain"
	"github.com/de-tools/storage-guard/pkg/services/scanner"
	"github.com/de-tools/storage-guard/pkg/store/sqlite"
	"github.com/go-chi/chi/v5"
)

type Scanner interface {
	ScanAllAccounts(ctx context.Context) (scanner.Summary, error)
	ScanAccount(ctx context.Context, id string) (scanner.AccountResult, error)
}

type RunHistory interface {
	Get(ctx context.Context, id string) (domain.ScanRun, error)
	List(ctx context.Context, limit int) ([]domain.ScanRun, error)
}

// Trigger queues a background full scan.
type Trigger interface {
	Trigger() bool
}

type Handler struct {
	scanner Scanner
	trigger Trigger
	runs    RunHistory
}

// NewHandler builds the scan handler. With a nil trigger every full scan runs
// inside the request.
func NewHandler(scanner Scanner, trigger Trigger, runs RunHistory) *Handler {
	return &Handler{scanner: scanner, trigger: trigger, runs: runs}
}

func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			response.Error(w, r, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = n
	}

	runs, err := h.runs.List(r.Context(), limit)
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, err)
		return
	}
	out := make([]api.ScanRun, 0, len(runs))
	for _, run := range runs {
		out = append(out, mapRun(run))
	}
	response.JSON(w, r, http.StatusOK, out)
}

func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.runs.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, sqlite.ErrNotFound) {
		response.Error(w, r, http.StatusNotFound, err)
		return
	}
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, err)
		return
	}
	response.JSON(w, r, http.StatusOK, mapRun(run))
}

// ScanAll queues a full scan, or runs it inline when wait=true.
func (h *Handler) ScanAll(w http.ResponseWriter, r *http.Request) {
	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	if !wait && h.trigger != nil {
		response.JSON(w, r, http.StatusAccepted, api.ScanQueued{Queued: h.trigger.Trigger()})
		return
	}

	summary, err := h.scanner.ScanAllAccounts(r.Context())
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, err)
		return
	}
	response.JSON(w, r, http.StatusOK, mapSummary(summary))
}

func (h *Handler) ScanAccount(w http.ResponseWriter, r *http.Request) {
	result, err := h.scanner.ScanAccount(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, sqlite.ErrNotFound):
		response.Error(w, r, http.StatusNotFound, err)
		return
	case errors.Is(err, scanner.ErrInactiveAccount):
		response.Error(w, r, http.StatusConflict, err)
		return
	case err != nil && result.Outcome == "":
		response.Error(w, r, http.StatusInternalServerError, err)
		return
	}
	// scan-level failures are reported in the result body
	response.JSON(w, r, http.StatusOK, mapAccountResult(result))
}

func mapAccountResult(r scanner.AccountResult) api.AccountScan {
	return api.AccountScan{
		AccountId: r.AccountID,
		TenantId:  r.TenantID,
		Provider:  string(r.Provider),
		Outcome:   r.Outcome,
		Resources: r.Resources,
		Failed:    r.Failed,
		Error:     r.Error,
		TookMs:    r.Took.Milliseconds(),
	}
}

func mapSummary(s scanner.Summary) api.ScanSummary {
	accounts := make([]api.AccountScan, 0, len(s.Accounts))
	for _, r := range s.Accounts {
		accounts = append(accounts, mapAccountResult(r))
	}
	return api.ScanSummary{RunId: s.RunID, StartedAt: s.StartedAt, FinishedAt: s.FinishedAt, Accounts: accounts}
}

func mapRun(run domain.ScanRun) api.ScanRun {
	out := api.ScanRun{
		Id:         run.ID,
		Status:     string(run.Status),
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Accounts:   run.Accounts,
		Succeeded:  run.Succeeded,
		Failed:     run.Failed,
	}
	if run.Error != nil {
		out.Error = *run.Error
	}
	return out
}
