package findings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/de-tools/storage-guard/pkg/adapters"
	"github.com/de-tools/storage-guard/pkg/handlers/response"
	"github.com/de-tools/storage-guard/pkg/models/api"
	"github.com/de-tools/storage-guard/pkg/models/domain"
	"github.com/de-tools/storage-guard/pkg/services/finding"
	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 1 << 20

// Service is the findings read/write surface served over HTTP.
type Service interface {
	Get(ctx context.Context, id string) (domain.Finding, error)
	List(ctx context.Context, filter domain.FindingFilter) (domain.FindingPage, error)
	Statistics(ctx context.Context, tenantID string) (domain.FindingStatistics, error)
	Create(ctx context.Context, in domain.NewFinding) (domain.Finding, error)
	Update(ctx context.Context, id string, update domain.FindingUpdate) (domain.Finding, error)
	Suppress(ctx context.Context, id, reason string) (domain.Finding, error)
	Resolve(ctx context.Context, id string) (domain.Finding, error)
}

type Handler struct {
	findings Service
}

func NewHandler(findings Service) *Handler {
	return &Handler{findings: findings}
}

func (h *Handler) ListFindings(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, err)
		return
	}

	page, err := h.findings.List(r.Context(), filter)
	if err != nil {
		response.Error(w, r, statusOf(err), err)
		return
	}
	if filter.Limit <= 0 {
		filter.Limit = finding.DefaultPageSize
	}
	filter.Limit = min(filter.Limit, finding.MaxPageSize)
	response.JSON(w, r, http.StatusOK, adapters.MapFindingPageDomainToApi(page, filter))
}

func (h *Handler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.findings.Statistics(r.Context(), r.URL.Query().Get("tenant_id"))
	if err != nil {
		response.Error(w, r, statusOf(err), err)
		return
	}
	response.JSON(w, r, http.StatusOK, adapters.MapStatisticsDomainToApi(stats))
}

func (h *Handler) GetFinding(w http.ResponseWriter, r *http.Request) {
	f, err := h.findings.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, r, statusOf(err), err)
		return
	}
	response.JSON(w, r, http.StatusOK, adapters.MapFindingDomainToApi(f))
}

func (h *Handler) CreateFinding(w http.ResponseWriter, r *http.Request) {
	var req api.CreateFindingRequest
	if err := decode(w, r, &req); err != nil {
		response.Error(w, r, http.StatusBadRequest, err)
		return
	}
	in, err := adapters.MapCreateFindingApiToDomain(req)
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, err)
		return
	}

	f, err := h.findings.Create(r.Context(), in)
	if err != nil {
		response.Error(w, r, statusOf(err), err)
		return
	}
	response.JSON(w, r, http.StatusCreated, adapters.MapFindingDomainToApi(f))
}

func (h *Handler) UpdateFinding(w http.ResponseWriter, r *http.Request) {
	var req api.UpdateFindingRequest
	if err := decode(w, r, &req); err != nil {
		response.Error(w, r, http.StatusBadRequest, err)
		return
	}

	f, err := h.findings.Update(r.Context(), chi.URLParam(r, "id"), adapters.MapUpdateFindingApiToDomain(req))
	if err != nil {
		response.Error(w, r, statusOf(err), err)
		return
	}
	response.JSON(w, r, http.StatusOK, adapters.MapFindingDomainToApi(f))
}

func (h *Handler) SuppressFinding(w http.ResponseWriter, r *http.Request) {
	var req api.SuppressRequest
	if r.ContentLength != 0 {
		if err := decode(w, r, &req); err != nil {
			response.Error(w, r, http.StatusBadRequest, err)
			return
		}
	}

	f, err := h.findings.Suppress(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		response.Error(w, r, statusOf(err), err)
		return
	}
	response.JSON(w, r, http.StatusOK, adapters.MapFindingDomainToApi(f))
}

func (h *Handler) ResolveFinding(w http.ResponseWriter, r *http.Request) {
	f, err := h.findings.Resolve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.Error(w, r, statusOf(err), err)
		return
	}
	response.JSON(w, r, http.StatusOK, adapters.MapFindingDomainToApi(f))
}

func parseFilter(r *http.Request) (domain.FindingFilter, error) {
	q := r.URL.Query()
	filter := domain.FindingFilter{
		TenantID:   q.Get("tenant_id"),
		Status:     domain.FindingStatus(q.Get("status")),
		ResourceID: q.Get("resource_id"),
	}
	if raw := q.Get("severity"); raw != "" {
		sev, ok := domain.ParseSeverity(raw)
		if !ok {
			return filter, fmt.Errorf("unknown severity %q", raw)
		}
		filter.Severity = sev
	}

	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		return filter, fmt.Errorf("invalid limit: %w", err)
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		return filter, fmt.Errorf("invalid offset: %w", err)
	}
	return filter, nil
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("must not be negative")
	}
	return n, nil
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, finding.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, finding.ErrDuplicate), errors.Is(err, finding.ErrStale):
		return http.StatusConflict
	case errors.Is(err, finding.ErrInvalidTransition),
		errors.Is(err, finding.ErrInvalidFinding),
		errors.Is(err, finding.ErrInvalidFilter):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
