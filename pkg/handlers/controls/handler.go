package controls

import (
	"errors"
	"net/http"

	"github.com/de-tools/storage-guard/pkg/adapters"
	"github.com/de-tools/storage-guard/pkg/handlers/response"
	"github.com/de-tools/storage-guard/pkg/models/api"
	"github.com/de-tools/storage-guard/pkg/models/domain"
	"github.com/de-tools/storage-guard/pkg/services/control"
	"github.com/go-chi/chi/v5"
)

type Catalog interface {
	Get(id string) (domain.Control, error)
	List() []domain.Control
}

type Handler struct {
	catalog Catalog
}

func NewHandler(catalog Catalog) *Handler {
	return &Handler{catalog: catalog}
}

func (h *Handler) ListControls(w http.ResponseWriter, r *http.Request) {
	controls := h.catalog.List()
	out := make([]api.Control, 0, len(controls))
	for _, c := range controls {
		out = append(out, adapters.MapControlDomainToApi(c))
	}
	response.JSON(w, r, http.StatusOK, out)
}

func (h *Handler) GetControl(w http.ResponseWriter, r *http.Request) {
	c, err := h.catalog.Get(chi.URLParam(r, "id"))
	if errors.Is(err, control.ErrUnknownControl) {
		response.Error(w, r, http.StatusNotFound, err)
		return
	}
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, err)
		return
	}
	response.JSON(w, r, http.StatusOK, adapters.MapControlDomainToApi(c))
}
