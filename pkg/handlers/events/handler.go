package events

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/de-tools/storage-guard/pkg/handlers/response"
)

const maxEventBytes = 256 << 10

type Processor interface {
	ProcessEvent(ctx context.Context, raw []byte) error
}

type Handler struct {
	processor Processor
}

func NewHandler(processor Processor) *Handler {
	return &Handler{processor: processor}
}

// Ingest accepts one raw change event. Events that cannot be used are
// acknowledged. A 5xx asks the sender to redeliver.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBytes))
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		response.Error(w, r, status, fmt.Errorf("failed to read event: %w", err))
		return
	}
	if len(raw) == 0 {
		response.Error(w, r, http.StatusBadRequest, fmt.Errorf("empty event body"))
		return
	}

	if err := h.processor.ProcessEvent(r.Context(), raw); err != nil {
		response.Error(w, r, http.StatusServiceUnavailable, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
