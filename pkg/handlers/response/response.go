package response

import (
	"encoding/json"
	"net/http"

	"github.com/de-tools/storage-guard/pkg/models/api"
	"github.com/rs/zerolog"
)

func JSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zerolog.Ctx(r.Context()).Error().
			Err(err).
			Msg("failed to encode response")
	}
}

// Error writes err as an api.Error. Server-side failures are logged and their
// message is not echoed to the client.
func Error(w http.ResponseWriter, r *http.Request, status int, err error) {
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().
			Err(err).
			Int("status", status).
			Msg("request failed")
		msg = http.StatusText(status)
	}
	JSON(w, r, status, api.Error{Message: msg})
}
