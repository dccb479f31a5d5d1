package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"staffdesk.org/internal/audit"
	"staffdesk.org/internal/auth"
	"staffdesk.org/internal/directory"
	"staffdesk.org/internal/obs"
	"staffdesk.org/internal/users"
)

type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeJSON(w, code, errorBody{Error: msg, RequestID: requestIDFrom(r.Context())})
}

// respondError maps domain and gate errors to HTTP status codes.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	if rej, ok := auth.AsRejection(err); ok {
		switch rej.Kind {
		case auth.KindUnauthenticated:
			w.Header().Set("WWW-Authenticate", `Bearer realm="staffdesk"`)
			writeError(w, r, http.StatusUnauthorized, rej.Message)
		default:
			writeError(w, r, http.StatusForbidden, rej.Message)
		}
		return
	}

	switch {
	case errors.Is(err, auth.ErrUnavailable):
		obs.Logger().Warn("authorization backend unavailable",
			zap.String("request_id", requestIDFrom(r.Context())), zap.Error(err))
		writeError(w, r, http.StatusServiceUnavailable, "service temporarily unavailable")
	case errors.Is(err, directory.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "admin not found")
	case errors.Is(err, users.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "user not found")
	case errors.Is(err, directory.ErrForbidden):
		writeError(w, r, http.StatusForbidden, trimPrefix(err))
	case errors.Is(err, directory.ErrConflict):
		writeError(w, r, http.StatusConflict, trimPrefix(err))
	case errors.Is(err, users.ErrInsufficientFunds):
		writeError(w, r, http.StatusUnprocessableEntity, trimPrefix(err))
	case errors.Is(err, directory.ErrInvalidInput),
		errors.Is(err, users.ErrInvalidInput),
		errors.Is(err, audit.ErrInvalidCursor):
		writeError(w, r, http.StatusBadRequest, trimPrefix(err))
	default:
		obs.Logger().Error("request failed",
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

// trimPrefix drops the "pkg: " prefix of sentinel errors for client display.
func trimPrefix(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, ": "); i > 0 && !strings.Contains(msg[:i], " ") {
		return msg[i+2:]
	}
	return msg
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return fmt.Errorf("request body exceeds %d bytes", maxErr.Limit)
		case errors.Is(err, io.EOF):
			return errors.New("request body is required")
		default:
			return fmt.Errorf("invalid JSON body: %v", err)
		}
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}
