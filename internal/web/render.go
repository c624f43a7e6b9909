package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"github.com/Proton-105/workout-ledger/internal/domain"
	apperrors "github.com/Proton-105/workout-ledger/internal/errors"
	"github.com/Proton-105/workout-ledger/internal/grid"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError maps AppError codes to statuses and logs through the error handler.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	msg, _ := s.errors.Handle(r.Context(), err)

	status := http.StatusInternalServerError
	code := apperrors.CodeInternal

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		code = appErr.Code
		switch appErr.Code {
		case apperrors.CodeValidation:
			status = http.StatusBadRequest
		case apperrors.CodeNotFound:
			status = http.StatusNotFound
		case apperrors.CodeRateLimit:
			status = http.StatusTooManyRequests
		case apperrors.CodeState:
			status = http.StatusConflict
		}
	}

	if wantsJSON(r) {
		writeJSON(w, status, errorResponse{Code: code, Message: msg})
		return
	}
	http.Error(w, msg, status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json") ||
		strings.HasPrefix(r.URL.Path, "/api/")
}

var templateFuncs = template.FuncMap{
	"cellClass": func(c grid.Cell) string {
		switch {
		case c.Future:
			return "cell future"
		case c.Status == domain.StatusWorkout:
			return "cell workout"
		case c.Status == domain.StatusSkip:
			return "cell skip"
		default:
			return "cell"
		}
	},
	"cellTitle": func(c grid.Cell) string {
		if c.Status == "" {
			return c.Date.String()
		}
		return fmt.Sprintf("%s: %s", c.Date, c.Status)
	},
	"maxPoints": func() int { return domain.MaxSkipPoints },
}
