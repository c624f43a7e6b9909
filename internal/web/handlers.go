package web

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/Proton-105/workout-ledger/internal/civil"
	"github.com/Proton-105/workout-ledger/internal/domain"
	apperrors "github.com/Proton-105/workout-ledger/internal/errors"
	"github.com/Proton-105/workout-ledger/internal/grid"
	"github.com/Proton-105/workout-ledger/internal/ledger"
)

const (
	operationWorkout = "workout"
	operationSkip    = "skip"
)

type boardUser struct {
	Profile  domain.Profile
	Grid     grid.Grid
	Selected bool
}

type boardPage struct {
	Today    civil.Date
	Users    []boardUser
	Selected *domain.User
	Notice   string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	users, err := s.users.List(ctx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	today := s.today()
	from, to := grid.Range(today, s.cfg.GridWeeks)
	selected := s.selectedUser(r, users)

	page := boardPage{Today: today, Selected: selected, Notice: noticeText(r.URL.Query().Get("outcome"))}
	for _, u := range users {
		profile, err := s.users.Profile(ctx, u.ID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		days, err := s.ledger.HistoryBetween(ctx, u.ID, from, to)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		page.Users = append(page.Users, boardUser{
			Profile:  *profile,
			Grid:     grid.Build(today, s.cfg.GridWeeks, days),
			Selected: selected != nil && selected.ID == u.ID,
		})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, "index.html", page); err != nil {
		s.log.Error("failed to render board", "error", err)
	}
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.FormValue("user"))

	u, err := s.users.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    u.ID,
		Path:     "/",
		MaxAge:   365 * 24 * 60 * 60,
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

type recordResponse struct {
	UserID        string         `json:"user_id"`
	Date          civil.Date     `json:"date"`
	Operation     string         `json:"operation"`
	Outcome       ledger.Outcome `json:"outcome"`
	Changed       bool           `json:"changed"`
	SkipPoints    int            `json:"skip_points"`
	ConsecWorkout int            `json:"consec_workout"`
}

func (s *Server) handleRecord(operation string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		u, err := s.requireSelected(r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		date, err := s.parseDate(r.FormValue("date"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		var outcome ledger.Outcome
		switch operation {
		case operationWorkout:
			outcome, err = s.ledger.RecordWorkout(ctx, u.ID, date)
		default:
			outcome, err = s.ledger.RecordSkip(ctx, u.ID, date)
		}
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		if !wantsJSON(r) {
			http.Redirect(w, r, "/?outcome="+url.QueryEscape(string(outcome)), http.StatusSeeOther)
			return
		}

		profile, err := s.users.Profile(ctx, u.ID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, recordResponse{
			UserID:        u.ID,
			Date:          date,
			Operation:     operation,
			Outcome:       outcome,
			Changed:       outcome.Changed(),
			SkipPoints:    profile.State.SkipPoints,
			ConsecWorkout: profile.State.ConsecWorkout,
		})
	}
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	u, err := s.users.Rename(r.Context(), r.PathValue("id"), r.FormValue("name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, u)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

type apiUser struct {
	domain.User
	SkipPoints    int `json:"skip_points"`
	ConsecWorkout int `json:"consec_workout"`
}

func (s *Server) handleAPIUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := make([]apiUser, 0, len(users))
	for _, u := range users {
		p, err := s.users.Profile(r.Context(), u.ID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		out = append(out, apiUser{User: p.User, SkipPoints: p.State.SkipPoints, ConsecWorkout: p.State.ConsecWorkout})
	}

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAPIDays(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	if _, err := s.users.Get(ctx, id); err != nil {
		s.writeError(w, r, err)
		return
	}

	q := r.URL.Query()
	var (
		days []domain.DayRecord
		err  error
	)
	if q.Get("from") != "" || q.Get("to") != "" {
		from, ferr := civil.Parse(q.Get("from"))
		to, terr := civil.Parse(q.Get("to"))
		if ferr != nil || terr != nil {
			s.writeError(w, r, apperrors.NewValidationError("from and to must both be YYYY-MM-DD"))
			return
		}
		days, err = s.ledger.HistoryBetween(ctx, id, from, to)
	} else {
		days, err = s.ledger.History(ctx, id)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if days == nil {
		days = []domain.DayRecord{}
	}
	writeJSON(w, http.StatusOK, days)
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	if s.probes != nil {
		if err := s.probes.Liveness(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.probes == nil {
		writeJSON(w, http.StatusOK, map[string]any{"healthy": true})
		return
	}

	report := s.probes.Report(r.Context())
	status := http.StatusOK
	if !report.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// selectedUser reads the cookie and falls back to the first user.
func (s *Server) selectedUser(r *http.Request, users []domain.User) *domain.User {
	if len(users) == 0 {
		return nil
	}
	if c, err := r.Cookie(s.cfg.CookieName); err == nil {
		for i := range users {
			if users[i].ID == c.Value {
				return &users[i]
			}
		}
	}
	return &users[0]
}

func (s *Server) requireSelected(r *http.Request) (*domain.User, error) {
	if id := r.FormValue("user"); id != "" {
		return s.users.Get(r.Context(), id)
	}

	users, err := s.users.List(r.Context())
	if err != nil {
		return nil, err
	}
	if u := s.selectedUser(r, users); u != nil {
		return u, nil
	}
	return nil, apperrors.NewNotFoundError("user")
}

// parseDate accepts an empty value as today and rejects dates after today.
func (s *Server) parseDate(raw string) (civil.Date, error) {
	today := s.today()
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return today, nil
	}

	date, err := civil.Parse(raw)
	if err != nil {
		return civil.Date{}, apperrors.NewValidationError("date must be YYYY-MM-DD")
	}
	if date.After(today) {
		return civil.Date{}, apperrors.NewValidationError("date must not be in the future")
	}
	return date, nil
}

func noticeText(outcome string) string {
	switch ledger.Outcome(outcome) {
	case ledger.OutcomeRecorded:
		return "Saved."
	case ledger.OutcomeAlreadyRecorded:
		return "That day is already recorded."
	case ledger.OutcomeNoSkipPoints:
		return "No skip points left."
	case ledger.OutcomeStateMissing:
		return "User is not set up yet."
	default:
		return ""
	}
}
