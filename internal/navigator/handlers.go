// internal/navigator/handlers.go
package navigator

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"oraclebackend/internal/catalog"
	"oraclebackend/internal/logger"
	"oraclebackend/internal/middleware"
)

// RubricSource supplies the rubric and consultation-choice snapshots for the
// admin browser.
type RubricSource interface {
	FetchRubrics(ctx context.Context) ([]Rubric, error)
	FetchConsultationChoices(ctx context.Context) ([]Choice, error)
}

// CatalogProvider returns the current catalog index snapshot.
type CatalogProvider func() *catalog.Index

const (
	sessionSweepInterval = 10 * time.Minute
	maxSessionIdle       = 30 * time.Minute
)

// session pairs a navigator with its last-touch time so abandoned browse
// sessions can be swept.
type session struct {
	nav        *Navigator
	lastActive time.Time
}

// Injected collaborators; wired from main before the server starts.
var (
	rubricSource RubricSource
	catalogFn    CatalogProvider

	sessionsMu sync.RWMutex
	sessions   = make(map[string]*session)
)

// lookupSession returns the live navigator for id, touching its activity
// time.
func lookupSession(id string) (*Navigator, bool) {
	sessionsMu.Lock()
	defer sessionsMu.Unlock()
	s, ok := sessions[id]
	if !ok {
		return nil, false
	}
	s.lastActive = time.Now()
	return s.nav, true
}

// SweepSessions drops sessions idle past the cutoff and returns how many
// were removed.
func SweepSessions(now time.Time) int {
	sessionsMu.Lock()
	defer sessionsMu.Unlock()

	removed := 0
	for id, s := range sessions {
		if now.Sub(s.lastActive) > maxSessionIdle {
			delete(sessions, id)
			removed++
		}
	}
	return removed
}

// StartSessionJanitor sweeps abandoned browse sessions until ctx is
// cancelled.
func StartSessionJanitor(ctx context.Context) {
	go func() {
		logger.LogInfo("Browse session janitor started (sweep every %v)", sessionSweepInterval)
		ticker := time.NewTicker(sessionSweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.LogInfo("Browse session janitor stopped")
				return
			case now := <-ticker.C:
				if n := SweepSessions(now); n > 0 {
					logger.LogInfo("Browse session janitor removed %d idle sessions", n)
				}
			}
		}
	}()
}

// Configure wires the handler collaborators.
func Configure(src RubricSource, cat CatalogProvider) {
	rubricSource = src
	catalogFn = cat
}

type sessionResponse struct {
	SessionID string `json:"session_id"`
	View      View   `json:"view"`
}

// StartBrowseHandler opens an admin browsing session at the rubric list,
// built from fresh rubric/choice snapshots.
func StartBrowseHandler(w http.ResponseWriter, r *http.Request) {
	rubrics, err := rubricSource.FetchRubrics(r.Context())
	if err != nil {
		logger.LogError("Failed to fetch rubrics: %v", err)
		middleware.WriteAPIError(w, r, http.StatusBadGateway, "rubrics_unavailable", "Could not load rubrics", "")
		return
	}
	choices, err := rubricSource.FetchConsultationChoices(r.Context())
	if err != nil {
		logger.LogError("Failed to fetch consultation choices: %v", err)
		middleware.WriteAPIError(w, r, http.StatusBadGateway, "choices_unavailable", "Could not load consultation choices", "")
		return
	}

	nav := New(rubrics, choices, catalogFn())
	id := uuid.NewString()

	sessionsMu.Lock()
	sessions[id] = &session{nav: nav, lastActive: time.Now()}
	sessionsMu.Unlock()

	logger.LogInfo("Browse session %s started (%d rubrics, %d choices)", id, len(rubrics), len(choices))
	middleware.WriteAPISuccess(w, r, sessionResponse{SessionID: id, View: nav.View()})
}

type browseRequest struct {
	SessionID string `json:"session_id"`
	RubricID  string `json:"rubric_id,omitempty"`
	ChoiceID  string `json:"choice_id,omitempty"`
}

func parseBrowse(w http.ResponseWriter, r *http.Request) (*Navigator, browseRequest, bool) {
	req, ok := parseBrowseRequest(w, r)
	if !ok {
		return nil, req, false
	}

	nav, ok := lookupSession(req.SessionID)
	if !ok {
		middleware.WriteAPIError(w, r, http.StatusNotFound, "session_not_found", "No such browse session", "")
		return nil, req, false
	}
	return nav, req, true
}

func parseBrowseRequest(w http.ResponseWriter, r *http.Request) (browseRequest, bool) {
	var req browseRequest
	if err := middleware.ParseJSONRequest(r, &req); err != nil {
		middleware.WriteAPIError(w, r, http.StatusBadRequest, "invalid_request", "Invalid JSON request", err.Error())
		return req, false
	}
	return req, true
}

func respondBrowse(w http.ResponseWriter, r *http.Request, id string, nav *Navigator) {
	middleware.WriteAPISuccess(w, r, sessionResponse{SessionID: id, View: nav.View()})
}

// OpenRubricHandler drills down into a rubric.
func OpenRubricHandler(w http.ResponseWriter, r *http.Request) {
	nav, req, ok := parseBrowse(w, r)
	if !ok {
		return
	}
	nav.OpenRubric(req.RubricID)
	respondBrowse(w, r, req.SessionID, nav)
}

// OpenChoiceHandler drills down into one consultation choice.
func OpenChoiceHandler(w http.ResponseWriter, r *http.Request) {
	nav, req, ok := parseBrowse(w, r)
	if !ok {
		return
	}
	nav.OpenChoice(req.RubricID, req.ChoiceID)
	respondBrowse(w, r, req.SessionID, nav)
}

// BackHandler drills up one level; a no-op at the rubric list.
func BackHandler(w http.ResponseWriter, r *http.Request) {
	nav, req, ok := parseBrowse(w, r)
	if !ok {
		return
	}
	nav.Back()
	respondBrowse(w, r, req.SessionID, nav)
}

// ViewHandler returns the session's current view without navigating.
func ViewHandler(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("session_id")
	nav, ok := lookupSession(id)
	if !ok {
		middleware.WriteAPIError(w, r, http.StatusNotFound, "session_not_found", "No such browse session", "")
		return
	}
	respondBrowse(w, r, id, nav)
}

// EndBrowseHandler closes an admin browsing session.
func EndBrowseHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := parseBrowseRequest(w, r)
	if !ok {
		return
	}

	sessionsMu.Lock()
	_, ok = sessions[req.SessionID]
	delete(sessions, req.SessionID)
	sessionsMu.Unlock()
	if !ok {
		middleware.WriteAPIError(w, r, http.StatusNotFound, "session_not_found", "No such browse session", "")
		return
	}

	middleware.WriteAPISuccess(w, r, map[string]string{"session_id": req.SessionID, "status": "closed"})
}
