package httpapi

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/rpattn/resourcekit/internal/auth"
	"github.com/rpattn/resourcekit/internal/drafts"
)

type openDraftRequest struct {
	ResourceID uuid.UUID  `json:"resource_id"`
	SessionID  *uuid.UUID `json:"session_id,omitempty"`
}

// openDraft handles POST /drafts. A given session must exist; without one
// the draft joins the session the request is scoped to.
func (s *Server) openDraft(w http.ResponseWriter, r *http.Request) {
	var req openDraftRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.ResourceID == uuid.Nil {
		s.writeError(w, r, badRequest("resource_id is required"))
		return
	}
	sessionID, err := auth.ResolveSession(r.Context(), req.SessionID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if sessionID != nil {
		if _, err := s.sessions.Get(*sessionID); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	d, err := s.drafts.Open(r.Context(), req.ResourceID, sessionID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// draftAction adapts a per-draft operation to a handler.
func (s *Server) draftAction(fn func(uuid.UUID) (drafts.Draft, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		d, err := fn(id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, d)
	}
}

func (s *Server) getDraft(w http.ResponseWriter, r *http.Request) {
	s.draftAction(s.drafts.Get)(w, r)
}

func (s *Server) undoDraft(w http.ResponseWriter, r *http.Request) {
	s.draftAction(s.drafts.Undo)(w, r)
}

func (s *Server) redoDraft(w http.ResponseWriter, r *http.Request) {
	s.draftAction(s.drafts.Redo)(w, r)
}

func (s *Server) resetDraft(w http.ResponseWriter, r *http.Request) {
	s.draftAction(s.drafts.Reset)(w, r)
}

// updateDraft handles PATCH /drafts/{id}; the body is merged into the
// draft's current fields.
func (s *Server) updateDraft(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	patch, err := decodeObject(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	d, err := s.drafts.Update(id, patch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) diffDraft(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	changes, err := s.drafts.Diff(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, changes)
}

func (s *Server) discardDraft(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.drafts.Discard(id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// commitDraft handles POST /drafts/{id}/commit and returns the updated
// resource.
func (s *Server) commitDraft(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	updated, err := s.drafts.Commit(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.view(updated))
}
