package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/rpattn/resourcekit/internal/domain"
)

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusCreated, s.sessions.Create())
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	session, err := s.sessions.Get(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// deleteSession handles DELETE /sessions/{id}, closing the session's drafts.
func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.sessions.Delete(id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.drafts.DiscardSession(id)
	w.WriteHeader(http.StatusNoContent)
}

// addFilter handles POST /sessions/{id}/filters/{key} with a filter body.
func (s *Server) addFilter(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var filter domain.Filter
	if err := decodeJSON(r, &filter); err != nil {
		s.writeError(w, r, err)
		return
	}
	session, err := s.sessions.AddFilter(id, domain.LookupKey(mux.Vars(r)["key"]), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) removeFilter(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		s.writeError(w, r, badRequest("invalid filter index: %v", err))
		return
	}
	session, err := s.sessions.RemoveFilter(id, domain.LookupKey(mux.Vars(r)["key"]), index)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) clearFilters(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	session, err := s.sessions.ClearFilters(id, domain.LookupKey(mux.Vars(r)["key"]))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) clearAllFilters(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	session, err := s.sessions.ClearAll(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

type modeRequest struct {
	Mode string `json:"mode"`
}

// setFilterMode handles PUT /sessions/{id}/filters/{key}/mode.
func (s *Server) setFilterMode(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req modeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	mode, err := domain.ParseFilterMode(req.Mode)
	if err != nil {
		s.writeError(w, r, badRequest("%v", err))
		return
	}
	session, err := s.sessions.SetMode(id, domain.LookupKey(mux.Vars(r)["key"]), mode)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}
