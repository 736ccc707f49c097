package httpapi

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/rpattn/resourcekit/internal/auth"
	"github.com/rpattn/resourcekit/internal/domain"
	"github.com/rpattn/resourcekit/internal/export"
	"github.com/rpattn/resourcekit/internal/familyloader"
	"github.com/rpattn/resourcekit/internal/middleware"
	"github.com/rpattn/resourcekit/internal/repository"
)

type resourceView struct {
	domain.Resource
	URL string `json:"url"`
}

func (s *Server) view(r domain.Resource) resourceView {
	url, _ := s.registry.ResourceURL(domain.ReferenceType(string(r.LookupKey)), r.ID.String())
	return resourceView{Resource: r, URL: url}
}

type listResponse struct {
	Items  []resourceView `json:"items"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// loadResource fetches the resource named by the path, treating a resource
// of another type as missing.
func (s *Server) loadResource(r *http.Request) (domain.Resource, error) {
	key, err := s.pathKey(r)
	if err != nil {
		return domain.Resource{}, err
	}
	id, err := pathID(r, "id")
	if err != nil {
		return domain.Resource{}, err
	}
	resource, err := s.repo.GetByID(r.Context(), id)
	if err != nil {
		return domain.Resource{}, err
	}
	if resource.LookupKey != key {
		return domain.Resource{}, fmt.Errorf("%w: %s %s", repository.ErrNotFound, key, id)
	}
	return resource, nil
}

// sessionFilters resolves the optional session query parameter.
func (s *Server) sessionFilters(r *http.Request) (*domain.ActiveFilters, error) {
	explicit, err := queryUUID(r, "session")
	if err != nil {
		return nil, err
	}
	sessionID, err := auth.ResolveSession(r.Context(), explicit)
	if err != nil || sessionID == nil {
		return nil, err
	}
	session, err := s.sessions.Get(*sessionID)
	if err != nil {
		return nil, err
	}
	return session.Filters, nil
}

func (s *Server) familyLoader(r *http.Request) *familyloader.FamilyLoader {
	if loader := middleware.FamilyLoaderFromContext(r.Context()); loader != nil {
		return loader
	}
	return familyloader.NewFamilyLoader(s.repo)
}

// listResources handles GET /resources/{key}. With a session the filters are
// applied before paging, so total counts matching resources.
func (s *Server) listResources(w http.ResponseWriter, r *http.Request) {
	key, err := s.pathKey(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	active, err := s.sessionFilters(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var page []domain.Resource
	var total int
	if active == nil {
		page, total, err = s.repo.List(r.Context(), key, limit, offset)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
	} else {
		all, _, err := s.repo.List(r.Context(), key, 0, 0)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		kept, err := s.familyLoader(r).Filter(r.Context(), s.filters, active, key, all)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		total = len(kept)
		page = paginate(kept, limit, offset)
	}

	items := make([]resourceView, len(page))
	for i, resource := range page {
		items[i] = s.view(resource)
	}
	writeJSON(w, http.StatusOK, listResponse{Items: items, Total: total, Limit: limit, Offset: offset})
}

func paginate(resources []domain.Resource, limit, offset int) []domain.Resource {
	if offset >= len(resources) {
		return []domain.Resource{}
	}
	end := len(resources)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return resources[offset:end]
}

// createResource handles POST /resources/{key}. The body is the field object.
func (s *Server) createResource(w http.ResponseWriter, r *http.Request) {
	key, err := s.pathKey(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	fields, err := decodeObject(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if result := s.validator.ValidateFields(key, fields); !result.IsValid {
		s.writeError(w, r, result)
		return
	}

	created, err := s.repo.Create(r.Context(), domain.NewResource(key, s.registry.FamilyID(key, fields), fields))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.view(created))
}

func (s *Server) getResource(w http.ResponseWriter, r *http.Request) {
	resource, err := s.loadResource(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.view(resource))
}

// patchResource handles PATCH /resources/{key}/{id}, merging the body into
// the stored fields.
func (s *Server) patchResource(w http.ResponseWriter, r *http.Request) {
	resource, err := s.loadResource(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	fields, err := decodeObject(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if result := s.validator.ValidateFields(resource.LookupKey, fields); !result.IsValid {
		s.writeError(w, r, result)
		return
	}
	updated, err := s.repo.Patch(r.Context(), resource.ID, fields)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.view(updated))
}

func (s *Server) deleteResource(w http.ResponseWriter, r *http.Request) {
	resource, err := s.loadResource(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.repo.Delete(r.Context(), resource.ID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type notationResponse struct {
	ID        uuid.UUID          `json:"id"`
	LookupKey domain.LookupKey   `json:"lookup_key"`
	Fields    []notatedFieldView `json:"fields"`
}

type notatedFieldView struct {
	Key      string          `json:"key"`
	Type     domain.TypeName `json:"type"`
	Value    domain.Value    `json:"value"`
	ReadOnly bool            `json:"read_only"`
	Custom   bool            `json:"custom"`
	Priority string          `json:"priority"`
}

// notateResource handles GET /resources/{key}/{id}/notation.
func (s *Server) notateResource(w http.ResponseWriter, r *http.Request) {
	resource, err := s.loadResource(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	notated := s.codec.NotateResource(resource.LookupKey, resource.Fields)
	fields := make([]notatedFieldView, len(notated))
	for i, f := range notated {
		fields[i] = notatedFieldView{
			Key:      f.Key,
			Type:     f.Type,
			Value:    f.Value,
			ReadOnly: f.ReadOnly,
			Custom:   f.Custom,
			Priority: f.Priority.String(),
		}
	}
	writeJSON(w, http.StatusOK, notationResponse{ID: resource.ID, LookupKey: resource.LookupKey, Fields: fields})
}

func (s *Server) listHistory(w http.ResponseWriter, r *http.Request) {
	id, err := s.historyTarget(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	entries, err := s.repo.ListHistory(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) getHistoryVersion(w http.ResponseWriter, r *http.Request) {
	id, err := s.historyTarget(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	version, err := strconv.ParseInt(mux.Vars(r)["version"], 10, 64)
	if err != nil {
		s.writeError(w, r, badRequest("invalid version: %v", err))
		return
	}
	entry, err := s.repo.GetHistoryByVersion(r.Context(), id, version)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// historyTarget validates the path of a history request. Deleted resources
// keep their history, so the resource itself need not exist.
func (s *Server) historyTarget(r *http.Request) (uuid.UUID, error) {
	if _, err := s.pathKey(r); err != nil {
		return uuid.Nil, err
	}
	return pathID(r, "id")
}

type diffResponse struct {
	From string `json:"from"`
	To   string `json:"to"`
	Diff string `json:"diff"`
}

// diffResource handles GET /resources/{key}/{id}/diff?from=&to=. from
// defaults to the first version and to to the current resource.
func (s *Server) diffResource(w http.ResponseWriter, r *http.Request) {
	current, err := s.loadResource(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	from, err := queryInt(r, "from", 1)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	base, err := s.repo.GetHistoryByVersion(r.Context(), current.ID, int64(from))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	baseSnapshot := domain.NewResourceSnapshotFromHistory(base)
	baseLabel := fmt.Sprintf("version %d", base.Version)

	targetSnapshot := domain.NewResourceSnapshot(current)
	targetLabel := fmt.Sprintf("version %d (current)", current.Version)
	if raw := r.URL.Query().Get("to"); raw != "" {
		to, err := queryInt(r, "to", 0)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		target, err := s.repo.GetHistoryByVersion(r.Context(), current.ID, int64(to))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		targetSnapshot = domain.NewResourceSnapshotFromHistory(target)
		targetLabel = fmt.Sprintf("version %d", target.Version)
	}

	diff, err := domain.DiffResourceSnapshots(baseLabel, &baseSnapshot, targetLabel, &targetSnapshot)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, diffResponse{From: baseLabel, To: targetLabel, Diff: diff})
}

type rollbackRequest struct {
	Version int64 `json:"version"`
}

// rollbackResource handles POST /resources/{key}/{id}/rollback.
func (s *Server) rollbackResource(w http.ResponseWriter, r *http.Request) {
	key, err := s.pathKey(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req rollbackRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Version <= 0 {
		s.writeError(w, r, badRequest("version must be positive"))
		return
	}
	snapshot, err := s.repo.GetHistoryByVersion(r.Context(), id, req.Version)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if snapshot.LookupKey != key {
		s.writeError(w, r, fmt.Errorf("%w: %s %s", repository.ErrNotFound, key, id))
		return
	}
	restored, err := s.repo.Rollback(r.Context(), id, req.Version)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.view(restored))
}

// exportResources handles GET /resources/{key}/export.{xlsx|csv}.
func (s *Server) exportResources(w http.ResponseWriter, r *http.Request) {
	key, err := s.pathKey(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	format, err := export.ParseFormat(mux.Vars(r)["format"])
	if err != nil {
		s.writeError(w, r, badRequest("%v", err))
		return
	}
	active, err := s.sessionFilters(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if _, err := s.export.Export(r.Context(), export.Request{LookupKey: key, Filters: active, Format: format}, &buf); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", export.Filename(key, format)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
