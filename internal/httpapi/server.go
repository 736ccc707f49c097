// Package httpapi serves resources, filter sessions and drafts over HTTP.
package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/rpattn/resourcekit/internal/coerce"
	"github.com/rpattn/resourcekit/internal/domain"
	"github.com/rpattn/resourcekit/internal/drafts"
	"github.com/rpattn/resourcekit/internal/export"
	"github.com/rpattn/resourcekit/internal/filters"
	"github.com/rpattn/resourcekit/internal/ingestion"
	"github.com/rpattn/resourcekit/internal/middleware"
	"github.com/rpattn/resourcekit/internal/notation"
	"github.com/rpattn/resourcekit/internal/repository"
	"github.com/rpattn/resourcekit/internal/sessions"
	"github.com/rpattn/resourcekit/pkg/validator"
)

// Dependencies are the services a Server routes to.
type Dependencies struct {
	Registry  *domain.Registry
	Repo      repository.ResourceRepository
	Filters   *filters.Engine
	Coerce    *coerce.Engine
	Validator *validator.FieldsValidator
	Sessions  *sessions.Store
	Drafts    *drafts.Service
	Export    *export.Service
	Importer  *ingestion.Service
	Logger    *zap.Logger
}

// Server represents the API server
type Server struct {
	registry  *domain.Registry
	repo      repository.ResourceRepository
	codec     *notation.Codec
	filters   *filters.Engine
	coerce    *coerce.Engine
	validator *validator.FieldsValidator
	sessions  *sessions.Store
	drafts    *drafts.Service
	export    *export.Service
	importer  *ingestion.Service
	logger    *zap.Logger
	router    *mux.Router
}

// NewServer creates a new API server
func NewServer(deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		registry:  deps.Registry,
		repo:      deps.Repo,
		codec:     notation.NewCodec(deps.Registry),
		filters:   deps.Filters,
		coerce:    deps.Coerce,
		validator: deps.Validator,
		sessions:  deps.Sessions,
		drafts:    deps.Drafts,
		export:    deps.Export,
		importer:  deps.Importer,
		logger:    logger.Named("http"),
		router:    mux.NewRouter(),
	}
	s.RegisterRoutes()
	return s
}

const idPattern = "{id:[0-9a-fA-F-]{36}}"

// RegisterRoutes registers all API routes
func (s *Server) RegisterRoutes() {
	r := s.router
	r.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	r.HandleFunc("/lookup-keys", s.listLookupKeys).Methods(http.MethodGet)
	r.HandleFunc("/filter-families", s.listFilterFamilies).Methods(http.MethodGet)
	r.HandleFunc("/convert", s.convert).Methods(http.MethodPost)

	res := r.PathPrefix("/resources/{key}").Subrouter()
	res.HandleFunc("", s.listResources).Methods(http.MethodGet)
	res.HandleFunc("", s.createResource).Methods(http.MethodPost)
	res.HandleFunc("/export.{format:xlsx|csv}", s.exportResources).Methods(http.MethodGet)
	res.HandleFunc("/import", s.importResources).Methods(http.MethodPost)
	res.HandleFunc("/"+idPattern, s.getResource).Methods(http.MethodGet)
	res.HandleFunc("/"+idPattern, s.patchResource).Methods(http.MethodPatch)
	res.HandleFunc("/"+idPattern, s.deleteResource).Methods(http.MethodDelete)
	res.HandleFunc("/"+idPattern+"/notation", s.notateResource).Methods(http.MethodGet)
	res.HandleFunc("/"+idPattern+"/history", s.listHistory).Methods(http.MethodGet)
	res.HandleFunc("/"+idPattern+"/history/{version:[0-9]+}", s.getHistoryVersion).Methods(http.MethodGet)
	res.HandleFunc("/"+idPattern+"/diff", s.diffResource).Methods(http.MethodGet)
	res.HandleFunc("/"+idPattern+"/rollback", s.rollbackResource).Methods(http.MethodPost)

	r.HandleFunc("/sessions", s.createSession).Methods(http.MethodPost)
	ses := r.PathPrefix("/sessions/" + idPattern).Subrouter()
	ses.HandleFunc("", s.getSession).Methods(http.MethodGet)
	ses.HandleFunc("", s.deleteSession).Methods(http.MethodDelete)
	ses.HandleFunc("/filters", s.clearAllFilters).Methods(http.MethodDelete)
	ses.HandleFunc("/filters/{key}", s.addFilter).Methods(http.MethodPost)
	ses.HandleFunc("/filters/{key}", s.clearFilters).Methods(http.MethodDelete)
	ses.HandleFunc("/filters/{key}/mode", s.setFilterMode).Methods(http.MethodPut)
	ses.HandleFunc("/filters/{key}/{index:[0-9]+}", s.removeFilter).Methods(http.MethodDelete)

	r.HandleFunc("/drafts", s.openDraft).Methods(http.MethodPost)
	dr := r.PathPrefix("/drafts/" + idPattern).Subrouter()
	dr.HandleFunc("", s.getDraft).Methods(http.MethodGet)
	dr.HandleFunc("", s.updateDraft).Methods(http.MethodPatch)
	dr.HandleFunc("", s.discardDraft).Methods(http.MethodDelete)
	dr.HandleFunc("/diff", s.diffDraft).Methods(http.MethodGet)
	dr.HandleFunc("/undo", s.undoDraft).Methods(http.MethodPost)
	dr.HandleFunc("/redo", s.redoDraft).Methods(http.MethodPost)
	dr.HandleFunc("/reset", s.resetDraft).Methods(http.MethodPost)
	dr.HandleFunc("/commit", s.commitDraft).Methods(http.MethodPost)
}

// Handler returns the HTTP handler for the API server. Each request gets
// its own family loader and may be scoped to a session by header.
func (s *Server) Handler() http.Handler {
	return middleware.SessionMiddleware(middleware.DataLoaderMiddleware(s.repo)(s.router))
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listLookupKeys(w http.ResponseWriter, r *http.Request) {
	keys := s.registry.LookupKeys()
	out := make([]domain.LookupDefinition, 0, len(keys))
	for _, key := range keys {
		def, _ := s.registry.Lookup(key)
		out = append(out, def)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"lookup_keys":  out,
		"autocomplete": s.registry.AutocompleteKeys(),
	})
}

type familyView struct {
	Name      domain.FamilyName      `json:"name"`
	AppliesTo []domain.FieldCategory `json:"applies_to"`
}

func (s *Server) listFilterFamilies(w http.ResponseWriter, r *http.Request) {
	families := s.filters.Families()
	if category := r.URL.Query().Get("category"); category != "" {
		writeJSON(w, http.StatusOK, families.For(domain.FieldCategory(category)))
		return
	}
	out := make([]familyView, 0)
	for _, family := range families.List() {
		out = append(out, familyView{Name: family.Name, AppliesTo: family.AppliesTo})
	}
	writeJSON(w, http.StatusOK, out)
}

type convertRequest struct {
	Value  domain.Notated `json:"value"`
	Target string         `json:"target"`
}

// convert handles POST /convert. value is a {type, value} pair.
func (s *Server) convert(w http.ResponseWriter, r *http.Request) {
	var req convertRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Target == "" {
		s.writeError(w, r, badRequest("target is required"))
		return
	}
	source := domain.Notated{Type: s.codec.ParseTypeName(string(req.Value.Type)), Value: req.Value.Value}
	writeJSON(w, http.StatusOK, s.coerce.Convert(source, domain.TypeName(req.Target)))
}
