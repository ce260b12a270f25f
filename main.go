package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/orian/signalquery/clause"
	"github.com/orian/signalquery/models"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// facetSource provides autocomplete values for a data source.
type facetSource interface {
	Values(ctx context.Context, source models.DataSource) models.AutocompleteValues
}

// queryExecutor runs a compiled spec over a time range.
type queryExecutor interface {
	Execute(ctx context.Context, req *models.ExecuteRequest) (*models.ExecuteResult, error)
}

// pinger reports whether ClickHouse is reachable.
type pinger interface {
	Ping(ctx context.Context) error
}

// Server handles HTTP requests and coordinates between the clause and
// builder packages, the facet cache, the executor and storage.
type Server struct {
	storage  models.Storage
	facets   facetSource
	executor queryExecutor
	ch       pinger
	log      logrus.FieldLogger
}

func NewServer(storage models.Storage, facets facetSource, executor queryExecutor, ch pinger, log logrus.FieldLogger) *Server {
	return &Server{
		storage:  storage,
		facets:   facets,
		executor: executor,
		ch:       ch,
		log:      log.WithField("component", "server"),
	}
}

// Routes builds the HTTP handler. Static files are served from staticDir
// when it is set.
func (s *Server) Routes(staticDir string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		// Autocomplete
		r.Post("/clause/suggest", s.handleSuggest)
		r.Post("/clause/apply", s.handleApply)
		r.Get("/facets/{source}", s.handleGetFacets)

		// Builder
		r.Get("/drafts/defaults/{source}", s.handleDefaultDraft)
		r.Post("/query/build", s.handleBuild)
		r.Post("/query/execute", s.handleExecute)

		// Saved queries
		r.Get("/queries", s.handleListQueries)
		r.Post("/queries", s.handleSaveQuery)
		r.Route("/queries/{queryId}", func(r chi.Router) {
			r.Get("/", s.handleGetQuery)
			r.Get("/tags", s.handleGetQueryTags)
			r.Post("/tags", s.handleAddTag)
			r.Post("/star", s.handleToggleStar)
		})

		// Tag deletion
		r.Delete("/tags/{tagId}", s.handleDeleteTag)

		r.Get("/server/ping", s.handlePing)
	})

	r.Handle("/metrics", promhttp.Handler())

	if staticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(staticDir)))
	}

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Clause         string `json:"clause"`
		Cursor         int    `json:"cursor"`
		DataSource     string `json:"dataSource"`
		MaxSuggestions int    `json:"maxSuggestions,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	source, err := models.ParseDataSource(req.DataSource)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	max := req.MaxSuggestions
	if max <= 0 {
		max = clause.DefaultMaxSuggestions
	}

	ctx := clause.ResolveContext(req.Clause, req.Cursor)

	// Only value suggestions draw on facets.
	var values models.AutocompleteValues
	if ctx.Context == models.ContextValue {
		values = s.facets.Values(r.Context(), source)
	}

	completion := clause.Completion{
		Context:     ctx,
		Suggestions: clause.BuildSuggestions(ctx, source, values, max),
	}
	SuggestionsTotal.WithLabelValues(string(source), string(completion.Context.Context)).Inc()

	writeJSON(w, http.StatusOK, completion)
}

func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Clause     string            `json:"clause"`
		Cursor     int               `json:"cursor"`
		Suggestion models.Suggestion `json:"suggestion"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := clause.ResolveContext(req.Clause, req.Cursor)
	if req.Suggestion.Kind != "" && req.Suggestion.Kind != ctx.Context {
		http.Error(w, "suggestion kind "+string(req.Suggestion.Kind)+" does not match context "+string(ctx.Context), http.StatusConflict)
		return
	}

	writeJSON(w, http.StatusOK, clause.Apply(req.Clause, ctx, req.Suggestion))
}

func (s *Server) handleGetFacets(w http.ResponseWriter, r *http.Request) {
	source, err := models.ParseDataSource(chi.URLParam(r, "source"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, s.facets.Values(r.Context(), source))
}

func (s *Server) handleDefaultDraft(w http.ResponseWriter, r *http.Request) {
	source, err := models.ParseDataSource(chi.URLParam(r, "source"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		name = "A"
	}

	writeJSON(w, http.StatusOK, models.DefaultDraft(name, source))
}

func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode   string              `json:"mode"`
		Drafts []models.QueryDraft `json:"drafts"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	mode, err := models.ParseSpecMode(req.Mode)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"mode":    mode,
		"results": buildQuerySet(req.Drafts, mode),
	})
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode  string            `json:"mode"`
		Draft models.QueryDraft `json:"draft"`
		Start string            `json:"start"`
		End   string            `json:"end"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	mode, err := models.ParseSpecMode(req.Mode)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	start, err := models.ParseWireTime(req.Start)
	if err != nil {
		http.Error(w, "invalid start time: "+err.Error(), http.StatusBadRequest)
		return
	}
	end, err := models.ParseWireTime(req.End)
	if err != nil {
		http.Error(w, "invalid end time: "+err.Error(), http.StatusBadRequest)
		return
	}

	spec, rejection, err := compileDraft(req.Draft, mode)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if rejection != "" {
		http.Error(w, rejection, http.StatusUnprocessableEntity)
		return
	}

	execReq, err := models.NewExecuteRequest(spec, start, end)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := s.executor.Execute(r.Context(), execReq)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, ErrExecutorDisabled) {
			status = http.StatusServiceUnavailable
		}
		s.log.WithError(err).WithFields(logrus.Fields{
			"source": spec.Source(),
			"mode":   spec.Kind(),
		}).Warn("Query execution failed")
		http.Error(w, err.Error(), status)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"spec":   spec,
		"result": result,
	})
}

func (s *Server) handleListQueries(w http.ResponseWriter, r *http.Request) {
	var (
		queries []*models.SavedQuery
		err     error
	)
	if tag := r.URL.Query().Get("tag"); tag != "" {
		queries, err = s.storage.GetQueriesByTag(tag)
	} else {
		queries, err = s.storage.ListQueries()
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, queries)
}

func (s *Server) handleSaveQuery(w http.ResponseWriter, r *http.Request) {
	var req SaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	mode, err := models.ParseSpecMode(req.Mode)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	draftHash := hashDraft(&req, mode)
	if existing, ok := checkCachedQuery(s.storage, draftHash, s.log); ok {
		writeJSON(w, http.StatusOK, buildSaveResponse(existing, true))
		return
	}

	spec, rejection, err := compileDraft(req.Draft, mode)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	query := createSavedQuery(&req, mode, draftHash, spec, rejection)
	if err := s.storage.SaveQuery(query); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.log.WithFields(logrus.Fields{
		"query_id": query.ID,
		"rejected": rejection != "",
	}).Info("Saved query")

	writeJSON(w, http.StatusOK, buildSaveResponse(query, false))
}

func (s *Server) handleGetQuery(w http.ResponseWriter, r *http.Request) {
	query, ok := s.storage.GetQuery(chi.URLParam(r, "queryId"))
	if !ok {
		http.Error(w, "query not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, query)
}

func (s *Server) handleGetQueryTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.storage.GetQueryTags(chi.URLParam(r, "queryId"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, tags)
}

func (s *Server) handleAddTag(w http.ResponseWriter, r *http.Request) {
	queryID := chi.URLParam(r, "queryId")

	var req struct {
		Tag string `json:"tag"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	tag, err := s.storage.AddTag(queryID, req.Tag)
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	case errors.Is(err, ErrTagExists):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, tag)
}

func (s *Server) handleDeleteTag(w http.ResponseWriter, r *http.Request) {
	tagID := chi.URLParam(r, "tagId")

	if err := s.storage.RemoveTag(tagID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleToggleStar(w http.ResponseWriter, r *http.Request) {
	isStarred, err := s.storage.ToggleStarred(chi.URLParam(r, "queryId"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"starred": isStarred})
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := map[string]any{
		"timestamp": time.Now().Unix(),
	}

	var err error
	if s.ch == nil {
		err = errors.New("clickhouse not configured")
	} else {
		err = s.ch.Ping(ctx)
	}

	response["connected"] = err == nil
	if err != nil {
		response["error"] = err.Error()
		s.log.WithError(err).Warn("ClickHouse ping failed")
	}

	writeJSON(w, http.StatusOK, response)
}

func maskPassword(password string) string {
	if len(password) == 0 {
		return "<empty>"
	}
	if len(password) <= 2 {
		return password
	}
	return string(password[0]) + strings.Repeat("*", len(password)-2) + string(password[len(password)-1])
}

func main() {
	Execute()
}
