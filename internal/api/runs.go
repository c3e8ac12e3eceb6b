package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/raid-frame-finder/internal/engine"
	"github.com/MJE43/raid-frame-finder/internal/store"
)

// requireDB writes 503 when persistence is disabled
func (s *Server) requireDB(w http.ResponseWriter, r *http.Request) bool {
	if s.db != nil {
		return true
	}
	s.errorHandler.HandleError(w, r, NewError(ErrTypeServiceUnavailable, "persistence is disabled").
		WithRequestID(middleware.GetReqID(r.Context())).
		Build())
	return false
}

// queryInt reads an optional non-negative integer query parameter
func queryInt(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", errValidation, name)
	}
	return n, nil
}

// handleListRuns lists recorded runs, newest first
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w, r) {
		return
	}

	q := store.RunsQuery{Kind: r.URL.Query().Get("kind")}
	if q.Kind != "" && q.Kind != store.KindSearch && q.Kind != store.KindScan {
		s.errorHandler.HandleValidationError(w, r, "kind", fmt.Sprintf("unknown run kind %q", q.Kind))
		return
	}
	if v := r.URL.Query().Get("seed"); v != "" {
		seed, err := engine.ParseSeed(v)
		if err != nil {
			s.errorHandler.HandleError(w, r, err)
			return
		}
		q.Seed = seed.String()
	}

	species, err := queryInt(r, "species")
	if err == nil && species > 0xffff {
		err = fmt.Errorf("%w: species out of range", errValidation)
	}
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	q.Species = uint16(species)
	if q.Page, err = queryInt(r, "page"); err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	if q.PerPage, err = queryInt(r, "perPage"); err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}

	list, err := s.db.ListRuns(r.Context(), q)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

// handleGetRun returns one run
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w, r) {
		return
	}
	run, err := s.db.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, run)
}

// handleDeleteRun removes a run and its hits
func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w, r) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.db.DeleteRun(r.Context(), id); err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.audit.LogAuditEvent(middleware.GetReqID(r.Context()), "delete_run", "run", "success",
		map[string]interface{}{"run_id": id})
	w.WriteHeader(http.StatusNoContent)
}

// handleGetRunHits returns a page of a run's hits
func (s *Server) handleGetRunHits(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w, r) {
		return
	}
	page, err := queryInt(r, "page")
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	perPage, err := queryInt(r, "perPage")
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}

	hits, err := s.db.GetRunHits(r.Context(), chi.URLParam(r, "id"), page, perPage)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, hits)
}

// handleGetSetting returns a stored JSON setting
func (s *Server) handleGetSetting(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w, r) {
		return
	}
	setting, err := s.db.GetSetting(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, setting)
}

// handlePutSetting stores the request body as the setting's value
func (s *Server) handlePutSetting(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w, r) {
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.errorHandler.HandleValidationError(w, r, "body", err.Error())
		return
	}

	setting, err := s.db.PutSetting(r.Context(), chi.URLParam(r, "key"), json.RawMessage(body))
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.audit.LogAuditEvent(middleware.GetReqID(r.Context()), "put_setting", "setting", "success",
		map[string]interface{}{"key": setting.Key, "bytes": len(body)})
	s.writeJSON(w, http.StatusOK, setting)
}
