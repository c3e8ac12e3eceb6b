package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/raid-frame-finder/internal/dens"
	"github.com/MJE43/raid-frame-finder/internal/engine"
	"github.com/MJE43/raid-frame-finder/internal/scan"
	"github.com/MJE43/raid-frame-finder/internal/scripting"
	"github.com/MJE43/raid-frame-finder/internal/store"
	"github.com/MJE43/raid-frame-finder/internal/worker"
)

const (
	defaultScanTimeoutMs = 60_000
	lastSearchKey        = "last_search"
	clientIDHeader       = "X-Client-ID"
)

// denSettings reads ?title= and ?badge=, defaulting to Sword and all levels
func denSettings(r *http.Request) (dens.Title, dens.BadgeLevel, error) {
	title, badge := dens.Sword, dens.BadgeAll
	var err error
	if v := r.URL.Query().Get("title"); v != "" {
		if title, err = dens.ParseTitle(v); err != nil {
			return "", "", err
		}
	}
	if v := r.URL.Query().Get("badge"); v != "" {
		if badge, err = dens.ParseBadgeLevel(v); err != nil {
			return "", "", err
		}
	}
	return title, badge, nil
}

func (s *Server) denView(id string, title dens.Title, badge dens.BadgeLevel) (DenView, error) {
	entries, err := s.dens.Entries(id, title, badge)
	if err != nil {
		return DenView{}, err
	}
	view := DenView{ID: id, Title: title, Badge: badge, Entries: make([]EntryView, 0, len(entries))}
	for i, e := range entries {
		lo, hi := e.StarRange()
		view.Entries = append(view.Entries, EntryView{
			Index:          i,
			Label:          s.dens.Label(e),
			Species:        e.Species,
			AltForm:        e.AltForm,
			MinFlawlessIVs: e.MinFlawlessIVs,
			AbilityPool:    e.AbilityPool,
			GenderPool:     e.GenderPool,
			IsGmax:         e.IsGmax,
			MinStars:       lo,
			MaxStars:       hi,
		})
	}
	return view, nil
}

// handleListDens returns every den's entries for a title and badge level
func (s *Server) handleListDens(w http.ResponseWriter, r *http.Request) {
	title, badge, err := denSettings(r)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}

	all := s.dens.List()
	response := DensResponse{Dens: make([]DenView, 0, len(all)), EngineVersion: EngineVersion}
	for _, d := range all {
		view, err := s.denView(d.ID, title, badge)
		if err != nil {
			s.errorHandler.HandleError(w, r, err)
			return
		}
		response.Dens = append(response.Dens, view)
	}

	s.writeJSON(w, http.StatusOK, response)
}

// handleGetDen returns one den's entries
func (s *Server) handleGetDen(w http.ResponseWriter, r *http.Request) {
	title, badge, err := denSettings(r)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	view, err := s.denView(chi.URLParam(r, "id"), title, badge)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

// handleFrames lists consecutive frames without filtering
func (s *Server) handleFrames(w http.ResponseWriter, r *http.Request) {
	var req FramesRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if err := ValidateFramesRequest(&req); err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	enc, err := s.resolveEncounter(req.Target)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	seed, err := engine.ParseSeed(req.Seed)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}

	gen := engine.NewFrameGeneratorAt(enc, seed, req.Skip)
	frames := make([]engine.Frame, req.Count)
	for i := range frames {
		frames[i] = gen.Next()
	}

	s.writeJSON(w, http.StatusOK, FramesResponse{
		Encounter:     enc,
		Frames:        frames,
		EngineVersion: EngineVersion,
		Echo:          req,
	})
}

// handleSearch finds the first matching frame within the search ceiling.
// A newer search from the same session supersedes this one; the stale
// request gets 409.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	enc, err := s.resolveEncounter(req.Target)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	seed, err := engine.ParseSeed(req.Seed)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	matcher, script, err := buildMatcher(enc, req.Filter, req.Script)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}

	if req.Session == "" {
		req.Session = r.Header.Get(clientIDHeader)
	}

	requestID := middleware.GetReqID(r.Context())
	resp, err := s.dispatcher.Do(r.Context(), worker.Request{
		Encounter: enc,
		Seed:      seed,
		Filter:    req.Filter,
		Session:   req.Session,
		Matcher:   matcher,
	})
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	if resp.Superseded {
		s.errorHandler.HandleError(w, r, NewError(ErrTypeSuperseded, "search superseded by a newer request").
			WithRequestID(requestID).
			WithContext("seq", resp.Seq).
			Build())
		return
	}
	if resp.Err != nil {
		if errors.Is(resp.Err, context.Canceled) {
			resp.Err = context.DeadlineExceeded
		}
		s.errorHandler.HandleError(w, r, resp.Err)
		return
	}

	res := resp.Result
	filterText := describe(req.Filter, script)
	s.audit.LogSearchOperation(requestID, enc, seed, filterText, script != nil, res.Found, res.Skips, res.Evaluated, resp.Elapsed)

	response := SearchResponse{
		Found:         res.Found,
		Skips:         res.Skips,
		Evaluated:     res.Evaluated,
		ElapsedMs:     resp.Elapsed.Milliseconds(),
		EngineVersion: EngineVersion,
		Echo:          req,
	}
	if res.Found {
		frame := res.Frame
		response.Frame = &frame
	} else {
		response.Message = scan.NotFoundMessage
	}
	if script != nil {
		if err := script.Err(); err != nil {
			response.ScriptError = err.Error()
		}
		for _, entry := range script.Logs() {
			response.ScriptLogs = append(response.ScriptLogs, entry.Message)
		}
	}

	var hits []scan.Hit
	if res.Found {
		hits = []scan.Hit{{Skips: res.Skips, Frame: res.Frame}}
	}
	skipEnd := uint64(0)
	if res.Evaluated > 0 {
		skipEnd = res.Evaluated - 1
	}
	response.RunID = s.recordRun(r.Context(), &store.Run{
		Kind:           store.KindSearch,
		SkipEnd:        skipEnd,
		HitLimit:       1,
		HitCount:       len(hits),
		TotalEvaluated: res.Evaluated,
	}, enc, seed, req.Filter, script, hits)
	s.rememberSearch(r.Context(), req)

	s.writeJSON(w, http.StatusOK, response)
}

// handleScan collects every match in a skip range using the worker pool
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if err := ValidateScanRequest(&req); err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	enc, err := s.resolveEncounter(req.Target)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	seed, err := engine.ParseSeed(req.Seed)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	matcher, script, err := buildMatcher(enc, req.Filter, req.Script)
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}
	if req.TimeoutMs == 0 {
		req.TimeoutMs = defaultScanTimeoutMs
	}

	start := time.Now()
	result, err := s.scanner.Scan(r.Context(), scan.ScanRequest{
		Encounter: enc,
		Seed:      seed,
		SkipStart: req.SkipStart,
		SkipEnd:   req.SkipEnd,
		Filter:    req.Filter,
		Limit:     req.Limit,
		TimeoutMs: req.TimeoutMs,
		Matcher:   matcher,
	})
	if err != nil {
		s.errorHandler.HandleError(w, r, err)
		return
	}

	requestID := middleware.GetReqID(r.Context())
	s.audit.LogScanOperation(requestID, enc, seed, req.SkipStart, req.SkipEnd, describe(req.Filter, script),
		result.Summary.HitsFound, result.Summary.TotalEvaluated, result.Summary.TimedOut, time.Since(start))

	limit := req.Limit
	if limit == 0 {
		limit = scan.DefaultHitLimit
	}
	runID := s.recordRun(r.Context(), &store.Run{
		Kind:           store.KindScan,
		SkipStart:      req.SkipStart,
		SkipEnd:        req.SkipEnd,
		HitLimit:       limit,
		HitCount:       int(result.Summary.HitsFound),
		TotalEvaluated: result.Summary.TotalEvaluated,
		TimedOut:       result.Summary.TimedOut,
		Truncated:      result.Summary.Truncated,
	}, enc, seed, req.Filter, script, result.Hits)

	s.writeJSON(w, http.StatusOK, ScanResponse{
		Hits:          result.Hits,
		Summary:       result.Summary,
		RunID:         runID,
		EngineVersion: EngineVersion,
		Echo:          req,
	})
}

// recordRun persists a finished run. Storage failures are logged and the
// caller still gets its result; the returned ID is empty in that case.
func (s *Server) recordRun(ctx context.Context, run *store.Run, enc engine.Encounter, seed engine.Seed,
	filter *scan.FrameFilter, script *scripting.Filter, hits []scan.Hit) string {
	if s.db == nil {
		return ""
	}

	run.Species = enc.Species
	run.AltForm = enc.AltForm
	run.Seed = seed.String()
	run.EngineVersion = scan.EngineVersion
	if script != nil {
		run.Script = script.Source()
	}

	var err error
	if run.Encounter, err = json.Marshal(enc); err != nil {
		s.logger.Printf("run_record_failed stage=encounter err=%v", err)
		return ""
	}
	if filter != nil {
		if run.Filter, err = json.Marshal(filter); err != nil {
			s.logger.Printf("run_record_failed stage=filter err=%v", err)
			return ""
		}
	}

	rows := make([]store.Hit, 0, len(hits))
	for _, h := range hits {
		frame, err := json.Marshal(h.Frame)
		if err != nil {
			s.logger.Printf("run_record_failed stage=hit skips=%d err=%v", h.Skips, err)
			return ""
		}
		rows = append(rows, store.Hit{Skips: h.Skips, Seed: h.Frame.Seed.String(), Frame: frame})
	}

	if err := s.db.SaveRun(ctx, run, rows); err != nil {
		s.logger.Printf("run_record_failed kind=%s seed=%s err=%v", run.Kind, run.Seed, err)
		return ""
	}
	return run.ID
}

// rememberSearch stores the request so a client can restore its last
// seed and filter on the next start.
func (s *Server) rememberSearch(ctx context.Context, req SearchRequest) {
	if s.db == nil {
		return
	}
	value, err := json.Marshal(req)
	if err != nil {
		s.logger.Printf("last_search_failed err=%v", err)
		return
	}
	if _, err := s.db.PutSetting(ctx, lastSearchKey, value); err != nil {
		s.logger.Printf("last_search_failed err=%v", err)
	}
}
