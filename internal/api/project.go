package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"git.home.luguber.info/inful/previewer/internal/build"
	"git.home.luguber.info/inful/previewer/internal/dispatch"
	"git.home.luguber.info/inful/previewer/internal/eventstore"
	ferrors "git.home.luguber.info/inful/previewer/internal/foundation/errors"
	"git.home.luguber.info/inful/previewer/internal/observability"
)

// TraceHeader carries a caller supplied trace id.
const TraceHeader = "X-Trace-Id"

const maxBodyBytes = 64 << 10

// handleCreateProject accepts {gitURL, slug?} and answers once the worker
// launch is acknowledged.
func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req build.BuildRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.adapter.WriteErrorResponse(w, r,
			ferrors.WrapError(err, ferrors.CategoryValidation, "invalid request body").Build())
		return
	}
	req.TraceID = r.Header.Get(TraceHeader)

	sub, err := s.submitter.SubmitBuild(r.Context(), req)
	if err != nil {
		s.adapter.WriteErrorResponse(w, r, err)
		return
	}
	s.Success(w, http.StatusOK, "queued", sub)
}

// handleListBuilds returns the dispatch history of one project.
func (s *Server) handleListBuilds(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		s.adapter.WriteErrorResponse(w, r, ferrors.NotFoundError("build history is disabled").Build())
		return
	}
	slug := chi.URLParam(r, "slug")
	if !dispatch.ValidSlug(slug) {
		s.adapter.WriteErrorResponse(w, r, ferrors.ValidationError("invalid project slug").Build())
		return
	}
	r = r.WithContext(observability.WithProjectID(r.Context(), slug))
	history, err := eventstore.History(r.Context(), s.ledger, slug)
	if err != nil {
		s.adapter.WriteErrorResponse(w, r, err)
		return
	}
	s.Success(w, http.StatusOK, "ok", history)
}
