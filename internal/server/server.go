// Package server exposes enrichment and evaluation over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/bom-cli/internal/bom"
	"github.com/sells-group/bom-cli/internal/model"
	"github.com/sells-group/bom-cli/internal/store"
	"github.com/sells-group/bom-cli/internal/table"
)

// maxBodyBytes caps request bodies, uploads included.
const maxBodyBytes = 32 << 20

// Enricher runs batches. *bom.Orchestrator satisfies it.
type Enricher interface {
	Run(ctx context.Context, jobID string, rows []model.RawRow) (*model.Job, error)
	RunBatch(ctx context.Context, jobID string, rows []model.RawRow, mapping model.ColumnMapping) (*model.Job, error)
}

// Evaluator judges alternatives. *bom.Evaluator satisfies it.
type Evaluator interface {
	Evaluate(ctx context.Context, jobID, originalMPN, candidateMPN string, assumptions model.Assumptions) model.EvaluationVerdict
	EvaluateAll(ctx context.Context, jobID, originalMPN string, assumptions model.Assumptions) []model.EvaluationVerdict
	EvaluatePart(ctx context.Context, jobID, mpn string, assumptions model.Assumptions) model.EvaluationVerdict
	Recommend(ctx context.Context, jobID, mpn string, assumptions model.Assumptions) (string, error)
}

// Questioner drafts setup questions. *inference.Service satisfies it.
type Questioner interface {
	GenerateQuestions(ctx context.Context, sample []model.RawRow) ([]string, error)
}

// Deps are the collaborators behind the API.
type Deps struct {
	Enricher   Enricher
	Jobs       store.Store
	Evaluator  Evaluator
	Questioner Questioner
	HeadRows   int
}

// Server is the HTTP API.
type Server struct {
	deps Deps
}

// New creates a Server.
func New(deps Deps) *Server {
	if deps.HeadRows <= 0 {
		deps.HeadRows = 10
	}
	return &Server{deps: deps}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/questions", s.handleQuestions)
	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", s.handleListJobs)
		r.Post("/", s.handleCreateJob)
		r.Post("/upload", s.handleUpload)
		r.Route("/{jobID}", func(r chi.Router) {
			r.Get("/", s.handleGetJob)
			r.Delete("/", s.handleDeleteJob)
			r.Post("/evaluate", s.handleEvaluate)
			r.Post("/evaluate-part", s.handleEvaluatePart)
			r.Post("/recommend", s.handleRecommend)
		})
	})
	return r
}

// tableRequest carries rows as a header plus positional values.
type tableRequest struct {
	Header []string `json:"header"`
	Rows   [][]any  `json:"rows"`
}

func (t tableRequest) rawRows() []model.RawRow {
	rows := make([]model.RawRow, len(t.Rows))
	for i, values := range t.Rows {
		rows[i] = model.NewRawRow(i+1, t.Header, values)
	}
	return rows
}

type createJobRequest struct {
	tableRequest
	JobID   string               `json:"job_id"`
	Mapping *model.ColumnMapping `json:"mapping"`
}

type jobResponse struct {
	JobID   string              `json:"job_id"`
	Summary model.BatchSummary  `json:"summary"`
	Mapping model.ColumnMapping `json:"column_mapping"`
	Results []model.RowResult   `json:"results"`
}

func newJobResponse(job *model.Job) jobResponse {
	return jobResponse{JobID: job.ID, Summary: job.Summary(), Mapping: job.Mapping, Results: job.Results}
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Header) == 0 || len(req.Rows) == 0 {
		writeError(w, http.StatusBadRequest, "header and rows are required")
		return
	}
	s.runJob(w, r, req.JobID, req.rawRows(), req.Mapping)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close() //nolint:errcheck

	tbl, err := table.Parse(r.Context(), hdr.Filename, file)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(tbl.Rows) == 0 {
		writeError(w, http.StatusBadRequest, "file has no data rows")
		return
	}
	s.runJob(w, r, r.FormValue("job_id"), tbl.Rows, nil)
}

func (s *Server) runJob(w http.ResponseWriter, r *http.Request, jobID string, rows []model.RawRow, mapping *model.ColumnMapping) {
	var (
		job *model.Job
		err error
	)
	if mapping != nil {
		job, err = s.deps.Enricher.RunBatch(r.Context(), jobID, rows, *mapping)
	} else {
		job, err = s.deps.Enricher.Run(r.Context(), jobID, rows)
	}
	switch {
	case job == nil && err != nil:
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case err != nil:
		// The batch ran but could not be stored.
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, newJobResponse(job))
	}
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	filter := store.JobFilter{
		Limit:  queryInt(r, "limit"),
		Offset: queryInt(r, "offset"),
	}
	if since := r.URL.Query().Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC 3339")
			return
		}
		filter.Since = t
	}
	infos, err := s.deps.Jobs.ListJobs(r.Context(), filter)
	if err != nil {
		zap.L().Error("server: list jobs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not list jobs")
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	job, err := s.deps.Jobs.GetJob(r.Context(), id)
	if err != nil {
		zap.L().Error("server: get job", zap.String("job_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not load job")
		return
	}
	if job == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, newJobResponse(job))
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	job, err := s.deps.Jobs.GetJob(r.Context(), id)
	if err == nil && job == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err == nil {
		err = s.deps.Jobs.DeleteJob(r.Context(), id)
	}
	if err != nil {
		zap.L().Error("server: delete job", zap.String("job_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not delete job")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type evaluateRequest struct {
	MPN         string            `json:"mpn"`
	Candidate   string            `json:"candidate"`
	Assumptions model.Assumptions `json:"assumptions"`
}

func (s *Server) decodeEvaluate(w http.ResponseWriter, r *http.Request) (evaluateRequest, bool) {
	var req evaluateRequest
	if !decode(w, r, &req) {
		return req, false
	}
	if req.MPN == "" {
		writeError(w, http.StatusBadRequest, "mpn is required")
		return req, false
	}
	return req, true
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeEvaluate(w, r)
	if !ok {
		return
	}
	jobID := chi.URLParam(r, "jobID")
	if req.Candidate != "" {
		writeJSON(w, http.StatusOK, s.deps.Evaluator.Evaluate(r.Context(), jobID, req.MPN, req.Candidate, req.Assumptions))
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Evaluator.EvaluateAll(r.Context(), jobID, req.MPN, req.Assumptions))
}

func (s *Server) handleEvaluatePart(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeEvaluate(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Evaluator.EvaluatePart(r.Context(), chi.URLParam(r, "jobID"), req.MPN, req.Assumptions))
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeEvaluate(w, r)
	if !ok {
		return
	}
	report, err := s.deps.Evaluator.Recommend(r.Context(), chi.URLParam(r, "jobID"), req.MPN, req.Assumptions)
	if errors.Is(err, bom.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		zap.L().Error("server: recommend", zap.String("mpn", req.MPN), zap.Error(err))
		writeError(w, http.StatusBadGateway, "recommendation failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"mpn": req.MPN, "report": report})
}

func (s *Server) handleQuestions(w http.ResponseWriter, r *http.Request) {
	var req tableRequest
	if !decode(w, r, &req) {
		return
	}
	rows := req.rawRows()
	if len(rows) > s.deps.HeadRows {
		rows = rows[:s.deps.HeadRows]
	}
	questions, err := s.deps.Questioner.GenerateQuestions(r.Context(), rows)
	if err != nil {
		zap.L().Error("server: generate questions", zap.Error(err))
		writeError(w, http.StatusBadGateway, "could not generate questions")
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"questions": questions})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("server: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
