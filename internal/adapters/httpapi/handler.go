// Package httpapi exposes the registry service as a JSON HTTP API.
package httpapi

import (
	"caseledger/internal/core"
	"caseledger/internal/report"
	"caseledger/pkg/domain"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Registry is the subset of the registry service the API serves.
type Registry interface {
	CreateTestCase(ctx context.Context, tc domain.TestCase) (domain.TestCase, domain.Result, error)
	GetTestCase(ctx context.Context, id string) (domain.TestCase, error)
	UpdateTestCase(ctx context.Context, id string, patch domain.Patch) (domain.TestCase, domain.Result, error)
	ListTestCases(ctx context.Context, filter domain.Filter) (iter.Seq[domain.TestCase], error)
	ArchiveTestCase(ctx context.Context, id, reason string) (domain.ArchivedRecord, domain.Result, error)
	RecordExecution(ctx context.Context, id string, status domain.Status, actualResult, testedBy string) (domain.TestCase, domain.Result, error)
	Summary(ctx context.Context, filter domain.Filter) (domain.Summary, error)
	Revisions(ctx context.Context, id string) ([]domain.Revision, error)
	ListArchived(ctx context.Context) ([]domain.ArchivedRecord, error)
}

var _ Registry = (*core.Service)(nil)

// Handler routes API requests to the registry and, when configured, to the
// report publisher and a metrics handler.
type Handler struct {
	Registry Registry
	Reports  *report.Publisher
	Metrics  http.Handler
	Logger   core.Logger
	router   *mux.Router
}

// Option configures a Handler.
type Option func(*Handler)

// WithReports enables the /api/v1/reports endpoints.
func WithReports(p *report.Publisher) Option {
	return func(h *Handler) { h.Reports = p }
}

// WithMetrics mounts handler at /metrics.
func WithMetrics(handler http.Handler) Option {
	return func(h *Handler) { h.Metrics = handler }
}

// WithLogger sets the logger used for server-side failures.
func WithLogger(logger core.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.Logger = logger
		}
	}
}

// NewHandler builds the API router over registry.
func NewHandler(registry Registry, opts ...Option) *Handler {
	h := &Handler{Registry: registry, Logger: nopLogger{}}
	for _, opt := range opts {
		opt(h)
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.handleHealth).Methods(http.MethodGet)
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/testcases", h.handleList).Methods(http.MethodGet)
	api.HandleFunc("/testcases", h.handleCreate).Methods(http.MethodPost)
	api.HandleFunc("/testcases/{id}", h.handleGet).Methods(http.MethodGet)
	api.HandleFunc("/testcases/{id}", h.handleUpdate).Methods(http.MethodPatch)
	api.HandleFunc("/testcases/{id}/archive", h.handleArchive).Methods(http.MethodPost)
	api.HandleFunc("/testcases/{id}/executions", h.handleExecution).Methods(http.MethodPost)
	api.HandleFunc("/testcases/{id}/revisions", h.handleRevisions).Methods(http.MethodGet)
	api.HandleFunc("/archive", h.handleArchived).Methods(http.MethodGet)
	api.HandleFunc("/summary", h.handleSummary).Methods(http.MethodGet)
	if h.Reports != nil {
		api.HandleFunc("/reports", h.handleReportCreate).Methods(http.MethodPost)
		api.HandleFunc("/reports", h.handleReportList).Methods(http.MethodGet)
		api.HandleFunc("/reports/{id}", h.handleReportGet).Methods(http.MethodGet)
	}
	if h.Metrics != nil {
		r.Handle("/metrics", h.Metrics).Methods(http.MethodGet)
	}
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "endpoint not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	h.router = r
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

type violationView struct {
	Rule     string `json:"rule"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	ID       string `json:"id,omitempty"`
}

func warnings(res domain.Result) []violationView {
	ws := res.Warnings()
	if len(ws) == 0 {
		return nil
	}
	out := make([]violationView, len(ws))
	for i, v := range ws {
		out[i] = violationView{Rule: v.Rule, Severity: string(v.Severity), Message: v.Message, ID: v.EntityID}
	}
	return out
}

type recordResponse struct {
	TestCase domain.TestCase `json:"testCase"`
	Warnings []violationView `json:"warnings,omitempty"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var tc domain.TestCase
	if !h.decode(w, r, &tc) {
		return
	}
	created, res, err := h.Registry.CreateTestCase(r.Context(), tc)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/testcases/"+created.ID)
	writeJSON(w, http.StatusCreated, recordResponse{TestCase: created, Warnings: warnings(res)})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	tc, err := h.Registry.GetTestCase(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recordResponse{TestCase: tc})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var patch domain.Patch
	if !h.decode(w, r, &patch) {
		return
	}
	updated, res, err := h.Registry.UpdateTestCase(r.Context(), mux.Vars(r)["id"], patch)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recordResponse{TestCase: updated, Warnings: warnings(res)})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter, err := FilterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	seq, err := h.Registry.ListTestCases(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	records := []domain.TestCase{}
	for tc := range seq {
		records = append(records, tc)
	}
	writeJSON(w, http.StatusOK, map[string]any{"testCases": records, "count": len(records)})
}

type archiveRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleArchive(w http.ResponseWriter, r *http.Request) {
	var req archiveRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	archived, _, err := h.Registry.ArchiveTestCase(r.Context(), mux.Vars(r)["id"], req.Reason)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"archived": archived})
}

type executionRequest struct {
	Status       string `json:"status"`
	ActualResult string `json:"actualResult"`
	TestedBy     string `json:"testedBy"`
}

func (h *Handler) handleExecution(w http.ResponseWriter, r *http.Request) {
	var req executionRequest
	if !h.decode(w, r, &req) {
		return
	}
	status, err := domain.ParseStatus(req.Status)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	updated, res, err := h.Registry.RecordExecution(r.Context(), mux.Vars(r)["id"], status, req.ActualResult, req.TestedBy)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, recordResponse{TestCase: updated, Warnings: warnings(res)})
}

func (h *Handler) handleRevisions(w http.ResponseWriter, r *http.Request) {
	revs, err := h.Registry.Revisions(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if revs == nil {
		revs = []domain.Revision{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"revisions": revs})
}

func (h *Handler) handleArchived(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Registry.ListArchived(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if entries == nil {
		entries = []domain.ArchivedRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"archived": entries})
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	filter, err := FilterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	summary, err := h.Registry.Summary(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summary": summary})
}

type reportRequest struct {
	Formats     []string `json:"formats"`
	Statuses    []string `json:"statuses"`
	Title       string   `json:"title"`
	Sort        string   `json:"sort"`
	Descending  bool     `json:"descending"`
	RequestedBy string   `json:"requestedBy"`
	Async       bool     `json:"async"`
}

func (h *Handler) handleReportCreate(w http.ResponseWriter, r *http.Request) {
	var body reportRequest
	if r.ContentLength != 0 && !h.decode(w, r, &body) {
		return
	}
	filter, err := buildFilter(body.Statuses, body.Title, body.Sort, body.Descending)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req := report.Request{Filter: filter, RequestedBy: body.RequestedBy}
	for _, raw := range body.Formats {
		f, err := report.ParseFormat(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		req.Formats = append(req.Formats, f)
	}

	if body.Async {
		job, err := h.Reports.Enqueue(r.Context(), req)
		switch {
		case errors.Is(err, report.ErrQueueFull):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		case err != nil:
			h.writeServiceError(w, err)
		default:
			w.Header().Set("Location", "/api/v1/reports/"+job.ID)
			writeJSON(w, http.StatusAccepted, map[string]any{"job": job})
		}
		return
	}
	job, err := h.Reports.Publish(r.Context(), req)
	if err != nil {
		if job.ID == "" {
			h.writeServiceError(w, err)
			return
		}
		h.Logger.Error("report publish failed", "job", job.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"job": job, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"job": job})
}

func (h *Handler) handleReportGet(w http.ResponseWriter, r *http.Request) {
	job, ok := h.Reports.Job(mux.Vars(r)["id"])
	if !ok {
		writeError(w, http.StatusNotFound, "report job not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

func (h *Handler) handleReportList(w http.ResponseWriter, r *http.Request) {
	items, err := h.Reports.Published(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": items})
}

// FilterFromQuery builds a filter from status, title, sort and order query
// parameters. status may repeat or hold a comma separated list.
func FilterFromQuery(r *http.Request) (domain.Filter, error) {
	q := r.URL.Query()
	var statuses []string
	for _, v := range q["status"] {
		statuses = append(statuses, strings.Split(v, ",")...)
	}
	desc := false
	switch order := strings.ToLower(q.Get("order")); order {
	case "", "asc":
	case "desc":
		desc = true
	default:
		return domain.Filter{}, fmt.Errorf("unknown order %q", order)
	}
	return buildFilter(statuses, q.Get("title"), q.Get("sort"), desc)
}

func buildFilter(statuses []string, title, sortBy string, desc bool) (domain.Filter, error) {
	filter := domain.Filter{TitleContains: strings.TrimSpace(title), Descending: desc}
	for _, raw := range statuses {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		st, err := domain.ParseStatus(raw)
		if err != nil {
			return domain.Filter{}, err
		}
		filter.Statuses = append(filter.Statuses, st)
	}
	key, err := domain.ParseSortKey(sortBy)
	if err != nil {
		return domain.Filter{}, err
	}
	filter.SortBy = key
	return filter, nil
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, domain.ErrInvalidStatus) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

// StatusFor maps a registry error to an HTTP status code.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateID):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrInvalidStatus):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		h.Logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
