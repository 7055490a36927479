// Package api serves the registry over HTTP/JSON. Every handler holds the
// server mutex for its whole duration, so requests see and mutate the
// registry one at a time.
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/banshee-data/colour.registry/internal/anchor"
	"github.com/banshee-data/colour.registry/internal/colour"
	"github.com/banshee-data/colour.registry/internal/db"
	"github.com/banshee-data/colour.registry/internal/httputil"
	"github.com/banshee-data/colour.registry/internal/matching"
	"github.com/banshee-data/colour.registry/internal/monitoring"
	"github.com/banshee-data/colour.registry/internal/registrystore"
)

// ANSI escape codes for the request log
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

const maxBodyBytes = 1 << 20

type Server struct {
	mu      sync.Mutex
	reg     *anchor.Registry
	matcher *matching.Matcher
	store   *registrystore.Store
	samples *db.DB
	params  anchor.CalibrateParams
}

// NewServer wires the handlers to matcher's registry. store and samples may
// be nil, which disables /api/save and the sample log routes.
func NewServer(matcher *matching.Matcher, store *registrystore.Store, samples *db.DB, params anchor.CalibrateParams) *Server {
	return &Server{
		reg:     matcher.Registry(),
		matcher: matcher,
		store:   store,
		samples: samples,
		params:  params,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/anchors", s.locked(s.listAnchors))
	mux.HandleFunc("/api/anchors/{id}", s.locked(s.showAnchor))
	mux.HandleFunc("/api/anchors/{id}/reset", s.locked(s.resetAnchor))
	mux.HandleFunc("/api/match", s.locked(s.match))
	mux.HandleFunc("/api/ingest", s.locked(s.ingest))
	mux.HandleFunc("/api/calibrate", s.locked(s.calibrate))
	mux.HandleFunc("/api/save", s.locked(s.save))
	mux.HandleFunc("/api/violations", s.locked(s.violations))
	mux.HandleFunc("/api/samples", s.locked(s.recentSamples))
	mux.HandleFunc("/api/charts/anchors", s.locked(s.anchorChart))
	return mux
}

func (s *Server) locked(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		h(w, r)
	}
}

// AnchorView is the JSON shape of one anchor.
type AnchorView struct {
	ColorID         int              `json:"color_id"`
	ColorName       string           `json:"color_name"`
	ResetCenter     colour.Vec       `json:"reset_center"`
	AnchorCenter    colour.Vec       `json:"anchor_center"`
	DriftCenter     colour.Vec       `json:"drift_center"`
	MaxDrift        float64          `json:"max_drift"`
	Tolerance       anchor.Tolerance `json:"tolerance"`
	EdgeRatio       float64          `json:"edge_ratio"`
	ConfidenceAvg   *float64         `json:"confidence_avg"`
	LastDriftVector colour.Vec       `json:"last_drift_vector"`
	DriftLocked     bool             `json:"drift_locked"`
	DriftMagnitude  float64          `json:"drift_magnitude"`
	SampleCount     int              `json:"sample_count"`
}

func viewOf(a *anchor.Anchor) AnchorView {
	return AnchorView{
		ColorID:         a.ID,
		ColorName:       a.Name,
		ResetCenter:     a.ResetCenter,
		AnchorCenter:    a.AnchorCenter,
		DriftCenter:     a.DriftCenter,
		MaxDrift:        a.MaxDrift,
		Tolerance:       a.Tolerance,
		EdgeRatio:       a.EdgeRatio,
		ConfidenceAvg:   a.ConfidenceAvg,
		LastDriftVector: a.LastDriftVector,
		DriftLocked:     a.DriftLocked,
		DriftMagnitude:  a.DriftMagnitude(),
		SampleCount:     a.SampleCount(),
	}
}

func (s *Server) listAnchors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	anchors := s.reg.Anchors()
	views := make([]AnchorView, len(anchors))
	for i, a := range anchors {
		views[i] = viewOf(a)
	}
	httputil.WriteJSONOK(w, views)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*anchor.Anchor, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid anchor id %q", r.PathValue("id")))
		return nil, false
	}
	a, ok := s.reg.Get(id)
	if !ok {
		httputil.NotFound(w, fmt.Sprintf("unknown anchor %d", id))
		return nil, false
	}
	return a, true
}

func (s *Server) showAnchor(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if a, ok := s.lookup(w, r); ok {
		httputil.WriteJSONOK(w, viewOf(a))
	}
}

func (s *Server) resetAnchor(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	a, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if a.DriftLocked {
		httputil.Conflict(w, fmt.Sprintf("anchor %d is drift locked", a.ID))
		return
	}
	a.Reset()
	httputil.WriteJSONOK(w, viewOf(a))
}

func readSamples(r *http.Request) ([]colour.Sample, bool, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, false, err
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, false, errors.New("empty body")
	}
	if body[0] == '[' {
		var samples []colour.Sample
		if err := json.Unmarshal(body, &samples); err != nil {
			return nil, true, err
		}
		return samples, true, nil
	}
	var sample colour.Sample
	if err := json.Unmarshal(body, &sample); err != nil {
		return nil, false, err
	}
	return []colour.Sample{sample}, false, nil
}

func (s *Server) match(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	samples, batch, err := readSamples(r)
	if err != nil || batch {
		httputil.BadRequest(w, "body must be a single sample {h, s, v, source}")
		return
	}
	httputil.WriteJSONOK(w, s.matcher.Match(samples[0]))
}

func (s *Server) ingest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	samples, batch, err := readSamples(r)
	if err != nil {
		httputil.BadRequest(w, fmt.Sprintf("invalid sample body: %v", err))
		return
	}
	outcomes := s.matcher.IngestAll(samples)
	if batch {
		httputil.WriteJSONOK(w, outcomes)
		return
	}
	httputil.WriteJSONOK(w, outcomes[0])
}

// calibrateRequest overrides individual relaxation parameters.
type calibrateRequest struct {
	Threshold *float64 `json:"threshold"`
	MaxPasses *int     `json:"max_passes"`
	Dampener  *float64 `json:"dampener"`
}

func (s *Server) calibrate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	p := s.params
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		httputil.BadRequest(w, "failed to read body")
		return
	}
	if len(bytes.TrimSpace(body)) > 0 {
		var req calibrateRequest
		if err := json.Unmarshal(body, &req); err != nil {
			httputil.BadRequest(w, fmt.Sprintf("invalid calibrate body: %v", err))
			return
		}
		if req.Threshold != nil {
			p.Threshold = *req.Threshold
		}
		if req.MaxPasses != nil {
			p.MaxPasses = *req.MaxPasses
		}
		if req.Dampener != nil {
			p.Dampener = *req.Dampener
		}
	}
	if err := p.Validate(); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	report := s.reg.Calibrate(p)
	if s.samples != nil {
		if _, err := s.samples.RecordCalibration(report); err != nil {
			monitoring.Logf("failed to log calibration run: %v", err)
		}
	}
	httputil.WriteJSONOK(w, report)
}

func (s *Server) save(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.store == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no registry store configured")
		return
	}
	backup, err := s.store.Save(s.reg)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]string{"path": s.store.Path, "backup": backup})
}

func (s *Server) violations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	v := s.reg.Violations()
	if v == nil {
		v = []anchor.Violation{}
	}
	httputil.WriteJSONOK(w, v)
}

func (s *Server) recentSamples(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.samples == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no sample log configured")
		return
	}
	colorID, limit := -1, 100
	if v := r.URL.Query().Get("color_id"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil || id < 0 {
			httputil.BadRequest(w, "invalid 'color_id' parameter")
			return
		}
		colorID = id
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			httputil.BadRequest(w, "invalid 'limit' parameter")
			return
		}
		limit = n
	}
	records, err := s.samples.RecentSamples(colorID, limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to read samples: %v", err))
		return
	}
	if records == nil {
		records = []db.SampleRecord{}
	}
	httputil.WriteJSONOK(w, records)
}
