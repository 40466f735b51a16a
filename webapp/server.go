// Package webapp serves the HTML form front end for single predictions.
package webapp

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"churnpredict/ml"
	"churnpredict/monitoring"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// PredictionLog persists form predictions.
type PredictionLog interface {
	SavePrediction(ctx context.Context, features []float64, prediction int) error
}

type Server struct {
	handle *ml.ModelHandle
	log    PredictionLog
	policy ml.SchemaPolicy
	logger *zap.Logger
	index  *template.Template
}

func NewServer(handle *ml.ModelHandle, log PredictionLog, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	index, err := template.ParseFS(templateFS, "templates/index.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Server{
		handle: handle,
		log:    log,
		policy: ml.ChurnSchema(),
		logger: logger,
		index:  index,
	}, nil
}

// Router builds the chi routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Get("/predict", s.handlePredictHint)
	r.Post("/predict", s.handlePredict)
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			zap.String("request_id", chimiddleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)))
	})
}

type formField struct {
	Name   string
	Label  string
	Column string
	Value  string
}

type pageData struct {
	Fields        []formField
	Error         string
	HasResult     bool
	Prediction    int
	ConfidencePct float64
	ModelVersion  string
}

// fields lists the form inputs in the model's feature order.
func (s *Server) fields(m *ml.LoadedModel) ([]formField, error) {
	columns := m.Features()
	if len(columns) == 0 {
		return nil, errors.New("loaded model does not record its feature names")
	}
	out := make([]formField, len(columns))
	for i, col := range columns {
		name := s.policy.Field(col)
		if name == "" {
			name = strings.ToLower(strings.ReplaceAll(col, " ", "_"))
		}
		out[i] = formField{Name: name, Label: col, Column: col}
	}
	return out, nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	var data pageData
	if m := s.handle.Current(); m != nil {
		fields, err := s.fields(m)
		if err != nil {
			data.Error = err.Error()
		}
		data.Fields = fields
	}
	s.render(w, http.StatusOK, data)
}

func (s *Server) handlePredictHint(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"message": "POST the form fields to /predict to get a churn prediction"}
	if m := s.handle.Current(); m != nil {
		if fields, err := s.fields(m); err == nil {
			names := make([]string, len(fields))
			for i, f := range fields {
				names[i] = f.Name
			}
			resp["fields"] = names
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	m := s.handle.Current()
	if m == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no model loaded"})
		return
	}
	fields, err := s.fields(m)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid form body"})
		return
	}

	features := make([]float64, len(fields))
	for i := range fields {
		raw := strings.TrimSpace(r.PostForm.Get(fields[i].Name))
		v, err := parseField(s.policy.Kind(fields[i].Column), raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": fmt.Sprintf("field %s: %v", fields[i].Name, err),
			})
			return
		}
		features[i] = v
		fields[i].Value = raw
	}

	label, confidence, err := m.Model.Predict(features)
	monitoring.RecordPrediction(label, err)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if s.log != nil {
		if err := s.log.SavePrediction(r.Context(), features, label); err != nil {
			s.logger.Warn("failed to log prediction", zap.Error(err))
		}
	}

	s.render(w, http.StatusOK, pageData{
		Fields:        fields,
		HasResult:     true,
		Prediction:    label,
		ConfidencePct: confidence * 100,
		ModelVersion:  m.Version,
	})
}

// parseField reads a numeric form value. Encoded plan columns also accept
// yes/no, which map to the encoder's codes (No=0, Yes=1).
func parseField(kind ml.ColumnKind, raw string) (float64, error) {
	if raw == "" {
		return 0, errors.New("missing value")
	}
	if kind == ml.KindLabelEncode {
		switch strings.ToLower(raw) {
		case "no", "false":
			return 0, nil
		case "yes", "true":
			return 1, nil
		}
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%q is not a number", raw)
	}
	return v, nil
}

func (s *Server) render(w http.ResponseWriter, status int, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.index.Execute(w, data); err != nil {
		s.logger.Error("render template", zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
