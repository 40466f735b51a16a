package tracking

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

const DefaultExperiment = "Churn Prediction"

// MLflowSink logs each record as a finished run in an MLflow experiment,
// through the tracking server's REST API.
type MLflowSink struct {
	baseURL    string
	experiment string
	runName    string
	client     *http.Client

	mu           sync.Mutex
	experimentID string
}

type MLflowOption func(*MLflowSink)

func WithHTTPClient(c *http.Client) MLflowOption { return func(s *MLflowSink) { s.client = c } }
func WithRunName(name string) MLflowOption        { return func(s *MLflowSink) { s.runName = name } }

func NewMLflowSink(trackingURI, experiment string, opts ...MLflowOption) *MLflowSink {
	if experiment == "" {
		experiment = DefaultExperiment
	}
	s := &MLflowSink{
		baseURL:    strings.TrimRight(trackingURI, "/"),
		experiment: experiment,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

type mlflowError struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

type mlflowMetric struct {
	Key       string  `json:"key"`
	Value     float64 `json:"value"`
	Timestamp int64   `json:"timestamp"`
	Step      int64   `json:"step"`
}

type mlflowParam struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (s *MLflowSink) Record(ctx context.Context, params map[string]string, metrics map[string]float64) error {
	expID, err := s.experimentIDFor(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UnixMilli()
	createReq := map[string]any{"experiment_id": expID, "start_time": now}
	if name := s.runName; name != "" {
		createReq["run_name"] = name
	} else if mode := params["mode"]; mode != "" {
		createReq["run_name"] = mode
	}
	var created struct {
		Run struct {
			Info struct {
				RunID string `json:"run_id"`
			} `json:"info"`
		} `json:"run"`
	}
	if err := s.call(ctx, http.MethodPost, "/api/2.0/mlflow/runs/create", createReq, &created); err != nil {
		return err
	}
	runID := created.Run.Info.RunID

	batch := struct {
		RunID   string         `json:"run_id"`
		Metrics []mlflowMetric `json:"metrics"`
		Params  []mlflowParam  `json:"params"`
	}{RunID: runID}
	for _, k := range sortedKeys(metrics) {
		batch.Metrics = append(batch.Metrics, mlflowMetric{Key: k, Value: metrics[k], Timestamp: now})
	}
	for _, k := range sortedKeys(params) {
		batch.Params = append(batch.Params, mlflowParam{Key: k, Value: params[k]})
	}
	if err := s.call(ctx, http.MethodPost, "/api/2.0/mlflow/runs/log-batch", batch, nil); err != nil {
		return err
	}

	update := map[string]any{"run_id": runID, "status": "FINISHED", "end_time": time.Now().UnixMilli()}
	return s.call(ctx, http.MethodPost, "/api/2.0/mlflow/runs/update", update, nil)
}

// experimentIDFor looks the experiment up by name and creates it when the
// server does not know it. The id is cached after the first success.
func (s *MLflowSink) experimentIDFor(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.experimentID != "" {
		return s.experimentID, nil
	}

	var got struct {
		Experiment struct {
			ExperimentID string `json:"experiment_id"`
		} `json:"experiment"`
	}
	path := "/api/2.0/mlflow/experiments/get-by-name?experiment_name=" + url.QueryEscape(s.experiment)
	err := s.call(ctx, http.MethodGet, path, nil, &got)
	switch {
	case err == nil:
		s.experimentID = got.Experiment.ExperimentID
	case isMLflowCode(err, "RESOURCE_DOES_NOT_EXIST"):
		var created struct {
			ExperimentID string `json:"experiment_id"`
		}
		if err := s.call(ctx, http.MethodPost, "/api/2.0/mlflow/experiments/create",
			map[string]string{"name": s.experiment}, &created); err != nil {
			return "", err
		}
		s.experimentID = created.ExperimentID
	default:
		return "", err
	}
	return s.experimentID, nil
}

// MLflowAPIError is a non-2xx answer from the tracking server.
type MLflowAPIError struct {
	Status int
	Code   string
	Msg    string
}

func (e *MLflowAPIError) Error() string {
	return fmt.Sprintf("mlflow: %d %s: %s", e.Status, e.Code, e.Msg)
}

func isMLflowCode(err error, code string) bool {
	apiErr, ok := err.(*MLflowAPIError)
	return ok && apiErr.Code == code
}

func (s *MLflowSink) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("mlflow %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("mlflow %s: %w", path, err)
	}
	if resp.StatusCode/100 != 2 {
		var apiErr mlflowError
		_ = json.Unmarshal(data, &apiErr)
		return &MLflowAPIError{Status: resp.StatusCode, Code: apiErr.ErrorCode, Msg: apiErr.Message}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
