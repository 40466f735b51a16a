package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"churnpredict/db"
	"churnpredict/ml"
	"churnpredict/monitoring"
	"churnpredict/pipeline"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// RetrainConfig 重新训练使用的数据和模型位置
type RetrainConfig struct {
	TrainPath string
	TestPath  string
	ModelKey  string
}

// API 模型服务的处理器集合
type API struct {
	handle  *ml.ModelHandle
	runner  *pipeline.Runner
	retrain RetrainConfig
	hub     *monitoring.EventHub
	logger  *zap.Logger

	cache    *lru.Cache[string, cachedPrediction]
	validate *validator.Validate

	training atomic.Bool
	wg       sync.WaitGroup
}

type cachedPrediction struct {
	label      int
	confidence float64
}

// NewAPI 创建API。runner为nil时 /retrain 不可用
func NewAPI(handle *ml.ModelHandle, runner *pipeline.Runner, retrain RetrainConfig, hub *monitoring.EventHub, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	cache, _ := lru.New[string, cachedPrediction](4096)
	return &API{
		handle:   handle,
		runner:   runner,
		retrain:  retrain,
		hub:      hub,
		logger:   logger,
		cache:    cache,
		validate: validator.New(),
	}
}

// RegisterHandlers 注册所有API处理器
func (a *API) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", a.handleHealth)
	mux.HandleFunc("GET /healthcheck", a.handleHealth)
	mux.HandleFunc("POST /predict", a.handlePredict)
	mux.HandleFunc("POST /retrain", a.handleRetrain)
	mux.HandleFunc("GET /api/training/log", a.handleTrainingLog)
	mux.Handle("GET /metrics", promhttp.Handler())
}

// Install 安装新模型：清空缓存并通知订阅者。
// 与正在服务的模型相同时（例如文件监听已经加载了它）不重复替换
func (a *API) Install(model ml.Classifier, source string) *ml.LoadedModel {
	loaded, changed := a.handle.SwapIfChanged(model, source)
	if changed {
		a.OnModelSwap(loaded)
	}
	return loaded
}

// OnModelSwap 在模型被替换后调用（包括文件监听触发的热加载）
func (a *API) OnModelSwap(loaded *ml.LoadedModel) {
	a.cache.Purge()
	monitoring.RecordModelSwap()
	if a.hub != nil {
		a.hub.Publish(monitoring.ModelSwapped, map[string]any{
			"version":   loaded.Version,
			"source":    loaded.Source,
			"loaded_at": loaded.LoadedAt,
		})
	}
}

// Wait 等待后台训练结束
func (a *API) Wait() {
	a.wg.Wait()
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok", "model_loaded": false}
	if m := a.handle.Current(); m != nil {
		resp["model_loaded"] = true
		resp["model_version"] = m.Version
		resp["loaded_at"] = m.LoadedAt
	}
	resp["training"] = a.training.Load()
	respondJSON(w, resp)
}

type predictRequest struct {
	Features []float64 `json:"features" validate:"required,min=1"`
}

type predictResponse struct {
	Prediction   int     `json:"prediction"`
	Confidence   float64 `json:"confidence"`
	ModelVersion string  `json:"model_version"`
}

func (a *API) handlePredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		respondError(w, http.StatusBadRequest, "unreadable request body")
		return
	}
	if err := json.Unmarshal(body, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := a.validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, "features must be a non-empty list of numbers")
		return
	}

	current := a.handle.Current()
	if current == nil {
		monitoring.RecordPrediction(0, ml.ErrNotFound)
		respondError(w, http.StatusInternalServerError, "model not loaded")
		return
	}

	key := cacheKey(current.Version, req.Features)
	if hit, ok := a.cache.Get(key); ok {
		monitoring.RecordCacheLookup(true)
		monitoring.RecordPrediction(hit.label, nil)
		respondJSON(w, predictResponse{Prediction: hit.label, Confidence: hit.confidence, ModelVersion: current.Version})
		return
	}
	monitoring.RecordCacheLookup(false)

	label, confidence, err := current.Model.Predict(req.Features)
	monitoring.RecordPrediction(label, err)
	if err != nil {
		if errors.Is(err, ml.ErrInvalidInput) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		a.logger.Error("prediction failed", zap.String("request_id", GetRequestID(r.Context())), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "prediction failed")
		return
	}
	a.cache.Add(key, cachedPrediction{label: label, confidence: confidence})
	respondJSON(w, predictResponse{Prediction: label, Confidence: confidence, ModelVersion: current.Version})
}

// handleRetrain 在后台启动一次训练；同一时间只允许一次
func (a *API) handleRetrain(w http.ResponseWriter, r *http.Request) {
	if a.runner == nil {
		respondError(w, http.StatusServiceUnavailable, "retraining is not configured")
		return
	}
	if !a.training.CompareAndSwap(false, true) {
		respondError(w, http.StatusConflict, "training already in progress")
		return
	}

	req := pipeline.TrainRequest{
		TrainPath: a.retrain.TrainPath,
		TestPath:  a.retrain.TestPath,
		ModelKey:  a.retrain.ModelKey,
	}
	requestID := GetRequestID(r.Context())
	if a.hub != nil {
		a.hub.Publish(monitoring.TrainingStarted, map[string]string{"request_id": requestID})
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.training.Store(false)
		a.runRetrain(req, requestID)
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "training started", "request_id": requestID})
}

func (a *API) runRetrain(req pipeline.TrainRequest, requestID string) {
	log := a.logger.With(zap.String("request_id", requestID))
	start := time.Now()

	res, err := a.runner.Train(context.Background(), req)
	if err != nil {
		monitoring.RecordTrainingRun("train", time.Since(start), nil, err)
		log.Error("retraining failed", zap.Error(err))
		if a.hub != nil {
			a.hub.Publish(monitoring.TrainingFailed, map[string]string{"request_id": requestID, "error": err.Error()})
		}
		return
	}
	monitoring.RecordTrainingRun("train", res.Duration, res.Metrics.Map(), nil)
	loaded := a.Install(res.Model, req.ModelKey)
	log.Info("retrained model installed", zap.String("version", loaded.Version))
	if a.hub != nil {
		a.hub.Publish(monitoring.TrainingFinished, map[string]any{
			"request_id": requestID,
			"version":    loaded.Version,
			"metrics":    res.Metrics,
		})
	}
}

func (a *API) handleTrainingLog(w http.ResponseWriter, r *http.Request) {
	logs, err := db.LoadTrainingLog()
	if err != nil {
		a.logger.Error("load training log", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to load training log")
		return
	}
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && limit > 0 && limit < len(logs) {
		logs = logs[:limit]
	}
	respondJSON(w, map[string]any{"runs": logs})
}

func cacheKey(version string, features []float64) string {
	var b strings.Builder
	b.WriteString(version)
	for _, f := range features {
		b.WriteByte('|')
		b.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	}
	return b.String()
}

func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
