package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/posture-risk/internal/config"
	"github.com/ZanzyTHEbar/posture-risk/internal/monitoring"
	"github.com/ZanzyTHEbar/posture-risk/internal/pose"
	"github.com/ZanzyTHEbar/posture-risk/internal/ratelimit"
	"github.com/ZanzyTHEbar/posture-risk/internal/resilience"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) *server {
	t.Helper()

	env := config.Server{
		CacheTTL:       time.Minute,
		BatchWorkers:   2,
		AllowedOrigins: []string{"*"},
	}
	s, err := newServer(config.Default(), env, monitoring.NewMetrics(), monitoring.NewLoggerTo(io.Discard, "error"))
	require.NoError(t, err)
	t.Cleanup(s.cache.Close)
	return s
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

// fullBodyTensor places the nine scoring keypoints above threshold and the
// face and leg points below it.
func fullBodyTensor() pose.Tensor {
	rows := make([][]float64, len(pose.DefaultKeypointNames))
	for i := range rows {
		rows[i] = []float64{0, 0, 0.1}
	}
	points := map[string][2]float64{
		"nose":           {0.5, 0.1},
		"left_shoulder":  {0.4, 0.3},
		"right_shoulder": {0.6, 0.3},
		"left_elbow":     {0.35, 0.45},
		"right_elbow":    {0.65, 0.45},
		"left_wrist":     {0.35, 0.6},
		"right_wrist":    {0.7, 0.55},
		"left_hip":       {0.45, 0.6},
		"right_hip":      {0.55, 0.6},
	}
	for i, name := range pose.DefaultKeypointNames {
		if p, ok := points[name]; ok {
			rows[i] = []float64{p[1], p[0], 0.9}
		}
	}
	return pose.Tensor{rows}
}

func tensorBody(t *testing.T, tensor pose.Tensor) string {
	t.Helper()
	raw, err := json.Marshal(tensor)
	require.NoError(t, err)
	return fmt.Sprintf(`{"tensor":%s}`, raw)
}

const typicalFeatures = `{"ergonomic_features":{
	"neck_flexion":35,"trunk_flexion":25,
	"left_shoulder_abduction":80,"right_shoulder_abduction":75,
	"left_elbow_flexion":90,"right_elbow_flexion":95}}`

func TestRootEndpoint(t *testing.T) {
	r := setupRouter(newTestServer(t))

	w := do(r, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, serviceName, body["service"])
	endpoints := body["endpoints"].(map[string]interface{})
	assert.Equal(t, "/process/image", endpoints["process_image"])
	assert.Equal(t, "/process/video", endpoints["process_video"])
}

func TestHealthEndpoint(t *testing.T) {
	r := setupRouter(newTestServer(t))

	tests := []struct {
		name           string
		method         string
		expectedStatus int
	}{
		{"GET /health returns OK status", http.MethodGet, http.StatusOK},
		{"POST /health is not routed", http.MethodPost, http.StatusNotFound},
		{"DELETE /health is not routed", http.MethodDelete, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, tt.method, "/health", "")
			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}

	body := decode(t, do(r, http.MethodGet, "/health", ""))
	assert.Equal(t, "ok", body["status"])
	ml := body["ml"].(map[string]interface{})
	assert.Equal(t, true, ml["model_loaded"])
	assert.Equal(t, "movenet_singlepose_lightning", ml["model_name"])
	assert.Equal(t, 0.3, ml["confidence_threshold"])
	assert.Contains(t, ml["metrics"], "p50_latency_ms")
}

func TestHealthReportsDegradedDependency(t *testing.T) {
	s := newTestServer(t)
	s.dependencies = resilience.NewDegradationManager(resilience.DefaultDegradationConfig())
	s.dependencies.RegisterService("redis", nil)
	s.dependencies.Record("redis", assert.AnError)
	r := setupRouter(s)

	w := do(r, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, "degraded", body["status"])
	deps := body["dependencies"].(map[string]interface{})
	assert.Equal(t, "emergency", deps["redis"].(map[string]interface{})["level"])
}

func TestConfigEndpoint(t *testing.T) {
	r := setupRouter(newTestServer(t))

	w := do(r, http.MethodGet, "/config", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	scoring := body["risk_scoring"].(map[string]interface{})
	neck := scoring["neck_flexion"].(map[string]interface{})
	assert.Equal(t, 20.0, neck["low"])
	assert.Len(t, scoring["risk_levels"], 5)

	model := body["pose_estimation"].(map[string]interface{})
	assert.Len(t, model["keypoint_names"], 17)
}

func TestProcessTensor(t *testing.T) {
	s := newTestServer(t)
	r := setupRouter(s)

	tests := []struct {
		name           string
		body           string
		expectedStatus int
		wantKeypoints  float64
		wantSuccess    bool
	}{
		{"full body", tensorBody(t, fullBodyTensor()), http.StatusOK, 9, true},
		{"rank two tensor", `{"tensor":[[0.1,0.2,0.9],[0.3,0.4,0.9]]}`, http.StatusOK, 0, true},
		{"missing tensor", `{}`, http.StatusBadRequest, 0, false},
		{"non numeric tensor", `{"tensor":[["a"]]}`, http.StatusBadRequest, 0, false},
		{"malformed json", `{"tensor":`, http.StatusBadRequest, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodPost, "/process/tensor", tt.body)
			require.Equal(t, tt.expectedStatus, w.Code, w.Body.String())
			if tt.expectedStatus != http.StatusOK {
				body := decode(t, w)
				assert.Equal(t, "VALIDATION_ERROR", body["code"])
				assert.Equal(t, "validation", body["category"])
				assert.NotEmpty(t, body["request_id"])
				return
			}

			body := decode(t, w)
			assert.Equal(t, tt.wantSuccess, body["success"])
			assert.Equal(t, tt.wantKeypoints, body["num_keypoints_detected"])
			assert.Contains(t, body, "ergonomic_features")
		})
	}

	assert.Equal(t, int64(2), s.metrics.TensorsProcessed)
}

func TestProcessBatchPreservesOrder(t *testing.T) {
	s := newTestServer(t)
	r := setupRouter(s)

	full, err := json.Marshal(fullBodyTensor())
	require.NoError(t, err)
	body := fmt.Sprintf(`{"tensors":[%s,[["x"]],[[0.1,0.2,0.9]],%s]}`, full, full)

	w := do(r, http.MethodPost, "/process/batch", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode(t, w)
	assert.Equal(t, 4.0, resp["count"])
	assert.Equal(t, 3.0, resp["succeeded"])

	results := resp["results"].([]interface{})
	require.Len(t, results, 4)
	assert.Equal(t, 9.0, results[0].(map[string]interface{})["num_keypoints_detected"])
	assert.Equal(t, false, results[1].(map[string]interface{})["success"])
	assert.NotEmpty(t, results[1].(map[string]interface{})["error"])
	assert.Equal(t, 0.0, results[2].(map[string]interface{})["num_keypoints_detected"])
	assert.Equal(t, 9.0, results[3].(map[string]interface{})["num_keypoints_detected"])

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/process/batch", `{"tensors":[]}`).Code)
}

func TestProcessRiskTypicalFeatures(t *testing.T) {
	s := newTestServer(t)
	r := setupRouter(s)

	w := do(r, http.MethodPost, "/process/risk", typicalFeatures)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	reba := body["reba"].(float64)
	rula := body["rula"].(float64)
	assert.GreaterOrEqual(t, reba, 0.0)
	assert.LessOrEqual(t, rula, 100.0)
	assert.Equal(t, float64(int((reba+rula)/2+0.5)), body["composite"])
	assert.Equal(t, 70.0, body["composite"])
	assert.Equal(t, "red", body["traffic_light"])
	assert.Equal(t, "high", body["risk_level"])

	again := do(r, http.MethodPost, "/process/risk", typicalFeatures)
	assert.Equal(t, "HIT", again.Header().Get("X-Cache"))
	assert.JSONEq(t, w.Body.String(), again.Body.String())
	assert.Equal(t, int64(1), s.metrics.CacheHits)
	assert.Equal(t, int64(2), s.metrics.Assessments, "cached answers still count as assessments")
	assert.Equal(t, int64(2), s.metrics.GetAssessmentStats()["traffic_lights"].(map[string]int64)["red"])
}

func TestProcessRiskEmptyFeatures(t *testing.T) {
	r := setupRouter(newTestServer(t))

	for _, body := range []string{`{"ergonomic_features":{}}`, `{}`} {
		w := do(r, http.MethodPost, "/process/risk", body)
		require.Equal(t, http.StatusOK, w.Code)

		resp := decode(t, w)
		for _, key := range []string{"rula", "reba", "composite", "traffic_light", "risk_level", "confidence"} {
			assert.Nil(t, resp[key], key)
		}
	}
}

func TestProcessImage(t *testing.T) {
	s := newTestServer(t)
	r := setupRouter(s)

	w := do(r, http.MethodPost, "/process/image", tensorBody(t, fullBodyTensor()))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, "success", body["status"])

	posture := body["posture"].(map[string]interface{})
	postures := posture["postures"].([]interface{})
	require.Len(t, postures, 1)
	first := postures[0].(map[string]interface{})
	assert.Equal(t, 9.0, first["num_keypoints"])
	assert.Contains(t, posture["metrics"], "throughput_fps")

	risk := body["risk_assessment"].(map[string]interface{})
	assert.NotNil(t, risk["composite"])
	assert.Contains(t, []interface{}{"green", "yellow", "red"}, risk["traffic_light"])
}

func TestProcessImageRankTwoTensorIsAllNull(t *testing.T) {
	r := setupRouter(newTestServer(t))

	w := do(r, http.MethodPost, "/process/image", `{"tensor":[[0.1,0.2,0.9],[0.3,0.4,0.9]]}`)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	posture := body["posture"].(map[string]interface{})
	first := posture["postures"].([]interface{})[0].(map[string]interface{})
	assert.Empty(t, first["keypoints"])
	for _, v := range first["ergonomic_features"].(map[string]interface{}) {
		assert.Nil(t, v)
	}

	risk := body["risk_assessment"].(map[string]interface{})
	for _, key := range []string{"rula", "reba", "composite", "traffic_light", "risk_level"} {
		assert.Nil(t, risk[key], key)
	}
}

func TestProcessUpload(t *testing.T) {
	r := setupRouter(newTestServer(t))

	tests := []struct {
		name           string
		body           string
		expectedStatus int
	}{
		{
			name:           "accepted",
			body:           `{"upload_id":"u-1","file_url":"s3://bucket/clip.mp4","warehouse_timezone":"Europe/Berlin"}`,
			expectedStatus: http.StatusAccepted,
		},
		{
			name:           "missing upload id",
			body:           `{"file_url":"s3://bucket/clip.mp4","warehouse_timezone":"UTC"}`,
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodPost, "/process/upload", tt.body)
			require.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus == http.StatusAccepted {
				assert.JSONEq(t, `{"status":"accepted","upload_id":"u-1"}`, w.Body.String())
				return
			}
			details := decode(t, w)["details"].(map[string]interface{})
			assert.Equal(t, "failed on the 'required' rule", details["UploadID"])
		})
	}
}

func TestProcessVideoNotImplemented(t *testing.T) {
	r := setupRouter(newTestServer(t))

	req := httptest.NewRequest(http.MethodPost, "/process/video", bytes.NewReader([]byte("--boundary--")))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=boundary")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotImplemented, w.Code)
	assert.Equal(t, "not_implemented", decode(t, w)["status"])
}

func TestProcessRejectsNonJSON(t *testing.T) {
	r := setupRouter(newTestServer(t))

	req := httptest.NewRequest(http.MethodPost, "/process/risk", strings.NewReader("neck=35"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	r := setupRouter(s)

	do(r, http.MethodPost, "/process/risk", typicalFeatures)
	do(r, http.MethodPost, "/process/tensor", tensorBody(t, fullBodyTensor()))

	w := do(r, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	processing := body["processing"].(map[string]interface{})
	assert.Equal(t, 1.0, processing["samples"])

	assessments := body["assessments"].(map[string]interface{})
	assert.Equal(t, 1.0, assessments["total"])
	assert.Equal(t, map[string]interface{}{"red": 1.0}, assessments["traffic_lights"])
}

func TestRequestHeaders(t *testing.T) {
	r := setupRouter(newTestServer(t))

	w := do(r, http.MethodGet, "/health", "")
	assert.NotEmpty(t, w.Header().Get(monitoring.RequestIDHeader))
	assert.NotEmpty(t, w.Header().Get("X-Trace-ID"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestRateLimitedRouter(t *testing.T) {
	s := newTestServer(t)
	cfg := ratelimit.DefaultConfig()
	cfg.IPLimit = 2
	s.limiter = ratelimit.NewRateLimiter(&ratelimit.RedisClient{}, cfg, s.metrics)
	t.Cleanup(s.limiter.Close)
	r := setupRouter(s)

	codes := make([]int, 0, 3)
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last = do(r, http.MethodGet, "/health", "")
		codes = append(codes, last.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	body := decode(t, last)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", body["code"])
	assert.Equal(t, 429.0, body["http_status"])
	assert.Contains(t, body["details"], "retry_after")
}

func TestRateLimitStatusRoute(t *testing.T) {
	s := newTestServer(t)
	s.limiter = ratelimit.NewRateLimiter(&ratelimit.RedisClient{}, ratelimit.DefaultConfig(), s.metrics)
	t.Cleanup(s.limiter.Close)
	r := setupRouter(s)

	w := do(r, http.MethodGet, "/ratelimit/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode(t, w), "limiter")

	assert.Equal(t, http.StatusNotFound, do(setupRouter(newTestServer(t)), http.MethodGet, "/ratelimit/status", "").Code)
}

func TestCORSPreflight(t *testing.T) {
	r := setupRouter(newTestServer(t))

	req := httptest.NewRequest(http.MethodOptions, "/process/risk", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSConfig(t *testing.T) {
	assert.True(t, corsConfig([]string{"*"}).AllowAllOrigins)
	assert.True(t, corsConfig(nil).AllowAllOrigins)

	restricted := corsConfig([]string{"https://a.example.com"})
	assert.False(t, restricted.AllowAllOrigins)
	assert.Equal(t, []string{"https://a.example.com"}, restricted.AllowOrigins)
}

func TestBatchResponseIsCompressed(t *testing.T) {
	r := setupRouter(newTestServer(t))

	full, err := json.Marshal(fullBodyTensor())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/process/batch", strings.NewReader(fmt.Sprintf(`{"tensors":[%s,%s,%s]}`, full, full, full)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
}
