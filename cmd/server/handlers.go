package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/ZanzyTHEbar/posture-risk/internal/analysis"
	apperrors "github.com/ZanzyTHEbar/posture-risk/internal/errors"
	"github.com/ZanzyTHEbar/posture-risk/internal/ergonomics"
	"github.com/ZanzyTHEbar/posture-risk/internal/pipeline"
	"github.com/ZanzyTHEbar/posture-risk/internal/pose"
	"github.com/ZanzyTHEbar/posture-risk/internal/resilience"
	"github.com/ZanzyTHEbar/posture-risk/internal/types"
)

func (s *server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, types.ServiceDescriptor{
		Service: serviceName,
		Version: serviceVersion,
		Endpoints: map[string]string{
			"health":           "/health",
			"metrics":          "/metrics",
			"config":           "/config",
			"process_tensor":   "/process/tensor",
			"process_batch":    "/process/batch",
			"process_risk":     "/process/risk",
			"process_image":    "/process/image",
			"process_upload":   "/process/upload",
			"process_video":    "/process/video",
			"ratelimit_status": "/ratelimit/status",
			"docs":             "/swagger/index.html",
		},
	})
}

func (s *server) handleHealth(c *gin.Context) {
	resp := types.HealthResponse{
		Status:    "ok",
		Service:   serviceName,
		Version:   serviceVersion,
		Timestamp: time.Now().UTC(),
		ML: types.ModelStatus{
			ModelLoaded:         true,
			ModelName:           s.cfg.Model.Name,
			ModelVersion:        s.cfg.Model.Version,
			InputSize:           s.cfg.Model.InputSize,
			NumKeypoints:        s.cfg.Model.NumKeypoints,
			ConfidenceThreshold: s.cfg.Decoder.ConfidenceThreshold,
			Metrics:             s.metrics.ProcessingLatency(),
		},
		Metrics: s.metrics.GetStats(),
	}

	if s.dependencies != nil {
		services := s.dependencies.GetAllServiceHealth()
		if len(services) > 0 {
			resp.Dependencies = make(map[string]interface{}, len(services))
			for name, h := range services {
				resp.Dependencies[name] = h
			}
		}
		// Every dependency has an in-process fallback, so a failing one
		// degrades the service without making it unavailable.
		if s.dependencies.WorstLevel() >= resilience.LevelDegraded {
			resp.Status = "degraded"
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (s *server) handleMetrics(c *gin.Context) {
	resp := gin.H{
		"requests":    s.metrics.GetStats(),
		"processing":  s.metrics.ProcessingLatency(),
		"assessments": s.metrics.GetAssessmentStats(),
		"rate_limit":  s.metrics.GetRateLimitStats(),
		"cache":       s.cache.Stats(),
		"compression": s.compression.Stats(),
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	}
	if s.alerts != nil {
		resp["active_alerts"] = s.alerts.ActiveAlerts()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *server) handleConfig(c *gin.Context) {
	c.JSON(http.StatusOK, types.ConfigResponse{
		Model: types.ModelConfig{
			ModelName:           s.cfg.Model.Name,
			Version:             s.cfg.Model.Version,
			InputSize:           s.cfg.Model.InputSize,
			NumKeypoints:        s.cfg.Model.NumKeypoints,
			ConfidenceThreshold: s.cfg.Decoder.ConfidenceThreshold,
			KeypointNames:       s.cfg.Decoder.KeypointNames,
		},
		Scoring: s.scorer.Config(),
	})
}

// process runs one tensor through the pipeline inside a trace span and
// records its outcome.
func (s *server) process(ctx context.Context, t pose.Tensor) pipeline.Result {
	var res pipeline.Result
	start := time.Now()

	_ = s.tracer.Trace(ctx, "pipeline.process", func(context.Context) error {
		res = s.pipeline.Process(t)
		if !res.Success {
			return errors.New(res.Error)
		}
		return nil
	})

	s.metrics.RecordProcessing(res.Success, res.NumKeypointsDetected, time.Since(start))
	return res
}

// assess scores features inside a trace span and records the outcome.
func (s *server) assess(c *gin.Context, f ergonomics.Features, keypoints int, start time.Time) analysis.RiskAssessment {
	var ra analysis.RiskAssessment

	_ = s.tracer.Trace(c.Request.Context(), "scorer.compute_risk", func(context.Context) error {
		ra = s.scorer.ComputeRisk(f)
		if ra.Error != "" {
			return errors.New(ra.Error)
		}
		return nil
	})

	s.recordAssessment(c, ra, keypoints, f.Count(), start)
	return ra
}

func (s *server) recordAssessment(c *gin.Context, ra analysis.RiskAssessment, keypoints, features int, start time.Time) {
	light := ""
	if ra.TrafficLight != nil {
		light = string(*ra.TrafficLight)
	}
	s.metrics.RecordAssessment(ra.Composite, light, ra.Error)
	s.logger.AssessmentLogger(c.GetString("request_id"), keypoints, features, ra.Composite, light, time.Since(start), c.GetBool("cache_hit"))
}

// recordCachedAssessment counts a /process/risk response served from the cache.
func (s *server) recordCachedAssessment(c *gin.Context, request, response []byte) {
	start := time.Now()

	var req types.RiskRequest
	var ra analysis.RiskAssessment
	if err := json.Unmarshal(request, &req); err != nil {
		return
	}
	if err := json.Unmarshal(response, &ra); err != nil {
		return
	}
	s.recordAssessment(c, ra, 0, req.ErgonomicFeatures.Count(), start)
}

// bindError reports a request body that failed to decode or validate. Field
// rule failures are listed per field.
func bindError(c *gin.Context, err error) {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		fields := make(map[string]string, len(fieldErrs))
		for _, fe := range fieldErrs {
			fields[fe.Field()] = fmt.Sprintf("failed on the '%s' rule", fe.Tag())
		}
		_ = c.Error(apperrors.NewValidationErrorWithMap(fields))
		return
	}
	_ = c.Error(apperrors.NewValidationError("invalid request body", err.Error()))
}

func (s *server) handleTensor(c *gin.Context) {
	var req types.TensorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	t, err := pose.ParseTensor(req.Tensor)
	if err != nil {
		_ = c.Error(apperrors.NewValidationError("invalid tensor", err.Error()))
		return
	}

	c.JSON(http.StatusOK, s.process(c.Request.Context(), t))
}

func (s *server) handleBatch(c *gin.Context) {
	var req types.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	tensors := make([]pose.Tensor, len(req.Tensors))
	parseErrs := make([]error, len(req.Tensors))
	for i, raw := range req.Tensors {
		tensors[i], parseErrs[i] = pose.ParseTensor(raw)
	}

	start := time.Now()
	var results []pipeline.Result
	_ = s.tracer.Trace(c.Request.Context(), "pipeline.process_batch", func(context.Context) error {
		results = s.pipeline.ProcessBatch(tensors)
		return nil
	})
	elapsed := time.Since(start)

	if err := c.Request.Context().Err(); err != nil {
		_ = c.Error(apperrors.ToAppError(err))
		return
	}

	resp := types.BatchResponse{Results: results, Count: len(results)}
	var perItem time.Duration
	if len(results) > 0 {
		perItem = elapsed / time.Duration(len(results))
	}
	for i := range results {
		if parseErrs[i] != nil {
			results[i] = pipeline.Failure(parseErrs[i])
		}
		s.metrics.RecordProcessing(results[i].Success, results[i].NumKeypointsDetected, perItem)
		if results[i].Success {
			resp.Succeeded++
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (s *server) handleRisk(c *gin.Context) {
	start := time.Now()

	var req types.RiskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	ra := s.assess(c, req.ErgonomicFeatures, 0, start)
	if ra.Error != "" {
		_ = c.Error(apperrors.NewComputationError("risk scoring", errors.New(ra.Error)))
		return
	}
	c.JSON(http.StatusOK, ra)
}

func (s *server) handleImage(c *gin.Context) {
	start := time.Now()

	var req types.TensorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	t, err := pose.ParseTensor(req.Tensor)
	if err != nil {
		_ = c.Error(apperrors.NewValidationError("invalid tensor", err.Error()))
		return
	}

	res := s.process(c.Request.Context(), t)

	resp := types.ImageResponse{
		Status: "success",
		Posture: types.PostureResult{
			Postures: []types.Posture{},
			Metrics:  s.metrics.ProcessingLatency(),
		},
	}

	if !res.Success {
		resp.Posture.Error = res.Error
		c.JSON(http.StatusOK, resp)
		return
	}

	// Single-subject model: the only posture is the primary subject.
	resp.Posture.Postures = append(resp.Posture.Postures, types.Posture{
		Keypoints:         res.Keypoints,
		ErgonomicFeatures: res.Features,
		NumKeypoints:      res.NumKeypointsDetected,
	})
	resp.RiskAssessment = s.assess(c, res.Features, res.NumKeypointsDetected, start)

	c.JSON(http.StatusOK, resp)
}

func (s *server) handleUpload(c *gin.Context) {
	var req types.UploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	s.logger.Info("Upload accepted",
		"upload_id", req.UploadID,
		"warehouse_timezone", req.WarehouseTimezone,
		"request_id", c.GetString("request_id"))

	c.JSON(http.StatusAccepted, types.UploadResponse{Status: "accepted", UploadID: req.UploadID})
}

func (s *server) handleVideo(c *gin.Context) {
	c.JSON(http.StatusNotImplemented, types.NotImplementedResponse{
		Status:  "not_implemented",
		Message: "video processing is not supported; submit individual frames to /process/image",
	})
}
