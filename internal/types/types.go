package types

import (
	"encoding/json"
	"time"

	"github.com/ZanzyTHEbar/posture-risk/internal/analysis"
	"github.com/ZanzyTHEbar/posture-risk/internal/ergonomics"
	"github.com/ZanzyTHEbar/posture-risk/internal/monitoring"
	"github.com/ZanzyTHEbar/posture-risk/internal/pipeline"
	"github.com/ZanzyTHEbar/posture-risk/internal/pose"
)

// TensorRequest carries one raw pose-model output, shape [1][K][3].
type TensorRequest struct {
	Tensor json.RawMessage `json:"tensor" binding:"required" swaggertype:"array,number"`
}

// BatchRequest carries several tensors processed independently.
type BatchRequest struct {
	Tensors []json.RawMessage `json:"tensors" binding:"required,min=1,max=64" swaggertype:"array,object"`
}

// BatchResponse holds one result per input, in input order.
type BatchResponse struct {
	Results   []pipeline.Result `json:"results"`
	Count     int               `json:"count"`
	Succeeded int               `json:"succeeded"`
}

// RiskRequest carries a previously extracted feature set.
type RiskRequest struct {
	ErgonomicFeatures ergonomics.Features `json:"ergonomic_features"`
}

// UploadRequest references a stored recording for asynchronous processing.
type UploadRequest struct {
	UploadID          string `json:"upload_id" binding:"required"`
	FileURL           string `json:"file_url" binding:"required"`
	WarehouseTimezone string `json:"warehouse_timezone" binding:"required"`
}

type UploadResponse struct {
	Status   string `json:"status"`
	UploadID string `json:"upload_id"`
}

// Posture is one detected subject.
type Posture struct {
	Keypoints         []pose.Keypoint     `json:"keypoints"`
	ErgonomicFeatures ergonomics.Features `json:"ergonomic_features"`
	NumKeypoints      int                 `json:"num_keypoints"`
}

// PostureResult lists detected subjects. Only single-subject models are
// supported, so Postures holds at most one entry.
type PostureResult struct {
	Postures []Posture              `json:"postures"`
	Metrics  monitoring.LatencyStats `json:"metrics"`
	Error    string                 `json:"error,omitempty"`
}

// ImageResponse is the full assessment of one frame.
type ImageResponse struct {
	Status         string                  `json:"status"`
	Posture        PostureResult           `json:"posture"`
	RiskAssessment analysis.RiskAssessment `json:"risk_assessment"`
	Error          string                  `json:"error,omitempty"`
}

type NotImplementedResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ModelStatus is the model block of the health report.
type ModelStatus struct {
	ModelLoaded         bool                    `json:"model_loaded"`
	ModelName           string                  `json:"model_name"`
	ModelVersion        string                  `json:"model_version"`
	InputSize           []int                   `json:"input_size"`
	NumKeypoints        int                     `json:"num_keypoints"`
	ConfidenceThreshold float64                 `json:"confidence_threshold"`
	Metrics             monitoring.LatencyStats `json:"metrics"`
}

type HealthResponse struct {
	Status       string                 `json:"status"`
	Service      string                 `json:"service"`
	Version      string                 `json:"version"`
	Timestamp    time.Time              `json:"timestamp"`
	ML           ModelStatus            `json:"ml"`
	Dependencies map[string]interface{} `json:"dependencies,omitempty"`
	Metrics      map[string]interface{} `json:"metrics"`
}

type ServiceDescriptor struct {
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Endpoints map[string]string `json:"endpoints"`
}

// ConfigResponse is the effective scoring configuration.
type ConfigResponse struct {
	Model   ModelConfig     `json:"pose_estimation"`
	Scoring analysis.Config `json:"risk_scoring"`
}

type ModelConfig struct {
	ModelName           string   `json:"model_name"`
	Version             string   `json:"version"`
	InputSize           []int    `json:"input_size"`
	NumKeypoints        int      `json:"num_keypoints"`
	ConfidenceThreshold float64  `json:"confidence_threshold"`
	KeypointNames       []string `json:"keypoint_names"`
}
