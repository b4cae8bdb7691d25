package database

import (
	"time"

	"github.com/google/uuid"

	"github.com/ZanzyTHEbar/farmer-credit-score/internal/scoring"
)

// Farmer is a registered farmer together with the raw scoring input on file
type Farmer struct {
	ID           string              `json:"id" db:"id"`
	FarmerID     string              `json:"farmer_id" db:"farmer_id"`
	Name         string              `json:"name" db:"name"`
	Mobile       string              `json:"mobile" db:"mobile"`
	State        string              `json:"state,omitempty" db:"state"`
	District     string              `json:"district,omitempty" db:"district"`
	Village      string              `json:"village,omitempty" db:"village"`
	Latitude     *float64            `json:"latitude,omitempty" db:"latitude"`
	Longitude    *float64            `json:"longitude,omitempty" db:"longitude"`
	Features     scoring.RawFeatures `json:"features" db:"features"`
	ConsentGiven bool                `json:"consent_given" db:"consent_given"`
	ConsentDate  *time.Time          `json:"consent_date,omitempty" db:"consent_date"`
	CreatedAt    time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at" db:"updated_at"`
}

// ScoreRecord is one persisted, immutable scoring outcome
type ScoreRecord struct {
	ID           string              `json:"id" db:"id"`
	FarmerID     string              `json:"farmer_id" db:"farmer_id"`
	Score        float64             `json:"score" db:"score"`
	Band         string              `json:"score_band" db:"score_band"`
	Drivers      []scoring.Driver    `json:"drivers" db:"drivers"`
	Features     scoring.RawFeatures `json:"features" db:"features"`
	ModelType    string              `json:"model_type" db:"model_type"`
	ModelVersion string              `json:"model_version,omitempty" db:"model_version"`
	ComputedAt   time.Time           `json:"computed_at" db:"computed_at"`
}

// JobStatus is the lifecycle state of a background job
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// JobTypeBatchScore is the only job type the server creates
const JobTypeBatchScore = "batch_score"

// Job tracks a background batch
type Job struct {
	ID           string         `json:"job_id" db:"id"`
	JobType      string         `json:"job_type" db:"job_type"`
	Status       JobStatus      `json:"status" db:"status"`
	Progress     int            `json:"progress" db:"progress"`
	Input        []string       `json:"-" db:"input_data"`
	Output       map[string]any `json:"output_data,omitempty" db:"output_data"`
	ErrorMessage string         `json:"error_message,omitempty" db:"error_message"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
	StartedAt    *time.Time     `json:"started_at,omitempty" db:"started_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty" db:"completed_at"`
}

// NewFarmer creates a farmer with a generated ID. Consent, when given, is
// dated now.
func NewFarmer(farmerID, name, mobile string, features scoring.RawFeatures, consent bool) *Farmer {
	now := time.Now().UTC()
	f := &Farmer{
		ID:           uuid.New().String(),
		FarmerID:     farmerID,
		Name:         name,
		Mobile:       mobile,
		Features:     features,
		ConsentGiven: consent,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if consent {
		f.ConsentDate = &now
	}
	return f
}

// NewScoreRecord captures a scoring result for farmerID
func NewScoreRecord(farmerID string, raw scoring.RawFeatures, result scoring.ScoreResult) *ScoreRecord {
	return &ScoreRecord{
		ID:           uuid.New().String(),
		FarmerID:     farmerID,
		Score:        result.Score,
		Band:         string(result.Band),
		Drivers:      result.Drivers,
		Features:     raw,
		ModelType:    string(result.ModelType),
		ModelVersion: result.ModelVersion,
		ComputedAt:   time.Now().UTC(),
	}
}

// NewJob creates a pending job over the given inputs
func NewJob(jobType string, input []string) *Job {
	return &Job{
		ID:        uuid.New().String(),
		JobType:   jobType,
		Status:    JobPending,
		Input:     input,
		CreatedAt: time.Now().UTC(),
	}
}
