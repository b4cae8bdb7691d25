package types

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/farmer-credit-score/internal/database"
	"github.com/ZanzyTHEbar/farmer-credit-score/internal/scoring"
	"github.com/ZanzyTHEbar/farmer-credit-score/internal/security"
)

var mobilePattern = regexp.MustCompile(`^\+?[0-9]{10,15}$`)

// FarmerCreate is the body of POST /farmers
type FarmerCreate struct {
	FarmerID     string              `json:"farmer_id" binding:"required"`
	Name         string              `json:"name" binding:"required"`
	Mobile       string              `json:"mobile" binding:"required"`
	State        string              `json:"state,omitempty"`
	District     string              `json:"district,omitempty"`
	Village      string              `json:"village,omitempty"`
	Latitude     *float64            `json:"latitude,omitempty"`
	Longitude    *float64            `json:"longitude,omitempty"`
	Features     scoring.RawFeatures `json:"features"`
	ConsentGiven *bool               `json:"consent_given,omitempty"`
}

// Validate returns one message per invalid field, or nil
func (f *FarmerCreate) Validate() map[string]string {
	problems := map[string]string{}

	if n := len(strings.TrimSpace(f.FarmerID)); n < 6 || n > 20 {
		problems["farmer_id"] = "must be between 6 and 20 characters"
	}
	if n := len(strings.TrimSpace(f.Name)); n < 2 || n > 100 {
		problems["name"] = "must be between 2 and 100 characters"
	}
	if !mobilePattern.MatchString(f.Mobile) {
		problems["mobile"] = "must be 10 to 15 digits with optional leading +"
	}
	if f.Latitude != nil && (*f.Latitude < -90 || *f.Latitude > 90) {
		problems["latitude"] = "must be between -90 and 90"
	}
	if f.Longitude != nil && (*f.Longitude < -180 || *f.Longitude > 180) {
		problems["longitude"] = "must be between -180 and 180"
	}
	if f.Features.LandArea != nil && *f.Features.LandArea <= 0 {
		problems["features.land_area"] = "must be greater than 0"
	}

	if len(problems) == 0 {
		return nil
	}
	return problems
}

// Farmer builds the record to persist. Consent defaults to given.
func (f *FarmerCreate) Farmer() *database.Farmer {
	consent := true
	if f.ConsentGiven != nil {
		consent = *f.ConsentGiven
	}

	farmer := database.NewFarmer(strings.TrimSpace(f.FarmerID), security.SanitizeText(f.Name), f.Mobile, f.Features, consent)
	farmer.State = security.SanitizeText(f.State)
	farmer.District = security.SanitizeText(f.District)
	farmer.Village = security.SanitizeText(f.Village)
	farmer.Latitude = f.Latitude
	farmer.Longitude = f.Longitude
	return farmer
}

// FarmerResponse is a farmer with their most recent score
type FarmerResponse struct {
	*database.Farmer
	LatestScore *float64 `json:"latest_score,omitempty"`
}

// ScoreRequest is the body of POST /score. Features, when present, replace
// the matching fields of the farmer's stored input for this call only.
type ScoreRequest struct {
	FarmerID string               `json:"farmer_id" binding:"required"`
	Features *scoring.RawFeatures `json:"features,omitempty"`
	Policy   string               `json:"policy,omitempty"`
}

// PreviewRequest is the body of POST /score/preview
type PreviewRequest struct {
	Features scoring.RawFeatures `json:"features"`
	Policy   string              `json:"policy,omitempty"`
}

// ScoreResponse is a persisted score as returned to clients
type ScoreResponse struct {
	FarmerID     string           `json:"farmer_id"`
	Score        float64          `json:"score"`
	ScoreBand    string           `json:"score_band"`
	Drivers      []scoring.Driver `json:"drivers"`
	ModelType    string           `json:"model_type"`
	ModelVersion string           `json:"model_version,omitempty"`
	ComputedAt   time.Time        `json:"computed_at"`
}

// NewScoreResponse renders a stored score record
func NewScoreResponse(rec database.ScoreRecord) ScoreResponse {
	drivers := rec.Drivers
	if drivers == nil {
		drivers = []scoring.Driver{}
	}
	return ScoreResponse{
		FarmerID:     rec.FarmerID,
		Score:        rec.Score,
		ScoreBand:    rec.Band,
		Drivers:      drivers,
		ModelType:    rec.ModelType,
		ModelVersion: rec.ModelVersion,
		ComputedAt:   rec.ComputedAt,
	}
}

// ScoreHistoryResponse is the body of GET /score/:farmer_id/history
type ScoreHistoryResponse struct {
	FarmerID string          `json:"farmer_id"`
	Scores   []ScoreResponse `json:"scores"`
}

// BatchScoreRequest is the body of POST /score/batch
type BatchScoreRequest struct {
	FarmerIDs []string `json:"farmer_ids" binding:"required"`
}

// BatchScoreResponse acknowledges a submitted batch
type BatchScoreResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// NewBatchScoreResponse acknowledges job
func NewBatchScoreResponse(job *database.Job) BatchScoreResponse {
	return BatchScoreResponse{
		JobID:   job.ID,
		Status:  string(job.Status),
		Message: fmt.Sprintf("Batch scoring job created for %d farmers", len(job.Input)),
	}
}

// DeleteResponse reports an erasure
type DeleteResponse struct {
	FarmerID      string `json:"farmer_id"`
	ScoresDeleted int64  `json:"scores_deleted"`
	Message       string `json:"message"`
}
