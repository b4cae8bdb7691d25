package privacy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"

	"github.com/ZanzyTHEbar/farmer-credit-score/internal/database"
	apperrors "github.com/ZanzyTHEbar/farmer-credit-score/internal/errors"
)

// FarmerStore is the part of the repository the privacy service needs
type FarmerStore interface {
	DeleteFarmer(ctx context.Context, farmerID string) (int64, error)
}

// PrivacyService handles consent checks, anonymization and data erasure
type PrivacyService struct {
	store    FarmerStore
	onDelete []func(farmerID string)
	logger   *slog.Logger
}

// NewService creates a new privacy service. Each onDelete hook runs after a
// farmer's data has been erased, typically to drop cached history.
func NewService(store FarmerStore, logger *slog.Logger, onDelete ...func(farmerID string)) *PrivacyService {
	if logger == nil {
		logger = slog.Default()
	}
	return &PrivacyService{store: store, onDelete: onDelete, logger: logger}
}

// Anonymize returns the SHA-256 hex digest of an identifier
func Anonymize(id string) string {
	hash := sha256.Sum256([]byte(id))
	return hex.EncodeToString(hash[:])
}

// Ref is the short anonymized form used in log lines
func Ref(id string) string {
	return Anonymize(id)[:8] + "..."
}

// RequireConsent refuses farmers who have not consented to credit scoring
func RequireConsent(f *database.Farmer) error {
	if f == nil || !f.ConsentGiven {
		return apperrors.NewConsentError("Farmer consent not given")
	}
	return nil
}

// DeleteFarmerData erases a farmer and every score recorded for them
func (ps *PrivacyService) DeleteFarmerData(ctx context.Context, farmerID string) (int64, error) {
	ps.logger.Info("Initiating farmer data deletion", "farmer_ref", Ref(farmerID))

	removed, err := ps.store.DeleteFarmer(ctx, farmerID)
	if err != nil {
		return 0, err
	}

	for _, hook := range ps.onDelete {
		hook(farmerID)
	}

	ps.logger.Info("Data deletion completed",
		"farmer_ref", Ref(farmerID),
		"scores_deleted", removed,
	)
	return removed, nil
}

// GetDataRetentionInfo describes how farmer data is handled
func (ps *PrivacyService) GetDataRetentionInfo() map[string]interface{} {
	return map[string]interface{}{
		"anonymization_method":  "SHA-256",
		"consent_required":      true,
		"score_history_kept":    "until farmer deletion",
		"deletion_scope":        []string{"farmer", "scores"},
		"log_identifier_format": "sha256 prefix",
	}
}
