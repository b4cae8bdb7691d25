package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	apperrors "github.com/ZanzyTHEbar/farmer-credit-score/internal/errors"
)

// DefaultHistoryLimit is used when ListScores is called with a non-positive limit
const DefaultHistoryLimit = 10

// Repository handles database operations
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// Ping checks the database is reachable
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// CreateFarmer inserts a farmer. A duplicate farmer_id is a validation error.
func (r *Repository) CreateFarmer(ctx context.Context, f *Farmer) error {
	stmt, err := r.db.GetPreparedStatement(stmtInsertFarmer)
	if err != nil {
		return apperrors.NewInternalError("statement unavailable", err)
	}

	features, err := json.Marshal(f.Features)
	if err != nil {
		return apperrors.NewInternalError("failed to encode farmer features", err)
	}

	_, err = stmt.ExecContext(ctx,
		f.ID, f.FarmerID, f.Name, f.Mobile, f.State, f.District, f.Village,
		nullFloat(f.Latitude), nullFloat(f.Longitude),
		string(features), f.ConsentGiven, nullTime(f.ConsentDate), f.CreatedAt, f.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.NewValidationError("farmer already registered", f.FarmerID)
		}
		return apperrors.NewStorageError("failed to create farmer", err)
	}

	return nil
}

// GetFarmer looks a farmer up by their external farmer_id
func (r *Repository) GetFarmer(ctx context.Context, farmerID string) (*Farmer, error) {
	stmt, err := r.db.GetPreparedStatement(stmtGetFarmer)
	if err != nil {
		return nil, apperrors.NewInternalError("statement unavailable", err)
	}

	f, err := scanFarmer(stmt.QueryRowContext(ctx, farmerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("farmer", farmerID)
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// ListFarmers pages through farmers in registration order
func (r *Repository) ListFarmers(ctx context.Context, offset, limit int) ([]Farmer, error) {
	stmt, err := r.db.GetPreparedStatement(stmtListFarmers)
	if err != nil {
		return nil, apperrors.NewInternalError("statement unavailable", err)
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := stmt.QueryContext(ctx, limit, offset)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to list farmers", err)
	}
	defer rows.Close()

	farmers := []Farmer{}
	for rows.Next() {
		f, err := scanFarmer(rows)
		if err != nil {
			return nil, err
		}
		farmers = append(farmers, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError("failed to list farmers", err)
	}
	return farmers, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanFarmer passes sql.ErrNoRows through untouched
func scanFarmer(row rowScanner) (*Farmer, error) {
	var (
		f                        Farmer
		state, district, village sql.NullString
		lat, lon                 sql.NullFloat64
		features                 string
		consentDate              sql.NullTime
	)
	err := row.Scan(
		&f.ID, &f.FarmerID, &f.Name, &f.Mobile, &state, &district, &village, &lat, &lon,
		&features, &f.ConsentGiven, &consentDate, &f.CreatedAt, &f.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, apperrors.NewStorageError("failed to query farmer", err)
	}

	if err := json.Unmarshal([]byte(features), &f.Features); err != nil {
		return nil, apperrors.NewInternalError("stored farmer features are corrupt", err)
	}
	f.State, f.District, f.Village = state.String, district.String, village.String
	f.Latitude, f.Longitude = floatPtr(lat), floatPtr(lon)
	f.ConsentDate = timePtr(consentDate)

	return &f, nil
}

// DeleteFarmer removes a farmer and every score recorded for them, returning
// the number of scores removed
func (r *Repository) DeleteFarmer(ctx context.Context, farmerID string) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, apperrors.NewStorageError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM scores WHERE farmer_id = ?`, farmerID)
	if err != nil {
		return 0, apperrors.NewStorageError("failed to delete scores", err)
	}
	scores, _ := res.RowsAffected()

	res, err = tx.ExecContext(ctx, `DELETE FROM farmers WHERE farmer_id = ?`, farmerID)
	if err != nil {
		return 0, apperrors.NewStorageError("failed to delete farmer", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, apperrors.NewNotFoundError("farmer", farmerID)
	}

	if err := tx.Commit(); err != nil {
		return 0, apperrors.NewStorageError("failed to commit farmer deletion", err)
	}
	return scores, nil
}

// InsertScore appends a score record
func (r *Repository) InsertScore(ctx context.Context, s *ScoreRecord) error {
	stmt, err := r.db.GetPreparedStatement(stmtInsertScore)
	if err != nil {
		return apperrors.NewInternalError("statement unavailable", err)
	}

	drivers, err := json.Marshal(s.Drivers)
	if err != nil {
		return apperrors.NewInternalError("failed to encode drivers", err)
	}
	features, err := json.Marshal(s.Features)
	if err != nil {
		return apperrors.NewInternalError("failed to encode features", err)
	}
	if s.ComputedAt.IsZero() {
		s.ComputedAt = time.Now().UTC()
	}

	_, err = stmt.ExecContext(ctx,
		s.ID, s.FarmerID, s.Score, s.Band, string(drivers), string(features),
		s.ModelType, s.ModelVersion, s.ComputedAt,
	)
	if err != nil {
		return apperrors.NewStorageError("failed to record score", err)
	}
	return nil
}

// ListScores returns up to limit scores for a farmer, newest first
func (r *Repository) ListScores(ctx context.Context, farmerID string, limit int) ([]ScoreRecord, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	stmt, err := r.db.GetPreparedStatement(stmtListScores)
	if err != nil {
		return nil, apperrors.NewInternalError("statement unavailable", err)
	}

	rows, err := stmt.QueryContext(ctx, farmerID, limit)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to query scores", err)
	}
	defer rows.Close()

	records := make([]ScoreRecord, 0, limit)
	for rows.Next() {
		var (
			s                 ScoreRecord
			drivers, features string
			version           sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.FarmerID, &s.Score, &s.Band, &drivers, &features,
			&s.ModelType, &version, &s.ComputedAt); err != nil {
			return nil, apperrors.NewStorageError("failed to read score", err)
		}
		if err := json.Unmarshal([]byte(drivers), &s.Drivers); err != nil {
			return nil, apperrors.NewInternalError("stored drivers are corrupt", err)
		}
		if err := json.Unmarshal([]byte(features), &s.Features); err != nil {
			return nil, apperrors.NewInternalError("stored features are corrupt", err)
		}
		s.ModelVersion = version.String
		records = append(records, s)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError("failed to read scores", err)
	}

	return records, nil
}

// CreateJob inserts a new job
func (r *Repository) CreateJob(ctx context.Context, j *Job) error {
	stmt, err := r.db.GetPreparedStatement(stmtInsertJob)
	if err != nil {
		return apperrors.NewInternalError("statement unavailable", err)
	}

	input, err := json.Marshal(j.Input)
	if err != nil {
		return apperrors.NewInternalError("failed to encode job input", err)
	}
	output, err := encodeOutput(j.Output)
	if err != nil {
		return err
	}

	_, err = stmt.ExecContext(ctx,
		j.ID, j.JobType, string(j.Status), j.Progress, string(input), output,
		nullString(j.ErrorMessage), j.CreatedAt, nullTime(j.StartedAt), nullTime(j.CompletedAt),
	)
	if err != nil {
		return apperrors.NewStorageError("failed to create job", err)
	}
	return nil
}

// UpdateJob persists the mutable fields of a job
func (r *Repository) UpdateJob(ctx context.Context, j *Job) error {
	stmt, err := r.db.GetPreparedStatement(stmtUpdateJob)
	if err != nil {
		return apperrors.NewInternalError("statement unavailable", err)
	}

	output, err := encodeOutput(j.Output)
	if err != nil {
		return err
	}

	res, err := stmt.ExecContext(ctx,
		string(j.Status), j.Progress, output, nullString(j.ErrorMessage),
		nullTime(j.StartedAt), nullTime(j.CompletedAt), j.ID,
	)
	if err != nil {
		return apperrors.NewStorageError("failed to update job", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewNotFoundError("job", j.ID)
	}
	return nil
}

// GetJob looks a job up by ID
func (r *Repository) GetJob(ctx context.Context, id string) (*Job, error) {
	stmt, err := r.db.GetPreparedStatement(stmtGetJob)
	if err != nil {
		return nil, apperrors.NewInternalError("statement unavailable", err)
	}

	var (
		j                           Job
		status                      string
		input, output, errorMessage sql.NullString
		startedAt, completedAt      sql.NullTime
	)
	err = stmt.QueryRowContext(ctx, id).Scan(
		&j.ID, &j.JobType, &status, &j.Progress, &input, &output, &errorMessage,
		&j.CreatedAt, &startedAt, &completedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("job", id)
	}
	if err != nil {
		return nil, apperrors.NewStorageError("failed to query job", err)
	}

	j.Status = JobStatus(status)
	j.ErrorMessage = errorMessage.String
	j.StartedAt, j.CompletedAt = timePtr(startedAt), timePtr(completedAt)
	if input.Valid {
		if err := json.Unmarshal([]byte(input.String), &j.Input); err != nil {
			return nil, apperrors.NewInternalError("stored job input is corrupt", err)
		}
	}
	if output.Valid {
		if err := json.Unmarshal([]byte(output.String), &j.Output); err != nil {
			return nil, apperrors.NewInternalError("stored job output is corrupt", err)
		}
	}

	return &j, nil
}

func encodeOutput(out map[string]any) (sql.NullString, error) {
	if out == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(out)
	if err != nil {
		return sql.NullString{}, apperrors.NewInternalError(fmt.Sprintf("failed to encode job output: %v", err), err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) &&
		(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	return &f.Float64
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}
