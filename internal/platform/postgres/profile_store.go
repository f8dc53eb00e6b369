package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/phrazzld/triage-api/internal/domain"
	"github.com/phrazzld/triage-api/internal/store"
)

// profileRowID is the fixed primary key of the singleton profile row.
const profileRowID = 1

// PostgresProfileStore implements the store.ProfileStore interface using
// PostgreSQL. The profile is a single row holding a JSONB document.
type PostgresProfileStore struct {
	db store.DBTX
}

// NewPostgresProfileStore creates a new PostgresProfileStore.
func NewPostgresProfileStore(db store.DBTX) *PostgresProfileStore {
	return &PostgresProfileStore{db: db}
}

// WithTx returns a ProfileStore bound to the provided transaction.
func (s *PostgresProfileStore) WithTx(tx *sql.Tx) store.ProfileStore {
	return &PostgresProfileStore{db: tx}
}

// GetProfile returns the singleton profile, creating an empty one if
// none exists yet.
func (s *PostgresProfileStore) GetProfile(ctx context.Context) (*domain.Profile, error) {
	query := `SELECT id, fields, updated_at FROM profile WHERE id = $1`

	var profile domain.Profile
	var fields []byte
	err := s.db.QueryRowContext(ctx, query, profileRowID).Scan(
		&profile.ID, &fields, &profile.UpdatedAt)
	if err != nil {
		if IsNotFoundError(MapError(err)) {
			return s.createEmpty(ctx)
		}
		return nil, MapError(err)
	}

	if err := json.Unmarshal(fields, &profile.Fields); err != nil {
		return nil, fmt.Errorf("failed to decode profile fields: %w", err)
	}
	if profile.Fields == nil {
		profile.Fields = make(map[string]json.RawMessage)
	}

	return &profile, nil
}

// UpdateProfile writes the profile's fields document.
func (s *PostgresProfileStore) UpdateProfile(ctx context.Context, profile *domain.Profile) error {
	fields, err := json.Marshal(profile.Fields)
	if err != nil {
		return fmt.Errorf("failed to encode profile fields: %w", err)
	}

	profile.UpdatedAt = time.Now().UTC()

	query := `UPDATE profile SET fields = $1, updated_at = $2 WHERE id = $3`
	result, err := s.db.ExecContext(ctx, query, fields, profile.UpdatedAt, profileRowID)
	if err != nil {
		return MapError(err)
	}

	return CheckRowsAffected(result, "profile")
}

func (s *PostgresProfileStore) createEmpty(ctx context.Context) (*domain.Profile, error) {
	profile := &domain.Profile{
		ID:        profileRowID,
		Fields:    make(map[string]json.RawMessage),
		UpdatedAt: time.Now().UTC(),
	}

	query := `
		INSERT INTO profile (id, fields, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, profile.ID, []byte(`{}`), profile.UpdatedAt); err != nil {
		return nil, MapError(err)
	}

	return profile, nil
}
