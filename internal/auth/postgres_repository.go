package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// UpsertUser inserts a user or refreshes the profile of an existing one,
// keeping its id and creation time.
func (r *PostgresRepository) UpsertUser(ctx context.Context, user User) (User, error) {
	const query = `
		INSERT INTO users (id, spotify_id, email, display_name, avatar_url, country, product, followers, created_at, updated_at, last_login_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (spotify_id) DO UPDATE SET
			email = EXCLUDED.email,
			display_name = EXCLUDED.display_name,
			avatar_url = EXCLUDED.avatar_url,
			country = EXCLUDED.country,
			product = EXCLUDED.product,
			followers = EXCLUDED.followers,
			updated_at = EXCLUDED.updated_at,
			last_login_at = EXCLUDED.last_login_at
		RETURNING id, spotify_id, email, display_name, avatar_url, country, product, followers, created_at, updated_at, last_login_at
	`

	var row userRow
	err := r.db.GetContext(ctx, &row, query,
		user.ID,
		user.SpotifyID,
		user.Email,
		user.DisplayName,
		user.AvatarURL,
		user.Country,
		user.Product,
		user.Followers,
		user.CreatedAt,
		user.UpdatedAt,
		user.LastLoginAt,
	)
	if err != nil {
		return User{}, err
	}

	return row.toUser(), nil
}

// SaveSession inserts a session or replaces its token set.
func (r *PostgresRepository) SaveSession(ctx context.Context, record SessionRecord) error {
	const query = `
		INSERT INTO user_sessions (
			id, user_id, access_token, token_type, refresh_token, token_expires_at, scope, token_error,
			expires_at, created_at, user_agent, ip_address
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			token_type = EXCLUDED.token_type,
			refresh_token = EXCLUDED.refresh_token,
			token_expires_at = EXCLUDED.token_expires_at,
			scope = EXCLUDED.scope,
			token_error = EXCLUDED.token_error
	`

	_, err := r.db.ExecContext(ctx, query,
		record.ID,
		record.User.ID,
		record.Tokens.AccessToken,
		record.Tokens.TokenType,
		record.Tokens.RefreshToken,
		record.Tokens.ExpiresAt,
		record.Tokens.Scope,
		record.Tokens.Error,
		record.ExpiresAt,
		record.CreatedAt,
		record.UserAgent,
		record.IPAddress,
	)
	return err
}

// FindSession looks up a session and its user.
func (r *PostgresRepository) FindSession(ctx context.Context, id uuid.UUID) (*SessionRecord, error) {
	const query = `
		SELECT
			s.id, s.access_token, s.token_type, s.refresh_token, s.token_expires_at, s.scope, s.token_error,
			s.expires_at, s.created_at, s.user_agent, s.ip_address,
			u.id AS user_id, u.spotify_id, u.email, u.display_name, u.avatar_url, u.country, u.product, u.followers,
			u.created_at AS user_created_at, u.updated_at AS user_updated_at, u.last_login_at
		FROM user_sessions s
		JOIN users u ON s.user_id = u.id
		WHERE s.id = $1
	`

	var row sessionUserRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return row.toRecord(), nil
}

// DeleteSession removes a session from the database.
func (r *PostgresRepository) DeleteSession(ctx context.Context, id uuid.UUID) error {
	const query = `DELETE FROM user_sessions WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

// DeleteExpiredSessions removes all sessions past their max age.
func (r *PostgresRepository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM user_sessions WHERE expires_at <= $1`
	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

type userRow struct {
	ID          uuid.UUID `db:"id"`
	SpotifyID   string    `db:"spotify_id"`
	Email       string    `db:"email"`
	DisplayName string    `db:"display_name"`
	AvatarURL   string    `db:"avatar_url"`
	Country     string    `db:"country"`
	Product     string    `db:"product"`
	Followers   int       `db:"followers"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
	LastLoginAt time.Time `db:"last_login_at"`
}

func (r *userRow) toUser() User {
	return User{
		ID:          r.ID,
		SpotifyID:   r.SpotifyID,
		Email:       r.Email,
		DisplayName: r.DisplayName,
		AvatarURL:   r.AvatarURL,
		Country:     r.Country,
		Product:     r.Product,
		Followers:   r.Followers,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		LastLoginAt: r.LastLoginAt,
	}
}

// sessionUserRow is a database row for the session + user join query.
type sessionUserRow struct {
	// Session fields
	ID             uuid.UUID `db:"id"`
	AccessToken    string    `db:"access_token"`
	TokenType      string    `db:"token_type"`
	RefreshToken   string    `db:"refresh_token"`
	TokenExpiresAt int64     `db:"token_expires_at"`
	Scope          string    `db:"scope"`
	TokenError     string    `db:"token_error"`
	ExpiresAt      time.Time `db:"expires_at"`
	CreatedAt      time.Time `db:"created_at"`
	UserAgent      string    `db:"user_agent"`
	IPAddress      string    `db:"ip_address"`

	// User fields
	UserID        uuid.UUID `db:"user_id"`
	SpotifyID     string    `db:"spotify_id"`
	Email         string    `db:"email"`
	DisplayName   string    `db:"display_name"`
	AvatarURL     string    `db:"avatar_url"`
	Country       string    `db:"country"`
	Product       string    `db:"product"`
	Followers     int       `db:"followers"`
	UserCreatedAt time.Time `db:"user_created_at"`
	UserUpdatedAt time.Time `db:"user_updated_at"`
	LastLoginAt   time.Time `db:"last_login_at"`
}

func (r *sessionUserRow) toRecord() *SessionRecord {
	return &SessionRecord{
		ID: r.ID,
		User: User{
			ID:          r.UserID,
			SpotifyID:   r.SpotifyID,
			Email:       r.Email,
			DisplayName: r.DisplayName,
			AvatarURL:   r.AvatarURL,
			Country:     r.Country,
			Product:     r.Product,
			Followers:   r.Followers,
			CreatedAt:   r.UserCreatedAt,
			UpdatedAt:   r.UserUpdatedAt,
			LastLoginAt: r.LastLoginAt,
		},
		Tokens: TokenSet{
			AccessToken:  r.AccessToken,
			TokenType:    r.TokenType,
			RefreshToken: r.RefreshToken,
			ExpiresAt:    r.TokenExpiresAt,
			Scope:        r.Scope,
			Error:        r.TokenError,
		},
		ExpiresAt: r.ExpiresAt,
		CreatedAt: r.CreatedAt,
		UserAgent: r.UserAgent,
		IPAddress: r.IPAddress,
	}
}
