// Package identity resolves users from external identity-provider tokens and
// manages their roles.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/consultbook/consultbook/internal/platform/auth"
	"github.com/consultbook/consultbook/internal/platform/db"
)

var ErrUserNotFound = errors.New("user not found")

type User struct {
	ID         uuid.UUID `json:"id"`
	ExternalID string    `json:"externalId"`
	Email      *string   `json:"email,omitempty"`
	Name       *string   `json:"name,omitempty"`
	Role       string    `json:"role"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Provider abstracts the user directory the booking engine depends on.
type Provider interface {
	LookupByExternalID(ctx context.Context, externalID string) (*User, error)
	GetRole(ctx context.Context, userID uuid.UUID) (string, error)
	SetRole(ctx context.Context, userID uuid.UUID, role string) error
}

func ValidRole(role string) bool {
	switch role {
	case auth.RoleAdmin, auth.RoleConsultant, auth.RoleClient:
		return true
	}
	return false
}

type providerPG struct{ pool *pgxpool.Pool }

func NewProviderPG(pool *pgxpool.Pool) Provider { return &providerPG{pool: pool} }

func (p *providerPG) LookupByExternalID(ctx context.Context, externalID string) (*User, error) {
	if externalID == "" {
		return nil, ErrUserNotFound
	}
	var u User
	err := db.Conn(ctx, p.pool).QueryRow(ctx, `
		SELECT id, external_id, email, name, role, created_at
		FROM users WHERE external_id = $1`, externalID).
		Scan(&u.ID, &u.ExternalID, &u.Email, &u.Name, &u.Role, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user %q: %w", externalID, err)
	}
	return &u, nil
}

func (p *providerPG) GetRole(ctx context.Context, userID uuid.UUID) (string, error) {
	var role string
	err := db.Conn(ctx, p.pool).QueryRow(ctx, `SELECT role FROM users WHERE id = $1`, userID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrUserNotFound
	}
	return role, err
}

func (p *providerPG) SetRole(ctx context.Context, userID uuid.UUID, role string) error {
	if !ValidRole(role) {
		return fmt.Errorf("unknown role %q", role)
	}
	tag, err := db.Conn(ctx, p.pool).Exec(ctx,
		`UPDATE users SET role = $2, updated_at = NOW() WHERE id = $1`, userID, role)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Directory answers consultant membership questions on top of a Provider.
type Directory struct {
	provider Provider
}

func NewDirectory(p Provider) *Directory { return &Directory{provider: p} }

// IsConsultant reports whether id names a user with the consultant role.
// Unknown users are not consultants and are not an error.
func (d *Directory) IsConsultant(ctx context.Context, id uuid.UUID) (bool, error) {
	role, err := d.provider.GetRole(ctx, id)
	if errors.Is(err, ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return role == auth.RoleConsultant, nil
}

// ResolvePayer maps the identity-provider token on a payment to a user id.
func (d *Directory) ResolvePayer(ctx context.Context, externalID string) (uuid.UUID, error) {
	u, err := d.provider.LookupByExternalID(ctx, externalID)
	if err != nil {
		return uuid.Nil, err
	}
	return u.ID, nil
}
