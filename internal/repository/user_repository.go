package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/medivoyage/booking-api/internal/model"
	"github.com/medivoyage/booking-api/internal/utils"
)

// UserRepo provides access to the users table for patients, providers
// and admins.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

var ErrEmailExists = errors.New("email already exists")

const userColumns = `id, email, password_hash, role, clinic_name, commission_rate_bps,
	   is_active, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (model.User, error) {
	var (
		u      model.User
		clinic sql.NullString
		rate   sql.NullInt32
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &clinic, &rate,
		&u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return model.User{}, err
	}
	if clinic.Valid {
		s := clinic.String
		u.ClinicName = &s
	}
	if rate.Valid {
		v := rate.Int32
		u.CommissionRateBps = &v
	}
	return u, nil
}

// Create inserts a user and returns its ID.  Provider accounts carry a
// clinic name and a commission rate in basis points; both are nil for
// patients and admins.
func (r *UserRepo) Create(ctx context.Context, email, password, role string, clinicName *string, rateBps *int32, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, role, clinic_name, commission_rate_bps) VALUES (?,?,?,?,?)",
		email, hash, role, clinicName, rateBps)
	if err != nil {
		if isDuplicateKey(err) {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// ListProviders returns active provider accounts for the public
// directory, ordered by clinic name.
func (r *UserRepo) ListProviders(ctx context.Context) ([]model.User, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE role=? AND is_active=1 ORDER BY clinic_name",
		model.RoleProvider)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
