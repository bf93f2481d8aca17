package model

import "time"

// Roles stored in users.role.  Providers are clinic accounts that
// receive inquiries and run check-ins; patients open inquiries;
// admins reconcile commission invoices.
const (
	RolePatient  = "PATIENT"
	RoleProvider = "PROVIDER"
	RoleAdmin    = "ADMIN"
)

// User represents an application user record as stored in the
// `users` table.  Provider accounts additionally carry the clinic
// name and the agreed commission rate; both columns are null for
// patients and admins.
//
// Fields:
//  ID                – primary key identifier of the user.
//  Email             – unique email address.
//  PasswordHash      – bcrypt hashed password.
//  Role              – PATIENT, PROVIDER or ADMIN.
//  ClinicName        – display name of the clinic (providers only).
//  CommissionRateBps – agreed commission rate in basis points (providers only).
//  IsActive          – whether the account is active.
//  CreatedAt         – timestamp of creation.
//  UpdatedAt         – timestamp of last update.
type User struct {
	ID                uint64    // users.id
	Email             string    // users.email
	PasswordHash      string    // users.password_hash
	Role              string    // users.role
	ClinicName        *string   // users.clinic_name (nullable)
	CommissionRateBps *int32    // users.commission_rate_bps (nullable)
	IsActive          bool      // users.is_active
	CreatedAt         time.Time // users.created_at
	UpdatedAt         time.Time // users.updated_at
}

// RefreshToken models an entry in the `refresh_tokens` table.  Each
// refresh token belongs to a user and contains metadata for expiry
// and revocation.  The plain token is not stored; only its
// SHA-256 hash.
//
// Fields:
//  ID        – primary key identifier.
//  UserID    – owner of the token.
//  TokenHash – SHA-256 hex digest of the token value.
//  ExpiresAt – expiration timestamp of the token.
//  RevokedAt – when the token was revoked (null if still active).
//  CreatedAt – timestamp of creation.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	UserID    uint64     // refresh_tokens.user_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt time.Time  // refresh_tokens.created_at
}
