package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Subscription tiers and statuses.
const (
	TierFree    = "free"
	TierBasic   = "basic"
	TierPremium = "premium"

	SubscriptionActive    = "active"
	SubscriptionExpired   = "expired"
	SubscriptionCancelled = "cancelled"
)

// TrialPeriod is the length of the free trial granted at registration.
const TrialPeriod = 14 * 24 * time.Hour

// User is an account row. Token fields hold SHA-256 digests, never the
// tokens mailed to the user.
type User struct {
	ID           string
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	CompanyName  string
	Role         string

	SubscriptionType   string
	SubscriptionStatus string
	SubscriptionStart  time.Time
	SubscriptionEnd    time.Time

	IsEmailVerified     bool
	VerificationToken   string
	VerificationExpire  *time.Time
	ResetPasswordToken  string
	ResetPasswordExpire *time.Time

	FilesManaged int
	StorageUsed  int64
	LastLogin    *time.Time
	LoginCount   int

	CreatedAt time.Time
	UpdatedAt time.Time
}

const userColumns = `id, first_name, last_name, email, password_hash, company_name, role,
	subscription_type, subscription_status, subscription_start, subscription_end,
	is_email_verified, verification_token, verification_expire,
	reset_password_token, reset_password_expire,
	files_managed, storage_used, last_login, login_count, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	u := &User{}
	var (
		verifyTok, resetTok            sql.NullString
		verifyExp, resetExp, lastLogin sql.NullTime
	)
	err := row.Scan(
		&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash, &u.CompanyName, &u.Role,
		&u.SubscriptionType, &u.SubscriptionStatus, &u.SubscriptionStart, &u.SubscriptionEnd,
		&u.IsEmailVerified, &verifyTok, &verifyExp,
		&resetTok, &resetExp,
		&u.FilesManaged, &u.StorageUsed, &lastLogin, &u.LoginCount, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	u.VerificationToken = verifyTok.String
	u.VerificationExpire = timePtr(verifyExp)
	u.ResetPasswordToken = resetTok.String
	u.ResetPasswordExpire = timePtr(resetExp)
	u.LastLogin = timePtr(lastLogin)
	u.SubscriptionStart = u.SubscriptionStart.UTC()
	u.SubscriptionEnd = u.SubscriptionEnd.UTC()
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return u, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// CreateUser inserts u, filling in the id, defaults and timestamps. Emails
// are stored lower-cased.
func (s *Store) CreateUser(ctx context.Context, u *User) error {
	now := ts(time.Now())
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.Role == "" {
		u.Role = "user"
	}
	if u.SubscriptionType == "" {
		u.SubscriptionType = TierFree
	}
	if u.SubscriptionStatus == "" {
		u.SubscriptionStatus = SubscriptionActive
	}
	if u.SubscriptionStart.IsZero() {
		u.SubscriptionStart = now
	}
	if u.SubscriptionEnd.IsZero() {
		u.SubscriptionEnd = now.Add(TrialPeriod)
	}
	u.CreatedAt, u.UpdatedAt = now, now

	_, err := s.exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		u.ID, u.FirstName, u.LastName, u.Email, u.PasswordHash, u.CompanyName, u.Role,
		u.SubscriptionType, u.SubscriptionStatus, ts(u.SubscriptionStart), ts(u.SubscriptionEnd),
		u.IsEmailVerified, nullString(u.VerificationToken), nullTime(u.VerificationExpire),
		nullString(u.ResetPasswordToken), nullTime(u.ResetPasswordExpire),
		u.FilesManaged, u.StorageUsed, nullTime(u.LastLogin), u.LoginCount, u.CreatedAt, u.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUser returns the user with id, or ErrNotFound.
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	return scanUser(s.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

// GetUserByEmail looks a user up by email, ignoring case.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(s.queryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`,
		strings.ToLower(strings.TrimSpace(email))))
}

// GetUserByVerificationToken returns the user holding the verification
// token digest, provided it has not expired at now.
func (s *Store) GetUserByVerificationToken(ctx context.Context, digest string, now time.Time) (*User, error) {
	return scanUser(s.queryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE verification_token = ? AND verification_expire > ?`,
		digest, ts(now)))
}

// GetUserByResetToken returns the user holding the password reset digest,
// provided it has not expired at now.
func (s *Store) GetUserByResetToken(ctx context.Context, digest string, now time.Time) (*User, error) {
	return scanUser(s.queryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE reset_password_token = ? AND reset_password_expire > ?`,
		digest, ts(now)))
}

// UpdateUser writes every mutable column of u.
func (s *Store) UpdateUser(ctx context.Context, u *User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.UpdatedAt = ts(time.Now())
	res, err := s.exec(ctx, `
		UPDATE users SET
			first_name = ?, last_name = ?, email = ?, password_hash = ?, company_name = ?, role = ?,
			subscription_type = ?, subscription_status = ?, subscription_start = ?, subscription_end = ?,
			is_email_verified = ?, verification_token = ?, verification_expire = ?,
			reset_password_token = ?, reset_password_expire = ?,
			files_managed = ?, storage_used = ?, last_login = ?, login_count = ?, updated_at = ?
		WHERE id = ?
	`,
		u.FirstName, u.LastName, u.Email, u.PasswordHash, u.CompanyName, u.Role,
		u.SubscriptionType, u.SubscriptionStatus, ts(u.SubscriptionStart), ts(u.SubscriptionEnd),
		u.IsEmailVerified, nullString(u.VerificationToken), nullTime(u.VerificationExpire),
		nullString(u.ResetPasswordToken), nullTime(u.ResetPasswordExpire),
		u.FilesManaged, u.StorageUsed, nullTime(u.LastLogin), u.LoginCount, u.UpdatedAt,
		u.ID,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return expectOne(res)
}

// RecordLogin stamps the last login time and bumps the login counter.
func (s *Store) RecordLogin(ctx context.Context, id string, at time.Time) error {
	res, err := s.exec(ctx,
		`UPDATE users SET last_login = ?, login_count = login_count + 1, updated_at = ? WHERE id = ?`,
		ts(at), ts(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to record login: %w", err)
	}
	return expectOne(res)
}

// AddStorageUsage adjusts the user's storage counters by the given deltas.
func (s *Store) AddStorageUsage(ctx context.Context, id string, bytes int64, files int) error {
	res, err := s.exec(ctx,
		`UPDATE users SET storage_used = storage_used + ?, files_managed = files_managed + ?, updated_at = ? WHERE id = ?`,
		bytes, files, ts(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to update storage usage: %w", err)
	}
	return expectOne(res)
}

// UserCount returns the number of accounts.
func (s *Store) UserCount(ctx context.Context) (int, error) {
	var n int
	if err := s.queryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

// ClearExpiredTokens drops verification and reset digests that expired
// before now and returns how many users were touched.
func (s *Store) ClearExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	cutoff := ts(now)
	var total int64
	for _, q := range []string{
		`UPDATE users SET verification_token = NULL, verification_expire = NULL
			WHERE verification_expire IS NOT NULL AND verification_expire <= ?`,
		`UPDATE users SET reset_password_token = NULL, reset_password_expire = NULL
			WHERE reset_password_expire IS NOT NULL AND reset_password_expire <= ?`,
	} {
		res, err := s.exec(ctx, q, cutoff)
		if err != nil {
			return total, fmt.Errorf("failed to clear expired tokens: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
