// Package integrations tracks which third-party accounts a user has linked.
// OAuth tokens are sealed with the master key before they reach the store.
package integrations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dareon-io/dareon2/common/crypto"
	"github.com/dareon-io/dareon2/internal/dareon/store"
)

// Provider names a supported integration.
type Provider string

const (
	Microsoft Provider = "microsoft"
	Google    Provider = "google"
	TimeTree  Provider = "timeTree"
)

// Providers lists every supported provider in display order.
var Providers = []Provider{Microsoft, Google, TimeTree}

var (
	// ErrUnknownProvider is returned for provider names outside Providers.
	ErrUnknownProvider = errors.New("integrations: unknown provider")
	// ErrMissingAccessToken is returned by Connect without an access token.
	ErrMissingAccessToken = errors.New("integrations: access token is required")
)

// ParseProvider validates raw. Matching is case-insensitive.
func ParseProvider(raw string) (Provider, error) {
	for _, p := range Providers {
		if strings.EqualFold(raw, string(p)) {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProvider, raw)
}

// Tokens are the OAuth credentials of a connection, in plaintext.
type Tokens struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	ExpiresAt    time.Time `json:"expiresAt,omitzero"`
}

// Status is the client-visible state of one provider.
type Status struct {
	Provider  Provider   `json:"provider"`
	Connected bool       `json:"connected"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// Repository is the persistence the service needs. *store.Store implements it.
type Repository interface {
	UpsertIntegration(ctx context.Context, in *store.Integration) error
	GetIntegration(ctx context.Context, userID, provider string) (*store.Integration, error)
	ListIntegrations(ctx context.Context, userID string) ([]*store.Integration, error)
	DeleteIntegration(ctx context.Context, userID, provider string) error
}

// Service implements the connection store used by the command executor.
type Service struct {
	repo   Repository
	sealer *crypto.Sealer
}

// NewService returns a Service. sealer encrypts tokens at rest.
func NewService(repo Repository, sealer *crypto.Sealer) *Service {
	return &Service{repo: repo, sealer: sealer}
}

// IsConnected reports whether userID has linked provider.
func (s *Service) IsConnected(ctx context.Context, userID string, provider Provider) (bool, error) {
	in, err := s.repo.GetIntegration(ctx, userID, string(provider))
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("integrations: lookup %s: %w", provider, err)
	}
	return in.Connected, nil
}

// Connect stores tokens for provider and marks it connected.
func (s *Service) Connect(ctx context.Context, userID string, provider Provider, tok Tokens) error {
	if _, err := ParseProvider(string(provider)); err != nil {
		return err
	}
	if tok.AccessToken == "" {
		return ErrMissingAccessToken
	}
	access, err := s.sealer.SealString(tok.AccessToken)
	if err != nil {
		return fmt.Errorf("integrations: seal access token: %w", err)
	}
	refresh, err := s.sealer.SealString(tok.RefreshToken)
	if err != nil {
		return fmt.Errorf("integrations: seal refresh token: %w", err)
	}

	in := &store.Integration{
		UserID:       userID,
		Provider:     string(provider),
		Connected:    true,
		AccessToken:  access,
		RefreshToken: refresh,
	}
	if !tok.ExpiresAt.IsZero() {
		exp := tok.ExpiresAt.UTC()
		in.ExpiresAt = &exp
	}
	if err := s.repo.UpsertIntegration(ctx, in); err != nil {
		return fmt.Errorf("integrations: connect %s: %w", provider, err)
	}
	return nil
}

// Disconnect forgets provider. Disconnecting an unlinked provider is not an
// error.
func (s *Service) Disconnect(ctx context.Context, userID string, provider Provider) error {
	if _, err := ParseProvider(string(provider)); err != nil {
		return err
	}
	err := s.repo.DeleteIntegration(ctx, userID, string(provider))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("integrations: disconnect %s: %w", provider, err)
	}
	return nil
}

// Tokens returns the decrypted tokens for provider, or store.ErrNotFound.
func (s *Service) Tokens(ctx context.Context, userID string, provider Provider) (Tokens, error) {
	in, err := s.repo.GetIntegration(ctx, userID, string(provider))
	if err != nil {
		return Tokens{}, err
	}
	access, err := s.sealer.OpenString(in.AccessToken)
	if err != nil {
		return Tokens{}, fmt.Errorf("integrations: open access token: %w", err)
	}
	refresh, err := s.sealer.OpenString(in.RefreshToken)
	if err != nil {
		return Tokens{}, fmt.Errorf("integrations: open refresh token: %w", err)
	}
	tok := Tokens{AccessToken: access, RefreshToken: refresh}
	if in.ExpiresAt != nil {
		tok.ExpiresAt = *in.ExpiresAt
	}
	return tok, nil
}

// List returns one Status per supported provider.
func (s *Service) List(ctx context.Context, userID string) ([]Status, error) {
	rows, err := s.repo.ListIntegrations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("integrations: list: %w", err)
	}
	byProvider := make(map[string]*store.Integration, len(rows))
	for _, r := range rows {
		byProvider[r.Provider] = r
	}

	out := make([]Status, 0, len(Providers))
	for _, p := range Providers {
		st := Status{Provider: p}
		if r, ok := byProvider[string(p)]; ok {
			st.Connected = r.Connected
			st.ExpiresAt = r.ExpiresAt
			updated := r.UpdatedAt
			st.UpdatedAt = &updated
		}
		out = append(out, st)
	}
	return out, nil
}
