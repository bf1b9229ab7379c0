package core

import (
	"context"
	"time"
)

// Credentials are the OAuth client credentials issued by the provider.
// They are supplied by the caller and treated as immutable for a flow.
type Credentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// Validate reports ErrInvalidCredentials when either field is empty.
func (c Credentials) Validate() error {
	if c.ClientID == "" || c.ClientSecret == "" {
		return ErrInvalidCredentials
	}
	return nil
}

// TokenSet is the credential artifact returned by an authorization flow or
// produced by a silent refresh.
type TokenSet struct {
	AccessToken string `json:"access_token"`
	// RefreshToken may be empty when the provider did not issue a new one.
	RefreshToken string `json:"refresh_token,omitempty"`
	// Expiry is the zero time when the provider did not send expires_in.
	Expiry time.Time `json:"expiry,omitempty"`
}

// HasRefreshToken reports whether the set carries a refresh token.
func (t TokenSet) HasRefreshToken() bool {
	return t.RefreshToken != ""
}

// Record is the persisted state for the single user identity:
// the client credentials plus the latest token set.
type Record struct {
	ClientID     string    `json:"client_id"`
	ClientSecret string    `json:"client_secret"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	UpdatedAt    int64     `json:"updated_at"`
}

// NewRecord builds a record from credentials and a token set.
func NewRecord(creds Credentials, tokens TokenSet) *Record {
	return &Record{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		Expiry:       tokens.Expiry,
		UpdatedAt:    time.Now().Unix(),
	}
}

// Credentials returns the client credentials held by the record.
func (r *Record) Credentials() Credentials {
	return Credentials{ClientID: r.ClientID, ClientSecret: r.ClientSecret}
}

// TokenSet returns the token set held by the record.
func (r *Record) TokenSet() TokenSet {
	return TokenSet{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		Expiry:       r.Expiry,
	}
}

// Apply merges a refreshed token set into the record. A missing refresh
// token keeps the stored one.
func (r *Record) Apply(tokens TokenSet) {
	r.AccessToken = tokens.AccessToken
	if tokens.RefreshToken != "" {
		r.RefreshToken = tokens.RefreshToken
	}
	r.Expiry = tokens.Expiry
	r.UpdatedAt = time.Now().Unix()
}

// Store defines the interface for persisting the single token record.
type Store interface {
	Load(ctx context.Context) (*Record, error)
	Save(ctx context.Context, record *Record) error
	Delete(ctx context.Context) error
}
