package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{name: "nil", err: nil, want: KindNone},
		{name: "in progress", err: ErrFlowAlreadyInProgress, want: KindAlreadyInProgress},
		{name: "wrapped port", err: fmt.Errorf("bind: %w", ErrPortUnavailable), want: KindPortUnavailable},
		{name: "denied", err: &DeniedError{Reason: "access_denied"}, want: KindDenied},
		{name: "malformed", err: ErrMalformedCallback, want: KindMalformed},
		{name: "exchange", err: &ExchangeError{Cause: errors.New("boom")}, want: KindExchange},
		{name: "timeout", err: ErrTimedOut, want: KindTimedOut},
		{name: "cancelled", err: ErrFlowCancelled, want: KindCancelled},
		{name: "context cancelled", err: context.Canceled, want: KindCancelled},
		{name: "credentials", err: ErrInvalidCredentials, want: KindInvalidInput},
		{name: "other", err: errors.New("other"), want: KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestDeniedError(t *testing.T) {
	err := fmt.Errorf("flow: %w", &DeniedError{Reason: "access_denied"})

	assert.ErrorIs(t, err, ErrAuthorizationDenied)
	var denied *DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, "access_denied", denied.Reason)
	assert.Equal(t, "Authorization was denied: access_denied", Summary(err))
}

func TestExchangeErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := &ExchangeError{Cause: cause}

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrExchange)
}

func TestCredentialsValidate(t *testing.T) {
	assert.ErrorIs(t, Credentials{ClientID: "id"}.Validate(), ErrInvalidCredentials)
	assert.NoError(t, Credentials{ClientID: "id", ClientSecret: "secret"}.Validate())
}

func TestRecordApply(t *testing.T) {
	expiry := time.Now().Add(time.Hour).Truncate(time.Second)
	record := NewRecord(
		Credentials{ClientID: "id", ClientSecret: "secret"},
		TokenSet{AccessToken: "A", RefreshToken: "R"},
	)

	record.Apply(TokenSet{AccessToken: "B", Expiry: expiry})

	got := record.TokenSet()
	assert.Equal(t, "B", got.AccessToken)
	assert.Equal(t, "R", got.RefreshToken, "stored refresh token is kept")
	assert.True(t, got.Expiry.Equal(expiry), "Expiry = %v, want %v", got.Expiry, expiry)
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "short", want: "***"},
		{in: "12345678", want: "***"},
		{in: "abcdefghijkl", want: "abc***ijkl"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MaskSecret(tt.in), "MaskSecret(%q)", tt.in)
	}
}

func TestContextHelpers(t *testing.T) {
	ctx, id := WithFlowID(context.Background())
	require.NotEmpty(t, id)
	assert.Equal(t, id, FlowIDFromContext(ctx))
	assert.Empty(t, FlowIDFromContext(context.Background()))
}
