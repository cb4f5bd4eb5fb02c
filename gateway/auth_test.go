// Copyright 2025 ToolGate
// SPDX-License-Identifier: BUSL-1.1

package gateway

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-signing-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func TestAuthenticate(t *testing.T) {
	a := NewAuthenticator(testSecret)

	token := signToken(t, jwt.MapClaims{
		"billing_account_id": "acct-42",
		"virtual_key_id":     "vk-7",
		"allowed_tools":      []string{"echo", "http_fetch"},
		"exp":                time.Now().Add(time.Hour).Unix(),
	})

	r := httptest.NewRequest("POST", "/api/v1/runs", nil)
	r.Header.Set("Authorization", "Bearer "+token)

	identity, err := a.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, "acct-42", identity.BillingAccountID)
	assert.Equal(t, "vk-7", identity.VirtualKeyID)
	assert.Equal(t, []string{"echo", "http_fetch"}, identity.AllowedTools)
}

func TestAuthenticate_CommaSeparatedTools(t *testing.T) {
	a := NewAuthenticator(testSecret)
	token := signToken(t, jwt.MapClaims{
		"billing_account_id": "acct-42",
		"allowed_tools":      "echo,pg_query",
	})

	identity, err := a.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, []string{"echo", "pg_query"}, identity.AllowedTools)
}

func TestAuthenticate_NoToolsClaimMeansEmptySet(t *testing.T) {
	a := NewAuthenticator(testSecret)
	token := signToken(t, jwt.MapClaims{"billing_account_id": "acct-42"})

	identity, err := a.ValidateToken(token)
	require.NoError(t, err)
	assert.Empty(t, identity.AllowedTools, "absent claim grants nothing")
}

func TestAuthenticate_Failures(t *testing.T) {
	a := NewAuthenticator(testSecret)

	t.Run("missing header", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/api/v1/runs", nil)
		_, err := a.Authenticate(r)
		assert.Error(t, err)
	})

	t.Run("wrong scheme", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/api/v1/runs", nil)
		r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		_, err := a.Authenticate(r)
		assert.Error(t, err)
	})

	t.Run("wrong secret", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"billing_account_id": "acct-42",
		})
		signed, err := token.SignedString([]byte("other-secret"))
		require.NoError(t, err)
		_, err = a.ValidateToken(signed)
		assert.Error(t, err)
	})

	t.Run("expired token", func(t *testing.T) {
		token := signToken(t, jwt.MapClaims{
			"billing_account_id": "acct-42",
			"exp":                time.Now().Add(-time.Hour).Unix(),
		})
		_, err := a.ValidateToken(token)
		assert.Error(t, err)
	})

	t.Run("missing billing account", func(t *testing.T) {
		token := signToken(t, jwt.MapClaims{"virtual_key_id": "vk-7"})
		_, err := a.ValidateToken(token)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "billing_account_id")
	})

	t.Run("unsigned token rejected", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
			"billing_account_id": "acct-42",
		})
		signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = a.ValidateToken(signed)
		assert.Error(t, err)
	})
}
