// Copyright 2025 ToolGate
// SPDX-License-Identifier: BUSL-1.1

package gateway

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// CallerIdentity is everything ToolGate knows about an authenticated caller:
// who pays for the run and which tools the virtual key may invoke. The tool
// set is closed; an empty set means no tool is callable.
type CallerIdentity struct {
	BillingAccountID string
	VirtualKeyID     string
	AllowedTools     []string
}

// Authenticator validates bearer tokens issued for virtual keys
type Authenticator struct {
	secret []byte
}

// NewAuthenticator creates an Authenticator over an HMAC signing secret
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Authenticate extracts and validates the bearer token on a request
func (a *Authenticator) Authenticate(r *http.Request) (*CallerIdentity, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, fmt.Errorf("missing authorization header")
	}
	tokenString := strings.TrimPrefix(header, "Bearer ")
	if tokenString == header {
		return nil, fmt.Errorf("authorization header must use the Bearer scheme")
	}
	return a.ValidateToken(tokenString)
}

// ValidateToken parses a signed token into a caller identity. Only HMAC
// signing methods are accepted; tokens signed any other way are rejected
// before claim extraction.
func (a *Authenticator) ValidateToken(tokenString string) (*CallerIdentity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}

	accountID := getClaimString(claims, "billing_account_id")
	if accountID == "" {
		return nil, fmt.Errorf("token is missing billing_account_id")
	}

	return &CallerIdentity{
		BillingAccountID: accountID,
		VirtualKeyID:     getClaimString(claims, "virtual_key_id"),
		AllowedTools:     getClaimStringArray(claims, "allowed_tools"),
	}, nil
}

func getClaimString(claims jwt.MapClaims, key string) string {
	if val, ok := claims[key].(string); ok {
		return val
	}
	return ""
}

// getClaimStringArray reads a claim that may be either a JSON array of
// strings or a comma-separated string
func getClaimStringArray(claims jwt.MapClaims, key string) []string {
	switch val := claims[key].(type) {
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, v := range val {
			if s, ok := v.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if val == "" {
			return []string{}
		}
		return strings.Split(val, ",")
	default:
		return []string{}
	}
}
