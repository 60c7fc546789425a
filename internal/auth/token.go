package auth

import (
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	// RefreshErrorTag marks a token set whose last refresh failed.
	RefreshErrorTag = "RefreshAccessTokenError"

	// DefaultExpiresIn applies when the provider omits expires_in.
	DefaultExpiresIn int64 = 3600
)

// TokenSet is the provider credential bundle held for one session.
type TokenSet struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope"`
	Error        string `json:"error,omitempty"`
}

// Expired reports whether expires_at is at or before now.
func (t TokenSet) Expired(now time.Time) bool {
	return t.ExpiresAt <= now.Unix()
}

func (t TokenSet) tagged() TokenSet {
	t.Error = RefreshErrorTag
	return t
}

// tokenSetFromGrant builds the initial token set from an authorization-code
// grant. expires_at is derived from the raw expires_in, not oauth2's Expiry.
func tokenSetFromGrant(tok *oauth2.Token, now time.Time) TokenSet {
	expiresIn := grantExpiresIn(tok)
	return TokenSet{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    now.Unix() + expiresIn,
		ExpiresIn:    expiresIn,
		Scope:        grantScope(tok),
	}
}

func grantExpiresIn(tok *oauth2.Token) int64 {
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		if v > 0 {
			return int64(v)
		}
	case int64:
		if v > 0 {
			return v
		}
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil && n > 0 {
			return n
		}
	}
	return DefaultExpiresIn
}

func grantScope(tok *oauth2.Token) string {
	scope, _ := tok.Extra("scope").(string)
	return scope
}
