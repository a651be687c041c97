package cmsapi

import (
	"errors"
	"fmt"

	"golang.org/x/oauth2"
)

// ErrNoAccessKey is returned when an account has no personal access key.
var ErrNoAccessKey = errors.New("cmsapi: no personal access key configured")

// TokenSource provides bearer tokens. Defined at the consumer so tests can
// supply a fixed token without an oauth2 dependency.
type TokenSource interface {
	Token() (string, error)
}

// oauthTokenSource adapts an oauth2.TokenSource to the cmsapi TokenSource
// interface.
type oauthTokenSource struct {
	src oauth2.TokenSource
}

func (s oauthTokenSource) Token() (string, error) {
	tok, err := s.src.Token()
	if err != nil {
		return "", fmt.Errorf("cmsapi: obtaining token: %w", err)
	}

	return tok.AccessToken, nil
}

// NewTokenSource wraps any oauth2 token source (for example one that
// exchanges a refresh token) for use with Client.
func NewTokenSource(src oauth2.TokenSource) TokenSource {
	return oauthTokenSource{src: oauth2.ReuseTokenSource(nil, src)}
}

// AccessKeyTokenSource returns a TokenSource that presents the account's
// personal access key as the bearer credential.
func AccessKeyTokenSource(key string) (TokenSource, error) {
	if key == "" {
		return nil, ErrNoAccessKey
	}

	return NewTokenSource(oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: key,
		TokenType:   "Bearer",
	})), nil
}
