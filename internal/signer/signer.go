// Package signer issues and verifies the expiring bearer tokens that guard
// every playlist and segment request. A token binds a (video, resource)
// pair, an optional user, and an expiry under an HMAC-SHA256 MAC; authority
// is the process-wide secret, nothing is stored.
package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrMalformedToken is returned when a token cannot be decoded.
	ErrMalformedToken = errors.New("malformed token")

	// ErrBadSignature is returned when the MAC does not match the payload.
	ErrBadSignature = errors.New("invalid token signature")

	// ErrTokenExpired is returned when the token is past its expiry.
	ErrTokenExpired = errors.New("token expired")
)

// Payload is the verified content of a token.
type Payload struct {
	VideoID   uuid.UUID
	Resource  string // final path segment the token grants, e.g. "720p_007.ts"
	UserID    *uuid.UUID
	ExpiresAt time.Time
}

// tokenJSON is the wire shape of a token before base64url encoding.
type tokenJSON struct {
	VideoID   string `json:"vid"`
	Resource  string `json:"res"`
	UserID    string `json:"uid,omitempty"`
	ExpiresAt int64  `json:"exp"`
	MAC       string `json:"mac"`
}

// Signer mints and verifies resource-bound playback tokens.
type Signer struct {
	secret     []byte
	defaultTTL time.Duration
	now        func() time.Time
}

const minSecretLen = 32

// New creates a Signer. The secret must be at least 32 bytes.
func New(secret string, defaultTTL time.Duration) (*Signer, error) {
	if len(secret) < minSecretLen {
		return nil, fmt.Errorf("signer secret must be at least %d bytes, got %d", minSecretLen, len(secret))
	}
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}
	return &Signer{
		secret:     []byte(secret),
		defaultTTL: defaultTTL,
		now:        time.Now,
	}, nil
}

// Mint issues a token for a (video, resource) pair. A zero ttl uses the
// configured default. userID may be nil for anonymous playback of public
// and unlisted videos.
func (s *Signer) Mint(videoID uuid.UUID, resource string, userID *uuid.UUID, ttl time.Duration) (string, error) {
	if resource == "" {
		return "", fmt.Errorf("resource cannot be empty")
	}
	if ttl == 0 {
		ttl = s.defaultTTL
	}

	exp := s.now().Add(ttl).Unix()
	uid := ""
	if userID != nil {
		uid = userID.String()
	}

	tok := tokenJSON{
		VideoID:   videoID.String(),
		Resource:  resource,
		UserID:    uid,
		ExpiresAt: exp,
		MAC:       hex.EncodeToString(s.mac(videoID.String(), resource, exp, uid)),
	}

	raw, err := json.Marshal(tok)
	if err != nil {
		return "", fmt.Errorf("encode token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// MintMany issues one token per resource with a shared expiry basis.
func (s *Signer) MintMany(videoID uuid.UUID, resources []string, userID *uuid.UUID, ttl time.Duration) (map[string]string, error) {
	tokens := make(map[string]string, len(resources))
	for _, res := range resources {
		tok, err := s.Mint(videoID, res, userID, ttl)
		if err != nil {
			return nil, fmt.Errorf("mint token for %s: %w", res, err)
		}
		tokens[res] = tok
	}
	return tokens, nil
}

// Verify decodes a token, recomputes its MAC in constant time, and checks
// the expiry. Callers must additionally compare Payload.Resource against
// the final path segment of the request URL.
func (s *Signer) Verify(token string) (*Payload, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrMalformedToken
	}

	var tok tokenJSON
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, ErrMalformedToken
	}

	videoID, err := uuid.Parse(tok.VideoID)
	if err != nil {
		return nil, ErrMalformedToken
	}
	var userID *uuid.UUID
	if tok.UserID != "" {
		uid, err := uuid.Parse(tok.UserID)
		if err != nil {
			return nil, ErrMalformedToken
		}
		userID = &uid
	}
	if tok.Resource == "" {
		return nil, ErrMalformedToken
	}

	gotMAC, err := hex.DecodeString(tok.MAC)
	if err != nil {
		return nil, ErrMalformedToken
	}
	wantMAC := s.mac(tok.VideoID, tok.Resource, tok.ExpiresAt, tok.UserID)
	if !hmac.Equal(gotMAC, wantMAC) {
		return nil, ErrBadSignature
	}

	expiresAt := time.Unix(tok.ExpiresAt, 0)
	if s.now().After(expiresAt) {
		return nil, ErrTokenExpired
	}

	return &Payload{
		VideoID:   videoID,
		Resource:  tok.Resource,
		UserID:    userID,
		ExpiresAt: expiresAt,
	}, nil
}

// mac computes the HMAC over the deterministic payload serialization.
// The field separator cannot occur in UUIDs, unix timestamps, or the
// resource names admitted by the HLS server's filename check.
func (s *Signer) mac(videoID, resource string, expiresAt int64, userID string) []byte {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(videoID))
	h.Write([]byte{'\n'})
	h.Write([]byte(resource))
	h.Write([]byte{'\n'})
	h.Write([]byte(strconv.FormatInt(expiresAt, 10)))
	h.Write([]byte{'\n'})
	h.Write([]byte(userID))
	return h.Sum(nil)
}
