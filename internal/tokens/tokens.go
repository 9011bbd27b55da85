package tokens

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const callbackAudience = "document-result-callback"

// CallbackClaims scope a token to the result callback of a single document.
type CallbackClaims struct {
	DocumentID int64 `json:"doc"`
	jwt.RegisteredClaims
}

// CallbackSigner issues and verifies HS256 tokens that the analyzer worker
// presents when it reports a result back to the document API.
type CallbackSigner struct {
	secret []byte
	ttl    time.Duration
}

func NewCallbackSigner(secret string, ttl time.Duration) *CallbackSigner {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CallbackSigner{secret: []byte(secret), ttl: ttl}
}

// Issue creates a signed token for docID.
func (s *CallbackSigner) Issue(docID int64) (string, error) {
	if len(s.secret) == 0 {
		return "", errors.New("callback secret not configured")
	}
	now := time.Now()
	claims := CallbackClaims{
		DocumentID: docID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(docID, 10),
			Audience:  jwt.ClaimStrings{callbackAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	jt := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return jt.SignedString(s.secret)
}

// Verify checks signature, expiry and audience and returns the document id.
func (s *CallbackSigner) Verify(raw string) (int64, error) {
	var claims CallbackClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithAudience(callbackAudience))
	if err != nil {
		return 0, fmt.Errorf("parse callback token: %w", err)
	}
	return claims.DocumentID, nil
}
