// Package token issues the signed event passes recorded on a participant
// aggregate after a registration submission. A pass binds one participant to
// one event and form; scanning it at the venue only needs the shared secret.
package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type passClaims struct {
	jwt.RegisteredClaims
	EventID int64 `json:"event_id"`
	FormID  int64 `json:"form_id"`
}

// PassClaims captures the validated contents of an event pass.
type PassClaims struct {
	Email    string
	EventID  int64
	FormID   int64
	IssuedAt time.Time
}

// Issuer signs and verifies event passes with an HMAC secret injected at
// construction.
type Issuer struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewIssuer(secret, issuer string) (*Issuer, error) {
	if secret == "" {
		return nil, errors.New("pass secret is required")
	}
	return &Issuer{secret: []byte(secret), issuer: issuer, now: time.Now}, nil
}

// Issue signs a pass for the given participant, event, and form.
func (i *Issuer) Issue(email string, eventID, formID int64) (string, error) {
	now := i.now()
	claims := passClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   i.issuer,
			Subject:  email,
			IssuedAt: jwt.NewNumericDate(now),
			ID:       strconv.FormatInt(now.UnixNano(), 10),
		},
		EventID: eventID,
		FormID:  formID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign event pass: %w", err)
	}
	return signed, nil
}

// Verify parses a pass and returns its claims, rejecting bad signatures and
// foreign issuers.
func (i *Issuer) Verify(raw string) (PassClaims, error) {
	var claims passClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithIssuer(i.issuer))
	if err != nil {
		return PassClaims{}, fmt.Errorf("parse event pass: %w", err)
	}
	out := PassClaims{
		Email:   claims.Subject,
		EventID: claims.EventID,
		FormID:  claims.FormID,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	return out, nil
}
