// Package token issues and verifies the signed bearer tokens that carry a
// session. Tokens are HS256 JWTs with a fixed 7-day lifetime; there is no
// refresh, expiry forces a new login.
package token

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/formsmith/formsmith/internal/model"
)

const TTL = 7 * 24 * time.Hour

// Payload is the verified content of a session token.
type Payload struct {
	UserID int64
	Role   model.Role
	TeamID *int64
}

type claims struct {
	Role   string `json:"role"`
	TeamID *int64 `json:"team_id,omitempty"`
	jwt.RegisteredClaims
}

// Service signs and verifies session tokens with a shared symmetric key.
type Service struct {
	secret []byte
	now    func() time.Time
}

// NewService fails only on a missing key; that is a startup condition, not a
// per-request error.
func NewService(secret string) (*Service, error) {
	if secret == "" {
		return nil, fmt.Errorf("token: signing secret is not set")
	}
	return &Service{secret: []byte(secret), now: time.Now}, nil
}

// Issue produces a signed token for the given principal.
func (s *Service) Issue(userID int64, role model.Role, teamID *int64) (string, error) {
	now := s.now().UTC()
	c := claims{
		Role:   string(role),
		TeamID: teamID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TTL)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token. Any failure — malformed input, bad
// signature, wrong algorithm, expiry — returns (nil, false). It never
// distinguishes why: a bad token is simply no session.
func (s *Service) Verify(raw string) (*Payload, bool) {
	var c claims
	tok, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil || !tok.Valid {
		return nil, false
	}

	userID, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return nil, false
	}

	role := model.Role(c.Role)
	if role != model.RoleUser && role != model.RoleAdmin {
		return nil, false
	}

	return &Payload{UserID: userID, Role: role, TeamID: c.TeamID}, true
}
