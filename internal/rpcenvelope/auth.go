package rpcenvelope

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AdminClaims is the JWT payload an admin_req Request's Token must carry.
// Only admin_req notes are gated: state_change and restarter_req envelopes
// originate inside the daemon itself and never cross the signature check.
type AdminClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// IssueAdminToken signs an AdminClaims token for role, valid for ttl.
func IssueAdminToken(secret []byte, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := AdminClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// VerifyAdminToken validates signature and expiry, returning the claims.
func VerifyAdminToken(secret []byte, raw string) (*AdminClaims, error) {
	token, err := jwt.ParseWithClaims(raw, &AdminClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("admin token expired")
		}
		return nil, fmt.Errorf("invalid admin token: %w", err)
	}
	claims, ok := token.Claims.(*AdminClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid admin token claims")
	}
	return claims, nil
}

// canWrite reports whether role may submit admin_req notes at all; the
// daemon treats "operator" and "admin" as equivalent for now, but keeping
// the check in one place means a future read-only role slots in here.
func canWrite(role string) bool {
	return role == "admin" || role == "operator"
}

// Authorize verifies req.Token and checks its role against the envelope
// kind. state_change and restarter_req requests (which only the daemon
// itself ever submits, over a trusted local transport) skip the check.
func Authorize(secret []byte, req Request) error {
	if req.Envelope.Kind != "admin_req" {
		return nil
	}
	claims, err := VerifyAdminToken(secret, req.Token)
	if err != nil {
		return err
	}
	if !canWrite(claims.Role) {
		return fmt.Errorf("role %q not permitted to submit admin requests", claims.Role)
	}
	return nil
}
