package main

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// connectionClaims is the payload of a short-lived WebSocket connection
// token: proof that the bearer was authorized (via a normal API-key
// request) to open a socket on behalf of patientID.
type connectionClaims struct {
	PatientID string `json:"patient_id"`
	jwt.RegisteredClaims
}

// issueConnectionToken signs a connection token for patientID, valid for
// ttl. A real deployment issues these from an authenticated HTTP endpoint
// (e.g. the helper/patient app calls an "open a session" REST endpoint and
// gets one back); this module doesn't expose that endpoint, since
// SPEC_FULL.md's HTTP surface centers on ingress event emission, not
// session management, but the signing/verification pair is the concrete
// mechanism `handleWebSocket` uses to decide whether to accept an upgrade.
func issueConnectionToken(secret, patientID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := connectionClaims{
		PatientID: patientID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// parseConnectionToken verifies tokenStr and returns the patient id it
// authorizes a connection for.
func parseConnectionToken(secret, tokenStr string) (string, error) {
	claims := &connectionClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid || claims.PatientID == "" {
		return "", fmt.Errorf("invalid connection token")
	}
	return claims.PatientID, nil
}
