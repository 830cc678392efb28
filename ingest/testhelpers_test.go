package ingest

import (
	"log/slog"

	"github.com/golang-jwt/jwt/v5"
)

var testJwtSecret = []byte("test-secret-at-least-32-bytes-long!")

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func signTestToken(subject string) (string, error) {
	claims := jwt.RegisteredClaims{Subject: subject}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(testJwtSecret)
}
