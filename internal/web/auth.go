package web

import (
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/crypto/argon2"

	"myplanner/internal/config"
	appLog "myplanner/internal/log"
)

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic
// Auth. The configured password may be an argon2id encoded hash
// ($argon2id$v=19$m=...,t=...,p=...$salt$hash) or a plaintext value
// compared in constant time.
func basicAuthMiddleware(auth *config.BasicAuthConfig, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, auth.Username) || !verifyPassword(p, auth.Password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="MyPlanner", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// verifyPassword checks the presented password against the stored value,
// dispatching on the argon2id prefix.
func verifyPassword(password, stored string) bool {
	if strings.HasPrefix(stored, "$argon2id$") {
		ok, err := verifyArgon2id(password, stored)
		if err != nil {
			appLog.Error("auth: bad argon2id hash in config", err)
			return false
		}
		return ok
	}
	return secureCompare(password, stored)
}

// verifyArgon2id verifies a password against an encoded hash of the form
// $argon2id$v=19$m=65536,t=1,p=4$salt$hash (base64 raw std encoding).
func verifyArgon2id(password, encoded string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, fmt.Errorf("invalid hash format")
	}

	var memory, iterations, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return false, fmt.Errorf("parse hash parameters: %w", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, fmt.Errorf("decode salt: %w", err)
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, fmt.Errorf("decode hash: %w", err)
	}

	got := argon2.IDKey([]byte(password), salt, iterations, memory, uint8(threads), uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
