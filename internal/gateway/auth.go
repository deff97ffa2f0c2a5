package gateway

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const bearerPrefix = "Bearer "

// bearerToken extracts the token from a bearer Authorization value, or ""
// if the scheme does not match.
func bearerToken(authorization string) string {
	if !strings.HasPrefix(authorization, bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(authorization[len(bearerPrefix):])
}

// isAuthorized checks the gateway's own shared secret on an inbound request.
// Either a bearer Authorization header or an x-api-key header is accepted.
// This secret is unrelated to the upstream OAuth credential.
func isAuthorized(r *http.Request, proxyKey string) bool {
	if proxyKey == "" {
		return false
	}
	if tok := bearerToken(r.Header.Get("Authorization")); tok != "" {
		if subtle.ConstantTimeCompare([]byte(tok), []byte(proxyKey)) == 1 {
			return true
		}
	}
	if key := r.Header.Get("x-api-key"); key != "" {
		return subtle.ConstantTimeCompare([]byte(key), []byte(proxyKey)) == 1
	}
	return false
}
