package web

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

type callerKey struct{}

// authenticate resolves the bearer token of the request to the account it acts as and passes it to
// next in the request context. Unknown or missing tokens get 401.
func (ws *WebServer) authenticate(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := ws.callerForToken(bearerToken(r))
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="bvault"`)
			ws.writeErrorResponse(w, http.StatusUnauthorized, "A valid bearer token is required")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, caller)))
	})
}

// callerForToken compares token against every configured token so the lookup time does not depend on
// which one matches.
func (ws *WebServer) callerForToken(token string) (string, bool) {
	if token == "" {
		return "", false
	}
	var caller string
	found := 0
	for t, address := range ws.tokens {
		if subtle.ConstantTimeCompare([]byte(token), []byte(t)) == 1 {
			caller = address
			found = 1
		}
	}
	return caller, found == 1
}

func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// callerFrom returns the authenticated account of a request that passed authenticate.
func callerFrom(r *http.Request) string {
	caller, _ := r.Context().Value(callerKey{}).(string)
	return caller
}
