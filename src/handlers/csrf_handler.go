package handlers

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/username/conciliador/src/logger"
	"github.com/username/conciliador/src/utils"
)

const (
	csrfCookieName = "_conciliador_csrf"
	csrfHeaderName = "X-CSRF-Token"
)

// CSRFTokenHandler issues a double-submit token: the same value goes in a cookie
// and the response, and mutating requests must echo it in the X-CSRF-Token
// header. Tokens are signed with csrfKey so forged cookies are rejected.
func CSRFTokenHandler(csrfKey []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := signCSRFToken(csrfKey, generateRandomToken())
		logger.FromContext(r.Context()).Debug("Generated CSRF token", "remoteAddr", r.RemoteAddr)

		http.SetCookie(w, &http.Cookie{
			Name:     csrfCookieName,
			Value:    token,
			Path:     "/",
			SameSite: http.SameSiteLaxMode,
			HttpOnly: true,
			Secure:   r.TLS != nil,
			MaxAge:   3600,
		})

		w.Header().Set(csrfHeaderName, token)
		utils.SendJSON(w, http.StatusOK, map[string]string{"csrfToken": token})
	}
}

func generateRandomToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		logger.L.Error("Error generating random bytes for CSRF token", "error", err)
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

func csrfMAC(key []byte, nonce string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(nonce))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func signCSRFToken(key []byte, nonce string) string {
	return nonce + "." + csrfMAC(key, nonce)
}

func validCSRFToken(key []byte, token string) bool {
	nonce, sig, ok := strings.Cut(token, ".")
	if !ok || nonce == "" {
		return false
	}
	return hmac.Equal([]byte(sig), []byte(csrfMAC(key, nonce)))
}

// CSRFMiddleware checks the double-submit token on state-changing methods.
func CSRFMiddleware(csrfKey []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			headerToken := r.Header.Get(csrfHeaderName)
			cookie, errCookie := r.Cookie(csrfCookieName)
			if headerToken != "" && errCookie == nil &&
				subtle.ConstantTimeCompare([]byte(headerToken), []byte(cookie.Value)) == 1 &&
				validCSRFToken(csrfKey, headerToken) {
				next.ServeHTTP(w, r)
				return
			}

			logger.FromContext(r.Context()).Warn("CSRF validation failed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Bool("headerTokenPresent", headerToken != ""),
				slog.Bool("cookiePresent", errCookie == nil),
				slog.String("origin", r.Header.Get("Origin")),
			)
			utils.SendJSONError(w, "CSRF token validation failed", http.StatusForbidden)
		})
	}
}
