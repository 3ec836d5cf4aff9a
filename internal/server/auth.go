package server

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"vanillasomethin/sitecms/internal/config"
	"vanillasomethin/sitecms/internal/utils"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/golang/glog"
)

const (
	sessionCookie  = "site_admin_session"
	sessionSubject = "admin"
)

var (
	errAdminDisabled = errors.New("Admin is not configured. Set SITE_ADMIN_TOKEN on the server.")
	errUnauthorized  = errors.New("Unauthorized")
)

// Auth guards the admin surface. The admin token never leaves the server:
// browsers exchange it once for a signed session cookie, tools send it as a
// bearer token.
type Auth struct {
	token        []byte
	secret       []byte
	ttl          time.Duration
	insecureOpen bool
	now          func() time.Time
}

// NewAuth creates the guard from the admin settings. Without a session secret
// a random one is generated, so sessions end with the process.
func NewAuth(cfg config.AdminConfig) (*Auth, error) {
	a := &Auth{
		token:        []byte(cfg.Token),
		secret:       []byte(cfg.SessionSecret),
		ttl:          cfg.SessionTTL,
		insecureOpen: cfg.InsecureOpen,
		now:          time.Now,
	}
	if a.ttl <= 0 {
		a.ttl = 12 * time.Hour
	}

	if len(a.secret) == 0 {
		a.secret = make([]byte, 32)
		if _, err := rand.Read(a.secret); err != nil {
			return nil, fmt.Errorf("failed to generate session secret: %w", err)
		}
		if len(a.token) > 0 {
			glog.Warningf("SITE_SESSION_SECRET not set, admin sessions will not survive a restart")
		}
	}

	if len(a.token) == 0 {
		if a.insecureOpen {
			glog.Warningf("Admin surface is open without authentication (admin.insecure_open)")
		} else {
			glog.Warningf("SITE_ADMIN_TOKEN not set, admin surface disabled")
		}
	}
	return a, nil
}

// Enabled reports whether an admin token is configured
func (a *Auth) Enabled() bool {
	return len(a.token) > 0
}

// CheckToken compares candidate with the admin token in constant time
func (a *Auth) CheckToken(candidate string) bool {
	if !a.Enabled() || candidate == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), a.token) == 1
}

// IssueSession signs a session token for the admin
func (a *Auth) IssueSession() (string, time.Time, error) {
	now := a.now()
	expires := now.Add(a.ttl)
	claims := gojwt.RegisteredClaims{
		Subject:   sessionSubject,
		ID:        utils.GenerateRandomID(),
		IssuedAt:  gojwt.NewNumericDate(now),
		ExpiresAt: gojwt.NewNumericDate(expires),
	}

	signed, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session: %w", err)
	}
	return signed, expires, nil
}

// VerifySession checks the signature, algorithm, subject and expiry of a session token
func (a *Auth) VerifySession(raw string) error {
	parser := gojwt.NewParser(
		gojwt.WithValidMethods([]string{gojwt.SigningMethodHS256.Alg()}),
		gojwt.WithExpirationRequired(),
		gojwt.WithSubject(sessionSubject),
		gojwt.WithTimeFunc(a.now),
	)

	_, err := parser.ParseWithClaims(raw, &gojwt.RegisteredClaims{}, func(token *gojwt.Token) (any, error) {
		return a.secret, nil
	})
	return err
}

// bearerToken extracts the token of an "Authorization: Bearer" header
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// authorize decides whether r may use the admin surface
func (a *Auth) authorize(r *http.Request) error {
	if !a.Enabled() {
		if a.insecureOpen {
			return nil
		}
		return errAdminDisabled
	}

	if token := bearerToken(r); token != "" {
		if a.CheckToken(token) {
			return nil
		}
		return errUnauthorized
	}

	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return errUnauthorized
	}
	if err := a.VerifySession(cookie.Value); err != nil {
		glog.V(1).Infof("Rejected admin session: %v", err)
		return errUnauthorized
	}
	return nil
}

// RequireAPI rejects unauthorized API calls with a JSON error
func (a *Auth) RequireAPI(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch err := a.authorize(r); {
		case err == nil:
			next.ServeHTTP(w, r)
		case errors.Is(err, errAdminDisabled):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
			writeError(w, http.StatusUnauthorized, err.Error())
		}
	})
}

// RequirePage sends unauthorized browsers to the login page
func (a *Auth) RequirePage(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch err := a.authorize(r); {
		case err == nil:
			next.ServeHTTP(w, r)
		case errors.Is(err, errAdminDisabled):
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
		default:
			http.Redirect(w, r, "/admin/login", http.StatusSeeOther)
		}
	})
}

// setSession stores a fresh session cookie
func (a *Auth) setSession(w http.ResponseWriter, r *http.Request) error {
	signed, expires, err := a.IssueSession()
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    signed,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
	return nil
}

// clearSession expires the session cookie
func (a *Auth) clearSession(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
}
