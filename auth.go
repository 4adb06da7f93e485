package main

import (
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
	"golang.org/x/crypto/bcrypt"
)

const (
	sessionCookieName = "session"
	sessionTokenKey   = "token"

	msgLoggedIn        = "You were logged in"
	msgLoggedOut       = "You were logged out"
	msgInvalidUsername = "Invalid username"
	msgInvalidPassword = "Invalid password"
	msgLoginRequired   = "You need to log in"
)

// Credentials is the single admin identity allowed to write.
type Credentials struct {
	Username     string
	PasswordHash string
}

func newCredentials(cfg *Config) (Credentials, error) {
	hash := cfg.PasswordHash
	if hash == "" {
		h, err := hashPassword(cfg.Password)
		if err != nil {
			return Credentials{}, err
		}
		hash = h
	}
	return Credentials{Username: cfg.Username, PasswordHash: hash}, nil
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

func checkPassword(hash, password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// check reports whether username and password match. The username is
// checked first; msg says which of the two was wrong.
func (c Credentials) check(username, password string) (ok bool, msg string) {
	if subtle.ConstantTimeCompare([]byte(username), []byte(c.Username)) != 1 {
		return false, msgInvalidUsername
	}
	if !checkPassword(c.PasswordHash, password) {
		return false, msgInvalidPassword
	}
	return true, ""
}

func generateToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

func createSession(db *sql.DB, ttl time.Duration) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", fmt.Errorf("generating session token: %w", err)
	}

	expiresAt := time.Now().UTC().Add(ttl)
	_, err = db.Exec(`
		INSERT INTO sessions (token, expires_at)
		VALUES (?, ?)`, token, expiresAt)
	if err != nil {
		return "", fmt.Errorf("inserting session: %w", err)
	}

	return token, nil
}

func getSession(db *sql.DB, token string) (*Session, error) {
	row := db.QueryRow(`
		SELECT token, expires_at
		FROM sessions
		WHERE token = ? AND expires_at > ?`, token, time.Now().UTC())

	var session Session
	err := row.Scan(&session.Token, &session.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning session: %w", err)
	}

	return &session, nil
}

func deleteSession(db *sql.DB, token string) error {
	_, err := db.Exec("DELETE FROM sessions WHERE token = ?", token)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

func cleanupExpiredSessions(db *sql.DB) (int64, error) {
	res, err := db.Exec("DELETE FROM sessions WHERE expires_at < ?", time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("cleaning up expired sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func newCookieStore(secret string, secure bool, ttl time.Duration) *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

// cookieSession returns the signed cookie session for r. A cookie that fails
// to decode (rotated key, tampering) yields a fresh, empty session.
func (b *Blog) cookieSession(r *http.Request) *sessions.Session {
	sess, err := b.cookies.Get(r, sessionCookieName)
	if err != nil {
		b.logFor(r).WithError(err).Debug("discarding undecodable session cookie")
	}
	return sess
}

// flash queues a message for the next rendered page.
func (b *Blog) flash(w http.ResponseWriter, r *http.Request, msg string) error {
	sess := b.cookieSession(r)
	sess.AddFlash(msg)
	return sess.Save(r, w)
}

// takeFlashes pops queued messages. The cookie is only rewritten when there
// was something to pop.
func (b *Blog) takeFlashes(w http.ResponseWriter, r *http.Request) []string {
	sess := b.cookieSession(r)
	raw := sess.Flashes()
	if len(raw) == 0 {
		return nil
	}

	msgs := make([]string, 0, len(raw))
	for _, f := range raw {
		if s, ok := f.(string); ok {
			msgs = append(msgs, s)
		}
	}
	if err := sess.Save(r, w); err != nil {
		b.logFor(r).WithError(err).Error("saving session after reading flashes")
	}
	return msgs
}

// logIn records a new server-side session and binds its token to the cookie.
func (b *Blog) logIn(w http.ResponseWriter, r *http.Request) error {
	token, err := createSession(b.db, b.sessionTTL)
	if err != nil {
		return err
	}

	sess := b.cookieSession(r)
	if old, ok := sess.Values[sessionTokenKey].(string); ok && old != "" {
		if err := deleteSession(b.db, old); err != nil {
			return err
		}
	}
	sess.Values[sessionTokenKey] = token
	sess.AddFlash(msgLoggedIn)
	return sess.Save(r, w)
}

// logOut drops the server-side session, if any. It is safe to call when
// nobody is logged in.
func (b *Blog) logOut(w http.ResponseWriter, r *http.Request) error {
	sess := b.cookieSession(r)
	if token, ok := sess.Values[sessionTokenKey].(string); ok && token != "" {
		if err := deleteSession(b.db, token); err != nil {
			return err
		}
	}
	delete(sess.Values, sessionTokenKey)
	sess.AddFlash(msgLoggedOut)
	return sess.Save(r, w)
}

// isAuthenticated checks if the current request has a valid session
func (b *Blog) isAuthenticated(r *http.Request) bool {
	token, ok := b.cookieSession(r).Values[sessionTokenKey].(string)
	if !ok || token == "" {
		return false
	}

	session, err := getSession(b.db, token)
	if err != nil {
		b.logFor(r).WithError(err).Error("looking up session")
		return false
	}
	return session != nil
}

// requireAuth is middleware that protects routes requiring authentication
func (b *Blog) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !b.isAuthenticated(r) {
			http.Error(w, msgLoginRequired, http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
