package main

import (
	"database/sql"
	"html/template"
	"os"
	"time"

	"github.com/gorilla/sessions"
	"github.com/sirupsen/logrus"
)

type Blog struct {
	db         *sql.DB
	templates  map[string]*template.Template
	cookies    *sessions.CookieStore
	creds      Credentials
	sessionTTL time.Duration
	metrics    *Metrics
	log        *logrus.Logger
}

func NewBlog(db *sql.DB, cfg *Config, creds Credentials, log *logrus.Logger) *Blog {
	return &Blog{
		db:         db,
		templates:  loadTemplates(),
		cookies:    newCookieStore(cfg.SecretKey, cfg.SecureCookies, cfg.SessionTTL),
		creds:      creds,
		sessionTTL: cfg.SessionTTL,
		metrics:    newMetrics(),
		log:        log,
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
