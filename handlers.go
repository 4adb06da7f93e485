package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

const msgEntryPosted = "New entry was successfully posted"

// deleteResult is the JSON body returned by the delete endpoint.
type deleteResult struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func (b *Blog) render(w http.ResponseWriter, r *http.Request, page string, data map[string]any) {
	data["IsAuthenticated"] = b.isAuthenticated(r)
	data["Flashes"] = b.takeFlashes(w, r)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := b.templates[page].ExecuteTemplate(w, "base", data); err != nil {
		b.logFor(r).WithError(err).WithField("page", page).Error("rendering template")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (b *Blog) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		b.logFor(r).WithError(err).Error("encoding json response")
	}
}

func (b *Blog) Index(w http.ResponseWriter, r *http.Request) {
	posts, err := getPosts(b.db)
	if err != nil {
		b.logFor(r).WithError(err).Error("listing posts")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	b.render(w, r, "home.html", map[string]any{
		"Title": "Entries",
		"Posts": posts,
	})
}

func (b *Blog) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		b.render(w, r, "login.html", map[string]any{"Title": "Login"})
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	username := r.FormValue("username")
	password := r.FormValue("password")

	ok, msg := b.creds.check(username, password)
	b.metrics.observeLogin(msg)
	if !ok {
		b.logFor(r).WithField("reason", msg).Warn("failed login")
		b.render(w, r, "login.html", map[string]any{
			"Title":    "Login",
			"Error":    msg,
			"Username": username,
		})
		return
	}

	if err := b.logIn(w, r); err != nil {
		b.logFor(r).WithError(err).Error("logging in")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (b *Blog) Logout(w http.ResponseWriter, r *http.Request) {
	if err := b.logOut(w, r); err != nil {
		b.logFor(r).WithError(err).Error("logging out")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (b *Blog) Add(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	title := r.FormValue("title")
	text := r.FormValue("text")

	id, err := createPost(b.db, title, text)
	if err != nil {
		b.logFor(r).WithError(err).Error("creating post")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	b.logFor(r).WithField("post_id", id).Info("post created")
	b.refreshEntries(r)

	if err := b.flash(w, r, msgEntryPosted); err != nil {
		b.logFor(r).WithError(err).Error("saving flash")
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Delete answers in JSON: status 1 when the caller is logged in and the
// delete ran (an id that no longer exists still counts), status 0 otherwise.
func (b *Blog) Delete(w http.ResponseWriter, r *http.Request) {
	if !b.isAuthenticated(r) {
		b.writeJSON(w, r, http.StatusUnauthorized, deleteResult{Status: 0, Message: msgLoginRequired})
		return
	}

	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid post ID", http.StatusBadRequest)
		return
	}

	post, err := getPostByID(b.db, id)
	if err != nil {
		b.logFor(r).WithError(err).Error("looking up post")
		b.writeJSON(w, r, http.StatusInternalServerError, deleteResult{Status: 0, Message: err.Error()})
		return
	}
	if post == nil {
		b.logFor(r).WithField("post_id", id).Info("post already deleted")
		b.writeJSON(w, r, http.StatusOK, deleteResult{Status: 1, Message: "Post Deleted"})
		return
	}

	if err := deletePost(b.db, id); err != nil {
		b.logFor(r).WithError(err).Error("deleting post")
		b.writeJSON(w, r, http.StatusInternalServerError, deleteResult{Status: 0, Message: err.Error()})
		return
	}
	b.logFor(r).WithFields(logrus.Fields{"post_id": id, "title": post.Title}).Info("post deleted")
	b.refreshEntries(r)

	b.writeJSON(w, r, http.StatusOK, deleteResult{Status: 1, Message: "Post Deleted"})
}

// Search matches the query exactly as given, surrounding spaces included.
func (b *Blog) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")

	var posts []Post
	if query != "" {
		var err error
		posts, err = searchPosts(b.db, query)
		if err != nil {
			b.logFor(r).WithError(err).Error("searching posts")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
	}

	b.render(w, r, "search.html", map[string]any{
		"Title": "Search",
		"Query": query,
		"Posts": posts,
	})
}

func (b *Blog) Health(w http.ResponseWriter, r *http.Request) {
	if err := b.db.PingContext(r.Context()); err != nil {
		b.logFor(r).WithError(err).Error("health check")
		b.writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	b.writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (b *Blog) refreshEntries(r *http.Request) {
	if err := b.metrics.refreshEntries(b.db); err != nil {
		b.logFor(r).WithError(err).Warn("refreshing entries gauge")
	}
}
