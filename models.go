package main

import (
	"html/template"
	"time"
)

type Post struct {
	ID        int
	Title     string
	Text      string
	CreatedAt time.Time
}

// Body returns the entry text for rendering. Entries may carry markup, so
// the text is passed to templates unescaped; titles are not.
func (p Post) Body() template.HTML {
	return template.HTML(p.Text)
}

type Session struct {
	Token     string
	ExpiresAt time.Time
}
