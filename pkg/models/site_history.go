package models

import (
	"time"

	"github.com/uptrace/bun"
)

// SiteHistory remembers the last URL browsed on a site.
type SiteHistory struct {
	bun.BaseModel `bun:"table:site_histories,alias:sh"`

	Site      string    `bun:",pk" json:"site"`
	URL       string    `json:"url"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StatusCount is the number of books in one status, maintained alongside
// every write that changes a status.
type StatusCount struct {
	bun.BaseModel `bun:"table:content_status_counts,alias:csc"`

	Status string `bun:",pk" json:"status"`
	Total  int    `json:"total"`
}
