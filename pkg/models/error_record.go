package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	ErrorTypeParsing    = "parsing"
	ErrorTypeNetworking = "networking"
	ErrorTypeIO         = "io"
	ErrorTypeCaptcha    = "captcha"
	ErrorTypeUnknown    = "unknown"
)

var ErrorTypes = []string{ErrorTypeParsing, ErrorTypeNetworking, ErrorTypeIO, ErrorTypeCaptcha, ErrorTypeUnknown}

type ErrorRecord struct {
	bun.BaseModel `bun:"table:error_records,alias:er"`

	ID          int       `bun:",pk,nullzero" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	ContentID   int       `bun:",nullzero" json:"content_id"`
	Type        string    `bun:",nullzero" json:"type"`
	Description string    `json:"description"`
	URL         *string   `json:"url,omitempty"`
	Data        *string   `json:"data,omitempty"`
}
