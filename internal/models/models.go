package models

import (
	"time"
)

// Post lifecycle statuses. Transitions are gated by capabilities in the
// auth middleware; the handlers only write the new status.
const (
	StatusDraft     = "draft"
	StatusSubmitted = "submitted"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusPublished = "published"
)

// Post content types accepted by the magazine.
const (
	TypeArticle = "article"
	TypePoem    = "poem"
	TypeArt     = "art"
	TypeNews    = "news"
)

type User struct {
	ID           uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	SubjectID    string `gorm:"uniqueIndex;not null"     json:"subject_id"`
	Username     string `gorm:"unique;not null"          json:"username"`
	Email        string `gorm:"unique;not null"          json:"email"`
	PasswordHash string `gorm:"not null"                 json:"-"`
	Role         string `gorm:"not null"                 json:"role"`
}

type Profile struct {
	ID          uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      uint   `gorm:"index;not null"           json:"user_id"`
	SubjectID   string `gorm:"uniqueIndex;not null"     json:"subject_id"`
	DisplayName string `gorm:"not null"                 json:"display_name"`
	Department  string `json:"department"`
	Role        string `gorm:"not null"                 json:"role"`
}

type Post struct {
	ID          uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	AuthorID    uint       `gorm:"index;not null"           json:"author_id"`
	Type        string     `gorm:"not null"                 json:"type"`
	Title       string     `gorm:"not null"                 json:"title"`
	Body        string     `json:"body"`
	Status      string     `gorm:"index;not null"           json:"status"`
	ReviewedBy  string     `json:"reviewed_by,omitempty"`
	PublishedBy string     `json:"published_by,omitempty"`
	EditionID   *uint      `gorm:"index"                    json:"edition_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

type Edition struct {
	ID          uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	Title       string     `gorm:"not null"                 json:"title"`
	Volume      int        `gorm:"not null"                 json:"volume"`
	PDFKey      string     `json:"pdf_key,omitempty"`
	Published   bool       `gorm:"default:false"            json:"published"`
	PublishedBy string     `json:"published_by,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
