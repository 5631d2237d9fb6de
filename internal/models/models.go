package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RoleUser       = "user"
	RoleAdmin      = "admin"
	RoleSuperadmin = "superadmin"
)

type User struct {
	UID          string    `gorm:"primaryKey;size:36"    json:"uid"`
	Username     string    `json:"username"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Email        string    `gorm:"uniqueIndex;not null"  json:"email"`
	PasswordHash string    `gorm:"not null"              json:"-"`
	Role         string    `gorm:"not null;default:user" json:"role"`
	IsVerified   bool      `gorm:"default:false"         json:"is_verified"`
	CreatedAt    time.Time `json:"created_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.UID == "" {
		u.UID = uuid.NewString()
	}
	return nil
}

type Book struct {
	UID         string    `gorm:"primaryKey;size:36" json:"uid"`
	Title       string    `gorm:"not null;index"     json:"title"`
	Author      string    `gorm:"not null;index"     json:"author"`
	Description string    `json:"description"`
	FileURL     string    `gorm:"not null"           json:"file_url"`
	FileSize    float64   `gorm:"not null"           json:"file_size"`
	CoverImage  string    `json:"cover_image,omitempty"`
	UploadedBy  string    `gorm:"size:36;index"      json:"uploaded_by"`
	UploadDate  time.Time `json:"upload_date"`
}

func (b *Book) BeforeCreate(tx *gorm.DB) error {
	if b.UID == "" {
		b.UID = uuid.NewString()
	}
	return nil
}

// Download is one row of the lending ledger: who fetched which book and when.
type Download struct {
	UID        string    `gorm:"primaryKey;size:36" json:"uid"`
	UserID     string    `gorm:"size:36;index"      json:"user_id"`
	BookID     string    `gorm:"size:36;index"      json:"book_id"`
	Timestamp  time.Time `json:"timestamp"`
	WasEmailed bool      `gorm:"default:false"      json:"was_emailed"`
}

func (d *Download) BeforeCreate(tx *gorm.DB) error {
	if d.UID == "" {
		d.UID = uuid.NewString()
	}
	return nil
}
