package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v9"
	"gorm.io/gorm"

	"github.com/Skotchmaster/elibrary/internal/apperr"
	"github.com/Skotchmaster/elibrary/internal/es"
	"github.com/Skotchmaster/elibrary/internal/logging"
	"github.com/Skotchmaster/elibrary/internal/mail"
	"github.com/Skotchmaster/elibrary/internal/models"
	"github.com/Skotchmaster/elibrary/internal/mykafka"
	"github.com/Skotchmaster/elibrary/internal/storage"
	"github.com/Skotchmaster/elibrary/internal/util"
)

const StorageTasksTopic = "storage_tasks"

type BookService struct {
	DB       *gorm.DB
	Storage  storage.Backend
	ES       *elasticsearch.Client
	Producer *mykafka.Producer
	Mailer   *mail.Mailer
}

type BookCreate struct {
	Title       string `json:"title"`
	Author      string `json:"author"`
	Description string `json:"description"`
	CoverImage  string `json:"cover_image"`
}

// SaveBook uploads the file to the configured backend and records the book.
// The search index and the event stream are best-effort: the book exists
// once the database row does.
func (s *BookService) SaveBook(ctx context.Context, data BookCreate, filename string, content io.Reader, uploadedBy string) (*models.Book, error) {
	l := logging.FromContext(ctx).With("svc", "books.save", "title", data.Title)

	if data.Title == "" || data.Author == "" {
		return nil, fmt.Errorf("title and author are required: %w", apperr.ErrValidation)
	}

	var existing models.Book
	err := s.DB.Where("title = ? AND author = ?", data.Title, data.Author).First(&existing).Error
	if err == nil {
		return nil, fmt.Errorf("book already exists: %w", apperr.ErrConflict)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("lookup book: %w", err)
	}

	_, locator, sizeMB, err := s.Storage.Save(ctx, filename, content)
	if err != nil {
		return nil, fmt.Errorf("store file: %w", err)
	}

	book := models.Book{
		Title:       data.Title,
		Author:      data.Author,
		Description: data.Description,
		CoverImage:  data.CoverImage,
		FileURL:     locator,
		FileSize:    sizeMB,
		UploadedBy:  uploadedBy,
		UploadDate:  time.Now(),
	}
	if err := s.DB.Create(&book).Error; err != nil {
		// The row failed, so do not leave the file orphaned.
		if derr := s.Storage.Delete(ctx, locator); derr != nil {
			l.Warn("orphaned file not removed", "locator", locator, "error", derr)
		}
		return nil, fmt.Errorf("create book: %w", err)
	}

	if s.ES != nil {
		if err := es.IndexBook(ctx, s.ES, &book); err != nil {
			l.Warn("book not indexed", "book_uid", book.UID, "error", err)
		}
	}

	event := map[string]interface{}{"type": "book_uploaded", "book_uid": book.UID, "title": book.Title}
	if err := s.Producer.PublishEvent(ctx, "book_events", book.UID, event); err != nil {
		l.Warn("kafka publish error", "error", err)
	}

	l.Info("book saved", "book_uid", book.UID, "size_mb", sizeMB)
	return &book, nil
}

func (s *BookService) GetBook(uid string) (*models.Book, error) {
	var book models.Book
	if err := s.DB.Where("uid = ?", uid).First(&book).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("book is not available: %w", apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("lookup book: %w", err)
	}
	return &book, nil
}

func (s *BookService) ListBooks(page, size int) ([]models.Book, int64, error) {
	var total int64
	if err := s.DB.Model(&models.Book{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var books []models.Book
	from, limit := util.Calculate(page, size)
	if err := s.DB.Order("upload_date DESC").Offset(from).Limit(limit).Find(&books).Error; err != nil {
		return nil, 0, err
	}
	return books, total, nil
}

// SearchBooks is the database-side title/author search. LOWER+LIKE instead
// of ILIKE so the same query runs on postgres and the sqlite test database.
func (s *BookService) SearchBooks(title, author string) ([]models.Book, error) {
	if title == "" && author == "" {
		return nil, fmt.Errorf("provide a title or an author to search for: %w", apperr.ErrValidation)
	}

	q := s.DB.Model(&models.Book{})
	if title != "" {
		q = q.Where("LOWER(title) LIKE ?", "%"+strings.ToLower(title)+"%")
	}
	if author != "" {
		q = q.Where("LOWER(author) LIKE ?", "%"+strings.ToLower(author)+"%")
	}

	var books []models.Book
	if err := q.Find(&books).Error; err != nil {
		return nil, fmt.Errorf("search books: %w", err)
	}
	if len(books) == 0 {
		return nil, fmt.Errorf("no book matched the search criteria: %w", apperr.ErrNotFound)
	}
	return books, nil
}

// DeleteBook removes the record and hands the file cleanup to the task
// queue; the request does not wait on storage.
func (s *BookService) DeleteBook(ctx context.Context, uid string) error {
	l := logging.FromContext(ctx).With("svc", "books.delete", "book_uid", uid)

	book, err := s.GetBook(uid)
	if err != nil {
		return err
	}

	if err := s.DB.Delete(&models.Book{}, "uid = ?", uid).Error; err != nil {
		return fmt.Errorf("delete book: %w", err)
	}

	task := map[string]interface{}{"type": "delete_file", "locator": book.FileURL}
	if err := s.Producer.PublishEvent(ctx, StorageTasksTopic, book.UID, task); err != nil {
		l.Warn("file deletion task not dispatched", "error", err)
	}

	if s.ES != nil {
		if err := es.DeleteBook(ctx, s.ES, uid); err != nil {
			l.Warn("book not de-indexed", "error", err)
		}
	}

	l.Info("book deleted")
	return nil
}

// RecordDownload appends a ledger row and dispatches the receipt email.
func (s *BookService) RecordDownload(ctx context.Context, user *models.User, book *models.Book) (*models.Download, error) {
	l := logging.FromContext(ctx).With("svc", "books.download", "book_uid", book.UID, "user_uid", user.UID)

	d := models.Download{
		UserID:    user.UID,
		BookID:    book.UID,
		Timestamp: time.Now(),
	}
	if err := s.DB.Create(&d).Error; err != nil {
		return nil, fmt.Errorf("record download: %w", err)
	}

	err := s.Mailer.Send(ctx, mail.Message{
		Recipients: []string{user.Email},
		Subject:    fmt.Sprintf("Your download: %s", book.Title),
		Template:   "download_receipt",
		Vars:       map[string]string{"first_name": user.FirstName, "title": book.Title, "author": book.Author},
	})
	if err != nil {
		l.Warn("download receipt not dispatched", "error", err)
	} else {
		if uerr := s.DB.Model(&d).Update("was_emailed", true).Error; uerr == nil {
			d.WasEmailed = true
		}
	}

	return &d, nil
}

func (s *BookService) ListDownloads(userUID string, page, size int) ([]models.Download, int64, error) {
	var total int64
	if err := s.DB.Model(&models.Download{}).Where("user_id = ?", userUID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var downloads []models.Download
	from, limit := util.Calculate(page, size)
	if err := s.DB.Where("user_id = ?", userUID).
		Order("timestamp DESC").Offset(from).Limit(limit).Find(&downloads).Error; err != nil {
		return nil, 0, err
	}
	return downloads, total, nil
}
