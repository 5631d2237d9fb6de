package es

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/elastic/go-elasticsearch/v9"

	"github.com/Skotchmaster/elibrary/internal/config"
	"github.com/Skotchmaster/elibrary/internal/models"
)

const BookIndex = "books"

func NewClient(cfg *config.Config) (*elasticsearch.Client, error) {
	esCfg := elasticsearch.Config{
		Addresses: []string{cfg.ES_URL},
		Username:  cfg.ES_USER,
		Password:  cfg.ES_PASSWORD,
	}

	client, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch client: %w", err)
	}

	res, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("elasticsearch info: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("elasticsearch error: %s: %s", res.Status(), body)
	}

	return client, nil
}

// IndexBook upserts a book document keyed by its uid.
func IndexBook(ctx context.Context, client *elasticsearch.Client, book *models.Book) error {
	data, err := json.Marshal(book)
	if err != nil {
		return err
	}

	res, err := client.Index(
		BookIndex,
		bytes.NewReader(data),
		client.Index.WithContext(ctx),
		client.Index.WithDocumentID(book.UID),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("index book %s: %s", book.UID, res.Status())
	}
	return nil
}

func DeleteBook(ctx context.Context, client *elasticsearch.Client, uid string) error {
	res, err := client.Delete(BookIndex, uid, client.Delete.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != 404 {
		return fmt.Errorf("delete book %s: %s", uid, res.Status())
	}
	return nil
}
