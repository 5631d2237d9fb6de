package config

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/Skotchmaster/elibrary/internal/models"
)

type Config struct {
	DB_HOST     string
	DB_PORT     string
	DB_USER     string
	DB_PASSWORD string
	DB_NAME     string

	JWT_SECRET string

	REDIS_URL string

	ES_URL      string
	ES_USER     string
	ES_PASSWORD string

	KAFKA_ADDRESS string

	// local | s3 | r2
	STORAGE_BACKEND   string
	LOCAL_STORAGE_DIR string

	AWS_ACCESS_KEY_ID     string
	AWS_SECRET_ACCESS_KEY string
	AWS_REGION            string
	AWS_BUCKET_NAME       string

	R2_ACCOUNT_ID        string
	R2_ACCESS_KEY_ID     string
	R2_SECRET_ACCESS_KEY string
	R2_BUCKET_NAME       string

	SUPERADMIN_EMAILS string

	MAIL_FROM string
	DOMAIN    string

	LOG_LEVEL string
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Notice: .env file not found: %v. Using system environment variables", err)
	}

	config := &Config{
		DB_HOST:     os.Getenv("DB_HOST"),
		DB_PORT:     os.Getenv("DB_PORT"),
		DB_USER:     os.Getenv("DB_USER"),
		DB_PASSWORD: os.Getenv("DB_PASSWORD"),
		DB_NAME:     os.Getenv("DB_NAME"),

		JWT_SECRET: os.Getenv("JWT_SECRET"),

		REDIS_URL: os.Getenv("REDIS_URL"),

		ES_URL:      os.Getenv("ES_URL"),
		ES_USER:     os.Getenv("ES_USER"),
		ES_PASSWORD: os.Getenv("ES_PASSWORD"),

		KAFKA_ADDRESS: os.Getenv("KAFKA_ADDRESS"),

		STORAGE_BACKEND:   os.Getenv("STORAGE_BACKEND"),
		LOCAL_STORAGE_DIR: os.Getenv("LOCAL_STORAGE_DIR"),

		AWS_ACCESS_KEY_ID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		AWS_SECRET_ACCESS_KEY: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		AWS_REGION:            os.Getenv("AWS_REGION"),
		AWS_BUCKET_NAME:       os.Getenv("AWS_BUCKET_NAME"),

		R2_ACCOUNT_ID:        os.Getenv("R2_ACCOUNT_ID"),
		R2_ACCESS_KEY_ID:     os.Getenv("R2_ACCESS_KEY_ID"),
		R2_SECRET_ACCESS_KEY: os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2_BUCKET_NAME:       os.Getenv("R2_BUCKET_NAME"),

		SUPERADMIN_EMAILS: os.Getenv("SUPERADMIN_EMAILS"),

		MAIL_FROM: os.Getenv("MAIL_FROM"),
		DOMAIN:    os.Getenv("DOMAIN"),

		LOG_LEVEL: os.Getenv("LOG_LEVEL"),
	}

	if config.STORAGE_BACKEND == "" {
		config.STORAGE_BACKEND = "local"
	}
	if config.LOCAL_STORAGE_DIR == "" {
		config.LOCAL_STORAGE_DIR = "static/books"
	}

	return config, nil
}

// SuperadminEmails splits the configured allowlist into trimmed addresses.
func (c *Config) SuperadminEmails() []string {
	if c.SUPERADMIN_EMAILS == "" {
		return nil
	}
	parts := strings.Split(c.SUPERADMIN_EMAILS, ",")
	emails := make([]string, 0, len(parts))
	for _, p := range parts {
		if e := strings.TrimSpace(p); e != "" {
			emails = append(emails, e)
		}
	}
	return emails
}

func InitDB() (*gorm.DB, error) {
	configuration, _ := LoadConfig()

	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		configuration.DB_USER,
		configuration.DB_PASSWORD,
		configuration.DB_HOST,
		configuration.DB_PORT,
		configuration.DB_NAME,
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("cannot connect to database: %w", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.Book{}, &models.Download{}); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return db, nil
}
