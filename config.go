package main

import (
	"cmp"
	"errors"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

const (
	backendLocal  = "local"
	backendGCS    = "gcs"
	backendSQLite = "sqlite"

	mailMock  = "mock"
	mailGmail = "gmail"
	mailBrevo = "brevo"
)

type rawConfig struct {
	// Server
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	BaseURL      string `long:"base-url" env:"BASE_URL" description:"Public base URL used in notification emails"`
	PublishLimit int    `long:"publish-limit" env:"PUBLISH_LIMIT" default:"5" description:"Publishes allowed per client IP per hour"`

	// Storage
	Storage      string `long:"storage" env:"STORAGE_BACKEND" description:"Storage backend: local, gcs or sqlite (default: gcs when a bucket is set, else local)"`
	LocalStorage string `long:"local-storage" env:"LOCAL_STORAGE" default:"./data" description:"Directory for the local storage backend"`
	Bucket       string `long:"bucket" env:"STORAGE_BUCKET" description:"Cloud Storage bucket for the gcs backend"`
	SQLitePath   string `long:"sqlite-path" env:"SQLITE_PATH" default:"./data/notifier.db" description:"Database file for the sqlite backend"`
	Salt         string `long:"salt" env:"STORAGE_SALT" description:"Secret used to derive object names (required for gcs)"`

	// Delivery
	Topic       string        `long:"topic" env:"CONTENT_TOPIC" default:"content" description:"Bus topic content is published on"`
	BufferSize  int           `long:"buffer-size" env:"BUFFER_SIZE" default:"256" description:"Per-session delivery queue size"`
	PollTimeout time.Duration `long:"poll-timeout" env:"POLL_TIMEOUT" default:"100ms" description:"Longest a session waits for content before re-checking for shutdown"`
	GracePeriod time.Duration `long:"grace-period" env:"GRACE_PERIOD" default:"5s" description:"Longest a session close waits for its loop"`
	StopWords   string        `long:"stop-words" env:"STOP_WORDS_FILE" description:"YAML file with extra keyword stop words"`

	// Mail
	Mail         string `long:"mail" env:"MAIL_PROVIDER" description:"Mail provider: mock, gmail or brevo (default: gmail when Google credentials are set, else mock)"`
	MailWorkers  int    `long:"mail-workers" env:"MAIL_WORKERS" default:"4" description:"Concurrent notification sends"`
	MailQueue    int    `long:"mail-queue" env:"MAIL_QUEUE" default:"1024" description:"Notifications held while every mail worker is busy"`
	GoogleCreds  string `long:"google-credentials" env:"GOOGLE_CREDENTIALS_JSON" description:"Service account JSON for Gmail"`
	BrevoAPIKey  string `long:"brevo-api-key" env:"BREVO_API_KEY" description:"Brevo API key"`
	MailFrom     string `long:"mail-from" env:"MAIL_FROM" description:"Sender address for Brevo"`
	MailFromName string `long:"mail-from-name" env:"MAIL_FROM_NAME" default:"Keyword Notifier" description:"Sender name for Brevo"`

	Debug bool `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

type config struct {
	Port         string
	BaseURL      string
	PublishLimit int

	Storage      string
	LocalStorage string
	Bucket       string
	SQLitePath   string
	Salt         string

	Topic       string
	BufferSize  int
	PollTimeout time.Duration
	GracePeriod time.Duration
	StopWords   string

	Mail         string
	MailWorkers  int
	MailQueue    int
	GoogleCreds  string
	BrevoAPIKey  string
	MailFrom     string
	MailFromName string

	Debug bool
}

// loadConfig parses args and the environment. It returns nil, nil when help was requested.
func loadConfig(args []string) (*config, error) {
	var raw rawConfig

	parser := flags.NewParser(&raw, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &config{
		Port:         raw.Port,
		BaseURL:      raw.BaseURL,
		PublishLimit: raw.PublishLimit,
		LocalStorage: raw.LocalStorage,
		Bucket:       raw.Bucket,
		SQLitePath:   raw.SQLitePath,
		Salt:         raw.Salt,
		Topic:        raw.Topic,
		BufferSize:   raw.BufferSize,
		PollTimeout:  raw.PollTimeout,
		GracePeriod:  raw.GracePeriod,
		StopWords:    raw.StopWords,
		MailWorkers:  raw.MailWorkers,
		MailQueue:    raw.MailQueue,
		GoogleCreds:  raw.GoogleCreds,
		BrevoAPIKey:  raw.BrevoAPIKey,
		MailFrom:     raw.MailFrom,
		MailFromName: raw.MailFromName,
		Debug:        raw.Debug,
	}

	cfg.Storage = raw.Storage
	if cfg.Storage == "" {
		cfg.Storage = backendLocal
		if raw.Bucket != "" {
			cfg.Storage = backendGCS
		}
	}

	cfg.Mail = raw.Mail
	if cfg.Mail == "" {
		cfg.Mail = mailMock
		if raw.GoogleCreds != "" {
			cfg.Mail = mailGmail
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *config) validate() error {
	switch c.Storage {
	case backendLocal:
		if c.BaseURL == "" {
			c.BaseURL = "http://localhost:" + c.Port
		}
		c.Salt = cmp.Or(c.Salt, "local-development")
	case backendSQLite:
		if c.BaseURL == "" {
			c.BaseURL = "http://localhost:" + c.Port
		}
	case backendGCS:
		if c.Bucket == "" {
			return errors.New("gcs storage requires --bucket")
		}
		if c.Salt == "" {
			return errors.New("gcs storage requires --salt")
		}
		if c.BaseURL == "" {
			return errors.New("gcs storage requires --base-url (e.g., https://your-service.run.app)")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage)
	}

	switch c.Mail {
	case mailMock, mailGmail:
	case mailBrevo:
		if c.BrevoAPIKey == "" || c.MailFrom == "" {
			return errors.New("brevo mail requires --brevo-api-key and --mail-from")
		}
	default:
		return fmt.Errorf("unknown mail provider %q", c.Mail)
	}

	if c.PollTimeout <= 0 || c.GracePeriod <= 0 {
		return errors.New("poll timeout and grace period must be positive")
	}
	return nil
}
