// Package blob stores documents referenced by file parameters.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rom8726/labflow"
)

type Driver string

const (
	DriverMemory Driver = "memory"
	DriverS3     Driver = "s3"
)

var (
	ErrNotFound = errors.New("blob not found")
	ErrExists   = errors.New("blob already exists")
)

// Store is the document storage surface. Every Store doubles as a
// labflow.FileResolver through Exists.
type Store interface {
	labflow.FileResolver

	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Driver() Driver
}

type Config struct {
	Driver     Driver
	S3Bucket   string
	S3Region   string
	S3Endpoint string
	PathStyle  bool
}

// Open builds the store selected by cfg.Driver. An empty driver means memory.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch Driver(strings.ToLower(string(cfg.Driver))) {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverS3:
		store, err := NewS3Store(ctx, S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.PathStyle,
		})
		if err != nil {
			return nil, err
		}

		return store, nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}

func validKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: empty blob key", labflow.ErrInvalidInput)
	}

	return nil
}
