package objectstore

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"autobill/internal/invoice"
	"autobill/internal/logger"
)

// LocalStore writes PDFs under a directory.
type LocalStore struct {
	dir     string
	baseURL string // optional public prefix; file:// URLs otherwise
	log     zerolog.Logger
}

// NewLocalStore creates dir if needed.
func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	const op = "NewLocalStore"

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("%s: unable to create storage directory: %w", op, err)
	}
	return &LocalStore{
		dir:     abs,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     logger.WithComponent("objectstore-local"),
	}, nil
}

// Upload writes data atomically and returns its URL.
func (s *LocalStore) Upload(ctx context.Context, data []byte, invoiceNumber string) (*invoice.StoredObject, error) {
	const op = "LocalStore.Upload"

	if len(data) == 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrEmptyObject)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	name := objectName(invoiceNumber)
	path := filepath.Join(s.dir, name)

	tmp, err := os.CreateTemp(s.dir, name+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	link := (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
	if s.baseURL != "" {
		link = s.baseURL + "/" + url.PathEscape(name)
	}

	s.log.Debug().Str("path", path).Int("size", len(data)).Msg("Stored invoice PDF")
	return &invoice.StoredObject{URL: link, ObjectID: name}, nil
}

// Open returns the stored bytes of objectID.
func (s *LocalStore) Open(objectID string) ([]byte, error) {
	if objectID != filepath.Base(objectID) {
		return nil, fmt.Errorf("LocalStore.Open: invalid object id %q", objectID)
	}
	return os.ReadFile(filepath.Join(s.dir, objectID))
}
