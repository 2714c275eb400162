package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	"google.golang.org/api/storage/v1"

	"autobill/internal/invoice"
	"autobill/internal/logger"
)

// GCSConfig configures the bucket uploads go to.
type GCSConfig struct {
	Bucket string
	Prefix string // object name prefix, e.g. "invoices"
}

// GCSStore uploads PDFs to Google Cloud Storage.
type GCSStore struct {
	service *storage.Service
	config  GCSConfig
	log     zerolog.Logger
}

// NewGCSStore creates a store using credentials from GOOGLE_CREDENTIALS (inline JSON)
// or GOOGLE_APPLICATION_CREDENTIALS (file path), falling back to application defaults.
func NewGCSStore(ctx context.Context, config GCSConfig) (*GCSStore, error) {
	const op = "NewGCSStore"

	var opts []option.ClientOption
	if creds := os.Getenv("GOOGLE_CREDENTIALS"); creds != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
	} else if file := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); file != "" {
		opts = append(opts, option.WithCredentialsFile(file))
	}
	opts = append(opts, option.WithScopes(storage.DevstorageReadWriteScope))

	service, err := storage.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create storage service: %w", op, err)
	}
	return NewGCSStoreWithService(service, config), nil
}

// NewGCSStoreWithService creates a store with an explicit service.
func NewGCSStoreWithService(service *storage.Service, config GCSConfig) *GCSStore {
	config.Prefix = strings.Trim(config.Prefix, "/")
	return &GCSStore{
		service: service,
		config:  config,
		log:     logger.WithComponent("objectstore-gcs"),
	}
}

// Upload stores data as <prefix>/<invoice number>.pdf.
func (s *GCSStore) Upload(ctx context.Context, data []byte, invoiceNumber string) (*invoice.StoredObject, error) {
	const op = "GCSStore.Upload"

	if len(data) == 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrEmptyObject)
	}

	name := objectName(invoiceNumber)
	if s.config.Prefix != "" {
		name = path.Join(s.config.Prefix, name)
	}

	obj := &storage.Object{
		Name:        name,
		ContentType: "application/pdf",
		Metadata:    map[string]string{"invoice_number": invoiceNumber},
	}

	stored, err := s.service.Objects.Insert(s.config.Bucket, obj).
		Media(bytes.NewReader(data)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("%s: upload %s to bucket %s: %w", op, name, s.config.Bucket, err)
	}

	publicURL := fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.config.Bucket, (&url.URL{Path: stored.Name}).EscapedPath())

	s.log.Info().
		Str("bucket", s.config.Bucket).
		Str("object", stored.Name).
		Int64("generation", stored.Generation).
		Int("size", len(data)).
		Msg("Uploaded invoice PDF")

	return &invoice.StoredObject{
		URL:      publicURL,
		ObjectID: fmt.Sprintf("%s/%s#%d", s.config.Bucket, stored.Name, stored.Generation),
	}, nil
}
