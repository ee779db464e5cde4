package publisher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"formatconv/contracts"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
)

type GCSConfig struct {
	Bucket       string
	Prefix       string
	SigningEmail string
	SigningKey   string
	URLTTL       time.Duration
}

// GCSStore uploads payloads to a bucket and hands out V4 signed download
// URLs. Revoking deletes the object, which invalidates the URL.
type GCSStore struct {
	client *storage.Client
	cfg    GCSConfig
}

func NewGCSStore(ctx context.Context, cfg GCSConfig) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}
	if cfg.URLTTL <= 0 {
		cfg.URLTTL = 15 * time.Minute
	}
	return &GCSStore{client: client, cfg: cfg}, nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}

func (s *GCSStore) objectKey(id string) string {
	return path.Join(s.cfg.Prefix, id)
}

func (s *GCSStore) Put(ctx context.Context, p contracts.Payload) (Reference, error) {
	id := uuid.NewString()
	key := s.objectKey(id)

	w := s.client.Bucket(s.cfg.Bucket).Object(key).NewWriter(ctx)
	w.ContentType = p.ContentType
	w.ContentDisposition = fmt.Sprintf("attachment; filename=%q", p.Filename)
	w.Metadata = map[string]string{"filename": p.Filename}
	if _, err := w.Write(p.Data); err != nil {
		w.Close()
		return Reference{}, fmt.Errorf("upload %s: %w", p.Filename, err)
	}
	if err := w.Close(); err != nil {
		return Reference{}, fmt.Errorf("upload %s: %w", p.Filename, err)
	}

	link, err := s.signedURL(key)
	if err != nil {
		return Reference{}, err
	}
	return newReference(id, link, p), nil
}

// signedURL signs with the configured service account key, or lets the
// client sign with its ambient credentials when none is configured.
func (s *GCSStore) signedURL(key string) (string, error) {
	opts := &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(s.cfg.URLTTL),
	}
	if s.cfg.SigningEmail != "" && s.cfg.SigningKey != "" {
		opts.GoogleAccessID = s.cfg.SigningEmail
		// literal \n sequences from env vars become real newlines
		opts.PrivateKey = []byte(strings.ReplaceAll(s.cfg.SigningKey, `\n`, "\n"))
		return storage.SignedURL(s.cfg.Bucket, key, opts)
	}
	return s.client.Bucket(s.cfg.Bucket).SignedURL(key, opts)
}

func (s *GCSStore) Open(ctx context.Context, id string) (contracts.Payload, error) {
	obj := s.client.Bucket(s.cfg.Bucket).Object(s.objectKey(id))
	r, err := obj.NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return contracts.Payload{}, ErrNotFound
		}
		return contracts.Payload{}, err
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return contracts.Payload{}, err
	}
	attrs, err := obj.Attrs(ctx)
	if err != nil {
		return contracts.Payload{}, err
	}
	return contracts.Payload{
		Filename:    attrs.Metadata["filename"],
		ContentType: attrs.ContentType,
		Data:        data,
	}, nil
}

func (s *GCSStore) Revoke(ctx context.Context, id string) error {
	err := s.client.Bucket(s.cfg.Bucket).Object(s.objectKey(id)).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return ErrNotFound
	}
	return err
}
