package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/apex/log"
	"google.golang.org/api/iterator"

	"camera-analyze-service/llm"
)

// GCSStore serves snapshots from a Google Cloud Storage bucket. Images
// are handed to the vision model as short-lived signed URLs so the
// provider fetches them directly; when signing fails the object bytes
// are downloaded instead.
type GCSStore struct {
	client *gcs.Client
	bucket string
	prefix string
	ttl    time.Duration
}

func NewGCSStore(ctx context.Context, bucket, prefix string, ttl time.Duration) (*GCSStore, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSStore{
		client: client,
		bucket: bucket,
		prefix: prefix,
		ttl:    ttl,
	}, nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}

func (s *GCSStore) List(ctx context.Context) ([]string, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &gcs.Query{Prefix: s.prefix})

	var names []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list bucket %s: %w", s.bucket, err)
		}
		ext := strings.ToLower(path.Ext(attrs.Name))
		if ext == ".jpg" || ext == ".jpeg" {
			names = append(names, path.Base(attrs.Name))
		}
	}
	return names, nil
}

func (s *GCSStore) Resolve(ctx context.Context, name string) (llm.Image, error) {
	object := path.Join(s.prefix, path.Base(name))

	url, err := s.client.Bucket(s.bucket).SignedURL(object, &gcs.SignedURLOptions{
		Scheme:  gcs.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(s.ttl),
	})
	if err == nil {
		return llm.Image{URL: url}, nil
	}
	log.WithError(err).WithField("object", object).Warn("signed URL failed, downloading object")

	r, err := s.client.Bucket(s.bucket).Object(object).NewReader(ctx)
	if err != nil {
		if err == gcs.ErrObjectNotExist {
			return llm.Image{}, ErrNotFound
		}
		return llm.Image{}, fmt.Errorf("failed to open object %s: %w", object, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return llm.Image{}, fmt.Errorf("failed to download object %s: %w", object, err)
	}
	return llm.Image{Data: data}, nil
}
