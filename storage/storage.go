// Package storage abstracts where camera snapshots live. The pipeline
// only needs to enumerate image names and hand each one to the vision
// model, either as a fetchable URL or as raw bytes.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"camera-analyze-service/llm"
)

// ErrNotFound is returned when a named image does not exist in the store.
var ErrNotFound = errors.New("image not found")

// Store enumerates camera snapshots and resolves each one into a form
// the vision model can consume.
type Store interface {
	// List returns the image names available for analysis.
	List(ctx context.Context) ([]string, error)
	// Resolve turns an image name into a URL or raw bytes.
	Resolve(ctx context.Context, name string) (llm.Image, error)
}

// LocalStore serves snapshots from a directory on disk.
type LocalStore struct {
	dir string
}

func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{dir: dir}
}

func (s *LocalStore) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read images directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".jpg" || ext == ".jpeg" {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func (s *LocalStore) Resolve(ctx context.Context, name string) (llm.Image, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, filepath.Base(name)))
	if err != nil {
		if os.IsNotExist(err) {
			return llm.Image{}, ErrNotFound
		}
		return llm.Image{}, fmt.Errorf("failed to read image %s: %w", name, err)
	}
	return llm.Image{Data: data}, nil
}
