// Package artifact stores trained model blobs and the evaluation snapshot
// by name, on local disk or in Azure Blob Storage.
package artifact

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrNotFound means no artifact exists under the name.
	ErrNotFound = errors.New("artifact not found")
	// ErrInvalidName means the name is empty or escapes the store root.
	ErrInvalidName = errors.New("invalid artifact name")
)

// Store reads and writes whole artifacts. Put replaces any existing
// artifact atomically: readers see either the old bytes or the new ones.
type Store interface {
	Put(ctx context.Context, name string, data []byte) error
	Get(ctx context.Context, name string) ([]byte, error)
}

func validateName(name string) error {
	if name == "" || strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return ErrInvalidName
	}
	return nil
}
