// Package storage places generated media in the output directory and
// optionally mirrors finished files to S3.
// It defines the Storage interface (port) used by the job orchestrator and
// implementations for local disk and local disk plus S3.
package storage

import (
	"context"
	"io"
)

// Storage defines where generated media is written and how it is published.
type Storage interface {
	// NewOutputPath reserves a unique output file name with extension ext
	// and returns the name together with its absolute path.
	NewOutputPath(ext string) (name, path string)

	// Write stores data at path, creating the output directory if needed.
	Write(ctx context.Context, path string, data io.Reader) error

	// PublicURL returns the URL under which name is served.
	PublicURL(name string) string

	// Mirror uploads the file at path under name to remote storage and
	// returns its URL. Returns ErrMirrorNotConfigured without S3.
	Mirror(ctx context.Context, name, path string) (url string, err error)
}
