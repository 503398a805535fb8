package storage

import (
	"context"
	"io"
)

// FileStorage abstracts where attachment bytes live. The engine only ever
// sees opaque storage paths.
type FileStorage interface {
	// Save writes the file and returns its storage path.
	Save(ctx context.Context, table, fileID, filename string, reader io.Reader) (string, error)

	// Open returns a reader over a stored file.
	Open(ctx context.Context, storagePath string) (io.ReadCloser, error)

	// Delete removes a stored file. Missing files are not an error.
	Delete(ctx context.Context, storagePath string) error
}
