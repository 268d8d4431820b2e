package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo is one archived object as listed by the bucket.
type BlobInfo struct {
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// BlobWriter stores archive documents. PutMultipart is used once a document
// outgrows a single request.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader is the read side used by the archive browser. Get reports a
// missing object as ErrNotFound.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
}

// SnapshotArchiver keeps a copy of each committed cycle, the tokens it left
// behind included, outside the database. Failures never undo the commit.
type SnapshotArchiver interface {
	ArchiveCycle(ctx context.Context, report CycleReport, tokens []Token) error
}
