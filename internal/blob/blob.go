// Package blob archives run artifacts (CSV snapshots) behind a small
// key-value interface with filesystem, S3, and in-memory drivers.
package blob

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/couchcryptid/fluview-etl/internal/config"
)

// Driver names accepted by Open. They match the ARCHIVE_DRIVER values the
// config layer validates.
const (
	DriverFS     = "fs"
	DriverS3     = "s3"
	DriverMemory = "memory"
)

// Info describes one stored artifact.
type Info struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size_bytes"`
	LastModified time.Time `json:"last_modified"`
}

// Store is the artifact storage contract. Put overwrites an existing key;
// archive keys carry a run id, so a rewrite replaces that run's snapshot.
type Store interface {
	Put(ctx context.Context, key, contentType string, r io.Reader) (Info, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]Info, error)
	Driver() string
}

var (
	_ Store = (*Filesystem)(nil)
	_ Store = (*S3)(nil)
	_ Store = (*Memory)(nil)
)

// Open constructs the archive backend named by cfg.ArchiveDriver. Callers
// check cfg.ArchiveEnabled first; an empty driver is not accepted here.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.ArchiveDriver {
	case DriverFS:
		return NewFilesystem(cfg.ArchiveFSRoot)
	case DriverS3:
		return NewS3(ctx, S3Config{
			Bucket:    cfg.ArchiveS3Bucket,
			Region:    cfg.ArchiveS3Region,
			Endpoint:  cfg.ArchiveS3Endpoint,
			PathStyle: cfg.ArchiveS3PathStyle,
		})
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown archive driver %q", cfg.ArchiveDriver)
	}
}
