package storage

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"

	"github.com/wada/backend/internal/config"
	"golang.org/x/crypto/blake2b"
)

// FileStore durably stores uploaded datasets and returns a URL the ML
// execution service can read them from.
type FileStore interface {
	Put(ctx context.Context, key string, r io.Reader) (string, error)
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ObjectKey derives a stable key from the chat room, the original file name and
// a digest of the content.
func ObjectKey(chatRoomID, fileName string, content []byte) string {
	sum := blake2b.Sum256(content)
	name := unsafeNameChars.ReplaceAllString(path.Base(strings.TrimSpace(fileName)), "_")
	if name == "" || name == "." || name == "_" {
		name = "dataset.csv"
	}
	room := unsafeNameChars.ReplaceAllString(chatRoomID, "_")
	return path.Join("datasets", room, hex.EncodeToString(sum[:8])+"-"+name)
}

// New builds the FileStore selected by STORAGE_MODE.
func New(ctx context.Context, cfg *config.Config) (FileStore, error) {
	switch cfg.StorageMode {
	case "local":
		return NewLocalStore(cfg.UploadDir)
	case "gcs":
		return NewGCSStore(ctx, cfg.GCSBucket, cfg.PublicBaseURL)
	default:
		return nil, fmt.Errorf("unknown storage mode %q", cfg.StorageMode)
	}
}
