package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/matzehuels/blockflow/pkg/observability"
)

// FileBackend stores each key as a JSON file in a directory.
type FileBackend struct {
	dir string
}

// NewFileBackend creates a file backend in dir, creating the directory if
// it doesn't exist.
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &FileBackend{dir: dir}, nil
}

// fileEntry wraps stored data with its key and expiry.
type fileEntry struct {
	Key       string    `json:"key"`
	Data      []byte    `json:"data"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (e fileEntry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// Get retrieves a value. Unreadable or expired entries are removed and
// reported as a miss.
func (b *FileBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	path := b.path(key)
	entry, ok, err := readEntry(path)
	if err != nil {
		return nil, false, err
	}
	if !ok || entry.expired(time.Now()) {
		if ok {
			_ = os.Remove(path)
		}
		observability.Storage().OnStorageMiss(ctx, BackendFile)
		return nil, false, nil
	}
	observability.Storage().OnStorageHit(ctx, BackendFile)
	return entry.Data, true, nil
}

func readEntry(path string) (fileEntry, bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return fileEntry{}, false, nil
	}
	if err != nil {
		return fileEntry{}, false, err
	}
	var entry fileEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		_ = os.Remove(path)
		return fileEntry{}, false, nil
	}
	return entry, true, nil
}

// Set stores a value, replacing any previous one.
func (b *FileBackend) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	entry := fileEntry{Key: key, Data: data}
	if ttl > 0 {
		entry.ExpiresAt = time.Now().Add(ttl)
	}

	entryData, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	path := b.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, entryData, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	observability.Storage().OnStorageSet(ctx, BackendFile, len(data))
	return nil
}

// Delete removes a value. Deleting a missing key is not an error.
func (b *FileBackend) Delete(ctx context.Context, key string) error {
	err := os.Remove(b.path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// List walks the directory and returns the live keys with prefix.
func (b *FileBackend) List(ctx context.Context, prefix string) ([]string, error) {
	now := time.Now()
	var keys []string
	err := filepath.WalkDir(b.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		entry, ok, err := readEntry(path)
		if err != nil || !ok || entry.expired(now) {
			return err
		}
		if strings.HasPrefix(entry.Key, prefix) {
			keys = append(keys, entry.Key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", b.dir, err)
	}
	slices.Sort(keys)
	return keys, nil
}

// Close does nothing for the file backend.
func (b *FileBackend) Close() error {
	return nil
}

// path maps a key to a file. The first two hash characters name a
// subdirectory to keep directories small.
func (b *FileBackend) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	hash := hex.EncodeToString(sum[:])
	return filepath.Join(b.dir, hash[:2], hash[2:]+".json")
}

var _ Backend = (*FileBackend)(nil)
