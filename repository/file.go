package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"fnkit/health"
)

const (
	fileSuffix = ".json"
	keySuffix  = ".key"

	// hashedPrefix marks names derived from a key digest; it is not valid hex
	// so it never collides with an encoded key.
	hashedPrefix = "sha256-"

	// maxEncodedKey keeps file names under the common 255-byte limit.
	maxEncodedKey = 200
)

// FileBackend stores one file per key under a directory. File names are the
// hex-encoded key, so any key is a valid name. Keys too long to encode are
// stored under their SHA-256 digest with the key itself in a ".key" file
// next to the value.
type FileBackend struct {
	dir string
	mu  sync.RWMutex
}

// NewFileBackend creates a backend rooted at dir, creating it if needed.
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create repository directory: %w", err)
	}
	return &FileBackend{dir: dir}, nil
}

// fileName returns the base name for key and whether it is a digest.
func fileName(key string) (string, bool) {
	encoded := hex.EncodeToString([]byte(key))
	if len(encoded) <= maxEncodedKey {
		return encoded, false
	}
	sum := sha256.Sum256([]byte(key))
	return hashedPrefix + hex.EncodeToString(sum[:]), true
}

func (b *FileBackend) path(key string) string {
	name, _ := fileName(key)
	return filepath.Join(b.dir, name+fileSuffix)
}

func (b *FileBackend) Get(ctx context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, err := os.ReadFile(b.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// Put writes through a temporary file so readers never see a partial value.
func (b *FileBackend) Put(ctx context.Context, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	name, hashed := fileName(key)
	if hashed {
		if err := b.writeFile(name+keySuffix, []byte(key)); err != nil {
			return err
		}
	}
	return b.writeFile(name+fileSuffix, value)
}

func (b *FileBackend) writeFile(name string, data []byte) error {
	tmp, err := os.CreateTemp(b.dir, ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(b.dir, name))
}

func (b *FileBackend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remove(key)
}

func (b *FileBackend) remove(key string) error {
	name, hashed := fileName(key)
	files := []string{name + fileSuffix}
	if hashed {
		files = append(files, name+keySuffix)
	}
	for _, f := range files {
		if err := os.Remove(filepath.Join(b.dir, f)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

func (b *FileBackend) Keys(ctx context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.keys()
}

func (b *FileBackend) keys() ([]string, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		base := strings.TrimSuffix(name, fileSuffix)
		if strings.HasPrefix(base, hashedPrefix) {
			key, err := os.ReadFile(filepath.Join(b.dir, base+keySuffix))
			if err != nil {
				continue
			}
			keys = append(keys, string(key))
			continue
		}
		key, err := hex.DecodeString(base)
		if err != nil {
			continue
		}
		keys = append(keys, string(key))
	}
	slices.Sort(keys)
	return keys, nil
}

func (b *FileBackend) Len(ctx context.Context) (int, error) {
	keys, err := b.Keys(ctx)
	return len(keys), err
}

func (b *FileBackend) Clear(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	keys, err := b.keys()
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := b.remove(key); err != nil {
			return err
		}
	}
	return nil
}

// CheckHealth verifies the directory is still there.
func (b *FileBackend) CheckHealth(ctx context.Context) health.Report {
	info, err := os.Stat(b.dir)
	if err != nil {
		return health.Failed("file", err)
	}
	if !info.IsDir() {
		return health.Failed("file", fmt.Errorf("%s is not a directory", b.dir))
	}
	report := health.OK("file")
	report.Details = map[string]any{"dir": b.dir}
	return report
}
