package revision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// DiskStore keeps one zstd-compressed JSON document per commit under dir,
// fanned out by the first two characters of the key.
type DiskStore struct {
	dir string
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache dir: %w", err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("cache encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("cache decoder: %w", err)
	}
	return &DiskStore{dir: dir, enc: enc, dec: dec}, nil
}

func (d *DiskStore) path(key string) string {
	if len(key) < 3 {
		return filepath.Join(d.dir, key+".json.zst")
	}
	return filepath.Join(d.dir, key[:2], key[2:]+".json.zst")
}

func (d *DiskStore) Get(ctx context.Context, key string) (*CacheEntry, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(d.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read cache %s: %w", key, err)
	}
	raw, err := d.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, false, fmt.Errorf("read cache %s: decompress: %w", key, err)
	}
	var entry CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, false, fmt.Errorf("read cache %s: unmarshal: %w", key, err)
	}
	return &entry, true, nil
}

// Put writes atomically so a crash never leaves a truncated entry behind.
func (d *DiskStore) Put(ctx context.Context, key string, entry *CacheEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("write cache %s: marshal: %w", key, err)
	}
	target := d.path(key)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("write cache %s: %w", key, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".entry-tmp-*")
	if err != nil {
		return fmt.Errorf("write cache %s: tmpfile: %w", key, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(d.enc.EncodeAll(raw, nil)); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write cache %s: write: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write cache %s: close: %w", key, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("write cache %s: rename: %w", key, err)
	}
	return nil
}

func (d *DiskStore) Close() error {
	d.dec.Close()
	return d.enc.Close()
}
