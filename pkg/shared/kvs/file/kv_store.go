/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

/*
Package file implements the KV store as a directory holding one file per key,
e.g. rides.txt with the last ride id or unresolved_rides.txt with one ride id per line.
*/
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/numaproj-labs/rideflow/pkg/shared/kvs"
	"github.com/numaproj-labs/rideflow/pkg/shared/logging"
)

const fileSuffix = ".txt"

type fileStore struct {
	dir  string
	lock sync.Mutex
	log  *zap.SugaredLogger
}

var _ kvs.KVStorer = (*fileStore)(nil)

// NewKVFileStore returns a file backed KV store rooted at dir, creating the directory if needed.
func NewKVFileStore(ctx context.Context, dir string) (kvs.KVStorer, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("file kv store: empty directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %q: %w", dir, err)
	}
	return &fileStore{
		dir: dir,
		log: logging.FromContext(ctx).With("stateDir", dir),
	}, nil
}

func (s *fileStore) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return filepath.Join(s.dir, key+fileSuffix), nil
}

// GetAllKeys returns the keys of all the files in the directory.
func (s *fileStore) GetAllKeys(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileSuffix) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(e.Name(), fileSuffix))
	}
	sort.Strings(keys)
	return keys, nil
}

// GetValue returns the content of the key's file.
func (s *fileStore) GetValue(_ context.Context, key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", kvs.ErrKeyNotFound, key)
	}
	return b, err
}

// PutKV replaces the key's file. The write goes through a temp file and a rename
// so a crash never leaves a half written cursor behind.
func (s *fileStore) PutKV(_ context.Context, key string, value []byte) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	tmp, err := os.CreateTemp(s.dir, "."+key+"-*")
	if err != nil {
		return err
	}
	if _, err = tmp.Write(value); err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace %s: %w", key, err)
	}
	s.log.Debugw("Put key", zap.String("key", key), zap.Int("size", len(value)))
	return nil
}

// DeleteKey removes the key's file.
func (s *fileStore) DeleteKey(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", kvs.ErrKeyNotFound, key)
		}
		return err
	}
	return nil
}

// GetStoreName returns the state directory.
func (s *fileStore) GetStoreName() string {
	return s.dir
}

// Close is a no-op, every operation opens and closes its own file.
func (s *fileStore) Close() {}
