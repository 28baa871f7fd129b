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

package ftp

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemFileServer is an in-memory FileServer for tests and local runs.
type MemFileServer struct {
	mu    sync.Mutex
	files map[string]map[string]memFile
	// failures makes the next Fetch of a file fail the given number of times.
	failures map[string]int
}

type memFile struct {
	data    []byte
	modTime time.Time
}

var _ FileServer = (*MemFileServer)(nil)

// NewMemFileServer returns an empty server.
func NewMemFileServer() *MemFileServer {
	return &MemFileServer{
		files:    make(map[string]map[string]memFile),
		failures: make(map[string]int),
	}
}

// Put stores a file.
func (m *MemFileServer) Put(dir, name string, data []byte, modTime time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.files[dir] == nil {
		m.files[dir] = make(map[string]memFile)
	}
	m.files[dir][name] = memFile{data: data, modTime: modTime.UTC()}
}

// FailNext makes the next n downloads of the file fail.
func (m *MemFileServer) FailNext(dir, name string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[dir+"/"+name] = n
}

// List returns the files of dir sorted by name.
func (m *MemFileServer) List(_ context.Context, dir string) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, 0, len(m.files[dir]))
	for name, f := range m.files[dir] {
		out = append(out, Entry{Name: name, ModTime: f.modTime, Size: uint64(len(f.data))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Fetch returns the content of a file.
func (m *MemFileServer) Fetch(_ context.Context, dir, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := dir + "/" + name
	if m.failures[key] > 0 {
		m.failures[key]--
		return nil, fmt.Errorf("transfer of %s interrupted", key)
	}
	f, ok := m.files[dir][name]
	if !ok {
		return nil, fmt.Errorf("%s: no such file", key)
	}
	out := make([]byte, len(f.data))
	copy(out, f.data)
	return out, nil
}
