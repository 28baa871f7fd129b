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
Package ftp reads the waybill and payment feeds published on a file-transfer server.

Every feed is a directory. Files modified after the feed cursor are downloaded one by
one, each download on its own connection and wrapped in a bounded retry, then parsed.
*/
package ftp

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/jlaffaye/ftp"
)

// Entry is a file listed on the server.
type Entry struct {
	Name    string
	ModTime time.Time
	Size    uint64
}

// FileServer lists and downloads files.
type FileServer interface {
	List(ctx context.Context, dir string) ([]Entry, error)
	Fetch(ctx context.Context, dir, name string) ([]byte, error)
}

// ClientOptions are the connection settings of the file-transfer server.
type ClientOptions struct {
	Addr     string
	User     string
	Password string
	// TLS enables explicit FTPS.
	TLS         bool
	InsecureTLS bool
	Timeout     time.Duration
}

// Client is a FileServer over FTP(S).
type Client struct {
	opts ClientOptions
}

var _ FileServer = (*Client)(nil)

// NewClient returns a Client, no connection is made until the first call.
func NewClient(opts ClientOptions) (*Client, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("ftp address is not configured")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Client{opts: opts}, nil
}

func (c *Client) connect(ctx context.Context) (*ftp.ServerConn, error) {
	dialOpts := []ftp.DialOption{
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(c.opts.Timeout),
	}
	if c.opts.TLS {
		dialOpts = append(dialOpts, ftp.DialWithExplicitTLS(&tls.Config{
			InsecureSkipVerify: c.opts.InsecureTLS,
		}))
	}
	conn, err := ftp.Dial(c.opts.Addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", c.opts.Addr, err)
	}
	if err := conn.Login(c.opts.User, c.opts.Password); err != nil {
		_ = conn.Quit()
		return nil, fmt.Errorf("failed to login to %s: %w", c.opts.Addr, err)
	}
	return conn, nil
}

// List returns the regular files of dir.
func (c *Client) List(ctx context.Context, dir string) ([]Entry, error) {
	conn, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Quit() }()
	entries, err := conn.List(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Type != ftp.EntryTypeFile {
			continue
		}
		out = append(out, Entry{Name: e.Name, ModTime: e.Time.UTC(), Size: e.Size})
	}
	return out, nil
}

// Fetch downloads a file on a connection of its own, so a slow transfer cannot expire
// the session used by the others.
func (c *Client) Fetch(ctx context.Context, dir, name string) ([]byte, error) {
	conn, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Quit() }()
	resp, err := conn.Retr(path.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve %s: %w", name, err)
	}
	b, err := io.ReadAll(resp)
	if cerr := resp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", name, err)
	}
	return b, nil
}
