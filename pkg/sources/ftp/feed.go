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

	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/numaproj-labs/rideflow/pkg/shared/logging"
	"github.com/numaproj-labs/rideflow/pkg/shared/util"
	"github.com/numaproj-labs/rideflow/pkg/sources"
	"github.com/numaproj-labs/rideflow/pkg/watermark"
)

// Feed reads the waybills and payments directories of a FileServer.
type Feed struct {
	server FileServer
	opts   *feedOptions
}

type feedOptions struct {
	waybillsDir string
	paymentsDir string
	backoff     wait.Backoff
}

// FeedOption configures a Feed.
type FeedOption func(*feedOptions)

// WithDirs sets the directories of the two feeds.
func WithDirs(waybills, payments string) FeedOption {
	return func(o *feedOptions) {
		o.waybillsDir = waybills
		o.paymentsDir = payments
	}
}

// WithBackoff sets the retry policy of a single listing or download.
func WithBackoff(b wait.Backoff) FeedOption {
	return func(o *feedOptions) {
		o.backoff = b
	}
}

// NewFeed returns a Feed over server.
func NewFeed(server FileServer, opts ...FeedOption) *Feed {
	o := &feedOptions{
		waybillsDir: "/waybills",
		paymentsDir: "/payments",
		backoff:     util.DefaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(o)
	}
	return &Feed{server: server, opts: o}
}

// FetchWaybills returns the waybills of the files modified at or after the cursor.
func (f *Feed) FetchWaybills(ctx context.Context, cursor watermark.Cursor) (sources.Batch[sources.Waybill], error) {
	return fetch(ctx, f, sources.Waybills, f.opts.waybillsDir, cursor, ParseWaybills)
}

// FetchPayments returns the payments of the files modified at or after the cursor.
func (f *Feed) FetchPayments(ctx context.Context, cursor watermark.Cursor) (sources.Batch[sources.Payment], error) {
	return fetch(ctx, f, sources.Payments, f.opts.paymentsDir, cursor, ParsePayments)
}

// fetch downloads the files of dir modified at or after the cursor, in modification
// order. LIST reports minute precision on most servers, so a file uploaded in the same
// minute as the last processed one shares its modification time: the files at the
// cursor are downloaded again and the loaders skip what they already hold. A file that
// cannot be parsed is skipped, the cursor moves past it. A file that cannot be
// downloaded stops the fetch and the cursor stays before it, so the next cycle tries again.
func fetch[T any](ctx context.Context, f *Feed, stream watermark.Stream, dir string, cursor watermark.Cursor, parse func([]byte) ([]T, int, error)) (sources.Batch[T], error) {
	log := logging.FromContext(ctx).With(zap.String("stream", stream.Name))
	b := sources.Batch[T]{Next: cursor}

	var entries []Entry
	err := util.Retry(ctx, f.opts.backoff, "list "+dir, func(ctx context.Context) error {
		var err error
		entries, err = f.server.List(ctx, dir)
		return err
	})
	if err != nil {
		return b, err
	}
	var pending []Entry
	for _, e := range entries {
		if !e.ModTime.Before(cursor.Time) {
			pending = append(pending, e)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].ModTime.Equal(pending[j].ModTime) {
			return pending[i].Name < pending[j].Name
		}
		return pending[i].ModTime.Before(pending[j].ModTime)
	})

	for _, e := range pending {
		var data []byte
		err := util.Retry(ctx, f.opts.backoff, "download "+e.Name, func(ctx context.Context) error {
			var err error
			data, err = f.server.Fetch(ctx, dir, e.Name)
			return err
		})
		if err != nil {
			return b, fmt.Errorf("%s: %w", stream.Name, err)
		}
		rows, skipped, err := parse(data)
		if err != nil {
			log.Warnw("Skipping malformed file", zap.String("file", e.Name), zap.Error(err))
			b.Skipped++
		} else {
			if skipped > 0 {
				log.Warnw("Skipped malformed records", zap.String("file", e.Name), zap.Int("count", skipped))
			}
			b.Rows = append(b.Rows, rows...)
			b.Skipped += skipped
		}
		b.Next = b.Next.Advance(watermark.TimestampCursor(e.ModTime))
		log.Debugw("Fetched file", zap.String("file", e.Name), zap.Time("modTime", e.ModTime))
	}
	return b, nil
}
