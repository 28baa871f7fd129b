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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/numaproj-labs/rideflow/pkg/watermark"
)

var (
	m0          = time.Date(2023, 4, 1, 12, 0, 0, 0, time.UTC)
	fastBackoff = wait.Backoff{Steps: 3, Duration: time.Millisecond, Factor: 1}
)

func payment(line string) []byte {
	return []byte(line + "\n")
}

func TestNewClient(t *testing.T) {
	_, err := NewClient(ClientOptions{})
	assert.Error(t, err)
	c, err := NewClient(ClientOptions{Addr: "localhost:21"})
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, c.opts.Timeout)
}

func TestFeedFetchesFilesFromCursor(t *testing.T) {
	ctx := context.Background()
	srv := NewMemFileServer()
	srv.Put("/payments", "payment_1.txt", payment("01.04.2023 10:00:00\t4000\t10"), m0)
	srv.Put("/payments", "payment_2.txt", payment("01.04.2023 11:00:00\t4000\t20"), m0.Add(time.Hour))
	feed := NewFeed(srv, WithBackoff(fastBackoff))

	b, err := feed.FetchPayments(ctx, watermark.Initial(watermark.KindTimestamp))
	require.NoError(t, err)
	assert.Len(t, b.Rows, 2)
	assert.True(t, m0.Add(time.Hour).Equal(b.Next.Time))

	// the file at the cursor is read again, older ones are not
	b, err = feed.FetchPayments(ctx, b.Next)
	require.NoError(t, err)
	require.Len(t, b.Rows, 1)
	assert.Equal(t, 20.0, b.Rows[0].Amount)
	assert.True(t, m0.Add(time.Hour).Equal(b.Next.Time))

	srv.Put("/payments", "payment_3.txt", payment("01.04.2023 12:00:00\t4000\t30"), m0.Add(2*time.Hour))
	b, err = feed.FetchPayments(ctx, b.Next)
	require.NoError(t, err)
	require.Len(t, b.Rows, 2)
	assert.Equal(t, 20.0, b.Rows[0].Amount)
	assert.Equal(t, 30.0, b.Rows[1].Amount)
	assert.True(t, m0.Add(2*time.Hour).Equal(b.Next.Time))
}

func TestFeedFetchesFileUploadedInSameMinute(t *testing.T) {
	ctx := context.Background()
	srv := NewMemFileServer()
	srv.Put("/payments", "payment_1.txt", payment("01.04.2023 10:00:00\t4000\t10"), m0)
	feed := NewFeed(srv, WithBackoff(fastBackoff))

	b, err := feed.FetchPayments(ctx, watermark.Initial(watermark.KindTimestamp))
	require.NoError(t, err)
	require.Len(t, b.Rows, 1)
	assert.True(t, m0.Equal(b.Next.Time))

	// LIST truncates to the minute, the second upload reports the same time
	srv.Put("/payments", "payment_2.txt", payment("01.04.2023 10:30:00\t4000\t20"), m0)
	b, err = feed.FetchPayments(ctx, b.Next)
	require.NoError(t, err)
	var amounts []float64
	for _, p := range b.Rows {
		amounts = append(amounts, p.Amount)
	}
	assert.ElementsMatch(t, []float64{10, 20}, amounts)
	assert.True(t, m0.Equal(b.Next.Time))
}

func TestFeedRetriesDownloads(t *testing.T) {
	ctx := context.Background()
	srv := NewMemFileServer()
	srv.Put("/waybills", "waybill_1.xml", []byte(waybillDoc), m0)
	srv.FailNext("/waybills", "waybill_1.xml", 2)
	feed := NewFeed(srv, WithBackoff(fastBackoff))

	b, err := feed.FetchWaybills(ctx, watermark.Initial(watermark.KindTimestamp))
	require.NoError(t, err)
	assert.Len(t, b.Rows, 1)
	assert.Equal(t, 1, b.Skipped)
}

func TestFeedStopsBeforeFailedDownload(t *testing.T) {
	ctx := context.Background()
	srv := NewMemFileServer()
	srv.Put("/payments", "a.txt", payment("01.04.2023 10:00:00\t4000\t10"), m0)
	srv.Put("/payments", "b.txt", payment("01.04.2023 10:00:00\t4000\t20"), m0.Add(time.Minute))
	srv.Put("/payments", "c.txt", payment("01.04.2023 10:00:00\t4000\t30"), m0.Add(2*time.Minute))
	srv.FailNext("/payments", "b.txt", 10)
	feed := NewFeed(srv, WithBackoff(fastBackoff))

	b, err := feed.FetchPayments(ctx, watermark.Initial(watermark.KindTimestamp))
	assert.Error(t, err)
	require.Len(t, b.Rows, 1)
	assert.True(t, m0.Equal(b.Next.Time))

	// next cycle reads a.txt again and picks up from the failed file
	srv.FailNext("/payments", "b.txt", 0)
	b, err = feed.FetchPayments(ctx, b.Next)
	require.NoError(t, err)
	assert.Len(t, b.Rows, 3)
	assert.True(t, m0.Add(2*time.Minute).Equal(b.Next.Time))
}

func TestFeedFailedDownloadSharingModTime(t *testing.T) {
	ctx := context.Background()
	srv := NewMemFileServer()
	srv.Put("/payments", "a.txt", payment("01.04.2023 10:00:00\t4000\t10"), m0)
	srv.Put("/payments", "b.txt", payment("01.04.2023 10:00:00\t4000\t20"), m0)
	srv.FailNext("/payments", "b.txt", 10)
	feed := NewFeed(srv, WithBackoff(fastBackoff))

	b, err := feed.FetchPayments(ctx, watermark.Initial(watermark.KindTimestamp))
	assert.Error(t, err)
	assert.Len(t, b.Rows, 1)
	assert.True(t, m0.Equal(b.Next.Time))

	srv.FailNext("/payments", "b.txt", 0)
	b, err = feed.FetchPayments(ctx, b.Next)
	require.NoError(t, err)
	assert.Len(t, b.Rows, 2)
}

func TestFeedSkipsMalformedFile(t *testing.T) {
	ctx := context.Background()
	srv := NewMemFileServer()
	srv.Put("/waybills", "broken.xml", []byte("<waybills><waybill"), m0)
	srv.Put("/waybills", "ok.xml", []byte(waybillDoc), m0.Add(time.Minute))
	feed := NewFeed(srv, WithBackoff(fastBackoff))

	b, err := feed.FetchWaybills(ctx, watermark.Initial(watermark.KindTimestamp))
	require.NoError(t, err)
	assert.Len(t, b.Rows, 1)
	assert.Equal(t, 2, b.Skipped)
	assert.True(t, m0.Add(time.Minute).Equal(b.Next.Time))
}

func TestFeedCustomDirs(t *testing.T) {
	srv := NewMemFileServer()
	srv.Put("/in/pay", "p.txt", payment("01.04.2023 10:00:00\t4000\t10"), m0)
	feed := NewFeed(srv, WithDirs("/in/wb", "/in/pay"), WithBackoff(fastBackoff))
	b, err := feed.FetchPayments(context.Background(), watermark.Initial(watermark.KindTimestamp))
	require.NoError(t, err)
	assert.Len(t, b.Rows, 1)
	b2, err := feed.FetchWaybills(context.Background(), watermark.Initial(watermark.KindTimestamp))
	require.NoError(t, err)
	assert.Empty(t, b2.Rows)
}
