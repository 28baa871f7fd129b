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

package watermark

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Kind tells how a stream cursor is compared and encoded.
type Kind int

const (
	// KindTimestamp cursors hold the latest update time seen on the stream.
	KindTimestamp Kind = iota
	// KindID cursors hold the highest id seen on the stream.
	KindID
)

func (k Kind) String() string {
	switch k {
	case KindTimestamp:
		return "timestamp"
	case KindID:
		return "id"
	default:
		return "unknown"
	}
}

// Epoch is the default timestamp cursor, a first run extracts everything after it.
var Epoch = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

const timeLayout = "2006-01-02 15:04:05.999999999"

// Stream names an incrementally extracted source together with its cursor kind.
type Stream struct {
	Name string
	Kind Kind
}

func (s Stream) String() string {
	return s.Name
}

// Cursor is the extraction position of a stream. It only moves forward.
type Cursor struct {
	Kind Kind
	Time time.Time
	ID   int64
}

// Initial returns the default cursor of the given kind.
func Initial(kind Kind) Cursor {
	if kind == KindID {
		return Cursor{Kind: KindID}
	}
	return Cursor{Kind: KindTimestamp, Time: Epoch}
}

// TimestampCursor returns a timestamp cursor at t.
func TimestampCursor(t time.Time) Cursor {
	return Cursor{Kind: KindTimestamp, Time: t.UTC()}
}

// IDCursor returns an id cursor at id.
func IDCursor(id int64) Cursor {
	return Cursor{Kind: KindID, ID: id}
}

// Before reports whether c is strictly behind o. Cursors of different kinds are not ordered.
func (c Cursor) Before(o Cursor) bool {
	if c.Kind != o.Kind {
		return false
	}
	if c.Kind == KindID {
		return c.ID < o.ID
	}
	return c.Time.Before(o.Time)
}

// Advance returns the later of c and next.
func (c Cursor) Advance(next Cursor) Cursor {
	if c.Before(next) {
		return next
	}
	return c
}

// IsInitial reports whether c is the default cursor of its kind.
func (c Cursor) IsInitial() bool {
	if c.Kind == KindID {
		return c.ID == 0
	}
	return c.Time.Equal(Epoch)
}

func (c Cursor) String() string {
	if c.Kind == KindID {
		return strconv.FormatInt(c.ID, 10)
	}
	return c.Time.UTC().Format(timeLayout)
}

// Encode returns the persisted form, a decimal id or a "2006-01-02 15:04:05.999999999" UTC timestamp.
func (c Cursor) Encode() []byte {
	return []byte(c.String())
}

// DecodeCursor parses a persisted cursor of the given kind. Timestamps written by hand
// in any common layout are accepted and read as UTC.
func DecodeCursor(kind Kind, b []byte) (Cursor, error) {
	s := strings.TrimSpace(string(b))
	if s == "" {
		return Initial(kind), fmt.Errorf("empty %s cursor", kind)
	}
	if kind == KindID {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Initial(kind), fmt.Errorf("invalid id cursor %q: %w", s, err)
		}
		return IDCursor(id), nil
	}
	if t, err := time.ParseInLocation(timeLayout, s, time.UTC); err == nil {
		return TimestampCursor(t), nil
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return Initial(kind), fmt.Errorf("invalid timestamp cursor %q: %w", s, err)
	}
	return TimestampCursor(t), nil
}
