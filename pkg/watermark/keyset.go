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
	"bufio"
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/multierr"
)

// KeySet is the set of ride ids carried forward to the next cycle.
type KeySet map[int64]struct{}

// NewKeySet returns a set holding ids.
func NewKeySet(ids ...int64) KeySet {
	ks := make(KeySet, len(ids))
	for _, id := range ids {
		ks[id] = struct{}{}
	}
	return ks
}

func (ks KeySet) Add(id int64) {
	ks[id] = struct{}{}
}

func (ks KeySet) Remove(id int64) {
	delete(ks, id)
}

func (ks KeySet) Has(id int64) bool {
	_, ok := ks[id]
	return ok
}

func (ks KeySet) Len() int {
	return len(ks)
}

// Sorted returns the ids in ascending order.
func (ks KeySet) Sorted() []int64 {
	out := make([]int64, 0, len(ks))
	for id := range ks {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Union returns a new set with the ids of both sets.
func (ks KeySet) Union(o KeySet) KeySet {
	out := make(KeySet, len(ks)+len(o))
	for id := range ks {
		out[id] = struct{}{}
	}
	for id := range o {
		out[id] = struct{}{}
	}
	return out
}

// Encode writes one id per line in ascending order.
func (ks KeySet) Encode() []byte {
	var buf bytes.Buffer
	for _, id := range ks.Sorted() {
		buf.WriteString(strconv.FormatInt(id, 10))
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// DecodeKeySet parses one id per line, blank lines are ignored. Lines that are not ids
// are reported in the error while the valid ids are still returned.
func DecodeKeySet(b []byte) (KeySet, error) {
	ks := NewKeySet()
	var errs error
	sc := bufio.NewScanner(bytes.NewReader(b))
	line := 0
	for sc.Scan() {
		line++
		s := strings.TrimSpace(sc.Text())
		if s == "" {
			continue
		}
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("line %d: invalid ride id %q", line, s))
			continue
		}
		ks.Add(id)
	}
	if err := sc.Err(); err != nil {
		errs = multierr.Append(errs, err)
	}
	return ks, errs
}
