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

package sources

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/numaproj-labs/rideflow/pkg/watermark"
)

// Predicate builds the WHERE clause selecting the new rows of a stream.
//
// Timestamp streams select column > cursor. Id streams select column > cursor, and when
// keys is not empty also every row whose keyColumn is one of the carried forward keys.
// The cursor is the only placeholder, $1. The keys are written as integer literals: the
// set grows with rides that never resolve and must not run into the driver's cap on
// bind parameters.
func Predicate(stream watermark.Stream, column, keyColumn string, cursor watermark.Cursor, keys watermark.KeySet) (string, []any, error) {
	if cursor.Kind != stream.Kind {
		return "", nil, fmt.Errorf("stream %s expects a %s cursor, got %s", stream.Name, stream.Kind, cursor.Kind)
	}
	if stream.Kind == watermark.KindTimestamp {
		return column + " > $1", []any{cursor.Time.UTC()}, nil
	}
	args := []any{cursor.ID}
	where := column + " > $1"
	if keys.Len() == 0 || keyColumn == "" {
		return where, args, nil
	}
	var in strings.Builder
	for i, k := range keys.Sorted() {
		if i > 0 {
			in.WriteString(", ")
		}
		in.WriteString(strconv.FormatInt(k, 10))
	}
	return fmt.Sprintf("(%s OR %s IN (%s))", where, keyColumn, in.String()), args, nil
}
