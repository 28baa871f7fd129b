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
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/numaproj-labs/rideflow/pkg/sources"
)

const paymentTimeLayout = "02.01.2006 15:04:05"

// ParsePayments parses tab separated "dd.mm.yyyy hh:mm:ss<TAB>card<TAB>amount" lines.
// Malformed lines are skipped and counted.
func ParsePayments(data []byte) ([]sources.Payment, int, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = '\t'
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	var (
		out     []sources.Payment
		skipped int
	)
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				skipped++
				continue
			}
			return out, skipped, err
		}
		p, ok := parsePayment(rec)
		if !ok {
			skipped++
			continue
		}
		out = append(out, p)
	}
	return out, skipped, nil
}

func parsePayment(rec []string) (sources.Payment, bool) {
	if len(rec) != 3 {
		return sources.Payment{}, false
	}
	at, err := time.ParseInLocation(paymentTimeLayout, strings.TrimSpace(rec[0]), time.UTC)
	if err != nil {
		return sources.Payment{}, false
	}
	card := sources.NormalizeCard(rec[1])
	amount, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(rec[2]), ",", "."), 64)
	if err != nil || card == "" {
		return sources.Payment{}, false
	}
	return sources.Payment{At: at, CardNum: card, Amount: amount}, true
}
