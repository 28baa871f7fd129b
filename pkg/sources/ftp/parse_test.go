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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numaproj-labs/rideflow/pkg/sources"
)

const waybillDoc = `<?xml version="1.0" encoding="UTF-8"?>
<waybills>
  <waybill number="000123" issuedt="2023-04-01T07:55:00">
    <car>A1</car>
    <driver>
      <name>Ivanov Ivan</name>
      <license>77AB654321</license>
      <validto>2026-01-01</validto>
    </driver>
    <period>
      <start>2023-04-01T08:00:00</start>
      <stop>2023-04-01T20:00:00</stop>
    </period>
  </waybill>
  <waybill number="000124" issuedt="2023-04-01T07:55:00">
    <driver><license>77AB000001</license></driver>
    <period><start>2023-04-01T08:00:00</start><stop>2023-04-01T20:00:00</stop></period>
  </waybill>
</waybills>`

func TestParseWaybills(t *testing.T) {
	ws, skipped, err := ParseWaybills([]byte(waybillDoc))
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	require.Len(t, ws, 1)
	w := ws[0]
	assert.Equal(t, "000123", w.Number)
	assert.Equal(t, "A1", w.Plate)
	assert.Equal(t, "Ivanov Ivan", w.DriverName)
	assert.Equal(t, "654321", w.PersonnelNum())
	assert.Equal(t, time.Date(2023, 4, 1, 8, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, time.Date(2023, 4, 1, 20, 0, 0, 0, time.UTC), w.Stop)
	assert.Equal(t, time.Date(2023, 4, 1, 7, 55, 0, 0, time.UTC), w.IssueDt)
	require.NotNil(t, w.ValidTo)
}

func TestParseSingleWaybill(t *testing.T) {
	doc := `<waybill number="7" issuedt="2023-04-01 07:00:00"><car>B2</car><driver><license>XX123456</license></driver>` +
		`<period><start>2023-04-01 08:00:00</start><stop>2023-04-01 09:00:00</stop></period></waybill>`
	ws, skipped, err := ParseWaybills([]byte(doc))
	require.NoError(t, err)
	assert.Zero(t, skipped)
	require.Len(t, ws, 1)
	assert.Equal(t, "B2", ws[0].Plate)
}

func TestParseWaybillsMalformed(t *testing.T) {
	for _, doc := range []string{"", "not xml at all", "<waybills><waybill>"} {
		_, _, err := ParseWaybills([]byte(doc))
		assert.ErrorIs(t, err, sources.ErrMalformed, doc)
	}
	// stop before start
	doc := `<waybills><waybill number="1"><car>A1</car><driver><license>L1</license></driver>` +
		`<period><start>2023-04-01 10:00:00</start><stop>2023-04-01 09:00:00</stop></period></waybill></waybills>`
	ws, skipped, err := ParseWaybills([]byte(doc))
	assert.NoError(t, err)
	assert.Empty(t, ws)
	assert.Equal(t, 1, skipped)
}

func TestParsePayments(t *testing.T) {
	data := "01.04.2023 10:21:00\t4000 0000 0000 0001\t450.50\n" +
		"\n" +
		"bad line\n" +
		"01.04.2023 11:00:00\t4000000000000002\t12,5\n" +
		"32.13.2023 11:00:00\t4000000000000002\t1\n"
	ps, skipped, err := ParsePayments([]byte(data))
	require.NoError(t, err)
	assert.Equal(t, 2, skipped)
	require.Len(t, ps, 2)
	assert.Equal(t, sources.Payment{At: time.Date(2023, 4, 1, 10, 21, 0, 0, time.UTC), CardNum: "4000000000000001", Amount: 450.5}, ps[0])
	assert.Equal(t, 12.5, ps[1].Amount)
}
