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
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"go.uber.org/multierr"

	"github.com/numaproj-labs/rideflow/pkg/sources"
)

type waybillsDocument struct {
	XMLName  xml.Name          `xml:"waybills"`
	Waybills []waybillDocument `xml:"waybill"`
}

type waybillDocument struct {
	Number  string `xml:"number,attr"`
	IssueDt string `xml:"issuedt,attr"`
	Car     string `xml:"car"`
	Driver  struct {
		Name    string `xml:"name"`
		License string `xml:"license"`
		ValidTo string `xml:"validto"`
	} `xml:"driver"`
	Period struct {
		Start string `xml:"start"`
		Stop  string `xml:"stop"`
	} `xml:"period"`
}

// ParseWaybills parses a waybills document. Waybills missing a required field are
// skipped and counted, an unparseable document fails as a whole with ErrMalformed.
func ParseWaybills(data []byte) ([]sources.Waybill, int, error) {
	var doc waybillsDocument
	if err := xml.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
		// a file may also hold a single bare waybill
		var single waybillDocument
		if serr := xml.Unmarshal(data, &single); serr != nil || single.Number == "" {
			return nil, 0, fmt.Errorf("%w: waybill document: %v", sources.ErrMalformed, err)
		}
		doc.Waybills = []waybillDocument{single}
	}
	var (
		out     []sources.Waybill
		skipped int
	)
	for _, d := range doc.Waybills {
		w, err := d.toWaybill()
		if err != nil {
			skipped++
			continue
		}
		out = append(out, w)
	}
	return out, skipped, nil
}

func (d waybillDocument) toWaybill() (sources.Waybill, error) {
	w := sources.Waybill{
		Number:     strings.TrimSpace(d.Number),
		Plate:      strings.TrimSpace(d.Car),
		DriverName: strings.TrimSpace(d.Driver.Name),
		License:    strings.TrimSpace(d.Driver.License),
	}
	var errs error
	if w.Number == "" || w.Plate == "" || w.License == "" {
		errs = multierr.Append(errs, fmt.Errorf("waybill %q lacks number, car or license", w.Number))
	}
	var err error
	if w.Start, err = parseTime(d.Period.Start); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("start: %w", err))
	}
	if w.Stop, err = parseTime(d.Period.Stop); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("stop: %w", err))
	}
	if d.IssueDt != "" {
		if w.IssueDt, err = parseTime(d.IssueDt); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("issuedt: %w", err))
		}
	} else {
		w.IssueDt = w.Start
	}
	if d.Driver.ValidTo != "" {
		if t, err := parseTime(d.Driver.ValidTo); err == nil {
			w.ValidTo = &t
		}
	}
	if errs == nil && w.Stop.Before(w.Start) {
		errs = fmt.Errorf("waybill %s ends before it starts", w.Number)
	}
	if errs != nil {
		return w, fmt.Errorf("%w: %v", sources.ErrMalformed, errs)
	}
	return w, nil
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time")
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
