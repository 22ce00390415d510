//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of GoETL.
//
// GoETL is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// GoETL is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with GoETL. If not, see https://www.gnu.org/licenses/.

package readers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/paulmach/orb/geojson"

	"github.com/UrsicDX/gridetl/core"
)

// ArcGISReaderError provides structured error information for ArcGIS REST reads.
type ArcGISReaderError struct {
	Op         string // Operation that failed (e.g., "request", "parse")
	StatusCode int    // HTTP status code if applicable
	URL        string // Query URL
	Err        error  // Underlying error
}

func (e *ArcGISReaderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("arcgis reader %s [%d] %s: %v", e.Op, e.StatusCode, e.URL, e.Err)
	}
	return fmt.Sprintf("arcgis reader %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *ArcGISReaderError) Unwrap() error {
	return e.Err
}

// ArcGISReaderStats holds statistics about the ArcGIS reader.
type ArcGISReaderStats struct {
	RequestCount  int64
	RecordsRead   int64
	BytesRead     int64
	ReadDuration  time.Duration
	LastReadTime  time.Time
	ResponseTimes []time.Duration
}

// ArcGISReaderOptions configures the ArcGIS REST query reader.
type ArcGISReaderOptions struct {
	Where         string        // query filter, default "1=1"
	OutFields     string        // comma separated fields, default "*"
	OrderByFields string        // stable ordering for paging, e.g. "OBJECTID"
	ChunkSize     int           // features per request
	MaxPages      int           // maximum pages to fetch (0 = unlimited)
	OutSR         int           // output spatial reference
	Timeout       time.Duration // request timeout
	UserAgent     string
	Client        *resty.Client
}

// ReaderOptionArcGIS is a functional option for ArcGISReaderOptions.
type ReaderOptionArcGIS func(*ArcGISReaderOptions)

func WithArcGISWhere(where string) ReaderOptionArcGIS {
	return func(o *ArcGISReaderOptions) { o.Where = where }
}

func WithArcGISOutFields(fields string) ReaderOptionArcGIS {
	return func(o *ArcGISReaderOptions) { o.OutFields = fields }
}

func WithArcGISOrderBy(fields string) ReaderOptionArcGIS {
	return func(o *ArcGISReaderOptions) { o.OrderByFields = fields }
}

func WithArcGISChunkSize(size int) ReaderOptionArcGIS {
	return func(o *ArcGISReaderOptions) { o.ChunkSize = size }
}

func WithArcGISMaxPages(pages int) ReaderOptionArcGIS {
	return func(o *ArcGISReaderOptions) { o.MaxPages = pages }
}

func WithArcGISTimeout(timeout time.Duration) ReaderOptionArcGIS {
	return func(o *ArcGISReaderOptions) { o.Timeout = timeout }
}

func WithArcGISClient(client *resty.Client) ReaderOptionArcGIS {
	return func(o *ArcGISReaderOptions) { o.Client = client }
}

// ArcGISReader pages through an ArcGIS REST "query" endpoint in GeoJSON format
// using resultOffset/resultRecordCount. Requests are not retried.
type ArcGISReader struct {
	queryURL string
	client   *resty.Client
	opts     ArcGISReaderOptions
	stats    ArcGISReaderStats
	current  []*geojson.Feature
	index    int
	offset   int
	page     int
	done     bool
}

// NewArcGISReader creates a reader for the query URL of a feature layer.
func NewArcGISReader(queryURL string, options ...ReaderOptionArcGIS) (*ArcGISReader, error) {
	opts := ArcGISReaderOptions{
		Where:     "1=1",
		OutFields: "*",
		ChunkSize: 1000,
		OutSR:     4326,
		Timeout:   60 * time.Second,
		UserAgent: "GridETL-ArcGISReader/1.0",
	}
	for _, option := range options {
		option(&opts)
	}
	if queryURL == "" {
		return nil, &ArcGISReaderError{Op: "validate", Err: fmt.Errorf("query url is required")}
	}
	if opts.ChunkSize <= 0 {
		return nil, &ArcGISReaderError{Op: "validate", URL: queryURL, Err: fmt.Errorf("chunk size must be positive")}
	}

	client := opts.Client
	if client == nil {
		client = resty.New().
			SetTimeout(opts.Timeout).
			SetRetryCount(0).
			SetHeader("User-Agent", opts.UserAgent)
	}

	return &ArcGISReader{queryURL: queryURL, client: client, opts: opts}, nil
}

// Read implements the core.DataSource interface.
func (ar *ArcGISReader) Read(ctx context.Context) (core.Record, error) {
	start := time.Now()
	defer func() {
		ar.stats.ReadDuration += time.Since(start)
		ar.stats.LastReadTime = time.Now()
	}()

	select {
	case <-ctx.Done():
		return nil, &ArcGISReaderError{Op: "read", URL: ar.queryURL, Err: ctx.Err()}
	default:
	}

	for ar.index >= len(ar.current) {
		if ar.done {
			return nil, io.EOF
		}
		if err := ar.loadNextPage(ctx); err != nil {
			return nil, err
		}
	}

	f := ar.current[ar.index]
	ar.index++
	ar.stats.RecordsRead++

	rec := make(core.Record, len(f.Properties)+1)
	for k, v := range f.Properties {
		rec[k] = v
	}
	if f.Geometry != nil {
		rec["geometry"] = f.Geometry
	} else {
		rec["geometry"] = nil
	}
	return rec, nil
}

// FetchAll reads every remaining page into a FeatureCollection.
func (ar *ArcGISReader) FetchAll(ctx context.Context) (*geojson.FeatureCollection, error) {
	fc := geojson.NewFeatureCollection()
	for {
		fc.Features = append(fc.Features, ar.current[ar.index:]...)
		ar.index = len(ar.current)
		if ar.done {
			return fc, nil
		}
		if err := ar.loadNextPage(ctx); err != nil {
			return nil, err
		}
	}
}

// Close implements the core.DataSource interface.
func (ar *ArcGISReader) Close() error {
	return nil
}

// Stats returns ArcGIS reader statistics.
func (ar *ArcGISReader) Stats() ArcGISReaderStats {
	return ar.stats
}

type arcgisErrorBody struct {
	Error *struct {
		Code    int      `json:"code"`
		Message string   `json:"message"`
		Details []string `json:"details"`
	} `json:"error"`
}

func (ar *ArcGISReader) loadNextPage(ctx context.Context) error {
	params := map[string]string{
		"where":             ar.opts.Where,
		"outFields":         ar.opts.OutFields,
		"outSR":             strconv.Itoa(ar.opts.OutSR),
		"returnGeometry":    "true",
		"resultOffset":      strconv.Itoa(ar.offset),
		"resultRecordCount": strconv.Itoa(ar.opts.ChunkSize),
		"f":                 "geojson",
	}
	if ar.opts.OrderByFields != "" {
		params["orderByFields"] = ar.opts.OrderByFields
	}

	requestStart := time.Now()
	resp, err := ar.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(ar.queryURL)
	if err != nil {
		return &ArcGISReaderError{Op: "request", URL: ar.queryURL, Err: err}
	}
	ar.stats.RequestCount++
	ar.stats.ResponseTimes = append(ar.stats.ResponseTimes, time.Since(requestStart))
	ar.stats.BytesRead += int64(len(resp.Body()))

	if resp.IsError() {
		return &ArcGISReaderError{Op: "request", StatusCode: resp.StatusCode(), URL: ar.queryURL, Err: fmt.Errorf("unexpected status %s", resp.Status())}
	}

	var apiErr arcgisErrorBody
	if err := json.Unmarshal(resp.Body(), &apiErr); err == nil && apiErr.Error != nil {
		return &ArcGISReaderError{Op: "query", StatusCode: apiErr.Error.Code, URL: ar.queryURL, Err: fmt.Errorf("%s", apiErr.Error.Message)}
	}

	fc, err := geojson.UnmarshalFeatureCollection(resp.Body())
	if err != nil {
		return &ArcGISReaderError{Op: "parse", URL: ar.queryURL, Err: err}
	}

	ar.current = fc.Features
	ar.index = 0
	ar.offset += len(fc.Features)
	ar.page++
	switch {
	case len(fc.Features) == 0:
		ar.done = true
	case len(fc.Features) < ar.opts.ChunkSize && !exceededTransferLimit(fc):
		ar.done = true
	case ar.opts.MaxPages > 0 && ar.page >= ar.opts.MaxPages:
		ar.done = true
	}
	return nil
}

// exceededTransferLimit reports whether the server capped the page below the
// requested record count. ArcGIS sets the flag either at the top level or
// under a collection-level "properties" member.
func exceededTransferLimit(fc *geojson.FeatureCollection) bool {
	if v, ok := fc.ExtraMembers["exceededTransferLimit"].(bool); ok {
		return v
	}
	if props, ok := fc.ExtraMembers["properties"].(map[string]interface{}); ok {
		v, _ := props["exceededTransferLimit"].(bool)
		return v
	}
	return false
}
