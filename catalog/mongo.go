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

package catalog

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/UrsicDX/gridetl/geo"
	"github.com/UrsicDX/gridetl/warehouse"
)

// Collection names of the mongo catalog.
const (
	DatasetCollection  = "datasets"
	SourceCollection   = "sources"
	CoverageCollection = "dataset_coverage"
)

// descriptorDoc is the stored form of a Descriptor.
type descriptorDoc struct {
	Name           string                       `bson:"name"`
	TableName      string                       `bson:"table_name"`
	Description    string                       `bson:"description"`
	SourceName     string                       `bson:"source_name,omitempty"`
	Category       string                       `bson:"category,omitempty"`
	SourceLocation string                       `bson:"source_location,omitempty"`
	ListOnFrontend bool                         `bson:"list_on_fe"`
	InsertedOn     time.Time                    `bson:"inserted_on"`
	UpdatedOn      time.Time                    `bson:"updated_on"`
	Brackets       map[string]warehouse.Bracket `bson:"brackets,omitempty"`
}

type sourceDoc struct {
	Name        string `bson:"_id"`
	Description string `bson:"description"`
	URL         string `bson:"url"`
	AccessType  string `bson:"access_type"`
	SSORole     string `bson:"sso_role"`
}

func toDescriptorDoc(d Descriptor) descriptorDoc {
	return descriptorDoc{
		Name:           d.Name,
		TableName:      d.TableName,
		Description:    d.Description,
		SourceName:     d.SourceName,
		Category:       d.Category,
		SourceLocation: d.SourceLocation,
		ListOnFrontend: d.ListOnFrontend,
		InsertedOn:     d.InsertedOn.UTC(),
		UpdatedOn:      d.UpdatedOn.UTC(),
		Brackets:       d.Brackets,
	}
}

func (doc descriptorDoc) descriptor() Descriptor {
	return Descriptor{
		Name:           doc.Name,
		TableName:      doc.TableName,
		Description:    doc.Description,
		SourceName:     doc.SourceName,
		Category:       doc.Category,
		SourceLocation: doc.SourceLocation,
		ListOnFrontend: doc.ListOnFrontend,
		InsertedOn:     doc.InsertedOn,
		UpdatedOn:      doc.UpdatedOn,
		Brackets:       doc.Brackets,
	}
}

// Mongo keeps the catalog in a MongoDB database. Coverage is stored as a
// GeoJSON geometry so it can carry a 2dsphere index.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
	log    zerolog.Logger
}

// ConnectMongo connects to uri and uses database.
func ConnectMongo(ctx context.Context, uri, database string, logger zerolog.Logger) (*Mongo, error) {
	if uri == "" {
		return nil, &CatalogError{Op: "connect", Err: errors.New("mongo uri is required")}
	}
	if database == "" {
		database = "catalog"
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, &CatalogError{Op: "connect", Err: err}
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, &CatalogError{Op: "ping", Err: err}
	}
	return &Mongo{client: client, db: client.Database(database), log: logger}, nil
}

// EnsureIndexes creates the table name and coverage indexes.
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	_, err := m.db.Collection(DatasetCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "table_name", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return &CatalogError{Op: "ensure_indexes", Err: err}
	}
	_, err = m.db.Collection(CoverageCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "geometry", Value: "2dsphere"}},
	})
	if err != nil {
		return &CatalogError{Op: "ensure_indexes", Err: err}
	}
	return nil
}

// WriteMetadata implements Writer. The unique table_name index keeps one
// document per table.
func (m *Mongo) WriteMetadata(ctx context.Context, d Descriptor, override bool) error {
	if err := d.Validate(); err != nil {
		return &CatalogError{Op: "write_metadata", Table: d.TableName, Err: err}
	}
	coll := m.db.Collection(DatasetCollection)
	filter := bson.M{"table_name": d.TableName}
	doc := toDescriptorDoc(d)

	if !override {
		if _, err := coll.InsertOne(ctx, doc); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return &CatalogError{Op: "write_metadata", Table: d.TableName, Err: ErrDescriptorExists}
			}
			return &CatalogError{Op: "insert", Table: d.TableName, Err: err}
		}
		return nil
	}

	res, err := coll.ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return &CatalogError{Op: "replace", Table: d.TableName, Err: err}
	}
	m.log.Info().Str("table", d.TableName).Str("name", d.Name).Bool("replaced", res.MatchedCount > 0).Msg("descriptor written")
	return nil
}

// WriteSource implements Writer.
func (m *Mongo) WriteSource(ctx context.Context, s Source, override bool) error {
	if s.Name == "" {
		return &CatalogError{Op: "write_source", Err: errors.New("source name is required")}
	}
	coll := m.db.Collection(SourceCollection)
	doc := sourceDoc(s)
	if override {
		_, err := coll.ReplaceOne(ctx, bson.M{"_id": s.Name}, doc, options.Replace().SetUpsert(true))
		if err != nil {
			return &CatalogError{Op: "write_source", Table: s.Name, Err: err}
		}
		return nil
	}
	if _, err := coll.InsertOne(ctx, doc); err != nil && !mongo.IsDuplicateKeyError(err) {
		return &CatalogError{Op: "write_source", Table: s.Name, Err: err}
	}
	return nil
}

// Clean implements Writer.
func (m *Mongo) Clean(ctx context.Context, fragment string) error {
	pattern := bson.M{"$regex": regexp.QuoteMeta(fragment)}
	if _, err := m.db.Collection(DatasetCollection).DeleteMany(ctx, bson.M{"table_name": pattern}); err != nil {
		return &CatalogError{Op: "clean", Table: fragment, Err: err}
	}
	if _, err := m.db.Collection(CoverageCollection).DeleteMany(ctx, bson.M{"_id": pattern}); err != nil {
		return &CatalogError{Op: "clean", Table: fragment, Err: err}
	}
	m.log.Info().Str("fragment", fragment).Msg("catalog cleaned")
	return nil
}

// Descriptors implements Writer.
func (m *Mongo) Descriptors(ctx context.Context, table string) ([]Descriptor, error) {
	cur, err := m.db.Collection(DatasetCollection).Find(ctx, bson.M{"table_name": table})
	if err != nil {
		return nil, &CatalogError{Op: "descriptors", Table: table, Err: err}
	}
	defer cur.Close(ctx)

	var docs []descriptorDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, &CatalogError{Op: "descriptors", Table: table, Err: err}
	}
	out := make([]Descriptor, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.descriptor())
	}
	return out, nil
}

// WriteCoverage implements CoverageWriter.
func (m *Mongo) WriteCoverage(ctx context.Context, table string, g orb.Geometry) error {
	doc, err := CoverageDocument(table, g)
	if err != nil {
		return &CatalogError{Op: "write_coverage", Table: table, Err: err}
	}
	_, err = m.db.Collection(CoverageCollection).ReplaceOne(ctx, bson.M{"_id": table}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return &CatalogError{Op: "write_coverage", Table: table, Err: err}
	}
	m.log.Info().Str("table", table).Str("type", g.GeoJSONType()).Msg("coverage written")
	return nil
}

// Coverage returns the stored coverage of table, or nil when none exists.
func (m *Mongo) Coverage(ctx context.Context, table string) (orb.Geometry, error) {
	var doc bson.M
	err := m.db.Collection(CoverageCollection).FindOne(ctx, bson.M{"_id": table}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, &CatalogError{Op: "coverage", Table: table, Err: err}
	}
	raw, err := bson.MarshalExtJSON(doc["geometry"], false, false)
	if err != nil {
		return nil, &CatalogError{Op: "coverage", Table: table, Err: err}
	}
	g, err := geojson.UnmarshalGeometry(raw)
	if err != nil {
		return nil, &CatalogError{Op: "coverage", Table: table, Err: err}
	}
	return g.Geometry(), nil
}

// Close implements Catalog.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// CoverageDocument builds the stored coverage document of table.
func CoverageDocument(table string, g orb.Geometry) (bson.M, error) {
	if g == nil {
		return nil, errors.New("coverage geometry is empty")
	}
	raw, err := geo.GeoJSON(g)
	if err != nil {
		return nil, err
	}
	var geometry bson.M
	if err := bson.UnmarshalExtJSON(raw, false, &geometry); err != nil {
		return nil, fmt.Errorf("convert geojson: %w", err)
	}
	return bson.M{"_id": table, "geometry": geometry}, nil
}
