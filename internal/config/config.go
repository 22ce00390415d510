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

// Package config loads GridETL settings from defaults, an optional TOML file
// and GRIDETL_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for GridETL
type Config struct {
	Log      LogConfig
	Database DatabaseConfig
	Storage  StorageConfig
	Lake     LakeConfig
	Catalog  CatalogConfig
	SMTP     SMTPConfig
	Notify   NotifyConfig
	Portal   PortalConfig
	Export   ExportConfig
	Snapshot SnapshotConfig
	ArcGIS   ArcGISConfig
}

type LogConfig struct {
	Level  string
	Format string // console or json
}

type DatabaseConfig struct {
	DSN             string
	Schema          string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	QueryTimeout    time.Duration
}

type StorageConfig struct {
	Backend   string // s3 or local
	LocalPath string
	Region    string
	Profile   string
	Endpoint  string // custom endpoint, e.g. "https://storage.googleapis.com" or MinIO
	AccessKey string
	SecretKey string
	PathStyle bool
}

type LakeConfig struct {
	Bucket  string
	DataDir string // local cache of lake extracts
}

type CatalogConfig struct {
	Backend       string // postgres or mongo
	Schema        string
	MongoURI      string
	MongoDatabase string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type NotifyConfig struct {
	EmailTo []string
}

type PortalConfig struct {
	BaseURL   string
	MapPath   string
	LoginPath string
	AppPath   string // capacity map application holding the export link
	Email     string
	Password  string
	Timeout   time.Duration
}

type ExportConfig struct {
	Dir          string
	Bucket       string
	BlobPrefix   string
	BlobBase     string
	Schedule     string // cron expression, empty runs once
	WaitTimeout  time.Duration
	ArtifactPath string
}

// ArcGISConfig applies to every ArcGIS REST layer a migration fetches.
type ArcGISConfig struct {
	Where    string // query filter
	MaxPages int    // page cap per layer, 0 fetches everything
}

type SnapshotConfig struct {
	Enabled bool
	Dir     string
	Format  string // parquet, csv or geojsonl
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("database.dsn", "postgres://localhost:5432/gridetl?sslmode=disable")
	v.SetDefault("database.schema", "dataset")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "5m")
	v.SetDefault("database.query_timeout", "10m")

	v.SetDefault("storage.backend", "s3")
	v.SetDefault("storage.local_path", "./data/storage")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.path_style", false)

	v.SetDefault("lake.bucket", "data_lake_core")
	v.SetDefault("lake.data_dir", "./data")

	v.SetDefault("catalog.backend", "postgres")
	v.SetDefault("catalog.schema", "dataset")
	v.SetDefault("catalog.mongo_database", "gridetl")

	v.SetDefault("smtp.port", 587)

	v.SetDefault("portal.base_url", "https://www.nationalgrid.co.uk")
	v.SetDefault("portal.map_path", "/network-opportunity-map/")
	v.SetDefault("portal.login_path", "/customer-portal/login")
	v.SetDefault("portal.app_path", "/our-network/network-capacity-map-application")
	v.SetDefault("portal.timeout", "60s")

	v.SetDefault("export.dir", "/tmp/exports")
	v.SetDefault("export.bucket", "diplomska-461311_cloudbuild")
	v.SetDefault("export.blob_prefix", "exports")
	v.SetDefault("export.blob_base", "wpd_network_capacity_map")
	v.SetDefault("export.wait_timeout", "2m")
	v.SetDefault("export.artifact_path", "/tmp/export_error.html")

	v.SetDefault("snapshot.enabled", false)
	v.SetDefault("snapshot.dir", "./data/snapshots")
	v.SetDefault("snapshot.format", "parquet")

	v.SetDefault("arcgis.where", "1=1")
	v.SetDefault("arcgis.max_pages", 0)
}

// Load reads the configuration. An explicit path must exist; without one,
// gridetl.toml is looked up in ./ and /etc/gridetl/ and may be absent.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("GRIDETL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("gridetl")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/gridetl/")
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Database: DatabaseConfig{
			DSN:             v.GetString("database.dsn"),
			Schema:          v.GetString("database.schema"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
			QueryTimeout:    v.GetDuration("database.query_timeout"),
		},
		Storage: StorageConfig{
			Backend:   strings.ToLower(v.GetString("storage.backend")),
			LocalPath: v.GetString("storage.local_path"),
			Region:    v.GetString("storage.region"),
			Profile:   v.GetString("storage.profile"),
			Endpoint:  v.GetString("storage.endpoint"),
			AccessKey: v.GetString("storage.access_key"),
			SecretKey: v.GetString("storage.secret_key"),
			PathStyle: v.GetBool("storage.path_style"),
		},
		Lake: LakeConfig{
			Bucket:  v.GetString("lake.bucket"),
			DataDir: v.GetString("lake.data_dir"),
		},
		Catalog: CatalogConfig{
			Backend:       strings.ToLower(v.GetString("catalog.backend")),
			Schema:        v.GetString("catalog.schema"),
			MongoURI:      v.GetString("catalog.mongo_uri"),
			MongoDatabase: v.GetString("catalog.mongo_database"),
		},
		SMTP: SMTPConfig{
			Host:     v.GetString("smtp.host"),
			Port:     v.GetInt("smtp.port"),
			Username: v.GetString("smtp.username"),
			Password: v.GetString("smtp.password"),
			From:     v.GetString("smtp.from"),
		},
		Notify: NotifyConfig{
			EmailTo: v.GetStringSlice("notify.email_to"),
		},
		Portal: PortalConfig{
			BaseURL:   v.GetString("portal.base_url"),
			MapPath:   v.GetString("portal.map_path"),
			LoginPath: v.GetString("portal.login_path"),
			AppPath:   v.GetString("portal.app_path"),
			Email:     v.GetString("portal.email"),
			Password:  v.GetString("portal.password"),
			Timeout:   v.GetDuration("portal.timeout"),
		},
		Export: ExportConfig{
			Dir:          v.GetString("export.dir"),
			Bucket:       v.GetString("export.bucket"),
			BlobPrefix:   v.GetString("export.blob_prefix"),
			BlobBase:     v.GetString("export.blob_base"),
			Schedule:     v.GetString("export.schedule"),
			WaitTimeout:  v.GetDuration("export.wait_timeout"),
			ArtifactPath: v.GetString("export.artifact_path"),
		},
		Snapshot: SnapshotConfig{
			Enabled: v.GetBool("snapshot.enabled"),
			Dir:     v.GetString("snapshot.dir"),
			Format:  strings.ToLower(v.GetString("snapshot.format")),
		},
		ArcGIS: ArcGISConfig{
			Where:    v.GetString("arcgis.where"),
			MaxPages: v.GetInt("arcgis.max_pages"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "s3", "local":
	default:
		return fmt.Errorf("invalid storage.backend %q: must be s3 or local", c.Storage.Backend)
	}
	switch c.Catalog.Backend {
	case "postgres":
	case "mongo":
		if c.Catalog.MongoURI == "" {
			return fmt.Errorf("catalog.mongo_uri is required for the mongo catalog")
		}
	default:
		return fmt.Errorf("invalid catalog.backend %q: must be postgres or mongo", c.Catalog.Backend)
	}
	if c.Snapshot.Enabled {
		switch c.Snapshot.Format {
		case "parquet", "csv", "geojsonl":
		default:
			return fmt.Errorf("invalid snapshot.format %q: must be parquet, csv or geojsonl", c.Snapshot.Format)
		}
	}
	if c.ArcGIS.MaxPages < 0 {
		return fmt.Errorf("arcgis.max_pages must not be negative")
	}
	if c.Lake.Bucket == "" {
		return fmt.Errorf("lake.bucket is required")
	}
	return nil
}
