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

package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Credentials holds static AWS credentials. When empty the default
// credential chain is used.
type S3Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// S3Options configures the S3 backend.
type S3Options struct {
	Region         string
	Profile        string
	EndpointURL    string // custom endpoint (MinIO, GCS interoperability, LocalStack)
	ForcePathStyle bool
	Credentials    S3Credentials
	PartSize       int64
}

// OptionS3 is a functional option for S3Options.
type OptionS3 func(*S3Options)

func WithS3Region(region string) OptionS3 {
	return func(o *S3Options) { o.Region = region }
}

func WithS3Profile(profile string) OptionS3 {
	return func(o *S3Options) { o.Profile = profile }
}

func WithS3Endpoint(url string, forcePathStyle bool) OptionS3 {
	return func(o *S3Options) {
		o.EndpointURL = url
		o.ForcePathStyle = forcePathStyle
	}
}

func WithS3Credentials(accessKeyID, secretAccessKey, sessionToken string) OptionS3 {
	return func(o *S3Options) {
		o.Credentials = S3Credentials{
			AccessKeyID:     accessKeyID,
			SecretAccessKey: secretAccessKey,
			SessionToken:    sessionToken,
		}
	}
}

func WithS3PartSize(size int64) OptionS3 {
	return func(o *S3Options) { o.PartSize = size }
}

// S3 is a Backend over an S3 compatible object store.
type S3 struct {
	client     *s3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
	opts       S3Options
}

// NewS3 creates an S3 backend.
func NewS3(ctx context.Context, options ...OptionS3) (*S3, error) {
	opts := S3Options{PartSize: manager.DefaultUploadPartSize}
	for _, option := range options {
		option(&opts)
	}

	cfg, err := createAWSConfig(ctx, opts)
	if err != nil {
		return nil, &StorageError{Op: "create_aws_config", Err: err}
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.EndpointURL != "" {
			o.BaseEndpoint = aws.String(opts.EndpointURL)
		}
		o.UsePathStyle = opts.ForcePathStyle
	})

	return &S3{
		client: client,
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = opts.PartSize
		}),
		downloader: manager.NewDownloader(client),
		opts:       opts,
	}, nil
}

// Client exposes the underlying S3 client.
func (s *S3) Client() *s3.Client {
	return s.client
}

// Upload implements Uploader.
func (s *S3) Upload(ctx context.Context, localPath, bucket, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return &StorageError{Op: "upload", Bucket: bucket, Key: key, Err: err}
	}
	defer f.Close()

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(Key(key)),
		Body:   f,
	})
	if err != nil {
		return &StorageError{Op: "upload", Bucket: bucket, Key: key, Err: err}
	}
	return nil
}

// Download implements Backend. A partially written file is removed on failure.
func (s *S3) Download(ctx context.Context, bucket, key, localPath string) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return &StorageError{Op: "download", Bucket: bucket, Key: key, Err: err}
	}
	f, err := os.Create(localPath)
	if err != nil {
		return &StorageError{Op: "download", Bucket: bucket, Key: key, Err: err}
	}

	_, err = s.downloader.Download(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(Key(key)),
	})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(localPath)
		return &StorageError{Op: "download", Bucket: bucket, Key: key, Err: err}
	}
	return nil
}

// Exists implements Backend.
func (s *S3) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(Key(key)),
	})
	if err == nil {
		return true, nil
	}
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return false, nil
	}
	return false, &StorageError{Op: "head", Bucket: bucket, Key: key, Err: err}
}

// createAWSConfig loads the default AWS configuration and applies explicit
// region, profile and static credentials.
func createAWSConfig(ctx context.Context, opts S3Options) (aws.Config, error) {
	configOpts := []func(*config.LoadOptions) error{}

	if opts.Region != "" {
		configOpts = append(configOpts, config.WithRegion(opts.Region))
	}
	if opts.Profile != "" {
		configOpts = append(configOpts, config.WithSharedConfigProfile(opts.Profile))
	}

	cfg, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return aws.Config{}, err
	}

	if opts.Credentials.AccessKeyID != "" {
		if opts.Credentials.SecretAccessKey == "" {
			return aws.Config{}, fmt.Errorf("secret access key is required with an access key id")
		}
		cfg.Credentials = aws.NewCredentialsCache(
			credentials.NewStaticCredentialsProvider(
				opts.Credentials.AccessKeyID,
				opts.Credentials.SecretAccessKey,
				opts.Credentials.SessionToken,
			),
		)
	}
	return cfg, nil
}
