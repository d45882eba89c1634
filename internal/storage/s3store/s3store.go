/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package s3store keeps designs in an S3 bucket (or any S3-compatible service).
// Each design is stored as four objects under <prefix>/<id>/.
package s3store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	applog "caseforge/internal/log"
	"caseforge/internal/storage"
)

// Object names inside a design's key prefix.
const (
	metaObject     = "meta.json"
	documentObject = "document.json"
	designObject   = "design.png"
	stageObject    = "stage.png"
)

// Options configures the bucket connection.
type Options struct {
	Bucket string
	Prefix string
	Region string
	// Endpoint overrides the service URL and switches to path-style addressing.
	Endpoint string
	// AccessKey and SecretKey select static credentials; empty uses the default chain.
	AccessKey string
	SecretKey string
}

// Store is a storage.Store over S3.
type Store struct {
	client *s3.Client
	bucket string
	prefix string
	log    *slog.Logger
}

// Open builds an S3 client from the default AWS configuration plus opts.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, errors.New("s3 bucket is required")
	}
	var loaders []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loaders = append(loaders, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" {
		loaders = append(loaders, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &Store{
		client: client,
		bucket: opts.Bucket,
		prefix: strings.Trim(opts.Prefix, "/"),
		log:    applog.WithComponent("storage").With(slog.String("backend", "s3"), slog.String("bucket", opts.Bucket)),
	}, nil
}

func (s *Store) key(id, name string) string {
	if s.prefix == "" {
		return path.Join(id, name)
	}
	return path.Join(s.prefix, id, name)
}

func (s *Store) put(ctx context.Context, key, contentType string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (s *Store) get(ctx context.Context, key string) ([]byte, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// Save writes the payload objects first and the metadata last, so a design only
// becomes visible once all of its parts are in the bucket.
func (s *Store) Save(ctx context.Context, d storage.Design) (string, error) {
	d, err := storage.Prepare(d, time.Now())
	if err != nil {
		return "", err
	}
	l := applog.WithDesign(applog.WithOperation(s.log, "save"), d.ID)
	meta, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("marshal meta: %w", err)
	}
	for _, o := range []struct {
		name, ct string
		data     []byte
	}{
		{documentObject, "application/json", d.Document},
		{designObject, "image/png", d.DesignPNG},
		{stageObject, "image/png", d.StagePNG},
		{metaObject, "application/json", meta},
	} {
		if err := s.put(ctx, s.key(d.ID, o.name), o.ct, o.data); err != nil {
			l.Error("save failed", slog.String("object", o.name), slog.Any("err", err))
			return "", err
		}
	}
	l.Info("design saved")
	return d.ID, nil
}

func (s *Store) Get(ctx context.Context, id string) (storage.Design, error) {
	if !storage.ValidID(id) {
		return storage.Design{}, fmt.Errorf("%w: %q", storage.ErrInvalidID, id)
	}
	meta, err := s.get(ctx, s.key(id, metaObject))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Design{}, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
		}
		return storage.Design{}, err
	}
	var d storage.Design
	if err := json.Unmarshal(meta, &d); err != nil {
		return storage.Design{}, fmt.Errorf("decode meta %s: %w", id, err)
	}
	if d.Document, err = s.get(ctx, s.key(id, documentObject)); err != nil {
		return storage.Design{}, err
	}
	if d.DesignPNG, err = s.get(ctx, s.key(id, designObject)); err != nil {
		return storage.Design{}, err
	}
	if d.StagePNG, err = s.get(ctx, s.key(id, stageObject)); err != nil {
		return storage.Design{}, err
	}
	return d, nil
}

func (s *Store) Close() error { return nil }
