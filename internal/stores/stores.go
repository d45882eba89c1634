/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package stores picks the design storage backend named by the configuration.
package stores

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"caseforge/internal/backend"
	"caseforge/internal/config"
	applog "caseforge/internal/log"
	"caseforge/internal/storage"
	"caseforge/internal/storage/postgres"
	"caseforge/internal/storage/s3store"
)

// Storage types accepted in storage.type.
const (
	TypeMemory     = "memory"
	TypeFilesystem = "filesystem"
	TypeSQLite     = "sqlite"
	TypePostgres   = "postgres"
	TypeS3         = "s3"
	TypeRemote     = "remote"
)

// Env vars for static S3 credentials; the AWS default chain applies when unset.
const (
	EnvS3AccessKey = "CASEFORGE_S3_ACCESS_KEY"
	EnvS3SecretKey = "CASEFORGE_S3_SECRET_KEY"
)

// Open returns the store configured in cfg. Unknown types fall back to memory.
func Open(ctx context.Context, cfg config.AppConfig) (storage.Store, error) {
	sc := cfg.Storage
	typ := strings.ToLower(strings.TrimSpace(sc.Type))
	attrs := []any{slog.String("storage_type", typ)}
	var (
		st  storage.Store
		err error
	)
	switch typ {
	case TypeFilesystem:
		path := sc.Path
		if path == "" {
			path = "./data"
		}
		attrs = append(attrs, slog.String("path", path))
		st, err = storage.NewFilesystem(path)
	case TypeSQLite:
		dsn := sc.DSN
		if dsn == "" {
			dsn = "caseforge.db"
		}
		attrs = append(attrs, slog.String("dsn", dsn))
		st, err = storage.OpenSQLite(dsn)
	case TypePostgres:
		st, err = postgres.Open(ctx, sc.DSN)
	case TypeS3:
		if sc.Bucket == "" {
			return nil, fmt.Errorf("storage.bucket must be set for %s storage", TypeS3)
		}
		attrs = append(attrs, slog.String("bucket", sc.Bucket))
		st, err = s3store.Open(ctx, s3store.Options{
			Bucket:    sc.Bucket,
			Prefix:    sc.Prefix,
			Region:    sc.Region,
			Endpoint:  sc.Endpoint,
			AccessKey: os.Getenv(EnvS3AccessKey),
			SecretKey: os.Getenv(EnvS3SecretKey),
		})
	case TypeRemote:
		attrs = append(attrs, slog.String("base_url", cfg.Backend.BaseURL))
		st, err = backend.NewClientFromConfig(cfg.Backend)
	default:
		typ = TypeMemory
		attrs[0] = slog.String("storage_type", typ)
		st = storage.NewMemory()
	}
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", typ, err)
	}
	applog.WithComponent("stores").Info("use storage", attrs...)
	return st, nil
}
