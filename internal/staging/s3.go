// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Transfer License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package staging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/nishisan-dev/n-transfer/internal/config"
	"github.com/nishisan-dev/n-transfer/internal/protocol"
)

// S3Store guarda manifests e chunks em um bucket S3 (ou compatível, como
// MinIO). O layout de chaves espelha o DiskStore:
//
//	{prefix}{id}/manifest.json
//	{prefix}{id}/chunks/00000001.part
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Store monta o client a partir da configuração. Credenciais estáticas
// na config têm precedência; sem elas vale a cadeia default do SDK (env,
// profile, IAM role). Endpoint customizado liga path-style addressing.
func NewS3Store(ctx context.Context, cfg config.S3Config) (*S3Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

func (s *S3Store) manifestKey(id string) string {
	return s.prefix + id + "/" + manifestName
}

func (s *S3Store) chunkKey(id string, seq int) string {
	return s.prefix + id + "/" + chunkSubdir + "/" + chunkName(seq)
}

func (s *S3Store) SaveManifest(ctx context.Context, m *Manifest) error {
	if !protocol.ValidTransferID(m.ID) {
		return ErrNotFound
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.manifestKey(m.ID)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("putting manifest: %w", err)
	}
	return nil
}

func (s *S3Store) LoadManifest(ctx context.Context, id string) (*Manifest, error) {
	if !protocol.ValidTransferID(id) {
		return nil, ErrNotFound
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.manifestKey(id)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting manifest: %w", err)
	}
	defer out.Body.Close()

	var m Manifest
	if err := json.NewDecoder(out.Body).Decode(&m); err != nil {
		return nil, fmt.Errorf("decoding manifest for %s: %w", id, err)
	}
	return &m, nil
}

func (s *S3Store) AppendChunk(ctx context.Context, id string, seq int, data []byte) error {
	if !protocol.ValidTransferID(id) {
		return ErrNotFound
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.chunkKey(id, seq)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("putting chunk %d: %w", seq, err)
	}
	return nil
}

func (s *S3Store) OpenChunk(ctx context.Context, id string, seq int) (io.ReadCloser, error) {
	if !protocol.ValidTransferID(id) {
		return nil, ErrNotFound
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.chunkKey(id, seq)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting chunk %d: %w", seq, err)
	}
	return out.Body, nil
}

func (s *S3Store) Delete(ctx context.Context, id string) error {
	if !protocol.ValidTransferID(id) {
		return ErrNotFound
	}
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix + id + "/"),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("listing objects for delete: %w", err)
		}
		if len(page.Contents) == 0 {
			continue
		}
		objects := make([]types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			objects = append(objects, types.ObjectIdentifier{Key: obj.Key})
		}
		_, err = s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("deleting objects: %w", err)
		}
	}
	return nil
}

func (s *S3Store) List(ctx context.Context) ([]string, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.bucket),
		Prefix:    aws.String(s.prefix),
		Delimiter: aws.String("/"),
	})

	var ids []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing staged transfers: %w", err)
		}
		for _, cp := range page.CommonPrefixes {
			id := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), s.prefix), "/")
			if protocol.ValidTransferID(id) {
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}
