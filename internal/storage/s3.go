// Package storage archives raw uploaded documents in S3-compatible object
// storage so queued ingestion jobs can reference them by key.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/OFFIS-RIT/hazgraph/internal/util"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

type Archive struct {
	client *s3.Client
	bucket string
	prefix string
}

type ArchiveParams struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
}

// ArchiveParamsFromEnv reads AWS_REGION, AWS_ENDPOINT, AWS_ACCESS_KEY,
// AWS_SECRET_KEY, AWS_BUCKET and AWS_PREFIX.
func ArchiveParamsFromEnv() ArchiveParams {
	return ArchiveParams{
		Region:    util.GetEnvString("AWS_REGION", "us-east-1"),
		Endpoint:  util.GetEnv("AWS_ENDPOINT"),
		AccessKey: util.GetEnv("AWS_ACCESS_KEY"),
		SecretKey: util.GetEnv("AWS_SECRET_KEY"),
		Bucket:    util.GetEnv("AWS_BUCKET"),
		Prefix:    util.GetEnvString("AWS_PREFIX", "raw"),
	}
}

func NewArchive(ctx context.Context, params ArchiveParams) (*Archive, error) {
	if params.Bucket == "" {
		return nil, fmt.Errorf("s3 archive: bucket is required")
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(params.Region)}
	if params.Endpoint != "" {
		opts = append(opts, config.WithBaseEndpoint(params.Endpoint))
	}
	if params.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			params.AccessKey,
			params.SecretKey,
			"",
		)))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
	return &Archive{client: client, bucket: params.Bucket, prefix: strings.Trim(params.Prefix, "/")}, nil
}

// Put stores data under a fresh key derived from name and returns the key.
func (a *Archive) Put(ctx context.Context, name string, data []byte) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", err
	}
	ext := path.Ext(name)
	key := path.Join(a.prefix, id+ext)

	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		Metadata:    map[string]string{"source-name": path.Base(name)},
	})
	if err != nil {
		return "", fmt.Errorf("upload %s to s3: %w", name, err)
	}
	return key, nil
}

// Fetch reads an archived object by key.
func (a *Archive) Fetch(ctx context.Context, key string) ([]byte, error) {
	result, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get %s from s3: %w", key, err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

func (a *Archive) Delete(ctx context.Context, key string) error {
	_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete %s from s3: %w", key, err)
	}
	return nil
}

// List returns all keys under the archive prefix.
func (a *Archive) List(ctx context.Context) ([]string, error) {
	var keys []string
	listInput := &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(a.prefix),
	}

	for {
		listOutput, err := a.client.ListObjectsV2(ctx, listInput)
		if err != nil {
			return nil, fmt.Errorf("list objects with prefix %s: %w", a.prefix, err)
		}
		for _, obj := range listOutput.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
		if listOutput.IsTruncated == nil || !*listOutput.IsTruncated {
			break
		}
		listInput.ContinuationToken = listOutput.NextContinuationToken
	}
	return keys, nil
}
