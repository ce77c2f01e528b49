// Package geosource loads province boundary GeoJSON from a local file or
// an S3-compatible bucket (s3://bucket/key).
package geosource

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/JonMunkholm/geoatlas/internal/config"
	"github.com/JonMunkholm/geoatlas/internal/core"
	aws "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// MaxSize bounds how much GeoJSON a source may return.
const MaxSize = 256 << 20

// Load reads and parses the feature collection at source.
// An empty source falls back to cfg.Source.
func Load(ctx context.Context, cfg config.GeometryConfig, source string) (*core.FeatureCollection, error) {
	if source == "" {
		source = cfg.Source
	}
	if source == "" {
		return nil, fmt.Errorf("no geometry source configured")
	}

	data, err := Read(ctx, cfg, source)
	if err != nil {
		return nil, err
	}
	return core.ParseFeatureCollection(data)
}

// Read returns the raw bytes at source.
func Read(ctx context.Context, cfg config.GeometryConfig, source string) ([]byte, error) {
	if strings.HasPrefix(source, "s3://") {
		bucket, key, err := ParseS3URL(source)
		if err != nil {
			return nil, err
		}
		return readS3(ctx, cfg, bucket, key)
	}

	f, err := os.Open(source)
	if err != nil {
		return nil, fmt.Errorf("open geometry file: %w", err)
	}
	defer f.Close()
	return readLimited(f)
}

// ParseS3URL splits s3://bucket/key into its parts.
func ParseS3URL(raw string) (bucket, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("parse s3 url: %w", err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("invalid s3 url %q: want s3://bucket/key", raw)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("invalid s3 url %q: missing object key", raw)
	}
	return u.Host, key, nil
}

func newS3Client(ctx context.Context, cfg config.GeometryConfig) (*s3.Client, error) {
	region := cfg.S3Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3PathStyle {
			o.UsePathStyle = true
		}
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
	}), nil
}

func readS3(ctx context.Context, cfg config.GeometryConfig, bucket, key string) ([]byte, error) {
	client, err := newS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()
	return readLimited(out.Body)
}

func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read geometry: %w", err)
	}
	if len(data) > MaxSize {
		return nil, fmt.Errorf("geometry source exceeds %d bytes", MaxSize)
	}
	return data, nil
}
