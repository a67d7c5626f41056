// Package s3store publishes finished shorts to an S3 bucket.
package s3store

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/forPelevin/hlshorts/internal/ports"
)

type putter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Publisher struct {
	client putter
	bucket string
	prefix string
}

var _ ports.Publisher = (*Publisher)(nil)

func New(ctx context.Context, bucket, prefix, region string) (*Publisher, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return newPublisher(s3.NewFromConfig(cfg), bucket, prefix), nil
}

func newPublisher(c putter, bucket, prefix string) *Publisher {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &Publisher{client: c, bucket: bucket, prefix: prefix}
}

// Under returns a publisher writing below sub inside the current prefix.
func (p *Publisher) Under(sub string) *Publisher {
	sub = strings.Trim(sub, "/")
	if sub == "" {
		return p
	}
	return &Publisher{client: p.client, bucket: p.bucket, prefix: p.prefix + sub + "/"}
}

// Publish uploads files under <prefix><run dir name>/ and returns the keys in
// upload order. It stops at the first failure.
func (p *Publisher) Publish(ctx context.Context, runDir string, files []string) ([]string, error) {
	run := filepath.Base(filepath.Clean(runDir))
	keys := make([]string, 0, len(files))
	for _, f := range files {
		key := p.prefix + path.Join(run, filepath.Base(f))
		if err := p.put(ctx, key, f); err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (p *Publisher) put(ctx context.Context, key, file string) error {
	fh, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("open %s: %w", file, err)
	}
	defer fh.Close()

	in := &s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
		Body:   fh,
	}
	if ct := contentType(file); ct != "" {
		in.ContentType = aws.String(ct)
	}
	if _, err := p.client.PutObject(ctx, in); err != nil {
		return fmt.Errorf("failed to upload %s to S3: %w", key, err)
	}
	return nil
}

var contentTypes = map[string]string{
	".mp4":  "video/mp4",
	".txt":  "text/plain; charset=utf-8",
	".json": "application/json",
	".ass":  "text/x-ssa",
}

func contentType(file string) string {
	ext := strings.ToLower(filepath.Ext(file))
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	return mime.TypeByExtension(ext)
}
