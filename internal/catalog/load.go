package catalog

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// file is the on-disk TOML layout:
//
//	[[entity]]
//	name = "Book"
//	collection = "books"
//	  [[entity.field]]
//	  name = "title"
//	  type = "string"
type file struct {
	Entities []Entity `toml:"entity"`
}

// Load decodes a TOML catalog from r.
func Load(r io.Reader) (*Static, error) {
	var f file
	md, err := toml.NewDecoder(r).Decode(&f)
	if err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("decode catalog: unknown keys %v", undecoded)
	}
	return New(f.Entities...)
}

// LoadFile decodes a TOML catalog from path.
func LoadFile(path string) (*Static, error) {
	var f file
	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		return nil, fmt.Errorf("decode catalog %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("decode catalog %s: unknown keys %v", path, undecoded)
	}
	return New(f.Entities...)
}

// Encode writes entities in the TOML layout accepted by Load.
func Encode(w io.Writer, entities []Entity) error {
	return toml.NewEncoder(w).Encode(file{Entities: entities})
}

// S3Source locates a TOML catalog stored in an S3-compatible bucket.
type S3Source struct {
	Bucket string
	Key    string
	Region string
	// Endpoint enables path-style addressing (for MinIO and similar).
	Endpoint string
}

// ParseS3URL splits "s3://bucket/key" into a source.
func ParseS3URL(raw string) (S3Source, bool) {
	rest, ok := strings.CutPrefix(raw, "s3://")
	if !ok {
		return S3Source{}, false
	}
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return S3Source{}, false
	}
	return S3Source{Bucket: bucket, Key: key}, true
}

// objectGetter is the subset of *s3.Client used by LoadS3.
type objectGetter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// NewS3Client builds a client for src using the default AWS credential chain.
func NewS3Client(ctx context.Context, src S3Source) (*s3.Client, error) {
	region := src.Region
	if region == "" {
		region = "us-east-1"
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3opts []func(*s3.Options)
	if src.Endpoint != "" {
		s3opts = append(s3opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(src.Endpoint)
			o.UsePathStyle = true
		})
	}
	return s3.NewFromConfig(cfg, s3opts...), nil
}

// LoadS3 fetches and decodes a TOML catalog object.
func LoadS3(ctx context.Context, src S3Source) (*Static, error) {
	client, err := NewS3Client(ctx, src)
	if err != nil {
		return nil, err
	}
	return loadObject(ctx, client, src)
}

func loadObject(ctx context.Context, client objectGetter, src S3Source) (*Static, error) {
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(src.Bucket),
		Key:    aws.String(src.Key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get object s3://%s/%s: %w", src.Bucket, src.Key, err)
	}
	defer out.Body.Close()
	return Load(out.Body)
}

// objectPutter is the subset of *s3.Client used by SaveS3.
type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// SaveS3 writes entities as a TOML object that LoadS3 can read back.
func SaveS3(ctx context.Context, src S3Source, entities []Entity) error {
	client, err := NewS3Client(ctx, src)
	if err != nil {
		return err
	}
	return saveObject(ctx, client, src, entities)
}

func saveObject(ctx context.Context, client objectPutter, src S3Source, entities []Entity) error {
	var buf bytes.Buffer
	if err := Encode(&buf, entities); err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	_, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(src.Bucket),
		Key:         aws.String(src.Key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/toml"),
	})
	if err != nil {
		return fmt.Errorf("s3 put object s3://%s/%s: %w", src.Bucket, src.Key, err)
	}
	return nil
}
