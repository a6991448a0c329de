package upload

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of the S3 client used by S3Provider
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Provider implements object storage on AWS S3
type S3Provider struct {
	client     S3API
	bucketName string
	region     string
	baseURL    string
}

// NewS3Provider creates a new AWS S3 provider
func NewS3Provider(ctx context.Context, accessKeyID, secretAccessKey, region, bucketName string) (*S3Provider, error) {
	if bucketName == "" {
		return nil, fmt.Errorf("AWS_S3_BUCKET is required")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if accessKeyID != "" && secretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKeyID,
			secretAccessKey,
			"",
		)))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewS3ProviderWithClient(s3.NewFromConfig(cfg), region, bucketName), nil
}

// NewS3ProviderWithClient wraps an existing client
func NewS3ProviderWithClient(client S3API, region, bucketName string) *S3Provider {
	return &S3Provider{
		client:     client,
		bucketName: bucketName,
		region:     region,
		baseURL:    fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucketName, region),
	}
}

// Upload stores an object in S3 with public-read ACL
func (p *S3Provider) Upload(ctx context.Context, file io.Reader, options *UploadOptions) (*UploadResult, error) {
	options = MergeOptions(options)
	key := options.objectPath()

	// Content length must be known for a non-seekable body.
	body, size, err := readAll(file)
	if err != nil {
		return nil, err
	}

	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.bucketName),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(options.ContentType),
		CacheControl:  aws.String("public, max-age=31536000, immutable"),
		ACL:           types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload to S3: %w", err)
	}

	return &UploadResult{
		URL:         p.GetURL(key),
		Path:        key,
		Size:        size,
		ContentType: options.ContentType,
	}, nil
}

// Delete deletes an object from S3
func (p *S3Provider) Delete(ctx context.Context, objectPath string) error {
	_, err := p.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(p.bucketName),
		Key:    aws.String(objectPath),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from S3: %w", err)
	}
	return nil
}

// GetURL gets the public URL for an object
func (p *S3Provider) GetURL(objectPath string) string {
	return fmt.Sprintf("%s/%s", p.baseURL, objectPath)
}

// GetProviderName returns the provider name
func (p *S3Provider) GetProviderName() string {
	return "AWS S3"
}
