package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/google/uuid"
)

// assumeRoleAPI is the subset of the STS client used for delegation.
type assumeRoleAPI interface {
	AssumeRole(ctx context.Context, params *sts.AssumeRoleInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleOutput, error)
}

var _ assumeRoleAPI = (*sts.Client)(nil)

// S3Options configures an S3Backend.
type S3Options struct {
	// Region of the bucket.
	Region string

	// RoleARN is the role assumed for every grant.
	RoleARN string

	// Bucket scopes the session policy of each assumed role.
	Bucket string

	// Endpoint overrides the S3 endpoint, e.g. for S3-compatible services.
	Endpoint string

	// UsePathStyle addresses buckets as a path segment rather than a host.
	UsePathStyle bool
}

// S3Backend presigns PUT requests with temporary credentials from an assumed
// role. Each delegation is a fresh STS session restricted to s3:PutObject.
type S3Backend struct {
	sts  assumeRoleAPI
	opts S3Options
	now  func() time.Time
}

// NewS3Backend creates an S3Backend using the default AWS credential chain
// for the calls to STS.
func NewS3Backend(ctx context.Context, opts S3Options) (*S3Backend, error) {
	if opts.RoleARN == "" {
		return nil, fmt.Errorf("storage: role ARN is required")
	}
	if opts.Region == "" {
		return nil, fmt.Errorf("storage: region is required")
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(opts.Region))
	if err != nil {
		return nil, fmt.Errorf("storage: failed to load AWS config: %w", err)
	}

	return newS3Backend(sts.NewFromConfig(cfg), opts), nil
}

func newS3Backend(api assumeRoleAPI, opts S3Options) *S3Backend {
	return &S3Backend{sts: api, opts: opts, now: time.Now}
}

// Delegate assumes the configured role for the window.
func (b *S3Backend) Delegate(ctx context.Context, w Window) (*Delegation, error) {
	policy, err := uploadSessionPolicy(b.opts.Bucket)
	if err != nil {
		return nil, err
	}

	session := "upload-" + uuid.NewString()
	slog.Debug("Assuming upload role",
		"role", b.opts.RoleARN,
		"session", session)

	out, err := b.sts.AssumeRole(ctx, &sts.AssumeRoleInput{
		RoleArn:         aws.String(b.opts.RoleARN),
		RoleSessionName: aws.String(session),
		DurationSeconds: aws.Int32(int32(stsDuration(w) / time.Second)),
		Policy:          aws.String(policy),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: failed to assume role %q: %w", b.opts.RoleARN, err)
	}
	if out.Credentials == nil {
		return nil, fmt.Errorf("storage: assume role %q returned no credentials", b.opts.RoleARN)
	}

	creds := aws.Credentials{
		AccessKeyID:     aws.ToString(out.Credentials.AccessKeyId),
		SecretAccessKey: aws.ToString(out.Credentials.SecretAccessKey),
		SessionToken:    aws.ToString(out.Credentials.SessionToken),
		Source:          "AssumeRole",
	}

	window := w
	if out.Credentials.Expiration != nil {
		creds.CanExpire = true
		creds.Expires = *out.Credentials.Expiration
		window.Expiry = creds.Expires
	}

	return &Delegation{Window: window, credential: creds}, nil
}

// Sign presigns a PutObject request for g with the session credentials in d.
func (b *S3Backend) Sign(ctx context.Context, d *Delegation, g Grant) (string, error) {
	if err := g.Validate(); err != nil {
		return "", err
	}
	creds, err := delegationCredential[aws.Credentials](d)
	if err != nil {
		return "", err
	}
	if _, err := putMethod(g.Permissions); err != nil {
		return "", err
	}

	expires := g.Window.Expiry.Sub(b.now())
	if expires <= 0 {
		return "", fmt.Errorf("storage: grant for %q has already expired", g.ObjectName)
	}

	client := s3.New(s3.Options{
		Region:       b.opts.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken),
		UsePathStyle: b.opts.UsePathStyle,
	}, func(o *s3.Options) {
		if b.opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(b.opts.Endpoint)
		}
	})

	req, err := s3.NewPresignClient(client).PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(g.Container),
		Key:    aws.String(g.ObjectName),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		return "", fmt.Errorf("storage: failed to presign upload for %q: %w", g.ObjectName, err)
	}

	return req.URL, nil
}
