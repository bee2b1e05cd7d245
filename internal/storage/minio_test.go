package storage

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSTSAssumer struct {
	endpoint string
	opts     credentials.STSAssumeRoleOptions
	err      error
}

func (f *fakeSTSAssumer) assume(_ context.Context, endpoint string, opts credentials.STSAssumeRoleOptions) (credentials.Value, error) {
	f.endpoint = endpoint
	f.opts = opts
	if f.err != nil {
		return credentials.Value{}, f.err
	}
	return credentials.Value{
		AccessKeyID:     "SESSIONKEY",
		SecretAccessKey: "sessionsecret",
		SessionToken:    "minio-session-token",
	}, nil
}

func newTestMinIOBackend(t *testing.T, fake *fakeSTSAssumer) *MinIOBackend {
	t.Helper()

	b, err := NewMinIOBackend(MinIOOptions{
		Endpoint:  "localhost:9000",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Bucket:    "uploads",
	})
	require.NoError(t, err)
	b.assume = fake.assume
	return b
}

func TestMinIODelegate(t *testing.T) {
	fake := &fakeSTSAssumer{}
	b := newTestMinIOBackend(t, fake)

	_, err := b.Delegate(context.Background(), liveWindow())
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9000", fake.endpoint)
	assert.Equal(t, "minioadmin", fake.opts.AccessKey)
	assert.Equal(t, 900, fake.opts.DurationSeconds)
	assert.Equal(t, minioDefaultRegion, fake.opts.Location)
	assert.Contains(t, fake.opts.Policy, `"s3:PutObject"`)
	assert.Contains(t, fake.opts.Policy, `arn:aws:s3:::uploads/*`)
}

func TestMinIOSign(t *testing.T) {
	now := time.Now().UTC()
	w := Window{Start: now.Add(-time.Minute), Expiry: now.Add(10 * time.Minute)}

	b := newTestMinIOBackend(t, &fakeSTSAssumer{})
	b.now = func() time.Time { return now }

	d, err := b.Delegate(context.Background(), w)
	require.NoError(t, err)

	signed, err := b.Sign(context.Background(), d, Grant{
		Container:   "uploads",
		ObjectName:  "case123_intake.pdf",
		Permissions: UploadPermissions,
		Window:      w,
	})
	require.NoError(t, err)

	u, err := url.Parse(signed)
	require.NoError(t, err)

	assert.Equal(t, "localhost:9000", u.Host)
	assert.Equal(t, "/uploads/case123_intake.pdf", u.Path)
	q := u.Query()
	assert.Equal(t, "600", q.Get("X-Amz-Expires"))
	assert.Equal(t, "minio-session-token", q.Get("X-Amz-Security-Token"))
	assert.True(t, strings.HasPrefix(q.Get("X-Amz-Credential"), "SESSIONKEY/"))
}

func TestMinIODelegateError(t *testing.T) {
	stsErr := errors.New("sts: access denied")
	b := newTestMinIOBackend(t, &fakeSTSAssumer{err: stsErr})

	_, err := b.Delegate(context.Background(), liveWindow())
	require.Error(t, err)
	assert.True(t, errors.Is(err, stsErr))
}

func TestNewMinIOBackendValidation(t *testing.T) {
	_, err := NewMinIOBackend(MinIOOptions{AccessKey: "a", SecretKey: "b"})
	assert.Error(t, err)

	_, err = NewMinIOBackend(MinIOOptions{Endpoint: "localhost:9000"})
	assert.Error(t, err)
}

func TestMinIODelegateHonoursDeadline(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	b := newTestMinIOBackend(t, &fakeSTSAssumer{})
	b.assume = func(context.Context, string, credentials.STSAssumeRoleOptions) (credentials.Value, error) {
		<-release
		return credentials.Value{}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := b.Delegate(ctx, liveWindow())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, "DeadlineExceeded", ErrorKind(err))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestMinIOAssumeRoleExpiredContext(t *testing.T) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := minioAssumeRole(ctx, "http://localhost:9000", credentials.STSAssumeRoleOptions{
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
	})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
