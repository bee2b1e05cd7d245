package storage

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/aws-sdk-go-v2/service/sts/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAssumeRole struct {
	input *sts.AssumeRoleInput
	err   error
}

func (f *fakeAssumeRole) AssumeRole(_ context.Context, params *sts.AssumeRoleInput, _ ...func(*sts.Options)) (*sts.AssumeRoleOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &sts.AssumeRoleOutput{
		Credentials: &types.Credentials{
			AccessKeyId:     aws.String("ASIAEXAMPLE"),
			SecretAccessKey: aws.String("secret"),
			SessionToken:    aws.String("session-token"),
			Expiration:      aws.Time(time.Now().Add(15 * time.Minute)),
		},
	}, nil
}

func TestS3Delegate(t *testing.T) {
	fake := &fakeAssumeRole{}
	b := newS3Backend(fake, S3Options{
		Region:  "eu-west-2",
		RoleARN: "arn:aws:iam::123456789012:role/uploader",
		Bucket:  "uploads",
	})

	d, err := b.Delegate(context.Background(), liveWindow())
	require.NoError(t, err)
	require.NotNil(t, fake.input)

	assert.Equal(t, "arn:aws:iam::123456789012:role/uploader", aws.ToString(fake.input.RoleArn))
	assert.True(t, strings.HasPrefix(aws.ToString(fake.input.RoleSessionName), "upload-"))
	assert.Equal(t, int32(900), aws.ToInt32(fake.input.DurationSeconds))

	var doc policyDocument
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(fake.input.Policy)), &doc))
	require.Len(t, doc.Statement, 1)
	assert.Equal(t, []string{"s3:PutObject"}, doc.Statement[0].Action)
	assert.Equal(t, []string{"arn:aws:s3:::uploads/*"}, doc.Statement[0].Resource)

	creds, err := delegationCredential[aws.Credentials](d)
	require.NoError(t, err)
	assert.Equal(t, "session-token", creds.SessionToken)
}

func TestS3Sign(t *testing.T) {
	now := time.Now().UTC()
	w := Window{Start: now.Add(-time.Minute), Expiry: now.Add(10 * time.Minute)}

	b := newS3Backend(&fakeAssumeRole{}, S3Options{
		Region:  "eu-west-2",
		RoleARN: "arn:aws:iam::123456789012:role/uploader",
		Bucket:  "uploads",
	})
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

	assert.Equal(t, "uploads.s3.eu-west-2.amazonaws.com", u.Host)
	assert.Equal(t, "/case123_intake.pdf", u.Path)
	q := u.Query()
	assert.Equal(t, "600", q.Get("X-Amz-Expires"))
	assert.Equal(t, "session-token", q.Get("X-Amz-Security-Token"))
	assert.True(t, strings.HasPrefix(q.Get("X-Amz-Credential"), "ASIAEXAMPLE/"))
}

func TestS3SignRejectsExpiredGrant(t *testing.T) {
	b := newS3Backend(&fakeAssumeRole{}, S3Options{Region: "eu-west-2", RoleARN: "arn", Bucket: "uploads"})
	w := liveWindow()

	d, err := b.Delegate(context.Background(), w)
	require.NoError(t, err)

	b.now = func() time.Time { return w.Expiry.Add(time.Second) }
	_, err = b.Sign(context.Background(), d, Grant{
		Container:   "uploads",
		ObjectName:  "case123_intake.pdf",
		Permissions: UploadPermissions,
		Window:      w,
	})
	assert.Error(t, err)
}

func TestS3DelegateError(t *testing.T) {
	apiErr := &smithy.GenericAPIError{Code: "AccessDenied", Message: "not authorized to perform sts:AssumeRole"}
	b := newS3Backend(&fakeAssumeRole{err: apiErr}, S3Options{Region: "eu-west-2", RoleARN: "arn", Bucket: "uploads"})

	_, err := b.Delegate(context.Background(), liveWindow())
	require.Error(t, err)
	assert.Equal(t, "AccessDenied", ErrorKind(err))
}

func TestSTSDuration(t *testing.T) {
	now := time.Now()

	assert.Equal(t, 15*time.Minute, stsDuration(Window{Start: now, Expiry: now.Add(11 * time.Minute)}))
	assert.Equal(t, 61*time.Minute, stsDuration(Window{Start: now, Expiry: now.Add(61 * time.Minute)}))
	assert.Equal(t, 20*time.Minute+time.Second, stsDuration(Window{Start: now, Expiry: now.Add(20*time.Minute + 400*time.Millisecond)}))
}

func TestUploadSessionPolicyRequiresBucket(t *testing.T) {
	_, err := uploadSessionPolicy("")
	assert.Error(t, err)
}
