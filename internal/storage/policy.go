package storage

import (
	"encoding/json"
	"fmt"
	"time"
)

// minSTSDuration is the shortest session AWS and MinIO STS will issue.
const minSTSDuration = 15 * time.Minute

type policyDocument struct {
	Version   string            `json:"Version"`
	Statement []policyStatement `json:"Statement"`
}

type policyStatement struct {
	Effect   string   `json:"Effect"`
	Action   []string `json:"Action"`
	Resource []string `json:"Resource"`
}

// uploadSessionPolicy returns an inline session policy that narrows an
// assumed role to writing objects in bucket. Session policies can only
// remove permissions, so the effective rights are never broader than this.
func uploadSessionPolicy(bucket string) (string, error) {
	if bucket == "" {
		return "", fmt.Errorf("storage: bucket is required for the session policy")
	}

	doc := policyDocument{
		Version: "2012-10-17",
		Statement: []policyStatement{{
			Effect:   "Allow",
			Action:   []string{"s3:PutObject"},
			Resource: []string{fmt.Sprintf("arn:aws:s3:::%s/*", bucket)},
		}},
	}

	b, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("storage: failed to marshal session policy: %w", err)
	}
	return string(b), nil
}

// stsDuration rounds the window up to whole seconds, respecting the STS
// minimum. The signed URL is still bounded by the grant's own expiry.
func stsDuration(w Window) time.Duration {
	d := w.Duration().Round(time.Second)
	if d < w.Duration() {
		d += time.Second
	}
	if d < minSTSDuration {
		d = minSTSDuration
	}
	return d
}
