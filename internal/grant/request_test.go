package grant_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomasbasham/upload-sas/internal/grant"
)

func TestRequestSanitise(t *testing.T) {
	tests := []struct {
		name      string
		req       grant.Request
		want      grant.Request
		wantField string
	}{
		{
			name: "valid request",
			req:  grant.Request{SID: "case123", Label: "intake", Filename: "form.pdf"},
			want: grant.Request{SID: "case123", Label: "intake", Filename: "form.pdf"},
		},
		{
			name: "surrounding whitespace is trimmed",
			req:  grant.Request{SID: "  case123\t", Label: "\nintake ", Filename: " form.pdf "},
			want: grant.Request{SID: "case123", Label: "intake", Filename: "form.pdf"},
		},
		{
			name: "all allowed characters",
			req:  grant.Request{SID: "A-z_0.9", Label: "x", Filename: "a.b-c_d"},
			want: grant.Request{SID: "A-z_0.9", Label: "x", Filename: "a.b-c_d"},
		},
		{
			name:      "path separator in sid",
			req:       grant.Request{SID: "case/123", Label: "intake", Filename: "form.pdf"},
			wantField: "sid",
		},
		{
			name:      "empty sid",
			req:       grant.Request{SID: "", Label: "intake", Filename: "form.pdf"},
			wantField: "sid",
		},
		{
			name:      "whitespace only label",
			req:       grant.Request{SID: "case123", Label: "   ", Filename: "form.pdf"},
			wantField: "label",
		},
		{
			name:      "inner space in label",
			req:       grant.Request{SID: "case123", Label: "in take", Filename: "form.pdf"},
			wantField: "label",
		},
		{
			name:      "missing filename",
			req:       grant.Request{SID: "case123", Label: "intake"},
			wantField: "filename",
		},
		{
			name:      "url special characters in filename",
			req:       grant.Request{SID: "case123", Label: "intake", Filename: "form.pdf?sig=x"},
			wantField: "filename",
		},
		{
			name:      "backslash in filename",
			req:       grant.Request{SID: "case123", Label: "intake", Filename: `..\form.pdf`},
			wantField: "filename",
		},
		{
			name:      "non ascii letters",
			req:       grant.Request{SID: "cäse", Label: "intake", Filename: "form.pdf"},
			wantField: "sid",
		},
		{
			name:      "first invalid field wins",
			req:       grant.Request{SID: "a b", Label: "c d", Filename: "e f"},
			wantField: "sid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.req.Sanitise()
			if tt.wantField == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
				return
			}

			var verr *grant.ValidationError
			require.True(t, errors.As(err, &verr), "expected a validation error, got %v", err)
			assert.Equal(t, tt.wantField, verr.Field)
			assert.Equal(t, "invalid "+tt.wantField, err.Error())
			assert.Equal(t, "Invalid "+tt.wantField, verr.Message())
			assert.Equal(t, grant.Request{}, got)
		})
	}
}

func TestObjectName(t *testing.T) {
	tests := []struct {
		sid, label, filename string
		want                 string
	}{
		{"case123", "intake", "form.pdf", "case123_intake.pdf"},
		{"case123", "intake", "form", "case123_intake.pdf"},
		{"case123", "intake", "scan.PNG", "case123_intake.PNG"},
		{"case123", "intake", "archive.tar.gz", "case123_intake.gz"},
		{"case123", "intake", ".profile", "case123_intake.pdf"},
		{"case123", "intake", "..hidden.docx", "case123_intake.docx"},
		{"case123", "intake", "trailing.", "case123_intake."},
		{"c", "l", "f.txt", "c_l.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.want, grant.ObjectName(tt.sid, tt.label, tt.filename))
		})
	}
}

func TestEvidenceName(t *testing.T) {
	assert.Equal(t, "case123_intake.txt", grant.EvidenceName("case123", "intake"))
}

func TestValidContainer(t *testing.T) {
	assert.True(t, grant.ValidContainer("uploads"))
	assert.True(t, grant.ValidContainer("claims-2026_v1.0"))
	assert.False(t, grant.ValidContainer(""))
	assert.False(t, grant.ValidContainer("my uploads"))
	assert.False(t, grant.ValidContainer("uploads/private"))
}
