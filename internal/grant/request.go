package grant

import (
	"path"
	"regexp"
	"strings"
)

// DefaultExtension is used when the uploaded filename has no extension.
const DefaultExtension = ".pdf"

// safeToken allows only characters that are inert in storage paths, URLs and
// headers.
var safeToken = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// ValidContainer reports whether name is usable as an upload container.
func ValidContainer(name string) bool {
	return safeToken.MatchString(name)
}

// Request is a caller's ask for an upload URL.
type Request struct {
	SID      string `json:"sid"`
	Label    string `json:"label"`
	Filename string `json:"filename"`
}

// Sanitise trims every field and checks it against the safe token pattern.
// Fields are checked in the order sid, label, filename and the first failure
// is returned.
func (r Request) Sanitise() (Request, error) {
	var out Request
	var err error

	if out.SID, err = sanitise(r.SID, "sid"); err != nil {
		return Request{}, err
	}
	if out.Label, err = sanitise(r.Label, "label"); err != nil {
		return Request{}, err
	}
	if out.Filename, err = sanitise(r.Filename, "filename"); err != nil {
		return Request{}, err
	}
	return out, nil
}

func sanitise(s, field string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" || !safeToken.MatchString(s) {
		return "", &ValidationError{Field: field}
	}
	return s, nil
}

// ObjectName builds the deterministic object name {sid}_{label}{ext}. The
// downstream extraction pipeline relies on this exact shape.
func ObjectName(sid, label, filename string) string {
	return sid + "_" + label + Extension(filename)
}

// EvidenceName is the name the downstream pipeline gives the text it
// extracts from an uploaded object.
func EvidenceName(sid, label string) string {
	return sid + "_" + label + ".txt"
}

// Extension returns the filename's extension including the dot, or
// DefaultExtension when there is none. Leading dots mark a hidden file rather
// than an extension, so ".profile" has no extension.
func Extension(filename string) string {
	ext := path.Ext(strings.TrimLeft(filename, "."))
	if ext == "" {
		return DefaultExtension
	}
	return ext
}
