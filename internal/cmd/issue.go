package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomasbasham/cli-runtime/iooption"
	"github.com/tomasbasham/cli-runtime/templates"

	"github.com/tomasbasham/upload-sas/internal/config"
	"github.com/tomasbasham/upload-sas/internal/grant"
)

type IssueOptions struct {
	config *config.Config

	Request   grant.Request
	Backend   string
	Container string
	Timeout   time.Duration
	Verbose   bool

	iooption.IOStreams
}

var (
	issueLong = templates.LongDesc(`
		Issue a single upload URL without running the server. The grant is
		built exactly as POST /upload/sas builds it and printed as JSON.`)

	issueExample = templates.Examples(`
		# Issue an upload URL for case123_intake.pdf
		sas issue case123 intake form.pdf

		# Include the window and permissions in the output
		sas issue case123 intake scan.png --verbose`)
)

// issueOutput mirrors the HTTP response, optionally with grant details.
type issueOutput struct {
	UploadURL        string    `json:"uploadUrl"`
	BlobName         string    `json:"blobName"`
	ExpiresInMinutes int       `json:"expiresInMinutes"`
	Container        string    `json:"container,omitempty"`
	Permissions      []string  `json:"permissions,omitempty"`
	Start            time.Time `json:"start,omitzero"`
	Expiry           time.Time `json:"expiry,omitzero"`
	EvidenceName     string    `json:"evidenceName,omitempty"`
}

func NewIssueOptions(streams iooption.IOStreams) *IssueOptions {
	return &IssueOptions{
		IOStreams: streams,
	}
}

func NewIssueCommand(o *IssueOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "issue SID LABEL FILENAME",
		DisableFlagsInUseLine: true,
		Short:                 "Issue a single upload URL",
		Long:                  issueLong,
		Example:               issueExample,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(); err != nil {
				return err
			}
			if err := o.Run(); err != nil {
				return err
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&o.Backend, "backend", "b", "", "Storage backend: azure, gcs, s3 or minio (default: $STORAGE_BACKEND)")
	flags.StringVarP(&o.Container, "container", "c", "", "Container receiving uploads (default: $UPLOADS_CONTAINER)")
	flags.DurationVarP(&o.Timeout, "timeout", "t", 30*time.Second, "Timeout for the call to the storage backend")
	flags.BoolVarP(&o.Verbose, "verbose", "v", false, "Include the grant window and permissions in the output")

	return cmd
}

func (o *IssueOptions) Complete(cmd *cobra.Command, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("SID, LABEL and FILENAME are required")
	}
	o.Request = grant.Request{SID: args[0], Label: args[1], Filename: args[2]}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	applyOverrides(cfg, o.Backend, o.Container)
	o.config = cfg
	return nil
}

func (o *IssueOptions) Validate() error {
	// Reject bad input before any credential is loaded.
	if _, err := o.Request.Sanitise(); err != nil {
		return err
	}
	if o.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return o.config.Validate()
}

func (o *IssueOptions) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, o.Timeout)
	defer cancel()

	issuer, err := newIssuer(ctx, o.config)
	if err != nil {
		return err
	}

	g, err := issuer.Issue(ctx, o.Request)
	if err != nil {
		return fmt.Errorf("issue failed: %w", err)
	}

	out := issueOutput{
		UploadURL:        g.UploadURL,
		BlobName:         g.ObjectName,
		ExpiresInMinutes: g.ExpiresInMinutes(),
	}
	if o.Verbose {
		req, _ := o.Request.Sanitise()
		out.Container = g.Container
		out.Permissions = g.Permissions.Names()
		out.Start = g.Window.Start
		out.Expiry = g.Window.Expiry
		out.EvidenceName = grant.EvidenceName(req.SID, req.Label)
	}

	enc := json.NewEncoder(o.Out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
