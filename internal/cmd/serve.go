package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tomasbasham/cli-runtime/templates"

	"github.com/tomasbasham/upload-sas/internal/config"
	"github.com/tomasbasham/upload-sas/internal/server"
)

type ServeOptions struct {
	config *config.Config

	Port      int
	Backend   string
	Container string
}

var (
	serveLong = templates.LongDesc(`
		Start the upload URL HTTP server.

		Configuration is read from the environment once at startup:
		STORAGE_BACKEND, STORAGE_ACCOUNT_NAME, UPLOADS_CONTAINER and
		SAS_TTL_MINUTES, plus the settings of the selected backend. Flags
		override the environment.`)

	serveExample = templates.Examples(`
		# Start on the default port against Azure Blob Storage
		STORAGE_ACCOUNT_NAME=myaccount sas serve

		# Start on a custom port with a specific container
		sas serve --port 9090 --container evidence-uploads`)
)

func NewServeOptions() *ServeOptions {
	return &ServeOptions{}
}

func NewServeCommand(o *ServeOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Start the upload URL HTTP server",
		Long:    serveLong,
		Example: serveExample,
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

	cmd.Flags().IntVarP(&o.Port, "port", "p", 0, "Port to listen on (default: $PORT or 8080)")
	cmd.Flags().StringVarP(&o.Backend, "backend", "b", "", "Storage backend: azure, gcs, s3 or minio (default: $STORAGE_BACKEND)")
	cmd.Flags().StringVarP(&o.Container, "container", "c", "", "Container receiving uploads (default: $UPLOADS_CONTAINER)")

	return cmd
}

func (o *ServeOptions) Complete(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	applyOverrides(cfg, o.Backend, o.Container)
	if o.Port != 0 {
		cfg.Port = o.Port
	}
	o.config = cfg
	return nil
}

// Validate fails fast on configuration errors rather than deferring them to
// the first request.
func (o *ServeOptions) Validate() error {
	return o.config.Validate()
}

func (o *ServeOptions) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	issuer, err := newIssuer(ctx, o.config)
	if err != nil {
		return err
	}

	srv := server.New(issuer, o.config.RequestTimeout)

	addr := fmt.Sprintf(":%d", o.config.Port)
	slog.Info("Starting upload URL server",
		"addr", addr,
		"backend", o.config.Backend,
		"container", o.config.Container,
		"ttl_minutes", o.config.TTLMinutes)
	return srv.ListenAndServe(ctx, addr)
}

// applyOverrides replaces environment values with non-empty flag values.
func applyOverrides(cfg *config.Config, backend, container string) {
	if backend != "" {
		cfg.Backend = backend
	}
	if container != "" {
		cfg.Container = container
	}
}
