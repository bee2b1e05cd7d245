package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	cliflag "github.com/tomasbasham/cli-runtime/flag"
	"github.com/tomasbasham/cli-runtime/iooption"
	"github.com/tomasbasham/cli-runtime/printer"
	"github.com/tomasbasham/cli-runtime/templates"
)

var (
	rootLong = templates.LongDesc(`
		Issue short-lived, write-only upload URLs for single objects in
		Azure Blob Storage, Google Cloud Storage, Amazon S3 or MinIO.`)

	rootExamples = templates.Examples(`
		# Serve the upload API
		sas serve

		# Issue a single upload URL from the command line
		sas issue case123 intake form.pdf`)

	// Injected at build time using ldflags.
	version = ""
	commit  = ""
)

// SASOptions defines the options for the `sas` command.
type SASOptions struct {
	LogLevel  string
	LogFormat string

	iooption.IOStreams
}

// NewSASOptions provides an initialised SASOptions instance.
func NewSASOptions(streams iooption.IOStreams) *SASOptions {
	return &SASOptions{
		IOStreams: streams,
	}
}

// NewRootCommand creates the `sas` command with default arguments.
func NewRootCommand() *cobra.Command {
	options := NewSASOptions(iooption.IOStreams{
		In:     os.Stdin,
		Out:    os.Stdout,
		ErrOut: os.Stderr,
	})

	return NewRootCommandWithArgs(options)
}

// NewRootCommandWithArgs creates the `sas` command and its nested
// children.
func NewRootCommandWithArgs(o *SASOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "sas [command]",
		Version:               versionInfo(),
		DisableFlagsInUseLine: true,
		Short:                 "Scoped upload URL issuer",
		Long:                  rootLong,
		Example:               rootExamples,
		SilenceErrors:         true,
		SilenceUsage:          true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.setupLogging()
		},
	}

	printerOpts := printer.WarningPrinterOptions{Color: true}
	printer := printer.NewWarningPrinter(o.ErrOut, printerOpts)
	cmd.SetGlobalNormalizationFunc(cliflag.WarnWordSepNormalizeFunc(printer))

	pflags := cmd.PersistentFlags()
	pflags.StringVar(&o.LogLevel, "log-level", "info", "Log level: debug, info, warn or error")
	pflags.StringVar(&o.LogFormat, "log-format", "json", "Log format: json or text")

	cmd.AddCommand(NewIssueCommand(NewIssueOptions(o.IOStreams)))
	cmd.AddCommand(NewServeCommand(NewServeOptions()))

	// The globlal normalisation function ensures that all flags specified meet
	// the desired format, changing users' input if necessary.
	cmd.SetGlobalNormalizationFunc(cliflag.WordSepNormalizeFunc())

	return cmd
}

// setupLogging installs the default structured logger. Logs go to ErrOut so
// that command output on Out stays machine readable.
func (o *SASOptions) setupLogging() error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(o.LogLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", o.LogLevel, err)
	}

	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch o.LogFormat {
	case "json":
		handler = slog.NewJSONHandler(o.ErrOut, handlerOpts)
	case "text":
		handler = slog.NewTextHandler(o.ErrOut, handlerOpts)
	default:
		return fmt.Errorf("invalid log format %q", o.LogFormat)
	}

	slog.SetDefault(slog.New(handler))
	return nil
}

func versionInfo() string {
	if version == "" {
		return ""
	}
	return fmt.Sprintf("%s (commit: %s)", version, commit)
}
