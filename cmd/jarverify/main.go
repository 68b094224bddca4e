
// jarverify checks the JAR signatures of APK and JAR files.
package main

import (
	"encoding/xml"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/avast/apkparser"
	"github.com/spf13/cobra"

	"github.com/avast/jarverifier"
	"github.com/avast/jarverifier/internal/config"
	"github.com/avast/jarverifier/internal/logger"
)

var errNotVerified = errors.New("some files did not verify")

var (
	cfg       *config.Environment
	appLogger *slog.Logger

	minSdk       int32
	maxSdk       int32
	format       string
	logLevel     string
	dumpManifest bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:               "jarverify [flags] FILE...",
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		Short:             "Verify JAR signatures of APK and JAR files",
		Long: "Verify JAR (APK Signature Scheme v1) signatures for a range of Android platform versions.\n" +
			"Defaults are read from JARVERIFY_* environment variables, flags take precedence.",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.NewConfig()
			if err != nil {
				log.Printf("failed to load configuration: %v", err.Error())
				return err
			}
			applyFlags(cmd)
			if err := cfg.Validate(); err != nil {
				return err
			}

			appLogger = logger.InitLogger(logger.ParseLogLevel(cfg.LogLevel), cfg.Environment)
			return nil
		},
		RunE: run,
	}

	rootCmd.Flags().Int32Var(&minSdk, "min-sdk", 0, "Minimum Android API level to verify for (env JARVERIFY_MIN_SDK)")
	rootCmd.Flags().Int32Var(&maxSdk, "max-sdk", 0, "Maximum Android API level to verify for (env JARVERIFY_MAX_SDK)")
	rootCmd.Flags().StringVarP(&format, "format", "f", "", "Output format: text, json or yaml (env JARVERIFY_FORMAT)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error or none (env JARVERIFY_LOG_LEVEL)")
	rootCmd.Flags().BoolVarP(&dumpManifest, "manifest", "m", false, "Also print the decoded AndroidManifest.xml")

	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errNotVerified) {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err.Error())
		}
		os.Exit(1)
	}
}

// applyFlags overrides the environment configuration with the flags set on
// the command line.
func applyFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("min-sdk") {
		cfg.MinSdkVersion = minSdk
	}
	if flags.Changed("max-sdk") {
		cfg.MaxSdkVersion = maxSdk
	}
	if flags.Changed("format") {
		cfg.Format = format
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
}

func run(cmd *cobra.Command, args []string) error {
	appLogger.Debug("configuration loaded",
		slog.String("JARVERIFY_ENVIRONMENT", cfg.Environment),
		slog.String("JARVERIFY_LOG_LEVEL", cfg.LogLevel),
		slog.Int("JARVERIFY_MIN_SDK", int(cfg.MinSdkVersion)),
		slog.Int("JARVERIFY_MAX_SDK", int(cfg.MaxSdkVersion)),
		slog.String("JARVERIFY_FORMAT", cfg.Format),
	)

	allVerified := true
	reports := make([]*report, 0, len(args))
	for _, path := range args {
		res, err := jarverifier.VerifyFile(path, cfg.MinSdkVersion, cfg.MaxSdkVersion, jarverifier.WithLogger(appLogger))
		if err != nil {
			appLogger.Warn("verification failed", slog.String("path", path), slog.String("error", err.Error()))
		}

		r := newReport(path, res, err)
		if !r.Verified {
			allVerified = false
		}
		reports = append(reports, r)

		if dumpManifest {
			printManifest(cmd, path)
		}
	}

	if err := writeReports(cmd.OutOrStdout(), cfg.Format, reports); err != nil {
		return err
	}
	if !allVerified {
		return errNotVerified
	}
	return nil
}

func printManifest(cmd *cobra.Command, path string) {
	out := cmd.ErrOrStderr()
	fmt.Fprintf(out, "%s AndroidManifest.xml:\n", path)

	enc := xml.NewEncoder(out)
	enc.Indent("", "\t")
	zipErr, resErr, manErr := apkparser.ParseApk(path, enc)
	switch {
	case zipErr != nil:
		appLogger.Warn("failed to open the archive", slog.String("path", path), slog.String("error", zipErr.Error()))
	case manErr != nil:
		appLogger.Warn("failed to parse AndroidManifest.xml", slog.String("path", path), slog.String("error", manErr.Error()))
	case resErr != nil:
		appLogger.Debug("failed to parse resources", slog.String("path", path), slog.String("error", resErr.Error()))
	}
	fmt.Fprintln(out)
}
