package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/quinnipak/wssrecv/pkg/wssrecv"
	"github.com/quinnipak/wssrecv/pkg/wssrecv/config"
	"github.com/quinnipak/wssrecv/pkg/wssrecv/otel"
	"github.com/quinnipak/wssrecv/pkg/wssrecv/sinkutils"
	"github.com/quinnipak/wssrecv/pkg/wssrecv/websockets/client"
)

var (
	endpointURL string
	certPath    string
	configPath  string
	logLevel    string
)

func init() {
	rootCmd.Flags().StringVar(&endpointURL, "url", wssrecv.DefaultURL, "secure WebSocket URL to connect to")
	rootCmd.Flags().StringVar(&certPath, "cert", wssrecv.DefaultTrustAnchor, "PEM certificate used to verify the server")
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "optional HCL configuration file or directory")
	rootCmd.Flags().StringVarP(&logLevel, "log-level", "l", "warn", "log level (debug, info, warn, error)")
}

func runReceive(cmd *cobra.Command, args []string) error {
	logger, err := setupLogger()
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	builder, err := connectorBuilder(cmd, logger)
	if err != nil {
		return err
	}

	connector, err := builder.Build()
	if err != nil {
		return err
	}

	logger.Info("Waiting for a message", zap.String("url", connector.URL()))

	_, err = connector.Receive(ctx)
	return err
}

// connectorBuilder layers the fixed defaults, the configuration file and the
// command-line flags, in increasing order of precedence.
func connectorBuilder(cmd *cobra.Command, logger *zap.Logger) (*client.ConnectorBuilder, error) {
	provider := otel.NewProvider("wssrecv", Version)

	builder := client.NewConnector().
		WithLogger(logger).
		WithSink(sinkutils.NewNamedLoggingSink(
			sinkutils.NewPrintingSink(cmd.OutOrStdout()), logger, zapcore.DebugLevel, "stdout")).
		WithMetricsProvider(provider).
		WithTracingProvider(provider)

	if configPath != "" {
		cfg, diags := config.NewConfig().
			WithLogger(logger).
			WithSources(configPath).
			Build()
		if diags.HasErrors() {
			return nil, &wssrecv.ConfigurationError{Reason: fmt.Sprintf("invalid configuration %s", configPath), Err: diags}
		}
		cfg.Apply(builder)
	}

	if cmd.Flags().Changed("url") {
		builder.WithURL(endpointURL)
	}
	if cmd.Flags().Changed("cert") {
		builder.WithTrustAnchor(certPath)
	}

	return builder, nil
}
