// Command pingserver is a minimal example service built on grpcserver. It
// registers the four RPC shapes the package supports against a trivial
// integer-echoing service, using Gin with h2c for cleartext HTTP/2.
package main

import (
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/anuraaga/grpcserver"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("PINGSERVER")
	v.AutomaticEnv()
	v.SetDefault("addr", ":8080")
	v.SetDefault("log_level", "info")

	root := &cobra.Command{
		Use:   "pingserver",
		Short: "Example grpcserver-based server exercising all four RPC shapes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(v)
		},
	}
	root.Flags().String("addr", v.GetString("addr"), "address to listen on")
	root.Flags().String("log-level", v.GetString("log_level"), "zap log level: debug, info, warn, error")
	_ = v.BindPFlag("addr", root.Flags().Lookup("addr"))
	_ = v.BindPFlag("log_level", root.Flags().Lookup("log-level"))

	return root
}

func runServe(v *viper.Viper) error {
	logger, err := newLogger(v.GetString("log_level"))
	if err != nil {
		return fmt.Errorf("pingserver: building logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	service, err := grpcserver.NewServiceName("example.ping.v1", "PingService")
	if err != nil {
		return err
	}

	opts := []grpcserver.HandlerOption{grpcserver.WithLogger(logger)}

	app := gin.New()
	app.UseH2C = true
	app.Use(gin.Recovery())

	app.POST(service.MethodPath("Ping"), gin.WrapH(
		grpcserver.NewUnaryHandler(service, "Ping", newInt64, ping, opts...)))
	app.POST(service.MethodPath("Sum"), gin.WrapH(
		grpcserver.NewClientStreamHandler(service, "Sum", newInt64, sum, opts...)))
	app.POST(service.MethodPath("CountUp"), gin.WrapH(
		grpcserver.NewServerStreamHandler(service, "CountUp", newInt64, countUp, opts...)))
	app.POST(service.MethodPath("CumSum"), gin.WrapH(
		grpcserver.NewBidiStreamHandler(service, "CumSum", newInt64, cumSum, opts...)))

	addr := v.GetString("addr")
	logger.Info("pingserver listening", zap.String("addr", addr))
	return app.Run(addr)
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	return cfg.Build()
}
