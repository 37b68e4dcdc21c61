package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"pet-health-sync/internal/adapters/auth/jwtverifier"
	"pet-health-sync/internal/app"
	"pet-health-sync/internal/config"
	"pet-health-sync/internal/domain/schema"
	"pet-health-sync/internal/platform/logger"
	"pet-health-sync/internal/ports/auth"
	"pet-health-sync/internal/seed"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "petsync-api",
		Short: "Pet health sync service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(serveCmd(), seedCheckCmd(), devTokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", defaults.GetString("log.format"), "Log format (text, json)")
	cmd.PersistentFlags().String("remote-driver", defaults.GetString("remote.driver"), "Remote backend (none, rest, postgres, sqlite)")
	cmd.PersistentFlags().String("remote-url", defaults.GetString("remote.url"), "REST backend base URL")
	cmd.PersistentFlags().String("remote-dsn", defaults.GetString("remote.dsn"), "SQL backend DSN")
	cmd.PersistentFlags().String("storage-driver", defaults.GetString("storage.driver"), "Media storage (none, memory, s3)")
	cmd.PersistentFlags().String("s3-bucket", defaults.GetString("storage.s3.bucket"), "S3 bucket for media")
	cmd.PersistentFlags().String("jwt-secret", "", "HS256 secret for bearer tokens (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
	bindFlag(cmd, "remote.driver", "remote-driver")
	bindFlag(cmd, "remote.url", "remote-url")
	bindFlag(cmd, "remote.dsn", "remote-dsn")
	bindFlag(cmd, "storage.driver", "storage-driver")
	bindFlag(cmd, "storage.s3.bucket", "s3-bucket")
	bindFlag(cmd, "auth.jwt_secret", "jwt-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	log := logger.New(logger.Options{
		Level:  logger.ParseLevel(appConfig.LogLevel),
		Format: logger.ParseFormat(appConfig.LogFormat),
		App:    "petsync",
	})
	defer log.Sync() //nolint:errcheck

	a, err := app.Build(ctx, appConfig, log)
	if err != nil {
		log.Error("wiring failed", map[string]any{"error": err})
		return err
	}
	defer a.Close() //nolint:errcheck

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           a.Handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", map[string]any{"address": appConfig.HTTPAddress})
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("server stopping", nil)
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func seedCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed-check",
		Short: "Validate the bundled seed dataset against the schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := schema.Default()
			data := seed.Dataset()

			types := reg.Types()
			sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
			out := cmd.OutOrStdout()
			for _, t := range types {
				fmt.Fprintf(out, "%-20s %d\n", t, len(data[t]))
			}

			problems := seed.Check(reg, data)
			for _, p := range problems {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s %s: field %s -> %s\n", p.Entity, p.ID, p.Field, p.Ref)
			}
			if len(problems) > 0 {
				return fmt.Errorf("seed dataset has %d problem(s)", len(problems))
			}
			return nil
		},
	}
}

func devTokenCmd() *cobra.Command {
	var (
		userID string
		role   string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "dev-token",
		Short: "Sign a bearer token with the configured JWT secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			if appConfig.Auth.JWTSecret == "" {
				return jwtverifier.ErrMissingSecret
			}
			r, err := jwtverifier.ParseRole(role)
			if err != nil {
				return err
			}
			if userID == "" {
				userID = seed.ID("user:ana")
			}
			token, err := jwtverifier.Sign([]byte(appConfig.Auth.JWTSecret), appConfig.Auth.JWTIssuer,
				auth.Claims{UserID: userID, Role: r}, time.Now(), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User id (default: seed owner)")
	cmd.Flags().StringVar(&role, "role", string(schema.RolePetOwner), "Role claim")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	return cmd
}
