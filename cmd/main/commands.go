package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"trove/catalog/internal/config"
	"trove/catalog/internal/container"
	"trove/catalog/internal/domain"
)

func newRootCmd() *cobra.Command {
	var configDir string

	root := &cobra.Command{
		Use:           "catalog",
		Short:         "Serve the trove classifier catalog",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configDir, "config-dir", ".", "directory containing config.yaml")

	loadConfig := func() (*config.Config, error) {
		cfg, err := config.Load(configDir)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		if level, err := log.ParseLevel(cfg.Log.Level); err == nil {
			log.SetLevel(level)
		}
		log.Info("Configuration loaded successfully")
		return cfg, nil
	}

	serve := newServeCmd(loadConfig)
	root.AddCommand(serve, newRefreshCmd(loadConfig), newRenderCmd(loadConfig))
	root.RunE = serve.RunE

	return root
}

func newServeCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and refresh workers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := container.New(ctx, cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize container: %w", err)
			}
			defer app.Close()

			log.Info("Starting classifier catalog...")
			if err := app.Run(ctx); err != nil {
				return fmt.Errorf("application exited with error: %w", err)
			}
			log.Info("Application finished successfully")
			return nil
		},
	}
}

func newRefreshCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Fetch the upstream catalog once, bypassing the cooldown",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			app, err := container.New(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize container: %w", err)
			}
			defer app.Close()

			catalog, err := app.Service.Refresh(cmd.Context(), true)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d classifiers from %s\n", catalog.Len(), catalog.Source)
			return nil
		},
	}
}

func newRenderCmd(loadConfig func() (*config.Config, error)) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a newline-separated classifier list as an HTML fragment",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			in := cmd.InOrStdin()
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return fmt.Errorf("failed to open %s: %w", file, err)
				}
				defer f.Close()
				in = f
			}

			classifiers, err := readClassifiers(in)
			if err != nil {
				return err
			}

			renderer, _, err := container.NewRenderer(cfg.Server)
			if err != nil {
				return err
			}
			return renderer.RenderList(cmd.OutOrStdout(), classifiers)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "classifier list, one per line (- for stdin)")

	return cmd
}

// readClassifiers keeps lines verbatim apart from surrounding whitespace.
func readClassifiers(r io.Reader) ([]domain.Classifier, error) {
	var classifiers []domain.Classifier
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		classifiers = append(classifiers, domain.Classifier(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read classifiers: %w", err)
	}
	return classifiers, nil
}
