/*
Copyright 2022. projectsveltos.io. All rights reserved.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package cmd is the nublado-controller binary's cobra command tree: a
// single root command that loads configuration, wires every subsystem
// together, and serves the HTTP API until told to stop.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/lsst-sqre/nublado-controller/internal/config"
	"github.com/lsst-sqre/nublado-controller/internal/httpapi"
	"github.com/lsst-sqre/nublado-controller/internal/identity"
	"github.com/lsst-sqre/nublado-controller/internal/imageservice"
	"github.com/lsst-sqre/nublado-controller/internal/k8sstorage"
	"github.com/lsst-sqre/nublado-controller/internal/lab"
	"github.com/lsst-sqre/nublado-controller/internal/notifier"
	"github.com/lsst-sqre/nublado-controller/internal/prepuller"
	"github.com/lsst-sqre/nublado-controller/internal/registry/docker"
	"github.com/lsst-sqre/nublado-controller/internal/registry/gar"
)

var (
	cfgFile string
	devMode bool
)

var rootCmd = &cobra.Command{
	Use:   "nublado-controller",
	Short: "Spawns and reaps JupyterLab pods for the Rubin Science Platform",
	Long: `nublado-controller serves the spawner API that creates, watches,
and reaps per-user JupyterLab pods, keeps the spawner image menu fresh,
and prepulls images onto eligible nodes ahead of demand.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to the controller's YAML configuration file")
	rootCmd.PersistentFlags().BoolVar(&devMode, "dev", false, "use human-readable development logging instead of JSON")
}

// Execute runs the root command; main calls this once.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
	}
}

func run(cmd *cobra.Command, args []string) error {
	logger := zap.New(zap.UseDevMode(devMode))

	cfg, err := config.Load(nil, cfgFile)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	restCfg, err := ctrl.GetConfig()
	if err != nil {
		return fmt.Errorf("loading cluster configuration: %w", err)
	}
	storage, err := k8sstorage.New(restCfg)
	if err != nil {
		return fmt.Errorf("building Kubernetes client: %w", err)
	}

	fetcher, err := buildFetcher(cmd.Context(), cfg.Prepuller)
	if err != nil {
		return fmt.Errorf("building image source: %w", err)
	}

	images := imageservice.New(fetcher, storage, imageservice.Options{
		Registry:        sourceRegistry(cfg.Prepuller),
		Repository:      sourceRepository(cfg.Prepuller),
		AliasTags:       cfg.Prepuller.AliasTags,
		Cycle:           cfg.Prepuller.Cycle,
		FilterPolicy:    cfg.Prepuller.FilterPolicy,
		RecommendedTag:  cfg.Prepuller.RecommendedTag,
		RefreshInterval: cfg.Prepuller.RefreshInterval,
	}, logger.WithName("imageservice"))

	notif := notifier.New(cfg.SlackWebhookURL)
	labs := lab.New(storage, cfg.Lab, notif, logger.WithName("lab"))

	prep := prepuller.New(storage, images, prepuller.Options{
		Namespace:       cfg.Prepuller.Namespace,
		PullSecretName:  cfg.Lab.PullSecretName,
		Tolerations:     cfg.Prepuller.Tolerations,
		Concurrency:     cfg.Prepuller.Concurrency,
		RefreshInterval: cfg.Prepuller.RefreshInterval,
	}, logger.WithName("prepuller"))

	idClient := identity.NewClient(cfg.IdentityServiceBaseURL, cfg.Lab.IngressTimeout)

	router := httpapi.NewRouter(&httpapi.Handlers{
		Identity: idClient,
		Labs:     labs,
		Images:   images,
		Nodes:    storage,
		Config:   *cfg,
		Logger:   logger.WithName("httpapi"),
		Prefix:   cfg.APIPathPrefix,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go images.Start(ctx)
	go labs.Start(ctx)
	go prep.Start(ctx)

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: router}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving", "addr", cfg.ListenAddr, "prefix", cfg.APIPathPrefix)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func buildFetcher(ctx context.Context, cfg config.PrepullerConfig) (imageservice.Fetcher, error) {
	switch cfg.SourceType {
	case config.SourceDocker:
		src, err := docker.New(cfg.Docker.Registry, cfg.Docker.Repository, cfg.Docker.CredentialsPath)
		if err != nil {
			return nil, err
		}
		return &imageservice.DockerFetcher{Source: src}, nil
	case config.SourceGoogle:
		src, err := gar.New(ctx, cfg.GAR.Parent(), cfg.GAR.Path())
		if err != nil {
			return nil, err
		}
		return &imageservice.GARFetcher{Source: src}, nil
	default:
		return nil, fmt.Errorf("unrecognized image source type %q", cfg.SourceType)
	}
}

func sourceRegistry(cfg config.PrepullerConfig) string {
	if cfg.Docker != nil {
		return cfg.Docker.Registry
	}
	if cfg.GAR != nil {
		return cfg.GAR.Registry()
	}
	return ""
}

func sourceRepository(cfg config.PrepullerConfig) string {
	if cfg.Docker != nil {
		return cfg.Docker.Repository
	}
	if cfg.GAR != nil {
		return cfg.GAR.Path()
	}
	return ""
}
