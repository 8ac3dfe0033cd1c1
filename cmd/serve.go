package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/thiagokokada/gitsvn/internal/auth"
	"github.com/thiagokokada/gitsvn/internal/buildinfo"
	"github.com/thiagokokada/gitsvn/internal/config"
	"github.com/thiagokokada/gitsvn/internal/repository"
	"github.com/thiagokokada/gitsvn/internal/router"
	"github.com/thiagokokada/gitsvn/internal/server"
)

func newServeCmd() *cobra.Command {
	var configPath, listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the configured repositories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "gitsvn.yaml", "configuration file (.yaml or .toml)")
	cmd.Flags().StringVar(&listen, "listen", "", "listen address, overrides the configuration")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) (err error) {
	users, err := userDirectory(cfg)
	if err != nil {
		return err
	}
	repos := make(map[string]*repository.Repository, len(cfg.Repositories))
	defer func() {
		for _, repo := range repos {
			err = errors.Join(err, repo.Close())
		}
	}()
	for i := range cfg.Repositories {
		opts := cfg.RepositoryOptions(i)
		repo, err := repository.Open(ctx, opts)
		if err != nil {
			return fmt.Errorf("repository %s: %w", opts.Prefix, err)
		}
		repos[opts.Prefix] = repo
		if cfg.Watch {
			if err := repo.Watch(ctx); err != nil {
				slog.Warn("repository watch disabled",
					slog.String("repository", opts.Prefix),
					slog.Any("error", err),
				)
			}
		}
		slog.Info("serving repository",
			slog.String("prefix", opts.Prefix),
			slog.String("path", opts.Path),
			slog.Int("latest", repo.Translator().Latest()),
		)
	}

	srv := server.New(router.New(repos), users, server.WithRealm(cfg.Realm))
	slog.Info("starting", slog.String("version", buildinfo.String()))
	return srv.ListenAndServe(ctx, cfg.Listen)
}

// userDirectory combines the configured users and the htpasswd file, in
// that order. It returns nil when neither is configured.
func userDirectory(cfg *config.Config) (auth.UserDirectory, error) {
	var dirs []auth.UserDirectory
	if len(cfg.Users) > 0 {
		local, err := auth.NewLocalDirectory(cfg.LocalUsers())
		if err != nil {
			return nil, err
		}
		dirs = append(dirs, local)
	}
	if cfg.Htpasswd != "" {
		htpasswd, err := auth.LoadHtpasswd(cfg.Htpasswd)
		if err != nil {
			return nil, err
		}
		dirs = append(dirs, htpasswd)
	}
	if len(dirs) == 0 {
		return nil, nil
	}
	return auth.NewComposite(dirs...), nil
}
