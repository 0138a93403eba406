package main

import (
	"context"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/openmusicplayer/bilimusic/internal/cache"
	"github.com/openmusicplayer/bilimusic/internal/config"
	"github.com/openmusicplayer/bilimusic/internal/db"
	"github.com/openmusicplayer/bilimusic/internal/health"
	"github.com/openmusicplayer/bilimusic/internal/storage"
)

func doctorCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check network access, external tools and configured backends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			hc := &health.CheckerConfig{
				ProbeURL: health.DefaultProbeURL,
				Binaries: map[string]string{"yt-dlp": cfg.YtdlpPath, "ffmpeg": cfg.FfmpegPath},
				Version:  version,
			}

			// Backends that fail to connect are reported, not fatal
			notes := map[string]string{}
			if cfg.RedisURL != "" {
				if c, err := cache.New(cfg.RedisURL); err != nil {
					notes["redis"] = err.Error()
				} else {
					defer c.Close()
					hc.Redis = c.Client()
				}
			}
			if cfg.DatabaseURL != "" {
				if database, err := db.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL); err != nil {
					notes["database"] = err.Error()
				} else {
					defer database.Close()
					hc.DB = database.DB
				}
			}
			if cfg.ArchiveEnabled {
				if client, err := storage.New(storage.FromAppConfig(cfg)); err != nil {
					notes["storage"] = err.Error()
				} else {
					hc.StorageCheck = client.Ping
				}
			}

			report := health.NewChecker(hc).DeepCheck(ctx)
			for name, msg := range notes {
				report.Components[name] = health.ComponentHealth{Status: health.StatusUnhealthy, Message: msg}
				report.Status = health.StatusUnhealthy
			}

			names := make([]string, 0, len(report.Components))
			for name := range report.Components {
				names = append(names, name)
			}
			sort.Strings(names)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, name := range names {
				c := report.Components[name]
				fmt.Fprintf(tw, "%s\t%s\t%s\n", name, c.Status, c.Message)
			}
			fmt.Fprintf(tw, "\noverall\t%s\t\n", report.Status)
			if err := tw.Flush(); err != nil {
				return err
			}

			if report.Status == health.StatusUnhealthy {
				return fmt.Errorf("environment is not ready")
			}
			return nil
		},
	}
}
