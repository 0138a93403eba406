package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/openmusicplayer/bilimusic/internal/config"
	"github.com/openmusicplayer/bilimusic/internal/extract"
	"github.com/openmusicplayer/bilimusic/internal/library"
	"github.com/openmusicplayer/bilimusic/internal/validators"
	"github.com/openmusicplayer/bilimusic/internal/ytdlp"
)

func validateCmd(cfg *config.Config) *cobra.Command {
	var probe bool

	cmd := &cobra.Command{
		Use:   "validate <url>...",
		Short: "Check whether URLs are bilibili video links",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			var svc *ytdlp.Service
			if probe {
				var err error
				svc, err = ytdlp.New(&ytdlp.Config{YtdlpPath: cfg.YtdlpPath, SocketTimeout: cfg.SocketTimeout, CookiesFile: cfg.CookiesFile})
				if err != nil {
					return err
				}
			}

			invalid := 0
			for _, u := range args {
				result := validators.Validate(u)
				if !result.Valid {
					invalid++
					fmt.Fprintf(out, "invalid  %s: %s\n", u, result.Error)
					continue
				}
				fmt.Fprintf(out, "valid    %s -> %s\n", u, result.Canonical)

				if svc != nil {
					meta, err := fetchMetadata(cmd.Context(), svc, u)
					if err != nil {
						invalid++
						fmt.Fprintf(out, "         %v\n", err)
						continue
					}
					fmt.Fprintf(out, "         %s by %s (%s)\n", meta.Title, meta.Uploader, library.FormatDuration(meta.DurationSeconds))
				}
			}

			if invalid > 0 {
				return fmt.Errorf("%d of %d urls rejected", invalid, len(args))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&probe, "probe", false, "also fetch video metadata with yt-dlp")
	return cmd
}

func fetchMetadata(ctx context.Context, svc *ytdlp.Service, url string) (*extract.Metadata, error) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	return svc.FetchMetadata(ctx, url)
}
