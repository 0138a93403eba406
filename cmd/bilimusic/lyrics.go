package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/openmusicplayer/bilimusic/internal/config"
	"github.com/openmusicplayer/bilimusic/internal/library"
	"github.com/openmusicplayer/bilimusic/internal/lyrics"
	"github.com/openmusicplayer/bilimusic/internal/tags"
)

func lyricsCmd(cfg *config.Config) *cobra.Command {
	var (
		title, artist string
		list          bool
	)

	cmd := &cobra.Command{
		Use:   "lyrics <path>",
		Short: "Find lyrics for a track and save them as an .lrc file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := library.New(cfg.DownloadDir, tags.NewID3Port())
			if err != nil {
				return err
			}
			track, err := lib.Get(args[0])
			if err != nil {
				return err
			}

			if title == "" {
				title = track.Title
			}
			if artist == "" && track.Artist != library.UnknownArtist {
				artist = track.Artist
			}

			matcher := lyrics.NewMatcher(lyrics.NewLRCLibSource(cfg.LyricsEndpoint, &http.Client{Timeout: 15 * time.Second}))
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			candidates, err := matcher.Match(ctx, title, artist)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if list {
				for i, c := range candidates {
					kind := "plain"
					if c.Synced {
						kind = "synced"
					}
					fmt.Fprintf(out, "%2d. %s - %s [%s, %s]\n", i+1, c.Artist, c.Title, kind, c.Source)
				}
				return nil
			}

			best := candidates[0]
			path, err := lyrics.SaveLRC(track.Path, best.Lyrics)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "saved %s (%s, %d lines)\n", path, best.Source, strings.Count(best.Lyrics, "\n")+1)
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "search title (default: the track's title)")
	cmd.Flags().StringVar(&artist, "artist", "", "search artist (default: the track's artist)")
	cmd.Flags().BoolVar(&list, "list", false, "list candidates without saving")
	return cmd
}
