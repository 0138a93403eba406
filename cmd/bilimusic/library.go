package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/openmusicplayer/bilimusic/internal/config"
	"github.com/openmusicplayer/bilimusic/internal/library"
	"github.com/openmusicplayer/bilimusic/internal/tags"
)

func libraryCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "library",
		Aliases: []string{"lib"},
		Short:   "Inspect and organise downloaded audio",
	}

	open := func() (*library.Library, error) {
		return library.New(cfg.DownloadDir, tags.NewID3Port())
	}

	var asJSON bool
	ls := &cobra.Command{
		Use:   "ls",
		Short: "List audio files in the library",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := open()
			if err != nil {
				return err
			}
			tracks, err := lib.Scan(cmd.Context())
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(tracks)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tTITLE\tARTIST\tSIZE\tLRC")
			for _, t := range tracks {
				lrc := ""
				if t.HasLyrics {
					lrc = "yes"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", t.Name, t.Title, t.Artist, library.FormatFileSize(t.Size), lrc)
			}
			return tw.Flush()
		},
	}
	ls.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")

	rename := &cobra.Command{
		Use:   "rename <path> <new name>",
		Short: "Rename a track, keeping its extension and lyrics",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := open()
			if err != nil {
				return err
			}
			dst, err := lib.Rename(args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), dst)
			return nil
		},
	}

	mv := &cobra.Command{
		Use:   "mv <path> <directory>",
		Short: "Move a track into a directory inside the library",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := open()
			if err != nil {
				return err
			}
			dst, err := lib.Move(args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), dst)
			return nil
		},
	}

	rm := &cobra.Command{
		Use:   "rm <path>...",
		Short: "Delete tracks and their lyrics",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := open()
			if err != nil {
				return err
			}
			for _, p := range args {
				if err := lib.Delete(p); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", p)
			}
			return nil
		},
	}

	var update tags.Tags
	tag := &cobra.Command{
		Use:   "tag <path>",
		Short: "Edit the ID3 tags of an mp3 track",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if update.IsZero() {
				return fmt.Errorf("nothing to change: pass at least one of --title, --artist, --album, --genre, --year")
			}
			lib, err := open()
			if err != nil {
				return err
			}
			t, err := lib.UpdateTags(args[0], update)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s / %s / %s\n", t.Name, t.Title, t.Artist, t.Album)
			return nil
		},
	}
	tf := tag.Flags()
	tf.StringVar(&update.Title, "title", "", "track title")
	tf.StringVar(&update.Artist, "artist", "", "artist")
	tf.StringVar(&update.Album, "album", "", "album")
	tf.StringVar(&update.Genre, "genre", "", "genre")
	tf.StringVar(&update.Year, "year", "", "release year")

	cmd.AddCommand(ls, rename, mv, rm, tag)
	return cmd
}
