package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/openmusicplayer/bilimusic/internal/config"
	"github.com/openmusicplayer/bilimusic/internal/logger"
)

func newRootCmd(cfg *config.Config) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "bilimusic",
		Short:         "Download bilibili audio and manage the music library",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Logs go to stderr so command output stays clean on stdout
			logger.SetDefault(logger.New(os.Stderr, logger.ParseLevel(cfg.LogLevel), ""))
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfg.DownloadDir, "dir", "d", cfg.DownloadDir, "download and library directory")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	flags.StringVar(&cfg.YtdlpPath, "ytdlp", cfg.YtdlpPath, "path to the yt-dlp binary")
	flags.StringVar(&cfg.FfmpegPath, "ffmpeg", cfg.FfmpegPath, "path to the ffmpeg binary")
	flags.StringVar(&cfg.CookiesFile, "cookies", cfg.CookiesFile, "Netscape cookie file passed to yt-dlp")

	rootCmd.AddCommand(serveCmd(cfg))
	rootCmd.AddCommand(getCmd(cfg))
	rootCmd.AddCommand(validateCmd(cfg))
	rootCmd.AddCommand(libraryCmd(cfg))
	rootCmd.AddCommand(lyricsCmd(cfg))
	rootCmd.AddCommand(doctorCmd(cfg))

	return rootCmd
}
