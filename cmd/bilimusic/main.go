// Command bilimusic downloads the audio track of bilibili videos, manages
// the resulting music library and serves a control API for it.
package main

import (
	"os"

	"github.com/openmusicplayer/bilimusic/internal/config"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg := config.Load()
	if err := newRootCmd(cfg).Execute(); err != nil {
		os.Exit(1)
	}
}
