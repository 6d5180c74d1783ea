//go:build !unix

package filesync

import (
	"os"

	"github.com/gantry-build/gantry/wire"
)

func wireMode(fi os.FileInfo) uint32 {
	return fallbackMode(fi)
}

func fillPlatform(*wire.Stat, os.FileInfo) {}
