//go:build unix

package filesync

import (
	"os"
	"syscall"

	"github.com/gantry-build/gantry/wire"
)

func wireMode(fi os.FileInfo) uint32 {
	if sys, ok := fi.Sys().(*syscall.Stat_t); ok {
		return uint32(sys.Mode)
	}
	return fallbackMode(fi)
}

func fillPlatform(st *wire.Stat, fi os.FileInfo) {
	sys, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return
	}
	st.UID = sys.Uid
	st.GID = sys.Gid
	if fi.Mode()&(os.ModeDevice|os.ModeCharDevice) != 0 {
		rdev := uint64(sys.Rdev)
		st.Devmajor = uint32((rdev >> 8) & 0xfff)
		st.Devminor = uint32((rdev & 0xff) | ((rdev >> 12) &^ 0xff))
	}
}
