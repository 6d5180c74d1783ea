package filesync

import (
	"context"
	"os"
	"path"
	"path/filepath"

	"github.com/moby/patternmatcher"

	"github.com/gantry-build/gantry/wire"
)

// walker assigns entry ids and produces stat records in pre-order: each
// directory before any of its children, siblings in name order. The root
// itself is never emitted; ids count from zero at the moment of emission.
type walker struct {
	root   string
	pm     *patternmatcher.PatternMatcher
	nextID uint32
}

// walkFunc receives one entry. fullPath is the absolute location on disk;
// regular reports whether the entry may later be requested for data.
type walkFunc func(id uint32, st *wire.Stat, fullPath string, regular bool) error

func (w *walker) walk(ctx context.Context, fn walkFunc) error {
	return w.walkDir(ctx, w.root, "", fn)
}

func (w *walker) walkDir(ctx context.Context, dir, prefix string, fn walkFunc) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		rel := path.Join(prefix, entry.Name())
		if w.pm != nil {
			matched, err := w.pm.MatchesOrParentMatches(rel)
			if err != nil {
				return err
			}
			if matched {
				// omitted entirely, subtree included
				continue
			}
		}
		full := filepath.Join(dir, entry.Name())
		fi, err := os.Lstat(full)
		if err != nil {
			return err
		}
		st, err := statOf(rel, full, fi)
		if err != nil {
			return err
		}
		id := w.nextID
		w.nextID++
		if err := fn(id, st, full, fi.Mode().IsRegular()); err != nil {
			return err
		}
		if fi.IsDir() {
			if err := w.walkDir(ctx, full, rel, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// statOf builds the wire record for one entry. Size is reported for regular
// files only; symlinks carry their target and are never followed.
func statOf(rel, full string, fi os.FileInfo) (*wire.Stat, error) {
	st := &wire.Stat{
		Path:    rel,
		Mode:    wireMode(fi),
		ModTime: fi.ModTime().UnixNano(),
	}
	if fi.Mode().IsRegular() {
		st.Size = fi.Size()
	}
	if fi.Mode()&os.ModeSymlink != 0 {
		link, err := os.Readlink(full)
		if err != nil {
			return nil, err
		}
		st.Linkname = link
	}
	fillPlatform(st, fi)
	return st, nil
}

// fallbackMode derives POSIX mode bits, type bits included, from the
// portable FileMode when no richer platform stat is available.
func fallbackMode(fi os.FileInfo) uint32 {
	m := uint32(fi.Mode().Perm())
	mode := fi.Mode()
	switch {
	case mode.IsDir():
		m |= 0o040000
	case mode&os.ModeSymlink != 0:
		m |= 0o120000
	case mode&os.ModeCharDevice != 0:
		m |= 0o020000
	case mode&os.ModeDevice != 0:
		m |= 0o060000
	case mode&os.ModeNamedPipe != 0:
		m |= 0o010000
	case mode&os.ModeSocket != 0:
		m |= 0o140000
	default:
		m |= 0o100000
	}
	return m
}
