package stage

import (
	"archive/tar"
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/mholt/archives"
)

// maxLinkHops bounds symlink resolution, like the kernel's ELOOP limit.
const maxLinkHops = 40

// extract unpacks the archive in f into dir. All writes go through an
// os.Root opened on dir, and every entry and link is resolved against what
// is already on disk first; anything that would land outside dir aborts the
// whole extraction with a PathTraversalError.
func extract(ctx context.Context, f *os.File, name, dir string) error {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}

	format, stream, err := archives.Identify(ctx, name, f)
	if err != nil {
		return fmt.Errorf("identifying archive format: %w", err)
	}
	ex, ok := format.(archives.Extractor)
	if !ok {
		return fmt.Errorf("%s is not an extractable archive (%s)", name, format.Extension())
	}

	// zip needs random access, so hand it the file itself.
	var src io.Reader = stream
	if _, isZip := format.(archives.Zip); isZip {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return err
		}
		src = f
	}

	root, err := os.OpenRoot(dir)
	if err != nil {
		return err
	}
	defer root.Close()

	err = ex.Extract(ctx, src, func(ctx context.Context, fi archives.FileInfo) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return writeEntry(root, fi)
	})
	if errors.Is(err, zip.ErrInsecurePath) || errors.Is(err, tar.ErrInsecurePath) {
		return &PathTraversalError{Entry: name}
	}
	if err != nil {
		return err
	}

	// a later entry can change what an earlier link resolves to
	return checkLinks(root)
}

func writeEntry(root *os.Root, fi archives.FileInfo) error {
	rel, err := entryPath(fi.NameInArchive)
	if err != nil {
		return err
	}
	if rel == "" {
		return nil
	}
	if _, ok := resolveLinks(root, "", filepath.Dir(rel), 0); !ok {
		return &PathTraversalError{Entry: fi.NameInArchive}
	}

	mode := fi.Mode()
	switch {
	case fi.IsDir():
		return root.MkdirAll(rel, 0o755)

	case mode&os.ModeSymlink != 0:
		return writeSymlink(root, rel, fi)

	case isHardLink(fi):
		return writeHardLink(root, rel, fi)

	case mode.IsRegular():
		return writeRegular(root, rel, fi)

	default:
		// devices, fifos, sockets
		return nil
	}
}

func writeRegular(root *os.Root, rel string, fi archives.FileInfo) error {
	if err := root.MkdirAll(filepath.Dir(rel), 0o755); err != nil {
		return err
	}

	in, err := fi.Open()
	if err != nil {
		return fmt.Errorf("opening %s in archive: %w", fi.NameInArchive, err)
	}
	defer in.Close()

	perm := fi.Mode().Perm() | 0o600
	out, err := root.OpenFile(rel, os.O_CREATE|os.O_EXCL|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("writing %s: %w", fi.NameInArchive, err)
	}
	return out.Close()
}

// writeSymlink creates a link only when it resolves inside root given
// everything extracted so far.
func writeSymlink(root *os.Root, rel string, fi archives.FileInfo) error {
	link := fi.LinkTarget
	if link == "" || filepath.IsAbs(link) {
		return &PathTraversalError{Entry: fi.NameInArchive, Target: link}
	}
	if _, ok := resolveLinks(root, "", joinRaw(filepath.Dir(rel), link), 0); !ok {
		return &PathTraversalError{Entry: fi.NameInArchive, Target: link}
	}
	if err := root.MkdirAll(filepath.Dir(rel), 0o755); err != nil {
		return err
	}
	return root.Symlink(link, rel)
}

// writeHardLink links rel to an earlier regular file of the same archive.
func writeHardLink(root *os.Root, rel string, fi archives.FileInfo) error {
	src, err := entryPath(fi.LinkTarget)
	if err != nil || src == "" {
		return &PathTraversalError{Entry: fi.NameInArchive, Target: fi.LinkTarget}
	}
	resolved, ok := resolveLinks(root, "", src, 0)
	if !ok {
		return &PathTraversalError{Entry: fi.NameInArchive, Target: fi.LinkTarget}
	}
	info, err := root.Lstat(resolved)
	if err != nil {
		return fmt.Errorf("hard link %s: %w", fi.NameInArchive, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("hard link %s: target %s is not a regular file", fi.NameInArchive, fi.LinkTarget)
	}
	if err := root.MkdirAll(filepath.Dir(rel), 0o755); err != nil {
		return err
	}
	return root.Link(resolved, rel)
}

func isHardLink(fi archives.FileInfo) bool {
	h, ok := fi.Header.(*tar.Header)
	return ok && h.Typeflag == tar.TypeLink
}

// entryPath cleans an archive entry name into a path relative to the
// extraction root. Absolute names and names that climb out are rejected.
// The root itself comes back as "".
func entryPath(name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.TrimSpace(name)))
	if clean == "." || clean == "" {
		return "", nil
	}
	if filepath.IsAbs(clean) || strings.HasPrefix(name, "/") {
		return "", &PathTraversalError{Entry: name}
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(os.PathSeparator)) {
		return "", &PathTraversalError{Entry: name}
	}
	return clean, nil
}

// resolveLinks walks rel component by component from cur, following
// symlinks that exist in root, and returns the resulting link-free path
// relative to root. ok is false when the walk leaves root at any step or
// loops. Components that do not exist yet are taken literally.
//
// rel must not be pre-cleaned: "s/.." means the parent of wherever s
// points, not cur.
func resolveLinks(root *os.Root, cur, rel string, hops int) (string, bool) {
	if hops > maxLinkHops {
		return "", false
	}
	for _, part := range strings.Split(rel, string(os.PathSeparator)) {
		switch part {
		case "", ".":
			continue
		case "..":
			if cur == "" {
				return "", false
			}
			if cur = filepath.Dir(cur); cur == "." {
				cur = ""
			}
			continue
		}

		next := filepath.Join(cur, part)
		info, err := root.Lstat(next)
		if err != nil || info.Mode()&os.ModeSymlink == 0 {
			cur = next
			continue
		}
		target, err := root.Readlink(next)
		if err != nil || target == "" || filepath.IsAbs(target) {
			return "", false
		}
		var ok bool
		if cur, ok = resolveLinks(root, cur, target, hops+1); !ok {
			return "", false
		}
	}
	return cur, true
}

// checkLinks re-resolves every symlink in root.
func checkLinks(root *os.Root) error {
	return fs.WalkDir(root.FS(), ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type()&fs.ModeSymlink == 0 {
			return nil
		}
		rel := filepath.FromSlash(p)
		target, err := root.Readlink(rel)
		if err != nil {
			return err
		}
		if _, ok := resolveLinks(root, "", joinRaw(filepath.Dir(rel), target), 0); !ok || filepath.IsAbs(target) {
			return &PathTraversalError{Entry: p, Target: target}
		}
		return nil
	})
}

// joinRaw joins without cleaning so ".." stays relative to the link's
// resolved directory.
func joinRaw(dir, p string) string {
	if dir == "." || dir == "" {
		return p
	}
	return dir + string(os.PathSeparator) + p
}
