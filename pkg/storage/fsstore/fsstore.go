// Package fsstore implements storage.Store on a rooted directory tree.
//
// The NAS tier mounts it on the NFS mount path; the cache tier mounts a
// second instance on local disk. Keys are mapped under the root with a
// traversal guard: any key that would escape the root is rejected before
// touching the filesystem.
package fsstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/mezzofs/mezzofs/pkg/storage"
)

// Store is a storage.Store rooted at a single directory.
type Store struct {
	root string
}

// New creates a Store rooted at root, creating the directory if absent.
func New(root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root %q: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root %q: %w", abs, err)
	}
	return &Store{root: abs}, nil
}

// Root returns the absolute root directory.
func (s *Store) Root() string {
	return s.root
}

// resolve maps a key onto the rooted tree, normalising separators and
// rejecting keys that escape the root.
func (s *Store) resolve(op, key string) (string, error) {
	cleaned := path.Clean("/" + strings.ReplaceAll(key, "\\", "/"))
	if cleaned == "/" {
		return s.root, nil
	}
	full := filepath.Join(s.root, filepath.FromSlash(cleaned))
	if !strings.HasPrefix(full, s.root+string(filepath.Separator)) {
		return "", storage.NewError(storage.CodeOther, op, key,
			fmt.Errorf("path escapes storage root"))
	}
	return full, nil
}

// classify converts an os error into a tagged storage error.
func classify(op, key string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return storage.NewError(storage.CodeNotFound, op, key, err)
	case errors.Is(err, fs.ErrExist):
		return storage.NewError(storage.CodeAlreadyExists, op, key, err)
	case errors.Is(err, syscall.EBUSY), errors.Is(err, syscall.ETXTBSY):
		return storage.NewError(storage.CodeInUse, op, key, err)
	case errors.Is(err, syscall.EIO), errors.Is(err, syscall.ESTALE),
		errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ETIMEDOUT),
		errors.Is(err, syscall.EHOSTUNREACH), errors.Is(err, syscall.ENETUNREACH):
		// ESTALE and EIO are what a dropped NFS mount typically surfaces.
		return storage.NewError(storage.CodeConn, op, key, err)
	default:
		return storage.NewError(storage.CodeOther, op, key, err)
	}
}

func (s *Store) WriteFile(ctx context.Context, key string, r io.Reader) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	full, err := s.resolve("write", key)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return 0, classify("write", key, err)
	}
	// Write to a sibling temp file and rename so concurrent readers never
	// observe a partial object.
	tmp, err := os.CreateTemp(filepath.Dir(full), ".tmp-*")
	if err != nil {
		return 0, classify("write", key, err)
	}
	n, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return 0, classify("write", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return 0, classify("write", key, err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		os.Remove(tmp.Name())
		return 0, classify("write", key, err)
	}
	return n, nil
}

func (s *Store) ReadFile(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := s.resolve("read", key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, classify("read", key, err)
	}
	return f, nil
}

func (s *Store) DeleteFile(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := s.resolve("delete", key)
	if err != nil {
		return err
	}
	return classify("delete", key, os.Remove(full))
}

func (s *Store) MoveFile(ctx context.Context, src, dst string) error {
	return s.move(ctx, "move", src, dst)
}

func (s *Store) MoveDir(ctx context.Context, src, dst string) error {
	return s.move(ctx, "movedir", src, dst)
}

func (s *Store) move(ctx context.Context, op, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	from, err := s.resolve(op, src)
	if err != nil {
		return err
	}
	to, err := s.resolve(op, dst)
	if err != nil {
		return err
	}
	if _, err := os.Stat(to); err == nil {
		return storage.NewError(storage.CodeAlreadyExists, op, dst,
			fmt.Errorf("destination exists"))
	}
	if err := os.MkdirAll(filepath.Dir(to), 0o755); err != nil {
		return classify(op, dst, err)
	}
	return classify(op, src, os.Rename(from, to))
}

func (s *Store) CopyFile(ctx context.Context, src, dst string) error {
	in, err := s.ReadFile(ctx, src)
	if err != nil {
		return err
	}
	defer in.Close()
	_, err = s.WriteFile(ctx, dst, in)
	return err
}

func (s *Store) Mkdir(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := s.resolve("mkdir", p)
	if err != nil {
		return err
	}
	// MkdirAll succeeds on an existing directory; surface AlreadyExists
	// only when the path exists as a regular file.
	if fi, err := os.Stat(full); err == nil && !fi.IsDir() {
		return storage.NewError(storage.CodeAlreadyExists, "mkdir", p,
			fmt.Errorf("path exists as file"))
	}
	return classify("mkdir", p, os.MkdirAll(full, 0o755))
}

func (s *Store) Rmdir(ctx context.Context, p string, recursive bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := s.resolve("rmdir", p)
	if err != nil {
		return err
	}
	if full == s.root {
		return storage.NewError(storage.CodeOther, "rmdir", p,
			fmt.Errorf("refusing to remove storage root"))
	}
	if recursive {
		if _, err := os.Stat(full); err != nil {
			return classify("rmdir", p, err)
		}
		return classify("rmdir", p, os.RemoveAll(full))
	}
	return classify("rmdir", p, os.Remove(full))
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	full, err := s.resolve("exists", key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(full); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, classify("exists", key, err)
	}
	return true, nil
}

func (s *Store) Size(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	full, err := s.resolve("size", key)
	if err != nil {
		return 0, err
	}
	fi, err := os.Stat(full)
	if err != nil {
		return 0, classify("size", key, err)
	}
	return fi.Size(), nil
}

func (s *Store) List(ctx context.Context, p string) ([]storage.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := s.resolve("list", p)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		return nil, classify("list", p, err)
	}
	out := make([]storage.Entry, 0, len(entries))
	for _, e := range entries {
		var size int64
		if !e.IsDir() {
			if fi, err := e.Info(); err == nil {
				size = fi.Size()
			}
		}
		out = append(out, storage.Entry{Name: e.Name(), IsDir: e.IsDir(), Size: size})
	}
	return out, nil
}
