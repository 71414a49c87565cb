// Package storage defines the ports for the two physical tiers: the NAS
// tier (authoritative, converged asynchronously) and the local cache tier
// (fast, written directly during ingest).
//
// Implementations are not required to be atomic across calls; the sync
// handlers tolerate partial failure through idempotency. Errors carry a
// stable code so callers can distinguish idempotent outcomes (NotFound,
// AlreadyExists) from real failures.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Code is the stable classification for storage errors.
type Code string

const (
	// CodeNotFound means the target does not exist.
	CodeNotFound Code = "NOT_FOUND"

	// CodeAlreadyExists means the destination already exists.
	CodeAlreadyExists Code = "ALREADY_EXISTS"

	// CodeInUse means the target is busy (open handles, locked).
	CodeInUse Code = "IN_USE"

	// CodeConn means the backing store is unreachable.
	CodeConn Code = "CONN"

	// CodeOther covers everything else.
	CodeOther Code = "OTHER"
)

// Error is a storage failure tagged with a stable Code.
type Error struct {
	Code Code
	Op   string // operation name: write, move, mkdir, ...
	Key  string // object key or path involved
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("storage %s %q: %s: %v", e.Op, e.Key, e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a tagged storage error.
func NewError(code Code, op, key string, err error) *Error {
	return &Error{Code: code, Op: op, Key: key, Err: err}
}

// CodeOf extracts the Code from an error chain. Untagged errors classify
// as CodeOther; nil returns the empty code.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeOther
}

// IsIdempotent reports whether err is one of the codes the sync handlers
// swallow as success on re-runs.
func IsIdempotent(err error) bool {
	c := CodeOf(err)
	return c == CodeNotFound || c == CodeAlreadyExists
}

// Entry describes a single child returned by List.
type Entry struct {
	Name  string
	IsDir bool
	Size  int64
}

// Store is the port for one physical tier. Keys are /-separated paths
// relative to the tier root, without a leading slash requirement; both
// "/a/b" and "a/b" address the same object.
type Store interface {
	// WriteFile streams r to key, creating intermediate directories.
	// An existing object at key is replaced.
	WriteFile(ctx context.Context, key string, r io.Reader) (int64, error)

	// ReadFile opens the object at key for reading. The caller closes
	// the returned stream.
	ReadFile(ctx context.Context, key string) (io.ReadCloser, error)

	// DeleteFile removes the object at key.
	DeleteFile(ctx context.Context, key string) error

	// MoveFile renames the object from src to dst, creating intermediate
	// directories at the destination.
	MoveFile(ctx context.Context, src, dst string) error

	// CopyFile copies the object from src to dst.
	CopyFile(ctx context.Context, src, dst string) error

	// Mkdir creates the directory at path, including parents.
	Mkdir(ctx context.Context, path string) error

	// Rmdir removes the directory at path. Non-empty directories fail
	// unless recursive is set.
	Rmdir(ctx context.Context, path string, recursive bool) error

	// MoveDir renames a directory tree from src to dst.
	MoveDir(ctx context.Context, src, dst string) error

	// Exists reports whether an object or directory exists at key.
	Exists(ctx context.Context, key string) (bool, error)

	// Size returns the byte size of the object at key.
	Size(ctx context.Context, key string) (int64, error)

	// List returns the direct children of the directory at path.
	List(ctx context.Context, path string) ([]Entry, error)
}
