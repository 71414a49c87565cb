// Package command implements the user-facing folder and file commands.
//
// Every command follows the same shape: validate, check preconditions
// under row locks, resolve name conflicts, mutate metadata and the NAS
// storage object, insert the sync-event outbox row in the same
// transaction, commit, then enqueue the NAS job.
package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/mezzofs/mezzofs/pkg/fault"
	"github.com/mezzofs/mezzofs/pkg/metastore/models"
)

// MaxNameLength is the longest accepted folder or file name.
const MaxNameLength = 255

// forbiddenChars are rejected anywhere in a name.
const forbiddenChars = `<>:"/\|?*`

// reservedWindowsNames are rejected case-insensitively, with or without
// an extension.
var reservedWindowsNames = map[string]bool{
	"con": true, "prn": true, "aux": true, "nul": true,
	"com1": true, "com2": true, "com3": true, "com4": true, "com5": true,
	"com6": true, "com7": true, "com8": true, "com9": true,
	"lpt1": true, "lpt2": true, "lpt3": true, "lpt4": true, "lpt5": true,
	"lpt6": true, "lpt7": true, "lpt8": true, "lpt9": true,
}

// ValidateName rejects empty, overlong and unsafe names. The ".trash"
// prefix is reserved for the NAS-side trash directory.
func ValidateName(name string) error {
	if name == "" {
		return fault.New(fault.KindValidation, "EMPTY_NAME", "name must not be empty")
	}
	if len(name) > MaxNameLength {
		return fault.Newf(fault.KindValidation, "NAME_TOO_LONG",
			"name exceeds %d characters", MaxNameLength)
	}
	if strings.ContainsAny(name, forbiddenChars) {
		return fault.Newf(fault.KindValidation, "INVALID_NAME",
			"name contains forbidden characters (%s)", forbiddenChars)
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return fault.New(fault.KindValidation, "INVALID_NAME",
				"name contains control characters")
		}
	}
	base := strings.ToLower(name)
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	if reservedWindowsNames[base] {
		return fault.Newf(fault.KindValidation, "RESERVED_NAME",
			"%q is a reserved name", name)
	}
	if strings.HasPrefix(name, models.TrashPrefix) {
		return fault.Newf(fault.KindValidation, "RESERVED_NAME",
			"names starting with %q are reserved", models.TrashPrefix)
	}
	return nil
}

// ConflictStrategy selects the behaviour when (parent, name) collides
// with an active sibling.
type ConflictStrategy string

const (
	// ConflictError rejects the command.
	ConflictError ConflictStrategy = "ERROR"

	// ConflictRename appends " (N)" until a free name is found.
	ConflictRename ConflictStrategy = "RENAME"

	// ConflictSkip silently drops the command and returns the existing
	// sibling.
	ConflictSkip ConflictStrategy = "SKIP"

	// ConflictOverwrite replaces the existing sibling. Files only.
	ConflictOverwrite ConflictStrategy = "OVERWRITE"
)

// ParseConflictStrategy validates a caller-supplied strategy, defaulting
// to ERROR.
func ParseConflictStrategy(s string) (ConflictStrategy, error) {
	switch ConflictStrategy(strings.ToUpper(s)) {
	case "", ConflictError:
		return ConflictError, nil
	case ConflictRename:
		return ConflictRename, nil
	case ConflictSkip:
		return ConflictSkip, nil
	case ConflictOverwrite:
		return ConflictOverwrite, nil
	default:
		return "", fault.Newf(fault.KindValidation, "INVALID_CONFLICT_STRATEGY",
			"unknown conflict strategy %q", s)
	}
}

// suffixedName builds the "name (N)" candidate, keeping the extension at
// the end for files: "report.pdf" -> "report (1).pdf".
func suffixedName(name string, n int) string {
	ext := ""
	base := name
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		base, ext = name[:i], name[i:]
	}
	return fmt.Sprintf("%s (%d)%s", base, n, ext)
}

// resolveConflict applies the strategy to a colliding name. exists
// reports whether a candidate name is taken. Returns the final name and
// whether the command should be skipped.
func resolveConflict(ctx context.Context, name string, strategy ConflictStrategy, exists func(ctx context.Context, name string) (bool, error), duplicateErr error) (finalName string, skip bool, err error) {
	taken, err := exists(ctx, name)
	if err != nil {
		return "", false, err
	}
	if !taken {
		return name, false, nil
	}

	switch strategy {
	case ConflictRename:
		for n := 1; ; n++ {
			candidate := suffixedName(name, n)
			if len(candidate) > MaxNameLength {
				return "", false, fault.New(fault.KindValidation, "NAME_TOO_LONG",
					"conflict-renamed name exceeds the length limit")
			}
			taken, err := exists(ctx, candidate)
			if err != nil {
				return "", false, err
			}
			if !taken {
				return candidate, false, nil
			}
		}
	case ConflictSkip:
		return name, true, nil
	case ConflictOverwrite:
		// The caller handles the overwrite itself; the name stands.
		return name, false, nil
	default:
		return "", false, duplicateErr
	}
}

// joinPath concatenates a parent path and a child name; the root path "/"
// does not double the separator.
func joinPath(parentPath, name string) string {
	if parentPath == "/" {
		return "/" + name
	}
	return parentPath + "/" + name
}

// isSelfOrDescendant reports whether candidate equals base or lives under
// it, anchored at a "/" boundary so "/a/bc" is not a descendant of "/a/b".
func isSelfOrDescendant(base, candidate string) bool {
	if base == candidate {
		return true
	}
	if base == "/" {
		return true
	}
	return strings.HasPrefix(candidate, base+"/")
}
