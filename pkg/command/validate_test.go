package command

import (
	"context"
	"strings"
	"testing"

	"github.com/mezzofs/mezzofs/pkg/fault"
	"github.com/mezzofs/mezzofs/pkg/metastore/models"
)

func TestValidateName(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		for _, name := range []string{
			"report.pdf",
			"My Documents",
			"a",
			"trash", // only the ".trash" prefix is reserved
			"résumé.txt",
			strings.Repeat("x", MaxNameLength),
		} {
			if err := ValidateName(name); err != nil {
				t.Errorf("ValidateName(%q) = %v, want nil", name, err)
			}
		}
	})

	t.Run("rejected", func(t *testing.T) {
		cases := []struct {
			name string
			code string
		}{
			{"", "EMPTY_NAME"},
			{strings.Repeat("x", MaxNameLength+1), "NAME_TOO_LONG"},
			{"a/b", "INVALID_NAME"},
			{`back\slash`, "INVALID_NAME"},
			{"quo\"te", "INVALID_NAME"},
			{"colon:name", "INVALID_NAME"},
			{"wild*card", "INVALID_NAME"},
			{"quest?ion", "INVALID_NAME"},
			{"pipe|name", "INVALID_NAME"},
			{"angle<name>", "INVALID_NAME"},
			{"tab\tname", "INVALID_NAME"},
			{"bell\x07", "INVALID_NAME"},
			{"del\x7f", "INVALID_NAME"},
			{"CON", "RESERVED_NAME"},
			{"con.txt", "RESERVED_NAME"},
			{"LPT1", "RESERVED_NAME"},
			{"aux.tar.gz", "RESERVED_NAME"},
			{models.TrashPrefix, "RESERVED_NAME"},
			{models.TrashPrefix + "-backup", "RESERVED_NAME"},
		}
		for _, tc := range cases {
			err := ValidateName(tc.name)
			if err == nil {
				t.Errorf("ValidateName(%q) = nil, want %s", tc.name, tc.code)
				continue
			}
			if fault.KindOf(err) != fault.KindValidation {
				t.Errorf("ValidateName(%q) kind = %v, want KindValidation", tc.name, fault.KindOf(err))
			}
			if got := fault.CodeOf(err); got != tc.code {
				t.Errorf("ValidateName(%q) code = %s, want %s", tc.name, got, tc.code)
			}
		}
	})
}

func TestParseConflictStrategy(t *testing.T) {
	cases := []struct {
		in   string
		want ConflictStrategy
		ok   bool
	}{
		{"", ConflictError, true},
		{"ERROR", ConflictError, true},
		{"error", ConflictError, true},
		{"Rename", ConflictRename, true},
		{"SKIP", ConflictSkip, true},
		{"overwrite", ConflictOverwrite, true},
		{"merge", "", false},
	}
	for _, tc := range cases {
		got, err := ParseConflictStrategy(tc.in)
		if tc.ok {
			if err != nil || got != tc.want {
				t.Errorf("ParseConflictStrategy(%q) = %v, %v, want %v", tc.in, got, err, tc.want)
			}
		} else {
			if err == nil {
				t.Errorf("ParseConflictStrategy(%q) = %v, want error", tc.in, got)
			}
			if fault.CodeOf(err) != "INVALID_CONFLICT_STRATEGY" {
				t.Errorf("code = %s", fault.CodeOf(err))
			}
		}
	}
}

func TestSuffixedName(t *testing.T) {
	cases := []struct {
		name string
		n    int
		want string
	}{
		{"report.pdf", 1, "report (1).pdf"},
		{"report.pdf", 12, "report (12).pdf"},
		{"archive.tar.gz", 1, "archive.tar (1).gz"},
		{"noext", 2, "noext (2)"},
		{".hidden", 1, ".hidden (1)"},
	}
	for _, tc := range cases {
		if got := suffixedName(tc.name, tc.n); got != tc.want {
			t.Errorf("suffixedName(%q, %d) = %q, want %q", tc.name, tc.n, got, tc.want)
		}
	}
}

func TestResolveConflict(t *testing.T) {
	ctx := context.Background()
	dup := models.ErrDuplicateFile

	existsIn := func(taken ...string) func(ctx context.Context, name string) (bool, error) {
		set := map[string]bool{}
		for _, n := range taken {
			set[n] = true
		}
		return func(ctx context.Context, name string) (bool, error) {
			return set[name], nil
		}
	}

	t.Run("free name passes through", func(t *testing.T) {
		name, skip, err := resolveConflict(ctx, "a.txt", ConflictError, existsIn(), dup)
		if err != nil || skip || name != "a.txt" {
			t.Errorf("got %q skip=%v err=%v", name, skip, err)
		}
	})

	t.Run("error strategy", func(t *testing.T) {
		_, _, err := resolveConflict(ctx, "a.txt", ConflictError, existsIn("a.txt"), dup)
		if fault.CodeOf(err) != "DUPLICATE_FILE" {
			t.Errorf("err = %v, want the duplicate sentinel", err)
		}
	})

	t.Run("rename finds the first free suffix", func(t *testing.T) {
		name, skip, err := resolveConflict(ctx, "a.txt", ConflictRename,
			existsIn("a.txt", "a (1).txt"), dup)
		if err != nil || skip {
			t.Fatalf("skip=%v err=%v", skip, err)
		}
		if name != "a (2).txt" {
			t.Errorf("name = %q, want %q", name, "a (2).txt")
		}
	})

	t.Run("skip", func(t *testing.T) {
		name, skip, err := resolveConflict(ctx, "a.txt", ConflictSkip, existsIn("a.txt"), dup)
		if err != nil || !skip || name != "a.txt" {
			t.Errorf("got %q skip=%v err=%v", name, skip, err)
		}
	})

	t.Run("overwrite keeps the name", func(t *testing.T) {
		name, skip, err := resolveConflict(ctx, "a.txt", ConflictOverwrite, existsIn("a.txt"), dup)
		if err != nil || skip || name != "a.txt" {
			t.Errorf("got %q skip=%v err=%v", name, skip, err)
		}
	})
}

func TestJoinPath(t *testing.T) {
	if got := joinPath("/", "docs"); got != "/docs" {
		t.Errorf("joinPath(/, docs) = %q", got)
	}
	if got := joinPath("/docs", "q1"); got != "/docs/q1" {
		t.Errorf("joinPath(/docs, q1) = %q", got)
	}
}

func TestIsSelfOrDescendant(t *testing.T) {
	cases := []struct {
		base, candidate string
		want            bool
	}{
		{"/a", "/a", true},
		{"/a", "/a/b", true},
		{"/a", "/a/b/c", true},
		{"/a", "/ab", false},
		{"/a/b", "/a/bc", false},
		{"/", "/anything", true},
		{"/x", "/y", false},
	}
	for _, tc := range cases {
		if got := isSelfOrDescendant(tc.base, tc.candidate); got != tc.want {
			t.Errorf("isSelfOrDescendant(%q, %q) = %v, want %v", tc.base, tc.candidate, got, tc.want)
		}
	}
}
