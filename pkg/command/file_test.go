package command

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/mezzofs/mezzofs/pkg/fault"
	"github.com/mezzofs/mezzofs/pkg/metastore/models"
	"github.com/mezzofs/mezzofs/pkg/syncer"
)

func (e *testEnv) mustCreateFile(t *testing.T, name, folderID, content string) *models.File {
	t.Helper()
	res, err := e.files.Create(e.ctx, CreateFileInput{
		Name:     name,
		FolderID: folderID,
		MimeType: "application/octet-stream",
		Content:  strings.NewReader(content),
	})
	if err != nil {
		t.Fatalf("failed to create file %q: %v", name, err)
	}
	e.drain()
	return res.File
}

func (e *testEnv) nasContent(t *testing.T, key string) string {
	t.Helper()
	rc, err := e.nas.ReadFile(e.ctx, key)
	if err != nil {
		t.Fatalf("nas read %q: %v", key, err)
	}
	defer rc.Close()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, rc); err != nil {
		t.Fatalf("nas read %q: %v", key, err)
	}
	return buf.String()
}

func TestFileCreate(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.files.Create(env.ctx, CreateFileInput{
		Name:     "report.pdf",
		MimeType: "application/pdf",
		Content:  strings.NewReader("pdf bytes"),
		CreatedBy: "u1",
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if res.SyncEventID == "" {
		t.Fatal("expected a sync event id")
	}
	if res.File.Path != "/report.pdf" || res.File.SizeBytes != int64(len("pdf bytes")) {
		t.Errorf("file = %+v", res.File)
	}

	// Cache is populated synchronously, before convergence.
	cacheObj, err := env.store.GetFileStorageObject(env.ctx, res.File.ID, models.TierCache)
	if err != nil {
		t.Fatal(err)
	}
	if cacheObj.AvailabilityStatus != models.AvailabilityAvailable {
		t.Errorf("cache status = %s, want AVAILABLE", cacheObj.AvailabilityStatus)
	}
	if cacheObj.ObjectKey != syncer.CacheContentKey(res.File.ID) {
		t.Errorf("cache key = %q", cacheObj.ObjectKey)
	}

	env.drain()

	if got := env.nasContent(t, "/report.pdf"); got != "pdf bytes" {
		t.Errorf("NAS content = %q", got)
	}
	nasObj, _ := env.store.GetFileStorageObject(env.ctx, res.File.ID, models.TierNAS)
	if nasObj.AvailabilityStatus != models.AvailabilityAvailable || nasObj.ObjectKey != "/report.pdf" {
		t.Errorf("NAS object = %+v", nasObj)
	}
	event := env.folderEvent(t, res.SyncEventID)
	if event.Status != models.SyncDone {
		t.Errorf("event status = %s, want DONE", event.Status)
	}
}

func TestFileCreateRejections(t *testing.T) {
	env := newTestEnv(t)

	t.Run("invalid name", func(t *testing.T) {
		_, err := env.files.Create(env.ctx, CreateFileInput{Name: "bad|name", Content: strings.NewReader("x")})
		if fault.KindOf(err) != fault.KindValidation {
			t.Errorf("err = %v, want validation fault", err)
		}
	})

	t.Run("negative size", func(t *testing.T) {
		_, err := env.files.Create(env.ctx, CreateFileInput{Name: "f", SizeBytes: -1, Content: strings.NewReader("")})
		if fault.CodeOf(err) != "INVALID_SIZE" {
			t.Errorf("err = %v, want INVALID_SIZE", err)
		}
	})

	t.Run("missing folder", func(t *testing.T) {
		_, err := env.files.Create(env.ctx, CreateFileInput{Name: "f.txt", FolderID: "ghost", Content: strings.NewReader("x")})
		if !errors.Is(err, models.ErrFolderNotFound) {
			t.Errorf("err = %v, want ErrFolderNotFound", err)
		}
	})
}

func TestFileCreateConflicts(t *testing.T) {
	env := newTestEnv(t)
	existing := env.mustCreateFile(t, "notes.txt", "", "v1")

	t.Run("error strategy", func(t *testing.T) {
		_, err := env.files.Create(env.ctx, CreateFileInput{Name: "notes.txt", Content: strings.NewReader("x")})
		if !errors.Is(err, models.ErrDuplicateFile) {
			t.Errorf("err = %v, want ErrDuplicateFile", err)
		}
	})

	t.Run("rename strategy", func(t *testing.T) {
		res, err := env.files.Create(env.ctx, CreateFileInput{
			Name: "notes.txt", Content: strings.NewReader("x"), Strategy: ConflictRename,
		})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		env.drain()
		if res.File.Name != "notes (1).txt" {
			t.Errorf("name = %q, want %q", res.File.Name, "notes (1).txt")
		}
	})

	t.Run("skip strategy", func(t *testing.T) {
		res, err := env.files.Create(env.ctx, CreateFileInput{
			Name: "notes.txt", Content: strings.NewReader("x"), Strategy: ConflictSkip,
		})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if res.File.ID != existing.ID || res.SyncEventID != "" {
			t.Errorf("skip should return the existing file without a sync event, got %+v", res)
		}
	})

	t.Run("overwrite strategy", func(t *testing.T) {
		res, err := env.files.Create(env.ctx, CreateFileInput{
			Name: "notes.txt", Content: strings.NewReader("v2 content"), Strategy: ConflictOverwrite,
		})
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		env.drain()

		if res.File.ID != existing.ID {
			t.Errorf("overwrite must keep the file id, got %s", res.File.ID)
		}
		if res.File.SizeBytes != int64(len("v2 content")) {
			t.Errorf("size = %d", res.File.SizeBytes)
		}
		if got := env.nasContent(t, "/notes.txt"); got != "v2 content" {
			t.Errorf("NAS content = %q, want the overwritten bytes", got)
		}
	})
}

func TestFileRename(t *testing.T) {
	env := newTestEnv(t)
	file := env.mustCreateFile(t, "draft.txt", "", "body")

	res, err := env.files.Rename(env.ctx, RenameFileInput{FileID: file.ID, NewName: "final.txt"})
	if err != nil {
		t.Fatalf("Rename failed: %v", err)
	}
	env.drain()

	if res.File.Path != "/final.txt" {
		t.Errorf("path = %q", res.File.Path)
	}
	if got := env.nasContent(t, "/final.txt"); got != "body" {
		t.Errorf("NAS content = %q", got)
	}
	if env.nasExists(t, "/draft.txt") {
		t.Error("old NAS object still present")
	}

	t.Run("no-op", func(t *testing.T) {
		res, err := env.files.Rename(env.ctx, RenameFileInput{FileID: file.ID, NewName: "final.txt"})
		if err != nil || res.SyncEventID != "" {
			t.Errorf("no-op rename: res=%+v err=%v", res, err)
		}
	})

	t.Run("sync in flight", func(t *testing.T) {
		env.markFileSyncing(t, file.ID)
		_, err := env.files.Rename(env.ctx, RenameFileInput{FileID: file.ID, NewName: "other.txt"})
		if !errors.Is(err, models.ErrFileSyncing) {
			t.Errorf("err = %v, want ErrFileSyncing", err)
		}
	})
}

func TestFileMove(t *testing.T) {
	env := newTestEnv(t)
	folder := env.mustCreateFolder(t, "archive", "")
	file := env.mustCreateFile(t, "data.csv", "", "rows")

	res, err := env.files.Move(env.ctx, MoveFileInput{FileID: file.ID, TargetFolderID: folder.ID})
	if err != nil {
		t.Fatalf("Move failed: %v", err)
	}
	env.drain()

	if res.File.Path != "/archive/data.csv" || res.File.FolderID != folder.ID {
		t.Errorf("file = %+v", res.File)
	}
	if got := env.nasContent(t, "/archive/data.csv"); got != "rows" {
		t.Errorf("NAS content = %q", got)
	}

	t.Run("same folder is a no-op", func(t *testing.T) {
		res, err := env.files.Move(env.ctx, MoveFileInput{FileID: file.ID, TargetFolderID: folder.ID})
		if err != nil || res.SyncEventID != "" {
			t.Errorf("res=%+v err=%v", res, err)
		}
	})

	t.Run("duplicate at target", func(t *testing.T) {
		env.mustCreateFile(t, "data.csv", "", "other rows")
		back, err := env.files.Move(env.ctx, MoveFileInput{FileID: file.ID, TargetFolderID: env.root.ID})
		if !errors.Is(err, models.ErrDuplicateFile) {
			t.Errorf("res=%+v err=%v, want ErrDuplicateFile", back, err)
		}
	})
}

func TestFileTrashRestorePurge(t *testing.T) {
	env := newTestEnv(t)
	file := env.mustCreateFile(t, "temp.log", "", "log lines")

	res, err := env.files.Trash(env.ctx, file.ID, "u1")
	if err != nil {
		t.Fatalf("Trash failed: %v", err)
	}
	env.drain()

	if res.File.State != models.StateTrashed {
		t.Errorf("state = %s, want TRASHED", res.File.State)
	}
	tm, err := env.store.GetTrashMetadataForFile(env.ctx, file.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !env.nasExists(t, tm.TrashKey("temp.log")) {
		t.Error("NAS object not relocated to the trash key")
	}

	t.Run("mutations rejected while trashed", func(t *testing.T) {
		if _, err := env.files.Rename(env.ctx, RenameFileInput{FileID: file.ID, NewName: "x"}); !errors.Is(err, models.ErrFileNotActive) {
			t.Errorf("rename err = %v, want ErrFileNotActive", err)
		}
		if _, err := env.files.Trash(env.ctx, file.ID, "u1"); !errors.Is(err, models.ErrAlreadyTrashed) {
			t.Errorf("trash err = %v, want ErrAlreadyTrashed", err)
		}
	})

	t.Run("restore", func(t *testing.T) {
		if _, err := env.files.Restore(env.ctx, file.ID); err != nil {
			t.Fatalf("Restore failed: %v", err)
		}
		env.drain()

		got, _ := env.store.GetFile(env.ctx, file.ID)
		if got.State != models.StateActive || got.Path != "/temp.log" {
			t.Errorf("restored file = %+v", got)
		}
		if got := env.nasContent(t, "/temp.log"); got != "log lines" {
			t.Errorf("NAS content = %q", got)
		}
	})

	t.Run("purge", func(t *testing.T) {
		if _, err := env.files.Trash(env.ctx, file.ID, "u1"); err != nil {
			t.Fatal(err)
		}
		env.drain()
		if _, err := env.files.Purge(env.ctx, file.ID); err != nil {
			t.Fatalf("Purge failed: %v", err)
		}
		env.drain()

		got, _ := env.store.GetFile(env.ctx, file.ID)
		if got.State != models.StateDeleted {
			t.Errorf("state = %s, want DELETED", got.State)
		}
		if _, err := env.store.GetFileStorageObject(env.ctx, file.ID, models.TierNAS); !errors.Is(err, models.ErrStorageObjectNotFound) {
			t.Errorf("storage objects should be gone, err = %v", err)
		}
		// Staged cache bytes are dropped too.
		if ok, _ := env.cache.Exists(env.ctx, syncer.CacheContentKey(file.ID)); ok {
			t.Error("cache bytes should be removed on purge")
		}
	})

	t.Run("restore after purge", func(t *testing.T) {
		_, err := env.files.Restore(env.ctx, file.ID)
		if fault.CodeOf(err) != "NOT_TRASHED" {
			t.Errorf("err = %v, want NOT_TRASHED", err)
		}
	})
}

func TestOpenContent(t *testing.T) {
	env := newTestEnv(t)
	file := env.mustCreateFile(t, "read.me", "", "open me")

	rc, got, err := env.files.OpenContent(env.ctx, file.ID)
	if err != nil {
		t.Fatalf("OpenContent failed: %v", err)
	}
	if got.ID != file.ID {
		t.Errorf("file = %+v", got)
	}

	// The lease is held while the stream is open.
	obj, _ := env.store.GetFileStorageObject(env.ctx, file.ID, models.TierNAS)
	if obj.LeaseCount != 1 {
		t.Errorf("lease count = %d while streaming, want 1", obj.LeaseCount)
	}

	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(data) != "open me" {
		t.Errorf("content = %q", data)
	}
	if err := rc.Close(); err != nil {
		t.Fatal(err)
	}

	// Released exactly once even though EOF and Close both fired.
	obj, _ = env.store.GetFileStorageObject(env.ctx, file.ID, models.TierNAS)
	if obj.LeaseCount != 0 {
		t.Errorf("lease count = %d after close, want 0", obj.LeaseCount)
	}
}

func TestOpenContentFallsBackToNAS(t *testing.T) {
	env := newTestEnv(t)
	file := env.mustCreateFile(t, "fallback.bin", "", "from nas")

	// Drop the cache bytes; metadata still claims AVAILABLE, the stream
	// must fall through to the converged NAS copy.
	if err := env.cache.DeleteFile(env.ctx, syncer.CacheContentKey(file.ID)); err != nil {
		t.Fatal(err)
	}

	rc, _, err := env.files.OpenContent(env.ctx, file.ID)
	if err != nil {
		t.Fatalf("OpenContent failed: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "from nas" {
		t.Errorf("content = %q", data)
	}
}

func TestOpenContentNotReady(t *testing.T) {
	env := newTestEnv(t)
	file := env.mustCreateFile(t, "pending.bin", "", "x")

	// Neither tier serviceable: cache row errored, NAS still syncing.
	cacheObj, _ := env.store.GetFileStorageObject(env.ctx, file.ID, models.TierCache)
	cacheObj.AvailabilityStatus = models.AvailabilityError
	if err := env.store.UpdateFileStorageObject(env.ctx, cacheObj); err != nil {
		t.Fatal(err)
	}
	env.markFileSyncing(t, file.ID)

	_, _, err := env.files.OpenContent(env.ctx, file.ID)
	if fault.CodeOf(err) != "CONTENT_NOT_READY" {
		t.Errorf("err = %v, want CONTENT_NOT_READY", err)
	}

	// The provisional lease is rolled back on failure.
	obj, _ := env.store.GetFileStorageObject(env.ctx, file.ID, models.TierNAS)
	if obj.LeaseCount != 0 {
		t.Errorf("lease count = %d, want 0", obj.LeaseCount)
	}
}

func TestOpenContentTrashedFile(t *testing.T) {
	env := newTestEnv(t)
	file := env.mustCreateFile(t, "gone.txt", "", "x")
	if _, err := env.files.Trash(env.ctx, file.ID, "u1"); err != nil {
		t.Fatal(err)
	}
	env.drain()

	_, _, err := env.files.OpenContent(env.ctx, file.ID)
	if !errors.Is(err, models.ErrFileNotActive) {
		t.Errorf("err = %v, want ErrFileNotActive", err)
	}
}
