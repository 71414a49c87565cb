package metastore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mezzofs/mezzofs/pkg/metastore/models"
)

func createTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(&Config{
		Type:   DatabaseTypeSQLite,
		SQLite: SQLiteConfig{Path: ":memory:"},
	})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func createTestFolder(t *testing.T, s *Store, parentID *string, name, path string) *models.Folder {
	t.Helper()
	f := &models.Folder{Name: name, ParentID: parentID, Path: path, State: models.StateActive}
	if err := s.CreateFolder(context.Background(), f); err != nil {
		t.Fatalf("failed to create folder %q: %v", path, err)
	}
	return f
}

func createTestFile(t *testing.T, s *Store, folderID, name, path string, size int64) *models.File {
	t.Helper()
	f := &models.File{Name: name, FolderID: folderID, Path: path, SizeBytes: size, State: models.StateActive}
	if err := s.CreateFile(context.Background(), f); err != nil {
		t.Fatalf("failed to create file %q: %v", path, err)
	}
	return f
}

func TestFolderCRUD(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	root := createTestFolder(t, s, nil, "", "/")
	docs := createTestFolder(t, s, &root.ID, "docs", "/docs")

	t.Run("get by id", func(t *testing.T) {
		got, err := s.GetFolder(ctx, docs.ID)
		if err != nil {
			t.Fatalf("GetFolder failed: %v", err)
		}
		if got.Name != "docs" || got.Path != "/docs" {
			t.Errorf("got %q at %q", got.Name, got.Path)
		}
	})

	t.Run("missing id", func(t *testing.T) {
		_, err := s.GetFolder(ctx, "no-such-id")
		if !errors.Is(err, models.ErrFolderNotFound) {
			t.Errorf("err = %v, want ErrFolderNotFound", err)
		}
	})

	t.Run("root lookup", func(t *testing.T) {
		got, err := s.GetRootFolder(ctx)
		if err != nil {
			t.Fatalf("GetRootFolder failed: %v", err)
		}
		if got.ID != root.ID || !got.IsRoot() {
			t.Errorf("root = %+v", got)
		}
	})

	t.Run("get by path", func(t *testing.T) {
		got, err := s.GetFolderByPath(ctx, "/docs")
		if err != nil {
			t.Fatalf("GetFolderByPath failed: %v", err)
		}
		if got.ID != docs.ID {
			t.Errorf("got folder %s, want %s", got.ID, docs.ID)
		}
	})

	t.Run("update", func(t *testing.T) {
		docs.Name = "documents"
		docs.Path = "/documents"
		if err := s.UpdateFolder(ctx, docs); err != nil {
			t.Fatalf("UpdateFolder failed: %v", err)
		}
		got, err := s.GetFolder(ctx, docs.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Name != "documents" || got.Path != "/documents" {
			t.Errorf("got %q at %q after update", got.Name, got.Path)
		}
	})

	t.Run("update missing", func(t *testing.T) {
		ghost := &models.Folder{ID: "ghost", Name: "x", Path: "/x"}
		if err := s.UpdateFolder(ctx, ghost); !errors.Is(err, models.ErrFolderNotFound) {
			t.Errorf("err = %v, want ErrFolderNotFound", err)
		}
	})
}

func TestFindChildFolderSkipsTrashed(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	root := createTestFolder(t, s, nil, "", "/")
	child := createTestFolder(t, s, &root.ID, "reports", "/reports")

	got, err := s.FindChildFolder(ctx, root.ID, "reports")
	if err != nil || got.ID != child.ID {
		t.Fatalf("FindChildFolder = %v, %v", got, err)
	}

	child.State = models.StateTrashed
	if err := s.UpdateFolder(ctx, child); err != nil {
		t.Fatal(err)
	}
	if _, err := s.FindChildFolder(ctx, root.ID, "reports"); !errors.Is(err, models.ErrFolderNotFound) {
		t.Errorf("trashed child should not be found, err = %v", err)
	}
}

func TestCountActiveChildren(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	root := createTestFolder(t, s, nil, "", "/")
	createTestFolder(t, s, &root.ID, "a", "/a")
	trashed := createTestFolder(t, s, &root.ID, "b", "/b")
	trashed.State = models.StateTrashed
	if err := s.UpdateFolder(ctx, trashed); err != nil {
		t.Fatal(err)
	}
	createTestFile(t, s, root.ID, "f.txt", "/f.txt", 10)
	createTestFile(t, s, root.ID, "g.txt", "/g.txt", 10)

	folders, files, err := s.CountActiveChildren(ctx, root.ID)
	if err != nil {
		t.Fatalf("CountActiveChildren failed: %v", err)
	}
	if folders != 1 || files != 2 {
		t.Errorf("folders=%d files=%d, want 1 and 2", folders, files)
	}
}

func TestRewritePathsIsAnchored(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	root := createTestFolder(t, s, nil, "", "/")
	a := createTestFolder(t, s, &root.ID, "a", "/a")
	deep := createTestFolder(t, s, &a.ID, "b", "/a/b")
	sibling := createTestFolder(t, s, &root.ID, "ab", "/ab")
	inner := createTestFile(t, s, deep.ID, "f.txt", "/a/b/f.txt", 1)
	outer := createTestFile(t, s, sibling.ID, "g.txt", "/ab/g.txt", 1)

	if err := s.RewritePaths(ctx, "/a", "/z"); err != nil {
		t.Fatalf("RewritePaths failed: %v", err)
	}

	got, _ := s.GetFolder(ctx, deep.ID)
	if got.Path != "/z/b" {
		t.Errorf("descendant folder path = %q, want /z/b", got.Path)
	}
	gotFile, _ := s.GetFile(ctx, inner.ID)
	if gotFile.Path != "/z/b/f.txt" {
		t.Errorf("descendant file path = %q, want /z/b/f.txt", gotFile.Path)
	}

	// "/ab" must be untouched: the match anchors at the "/" boundary.
	gotSib, _ := s.GetFolder(ctx, sibling.ID)
	if gotSib.Path != "/ab" {
		t.Errorf("sibling path = %q, want /ab", gotSib.Path)
	}
	gotOuter, _ := s.GetFile(ctx, outer.ID)
	if gotOuter.Path != "/ab/g.txt" {
		t.Errorf("sibling file path = %q, want /ab/g.txt", gotOuter.Path)
	}
}

func TestGetFolderStats(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	root := createTestFolder(t, s, nil, "", "/")
	a := createTestFolder(t, s, &root.ID, "a", "/a")
	createTestFolder(t, s, &a.ID, "b", "/a/b")
	createTestFile(t, s, a.ID, "f1.bin", "/a/f1.bin", 100)
	createTestFile(t, s, a.ID, "f2.bin", "/a/b/f2.bin", 50)
	createTestFile(t, s, root.ID, "top.bin", "/top.bin", 999)

	trashed := createTestFile(t, s, a.ID, "gone.bin", "/a/gone.bin", 7)
	trashed.State = models.StateTrashed
	if err := s.UpdateFile(ctx, trashed); err != nil {
		t.Fatal(err)
	}

	stats, err := s.GetFolderStats(ctx, "/a")
	if err != nil {
		t.Fatalf("GetFolderStats failed: %v", err)
	}
	if stats.FolderCount != 1 {
		t.Errorf("FolderCount = %d, want 1", stats.FolderCount)
	}
	if stats.FileCount != 2 {
		t.Errorf("FileCount = %d, want 2", stats.FileCount)
	}
	if stats.TotalBytes != 150 {
		t.Errorf("TotalBytes = %d, want 150", stats.TotalBytes)
	}
}

func TestFindFileByNameOnlyActive(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	root := createTestFolder(t, s, nil, "", "/")
	f := createTestFile(t, s, root.ID, "doc.txt", "/doc.txt", 5)

	got, err := s.FindFileByName(ctx, root.ID, "doc.txt")
	if err != nil || got.ID != f.ID {
		t.Fatalf("FindFileByName = %v, %v", got, err)
	}

	f.State = models.StateTrashed
	if err := s.UpdateFile(ctx, f); err != nil {
		t.Fatal(err)
	}
	if _, err := s.FindFileByName(ctx, root.ID, "doc.txt"); !errors.Is(err, models.ErrFileNotFound) {
		t.Errorf("trashed file should not be found, err = %v", err)
	}
}

func TestFileStorageObjects(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	root := createTestFolder(t, s, nil, "", "/")
	f := createTestFile(t, s, root.ID, "v.bin", "/v.bin", 9)

	cacheObj := &models.FileStorageObject{
		FileID: f.ID, Tier: models.TierCache,
		ObjectKey: "cache/" + f.ID, AvailabilityStatus: models.AvailabilityAvailable,
	}
	nasObj := &models.FileStorageObject{
		FileID: f.ID, Tier: models.TierNAS,
		ObjectKey: "/v.bin", AvailabilityStatus: models.AvailabilitySyncing,
	}
	if err := s.CreateFileStorageObject(ctx, cacheObj); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateFileStorageObject(ctx, nasObj); err != nil {
		t.Fatal(err)
	}

	t.Run("per tier lookup", func(t *testing.T) {
		got, err := s.GetFileStorageObject(ctx, f.ID, models.TierNAS)
		if err != nil {
			t.Fatal(err)
		}
		if got.ObjectKey != "/v.bin" || got.AvailabilityStatus != models.AvailabilitySyncing {
			t.Errorf("nas obj = %+v", got)
		}
	})

	t.Run("missing tier", func(t *testing.T) {
		_, err := s.GetFileStorageObject(ctx, "nope", models.TierNAS)
		if !errors.Is(err, models.ErrStorageObjectNotFound) {
			t.Errorf("err = %v, want ErrStorageObjectNotFound", err)
		}
	})

	t.Run("update", func(t *testing.T) {
		nasObj.AvailabilityStatus = models.AvailabilityAvailable
		if err := s.UpdateFileStorageObject(ctx, nasObj); err != nil {
			t.Fatal(err)
		}
		got, _ := s.GetFileStorageObject(ctx, f.ID, models.TierNAS)
		if got.AvailabilityStatus != models.AvailabilityAvailable {
			t.Errorf("status = %s", got.AvailabilityStatus)
		}
	})

	t.Run("delete cascade", func(t *testing.T) {
		if err := s.DeleteFileStorageObjects(ctx, f.ID); err != nil {
			t.Fatal(err)
		}
		if _, err := s.GetFileStorageObject(ctx, f.ID, models.TierCache); !errors.Is(err, models.ErrStorageObjectNotFound) {
			t.Errorf("cache obj should be gone, err = %v", err)
		}
	})
}

func TestAdjustFileLease(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	root := createTestFolder(t, s, nil, "", "/")
	f := createTestFile(t, s, root.ID, "lease.bin", "/lease.bin", 1)
	if err := s.CreateFileStorageObject(ctx, &models.FileStorageObject{
		FileID: f.ID, Tier: models.TierNAS, ObjectKey: "/lease.bin",
		AvailabilityStatus: models.AvailabilityAvailable,
	}); err != nil {
		t.Fatal(err)
	}

	if n, err := s.AdjustFileLease(ctx, f.ID, 1); err != nil || n != 1 {
		t.Fatalf("first lease: n=%d err=%v", n, err)
	}
	if n, err := s.AdjustFileLease(ctx, f.ID, 1); err != nil || n != 2 {
		t.Fatalf("second lease: n=%d err=%v", n, err)
	}
	if n, err := s.AdjustFileLease(ctx, f.ID, -1); err != nil || n != 1 {
		t.Fatalf("release: n=%d err=%v", n, err)
	}
	// Never below zero.
	if n, err := s.AdjustFileLease(ctx, f.ID, -5); err != nil || n != 0 {
		t.Fatalf("over-release: n=%d err=%v", n, err)
	}

	if _, err := s.AdjustFileLease(ctx, "missing", 1); !errors.Is(err, models.ErrStorageObjectNotFound) {
		t.Errorf("err = %v, want ErrStorageObjectNotFound", err)
	}
}

func TestRewriteObjectKeys(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	root := createTestFolder(t, s, nil, "", "/")
	f := createTestFile(t, s, root.ID, "f.bin", "/a/f.bin", 1)
	g := createTestFile(t, s, root.ID, "g.bin", "/ab/g.bin", 1)

	nasF := &models.FileStorageObject{FileID: f.ID, Tier: models.TierNAS, ObjectKey: "/a/f.bin"}
	cacheF := &models.FileStorageObject{FileID: f.ID, Tier: models.TierCache, ObjectKey: "/a/f.bin"}
	nasG := &models.FileStorageObject{FileID: g.ID, Tier: models.TierNAS, ObjectKey: "/ab/g.bin"}
	for _, obj := range []*models.FileStorageObject{nasF, cacheF, nasG} {
		if err := s.CreateFileStorageObject(ctx, obj); err != nil {
			t.Fatal(err)
		}
	}

	if err := s.RewriteObjectKeys(ctx, "/a", "/z"); err != nil {
		t.Fatalf("RewriteObjectKeys failed: %v", err)
	}

	got, _ := s.GetFileStorageObject(ctx, f.ID, models.TierNAS)
	if got.ObjectKey != "/z/f.bin" {
		t.Errorf("NAS key = %q, want /z/f.bin", got.ObjectKey)
	}
	// Cache keys are never rewritten.
	gotCache, _ := s.GetFileStorageObject(ctx, f.ID, models.TierCache)
	if gotCache.ObjectKey != "/a/f.bin" {
		t.Errorf("cache key = %q, want unchanged", gotCache.ObjectKey)
	}
	// Anchor: "/ab" is not a descendant of "/a".
	gotSib, _ := s.GetFileStorageObject(ctx, g.ID, models.TierNAS)
	if gotSib.ObjectKey != "/ab/g.bin" {
		t.Errorf("sibling key = %q, want unchanged", gotSib.ObjectKey)
	}
}

func TestSyncEventLifecycle(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	root := createTestFolder(t, s, nil, "", "/")

	event := &models.SyncEvent{
		EventType:  models.EventCreate,
		TargetType: models.TargetFolder,
		FolderID:   &root.ID,
		TargetPath: "/docs",
	}
	if err := s.CreateSyncEvent(ctx, event); err != nil {
		t.Fatalf("CreateSyncEvent failed: %v", err)
	}
	if event.Status != models.SyncPending {
		t.Errorf("default status = %s, want PENDING", event.Status)
	}
	if event.MaxRetries != models.DefaultMaxRetries {
		t.Errorf("MaxRetries = %d, want %d", event.MaxRetries, models.DefaultMaxRetries)
	}

	t.Run("transition to queued", func(t *testing.T) {
		event.Status = models.SyncQueued
		if err := s.UpdateSyncEvent(ctx, event); err != nil {
			t.Fatalf("UpdateSyncEvent failed: %v", err)
		}
		got, _ := s.GetSyncEvent(ctx, event.ID)
		if got.Status != models.SyncQueued {
			t.Errorf("status = %s", got.Status)
		}
	})

	t.Run("terminal is sticky", func(t *testing.T) {
		now := time.Now()
		event.Status = models.SyncDone
		event.ProcessedAt = &now
		if err := s.UpdateSyncEvent(ctx, event); err != nil {
			t.Fatalf("marking DONE failed: %v", err)
		}

		event.Status = models.SyncProcessing
		err := s.UpdateSyncEvent(ctx, event)
		if !errors.Is(err, models.ErrSyncEventTerminal) {
			t.Errorf("err = %v, want ErrSyncEventTerminal", err)
		}
		got, _ := s.GetSyncEvent(ctx, event.ID)
		if got.Status != models.SyncDone {
			t.Errorf("status = %s, want DONE to stick", got.Status)
		}
	})

	t.Run("missing event", func(t *testing.T) {
		ghost := &models.SyncEvent{ID: "ghost", Status: models.SyncQueued}
		if err := s.UpdateSyncEvent(ctx, ghost); !errors.Is(err, models.ErrSyncEventNotFound) {
			t.Errorf("err = %v, want ErrSyncEventNotFound", err)
		}
	})
}

func TestSyncEventMetadataBag(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	root := createTestFolder(t, s, nil, "", "/")

	event := &models.SyncEvent{
		EventType:  models.EventMove,
		TargetType: models.TargetFolder,
		FolderID:   &root.ID,
	}
	if err := event.SetMetadata(map[string]string{
		"originalParentId": "p1",
		"targetParentId":   "p2",
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateSyncEvent(ctx, event); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetSyncEvent(ctx, event.ID)
	if err != nil {
		t.Fatal(err)
	}
	m, err := got.GetMetadata()
	if err != nil {
		t.Fatal(err)
	}
	if m["originalParentId"] != "p1" || m["targetParentId"] != "p2" {
		t.Errorf("metadata bag = %v", m)
	}
}

func TestListStaleSyncEvents(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	root := createTestFolder(t, s, nil, "", "/")

	stale := &models.SyncEvent{EventType: models.EventCreate, TargetType: models.TargetFolder, FolderID: &root.ID}
	if err := s.CreateSyncEvent(ctx, stale); err != nil {
		t.Fatal(err)
	}
	retrying := &models.SyncEvent{EventType: models.EventCreate, TargetType: models.TargetFolder, FolderID: &root.ID, Status: models.SyncRetrying}
	if err := s.CreateSyncEvent(ctx, retrying); err != nil {
		t.Fatal(err)
	}
	// Backdate directly; UpdatedAt is stamped by the ORM on writes.
	old := time.Now().Add(-10 * time.Minute)
	for _, id := range []string{stale.ID, retrying.ID} {
		if err := s.DB().Model(&models.SyncEvent{}).Where("id = ?", id).
			Update("updated_at", old).Error; err != nil {
			t.Fatal(err)
		}
	}

	fresh := &models.SyncEvent{EventType: models.EventCreate, TargetType: models.TargetFolder, FolderID: &root.ID}
	if err := s.CreateSyncEvent(ctx, fresh); err != nil {
		t.Fatal(err)
	}
	queued := &models.SyncEvent{EventType: models.EventCreate, TargetType: models.TargetFolder, FolderID: &root.ID, Status: models.SyncQueued}
	if err := s.CreateSyncEvent(ctx, queued); err != nil {
		t.Fatal(err)
	}

	events, err := s.ListStaleSyncEvents(ctx, time.Now().Add(-5*time.Minute), 10)
	if err != nil {
		t.Fatalf("ListStaleSyncEvents failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want the stale PENDING and RETRYING rows", len(events))
	}
	got := map[string]bool{events[0].ID: true, events[1].ID: true}
	if !got[stale.ID] || !got[retrying.ID] {
		t.Errorf("got %v, want %s and %s", got, stale.ID, retrying.ID)
	}
}

func TestTrashMetadata(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	root := createTestFolder(t, s, nil, "", "/")
	folder := createTestFolder(t, s, &root.ID, "old", "/old")

	tm := &models.TrashMetadata{
		FolderID:         &folder.ID,
		OriginalPath:     "/old",
		OriginalParentID: &root.ID,
		ExpiresAt:        time.Now().Add(24 * time.Hour),
	}
	if err := s.CreateTrashMetadata(ctx, tm); err != nil {
		t.Fatalf("CreateTrashMetadata failed: %v", err)
	}

	got, err := s.GetTrashMetadataForFolder(ctx, folder.ID)
	if err != nil {
		t.Fatalf("GetTrashMetadataForFolder failed: %v", err)
	}
	if got.OriginalPath != "/old" || *got.OriginalParentID != root.ID {
		t.Errorf("trash row = %+v", got)
	}

	wantKey := models.TrashPrefix + "/" + tm.ID + "__old"
	if key := got.TrashKey("old"); key != wantKey {
		t.Errorf("TrashKey = %q, want %q", key, wantKey)
	}

	if err := s.DeleteTrashMetadata(ctx, tm.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetTrashMetadataForFolder(ctx, folder.ID); !errors.Is(err, models.ErrTrashMetadataNotFound) {
		t.Errorf("err = %v, want ErrTrashMetadataNotFound", err)
	}
}

func TestUploadSessions(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	root := createTestFolder(t, s, nil, "", "/")

	session := &models.UploadSession{
		FileName:  "big.iso",
		FolderID:  root.ID,
		TotalSize: 30,
		PartSize:  10,
		TotalParts: 3,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	if err := s.CreateUploadSession(ctx, session); err != nil {
		t.Fatalf("CreateUploadSession failed: %v", err)
	}
	if session.Status != models.UploadInit {
		t.Errorf("default status = %s, want INIT", session.Status)
	}

	t.Run("parts upsert and order", func(t *testing.T) {
		for _, p := range []struct {
			n    int
			etag string
		}{{2, "e2"}, {1, "e1"}} {
			if err := s.UpsertUploadPart(ctx, &models.UploadSessionPart{
				SessionID: session.ID, PartNumber: p.n, ETag: p.etag, SizeBytes: 10,
			}); err != nil {
				t.Fatal(err)
			}
		}
		// Re-upload of part 1 overwrites.
		if err := s.UpsertUploadPart(ctx, &models.UploadSessionPart{
			SessionID: session.ID, PartNumber: 1, ETag: "e1-v2", SizeBytes: 10,
		}); err != nil {
			t.Fatal(err)
		}

		parts, err := s.ListUploadParts(ctx, session.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(parts) != 2 {
			t.Fatalf("got %d parts, want 2", len(parts))
		}
		if parts[0].PartNumber != 1 || parts[0].ETag != "e1-v2" {
			t.Errorf("part[0] = %+v", parts[0])
		}
		if parts[1].PartNumber != 2 {
			t.Errorf("part[1] = %+v", parts[1])
		}
	})

	t.Run("preloaded parts", func(t *testing.T) {
		got, err := s.GetUploadSession(ctx, session.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(got.Parts) != 2 {
			t.Errorf("preloaded %d parts, want 2", len(got.Parts))
		}
	})

	t.Run("terminal is sticky", func(t *testing.T) {
		session.Status = models.UploadAborted
		if err := s.UpdateUploadSession(ctx, session); err != nil {
			t.Fatal(err)
		}
		session.Status = models.UploadUploading
		if err := s.UpdateUploadSession(ctx, session); !errors.Is(err, models.ErrUploadSessionTerminal) {
			t.Errorf("err = %v, want ErrUploadSessionTerminal", err)
		}
		got, _ := s.GetUploadSession(ctx, session.ID)
		if got.Status != models.UploadAborted {
			t.Errorf("status = %s, want ABORTED to stick", got.Status)
		}
	})

	t.Run("delete parts", func(t *testing.T) {
		if err := s.DeleteUploadParts(ctx, session.ID); err != nil {
			t.Fatal(err)
		}
		parts, _ := s.ListUploadParts(ctx, session.ID)
		if len(parts) != 0 {
			t.Errorf("parts remain after delete: %d", len(parts))
		}
	})
}

func TestListOverdueUploadSessions(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	root := createTestFolder(t, s, nil, "", "/")

	overdue := &models.UploadSession{
		FileName: "late.bin", FolderID: root.ID, TotalSize: 10, PartSize: 10, TotalParts: 1,
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	live := &models.UploadSession{
		FileName: "live.bin", FolderID: root.ID, TotalSize: 10, PartSize: 10, TotalParts: 1,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	aborted := &models.UploadSession{
		FileName: "done.bin", FolderID: root.ID, TotalSize: 10, PartSize: 10, TotalParts: 1,
		Status: models.UploadAborted, ExpiresAt: time.Now().Add(-time.Minute),
	}
	for _, sess := range []*models.UploadSession{overdue, live, aborted} {
		if err := s.CreateUploadSession(ctx, sess); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.ListOverdueUploadSessions(ctx, time.Now())
	if err != nil {
		t.Fatalf("ListOverdueUploadSessions failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != overdue.ID {
		t.Errorf("got %d sessions, want only the overdue non-terminal one", len(got))
	}
}

func TestWithTxRollsBack(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	root := createTestFolder(t, s, nil, "", "/")

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx *Store) error {
		if err := tx.CreateFolder(ctx, &models.Folder{
			Name: "doomed", ParentID: &root.ID, Path: "/doomed",
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTx err = %v, want boom", err)
	}

	if _, err := s.GetFolderByPath(ctx, "/doomed"); !errors.Is(err, models.ErrFolderNotFound) {
		t.Errorf("folder should have rolled back, err = %v", err)
	}
}
