package command

import (
	"context"
	"testing"
	"time"

	"github.com/mezzofs/mezzofs/pkg/lock"
	"github.com/mezzofs/mezzofs/pkg/lock/memlock"
	"github.com/mezzofs/mezzofs/pkg/metastore"
	"github.com/mezzofs/mezzofs/pkg/metastore/models"
	"github.com/mezzofs/mezzofs/pkg/nashealth"
	"github.com/mezzofs/mezzofs/pkg/outbox"
	"github.com/mezzofs/mezzofs/pkg/queue/memq"
	"github.com/mezzofs/mezzofs/pkg/storage/fsstore"
	"github.com/mezzofs/mezzofs/pkg/syncer"
)

// testEnv wires the full command-to-NAS pipeline with the in-process
// queue and lock: commands commit metadata, sync handlers converge the
// NAS tier, drain() waits for convergence.
type testEnv struct {
	ctx     context.Context
	store   *metastore.Store
	queue   *memq.Queue
	cache   *fsstore.Store
	nas     *fsstore.Store
	health  *nashealth.Cache
	folders *FolderService
	files   *FileService
	root    *models.Folder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	store, err := metastore.New(&metastore.Config{
		Type:   metastore.DatabaseTypeSQLite,
		SQLite: metastore.SQLiteConfig{Path: ":memory:"},
	})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	nas, err := fsstore.New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create nas store: %v", err)
	}
	cache, err := fsstore.New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create cache store: %v", err)
	}

	q := memq.New()
	t.Cleanup(func() { q.Close() })

	health := nashealth.New()
	tracker := outbox.NewTracker(store)
	locker := memlock.New()

	sync := syncer.New(store, tracker, nas, cache, locker, health, nil, syncer.Options{
		Concurrency: 2,
		MaxAttempts: 2,
		Backoff:     10 * time.Millisecond,
		Lock:        lock.Options{WaitTimeout: 5 * time.Second},
	})
	if err := sync.Start(ctx, q); err != nil {
		t.Fatalf("failed to start syncer: %v", err)
	}

	folders := NewFolderService(store, q, tracker, health, Options{})
	files := NewFileService(store, q, tracker, health, cache, nas, locker, Options{})

	root, err := folders.BootstrapRoot(ctx)
	if err != nil {
		t.Fatalf("failed to bootstrap root: %v", err)
	}

	return &testEnv{
		ctx:     ctx,
		store:   store,
		queue:   q,
		cache:   cache,
		nas:     nas,
		health:  health,
		folders: folders,
		files:   files,
		root:    root,
	}
}

// drain waits until every enqueued sync job reached a terminal outcome.
func (e *testEnv) drain() {
	e.queue.Drain()
}

func (e *testEnv) mustCreateFolder(t *testing.T, name, parentID string) *models.Folder {
	t.Helper()
	res, err := e.folders.Create(e.ctx, CreateFolderInput{Name: name, ParentID: parentID})
	if err != nil {
		t.Fatalf("failed to create folder %q: %v", name, err)
	}
	e.drain()
	return res.Folder
}

func (e *testEnv) folderEvent(t *testing.T, eventID string) *models.SyncEvent {
	t.Helper()
	event, err := e.store.GetSyncEvent(e.ctx, eventID)
	if err != nil {
		t.Fatalf("failed to load sync event %s: %v", eventID, err)
	}
	return event
}

func (e *testEnv) nasExists(t *testing.T, key string) bool {
	t.Helper()
	ok, err := e.nas.Exists(e.ctx, key)
	if err != nil {
		t.Fatalf("nas exists %q: %v", key, err)
	}
	return ok
}

// markFolderSyncing forces the NAS storage object into SYNCING to test
// the in-flight rejection path deterministically.
func (e *testEnv) markFolderSyncing(t *testing.T, folderID string) {
	t.Helper()
	obj, err := e.store.GetFolderStorageObject(e.ctx, folderID, models.TierNAS)
	if err != nil {
		t.Fatal(err)
	}
	obj.AvailabilityStatus = models.AvailabilitySyncing
	if err := e.store.UpdateFolderStorageObject(e.ctx, obj); err != nil {
		t.Fatal(err)
	}
}

func (e *testEnv) markFileSyncing(t *testing.T, fileID string) {
	t.Helper()
	obj, err := e.store.GetFileStorageObject(e.ctx, fileID, models.TierNAS)
	if err != nil {
		t.Fatal(err)
	}
	obj.AvailabilityStatus = models.AvailabilitySyncing
	if err := e.store.UpdateFileStorageObject(e.ctx, obj); err != nil {
		t.Fatal(err)
	}
}
