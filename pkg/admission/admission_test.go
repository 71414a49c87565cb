package admission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mezzofs/mezzofs/pkg/metastore"
	"github.com/mezzofs/mezzofs/pkg/metastore/models"
	"github.com/mezzofs/mezzofs/pkg/nashealth"
	"github.com/mezzofs/mezzofs/pkg/outbox"
	"github.com/mezzofs/mezzofs/pkg/queue/memq"
	"github.com/mezzofs/mezzofs/pkg/storage/fsstore"
	"github.com/mezzofs/mezzofs/pkg/upload"
)

const admTotalSize = 200

type admissionEnv struct {
	ctx        context.Context
	store      *metastore.Store
	engine     *upload.Engine
	controller *Controller
}

func newAdmissionEnv(t *testing.T, opts Options) *admissionEnv {
	t.Helper()
	ctx := context.Background()

	store, err := metastore.New(&metastore.Config{
		Type:   metastore.DatabaseTypeSQLite,
		SQLite: metastore.SQLiteConfig{Path: ":memory:"},
	})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cache, err := fsstore.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	q := memq.New()
	t.Cleanup(func() { q.Close() })

	root := &models.Folder{Name: "", Path: "/", State: models.StateActive}
	if err := store.CreateFolder(ctx, root); err != nil {
		t.Fatal(err)
	}

	engine := upload.New(store, cache, q, outbox.NewTracker(store), nashealth.New(), upload.Options{
		Threshold:  100,
		PartSize:   64,
		SessionTTL: time.Hour,
	})
	controller := New(engine, opts)

	return &admissionEnv{ctx: ctx, store: store, engine: engine, controller: controller}
}

func (e *admissionEnv) initiate(t *testing.T, name string) *Result {
	t.Helper()
	res, err := e.controller.InitiateOrEnqueue(e.ctx, upload.InitiateInput{
		FileName:  name,
		TotalSize: admTotalSize,
	})
	if err != nil {
		t.Fatalf("InitiateOrEnqueue(%q) failed: %v", name, err)
	}
	return res
}

func TestDirectAdmissionUnderCaps(t *testing.T) {
	env := newAdmissionEnv(t, Options{MaxActiveSessions: 2})

	res := env.initiate(t, "a.bin")
	if res.Status != TicketActive || res.Session == nil {
		t.Fatalf("result = %+v, want an open session", res)
	}
	if res.Session.FileName != "a.bin" {
		t.Errorf("session = %+v", res.Session)
	}

	stats := env.controller.Stats()
	if stats.ActiveSessions != 1 || stats.TotalUploadBytes != admTotalSize {
		t.Errorf("stats = %+v", stats)
	}
}

func TestSessionCapQueuesFIFO(t *testing.T) {
	env := newAdmissionEnv(t, Options{MaxActiveSessions: 1, AvgSessionTime: 30 * time.Second})

	first := env.initiate(t, "a.bin")
	if first.Status != TicketActive {
		t.Fatalf("first = %+v", first)
	}

	second := env.initiate(t, "b.bin")
	if second.Status != TicketWaiting || second.Ticket == "" {
		t.Fatalf("second = %+v, want WAITING with a ticket", second)
	}
	if second.Position != 1 {
		t.Errorf("position = %d, want 1", second.Position)
	}
	if second.EstimatedWaitSeconds != 30 {
		t.Errorf("estimated wait = %d, want 30", second.EstimatedWaitSeconds)
	}

	third := env.initiate(t, "c.bin")
	if third.Position != 2 {
		t.Errorf("third position = %d, want 2", third.Position)
	}

	if stats := env.controller.Stats(); stats.WaitingTickets != 2 {
		t.Errorf("waiting = %d, want 2", stats.WaitingTickets)
	}
}

func TestConcurrentInitiatorsHonorSessionCap(t *testing.T) {
	env := newAdmissionEnv(t, Options{
		MaxActiveSessions:   1,
		MaxTotalUploadBytes: 1 << 40,
	})

	const initiators = 50
	start := make(chan struct{})
	results := make(chan *Result, initiators)

	var wg sync.WaitGroup
	for i := 0; i < initiators; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			<-start
			res, err := env.controller.InitiateOrEnqueue(env.ctx, upload.InitiateInput{
				FileName:  fmt.Sprintf("file-%d.bin", n),
				TotalSize: admTotalSize,
			})
			if err != nil {
				t.Errorf("InitiateOrEnqueue failed: %v", err)
				return
			}
			results <- res
		}(i)
	}
	close(start)
	wg.Wait()
	close(results)

	var active, waiting int
	for res := range results {
		switch res.Status {
		case TicketActive:
			active++
		case TicketWaiting:
			waiting++
		default:
			t.Errorf("unexpected status %q", res.Status)
		}
	}
	if active != 1 {
		t.Errorf("admitted %d sessions, want exactly 1", active)
	}
	if waiting != initiators-1 {
		t.Errorf("waiting = %d, want %d", waiting, initiators-1)
	}
	if stats := env.controller.Stats(); stats.ActiveSessions != 1 {
		t.Errorf("stats = %+v, want one active session", stats)
	}
}

func TestByteCapQueues(t *testing.T) {
	env := newAdmissionEnv(t, Options{MaxActiveSessions: 10, MaxTotalUploadBytes: admTotalSize})

	if res := env.initiate(t, "a.bin"); res.Status != TicketActive {
		t.Fatalf("first = %+v", res)
	}
	if res := env.initiate(t, "b.bin"); res.Status != TicketWaiting {
		t.Errorf("second = %+v, want WAITING past the byte cap", res)
	}
}

func TestPromotionOnSessionClose(t *testing.T) {
	env := newAdmissionEnv(t, Options{MaxActiveSessions: 1})

	first := env.initiate(t, "a.bin")
	queued := env.initiate(t, "b.bin")

	// Closing the active session hands the slot to the head ticket.
	if _, err := env.engine.Abort(env.ctx, first.Session.ID); err != nil {
		t.Fatal(err)
	}

	res, err := env.controller.Poll(env.ctx, queued.Ticket)
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if res.Status != TicketActive || res.Session == nil {
		t.Fatalf("poll = %+v, want the claimed session", res)
	}
	if res.Session.FileName != "b.bin" {
		t.Errorf("session = %+v", res.Session)
	}

	// The claim is single-shot; later polls report the terminal state.
	res, err = env.controller.Poll(env.ctx, queued.Ticket)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != TicketActive || res.Session != nil {
		t.Errorf("second poll = %+v", res)
	}
}

func TestPollUnknownTicket(t *testing.T) {
	env := newAdmissionEnv(t, Options{})
	if _, err := env.controller.Poll(env.ctx, "no-such-ticket"); !errors.Is(err, models.ErrTicketNotFound) {
		t.Errorf("err = %v, want ErrTicketNotFound", err)
	}
}

func TestClaimDeadlineExpiry(t *testing.T) {
	env := newAdmissionEnv(t, Options{MaxActiveSessions: 1, ClaimTTL: time.Nanosecond})

	first := env.initiate(t, "a.bin")
	queued := env.initiate(t, "b.bin")

	if _, err := env.engine.Abort(env.ctx, first.Session.ID); err != nil {
		t.Fatal(err)
	}
	// The ticket is READY with an already-lapsed deadline.
	time.Sleep(time.Millisecond)

	res, err := env.controller.Poll(env.ctx, queued.Ticket)
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if res.Status != TicketExpired {
		t.Fatalf("poll = %+v, want EXPIRED", res)
	}

	// The orphaned session was aborted and its budget released.
	if stats := env.controller.Stats(); stats.ActiveSessions != 0 || stats.TotalUploadBytes != 0 {
		t.Errorf("stats = %+v, want an empty pool", stats)
	}
}

func TestCancel(t *testing.T) {
	env := newAdmissionEnv(t, Options{MaxActiveSessions: 1})

	env.initiate(t, "a.bin")
	queued := env.initiate(t, "b.bin")
	third := env.initiate(t, "c.bin")

	if err := env.controller.Cancel(env.ctx, queued.Ticket); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	res, err := env.controller.Poll(env.ctx, queued.Ticket)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != TicketCancelled {
		t.Errorf("poll after cancel = %+v", res)
	}

	// Cancelling again is a no-op; an unknown id is an error.
	if err := env.controller.Cancel(env.ctx, queued.Ticket); err != nil {
		t.Errorf("second cancel = %v, want nil", err)
	}
	if err := env.controller.Cancel(env.ctx, "ghost"); !errors.Is(err, models.ErrTicketNotFound) {
		t.Errorf("unknown cancel = %v, want ErrTicketNotFound", err)
	}

	// The ticket behind the cancelled one moved up.
	res, err = env.controller.Poll(env.ctx, third.Ticket)
	if err != nil {
		t.Fatal(err)
	}
	if res.Position != 1 {
		t.Errorf("position = %d, want 1 after the cancellation", res.Position)
	}
}

func TestPositionNeverMovesBackwards(t *testing.T) {
	env := newAdmissionEnv(t, Options{MaxActiveSessions: 1})

	env.initiate(t, "a.bin")
	queued := env.initiate(t, "b.bin")

	res, err := env.controller.Poll(env.ctx, queued.Ticket)
	if err != nil {
		t.Fatal(err)
	}
	first := res.Position

	for i := 0; i < 3; i++ {
		res, err = env.controller.Poll(env.ctx, queued.Ticket)
		if err != nil {
			t.Fatal(err)
		}
		if res.Position > first {
			t.Fatalf("position grew from %d to %d", first, res.Position)
		}
	}
}

func TestSweepExpiredTickets(t *testing.T) {
	env := newAdmissionEnv(t, Options{MaxActiveSessions: 1, ClaimTTL: time.Nanosecond})

	first := env.initiate(t, "a.bin")
	queued := env.initiate(t, "b.bin")

	if _, err := env.engine.Abort(env.ctx, first.Session.ID); err != nil {
		t.Fatal(err)
	}
	time.Sleep(time.Millisecond)

	env.controller.SweepExpiredTickets(env.ctx)

	res, err := env.controller.Poll(env.ctx, queued.Ticket)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != TicketExpired {
		t.Errorf("poll after sweep = %+v, want EXPIRED", res)
	}
	if stats := env.controller.Stats(); stats.ActiveSessions != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestFailedPromotionExpiresTicketAndTriesNext(t *testing.T) {
	env := newAdmissionEnv(t, Options{MaxActiveSessions: 1})

	first := env.initiate(t, "a.bin")
	// This ticket's args will fail at promotion time: its folder is gone.
	doomed, err := env.controller.InitiateOrEnqueue(env.ctx, upload.InitiateInput{
		FileName:  "b.bin",
		FolderID:  "ghost",
		TotalSize: admTotalSize,
	})
	if err != nil {
		t.Fatal(err)
	}
	viable := env.initiate(t, "c.bin")

	if _, err := env.engine.Abort(env.ctx, first.Session.ID); err != nil {
		t.Fatal(err)
	}

	res, err := env.controller.Poll(env.ctx, doomed.Ticket)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != TicketExpired {
		t.Errorf("doomed ticket = %+v, want EXPIRED", res)
	}

	// Promotion skipped the failure and opened the next viable session.
	res, err = env.controller.Poll(env.ctx, viable.Ticket)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != TicketActive || res.Session == nil {
		t.Errorf("viable ticket = %+v, want the claimed session", res)
	}
}
