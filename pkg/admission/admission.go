// Package admission gates multipart upload capacity. A fixed budget of
// concurrent sessions and total in-flight bytes admits uploads directly
// while there is headroom and parks the rest on a FIFO ticket queue.
package admission

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mezzofs/mezzofs/internal/logger"
	"github.com/mezzofs/mezzofs/pkg/metastore/models"
	"github.com/mezzofs/mezzofs/pkg/upload"
)

// TicketStatus is the queue ticket lifecycle state.
type TicketStatus string

const (
	TicketWaiting   TicketStatus = "WAITING"
	TicketReady     TicketStatus = "READY"
	TicketActive    TicketStatus = "ACTIVE"
	TicketExpired   TicketStatus = "EXPIRED"
	TicketCancelled TicketStatus = "CANCELLED"
)

// IsTerminal reports whether the status is final.
func (s TicketStatus) IsTerminal() bool {
	return s == TicketActive || s == TicketExpired || s == TicketCancelled
}

// Defaults for the controller options.
const (
	DefaultMaxActiveSessions   = 10
	DefaultMaxTotalUploadBytes = 10 << 30 // 10 GiB in flight
	DefaultClaimTTL            = 5 * time.Minute
	DefaultAvgSessionTime      = time.Minute
)

// Options tunes the controller.
type Options struct {
	// MaxActiveSessions caps concurrently open multipart sessions.
	MaxActiveSessions int

	// MaxTotalUploadBytes caps the declared bytes of open sessions.
	MaxTotalUploadBytes int64

	// ClaimTTL is how long a READY ticket stays claimable.
	ClaimTTL time.Duration

	// AvgSessionTime feeds the estimated-wait heuristic.
	AvgSessionTime time.Duration
}

// Normalize fills zero fields with defaults.
func (o Options) Normalize() Options {
	if o.MaxActiveSessions <= 0 {
		o.MaxActiveSessions = DefaultMaxActiveSessions
	}
	if o.MaxTotalUploadBytes <= 0 {
		o.MaxTotalUploadBytes = DefaultMaxTotalUploadBytes
	}
	if o.ClaimTTL <= 0 {
		o.ClaimTTL = DefaultClaimTTL
	}
	if o.AvgSessionTime <= 0 {
		o.AvgSessionTime = DefaultAvgSessionTime
	}
	return o
}

// Ticket is one queued admission request.
type Ticket struct {
	ID            string               `json:"id"`
	Status        TicketStatus         `json:"status"`
	Args          upload.InitiateInput `json:"-"`
	SessionID     string               `json:"session_id,omitempty"`
	ClaimDeadline time.Time            `json:"claim_deadline,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`

	// bestPosition only ever decreases; the reported position is pinned
	// to it so a poll never sees the ticket move backwards.
	bestPosition int
}

// Result is the outcome of InitiateOrEnqueue or Poll.
type Result struct {
	Status TicketStatus `json:"status"`

	// Session is set when Status is ACTIVE (admitted, session open).
	Session *models.UploadSession `json:"session,omitempty"`

	// Queue fields, set when Status is WAITING.
	Ticket               string `json:"ticket,omitempty"`
	Position             int    `json:"position,omitempty"`
	EstimatedWaitSeconds int    `json:"estimated_wait_seconds,omitempty"`
}

// Controller enforces the admission budget. All state is process-local
// and mutex-guarded; the upload engine calls back on terminal session
// transitions via SessionClosed.
type Controller struct {
	engine *upload.Engine
	opts   Options

	mu       sync.Mutex
	active   map[string]int64 // sessionID -> declared size
	pending  int              // slots reserved while Initiate is in flight
	total    int64
	waiting  *list.List         // of *Ticket, FIFO
	tickets  map[string]*Ticket // all tickets by id, terminal included
	elements map[string]*list.Element
}

// New creates the controller and registers it as the engine's terminal
// notifier.
func New(engine *upload.Engine, opts Options) *Controller {
	c := &Controller{
		engine:   engine,
		opts:     opts.Normalize(),
		active:   make(map[string]int64),
		waiting:  list.New(),
		tickets:  make(map[string]*Ticket),
		elements: make(map[string]*list.Element),
	}
	engine.SetNotifier(c)
	return c
}

// InitiateOrEnqueue opens a session immediately when both caps have
// headroom, otherwise appends a FIFO ticket.
func (c *Controller) InitiateOrEnqueue(ctx context.Context, in upload.InitiateInput) (*Result, error) {
	c.mu.Lock()
	admitted := c.hasHeadroom(in.TotalSize)
	if admitted {
		// Reserve the slot and the bytes before releasing the mutex so
		// concurrent initiators cannot both squeeze into the last slot.
		c.pending++
		c.total += in.TotalSize
	}
	c.mu.Unlock()

	if admitted {
		session, err := c.engine.Initiate(ctx, in)
		if err != nil {
			c.mu.Lock()
			c.pending--
			c.total -= in.TotalSize
			c.mu.Unlock()
			return nil, err
		}
		c.mu.Lock()
		c.pending--
		c.active[session.ID] = session.TotalSize
		c.mu.Unlock()
		return &Result{Status: TicketActive, Session: session}, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	ticket := &Ticket{
		ID:        uuid.New().String(),
		Status:    TicketWaiting,
		Args:      in,
		CreatedAt: time.Now(),
	}
	c.elements[ticket.ID] = c.waiting.PushBack(ticket)
	c.tickets[ticket.ID] = ticket
	ticket.bestPosition = c.waiting.Len()

	logger.InfoCtx(ctx, "upload queued for admission",
		logger.KeyTicket, ticket.ID,
		logger.KeySize, in.TotalSize,
	)
	return c.waitingResult(ticket), nil
}

// hasHeadroom must be called with the mutex held. Sessions reserved but
// not yet opened count against both caps via pending and total.
func (c *Controller) hasHeadroom(size int64) bool {
	return len(c.active)+c.pending < c.opts.MaxActiveSessions &&
		c.total+size <= c.opts.MaxTotalUploadBytes
}

func (c *Controller) waitingResult(t *Ticket) *Result {
	pos := c.position(t)
	return &Result{
		Status:               TicketWaiting,
		Ticket:               t.ID,
		Position:             pos,
		EstimatedWaitSeconds: pos * int(c.opts.AvgSessionTime.Seconds()),
	}
}

// position computes the 1-based queue index, pinned so it never
// increases between polls.
func (c *Controller) position(t *Ticket) int {
	idx := 1
	for e := c.waiting.Front(); e != nil; e = e.Next() {
		if e.Value.(*Ticket) == t {
			break
		}
		idx++
	}
	if idx < t.bestPosition {
		t.bestPosition = idx
	}
	return t.bestPosition
}

// Poll reports a ticket's state. A READY ticket past its claim deadline
// expires here (lazy), releasing its session back to the pool. Claiming
// happens on the first poll that observes READY: the caller receives the
// open session and the ticket goes ACTIVE.
func (c *Controller) Poll(ctx context.Context, ticketID string) (*Result, error) {
	c.mu.Lock()
	t, ok := c.tickets[ticketID]
	if !ok {
		c.mu.Unlock()
		return nil, models.ErrTicketNotFound
	}

	switch t.Status {
	case TicketWaiting:
		res := c.waitingResult(t)
		c.mu.Unlock()
		return res, nil

	case TicketReady:
		if time.Now().After(t.ClaimDeadline) {
			sessionID := t.SessionID
			t.Status = TicketExpired
			c.mu.Unlock()
			c.abortOrphanedSession(ctx, sessionID, t.ID)
			return &Result{Status: TicketExpired, Ticket: t.ID}, nil
		}
		t.Status = TicketActive
		sessionID := t.SessionID
		c.mu.Unlock()

		session, err := c.engine.GetStatus(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		return &Result{Status: TicketActive, Ticket: t.ID, Session: session.Session}, nil

	default:
		status := t.Status
		c.mu.Unlock()
		return &Result{Status: status, Ticket: t.ID}, nil
	}
}

// Cancel withdraws a ticket. Idempotent: cancelling a terminal ticket is
// a no-op, an unknown ticket is an error.
func (c *Controller) Cancel(ctx context.Context, ticketID string) error {
	c.mu.Lock()
	t, ok := c.tickets[ticketID]
	if !ok {
		c.mu.Unlock()
		return models.ErrTicketNotFound
	}
	if t.Status.IsTerminal() {
		c.mu.Unlock()
		return nil
	}

	if e, ok := c.elements[t.ID]; ok {
		c.waiting.Remove(e)
		delete(c.elements, t.ID)
	}
	wasReady := t.Status == TicketReady
	sessionID := t.SessionID
	t.Status = TicketCancelled
	c.mu.Unlock()

	if wasReady {
		c.abortOrphanedSession(ctx, sessionID, t.ID)
	}
	logger.InfoCtx(ctx, "admission ticket cancelled", logger.KeyTicket, ticketID)
	return nil
}

// SessionClosed implements upload.Notifier: a terminal session releases
// its budget and the head ticket gets its shot.
func (c *Controller) SessionClosed(ctx context.Context, session *models.UploadSession) {
	c.mu.Lock()
	if size, ok := c.active[session.ID]; ok {
		delete(c.active, session.ID)
		c.total -= size
	}
	c.mu.Unlock()

	c.promoteNext(ctx)
}

// promoteNext pops the head ticket and opens its session, marking the
// ticket READY with a claim deadline. If the budget no longer fits (a
// direct initiate may have raced in) the ticket goes back to the head,
// keeping its position. Session creation failures fail the ticket's
// args permanently: the ticket expires rather than wedging the queue.
func (c *Controller) promoteNext(ctx context.Context) {
	for {
		c.mu.Lock()
		front := c.waiting.Front()
		if front == nil {
			c.mu.Unlock()
			return
		}
		t := front.Value.(*Ticket)
		if !c.hasHeadroom(t.Args.TotalSize) {
			c.mu.Unlock()
			return
		}
		c.waiting.Remove(front)
		delete(c.elements, t.ID)
		c.pending++
		c.total += t.Args.TotalSize
		c.mu.Unlock()

		session, err := c.engine.Initiate(ctx, t.Args)

		c.mu.Lock()
		c.pending--
		if err != nil {
			c.total -= t.Args.TotalSize
			t.Status = TicketExpired
			c.mu.Unlock()
			logger.Warn("queued upload promotion failed",
				logger.KeyTicket, t.ID,
				logger.KeyError, err.Error(),
			)
			continue
		}
		c.active[session.ID] = session.TotalSize
		t.Status = TicketReady
		t.SessionID = session.ID
		t.ClaimDeadline = time.Now().Add(c.opts.ClaimTTL)
		c.mu.Unlock()

		logger.Info("queued upload promoted",
			logger.KeyTicket, t.ID,
			logger.KeySessionID, session.ID,
		)
		return
	}
}

// abortOrphanedSession closes the session behind an expired or cancelled
// READY ticket so its budget returns to the pool. The engine's terminal
// notification then triggers the next promotion.
func (c *Controller) abortOrphanedSession(ctx context.Context, sessionID, ticketID string) {
	if sessionID == "" {
		return
	}
	if _, err := c.engine.Abort(ctx, sessionID); err != nil &&
		!errors.Is(err, models.ErrUploadSessionTerminal) &&
		!errors.Is(err, models.ErrUploadSessionExpired) {
		logger.Warn("orphaned session abort failed",
			logger.KeyTicket, ticketID,
			logger.KeySessionID, sessionID,
			logger.KeyError, err.Error(),
		)
	}
}

// SweepExpiredTickets applies lazy claim-deadline expiry to READY
// tickets. Run periodically alongside the session expiry sweep.
func (c *Controller) SweepExpiredTickets(ctx context.Context) {
	now := time.Now()

	c.mu.Lock()
	var orphaned []*Ticket
	for _, t := range c.tickets {
		if t.Status == TicketReady && now.After(t.ClaimDeadline) {
			t.Status = TicketExpired
			orphaned = append(orphaned, t)
		}
	}
	c.mu.Unlock()

	for _, t := range orphaned {
		c.abortOrphanedSession(ctx, t.SessionID, t.ID)
	}
}

// Snapshot reports the current budget usage for metrics.
type Snapshot struct {
	ActiveSessions   int
	TotalUploadBytes int64
	WaitingTickets   int
}

// Stats returns a point-in-time view of the controller.
func (c *Controller) Stats() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		ActiveSessions:   len(c.active),
		TotalUploadBytes: c.total,
		WaitingTickets:   c.waiting.Len(),
	}
}
