package syncstore

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ariefcatur/atee-topup/internal/localstore"
	"github.com/ariefcatur/atee-topup/internal/remote"
)

// outboxCollection is persisted next to the cached collections as atee_outbox.
const outboxCollection = "outbox"

type Op string

const (
	OpUpsert Op = "upsert"
	OpMerge  Op = "merge"
)

type WriteStatus string

const (
	WritePending   WriteStatus = "pending"
	WriteConfirmed WriteStatus = "confirmed"
	WriteFailed    WriteStatus = "failed"
)

// Entry is one queued remote write. Body is the full document for upserts
// and the field patch for merges.
type Entry struct {
	ID            string          `json:"id"`
	Collection    string          `json:"collection"`
	DocID         string          `json:"docId"`
	Op            Op              `json:"op"`
	Body          json.RawMessage `json:"body"`
	Status        WriteStatus     `json:"status"`
	Attempts      int             `json:"attempts"`
	LastError     string          `json:"lastError,omitempty"`
	CreatedAt     int64           `json:"createdAt"`
	UpdatedAt     int64           `json:"updatedAt"`
	NextAttemptAt int64           `json:"nextAttemptAt,omitempty"`
}

type OutboxConfig struct {
	SweepInterval  time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// Retain caps how many confirmed/failed entries are kept for status lookups.
	Retain int
}

func DefaultOutboxConfig() OutboxConfig {
	return OutboxConfig{
		SweepInterval:  10 * time.Second,
		MaxAttempts:    8,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     5 * time.Minute,
		Retain:         200,
	}
}

// Outbox delivers writes to the remote store in FIFO order per document.
type Outbox struct {
	local  localstore.Store
	remote remote.Store
	cfg    OutboxConfig
	now    func() time.Time

	mu      sync.Mutex
	entries []Entry
	loaded  bool

	flushMu sync.Mutex
	kick    chan struct{}

	scheduler gocron.Scheduler
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func newOutbox(local localstore.Store, rem remote.Store, cfg OutboxConfig, now func() time.Time) *Outbox {
	def := DefaultOutboxConfig()
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}
	if cfg.Retain <= 0 {
		cfg.Retain = def.Retain
	}
	return &Outbox{
		local:  local,
		remote: rem,
		cfg:    cfg,
		now:    now,
		kick:   make(chan struct{}, 1),
	}
}

func (o *Outbox) Start(ctx context.Context) error {
	o.mu.Lock()
	o.loadLocked(ctx)
	o.mu.Unlock()

	s, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	_, err = s.NewJob(
		gocron.DurationJob(o.cfg.SweepInterval),
		gocron.NewTask(func() { o.Flush(runCtx) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		cancel()
		_ = s.Shutdown()
		return err
	}
	o.scheduler = s
	o.cancel = cancel
	s.Start()

	o.wg.Add(1)
	go o.run(runCtx)
	o.signal()
	return nil
}

func (o *Outbox) Stop() error {
	if o.cancel == nil {
		return nil
	}
	o.cancel()
	err := o.scheduler.Shutdown()
	o.wg.Wait()
	return err
}

// run flushes right after each enqueue.
func (o *Outbox) run(ctx context.Context) {
	defer o.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-o.kick:
			o.Flush(ctx)
		}
	}
}

func (o *Outbox) signal() {
	select {
	case o.kick <- struct{}{}:
	default:
	}
}

func (o *Outbox) Enqueue(ctx context.Context, e Entry) Entry {
	now := o.now().UnixMilli()
	e.ID = uuid.NewString()
	e.Status = WritePending
	e.CreatedAt = now
	e.UpdatedAt = now

	o.mu.Lock()
	o.loadLocked(ctx)
	o.entries = append(o.entries, e)
	o.persistLocked(ctx)
	o.mu.Unlock()

	o.signal()
	return e
}

// Flush attempts every due entry once and returns how many were confirmed.
// Once an entry fails, later entries for the same document wait.
func (o *Outbox) Flush(ctx context.Context) int {
	o.flushMu.Lock()
	defer o.flushMu.Unlock()

	blocked := make(map[string]bool)
	confirmed := 0
	for _, e := range o.due(ctx) {
		if ctx.Err() != nil {
			break
		}
		key := e.Collection + "/" + e.DocID
		if blocked[key] {
			continue
		}
		err := o.deliver(ctx, e)
		if err != nil && ctx.Err() != nil {
			break
		}
		o.settle(ctx, e.ID, err)
		if err != nil {
			blocked[key] = true
			continue
		}
		confirmed++
	}
	return confirmed
}

func (o *Outbox) Get(ctx context.Context, id string) (Entry, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.loadLocked(ctx)
	if i := o.indexLocked(id); i >= 0 {
		return o.entries[i], true
	}
	return Entry{}, false
}

func (o *Outbox) Pending(ctx context.Context) []Entry {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.loadLocked(ctx)
	out := []Entry{}
	for _, e := range o.entries {
		if e.Status == WritePending {
			out = append(out, e)
		}
	}
	return out
}

// pendingFor returns the undelivered entries of one collection, oldest first.
func (o *Outbox) pendingFor(ctx context.Context, collection string) []Entry {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.loadLocked(ctx)
	var out []Entry
	for _, e := range o.entries {
		if e.Status == WritePending && e.Collection == collection {
			out = append(out, e)
		}
	}
	return out
}

func (o *Outbox) due(ctx context.Context) []Entry {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.loadLocked(ctx)

	now := o.now().UnixMilli()
	waiting := make(map[string]bool)
	var out []Entry
	for _, e := range o.entries {
		if e.Status != WritePending {
			continue
		}
		key := e.Collection + "/" + e.DocID
		if waiting[key] {
			continue
		}
		if e.NextAttemptAt > now {
			waiting[key] = true
			continue
		}
		out = append(out, e)
	}
	return out
}

func (o *Outbox) deliver(ctx context.Context, e Entry) error {
	switch e.Op {
	case OpMerge:
		return o.remote.Merge(ctx, e.Collection, e.DocID, e.Body)
	default:
		return o.remote.Upsert(ctx, e.Collection, e.DocID, e.Body)
	}
}

func (o *Outbox) settle(ctx context.Context, id string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	i := o.indexLocked(id)
	if i < 0 {
		return
	}
	e := &o.entries[i]
	now := o.now()
	e.UpdatedAt = now.UnixMilli()

	if err == nil {
		e.Status = WriteConfirmed
		e.LastError = ""
		e.NextAttemptAt = 0
	} else {
		e.Attempts++
		e.LastError = err.Error()
		if errors.Is(err, remote.ErrNotFound) || e.Attempts >= o.cfg.MaxAttempts {
			e.Status = WriteFailed
			log.Error().Err(err).Str("component", "outbox").Str("collection", e.Collection).
				Str("id", e.DocID).Int("attempts", e.Attempts).Msg("remote write abandoned")
		} else {
			delay := o.retryDelay(e.Attempts)
			e.NextAttemptAt = now.Add(delay).UnixMilli()
			log.Warn().Err(err).Str("component", "outbox").Str("collection", e.Collection).
				Str("id", e.DocID).Int("attempts", e.Attempts).Dur("retry_in", delay).Msg("remote write failed")
		}
	}

	o.pruneLocked()
	o.persistLocked(ctx)
}

// retryDelay is the wait after the given number of failed attempts.
func (o *Outbox) retryDelay(attempts int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.cfg.InitialBackoff
	b.MaxInterval = o.cfg.MaxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	d := b.InitialInterval
	for i := 0; i < attempts; i++ {
		d = b.NextBackOff()
	}
	return d
}

// pruneLocked drops the oldest settled entries beyond Retain.
func (o *Outbox) pruneLocked() {
	settled := 0
	for _, e := range o.entries {
		if e.Status != WritePending {
			settled++
		}
	}
	drop := settled - o.cfg.Retain
	if drop <= 0 {
		return
	}
	kept := o.entries[:0]
	for _, e := range o.entries {
		if drop > 0 && e.Status != WritePending {
			drop--
			continue
		}
		kept = append(kept, e)
	}
	o.entries = kept
}

func (o *Outbox) indexLocked(id string) int {
	for i := range o.entries {
		if o.entries[i].ID == id {
			return i
		}
	}
	return -1
}

func (o *Outbox) loadLocked(ctx context.Context) {
	if o.loaded {
		return
	}
	raw, ok, err := o.local.Get(ctx, localstore.Key(outboxCollection))
	if err != nil {
		log.Warn().Err(err).Str("component", "outbox").Msg("load outbox failed")
		return
	}
	o.loaded = true
	if !ok {
		return
	}
	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		log.Warn().Err(err).Str("component", "outbox").Msg("stored outbox unparseable, starting empty")
		return
	}
	// entries enqueued before the load stay after the stored ones
	o.entries = append(entries, o.entries...)
}

func (o *Outbox) persistLocked(ctx context.Context) {
	raw, err := json.Marshal(o.entries)
	if err != nil {
		log.Error().Err(err).Str("component", "outbox").Msg("encode outbox")
		return
	}
	if err := o.local.Set(context.WithoutCancel(ctx), localstore.Key(outboxCollection), raw); err != nil {
		log.Warn().Err(err).Str("component", "outbox").Msg("persist outbox failed")
	}
}
