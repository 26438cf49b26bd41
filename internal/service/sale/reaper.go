package sale

import (
	"context"
	"sync"
	"time"

	"github.com/moonramp/moonramp/internal/hashid"
	"github.com/moonramp/moonramp/internal/model"
	"github.com/moonramp/moonramp/internal/store"
)

// reapInterval is how often the reaper scans for expired invoices (spec
// §4.4: "a background loop ... enforces the expiry").
const reapInterval = 30 * time.Second

// reapBatchSize bounds how many expired invoices one sweep transitions,
// so a large backlog doesn't hold the reap tick open indefinitely.
const reapBatchSize = 200

// ErrSink receives errors the reaper can't otherwise surface; wired to a
// logger at boot. May be nil.
type ErrSink func(error)

// Reaper transitions Pending invoices past their expires_at to Expired,
// one row lock at a time so it never races a concurrent capture() (spec
// §4.4, §5: the same row-lock discipline as capture).
type Reaper struct {
	store    *store.Store
	errs     ErrSink
	interval time.Duration

	wg   sync.WaitGroup
	done chan struct{}
}

func NewReaper(st *store.Store, errs ErrSink) *Reaper {
	return &Reaper{store: st, errs: errs, interval: reapInterval, done: make(chan struct{})}
}

// Start launches the reap loop. Call Stop on shutdown.
func (r *Reaper) Start() {
	r.wg.Add(1)
	go r.run()
}

// Stop ends the reap loop and waits for it to exit.
func (r *Reaper) Stop() {
	close(r.done)
	r.wg.Wait()
}

func (r *Reaper) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.reapOnce(context.Background())
		case <-r.done:
			return
		}
	}
}

func (r *Reaper) reapOnce(ctx context.Context) {
	expired, err := r.store.ExpiredPendingInvoices(ctx, time.Now(), reapBatchSize)
	if err != nil {
		r.report(err)
		return
	}
	for _, inv := range expired {
		if err := r.reapOne(ctx, inv.Hash); err != nil {
			r.report(err)
		}
	}
}

// reapOne re-locks the invoice before transitioning it, so a capture()
// that raced in after the scan already moved it out of Pending loses
// nothing: the re-check under the lock just skips it.
func (r *Reaper) reapOne(ctx context.Context, hash hashid.Hash) error {
	return r.store.Tx(ctx, func(ctx context.Context, q store.Querier) error {
		locked, err := r.store.LockInvoiceForUpdate(ctx, q, hash)
		if err != nil {
			return err
		}
		if locked.Status != model.InvoiceStatusPending {
			return nil
		}
		return r.store.UpdateInvoiceStatus(ctx, q, hash, model.InvoiceStatusExpired, time.Now())
	})
}

func (r *Reaper) report(err error) {
	if r.errs != nil {
		r.errs(err)
	}
}
