// Package reconcile keeps the client-side view of a user's appointments
// consistent with the clinic backend.
//
// A Cache shows changes optimistically and refetches to converge. Responses
// are ordered by a per-key sequence number so that the newest request wins
// whatever order responses arrive in. Every operation runs on a goroutine tied
// to the cache's lifetime and returns a *Task.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/hackgods/clinic-appointment-client/internal/appointment"
	"github.com/hackgods/clinic-appointment-client/internal/logger"
)

var ErrDestroyed = errors.New("cache destroyed")

// Remote is the part of the clinic backend the cache reads and writes.
type Remote interface {
	ListAppointments(ctx context.Context, filter appointment.Filter) ([]appointment.Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id int64, status appointment.Status) error
	GetStats(ctx context.Context) (appointment.Stats, error)
}

const (
	keyList  = "list"
	keyStats = "stats"
)

type mutation struct {
	seq    uint64
	status appointment.Status
	prev   appointment.Status

	// committed is set once the server accepted status. Lists requested up
	// to listSeq were issued before that and may still carry the old status.
	committed bool
	listSeq   uint64
}

// request places one read in its key's order. gen is the mutation
// generation it was issued in; reads never share a backend call across
// generations.
type request struct {
	seq uint64
	gen uint64
}

type Cache struct {
	remote   Remote
	log      *logrus.Entry
	retry    RetryPolicy
	rollback bool

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	flights singleflight.Group

	mu      sync.Mutex
	state   State
	sel     Selection
	entries []Entry
	pending map[int64]*mutation
	stats   appointment.Stats
	lastErr error
	version uint64
	issued  map[string]uint64
	applied map[string]uint64
	mutSeq  uint64
	gen     uint64
}

type Option func(*Cache)

func WithLogger(l *logrus.Entry) Option {
	return func(c *Cache) { c.log = l }
}

func WithRetry(p RetryPolicy) Option {
	return func(c *Cache) { c.retry = p }
}

// WithRollbackOnFailure restores an entry's previous status when its status
// update fails. Without it the requested status stays shown, tagged
// SyncFailed, until the next list replaces it.
func WithRollbackOnFailure() Option {
	return func(c *Cache) { c.rollback = true }
}

func New(r Remote, opts ...Option) *Cache {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{
		remote:  r,
		log:     logger.Discard(),
		retry:   DefaultRetry,
		ctx:     ctx,
		cancel:  cancel,
		sel:     Selection{Tab: appointment.TabAll},
		pending: make(map[int64]*mutation),
		issued:  make(map[string]uint64),
		applied: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Cache) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		State:        c.state,
		Selection:    c.sel,
		Filter:       c.sel.Filter(),
		Appointments: make([]Entry, len(c.entries)),
		Stats:        c.stats,
		Err:          c.lastErr,
		Version:      c.version,
	}
	copy(s.Appointments, c.entries)
	if c.lastErr != nil {
		s.LastError = c.lastErr.Error()
	}
	return s
}

// Load fetches the list for the current selection and the stats in parallel.
// A failed first load puts the cache back in StateEmpty.
func (c *Cache) Load() *Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateDestroyed {
		return doneTask(ErrDestroyed)
	}
	if c.state == StateEmpty {
		c.state = StateLoading
		c.version++
	}
	return c.fetchAllLocked(func(err error) {
		if err != nil && c.state == StateLoading {
			c.state = StateEmpty
			c.version++
		}
	})
}

// Refresh refetches the list and stats without touching the selection.
func (c *Cache) Refresh() *Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateDestroyed {
		return doneTask(ErrDestroyed)
	}
	return c.fetchAllLocked(nil)
}

func (c *Cache) fetchAllLocked(after func(error)) *Task {
	filter := c.sel.Filter()
	listReq := c.nextLocked(keyList)
	statsReq := c.nextLocked(keyStats)

	return c.spawnLocked(func(ctx context.Context) error {
		var g errgroup.Group
		g.Go(func() error { return c.fetchList(ctx, filter, listReq) })
		g.Go(func() error { return c.fetchStats(ctx, statsReq) })
		err := g.Wait()

		if after != nil {
			c.mu.Lock()
			if c.state != StateDestroyed {
				after(err)
			}
			c.mu.Unlock()
		}
		return err
	})
}

// SelectTab switches the tab, keeping the date, and replaces the list.
func (c *Cache) SelectTab(tab appointment.Tab) *Task {
	return c.reselect(func(s *Selection) error {
		s.Tab = tab
		return nil
	})
}

// SelectDate narrows the list to date, keeping the tab. An empty date clears
// the date filter.
func (c *Cache) SelectDate(date string) *Task {
	return c.reselect(func(s *Selection) error {
		if date != "" {
			if err := appointment.ValidateDate(date); err != nil {
				return err
			}
		}
		s.Date = date
		return nil
	})
}

func (c *Cache) ClearDate() *Task {
	return c.SelectDate("")
}

func (c *Cache) reselect(change func(*Selection) error) *Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateDestroyed {
		return doneTask(ErrDestroyed)
	}

	sel := c.sel
	if err := change(&sel); err != nil {
		return doneTask(err)
	}
	c.sel = sel
	c.version++

	filter := sel.Filter()
	req := c.nextLocked(keyList)
	c.log.WithFields(logrus.Fields{"filter": filter.String(), "seq": req.seq}).Debug("selection changed")

	return c.spawnLocked(func(ctx context.Context) error {
		return c.fetchList(ctx, filter, req)
	})
}

// SetStatus shows status on the entry right away and sends the update. On
// success only the stats are refetched.
func (c *Cache) SetStatus(id int64, status appointment.Status) *Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateDestroyed {
		return doneTask(ErrDestroyed)
	}

	c.mutSeq++
	m := &mutation{seq: c.mutSeq, status: status}
	if i := c.indexLocked(id); i >= 0 {
		m.prev = c.entries[i].Status
		c.entries[i].Status = status
		c.entries[i].Sync = SyncPending
	}
	c.pending[id] = m
	c.version++

	log := c.log.WithFields(logrus.Fields{"appointment_id": id, "status": status})
	log.Debug("status change applied locally")

	return c.spawnLocked(func(ctx context.Context) error {
		err := c.remote.UpdateAppointmentStatus(ctx, id, status)
		statsReq, ok := c.settle(id, m, err)
		if err != nil {
			log.WithError(err).Warn("status update failed")
			return fmt.Errorf("update status of appointment %d: %w", id, err)
		}
		if !ok {
			return nil
		}
		return c.fetchStats(ctx, statsReq)
	})
}

// settle records the outcome of m. It reports whether the cache is still
// alive and, after a success, the request to use for the stats refetch.
//
// An accepted change stays in c.pending as committed so that lists requested
// before the server applied it cannot bring the old status back.
func (c *Cache) settle(id int64, m *mutation, err error) (request, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateDestroyed {
		return request{}, false
	}

	latest := c.pending[id] == m
	if latest {
		if err == nil {
			m.committed = true
			m.listSeq = c.issued[keyList]
		} else {
			delete(c.pending, id)
		}
	}

	if i := c.indexLocked(id); i >= 0 && latest {
		e := &c.entries[i]
		switch {
		case err == nil:
			e.Sync = SyncCommitted
		case c.rollback && e.Status == m.status && m.prev != "":
			e.Status = m.prev
			e.Sync = SyncFailed
		default:
			e.Sync = SyncFailed
		}
	}
	c.version++

	if err != nil {
		c.lastErr = err
		return request{}, true
	}
	c.gen++
	return c.nextLocked(keyStats), true
}

// AddCreated shows a freshly created appointment, then refetches the stats and
// the unfiltered list. The selection is reset to every appointment so that it
// matches what is shown.
func (c *Cache) AddCreated(a appointment.Appointment) *Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateDestroyed {
		return doneTask(ErrDestroyed)
	}

	if c.indexLocked(a.ID) < 0 {
		c.entries = append(c.entries, Entry{Appointment: a, Sync: SyncCommitted})
	}
	c.sel = Selection{Tab: appointment.TabAll}
	c.version++
	c.gen++

	filter := c.sel.Filter()
	statsReq := c.nextLocked(keyStats)
	listReq := c.nextLocked(keyList)

	c.log.WithField("appointment_id", a.ID).Debug("created appointment added locally")

	return c.spawnLocked(func(ctx context.Context) error {
		statsErr := c.fetchStats(ctx, statsReq)
		listErr := c.fetchList(ctx, filter, listReq)
		return errors.Join(statsErr, listErr)
	})
}

// Destroy cancels in-flight work, waits for it to stop and drops all data.
// Every later operation fails with ErrDestroyed.
func (c *Cache) Destroy() {
	c.mu.Lock()
	if c.state == StateDestroyed {
		c.mu.Unlock()
		return
	}
	c.state = StateDestroyed
	c.version++
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()

	c.mu.Lock()
	c.entries = nil
	c.pending = make(map[int64]*mutation)
	c.stats = appointment.Stats{}
	c.lastErr = nil
	c.mu.Unlock()
}

func (c *Cache) fetchList(ctx context.Context, filter appointment.Filter, req request) error {
	appts, err := c.readList(ctx, filter, req.gen)
	seq := req.seq

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateDestroyed {
		return ErrDestroyed
	}

	if err != nil {
		if !c.staleLocked(keyList, seq) {
			c.lastErr = err
			c.version++
		}
		return fmt.Errorf("list appointments (%s): %w", filter, err)
	}
	if c.staleLocked(keyList, seq) {
		c.log.WithFields(logrus.Fields{"filter": filter.String(), "seq": seq}).Debug("dropping stale list")
		return nil
	}

	c.applied[keyList] = seq
	c.entries = c.overlayLocked(appts, seq)
	c.lastErr = nil
	c.state = StateReady
	c.version++
	return nil
}

func (c *Cache) fetchStats(ctx context.Context, req request) error {
	stats, err := c.readStats(ctx, req.gen)
	seq := req.seq

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateDestroyed {
		return ErrDestroyed
	}

	if err != nil {
		if !c.staleLocked(keyStats, seq) {
			c.lastErr = err
			c.version++
		}
		return fmt.Errorf("get stats: %w", err)
	}
	if c.staleLocked(keyStats, seq) {
		c.log.WithField("seq", seq).Debug("dropping stale stats")
		return nil
	}

	c.applied[keyStats] = seq
	c.stats = stats
	c.version++
	return nil
}

// readList shares one backend call between concurrent reads of the same
// filter issued in the same generation.
func (c *Cache) readList(ctx context.Context, filter appointment.Filter, gen uint64) ([]appointment.Appointment, error) {
	v, err, _ := c.flights.Do(fmt.Sprintf("%s:%d:%s", keyList, gen, filter.Key()), func() (any, error) {
		return retryRead(ctx, c.retry, c.log, keyList, func(ctx context.Context) ([]appointment.Appointment, error) {
			return c.remote.ListAppointments(ctx, filter)
		})
	})
	if err != nil {
		return nil, err
	}
	return v.([]appointment.Appointment), nil
}

func (c *Cache) readStats(ctx context.Context, gen uint64) (appointment.Stats, error) {
	v, err, _ := c.flights.Do(fmt.Sprintf("%s:%d", keyStats, gen), func() (any, error) {
		return retryRead(ctx, c.retry, c.log, keyStats, c.remote.GetStats)
	})
	if err != nil {
		return appointment.Stats{}, err
	}
	return v.(appointment.Stats), nil
}

// overlayLocked turns the list answering request seq into entries. Entries
// whose update is still in flight keep the requested status. Accepted updates
// are kept only over lists requested before the server accepted them, and are
// dropped once a newer list arrives.
func (c *Cache) overlayLocked(appts []appointment.Appointment, seq uint64) []Entry {
	for id, m := range c.pending {
		if m.committed && seq > m.listSeq {
			delete(c.pending, id)
		}
	}

	out := make([]Entry, len(appts))
	for i, a := range appts {
		out[i] = Entry{Appointment: a}
		m, ok := c.pending[a.ID]
		switch {
		case !ok:
		case m.committed:
			out[i].Status = m.status
			out[i].Sync = SyncCommitted
		default:
			if m.prev == "" {
				m.prev = a.Status
			}
			out[i].Status = m.status
			out[i].Sync = SyncPending
		}
	}
	return out
}

// staleLocked reports whether a newer request for key has been issued since
// seq.
func (c *Cache) staleLocked(key string, seq uint64) bool {
	return seq < c.issued[key] || seq <= c.applied[key]
}

func (c *Cache) nextLocked(key string) request {
	c.issued[key]++
	return request{seq: c.issued[key], gen: c.gen}
}

func (c *Cache) indexLocked(id int64) int {
	for i := range c.entries {
		if c.entries[i].ID == id {
			return i
		}
	}
	return -1
}

// spawnLocked runs fn on the cache's lifetime context. c.mu must be held so
// that Destroy cannot start waiting before the goroutine is counted.
func (c *Cache) spawnLocked(fn func(ctx context.Context) error) *Task {
	t := newTask()
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		t.finish(fn(c.ctx))
	}()
	return t
}
