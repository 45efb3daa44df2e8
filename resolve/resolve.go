// Package resolve loads a resource and, for kinds that belong to a
// family, the family resource the loaded one points at.
package resolve

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/goforj/rescache"
	"github.com/goforj/rescache/notify"
	"github.com/goforj/rescache/reference"
	"github.com/goforj/rescache/registry"
	"github.com/goforj/rescache/transport"
	"github.com/goforj/rescache/value"
)

// Resolver opens resolution contexts against a query cache.
type Resolver struct {
	qc       *rescache.QueryCache
	reg      *registry.Registry
	codec    *reference.Codec
	notifier notify.Notifier
	logger   *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithNotifier sets where fetch failures are reported. Default notify.Nop.
func WithNotifier(n notify.Notifier) Option {
	return func(r *Resolver) { r.notifier = n }
}

// WithCodec resolves family ids through codec, so its logger reports
// unextractable references.
func WithCodec(c *reference.Codec) Option {
	return func(r *Resolver) { r.codec = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// New returns a resolver reading kinds from reg.
func New(qc *rescache.QueryCache, reg *registry.Registry, opts ...Option) *Resolver {
	r := &Resolver{qc: qc, reg: reg, notifier: notify.Nop, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// QueryKey is the cache key of one resource.
func QueryKey(key reference.LookupKey, id string) rescache.Key {
	return rescache.Key{string(key), id}
}

func (r *Resolver) idOf(ref value.Value) (string, error) {
	if r.codec != nil {
		return r.codec.IDOf(ref)
	}
	return reference.IDOf(ref)
}

// Open starts resolving key/id. The returned context must be closed.
//
// Example:
//
//	rc, err := resolver.Open(ctx, "cell", "42")
//	if err != nil {
//		return err
//	}
//	defer rc.Close()
//	res, _ := rc.Wait(ctx)
//	fmt.Println(res.Status, res.FamilyStatus)
func (r *Resolver) Open(ctx context.Context, key reference.LookupKey, id string) (*Context, error) {
	entry, ok := r.reg.Lookup(key)
	if !ok {
		err := &registry.UnknownKeyError{Key: key}
		r.logger.Error("resolve: cannot open context", "key", string(key), "id", id, "error", err)
		return nil, err
	}

	cctx, cancel := context.WithCancel(ctx)
	c := &Context{
		r:       r,
		entry:   entry,
		id:      id,
		ctx:     cctx,
		cancel:  cancel,
		changes: make(chan struct{}, 1),
		rewire:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	c.primary = rescache.Subscribe(cctx, r.qc, QueryKey(key, id), r.fetcher(entry, id),
		rescache.WithSelect(entry.Select))
	c.reconcile()
	go c.run()
	return c, nil
}

// fetcher loads one resource through the kind's accessor and reports
// failures to the notifier.
func (r *Resolver) fetcher(entry registry.Entry, id string) func(context.Context) (*value.Object, error) {
	return func(ctx context.Context) (*value.Object, error) {
		a, err := r.reg.Accessor(entry.Key)
		if err != nil {
			r.logger.Error("resolve: no accessor", "key", string(entry.Key), "error", err)
			return nil, err
		}
		obj, err := a.Fetch(ctx, id)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				r.logger.Warn("resolve: fetch failed", "key", string(entry.Key), "id", id, "error", err)
				r.notifier.Post(ctx, notify.Errorf("Error retrieving %s/%s %s", entry.DisplayName, id, transport.Describe(err)))
			}
			return nil, err
		}
		if obj == nil {
			obj = value.NewObject()
		}
		return obj, nil
	}
}

// Result is a snapshot of a resolution context.
type Result struct {
	Resource *value.Object
	Status   rescache.Status
	Err      error
	// Fetching is true while either lane has a request in flight.
	Fetching bool

	// FamilyLane reports whether a family subscription exists. Without
	// one the family fields are zero and FamilyStatus is StatusIdle.
	FamilyLane   bool
	FamilyID     string
	Family       *value.Object
	FamilyStatus rescache.Status
	FamilyErr    error
}

// Context tracks one resource and its family.
type Context struct {
	r     *Resolver
	entry registry.Entry
	id    string

	ctx    context.Context
	cancel context.CancelFunc

	primary *rescache.Subscription[*value.Object]

	mu       sync.Mutex
	family   *rescache.Subscription[*value.Object]
	familyID string
	closed   bool

	changes chan struct{}
	rewire  chan struct{}
	done    chan struct{}
}

// Key returns the kind being resolved.
func (c *Context) Key() reference.LookupKey { return c.entry.Key }

// ID returns the id being resolved.
func (c *Context) ID() string { return c.id }

// Changes signals whenever Result may differ. Signals coalesce.
func (c *Context) Changes() <-chan struct{} { return c.changes }

// Result returns the current state of both lanes. The family fields are
// judged against the same primary snapshot, so a lane the primary no longer
// supports is hidden before run tears it down.
func (c *Context) Result() Result {
	st := c.primary.State()
	res := Result{
		Resource: st.Data,
		Status:   st.Status,
		Err:      st.Err,
		Fetching: st.Fetching,
	}
	c.mu.Lock()
	fam, famID, closed := c.family, c.familyID, c.closed
	c.mu.Unlock()
	id, want, idErr := c.familyTarget(st)
	if idErr != nil {
		res.FamilyErr = idErr
		return res
	}
	if want && fam != nil && famID == id {
		fst := fam.State()
		res.FamilyLane = true
		res.FamilyID = famID
		res.Family = fst.Data
		res.FamilyStatus = fst.Status
		res.FamilyErr = fst.Err
		res.Fetching = res.Fetching || fst.Fetching
	} else if want && !closed {
		// lane for this snapshot not open yet
		res.Fetching = true
	}
	return res
}

// Wait blocks until both lanes have settled.
func (c *Context) Wait(ctx context.Context) (Result, error) {
	for {
		if _, err := c.primary.Wait(ctx); err != nil {
			return c.Result(), err
		}
		c.reconcile()

		c.mu.Lock()
		fam, closed := c.family, c.closed
		c.mu.Unlock()
		if closed {
			return c.Result(), rescache.ErrSubscriptionClosed
		}
		if fam != nil {
			_, err := fam.Wait(ctx)
			if errors.Is(err, rescache.ErrSubscriptionClosed) {
				// replaced while waiting
				continue
			}
			if err != nil {
				return c.Result(), err
			}
		}
		if res := c.Result(); !res.Fetching {
			return res, nil
		}
	}
}

// Refetch reloads the resource; the family lane follows.
func (c *Context) Refetch() { c.primary.Refetch() }

// Close stops both lanes. Responses arriving afterwards are dropped.
func (c *Context) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	fam := c.family
	c.family = nil
	close(c.done)
	c.mu.Unlock()

	if fam != nil {
		fam.Close()
	}
	c.primary.Close()
	c.cancel()
}

func (c *Context) run() {
	for {
		c.mu.Lock()
		var famChanges <-chan struct{}
		if c.family != nil {
			famChanges = c.family.Changes()
		}
		c.mu.Unlock()

		select {
		case <-c.done:
			return
		case <-c.primary.Changes():
			c.reconcile()
		case <-famChanges:
		case <-c.rewire:
		}
		c.signal()
	}
}

func (c *Context) signal() {
	select {
	case c.changes <- struct{}{}:
	default:
	}
}

// familyTarget returns the family id the primary snapshot st points at.
// ok is false when no family lane should exist.
func (c *Context) familyTarget(st rescache.State[*value.Object]) (id string, ok bool, err error) {
	if !c.entry.HasFamily() {
		return "", false, nil
	}
	if st.Status != rescache.StatusReady || !st.HasData || st.Data == nil {
		return "", false, nil
	}
	raw, present := st.Data.Get(c.entry.FamilyFieldName())
	if !present || raw == nil || raw == "" {
		return "", false, nil
	}
	id, err = c.r.idOf(raw)
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

// reconcile opens, replaces or closes the family lane to match the
// primary's current state.
func (c *Context) reconcile() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	// read under mu so concurrent reconciles apply snapshots in order
	id, want, _ := c.familyTarget(c.primary.State())
	if want && c.family != nil && c.familyID == id {
		c.mu.Unlock()
		return
	}
	old := c.family
	c.family, c.familyID = nil, ""
	if want {
		c.family = rescache.Subscribe(c.ctx, c.r.qc, QueryKey(c.entry.Family, id), c.r.familyFetcher(c.entry.Family, id),
			rescache.WithSelect(c.r.familySelector(c.entry.Family)))
		c.familyID = id
	}
	changed := old != nil || c.family != nil
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}
	if changed {
		select {
		case c.rewire <- struct{}{}:
		default:
		}
	}
}

func (r *Resolver) familyFetcher(key reference.LookupKey, id string) func(context.Context) (*value.Object, error) {
	entry, ok := r.reg.Lookup(key)
	if !ok {
		return func(context.Context) (*value.Object, error) {
			return nil, &registry.UnknownKeyError{Key: key}
		}
	}
	return r.fetcher(entry, id)
}

func (r *Resolver) familySelector(key reference.LookupKey) func(*value.Object) *value.Object {
	entry, ok := r.reg.Lookup(key)
	if !ok {
		return func(o *value.Object) *value.Object { return o }
	}
	return entry.Select
}
