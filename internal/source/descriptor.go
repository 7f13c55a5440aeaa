package source

import (
	"fmt"

	"github.com/gyaneshwarpardhi/livefeed/internal/activity"
	"github.com/gyaneshwarpardhi/livefeed/internal/config"
	"github.com/gyaneshwarpardhi/livefeed/internal/filter"
)

// ProfileEntity is the table/collection actor relations are joined against.
const ProfileEntity = "profiles"

// ActorRef names a foreign key to a profile and the relation the joined
// profile is stored under in the Row.
type ActorRef struct {
	Relation string
	Column   string
	Required bool
}

// fillFunc sets the variant-specific parts of an item (kind, amount, extra).
// The envelope (id, actors, timestamp) is already populated.
type fillFunc func(r Row, it *activity.Item) error

// Descriptor describes one event source. Actors[0] is the primary actor and
// Actors[1], when present, the secondary one.
type Descriptor struct {
	ID            string
	Entity        string
	TimeColumn    string
	Filter        string
	Actors        []ActorRef
	Kinds         []activity.Kind
	PollLimit     int
	SnapshotLimit int
	Priority      int
	Incremental   bool
	Enabled       bool

	fill  fillFunc
	expr  filter.Expr
	where []filter.Constraint
}

// Where returns the store-side constraints compiled from Filter.
func (d *Descriptor) Where() []filter.Constraint { return d.where }

func (d *Descriptor) compile() error {
	expr, err := filter.Parse(d.Filter)
	if err != nil {
		return fmt.Errorf("source %s: filter %q: %w", d.ID, d.Filter, err)
	}
	where, err := filter.Lower(expr)
	if err != nil {
		return fmt.Errorf("source %s: filter %q: %w", d.ID, d.Filter, err)
	}
	d.expr, d.where = expr, where
	return nil
}

// Catalog is the compiled, immutable set of sources. Reconfiguration builds
// a new Catalog.
type Catalog struct {
	all  []*Descriptor
	byID map[string]*Descriptor
}

// Build compiles the built-in sources and applies per-source overrides.
func Build(overrides []config.SourceConf) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]*Descriptor)}
	for i, d := range builtin() {
		d.Priority = i
		d.Enabled = true
		c.all = append(c.all, d)
		c.byID[d.ID] = d
	}
	for _, o := range overrides {
		d, ok := c.byID[o.ID]
		if !ok {
			return nil, fmt.Errorf("source override: unknown source %q", o.ID)
		}
		if o.Enabled != nil {
			d.Enabled = *o.Enabled
		}
		if o.PollLimit > 0 {
			d.PollLimit = o.PollLimit
		}
		if o.SnapshotLimit > 0 {
			d.SnapshotLimit = o.SnapshotLimit
		}
		if o.Filter != "" {
			d.Filter = o.Filter
		}
	}
	for _, d := range c.all {
		if err := d.compile(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// All returns every source in priority order, enabled or not.
func (c *Catalog) All() []*Descriptor { return c.all }

// Get looks a source up by id.
func (c *Catalog) Get(id string) (*Descriptor, bool) {
	d, ok := c.byID[id]
	return d, ok
}

// Incremental returns the enabled sources the watermark poller reads.
func (c *Catalog) Incremental() []*Descriptor {
	var out []*Descriptor
	for _, d := range c.all {
		if d.Enabled && d.Incremental {
			out = append(out, d)
		}
	}
	return out
}

// Snapshot returns the enabled sources the snapshot aggregator reads.
func (c *Catalog) Snapshot() []*Descriptor {
	var out []*Descriptor
	for _, d := range c.all {
		if d.Enabled {
			out = append(out, d)
		}
	}
	return out
}

// Kinds returns the distinct kinds produced by a set of sources.
func Kinds(ds []*Descriptor) []activity.Kind {
	seen := make(map[activity.Kind]struct{})
	var out []activity.Kind
	for _, d := range ds {
		for _, k := range d.Kinds {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				out = append(out, k)
			}
		}
	}
	return out
}
