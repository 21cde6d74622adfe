// Package erc runs electrical rule checks over a connectivity snapshot. The
// checks live in a Registry as data; the Runner evaluates each enabled check
// once per subject and turns the findings into sorted, deterministic
// violations.
package erc

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/OpenTraceLab/OpenTraceERC/pkg/connectivity"
	"github.com/OpenTraceLab/OpenTraceERC/pkg/layout"
	"github.com/OpenTraceLab/OpenTraceERC/pkg/netlist"
)

// checkInterval is how many subjects are evaluated between cancellation checks.
const checkInterval = 256

const (
	inconsistentDescription = "{subject} is excluded from connectivity: {detail}"
	failedDescription       = "check {origin} failed on {subject}: {detail}"
)

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	CacheSize int          // Net check results to memoise; 0 disables the cache
	Metrics   *Metrics     // Optional
	Layout    string       // Names the runner's series in shared Metrics
	Logger    *slog.Logger // nil uses slog.Default()
}

// Runner evaluates a registry against snapshots. A Runner may be shared
// between goroutines; the Scheduler keeps runs from overlapping.
type Runner struct {
	registry *Registry
	cache    *resultCache
	metrics  *Metrics
	layout   string
	logger   *slog.Logger
}

// NewRunner creates a runner for reg.
func NewRunner(reg *Registry, cfg RunnerConfig) (*Runner, error) {
	if reg == nil {
		return nil, fmt.Errorf("erc: nil registry")
	}
	cache, err := newResultCache(cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("erc: create cache: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{registry: reg, cache: cache, metrics: cfg.Metrics, layout: cfg.Layout, logger: logger}, nil
}

// Registry returns the registry the runner evaluates.
func (r *Runner) Registry() *Registry {
	return r.registry
}

// RunRuleChecks evaluates reg against snap without caching.
func RunRuleChecks(ctx context.Context, snap *connectivity.Snapshot, reg *Registry) ([]Violation, error) {
	r, err := NewRunner(reg, RunnerConfig{})
	if err != nil {
		return nil, err
	}
	return r.Run(ctx, snap)
}

// run holds the state of one evaluation.
type run struct {
	snap     *connectivity.Snapshot
	excluded map[layout.ObjectID]bool
	out      []Violation
	seen     map[Key]bool
}

// Run evaluates every enabled check. Checks that panic are reported as
// erc.check_failed violations and the run continues. Run only fails when
// ctx is cancelled or the snapshot goes stale, and then returns no
// violations.
func (r *Runner) Run(ctx context.Context, snap *connectivity.Snapshot) ([]Violation, error) {
	start := time.Now()
	st := &run{
		snap:     snap,
		excluded: make(map[layout.ObjectID]bool),
		seen:     make(map[Key]bool),
	}

	for _, d := range snap.Diagnostics() {
		st.excluded[d.Object] = true
		st.add(Violation{
			RuleKey:     KeyInputInconsistent,
			Severity:    SeverityUndefined,
			Subjects:    []layout.ObjectID{d.Object},
			Layer:       d.Layer,
			Net:         st.netID(d.Object),
			Description: st.render(inconsistentDescription, renderArgs{subjects: []layout.ObjectID{d.Object}, detail: d.Reason}),
		})
	}

	var netChecks, objChecks []Check
	for _, c := range r.registry.Checks() {
		if !r.registry.Enabled(c.Key) {
			continue
		}
		if c.Scope == ScopeNet {
			netChecks = append(netChecks, c)
		} else {
			objChecks = append(objChecks, c)
		}
	}

	evaluated := 0
	poll := func() error {
		evaluated++
		if evaluated%checkInterval != 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if snap.Stale() {
			return connectivity.ErrStale
		}
		return nil
	}

	if len(netChecks) > 0 {
		for _, n := range snap.Nets.Nets() {
			if err := poll(); err != nil {
				return nil, err
			}
			subject, ok := st.netSubject(n)
			if !ok {
				continue
			}
			for _, c := range netChecks {
				r.evalNet(st, c, subject)
			}
		}
	}
	if len(objChecks) > 0 {
		for _, o := range snap.Objects {
			if err := poll(); err != nil {
				return nil, err
			}
			if st.excluded[o.ID] {
				continue
			}
			net, _ := snap.Nets.NetOf(o.ID)
			subject := &ObjectSubject{Object: o, Net: net, Layers: snap.Layers}
			for _, c := range objChecks {
				r.evalObject(st, c, subject)
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sortViolations(st.out)
	d := time.Since(start)
	r.metrics.observeRun(r.layout, d, st.out)
	r.logger.Debug("rule checks finished",
		"checks", len(netChecks)+len(objChecks),
		"nets", snap.Nets.Len(),
		"violations", len(st.out),
		"duration", d)
	return st.out, nil
}

func (r *Runner) evalNet(st *run, c Check, s *NetSubject) {
	var key string
	if c.Cacheable && r.cache != nil {
		key = netSignature(c.Key, s)
		if fs, ok := r.cache.get(key); ok {
			r.metrics.cacheHit()
			st.addFindings(c, fs, s.Net, s.Net.Members)
			return
		}
		r.metrics.cacheMiss()
	}

	fs, err := safeNet(c.Net, s)
	if err != nil {
		r.failed(st, c, s.Net.Members, err)
		return
	}
	if key != "" {
		r.cache.put(key, fs)
	}
	st.addFindings(c, fs, s.Net, s.Net.Members)
}

func (r *Runner) evalObject(st *run, c Check, s *ObjectSubject) {
	fs, err := safeObject(c.Object, s)
	if err != nil {
		r.failed(st, c, []layout.ObjectID{s.Object.ID}, err)
		return
	}
	st.addFindings(c, fs, s.Net, []layout.ObjectID{s.Object.ID})
}

func (r *Runner) failed(st *run, c Check, subjects []layout.ObjectID, err error) {
	r.metrics.checkFailed(c.Key)
	r.logger.Warn("rule check failed", "rule", c.Key, "subject", st.label(subjects[0]), "error", err)
	st.add(Violation{
		RuleKey:  KeyCheckFailed,
		Origin:   c.Key,
		Severity: SeverityUndefined,
		Subjects: subjects,
		Layer:    st.layer(subjects),
		Net:      st.netID(subjects[0]),
		Description: st.render(failedDescription, renderArgs{
			subjects: subjects, detail: err.Error(), origin: c.Key,
		}),
	})
}

func safeNet(f NetFunc, s *NetSubject) (fs []Finding, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return f(s), nil
}

func safeObject(f ObjectFunc, s *ObjectSubject) (fs []Finding, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return f(s), nil
}

// netSubject resolves the members of n. Nets made only of excluded objects
// are skipped; their diagnostic already covers them.
func (st *run) netSubject(n *netlist.Net) (*NetSubject, bool) {
	s := &NetSubject{Net: n, Members: make([]layout.PlacedObject, 0, len(n.Members))}
	live := false
	for _, id := range n.Members {
		o, ok := st.snap.Object(id)
		if !ok {
			continue
		}
		if !st.excluded[id] {
			live = true
		}
		s.Members = append(s.Members, o)
	}
	return s, live
}

func (st *run) addFindings(c Check, fs []Finding, net *netlist.Net, whole []layout.ObjectID) {
	for _, f := range fs {
		subjects := f.Subjects
		if len(subjects) == 0 {
			subjects = whole
		}
		subjects = append([]layout.ObjectID(nil), subjects...)
		sort.Slice(subjects, func(i, j int) bool { return subjects[i] < subjects[j] })

		v := Violation{
			RuleKey:  c.Key,
			Severity: c.Severity,
			Subjects: subjects,
			Layer:    st.layer(subjects),
		}
		if net != nil {
			v.Net = net.ID
		}
		v.Description = st.render(c.Description, renderArgs{subjects: subjects, detail: f.Detail, net: net, rule: c.Key, severity: c.Severity})
		st.add(v)
	}
}

func (st *run) add(v Violation) {
	k := v.Key()
	if st.seen[k] {
		return
	}
	st.seen[k] = true
	v.ID = IDFor(k)
	v.State = Pending
	st.out = append(st.out, v)
}

func (st *run) layer(ids []layout.ObjectID) int {
	layer, found := 0, false
	for _, id := range ids {
		if o, ok := st.snap.Object(id); ok && (!found || o.Layer < layer) {
			layer, found = o.Layer, true
		}
	}
	return layer
}

func (st *run) netID(id layout.ObjectID) string {
	if n, ok := st.snap.Nets.NetOf(id); ok {
		return n.ID
	}
	return ""
}

func (st *run) label(id layout.ObjectID) string {
	if o, ok := st.snap.Object(id); ok {
		return o.Label()
	}
	return id.String()
}

type renderArgs struct {
	subjects []layout.ObjectID
	net      *netlist.Net
	detail   string
	rule     string
	origin   string
	severity Severity
}

// render fills a description template. Placeholders: {subject} {subjects}
// {net} {detail} {rule} {origin} {severity} {layer}.
func (st *run) render(tmpl string, a renderArgs) string {
	labels := make([]string, len(a.subjects))
	for i, id := range a.subjects {
		labels[i] = st.label(id)
	}
	subject := ""
	if len(labels) > 0 {
		subject = labels[0]
	}
	net := ""
	if a.net != nil {
		net = a.net.Name
	} else if len(a.subjects) > 0 {
		if n, ok := st.snap.Nets.NetOf(a.subjects[0]); ok {
			net = n.Name
		}
	}
	return strings.NewReplacer(
		"{subject}", subject,
		"{subjects}", strings.Join(labels, ", "),
		"{net}", net,
		"{detail}", a.detail,
		"{rule}", a.rule,
		"{origin}", a.origin,
		"{severity}", a.severity.String(),
		"{layer}", strconv.Itoa(st.layer(a.subjects)),
	).Replace(tmpl)
}
