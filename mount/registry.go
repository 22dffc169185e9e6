package mount

import (
	"fmt"
	"os"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/NVIDIA/radosdav/cmn/nlog"
	"github.com/NVIDIA/radosdav/existence"
	"github.com/NVIDIA/radosdav/gwerr"
	"github.com/NVIDIA/radosdav/hk"
	"github.com/NVIDIA/radosdav/radosx"
	"github.com/NVIDIA/radosdav/statcache"
)

// existenceRebuildInterval is how often a mount's existence filter is
// rebuilt from a fresh list pass, so keys written by another process
// sharing the pool (or present in the pool before this gateway ever
// started) eventually become visible to the fast path.
const existenceRebuildInterval = 5 * time.Minute

// Mount is Mount: immutable after Registry.RegisterAll
// returns. The zero value is never valid; Mounts are constructed by
// Registry.register, or by NewTestMount for tests.
type Mount struct {
	Prefix  string
	Pool    string
	Timeout time.Duration
	Perms   Perm
	Async   bool

	conn    radosx.Conn
	ioctxs  []radosx.IOContext // length T, or length 1 when T==1
	fsid    string

	Cache     *statcache.Cache
	Existence *existence.Filter
	enumSF    singleflight.Group // coalesces concurrent root PROPFIND enumerations
}

// IOContext returns the I/O context for workerID, per the design's
// "either a single shared context (T=1) or an array of length T indexed
// by worker-thread id".
func (m *Mount) IOContext(workerID int) radosx.IOContext {
	if len(m.ioctxs) == 1 {
		return m.ioctxs[0]
	}
	return m.ioctxs[workerID%len(m.ioctxs)]
}

func (m *Mount) FSID() string { return m.fsid }

// SingleflightGroup exposes the root-PROPFIND enumeration coalescing
// group to the dav/propfind responder .
func (m *Mount) SingleflightGroup() *singleflight.Group { return &m.enumSF }

// ConnFactory constructs one unconnected cluster handle. Production
// wiring supplies a real librados binding (out of scope for this
// module, see radosx package doc); tests and the reference cmd wiring
// use radosx/fake.NewConn.
type ConnFactory func() radosx.Conn

// Registry holds every registered Mount and resolves incoming request
// paths to one of them.
type Registry struct {
	mounts        []*Mount
	defaultPrefix string // first-registered mount, used for step 2's fallback
	newConn       ConnFactory
	workers       int
	statTTL       time.Duration
}

func NewRegistry(workers int, statTTL time.Duration, factory ConnFactory) *Registry {
	return &Registry{newConn: factory, workers: workers, statTTL: statTTL}
}

// RegisterAll connects every configured mount concurrently via errgroup,
// preserving the "any error during mount setup is fatal for the
// process" semantics: the other mounts are not cancelled, but once all
// have finished the first error is returned (and no mount of this call
// is added) to the caller, which is expected to call gwerr.Exitf.
func (r *Registry) RegisterAll(specs []Spec, async bool) error {
	mounts := make([]*Mount, len(specs))
	var g errgroup.Group
	for i, spec := range specs {
		i, spec := i, spec
		g.Go(func() error {
			m, err := r.register(spec, async)
			if err != nil {
				return fmt.Errorf("mount %q: %w", spec.Prefix, err)
			}
			mounts[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	r.mounts = append(r.mounts, mounts...)
	if r.defaultPrefix == "" && len(mounts) > 0 {
		r.defaultPrefix = mounts[0].Prefix
	}
	return nil
}

// register implements the design steps 1-6 for one mount spec.
func (r *Registry) register(spec Spec, async bool) (*Mount, error) {
	conn := r.newConn()

	// step 2: load configuration
	if spec.ConfigPath != "" {
		if err := conn.ReadConfigFile(spec.ConfigPath); err != nil {
			return nil, fmt.Errorf("read config %q: %w", spec.ConfigPath, err)
		}
	} else if err := conn.ReadDefaultConfigFile(); err != nil {
		return nil, fmt.Errorf("read default config: %w", err)
	}

	// step 3: apply timeout to the three native options, string form
	if spec.TimeoutSec > 0 {
		ts := fmt.Sprintf("%d", spec.TimeoutSec)
		for _, opt := range []string{"client_mount_timeout", "mon_op_timeout", "osd_op_timeout"} {
			if err := conn.SetConfigOption(opt, ts); err != nil {
				return nil, fmt.Errorf("set %s: %w", opt, err)
			}
		}
	}

	// step 4: connect
	if err := conn.Connect(); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	// step 5: allocate I/O contexts, one per worker thread (or one shared)
	n := r.workers
	if n < 1 {
		n = 1
	}
	ioctxs := make([]radosx.IOContext, n)
	for i := 0; i < n; i++ {
		ioctx, err := conn.OpenIOContext(spec.Pool)
		if err != nil {
			return nil, fmt.Errorf("open io context %d/%d on pool %q: %w", i+1, n, spec.Pool, err)
		}
		ioctxs[i] = ioctx
	}

	// step 6: fsid, for logging only
	fsid, err := conn.FSID()
	if err != nil {
		return nil, fmt.Errorf("fsid: %w", err)
	}

	cache, err := statcache.New(r.statTTL)
	if err != nil {
		return nil, fmt.Errorf("stat cache: %w", err)
	}

	// Seed the existence filter from a list pass before this mount ever
	// serves a request: an empty filter would report every pre-existing
	// object as absent until something happened to PUT it again, which
	// defeats the point of exposing a pool that already has data in it.
	keys, err := listKeys(ioctxs[0])
	if err != nil {
		return nil, fmt.Errorf("seed existence filter: %w", err)
	}
	ef := existence.New()
	ef.Rebuild(keys)

	m := &Mount{
		Prefix:    spec.Prefix,
		Pool:      spec.Pool,
		Timeout:   spec.Timeout(),
		Perms:     spec.Perm(),
		Async:     async,
		conn:      conn,
		ioctxs:    ioctxs,
		fsid:      fsid,
		Cache:     cache,
		Existence: ef,
	}
	nlog.Infof("mount %s: pool=%s fsid=%s workers=%d async=%v perms=%v keys=%d",
		m.Prefix, m.Pool, m.fsid, n, async, m.Perms, len(keys))

	hk.DefaultHK.Reg(fmt.Sprintf("existence-rebuild-%s", m.Prefix), func() time.Duration {
		keys, err := listKeys(m.ioctxs[0])
		if err != nil {
			nlog.Warningf("mount %s: existence rebuild: %v", m.Prefix, err)
			return existenceRebuildInterval
		}
		m.Existence.Rebuild(keys)
		return existenceRebuildInterval
	}, existenceRebuildInterval)

	return m, nil
}

// listKeys drains a fresh list cursor into a slice; used both to seed a
// mount's existence filter at registration and to rebuild it on
// existenceRebuildInterval afterwards.
func listKeys(ioctx radosx.IOContext) ([]string, error) {
	cur, err := ioctx.List()
	if err != nil {
		return nil, err
	}
	defer cur.Close()
	var keys []string
	for {
		name, ok := cur.Next()
		if !ok {
			break
		}
		keys = append(keys, name)
	}
	return keys, nil
}

// NewTestMount builds a Mount around an already-open IOContext (typically
// radosx/fake's), bypassing Registry.register's connect/config sequence
// entirely. Exported for use by other packages' tests that need a Mount
// without a live cluster.
func NewTestMount(prefix string, ioctx radosx.IOContext, async bool, perms Perm) *Mount {
	return &Mount{
		Prefix:    prefix,
		Perms:     perms,
		Async:     async,
		ioctxs:    []radosx.IOContext{ioctx},
		Cache:     mustStatCache(),
		Existence: existence.New(),
	}
}

func mustStatCache() *statcache.Cache {
	c, err := statcache.New(time.Minute)
	if err != nil {
		panic(err)
	}
	return c
}

// Match resolves path_info to a mount (the design steps 2-3). It picks
// the longest registered prefix that is itself a prefix of path, falling
// back to the first-registered mount only when no prefix matches at all
// — the idea that "fall back to the host's default app only when that
// default belongs to this plugin" translated into single-process terms
// (there is only ever one plugin here, so the condition is always true;
// what remains is exactly the fallback-to-default behavior).
func (r *Registry) Match(path string) (*Mount, bool) {
	var best *Mount
	for _, m := range r.mounts {
		if strings.HasPrefix(path, m.Prefix) {
			if best == nil || len(m.Prefix) > len(best.Prefix) {
				best = m
			}
		}
	}
	if best != nil {
		return best, true
	}
	for _, m := range r.mounts {
		if m.Prefix == r.defaultPrefix {
			return m, true
		}
	}
	return nil, false
}

// Filename implements the design step 3: strip prefix from path_info
// when path_info starts with it; otherwise — per first Open
// Question, resolved as "preserve source behaviour" — use path_info
// verbatim. This is deliberately surprising for a path that doesn't
// start with the mount's own prefix; it is surprising in the source too.
func Filename(m *Mount, pathInfo string) string {
	if strings.HasPrefix(pathInfo, m.Prefix) {
		return strings.TrimPrefix(pathInfo, m.Prefix)
	}
	return pathInfo
}

// LoadSpecsFile reads the JSON mount-list file (the design's
// `-rados-mounts-file`): an array of objects with the same keys as the
// `key=value` spec string.
func LoadSpecsFile(path string) ([]Spec, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var specs []Spec
	if err := jsoniter.Unmarshal(b, &specs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for i, s := range specs {
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", path, i, err)
		}
	}
	return specs, nil
}

// Exit is the process-fatal path "Failure semantics"
// requires: any mount setup error is fatal for the process.
func Exit(err error) {
	gwerr.Exitf("mount setup failed: %v", err)
}
