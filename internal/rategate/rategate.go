// Package rategate serializes calls to a globally rate-limited external resource.
package rategate

import (
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/starford/curator/internal/storage"
)

// Gate decides whether a call may proceed right now. It never blocks.
type Gate interface {
	TryAcquire() bool
}

// Open always allows.
type Open struct{}

// TryAcquire implements Gate.
func (Open) TryAcquire() bool { return true }

// Config controls a FileGate.
type Config struct {
	// StateFile holds the last grant timestamp. Empty disables persistence.
	StateFile string
	// MinInterval is the minimum time between two grants, across restarts.
	MinInterval time.Duration
	// RequestsPerSecond and Burst bound in-process bursts. Zero means unlimited.
	RequestsPerSecond float64
	Burst             int
}

type state struct {
	LastGrant time.Time `json:"last_grant"`
}

// FileGate combines a persisted minimum interval with an in-memory token bucket.
// Unreadable or corrupt state fails open.
type FileGate struct {
	cfg     Config
	limiter *rate.Limiter
	store   storage.Provider
	name    string
	logger  *slog.Logger
	now     func() time.Time

	mu sync.Mutex
}

var _ Gate = (*FileGate)(nil)

// NewFileGate creates a gate. The state file's directory is created on demand.
func NewFileGate(cfg Config, logger *slog.Logger) *FileGate {
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &FileGate{
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, burst),
		name:    filepath.Base(cfg.StateFile),
		logger:  logger,
		now:     time.Now,
	}
}

// TryAcquire reports whether a call may be made now and, if so, records the grant.
func (g *FileGate) TryAcquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if g.cfg.MinInterval > 0 && g.cfg.StateFile != "" {
		if last, ok := g.lastGrant(); ok && now.Sub(last) < g.cfg.MinInterval {
			g.logger.Debug("rategate: denied",
				slog.String("state_file", g.cfg.StateFile),
				slog.Duration("wait", g.cfg.MinInterval-now.Sub(last)))
			return false
		}
	}
	if !g.limiter.AllowN(now, 1) {
		g.logger.Debug("rategate: burst limit reached")
		return false
	}
	if g.cfg.StateFile != "" {
		g.record(now)
	}
	return true
}

// lastGrant reads the persisted timestamp. ok is false when the state is
// missing, unreadable, corrupt, or lies in the future.
func (g *FileGate) lastGrant() (time.Time, bool) {
	data, err := os.ReadFile(g.cfg.StateFile)
	if errors.Is(err, fs.ErrNotExist) {
		return time.Time{}, false
	}
	if err != nil {
		g.logger.Warn("rategate: unreadable state, allowing", slog.String("error", err.Error()))
		return time.Time{}, false
	}
	var st state
	if err := json.Unmarshal(data, &st); err != nil || st.LastGrant.IsZero() {
		g.logger.Warn("rategate: corrupt state, allowing", slog.String("state_file", g.cfg.StateFile))
		return time.Time{}, false
	}
	if st.LastGrant.After(g.now()) {
		g.logger.Warn("rategate: state from the future, allowing", slog.Time("last_grant", st.LastGrant))
		return time.Time{}, false
	}
	return st.LastGrant, true
}

func (g *FileGate) record(now time.Time) {
	if g.store == nil {
		dir := filepath.Dir(g.cfg.StateFile)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			g.logger.Warn("rategate: create state dir", slog.String("error", err.Error()))
			return
		}
		store, err := storage.NewFS(dir)
		if err != nil {
			g.logger.Warn("rategate: open state dir", slog.String("error", err.Error()))
			return
		}
		g.store = store
	}
	data, _ := json.Marshal(state{LastGrant: now.UTC()})
	if err := g.store.Write(g.name, data); err != nil {
		g.logger.Warn("rategate: persist state", slog.String("error", err.Error()))
	}
}
