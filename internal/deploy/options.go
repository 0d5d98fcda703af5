package deploy

import (
	"time"

	"github.com/google/uuid"
	"github.com/rileyhilliard/agentdeploy/internal/clock"
	"github.com/rileyhilliard/agentdeploy/internal/lock"
	"github.com/rileyhilliard/agentdeploy/internal/logger"
	"github.com/rileyhilliard/agentdeploy/pkg/sshutil"
)

// DefaultSettleDelay is how long the agent gets to start before it is probed.
const DefaultSettleDelay = 2 * time.Second

// Options configures an Orchestrator.
type Options struct {
	Layout Layout

	// ArtifactRoot is the directory ArtifactPath is resolved against.
	// Empty means the current directory.
	ArtifactRoot string
	// ArtifactPath is the install package, relative to ArtifactRoot unless
	// absolute. Empty means static/install.tar.gz.
	ArtifactPath string

	Dial sshutil.DialOptions

	// SettleDelay is the pause between launch and the first probe. Zero
	// uses DefaultSettleDelay; negative skips the pause.
	SettleDelay time.Duration
	// PollInterval and MaxWait turn the post-launch probes into polls: a
	// probe that comes back negative is retried every PollInterval until
	// MaxWait has passed since the settle delay ended. The process and port
	// probes share that window. Either left at zero means a single probe.
	PollInterval time.Duration
	MaxWait      time.Duration

	// LogTailLines is how much of the log a stale-directory failure shows.
	LogTailLines int
}

func (o Options) withDefaults() Options {
	o.Layout = o.Layout.withDefaults()
	if o.SettleDelay == 0 {
		o.SettleDelay = DefaultSettleDelay
	}
	if o.LogTailLines <= 0 {
		o.LogTailLines = DefaultTailLines
	}
	return o
}

func (o Options) polling() bool {
	return o.PollInterval > 0 && o.MaxWait > 0
}

// MetricsRecorder observes finished attempts. metrics.Recorder satisfies it.
type MetricsRecorder interface {
	DeployFinished(success bool, state string, d time.Duration)
}

// Option configures an Orchestrator's collaborators.
type Option func(*Orchestrator)

// WithDialer replaces sshutil.Dial, mostly for tests.
func WithDialer(d sshutil.Dialer) Option {
	return func(o *Orchestrator) { o.dial = d }
}

// WithClock replaces the real clock used for the settle delay and polling.
func WithClock(c clock.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// WithLogger sets the logger. The default is logger.Default().
func WithLogger(l logger.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// WithObserver registers fn to receive an Event for every state entered
// and for the final outcome. Observers run synchronously.
func WithObserver(fn func(Event)) Option {
	return func(o *Orchestrator) { o.observers = append(o.observers, fn) }
}

// WithMetrics records every finished attempt on m.
func WithMetrics(m MetricsRecorder) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithLocker takes a per-host lease from m around every attempt.
func WithLocker(m lock.Manager) Option {
	return func(o *Orchestrator) { o.locker = m }
}

// WithIDGenerator replaces the attempt ID source.
func WithIDGenerator(fn func() string) Option {
	return func(o *Orchestrator) { o.newID = fn }
}

// AttemptOption adjusts a single Deploy call.
type AttemptOption func(*attemptConfig)

type attemptConfig struct {
	force bool
}

// WithForce rebuilds an install directory whose agent isn't running,
// instead of failing with its log.
func WithForce() AttemptOption {
	return func(c *attemptConfig) { c.force = true }
}

func defaultIDGenerator() string {
	return uuid.NewString()
}
