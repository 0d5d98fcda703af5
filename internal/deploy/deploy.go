// Package deploy installs and starts the agent on a remote host.
//
// A deployment attempt is an explicit state machine:
//
//	Start → CheckInstallDir → {AlreadyRunning | DirStaleCheckLog | PrepareDir}
//	      → UploadArtifact → Extract → LaunchProcess → Settle
//	      → VerifyProcess → VerifyPort → Success
//
// Any state can end in Failure. Every attempt opens exactly one SSH session,
// closes it on every path, and returns exactly one Outcome. Transport and
// authentication faults never escape as errors; they become failed outcomes.
package deploy

import (
	"context"
	"fmt"
	"time"

	"github.com/rileyhilliard/agentdeploy/internal/artifact"
	"github.com/rileyhilliard/agentdeploy/internal/clock"
	"github.com/rileyhilliard/agentdeploy/internal/errors"
	"github.com/rileyhilliard/agentdeploy/internal/host"
	"github.com/rileyhilliard/agentdeploy/internal/lock"
	"github.com/rileyhilliard/agentdeploy/internal/logger"
	"github.com/rileyhilliard/agentdeploy/internal/probe"
	"github.com/rileyhilliard/agentdeploy/pkg/sshutil"
)

// Orchestrator runs deployment attempts. It holds no per-attempt state and
// is safe for concurrent use; attempts against the same host are
// serialized only when a lock manager is configured.
type Orchestrator struct {
	opts      Options
	dial      sshutil.Dialer
	clock     clock.Clock
	log       logger.Logger
	observers []func(Event)
	metrics   MetricsRecorder
	locker    lock.Manager
	newID     func() string
}

// New creates an Orchestrator.
func New(opts Options, options ...Option) *Orchestrator {
	o := &Orchestrator{
		opts:  opts.withDefaults(),
		dial:  sshutil.DefaultDialer,
		clock: clock.Real(),
		log:   logger.Default(),
		newID: defaultIDGenerator,
	}
	for _, opt := range options {
		opt(o)
	}
	return o
}

// Options returns the effective options, defaults applied.
func (o *Orchestrator) Options() Options {
	return o.opts
}

// Deploy runs one attempt against target and returns its outcome.
func (o *Orchestrator) Deploy(target sshutil.Target, opts ...AttemptOption) Outcome {
	var cfg attemptConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	a := &attempt{
		o:       o,
		target:  target,
		force:   cfg.force,
		layout:  o.opts.Layout,
		id:      o.newID(),
		started: o.clock.Now(),
		state:   StateStart,
	}
	out := a.execute()

	if out.Success {
		o.log.Info("deploy %s (%s): %s", target.Address, out.AttemptID, out.Message)
	} else {
		o.log.Error("deploy %s (%s) failed in %s: %s", target.Address, out.AttemptID, out.State, out.Message)
	}
	if o.metrics != nil {
		o.metrics.DeployFinished(out.Success, out.State.String(), out.Duration())
	}
	return out
}

// stepFailure ends an attempt. message is what the caller sees; err keeps
// the structured cause for its code.
type stepFailure struct {
	message string
	logTail string
	err     error
}

// attempt is the state of one Deploy call.
type attempt struct {
	o      *Orchestrator
	target sshutil.Target
	force  bool
	layout Layout
	id     string

	started  time.Time
	state    State
	cleanups []func()

	client     sshutil.SSHClient
	prober     *probe.Prober
	dirExisted bool
	pkg        artifact.Artifact

	// deadline bounds all post-launch polling.
	deadline time.Time
}

func (a *attempt) execute() (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			a.o.log.Error("deploy %s: panic in %s: %v", a.target.Address, a.state, r)
			out = a.failure(&stepFailure{
				message: fmt.Sprintf("Deployment failed: %v", r),
				err:     errors.New(errors.ErrInternal, fmt.Sprint(r), ""),
			})
		}
	}()
	defer a.cleanup()

	for {
		a.emit(nil)
		next, fail := a.step()
		if fail != nil {
			return a.failure(fail)
		}
		if next.Terminal() {
			a.state = next
			return a.success()
		}
		a.o.log.Debug("deploy %s: %s -> %s", a.target.Address, a.state, next)
		a.state = next
	}
}

func (a *attempt) step() (State, *stepFailure) {
	switch a.state {
	case StateStart:
		return a.connect()
	case StateCheckInstallDir:
		return a.checkInstallDir()
	case StateDirStaleCheckLog:
		return a.reportStaleDir()
	case StatePrepareDir:
		return a.prepareDir()
	case StateUploadArtifact:
		return a.upload()
	case StateExtract:
		return a.extract()
	case StateLaunchProcess:
		return a.launch()
	case StateSettle:
		return a.settle()
	case StateVerifyProcess:
		return a.verifyProcess()
	case StateVerifyPort:
		return a.verifyPort()
	}
	return StateFailure, a.abort(errors.New(errors.ErrInternal, fmt.Sprintf("no step for state %s", a.state), ""))
}

// connect takes the host lease, then opens the session.
func (a *attempt) connect() (State, *stepFailure) {
	if a.o.locker != nil {
		key := sshutil.ResolveAddress(a.target.Address)
		info := lock.NewLockInfo("deploy " + a.target.Address)
		info.AttemptID = a.id
		lease, err := a.o.locker.Acquire(context.Background(), key, info)
		if err != nil {
			msg := errors.MessageOf(err)
			if s := errors.SuggestionOf(err); s != "" {
				msg += ". " + s
			}
			return StateFailure, &stepFailure{message: msg, err: err}
		}
		a.onExit(func() {
			if err := lease.Release(); err != nil {
				a.o.log.Warn("deploy %s: releasing lease %s: %v", a.target.Address, key, err)
			}
		})
	}

	client, err := a.o.dial(a.target, a.o.opts.Dial)
	if err != nil {
		return StateFailure, a.abort(err)
	}
	a.onExit(func() {
		if err := client.Close(); err != nil {
			a.o.log.Debug("deploy %s: closing session: %v", a.target.Address, err)
		}
	})
	a.client = client
	a.prober = probe.New(client, a.o.log)
	return StateCheckInstallDir, nil
}

func (a *attempt) checkInstallDir() (State, *stepFailure) {
	exists, err := a.prober.DirectoryExists(a.layout.InstallDir)
	if err != nil {
		return StateFailure, a.abort(err)
	}
	a.dirExisted = exists
	if !exists {
		return StatePrepareDir, nil
	}

	running, err := a.prober.ProcessRunning(a.layout.AgentName)
	if err != nil {
		return StateFailure, a.abort(err)
	}
	switch {
	case running:
		return StateAlreadyRunning, nil
	case a.force:
		a.o.log.Info("deploy %s: %s exists but %s isn't running, rebuilding", a.target.Address, a.layout.InstallDir, a.layout.AgentName)
		return StatePrepareDir, nil
	}
	return StateDirStaleCheckLog, nil
}

func (a *attempt) reportStaleDir() (State, *stepFailure) {
	tail, err := a.prober.TailLog(a.layout.LogPath(), a.o.opts.LogTailLines)
	if err != nil {
		return StateFailure, a.abort(err)
	}
	msg := fmt.Sprintf("%s exists but %s is not running. Recent log:\n%s", a.layout.InstallDir, a.layout.AgentName, tail)
	return StateFailure, &stepFailure{
		message: msg,
		logTail: tail,
		err: errors.New(errors.ErrVerify, msg,
			"Inspect the log, or redeploy with --force to rebuild the install directory"),
	}
}

// prepareDir checks the local package before touching the host, then
// (re)creates the install directory.
func (a *attempt) prepareDir() (State, *stepFailure) {
	pkg, err := artifact.Locate(a.o.opts.ArtifactRoot, a.o.opts.ArtifactPath)
	if err != nil {
		return StateFailure, &stepFailure{message: errors.MessageOf(err), err: err}
	}
	a.pkg = pkg

	if a.dirExisted {
		if fail := a.run(RemoveDirCmd(a.layout.InstallDir), "Failed to remove install directory"); fail != nil {
			return StateFailure, fail
		}
	}
	if fail := a.run(MakeDirCmd(a.layout.InstallDir), "Failed to create install directory"); fail != nil {
		return StateFailure, fail
	}
	return StateUploadArtifact, nil
}

func (a *attempt) upload() (State, *stepFailure) {
	dest := a.layout.ArchivePath()
	a.o.log.Debug("deploy %s: uploading %s (%d bytes) to %s", a.target.Address, a.pkg.Path, a.pkg.Size, dest)
	if err := a.client.Upload(a.pkg.Path, dest); err != nil {
		detail := errors.MessageOf(err)
		if errors.CodeOf(err) == "" {
			err = errors.WrapWithCode(err, errors.ErrTransfer, detail, "")
		}
		return StateFailure, &stepFailure{message: "Failed to upload install package: " + detail, err: err}
	}
	return StateExtract, nil
}

func (a *attempt) extract() (State, *stepFailure) {
	if fail := a.run(ExtractCmd(a.layout.InstallDir), "Failed to extract install package"); fail != nil {
		return StateFailure, fail
	}
	return StateLaunchProcess, nil
}

func (a *attempt) launch() (State, *stepFailure) {
	if fail := a.run(LaunchCmd(a.layout), "Failed to start "+a.layout.AgentName); fail != nil {
		return StateFailure, fail
	}
	return StateSettle, nil
}

func (a *attempt) settle() (State, *stepFailure) {
	if d := a.o.opts.SettleDelay; d > 0 {
		if err := a.o.clock.Sleep(context.Background(), d); err != nil {
			return StateFailure, a.abort(err)
		}
	}
	a.deadline = a.o.clock.Now().Add(a.o.opts.MaxWait)
	return StateVerifyProcess, nil
}

func (a *attempt) verifyProcess() (State, *stepFailure) {
	running, err := a.poll(func() (bool, error) { return a.prober.ProcessRunning(a.layout.AgentName) })
	if err != nil {
		return StateFailure, a.abort(err)
	}
	if running {
		return StateVerifyPort, nil
	}

	logContent, err := a.prober.ReadLog(a.layout.LogPath())
	if err != nil {
		return StateFailure, a.abort(err)
	}
	msg := fmt.Sprintf("%s process did not start. Log:\n%s", a.layout.AgentName, logContent)
	return StateFailure, &stepFailure{
		message: msg,
		logTail: logContent,
		err:     errors.New(errors.ErrVerify, msg, "Check the log for a startup error"),
	}
}

func (a *attempt) verifyPort() (State, *stepFailure) {
	listening, err := a.poll(func() (bool, error) { return a.prober.PortListening(a.layout.AgentName) })
	if err != nil {
		return StateFailure, a.abort(err)
	}
	if !listening {
		msg := fmt.Sprintf("%s is running but not listening on its port", a.layout.AgentName)
		return StateFailure, &stepFailure{
			message: msg,
			err:     errors.New(errors.ErrVerify, msg, "Check the agent's port configuration and the host firewall"),
		}
	}
	return StateSuccess, nil
}

// poll runs check once, or repeatedly until it passes or the attempt's
// deadline passes when polling is configured. The process and port probes
// share one deadline.
func (a *attempt) poll(check func() (bool, error)) (bool, error) {
	opts := a.o.opts
	if a.deadline.IsZero() {
		a.deadline = a.o.clock.Now().Add(opts.MaxWait)
	}
	for {
		ok, err := check()
		if err != nil || ok || !opts.polling() || !a.o.clock.Now().Before(a.deadline) {
			return ok, err
		}
		if err := a.o.clock.Sleep(context.Background(), opts.PollInterval); err != nil {
			return false, err
		}
	}
}

// run executes a mutating command. A non-zero exit fails the attempt with
// the command's stderr.
func (a *attempt) run(cmd, step string) *stepFailure {
	a.o.log.Debug("deploy %s: %s", a.target.Address, cmd)
	_, stderr, exitCode, err := a.client.Exec(cmd)
	if err != nil {
		return a.abort(err)
	}
	if exitCode != 0 {
		e := errors.NewCommand(step, exitCode, string(stderr))
		return &stepFailure{message: e.Message, err: e}
	}
	return nil
}

// abort turns an unexpected error into a failure with the bucketed
// connection message.
func (a *attempt) abort(err error) *stepFailure {
	return &stepFailure{message: host.FailureMessage(err, "Deployment failed"), err: err}
}

// onExit registers fn to run when the attempt ends. Cleanups run in reverse
// order, so the session closes before the lease is released.
func (a *attempt) onExit(fn func()) {
	a.cleanups = append(a.cleanups, fn)
}

func (a *attempt) cleanup() {
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		a.cleanups[i]()
	}
	a.cleanups = nil
}

func (a *attempt) success() Outcome {
	msg := fmt.Sprintf("%s deployed successfully", a.layout.AgentName)
	if a.state == StateAlreadyRunning {
		msg = fmt.Sprintf("%s is already deployed and running", a.layout.AgentName)
	}
	out := a.outcome(true, msg)
	a.emit(&out)
	return out
}

func (a *attempt) failure(f *stepFailure) Outcome {
	out := a.outcome(false, f.message)
	out.LogTail = f.logTail
	out.Code = errors.CodeOf(f.err)
	a.emit(&out)
	return out
}

func (a *attempt) outcome(success bool, message string) Outcome {
	return Outcome{
		Success:    success,
		Message:    message,
		State:      a.state,
		AttemptID:  a.id,
		Host:       a.target.Address,
		StartedAt:  a.started,
		FinishedAt: a.o.clock.Now(),
	}
}

func (a *attempt) emit(out *Outcome) {
	if len(a.o.observers) == 0 {
		return
	}
	ev := Event{AttemptID: a.id, Host: a.target.Address, State: a.state, At: a.o.clock.Now(), Outcome: out}
	for _, fn := range a.o.observers {
		fn(ev)
	}
}
