package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/loykin/tether/internal/backend"
	"github.com/loykin/tether/internal/history"
	"github.com/loykin/tether/internal/metrics"
)

var (
	ErrAlreadyStarted = errors.New("backend already started")
	ErrNotReady       = errors.New("backend port not known")
)

// drainGrace bounds how long cleanup waits for output readers after the
// process is reaped before closing the pipes under them.
const drainGrace = time.Second

// portPresent flags a published port; the low 16 bits carry the value.
const portPresent = 1 << 16

// Exit reasons for metrics.
const (
	exitShutdown = "shutdown"
	exitExited   = "exited"
)

// Supervisor owns the lifecycle of one bundled backend process.
type Supervisor struct {
	spec       backend.Spec
	resolver   backend.Resolver
	logger     *slog.Logger
	recorder   *history.Recorder
	httpClient *http.Client

	// port is set only by the handshake and cleared only by Shutdown or the
	// reaper, all while holding mu. Readers load it without locking.
	port atomic.Uint32

	mu    sync.Mutex
	state State
	proc  *backend.Process // held process, nil when none
	cur   *run             // latest run, kept after exit for Status
	abort bool             // Shutdown arrived while a launch was in flight
}

// run is one launch of the backend.
type run struct {
	id        string
	spec      backend.Spec
	proc      *backend.Process
	startedAt time.Time
	sampler   *metrics.Sampler
	outW      io.WriteCloser
	errW      io.WriteCloser
	readers   sync.WaitGroup
	events    sync.WaitGroup // history sends issued off the reader goroutines
	finished  chan struct{}

	// guarded by Supervisor.mu
	handshake string
	port      *uint16
	stopping  bool
	stoppedAt time.Time
	exitErr   error
}

// New returns an idle supervisor for spec.
func New(spec backend.Spec, opts ...Option) *Supervisor {
	s := &Supervisor{
		spec:       spec.WithDefaults(),
		logger:     slog.Default(),
		httpClient: &http.Client{Timeout: 5 * time.Second},
		state:      StateIdle,
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.With("component", "backend")
	if s.resolver == nil {
		s.resolver = backend.FixedDir(s.spec.InstallDir)
	}
	return s
}

// Spec returns the launch spec with defaults applied.
func (s *Supervisor) Spec() backend.Spec { return s.spec }

// Start launches the backend and waits for its port handshake. Only
// ErrNotFound, ErrPermission and ErrSpawn are fatal. A missing or late
// handshake is logged and Start returns nil with the port absent. If ctx
// ends first, ctx.Err() is returned and the backend keeps running.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.proc != nil || s.state == StateStarting {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	prev := s.state
	s.state = StateStarting
	s.abort = false
	s.mu.Unlock()

	r, err := s.launch()
	if err != nil {
		s.mu.Lock()
		s.state = prev
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.cur, s.proc = r, r.proc
	abort := s.abort
	s.abort = false
	s.mu.Unlock()

	hs := s.startRun(r)
	s.recordEvent(history.EventLaunch, r)
	if abort {
		s.logger.Warn("Shutdown requested during launch", "pid", r.proc.PID())
		s.Shutdown()
		return nil
	}

	var timeout <-chan time.Time
	if d := r.spec.HandshakeTimeout; d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		timeout = t.C
	}
	select {
	case <-hs:
		return nil
	case <-timeout:
		s.handshakeTimedOut(r)
		return nil
	case <-ctx.Done():
		s.logger.Warn("Stopped waiting for backend port", "pid", r.proc.PID(), "error", ctx.Err())
		return ctx.Err()
	}
}

func (s *Supervisor) launch() (*run, error) {
	spec := s.spec
	dir, err := s.resolver.InstallDir()
	if err != nil {
		metrics.IncLaunch(metrics.LaunchNotFound)
		err = fmt.Errorf("%w: resolve install dir: %w", backend.ErrNotFound, err)
		s.logger.Error("Failed to resolve backend install dir", "error", err)
		return nil, err
	}
	spec.InstallDir = dir

	if pid, killed, err := backend.ReapOrphan(spec.PIDFile); err != nil {
		s.logger.Warn("Failed to check for orphaned backend", "pidfile", spec.PIDFile, "error", err)
	} else if killed {
		s.logger.Warn("Killed orphaned backend", "pid", pid, "pidfile", spec.PIDFile)
	}

	p, err := backend.Launch(spec)
	if err != nil {
		metrics.IncLaunch(launchResult(err))
		s.logger.Error("Failed to launch backend", "install_dir", dir, "error", err)
		return nil, err
	}
	metrics.IncLaunch(metrics.LaunchOK)

	r := &run{
		id:        uuid.NewString(),
		spec:      spec,
		proc:      p,
		startedAt: p.StartedAt(),
		sampler:   metrics.NewSampler(p.PID(), spec.SampleInterval, s.logger),
		finished:  make(chan struct{}),
		handshake: HandshakePending,
	}
	r.outW, r.errW = spec.Log.Writers(spec.Name)
	if err := backend.WritePIDFile(spec.PIDFile, p.PID(), p.StartUnix()); err != nil {
		s.logger.Warn("Failed to write backend pid file", "pidfile", spec.PIDFile, "error", err)
	}
	s.logger.Info("Backend launched", "pid", p.PID(), "path", p.Path(), "run_id", r.id)
	return r, nil
}

func launchResult(err error) string {
	switch {
	case errors.Is(err, backend.ErrNotFound):
		return metrics.LaunchNotFound
	case errors.Is(err, backend.ErrPermission):
		return metrics.LaunchPermission
	default:
		return metrics.LaunchSpawn
	}
}

// startRun spawns the per-run goroutines. The returned channel receives once
// the handshake has been resolved either way.
func (s *Supervisor) startRun(r *run) <-chan bool {
	hs := make(chan bool, 1)
	r.readers.Add(2)
	go s.readStdout(r, hs)
	go s.readStderr(r)
	r.sampler.Start(context.Background())
	metrics.SetUp(true)
	go s.reap(r)
	return hs
}

func (s *Supervisor) readStdout(r *run, hs chan<- bool) {
	defer r.readers.Done()
	emit := s.emitter(r, "stdout", slog.LevelInfo, r.outW)
	port, found, err := backend.ReadHandshake(r.proc.Stdout(), r.spec.HandshakePrefix, emit)
	if found {
		s.publish(r, port)
	} else {
		s.handshakeFailed(r, err)
	}
	hs <- found
	if !found {
		return
	}
	if err := backend.Drain(r.proc.Stdout(), emit); err != nil {
		s.logger.Warn("Backend stdout drain ended", "pid", r.proc.PID(), "error", err)
	}
}

func (s *Supervisor) readStderr(r *run) {
	defer r.readers.Done()
	if err := backend.Drain(r.proc.Stderr(), s.emitter(r, "stderr", slog.LevelWarn, r.errW)); err != nil {
		s.logger.Warn("Backend stderr drain ended", "pid", r.proc.PID(), "error", err)
	}
}

// emitter logs one output line, mirrors it to w when set and counts it.
func (s *Supervisor) emitter(r *run, stream string, level slog.Level, w io.Writer) func(string) {
	l := s.logger.With("stream", stream, "pid", r.proc.PID())
	return func(line string) {
		metrics.IncLine(stream)
		l.Log(context.Background(), level, line)
		if w != nil {
			_, _ = io.WriteString(w, line+"\n")
		}
	}
}

// publish stores the port, but only while r's process is still held.
func (s *Supervisor) publish(r *run, port uint16) {
	s.mu.Lock()
	held := s.proc == r.proc && !r.stopping
	late := r.handshake == HandshakeTimeout
	if held {
		s.port.Store(portPresent | uint32(port))
		r.port = &port
		r.handshake = HandshakeComplete
		s.state = StateRunning
		r.events.Add(1)
	}
	s.mu.Unlock()
	if !held {
		s.logger.Debug("Ignoring port from released backend", "port", port, "pid", r.proc.PID())
		return
	}

	metrics.SetPort(port, true)
	if !late {
		metrics.ObserveHandshake(metrics.HandshakeComplete, time.Since(r.startedAt).Seconds())
	}
	s.logger.Info("Backend port received", "port", port, "pid", r.proc.PID(), "late", late)
	go func() {
		defer r.events.Done()
		s.recordEvent(history.EventHandshake, r)
	}()
}

func (s *Supervisor) handshakeFailed(r *run, readErr error) {
	err := backend.ErrHandshakeIncomplete
	if readErr != nil {
		err = fmt.Errorf("%w: %w", backend.ErrHandshakeIncomplete, readErr)
	}
	s.mu.Lock()
	pending := r.handshake == HandshakePending
	if pending {
		r.handshake = HandshakeIncomplete
		if s.cur == r && s.state == StateStarting {
			s.state = StateRunning
		}
	}
	stopping := r.stopping
	s.mu.Unlock()

	if pending {
		metrics.ObserveHandshake(metrics.HandshakeIncomplete, time.Since(r.startedAt).Seconds())
	}
	if stopping {
		s.logger.Debug("Backend stdout closed during shutdown", "pid", r.proc.PID())
		return
	}
	s.logger.Warn("Backend stdout closed before port handshake", "pid", r.proc.PID(), "error", err)
}

func (s *Supervisor) handshakeTimedOut(r *run) {
	s.mu.Lock()
	pending := r.handshake == HandshakePending
	if pending {
		r.handshake = HandshakeTimeout
		if s.cur == r && s.state == StateStarting {
			s.state = StateRunning
		}
	}
	s.mu.Unlock()
	if !pending {
		return
	}
	metrics.ObserveHandshake(metrics.HandshakeTimeout, time.Since(r.startedAt).Seconds())
	s.logger.Warn("Backend port handshake timed out; continuing without port",
		"pid", r.proc.PID(), "timeout", r.spec.HandshakeTimeout, "error", backend.ErrHandshakeTimeout)
}

// reap runs once the process has been waited. On a natural exit it clears the
// port and releases the process; after Shutdown it only cleans up.
func (s *Supervisor) reap(r *run) {
	<-r.proc.Done()
	_, exitErr := r.proc.Exited()
	s.removePIDFile(r)

	s.mu.Lock()
	natural := !r.stopping
	r.exitErr = exitErr
	r.stoppedAt = r.proc.StoppedAt()
	if s.proc == r.proc {
		s.proc = nil
		s.port.Store(0)
		s.state = StateExited
	}
	s.mu.Unlock()

	r.sampler.Stop()
	metrics.SetUp(false)
	if natural {
		metrics.SetPort(0, false)
		metrics.IncExit(exitExited)
		s.logger.Warn("Backend exited", "pid", r.proc.PID(), "error", exitErr)
		s.recordEvent(history.EventExit, r)
	}

	if !waitTimeout(&r.readers, drainGrace) {
		s.logger.Debug("Closing backend pipes with readers attached", "pid", r.proc.PID())
	}
	r.proc.ClosePipes()
	r.readers.Wait()
	r.events.Wait()
	for _, w := range []io.WriteCloser{r.outW, r.errW} {
		if w != nil {
			_ = w.Close()
		}
	}
	close(r.finished)
}

// removePIDFile leaves the file alone when it already names another run.
func (s *Supervisor) removePIDFile(r *run) {
	path := r.spec.PIDFile
	if path == "" {
		return
	}
	if pid, _, err := backend.ReadPIDFile(path); err == nil && pid == r.proc.PID() {
		backend.RemovePIDFile(path)
	}
}

func waitTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-done:
		return true
	case <-t.C:
		return false
	}
}

// Port returns the announced port. It never blocks and is absent before the
// handshake, after Shutdown and after the backend exits.
func (s *Supervisor) Port() (uint16, bool) {
	v := s.port.Load()
	if v&portPresent == 0 {
		return 0, false
	}
	return uint16(v), true // #nosec G115 -- low 16 bits
}

// Shutdown kills the backend and waits for it to be reaped, bounded by
// Spec.KillWait. Failures are logged. Calling it again, or before any
// launch, only clears the port.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	s.port.Store(0)
	r, p := s.cur, s.proc
	if p == nil {
		if s.state == StateStarting {
			s.abort = true
		}
		s.mu.Unlock()
		metrics.SetPort(0, false)
		return
	}
	r.stopping = true
	s.proc = nil
	s.state = StateStopped
	s.mu.Unlock()
	metrics.SetPort(0, false)

	s.logger.Info("Stopping backend", "pid", p.PID(), "run_id", r.id)
	if err := p.Kill(); err != nil {
		s.logger.Warn("Failed to kill backend", "pid", p.PID(), "error", fmt.Errorf("%w: %w", backend.ErrShutdown, err))
	}
	deadline := time.Now().Add(r.spec.KillWait)
	if err := p.Wait(r.spec.KillWait); err != nil {
		s.logger.Warn("Backend not reaped", "pid", p.PID(), "error", err)
	} else {
		t := time.NewTimer(time.Until(deadline))
		select {
		case <-r.finished:
		case <-t.C:
			s.logger.Warn("Backend cleanup still running", "pid", p.PID())
		}
		t.Stop()
	}
	metrics.IncExit(exitShutdown)
	s.recordEvent(history.EventShutdown, r)
	s.logger.Info("Backend stopped", "pid", p.PID())
}

// Done is closed when the latest run has exited, its pending history sends
// have finished and its output has been closed. It is
// nil before the first launch.
func (s *Supervisor) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil {
		return nil
	}
	return s.cur.finished
}

// Status returns a snapshot of the latest run.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{State: s.state}
	r := s.cur
	if r == nil {
		return st
	}
	st.RunID = r.id
	st.PID = r.proc.PID()
	st.Executable = r.proc.Path()
	st.Handshake = r.handshake
	started := r.startedAt
	st.StartedAt = &started
	if !r.stoppedAt.IsZero() {
		stopped := r.stoppedAt
		st.StoppedAt = &stopped
	}
	if r.exitErr != nil {
		st.ExitErr = r.exitErr.Error()
	}
	if p, ok := s.Port(); ok {
		st.Port = &p
	}
	if s.proc == r.proc {
		st.Resources = r.sampler.Last()
	}
	return st
}

// Ping probes the backend's readiness endpoint on loopback.
func (s *Supervisor) Ping(ctx context.Context) error {
	port, ok := s.Port()
	if !ok {
		return ErrNotReady
	}
	path := s.spec.PingPath
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://127.0.0.1:%d%s", port, path), nil)
	if err != nil {
		return err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ping backend: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ping backend: status %d", resp.StatusCode)
	}
	return nil
}

func (s *Supervisor) recordEvent(t history.EventType, r *run) {
	if s.recorder == nil {
		return
	}
	s.recorder.Record(t, s.historyRecord(r))
}

func (s *Supervisor) historyRecord(r *run) history.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := history.Record{
		RunID:      r.id,
		Name:       r.spec.Name,
		Executable: r.proc.Path(),
		PID:        r.proc.PID(),
		Handshake:  r.handshake,
		StartedAt:  r.startedAt,
	}
	if r.port != nil {
		p := int(*r.port)
		rec.Port = &p
	}
	if !r.stoppedAt.IsZero() {
		t := r.stoppedAt
		rec.StoppedAt = &t
	}
	if r.exitErr != nil {
		rec.ExitErr = r.exitErr.Error()
	}
	return rec
}
