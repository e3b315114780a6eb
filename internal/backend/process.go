package backend

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"
)

// Process is a launched backend. A reaper goroutine owns cmd.Wait; everyone
// else observes exit through Done.
type Process struct {
	cmd       *exec.Cmd
	path      string
	pid       int
	startedAt time.Time
	startUnix int64

	outR   *os.File
	errR   *os.File
	stdout *LineReader
	stderr *LineReader

	done      chan struct{}
	closeOnce sync.Once

	mu        sync.Mutex
	exited    bool
	exitErr   error
	stoppedAt time.Time
}

func newProcess(cmd *exec.Cmd, path string, outR, errR *os.File) *Process {
	pid := cmd.Process.Pid
	start, _ := procStartUnix(pid)
	p := &Process{
		cmd:       cmd,
		path:      path,
		pid:       pid,
		startedAt: time.Now(),
		startUnix: start,
		outR:      outR,
		errR:      errR,
		stdout:    NewLineReader(outR),
		stderr:    NewLineReader(errR),
		done:      make(chan struct{}),
	}
	go p.reap()
	return p
}

func (p *Process) reap() {
	err := p.cmd.Wait()
	p.mu.Lock()
	p.exited = true
	p.exitErr = err
	p.stoppedAt = time.Now()
	p.mu.Unlock()
	close(p.done)
}

func (p *Process) PID() int             { return p.pid }
func (p *Process) Path() string         { return p.path }
func (p *Process) StartedAt() time.Time { return p.startedAt }

// StartUnix is the OS-reported start time, 0 when unavailable.
func (p *Process) StartUnix() int64 { return p.startUnix }

// Stdout and Stderr are the parent ends of the output pipes.
func (p *Process) Stdout() *LineReader { return p.stdout }
func (p *Process) Stderr() *LineReader { return p.stderr }

// Done is closed once the process has been reaped.
func (p *Process) Done() <-chan struct{} { return p.done }

// Exited returns whether the process was reaped and its exit error.
func (p *Process) Exited() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exited, p.exitErr
}

func (p *Process) StoppedAt() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stoppedAt
}

// Alive reports whether the process is still running.
func (p *Process) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
	}
	return !isZombie(p.pid)
}

// Kill forcefully terminates the process and its group.
func (p *Process) Kill() error {
	select {
	case <-p.done:
		return nil
	default:
	}
	return killTree(p.cmd.Process)
}

// Wait blocks until the reaper has waited the process or d elapses.
func (p *Process) Wait(d time.Duration) error {
	if d <= 0 {
		<-p.done
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-p.done:
		return nil
	case <-t.C:
		return fmt.Errorf("%w: pid %d not reaped within %s", ErrShutdown, p.pid, d)
	}
}

// ClosePipes closes the parent ends of both pipes, which unblocks readers.
func (p *Process) ClosePipes() {
	p.closeOnce.Do(func() {
		_ = p.outR.Close()
		_ = p.errR.Close()
	})
}
