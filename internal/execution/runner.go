package execution

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"autograder/internal/domain"
	"autograder/internal/logging"
)

const (
	// DefaultDrainWait bounds how long echo mode waits for a prompt before feeding the next chunk
	DefaultDrainWait = 50 * time.Millisecond
	// DefaultWaitDelay bounds pipe teardown after the child has exited or been killed
	DefaultWaitDelay = 500 * time.Millisecond
	// DefaultMaxOutputBytes caps each captured stream
	DefaultMaxOutputBytes = 4 << 20

	readChunkSize = 16 * 1024
	settlePoll    = 2 * time.Millisecond
)

// InteractiveRunner feeds scripted input to a candidate and records its console transcript
type InteractiveRunner struct {
	drainWait      time.Duration
	waitDelay      time.Duration
	maxOutputBytes int
	env            []string
	logger         logging.Logger
}

// Option configures an InteractiveRunner
type Option func(*InteractiveRunner)

// WithDrainWait caps the wait for a prompt before each stdin chunk in echo mode
func WithDrainWait(d time.Duration) Option {
	return func(r *InteractiveRunner) {
		if d > 0 {
			r.drainWait = d
		}
	}
}

// WithWaitDelay sets how long Wait may block on pipes after the process is gone
func WithWaitDelay(d time.Duration) Option {
	return func(r *InteractiveRunner) {
		if d > 0 {
			r.waitDelay = d
		}
	}
}

// WithMaxOutput caps the number of bytes kept from stdout and stderr
func WithMaxOutput(n int) Option {
	return func(r *InteractiveRunner) {
		if n > 0 {
			r.maxOutputBytes = n
		}
	}
}

// WithEnv adds KEY=VALUE entries to the child environment
func WithEnv(env []string) Option {
	return func(r *InteractiveRunner) {
		r.env = append(r.env, env...)
	}
}

// WithLogger sets the runner logger
func WithLogger(l logging.Logger) Option {
	return func(r *InteractiveRunner) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRunner creates a new InteractiveRunner
func NewRunner(opts ...Option) *InteractiveRunner {
	r := &InteractiveRunner{
		drainWait:      DefaultDrainWait,
		waitDelay:      DefaultWaitDelay,
		maxOutputBytes: DefaultMaxOutputBytes,
		logger:         logging.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the candidate under a single aggregate deadline.
//
// Before every stdin chunk the runner takes whatever the program has printed so
// far without waiting. With EchoInput set it first lets the program settle, so
// that prompts and echoed input end up in the transcript in order. When the
// deadline passes the whole process group is killed and the outcome is marked
// as timed out.
func (r *InteractiveRunner) Run(ctx context.Context, req Request) (domain.ExecutionOutcome, error) {
	if len(req.Command) == 0 {
		return domain.ExecutionOutcome{}, errors.New("empty command")
	}
	if req.Timeout <= 0 {
		return domain.ExecutionOutcome{}, fmt.Errorf("invalid timeout %s", req.Timeout)
	}

	runCtx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, req.Command[0], req.Command[1:]...)
	cmd.Dir = req.Dir
	cmd.Env = append(os.Environ(), r.env...)
	cmd.WaitDelay = r.waitDelay
	ConfigureProcess(cmd)

	// A plain pipe rather than StdinPipe, so that unread input can be measured.
	stdinR, stdin, err := os.Pipe()
	if err != nil {
		return domain.ExecutionOutcome{}, fmt.Errorf("stdin pipe: %w", err)
	}
	defer stdin.Close()
	cmd.Stdin = stdinR
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdinR.Close()
		return domain.ExecutionOutcome{}, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdinR.Close()
		return domain.ExecutionOutcome{}, fmt.Errorf("stderr pipe: %w", err)
	}

	start := time.Now()
	err = cmd.Start()
	stdinR.Close()
	if err != nil {
		return domain.ExecutionOutcome{}, fmt.Errorf("start %s: %w", req.Command[0], err)
	}
	r.logger.Debug("candidate started", "pid", cmd.Process.Pid, "dir", req.Dir, "chunks", len(req.Stdin))

	chunks := make(chan []byte, 16)
	go readChunks(stdout, chunks)
	errOut := make(chan []byte, 1)
	go func() {
		errOut <- readLimited(stderr, r.maxOutputBytes)
	}()

	out := &transcript{limit: r.maxOutputBytes}
	open := true
	for _, chunk := range req.Stdin {
		if chunk == "" {
			continue
		}
		if req.EchoInput {
			open = r.settle(runCtx, cmd.Process.Pid, stdin, chunks, out)
		} else {
			open = takeAvailable(chunks, out)
		}
		if !open || runCtx.Err() != nil {
			break
		}
		if req.EchoInput {
			out.WriteString(chunk)
		}
		if err := writeChunk(runCtx, stdin, chunk); err != nil {
			// The program stopped reading; what it printed is still collected below.
			r.logger.Debug("stdin write stopped", "error", err)
			break
		}
	}
	_ = stdin.Close()
	if open {
		collect(runCtx, chunks, out)
	}

	var errBytes []byte
	select {
	case errBytes = <-errOut:
	case <-runCtx.Done():
	}

	waitErr := cmd.Wait()
	elapsed := time.Since(start)
	go func() {
		for range chunks {
		}
	}()

	if ctx.Err() != nil {
		return domain.ExecutionOutcome{Elapsed: elapsed}, fmt.Errorf("run interrupted: %w", ctx.Err())
	}

	outcome := domain.ExecutionOutcome{
		Stdout:  NormalizeNewlines(DecodePermissive(out.Bytes())),
		Stderr:  DecodePermissive(errBytes),
		Elapsed: elapsed,
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) || elapsed >= req.Timeout {
		label := req.Label
		if label == "" {
			label = req.Command[0]
		}
		outcome.TimedOut = true
		outcome.Stderr = TimeoutMessage(label, req.Timeout)
		r.logger.Debug("candidate killed after deadline", "label", label, "elapsed", elapsed)
		return outcome, nil
	}

	if cmd.ProcessState == nil {
		return outcome, fmt.Errorf("wait %s: %w", req.Command[0], waitErr)
	}
	code := cmd.ProcessState.ExitCode()
	outcome.ExitCode = &code
	return outcome, nil
}

// TimeoutMessage is the error text recorded for a run that exceeded its deadline
func TimeoutMessage(label string, timeout time.Duration) string {
	return fmt.Sprintf("[%s] maximum runtime allowance (%.2f seconds) exceeded", label, timeout.Seconds())
}

// takeAvailable moves whatever stdout is already buffered into the transcript
// without waiting. It returns false once stdout is closed.
func takeAvailable(chunks <-chan []byte, out *transcript) bool {
	for {
		select {
		case b, ok := <-chunks:
			if !ok {
				return false
			}
			out.Write(b)
		default:
			return true
		}
	}
}

// settle collects output until the child is blocked waiting for input, seen on
// two polls in a row, or until drainWait passes. Where that cannot be probed
// it stops after the first burst of output. It returns false once stdout is
// closed.
func (r *InteractiveRunner) settle(ctx context.Context, pid int, stdin *os.File, chunks <-chan []byte, out *transcript) bool {
	timer := time.NewTimer(r.drainWait)
	defer timer.Stop()
	ticker := time.NewTicker(settlePoll)
	defer ticker.Stop()

	idle := 0
	for {
		select {
		case b, ok := <-chunks:
			if !ok {
				return false
			}
			out.Write(b)
			idle = 0
			if !canProbeInput {
				return takeAvailable(chunks, out)
			}
		case <-ticker.C:
			if !awaitingInput(pid, stdin) {
				idle = 0
				continue
			}
			if idle++; idle >= 2 {
				return takeAvailable(chunks, out)
			}
		case <-timer.C:
			return takeAvailable(chunks, out)
		case <-ctx.Done():
			return true
		}
	}
}

// collect reads stdout until it is closed or the deadline passes
func collect(ctx context.Context, chunks <-chan []byte, out *transcript) {
	for {
		select {
		case b, ok := <-chunks:
			if !ok {
				return
			}
			out.Write(b)
		case <-ctx.Done():
			return
		}
	}
}

// writeChunk writes to the child's stdin without outliving the deadline
func writeChunk(ctx context.Context, w io.Writer, chunk string) error {
	done := make(chan error, 1)
	go func() {
		_, err := io.WriteString(w, chunk)
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func readChunks(r io.Reader, out chan<- []byte) {
	defer close(out)
	for {
		buf := make([]byte, readChunkSize)
		n, err := r.Read(buf)
		if n > 0 {
			out <- buf[:n]
		}
		if err != nil {
			return
		}
	}
}

func readLimited(r io.Reader, limit int) []byte {
	b, _ := io.ReadAll(io.LimitReader(r, int64(limit)))
	_, _ = io.Copy(io.Discard, r)
	return b
}

// transcript is a byte buffer that silently stops growing at its limit
type transcript struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (t *transcript) Write(b []byte) {
	room := t.limit - t.buf.Len()
	if room <= 0 {
		t.truncated = true
		return
	}
	if len(b) > room {
		b = b[:room]
		t.truncated = true
	}
	t.buf.Write(b)
}

func (t *transcript) WriteString(s string) {
	t.Write([]byte(s))
}

func (t *transcript) Bytes() []byte {
	return t.buf.Bytes()
}
