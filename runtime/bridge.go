package runtime

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"ocr-lab/domain"
	"ocr-lab/errors"
)

const terminateGracePeriod = 2 * time.Second

// bridgeRequest and bridgeResponse are the wire protocol: one JSON object per
// line on stdin (request) and stdout (response). Responses are correlated
// only by arrival order, hence the single-outstanding-call invariant.
type bridgeRequest struct {
	Action   string `json:"action"`
	Image    string `json:"image,omitempty"`
	Language string `json:"language,omitempty"`
}

type bridgeWord struct {
	Text       string `json:"text"`
	Confidence float64 `json:"confidence"`
	BBox       struct {
		X0 float64 `json:"x0"`
		Y0 float64 `json:"y0"`
		X1 float64 `json:"x1"`
		Y1 float64 `json:"y1"`
	} `json:"bbox"`
}

type bridgeResponse struct {
	Success bool         `json:"success"`
	Results []bridgeWord `json:"results,omitempty"`
	Text    string       `json:"text,omitempty"`
	Version string       `json:"version,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// BridgeConfig describes one external engine process.
type BridgeConfig struct {
	ID        domain.EngineID
	BinPath   string
	Args      []string
	Languages []string
	Formats   []string
	Features  []string
}

// Bridge owns one long-lived external engine process and hides it behind a
// request/response call. Exactly one request is outstanding at a time; the
// mutex serializes callers instead of interleaving them on the wire.
type Bridge struct {
	mu  sync.Mutex
	log *slog.Logger
	id  domain.EngineID

	cmd       *exec.Cmd
	stdin     io.WriteCloser
	responses chan bridgeResponse
	readErr   chan error

	tainted   atomic.Bool
	closeOnce sync.Once
}

// StartBridge validates the binary, spawns the process with piped stdio and
// begins reading responses. The caller must Terminate the bridge.
func StartBridge(ctx context.Context, cfg BridgeConfig, log *slog.Logger) (*Bridge, error) {
	if _, err := os.Stat(cfg.BinPath); err != nil {
		return nil, fmt.Errorf("%w: %s", errors.ErrEngineNotFound, cfg.BinPath)
	}

	cmd := exec.CommandContext(ctx, cfg.BinPath, cfg.Args...)
	setPlatformSpecificAttrs(cmd)
	cmd.Stderr = &engineLogWriter{logger: log, prefix: string(cfg.ID)}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", cfg.BinPath, err)
	}

	b := &Bridge{
		log:       log,
		id:        cfg.ID,
		cmd:       cmd,
		stdin:     stdin,
		responses: make(chan bridgeResponse, 1),
		readErr:   make(chan error, 1),
	}
	go b.readLoop(stdout)

	log.Info("Bridge process started", "engine", cfg.ID, "pid", cmd.Process.Pid)
	return b, nil
}

// readLoop accumulates stdout lines until a parseable JSON object is formed.
// A line that is not yet valid JSON is buffered and retried on the next
// chunk, never discarded: engines are allowed to pretty-print across lines.
func (b *Bridge) readLoop(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var pending []byte
	for scanner.Scan() {
		pending = append(pending, scanner.Bytes()...)
		if !json.Valid(pending) {
			continue
		}
		var resp bridgeResponse
		if err := json.Unmarshal(pending, &resp); err != nil {
			b.log.Warn("Bridge produced undecodable response", "engine", b.id, "error", err)
			pending = nil
			continue
		}
		pending = nil
		b.responses <- resp
	}

	err := scanner.Err()
	if err == nil {
		err = errors.ErrBridgeTerminated
	}
	b.readErr <- err
}

// Probe sends {action:"test"} and reports whether the process answered
// success within the timeout. Used at registry init and by liveness checks.
func (b *Bridge) Probe(ctx context.Context, timeout time.Duration) bool {
	resp, err := b.call(ctx, bridgeRequest{Action: "test"}, timeout)
	if err != nil {
		b.log.Warn("Bridge probe failed", "engine", b.id, "error", err)
		return false
	}
	return resp.Success
}

// Invoke sends the image for recognition and assembles the engine result
// from the response. A timeout taints the bridge: the protocol offers no
// cancel message, so the process is no longer assumed safe to reuse.
func (b *Bridge) Invoke(ctx context.Context, job domain.Job) (*domain.EngineResult, error) {
	start := time.Now()
	req := bridgeRequest{
		Action:   "process",
		Image:    base64.StdEncoding.EncodeToString(job.Image),
		Language: job.Language,
	}

	resp, err := b.call(ctx, req, job.Timeout)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("%w: %s: %s", errors.ErrEngineFailure, b.id, resp.Error)
	}

	words := make([]domain.Word, 0, len(resp.Results))
	for _, w := range resp.Results {
		words = append(words, domain.Word{
			Text:       w.Text,
			Confidence: w.Confidence,
			Box:        domain.BoundingBox{X0: w.BBox.X0, Y0: w.BBox.Y0, X1: w.BBox.X1, Y1: w.BBox.Y1},
		})
	}

	page := domain.AssemblePage(1, words)
	result := domain.NewEngineResult(b.id, []domain.Page{page}, job.Language, time.Since(start), domain.Metadata{
		CorrelationID: job.CorrelationID,
		Timestamp:     time.Now().UTC(),
		EngineVersion: resp.Version,
	})
	// Engines without word geometry still report flattened text.
	if result.Text == "" && resp.Text != "" {
		result.Text = resp.Text
	}
	return result, nil
}

func (b *Bridge) call(ctx context.Context, req bridgeRequest, timeout time.Duration) (bridgeResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.tainted.Load() {
		return bridgeResponse{}, fmt.Errorf("%w: %s is tainted", errors.ErrEngineUnavailable, b.id)
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return bridgeResponse{}, fmt.Errorf("%w: encode: %v", errors.ErrBridgeProtocol, err)
	}
	if _, err := b.stdin.Write(append(payload, '\n')); err != nil {
		return bridgeResponse{}, fmt.Errorf("%w: %s: %v", errors.ErrBridgeTerminated, b.id, err)
	}

	if timeout <= 0 {
		timeout = domain.DefaultTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-b.responses:
		return resp, nil
	case err := <-b.readErr:
		return bridgeResponse{}, fmt.Errorf("%w: %s: %v", errors.ErrBridgeProtocol, b.id, err)
	case <-timer.C:
		b.tainted.Store(true)
		return bridgeResponse{}, fmt.Errorf("%w: %s after %s", errors.ErrEngineTimeout, b.id, timeout)
	case <-ctx.Done():
		b.tainted.Store(true)
		return bridgeResponse{}, fmt.Errorf("%w: %s: %v", errors.ErrEngineTimeout, b.id, ctx.Err())
	}
}

// Tainted reports whether a past timeout left the process in an unknown
// state. Tainted bridges are evicted by the registry, never reused.
func (b *Bridge) ID() domain.EngineID { return b.id }

func (b *Bridge) Tainted() bool {
	return b.tainted.Load()
}

func (b *Bridge) PID() int {
	if b.cmd.Process == nil {
		return 0
	}
	return b.cmd.Process.Pid
}

// Terminate closes stdin and kills the process after a short grace period.
// Idempotent; does not wait for a graceful exit beyond the grace period.
func (b *Bridge) Terminate() error {
	var err error
	b.closeOnce.Do(func() {
		_ = b.stdin.Close()

		done := make(chan error, 1)
		go func() { done <- b.cmd.Wait() }()

		select {
		case <-done:
		case <-time.After(terminateGracePeriod):
			if b.cmd.Process != nil {
				err = b.cmd.Process.Kill()
			}
			<-done
		}
		b.log.Info("Bridge process terminated", "engine", b.id)
	})
	return err
}
