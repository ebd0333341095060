package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/vogtb/go-spreadsheet/packages/calc"
	"github.com/vogtb/go-spreadsheet/packages/grid"
)

const (
	DefaultTimeout      = 55 * time.Second
	DefaultGrace        = 5 * time.Second
	DefaultStartTimeout = 10 * time.Second
	DefaultWorkerUser   = "nobody"
)

var (
	// ErrTimeout marks a run that hit its timeout
	ErrTimeout = errors.New("calculation timed out")
	// ErrRootWorker is returned instead of starting a worker as root
	ErrRootWorker = errors.New("refusing to run workers as root, set an unprivileged worker user")
)

// WorkerError is a refusal reported by the worker
type WorkerError struct {
	Message string
}

func (e *WorkerError) Error() string {
	return "worker: " + e.Message
}

// HostConfig configures how workers are started
type HostConfig struct {
	// WorkerPath is the worker binary, as seen from inside the jail when
	// one is configured. defaults to the running executable.
	WorkerPath string
	// WorkerArgs default to ["worker"]
	WorkerArgs []string
	// JailDir is the chroot of each worker. empty runs unjailed.
	JailDir string
	// User the worker runs as when the host is root. a host that is not
	// root runs its workers as itself.
	User   string
	Limits Limits

	// Grace is how long after the calculation timeout the worker is
	// killed
	Grace        time.Duration
	StartTimeout time.Duration
}

// Request is one calculation
type Request struct {
	SheetID int64
	Version int64
	Name    string
	// Worksheet in its storage format
	Worksheet []byte
	Usercode  string
	Timeout   time.Duration
}

// Result is the outcome of a calculation
type Result struct {
	// Worksheet to publish, in its storage format
	Worksheet     []byte
	UsercodeError *grid.UsercodeError
	TimedOut      bool
	// Killed is set when the worker missed the hard deadline
	Killed  bool
	Elapsed time.Duration
}

// Err returns ErrTimeout for a run that timed out
func (r Result) Err() error {
	if r.TimedOut {
		return ErrTimeout
	}
	return nil
}

// Host runs calculations in workers and serves their load_sheet calls
type Host struct {
	Config  HostConfig
	Spawner Spawner
	Tokens  *TokenIssuer
	// Sheets answers run_worksheet requests. nil refuses them.
	Sheets calc.SheetSource
	Logger logrus.FieldLogger

	dialer *websocket.Dialer
	now    func() time.Time
}

func NewHost(cfg HostConfig, sheets calc.SheetSource, logger logrus.FieldLogger) *Host {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Host{
		Config:  cfg,
		Spawner: &ExecSpawner{Config: cfg, Logger: logger},
		Tokens:  NewTokenIssuer(),
		Sheets:  sheets,
		Logger:  logger,
		dialer:  websocket.DefaultDialer,
		now:     time.Now,
	}
}

func (h *Host) grace() time.Duration {
	if h.Config.Grace > 0 {
		return h.Config.Grace
	}
	return DefaultGrace
}

// Calculate runs req in a fresh worker. the returned error covers failures
// to run at all; usercode failures and timeouts are part of the Result.
func (h *Host) Calculate(ctx context.Context, req Request) (Result, error) {
	start := h.now()
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	log := h.Logger.WithFields(logrus.Fields{"sheet": req.Name, "version": req.Version})

	token, err := h.Tokens.Issue(timeout + h.grace())
	if err != nil {
		return Result{}, err
	}
	defer h.Tokens.Revoke(token.String())

	hardCtx, cancel := context.WithTimeout(ctx, timeout+h.grace())
	defer cancel()

	proc, err := h.Spawner.Spawn(hardCtx, token.Hash)
	if err != nil {
		if hardCtx.Err() != nil && ctx.Err() == nil {
			return h.killedResult(req, timeout, start)
		}
		return Result{}, fmt.Errorf("spawn worker: %w", err)
	}
	defer func() {
		proc.Kill()
		proc.Wait()
	}()

	reply, err := h.converse(hardCtx, log, proc.Port(), token.String(), req, timeout)
	if err != nil {
		if hardCtx.Err() != nil && ctx.Err() == nil {
			log.WithField("timeout", timeout).Warn("worker killed after hard deadline")
			proc.Kill()
			return h.killedResult(req, timeout, start)
		}
		return Result{}, err
	}

	result, err := resultFrom(req, reply)
	if err != nil {
		return Result{}, err
	}
	result.Elapsed = h.now().Sub(start)
	log.WithFields(logrus.Fields{
		"elapsed":   result.Elapsed,
		"timed_out": result.TimedOut,
	}).Debug("calculation finished")
	return result, nil
}

// converse sends the calculation and serves the worker until its result
// arrives
func (h *Host) converse(ctx context.Context, log logrus.FieldLogger, port int, token string, req Request, timeout time.Duration) (Message, error) {
	conn, _, err := h.dialer.DialContext(ctx, fmt.Sprintf("ws://127.0.0.1:%d/", port), nil)
	if err != nil {
		return Message{}, fmt.Errorf("dial worker: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	var writeMu sync.Mutex
	send := func(m Message) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(m)
	}

	err = send(Message{
		Type:      MsgCalculate,
		Token:     token,
		Name:      req.Name,
		Worksheet: req.Worksheet,
		Usercode:  req.Usercode,
		Timeout:   seconds(timeout),
	})
	if err != nil {
		return Message{}, fmt.Errorf("send to worker: %w", err)
	}

	var answering sync.WaitGroup
	defer answering.Wait()
	// a failed reply closes the connection, which ends the read loop
	replyErrs := make(chan error, 1)
	for {
		var m Message
		if err := conn.ReadJSON(&m); err != nil {
			answering.Wait()
			select {
			case replyErr := <-replyErrs:
				return Message{}, fmt.Errorf("answer worker: %w", replyErr)
			default:
			}
			return Message{}, fmt.Errorf("read from worker: %w", err)
		}
		switch m.Type {
		case MsgResult:
			return m, nil
		case MsgError:
			return Message{}, &WorkerError{Message: m.Error}
		case MsgLoadSheet:
			answering.Add(1)
			go func() {
				defer answering.Done()
				if err := send(h.answerLoadSheet(ctx, m)); err != nil {
					log.WithError(err).WithField("load_sheet", m.Name).Warn("reply to worker failed")
					select {
					case replyErrs <- err:
					default:
					}
					conn.Close()
				}
			}()
		}
	}
}

// answerLoadSheet serves run_worksheet while the worker's token is live
func (h *Host) answerLoadSheet(ctx context.Context, m Message) Message {
	reply := Message{Type: MsgSheet, ID: m.ID}
	if err := h.Tokens.Check(m.Token); err != nil {
		reply.Error = "PermissionError: " + err.Error()
		return reply
	}
	if h.Sheets == nil {
		reply.Error = "no sheets available"
		return reply
	}
	ws, usercode, err := h.Sheets.LoadSheet(ctx, m.Name)
	if err != nil {
		reply.Error = err.Error()
		return reply
	}
	data, err := ws.MarshalJSON()
	if err != nil {
		reply.Error = err.Error()
		return reply
	}
	reply.Worksheet = data
	reply.Usercode = usercode
	return reply
}

// resultFrom turns the worker's reply into the result to publish. a run
// that failed with a usercode error, other than a timeout, keeps the cells
// it started from.
func resultFrom(req Request, reply Message) (Result, error) {
	calculated, err := grid.Decode(req.Name, reply.Worksheet)
	if err != nil {
		return Result{}, fmt.Errorf("decode worker result: %w", err)
	}
	result := Result{
		Worksheet:     reply.Worksheet,
		UsercodeError: calculated.UsercodeError(),
		TimedOut:      reply.TimedOut,
	}
	if result.UsercodeError == nil || result.TimedOut {
		return result, nil
	}

	previous, err := grid.Decode(req.Name, req.Worksheet)
	if err != nil {
		return Result{}, fmt.Errorf("decode request worksheet: %w", err)
	}
	previous.ResetConsole()
	for _, entry := range calculated.ConsoleText() {
		previous.AddConsoleText(entry.Text, entry.Type)
	}
	previous.SetUsercodeError(result.UsercodeError)
	if result.Worksheet, err = previous.MarshalJSON(); err != nil {
		return Result{}, err
	}
	return result, nil
}

// killedResult is the pre-run worksheet showing the timeout
func (h *Host) killedResult(req Request, timeout time.Duration, start time.Time) (Result, error) {
	ws, err := grid.Decode(req.Name, req.Worksheet)
	if err != nil {
		return Result{}, fmt.Errorf("decode request worksheet: %w", err)
	}
	ue := &grid.UsercodeError{Message: "TimeoutError: " + calc.TimeoutMessage(timeout)}
	ws.ResetConsole()
	ws.AddConsoleText(ue.Message+"\n", grid.ConsoleError)
	ws.SetUsercodeError(ue)
	data, err := ws.MarshalJSON()
	if err != nil {
		return Result{}, err
	}
	return Result{
		Worksheet:     data,
		UsercodeError: ue,
		TimedOut:      true,
		Killed:        true,
		Elapsed:       h.now().Sub(start),
	}, nil
}
