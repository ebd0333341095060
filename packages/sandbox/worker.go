package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/vogtb/go-spreadsheet/packages/calc"
	"github.com/vogtb/go-spreadsheet/packages/grid"
)

// TokenHashEnv carries the bcrypt hash of the worker's token
const TokenHashEnv = "SPREADSHEET_TOKEN_HASH"

var errHostGone = errors.New("host connection closed")

// WorkerConfig configures one worker process
type WorkerConfig struct {
	// Addr to listen on. defaults to 127.0.0.1:0.
	Addr string
	// TokenHash is the bcrypt hash of the only token accepted
	TokenHash []byte
	// Workers bounds concurrent cell evaluations
	Workers int
	// Stdout receives the "Listening on port N" announcement
	Stdout io.Writer
	Logger logrus.FieldLogger
}

// ServeWorker listens for a single host connection, runs the calculation
// it asks for and returns once the result has been sent
func ServeWorker(ctx context.Context, cfg WorkerConfig) error {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:0"
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("worker listen: %w", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	log := cfg.Logger.WithField("port", port)

	verifier := NewVerifier(cfg.TokenHash)
	upgrader := websocket.Upgrader{}
	done := make(chan error, 1)
	var claimed sync.Once

	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		first := false
		claimed.Do(func() { first = true })
		if !first {
			http.Error(w, "worker already has a session", http.StatusConflict)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			done <- fmt.Errorf("worker upgrade: %w", err)
			return
		}
		s := &workerSession{conn: conn, pending: make(map[int64]chan Message), log: log}
		err = s.run(ctx, verifier, cfg)
		conn.Close()
		done <- err
	})}

	go srv.Serve(ln)
	defer srv.Close()

	if err := announce(cfg.Stdout, port); err != nil {
		return fmt.Errorf("worker announce: %w", err)
	}
	log.Debug("worker listening")

	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	return err
}

type workerSession struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[int64]chan Message
	nextID  int64
	closed  bool

	token string
	log   logrus.FieldLogger
}

func (s *workerSession) send(m Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(m)
}

func (s *workerSession) run(ctx context.Context, verifier *Verifier, cfg WorkerConfig) error {
	var req Message
	if err := s.conn.ReadJSON(&req); err != nil {
		return fmt.Errorf("worker read request: %w", err)
	}
	if req.Type != MsgCalculate {
		s.send(Message{Type: MsgError, Error: fmt.Sprintf("unexpected %q message", req.Type)})
		return fmt.Errorf("worker: unexpected %q message", req.Type)
	}
	if err := verifier.Redeem(req.Token); err != nil {
		s.send(Message{Type: MsgError, Error: err.Error()})
		return fmt.Errorf("worker: %w", err)
	}
	s.token = req.Token

	ws, err := grid.Decode(req.Name, req.Worksheet)
	if err != nil {
		s.send(Message{Type: MsgError, Error: err.Error()})
		return fmt.Errorf("worker: %w", err)
	}

	go s.readLoop()

	calculator := calc.NewCalculator(calc.SheetSourceFunc(s.loadSheet), s.log)
	if cfg.Workers > 0 {
		calculator.Workers = cfg.Workers
	}
	result := calculator.Calculate(ctx, ws, req.Usercode, calc.Options{Timeout: duration(req.Timeout)})

	data, err := ws.MarshalJSON()
	if err != nil {
		s.send(Message{Type: MsgError, Error: err.Error()})
		return fmt.Errorf("worker encode result: %w", err)
	}
	s.log.WithFields(logrus.Fields{
		"sheet":   req.Name,
		"cells":   ws.Len(),
		"elapsed": result.Elapsed,
	}).Debug("worker calculation done")
	return s.send(Message{
		Type:      MsgResult,
		Worksheet: data,
		TimedOut:  result.TimedOut,
		Elapsed:   seconds(result.Elapsed),
	})
}

// readLoop hands load_sheet answers to their waiting callers
func (s *workerSession) readLoop() {
	for {
		var m Message
		if err := s.conn.ReadJSON(&m); err != nil {
			s.mu.Lock()
			s.closed = true
			for id, ch := range s.pending {
				close(ch)
				delete(s.pending, id)
			}
			s.mu.Unlock()
			return
		}
		if m.Type != MsgSheet {
			continue
		}
		s.mu.Lock()
		ch, ok := s.pending[m.ID]
		delete(s.pending, m.ID)
		s.mu.Unlock()
		if ok {
			ch <- m
		}
	}
}

// loadSheet asks the host for another sheet
func (s *workerSession) loadSheet(ctx context.Context, name string) (*grid.Worksheet, string, error) {
	ch := make(chan Message, 1)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, "", errHostGone
	}
	s.nextID++
	id := s.nextID
	s.pending[id] = ch
	s.mu.Unlock()

	if err := s.send(Message{Type: MsgLoadSheet, ID: id, Name: name, Token: s.token}); err != nil {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		return nil, "", fmt.Errorf("request sheet %s: %w", name, err)
	}

	select {
	case reply, ok := <-ch:
		if !ok {
			return nil, "", errHostGone
		}
		if reply.Error != "" {
			return nil, "", errors.New(reply.Error)
		}
		ws, err := grid.Decode(name, reply.Worksheet)
		if err != nil {
			return nil, "", err
		}
		return ws, reply.Usercode, nil
	case <-ctx.Done():
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		return nil, "", ctx.Err()
	}
}
