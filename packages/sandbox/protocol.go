// Package sandbox runs calculations in throwaway worker processes. the
// host spawns one worker per calculation, talks to it over a websocket on
// the loopback interface and kills it when the hard deadline passes.
package sandbox

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// message types
const (
	// host to worker: run a calculation
	MsgCalculate = "calculate"
	// worker to host: the calculated worksheet
	MsgResult = "result"
	// worker to host: fetch another sheet for run_worksheet
	MsgLoadSheet = "load_sheet"
	// host to worker: answer to load_sheet
	MsgSheet = "sheet"
	// either way: the request was refused
	MsgError = "error"
)

// Message is the one frame type of the host/worker protocol
type Message struct {
	Type      string          `json:"type"`
	ID        int64           `json:"id,omitempty"`
	Token     string          `json:"token,omitempty"`
	Name      string          `json:"name,omitempty"`
	Worksheet json.RawMessage `json:"worksheet,omitempty"`
	Usercode  string          `json:"usercode,omitempty"`
	// seconds
	Timeout  float64 `json:"timeout,omitempty"`
	Elapsed  float64 `json:"elapsed,omitempty"`
	TimedOut bool    `json:"timed_out,omitempty"`
	Error    string  `json:"error,omitempty"`
}

func seconds(d time.Duration) float64 {
	return d.Seconds()
}

func duration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

const listeningPrefix = "Listening on port "

// announce prints the line the host waits for
func announce(w io.Writer, port int) error {
	_, err := fmt.Fprintf(w, "%s%d\n", listeningPrefix, port)
	return err
}

// ReadListeningPort reads worker output until the "Listening on port N"
// line and returns N
func ReadListeningPort(r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, listeningPrefix) {
			continue
		}
		var port int
		if _, err := fmt.Sscanf(line[len(listeningPrefix):], "%d", &port); err != nil {
			return 0, fmt.Errorf("bad worker announcement %q: %w", line, err)
		}
		return port, nil
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	return 0, io.ErrUnexpectedEOF
}
