package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrChainBroken = errors.New("audit chain broken")

// Event is one line of the audit file. It names what happened and to what,
// never any secret.
type Event struct {
	ID      string    `json:"id"`
	TS      time.Time `json:"ts"`
	Action  string    `json:"action"`
	Subject string    `json:"subject,omitempty"`
	Success bool      `json:"success"`
	Hash    string    `json:"hash"`
}

// Logger records operations. Nop discards them.
type Logger interface {
	Log(action, subject string, success bool) error
	Close() error
}

type Nop struct{}

func (Nop) Log(string, string, bool) error { return nil }
func (Nop) Close() error                   { return nil }

// FileLog appends events as JSON lines. Each hash covers the previous hash
// and the event, so removing or editing a line breaks every later one.
type FileLog struct {
	mu       sync.Mutex
	file     *os.File
	lastHash string
	now      func() time.Time
}

func Open(path string) (*FileLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create audit log directory: %w", err)
	}
	last, _, err := scan(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &FileLog{file: f, lastHash: last, now: time.Now}, nil
}

func (l *FileLog) Log(action, subject string, success bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return os.ErrClosed
	}
	e := Event{
		ID:      uuid.NewString(),
		TS:      l.now().UTC(),
		Action:  action,
		Subject: subject,
		Success: success,
	}
	h, err := digest(l.lastHash, e)
	if err != nil {
		return err
	}
	e.Hash = h
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("serialize audit event: %w", err)
	}
	if _, err := l.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write audit event: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("sync audit log: %w", err)
	}
	l.lastHash = h
	return nil
}

func (l *FileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Verify recomputes the chain of the file at path and returns the number of
// events checked.
func Verify(path string) (int, error) {
	_, n, err := scan(path)
	return n, err
}

// Read returns every event in the file, verifying the chain on the way.
func Read(path string) ([]Event, error) {
	var out []Event
	err := walk(path, func(e Event) { out = append(out, e) })
	return out, err
}

func scan(path string) (last string, n int, err error) {
	err = walk(path, func(e Event) {
		last = e.Hash
		n++
	})
	return last, n, err
}

func walk(path string, fn func(Event)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return walkReader(f, fn)
}

func walkReader(r io.Reader, fn func(Event)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	prev := ""
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return fmt.Errorf("%w: line %d: %v", ErrChainBroken, line, err)
		}
		want, err := digest(prev, e)
		if err != nil {
			return err
		}
		if want != e.Hash {
			return fmt.Errorf("%w: line %d", ErrChainBroken, line)
		}
		fn(e)
		prev = e.Hash
	}
	return sc.Err()
}

func digest(prev string, e Event) (string, error) {
	e.Hash = ""
	b, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write([]byte(prev))
	h.Write(b)
	return hex.EncodeToString(h.Sum(nil)), nil
}
