package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wellsgz/pingmon/internal/probe"
)

const (
	logFilePrefix = "ping-"
	logFileSuffix = ".jsonl"
	logDateLayout = "2006-01-02"
)

// JSONLog appends outcomes as JSON lines to one file per local calendar day
type JSONLog struct {
	dir  string
	now  func() time.Time
	date string
	file *os.File
	w    *bufio.Writer
	mu   sync.Mutex
}

// NewJSONLog creates the log directory if needed
func NewJSONLog(dir string) (*JSONLog, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	return &JSONLog{dir: dir, now: time.Now}, nil
}

// Dir returns the directory holding the daily files
func (l *JSONLog) Dir() string {
	return l.dir
}

// Append writes one outcome and flushes it
func (l *JSONLog) Append(o probe.Outcome) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.rotate(); err != nil {
		return err
	}

	line, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("failed to encode outcome: %w", err)
	}
	line = append(line, '\n')

	if _, err := l.w.Write(line); err != nil {
		return fmt.Errorf("failed to write log entry: %w", err)
	}
	return l.w.Flush()
}

// rotate switches to the file for the current local date.
// Must be called with l.mu held.
func (l *JSONLog) rotate() error {
	date := l.now().Local().Format(logDateLayout)
	if l.file != nil && date == l.date {
		return nil
	}

	if l.file != nil {
		l.w.Flush()
		l.file.Close()
		l.file = nil
	}

	path := filepath.Join(l.dir, logFilePrefix+date+logFileSuffix)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	l.file = f
	l.w = bufio.NewWriter(f)
	l.date = date
	return nil
}

// Close flushes and closes the current file
func (l *JSONLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	if err := l.w.Flush(); err != nil {
		l.file.Close()
		l.file = nil
		return err
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// ListFiles returns the daily log files, newest first
func (l *JSONLog) ListFiles() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read log directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, logFilePrefix) || !strings.HasSuffix(name, logFileSuffix) {
			continue
		}
		files = append(files, filepath.Join(l.dir, name))
	}

	sort.Sort(sort.Reverse(sort.StringSlice(files)))
	return files, nil
}

// ReadFile parses a log file, skipping malformed lines
func ReadFile(path string) ([]probe.Outcome, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	var outcomes []probe.Outcome
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var o probe.Outcome
		if err := json.Unmarshal([]byte(line), &o); err != nil {
			continue
		}
		outcomes = append(outcomes, o)
	}
	if err := scanner.Err(); err != nil {
		return outcomes, fmt.Errorf("failed to read log file: %w", err)
	}
	return outcomes, nil
}
