// Package translog appends completed chat messages to hourly-rotated,
// zstd-compressed JSONL files. It is an observability artifact; game state
// itself stays memory-resident.
package translog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"voidstar.gg/internal/game"
)

// Entry is one transcript line.
type Entry struct {
	Time    time.Time `json:"time"`
	PairKey string    `json:"pairKey"`
	ID      string    `json:"id"`
	From    string    `json:"from"`
	To      string    `json:"to"`
	Message string    `json:"message"`
}

type Logger struct {
	baseDir string

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func New(baseDir string) *Logger {
	return &Logger{baseDir: baseDir}
}

// Write appends one completed chat entry.
func (l *Logger) Write(e game.ChatEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now().UTC()
	hour := now.Format("2006-01-02-15")
	if hour != l.curHour {
		if err := l.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(Entry{
		Time:    now,
		PairKey: game.PairKey(e.From, e.To),
		ID:      e.ID,
		From:    e.From,
		To:      e.To,
		Message: e.Message,
	})
	if err != nil {
		return err
	}
	if _, err := l.w.Write(b); err != nil {
		return err
	}
	if err := l.w.WriteByte('\n'); err != nil {
		return err
	}
	return l.w.Flush()
}

func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeLocked()
}

func (l *Logger) rotateLocked(hour string) error {
	if err := l.closeLocked(); err != nil {
		return err
	}
	path := filepath.Join(l.baseDir, fmt.Sprintf("chat-%s.jsonl.zst", hour))
	if err := os.MkdirAll(l.baseDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	l.f = f
	l.enc = enc
	l.w = bufio.NewWriterSize(enc, 64*1024)
	l.curHour = hour
	return nil
}

func (l *Logger) closeLocked() error {
	var err error
	if l.w != nil {
		_ = l.w.Flush()
	}
	if l.enc != nil {
		err = l.enc.Close()
		l.enc = nil
	}
	if l.f != nil {
		_ = l.f.Close()
		l.f = nil
	}
	l.w = nil
	return err
}
