package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// rotatingWriter opens logs/<category>/<YYYY-MM-DD>/<HH>.log, switching
// files whenever the wall-clock date or hour changes. No third-party
// rotation library (lumberjack, rotatelogs) appears anywhere in the
// retrieved example pack, so this one piece of the logging stack is
// stdlib (os, path/filepath, time) rather than an ecosystem dependency.
type rotatingWriter struct {
	baseDir  string
	category string

	mu      sync.Mutex
	file    *os.File
	openDay string
	openHr  string
}

func newRotatingWriter(baseDir, category string) *rotatingWriter {
	return &rotatingWriter{baseDir: baseDir, category: category}
}

func (w *rotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	day := now.Format("2006-01-02")
	hour := now.Format("15")

	if w.file == nil || day != w.openDay || hour != w.openHr {
		if err := w.rotate(day, hour); err != nil {
			return 0, err
		}
	}
	return w.file.Write(p)
}

func (w *rotatingWriter) rotate(day, hour string) error {
	if w.file != nil {
		_ = w.file.Close()
	}

	dir := filepath.Join(w.baseDir, w.category, day)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("logging: creating log directory: %w", err)
	}

	path := filepath.Join(dir, hour+".log")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("logging: opening log file: %w", err)
	}

	w.file = f
	w.openDay = day
	w.openHr = hour
	return nil
}
