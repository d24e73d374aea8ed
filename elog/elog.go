// Package elog is a process-wide, gob-encoded log of protocol milestones
// (instances resolved, leadership changes, catch-up rounds, transaction
// outcomes). It is disabled unless the -log_events flag is set.
package elog

import (
	"bufio"
	"encoding/gob"
	"flag"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"sync"
	"time"

	e "github.com/relab/txpaxos/elog/event"
)

const (
	flushInterval = 30 * time.Second
	bufferSize    = 1024 * 256
)

var logger eventLogger

type eventLogger struct {
	enabled bool
	mu      sync.Mutex
	*bufio.Writer
	*gob.Encoder
	*os.File
	flushOnce sync.Once
}

func init() {
	flag.BoolVar(&logger.enabled, "log_events", false, "enable event logging")
}

func (el *eventLogger) init() {
	var err error
	name, symlink := logName()
	el.File, err = os.Create(name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "elog: exiting due to error: %s\n", err)
		os.Exit(2)
	}
	os.Remove(symlink)        // ignore err
	os.Symlink(name, symlink) // ignore err
	el.Writer = bufio.NewWriterSize(el.File, bufferSize)
	el.Encoder = gob.NewEncoder(el.Writer)
	el.flushOnce.Do(func() { go el.flushRegularly() })
}

// IsEnabled reports whether the EventLogger is enabled.
func IsEnabled() bool {
	logger.mu.Lock()
	defer logger.mu.Unlock()
	return logger.enabled
}

// Enable enables the EventLogger.
func Enable() {
	logger.mu.Lock()
	defer logger.mu.Unlock()
	logger.enabled = true
}

// Disable disables the EventLogger.
func Disable() {
	logger.mu.Lock()
	defer logger.mu.Unlock()
	logger.enabled = false
}

// Log logs event e if the EventLogger is enabled.
func Log(e e.Event) {
	logger.mu.Lock()
	defer logger.mu.Unlock()
	if logger.enabled {
		if logger.Encoder == nil {
			logger.init()
		}
		logger.Encoder.Encode(e)
	}
}

// Flush flushes all pending events to file.
func Flush() {
	logger.mu.Lock()
	defer logger.mu.Unlock()
	logger.flush()
}

func (el *eventLogger) flushRegularly() {
	for range time.Tick(flushInterval) {
		el.mu.Lock()
		el.flush()
		el.mu.Unlock()
	}
}

func (el *eventLogger) flush() {
	if el.Encoder != nil {
		el.Writer.Flush()
		el.File.Sync()
	}
}

var (
	pid     = os.Getpid()
	program = filepath.Base(os.Args[0])
)

func logName() (name, link string) {
	host, userName := "unknownhost", "unknownuser"
	if h, err := os.Hostname(); err == nil {
		if i := strings.Index(h, "."); i >= 0 {
			h = h[:i]
		}
		host = h
	}
	if current, err := user.Current(); err == nil {
		userName = current.Username
	}
	return fmt.Sprintf("%s.%s.%s.%s.pid%d.elog",
		program, host, userName, time.Now().Format("20060102-150405"), pid), program + ".elog"
}
