// Copyright 2025 The nearcore Go authors
// This file is part of the nearcore Go state sync core.
//
// This software is provided "as is", without warranty of any kind,
// express or implied, including but not limited to the warranties
// of merchantability, fitness for a particular purpose and
// noninfringement. In no event shall the authors or copyright
// holders be liable for any claim, damages, or other liability,
// whether in an action of contract, tort or otherwise, arising
// from, out of or in connection with the software or the use or
// other dealings in the software.

// Package log is the structured logger shared by every statesync component.
// It re-exports github.com/ethereum/go-ethereum/log's package-level API so
// call sites read exactly like the teacher's (log.Debug("msg", "k", v, ...)),
// and adds a rotating file handler option backed by lumberjack for
// long-running validator nodes that would otherwise fill a single log file.
package log

import (
	"os"

	gethlog "github.com/ethereum/go-ethereum/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Re-exported so callers never need to import go-ethereum/log directly.
type Logger = gethlog.Logger

var (
	Trace = gethlog.Trace
	Debug = gethlog.Debug
	Info  = gethlog.Info
	Warn  = gethlog.Warn
	Error = gethlog.Error
	Crit  = gethlog.Crit
	New   = gethlog.New
	Root  = gethlog.Root
)

// Config controls where and how statesync logs are written.
type Config struct {
	// Level is one of the package's Level constants (LevelTrace ... LevelCrit).
	Level gethlog.Level
	// File, if non-empty, routes logs through a rotating lumberjack writer
	// instead of stderr.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Init installs the root logger used by the whole process, following the
// same terminal-vs-file handler split the teacher's node command line
// offers, generalized to read from Config instead of CLI flags.
func Init(cfg Config) {
	var handler gethlog.Handler
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    orDefault(cfg.MaxSizeMB, 100),
			MaxBackups: orDefault(cfg.MaxBackups, 5),
			MaxAge:     orDefault(cfg.MaxAgeDays, 28),
			Compress:   true,
		}
		handler = gethlog.NewTerminalHandlerWithLevel(rotator, cfg.Level, false)
	} else {
		handler = gethlog.NewTerminalHandlerWithLevel(os.Stderr, cfg.Level, true)
	}
	gethlog.SetDefault(gethlog.NewLogger(handler))
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
