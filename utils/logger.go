package utils

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// ANSI colour codes
const (
	reset  = "\033[0m"
	red    = "\033[31m"
	green  = "\033[32m"
	yellow = "\033[33m"
	blue   = "\033[34m"
	gray   = "\033[90m"
	cyan   = "\033[36m"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	mu       sync.Mutex
	out      io.Writer = os.Stdout
	minLevel           = LevelInfo
	colored            = true
)

// ParseLevel maps LOG_LEVEL values; unknown values mean info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Configure sets the level and colour mode for all subsequent log lines.
func Configure(level Level, color bool) {
	mu.Lock()
	defer mu.Unlock()
	minLevel = level
	colored = color
}

// SetOutput redirects log lines and returns the previous writer.
func SetOutput(w io.Writer) io.Writer {
	mu.Lock()
	defer mu.Unlock()
	prev := out
	out = w
	return prev
}

func ts() string {
	return time.Now().Format("15:04:05")
}

func write(level Level, colour, tag, format string, a ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	if level < minLevel {
		return
	}
	if !colored {
		colour = ""
	}
	end := reset
	if colour == "" {
		end = ""
	}
	fmt.Fprintf(out, "%s[%s] %-7s %s%s\n", colour, ts(), tag, fmt.Sprintf(format, a...), end)
}

func Debug(format string, a ...interface{}) {
	write(LevelDebug, gray, "[DEBUG]", format, a...)
}

func Info(format string, a ...interface{}) {
	write(LevelInfo, blue, "[INFO]", format, a...)
}

func Success(format string, a ...interface{}) {
	write(LevelInfo, green, "[OK]", format, a...)
}

func Warn(format string, a ...interface{}) {
	write(LevelWarn, yellow, "[WARN]", format, a...)
}

func Error(format string, a ...interface{}) {
	write(LevelError, red, "[ERROR]", format, a...)
}

func Section(title string) {
	mu.Lock()
	defer mu.Unlock()
	if minLevel > LevelInfo {
		return
	}
	if colored {
		fmt.Fprintf(out, "\n%s[%s] ══════════ %s ══════════%s\n\n", cyan, ts(), title, reset)
		return
	}
	fmt.Fprintf(out, "\n[%s] ══════════ %s ══════════\n\n", ts(), title)
}
