package logger

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"regexp"
	"strings"
	"sync/atomic"
	"time"
)

type LogLevel string

const (
	InfoLevel  LogLevel = "INFO"
	WarnLevel  LogLevel = "WARN"
	ErrorLevel LogLevel = "ERROR"
	DebugLevel LogLevel = "DEBUG"
)

var levelRank = map[LogLevel]int32{
	DebugLevel: 0,
	InfoLevel:  1,
	WarnLevel:  2,
	ErrorLevel: 3,
}

// minRank is shared by every Logger since each package holds its own instance.
var minRank atomic.Int32

func init() {
	minRank.Store(levelRank[InfoLevel])
}

// SetLevel sets the process-wide minimum level. Unknown names select INFO.
func SetLevel(name string) LogLevel {
	level := LogLevel(strings.ToUpper(strings.TrimSpace(name)))
	rank, ok := levelRank[level]
	if !ok {
		level, rank = InfoLevel, levelRank[InfoLevel]
	}
	minRank.Store(rank)
	return level
}

// LogEntry describes the structure of a log message
type LogEntry struct {
	Time    string   `json:"time"`
	Level   LogLevel `json:"level"`
	Module  string   `json:"module,omitempty"`
	Message string   `json:"message"`
	Error   string   `json:"error,omitempty"`
}

// Logger is a centralized structured logger
type Logger struct {
	out *log.Logger
}

// New creates a new Logger writing to stdout
func New() *Logger {
	return NewWithWriter(os.Stdout)
}

// NewWithWriter creates a Logger writing JSON lines to w
func NewWithWriter(w io.Writer) *Logger {
	return &Logger{
		out: log.New(w, "", 0),
	}
}

var (
	emailRegex    = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	tokenRegex    = regexp.MustCompile(`eyJ[^\s"]+`)
	passwordRegex = regexp.MustCompile(`(?i)("?password"?\s*[:=]\s*)("[^"]*"|\S+)`)
	sessionRegex  = regexp.MustCompile(`(?i)\b(sid|session|token)\s*=\s*[0-9a-f-]{8,}`)
)

// Anonymize replaces sensitive information in logs (emails, tokens, passwords)
func Anonymize(s string) string {
	s = emailRegex.ReplaceAllString(s, "[REDACTED_EMAIL]")
	s = tokenRegex.ReplaceAllString(s, "[REDACTED_TOKEN]")
	s = passwordRegex.ReplaceAllString(s, "${1}[REDACTED]")
	s = sessionRegex.ReplaceAllString(s, "${1}=[REDACTED_SESSION]")
	return s
}

// internal log function
func (l *Logger) log(module string, level LogLevel, msg string, err error) {
	if levelRank[level] < minRank.Load() {
		return
	}
	entry := LogEntry{
		Time:    time.Now().Format(time.RFC3339),
		Level:   level,
		Module:  module,
		Message: Anonymize(msg),
	}
	if err != nil {
		entry.Error = Anonymize(err.Error())
	}
	data, _ := json.Marshal(entry)
	l.out.Println(string(data))
}

// --- Convenient methods ---
func (l *Logger) Info(module, msg string) {
	l.log(module, InfoLevel, msg, nil)
}

func (l *Logger) Debug(module, msg string) {
	l.log(module, DebugLevel, msg, nil)
}

func (l *Logger) Warn(module, msg string, err error) {
	l.log(module, WarnLevel, msg, err)
}

func (l *Logger) Error(module, msg string, err error) {
	l.log(module, ErrorLevel, msg, err)
}
