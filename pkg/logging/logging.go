// pkg/logging/logging.go - structured, timestamped logging for Reclaim.
//
// Each run gets its own timestamped directory (YYYY-MM-DD-HHMMss) under the
// configured log root. The plain reclaim.log is kept for humans; events.jsonl
// carries one JSON object per line for external log shippers. Old run
// directories are pruned according to the retention policy.

package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// LogLevel represents the severity of the log message.
type LogLevel int

const (
	LevelError LogLevel = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

// String returns the string representation of the LogLevel.
func (ll LogLevel) String() string {
	switch ll {
	case LevelError:
		return "ERROR"
	case LevelWarn:
		return "WARN"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a configuration string to a LogLevel. Unknown values
// default to INFO.
func ParseLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ERROR":
		return LevelError
	case "WARN", "WARNING":
		return LevelWarn
	case "DEBUG":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// Entry is one structured log record as written to events.jsonl.
type Entry struct {
	Time       int64                  `json:"time"`
	Timestamp  string                 `json:"timestamp"`
	Level      string                 `json:"level"`
	Message    string                 `json:"message"`
	Component  string                 `json:"component"`
	PID        int64                  `json:"pid"`
	Hostname   string                 `json:"hostname"`
	SessionID  string                 `json:"session_id"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// RetentionPolicy defines how many old run directories are kept.
type RetentionPolicy struct {
	MaxRuns    int // Keep at most N run directories
	MaxAgeDays int // Delete run directories older than N days
}

// DefaultRetentionPolicy returns sensible defaults for log retention.
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{MaxRuns: 30, MaxAgeDays: 30}
}

// Config holds configuration for the logger.
type Config struct {
	BaseDir       string
	Component     string
	SessionID     string
	Level         LogLevel
	Retention     RetentionPolicy
	EnableConsole bool
	EnableJSON    bool
}

// Logger writes to the per-run log files and optionally the console.
type Logger struct {
	mu        sync.Mutex
	logger    *log.Logger
	level     LogLevel
	logFile   *os.File
	jsonFile  *os.File
	config    Config
	startTime time.Time
	logDir    string
	hostname  string
}

var (
	instance *Logger
	once     sync.Once
)

// generateSessionID creates a unique session identifier for one run.
func generateSessionID() string {
	return fmt.Sprintf("reclaim-%d-%s", os.Getpid(), time.Now().Format("2006-01-02-150405"))
}

// Init initializes the singleton logger. It must be called before any of the
// package-level logging functions.
func Init(cfg Config) error {
	var initErr error
	once.Do(func() {
		instance, initErr = newLogger(cfg)
	})
	return initErr
}

func newLogger(cfg Config) (*Logger, error) {
	start := time.Now()

	if cfg.SessionID == "" {
		cfg.SessionID = generateSessionID()
	}
	if cfg.Component == "" {
		cfg.Component = "reclaim"
	}
	if cfg.Retention == (RetentionPolicy{}) {
		cfg.Retention = DefaultRetentionPolicy()
	}

	logDir := filepath.Join(cfg.BaseDir, start.Format("2006-01-02-150405"))
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("creating log directory %s: %w", logDir, err)
	}

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}

	l := &Logger{
		config:    cfg,
		level:     cfg.Level,
		startTime: start,
		logDir:    logDir,
		hostname:  hostname,
	}

	var err error
	l.logFile, err = os.OpenFile(filepath.Join(logDir, "reclaim.log"),
		os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening main log file: %w", err)
	}

	if cfg.EnableJSON {
		l.jsonFile, err = os.OpenFile(filepath.Join(logDir, "events.jsonl"),
			os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("opening JSON log file: %w", err)
		}
	}

	if cfg.EnableConsole {
		l.logger = log.New(io.MultiWriter(os.Stdout, l.logFile), "", 0)
	} else {
		l.logger = log.New(l.logFile, "", 0)
	}

	l.pruneOldRuns()

	return l, nil
}

// pruneOldRuns removes old run directories according to the retention policy.
func (l *Logger) pruneOldRuns() {
	entries, err := os.ReadDir(l.config.BaseDir)
	if err != nil {
		return
	}

	var runDirs []string
	for _, entry := range entries {
		// Run directory names follow the YYYY-MM-DD-HHMMss format.
		if entry.IsDir() && len(entry.Name()) == 17 && strings.Count(entry.Name(), "-") == 3 {
			runDirs = append(runDirs, entry.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(runDirs)))

	maxAge := time.Duration(l.config.Retention.MaxAgeDays) * 24 * time.Hour
	now := time.Now()
	for i, name := range runDirs {
		path := filepath.Join(l.config.BaseDir, name)
		tooMany := l.config.Retention.MaxRuns > 0 && i >= l.config.Retention.MaxRuns
		tooOld := false
		if info, err := os.Stat(path); err == nil && maxAge > 0 {
			tooOld = now.Sub(info.ModTime()) > maxAge
		}
		if tooMany || tooOld {
			os.RemoveAll(path)
		}
	}
}

// CloseLogger closes the log files of the singleton logger.
func CloseLogger() {
	if instance == nil {
		return
	}
	instance.mu.Lock()
	defer instance.mu.Unlock()
	if instance.logFile != nil {
		instance.logFile.Close()
		instance.logFile = nil
	}
	if instance.jsonFile != nil {
		instance.jsonFile.Close()
		instance.jsonFile = nil
	}
}

// logMessage writes a record to all configured outputs.
func (l *Logger) logMessage(level LogLevel, message string, keyValues ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logger == nil {
		fmt.Printf("LOGGING NOT INITIALIZED: %s %s %v\n", level.String(), message, keyValues)
		return
	}
	if level > l.level {
		return
	}

	properties := make(map[string]interface{})
	for i := 0; i+1 < len(keyValues); i += 2 {
		properties[fmt.Sprintf("%v", keyValues[i])] = keyValues[i+1]
	}

	now := time.Now()
	line := fmt.Sprintf("[%s] %-5s %s", now.Format("2006-01-02 15:04:05"), level.String(), message)
	for i := 0; i+1 < len(keyValues); i += 2 {
		line += fmt.Sprintf(" %v=%v", keyValues[i], keyValues[i+1])
	}
	l.logger.Println(line)

	if l.jsonFile != nil {
		entry := Entry{
			Time:       now.Unix(),
			Timestamp:  now.Format(time.RFC3339),
			Level:      level.String(),
			Message:    message,
			Component:  l.config.Component,
			PID:        int64(os.Getpid()),
			Hostname:   l.hostname,
			SessionID:  l.config.SessionID,
			Properties: properties,
		}
		if data, err := json.Marshal(entry); err == nil {
			l.jsonFile.WriteString(string(data) + "\n")
		}
	}
}

// Info logs informational messages.
func Info(message string, keyValues ...interface{}) {
	if instance == nil {
		fmt.Printf("LOGGING NOT INITIALIZED: INFO %s %v\n", message, keyValues)
		return
	}
	instance.logMessage(LevelInfo, message, keyValues...)
}

// Debug logs debug messages.
func Debug(message string, keyValues ...interface{}) {
	if instance == nil {
		return
	}
	instance.logMessage(LevelDebug, message, keyValues...)
}

// Warn logs warning messages.
func Warn(message string, keyValues ...interface{}) {
	if instance == nil {
		fmt.Printf("LOGGING NOT INITIALIZED: WARN %s %v\n", message, keyValues)
		return
	}
	instance.logMessage(LevelWarn, message, keyValues...)
}

// Error logs error messages.
func Error(message string, keyValues ...interface{}) {
	if instance == nil {
		fmt.Printf("LOGGING NOT INITIALIZED: ERROR %s %v\n", message, keyValues)
		return
	}
	instance.logMessage(LevelError, message, keyValues...)
}

// SetLevel adjusts the active log level of the singleton logger.
func SetLevel(level LogLevel) {
	if instance == nil {
		return
	}
	instance.mu.Lock()
	defer instance.mu.Unlock()
	instance.level = level
}

// GetCurrentLogDir returns the current timestamped log directory.
func GetCurrentLogDir() string {
	if instance == nil {
		return ""
	}
	instance.mu.Lock()
	defer instance.mu.Unlock()
	return instance.logDir
}

// GetSessionID returns the current session ID.
func GetSessionID() string {
	if instance == nil {
		return ""
	}
	instance.mu.Lock()
	defer instance.mu.Unlock()
	return instance.config.SessionID
}
