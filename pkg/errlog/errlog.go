// Package errlog is the structured error sink shared by the whole import
// pipeline. Every record gets a unique ID, one line in an append-only log
// file, a JSON detail file keyed by that ID, and a mirror on the console
// logger at the matching level.
package errlog

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hubevents/btcimport/internal/utils"
	"github.com/sirupsen/logrus"
)

type Category string

const (
	CategoryAPIAccess        Category = "API_ACCESS"
	CategoryEntityResolution Category = "ENTITY_RESOLUTION"
	CategoryDataValidation   Category = "DATA_VALIDATION"
	CategoryProcessing       Category = "PROCESSING"
	CategorySystem           Category = "SYSTEM"
)

type Severity string

const (
	SeverityInfo    Severity = "INFO"
	SeverityWarning Severity = "WARNING"
	SeverityError   Severity = "ERROR"
	SeverityFatal   Severity = "FATAL"
)

type Stage string

const (
	StageExtraction       Stage = "EXTRACTION"
	StageTransformation   Stage = "TRANSFORMATION"
	StageEntityResolution Stage = "ENTITY_RESOLUTION"
	StageValidation       Stage = "VALIDATION"
	StageLoading          Stage = "LOADING"
	StageReporting        Stage = "REPORTING"
	StageSystem           Stage = "SYSTEM"
)

// Entry is the detail record persisted per error ID.
type Entry struct {
	ID            string                 `json:"errorId"`
	Timestamp     time.Time              `json:"timestamp"`
	Category      Category               `json:"category"`
	Severity      Severity               `json:"severity"`
	Stage         Stage                  `json:"stage"`
	Message       string                 `json:"message"`
	Context       map[string]interface{} `json:"context,omitempty"`
	OriginalError string                 `json:"originalError,omitempty"`
}

const lineLogName = "errors.log"

type Logger struct {
	dir string

	mu   sync.Mutex
	file *os.File
}

// New opens (creating if needed) the error log directory: an append-only
// errors.log plus a details/ subdirectory for per-ID JSON records.
func New(dir string) (*Logger, error) {
	if err := os.MkdirAll(filepath.Join(dir, "details"), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(dir, lineLogName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &Logger{dir: dir, file: f}, nil
}

func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Record writes one structured entry and returns its generated ID.
// Failures to persist are reported on the console but never propagate:
// the pipeline must not die because its error log is unwritable.
func (l *Logger) Record(cat Category, sev Severity, stage Stage, msg string, ctx map[string]interface{}, origErr error) string {
	now := time.Now()
	e := Entry{
		ID:        fmt.Sprintf("ERR-%d-%06d", now.UnixMilli(), rand.Intn(1000000)),
		Timestamp: now,
		Category:  cat,
		Severity:  sev,
		Stage:     stage,
		Message:   msg,
		Context:   ctx,
	}
	if origErr != nil {
		e.OriginalError = origErr.Error()
	}

	line := fmt.Sprintf("[%s][%s][%s][%s][%s] %s\n",
		e.Timestamp.Format(time.RFC3339), e.ID, e.Severity, e.Category, e.Stage, e.Message)

	l.mu.Lock()
	if _, err := l.file.WriteString(line); err != nil {
		utils.Log.Errorf("errlog: append failed: %v", err)
	}
	detail, _ := json.MarshalIndent(e, "", "  ")
	if err := os.WriteFile(filepath.Join(l.dir, "details", e.ID+".json"), detail, 0o644); err != nil {
		utils.Log.Errorf("errlog: detail write failed: %v", err)
	}
	l.mu.Unlock()

	console := utils.Log.WithFields(logrus.Fields{
		"errorId":  e.ID,
		"category": string(e.Category),
		"stage":    string(e.Stage),
	})
	switch sev {
	case SeverityInfo:
		console.Info(msg)
	case SeverityWarning:
		console.Warn(msg)
	default:
		// FATAL is still surfaced as an error line; exiting is the
		// orchestrator's call, not the log sink's.
		console.Error(msg)
	}

	return e.ID
}

func (l *Logger) Info(cat Category, stage Stage, msg string, ctx map[string]interface{}) string {
	return l.Record(cat, SeverityInfo, stage, msg, ctx, nil)
}

func (l *Logger) Warning(cat Category, stage Stage, msg string, ctx map[string]interface{}) string {
	return l.Record(cat, SeverityWarning, stage, msg, ctx, nil)
}

func (l *Logger) Error(cat Category, stage Stage, msg string, ctx map[string]interface{}, origErr error) string {
	return l.Record(cat, SeverityError, stage, msg, ctx, origErr)
}

func (l *Logger) Fatal(cat Category, stage Stage, msg string, ctx map[string]interface{}, origErr error) string {
	return l.Record(cat, SeverityFatal, stage, msg, ctx, origErr)
}
