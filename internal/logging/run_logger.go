package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// RunLogger manages the detailed log file for a single resolve or
// dependency-analysis run. Console output goes through zerolog; this file
// keeps the full prompts, responses and per-hunk decisions that are too
// verbose for the console.
type RunLogger struct {
	runID     string
	logFile   *os.File
	mutex     sync.Mutex
	startTime time.Time
}

var (
	currentLogger *RunLogger
	loggerMutex   sync.Mutex
)

// StartRunLogging initializes logging for a new run. Any previous run
// logger is closed first.
func StartRunLogging(logDir, runID string) (*RunLogger, error) {
	loggerMutex.Lock()
	defer loggerMutex.Unlock()

	if currentLogger != nil {
		currentLogger.Close()
	}

	if logDir == "" {
		logDir = "resolution_logs"
	}
	timestamp := time.Now().Format("20060102_150405")
	logPath := filepath.Join(logDir, fmt.Sprintf("run_%s_%s.log", runID, timestamp))

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logFile, err := os.Create(logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	logger := &RunLogger{
		runID:     runID,
		logFile:   logFile,
		startTime: time.Now(),
	}
	currentLogger = logger
	logger.writeHeader()

	return logger, nil
}

// GetCurrentLogger returns the current active logger, which may be nil.
func GetCurrentLogger() *RunLogger {
	loggerMutex.Lock()
	defer loggerMutex.Unlock()
	return currentLogger
}

// Log writes a timestamped message to the run log. Safe on a nil receiver.
func (r *RunLogger) Log(format string, args ...interface{}) {
	if r == nil {
		return
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	timestamp := time.Now().Format("15:04:05.000")
	elapsed := time.Since(r.startTime)
	message := fmt.Sprintf("[%s] [+%v] %s\n", timestamp, elapsed.Round(time.Millisecond), fmt.Sprintf(format, args...))
	r.logFile.WriteString(message)
	r.logFile.Sync()
}

// LogSection writes a section header to the log.
func (r *RunLogger) LogSection(title string) {
	if r == nil {
		return
	}

	separator := "================================================================================"
	r.Log("%s", separator)
	r.Log("= %s", title)
	r.Log("%s", separator)
}

// LogHunk records the decision made for a single conflict hunk.
func (r *RunLogger) LogHunk(file string, hunk int, changeType, confidence, reason string) {
	if r == nil {
		return
	}

	r.Log("HUNK %s#%d: type=%s confidence=%s reason=%s", file, hunk, changeType, confidence, reason)
}

// LogReasonerRequest logs a prompt sent to the external reasoner verbatim.
func (r *RunLogger) LogReasonerRequest(file string, hunk int, model, prompt string) {
	if r == nil {
		return
	}

	r.LogSection(fmt.Sprintf("REASONER REQUEST - %s hunk %d", file, hunk))
	r.Log("Model: %s", model)
	r.Log("Prompt length: %d characters", len(prompt))
	r.Log("--- PROMPT START ---")
	r.mutex.Lock()
	r.logFile.WriteString(prompt + "\n")
	r.mutex.Unlock()
	r.Log("--- PROMPT END ---")
}

// LogReasonerResponse logs a raw reasoner response verbatim.
func (r *RunLogger) LogReasonerResponse(file string, hunk int, response string) {
	if r == nil {
		return
	}

	r.LogSection(fmt.Sprintf("REASONER RESPONSE - %s hunk %d", file, hunk))
	r.Log("Response length: %d characters", len(response))
	r.Log("--- RESPONSE START ---")
	r.mutex.Lock()
	r.logFile.WriteString(response + "\n")
	r.mutex.Unlock()
	r.Log("--- RESPONSE END ---")
}

// LogError logs an error with its surrounding context.
func (r *RunLogger) LogError(where string, err error) {
	if r == nil {
		return
	}

	r.Log("ERROR in %s: %v", where, err)
}

// Close finalizes the log file.
func (r *RunLogger) Close() {
	if r == nil {
		return
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.logFile != nil {
		timestamp := time.Now().Format("15:04:05.000")
		elapsed := time.Since(r.startTime)
		finalMessage := fmt.Sprintf("[%s] [+%v] Run logging completed. Total duration: %v\n",
			timestamp, elapsed.Round(time.Millisecond), elapsed)
		r.logFile.WriteString(finalMessage)
		r.logFile.Sync()
		r.logFile.Close()
		r.logFile = nil
	}
}

func (r *RunLogger) writeHeader() {
	header := fmt.Sprintf(`RELEASEAGENT RUN LOG
Run ID: %s
Start Time: %s
Log Format: [HH:MM:SS.mmm] [+duration] message

`, r.runID, r.startTime.Format("2006-01-02 15:04:05"))

	r.logFile.WriteString(header)
	r.logFile.Sync()
}
