package judge

import (
	"context"
	"errors"
	"time"
)

// ErrUnreachable indicates the judge backend could not be reached at the
// network level. This is distinct from a submission that executed and
// failed, which is reported through the ExecutionResult instead.
var ErrUnreachable = errors.New("judge unreachable")

// ErrUnsupportedLanguage indicates the requested language is outside the
// closed supported set.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Executor runs a piece of source code against a sandboxed backend.
type Executor interface {
	Execute(ctx context.Context, req ExecutionRequest) (ExecutionResult, error)
}

// ExecutionRequest describes one sandboxed run of student code.
type ExecutionRequest struct {
	Source        string
	Language      string
	Stdin         string
	TimeLimit     time.Duration
	MemoryLimitKB int64
}

// ExecutionResult summarises the outcome of a sandboxed run.
type ExecutionResult struct {
	Stdout        string
	Stderr        string
	CompileOutput string
	Message       string
	StatusID      int
	Status        string
	ExitCode      int
	TimeSeconds   float64
	MemoryKB      int64
	TimedOut      bool
}

// Errored reports whether the run ended in a judge-level error rather
// than producing comparable output: non-zero exit, runtime error,
// compile error or a time limit hit.
func (r ExecutionResult) Errored() bool {
	if r.TimedOut {
		return true
	}
	if r.ExitCode != 0 {
		return true
	}
	if r.CompileOutput != "" {
		return true
	}
	return r.StatusID > statusWrongAnswer
}

// ErrorText returns the most descriptive error output available.
func (r ExecutionResult) ErrorText() string {
	switch {
	case r.TimedOut:
		return "time limit exceeded"
	case r.Stderr != "":
		return r.Stderr
	case r.CompileOutput != "":
		return r.CompileOutput
	case r.Message != "":
		return r.Message
	case r.Status != "":
		return r.Status
	default:
		return "execution error"
	}
}

// languageIDs maps the supported language set to Judge0 language ids.
var languageIDs = map[string]int{
	"python":     71,
	"javascript": 63,
	"java":       62,
	"c":          50,
	"cpp":        54,
	"go":         60,
}

// LanguageID resolves a language name to its Judge0 id.
func LanguageID(language string) (int, bool) {
	id, ok := languageIDs[language]
	return id, ok
}

// SupportedLanguages lists the closed set of accepted language names.
func SupportedLanguages() []string {
	names := make([]string, 0, len(languageIDs))
	for name := range languageIDs {
		names = append(names, name)
	}
	return names
}

// IsSupportedLanguage reports whether the language is in the closed set.
func IsSupportedLanguage(language string) bool {
	_, ok := languageIDs[language]
	return ok
}
