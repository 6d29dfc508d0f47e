package judge

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Judge0 status ids. Anything above wrong answer is an execution error.
const (
	statusInQueue      = 1
	statusProcessing   = 2
	statusAccepted     = 3
	statusWrongAnswer  = 4
	statusTimeLimitHit = 5
)

var (
	judgeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "kodelab",
		Subsystem: "judge",
		Name:      "execution_duration_seconds",
		Help:      "Duration of judge execution requests",
		Buckets:   prometheus.DefBuckets,
	}, []string{"language"})

	judgeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kodelab",
		Subsystem: "judge",
		Name:      "execution_failures_total",
		Help:      "Number of judge requests that failed at the transport level",
	}, []string{"language"})

	judgeTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kodelab",
		Subsystem: "judge",
		Name:      "execution_timeouts_total",
		Help:      "Number of executions that hit the time limit",
	}, []string{"language"})
)

// Judge0Config holds configuration for the Judge0 HTTP client.
type Judge0Config struct {
	BaseURL       string
	APIKey        string
	APIHost       string
	Timeout       time.Duration
	TimeLimit     time.Duration
	MemoryLimitKB int64
	Logger        zerolog.Logger
}

// Judge0Client implements Executor against a Judge0 CE deployment.
// Submissions are created with wait=true so each call is synchronous.
type Judge0Client struct {
	cfg    Judge0Config
	http   *http.Client
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewJudge0Client constructs a Judge0 backed executor.
func NewJudge0Client(cfg Judge0Config) (*Judge0Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("judge0 base url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.TimeLimit <= 0 {
		cfg.TimeLimit = 5 * time.Second
	}
	if cfg.MemoryLimitKB <= 0 {
		cfg.MemoryLimitKB = 128000
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &Judge0Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		tracer: otel.Tracer("github.com/kodelab-id/kodelab-api/pkg/judge"),
		logger: logger.With().Str("component", "judge0_client").Logger(),
	}, nil
}

type judge0Submission struct {
	LanguageID   int     `json:"language_id"`
	SourceCode   string  `json:"source_code"`
	Stdin        string  `json:"stdin,omitempty"`
	CPUTimeLimit float64 `json:"cpu_time_limit,omitempty"`
	MemoryLimit  int64   `json:"memory_limit,omitempty"`
}

type judge0Status struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

type judge0Response struct {
	Stdout        string          `json:"stdout"`
	Stderr        string          `json:"stderr"`
	CompileOutput string          `json:"compile_output"`
	Message       string          `json:"message"`
	Time          json.RawMessage `json:"time"`
	Memory        int64           `json:"memory"`
	ExitCode      *int            `json:"exit_code"`
	Token         string          `json:"token"`
	Status        judge0Status    `json:"status"`
}

// Execute submits the source to Judge0 and blocks until the run finishes.
func (c *Judge0Client) Execute(parent context.Context, req ExecutionRequest) (ExecutionResult, error) {
	languageID, ok := LanguageID(req.Language)
	if !ok {
		return ExecutionResult{}, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, req.Language)
	}

	ctx, span := c.tracer.Start(parent, "judge0.execute", trace.WithAttributes(
		attribute.String("judge.language", req.Language),
	))
	defer span.End()

	timeLimit := req.TimeLimit
	if timeLimit <= 0 {
		timeLimit = c.cfg.TimeLimit
	}
	memoryLimit := req.MemoryLimitKB
	if memoryLimit <= 0 {
		memoryLimit = c.cfg.MemoryLimitKB
	}

	payload := judge0Submission{
		LanguageID:   languageID,
		SourceCode:   base64.StdEncoding.EncodeToString([]byte(req.Source)),
		CPUTimeLimit: timeLimit.Seconds(),
		MemoryLimit:  memoryLimit,
	}
	if req.Stdin != "" {
		payload.Stdin = base64.StdEncoding.EncodeToString([]byte(req.Stdin))
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return ExecutionResult{}, fmt.Errorf("encode judge0 payload: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/submissions?base64_encoded=true&wait=true"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return ExecutionResult{}, fmt.Errorf("build judge0 request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("X-RapidAPI-Key", c.cfg.APIKey)
	}
	if c.cfg.APIHost != "" {
		httpReq.Header.Set("X-RapidAPI-Host", c.cfg.APIHost)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	judgeDuration.WithLabelValues(req.Language).Observe(time.Since(start).Seconds())
	if err != nil {
		judgeFailures.WithLabelValues(req.Language).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ExecutionResult{}, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		judgeFailures.WithLabelValues(req.Language).Inc()
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("%w: judge0 returned status %d: %s", ErrUnreachable, resp.StatusCode, strings.TrimSpace(string(detail)))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ExecutionResult{}, err
	}

	var raw judge0Response
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		judgeFailures.WithLabelValues(req.Language).Inc()
		span.RecordError(err)
		return ExecutionResult{}, fmt.Errorf("decode judge0 response: %w", err)
	}

	result := c.parseResponse(raw)
	if result.TimedOut {
		judgeTimeouts.WithLabelValues(req.Language).Inc()
	}

	span.SetAttributes(attribute.Int("judge.status_id", result.StatusID))
	return result, nil
}

func (c *Judge0Client) parseResponse(raw judge0Response) ExecutionResult {
	result := ExecutionResult{
		Stdout:        decodeBase64(raw.Stdout),
		Stderr:        strings.TrimSpace(decodeBase64(raw.Stderr)),
		CompileOutput: strings.TrimSpace(decodeBase64(raw.CompileOutput)),
		Message:       strings.TrimSpace(raw.Message),
		StatusID:      raw.Status.ID,
		Status:        raw.Status.Description,
		MemoryKB:      raw.Memory,
		TimedOut:      raw.Status.ID == statusTimeLimitHit,
	}

	if raw.ExitCode != nil {
		result.ExitCode = *raw.ExitCode
	} else if raw.Status.ID > statusWrongAnswer {
		result.ExitCode = 1
	}

	if seconds, ok := parseSeconds(raw.Time); ok {
		result.TimeSeconds = seconds
	}

	return result
}

// Judge0 reports time either as a JSON number or a quoted decimal string.
func parseSeconds(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	text := strings.Trim(string(raw), `"`)
	seconds, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, false
	}
	return seconds, true
}

func decodeBase64(encoded string) string {
	if encoded == "" {
		return ""
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return encoded
	}
	return string(decoded)
}
