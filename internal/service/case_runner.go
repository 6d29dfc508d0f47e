package service

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/rs/zerolog"

	"github.com/kodelab-id/kodelab-api/internal/models"
	"github.com/kodelab-id/kodelab-api/internal/observability"
	"github.com/kodelab-id/kodelab-api/pkg/judge"
)

// ErrJudgeUnreachable signals that no test case could reach the judge at
// all, so the submission carries no per-case results.
var ErrJudgeUnreachable = errors.New("judge unreachable")

// CaseRunner executes an activity's test cases in order against the
// configured judge and collects one result per case.
type CaseRunner struct {
	executor judge.Executor
	logger   zerolog.Logger
}

func NewCaseRunner(executor judge.Executor, logger zerolog.Logger) *CaseRunner {
	return &CaseRunner{
		executor: executor,
		logger:   logger.With().Str("component", "case_runner").Logger(),
	}
}

// Run grades source against every test case. A failure on one case never
// stops the run; the case is recorded with its error and the next case
// executes. Only when every single call dies at the transport level does
// Run give up and return ErrJudgeUnreachable.
func (r *CaseRunner) Run(ctx context.Context, source, language string, cases []models.TestCase) ([]models.TestCaseResult, error) {
	results := make([]models.TestCaseResult, 0, len(cases))
	unreachable := 0

	for i, tc := range cases {
		caseNumber := i + 1
		result := models.TestCaseResult{
			CaseNumber:     caseNumber,
			Input:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
		}

		exec, err := r.executor.Execute(ctx, judge.ExecutionRequest{
			Source:   source,
			Language: language,
			Stdin:    tc.Input,
		})
		if err != nil {
			outcome := "error"
			if errors.Is(err, judge.ErrUnreachable) {
				unreachable++
				outcome = "unreachable"
			}
			observability.JudgeCalls().WithLabelValues(outcome).Inc()
			r.logger.Warn().Err(err).Int("case", caseNumber).Msg("judge call failed")
			result.Error = err.Error()
			results = append(results, result)
			continue
		}
		observability.JudgeCalls().WithLabelValues("ok").Inc()

		result.ActualOutput = exec.Stdout
		result.TimeSeconds = exec.TimeSeconds
		result.MemoryKB = exec.MemoryKB
		if exec.Errored() {
			result.Error = exec.ErrorText()
		} else {
			result.Passed = outputsMatch(exec.Stdout, tc.ExpectedOutput)
		}
		results = append(results, result)
	}

	if len(cases) > 0 && unreachable == len(cases) {
		return nil, ErrJudgeUnreachable
	}
	return results, nil
}

// outputsMatch compares actual and expected output after normalizing
// line endings, trailing whitespace per line, and trailing blank lines.
func outputsMatch(actual, expected string) bool {
	return normalizeOutput(actual) == normalizeOutput(expected)
}

func normalizeOutput(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}

// ScoreSummary is the aggregate outcome of a graded run.
type ScoreSummary struct {
	Score         int
	Result        string
	PassedCases   int
	TotalCases    int
	ExecutionTime float64
	MemoryKB      int64
}

// ScoreResults aggregates per-case outcomes into a submission verdict.
// The score is the rounded percentage of passing cases. The verdict is
// pass only when every case passed, error when every case died before
// producing a comparable output, and fail otherwise.
func ScoreResults(results []models.TestCaseResult) ScoreSummary {
	summary := ScoreSummary{TotalCases: len(results)}
	if len(results) == 0 {
		return summary
	}

	errored := 0
	var totalTime float64
	var maxMemory int64
	for _, res := range results {
		if res.Passed {
			summary.PassedCases++
		}
		if res.Error != "" {
			errored++
		}
		totalTime += res.TimeSeconds
		if res.MemoryKB > maxMemory {
			maxMemory = res.MemoryKB
		}
	}

	summary.Score = int(math.Round(100 * float64(summary.PassedCases) / float64(len(results))))
	summary.ExecutionTime = totalTime
	summary.MemoryKB = maxMemory

	switch {
	case summary.PassedCases == len(results):
		summary.Result = models.SubmissionResultPass
	case errored == len(results):
		summary.Result = models.SubmissionResultError
	default:
		summary.Result = models.SubmissionResultFail
	}
	return summary
}

// firstFailure returns the first non-passing case, used to seed feedback
// context and the submission's headline output.
func firstFailure(results []models.TestCaseResult) (models.TestCaseResult, bool) {
	for _, res := range results {
		if !res.Passed {
			return res, true
		}
	}
	return models.TestCaseResult{}, false
}

// joinCaseErrors collapses per-case error text into one message for the
// submission record.
func joinCaseErrors(results []models.TestCaseResult) string {
	var parts []string
	for _, res := range results {
		if res.Error != "" {
			parts = append(parts, res.Error)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	seen := make(map[string]struct{}, len(parts))
	unique := parts[:0]
	for _, p := range parts {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		unique = append(unique, p)
	}
	return strings.Join(unique, "; ")
}
