package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// languageRuntime describes how a language runs inside a container.
type languageRuntime struct {
	Image    string
	FileName string
	RunCmd   string
}

var dockerRuntimes = map[string]languageRuntime{
	"python":     {Image: "python:3.11-alpine", FileName: "main.py", RunCmd: "python main.py"},
	"javascript": {Image: "node:20-alpine", FileName: "main.js", RunCmd: "node main.js"},
	"java":       {Image: "eclipse-temurin:17-alpine", FileName: "Main.java", RunCmd: "javac Main.java && java Main"},
	"c":          {Image: "gcc:13", FileName: "main.c", RunCmd: "gcc -O2 -o main main.c && ./main"},
	"cpp":        {Image: "gcc:13", FileName: "main.cpp", RunCmd: "g++ -O2 -o main main.cpp && ./main"},
	"go":         {Image: "golang:1.24-alpine", FileName: "main.go", RunCmd: "go run main.go"},
}

// DockerConfig groups configuration for the local sandbox executor.
type DockerConfig struct {
	Host          string
	WorkspaceRoot string
	WorkingDir    string
	TimeLimit     time.Duration
	MemoryLimitKB int64
	CPUShares     int64
	Logger        zerolog.Logger
}

// DockerExecutor runs submissions inside throwaway local containers.
// It is the fallback judge backend for deployments without a Judge0
// instance; the contract is identical to the remote client.
type DockerExecutor struct {
	client *client.Client
	cfg    DockerConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewDockerExecutor constructs a Docker backed judge executor.
func NewDockerExecutor(cfg DockerConfig) (*DockerExecutor, error) {
	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	if cfg.WorkspaceRoot == "" {
		cfg.WorkspaceRoot = os.TempDir()
	}
	if cfg.WorkingDir == "" {
		cfg.WorkingDir = "/workspace"
	}
	if cfg.TimeLimit <= 0 {
		cfg.TimeLimit = 5 * time.Second
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &DockerExecutor{
		client: cli,
		cfg:    cfg,
		tracer: otel.Tracer("github.com/kodelab-id/kodelab-api/pkg/judge"),
		logger: logger.With().Str("component", "docker_executor").Logger(),
	}, nil
}

// Execute writes the source into a workspace, runs it in a network-less
// container and collects output, exit code and resource usage.
func (e *DockerExecutor) Execute(parent context.Context, req ExecutionRequest) (ExecutionResult, error) {
	runtime, ok := dockerRuntimes[req.Language]
	if !ok {
		return ExecutionResult{}, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, req.Language)
	}

	ctx, span := e.tracer.Start(parent, "docker.judge.execute", trace.WithAttributes(
		attribute.String("judge.language", req.Language),
		attribute.String("docker.image", runtime.Image),
	))
	defer span.End()

	timeLimit := req.TimeLimit
	if timeLimit <= 0 {
		timeLimit = e.cfg.TimeLimit
	}

	workspace, err := os.MkdirTemp(e.cfg.WorkspaceRoot, "judge-")
	if err != nil {
		return ExecutionResult{}, fmt.Errorf("create workspace: %w", err)
	}
	defer os.RemoveAll(workspace)

	if err := os.WriteFile(filepath.Join(workspace, runtime.FileName), []byte(req.Source), 0600); err != nil {
		return ExecutionResult{}, fmt.Errorf("write source: %w", err)
	}

	command := runtime.RunCmd
	if req.Stdin != "" {
		if err := os.WriteFile(filepath.Join(workspace, "stdin.txt"), []byte(req.Stdin), 0600); err != nil {
			return ExecutionResult{}, fmt.Errorf("write stdin: %w", err)
		}
		command = fmt.Sprintf("%s < stdin.txt", command)
	}

	runCtx := ctx
	if timeLimit > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeLimit)
		defer cancel()
	}

	memoryLimit := req.MemoryLimitKB
	if memoryLimit <= 0 {
		memoryLimit = e.cfg.MemoryLimitKB
	}

	hostCfg := &container.HostConfig{
		NetworkMode: "none",
		Resources: container.Resources{
			Memory:    memoryLimit * 1024,
			CPUShares: e.cfg.CPUShares,
		},
		Mounts: []mount.Mount{{
			Type:   mount.TypeBind,
			Source: workspace,
			Target: e.cfg.WorkingDir,
		}},
	}

	containerCfg := &container.Config{
		Image:        runtime.Image,
		Cmd:          []string{"sh", "-c", command},
		WorkingDir:   e.cfg.WorkingDir,
		AttachStdout: true,
		AttachStderr: true,
	}

	start := time.Now()
	result := ExecutionResult{}

	resp, err := e.client.ContainerCreate(runCtx, containerCfg, hostCfg, &network.NetworkingConfig{}, nil, "")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, fmt.Errorf("%w: container create: %v", ErrUnreachable, err)
	}

	containerID := resp.ID
	defer func() {
		removeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.client.ContainerRemove(removeCtx, containerID, container.RemoveOptions{Force: true}); err != nil {
			e.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to remove container")
		}
	}()

	if err := e.client.ContainerStart(runCtx, containerID, container.StartOptions{}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, fmt.Errorf("%w: container start: %v", ErrUnreachable, err)
	}

	statusCh, errCh := e.client.ContainerWait(runCtx, containerID, container.WaitConditionNextExit)

	var waitErr error
	select {
	case err := <-errCh:
		waitErr = err
	case status := <-statusCh:
		result.ExitCode = int(status.StatusCode)
	case <-runCtx.Done():
		waitErr = runCtx.Err()
	}

	result.TimeSeconds = time.Since(start).Seconds()

	if waitErr != nil {
		if errors.Is(waitErr, context.DeadlineExceeded) || runCtx.Err() == context.DeadlineExceeded {
			result.TimedOut = true
			result.Status = "Time Limit Exceeded"
			result.StatusID = statusTimeLimitHit
			killCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := e.client.ContainerKill(killCtx, containerID, "KILL"); err != nil {
				e.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to kill timed out container")
			}
		} else if !errors.Is(waitErr, context.Canceled) {
			span.RecordError(waitErr)
			span.SetStatus(codes.Error, waitErr.Error())
			return result, fmt.Errorf("%w: container wait: %v", ErrUnreachable, waitErr)
		}
	}

	if logReader, err := e.client.ContainerLogs(parent, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true}); err == nil {
		defer logReader.Close()
		stdout, stderr, splitErr := splitContainerLogs(logReader)
		if splitErr != nil {
			e.logger.Error().Err(splitErr).Str("container_id", containerID).Msg("failed to read container logs")
		} else {
			result.Stdout = stdout
			result.Stderr = strings.TrimSpace(stderr)
		}
	} else {
		e.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to fetch container logs")
	}

	statsCtx, cancelStats := context.WithTimeout(parent, 2*time.Second)
	defer cancelStats()
	if stats, err := e.client.ContainerStatsOneShot(statsCtx, containerID); err == nil {
		defer stats.Body.Close()
		var data types.StatsJSON
		if decodeErr := json.NewDecoder(stats.Body).Decode(&data); decodeErr == nil {
			result.MemoryKB = int64(data.MemoryStats.Usage) / 1024
		}
	}

	if !result.TimedOut {
		if result.ExitCode == 0 {
			result.StatusID = statusAccepted
			result.Status = "Accepted"
		} else {
			result.StatusID = statusWrongAnswer + 1
			result.Status = "Runtime Error"
		}
	}

	return result, nil
}

func splitContainerLogs(reader io.Reader) (string, string, error) {
	var stdoutBuf, stderrBuf bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdoutBuf, &stderrBuf, reader); err != nil {
		return "", "", err
	}
	return stdoutBuf.String(), stderrBuf.String(), nil
}

// Close shuts down the underlying docker client.
func (e *DockerExecutor) Close() error {
	if e.client == nil {
		return nil
	}
	return e.client.Close()
}
