// Package container implements the two sandbox invocation shapes: a one-shot
// ContainerLauncher per prompt, and a long-lived detached ContainerSession
// for the shell/TUI path.
package container

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nanogridbot/nanogridbot/internal/mount"
	"github.com/nanogridbot/nanogridbot/internal/rterr"
	"github.com/nanogridbot/nanogridbot/internal/store"
)

const (
	outputStartMarker = "---NGB_OUTPUT_START---"
	outputEndMarker   = "---NGB_OUTPUT_END---"
)

// Launcher spawns one-shot sandbox processes, one per prompt.
type Launcher struct {
	Image      string
	Runtime    string // docker binary name, defaults to "docker"
	MemLimit   string
	CPULimit   string
	Validator  *mount.Validator
	Store      *store.Store
}

func NewLauncher(image, runtime, memLimit, cpuLimit string, validator *mount.Validator, st *store.Store) *Launcher {
	if runtime == "" {
		runtime = "docker"
	}
	return &Launcher{
		Image:     image,
		Runtime:   runtime,
		MemLimit:  memLimit,
		CPULimit:  cpuLimit,
		Validator: validator,
		Store:     st,
	}
}

// RunRequest holds the parameters of one launcher invocation.
type RunRequest struct {
	GroupFolder       string
	Prompt            string
	SessionID         string
	ChatJID           string
	IsMain            bool
	AdditionalMounts  []mount.Additional
	Timeout           time.Duration
	Env               map[string]string
}

// RunResult is the agent's parsed stdout payload.
type RunResult struct {
	Status        string `json:"status"`
	Result        string `json:"result,omitempty"`
	Error         string `json:"error,omitempty"`
	NewSessionID  string `json:"new_session_id,omitempty"`
}

// Run executes a single sandbox invocation: records a metric, builds mounts,
// spawns the process, streams the prompt to stdin, waits under the timeout,
// and parses the stdout protocol.
func (l *Launcher) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	metric := &store.ContainerMetric{
		GroupFolder: req.GroupFolder,
		ChatJID:     req.ChatJID,
		Status:      store.ContainerRunning,
		StartTime:   time.Now().UTC(),
	}
	if l.Store != nil {
		if err := l.Store.StartContainerMetric(metric); err != nil {
			return nil, err
		}
	}

	specs, err := l.Validator.Build(req.GroupFolder, req.ChatJID, req.IsMain, req.AdditionalMounts)
	if err != nil {
		l.closeMetric(metric, store.ContainerFailed, time.Now().UTC())
		return nil, err
	}

	name := fmt.Sprintf("ngb-%s-%s", req.GroupFolder, uuid.NewString())
	args := l.buildArgs(name, specs, req.Env)

	runCtx := ctx
	var cancel context.CancelFunc
	if req.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, l.Runtime, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		l.closeMetric(metric, store.ContainerFailed, time.Now().UTC())
		return nil, rterr.New(rterr.Container, "open stdin", err)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		l.closeMetric(metric, store.ContainerFailed, time.Now().UTC())
		return nil, rterr.New(rterr.Container, "start sandbox", err)
	}

	payload, err := json.Marshal(map[string]any{
		"prompt":      req.Prompt,
		"sessionId":   req.SessionID,
		"groupFolder": req.GroupFolder,
		"chatJid":     req.ChatJID,
		"isMain":      req.IsMain,
	})
	if err != nil {
		l.closeMetric(metric, store.ContainerFailed, time.Now().UTC())
		return nil, rterr.New(rterr.Container, "encode stdin payload", err)
	}
	if _, err := stdin.Write(payload); err != nil {
		l.closeMetric(metric, store.ContainerFailed, time.Now().UTC())
		return nil, rterr.New(rterr.Container, "write stdin", err)
	}
	stdin.Close()

	waitErr := cmd.Wait()
	end := time.Now().UTC()

	if runCtx.Err() == context.DeadlineExceeded {
		l.closeMetric(metric, store.ContainerTimedOut, end)
		return nil, rterr.New(rterr.Timeout, "sandbox invocation", runCtx.Err())
	}
	_ = waitErr // non-zero exit with parseable output is not itself an error

	result := parseOutput(stdout.String(), stderr.String())
	status := store.ContainerSucceeded
	if result.Status == "error" || result.Status == "timeout" {
		status = store.ContainerFailed
	}
	l.closeMetric(metric, status, end)

	return result, nil
}

func (l *Launcher) closeMetric(metric *store.ContainerMetric, status store.ContainerStatus, end time.Time) {
	if l.Store == nil || metric.ID == 0 {
		return
	}
	duration := end.Sub(metric.StartTime).Milliseconds()
	_ = l.Store.FinishContainerMetric(metric.ID, status, end, duration)
}

func (l *Launcher) buildArgs(name string, specs []mount.Spec, env map[string]string) []string {
	args := []string{
		"run", "--rm",
		"--name", name,
		"--network=none",
		"--memory=" + orDefault(l.MemLimit, "2g"),
		"--cpus=" + orDefault(l.CPULimit, "1.0"),
		"-i",
	}
	for _, spec := range specs {
		args = append(args, "-v", spec.Arg())
	}
	for k, v := range env {
		args = append(args, "-e", k+"="+v)
	}
	args = append(args, l.Image)
	return args
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// parseOutput implements the stdout protocol: find the marker-delimited JSON
// region, else try the whole trimmed stdout as JSON, else fall back to raw
// text or stderr.
func parseOutput(stdout, stderr string) *RunResult {
	if start := strings.Index(stdout, outputStartMarker); start >= 0 {
		if end := strings.Index(stdout, outputEndMarker); end > start {
			region := stdout[start+len(outputStartMarker) : end]
			var result RunResult
			if err := json.Unmarshal([]byte(strings.TrimSpace(region)), &result); err == nil {
				return &result
			}
		}
	}

	trimmed := strings.TrimSpace(stdout)
	var result RunResult
	if err := json.Unmarshal([]byte(trimmed), &result); err == nil {
		return &result
	}

	if trimmed != "" {
		return &RunResult{Status: "success", Result: trimmed}
	}

	errText := strings.TrimSpace(stderr)
	if errText == "" {
		errText = "no output"
	}
	return &RunResult{Status: "error", Error: errText}
}
