package container

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	dockercontainer "github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	units "github.com/docker/go-units"
	"github.com/google/uuid"
	"github.com/nanogridbot/nanogridbot/internal/ipc"
	"github.com/nanogridbot/nanogridbot/internal/mount"
	"github.com/nanogridbot/nanogridbot/internal/rterr"
)

type sessionState int

const (
	stateCreated sessionState = iota
	stateStarted
	stateClosed
)

// Session holds a detached, long-running sandbox used for the shell/TUI
// path, exchanging requests and responses through an atomic file-IPC
// directory pair rather than stdin/stdout.
type Session struct {
	docker *client.Client
	name   string

	GroupFolder string
	SessionID   string
	IpcDir      string

	mu            sync.Mutex
	state         sessionState
	containerID   string
	fromExisting  bool
}

// NewSession prepares a session for a group; call Start to launch it.
func NewSession(docker *client.Client, groupFolder, sessionID string) *Session {
	return &Session{
		docker:      docker,
		name:        fmt.Sprintf("ngb-session-%s-%s", groupFolder, uuid.NewString()),
		GroupFolder: groupFolder,
		SessionID:   sessionID,
		state:       stateCreated,
	}
}

// FromExisting reconstructs a session that points at an already-running
// sandbox. Such a session cannot report IsAlive but still supports
// Send/Receive/Close.
func FromExisting(docker *client.Client, groupFolder, sessionID, containerName, ipcDir string) *Session {
	return &Session{
		docker:       docker,
		name:         containerName,
		GroupFolder:  groupFolder,
		SessionID:    sessionID,
		IpcDir:       ipcDir,
		state:        stateStarted,
		fromExisting: true,
	}
}

// Start creates the IPC directory pair, validates mounts, and spawns the
// sandbox detached with the IPC dir mounted read-write.
func (s *Session) Start(ctx context.Context, dataDir string, validator *mount.Validator, image, memLimit, cpuLimit string, chatJID string, isMain bool, additional []mount.Additional, env map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateCreated {
		return rterr.New(rterr.Container, "start session", fmt.Errorf("session already started"))
	}

	s.IpcDir = filepath.Join(dataDir, "ipc", chatJID)
	if err := os.MkdirAll(filepath.Join(s.IpcDir, "input"), 0o755); err != nil {
		return rterr.New(rterr.Container, "create ipc input dir", err)
	}
	if err := os.MkdirAll(filepath.Join(s.IpcDir, "output"), 0o755); err != nil {
		return rterr.New(rterr.Container, "create ipc output dir", err)
	}

	specs, err := validator.Build(s.GroupFolder, chatJID, isMain, additional)
	if err != nil {
		return err
	}

	binds := make([]string, 0, len(specs)+1)
	for _, spec := range specs {
		binds = append(binds, spec.Arg())
	}
	binds = append(binds, s.IpcDir+":/workspace/ipc:rw")

	envList := make([]string, 0, len(env))
	for k, v := range env {
		envList = append(envList, k+"="+v)
	}

	containerCfg := &dockercontainer.Config{
		Image: image,
		Env:   envList,
		Labels: map[string]string{
			"nanogridbot.managed": "true",
			"nanogridbot.group":   s.GroupFolder,
		},
	}
	hostCfg := &dockercontainer.HostConfig{
		Binds:       binds,
		NetworkMode: "none",
		Resources: dockercontainer.Resources{
			Memory:   parseMemLimit(memLimit),
			NanoCPUs: parseCPULimit(cpuLimit),
		},
	}

	resp, err := s.docker.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, s.name)
	if err != nil {
		return rterr.New(rterr.Container, "create session container", err)
	}
	if err := s.docker.ContainerStart(ctx, resp.ID, dockercontainer.StartOptions{}); err != nil {
		return rterr.New(rterr.Container, "start session container", err)
	}

	s.containerID = resp.ID
	s.state = stateStarted
	return nil
}

// parseMemLimit parses a docker-style size string (e.g. "2g") into bytes,
// defaulting to the same 2 GiB cap the one-shot Launcher applies.
func parseMemLimit(limit string) int64 {
	if limit == "" {
		limit = "2g"
	}
	bytes, err := units.RAMInBytes(limit)
	if err != nil {
		bytes, _ = units.RAMInBytes("2g")
	}
	return bytes
}

// parseCPULimit parses a fractional CPU count (e.g. "1.0") into NanoCPUs,
// defaulting to the same 1.0-CPU cap the one-shot Launcher applies.
func parseCPULimit(limit string) int64 {
	if limit == "" {
		limit = "1.0"
	}
	cpus, err := strconv.ParseFloat(limit, 64)
	if err != nil {
		cpus = 1.0
	}
	return int64(cpus * 1e9)
}

// Send writes text to the session's input directory atomically.
func (s *Session) Send(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateStarted {
		return rterr.New(rterr.Container, "send", fmt.Errorf("session not started"))
	}

	now := time.Now().UTC()
	payload := map[string]any{
		"text":      text,
		"timestamp": now.Format(time.RFC3339),
		"sessionId": s.SessionID,
	}
	return ipc.WriteAtomic(filepath.Join(s.IpcDir, "input"), ipc.InputName(now), payload)
}

// Receive reads and consumes every ready output file, oldest first.
func (s *Session) Receive() ([]string, error) {
	outDir := filepath.Join(s.IpcDir, "output")
	names, err := ipc.ListReady(outDir)
	if err != nil {
		return nil, err
	}

	var texts []string
	for _, name := range names {
		data, err := ipc.ReadAndRemove(outDir, name)
		if err != nil {
			continue
		}
		texts = append(texts, ipc.ExtractText(data))
	}
	return texts, nil
}

// IsAlive reports whether the backing container is still running. Sessions
// reconstructed via FromExisting cannot answer this and always return false.
func (s *Session) IsAlive(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fromExisting || s.containerID == "" {
		return false
	}
	info, err := s.docker.ContainerInspect(ctx, s.containerID)
	if err != nil {
		return false
	}
	return info.State != nil && info.State.Running
}

// Close writes the shutdown sentinel, force-removes the container, and
// removes the IPC directory. Idempotent after the first successful close.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateClosed {
		return nil
	}

	_ = ipc.WriteAtomic(filepath.Join(s.IpcDir, "input"), ipc.ShutdownSentinelName, map[string]bool{"shutdown": true})

	if s.containerID != "" {
		timeout := 5
		_ = s.docker.ContainerStop(ctx, s.containerID, dockercontainer.StopOptions{Timeout: &timeout})
		_ = s.docker.ContainerRemove(ctx, s.containerID, dockercontainer.RemoveOptions{Force: true})
	} else {
		_ = s.docker.ContainerRemove(ctx, s.name, dockercontainer.RemoveOptions{Force: true})
	}

	if s.IpcDir != "" {
		_ = os.RemoveAll(s.IpcDir)
	}

	s.state = stateClosed
	return nil
}
