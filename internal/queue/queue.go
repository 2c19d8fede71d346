// Package queue implements WorkspaceQueue, the per-workspace concurrent job
// state machine coordinating pending tasks and messages against a global
// concurrency cap, with tasks-before-messages priority and retry/backoff.
package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nanogridbot/nanogridbot/internal/store"
)

const maxRetries = 5

// PendingMessage is a queued "check messages" request for a chat session.
type PendingMessage struct {
	SessionID     string
	LastTimestamp *time.Time
}

// Launcher is the subset of container.Launcher the queue needs, kept as an
// interface so the queue can be tested without spawning real sandboxes.
type Launcher interface {
	Run(ctx context.Context, groupFolder, prompt, sessionID, chatJID string, isMain bool) (status string, newSessionID string, err error)
}

type workspaceState struct {
	jid             string
	workspaceFolder string
	isMain          bool
	chatJID         string
	active          bool
	pendingMessages []PendingMessage
	pendingTasks    []store.Task
	retryCount      int
}

// SessionStore is the subset of store.Store the queue needs to resume an
// agent's conversational context across invocations.
type SessionStore interface {
	GetSession(groupFolder string) (*store.WorkspaceSession, error)
	SaveSession(sess *store.WorkspaceSession) error
}

// Queue is the shared, single-mutex WorkspaceQueue. All in-memory state
// transitions happen under one lock; I/O (the launcher invocation) always
// runs after releasing it.
type Queue struct {
	mu                sync.Mutex
	states            map[string]*workspaceState
	activeCount       int
	waitingWorkspaces []string
	maxConcurrent     int

	launcher Launcher
	sessions SessionStore
}

// New builds a Queue. sessions may be nil, in which case no session-id
// resumption is attempted and each invocation uses its own bookkeeping id.
func New(maxConcurrent int, launcher Launcher, sessions SessionStore) *Queue {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Queue{
		states:        make(map[string]*workspaceState),
		maxConcurrent: maxConcurrent,
		launcher:      launcher,
		sessions:      sessions,
	}
}

func (q *Queue) ensureState(jid, workspaceFolder, chatJID string, isMain bool) *workspaceState {
	st, ok := q.states[jid]
	if !ok {
		st = &workspaceState{jid: jid, workspaceFolder: workspaceFolder, chatJID: chatJID, isMain: isMain}
		q.states[jid] = st
	}
	return st
}

// ActiveCount reports the number of currently active workspaces, for health
// snapshots and tests.
func (q *Queue) ActiveCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.activeCount
}

// WaitingCount reports the length of waitingWorkspaces, for health
// snapshots.
func (q *Queue) WaitingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.waitingWorkspaces)
}

// EnqueueMessage appends a pending "check messages" item for the workspace
// identified by jid and starts a worker if the workspace was idle and
// capacity allows.
func (q *Queue) EnqueueMessage(jid, workspaceFolder, chatJID string, isMain bool, msg PendingMessage) {
	q.mu.Lock()
	st := q.ensureState(jid, workspaceFolder, chatJID, isMain)
	st.pendingMessages = append(st.pendingMessages, msg)
	shouldStart := q.tryActivate(st)
	q.mu.Unlock()

	if shouldStart {
		go q.runWorker(jid)
	}
}

// EnqueueTask appends a due task for the workspace and starts a worker if
// the workspace was idle and capacity allows.
//
// If pendingMessages is empty at enqueue time, a placeholder message with
// the synthetic session id "default" is pushed ahead of the task so a
// session id is always available. This can surface "default" in metrics;
// flagged as such rather than redesigned.
func (q *Queue) EnqueueTask(jid, workspaceFolder, chatJID string, isMain bool, task store.Task) {
	q.mu.Lock()
	st := q.ensureState(jid, workspaceFolder, chatJID, isMain)
	if len(st.pendingMessages) == 0 {
		st.pendingMessages = append(st.pendingMessages, PendingMessage{SessionID: "default"})
	}
	st.pendingTasks = append(st.pendingTasks, task)
	shouldStart := q.tryActivate(st)
	q.mu.Unlock()

	if shouldStart {
		go q.runWorker(jid)
	}
}

// tryActivate must be called with q.mu held. It returns true if the caller
// should start a fresh worker goroutine for st.jid.
func (q *Queue) tryActivate(st *workspaceState) bool {
	if st.active {
		return false
	}
	if q.activeCount < q.maxConcurrent {
		st.active = true
		q.activeCount++
		return true
	}
	for _, j := range q.waitingWorkspaces {
		if j == st.jid {
			return false
		}
	}
	q.waitingWorkspaces = append(q.waitingWorkspaces, st.jid)
	return false
}

// runWorker drives one activated workspace until its queues drain, then
// promotes the next waiting workspace if any.
func (q *Queue) runWorker(jid string) {
	for {
		item, isTask, ok := q.popNext(jid)
		if !ok {
			break
		}

		prompt, sessionID, chatJID, isMain := q.describe(jid, item, isTask)
		ctx := context.Background()
		_, newSessionID, err := q.launcher.Run(ctx, q.folderOf(jid), prompt, sessionID, chatJID, isMain)

		q.mu.Lock()
		st := q.states[jid]
		if err != nil {
			st.retryCount++
			if st.retryCount >= maxRetries {
				slog.Warn("workspace exhausted retry budget, clearing queues", "jid", jid, "retries", st.retryCount)
				st.pendingMessages = nil
				st.pendingTasks = nil
				st.retryCount = 0
				q.mu.Unlock()
				break
			}
			backoff := time.Duration(5*pow2(st.retryCount-1)) * time.Second
			q.mu.Unlock()
			time.Sleep(backoff)
			continue
		}

		st.retryCount = 0
		workspaceFolder := st.workspaceFolder
		q.mu.Unlock()

		if newSessionID != "" && q.sessions != nil {
			if err := q.sessions.SaveSession(&store.WorkspaceSession{GroupFolder: workspaceFolder, SessionID: newSessionID}); err != nil {
				slog.Warn("failed to persist resumed session id", "jid", jid, "error", err)
			}
		}
	}

	q.drain(jid)
}

func pow2(n int) int64 {
	if n < 0 {
		return 1
	}
	result := int64(1)
	for i := 0; i < n; i++ {
		result *= 2
	}
	return result
}

// popNext pops the next work item under tasks-before-messages priority.
func (q *Queue) popNext(jid string) (any, bool, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	st, ok := q.states[jid]
	if !ok {
		return nil, false, false
	}
	if len(st.pendingTasks) > 0 {
		task := st.pendingTasks[0]
		st.pendingTasks = st.pendingTasks[1:]
		return task, true, true
	}
	if len(st.pendingMessages) > 0 {
		msg := st.pendingMessages[0]
		st.pendingMessages = st.pendingMessages[1:]
		return msg, false, true
	}
	return nil, false, false
}

// describe resolves the next work item's (prompt, sessionID, chatJID,
// isMain). A task item has no session id of its own, so it inherits the
// front of pendingMessages without popping it (the same entry enqueueTask's
// placeholder insertion guarantees is there), falling back to the synthetic
// "default" only if pendingMessages is, despite that, empty. The resolved
// session id is then overridden by the workspace's persisted resumed
// session, if one exists, per the session-id-resumption contract.
func (q *Queue) describe(jid string, item any, isTask bool) (prompt, sessionID, chatJID string, isMain bool) {
	q.mu.Lock()
	st := q.states[jid]
	chatJID = st.chatJID
	isMain = st.isMain
	workspaceFolder := st.workspaceFolder

	if isTask {
		task := item.(store.Task)
		prompt = task.Prompt
		sessionID = "default"
		if len(st.pendingMessages) > 0 {
			sessionID = st.pendingMessages[0].SessionID
		}
	} else {
		msg := item.(PendingMessage)
		prompt = "Check messages"
		if msg.LastTimestamp != nil {
			prompt += " since " + msg.LastTimestamp.Format(time.RFC3339)
		}
		sessionID = msg.SessionID
	}
	q.mu.Unlock()

	if q.sessions != nil {
		if sess, err := q.sessions.GetSession(workspaceFolder); err == nil && sess != nil && sess.SessionID != "" {
			sessionID = sess.SessionID
		}
	}

	return prompt, sessionID, chatJID, isMain
}

func (q *Queue) folderOf(jid string) string {
	q.mu.Lock()
	defer q.mu.Unlock()
	if st, ok := q.states[jid]; ok {
		return st.workspaceFolder
	}
	return ""
}

// drain transitions the workspace back to inactive and promotes the next
// waiting workspace, if any, starting a fresh worker for it.
func (q *Queue) drain(jid string) {
	q.mu.Lock()
	st, ok := q.states[jid]
	if ok {
		st.active = false
	}
	q.activeCount--

	var promoted string
	if len(q.waitingWorkspaces) > 0 {
		promoted = q.waitingWorkspaces[0]
		q.waitingWorkspaces = q.waitingWorkspaces[1:]
		if pst, ok := q.states[promoted]; ok {
			pst.active = true
			q.activeCount++
		}
	}
	q.mu.Unlock()

	if promoted != "" {
		go q.runWorker(promoted)
	}
}
