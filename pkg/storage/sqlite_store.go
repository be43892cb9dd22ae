// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mutecomm/go-sqlcipher/v4" // Auto-registers as "sqlite3"
	"go.uber.org/zap"

	"github.com/teradata-labs/tether/pkg/types"
)

// SQLiteStore persists engine state to SQLite.
// Uses WAL mode for concurrent read/write access.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	logger *zap.Logger
}

// NewSQLiteStore creates a store backed by SQLite.
// The dbPath should point to $TETHER_DATA_DIR/tether.db.
func NewSQLiteStore(ctx context.Context, dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?cache=shared&mode=rwc&_journal_mode=WAL", dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the database tables if they don't exist.
// The partial unique index on sessions enforces the at-most-one-active-
// session-per-agent invariant at the storage layer.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT,
		status TEXT NOT NULL,
		priority TEXT NOT NULL DEFAULT 'normal',
		assigned_agent_id TEXT,
		due_date INTEGER DEFAULT 0,
		planning_session_key TEXT,
		planning_messages TEXT,
		planning_complete INTEGER DEFAULT 0,
		planning_spec TEXT,
		planning_agents TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
	CREATE INDEX IF NOT EXISTS idx_tasks_agent ON tasks(assigned_agent_id, updated_at);

	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		is_master INTEGER DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'standby',
		workspace_id TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_agents_workspace ON agents(workspace_id);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		external_session_id TEXT NOT NULL,
		channel TEXT,
		status TEXT NOT NULL DEFAULT 'active',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_one_active
		ON sessions(agent_id) WHERE status = 'active';
	CREATE INDEX IF NOT EXISTS idx_sessions_external ON sessions(external_session_id);

	CREATE TABLE IF NOT EXISTS deliverables (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		path TEXT,
		description TEXT,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_deliverables_task ON deliverables(task_id);

	CREATE TABLE IF NOT EXISTS activities (
		id TEXT PRIMARY KEY,
		task_id TEXT,
		agent_id TEXT,
		type TEXT NOT NULL,
		message TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_activities_task ON activities(task_id);

	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		task_id TEXT,
		agent_id TEXT,
		type TEXT NOT NULL,
		message TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_created ON events(created_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// CreateTask persists a new task.
func (s *SQLiteStore) CreateTask(ctx context.Context, task *types.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	messagesJSON, err := json.Marshal(task.PlanningMessages)
	if err != nil {
		return fmt.Errorf("failed to marshal planning messages: %w", err)
	}
	agentsJSON, err := json.Marshal(task.PlanningAgents)
	if err != nil {
		return fmt.Errorf("failed to marshal planning agents: %w", err)
	}

	var dueDate int64
	if task.DueDate != nil {
		dueDate = task.DueDate.Unix()
	}

	query := `
		INSERT INTO tasks (
			id, title, description, status, priority, assigned_agent_id, due_date,
			planning_session_key, planning_messages, planning_complete, planning_spec, planning_agents,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		task.ID,
		task.Title,
		task.Description,
		string(task.Status),
		string(task.Priority),
		task.AssignedAgentID,
		dueDate,
		task.PlanningSessionKey,
		string(messagesJSON),
		boolToInt(task.PlanningComplete),
		task.PlanningSpec,
		string(agentsJSON),
		task.CreatedAt.Unix(),
		task.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}

	return nil
}

const taskColumns = `id, title, description, status, priority, assigned_agent_id, due_date,
	       planning_session_key, planning_messages, planning_complete, planning_spec, planning_agents,
	       created_at, updated_at`

// scanTask reads one task row from a row scanner.
func scanTask(scan func(dest ...any) error) (*types.Task, error) {
	var (
		task            types.Task
		description     sql.NullString
		assignedAgentID sql.NullString
		dueDate         int64
		sessionKey      sql.NullString
		messagesJSON    sql.NullString
		planComplete    int
		planSpec        sql.NullString
		agentsJSON      sql.NullString
		createdAt       int64
		updatedAt       int64
		status          string
		priority        string
	)

	err := scan(
		&task.ID,
		&task.Title,
		&description,
		&status,
		&priority,
		&assignedAgentID,
		&dueDate,
		&sessionKey,
		&messagesJSON,
		&planComplete,
		&planSpec,
		&agentsJSON,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	task.Status = types.TaskStatus(status)
	task.Priority = types.TaskPriority(priority)
	if description.Valid {
		task.Description = description.String
	}
	if assignedAgentID.Valid {
		task.AssignedAgentID = assignedAgentID.String
	}
	if dueDate > 0 {
		t := time.Unix(dueDate, 0).UTC()
		task.DueDate = &t
	}
	if sessionKey.Valid {
		task.PlanningSessionKey = sessionKey.String
	}
	if messagesJSON.Valid && messagesJSON.String != "" {
		if err := json.Unmarshal([]byte(messagesJSON.String), &task.PlanningMessages); err != nil {
			return nil, fmt.Errorf("failed to unmarshal planning messages: %w", err)
		}
	}
	task.PlanningComplete = planComplete != 0
	if planSpec.Valid {
		task.PlanningSpec = planSpec.String
	}
	if agentsJSON.Valid && agentsJSON.String != "" {
		if err := json.Unmarshal([]byte(agentsJSON.String), &task.PlanningAgents); err != nil {
			return nil, fmt.Errorf("failed to unmarshal planning agents: %w", err)
		}
	}
	task.CreatedAt = time.Unix(createdAt, 0).UTC()
	task.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	return &task, nil
}

// GetTask retrieves a task by ID.
func (s *SQLiteStore) GetTask(ctx context.Context, id string) (*types.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	task, err := scanTask(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query task: %w", err)
	}

	return task, nil
}

// UpdateTaskStatus overwrites the stored status and bumps updated_at.
func (s *SQLiteStore) UpdateTaskStatus(ctx context.Context, id string, status types.TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}

	return requireRow(result, "task", id)
}

// LatestTaskForAgent returns the agent's most recently updated task in
// one of the given statuses.
func (s *SQLiteStore) LatestTaskForAgent(ctx context.Context, agentID string, statuses []types.TaskStatus) (*types.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(statuses) == 0 {
		return nil, fmt.Errorf("task for agent %s: %w", agentID, ErrNotFound)
	}

	placeholders := strings.Repeat("?,", len(statuses))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(statuses)+1)
	args = append(args, agentID)
	for _, st := range statuses {
		args = append(args, string(st))
	}

	query := `SELECT ` + taskColumns + ` FROM tasks
		WHERE assigned_agent_id = ? AND status IN (` + placeholders + `)
		ORDER BY updated_at DESC LIMIT 1`

	row := s.db.QueryRowContext(ctx, query, args...)
	task, err := scanTask(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task for agent %s: %w", agentID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query task for agent: %w", err)
	}

	return task, nil
}

// ListTasksByStatus returns all tasks in the given status.
func (s *SQLiteStore) ListTasksByStatus(ctx context.Context, status types.TaskStatus) ([]*types.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE status = ? ORDER BY updated_at ASC`,
		string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*types.Task
	for rows.Next() {
		task, err := scanTask(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	return tasks, nil
}

// SetPlanningSessionKey sets the planning session key for a task.
func (s *SQLiteStore) SetPlanningSessionKey(ctx context.Context, taskID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET planning_session_key = ?, updated_at = ? WHERE id = ?`,
		key, time.Now().Unix(), taskID)
	if err != nil {
		return fmt.Errorf("failed to set planning session key: %w", err)
	}

	return requireRow(result, "task", taskID)
}

// AppendPlanningMessages appends messages to the task's planning
// transcript. Read-modify-write under the store mutex; the transcript
// column is owned exclusively by the planning poller.
func (s *SQLiteStore) AppendPlanningMessages(ctx context.Context, taskID string, msgs ...types.PlanningMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var messagesJSON sql.NullString
	row := s.db.QueryRowContext(ctx, `SELECT planning_messages FROM tasks WHERE id = ?`, taskID)
	if err := row.Scan(&messagesJSON); err == sql.ErrNoRows {
		return fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	} else if err != nil {
		return fmt.Errorf("failed to read planning messages: %w", err)
	}

	var existing []types.PlanningMessage
	if messagesJSON.Valid && messagesJSON.String != "" {
		if err := json.Unmarshal([]byte(messagesJSON.String), &existing); err != nil {
			return fmt.Errorf("failed to unmarshal planning messages: %w", err)
		}
	}
	existing = append(existing, msgs...)

	updated, err := json.Marshal(existing)
	if err != nil {
		return fmt.Errorf("failed to marshal planning messages: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE tasks SET planning_messages = ?, updated_at = ? WHERE id = ?`,
		string(updated), time.Now().Unix(), taskID)
	if err != nil {
		return fmt.Errorf("failed to append planning messages: %w", err)
	}

	return nil
}

// SetPlanningOutcome records the planning completion flag, spec, and
// proposed agents.
func (s *SQLiteStore) SetPlanningOutcome(ctx context.Context, taskID string, complete bool, spec string, agents []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	agentsJSON, err := json.Marshal(agents)
	if err != nil {
		return fmt.Errorf("failed to marshal planning agents: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET planning_complete = ?, planning_spec = ?, planning_agents = ?, updated_at = ? WHERE id = ?`,
		boolToInt(complete), spec, string(agentsJSON), time.Now().Unix(), taskID)
	if err != nil {
		return fmt.Errorf("failed to set planning outcome: %w", err)
	}

	return requireRow(result, "task", taskID)
}

// CreateAgent persists a new agent.
func (s *SQLiteStore) CreateAgent(ctx context.Context, agent *types.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agents (id, name, is_master, status, workspace_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		agent.ID,
		agent.Name,
		boolToInt(agent.IsMaster),
		string(agent.Status),
		agent.WorkspaceID,
		agent.CreatedAt.Unix(),
		agent.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert agent: %w", err)
	}

	return nil
}

// GetAgent retrieves an agent by ID.
func (s *SQLiteStore) GetAgent(ctx context.Context, id string) (*types.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, is_master, status, workspace_id, created_at, updated_at FROM agents WHERE id = ?`, id)

	agent, err := scanAgent(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("agent %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query agent: %w", err)
	}

	return agent, nil
}

func scanAgent(scan func(dest ...any) error) (*types.Agent, error) {
	var (
		agent     types.Agent
		isMaster  int
		status    string
		createdAt int64
		updatedAt int64
	)

	err := scan(&agent.ID, &agent.Name, &isMaster, &status, &agent.WorkspaceID, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	agent.IsMaster = isMaster != 0
	agent.Status = types.AgentStatus(status)
	agent.CreatedAt = time.Unix(createdAt, 0).UTC()
	agent.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	return &agent, nil
}

// SetAgentStatus updates an agent's lifecycle status.
func (s *SQLiteStore) SetAgentStatus(ctx context.Context, id string, status types.AgentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx,
		`UPDATE agents SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to update agent status: %w", err)
	}

	return requireRow(result, "agent", id)
}

// ListMasterAgents returns non-offline master agents in the workspace,
// excluding excludeID.
func (s *SQLiteStore) ListMasterAgents(ctx context.Context, workspaceID, excludeID string) ([]*types.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, is_master, status, workspace_id, created_at, updated_at
		 FROM agents
		 WHERE workspace_id = ? AND is_master = 1 AND id != ? AND status != ?
		 ORDER BY name ASC`,
		workspaceID, excludeID, string(types.AgentOffline))
	if err != nil {
		return nil, fmt.Errorf("failed to query master agents: %w", err)
	}
	defer rows.Close()

	var agents []*types.Agent
	for rows.Next() {
		agent, err := scanAgent(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		agents = append(agents, agent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating agents: %w", err)
	}

	return agents, nil
}

// CreateSession persists a new active session. The partial unique index
// on (agent_id, active) turns a concurrent duplicate into a constraint
// violation, which is mapped to ErrSessionExists.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *types.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, agent_id, external_session_id, channel, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		session.ID,
		session.AgentID,
		session.ExternalSessionID,
		session.Channel,
		string(session.Status),
		session.CreatedAt.Unix(),
		session.UpdatedAt.Unix(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("agent %s: %w", session.AgentID, ErrSessionExists)
		}
		return fmt.Errorf("failed to insert session: %w", err)
	}

	return nil
}

func scanSession(scan func(dest ...any) error) (*types.Session, error) {
	var (
		session   types.Session
		channel   sql.NullString
		status    string
		createdAt int64
		updatedAt int64
	)

	err := scan(&session.ID, &session.AgentID, &session.ExternalSessionID, &channel, &status, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if channel.Valid {
		session.Channel = channel.String
	}
	session.Status = types.SessionStatus(status)
	session.CreatedAt = time.Unix(createdAt, 0).UTC()
	session.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	return &session, nil
}

// ActiveSessionForAgent returns the agent's active session.
func (s *SQLiteStore) ActiveSessionForAgent(ctx context.Context, agentID string) (*types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, agent_id, external_session_id, channel, status, created_at, updated_at
		 FROM sessions WHERE agent_id = ? AND status = ?`,
		agentID, string(types.SessionActive))

	session, err := scanSession(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("active session for agent %s: %w", agentID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	return session, nil
}

// SessionByExternalID resolves a gateway session id, most recent first.
func (s *SQLiteStore) SessionByExternalID(ctx context.Context, externalID string) (*types.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, agent_id, external_session_id, channel, status, created_at, updated_at
		 FROM sessions WHERE external_session_id = ?
		 ORDER BY updated_at DESC LIMIT 1`,
		externalID)

	session, err := scanSession(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %s: %w", externalID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	return session, nil
}

// DeactivateSession marks a session inactive.
func (s *SQLiteStore) DeactivateSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, updated_at = ? WHERE id = ?`,
		string(types.SessionInactive), time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to deactivate session: %w", err)
	}

	return requireRow(result, "session", id)
}

// CreateDeliverable appends a deliverable row. No deduplication: a
// replayed webhook appends again.
func (s *SQLiteStore) CreateDeliverable(ctx context.Context, d *types.Deliverable) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO deliverables (id, task_id, type, title, path, description, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.TaskID, string(d.Type), d.Title, d.Path, d.Description, d.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert deliverable: %w", err)
	}

	return nil
}

// ListDeliverables returns a task's deliverables, oldest first.
func (s *SQLiteStore) ListDeliverables(ctx context.Context, taskID string) ([]*types.Deliverable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_id, type, title, path, description, created_at
		 FROM deliverables WHERE task_id = ? ORDER BY created_at ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query deliverables: %w", err)
	}
	defer rows.Close()

	var out []*types.Deliverable
	for rows.Next() {
		var (
			d           types.Deliverable
			dType       string
			path        sql.NullString
			description sql.NullString
			createdAt   int64
		)
		if err := rows.Scan(&d.ID, &d.TaskID, &dType, &d.Title, &path, &description, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan deliverable: %w", err)
		}
		d.Type = types.DeliverableType(dType)
		if path.Valid {
			d.Path = path.String
		}
		if description.Valid {
			d.Description = description.String
		}
		d.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deliverables: %w", err)
	}

	return out, nil
}

// CreateActivity appends an activity row to the audit trail.
func (s *SQLiteStore) CreateActivity(ctx context.Context, a *types.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activities (id, task_id, agent_id, type, message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.TaskID, a.AgentID, a.Type, a.Message, a.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert activity: %w", err)
	}

	return nil
}

// ListActivities returns a task's activities, oldest first.
func (s *SQLiteStore) ListActivities(ctx context.Context, taskID string) ([]*types.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_id, agent_id, type, message, created_at
		 FROM activities WHERE task_id = ? ORDER BY created_at ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query activities: %w", err)
	}
	defer rows.Close()

	var out []*types.Activity
	for rows.Next() {
		a, err := scanLogRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		out = append(out, &types.Activity{
			ID: a.ID, TaskID: a.TaskID, AgentID: a.AgentID,
			Type: a.Type, Message: a.Message, CreatedAt: a.CreatedAt,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activities: %w", err)
	}

	return out, nil
}

// CreateEvent appends an event row to the system log.
func (s *SQLiteStore) CreateEvent(ctx context.Context, e *types.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (id, task_id, agent_id, type, message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.TaskID, e.AgentID, e.Type, e.Message, e.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	return nil
}

// ListEventsSince returns events created at or after since, oldest
// first. Timestamps are stored at second granularity, so callers must
// dedupe rows sharing the cursor second themselves.
func (s *SQLiteStore) ListEventsSince(ctx context.Context, since time.Time, limit int) ([]*types.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_id, agent_id, type, message, created_at
		 FROM events WHERE created_at >= ? ORDER BY created_at ASC LIMIT ?`,
		since.Unix(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []*types.Event
	for rows.Next() {
		e, err := scanLogRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return out, nil
}

// ListEvents returns the most recent events, newest first.
func (s *SQLiteStore) ListEvents(ctx context.Context, limit int) ([]*types.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_id, agent_id, type, message, created_at
		 FROM events ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []*types.Event
	for rows.Next() {
		e, err := scanLogRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return out, nil
}

// scanLogRow scans the shared (id, task_id, agent_id, type, message,
// created_at) shape used by both activities and events.
func scanLogRow(scan func(dest ...any) error) (*types.Event, error) {
	var (
		e         types.Event
		taskID    sql.NullString
		agentID   sql.NullString
		createdAt int64
	)

	if err := scan(&e.ID, &taskID, &agentID, &e.Type, &e.Message, &createdAt); err != nil {
		return nil, err
	}

	if taskID.Valid {
		e.TaskID = taskID.String
	}
	if agentID.Valid {
		e.AgentID = agentID.String
	}
	e.CreatedAt = time.Unix(createdAt, 0).UTC()

	return &e, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s.db.Close()
	}

	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// requireRow converts a zero-rows-affected result into ErrNotFound.
func requireRow(result sql.Result, kind, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}
