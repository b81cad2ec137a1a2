package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aetherflow/collabedit/internal/conflict"
	"github.com/aetherflow/collabedit/internal/transform"
	"github.com/aetherflow/collabedit/internal/version"
)

const (
	// DefaultIdleGrace is how long an empty session survives before
	// the reaper removes it. The grace period tolerates reconnect
	// storms: a client that drops and redials within it finds its
	// session intact.
	DefaultIdleGrace = 2 * time.Minute

	// DefaultCleanupInterval is how often the reaper runs.
	DefaultCleanupInterval = 30 * time.Second

	// DefaultCheckpointEvery is the number of applied operations
	// between automatic version checkpoints.
	DefaultCheckpointEvery = 50
)

// ManagerConfig configures a session Manager.
type ManagerConfig struct {
	// Versions is the durable version store. Required.
	Versions version.Store

	// Broadcaster fans events out to participants. Defaults to an
	// in-memory broadcaster.
	Broadcaster Broadcaster

	// Resolver decides overlapping-operation conflicts. The strategy
	// is fixed for every session this manager owns. Defaults to
	// timestamp (last-writer-wins).
	Resolver conflict.Resolver

	// Registry records session metadata. Defaults to in-memory.
	Registry Registry

	Logger *zap.Logger

	IdleGrace       time.Duration
	CleanupInterval time.Duration
	CheckpointEvery int
}

// Manager is the authoritative owner of live session state: document
// membership, presence, locks, and the working buffer. It is the only
// component that mutates shared state across concurrent callers; all
// mutation of one document's state is serialized by that document's
// mutex, and documents never block each other.
type Manager struct {
	versions    version.Store
	broadcaster Broadcaster
	resolver    conflict.Resolver
	registry    Registry
	logger      *zap.Logger

	idleGrace       time.Duration
	cleanupInterval time.Duration
	checkpointEvery int

	mu       sync.RWMutex
	sessions map[string]*docState
	closed   bool

	cleanupStop chan struct{}
	wg          sync.WaitGroup
}

// NewManager creates a session manager.
func NewManager(config *ManagerConfig) (*Manager, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if config.Versions == nil {
		return nil, fmt.Errorf("version store is required")
	}

	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.Broadcaster == nil {
		config.Broadcaster = NewMemoryBroadcaster(config.Logger)
	}
	if config.Resolver == nil {
		config.Resolver = conflict.NewTimestampResolver(config.Logger)
	}
	if config.Registry == nil {
		config.Registry = NewMemoryRegistry()
	}
	if config.IdleGrace == 0 {
		config.IdleGrace = DefaultIdleGrace
	}
	if config.CleanupInterval == 0 {
		config.CleanupInterval = DefaultCleanupInterval
	}
	if config.CheckpointEvery == 0 {
		config.CheckpointEvery = DefaultCheckpointEvery
	}

	m := &Manager{
		versions:        config.Versions,
		broadcaster:     config.Broadcaster,
		resolver:        config.Resolver,
		registry:        config.Registry,
		logger:          config.Logger,
		idleGrace:       config.IdleGrace,
		cleanupInterval: config.CleanupInterval,
		checkpointEvery: config.CheckpointEvery,
		sessions:        make(map[string]*docState),
		cleanupStop:     make(chan struct{}),
	}

	m.wg.Add(1)
	go m.cleanupLoop()

	return m, nil
}

// ==================== membership ====================

// Join adds a participant to the document's session, creating the
// session on first join. Re-joining with the same user id is
// idempotent: it refreshes the activity clock without duplicating
// membership.
func (m *Manager) Join(ctx context.Context, docID, userID string) (*Session, error) {
	state, err := m.getOrCreate(ctx, docID)
	if err != nil {
		return nil, err
	}

	state.mu.Lock()
	_, rejoin := state.participants[userID]
	state.participants[userID] = time.Now()
	state.idleSince = time.Time{}
	state.touch()
	snapshot := state.snapshot()
	state.mu.Unlock()

	m.storeSnapshot(ctx, snapshot)

	if !rejoin {
		event := newEvent(EventTypeJoined, docID, userID)
		_ = m.broadcaster.BroadcastToDocument(ctx, docID, event)
	}

	m.logger.Info("participant joined",
		zap.String("document_id", docID),
		zap.String("user_id", userID),
		zap.Bool("rejoin", rejoin),
		zap.Int("participants", len(snapshot.Participants)),
	)

	return snapshot, nil
}

// Leave removes a participant along with their cursor and locks. An
// emptied session is not destroyed immediately; it is marked idle and
// reaped after the grace period.
func (m *Manager) Leave(ctx context.Context, docID, userID string) error {
	state, err := m.get(docID)
	if err != nil {
		return err
	}

	state.mu.Lock()
	if _, ok := state.participants[userID]; !ok {
		state.mu.Unlock()
		return nil
	}
	delete(state.participants, userID)
	delete(state.cursors, userID)
	state.locks = removeUserLocks(state.locks, userID)
	state.touch()
	if len(state.participants) == 0 {
		state.idleSince = time.Now()
	}
	snapshot := state.snapshot()
	state.mu.Unlock()

	m.storeSnapshot(ctx, snapshot)

	event := newEvent(EventTypeLeft, docID, userID)
	_ = m.broadcaster.BroadcastToDocument(ctx, docID, event)

	m.logger.Info("participant left",
		zap.String("document_id", docID),
		zap.String("user_id", userID),
		zap.Int("participants", len(snapshot.Participants)),
	)

	return nil
}

// Subscribe opens an event feed for a joined participant. The gateway
// pumps these events into the participant's connection.
func (m *Manager) Subscribe(ctx context.Context, docID, userID string) (*Subscriber, error) {
	state, err := m.get(docID)
	if err != nil {
		return nil, err
	}

	state.mu.Lock()
	_, ok := state.participants[userID]
	state.mu.Unlock()
	if !ok {
		return nil, ErrNotParticipant
	}

	return m.broadcaster.Subscribe(ctx, docID, userID)
}

// Unsubscribe closes an event feed.
func (m *Manager) Unsubscribe(subscriberID string) error {
	return m.broadcaster.Unsubscribe(subscriberID)
}

// ==================== operations ====================

// SubmitOperation runs one edit through the transform/conflict
// pipeline and, if it survives, applies it to the buffer and fans it
// out to the other participants.
//
// baseVersion is the session version the author saw when creating the
// operation; history entries past it are treated as causally
// concurrent and the incoming operation is transformed over each.
//
// The returned operation is the applied, positionally-adjusted form.
// A nil operation with a nil error means the edit was acknowledged but
// not applied: either a duplicate delivery of an id already seen, or
// the loser of a conflict. In the latter case the author is notified
// through a conflict_dropped event so their local buffer can be
// corrected.
func (m *Manager) SubmitOperation(ctx context.Context, docID string, op transform.Operation, baseVersion uint64) (*transform.Operation, error) {
	if err := op.Validate(); err != nil {
		return nil, err
	}

	state, err := m.get(docID)
	if err != nil {
		return nil, err
	}

	state.mu.Lock()

	if _, ok := state.participants[op.UserID]; !ok {
		state.mu.Unlock()
		return nil, ErrNotParticipant
	}

	// At-least-once transports redeliver; the id makes that safe.
	if _, seen := state.applied[op.ID]; seen {
		state.mu.Unlock()
		return nil, nil
	}

	if baseVersion > state.version {
		state.mu.Unlock()
		return nil, fmt.Errorf("%w: base %d, session at %d", ErrStaleBase, baseVersion, state.version)
	}
	if baseVersion < state.historyBase {
		// The base predates a restore; there is nothing left to
		// transform against and the client must resync first.
		state.mu.Unlock()
		return nil, fmt.Errorf("%w: base %d predates restore at %d", ErrStaleBase, baseVersion, state.historyBase)
	}

	// Edits inside a range locked by someone else are refused before
	// any transform work; locking is the primary conflict-avoidance
	// mechanism and the resolver only covers races past it.
	start, end := op.Span()
	for _, lock := range state.locks {
		if lock.UserID != op.UserID && lock.Overlaps(start, end) {
			state.mu.Unlock()
			return nil, fmt.Errorf("%w: [%d,%d) held by %s", ErrRangeLocked, lock.Start, lock.End, lock.UserID)
		}
	}

	incoming := op
	for _, applied := range state.history[baseVersion-state.historyBase:] {
		_, shifted, terr := transform.Transform(applied, incoming)
		if terr == nil {
			incoming = shifted
			continue
		}
		if !errorsIsOverlap(terr) {
			state.mu.Unlock()
			return nil, terr
		}

		// Overlapping ranges: positional shifting cannot converge
		// them, so the resolver picks a single deterministic winner.
		winner, rerr := m.resolver.Resolve(ctx, []transform.Operation{applied, incoming})
		if rerr != nil {
			state.mu.Unlock()
			return nil, rerr
		}
		if winner.ID != incoming.ID {
			// The already-applied operation stands; the incoming one
			// is dropped, never applied, and the author is told.
			state.applied[op.ID] = struct{}{}
			state.touch()
			state.mu.Unlock()

			m.notifyConflictDropped(ctx, docID, op)
			return nil, nil
		}
		// The incoming operation wins over the applied one. The loser
		// cannot be unapplied under last-writer-wins; the winner
		// proceeds unshifted past it and stale clients resync from
		// the next version.
	}

	content, err := transform.Apply(state.content, incoming)
	if err != nil {
		state.mu.Unlock()
		return nil, err
	}

	state.content = content
	state.version++
	state.history = append(state.history, incoming)
	state.applied[op.ID] = struct{}{}
	if incoming.Cursor != nil {
		state.cursors[incoming.UserID] = *incoming.Cursor
	}
	state.touch()

	checkpoint := m.checkpointDue(state)
	newVersion := state.version
	snapshot := state.snapshot()
	state.mu.Unlock()

	m.storeSnapshot(ctx, snapshot)

	event := newEvent(EventTypeOperation, docID, incoming.UserID)
	event.Operation = &incoming
	_ = m.broadcaster.BroadcastToDocument(ctx, docID, event)

	if checkpoint != nil {
		m.persistCheckpoint(ctx, state, checkpoint)
	}

	m.logger.Debug("operation applied",
		zap.String("document_id", docID),
		zap.String("op_id", incoming.ID),
		zap.String("user_id", incoming.UserID),
		zap.String("type", string(incoming.Type)),
		zap.Uint64("version", newVersion),
	)

	return &incoming, nil
}

// notifyConflictDropped tells an author their operation lost a
// conflict and was discarded, so the client can roll its local buffer
// back. Not an error: the losing side of last-writer-wins.
func (m *Manager) notifyConflictDropped(ctx context.Context, docID string, op transform.Operation) {
	event := newEvent(EventTypeConflictDropped, docID, "")
	event.Operation = &op
	_ = m.broadcaster.BroadcastToUser(ctx, op.UserID, event)

	m.logger.Info("operation dropped by conflict resolution",
		zap.String("document_id", docID),
		zap.String("op_id", op.ID),
		zap.String("user_id", op.UserID),
		zap.String("strategy", string(m.resolver.Strategy())),
	)
}

// ==================== locks ====================

// LockSection claims [start, end) for a user. The claim fails when the
// range intersects an active lock held by a different user; a user's
// own locks may overlap freely.
func (m *Manager) LockSection(ctx context.Context, docID, userID string, start, end int) error {
	if start < 0 || end <= start {
		return fmt.Errorf("%w: [%d,%d)", ErrInvalidRange, start, end)
	}

	state, err := m.get(docID)
	if err != nil {
		return err
	}

	state.mu.Lock()
	if _, ok := state.participants[userID]; !ok {
		state.mu.Unlock()
		return ErrNotParticipant
	}

	for _, lock := range state.locks {
		if lock.UserID != userID && lock.Overlaps(start, end) {
			state.mu.Unlock()
			return fmt.Errorf("%w: [%d,%d) held by %s", ErrLockOverlap, lock.Start, lock.End, lock.UserID)
		}
	}

	lock := Lock{Start: start, End: end, UserID: userID, AcquiredAt: time.Now()}
	state.locks = append(state.locks, lock)
	state.touch()
	state.mu.Unlock()

	event := newEvent(EventTypeLock, docID, userID)
	event.Lock = &lock
	_ = m.broadcaster.BroadcastToDocument(ctx, docID, event)

	m.logger.Debug("section locked",
		zap.String("document_id", docID),
		zap.String("user_id", userID),
		zap.Int("start", start),
		zap.Int("end", end),
	)

	return nil
}

// UnlockSection releases a lock previously taken by the user.
// Unlocking a range the caller does not hold is a no-op, not an error,
// so duplicate or late unlock messages are harmless.
func (m *Manager) UnlockSection(ctx context.Context, docID, userID string, start, end int) error {
	state, err := m.get(docID)
	if err != nil {
		return err
	}

	state.mu.Lock()
	released := false
	kept := state.locks[:0]
	for _, lock := range state.locks {
		if lock.UserID == userID && lock.Start == start && lock.End == end {
			released = true
			continue
		}
		kept = append(kept, lock)
	}
	state.locks = kept
	if released {
		state.touch()
	}
	state.mu.Unlock()

	if !released {
		return nil
	}

	event := newEvent(EventTypeUnlock, docID, userID)
	event.Lock = &Lock{Start: start, End: end, UserID: userID}
	_ = m.broadcaster.BroadcastToDocument(ctx, docID, event)

	return nil
}

// Locks returns a copy of the document's active locks.
func (m *Manager) Locks(docID string) ([]Lock, error) {
	state, err := m.get(docID)
	if err != nil {
		return nil, err
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	return append([]Lock(nil), state.locks...), nil
}

// ==================== presence ====================

// UpdateCursor overwrites a participant's last-known cursor.
// Last-write-wins; cursors are ephemeral and carry no ordering
// guarantee.
func (m *Manager) UpdateCursor(ctx context.Context, docID, userID string, cursor transform.CursorPosition) error {
	state, err := m.get(docID)
	if err != nil {
		return err
	}

	state.mu.Lock()
	if _, ok := state.participants[userID]; !ok {
		state.mu.Unlock()
		return ErrNotParticipant
	}
	state.cursors[userID] = cursor
	state.mu.Unlock()

	event := newEvent(EventTypeCursor, docID, userID)
	event.Cursor = &cursor
	_ = m.broadcaster.BroadcastToDocument(ctx, docID, event)

	return nil
}

// Cursors returns a copy of the participants' last-known cursors.
func (m *Manager) Cursors(docID string) (map[string]transform.CursorPosition, error) {
	state, err := m.get(docID)
	if err != nil {
		return nil, err
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	cursors := make(map[string]transform.CursorPosition, len(state.cursors))
	for user, cursor := range state.cursors {
		cursors[user] = cursor
	}
	return cursors, nil
}

// ==================== document access ====================

// Content returns the live buffer and its session version.
func (m *Manager) Content(docID string) (string, uint64, error) {
	state, err := m.get(docID)
	if err != nil {
		return "", 0, err
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	return state.content, state.version, nil
}

// GetSession returns the session metadata for a document.
func (m *Manager) GetSession(docID string) (*Session, error) {
	state, err := m.get(docID)
	if err != nil {
		return nil, err
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	return state.snapshot(), nil
}

// ListSessions returns every session recorded in the registry. With
// the Redis registry this spans all gateway instances, not just the
// sessions this process holds in memory.
func (m *Manager) ListSessions(ctx context.Context) ([]*Session, error) {
	return m.registry.List(ctx)
}

// ==================== versions ====================

// SaveVersion checkpoints the live buffer to the version store on
// explicit request.
func (m *Manager) SaveVersion(ctx context.Context, docID, author, message string) (*version.Version, error) {
	state, err := m.get(docID)
	if err != nil {
		return nil, err
	}

	state.mu.Lock()
	content := state.content
	base := state.historyBase
	ops := append([]transform.Operation(nil), state.history[state.checkpointed:]...)
	state.mu.Unlock()

	v, err := m.versions.SaveVersion(ctx, docID, content, author, message, ops)
	if err != nil {
		return nil, fmt.Errorf("failed to save version: %w", err)
	}

	m.markCheckpointed(state, base, len(ops))

	m.logger.Info("version saved",
		zap.String("document_id", docID),
		zap.String("version_id", v.ID),
		zap.String("author", author),
		zap.Int("operations", len(ops)),
	)

	return v, nil
}

// VersionHistory lists a document's versions newest-first.
func (m *Manager) VersionHistory(ctx context.Context, docID string) ([]*version.Version, error) {
	return m.versions.GetVersionHistory(ctx, docID)
}

// RestoreVersion replaces the live buffer with a stored version's
// content. The replacement is broadcast as a synthetic replace
// operation spanning the whole buffer, so connected participants
// converge immediately instead of drifting until their next edit.
// History is never truncated: versions created before the restore
// remain retrievable.
func (m *Manager) RestoreVersion(ctx context.Context, docID, userID, versionID string) (*version.Version, error) {
	v, err := m.versions.GetVersion(ctx, docID, versionID)
	if err != nil {
		return nil, err
	}

	state, err := m.get(docID)
	if err != nil {
		return nil, err
	}

	opID, _ := uuid.NewV7()
	synthetic := transform.Operation{
		ID:        opID.String(),
		Type:      transform.TypeReplace,
		Position:  0,
		Content:   v.Content,
		UserID:    userID,
		Timestamp: time.Now(),
	}

	state.mu.Lock()
	state.content = v.Content
	state.version++
	// Pending history refers to the replaced buffer; operations based
	// on it can no longer transform cleanly, so the slate is wiped and
	// stale clients resync against the restored content.
	state.history = nil
	state.historyBase = state.version
	state.checkpointed = 0
	state.applied[synthetic.ID] = struct{}{}
	state.touch()
	state.mu.Unlock()

	event := newEvent(EventTypeRestore, docID, userID)
	event.Operation = &synthetic
	_ = m.broadcaster.BroadcastToDocument(ctx, docID, event)

	m.logger.Info("version restored",
		zap.String("document_id", docID),
		zap.String("version_id", versionID),
		zap.String("restored_by", userID),
	)

	return v, nil
}

// ==================== stats ====================

// Stats is a point-in-time summary of the manager's live state.
type Stats struct {
	Sessions     int `json:"sessions"`
	Participants int `json:"participants"`
	Locks        int `json:"locks"`
	// Registered counts registry records, which with a shared
	// registry covers every instance, not just this process.
	Registered int `json:"registered"`
}

// GetStats summarizes the live sessions.
func (m *Manager) GetStats() *Stats {
	m.mu.RLock()
	states := make([]*docState, 0, len(m.sessions))
	for _, state := range m.sessions {
		states = append(states, state)
	}
	m.mu.RUnlock()

	stats := &Stats{Sessions: len(states)}
	if registered, err := m.registry.Count(context.Background()); err == nil {
		stats.Registered = registered
	}
	for _, state := range states {
		state.mu.Lock()
		stats.Participants += len(state.participants)
		stats.Locks += len(state.locks)
		state.mu.Unlock()
	}
	return stats
}

// ==================== lifecycle ====================

// Close stops the reaper and shuts the broadcaster down. Sessions with
// unpersisted operations get a final checkpoint.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.cleanupStop)
	m.wg.Wait()

	ctx := context.Background()
	m.mu.Lock()
	for docID, state := range m.sessions {
		m.finalCheckpoint(ctx, docID, state)
	}
	m.sessions = make(map[string]*docState)
	m.mu.Unlock()

	if err := m.broadcaster.Close(); err != nil {
		m.logger.Error("failed to close broadcaster", zap.Error(err))
	}

	m.logger.Info("session manager closed")
	return nil
}

// cleanupLoop periodically reaps sessions that stayed empty past the
// grace period.
func (m *Manager) cleanupLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.reapIdleSessions()
		case <-m.cleanupStop:
			return
		}
	}
}

// reapIdleSessions removes sessions whose grace period has lapsed.
func (m *Manager) reapIdleSessions() {
	ctx := context.Background()
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	for docID, state := range m.sessions {
		state.mu.Lock()
		idle := !state.idleSince.IsZero() && now.Sub(state.idleSince) > m.idleGrace
		state.mu.Unlock()
		if !idle {
			continue
		}

		m.finalCheckpoint(ctx, docID, state)
		delete(m.sessions, docID)
		if err := m.registry.Delete(ctx, docID); err != nil {
			m.logger.Warn("failed to delete session record",
				zap.String("document_id", docID),
				zap.Error(err))
		}

		m.logger.Info("idle session reaped",
			zap.String("document_id", docID),
		)
	}
}

// finalCheckpoint persists any operations applied since the last
// checkpoint. Storage failures are logged, never fatal.
func (m *Manager) finalCheckpoint(ctx context.Context, docID string, state *docState) {
	state.mu.Lock()
	content := state.content
	base := state.historyBase
	ops := append([]transform.Operation(nil), state.history[state.checkpointed:]...)
	state.mu.Unlock()

	if len(ops) == 0 {
		return
	}

	if _, err := m.versions.SaveVersion(ctx, docID, content, "system", "session checkpoint", ops); err != nil {
		m.logger.Error("failed to checkpoint session",
			zap.String("document_id", docID),
			zap.Error(err))
		return
	}

	m.markCheckpointed(state, base, len(ops))
}

// ==================== internals ====================

// get returns the live state for a document or ErrSessionNotFound.
func (m *Manager) get(docID string) (*docState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrManagerClosed
	}
	state, exists := m.sessions[docID]
	if !exists {
		return nil, ErrSessionNotFound
	}
	return state, nil
}

// getOrCreate returns the live state for a document, creating the
// session on first join. The initial buffer is loaded from the latest
// stored version before any lock is taken, so the version-store read
// never happens while holding session or manager state.
func (m *Manager) getOrCreate(ctx context.Context, docID string) (*docState, error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, ErrManagerClosed
	}
	if state, exists := m.sessions[docID]; exists {
		m.mu.RUnlock()
		return state, nil
	}
	m.mu.RUnlock()

	content := ""
	latest, err := m.versions.LatestVersion(ctx, docID)
	switch {
	case err == nil:
		content = latest.Content
	case errors.Is(err, version.ErrNoVersions):
		// New document, empty buffer.
	default:
		return nil, fmt.Errorf("failed to load document: %w", err)
	}

	sessionID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := time.Now()
	id := sessionID.String()
	createdAt := now
	// A registry record from a recent incarnation means participants
	// are reconnecting, not starting over; they land on the recorded
	// session identity.
	if recorded, rerr := m.registry.Get(ctx, docID); rerr == nil {
		id = recorded.ID
		createdAt = recorded.CreatedAt
	}

	created := &docState{
		id:           id,
		documentID:   docID,
		createdAt:    createdAt,
		lastActivity: now,
		participants: make(map[string]time.Time),
		cursors:      make(map[string]transform.CursorPosition),
		content:      content,
		applied:      make(map[string]struct{}),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrManagerClosed
	}
	// A concurrent join may have won the race; its state stands and
	// our freshly loaded one is discarded.
	if state, exists := m.sessions[docID]; exists {
		return state, nil
	}
	m.sessions[docID] = created

	m.logger.Info("session created",
		zap.String("session_id", created.id),
		zap.String("document_id", docID),
	)

	return created, nil
}

// checkpointDue returns the checkpoint payload when enough operations
// accumulated, nil otherwise. Caller holds state.mu.
func (m *Manager) checkpointDue(state *docState) *checkpointPayload {
	if len(state.history)-state.checkpointed < m.checkpointEvery {
		return nil
	}
	return &checkpointPayload{
		content: state.content,
		base:    state.historyBase,
		ops:     append([]transform.Operation(nil), state.history[state.checkpointed:]...),
	}
}

type checkpointPayload struct {
	content string
	base    uint64
	ops     []transform.Operation
}

// persistCheckpoint writes a periodic checkpoint outside the session
// lock. Failures are logged; the next checkpoint retries the same
// span.
func (m *Manager) persistCheckpoint(ctx context.Context, state *docState, payload *checkpointPayload) {
	if _, err := m.versions.SaveVersion(ctx, state.documentID, payload.content, "system", "periodic checkpoint", payload.ops); err != nil {
		m.logger.Error("failed to persist checkpoint",
			zap.String("document_id", state.documentID),
			zap.Error(err))
		return
	}

	m.markCheckpointed(state, payload.base, len(payload.ops))
}

// markCheckpointed advances the checkpoint cursor after a persist that
// ran outside the session lock. base is the history base captured when
// the operations were copied; if a restore interleaved with the
// persist it replaced that history and reset the cursor, and advancing
// it now would point past the new history, so the advance is skipped.
// Operations appended during the persist keep the base and stay
// pending for the next checkpoint.
func (m *Manager) markCheckpointed(state *docState, base uint64, n int) {
	state.mu.Lock()
	if state.historyBase == base {
		state.checkpointed += n
	}
	state.mu.Unlock()
}

// storeSnapshot writes session metadata through to the registry.
// Best-effort: registry outages never fail the live path.
func (m *Manager) storeSnapshot(ctx context.Context, snapshot *Session) {
	if err := m.registry.Put(ctx, snapshot); err != nil {
		m.logger.Warn("failed to store session record",
			zap.String("document_id", snapshot.DocumentID),
			zap.Error(err))
	}
}

func removeUserLocks(locks []Lock, userID string) []Lock {
	kept := locks[:0]
	for _, lock := range locks {
		if lock.UserID != userID {
			kept = append(kept, lock)
		}
	}
	return kept
}

func errorsIsOverlap(err error) bool {
	return errors.Is(err, transform.ErrOverlap)
}
