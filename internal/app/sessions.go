package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"parchment/api/internal/autosave"
	"parchment/api/internal/content"
	"parchment/api/internal/session"
	"parchment/api/internal/snapshot"
	"parchment/api/internal/store"
	"parchment/api/internal/util"
)

// liveSession is one open editing session: the server-side editor surface,
// its import latch, and the autosave orchestrator bound to the version's
// save path.
type liveSession struct {
	id         string
	templateID string
	versionID  string
	editor     *content.EditorState
	latch      *content.ImportLatch
	saver      *autosave.Orchestrator
	catalog    []content.Variable

	mu           sync.Mutex
	importResult content.ImportResult
}

type sessionTable struct {
	mu       sync.RWMutex
	sessions map[string]*liveSession
}

func newSessionTable() *sessionTable {
	return &sessionTable{sessions: make(map[string]*liveSession)}
}

func (t *sessionTable) get(id string) (*liveSession, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ls, ok := t.sessions[id]
	return ls, ok
}

func (t *sessionTable) put(ls *liveSession) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[ls.id] = ls
}

func (t *sessionTable) remove(id string) (*liveSession, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ls, ok := t.sessions[id]
	delete(t.sessions, id)
	return ls, ok
}

// SessionState is the session status reported to the editor.
type SessionState struct {
	SessionID  string             `json:"sessionId"`
	TemplateID string             `json:"templateId"`
	VersionID  string             `json:"versionId"`
	Imported   bool               `json:"imported"`
	Validation content.Validation `json:"validation"`
	Autosave   autosave.State     `json:"autosave"`
}

// OpenSession loads a draft version into a fresh server-side editor and
// starts its autosave orchestrator. The snapshot import runs through the
// session's latch: it happens at most once, and only a failed attempt can
// be retried.
func (s *Service) OpenSession(ctx context.Context, templateID, versionID, editorName string, catalog []content.Variable) (SessionState, error) {
	version, err := s.store.GetVersion(ctx, templateID, versionID)
	if err != nil {
		return SessionState{}, err
	}
	if version.Status != store.VersionStatusDraft {
		return SessionState{}, domainError(http.StatusConflict, "VERSION_NOT_DRAFT", "Only draft versions can be edited", nil)
	}

	ls := &liveSession{
		id:         util.NewID("sess"),
		templateID: templateID,
		versionID:  versionID,
		editor:     content.NewEditorState(),
		latch:      &content.ImportLatch{},
		catalog:    catalog,
	}

	ls.saver = autosave.New(
		func() ([]byte, error) {
			return content.ExportRaw(ls.editor, ls.editor)
		},
		func(ctx context.Context, raw []byte) error {
			return s.persistVersionContent(ctx, version, raw, "Autosave", VersionMeta{})
		},
		s.cfg.AutosaveDebounce,
	)

	s.runImport(ls, version.Content)

	s.sessions.put(ls)

	if s.registry != nil {
		if err := s.registry.Save(ctx, session.Record{
			SessionID:  ls.id,
			TemplateID: templateID,
			VersionID:  versionID,
			Editor:     editorName,
		}); err != nil {
			return SessionState{}, fmt.Errorf("register session: %w", err)
		}
	}

	return s.sessionState(ls), nil
}

// runImport performs one latched import attempt. Autosave stays disabled
// until an import succeeds, so a blank editor opened over an undecodable
// payload cannot silently overwrite it.
func (s *Service) runImport(ls *liveSession, raw []byte) {
	_ = ls.latch.Run(func() error {
		result, err := content.ImportRaw(raw, ls.editor, ls.editor, ls.catalog)
		ls.mu.Lock()
		ls.importResult = result
		ls.mu.Unlock()
		if err != nil {
			return err
		}
		if !result.Success {
			return fmt.Errorf("content import failed")
		}
		return nil
	})
	if ls.latch.Imported() {
		ls.saver.Enable()
	}
}

// RetryImport re-attempts a failed snapshot import with the version's
// current content. A no-op when the import already succeeded.
func (s *Service) RetryImport(ctx context.Context, sessionID string) (SessionState, error) {
	ls, err := s.session(ctx, sessionID)
	if err != nil {
		return SessionState{}, err
	}

	version, err := s.store.GetVersionByID(ctx, ls.versionID)
	if err != nil {
		return SessionState{}, err
	}
	s.runImport(ls, version.Content)
	return s.sessionState(ls), nil
}

// EditPayload is one edit batch pushed from the editor: the full current
// wire payload of the document.
type EditPayload struct {
	Content []byte
}

// ApplyEdits replaces the session's editor state with the pushed payload
// and marks the session dirty. The actual write to storage is left to the
// autosave orchestrator.
func (s *Service) ApplyEdits(ctx context.Context, sessionID string, payload EditPayload) (SessionState, error) {
	ls, err := s.session(ctx, sessionID)
	if err != nil {
		return SessionState{}, err
	}

	doc, err := snapshot.Parse(payload.Content)
	if err != nil {
		return SessionState{}, domainError(http.StatusUnprocessableEntity, "INVALID_CONTENT", "Edit payload cannot be decoded", nil)
	}
	if doc == nil {
		doc = &snapshot.Document{Pagination: snapshot.DefaultPageConfig()}
	}

	if err := ls.editor.ApplyContent(doc.Content); err != nil {
		return SessionState{}, fmt.Errorf("apply content: %w", err)
	}
	ls.editor.SetPaginationConfig(doc.Pagination)
	ls.editor.SetSignerRoles(doc.SignerRoles)
	ls.editor.SetWorkflowConfig(doc.OrderMode, doc.Workflow)

	ls.saver.NoteEdit()

	if s.registry != nil {
		_ = s.registry.Touch(ctx, sessionID)
	}
	return s.sessionState(ls), nil
}

// SaveSession forces a save now, regardless of the debounce timer.
func (s *Service) SaveSession(ctx context.Context, sessionID string) (SessionState, error) {
	ls, err := s.session(ctx, sessionID)
	if err != nil {
		return SessionState{}, err
	}
	ls.saver.Save()

	if s.registry != nil {
		_ = s.registry.Touch(ctx, sessionID)
	}
	return s.sessionState(ls), nil
}

// GetSessionState reports the session's import diagnostics and autosave
// status.
func (s *Service) GetSessionState(ctx context.Context, sessionID string) (SessionState, error) {
	ls, err := s.session(ctx, sessionID)
	if err != nil {
		return SessionState{}, err
	}
	return s.sessionState(ls), nil
}

// CloseSession flushes pending edits, stops the orchestrator and drops the
// session.
func (s *Service) CloseSession(ctx context.Context, sessionID string) error {
	ls, ok := s.sessions.remove(sessionID)
	if !ok {
		return domainError(http.StatusNotFound, "SESSION_NOT_FOUND", "Editing session not found", nil)
	}

	// Flush dirty state before shutting down, then give the in-flight
	// save a moment to settle.
	state := ls.saver.State()
	if state.Enabled && (state.Status == autosave.StatusDirty || state.Status == autosave.StatusSaving) {
		ls.saver.Save()
		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) {
			st := ls.saver.State()
			if st.Status != autosave.StatusSaving && st.Status != autosave.StatusDirty {
				break
			}
			time.Sleep(20 * time.Millisecond)
		}
	}
	ls.saver.Close()

	if s.registry != nil {
		_ = s.registry.Delete(ctx, sessionID)
	}
	return nil
}

// session resolves a live session, consulting the registry so an expired
// TTL surfaces as a 404 rather than a stale in-memory hit.
func (s *Service) session(ctx context.Context, sessionID string) (*liveSession, error) {
	ls, ok := s.sessions.get(sessionID)
	if !ok {
		return nil, domainError(http.StatusNotFound, "SESSION_NOT_FOUND", "Editing session not found", nil)
	}
	if s.registry != nil {
		if _, err := s.registry.Get(ctx, sessionID); err != nil {
			s.sessions.remove(sessionID)
			ls.saver.Close()
			return nil, domainError(http.StatusNotFound, "SESSION_EXPIRED", "Editing session expired", nil)
		}
	}
	return ls, nil
}

func (s *Service) sessionState(ls *liveSession) SessionState {
	ls.mu.Lock()
	validation := ls.importResult.Validation
	ls.mu.Unlock()

	return SessionState{
		SessionID:  ls.id,
		TemplateID: ls.templateID,
		VersionID:  ls.versionID,
		Imported:   ls.latch.Imported(),
		Validation: validation,
		Autosave:   ls.saver.State(),
	}
}
