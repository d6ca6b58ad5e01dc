package content

import (
	"sync"

	"parchment/api/internal/snapshot"
	"parchment/api/internal/workflow"
)

// EditorState is the server-side twin of an open editor: the block buffer
// the web editor synchronizes against plus the pagination, signer-role and
// workflow stores hydrated on import. It implements Surface, StoreActions
// and StoreReader. Safe for concurrent use.
type EditorState struct {
	mu         sync.RWMutex
	blocks     []snapshot.Node
	pagination snapshot.PageConfig
	roles      []workflow.SignerRole
	orderMode  string
	workflow   workflow.Config
}

// NewEditorState returns an empty state with default pagination and
// workflow config, matching what a brand-new document starts from.
func NewEditorState() *EditorState {
	return &EditorState{
		pagination: snapshot.DefaultPageConfig(),
		orderMode:  snapshot.DefaultOrderMode,
		workflow: workflow.Config{
			Notifications: workflow.NotificationConfig{Scope: workflow.NotifyScopeGlobal},
		},
	}
}

// GetContent returns the current block sequence.
func (s *EditorState) GetContent() []snapshot.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]snapshot.Node(nil), s.blocks...)
}

// ApplyContent replaces the block buffer in one transaction.
func (s *EditorState) ApplyContent(blocks []snapshot.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks = append([]snapshot.Node(nil), blocks...)
	return nil
}

// SetPaginationConfig stores the pagination config.
func (s *EditorState) SetPaginationConfig(config snapshot.PageConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pagination = config
}

// SetSignerRoles stores the signer roles.
func (s *EditorState) SetSignerRoles(roles []workflow.SignerRole) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles = append([]workflow.SignerRole(nil), roles...)
}

// SetWorkflowConfig stores the order mode and workflow config.
func (s *EditorState) SetWorkflowConfig(orderMode string, config workflow.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orderMode = orderMode
	s.workflow = config
}

// PaginationConfig returns the stored pagination config.
func (s *EditorState) PaginationConfig() snapshot.PageConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pagination
}

// SignerRoles returns the stored signer roles.
func (s *EditorState) SignerRoles() []workflow.SignerRole {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]workflow.SignerRole(nil), s.roles...)
}

// WorkflowConfig returns the stored order mode and workflow config.
func (s *EditorState) WorkflowConfig() (string, workflow.Config) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.orderMode, s.workflow
}
