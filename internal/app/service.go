package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"parchment/api/internal/archive"
	"parchment/api/internal/config"
	"parchment/api/internal/content"
	"parchment/api/internal/notify"
	"parchment/api/internal/render"
	"parchment/api/internal/search"
	"parchment/api/internal/session"
	"parchment/api/internal/snapshot"
	"parchment/api/internal/store"
	"parchment/api/internal/util"
	"parchment/api/internal/workflow"
)

type dataStore interface {
	Ping(ctx context.Context) error
	CreateTemplate(ctx context.Context, t store.Template) (store.Template, error)
	GetTemplate(ctx context.Context, id string) (store.Template, error)
	ListTemplates(ctx context.Context, workspaceID string) ([]store.Template, error)
	CreateVersion(ctx context.Context, v store.TemplateVersion) (store.TemplateVersion, error)
	GetVersion(ctx context.Context, templateID, versionID string) (store.TemplateVersion, error)
	GetVersionByID(ctx context.Context, versionID string) (store.TemplateVersion, error)
	UpdateVersionContent(ctx context.Context, versionID string, contentRaw []byte, name, language, plainText string) error
	PublishVersion(ctx context.Context, versionID string, roles []store.VersionSignerRole, injectables []store.VersionInjectable) error
	GetVersionSignerRoles(ctx context.Context, versionID string) ([]store.VersionSignerRole, error)
	GetVersionInjectables(ctx context.Context, versionID string) ([]store.VersionInjectable, error)
	CreateDocument(ctx context.Context, d store.Document) (store.Document, error)
	GetDocument(ctx context.Context, id string) (store.Document, error)
}

type historyStore interface {
	EnsureTemplateRepo(templateID string, initial []byte, author string) error
	CommitSnapshot(templateID string, payload []byte, author, message string) (store.CommitInfo, error)
	History(templateID string, limit int) ([]store.CommitInfo, error)
	TagVersion(templateID, hash, name string) error
}

type sessionRegistry interface {
	Save(ctx context.Context, rec session.Record) error
	Get(ctx context.Context, sessionID string) (session.Record, error)
	Touch(ctx context.Context, sessionID string) error
	Delete(ctx context.Context, sessionID string) error
	Ping(ctx context.Context) error
}

// Service wires the content bridge to storage, history, search and
// notifications. HTTP handlers stay thin; everything meaningful is here.
type Service struct {
	store    dataStore
	history  historyStore
	registry sessionRegistry
	search   *search.Service
	mailer   *notify.Mailer
	archive  *archive.Store
	cfg      config.Config

	sessions *sessionTable
}

func NewService(
	dataStore dataStore,
	history historyStore,
	registry sessionRegistry,
	searchSvc *search.Service,
	mailer *notify.Mailer,
	archiveStore *archive.Store,
	cfg config.Config,
) *Service {
	return &Service{
		store:    dataStore,
		history:  history,
		registry: registry,
		search:   searchSvc,
		mailer:   mailer,
		archive:  archiveStore,
		cfg:      cfg,
		sessions: newSessionTable(),
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) PingRegistry(ctx context.Context) error {
	if s.registry == nil {
		return nil
	}
	return s.registry.Ping(ctx)
}

// --- Templates ---

func (s *Service) CreateTemplate(ctx context.Context, workspaceID, name string) (store.Template, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return store.Template{}, domainError(http.StatusBadRequest, "INVALID_NAME", "Template name is required", nil)
	}
	if workspaceID == "" {
		workspaceID = "default"
	}

	tpl, err := s.store.CreateTemplate(ctx, store.Template{
		ID:          util.NewID("tpl"),
		WorkspaceID: workspaceID,
		Name:        name,
	})
	if err != nil {
		return store.Template{}, fmt.Errorf("create template: %w", err)
	}

	if err := s.history.EnsureTemplateRepo(tpl.ID, []byte(`{"version":2,"content":[]}`), "system"); err != nil {
		return store.Template{}, fmt.Errorf("init template history: %w", err)
	}
	return tpl, nil
}

func (s *Service) GetTemplate(ctx context.Context, id string) (store.Template, error) {
	return s.store.GetTemplate(ctx, id)
}

func (s *Service) ListTemplates(ctx context.Context, workspaceID string) ([]store.Template, error) {
	if workspaceID == "" {
		workspaceID = "default"
	}
	return s.store.ListTemplates(ctx, workspaceID)
}

func (s *Service) TemplateHistory(ctx context.Context, templateID string, limit int) ([]store.CommitInfo, error) {
	if _, err := s.store.GetTemplate(ctx, templateID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.history.History(templateID, limit)
}

// --- Versions ---

func (s *Service) CreateVersion(ctx context.Context, templateID, name, language string) (store.TemplateVersion, error) {
	if _, err := s.store.GetTemplate(ctx, templateID); err != nil {
		return store.TemplateVersion{}, err
	}
	if language == "" {
		language = "en"
	}

	version, err := s.store.CreateVersion(ctx, store.TemplateVersion{
		ID:         util.NewID("ver"),
		TemplateID: templateID,
		Name:       name,
		Language:   language,
		Status:     store.VersionStatusDraft,
		Content:    []byte(`{"version":2,"content":[]}`),
	})
	if err != nil {
		return store.TemplateVersion{}, fmt.Errorf("create version: %w", err)
	}
	return version, nil
}

func (s *Service) GetVersion(ctx context.Context, templateID, versionID string) (store.TemplateVersion, error) {
	return s.store.GetVersion(ctx, templateID, versionID)
}

// VersionDetail is a version together with the signer roles and injectables
// extracted at publish time. Drafts have no extracted rows yet.
type VersionDetail struct {
	Version     store.TemplateVersion
	SignerRoles []store.VersionSignerRole
	Injectables []store.VersionInjectable
}

func (s *Service) GetVersionDetail(ctx context.Context, templateID, versionID string) (VersionDetail, error) {
	version, err := s.store.GetVersion(ctx, templateID, versionID)
	if err != nil {
		return VersionDetail{}, err
	}
	roles, err := s.store.GetVersionSignerRoles(ctx, version.ID)
	if err != nil {
		return VersionDetail{}, fmt.Errorf("load signer roles: %w", err)
	}
	injectables, err := s.store.GetVersionInjectables(ctx, version.ID)
	if err != nil {
		return VersionDetail{}, fmt.Errorf("load injectables: %w", err)
	}
	return VersionDetail{Version: version, SignerRoles: roles, Injectables: injectables}, nil
}

// VersionMeta carries save-time metadata updates. Empty fields keep the
// stored values.
type VersionMeta struct {
	Title    string `json:"title"`
	Language string `json:"language"`
}

// SaveVersionContent validates and persists a raw content payload directly,
// without an editing session. The payload is imported onto a scratch
// surface so partial-content diagnostics and workflow repair run exactly as
// they do for session saves, then re-exported so the stored bytes are
// always in the current wire format.
func (s *Service) SaveVersionContent(ctx context.Context, templateID, versionID string, raw []byte, catalog []content.Variable, meta VersionMeta) (content.ImportResult, error) {
	version, err := s.store.GetVersion(ctx, templateID, versionID)
	if err != nil {
		return content.ImportResult{}, err
	}
	if version.Status != store.VersionStatusDraft {
		return content.ImportResult{}, domainError(http.StatusConflict, "VERSION_NOT_DRAFT", "Only draft versions can be edited", nil)
	}

	editor := content.NewEditorState()
	result, err := content.ImportRaw(raw, editor, editor, catalog)
	if err != nil {
		// Decode failures carry their diagnostics in the result.
		if !result.Success {
			return result, nil
		}
		return content.ImportResult{}, fmt.Errorf("import content: %w", err)
	}
	if !result.Success {
		return result, nil
	}

	normalized, err := content.ExportRaw(editor, editor)
	if err != nil {
		return content.ImportResult{}, fmt.Errorf("export content: %w", err)
	}

	if err := s.persistVersionContent(ctx, version, normalized, "Save content", meta); err != nil {
		return content.ImportResult{}, err
	}
	return result, nil
}

// persistVersionContent is the single write path for version content:
// database row, history commit, search index.
func (s *Service) persistVersionContent(ctx context.Context, version store.TemplateVersion, raw []byte, message string, meta VersionMeta) error {
	plain := snapshotPlainText(raw)
	if err := s.store.UpdateVersionContent(ctx, version.ID, raw, meta.Title, meta.Language, plain); err != nil {
		if errors.Is(err, store.ErrVersionNotDraft) {
			return domainError(http.StatusConflict, "VERSION_NOT_DRAFT", "Only draft versions can be edited", nil)
		}
		return fmt.Errorf("persist version content: %w", err)
	}

	if _, err := s.history.CommitSnapshot(version.TemplateID, raw, "editor", message); err != nil {
		// History lags behind the database; the next successful save
		// catches it up.
		log.Printf("app: history commit for version %s: %v", version.ID, err)
	}

	if s.search != nil {
		name := version.Name
		if meta.Title != "" {
			name = meta.Title
		}
		language := version.Language
		if meta.Language != "" {
			language = meta.Language
		}
		s.search.IndexVersion(search.VersionRecord{
			ID:         version.ID,
			TemplateID: version.TemplateID,
			Name:       name,
			Language:   language,
			Status:     version.Status,
			Text:       plain,
		})
	}
	return nil
}

// PublishVersion freezes a draft, extracts its signer roles and injectables,
// tags the history commit and archives the frozen payload.
func (s *Service) PublishVersion(ctx context.Context, templateID, versionID string) (store.TemplateVersion, error) {
	version, err := s.store.GetVersion(ctx, templateID, versionID)
	if err != nil {
		return store.TemplateVersion{}, err
	}
	if version.Status != store.VersionStatusDraft {
		return store.TemplateVersion{}, domainError(http.StatusConflict, "VERSION_NOT_DRAFT", "Version is already published", nil)
	}

	doc, err := snapshot.Parse(version.Content)
	if err != nil {
		return store.TemplateVersion{}, domainError(http.StatusUnprocessableEntity, "INVALID_CONTENT", "Version content cannot be decoded", nil)
	}
	if doc == nil {
		return store.TemplateVersion{}, domainError(http.StatusUnprocessableEntity, "EMPTY_CONTENT", "Cannot publish an empty version", nil)
	}

	// Drafts save leniently; publishing runs the strict checks.
	if validation := content.ValidateForPublish(doc); len(validation.Errors) > 0 {
		return store.TemplateVersion{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_FAILED", "Version content failed publish validation", validation)
	}

	roles := make([]store.VersionSignerRole, 0, len(doc.SignerRoles))
	for _, role := range doc.SignerRoles {
		roles = append(roles, store.VersionSignerRole{
			ID:           role.ID,
			VersionID:    version.ID,
			Label:        role.Label,
			SigningOrder: role.Order,
		})
	}
	variableIDs := doc.VariableIDs()
	injectables := make([]store.VersionInjectable, 0, len(variableIDs))
	for _, id := range variableIDs {
		injectables = append(injectables, store.VersionInjectable{
			ID:         util.NewID("inj"),
			VersionID:  version.ID,
			VariableID: id,
		})
	}

	if err := s.store.PublishVersion(ctx, version.ID, roles, injectables); err != nil {
		return store.TemplateVersion{}, fmt.Errorf("publish version: %w", err)
	}

	message := fmt.Sprintf("Publish version %d", version.VersionNumber)
	if commit, err := s.history.CommitSnapshot(templateID, version.Content, "editor", message); err != nil {
		log.Printf("app: publish history commit for %s: %v", version.ID, err)
	} else if err := s.history.TagVersion(templateID, commit.Hash, fmt.Sprintf("v%d", version.VersionNumber)); err != nil {
		log.Printf("app: publish tag for %s: %v", version.ID, err)
	}

	if s.archive != nil {
		if err := s.archive.PutSnapshot(ctx, templateID, version.ID, version.Content); err != nil {
			log.Printf("app: archive snapshot for %s: %v", version.ID, err)
		}
	}

	published, err := s.store.GetVersionByID(ctx, version.ID)
	if err != nil {
		return store.TemplateVersion{}, err
	}

	if s.search != nil {
		s.search.IndexVersion(search.VersionRecord{
			ID:         published.ID,
			TemplateID: published.TemplateID,
			Name:       published.Name,
			Language:   published.Language,
			Status:     published.Status,
			Text:       snapshotPlainText(published.Content),
		})
	}
	return published, nil
}

// PreviewPDF renders a version's current content to PDF with the given
// variable values injected.
func (s *Service) PreviewPDF(ctx context.Context, templateID, versionID string, variables map[string]string) (*render.Result, error) {
	version, err := s.store.GetVersion(ctx, templateID, versionID)
	if err != nil {
		return nil, err
	}
	doc, err := snapshot.Parse(version.Content)
	if err != nil {
		return nil, domainError(http.StatusUnprocessableEntity, "INVALID_CONTENT", "Version content cannot be decoded", nil)
	}
	if doc == nil {
		doc = &snapshot.Document{Pagination: snapshot.DefaultPageConfig()}
	}

	title := version.Name
	if title == "" {
		title = "Untitled"
	}
	return render.PDF(doc, render.Options{Title: title, Variables: withRoleVariables(doc, variables)})
}

// --- Documents ---

// CreateDocument generates a signable document from a published version and
// dispatches creation-time signer notifications.
func (s *Service) CreateDocument(ctx context.Context, versionID, title string, variables map[string]string) (store.Document, error) {
	version, err := s.store.GetVersionByID(ctx, versionID)
	if err != nil {
		return store.Document{}, err
	}
	if version.Status != store.VersionStatusPublished {
		return store.Document{}, domainError(http.StatusConflict, "VERSION_NOT_PUBLISHED", "Documents can only be generated from published versions", nil)
	}

	if strings.TrimSpace(title) == "" {
		title = version.Name
	}

	doc, err := s.store.CreateDocument(ctx, store.Document{
		ID:        util.NewID("doc"),
		VersionID: versionID,
		Title:     title,
		Status:    store.DocumentStatusPending,
	})
	if err != nil {
		return store.Document{}, fmt.Errorf("create document: %w", err)
	}

	snap, parseErr := snapshot.Parse(version.Content)
	if parseErr == nil && snap != nil {
		s.dispatchNotifications(snap, doc, notify.Event{Kind: notify.EventDocumentCreated}, nil, variables)
	}

	if s.search != nil {
		s.search.IndexDocument(search.DocumentRecord{
			ID:         doc.ID,
			TemplateID: version.TemplateID,
			Title:      doc.Title,
			Status:     doc.Status,
		})
	}

	if s.archive != nil && parseErr == nil && snap != nil {
		go s.archiveDocumentPDF(doc, snap, variables)
	}
	return doc, nil
}

func (s *Service) GetDocument(ctx context.Context, id string) (store.Document, error) {
	return s.store.GetDocument(ctx, id)
}

// DocumentPDFURL returns a time-limited download link for a document's
// archived PDF. The PDF is rendered asynchronously after creation, so a
// fresh document may not have one yet.
func (s *Service) DocumentPDFURL(ctx context.Context, id string) (string, error) {
	if s.archive == nil {
		return "", domainError(http.StatusNotImplemented, "ARCHIVE_DISABLED", "Document archive is not configured", nil)
	}
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return "", err
	}
	ok, err := s.archive.Exists(ctx, archive.PDFKey(doc.ID))
	if err != nil {
		return "", fmt.Errorf("check archived pdf: %w", err)
	}
	if !ok {
		return "", domainError(http.StatusNotFound, "PDF_NOT_READY", "Document PDF has not been archived yet", nil)
	}
	return s.archive.PresignedGetURL(ctx, archive.PDFKey(doc.ID), 0)
}

func (s *Service) archiveDocumentPDF(doc store.Document, snap *snapshot.Document, variables map[string]string) {
	result, err := render.PDF(snap, render.Options{Title: doc.Title, Variables: withRoleVariables(snap, variables)})
	if err != nil {
		log.Printf("app: render pdf for document %s: %v", doc.ID, err)
		return
	}
	if err := s.archive.PutPDF(context.Background(), doc.ID, result.Data); err != nil {
		log.Printf("app: archive pdf for document %s: %v", doc.ID, err)
	}
}

// dispatchNotifications plans and sends signer emails for one event.
// Planning is pure; sending is best effort and logged.
func (s *Service) dispatchNotifications(snap *snapshot.Document, doc store.Document, ev notify.Event, signed workflow.Set[string], variables map[string]string) {
	if s.mailer == nil || !s.mailer.IsConfigured() {
		return
	}
	if signed == nil {
		signed = workflow.Set[string]{}
	}

	planned := notify.Plan(snap.SignerRoles, snap.OrderMode, snap.Workflow, signed, ev)
	if len(planned) == 0 {
		return
	}

	byID := make(map[string]workflow.SignerRole, len(snap.SignerRoles))
	for _, role := range snap.SignerRoles {
		byID[role.ID] = role
	}

	for _, n := range planned {
		role := byID[n.RoleID]
		email := resolveFieldValue(role.Email, variables)
		if email == "" {
			log.Printf("app: no email for role %s on document %s, skipping %s", n.RoleLabel, doc.ID, n.Trigger)
			continue
		}
		name := resolveFieldValue(role.Name, variables)
		if name == "" {
			name = role.Label
		}

		go func(email, name, trigger string) {
			err := s.mailer.SendSigningEmail(email, notify.SigningData{
				RecipientName: name,
				DocumentTitle: doc.Title,
				SigningURL:    fmt.Sprintf("%s/sign/%s", strings.TrimRight(s.cfg.PublicBaseURL, "/"), doc.ID),
				Reason:        triggerReason(trigger),
			})
			if err != nil {
				log.Printf("app: send %s email for document %s: %v", trigger, doc.ID, err)
			}
		}(email, name, n.Trigger)
	}
}

func triggerReason(trigger string) string {
	switch trigger {
	case workflow.TriggerOnDocumentCreated:
		return "A document is ready for your signature"
	case workflow.TriggerOnTurnToSign:
		return "It is your turn to sign"
	case workflow.TriggerOnPreviousRolesSigned:
		return "The signers before you have completed their signatures"
	case workflow.TriggerOnAllSignaturesComplete:
		return "All signatures are complete"
	default:
		return "Signature update"
	}
}

// resolveFieldValue turns a role field into concrete text: literal fields
// pass through, injectable fields look up the provided variable values.
func resolveFieldValue(field workflow.FieldValue, variables map[string]string) string {
	switch {
	case field.IsEmpty():
		return ""
	case field.IsInjectable():
		return variables[field.Value]
	default:
		return field.Value
	}
}

// withRoleVariables extends the caller's variable values with ROLE.* keys
// resolved from the snapshot's signer roles, so injectors bound to role
// fields render in previews and PDFs.
func withRoleVariables(snap *snapshot.Document, variables map[string]string) map[string]string {
	merged := make(map[string]string, len(variables)+2*len(snap.SignerRoles))
	for k, v := range variables {
		merged[k] = v
	}
	for _, role := range snap.SignerRoles {
		if name := resolveFieldValue(role.Name, variables); name != "" {
			merged["ROLE."+role.Label+".name"] = name
		}
		if email := resolveFieldValue(role.Email, variables); email != "" {
			merged["ROLE."+role.Label+".email"] = email
		}
	}
	return merged
}

// --- Search ---

func (s *Service) Search(q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(q)
}

// snapshotPlainText extracts the searchable text of a content payload.
func snapshotPlainText(raw []byte) string {
	doc, err := snapshot.Parse(raw)
	if err != nil || doc == nil {
		return ""
	}
	var parts []string
	for _, node := range doc.Content {
		node.Walk(func(n snapshot.Node) {
			if n.Type == snapshot.NodeTypeText && strings.TrimSpace(n.Text) != "" {
				parts = append(parts, n.Text)
			}
		})
	}
	return strings.Join(parts, " ")
}
