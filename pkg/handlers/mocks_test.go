package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/querygate/pkg/adapters/datasource"
	"github.com/ekaya-inc/querygate/pkg/apperrors"
	"github.com/ekaya-inc/querygate/pkg/auth"
	"github.com/ekaya-inc/querygate/pkg/models"
	"github.com/ekaya-inc/querygate/pkg/services"
)

var (
	testUserID  = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	testAdminID = uuid.MustParse("22222222-2222-2222-2222-222222222222")
)

// fakeAuthService accepts "Bearer viewer" and "Bearer admin".
type fakeAuthService struct{}

func (fakeAuthService) ValidateRequest(r *http.Request) (*auth.Claims, string, error) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	claims := &auth.Claims{}
	switch token {
	case "viewer":
		claims.Subject = "alice"
		claims.UserID = testUserID.String()
		claims.Role = models.RoleViewer
	case "admin":
		claims.Subject = "root"
		claims.UserID = testAdminID.String()
		claims.Role = models.RoleAdmin
	default:
		return nil, "", auth.ErrMissingAuthorization
	}
	return claims, token, nil
}

func newTestAuthMiddleware() *auth.Middleware {
	return auth.NewMiddleware(fakeAuthService{}, zap.NewNop())
}

// passthroughScope stands in for the database scope middleware.
func passthroughScope(next http.HandlerFunc) http.HandlerFunc {
	return next
}

// --- users ---

type mockUserService struct {
	user       *models.User
	err        error
	registered []string
	lastLookup string
	lastPasswd string
}

func (m *mockUserService) Register(ctx context.Context, username, password string) (*models.User, error) {
	m.registered = append(m.registered, username)
	if m.err != nil {
		return nil, m.err
	}
	return &models.User{ID: uuid.New(), Username: username, Role: models.RoleViewer}, nil
}

func (m *mockUserService) CreateWithRole(ctx context.Context, username, password, role string) (*models.User, error) {
	m.registered = append(m.registered, username)
	if m.err != nil {
		return nil, m.err
	}
	return &models.User{ID: uuid.New(), Username: username, Role: role}, nil
}

func (m *mockUserService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	m.lastLookup = username
	m.lastPasswd = password
	if m.err != nil {
		return nil, m.err
	}
	return m.user, nil
}

func (m *mockUserService) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	m.lastLookup = username
	if m.err != nil {
		return nil, m.err
	}
	return m.user, nil
}

func (m *mockUserService) EnsureBootstrapAdmin(ctx context.Context, username, password string) error {
	return m.err
}

// --- sessions ---

type mockSessionService struct {
	session    *models.Session
	detail     *models.SessionDetail
	sessions   []*models.Session
	message    *models.Message
	err        error
	createReq  *services.CreateSessionRequest
	updateReq  *services.UpdateSessionRequest
	lastSearch string
	lastPatch  models.MessagePatch
	deletedID  uuid.UUID
}

func (m *mockSessionService) Create(ctx context.Context, req *services.CreateSessionRequest) (*models.Session, error) {
	m.createReq = req
	if m.err != nil {
		return nil, m.err
	}
	return m.session, nil
}

func (m *mockSessionService) List(ctx context.Context, search string) ([]*models.Session, error) {
	m.lastSearch = search
	return m.sessions, m.err
}

func (m *mockSessionService) Get(ctx context.Context, id uuid.UUID) (*models.SessionDetail, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.detail, nil
}

func (m *mockSessionService) Update(ctx context.Context, id uuid.UUID, req *services.UpdateSessionRequest) (*models.Session, error) {
	m.updateReq = req
	if m.err != nil {
		return nil, m.err
	}
	return m.session, nil
}

func (m *mockSessionService) Delete(ctx context.Context, id uuid.UUID) error {
	m.deletedID = id
	return m.err
}

func (m *mockSessionService) PatchMessage(ctx context.Context, sessionID, messageID uuid.UUID, patch models.MessagePatch) (*models.Message, error) {
	m.lastPatch = patch
	if m.err != nil {
		return nil, m.err
	}
	return m.message, nil
}

type mockConversationService struct {
	created    []*models.Message
	message    *models.Message
	chart      *services.VisualizationResult
	err        error
	sendReq    *services.SendMessageRequest
	confirmReq *services.ConfirmQueryRequest
	vizRequest string
}

func (m *mockConversationService) SendMessage(ctx context.Context, sessionID uuid.UUID, req *services.SendMessageRequest) ([]*models.Message, error) {
	m.sendReq = req
	if m.err != nil {
		return nil, m.err
	}
	return m.created, nil
}

func (m *mockConversationService) ConfirmQuery(ctx context.Context, sessionID, messageID uuid.UUID, req *services.ConfirmQueryRequest) (*models.Message, error) {
	m.confirmReq = req
	if m.err != nil {
		return nil, m.err
	}
	return m.message, nil
}

func (m *mockConversationService) RequestVisualization(ctx context.Context, sessionID, messageID uuid.UUID, request string) (*services.VisualizationResult, error) {
	m.vizRequest = request
	if m.err != nil {
		return nil, m.err
	}
	return m.chart, nil
}

// --- projects ---

type mockProjectService struct {
	project  *models.Project
	projects []*models.Project
	err      error
	created  string
	deleted  uuid.UUID
}

func (m *mockProjectService) Create(ctx context.Context, name string) (*models.Project, error) {
	m.created = name
	if m.err != nil {
		return nil, m.err
	}
	return m.project, nil
}

func (m *mockProjectService) List(ctx context.Context) ([]*models.Project, error) {
	return m.projects, m.err
}

func (m *mockProjectService) Delete(ctx context.Context, id uuid.UUID) error {
	m.deleted = id
	return m.err
}

// --- MCP connections ---

type mockMCPConnectionService struct {
	conn     *models.MCPConnection
	conns    []*models.MCPConnection
	tools    []models.MCPTool
	err      error
	toolsErr error
	created  *services.CreateMCPConnectionRequest
}

func (m *mockMCPConnectionService) Create(ctx context.Context, req *services.CreateMCPConnectionRequest) (*models.MCPConnection, error) {
	m.created = req
	if m.err != nil {
		return nil, m.err
	}
	return m.conn, nil
}

func (m *mockMCPConnectionService) List(ctx context.Context) ([]*models.MCPConnection, error) {
	return m.conns, m.err
}

func (m *mockMCPConnectionService) Get(ctx context.Context, id uuid.UUID) (*models.MCPConnection, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.conn, nil
}

func (m *mockMCPConnectionService) Delete(ctx context.Context, id uuid.UUID) error {
	return m.err
}

func (m *mockMCPConnectionService) ListTools(ctx context.Context, id uuid.UUID) ([]models.MCPTool, error) {
	if m.toolsErr != nil {
		return nil, m.toolsErr
	}
	return m.tools, nil
}

func (m *mockMCPConnectionService) ActiveConnections(ctx context.Context, ids []string) ([]*models.MCPConnection, error) {
	return m.conns, m.err
}

// --- saved queries ---

type mockSavedQueryService struct {
	saved   []*models.SavedQuery
	err     error
	created *models.SavedQuery
}

func (m *mockSavedQueryService) Create(ctx context.Context, q *models.SavedQuery) (*models.SavedQuery, error) {
	m.created = q
	if m.err != nil {
		return nil, m.err
	}
	out := *q
	out.ID = uuid.New()
	return &out, nil
}

func (m *mockSavedQueryService) List(ctx context.Context) ([]*models.SavedQuery, error) {
	return m.saved, m.err
}

func (m *mockSavedQueryService) Delete(ctx context.Context, id uuid.UUID) error {
	return m.err
}

// --- transcription ---

type mockTranscriptionService struct {
	text     string
	err      error
	filename string
	audio    []byte
}

func (m *mockTranscriptionService) Transcribe(ctx context.Context, filename, contentType string, audio []byte) (string, error) {
	m.filename = filename
	m.audio = audio
	if m.err != nil {
		return "", m.err
	}
	return m.text, nil
}

// --- audit ---

type mockAuditService struct {
	entries   []*models.QueryAuditEntry
	err       error
	lastLimit int
}

func (m *mockAuditService) Record(ctx context.Context, entry *models.QueryAuditEntry) {
	m.entries = append(m.entries, entry)
}

func (m *mockAuditService) List(ctx context.Context, limit int) ([]*models.QueryAuditEntry, error) {
	m.lastLimit = limit
	return m.entries, m.err
}

// --- translator and executor ---

type mockTranslator struct {
	generated *services.GeneratedQuery
	err       error
	provider  string
	question  string
}

func (m *mockTranslator) Generate(ctx context.Context, dbID, provider, question string) (*services.GeneratedQuery, error) {
	m.provider = provider
	m.question = question
	if m.err != nil {
		return nil, m.err
	}
	return m.generated, nil
}

func (m *mockTranslator) Reply(ctx context.Context, req *services.ReplyRequest) (*services.ChatReply, error) {
	return nil, errors.New("not used")
}

type mockExecutor struct {
	result *models.ResultEnvelope
	err    error
	calls  []*services.ExecuteRequest
}

func (m *mockExecutor) Execute(ctx context.Context, req *services.ExecuteRequest) (*models.ResultEnvelope, error) {
	m.calls = append(m.calls, req)
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

// --- catalog ---

type mockCatalog struct {
	databases []models.DatabaseDescriptor
	schema    *models.DatabaseSchema
	all       map[string]*models.DatabaseSchema
	sample    *models.ResultEnvelope
	err       error
}

func (m *mockCatalog) Databases() []models.DatabaseDescriptor {
	return m.databases
}

func (m *mockCatalog) Database(dbID string) (models.DatabaseDescriptor, error) {
	for _, d := range m.databases {
		if d.ID == dbID {
			return d, nil
		}
	}
	return models.DatabaseDescriptor{}, apperrors.ErrUnknownDatabase
}

func (m *mockCatalog) Adapter(ctx context.Context, dbID string) (datasource.Adapter, models.DatabaseDescriptor, error) {
	return nil, models.DatabaseDescriptor{}, errors.New("not used")
}

func (m *mockCatalog) GetSchema(ctx context.Context, dbID string) (*models.DatabaseSchema, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.schema, nil
}

func (m *mockCatalog) GetAllSchemas(ctx context.Context) map[string]*models.DatabaseSchema {
	return m.all
}

func (m *mockCatalog) SampleData(ctx context.Context, dbID, object string) (*models.ResultEnvelope, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.sample, nil
}

func (m *mockCatalog) SchemaForPrompt(ctx context.Context, dbID string) (string, error) {
	return "", m.err
}

var (
	_ services.UserService          = (*mockUserService)(nil)
	_ services.SessionService       = (*mockSessionService)(nil)
	_ services.ConversationService  = (*mockConversationService)(nil)
	_ services.ProjectService       = (*mockProjectService)(nil)
	_ services.MCPConnectionService = (*mockMCPConnectionService)(nil)
	_ services.SavedQueryService    = (*mockSavedQueryService)(nil)
	_ services.TranscriptionService = (*mockTranscriptionService)(nil)
	_ services.AuditService         = (*mockAuditService)(nil)
	_ services.Translator           = (*mockTranslator)(nil)
	_ services.Executor             = (*mockExecutor)(nil)
	_ services.SchemaCatalog        = (*mockCatalog)(nil)
)
