package services

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/querygate/pkg/adapters/datasource"
	"github.com/ekaya-inc/querygate/pkg/apperrors"
	"github.com/ekaya-inc/querygate/pkg/auth"
	"github.com/ekaya-inc/querygate/pkg/config"
	"github.com/ekaya-inc/querygate/pkg/models"
	"github.com/ekaya-inc/querygate/pkg/repositories"
)

func adminCtx() context.Context {
	return auth.WithClaims(context.Background(), &auth.Claims{UserID: uuid.NewString(), Role: models.RoleAdmin})
}

func viewerCtx() context.Context {
	return auth.WithClaims(context.Background(), &auth.Claims{UserID: uuid.NewString(), Role: models.RoleViewer})
}

// fakeSessionRepo stores sessions in memory.
type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*models.Session
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: map[uuid.UUID]*models.Session{}}
}

func (r *fakeSessionRepo) Create(_ context.Context, s *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.CreatedAt = time.Now()
	s.UpdatedAt = s.CreatedAt
	cp := *s
	r.sessions[s.ID] = &cp
	return nil
}

func (r *fakeSessionRepo) List(_ context.Context, search string) ([]*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*models.Session{}
	for _, s := range r.sessions {
		if search == "" || strings.Contains(strings.ToLower(s.Title), strings.ToLower(search)) {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeSessionRepo) Get(_ context.Context, id uuid.UUID) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *fakeSessionRepo) Update(_ context.Context, id uuid.UUID, u repositories.SessionUpdate) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	if u.Title != nil {
		s.Title = *u.Title
	}
	switch {
	case u.ClearProject:
		s.ProjectID = nil
	case u.ProjectID != nil:
		pid := *u.ProjectID
		s.ProjectID = &pid
	}
	cp := *s
	return &cp, nil
}

func (r *fakeSessionRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(r.sessions, id)
	return nil
}

// fakeMessageRepo assigns positions per session like the real table.
type fakeMessageRepo struct {
	mu       sync.Mutex
	messages map[uuid.UUID][]*models.Message

	// appendErr fails appends of messages with the given role.
	appendErr map[models.MessageRole]error
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{messages: map[uuid.UUID][]*models.Message{}}
}

func (r *fakeMessageRepo) Append(_ context.Context, m *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.appendErr[m.Role]; err != nil {
		return err
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.Position = len(r.messages[m.SessionID]) + 1
	m.CreatedAt = time.Now()
	cp := *m
	r.messages[m.SessionID] = append(r.messages[m.SessionID], &cp)
	return nil
}

func (r *fakeMessageRepo) ListBySession(_ context.Context, sessionID uuid.UUID) ([]*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Message, 0, len(r.messages[sessionID]))
	for _, m := range r.messages[sessionID] {
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeMessageRepo) Count(_ context.Context, sessionID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages[sessionID]), nil
}

func (r *fakeMessageRepo) find(sessionID, messageID uuid.UUID) (*models.Message, error) {
	for _, m := range r.messages[sessionID] {
		if m.ID == messageID {
			return m, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r *fakeMessageRepo) Get(_ context.Context, sessionID, messageID uuid.UUID) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, err := r.find(sessionID, messageID)
	if err != nil {
		return nil, err
	}
	cp := *m
	return &cp, nil
}

func (r *fakeMessageRepo) Patch(_ context.Context, sessionID, messageID uuid.UUID, p models.MessagePatch) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, err := r.find(sessionID, messageID)
	if err != nil {
		return nil, err
	}
	if p.Results != nil {
		m.Results = p.Results
	}
	if p.ChartConfig != nil {
		m.ChartConfig = p.ChartConfig
	}
	cp := *m
	return &cp, nil
}

func (r *fakeMessageRepo) Delete(_ context.Context, sessionID, messageID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := r.messages[sessionID]
	for i, m := range msgs {
		if m.ID == messageID {
			r.messages[sessionID] = append(msgs[:i:i], msgs[i+1:]...)
			return nil
		}
	}
	return apperrors.ErrNotFound
}

func (r *fakeMessageRepo) SetChartIfAbsent(_ context.Context, sessionID, messageID uuid.UUID, cfg *models.ChartConfig) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, err := r.find(sessionID, messageID)
	if err != nil {
		return false, err
	}
	if m.ChartConfig != nil {
		return false, nil
	}
	m.ChartConfig = cfg
	return true, nil
}

type fakeProjectRepo struct {
	projects map[uuid.UUID]*models.Project
}

func newFakeProjectRepo() *fakeProjectRepo {
	return &fakeProjectRepo{projects: map[uuid.UUID]*models.Project{}}
}

func (r *fakeProjectRepo) Create(_ context.Context, p *models.Project) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = time.Now()
	r.projects[p.ID] = p
	return nil
}

func (r *fakeProjectRepo) List(_ context.Context) ([]*models.Project, error) {
	out := []*models.Project{}
	for _, p := range r.projects {
		out = append(out, p)
	}
	return out, nil
}

func (r *fakeProjectRepo) Get(_ context.Context, id uuid.UUID) (*models.Project, error) {
	p, ok := r.projects[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return p, nil
}

func (r *fakeProjectRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := r.projects[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(r.projects, id)
	return nil
}

type fakeUserRepo struct {
	users map[string]*models.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[string]*models.User{}}
}

func (r *fakeUserRepo) Create(_ context.Context, u *models.User) error {
	if _, ok := r.users[u.Username]; ok {
		return apperrors.ErrConflict
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	r.users[u.Username] = u
	return nil
}

func (r *fakeUserRepo) CreateWithFirstAdmin(ctx context.Context, u *models.User) error {
	u.Role = models.RoleViewer
	if len(r.users) == 0 {
		u.Role = models.RoleAdmin
	}
	return r.Create(ctx, u)
}

func (r *fakeUserRepo) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	for _, u := range r.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r *fakeUserRepo) GetByUsername(_ context.Context, username string) (*models.User, error) {
	u, ok := r.users[username]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return u, nil
}

func (r *fakeUserRepo) Count(_ context.Context) (int, error) {
	return len(r.users), nil
}

type fakeMCPConnectionRepo struct {
	conns []*repositories.StoredMCPConnection
}

func (r *fakeMCPConnectionRepo) Create(_ context.Context, c *repositories.StoredMCPConnection) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.CreatedAt = time.Now()
	cp := *c
	r.conns = append(r.conns, &cp)
	return nil
}

func (r *fakeMCPConnectionRepo) List(_ context.Context) ([]*repositories.StoredMCPConnection, error) {
	out := make([]*repositories.StoredMCPConnection, 0, len(r.conns))
	for _, c := range r.conns {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeMCPConnectionRepo) Get(_ context.Context, id uuid.UUID) (*repositories.StoredMCPConnection, error) {
	for _, c := range r.conns {
		if c.ID == id {
			cp := *c
			return &cp, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r *fakeMCPConnectionRepo) Delete(_ context.Context, id uuid.UUID) error {
	for i, c := range r.conns {
		if c.ID == id {
			r.conns = append(r.conns[:i], r.conns[i+1:]...)
			return nil
		}
	}
	return apperrors.ErrNotFound
}

type fakeSavedQueryRepo struct {
	queries []*models.SavedQuery
}

func (r *fakeSavedQueryRepo) Create(_ context.Context, q *models.SavedQuery) error {
	q.ID = uuid.New()
	r.queries = append(r.queries, q)
	return nil
}

func (r *fakeSavedQueryRepo) List(_ context.Context) ([]*models.SavedQuery, error) {
	return r.queries, nil
}

func (r *fakeSavedQueryRepo) Delete(_ context.Context, id uuid.UUID) error {
	for i, q := range r.queries {
		if q.ID == id {
			r.queries = append(r.queries[:i], r.queries[i+1:]...)
			return nil
		}
	}
	return apperrors.ErrNotFound
}

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []*models.QueryAuditEntry
	err     error
}

func (r *fakeAuditRepo) Record(_ context.Context, e *models.QueryAuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.entries = append(r.entries, e)
	return nil
}

func (r *fakeAuditRepo) List(_ context.Context, limit int) ([]*models.QueryAuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.QueryAuditEntry, 0, len(r.entries))
	for i := len(r.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.entries[i])
	}
	return out, nil
}

func (r *fakeAuditRepo) last() *models.QueryAuditEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == 0 {
		return nil
	}
	return r.entries[len(r.entries)-1]
}

// fakeAdapter records executed statements and replays a canned result.
type fakeAdapter struct {
	engine     string
	entries    []models.SchemaEntry
	discoverEr error
	result     *models.ResultEnvelope
	executeErr error
	delay      time.Duration

	mu       sync.Mutex
	executed []string
	args     [][]any
	maxRows  int
}

func (a *fakeAdapter) Engine() string                         { return a.engine }
func (a *fakeAdapter) TestConnection(_ context.Context) error { return nil }
func (a *fakeAdapter) QuoteIdentifier(name string) string     { return `"` + name + `"` }
func (a *fakeAdapter) Close() error                           { return nil }

func (a *fakeAdapter) DiscoverSchema(_ context.Context) ([]models.SchemaEntry, error) {
	return a.entries, a.discoverEr
}

func (a *fakeAdapter) Sample(_ context.Context, entry models.SchemaEntry, limit int) (*models.ResultEnvelope, error) {
	rows := []map[string]any{}
	for i := 0; i < limit && i < 3; i++ {
		rows = append(rows, map[string]any{"object": entry.Name, "n": int64(i)})
	}
	return models.NewTabular([]string{"object", "n"}, rows), nil
}

func (a *fakeAdapter) Execute(ctx context.Context, query string, args []any, maxRows int) (*models.ResultEnvelope, error) {
	a.mu.Lock()
	a.executed = append(a.executed, query)
	a.args = append(a.args, args)
	a.maxRows = maxRows
	a.mu.Unlock()

	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return a.result, a.executeErr
}

func (a *fakeAdapter) executedQueries() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.executed...)
}

// fakeAdapterSource hands the same adapter to every database.
type fakeAdapterSource struct {
	adapter datasource.Adapter
	err     error
}

func (s *fakeAdapterSource) Get(_ context.Context, _, _ string, _ map[string]any) (datasource.Adapter, error) {
	return s.adapter, s.err
}

func testDatasources() map[string]config.DatasourceSpec {
	return map[string]config.DatasourceSpec{
		"sales":    {Name: "Sales", Engine: "postgresql", AllowMutations: true},
		"readonly": {Name: "Reporting", Engine: "postgresql"},
		"docs":     {Name: "Documents", Engine: "mongodb"},
		"cache":    {Name: "Cache", Engine: "redis", AllowMutations: true},
	}
}

func newTestCatalog(adapter datasource.Adapter) SchemaCatalog {
	return NewSchemaCatalog(testDatasources(), &fakeAdapterSource{adapter: adapter}, 5, zap.NewNop())
}

// fakeToolClient serves a fixed tool list and records calls.
type fakeToolClient struct {
	tools    []models.MCPTool
	listErr  map[uuid.UUID]error
	callText string
	calls    []string
}

func (c *fakeToolClient) ListTools(_ context.Context, conn *models.MCPConnection) ([]models.MCPTool, error) {
	if err := c.listErr[conn.ID]; err != nil {
		return nil, err
	}
	return c.tools, nil
}

func (c *fakeToolClient) CallTool(_ context.Context, conn *models.MCPConnection, name string, _ map[string]any) (string, bool, error) {
	c.calls = append(c.calls, conn.ID.String()+"/"+name)
	return c.callText, false, nil
}

// fakeScopes satisfies SystemScopeProvider without a database.
type fakeScopes struct {
	opened int
}

func (s *fakeScopes) WithoutUserScope(ctx context.Context) (context.Context, func(), error) {
	s.opened++
	return ctx, func() {}, nil
}

// fakeArchive records uploads.
type fakeArchive struct {
	keys []string
	err  error
}

func (a *fakeArchive) Put(_ context.Context, key string, _ io.Reader, _ int64, _ string) (string, error) {
	a.keys = append(a.keys, key)
	return key, a.err
}
