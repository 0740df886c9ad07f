package application

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/uniroute/uniroute/core"
)

// in-memory fakes for service tests

type repoMock struct {
	mu          sync.Mutex
	table       map[string]Application
	createCalls int
	updateCalls int
}

var _ Repository = (*repoMock)(nil)

func newRepoMock() *repoMock {
	return &repoMock{table: make(map[string]Application)}
}

func (r *repoMock) CreateApplication(_ context.Context, app Application) (Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.createCalls++
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	r.table[app.ID] = app
	return app, nil
}

func (r *repoMock) GetApplicationByID(_ context.Context, id string) (Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if app, ok := r.table[id]; ok {
		return app, nil
	}
	return Application{}, ErrNotFound
}

func (r *repoMock) QueryAllApplications(_ context.Context) ([]Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	apps := make([]Application, 0, len(r.table))
	for _, app := range r.table {
		apps = append(apps, app)
	}
	return apps, nil
}

func (r *repoMock) FilterApplications(ctx context.Context, filter QueryFilter) ([]Application, error) {
	apps, _ := r.QueryAllApplications(ctx)
	res := apps[:0]
	for _, app := range apps {
		if filter.UniversityID != "" && app.UniversityID != filter.UniversityID {
			continue
		}
		if filter.Status != "" && app.Status != filter.Status {
			continue
		}
		if filter.SubmittedOnly && !app.IsSubmitted() {
			continue
		}
		res = append(res, app)
	}
	return res, nil
}

func (r *repoMock) UpdateApplication(_ context.Context, app Application) (Application, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	orig, ok := r.table[app.ID]
	if !ok {
		return Application{}, ErrNotFound
	}
	if orig.Version != app.Version {
		return Application{}, core.NewConflictError(ErrVersionConflict)
	}
	r.updateCalls++
	app.Version++
	r.table[app.ID] = app
	return app, nil
}

func (r *repoMock) DeleteApplicationsByID(_ context.Context, ids ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		delete(r.table, id)
	}
	return nil
}

type catalogMock struct {
	universities map[string]string            // id -> name
	programs     map[string]map[string]string // universityID -> programID -> name
}

var _ Catalog = (*catalogMock)(nil)

func newCatalogMock() *catalogMock {
	return &catalogMock{
		universities: map[string]string{"U1": "Lumina University"},
		programs:     map[string]map[string]string{"U1": {"P1": "BSc Computer Science"}},
	}
}

func (c *catalogMock) ResolveSelection(_ context.Context, universityID, programID string) (bool, bool, error) {
	_, uniOK := c.universities[universityID]
	var progOK bool
	if uniOK {
		_, progOK = c.programs[universityID][programID]
	}
	return uniOK, progOK, nil
}

func (c *catalogMock) ProgramLabel(_ context.Context, universityID, programID string) (string, string, error) {
	return c.universities[universityID], c.programs[universityID][programID], nil
}

type docStoreMock struct {
	putCalls    int
	deleteCalls int
}

var _ DocumentStore = (*docStoreMock)(nil)

func (s *docStoreMock) Put(_ context.Context, appID string, tag DocumentTag, _, _ string, _ int64, _ io.Reader) (StoredDocument, error) {
	s.putCalls++
	return StoredDocument{ID: uuid.NewString(), URL: "mem://" + appID + "/" + string(tag)}, nil
}

func (s *docStoreMock) Delete(context.Context, string, DocumentTag) error {
	s.deleteCalls++
	return nil
}

type gatewayMock struct {
	chargeCalls int
	failWith    error
	lastReq     ChargeRequest
}

var _ PaymentGateway = (*gatewayMock)(nil)

func (g *gatewayMock) Charge(_ context.Context, req ChargeRequest) (ChargeResult, error) {
	g.chargeCalls++
	g.lastReq = req
	if g.failWith != nil {
		return ChargeResult{}, g.failWith
	}
	return ChargeResult{Reference: "ch_" + req.ApplicationID}, nil
}

type idemMock struct {
	mu   sync.Mutex
	keys map[string]string
}

var _ IdempotencyStore = (*idemMock)(nil)

func newIdemMock() *idemMock { return &idemMock{keys: make(map[string]string)} }

func (s *idemMock) PutIfAbsent(_ context.Context, key, applicationID string, _ time.Duration) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if winner, ok := s.keys[key]; ok {
		return winner, false, nil
	}
	s.keys[key] = applicationID
	return applicationID, true, nil
}

type mailMock struct {
	mu   sync.Mutex
	sent []*core.EmailMessage
}

var _ core.EmailService = (*mailMock)(nil)

func (m *mailMock) SendMessages(messages ...*core.EmailMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, messages...)
}

type testEnv struct {
	svc     *Service
	repo    *repoMock
	catalog *catalogMock
	docs    *docStoreMock
	gateway *gatewayMock
	idem    *idemMock
	mail    *mailMock
}

func newTestEnv() *testEnv {
	env := &testEnv{
		repo:    newRepoMock(),
		catalog: newCatalogMock(),
		docs:    &docStoreMock{},
		gateway: &gatewayMock{},
		idem:    newIdemMock(),
		mail:    &mailMock{},
	}
	env.svc = NewService(env.repo, env.catalog, env.docs, env.gateway, env.idem, env.mail)
	return env
}

const testStudentID = "student-1"

func validNewApplication() NewApplication {
	return NewApplication{
		FullName:     "Jane Doe",
		Email:        "jane@example.com",
		Country:      "France",
		UniversityID: "U1",
		ProgramID:    "P1",
	}
}
