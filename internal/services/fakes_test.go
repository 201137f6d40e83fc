package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"

	"closingflow/internal/models"
	"closingflow/internal/repositories"
	"closingflow/internal/utils"
)

/*
   In-memory fakes for the persistence and collaborator boundaries.
   The workflow fake round-trips state through JSON on every read so a
   mutation only becomes visible through an explicit update, matching
   the real repository.
*/

type fakeWorkflowRepo struct {
	mu       sync.Mutex
	states   map[uuid.UUID][]byte
	versions map[uuid.UUID]int64
}

func newFakeWorkflowRepo() *fakeWorkflowRepo {
	return &fakeWorkflowRepo{
		states:   make(map[uuid.UUID][]byte),
		versions: make(map[uuid.UUID]int64),
	}
}

func (r *fakeWorkflowRepo) GetByPropertyID(_ context.Context, propertyID uuid.UUID) (*repositories.WorkflowRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	raw, ok := r.states[propertyID]
	if !ok {
		return nil, nil
	}
	var st models.PropertyWorkflowState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, err
	}
	if st.Version != models.WorkflowStateVersion {
		return nil, fmt.Errorf("version %d: %w", st.Version, utils.ErrUnsupportedStateVersion)
	}
	return &repositories.WorkflowRecord{
		PropertyID: propertyID,
		State:      &st,
		RowVersion: r.versions[propertyID],
		UpdatedAt:  time.Now().UTC(),
	}, nil
}

func (r *fakeWorkflowRepo) Create(_ context.Context, rec *repositories.WorkflowRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.states[rec.PropertyID]; ok {
		return nil
	}
	raw, err := json.Marshal(rec.State)
	if err != nil {
		return err
	}
	r.states[rec.PropertyID] = raw
	r.versions[rec.PropertyID] = 1
	rec.RowVersion = 1
	return nil
}

func (r *fakeWorkflowRepo) UpdateIfVersion(_ context.Context, rec *repositories.WorkflowRecord, expected int64) (pgconn.CommandTag, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.versions[rec.PropertyID] != expected {
		return pgconn.CommandTag("UPDATE 0"), nil
	}
	raw, err := json.Marshal(rec.State)
	if err != nil {
		return nil, err
	}
	r.states[rec.PropertyID] = raw
	r.versions[rec.PropertyID] = expected + 1
	rec.RowVersion = expected + 1
	return pgconn.CommandTag("UPDATE 1"), nil
}

func (r *fakeWorkflowRepo) UpdateWithRetry(ctx context.Context, propertyID uuid.UUID, mutate func(*models.PropertyWorkflowState) error) (*repositories.WorkflowRecord, error) {
	for attempt := 0; attempt < 3; attempt++ {
		rec, err := r.GetByPropertyID(ctx, propertyID)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, pgx.ErrNoRows
		}
		if err := mutate(rec.State); err != nil {
			return nil, err
		}
		tag, err := r.UpdateIfVersion(ctx, rec, rec.RowVersion)
		if err != nil {
			return nil, err
		}
		if tag.RowsAffected() == 1 {
			return rec, nil
		}
	}
	return nil, utils.ErrRowVersionConflict
}

type fakePropertyRepo struct {
	props map[uuid.UUID]*models.Property
}

func newFakePropertyRepo() *fakePropertyRepo {
	return &fakePropertyRepo{props: make(map[uuid.UUID]*models.Property)}
}

func (r *fakePropertyRepo) Create(_ context.Context, p *models.Property) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	r.props[p.ID] = p
	return nil
}

func (r *fakePropertyRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Property, error) {
	return r.props[id], nil
}

func (r *fakePropertyRepo) ListAll(_ context.Context) ([]*models.Property, error) {
	var out []*models.Property
	for _, p := range r.props {
		out = append(out, p)
	}
	return out, nil
}

type contactKey struct {
	propertyID uuid.UUID
	t          models.ContactType
}

type fakeContactRepo struct {
	contacts map[contactKey]*models.Contact
}

func newFakeContactRepo() *fakeContactRepo {
	return &fakeContactRepo{contacts: make(map[contactKey]*models.Contact)}
}

func (r *fakeContactRepo) Upsert(_ context.Context, c *models.Contact) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	r.contacts[contactKey{c.PropertyID, c.Type}] = c
	return nil
}

func (r *fakeContactRepo) GetByType(_ context.Context, propertyID uuid.UUID, t models.ContactType) (*models.Contact, error) {
	return r.contacts[contactKey{propertyID, t}], nil
}

type fakeDocumentRepo struct {
	docs []*models.PropertyDocument
}

func (r *fakeDocumentRepo) Create(_ context.Context, d *models.PropertyDocument) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.UploadedAt.IsZero() {
		d.UploadedAt = time.Now().UTC()
	}
	r.docs = append(r.docs, d)
	return nil
}

func (r *fakeDocumentRepo) GetByID(_ context.Context, id uuid.UUID) (*models.PropertyDocument, error) {
	for _, d := range r.docs {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, nil
}

func (r *fakeDocumentRepo) ListByIDs(_ context.Context, ids []uuid.UUID) ([]*models.PropertyDocument, error) {
	var out []*models.PropertyDocument
	for _, d := range r.docs {
		for _, id := range ids {
			if d.ID == id {
				out = append(out, d)
			}
		}
	}
	return out, nil
}

func (r *fakeDocumentRepo) FindBySHA256(_ context.Context, propertyID uuid.UUID, sha string) (*models.PropertyDocument, error) {
	for i := len(r.docs) - 1; i >= 0; i-- {
		d := r.docs[i]
		if d.PropertyID == propertyID && d.SHA256 == sha {
			return d, nil
		}
	}
	return nil, nil
}

func (r *fakeDocumentRepo) LatestPDFByPropertyID(_ context.Context, propertyID uuid.UUID) (*models.PropertyDocument, error) {
	var latest *models.PropertyDocument
	for _, d := range r.docs {
		if d.PropertyID != propertyID || !d.IsPDF() {
			continue
		}
		if latest == nil || d.UploadedAt.After(latest.UploadedAt) {
			latest = d
		}
	}
	return latest, nil
}

type fakeInboxRepo struct {
	msgs []*models.InboxMessage
}

func (r *fakeInboxRepo) Create(_ context.Context, m *models.InboxMessage) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if m.Direction == models.DirectionOutbound {
		m.Read = true
	}
	r.msgs = append(r.msgs, m)
	return nil
}

func (r *fakeInboxRepo) GetByID(_ context.Context, id uuid.UUID) (*models.InboxMessage, error) {
	for _, m := range r.msgs {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, nil
}

func (r *fakeInboxRepo) FindByProviderMessageID(_ context.Context, propertyID uuid.UUID, providerMessageID string) (*models.InboxMessage, error) {
	if providerMessageID == "" {
		return nil, nil
	}
	for _, m := range r.msgs {
		if m.PropertyID == propertyID && m.ProviderMessageID == providerMessageID {
			return m, nil
		}
	}
	return nil, nil
}

func (r *fakeInboxRepo) ListByPropertyID(_ context.Context, propertyID uuid.UUID) ([]*models.InboxMessage, error) {
	var out []*models.InboxMessage
	for _, m := range r.msgs {
		if m.PropertyID == propertyID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeInboxRepo) ListByThreadID(_ context.Context, propertyID uuid.UUID, threadID string) ([]*models.InboxMessage, error) {
	var out []*models.InboxMessage
	for _, m := range r.msgs {
		if m.PropertyID == propertyID && m.ThreadID == threadID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeInboxRepo) ListUnanalyzedInbound(_ context.Context, limit int) ([]*models.InboxMessage, error) {
	var out []*models.InboxMessage
	for _, m := range r.msgs {
		if m.Direction == models.DirectionInbound && m.Analysis == nil {
			out = append(out, m)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *fakeInboxRepo) MarkRead(_ context.Context, id uuid.UUID) error {
	for _, m := range r.msgs {
		if m.ID == id {
			m.Read = true
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (r *fakeInboxRepo) MarkThreadRead(_ context.Context, propertyID uuid.UUID, threadID string) error {
	for _, m := range r.msgs {
		if m.PropertyID == propertyID && m.ThreadID == threadID && m.Direction == models.DirectionInbound {
			m.Read = true
		}
	}
	return nil
}

func (r *fakeInboxRepo) UpdateAnalysis(_ context.Context, id uuid.UUID, analysis *models.MessageAnalysis) error {
	for _, m := range r.msgs {
		if m.ID == id {
			if m.Analysis != nil {
				return utils.ErrAnalysisAlreadySet
			}
			m.Analysis = analysis
			return nil
		}
	}
	return pgx.ErrNoRows
}

type fakeBlobStore struct {
	blobs map[string][]byte
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{blobs: make(map[string][]byte)}
}

func (s *fakeBlobStore) Put(_ context.Context, key string, data []byte) error {
	s.blobs[key] = data
	return nil
}

func (s *fakeBlobStore) Get(_ context.Context, key string) ([]byte, error) {
	b, ok := s.blobs[key]
	if !ok {
		return nil, fmt.Errorf("blob %q not found", key)
	}
	return b, nil
}

// fakeClassifier returns canned results, or errors, per method.
type fakeClassifier struct {
	classifyResult *StageClassification
	classifyErr    error

	signalResult *models.EarnestSignalResult
	signalErr    error

	detectResults map[string]*models.DocumentDetection // keyed by filename
	detectErr     error
	detectCalls   []string

	composeResult *DraftResult
	composeErr    error
	composeCalls  int
}

func (c *fakeClassifier) ClassifyMessage(_ context.Context, _ MessageClassificationInput) (*StageClassification, error) {
	return c.classifyResult, c.classifyErr
}

func (c *fakeClassifier) ClassifyEarnestSignal(_ context.Context, _ MessageClassificationInput) (*models.EarnestSignalResult, error) {
	return c.signalResult, c.signalErr
}

func (c *fakeClassifier) DetectDocument(_ context.Context, _ []byte, filename string) (*models.DocumentDetection, error) {
	c.detectCalls = append(c.detectCalls, filename)
	if c.detectErr != nil {
		return nil, c.detectErr
	}
	if det, ok := c.detectResults[filename]; ok {
		return det, nil
	}
	return &models.DocumentDetection{IsMatch: false}, nil
}

func (c *fakeClassifier) ComposeEarnestDraft(_ context.Context, _ DraftContext) (*DraftResult, error) {
	c.composeCalls++
	return c.composeResult, c.composeErr
}

type fakeMailer struct {
	sent    []OutboundEmail
	sendErr error
	result  *DeliveryResult
}

func (m *fakeMailer) Send(_ context.Context, email OutboundEmail) (*DeliveryResult, error) {
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	m.sent = append(m.sent, email)
	if m.result != nil {
		return m.result, nil
	}
	return &DeliveryResult{
		ProviderID:        "sg-" + uuid.New().String(),
		ProviderMessageID: fmt.Sprintf("<%s@closingflow.test>", uuid.New()),
	}, nil
}

/* ------------------------------------------------------------------
   Shared test harness
------------------------------------------------------------------ */

type testEnv struct {
	workflowRepo *fakeWorkflowRepo
	propertyRepo *fakePropertyRepo
	contactRepo  *fakeContactRepo
	documentRepo *fakeDocumentRepo
	inboxRepo    *fakeInboxRepo
	blobStore    *fakeBlobStore
	classifier   *fakeClassifier
	mailer       *fakeMailer

	pipeline *PipelineService
	earnest  *EarnestService
	closing  *ClosingService
}

func newTestEnv() *testEnv {
	env := &testEnv{
		workflowRepo: newFakeWorkflowRepo(),
		propertyRepo: newFakePropertyRepo(),
		contactRepo:  newFakeContactRepo(),
		documentRepo: &fakeDocumentRepo{},
		inboxRepo:    &fakeInboxRepo{},
		blobStore:    newFakeBlobStore(),
		classifier:   &fakeClassifier{},
		mailer:       &fakeMailer{},
	}
	env.pipeline = NewPipelineService(env.workflowRepo, env.propertyRepo)
	env.earnest = NewEarnestService(
		env.pipeline,
		env.propertyRepo,
		env.contactRepo,
		env.documentRepo,
		env.inboxRepo,
		env.blobStore,
		env.classifier,
		env.mailer,
		"closings@closingflow.test",
	)
	env.closing = NewClosingService(env.pipeline)
	return env
}

// seedProperty registers a property plus, optionally, the escrow
// contact and a contract PDF in blob storage.
func (env *testEnv) seedProperty(withContact, withContract bool) uuid.UUID {
	prop := &models.Property{
		Address:            "114 Maple Ave",
		City:               "Knoxville",
		State:              "TN",
		ZipCode:            "37919",
		BuyerName:          "Dana Whitfield",
		EarnestAmountCents: 500_000,
	}
	_ = env.propertyRepo.Create(context.Background(), prop)

	if withContact {
		_ = env.contactRepo.Upsert(context.Background(), &models.Contact{
			PropertyID: prop.ID,
			Type:       models.ContactTypeEscrowOfficer,
			Name:       "Rita Alvarez",
			Email:      "rita@titleco.test",
		})
	}
	if withContract {
		doc := &models.PropertyDocument{
			PropertyID:  prop.ID,
			FileName:    "purchase-contract.pdf",
			ContentType: models.ContentTypePDF,
			SHA256:      "abc123",
			StorageKey:  prop.ID.String() + "/abc123",
			SizeBytes:   4,
		}
		_ = env.documentRepo.Create(context.Background(), doc)
		_ = env.blobStore.Put(context.Background(), doc.StorageKey, []byte("%PDF"))
	}
	return prop.ID
}
