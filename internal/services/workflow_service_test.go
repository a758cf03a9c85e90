package services

import (
	"context"
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/servicehub/backend/internal/catalog"
	"github.com/servicehub/backend/internal/models"
	"github.com/servicehub/backend/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// In-memory instance repository for service tests.
type fakeInstanceRepo struct {
	instances map[uuid.UUID]*models.WorkflowInstance
	audits    []models.StepAuditRecord
	commits   int
	nextSeq   int
}

func newFakeInstanceRepo() *fakeInstanceRepo {
	return &fakeInstanceRepo{instances: make(map[uuid.UUID]*models.WorkflowInstance)}
}

func (r *fakeInstanceRepo) Create(ctx context.Context, instance *models.WorkflowInstance, record *models.StepAuditRecord) error {
	if instance.ID == uuid.Nil {
		instance.ID = uuid.New()
	}
	for i := range instance.Steps {
		if instance.Steps[i].ID == uuid.Nil {
			instance.Steps[i].ID = uuid.New()
		}
		instance.Steps[i].InstanceID = instance.ID
	}
	r.instances[instance.ID] = instance
	record.InstanceID = instance.ID
	r.audits = append(r.audits, *record)
	return nil
}

func (r *fakeInstanceRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.WorkflowInstance, error) {
	instance, ok := r.instances[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return instance, nil
}

func (r *fakeInstanceRepo) FindByTicketAndDevice(ctx context.Context, ticketID uuid.UUID, deviceSerial string) (*models.WorkflowInstance, error) {
	for _, instance := range r.instances {
		if instance.TicketID == ticketID && instance.DeviceSerialNumber == deviceSerial {
			return instance, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeInstanceRepo) ListByTicket(ctx context.Context, ticketID uuid.UUID) ([]models.WorkflowInstance, error) {
	var out []models.WorkflowInstance
	for _, instance := range r.instances {
		if instance.TicketID == ticketID {
			out = append(out, *instance)
		}
	}
	return out, nil
}

func (r *fakeInstanceRepo) List(ctx context.Context, filter *models.InstanceFilter) ([]models.WorkflowInstance, int64, error) {
	var out []models.WorkflowInstance
	for _, instance := range r.instances {
		out = append(out, *instance)
	}
	return out, int64(len(out)), nil
}

func (r *fakeInstanceRepo) CommitTransition(ctx context.Context, instance *models.WorkflowInstance, step *models.StepState, records []models.StepAuditRecord) error {
	r.instances[instance.ID] = instance
	r.audits = append(r.audits, records...)
	r.commits++
	return nil
}

func (r *fakeInstanceRepo) UpdateStatus(ctx context.Context, instance *models.WorkflowInstance, record *models.StepAuditRecord) error {
	r.instances[instance.ID] = instance
	r.audits = append(r.audits, *record)
	r.commits++
	return nil
}

func (r *fakeInstanceRepo) ListAuditRecords(ctx context.Context, instanceID uuid.UUID) ([]models.StepAuditRecord, error) {
	var out []models.StepAuditRecord
	for _, record := range r.audits {
		if record.InstanceID == instanceID {
			out = append(out, record)
		}
	}
	return out, nil
}

func (r *fakeInstanceRepo) GenerateWorkflowNumber(ctx context.Context) (string, error) {
	r.nextSeq++
	return uuid.NewString()[:8], nil
}

var _ repository.WorkflowInstanceRepository = (*fakeInstanceRepo)(nil)

type fakeAgentRepo struct {
	agents map[uuid.UUID]*models.Agent
}

func newFakeAgentRepo(agents ...*models.Agent) *fakeAgentRepo {
	repo := &fakeAgentRepo{agents: make(map[uuid.UUID]*models.Agent)}
	for _, agent := range agents {
		repo.agents[agent.ID] = agent
	}
	return repo
}

func (r *fakeAgentRepo) Create(ctx context.Context, agent *models.Agent) error {
	r.agents[agent.ID] = agent
	return nil
}

func (r *fakeAgentRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Agent, error) {
	agent, ok := r.agents[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return agent, nil
}

func (r *fakeAgentRepo) FindByEmail(ctx context.Context, email string) (*models.Agent, error) {
	for _, agent := range r.agents {
		if agent.Email == email {
			return agent, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeAgentRepo) FindByUsername(ctx context.Context, username string) (*models.Agent, error) {
	for _, agent := range r.agents {
		if agent.Username == username {
			return agent, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeAgentRepo) List(ctx context.Context, page, limit int) ([]models.Agent, int64, error) {
	return nil, 0, nil
}

func (r *fakeAgentRepo) Update(ctx context.Context, agent *models.Agent) error { return nil }

func (r *fakeAgentRepo) UpdateLastLogin(ctx context.Context, id uuid.UUID) error { return nil }

func (r *fakeAgentRepo) Delete(ctx context.Context, id uuid.UUID) error { return nil }

var _ repository.AgentRepository = (*fakeAgentRepo)(nil)

type recordingPublisher struct {
	events []*models.WorkflowChangeEvent
}

func (p *recordingPublisher) PublishChange(ctx context.Context, event *models.WorkflowChangeEvent) {
	p.events = append(p.events, event)
}

// validStepData returns a submission that completes the given step.
func validStepData(stepNumber int) map[string]interface{} {
	switch stepNumber {
	case catalog.StepReception:
		return map[string]interface{}{
			"received_date":    "2026-02-01",
			"device_condition": "good",
			"intake_checklist": []interface{}{"serial verified", "warranty checked", "customer informed"},
		}
	case catalog.StepLoanerShipment:
		return map[string]interface{}{
			"loaner_serial_number": "LN-1001",
			"shipped_date":         "2026-02-02",
		}
	case catalog.StepDiagnosis:
		return map[string]interface{}{
			"reported_fault":   "device does not power on",
			"diagnosis_result": "defective power board",
		}
	case catalog.StepCostEstimate:
		return map[string]interface{}{
			"labor_cost":        150.0,
			"parts_cost":        75.0,
			"customer_decision": "approved",
		}
	case catalog.StepPartsOrder:
		return map[string]interface{}{
			"parts": []interface{}{map[string]interface{}{
				"part_number": "PB-220",
				"description": "power board",
				"quantity":    1.0,
				"unit_price":  75.0,
			}},
		}
	case catalog.StepRepair:
		return map[string]interface{}{
			"work_performed":        "replaced power board",
			"technical_report":      "board swap, firmware reflashed",
			"repair_completed_date": "2026-02-05",
		}
	case catalog.StepApproval:
		return map[string]interface{}{
			"test_checklist":  []interface{}{"power-on test", "functional test"},
			"approval_result": "approved",
		}
	case catalog.StepLoanerReturn:
		return map[string]interface{}{
			"returned_date":    "2026-02-06",
			"loaner_condition": "good",
		}
	case catalog.StepReturnShipment:
		return map[string]interface{}{
			"shipped_date":    "2026-02-07",
			"carrier":         "dhl",
			"tracking_number": "DHL-778899",
		}
	case catalog.StepClosure:
		return map[string]interface{}{
			"closed_date":       "2026-02-08",
			"customer_notified": true,
		}
	}
	return nil
}

type workflowFixture struct {
	svc       WorkflowService
	repo      *fakeInstanceRepo
	publisher *recordingPublisher
	tech      *models.Agent
	quality   *models.Agent
}

func newWorkflowFixture(t *testing.T) *workflowFixture {
	t.Helper()
	tech := &models.Agent{ID: uuid.New(), Username: "tech1", FirstName: "Toni", Role: models.RoleTechnician, IsActive: true}
	quality := &models.Agent{ID: uuid.New(), Username: "qa1", FirstName: "Quinn", Role: models.RoleQuality, IsActive: true}
	repo := newFakeInstanceRepo()
	publisher := &recordingPublisher{}
	svc := NewWorkflowService(repo, newFakeAgentRepo(tech, quality), publisher, NewInstanceLocks())
	return &workflowFixture{svc: svc, repo: repo, publisher: publisher, tech: tech, quality: quality}
}

func (f *workflowFixture) createInstance(t *testing.T) *models.WorkflowInstanceResponse {
	t.Helper()
	resp, created, err := f.svc.CreateOrGetInstance(context.Background(), &models.WorkflowCreateRequest{
		TicketID:           uuid.NewString(),
		DeviceSerialNumber: "SN-0001",
	}, f.tech.ID)
	require.NoError(t, err)
	require.True(t, created)
	return resp
}

func (f *workflowFixture) completeStep(t *testing.T, instanceID uuid.UUID, stepNumber int, agentID uuid.UUID) *models.WorkflowInstanceResponse {
	t.Helper()
	resp, err := f.svc.SaveStep(context.Background(), instanceID, stepNumber, &models.SaveStepRequest{
		Data:          validStepData(stepNumber),
		MarkCompleted: true,
	}, agentID)
	require.NoError(t, err)
	return resp
}

func TestCreateOrGetInstance_New(t *testing.T) {
	f := newWorkflowFixture(t)

	resp := f.createInstance(t)

	assert.Equal(t, 1, resp.CurrentStep)
	assert.Equal(t, models.InstanceInProgress, resp.Status)
	require.Len(t, resp.Steps, catalog.StepCount())
	for _, step := range resp.Steps {
		assert.Equal(t, models.StepNotStarted, step.Status)
		assert.NotEmpty(t, step.Name)
	}
	require.Len(t, f.repo.audits, 1)
	assert.Equal(t, models.AuditInstanceCreated, f.repo.audits[0].Action)
	assert.Len(t, f.publisher.events, 1)
}

func TestCreateOrGetInstance_Idempotent(t *testing.T) {
	f := newWorkflowFixture(t)
	req := &models.WorkflowCreateRequest{TicketID: uuid.NewString(), DeviceSerialNumber: "SN-7"}

	first, created, err := f.svc.CreateOrGetInstance(context.Background(), req, f.tech.ID)
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := f.svc.CreateOrGetInstance(context.Background(), req, f.quality.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, f.repo.instances, 1)
}

func TestCreateOrGetInstance_BadTicketID(t *testing.T) {
	f := newWorkflowFixture(t)

	_, _, err := f.svc.CreateOrGetInstance(context.Background(), &models.WorkflowCreateRequest{
		TicketID:           "not-a-uuid",
		DeviceSerialNumber: "SN-1",
	}, f.tech.ID)
	require.Error(t, err)
	assert.True(t, models.IsWorkflowError(err, models.ErrCodeValidation))
}

func TestSaveStep_CompleteAdvancesPointer(t *testing.T) {
	f := newWorkflowFixture(t)
	instance := f.createInstance(t)

	resp := f.completeStep(t, instance.ID, catalog.StepReception, f.tech.ID)

	assert.Equal(t, models.StepCompleted, resp.Steps[0].Status)
	assert.NotNil(t, resp.Steps[0].CompletedAt)
	assert.Equal(t, "Toni", resp.Steps[0].AgentName)
	assert.Equal(t, 2, resp.CurrentStep)

	last := f.repo.audits[len(f.repo.audits)-1]
	assert.Equal(t, models.AuditStepCompleted, last.Action)
	assert.Equal(t, models.StepNotStarted, last.FromStatus)
	assert.Equal(t, models.StepCompleted, last.ToStatus)
}

func TestSaveStep_DraftKeepsPointer(t *testing.T) {
	f := newWorkflowFixture(t)
	instance := f.createInstance(t)

	resp, err := f.svc.SaveStep(context.Background(), instance.ID, catalog.StepReception, &models.SaveStepRequest{
		Data: map[string]interface{}{"received_date": "2026-02-01"},
	}, f.tech.ID)
	require.NoError(t, err)

	assert.Equal(t, models.StepInProgress, resp.Steps[0].Status)
	assert.Equal(t, 1, resp.CurrentStep)
	assert.Equal(t, "2026-02-01", resp.Steps[0].Data["received_date"])

	last := f.repo.audits[len(f.repo.audits)-1]
	assert.Equal(t, models.AuditStepSaved, last.Action)
}

func TestSaveStep_DraftsMerge(t *testing.T) {
	f := newWorkflowFixture(t)
	instance := f.createInstance(t)

	_, err := f.svc.SaveStep(context.Background(), instance.ID, catalog.StepDiagnosis, &models.SaveStepRequest{
		Data: map[string]interface{}{"reported_fault": "no power"},
	}, f.tech.ID)
	require.NoError(t, err)

	resp, err := f.svc.SaveStep(context.Background(), instance.ID, catalog.StepDiagnosis, &models.SaveStepRequest{
		Data: map[string]interface{}{"diagnosis_result": "psu dead"},
	}, f.tech.ID)
	require.NoError(t, err)

	step := resp.Steps[catalog.StepDiagnosis-1]
	assert.Equal(t, "no power", step.Data["reported_fault"])
	assert.Equal(t, "psu dead", step.Data["diagnosis_result"])
}

func TestSaveStep_CompleteRejectsInvalidData(t *testing.T) {
	f := newWorkflowFixture(t)
	instance := f.createInstance(t)
	commitsBefore := f.repo.commits

	_, err := f.svc.SaveStep(context.Background(), instance.ID, catalog.StepReception, &models.SaveStepRequest{
		Data:          map[string]interface{}{"received_date": "2026-02-01"},
		MarkCompleted: true,
	}, f.tech.ID)
	require.Error(t, err)
	assert.True(t, models.IsWorkflowError(err, models.ErrCodeValidation))

	we := err.(*models.WorkflowError)
	assert.Contains(t, we.Fields, "device_condition")
	assert.Contains(t, we.Fields, "intake_checklist")
	assert.Equal(t, commitsBefore, f.repo.commits)
}

func TestSaveStep_EditCompletedStepStaysCompleted(t *testing.T) {
	f := newWorkflowFixture(t)
	instance := f.createInstance(t)
	f.completeStep(t, instance.ID, catalog.StepReception, f.tech.ID)

	resp, err := f.svc.SaveStep(context.Background(), instance.ID, catalog.StepReception, &models.SaveStepRequest{
		Data: map[string]interface{}{"accessories_included": true, "accessories_list": "charger"},
	}, f.tech.ID)
	require.NoError(t, err)

	step := resp.Steps[0]
	assert.Equal(t, models.StepCompleted, step.Status)
	assert.NotNil(t, step.CompletedAt)
	assert.Equal(t, true, step.Data["accessories_included"])
	assert.Equal(t, 2, resp.CurrentStep)
}

func TestSaveStep_SkippedStepRejected(t *testing.T) {
	f := newWorkflowFixture(t)
	instance := f.createInstance(t)
	_, err := f.svc.SkipStep(context.Background(), instance.ID, catalog.StepLoanerShipment, f.tech.ID)
	require.NoError(t, err)

	_, err = f.svc.SaveStep(context.Background(), instance.ID, catalog.StepLoanerShipment, &models.SaveStepRequest{
		Data: map[string]interface{}{"loaner_serial_number": "LN-1"},
	}, f.tech.ID)
	require.Error(t, err)
	assert.True(t, models.IsWorkflowError(err, models.ErrCodeIllegalTransition))
}

func TestSaveStep_OutOfOrderIsAllowed(t *testing.T) {
	f := newWorkflowFixture(t)
	instance := f.createInstance(t)

	// Steps may be worked in any order; the pointer tracks the lowest open one.
	resp := f.completeStep(t, instance.ID, catalog.StepDiagnosis, f.tech.ID)
	assert.Equal(t, 1, resp.CurrentStep)

	resp = f.completeStep(t, instance.ID, catalog.StepReception, f.tech.ID)
	assert.Equal(t, 2, resp.CurrentStep)
}

func TestSkipStep_MandatoryRejected(t *testing.T) {
	f := newWorkflowFixture(t)
	instance := f.createInstance(t)

	_, err := f.svc.SkipStep(context.Background(), instance.ID, catalog.StepRepair, f.tech.ID)
	require.Error(t, err)
	assert.True(t, models.IsWorkflowError(err, models.ErrCodeIllegalTransition))
}

func TestSkipStep_Optional(t *testing.T) {
	f := newWorkflowFixture(t)
	instance := f.createInstance(t)
	f.completeStep(t, instance.ID, catalog.StepReception, f.tech.ID)

	resp, err := f.svc.SkipStep(context.Background(), instance.ID, catalog.StepLoanerShipment, f.tech.ID)
	require.NoError(t, err)

	assert.Equal(t, models.StepSkipped, resp.Steps[1].Status)
	assert.Equal(t, 3, resp.CurrentStep)

	// A skipped step cannot be skipped again.
	_, err = f.svc.SkipStep(context.Background(), instance.ID, catalog.StepLoanerShipment, f.tech.ID)
	require.Error(t, err)
	assert.True(t, models.IsWorkflowError(err, models.ErrCodeIllegalTransition))
}

func TestSkipStep_CompletedRejected(t *testing.T) {
	f := newWorkflowFixture(t)
	instance := f.createInstance(t)
	f.completeStep(t, instance.ID, catalog.StepLoanerShipment, f.tech.ID)

	_, err := f.svc.SkipStep(context.Background(), instance.ID, catalog.StepLoanerShipment, f.tech.ID)
	require.Error(t, err)
	assert.True(t, models.IsWorkflowError(err, models.ErrCodeIllegalTransition))
}

func TestSaveStep_ApprovalRequiresDifferentAgent(t *testing.T) {
	f := newWorkflowFixture(t)
	instance := f.createInstance(t)
	f.completeStep(t, instance.ID, catalog.StepRepair, f.tech.ID)

	_, err := f.svc.SaveStep(context.Background(), instance.ID, catalog.StepApproval, &models.SaveStepRequest{
		Data:          validStepData(catalog.StepApproval),
		MarkCompleted: true,
	}, f.tech.ID)
	require.Error(t, err)
	assert.True(t, models.IsWorkflowError(err, models.ErrCodeIllegalTransition))

	resp := f.completeStep(t, instance.ID, catalog.StepApproval, f.quality.ID)
	assert.Equal(t, models.StepCompleted, resp.Steps[catalog.StepApproval-1].Status)
}

func TestSaveStep_ApprovalDraftByRepairAgentAllowed(t *testing.T) {
	f := newWorkflowFixture(t)
	instance := f.createInstance(t)
	f.completeStep(t, instance.ID, catalog.StepRepair, f.tech.ID)

	// The rule binds completion only, not drafts.
	_, err := f.svc.SaveStep(context.Background(), instance.ID, catalog.StepApproval, &models.SaveStepRequest{
		Data: map[string]interface{}{"approval_result": "approved"},
	}, f.tech.ID)
	require.NoError(t, err)
}

func TestReopenStep_Completed(t *testing.T) {
	f := newWorkflowFixture(t)
	instance := f.createInstance(t)
	f.completeStep(t, instance.ID, catalog.StepReception, f.tech.ID)
	f.completeStep(t, instance.ID, catalog.StepLoanerShipment, f.tech.ID)
	f.completeStep(t, instance.ID, catalog.StepDiagnosis, f.tech.ID)

	// Reopening an earlier step never regresses the pointer.
	resp, err := f.svc.ReopenStep(context.Background(), instance.ID, catalog.StepReception, f.tech.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StepInProgress, resp.Steps[0].Status)
	assert.Nil(t, resp.Steps[0].CompletedAt)
	assert.Equal(t, 4, resp.CurrentStep)
}

func TestReopenStep_SkippedLoanerAllowed(t *testing.T) {
	f := newWorkflowFixture(t)
	instance := f.createInstance(t)
	_, err := f.svc.SkipStep(context.Background(), instance.ID, catalog.StepLoanerShipment, f.tech.ID)
	require.NoError(t, err)

	resp, err := f.svc.ReopenStep(context.Background(), instance.ID, catalog.StepLoanerShipment, f.tech.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StepInProgress, resp.Steps[1].Status)
}

func TestReopenStep_SkippedNonLoanerRejected(t *testing.T) {
	f := newWorkflowFixture(t)
	instance := f.createInstance(t)
	_, err := f.svc.SkipStep(context.Background(), instance.ID, catalog.StepPartsOrder, f.tech.ID)
	require.NoError(t, err)

	_, err = f.svc.ReopenStep(context.Background(), instance.ID, catalog.StepPartsOrder, f.tech.ID)
	require.Error(t, err)
	assert.True(t, models.IsWorkflowError(err, models.ErrCodeIllegalTransition))
}

func TestReopenStep_NotStartedRejected(t *testing.T) {
	f := newWorkflowFixture(t)
	instance := f.createInstance(t)

	_, err := f.svc.ReopenStep(context.Background(), instance.ID, catalog.StepDiagnosis, f.tech.ID)
	require.Error(t, err)
	assert.True(t, models.IsWorkflowError(err, models.ErrCodeIllegalTransition))
}

func TestReopenStep_AheadOfPointerKeepsEarlierStepsOpen(t *testing.T) {
	f := newWorkflowFixture(t)
	instance := f.createInstance(t)

	// Step 3 completed out of order; steps 1 and 2 are untouched.
	resp := f.completeStep(t, instance.ID, catalog.StepDiagnosis, f.tech.ID)
	require.Equal(t, 1, resp.CurrentStep)

	resp, err := f.svc.ReopenStep(context.Background(), instance.ID, catalog.StepDiagnosis, f.tech.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StepInProgress, resp.Steps[catalog.StepDiagnosis-1].Status)
	assert.Equal(t, 1, resp.CurrentStep)
}

func TestReopenStep_AheadOfPointerWithEarlierStepsDone(t *testing.T) {
	f := newWorkflowFixture(t)
	instance := f.createInstance(t)
	f.completeStep(t, instance.ID, catalog.StepReception, f.tech.ID)
	f.completeStep(t, instance.ID, catalog.StepLoanerShipment, f.tech.ID)
	f.completeStep(t, instance.ID, catalog.StepDiagnosis, f.tech.ID)
	resp := f.completeStep(t, instance.ID, catalog.StepRepair, f.tech.ID)
	require.Equal(t, 4, resp.CurrentStep)

	// Reopening step 6 must not move the pointer past the open step 4.
	resp, err := f.svc.ReopenStep(context.Background(), instance.ID, catalog.StepRepair, f.tech.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StepInProgress, resp.Steps[catalog.StepRepair-1].Status)
	assert.Equal(t, 4, resp.CurrentStep)
}

// lowestOpenStep returns the lowest step still to be worked, or 0 when every
// step is completed or skipped.
func lowestOpenStep(resp *models.WorkflowInstanceResponse) int {
	lowest := 0
	for _, step := range resp.Steps {
		if step.Status == models.StepNotStarted || step.Status == models.StepInProgress {
			if lowest == 0 || step.StepNumber < lowest {
				lowest = step.StepNumber
			}
		}
	}
	return lowest
}

// The pointer always equals the lowest open step after any successful
// transition, except that reopening a step below the pointer leaves the
// pointer where it was.
func TestTransitions_PointerTracksLowestOpenStep(t *testing.T) {
	ctx := context.Background()

	for trial := int64(0); trial < 30; trial++ {
		rng := rand.New(rand.NewSource(trial))
		f := newWorkflowFixture(t)
		instance := f.createInstance(t)

		for op := 0; op < 80; op++ {
			step := rng.Intn(catalog.StepCount()) + 1
			agent := f.tech.ID
			if rng.Intn(2) == 0 {
				agent = f.quality.ID
			}
			pointerBefore := f.repo.instances[instance.ID].CurrentStep

			var resp *models.WorkflowInstanceResponse
			var err error
			reopenedBelowPointer := false
			switch rng.Intn(4) {
			case 0:
				resp, err = f.svc.SaveStep(ctx, instance.ID, step, &models.SaveStepRequest{
					Data:          validStepData(step),
					MarkCompleted: true,
				}, agent)
			case 1:
				resp, err = f.svc.SaveStep(ctx, instance.ID, step, &models.SaveStepRequest{
					Data: map[string]interface{}{"notes": "draft"},
				}, agent)
			case 2:
				resp, err = f.svc.SkipStep(ctx, instance.ID, step, agent)
			case 3:
				reopenedBelowPointer = step < pointerBefore
				resp, err = f.svc.ReopenStep(ctx, instance.ID, step, agent)
			}
			if err != nil {
				// Rejected moves are part of the sequence.
				continue
			}

			lowest := lowestOpenStep(resp)
			if lowest == 0 {
				assert.Equalf(t, models.InstanceCompleted, resp.Status, "trial %d op %d", trial, op)
				assert.Equalf(t, catalog.StepCount(), resp.CurrentStep, "trial %d op %d", trial, op)
				continue
			}
			if reopenedBelowPointer {
				assert.Equalf(t, pointerBefore, resp.CurrentStep, "trial %d op %d", trial, op)
				continue
			}
			assert.Equalf(t, lowest, resp.CurrentStep, "trial %d op %d step %d", trial, op, step)
		}
	}
}

func TestFullProcess_CompletesInstance(t *testing.T) {
	f := newWorkflowFixture(t)
	instance := f.createInstance(t)

	var resp *models.WorkflowInstanceResponse
	for step := 1; step <= catalog.StepCount(); step++ {
		agent := f.tech.ID
		if step == catalog.StepApproval {
			agent = f.quality.ID
		}
		resp = f.completeStep(t, instance.ID, step, agent)
	}

	assert.Equal(t, models.InstanceCompleted, resp.Status)
	assert.Equal(t, catalog.StepCount(), resp.CurrentStep)
}

func TestFullProcess_SkippedOptionalStepsStillComplete(t *testing.T) {
	f := newWorkflowFixture(t)
	instance := f.createInstance(t)

	var resp *models.WorkflowInstanceResponse
	var err error
	for step := 1; step <= catalog.StepCount(); step++ {
		def, defErr := catalog.Get(step)
		require.NoError(t, defErr)
		if def.IsOptional {
			resp, err = f.svc.SkipStep(context.Background(), instance.ID, step, f.tech.ID)
			require.NoError(t, err)
			continue
		}
		agent := f.tech.ID
		if step == catalog.StepApproval {
			agent = f.quality.ID
		}
		resp = f.completeStep(t, instance.ID, step, agent)
	}

	assert.Equal(t, models.InstanceCompleted, resp.Status)
	assert.Equal(t, catalog.StepCount(), resp.CurrentStep)
}

func TestReopenStep_CompletedInstanceGoesBackInProgress(t *testing.T) {
	f := newWorkflowFixture(t)
	instance := f.createInstance(t)
	for step := 1; step <= catalog.StepCount(); step++ {
		agent := f.tech.ID
		if step == catalog.StepApproval {
			agent = f.quality.ID
		}
		f.completeStep(t, instance.ID, step, agent)
	}

	resp, err := f.svc.ReopenStep(context.Background(), instance.ID, catalog.StepClosure, f.tech.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceInProgress, resp.Status)
	assert.Equal(t, catalog.StepClosure, resp.CurrentStep)
}

func TestSaveStep_BlockedWhileOnHold(t *testing.T) {
	f := newWorkflowFixture(t)
	instance := f.createInstance(t)
	_, err := f.svc.SetInstanceStatus(context.Background(), instance.ID, models.InstanceOnHold, f.tech.ID)
	require.NoError(t, err)

	_, err = f.svc.SaveStep(context.Background(), instance.ID, catalog.StepReception, &models.SaveStepRequest{
		Data: validStepData(catalog.StepReception),
	}, f.tech.ID)
	require.Error(t, err)
	assert.True(t, models.IsWorkflowError(err, models.ErrCodeIllegalTransition))

	_, err = f.svc.SkipStep(context.Background(), instance.ID, catalog.StepLoanerShipment, f.tech.ID)
	require.Error(t, err)
	assert.True(t, models.IsWorkflowError(err, models.ErrCodeIllegalTransition))
}

func TestSetInstanceStatus_ResumeFromHold(t *testing.T) {
	f := newWorkflowFixture(t)
	instance := f.createInstance(t)
	_, err := f.svc.SetInstanceStatus(context.Background(), instance.ID, models.InstanceOnHold, f.tech.ID)
	require.NoError(t, err)

	resp, err := f.svc.SetInstanceStatus(context.Background(), instance.ID, models.InstanceInProgress, f.tech.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InstanceInProgress, resp.Status)
}

func TestSetInstanceStatus_CancelledIsFinal(t *testing.T) {
	f := newWorkflowFixture(t)
	instance := f.createInstance(t)
	_, err := f.svc.SetInstanceStatus(context.Background(), instance.ID, models.InstanceCancelled, f.tech.ID)
	require.NoError(t, err)

	_, err = f.svc.SetInstanceStatus(context.Background(), instance.ID, models.InstanceInProgress, f.tech.ID)
	require.Error(t, err)
	assert.True(t, models.IsWorkflowError(err, models.ErrCodeIllegalTransition))

	_, err = f.svc.ReopenStep(context.Background(), instance.ID, catalog.StepReception, f.tech.ID)
	require.Error(t, err)
	assert.True(t, models.IsWorkflowError(err, models.ErrCodeIllegalTransition))
}

func TestSetInstanceStatus_CompletedNotSettableDirectly(t *testing.T) {
	f := newWorkflowFixture(t)
	instance := f.createInstance(t)

	_, err := f.svc.SetInstanceStatus(context.Background(), instance.ID, models.InstanceCompleted, f.tech.ID)
	require.Error(t, err)
	assert.True(t, models.IsWorkflowError(err, models.ErrCodeIllegalTransition))
}

func TestListAuditTrail(t *testing.T) {
	f := newWorkflowFixture(t)
	instance := f.createInstance(t)
	f.completeStep(t, instance.ID, catalog.StepReception, f.tech.ID)
	_, err := f.svc.SkipStep(context.Background(), instance.ID, catalog.StepLoanerShipment, f.tech.ID)
	require.NoError(t, err)

	trail, err := f.svc.ListAuditTrail(context.Background(), instance.ID)
	require.NoError(t, err)
	require.Len(t, trail, 3)
	assert.Equal(t, models.AuditInstanceCreated, trail[0].Action)
	assert.Equal(t, models.AuditStepCompleted, trail[1].Action)
	assert.Equal(t, models.AuditStepSkipped, trail[2].Action)
}

func TestPublishAfterCommit(t *testing.T) {
	f := newWorkflowFixture(t)
	instance := f.createInstance(t)
	f.completeStep(t, instance.ID, catalog.StepReception, f.tech.ID)

	require.Len(t, f.publisher.events, 2)
	event := f.publisher.events[1]
	assert.Equal(t, instance.ID, event.InstanceID)
	assert.Equal(t, catalog.StepReception, event.UpdatedStep)
	assert.Equal(t, f.tech.ID, event.UpdatedBy)
	require.NotNil(t, event.Instance)
	assert.Equal(t, 2, event.Instance.CurrentStep)
}

func TestGetInstance_NotFound(t *testing.T) {
	f := newWorkflowFixture(t)

	_, err := f.svc.GetInstance(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, models.IsWorkflowError(err, models.ErrCodeNotFound))
}
