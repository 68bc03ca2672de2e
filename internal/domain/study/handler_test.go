package study

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/radpipe/radpipe/internal/domain/tat"
	"github.com/radpipe/radpipe/internal/domain/timewindow"
	"github.com/radpipe/radpipe/internal/platform/auth"
	"github.com/radpipe/radpipe/internal/platform/blobstore"
)

// dirStub is an ActorDirectory accepting everything until narrowed to an
// explicit known set.
type dirStub struct {
	known    map[uuid.UUID]bool
	allowAll bool
}

func (d *dirStub) Resolve(_ context.Context, id uuid.UUID) (*auth.Identity, error) {
	if d.allowAll || d.known[id] {
		return &auth.Identity{ID: id, Name: "stub", Roles: []string{auth.RolePhysician}}, nil
	}
	return nil, auth.ErrUnknownIdentity
}

type handlerFixture struct {
	e     *echo.Echo
	repo  *InMemoryStudyRepo
	blobs blobstore.BlobStore
	dir   *dirStub
	actor uuid.UUID
}

func newHandlerFixture(t *testing.T, roles ...string) *handlerFixture {
	t.Helper()
	if len(roles) == 0 {
		roles = []string{auth.RoleAdmin}
	}
	repo := NewInMemoryStudyRepo()
	blobs := blobstore.NewBounded(blobstore.NewInMemoryBlobStore(), time.Second)
	dir := &dirStub{known: map[uuid.UUID]bool{}, allowAll: true}
	actor := uuid.New()

	h := NewHandler(
		NewIngestor(repo, nil),
		NewAssignmentEngine(repo),
		NewReportLifecycle(repo, blobs),
		NewQueryEngine(repo, tat.NewCalculator(tat.SLAConfig{}), timewindow.DefaultZone(), zerolog.Nop()),
		repo,
		dir,
	)

	e := echo.New()
	api := e.Group("", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := auth.WithActor(c.Request().Context(), auth.Actor{ID: actor, Name: "test", Roles: roles})
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})
	h.RegisterRoutes(api)
	return &handlerFixture{e: e, repo: repo, blobs: blobs, dir: dir, actor: actor}
}

func (f *handlerFixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func TestHandler_IngestAndGet(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(http.MethodPost, "/studies", `{"external_study_id":"EXT-1","patient_ref":"p1","priority":"URGENT"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	var created StudyRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.WorkflowStatus != StatusNewStudyReceived || created.Priority != PriorityUrgent {
		t.Errorf("created = %s/%s", created.WorkflowStatus, created.Priority)
	}

	rec = f.do(http.MethodGet, "/studies/"+created.ID.String(), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	rec = f.do(http.MethodGet, "/studies/"+uuid.NewString(), "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing study status = %d", rec.Code)
	}
	rec = f.do(http.MethodGet, "/studies/not-a-uuid", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d", rec.Code)
	}

	rec = f.do(http.MethodPost, "/studies", `{"patient_ref":"p2"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("ingest without external id status = %d", rec.Code)
	}
	var errBody map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &errBody); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if errBody["code"] != ErrorCode(ErrMissingExternalID) {
		t.Errorf("code = %q", errBody["code"])
	}
}

func TestHandler_AssignConflicts(t *testing.T) {
	f := newHandlerFixture(t)
	s := seedTestStudy(t, f.repo, StatusNewStudyReceived)
	doctor := uuid.New()

	rec := f.do(http.MethodPost, "/studies/"+s.ID.String()+"/assign", `{"doctor_id":"`+doctor.String()+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("assign status = %d, body = %s", rec.Code, rec.Body)
	}

	// Assigning the same doctor again is a conflict with a stable code.
	rec = f.do(http.MethodPost, "/studies/"+s.ID.String()+"/assign", `{"doctor_id":"`+doctor.String()+`"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate assign status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["code"] != ErrorCode(ErrAlreadyAssigned) {
		t.Errorf("code = %q", body["code"])
	}

	rec = f.do(http.MethodPost, "/studies/"+s.ID.String()+"/assign", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing doctor_id status = %d", rec.Code)
	}
}

func TestHandler_AssignUnknownDoctorRejected(t *testing.T) {
	f := newHandlerFixture(t)
	s := seedTestStudy(t, f.repo, StatusNewStudyReceived)

	known := uuid.New()
	f.dir.allowAll = false
	f.dir.known[known] = true

	rec := f.do(http.MethodPost, "/studies/"+s.ID.String()+"/assign", `{"doctor_id":"`+uuid.NewString()+`"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown doctor status = %d, body = %s", rec.Code, rec.Body)
	}

	rec = f.do(http.MethodPost, "/studies/"+s.ID.String()+"/assign", `{"doctor_id":"`+known.String()+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("known doctor status = %d, body = %s", rec.Code, rec.Body)
	}
}

func TestHandler_ArchiveThenAssignRejected(t *testing.T) {
	f := newHandlerFixture(t)
	s := seedTestStudy(t, f.repo, StatusNewStudyReceived)

	rec := f.do(http.MethodPost, "/studies/"+s.ID.String()+"/archive", `{"note":"duplicate upload"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("archive status = %d, body = %s", rec.Code, rec.Body)
	}

	rec = f.do(http.MethodPost, "/studies/"+s.ID.String()+"/assign", `{"doctor_id":"`+uuid.NewString()+`"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("assign after archive status = %d", rec.Code)
	}
}

func TestHandler_ReportFlow(t *testing.T) {
	f := newHandlerFixture(t, auth.RoleAdmin)
	s := seedTestStudy(t, f.repo, StatusNewStudyReceived)

	// Assign the acting user so the report routes accept it as the assignee.
	rec := f.do(http.MethodPost, "/studies/"+s.ID.String()+"/assign", `{"doctor_id":"`+f.actor.String()+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("assign: %d %s", rec.Code, rec.Body)
	}

	rec = f.do(http.MethodPost, "/studies/"+s.ID.String()+"/report/start", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("start: %d %s", rec.Code, rec.Body)
	}

	rec = f.do(http.MethodPost, "/studies/"+s.ID.String()+"/report", `{"findings":"unremarkable"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("submit: %d %s", rec.Code, rec.Body)
	}
	var submitted StudyRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &submitted); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if submitted.WorkflowStatus != StatusReportFinalized {
		t.Errorf("status after submit = %s", submitted.WorkflowStatus)
	}
	if len(submitted.ReportArtifacts) != 1 {
		t.Errorf("artifacts = %d", len(submitted.ReportArtifacts))
	}

	// Empty report bodies never reach the lifecycle.
	rec = f.do(http.MethodPost, "/studies/"+s.ID.String()+"/report", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty submit status = %d", rec.Code)
	}

	rec = f.do(http.MethodPost, "/studies/"+s.ID.String()+"/report/uploaded", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("uploaded: %d %s", rec.Code, rec.Body)
	}
	rec = f.do(http.MethodPost, "/studies/"+s.ID.String()+"/report/downloaded", `{"to":"report_downloaded"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("downloaded: %d %s", rec.Code, rec.Body)
	}
	rec = f.do(http.MethodPost, "/studies/"+s.ID.String()+"/report/downloaded", `{"to":"bogus"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bogus target status = %d", rec.Code)
	}
}

func TestHandler_QueryStudies(t *testing.T) {
	f := newHandlerFixture(t)
	seedTestStudy(t, f.repo, StatusNewStudyReceived)
	seedTestStudy(t, f.repo, StatusNewStudyReceived)

	rec := f.do(http.MethodGet, "/studies?category=pending", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("query: %d %s", rec.Code, rec.Body)
	}
	var res QueryResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Total != 2 || res.CategoryCounts.Pending != 2 {
		t.Errorf("total = %d, pending = %d", res.Total, res.CategoryCounts.Pending)
	}

	rec = f.do(http.MethodGet, "/studies?status=bogus", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bogus status filter = %d", rec.Code)
	}
	rec = f.do(http.MethodGet, "/studies?doctor=not-a-uuid", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad doctor filter = %d", rec.Code)
	}
}

func TestHandler_RoleEnforcement(t *testing.T) {
	f := newHandlerFixture(t, auth.RolePhysician)
	s := seedTestStudy(t, f.repo, StatusNewStudyReceived)

	// Physicians may read but not ingest or assign.
	rec := f.do(http.MethodGet, "/studies", "")
	if rec.Code != http.StatusOK {
		t.Errorf("read as physician = %d", rec.Code)
	}
	rec = f.do(http.MethodPost, "/studies", `{"external_study_id":"EXT-9"}`)
	if rec.Code != http.StatusForbidden {
		t.Errorf("ingest as physician = %d", rec.Code)
	}
	rec = f.do(http.MethodPost, "/studies/"+s.ID.String()+"/assign", `{"doctor_id":"`+uuid.NewString()+`"}`)
	if rec.Code != http.StatusForbidden {
		t.Errorf("assign as physician = %d", rec.Code)
	}
}
