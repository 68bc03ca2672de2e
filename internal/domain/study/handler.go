package study

import (
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/radpipe/radpipe/internal/domain/timewindow"
	"github.com/radpipe/radpipe/internal/platform/auth"
	"github.com/radpipe/radpipe/pkg/pagination"
)

type Handler struct {
	ingestor *Ingestor
	assigner *AssignmentEngine
	reports  *ReportLifecycle
	queries  *QueryEngine
	studies  StudyRepository
	doctors  auth.ActorDirectory
}

// NewHandler wires the study HTTP surface. doctors validates assignment
// targets; nil skips the check.
func NewHandler(ingestor *Ingestor, assigner *AssignmentEngine, reports *ReportLifecycle, queries *QueryEngine, studies StudyRepository, doctors auth.ActorDirectory) *Handler {
	return &Handler{
		ingestor: ingestor,
		assigner: assigner,
		reports:  reports,
		queries:  queries,
		studies:  studies,
		doctors:  doctors,
	}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleLabStaff, auth.RolePhysician))
	read.GET("/studies", h.QueryStudies)
	read.GET("/studies/:id", h.GetStudy)

	lab := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RoleLabStaff))
	lab.POST("/studies", h.IngestStudy)
	lab.POST("/studies/:id/assign", h.AssignStudy)
	lab.POST("/studies/:id/archive", h.ArchiveStudy)
	lab.POST("/studies/:id/report/uploaded", h.MarkUploaded)
	lab.POST("/studies/:id/report/downloaded", h.MarkDownloaded)

	phys := api.Group("", auth.RequireRole(auth.RoleAdmin, auth.RolePhysician))
	phys.POST("/studies/:id/report/start", h.StartReport)
	phys.POST("/studies/:id/report", h.SubmitReport)
	phys.POST("/studies/:id/report/artifacts", h.AttachArtifact)
}

// respondErr maps a core error to an HTTP status and a stable code body.
func respondErr(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrUnknownStatus),
		errors.Is(err, ErrUnknownCategory),
		errors.Is(err, ErrMissingExternalID),
		errors.Is(err, ErrNoFilter):
		status = http.StatusBadRequest
	case errors.Is(err, ErrAlreadyAssigned),
		errors.Is(err, ErrNotAssigned),
		errors.Is(err, ErrConcurrentModification):
		status = http.StatusConflict
	case errors.Is(err, ErrStorageTimeout):
		status = http.StatusGatewayTimeout
	}
	return c.JSON(status, map[string]string{
		"code":    ErrorCode(err),
		"message": err.Error(),
	})
}

func actorID(c echo.Context) uuid.UUID {
	if a, ok := auth.ActorFromContext(c.Request().Context()); ok {
		return a.ID
	}
	return uuid.Nil
}

func (h *Handler) IngestStudy(c echo.Context) error {
	var req struct {
		PatientRef      string `json:"patient_ref"`
		SourceLabRef    string `json:"source_lab_ref"`
		ExternalStudyID string `json:"external_study_id"`
		AccessionNumber string `json:"accession_number"`
		Priority        string `json:"priority"`
		CaseType        string `json:"case_type"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	s, err := h.ingestor.Ingest(c.Request().Context(), IngestRequest{
		PatientRef:      req.PatientRef,
		SourceLabRef:    req.SourceLabRef,
		ExternalStudyID: req.ExternalStudyID,
		AccessionNumber: req.AccessionNumber,
		Priority:        Priority(req.Priority),
		CaseType:        req.CaseType,
	}, actorID(c))
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusCreated, s)
}

func (h *Handler) GetStudy(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	s, err := h.studies.GetByID(c.Request().Context(), id)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) AssignStudy(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body struct {
		DoctorID uuid.UUID `json:"doctor_id"`
		Priority string    `json:"priority"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if body.DoctorID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "doctor_id is required")
	}
	if h.doctors != nil {
		if _, err := h.doctors.Resolve(c.Request().Context(), body.DoctorID); err != nil {
			if errors.Is(err, auth.ErrUnknownIdentity) {
				return echo.NewHTTPError(http.StatusBadRequest, "unknown doctor")
			}
			return respondErr(c, err)
		}
	}
	s, err := h.assigner.Assign(c.Request().Context(), id, body.DoctorID, Priority(body.Priority), actorID(c))
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) ArchiveStudy(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body struct {
		Note string `json:"note"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	s, err := h.assigner.Archive(c.Request().Context(), id, actorID(c), body.Note)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) StartReport(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	actor := actorID(c)
	s, err := h.reports.StartReport(c.Request().Context(), id, actor, actor)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) SubmitReport(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	content, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "failed to read report body")
	}
	if len(content) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "report body is empty")
	}
	actor := actorID(c)
	contentType := c.Request().Header.Get("Content-Type")
	s, err := h.reports.SubmitReport(c.Request().Context(), id, actor, content, contentType, actor)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) AttachArtifact(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var ref ArtifactRef
	if err := c.Bind(&ref); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if ref.BlobID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "blob_id is required")
	}
	s, err := h.reports.AttachArtifact(c.Request().Context(), id, ref, actorID(c))
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) MarkUploaded(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	s, err := h.reports.MarkUploaded(c.Request().Context(), id, actorID(c))
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) MarkDownloaded(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body struct {
		To string `json:"to"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	to, err := ParseWorkflowStatus(body.To)
	if err != nil {
		return respondErr(c, err)
	}
	s, err := h.reports.MarkDownloaded(c.Request().Context(), id, to, actorID(c))
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) QueryStudies(c echo.Context) error {
	pg := pagination.FromContext(c)
	q := Query{
		OwnerLab:   c.QueryParam("lab"),
		DateField:  DateField(c.QueryParam("date_field")),
		DatePreset: timewindow.Preset(c.QueryParam("preset")),
		CustomFrom: c.QueryParam("from"),
		CustomTo:   c.QueryParam("to"),
		FreeText:   c.QueryParam("q"),
		Modality:   c.QueryParam("modality"),
		Priority:   Priority(c.QueryParam("priority")),
		Patient:    c.QueryParam("patient"),
		Limit:      pg.Limit,
		Offset:     pg.Offset,
	}
	if doctor := c.QueryParam("doctor"); doctor != "" {
		did, err := uuid.Parse(doctor)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid doctor")
		}
		q.OwnerDoctor = &did
	}
	if cat := c.QueryParam("category"); cat != "" {
		parsed, err := ParseCategory(cat)
		if err != nil {
			return respondErr(c, err)
		}
		q.Category = parsed
	}
	if st := c.QueryParam("status"); st != "" {
		parsed, err := ParseWorkflowStatus(st)
		if err != nil {
			return respondErr(c, err)
		}
		q.Status = parsed
	}
	res, err := h.queries.Run(c.Request().Context(), q)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(http.StatusOK, res)
}
