package study

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/radpipe/radpipe/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// studyRepoPG stores studies with document semantics: the append-only
// assignment and status histories live as JSONB alongside the scalar columns
// the query engine filters on. last_assigned_at and current_assignee are
// derived columns written in the same statement as the histories.
type studyRepoPG struct{ pool *pgxpool.Pool }

// NewStudyRepoPG returns the PostgreSQL StudyRepository.
func NewStudyRepoPG(pool *pgxpool.Pool) StudyRepository {
	return &studyRepoPG{pool: pool}
}

func (r *studyRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const studiesTable = "studies"

const studyCols = `id, patient_ref, source_lab_ref, external_study_id, accession_number,
	modalities, study_date, study_time, ingested_at, workflow_status, priority, case_type,
	assignments, current_assignee, last_assigned_at, status_history,
	report_timeline, report_artifacts, version, created_at, updated_at`

func (r *studyRepoPG) scanStudy(row pgx.Row) (*StudyRecord, error) {
	var s StudyRecord
	var modalities, assignments, history, timeline, artifacts []byte
	var lastAssignedAt *time.Time
	err := row.Scan(&s.ID, &s.PatientRef, &s.SourceLabRef, &s.ExternalStudyID, &s.AccessionNumber,
		&modalities, &s.StudyDate, &s.StudyTime, &s.IngestedAt, &s.WorkflowStatus, &s.Priority, &s.CaseType,
		&assignments, &s.CurrentAssignee, &lastAssignedAt, &history,
		&timeline, &artifacts, &s.Version, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan study: %w", err)
	}
	for _, col := range []struct {
		raw []byte
		dst interface{}
	}{
		{modalities, &s.Modalities},
		{assignments, &s.Assignments},
		{history, &s.StatusHistory},
		{timeline, &s.ReportTimeline},
		{artifacts, &s.ReportArtifacts},
	} {
		if len(col.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(col.raw, col.dst); err != nil {
			return nil, fmt.Errorf("decode study document: %w", err)
		}
	}
	return &s, nil
}

func marshalDoc(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode study document: %w", err)
	}
	return data, nil
}

func (r *studyRepoPG) Create(ctx context.Context, s *StudyRecord) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.Version = 1

	modalities, err := marshalDoc(s.Modalities)
	if err != nil {
		return err
	}
	assignments, err := marshalDoc(s.Assignments)
	if err != nil {
		return err
	}
	history, err := marshalDoc(s.StatusHistory)
	if err != nil {
		return err
	}
	timeline, err := marshalDoc(s.ReportTimeline)
	if err != nil {
		return err
	}
	artifacts, err := marshalDoc(s.ReportArtifacts)
	if err != nil {
		return err
	}

	_, err = r.conn(ctx).Exec(ctx, `INSERT INTO `+studiesTable+` (id, patient_ref, source_lab_ref, external_study_id, accession_number,
			modalities, study_date, study_time, ingested_at, workflow_status, priority, case_type,
			assignments, current_assignee, last_assigned_at, status_history,
			report_timeline, report_artifacts, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		s.ID, s.PatientRef, s.SourceLabRef, s.ExternalStudyID, s.AccessionNumber,
		modalities, s.StudyDate, s.StudyTime, s.IngestedAt, s.WorkflowStatus, s.Priority, s.CaseType,
		assignments, s.CurrentAssignee, s.LastAssignedAt(), history,
		timeline, artifacts, s.Version)
	if err != nil {
		return fmt.Errorf("insert study: %w", err)
	}
	return nil
}

func (r *studyRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*StudyRecord, error) {
	return r.scanStudy(r.conn(ctx).QueryRow(ctx, `SELECT `+studyCols+` FROM `+studiesTable+` WHERE id = $1`, id))
}

// UpdateVersioned applies the record only when the stored version still
// matches, incrementing it in the same statement. Zero rows affected means a
// concurrent writer won the race.
func (r *studyRepoPG) UpdateVersioned(ctx context.Context, s *StudyRecord) error {
	assignments, err := marshalDoc(s.Assignments)
	if err != nil {
		return err
	}
	history, err := marshalDoc(s.StatusHistory)
	if err != nil {
		return err
	}
	timeline, err := marshalDoc(s.ReportTimeline)
	if err != nil {
		return err
	}
	artifacts, err := marshalDoc(s.ReportArtifacts)
	if err != nil {
		return err
	}

	tag, err := r.conn(ctx).Exec(ctx, `UPDATE `+studiesTable+` SET workflow_status=$3, priority=$4,
			assignments=$5, current_assignee=$6, last_assigned_at=$7,
			status_history=$8, report_timeline=$9, report_artifacts=$10,
			version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $2`,
		s.ID, s.Version, s.WorkflowStatus, s.Priority,
		assignments, s.CurrentAssignee, s.LastAssignedAt(),
		history, timeline, artifacts)
	if err != nil {
		return fmt.Errorf("update study: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	s.Version++
	return nil
}

func (r *studyRepoPG) FindPage(ctx context.Context, f Filter, limit, offset int) ([]*StudyRecord, int, error) {
	where := filterConds(f)

	countSQL, countArgs, err := psql.Select("COUNT(*)").From(studiesTable).Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count query: %w", err)
	}
	var total int
	if err := r.conn(ctx).QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count studies: %w", err)
	}

	dataSQL, dataArgs, err := psql.Select(studyCols).From(studiesTable).Where(where).
		OrderBy("last_assigned_at DESC NULLS LAST", "ingested_at DESC").
		Limit(uint64(limit)).Offset(uint64(offset)).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build data query: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, dataSQL, dataArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("query studies: %w", err)
	}
	defer rows.Close()

	var items []*StudyRecord
	for rows.Next() {
		s, err := r.scanStudy(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}

func (r *studyRepoPG) CountByStatus(ctx context.Context, f Filter) (map[WorkflowStatus]int, error) {
	where := filterConds(f.WithoutStatuses())
	sqlStr, args, err := psql.Select("workflow_status", "COUNT(*)").From(studiesTable).
		Where(where).GroupBy("workflow_status").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build status count query: %w", err)
	}

	rows, err := r.conn(ctx).Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("count studies by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[WorkflowStatus]int)
	for rows.Next() {
		var status WorkflowStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// filterConds translates the repository filter into squirrel conditions.
func filterConds(f Filter) sq.And {
	conds := sq.And{}
	if f.OwnerDoctor != nil {
		conds = append(conds, sq.Eq{"current_assignee": *f.OwnerDoctor})
	}
	if f.OwnerLab != "" {
		conds = append(conds, sq.Eq{"source_lab_ref": f.OwnerLab})
	}
	if len(f.Statuses) > 0 {
		conds = append(conds, sq.Eq{"workflow_status": f.Statuses})
	}
	if f.Window.Start != nil || f.Window.End != nil {
		col := dateFieldColumn(f.DateField)
		if f.Window.Start != nil {
			conds = append(conds, sq.GtOrEq{col: *f.Window.Start})
		}
		if f.Window.End != nil {
			if f.Window.IncludeEnd {
				conds = append(conds, sq.LtOrEq{col: *f.Window.End})
			} else {
				conds = append(conds, sq.Lt{col: *f.Window.End})
			}
		}
	}
	if f.FreeText != "" {
		needle := "%" + f.FreeText + "%"
		conds = append(conds, sq.Or{
			sq.ILike{"accession_number": needle},
			sq.ILike{"external_study_id": needle},
		})
	}
	if f.Modality != "" {
		doc, _ := json.Marshal([]string{f.Modality})
		conds = append(conds, sq.Expr("modalities @> ?", string(doc)))
	}
	if f.Priority != "" {
		conds = append(conds, sq.Eq{"priority": f.Priority})
	}
	if f.Patient != "" {
		conds = append(conds, sq.ILike{"patient_ref": "%" + f.Patient + "%"})
	}
	if len(conds) == 0 {
		conds = append(conds, sq.Expr("TRUE"))
	}
	return conds
}

func dateFieldColumn(field DateField) string {
	switch field {
	case DateFieldStudyDate:
		return "study_date"
	case DateFieldAssignedAt:
		return "last_assigned_at"
	default:
		return "ingested_at"
	}
}
