package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/nextcentury/backend/core"
	"github.com/nextcentury/backend/core/enrollment"
	"github.com/nextcentury/backend/core/school"
	"github.com/nextcentury/backend/core/user"
)

type lessonRow struct {
	ID            string         `db:"id"`
	Title         string         `db:"title"`
	ContentText   string         `db:"content_text"`
	VideoURL      string         `db:"video_url"`
	SubjectID     string         `db:"subject_id"`
	SubjectName   string         `db:"subject_name"`
	GradeName     string         `db:"grade_name"`
	CreatedBy     sql.NullString `db:"created_by"`
	CreatedByName sql.NullString `db:"created_by_name"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func (r lessonRow) lesson() school.Lesson {
	return school.Lesson{
		ID:            r.ID,
		Title:         r.Title,
		ContentText:   r.ContentText,
		VideoURL:      r.VideoURL,
		SubjectID:     r.SubjectID,
		SubjectName:   r.SubjectName,
		GradeName:     r.GradeName,
		CreatedBy:     r.CreatedBy.String,
		CreatedByName: r.CreatedByName.String,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

type assignmentRow struct {
	ID          string         `db:"id"`
	Title       string         `db:"title"`
	Description string         `db:"description"`
	SubjectID   string         `db:"subject_id"`
	SubjectName string         `db:"subject_name"`
	GradeID     string         `db:"grade_id"`
	DueDate     sql.NullTime   `db:"due_date"`
	CreatedBy   sql.NullString `db:"created_by"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (r assignmentRow) assignment() school.Assignment {
	return school.Assignment{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		SubjectID:   r.SubjectID,
		SubjectName: r.SubjectName,
		GradeID:     r.GradeID,
		DueDate:     r.DueDate.Time,
		CreatedBy:   r.CreatedBy.String,
		CreatedAt:   r.CreatedAt,
	}
}

type resourceRow struct {
	ID          string         `db:"id"`
	Title       string         `db:"title"`
	Description string         `db:"description"`
	FilePath    string         `db:"file_path"`
	UploadedBy  sql.NullString `db:"uploaded_by"`
	UploadedAt  time.Time      `db:"uploaded_at"`
}

func (r resourceRow) resource() school.Resource {
	return school.Resource{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		FilePath:    r.FilePath,
		UploadedBy:  r.UploadedBy.String,
		UploadedAt:  r.UploadedAt,
	}
}

type schoolRepository struct {
	exec core.DBExecutor
}

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(exec core.DBExecutor) *schoolRepository {
	return &schoolRepository{exec: exec}
}

func (repo schoolRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return repo.exec
}

func (repo schoolRepository) QueryGrades(ctx context.Context, exec ...core.DBExecutor) ([]school.Grade, error) {
	var grades []school.Grade
	const q = "SELECT id, name FROM grades ORDER BY name"
	rows, err := repo.getExec(exec).QueryxContext(ctx, q)
	if err != nil {
		return nil, errors.Wrap(err, "querying grades")
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var g school.Grade
		if err = rows.Scan(&g.ID, &g.Name); err != nil {
			return nil, errors.Wrap(err, "scanning grade")
		}
		grades = append(grades, g)
	}
	return grades, errors.Wrap(rows.Err(), "querying grades")
}

func (repo schoolRepository) QuerySubjects(ctx context.Context, gradeID string, exec ...core.DBExecutor) ([]school.Subject, error) {
	q := `
SELECT s.id, s.name, s.grade_id, g.name AS grade_name
FROM subjects s
JOIN grades g ON s.grade_id = g.id`
	args := []interface{}{}
	if gradeID != "" {
		q += " WHERE s.grade_id = $1"
		args = append(args, gradeID)
	}
	q += " ORDER BY g.name, s.name"

	var rows []struct {
		ID        string `db:"id"`
		Name      string `db:"name"`
		GradeID   string `db:"grade_id"`
		GradeName string `db:"grade_name"`
	}
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying subjects")
	}
	subjects := make([]school.Subject, 0, len(rows))
	for _, r := range rows {
		subjects = append(subjects, school.Subject{ID: r.ID, Name: r.Name, GradeID: r.GradeID, GradeName: r.GradeName})
	}
	return subjects, nil
}

func (repo schoolRepository) GetSubjectByID(ctx context.Context, id string, exec ...core.DBExecutor) (school.Subject, error) {
	var row struct {
		ID        string `db:"id"`
		Name      string `db:"name"`
		GradeID   string `db:"grade_id"`
		GradeName string `db:"grade_name"`
	}
	const q = `
SELECT s.id, s.name, s.grade_id, g.name AS grade_name
FROM subjects s
JOIN grades g ON s.grade_id = g.id
WHERE s.id = $1`
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &row, q, id); err != nil {
		if err == sql.ErrNoRows {
			return school.Subject{}, school.ErrSubjectNotFound
		}
		return school.Subject{}, errors.Wrap(err, "getting subject")
	}
	return school.Subject{ID: row.ID, Name: row.Name, GradeID: row.GradeID, GradeName: row.GradeName}, nil
}

const lessonSelect = `
SELECT l.id, l.title, l.content_text, l.video_url, l.subject_id,
       s.name AS subject_name, g.name AS grade_name,
       l.created_by, u.name AS created_by_name, l.created_at, l.updated_at
FROM lessons l
JOIN subjects s ON l.subject_id = s.id
JOIN grades g ON s.grade_id = g.id
LEFT JOIN users u ON l.created_by = u.id`

func (repo schoolRepository) QueryLessons(ctx context.Context, filter school.LessonFilter, exec ...core.DBExecutor) ([]school.Lesson, error) {
	q := lessonSelect
	args := []interface{}{}
	switch {
	case filter.SubjectID != "":
		q += " WHERE l.subject_id = $1"
		args = append(args, filter.SubjectID)
	case filter.GradeID != "":
		q += " WHERE s.grade_id = $1"
		args = append(args, filter.GradeID)
	}
	q += " ORDER BY l.created_at DESC"

	var rows []lessonRow
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying lessons")
	}
	lessons := make([]school.Lesson, 0, len(rows))
	for _, r := range rows {
		lessons = append(lessons, r.lesson())
	}
	return lessons, nil
}

func (repo schoolRepository) GetLessonByID(ctx context.Context, id string, exec ...core.DBExecutor) (school.Lesson, error) {
	var row lessonRow
	q := lessonSelect + " WHERE l.id = $1"
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &row, q, id); err != nil {
		if err == sql.ErrNoRows {
			return school.Lesson{}, school.ErrLessonNotFound
		}
		return school.Lesson{}, errors.Wrap(err, "getting lesson")
	}
	return row.lesson(), nil
}

func (repo schoolRepository) CreateLesson(ctx context.Context, lsn school.Lesson, exec ...core.DBExecutor) (school.Lesson, error) {
	lsn.ID = uuid.New().String()

	const q = `
INSERT INTO lessons (id, title, content_text, video_url, subject_id, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := repo.getExec(exec).ExecContext(ctx, q,
		lsn.ID, lsn.Title, lsn.ContentText, lsn.VideoURL, lsn.SubjectID,
		nullStr(lsn.CreatedBy), lsn.CreatedAt.UTC(), lsn.UpdatedAt.UTC(),
	)
	if err != nil {
		return school.Lesson{}, errors.Wrap(err, "inserting lesson")
	}
	return repo.GetLessonByID(ctx, lsn.ID, exec...)
}

func (repo schoolRepository) UpdateLesson(ctx context.Context, lsn school.Lesson, exec ...core.DBExecutor) (school.Lesson, error) {
	const q = `
UPDATE lessons
SET title        = COALESCE(NULLIF($2, ''), title),
    content_text = COALESCE(NULLIF($3, ''), content_text),
    video_url    = COALESCE(NULLIF($4, ''), video_url),
    subject_id   = COALESCE($5, subject_id),
    updated_at   = $6
WHERE id = $1`
	res, err := repo.getExec(exec).ExecContext(ctx, q,
		lsn.ID, lsn.Title, lsn.ContentText, lsn.VideoURL,
		nullStr(lsn.SubjectID), lsn.UpdatedAt.UTC(),
	)
	if err != nil {
		return school.Lesson{}, errors.Wrap(err, "updating lesson")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return school.Lesson{}, school.ErrLessonNotFound
	}
	return repo.GetLessonByID(ctx, lsn.ID, exec...)
}

func (repo schoolRepository) DeleteLesson(ctx context.Context, id string, exec ...core.DBExecutor) error {
	res, err := repo.getExec(exec).ExecContext(ctx, "DELETE FROM lessons WHERE id = $1", id)
	if err != nil {
		return errors.Wrap(err, "deleting lesson")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return school.ErrLessonNotFound
	}
	return nil
}

const assignmentSelect = `
SELECT a.id, a.title, a.description, a.subject_id, s.name AS subject_name,
       a.grade_id, a.due_date, a.created_by, a.created_at
FROM assignments a
JOIN subjects s ON a.subject_id = s.id`

func (repo schoolRepository) CreateAssignment(ctx context.Context, asg school.Assignment, exec ...core.DBExecutor) (school.Assignment, error) {
	asg.ID = uuid.New().String()

	const q = `
INSERT INTO assignments (id, title, description, subject_id, grade_id, due_date, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := repo.getExec(exec).ExecContext(ctx, q,
		asg.ID, asg.Title, asg.Description, asg.SubjectID, asg.GradeID,
		asg.DueDate.UTC(), nullStr(asg.CreatedBy), asg.CreatedAt.UTC(),
	)
	if err != nil {
		return school.Assignment{}, errors.Wrap(err, "inserting assignment")
	}
	return repo.GetAssignmentByID(ctx, asg.ID, exec...)
}

func (repo schoolRepository) QueryAssignments(ctx context.Context, gradeID string, exec ...core.DBExecutor) ([]school.Assignment, error) {
	q := assignmentSelect
	args := []interface{}{}
	if gradeID != "" {
		q += " WHERE a.grade_id = $1"
		args = append(args, gradeID)
	}
	q += " ORDER BY a.due_date"

	var rows []assignmentRow
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying assignments")
	}
	assignments := make([]school.Assignment, 0, len(rows))
	for _, r := range rows {
		assignments = append(assignments, r.assignment())
	}
	return assignments, nil
}

func (repo schoolRepository) GetAssignmentByID(ctx context.Context, id string, exec ...core.DBExecutor) (school.Assignment, error) {
	var row assignmentRow
	q := assignmentSelect + " WHERE a.id = $1"
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &row, q, id); err != nil {
		if err == sql.ErrNoRows {
			return school.Assignment{}, school.ErrAssignmentNotFound
		}
		return school.Assignment{}, errors.Wrap(err, "getting assignment")
	}
	return row.assignment(), nil
}

func (repo schoolRepository) DeleteAssignment(ctx context.Context, id string, exec ...core.DBExecutor) error {
	res, err := repo.getExec(exec).ExecContext(ctx, "DELETE FROM assignments WHERE id = $1", id)
	if err != nil {
		return errors.Wrap(err, "deleting assignment")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return school.ErrAssignmentNotFound
	}
	return nil
}

func (repo schoolRepository) CreateResource(ctx context.Context, res school.Resource, exec ...core.DBExecutor) (school.Resource, error) {
	res.ID = uuid.New().String()

	const q = `
INSERT INTO resources (id, title, description, file_path, uploaded_by, uploaded_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := repo.getExec(exec).ExecContext(ctx, q,
		res.ID, res.Title, res.Description, res.FilePath,
		nullStr(res.UploadedBy), res.UploadedAt.UTC(),
	)
	if err != nil {
		return school.Resource{}, errors.Wrap(err, "inserting resource")
	}
	return res, nil
}

func (repo schoolRepository) QueryResources(ctx context.Context, exec ...core.DBExecutor) ([]school.Resource, error) {
	var rows []resourceRow
	const q = `
SELECT id, title, description, file_path, uploaded_by, uploaded_at
FROM resources
ORDER BY uploaded_at DESC`
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying resources")
	}
	resources := make([]school.Resource, 0, len(rows))
	for _, r := range rows {
		resources = append(resources, r.resource())
	}
	return resources, nil
}

func (repo schoolRepository) GetResourceByID(ctx context.Context, id string, exec ...core.DBExecutor) (school.Resource, error) {
	var row resourceRow
	const q = `
SELECT id, title, description, file_path, uploaded_by, uploaded_at
FROM resources
WHERE id = $1`
	if err := sqlx.GetContext(ctx, repo.getExec(exec), &row, q, id); err != nil {
		if err == sql.ErrNoRows {
			return school.Resource{}, school.ErrResourceNotFound
		}
		return school.Resource{}, errors.Wrap(err, "getting resource")
	}
	return row.resource(), nil
}

func (repo schoolRepository) DeleteResource(ctx context.Context, id string, exec ...core.DBExecutor) error {
	res, err := repo.getExec(exec).ExecContext(ctx, "DELETE FROM resources WHERE id = $1", id)
	if err != nil {
		return errors.Wrap(err, "deleting resource")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return school.ErrResourceNotFound
	}
	return nil
}

func (repo schoolRepository) GetStats(ctx context.Context, exec ...core.DBExecutor) (school.Stats, error) {
	var stats school.Stats
	const q = `
SELECT (SELECT COUNT(*) FROM users)                                              AS total_users,
       (SELECT COUNT(*) FROM applications WHERE status = $1)                     AS pending_applications,
       (SELECT COUNT(*) FROM assignments)                                        AS total_assignments,
       (SELECT COUNT(*) FROM users WHERE role = $2 AND is_active)                AS active_students,
       (SELECT COUNT(*) FROM lessons)                                            AS total_lessons`
	row := repo.getExec(exec).QueryRowxContext(ctx, q, enrollment.StatusPending, user.RoleStudent)
	err := row.Scan(&stats.TotalUsers, &stats.PendingApplications, &stats.TotalAssignments, &stats.ActiveStudents, &stats.TotalLessons)
	return stats, errors.Wrap(err, "getting stats")
}
