package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/nextcentury/backend/core"
	"github.com/nextcentury/backend/core/enrollment"
	"github.com/nextcentury/backend/core/school"
	"github.com/nextcentury/backend/core/user"
)

type SchoolRepository struct {
	root *DB
	db   *schoolTable
}

var _ school.Repository = (*SchoolRepository)(nil) // interface compliance check

func NewSchoolRepository(db *DB) *SchoolRepository {
	return &SchoolRepository{root: db, db: db.school}
}

// SeedGrade registers a grade; also visible to enrollment name lookups.
func (repo *SchoolRepository) SeedGrade(name string) school.Grade {
	id := NewEnrollmentRepository(repo.root).SeedGrade(name)

	repo.db.Lock()
	defer repo.db.Unlock()
	g := school.Grade{ID: id, Name: name}
	repo.db.grades[id] = &g
	return g
}

// SeedSubject registers a subject under a grade.
func (repo *SchoolRepository) SeedSubject(name, gradeID string) school.Subject {
	repo.db.Lock()
	defer repo.db.Unlock()

	s := school.Subject{ID: uuid.New().String(), Name: name, GradeID: gradeID}
	if g, ok := repo.db.grades[gradeID]; ok {
		s.GradeName = g.Name
	}
	repo.db.subjects[s.ID] = &s
	return s
}

func (repo *SchoolRepository) QueryGrades(ctx context.Context, exec ...core.DBExecutor) ([]school.Grade, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	grades := make([]school.Grade, 0, len(repo.db.grades))
	for _, g := range repo.db.grades {
		grades = append(grades, *g)
	}
	sort.Slice(grades, func(i, j int) bool { return grades[i].Name < grades[j].Name })
	return grades, nil
}

func (repo *SchoolRepository) QuerySubjects(ctx context.Context, gradeID string, exec ...core.DBExecutor) ([]school.Subject, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	subjects := make([]school.Subject, 0, len(repo.db.subjects))
	for _, s := range repo.db.subjects {
		if gradeID == "" || s.GradeID == gradeID {
			subjects = append(subjects, *s)
		}
	}
	sort.Slice(subjects, func(i, j int) bool { return subjects[i].Name < subjects[j].Name })
	return subjects, nil
}

func (repo *SchoolRepository) GetSubjectByID(ctx context.Context, id string, exec ...core.DBExecutor) (school.Subject, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if s, ok := repo.db.subjects[id]; ok {
		return *s, nil
	}
	return school.Subject{}, school.ErrSubjectNotFound
}

func (repo *SchoolRepository) QueryLessons(ctx context.Context, filter school.LessonFilter, exec ...core.DBExecutor) ([]school.Lesson, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	lessons := make([]school.Lesson, 0, len(repo.db.lessons))
	for _, l := range repo.db.lessons {
		if filter.SubjectID != "" && l.SubjectID != filter.SubjectID {
			continue
		}
		if filter.GradeID != "" {
			sub, ok := repo.db.subjects[l.SubjectID]
			if !ok || sub.GradeID != filter.GradeID {
				continue
			}
		}
		lessons = append(lessons, *l)
	}
	sort.Slice(lessons, func(i, j int) bool { return lessons[i].CreatedAt.After(lessons[j].CreatedAt) })
	return lessons, nil
}

func (repo *SchoolRepository) GetLessonByID(ctx context.Context, id string, exec ...core.DBExecutor) (school.Lesson, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if l, ok := repo.db.lessons[id]; ok {
		return *l, nil
	}
	return school.Lesson{}, school.ErrLessonNotFound
}

func (repo *SchoolRepository) CreateLesson(ctx context.Context, lsn school.Lesson, exec ...core.DBExecutor) (school.Lesson, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	lsn.ID = uuid.New().String()
	if sub, ok := repo.db.subjects[lsn.SubjectID]; ok {
		lsn.SubjectName = sub.Name
		lsn.GradeName = sub.GradeName
	}
	repo.db.lessons[lsn.ID] = &lsn
	return lsn, nil
}

func (repo *SchoolRepository) UpdateLesson(ctx context.Context, lsn school.Lesson, exec ...core.DBExecutor) (school.Lesson, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	orig, ok := repo.db.lessons[lsn.ID]
	if !ok {
		return school.Lesson{}, school.ErrLessonNotFound
	}
	if lsn.Title != "" {
		orig.Title = lsn.Title
	}
	if lsn.ContentText != "" {
		orig.ContentText = lsn.ContentText
	}
	if lsn.VideoURL != "" {
		orig.VideoURL = lsn.VideoURL
	}
	if lsn.SubjectID != "" {
		orig.SubjectID = lsn.SubjectID
		if sub, ok := repo.db.subjects[lsn.SubjectID]; ok {
			orig.SubjectName = sub.Name
			orig.GradeName = sub.GradeName
		}
	}
	orig.UpdatedAt = lsn.UpdatedAt
	return *orig, nil
}

func (repo *SchoolRepository) DeleteLesson(ctx context.Context, id string, exec ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.lessons[id]; !ok {
		return school.ErrLessonNotFound
	}
	delete(repo.db.lessons, id)
	return nil
}

func (repo *SchoolRepository) CreateAssignment(ctx context.Context, asg school.Assignment, exec ...core.DBExecutor) (school.Assignment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	asg.ID = uuid.New().String()
	if sub, ok := repo.db.subjects[asg.SubjectID]; ok {
		asg.SubjectName = sub.Name
	}
	repo.db.assignments[asg.ID] = &asg
	return asg, nil
}

func (repo *SchoolRepository) QueryAssignments(ctx context.Context, gradeID string, exec ...core.DBExecutor) ([]school.Assignment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	assignments := make([]school.Assignment, 0, len(repo.db.assignments))
	for _, a := range repo.db.assignments {
		if gradeID == "" || a.GradeID == gradeID {
			assignments = append(assignments, *a)
		}
	}
	sort.Slice(assignments, func(i, j int) bool { return assignments[i].DueDate.Before(assignments[j].DueDate) })
	return assignments, nil
}

func (repo *SchoolRepository) GetAssignmentByID(ctx context.Context, id string, exec ...core.DBExecutor) (school.Assignment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if a, ok := repo.db.assignments[id]; ok {
		return *a, nil
	}
	return school.Assignment{}, school.ErrAssignmentNotFound
}

func (repo *SchoolRepository) DeleteAssignment(ctx context.Context, id string, exec ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.assignments[id]; !ok {
		return school.ErrAssignmentNotFound
	}
	delete(repo.db.assignments, id)
	return nil
}

func (repo *SchoolRepository) CreateResource(ctx context.Context, res school.Resource, exec ...core.DBExecutor) (school.Resource, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	res.ID = uuid.New().String()
	repo.db.resources[res.ID] = &res
	return res, nil
}

func (repo *SchoolRepository) QueryResources(ctx context.Context, exec ...core.DBExecutor) ([]school.Resource, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	resources := make([]school.Resource, 0, len(repo.db.resources))
	for _, r := range repo.db.resources {
		resources = append(resources, *r)
	}
	sort.Slice(resources, func(i, j int) bool { return resources[i].UploadedAt.After(resources[j].UploadedAt) })
	return resources, nil
}

func (repo *SchoolRepository) GetResourceByID(ctx context.Context, id string, exec ...core.DBExecutor) (school.Resource, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if r, ok := repo.db.resources[id]; ok {
		return *r, nil
	}
	return school.Resource{}, school.ErrResourceNotFound
}

func (repo *SchoolRepository) DeleteResource(ctx context.Context, id string, exec ...core.DBExecutor) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.resources[id]; !ok {
		return school.ErrResourceNotFound
	}
	delete(repo.db.resources, id)
	return nil
}

func (repo *SchoolRepository) GetStats(ctx context.Context, exec ...core.DBExecutor) (school.Stats, error) {
	repo.root.user.RLock()
	repo.root.enrollment.RLock()
	repo.db.RLock()
	defer repo.db.RUnlock()
	defer repo.root.enrollment.RUnlock()
	defer repo.root.user.RUnlock()

	var stats school.Stats
	stats.TotalUsers = len(repo.root.user.table)
	for _, u := range repo.root.user.table {
		if u.Role == user.RoleStudent && u.IsActive {
			stats.ActiveStudents++
		}
	}
	for _, a := range repo.root.enrollment.applications {
		if a.Status == enrollment.StatusPending {
			stats.PendingApplications++
		}
	}
	stats.TotalAssignments = len(repo.db.assignments)
	stats.TotalLessons = len(repo.db.lessons)
	return stats, nil
}
