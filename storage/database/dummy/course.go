package dummydb

import (
	"sort"
	"strings"

	"github.com/ecolehq/ecole/core"
	"github.com/ecolehq/ecole/core/course"
)

type courseRepository struct {
	db *courseTable
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *DB) course.Repository {
	return &courseRepository{db: db.course}
}

// Courses

func (repo *courseRepository) CreateCourse(crs course.Course) (course.Course, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	cp := crs
	cp.Lessons = nil
	repo.db.courses[crs.ID] = &cp
	return crs, nil
}

func (repo *courseRepository) GetCourseByID(id string) (course.Course, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if crs, ok := repo.db.courses[id]; ok {
		return *crs, nil
	}
	return course.Course{}, course.ErrCourseNotFound
}

func (repo *courseRepository) FilterCourses(filter course.QueryFilter, orderings ...core.DBOrdering) ([]course.Course, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	courses := make([]course.Course, 0, len(repo.db.courses))
	for _, crs := range repo.db.courses {
		if filter.Search != "" {
			search := strings.ToLower(filter.Search)
			if !strings.Contains(strings.ToLower(crs.Title), search) &&
				!strings.Contains(strings.ToLower(crs.Description.String), search) {
				continue
			}
		}
		if filter.Level != "" && crs.Level != filter.Level {
			continue
		}
		if filter.Featured != nil && crs.IsFeatured != *filter.Featured {
			continue
		}
		if filter.InstructorID != "" && crs.InstructorID.String != filter.InstructorID {
			continue
		}
		courses = append(courses, *crs)
	}
	sort.Slice(courses, func(i, j int) bool { return courses[i].CreatedAt.After(courses[j].CreatedAt) })
	return courses, nil
}

func (repo *courseRepository) UpdateCourse(crs course.Course) (course.Course, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.courses[crs.ID]; !ok {
		return course.Course{}, course.ErrCourseNotFound
	}
	cp := crs
	cp.Lessons = nil
	repo.db.courses[crs.ID] = &cp
	return crs, nil
}

func (repo *courseRepository) DeleteCourse(id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.courses[id]; !ok {
		return course.ErrCourseNotFound
	}
	delete(repo.db.courses, id)
	for lid, lsn := range repo.db.lessons {
		if lsn.CourseID == id {
			delete(repo.db.lessons, lid)
		}
	}
	return nil
}

// Lessons

func (repo *courseRepository) CreateLesson(lsn course.Lesson) (course.Lesson, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, l := range repo.db.lessons {
		if l.CourseID == lsn.CourseID && l.OrderNumber == lsn.OrderNumber {
			return course.Lesson{}, course.ErrOrderNumberTaken
		}
	}
	cp := lsn
	repo.db.lessons[lsn.ID] = &cp
	return lsn, nil
}

func (repo *courseRepository) GetLessonByID(id string) (course.Lesson, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if lsn, ok := repo.db.lessons[id]; ok {
		return *lsn, nil
	}
	return course.Lesson{}, course.ErrLessonNotFound
}

func (repo *courseRepository) QueryLessonsByCourse(courseID string) ([]course.Lesson, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	lessons := make([]course.Lesson, 0)
	for _, lsn := range repo.db.lessons {
		if lsn.CourseID == courseID {
			lessons = append(lessons, *lsn)
		}
	}
	sort.Slice(lessons, func(i, j int) bool { return lessons[i].OrderNumber < lessons[j].OrderNumber })
	return lessons, nil
}

func (repo *courseRepository) UpdateLesson(lsn course.Lesson) (course.Lesson, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.lessons[lsn.ID]; !ok {
		return course.Lesson{}, course.ErrLessonNotFound
	}
	for _, l := range repo.db.lessons {
		if l.ID != lsn.ID && l.CourseID == lsn.CourseID && l.OrderNumber == lsn.OrderNumber {
			return course.Lesson{}, course.ErrOrderNumberTaken
		}
	}
	cp := lsn
	repo.db.lessons[lsn.ID] = &cp
	return lsn, nil
}

func (repo *courseRepository) DeleteLesson(id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.lessons[id]; !ok {
		return course.ErrLessonNotFound
	}
	delete(repo.db.lessons, id)
	return nil
}

func (repo *courseRepository) CountLessonsByCourse(courseID string) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var count int
	for _, lsn := range repo.db.lessons {
		if lsn.CourseID == courseID {
			count++
		}
	}
	return count, nil
}

// Enrollments

func (repo *courseRepository) CreateEnrollment(enr course.Enrollment) (course.Enrollment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	key := pairKey(enr.UserID, enr.CourseID)
	if _, ok := repo.db.enrollments[key]; ok {
		return course.Enrollment{}, course.ErrAlreadyEnrolled
	}
	cp := enr
	repo.db.enrollments[key] = &cp
	return enr, nil
}

func (repo *courseRepository) GetEnrollment(userID, courseID string) (course.Enrollment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if enr, ok := repo.db.enrollments[pairKey(userID, courseID)]; ok {
		return *enr, nil
	}
	return course.Enrollment{}, course.ErrNotEnrolled
}

func (repo *courseRepository) QueryEnrollmentsByUser(userID string) ([]course.Enrollment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	enrs := make([]course.Enrollment, 0)
	for _, enr := range repo.db.enrollments {
		if enr.UserID == userID {
			enrs = append(enrs, *enr)
		}
	}
	sort.Slice(enrs, func(i, j int) bool { return enrs[i].EnrolledAt.Before(enrs[j].EnrolledAt) })
	return enrs, nil
}

// Lesson progress

func (repo *courseRepository) UpsertProgressAccess(p course.LessonProgress) (course.LessonProgress, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	key := pairKey(p.UserID, p.LessonID)
	if existing, ok := repo.db.progress[key]; ok {
		existing.LastAccessedAt = p.LastAccessedAt
		return *existing, nil
	}
	cp := p
	cp.Completed = false
	repo.db.progress[key] = &cp
	return cp, nil
}

func (repo *courseRepository) UpsertProgressCompleted(p course.LessonProgress) (course.LessonProgress, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	key := pairKey(p.UserID, p.LessonID)
	if existing, ok := repo.db.progress[key]; ok {
		existing.Completed = true
		existing.LastAccessedAt = p.LastAccessedAt
		return *existing, nil
	}
	cp := p
	cp.Completed = true
	repo.db.progress[key] = &cp
	return cp, nil
}

func (repo *courseRepository) UpdateProgressNotes(p course.LessonProgress) (course.LessonProgress, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	key := pairKey(p.UserID, p.LessonID)
	if existing, ok := repo.db.progress[key]; ok {
		existing.Notes = p.Notes
		existing.LastAccessedAt = p.LastAccessedAt
		return *existing, nil
	}
	cp := p
	repo.db.progress[key] = &cp
	return cp, nil
}

func (repo *courseRepository) GetProgress(userID, lessonID string) (course.LessonProgress, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if p, ok := repo.db.progress[pairKey(userID, lessonID)]; ok {
		return *p, nil
	}
	return course.LessonProgress{}, course.ErrProgressNotFound
}

func (repo *courseRepository) CountCompletedByCourse(userID, courseID string) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var count int
	for _, p := range repo.db.progress {
		if p.UserID != userID || !p.Completed {
			continue
		}
		if lsn, ok := repo.db.lessons[p.LessonID]; ok && lsn.CourseID == courseID {
			count++
		}
	}
	return count, nil
}

// Materials

func (repo *courseRepository) CreateMaterial(m course.Material) (course.Material, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	cp := m
	repo.db.materials[m.ID] = &cp
	return m, nil
}

func (repo *courseRepository) QueryMaterialsByCourse(courseID string) ([]course.Material, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	materials := make([]course.Material, 0)
	for _, m := range repo.db.materials {
		if m.CourseID == courseID {
			materials = append(materials, *m)
		}
	}
	sort.Slice(materials, func(i, j int) bool { return materials[i].CreatedAt.After(materials[j].CreatedAt) })
	return materials, nil
}

func (repo *courseRepository) QueryMaterialsByLesson(lessonID string) ([]course.Material, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	materials := make([]course.Material, 0)
	for _, m := range repo.db.materials {
		if m.LessonID == lessonID {
			materials = append(materials, *m)
		}
	}
	sort.Slice(materials, func(i, j int) bool { return materials[i].CreatedAt.After(materials[j].CreatedAt) })
	return materials, nil
}
