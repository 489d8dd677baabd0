package course

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/ecolehq/ecole/core"
	"github.com/ecolehq/ecole/core/storage"
	"github.com/ecolehq/ecole/core/user"
)

var (
	// errors
	ErrCourseNotFound   = errors.New("course not found")
	ErrLessonNotFound   = errors.New("lesson not found")
	ErrAlreadyEnrolled  = errors.New("you are already enrolled in this course")
	ErrNotEnrolled      = errors.New("you are not enrolled in this course")
	ErrOrderNumberTaken = errors.New("a lesson with this order number already exists in this course")
	ErrProgressNotFound = errors.New("lesson progress not found")
)

type (
	Repository interface {
		CreateCourse(c Course) (Course, error)
		GetCourseByID(id string) (Course, error)
		// FilterCourses applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on Course.Title or
		// Course.Description.
		FilterCourses(filter QueryFilter, orderings ...core.DBOrdering) ([]Course, error)
		UpdateCourse(c Course) (Course, error)
		DeleteCourse(id string) error

		// CreateLesson returns ErrOrderNumberTaken when the (course, order)
		// pair is already used.
		CreateLesson(l Lesson) (Lesson, error)
		GetLessonByID(id string) (Lesson, error)
		QueryLessonsByCourse(courseID string) ([]Lesson, error) // ascending order_number
		UpdateLesson(l Lesson) (Lesson, error)
		DeleteLesson(id string) error
		CountLessonsByCourse(courseID string) (int, error)

		// CreateEnrollment returns ErrAlreadyEnrolled when the (user, course)
		// uniqueness constraint is violated, racing inserts included.
		CreateEnrollment(e Enrollment) (Enrollment, error)
		GetEnrollment(userID, courseID string) (Enrollment, error)
		QueryEnrollmentsByUser(userID string) ([]Enrollment, error)

		// Progress writes are conditional upserts on (user, lesson): never a
		// second row, and completion is never unset by an access touch.
		UpsertProgressAccess(p LessonProgress) (LessonProgress, error)
		UpsertProgressCompleted(p LessonProgress) (LessonProgress, error)
		UpdateProgressNotes(p LessonProgress) (LessonProgress, error)
		GetProgress(userID, lessonID string) (LessonProgress, error)
		CountCompletedByCourse(userID, courseID string) (int, error)

		CreateMaterial(m Material) (Material, error)
		QueryMaterialsByCourse(courseID string) ([]Material, error)
		QueryMaterialsByLesson(lessonID string) ([]Material, error)
	}

	ServiceInterface interface {
		CreateCourse(nc NewCourse) (Course, error)
		GetCourse(id string) (Course, error)
		QueryCourses(filter *QueryFilter, orderings []core.DBOrdering) ([]Course, error)
		UpdateCourse(origCrs Course, uc UpdateCourse) (Course, error)
		DeleteCourse(id string) error

		CreateLesson(courseID string, nl NewLesson) (Lesson, error)
		GetLesson(id string) (Lesson, error)
		UpdateLesson(origLsn Lesson, ul UpdateLesson) (Lesson, error)
		DeleteLesson(id string) error

		Enroll(usr user.User, courseID string) (Enrollment, error)
		IsEnrolled(usr user.User, courseID string) (bool, error)
		UserEnrollments(usr user.User) ([]UserEnrollment, error)

		ViewLesson(usr user.User, lessonID string) (Lesson, LessonProgress, error)
		MarkComplete(usr user.User, lessonID string) (LessonProgress, error)
		UpdateNotes(usr user.User, lessonID, notes string) (LessonProgress, error)
		CourseProgress(usr user.User, courseID string) (Progress, error)

		AddCourseMaterial(actor user.User, courseID string, up Upload) (Material, error)
		CourseMaterials(actor user.User, courseID string) ([]Material, error)
		AddLessonContent(actor user.User, lessonID string, up Upload) (Material, error)
		LessonContents(actor user.User, lessonID string) ([]Material, error)
	}

	service struct {
		repo  Repository
		store storage.Store
	}
)

var _ ServiceInterface = (*service)(nil)

func NewService(repo Repository, store storage.Store) *service {
	return &service{repo: repo, store: store}
}

// Courses

func (svc *service) CreateCourse(nc NewCourse) (Course, error) {
	now := time.Now().UTC()
	crs := Course{
		ID:            uuid.New().String(),
		Title:         nc.Title,
		Description:   null.NewString(nc.Description, nc.Description != ""),
		Level:         nc.Level,
		Price:         nc.Price,
		DurationWeeks: nc.DurationWeeks,
		ImageURL:      null.NewString(nc.ImageURL, nc.ImageURL != ""),
		IsFeatured:    nc.IsFeatured,
		InstructorID:  null.NewString(nc.InstructorID, nc.InstructorID != ""),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return svc.repo.CreateCourse(crs)
}

func (svc *service) GetCourse(id string) (Course, error) {
	crs, err := svc.repo.GetCourseByID(id)
	if err != nil {
		return Course{}, err
	}
	if crs.Lessons, err = svc.repo.QueryLessonsByCourse(id); err != nil {
		return Course{}, errors.Wrap(err, "querying lessons")
	}
	return crs, nil
}

func (svc *service) QueryCourses(filter *QueryFilter, orderings []core.DBOrdering) ([]Course, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	return svc.repo.FilterCourses(*filter, orderings...)
}

func (svc *service) UpdateCourse(origCrs Course, uc UpdateCourse) (Course, error) {
	crs := origCrs
	if uc.Title != "" {
		crs.Title = uc.Title
	}
	if uc.Description != nil {
		crs.Description = null.NewString(*uc.Description, *uc.Description != "")
	}
	if uc.Level != "" {
		crs.Level = uc.Level
	}
	if uc.Price != nil {
		crs.Price = *uc.Price
	}
	if uc.DurationWeeks != nil {
		crs.DurationWeeks = *uc.DurationWeeks
	}
	if uc.ImageURL != nil {
		crs.ImageURL = null.NewString(*uc.ImageURL, *uc.ImageURL != "")
	}
	if uc.IsFeatured != nil {
		crs.IsFeatured = *uc.IsFeatured
	}
	if uc.InstructorID != nil {
		crs.InstructorID = null.NewString(*uc.InstructorID, *uc.InstructorID != "")
	}
	crs.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateCourse(crs)
}

func (svc *service) DeleteCourse(id string) error {
	return svc.repo.DeleteCourse(id)
}

// Lessons

func (svc *service) CreateLesson(courseID string, nl NewLesson) (Lesson, error) {
	if _, err := svc.repo.GetCourseByID(courseID); err != nil {
		return Lesson{}, err
	}
	now := time.Now().UTC()
	lsn := Lesson{
		ID:              uuid.New().String(),
		CourseID:        courseID,
		Title:           nl.Title,
		Description:     null.NewString(nl.Description, nl.Description != ""),
		Content:         null.NewString(nl.Content, nl.Content != ""),
		OrderNumber:     nl.OrderNumber,
		DurationMinutes: null.NewInt(nl.DurationMinutes, nl.DurationMinutes > 0),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	return svc.repo.CreateLesson(lsn)
}

func (svc *service) GetLesson(id string) (Lesson, error) {
	return svc.repo.GetLessonByID(id)
}

func (svc *service) UpdateLesson(origLsn Lesson, ul UpdateLesson) (Lesson, error) {
	lsn := origLsn
	if ul.Title != "" {
		lsn.Title = ul.Title
	}
	if ul.Description != nil {
		lsn.Description = null.NewString(*ul.Description, *ul.Description != "")
	}
	if ul.Content != nil {
		lsn.Content = null.NewString(*ul.Content, *ul.Content != "")
	}
	if ul.OrderNumber != nil {
		lsn.OrderNumber = *ul.OrderNumber
	}
	if ul.DurationMinutes != nil {
		lsn.DurationMinutes = null.NewInt(*ul.DurationMinutes, *ul.DurationMinutes > 0)
	}
	lsn.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateLesson(lsn)
}

func (svc *service) DeleteLesson(id string) error {
	return svc.repo.DeleteLesson(id)
}

// Enrollment

// Enroll creates an active Enrollment; a duplicate (sequential or racing) is
// reported as ErrAlreadyEnrolled, never as a fault.
func (svc *service) Enroll(usr user.User, courseID string) (Enrollment, error) {
	if _, err := svc.repo.GetCourseByID(courseID); err != nil {
		return Enrollment{}, err
	}
	enr := Enrollment{
		ID:         uuid.New().String(),
		UserID:     usr.ID,
		CourseID:   courseID,
		Status:     StatusActive,
		EnrolledAt: time.Now().UTC(),
	}
	return svc.repo.CreateEnrollment(enr)
}

func (svc *service) IsEnrolled(usr user.User, courseID string) (bool, error) {
	if _, err := svc.repo.GetEnrollment(usr.ID, courseID); err != nil {
		if errors.Cause(err) == ErrNotEnrolled {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (svc *service) UserEnrollments(usr user.User) ([]UserEnrollment, error) {
	enrs, err := svc.repo.QueryEnrollmentsByUser(usr.ID)
	if err != nil {
		return nil, err
	}
	res := make([]UserEnrollment, 0, len(enrs))
	for _, enr := range enrs {
		crs, err := svc.repo.GetCourseByID(enr.CourseID)
		if err != nil {
			return nil, errors.Wrap(err, "querying enrolled course")
		}
		prog, err := svc.progress(usr.ID, enr.CourseID)
		if err != nil {
			return nil, err
		}
		res = append(res, UserEnrollment{Enrollment: enr, Course: crs, Progress: prog})
	}
	return res, nil
}

// Lesson progress

// checkLessonAccess loads the lesson and verifies the user may see it: staff
// always, students only with an enrollment in the owning course.
func (svc *service) checkLessonAccess(usr user.User, lessonID string) (Lesson, error) {
	lsn, err := svc.repo.GetLessonByID(lessonID)
	if err != nil {
		return Lesson{}, err
	}
	if usr.IsStaff() {
		return lsn, nil
	}
	enrolled, err := svc.IsEnrolled(usr, lsn.CourseID)
	if err != nil {
		return Lesson{}, err
	}
	if !enrolled {
		return Lesson{}, ErrNotEnrolled
	}
	return lsn, nil
}

// ViewLesson records the access (insert completed=false, or touch
// last_accessed_at) and returns the lesson with the user's progress.
func (svc *service) ViewLesson(usr user.User, lessonID string) (Lesson, LessonProgress, error) {
	lsn, err := svc.checkLessonAccess(usr, lessonID)
	if err != nil {
		return Lesson{}, LessonProgress{}, err
	}
	prog, err := svc.repo.UpsertProgressAccess(LessonProgress{
		ID:             uuid.New().String(),
		UserID:         usr.ID,
		LessonID:       lessonID,
		LastAccessedAt: time.Now().UTC(),
	})
	if err != nil {
		return Lesson{}, LessonProgress{}, errors.Wrap(err, "recording access")
	}
	return lsn, prog, nil
}

func (svc *service) MarkComplete(usr user.User, lessonID string) (LessonProgress, error) {
	if _, err := svc.checkLessonAccess(usr, lessonID); err != nil {
		return LessonProgress{}, err
	}
	return svc.repo.UpsertProgressCompleted(LessonProgress{
		ID:             uuid.New().String(),
		UserID:         usr.ID,
		LessonID:       lessonID,
		Completed:      true,
		LastAccessedAt: time.Now().UTC(),
	})
}

func (svc *service) UpdateNotes(usr user.User, lessonID, notes string) (LessonProgress, error) {
	if _, err := svc.checkLessonAccess(usr, lessonID); err != nil {
		return LessonProgress{}, err
	}
	return svc.repo.UpdateProgressNotes(LessonProgress{
		UserID:         usr.ID,
		LessonID:       lessonID,
		Notes:          null.NewString(notes, notes != ""),
		LastAccessedAt: time.Now().UTC(),
	})
}

func (svc *service) CourseProgress(usr user.User, courseID string) (Progress, error) {
	if _, err := svc.repo.GetCourseByID(courseID); err != nil {
		return Progress{}, err
	}
	return svc.progress(usr.ID, courseID)
}

func (svc *service) progress(userID, courseID string) (Progress, error) {
	total, err := svc.repo.CountLessonsByCourse(courseID)
	if err != nil {
		return Progress{}, errors.Wrap(err, "counting lessons")
	}
	completed, err := svc.repo.CountCompletedByCourse(userID, courseID)
	if err != nil {
		return Progress{}, errors.Wrap(err, "counting completed lessons")
	}
	return NewProgress(completed, total), nil
}

// Materials

// addMaterial stores the binary first; the metadata row is only written once
// the store confirmed the object. A failed metadata insert removes the object
// again so neither side is left orphaned.
func (svc *service) addMaterial(actor user.User, bucket, objPath string, up Upload, m Material) (Material, error) {
	fileURL, err := svc.store.Save(bucket, objPath, up.Content, up.FileSize)
	if err != nil {
		return Material{}, errors.Wrap(err, "storing file")
	}

	m.ID = uuid.New().String()
	m.Title = up.Title
	m.Description = null.NewString(up.Description, up.Description != "")
	m.FileURL = fileURL
	m.FileName = up.FileName
	m.FileType = up.FileType
	m.FileSize = up.FileSize
	m.UploadedBy = actor.ID
	m.CreatedAt = time.Now().UTC()

	m, err = svc.repo.CreateMaterial(m)
	if err != nil {
		_ = svc.store.Delete(bucket, objPath)
		return Material{}, errors.Wrap(err, "recording material")
	}
	return m, nil
}

func (svc *service) AddCourseMaterial(actor user.User, courseID string, up Upload) (Material, error) {
	if _, err := svc.repo.GetCourseByID(courseID); err != nil {
		return Material{}, err
	}
	objPath := courseID + "/" + storage.GenerateFilename(up.FileName)
	return svc.addMaterial(actor, storage.CourseMaterialsBucket, objPath, up, Material{CourseID: courseID})
}

func (svc *service) CourseMaterials(actor user.User, courseID string) ([]Material, error) {
	if _, err := svc.repo.GetCourseByID(courseID); err != nil {
		return nil, err
	}
	if !actor.IsStaff() {
		enrolled, err := svc.IsEnrolled(actor, courseID)
		if err != nil {
			return nil, err
		}
		if !enrolled {
			return nil, ErrNotEnrolled
		}
	}
	return svc.repo.QueryMaterialsByCourse(courseID)
}

func (svc *service) AddLessonContent(actor user.User, lessonID string, up Upload) (Material, error) {
	lsn, err := svc.repo.GetLessonByID(lessonID)
	if err != nil {
		return Material{}, err
	}
	objPath := lsn.CourseID + "/" + lessonID + "/" + storage.GenerateFilename(up.FileName)
	return svc.addMaterial(actor, storage.LessonContentBucket, objPath, up, Material{LessonID: lessonID})
}

func (svc *service) LessonContents(actor user.User, lessonID string) ([]Material, error) {
	if _, err := svc.checkLessonAccess(actor, lessonID); err != nil {
		return nil, err
	}
	return svc.repo.QueryMaterialsByLesson(lessonID)
}
