package pgrepos

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/ecolehq/ecole/core"
	"github.com/ecolehq/ecole/core/course"
)

type courseRepository struct {
	db *sqlx.DB
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *sqlx.DB) course.Repository {
	return &courseRepository{db: db}
}

type courseRow struct {
	ID            string      `db:"id"`
	Title         string      `db:"title"`
	Description   null.String `db:"description"`
	Level         string      `db:"level"`
	Price         int64       `db:"price"`
	DurationWeeks int         `db:"duration_weeks"`
	ImageURL      null.String `db:"image_url"`
	IsFeatured    bool        `db:"is_featured"`
	InstructorID  null.String `db:"instructor_id"`
	CreatedAt     time.Time   `db:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at"`
}

func (row courseRow) toCourse() course.Course {
	return course.Course{
		ID:            row.ID,
		Title:         row.Title,
		Description:   row.Description,
		Level:         row.Level,
		Price:         row.Price,
		DurationWeeks: row.DurationWeeks,
		ImageURL:      row.ImageURL,
		IsFeatured:    row.IsFeatured,
		InstructorID:  row.InstructorID,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}
}

type lessonRow struct {
	ID              string      `db:"id"`
	CourseID        string      `db:"course_id"`
	Title           string      `db:"title"`
	Description     null.String `db:"description"`
	Content         null.String `db:"content"`
	OrderNumber     int         `db:"order_number"`
	DurationMinutes null.Int    `db:"duration_minutes"`
	CreatedAt       time.Time   `db:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at"`
}

func (row lessonRow) toLesson() course.Lesson {
	return course.Lesson{
		ID:              row.ID,
		CourseID:        row.CourseID,
		Title:           row.Title,
		Description:     row.Description,
		Content:         row.Content,
		OrderNumber:     row.OrderNumber,
		DurationMinutes: row.DurationMinutes,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}
}

type enrollmentRow struct {
	ID          string    `db:"id"`
	UserID      string    `db:"user_id"`
	CourseID    string    `db:"course_id"`
	Status      string    `db:"status"`
	EnrolledAt  time.Time `db:"enrolled_at"`
	CompletedAt null.Time `db:"completed_at"`
}

func (row enrollmentRow) toEnrollment() course.Enrollment {
	return course.Enrollment(row)
}

type progressRow struct {
	ID             string      `db:"id"`
	UserID         string      `db:"user_id"`
	LessonID       string      `db:"lesson_id"`
	Completed      bool        `db:"completed"`
	Notes          null.String `db:"notes"`
	LastAccessedAt time.Time   `db:"last_accessed_at"`
}

func (row progressRow) toProgress() course.LessonProgress {
	return course.LessonProgress{
		ID:             row.ID,
		UserID:         row.UserID,
		LessonID:       row.LessonID,
		Completed:      row.Completed,
		LastAccessedAt: row.LastAccessedAt,
		Notes:          row.Notes,
	}
}

type materialRow struct {
	ID          string      `db:"id"`
	CourseID    null.String `db:"course_id"`
	LessonID    null.String `db:"lesson_id"`
	Title       string      `db:"title"`
	Description null.String `db:"description"`
	FileURL     string      `db:"file_url"`
	FileName    string      `db:"file_name"`
	FileType    null.String `db:"file_type"`
	FileSize    int64       `db:"file_size"`
	UploadedBy  string      `db:"uploaded_by"`
	CreatedAt   time.Time   `db:"created_at"`
}

func (row materialRow) toMaterial() course.Material {
	return course.Material{
		ID:          row.ID,
		CourseID:    row.CourseID.String,
		LessonID:    row.LessonID.String,
		Title:       row.Title,
		Description: row.Description,
		FileURL:     row.FileURL,
		FileName:    row.FileName,
		FileType:    row.FileType.String,
		FileSize:    row.FileSize,
		UploadedBy:  row.UploadedBy,
		CreatedAt:   row.CreatedAt,
	}
}

// Courses

func (repo *courseRepository) CreateCourse(crs course.Course) (course.Course, error) {
	query := `
INSERT INTO courses (id, title, description, level, price, duration_weeks, image_url, is_featured, instructor_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := repo.db.Exec(query,
		crs.ID, crs.Title, crs.Description, crs.Level, crs.Price, crs.DurationWeeks,
		crs.ImageURL, crs.IsFeatured, crs.InstructorID, crs.CreatedAt, crs.UpdatedAt)
	if err != nil {
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	return crs, nil
}

func (repo *courseRepository) GetCourseByID(id string) (course.Course, error) {
	var row courseRow
	if err := repo.db.Get(&row, `SELECT * FROM courses WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return course.Course{}, course.ErrCourseNotFound
		}
		return course.Course{}, errors.Wrap(err, "getting course")
	}
	return row.toCourse(), nil
}

func (repo *courseRepository) FilterCourses(filter course.QueryFilter, orderings ...core.DBOrdering) ([]course.Course, error) {
	var conditions []string
	var args []interface{}

	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Search != "" {
		p := arg("%" + filter.Search + "%")
		conditions = append(conditions, fmt.Sprintf("(title ILIKE %[1]s OR description ILIKE %[1]s)", p))
	}
	if filter.Level != "" {
		conditions = append(conditions, "level = "+arg(filter.Level))
	}
	if filter.Featured != nil {
		conditions = append(conditions, "is_featured = "+arg(*filter.Featured))
	}
	if filter.InstructorID != "" {
		conditions = append(conditions, "instructor_id = "+arg(filter.InstructorID))
	}

	query := `SELECT * FROM courses`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY " + orderBy(orderings, "created_at DESC")

	var rows []courseRow
	if err := repo.db.Select(&rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "filtering courses")
	}
	courses := make([]course.Course, 0, len(rows))
	for _, row := range rows {
		courses = append(courses, row.toCourse())
	}
	return courses, nil
}

func (repo *courseRepository) UpdateCourse(crs course.Course) (course.Course, error) {
	query := `
UPDATE courses
SET title = $1, description = $2, level = $3, price = $4, duration_weeks = $5,
    image_url = $6, is_featured = $7, instructor_id = $8, updated_at = $9
WHERE id = $10`
	res, err := repo.db.Exec(query,
		crs.Title, crs.Description, crs.Level, crs.Price, crs.DurationWeeks,
		crs.ImageURL, crs.IsFeatured, crs.InstructorID, crs.UpdatedAt, crs.ID)
	if err != nil {
		return course.Course{}, errors.Wrap(err, "updating course")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return course.Course{}, course.ErrCourseNotFound
	}
	return crs, nil
}

func (repo *courseRepository) DeleteCourse(id string) error {
	res, err := repo.db.Exec(`DELETE FROM courses WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting course")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return course.ErrCourseNotFound
	}
	return nil
}

// Lessons

func (repo *courseRepository) CreateLesson(lsn course.Lesson) (course.Lesson, error) {
	query := `
INSERT INTO lessons (id, course_id, title, description, content, order_number, duration_minutes, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := repo.db.Exec(query,
		lsn.ID, lsn.CourseID, lsn.Title, lsn.Description, lsn.Content,
		lsn.OrderNumber, lsn.DurationMinutes, lsn.CreatedAt, lsn.UpdatedAt)
	if err != nil {
		if isPqError(err, uniqueViolation, "lessons_course_id_order_number_key") {
			return course.Lesson{}, course.ErrOrderNumberTaken
		}
		return course.Lesson{}, errors.Wrap(err, "inserting lesson")
	}
	return lsn, nil
}

func (repo *courseRepository) GetLessonByID(id string) (course.Lesson, error) {
	var row lessonRow
	if err := repo.db.Get(&row, `SELECT * FROM lessons WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return course.Lesson{}, course.ErrLessonNotFound
		}
		return course.Lesson{}, errors.Wrap(err, "getting lesson")
	}
	return row.toLesson(), nil
}

func (repo *courseRepository) QueryLessonsByCourse(courseID string) ([]course.Lesson, error) {
	var rows []lessonRow
	query := `SELECT * FROM lessons WHERE course_id = $1 ORDER BY order_number ASC`
	if err := repo.db.Select(&rows, query, courseID); err != nil {
		return nil, errors.Wrap(err, "querying lessons")
	}
	lessons := make([]course.Lesson, 0, len(rows))
	for _, row := range rows {
		lessons = append(lessons, row.toLesson())
	}
	return lessons, nil
}

func (repo *courseRepository) UpdateLesson(lsn course.Lesson) (course.Lesson, error) {
	query := `
UPDATE lessons
SET title = $1, description = $2, content = $3, order_number = $4, duration_minutes = $5, updated_at = $6
WHERE id = $7`
	res, err := repo.db.Exec(query,
		lsn.Title, lsn.Description, lsn.Content, lsn.OrderNumber, lsn.DurationMinutes, lsn.UpdatedAt, lsn.ID)
	if err != nil {
		if isPqError(err, uniqueViolation, "lessons_course_id_order_number_key") {
			return course.Lesson{}, course.ErrOrderNumberTaken
		}
		return course.Lesson{}, errors.Wrap(err, "updating lesson")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return course.Lesson{}, course.ErrLessonNotFound
	}
	return lsn, nil
}

func (repo *courseRepository) DeleteLesson(id string) error {
	res, err := repo.db.Exec(`DELETE FROM lessons WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting lesson")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return course.ErrLessonNotFound
	}
	return nil
}

func (repo *courseRepository) CountLessonsByCourse(courseID string) (int, error) {
	var count int
	if err := repo.db.Get(&count, `SELECT COUNT(*) FROM lessons WHERE course_id = $1`, courseID); err != nil {
		return 0, errors.Wrap(err, "counting lessons")
	}
	return count, nil
}

// Enrollments

func (repo *courseRepository) CreateEnrollment(enr course.Enrollment) (course.Enrollment, error) {
	query := `
INSERT INTO enrollments (id, user_id, course_id, status, enrolled_at, completed_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := repo.db.Exec(query,
		enr.ID, enr.UserID, enr.CourseID, enr.Status, enr.EnrolledAt, enr.CompletedAt)
	if err != nil {
		// racing duplicate inserts land here too
		if isPqError(err, uniqueViolation, "enrollments_user_id_course_id_key") {
			return course.Enrollment{}, course.ErrAlreadyEnrolled
		}
		return course.Enrollment{}, errors.Wrap(err, "inserting enrollment")
	}
	return enr, nil
}

func (repo *courseRepository) GetEnrollment(userID, courseID string) (course.Enrollment, error) {
	var row enrollmentRow
	query := `SELECT * FROM enrollments WHERE user_id = $1 AND course_id = $2`
	if err := repo.db.Get(&row, query, userID, courseID); err != nil {
		if err == sql.ErrNoRows {
			return course.Enrollment{}, course.ErrNotEnrolled
		}
		return course.Enrollment{}, errors.Wrap(err, "getting enrollment")
	}
	return row.toEnrollment(), nil
}

func (repo *courseRepository) QueryEnrollmentsByUser(userID string) ([]course.Enrollment, error) {
	var rows []enrollmentRow
	query := `SELECT * FROM enrollments WHERE user_id = $1 ORDER BY enrolled_at ASC`
	if err := repo.db.Select(&rows, query, userID); err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}
	enrs := make([]course.Enrollment, 0, len(rows))
	for _, row := range rows {
		enrs = append(enrs, row.toEnrollment())
	}
	return enrs, nil
}

// Lesson progress
//
// All writes are upserts on (user_id, lesson_id): concurrent first-writes
// collapse onto one row and a plain access touch never unsets completion.

func (repo *courseRepository) UpsertProgressAccess(p course.LessonProgress) (course.LessonProgress, error) {
	query := `
INSERT INTO lesson_progress (id, user_id, lesson_id, completed, notes, last_accessed_at)
VALUES ($1, $2, $3, FALSE, NULL, $4)
ON CONFLICT (user_id, lesson_id)
    DO UPDATE SET last_accessed_at = EXCLUDED.last_accessed_at
RETURNING *`
	var row progressRow
	if err := repo.db.Get(&row, query, p.ID, p.UserID, p.LessonID, p.LastAccessedAt); err != nil {
		return course.LessonProgress{}, errors.Wrap(err, "upserting progress")
	}
	return row.toProgress(), nil
}

func (repo *courseRepository) UpsertProgressCompleted(p course.LessonProgress) (course.LessonProgress, error) {
	query := `
INSERT INTO lesson_progress (id, user_id, lesson_id, completed, notes, last_accessed_at)
VALUES ($1, $2, $3, TRUE, NULL, $4)
ON CONFLICT (user_id, lesson_id)
    DO UPDATE SET completed = TRUE, last_accessed_at = EXCLUDED.last_accessed_at
RETURNING *`
	var row progressRow
	if err := repo.db.Get(&row, query, p.ID, p.UserID, p.LessonID, p.LastAccessedAt); err != nil {
		return course.LessonProgress{}, errors.Wrap(err, "upserting progress")
	}
	return row.toProgress(), nil
}

func (repo *courseRepository) UpdateProgressNotes(p course.LessonProgress) (course.LessonProgress, error) {
	query := `
INSERT INTO lesson_progress (id, user_id, lesson_id, completed, notes, last_accessed_at)
VALUES ($1, $2, $3, FALSE, $4, $5)
ON CONFLICT (user_id, lesson_id)
    DO UPDATE SET notes = EXCLUDED.notes, last_accessed_at = EXCLUDED.last_accessed_at
RETURNING *`
	var row progressRow
	if err := repo.db.Get(&row, query, p.ID, p.UserID, p.LessonID, p.Notes, p.LastAccessedAt); err != nil {
		return course.LessonProgress{}, errors.Wrap(err, "upserting progress notes")
	}
	return row.toProgress(), nil
}

func (repo *courseRepository) GetProgress(userID, lessonID string) (course.LessonProgress, error) {
	var row progressRow
	query := `SELECT * FROM lesson_progress WHERE user_id = $1 AND lesson_id = $2`
	if err := repo.db.Get(&row, query, userID, lessonID); err != nil {
		if err == sql.ErrNoRows {
			return course.LessonProgress{}, course.ErrProgressNotFound
		}
		return course.LessonProgress{}, errors.Wrap(err, "getting progress")
	}
	return row.toProgress(), nil
}

func (repo *courseRepository) CountCompletedByCourse(userID, courseID string) (int, error) {
	query := `
SELECT COUNT(*)
FROM lesson_progress lp
JOIN lessons l ON l.id = lp.lesson_id
WHERE lp.user_id = $1 AND l.course_id = $2 AND lp.completed`
	var count int
	if err := repo.db.Get(&count, query, userID, courseID); err != nil {
		return 0, errors.Wrap(err, "counting completed lessons")
	}
	return count, nil
}

// Materials

func (repo *courseRepository) CreateMaterial(m course.Material) (course.Material, error) {
	var query string
	var parentID string
	if m.LessonID != "" {
		parentID = m.LessonID
		query = `
INSERT INTO lesson_content (id, lesson_id, title, description, file_url, file_name, file_type, file_size, uploaded_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	} else {
		parentID = m.CourseID
		query = `
INSERT INTO course_materials (id, course_id, title, description, file_url, file_name, file_type, file_size, uploaded_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	}
	_, err := repo.db.Exec(query,
		m.ID, parentID, m.Title, m.Description, m.FileURL, m.FileName,
		null.NewString(m.FileType, m.FileType != ""), m.FileSize, m.UploadedBy, m.CreatedAt)
	if err != nil {
		return course.Material{}, errors.Wrap(err, "inserting material")
	}
	return m, nil
}

func (repo *courseRepository) QueryMaterialsByCourse(courseID string) ([]course.Material, error) {
	query := `
SELECT id, course_id, NULL AS lesson_id, title, description, file_url, file_name, file_type, file_size, uploaded_by, created_at
FROM course_materials
WHERE course_id = $1
ORDER BY created_at DESC`
	var rows []materialRow
	if err := repo.db.Select(&rows, query, courseID); err != nil {
		return nil, errors.Wrap(err, "querying course materials")
	}
	materials := make([]course.Material, 0, len(rows))
	for _, row := range rows {
		materials = append(materials, row.toMaterial())
	}
	return materials, nil
}

func (repo *courseRepository) QueryMaterialsByLesson(lessonID string) ([]course.Material, error) {
	query := `
SELECT id, NULL AS course_id, lesson_id, title, description, file_url, file_name, file_type, file_size, uploaded_by, created_at
FROM lesson_content
WHERE lesson_id = $1
ORDER BY created_at DESC`
	var rows []materialRow
	if err := repo.db.Select(&rows, query, lessonID); err != nil {
		return nil, errors.Wrap(err, "querying lesson content")
	}
	materials := make([]course.Material, 0, len(rows))
	for _, row := range rows {
		materials = append(materials, row.toMaterial())
	}
	return materials, nil
}
