package course

import (
	"io"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/ecolehq/ecole/core"
)

// Enrollment statuses
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusDropped   = "dropped"
)

type Course struct {
	ID            string      `json:"id"`
	Title         string      `json:"title"`
	Description   null.String `json:"description"`
	Level         string      `json:"level"` // CEFR: A1..C2
	Price         int64       `json:"price"` // cents
	DurationWeeks int         `json:"duration_weeks"`
	ImageURL      null.String `json:"image_url"`
	IsFeatured    bool        `json:"is_featured"`
	InstructorID  null.String `json:"instructor_id"`
	CreatedAt     time.Time   `json:"created_at"` // UTC
	UpdatedAt     time.Time   `json:"updated_at"` // UTC

	Lessons []Lesson `json:"lessons,omitempty"`
}

// Lesson belongs to a Course; OrderNumber defines the navigation sequence and
// is unique within the course.
type Lesson struct {
	ID              string      `json:"id"`
	CourseID        string      `json:"course_id"`
	Title           string      `json:"title"`
	Description     null.String `json:"description"`
	Content         null.String `json:"content"`
	OrderNumber     int         `json:"order_number"`
	DurationMinutes null.Int    `json:"duration_minutes"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

type Enrollment struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	CourseID    string    `json:"course_id"`
	Status      string    `json:"status"`
	EnrolledAt  time.Time `json:"enrolled_at"`
	CompletedAt null.Time `json:"completed_at"`
}

type LessonProgress struct {
	ID             string      `json:"id"`
	UserID         string      `json:"user_id"`
	LessonID       string      `json:"lesson_id"`
	Completed      bool        `json:"completed"`
	LastAccessedAt time.Time   `json:"last_accessed_at"`
	Notes          null.String `json:"notes"`
}

// Progress summarizes a user's completion of a course.
type Progress struct {
	CompletedLessons int `json:"completed_lessons"`
	TotalLessons     int `json:"total_lessons"`
	Percent          int `json:"percent"`
}

// NewProgress derives the percentage; a course with no lessons is 0%.
func NewProgress(completed, total int) Progress {
	p := Progress{CompletedLessons: completed, TotalLessons: total}
	if total > 0 {
		p.Percent = int(math.Round(float64(completed) / float64(total) * 100))
	}
	return p
}

// UserEnrollment is an Enrollment joined with its Course and derived Progress
// for dashboard listings.
type UserEnrollment struct {
	Enrollment
	Course   Course   `json:"course"`
	Progress Progress `json:"progress"`
}

// Material is the metadata row for an uploaded course material or lesson
// content object; the binary lives in storage.
type Material struct {
	ID          string      `json:"id"`
	CourseID    string      `json:"course_id,omitempty"`
	LessonID    string      `json:"lesson_id,omitempty"`
	Title       string      `json:"title"`
	Description null.String `json:"description"`
	FileURL     string      `json:"file_url"`
	FileName    string      `json:"file_name"`
	FileType    string      `json:"file_type"`
	FileSize    int64       `json:"file_size"`
	UploadedBy  string      `json:"uploaded_by"`
	CreatedAt   time.Time   `json:"created_at"`
}

// NewCourse contains information needed to create a new Course.
type NewCourse struct {
	Title         string `json:"title" validate:"required"`
	Description   string `json:"description"`
	Level         string `json:"level" validate:"required,courselevel"`
	Price         int64  `json:"price" validate:"gte=0"`
	DurationWeeks int    `json:"duration_weeks" validate:"gte=1"`
	ImageURL      string `json:"image_url" validate:"omitempty,url"`
	IsFeatured    bool   `json:"is_featured"`
	InstructorID  string `json:"instructor_id" validate:"omitempty,uuid4"`
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Title = core.CleanString(nc.Title)
	nc.Description = core.CleanString(nc.Description)
	return validate.Struct(nc)
}

// UpdateCourse defines what information may be provided to modify a Course.
type UpdateCourse struct {
	Title         string  `json:"title"`
	Description   *string `json:"description"`
	Level         string  `json:"level" validate:"omitempty,courselevel"`
	Price         *int64  `json:"price" validate:"omitempty,gte=0"`
	DurationWeeks *int    `json:"duration_weeks" validate:"omitempty,gte=1"`
	ImageURL      *string `json:"image_url"`
	IsFeatured    *bool   `json:"is_featured"`
	InstructorID  *string `json:"instructor_id"`
}

func (uc *UpdateCourse) Validate(validate *validator.Validate) error {
	uc.Title = core.CleanString(uc.Title)
	return validate.Struct(uc)
}

type NewLesson struct {
	Title           string `json:"title" validate:"required"`
	Description     string `json:"description"`
	Content         string `json:"content"`
	OrderNumber     int    `json:"order_number" validate:"gte=1"`
	DurationMinutes int    `json:"duration_minutes" validate:"gte=0"`
}

func (nl *NewLesson) Validate(validate *validator.Validate) error {
	nl.Title = core.CleanString(nl.Title)
	return validate.Struct(nl)
}

type UpdateLesson struct {
	Title           string  `json:"title"`
	Description     *string `json:"description"`
	Content         *string `json:"content"`
	OrderNumber     *int    `json:"order_number" validate:"omitempty,gte=1"`
	DurationMinutes *int    `json:"duration_minutes" validate:"omitempty,gte=0"`
}

func (ul *UpdateLesson) Validate(validate *validator.Validate) error {
	ul.Title = core.CleanString(ul.Title)
	return validate.Struct(ul)
}

// Upload is a file plus its metadata fields as read from a multipart form.
// Size/type screening happens before any storage write.
type Upload struct {
	Title       string `validate:"required"`
	Description string
	FileName    string `validate:"required"`
	FileType    string
	FileSize    int64 `validate:"gte=0"`
	Content     io.Reader
}

func (up *Upload) Validate(validate *validator.Validate) error {
	up.Title = core.CleanString(up.Title)
	up.Description = core.CleanString(up.Description)
	return validate.Struct(up)
}

type QueryFilter struct {
	Search       string `query:"search"`
	Level        string `query:"level"`
	Featured     *bool  `query:"featured"`
	InstructorID string `query:"instructor_id"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Level == "" && qf.Featured == nil && qf.InstructorID == ""
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Level = strings.ToUpper(core.CleanString(qf.Level))
}
