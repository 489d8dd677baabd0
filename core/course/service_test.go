package course_test

import (
	"os"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecolehq/ecole/core/course"
	"github.com/ecolehq/ecole/core/storage"
	"github.com/ecolehq/ecole/core/user"
	dummydb "github.com/ecolehq/ecole/storage/database/dummy"
)

func newTestService(t *testing.T) (course.ServiceInterface, afero.Fs) {
	t.Helper()

	fs := afero.NewMemMapFs()
	store, err := storage.NewFileStore(fs, "/media", "http://localhost:8000/media")
	require.NoError(t, err)

	db, err := dummydb.Open()
	require.NoError(t, err)
	return course.NewService(dummydb.NewCourseRepository(db), store), fs
}

func createCourse(t *testing.T, svc course.ServiceInterface) course.Course {
	t.Helper()
	crs, err := svc.CreateCourse(course.NewCourse{Title: "French for Beginners", Level: "A1", DurationWeeks: 8})
	require.NoError(t, err)
	return crs
}

func createLesson(t *testing.T, svc course.ServiceInterface, courseID string, order int) course.Lesson {
	t.Helper()
	lsn, err := svc.CreateLesson(courseID, course.NewLesson{Title: "Greetings", OrderNumber: order})
	require.NoError(t, err)
	return lsn
}

var (
	student = user.User{ID: "6a5c9a5e-0f35-4a3e-9d20-111111111111", Role: user.RoleStudent}
	admin   = user.User{ID: "6a5c9a5e-0f35-4a3e-9d20-222222222222", Role: user.RoleAdmin}
)

func TestService_Enroll(t *testing.T) {
	svc, _ := newTestService(t)
	crs := createCourse(t, svc)

	enr, err := svc.Enroll(student, crs.ID)
	require.NoError(t, err)
	assert.Equal(t, course.StatusActive, enr.Status)
	assert.Equal(t, student.ID, enr.UserID)

	// a second enrollment is refused and no extra row is created
	_, err = svc.Enroll(student, crs.ID)
	assert.Equal(t, course.ErrAlreadyEnrolled, errors.Cause(err))

	enrs, err := svc.UserEnrollments(student)
	require.NoError(t, err)
	assert.Len(t, enrs, 1)
}

func TestService_Enroll_courseNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Enroll(student, "deadbeef-0000-0000-0000-000000000000")
	assert.Equal(t, course.ErrCourseNotFound, errors.Cause(err))
}

func TestService_CreateLesson_orderTaken(t *testing.T) {
	svc, _ := newTestService(t)
	crs := createCourse(t, svc)
	createLesson(t, svc, crs.ID, 1)

	_, err := svc.CreateLesson(crs.ID, course.NewLesson{Title: "Numbers", OrderNumber: 1})
	assert.Equal(t, course.ErrOrderNumberTaken, errors.Cause(err))
}

func TestService_CourseProgress(t *testing.T) {
	svc, _ := newTestService(t)
	crs := createCourse(t, svc)

	_, err := svc.Enroll(student, crs.ID)
	require.NoError(t, err)

	t.Run("no lessons is 0%", func(t *testing.T) {
		prog, err := svc.CourseProgress(student, crs.ID)
		require.NoError(t, err)
		assert.Equal(t, course.Progress{CompletedLessons: 0, TotalLessons: 0, Percent: 0}, prog)
	})

	l1 := createLesson(t, svc, crs.ID, 1)
	createLesson(t, svc, crs.ID, 2)
	createLesson(t, svc, crs.ID, 3)

	t.Run("partial completion rounds", func(t *testing.T) {
		_, err := svc.MarkComplete(student, l1.ID)
		require.NoError(t, err)

		prog, err := svc.CourseProgress(student, crs.ID)
		require.NoError(t, err)
		assert.Equal(t, course.Progress{CompletedLessons: 1, TotalLessons: 3, Percent: 33}, prog)
	})

	t.Run("marking complete twice counts once", func(t *testing.T) {
		_, err := svc.MarkComplete(student, l1.ID)
		require.NoError(t, err)

		prog, err := svc.CourseProgress(student, crs.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, prog.CompletedLessons)
	})
}

func TestService_ViewLesson(t *testing.T) {
	svc, _ := newTestService(t)
	crs := createCourse(t, svc)
	lsn := createLesson(t, svc, crs.ID, 1)

	t.Run("not enrolled", func(t *testing.T) {
		_, _, err := svc.ViewLesson(student, lsn.ID)
		assert.Equal(t, course.ErrNotEnrolled, errors.Cause(err))
	})

	t.Run("staff needs no enrollment", func(t *testing.T) {
		_, prog, err := svc.ViewLesson(admin, lsn.ID)
		require.NoError(t, err)
		assert.False(t, prog.Completed)
	})

	t.Run("enrolled", func(t *testing.T) {
		_, err := svc.Enroll(student, crs.ID)
		require.NoError(t, err)

		_, prog, err := svc.ViewLesson(student, lsn.ID)
		require.NoError(t, err)
		assert.False(t, prog.Completed)
		assert.False(t, prog.LastAccessedAt.IsZero())
	})

	t.Run("access does not unset completion", func(t *testing.T) {
		_, err := svc.MarkComplete(student, lsn.ID)
		require.NoError(t, err)

		_, prog, err := svc.ViewLesson(student, lsn.ID)
		require.NoError(t, err)
		assert.True(t, prog.Completed)
	})
}

func TestService_UpdateNotes(t *testing.T) {
	svc, _ := newTestService(t)
	crs := createCourse(t, svc)
	lsn := createLesson(t, svc, crs.ID, 1)
	_, err := svc.Enroll(student, crs.ID)
	require.NoError(t, err)

	prog, err := svc.UpdateNotes(student, lsn.ID, "bonjour = hello")
	require.NoError(t, err)
	assert.Equal(t, "bonjour = hello", prog.Notes.String)
}

func countObjects(t *testing.T, fs afero.Fs) int {
	t.Helper()
	var n int
	err := afero.Walk(fs, "/media", func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			n++
		}
		return nil
	})
	require.NoError(t, err)
	return n
}

func TestService_AddCourseMaterial(t *testing.T) {
	svc, fs := newTestService(t)
	crs := createCourse(t, svc)

	up := course.Upload{
		Title:    "Syllabus",
		FileName: "syllabus.pdf",
		FileType: "application/pdf",
		FileSize: 42,
		Content:  strings.NewReader(strings.Repeat("x", 42)),
	}
	m, err := svc.AddCourseMaterial(admin, crs.ID, up)
	require.NoError(t, err)
	assert.Equal(t, crs.ID, m.CourseID)
	assert.Equal(t, admin.ID, m.UploadedBy)
	assert.Contains(t, m.FileURL, storage.CourseMaterialsBucket)
	assert.Equal(t, 1, countObjects(t, fs))

	materials, err := svc.CourseMaterials(admin, crs.ID)
	require.NoError(t, err)
	assert.Len(t, materials, 1)
}

func TestService_AddCourseMaterial_tooLarge(t *testing.T) {
	svc, fs := newTestService(t)
	crs := createCourse(t, svc)

	up := course.Upload{
		Title:    "Archive",
		FileName: "archive.zip",
		FileSize: storage.MaxSize(storage.CourseMaterialsBucket) + 1,
		Content:  strings.NewReader("x"),
	}
	_, err := svc.AddCourseMaterial(admin, crs.ID, up)
	assert.Equal(t, storage.ErrTooLarge, errors.Cause(err))

	// nothing stored, nothing recorded
	assert.Equal(t, 0, countObjects(t, fs))
	materials, err := svc.CourseMaterials(admin, crs.ID)
	require.NoError(t, err)
	assert.Empty(t, materials)
}

// failingMaterialRepo breaks the metadata write so the cleanup path can be
// observed.
type failingMaterialRepo struct {
	course.Repository
}

func (repo failingMaterialRepo) CreateMaterial(course.Material) (course.Material, error) {
	return course.Material{}, errors.New("insert failed")
}

func TestService_AddCourseMaterial_metadataFailureRemovesObject(t *testing.T) {
	fs := afero.NewMemMapFs()
	store, err := storage.NewFileStore(fs, "/media", "http://localhost:8000/media")
	require.NoError(t, err)

	db, err := dummydb.Open()
	require.NoError(t, err)
	repo := dummydb.NewCourseRepository(db)
	svc := course.NewService(failingMaterialRepo{repo}, store)

	crs, err := svc.CreateCourse(course.NewCourse{Title: "French for Beginners", Level: "A1", DurationWeeks: 8})
	require.NoError(t, err)

	up := course.Upload{
		Title:    "Syllabus",
		FileName: "syllabus.pdf",
		FileSize: 3,
		Content:  strings.NewReader("pdf"),
	}
	_, err = svc.AddCourseMaterial(admin, crs.ID, up)
	require.Error(t, err)
	assert.Equal(t, 0, countObjects(t, fs))
}

func TestService_CourseMaterials_studentNeedsEnrollment(t *testing.T) {
	svc, _ := newTestService(t)
	crs := createCourse(t, svc)

	_, err := svc.CourseMaterials(student, crs.ID)
	assert.Equal(t, course.ErrNotEnrolled, errors.Cause(err))

	_, err = svc.Enroll(student, crs.ID)
	require.NoError(t, err)

	materials, err := svc.CourseMaterials(student, crs.ID)
	require.NoError(t, err)
	assert.Empty(t, materials)
}

func TestService_AddLessonContent(t *testing.T) {
	svc, fs := newTestService(t)
	crs := createCourse(t, svc)
	lsn := createLesson(t, svc, crs.ID, 1)

	up := course.Upload{
		Title:    "Audio",
		FileName: "greetings.mp3",
		FileType: "audio/mpeg",
		FileSize: 5,
		Content:  strings.NewReader("audio"),
	}
	m, err := svc.AddLessonContent(admin, lsn.ID, up)
	require.NoError(t, err)
	assert.Equal(t, lsn.ID, m.LessonID)
	assert.Contains(t, m.FileURL, storage.LessonContentBucket)
	assert.Equal(t, 1, countObjects(t, fs))

	contents, err := svc.LessonContents(admin, lsn.ID)
	require.NoError(t, err)
	assert.Len(t, contents, 1)
}
