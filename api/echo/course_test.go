package echoapi

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecolehq/ecole/core/course"
	"github.com/ecolehq/ecole/core/user"
)

func createTestCourse(t *testing.T, svc course.ServiceInterface, title string, featured bool) course.Course {
	t.Helper()
	crs, err := svc.CreateCourse(course.NewCourse{
		Title:         title,
		Level:         "A1",
		Price:         4900,
		DurationWeeks: 8,
		IsFeatured:    featured,
	})
	if err != nil {
		t.Fatalf("createTestCourse(): %v", err)
	}
	return crs
}

func createTestLesson(t *testing.T, svc course.ServiceInterface, courseID string, order int) course.Lesson {
	t.Helper()
	lsn, err := svc.CreateLesson(courseID, course.NewLesson{Title: "Greetings", OrderNumber: order})
	if err != nil {
		t.Fatalf("createTestLesson(): %v", err)
	}
	return lsn
}

func Test_courseApi_catalog(t *testing.T) {
	app, deps := setup(t)
	crs1 := createTestCourse(t, deps.courseSvc, "French for Beginners", true)
	crs2 := createTestCourse(t, deps.courseSvc, "Conversational French", false)

	t.Run("public listing", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/v1/courses")
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), crs1.Title)
		assert.Contains(t, rec.Body.String(), crs2.Title)
	})

	t.Run("featured filter", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/v1/courses?featured=true")
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), crs1.Title)
		assert.NotContains(t, rec.Body.String(), crs2.Title)
	})

	t.Run("detail includes lessons in order", func(t *testing.T) {
		createTestLesson(t, deps.courseSvc, crs1.ID, 2)
		createTestLesson(t, deps.courseSvc, crs1.ID, 1)

		req, rec := newRequest(http.MethodGet, "/v1/courses/"+crs1.ID)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var got course.Course
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		require.Len(t, got.Lessons, 2)
		assert.Equal(t, 1, got.Lessons[0].OrderNumber)
		assert.Equal(t, 2, got.Lessons[1].OrderNumber)
	})

	t.Run("unknown course", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/v1/courses/deadbeef-0000-0000-0000-000000000000")
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func Test_courseApi_management(t *testing.T) {
	app, deps := setup(t)
	student := createUser(t, deps.usrSvc, "Awa", "awa@test.local", "passwd123", user.RoleStudent, true)
	instructor := createUser(t, deps.usrSvc, "Prof", "prof@test.local", "passwd123", user.RoleInstructor, true)
	admin := createUser(t, deps.usrSvc, "Root", "admin@test.local", "passwd123", user.RoleAdmin, true)

	newCourseBody := []byte(`{"title":"French for Beginners","level":"A1","price":4900,"duration_weeks":8}`)

	tests := []httpTest{
		{
			name:     "anonymous cannot create",
			method:   http.MethodPost,
			path:     "/v1/courses",
			body:     newCourseBody,
			wantCode: http.StatusUnauthorized,
			wantData: marshallObj(t, errMissingToken),
		},
		{
			name:     "student cannot create",
			method:   http.MethodPost,
			path:     "/v1/courses",
			body:     newCourseBody,
			token:    getToken(t, student),
			wantCode: http.StatusForbidden,
			wantData: marshallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name:     "instructor cannot create",
			method:   http.MethodPost,
			path:     "/v1/courses",
			body:     newCourseBody,
			token:    getToken(t, instructor),
			wantCode: http.StatusForbidden,
			wantData: marshallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name:     "admin can create",
			method:   http.MethodPost,
			path:     "/v1/courses",
			body:     newCourseBody,
			token:    getToken(t, admin),
			wantCode: http.StatusCreated,
		},
		{
			name:     "bad level is rejected",
			method:   http.MethodPost,
			path:     "/v1/courses",
			body:     []byte(`{"title":"Bad","level":"Z9","duration_weeks":8}`),
			token:    getToken(t, admin),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"level": "must be one of A1, A2, B1, B2, C1, C2"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("only admin deletes courses", func(t *testing.T) {
		crs := createTestCourse(t, deps.courseSvc, "Doomed", false)

		req, rec := newAuthRequest(http.MethodDelete, "/v1/courses/"+crs.ID, getToken(t, instructor))
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		req, rec = newAuthRequest(http.MethodDelete, "/v1/courses/"+crs.ID, getToken(t, admin))
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("duplicate lesson order is rejected", func(t *testing.T) {
		crs := createTestCourse(t, deps.courseSvc, "Ordered", false)
		createTestLesson(t, deps.courseSvc, crs.ID, 1)

		body := []byte(`{"title":"Numbers","order_number":1}`)
		req, rec := newAuthRequest(http.MethodPost, "/v1/courses/"+crs.ID+"/lessons", getToken(t, admin), body)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), course.ErrOrderNumberTaken.Error())
	})

	t.Run("role change takes effect without a new token", func(t *testing.T) {
		demoted := createUser(t, deps.usrSvc, "Eve", "eve@test.local", "passwd123", user.RoleAdmin, true)
		token := getToken(t, demoted)

		_, err := deps.usrSvc.Update(demoted, user.UpdateUser{Role: user.RoleStudent})
		require.NoError(t, err)

		req, rec := newAuthRequest(http.MethodPost, "/v1/courses", token, newCourseBody)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func Test_courseApi_enroll(t *testing.T) {
	app, deps := setup(t)
	student := createUser(t, deps.usrSvc, "Awa", "awa@test.local", "passwd123", user.RoleStudent, true)
	crs := createTestCourse(t, deps.courseSvc, "French for Beginners", false)
	token := getToken(t, student)

	t.Run("first enrollment succeeds", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/courses/"+crs.ID+"/enroll", token)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	})

	t.Run("second enrollment conflicts", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/courses/"+crs.ID+"/enroll", token)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), course.ErrAlreadyEnrolled.Error())
	})

	t.Run("enrollments listing carries course and progress", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/enrollments", token)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var got []course.UserEnrollment
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		require.Len(t, got, 1)
		assert.Equal(t, crs.ID, got[0].Course.ID)
		assert.Equal(t, 0, got[0].Progress.Percent)
	})

	t.Run("unknown course is not found", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/courses/deadbeef-0000-0000-0000-000000000000/enroll", token)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func Test_courseApi_lessonProgress(t *testing.T) {
	app, deps := setup(t)
	student := createUser(t, deps.usrSvc, "Awa", "awa@test.local", "passwd123", user.RoleStudent, true)
	outsider := createUser(t, deps.usrSvc, "Joe", "joe@test.local", "passwd123", user.RoleStudent, true)
	crs := createTestCourse(t, deps.courseSvc, "French for Beginners", false)
	l1 := createTestLesson(t, deps.courseSvc, crs.ID, 1)
	createTestLesson(t, deps.courseSvc, crs.ID, 2)

	_, err := deps.courseSvc.Enroll(student, crs.ID)
	require.NoError(t, err)
	token := getToken(t, student)

	t.Run("outsider cannot view lessons", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/lessons/"+l1.ID, getToken(t, outsider))
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Body.String(), course.ErrNotEnrolled.Error())
	})

	t.Run("viewing records access", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/lessons/"+l1.ID, token)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		prog, err := deps.courseSvc.CourseProgress(student, crs.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, prog.CompletedLessons)
	})

	t.Run("completing moves progress", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/lessons/"+l1.ID+"/complete", token)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		req, rec = newAuthRequest(http.MethodGet, "/v1/courses/"+crs.ID+"/progress", token)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var prog course.Progress
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &prog))
		assert.Equal(t, course.Progress{CompletedLessons: 1, TotalLessons: 2, Percent: 50}, prog)
	})

	t.Run("notes are saved", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/v1/lessons/"+l1.ID+"/notes", token, []byte(`{"notes":"bonjour = hello"}`))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Contains(t, rec.Body.String(), "bonjour = hello")
	})
}

func Test_courseApi_materials(t *testing.T) {
	app, deps := setup(t)
	student := createUser(t, deps.usrSvc, "Awa", "awa@test.local", "passwd123", user.RoleStudent, true)
	instructor := createUser(t, deps.usrSvc, "Prof", "prof@test.local", "passwd123", user.RoleInstructor, true)
	admin := createUser(t, deps.usrSvc, "Root", "admin@test.local", "passwd123", user.RoleAdmin, true)
	crs := createTestCourse(t, deps.courseSvc, "French for Beginners", false)
	lsn := createTestLesson(t, deps.courseSvc, crs.ID, 1)

	t.Run("student cannot upload", func(t *testing.T) {
		req, rec := newUploadRequest(t, http.MethodPost, "/v1/courses/"+crs.ID+"/materials",
			getToken(t, student), "syllabus.pdf", "pdf", map[string]string{"title": "Syllabus"})
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("instructor upload succeeds", func(t *testing.T) {
		req, rec := newUploadRequest(t, http.MethodPost, "/v1/courses/"+crs.ID+"/materials",
			getToken(t, instructor), "syllabus.pdf", "pdf", map[string]string{"title": "Syllabus"})
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var m course.Material
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
		assert.Equal(t, crs.ID, m.CourseID)
		assert.Equal(t, instructor.ID, m.UploadedBy)
	})

	t.Run("missing title is rejected", func(t *testing.T) {
		req, rec := newUploadRequest(t, http.MethodPost, "/v1/courses/"+crs.ID+"/materials",
			getToken(t, admin), "syllabus.pdf", "pdf", nil)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("listing requires enrollment", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/courses/"+crs.ID+"/materials", getToken(t, student))
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)

		_, err := deps.courseSvc.Enroll(student, crs.ID)
		require.NoError(t, err)

		req, rec = newAuthRequest(http.MethodGet, "/v1/courses/"+crs.ID+"/materials", getToken(t, student))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Syllabus")
	})

	t.Run("lesson content", func(t *testing.T) {
		req, rec := newUploadRequest(t, http.MethodPost, "/v1/lessons/"+lsn.ID+"/content",
			getToken(t, admin), "audio.mp3", "audio", map[string]string{"title": "Audio"})
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		req, rec = newAuthRequest(http.MethodGet, "/v1/lessons/"+lsn.ID+"/content", getToken(t, student))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Audio")
	})
}

func Test_contactApi_create(t *testing.T) {
	app, deps := setup(t)

	tests := []httpTest{
		{
			name:     "valid message",
			body:     []byte(`{"name":"Joe","email":"joe@test.local","message":"Do you offer evening classes?"}`),
			wantCode: http.StatusCreated,
		},
		{
			name:     "missing message",
			body:     []byte(`{"name":"Joe","email":"joe@test.local"}`),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "bad email",
			body:     []byte(`{"name":"Joe","email":"nope","message":"hi"}`),
			wantCode: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/v1/contact", tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("message is persisted", func(t *testing.T) {
		msgs, err := deps.contactSvc.QueryAll()
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.False(t, msgs[0].Responded)
	})
}
