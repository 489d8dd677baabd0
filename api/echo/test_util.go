package echoapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"

	"github.com/ecolehq/ecole/core"
	"github.com/ecolehq/ecole/core/contact"
	"github.com/ecolehq/ecole/core/course"
	"github.com/ecolehq/ecole/core/storage"
	"github.com/ecolehq/ecole/core/user"
	emailsvc "github.com/ecolehq/ecole/services/email"
	dummydb "github.com/ecolehq/ecole/storage/database/dummy"
)

// test fixtures shared by the *_test.go files in this package

type testDeps struct {
	usrSvc     user.ServiceInterface
	courseSvc  course.ServiceInterface
	contactSvc contact.ServiceInterface
	store      storage.Store
	fs         afero.Fs
}

// testLogger drops everything; API tests assert on responses, not logs.
type testLogger struct{}

func (testLogger) Debug(string, ...interface{}) {}
func (testLogger) Info(string, ...interface{})  {}
func (testLogger) Warn(string, ...interface{})  {}
func (testLogger) Error(string, ...interface{}) {}
func (testLogger) Fatal(string, ...interface{}) {}

func initTestConf() {
	core.Conf = &core.Config{
		TestMode:                  true,
		Env:                       "TEST",
		AppName:                   "Ecole",
		SecretKey:                 []byte("secret"),
		FrontendBaseURL:           "http://localhost:3000",
		FromEmail:                 "noreply@test.local",
		ContactEmail:              "contact@test.local",
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
		Server: core.ServerConfig{
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
		Media: core.MediaConfig{
			Root:    "/media",
			BaseURL: "http://localhost:8000/media",
		},
	}
}

func setup(t *testing.T) (Server, testDeps) {
	t.Helper()
	initTestConf()

	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("setup(): %v", err)
	}

	fs := afero.NewMemMapFs()
	store, err := storage.NewFileStore(fs, core.Conf.Media.Root, core.Conf.Media.BaseURL)
	if err != nil {
		t.Fatalf("setup(): %v", err)
	}

	mailSvc := emailsvc.NewConsoleServiceMock()
	deps := testDeps{
		usrSvc:     user.NewService(dummydb.NewUserRepository(db), mailSvc),
		courseSvc:  course.NewService(dummydb.NewCourseRepository(db), store),
		contactSvc: contact.NewService(dummydb.NewContactRepository(db), mailSvc),
		store:      store,
		fs:         fs,
	}

	validate, translator := core.NewValidator()
	app := NewServer(&Options{
		DisableReqLogs: true,
		Logger:         testLogger{},
		Validate:       validate,
		Translator:     translator,
		UserSvc:        deps.usrSvc,
		CourseSvc:      deps.courseSvc,
		ContactSvc:     deps.contactSvc,
		Store:          deps.store,
	})
	return app, deps
}

func createUser(t *testing.T, svc user.ServiceInterface, firstName, email, pwd, role string, active bool) user.User {
	t.Helper()
	usr, err := svc.Create(user.NewUser{
		FirstName: firstName,
		LastName:  "Test",
		Email:     email,
		Password:  pwd,
	}, role, active)
	if err != nil {
		t.Fatalf("createUser(): %v", err)
	}
	return usr
}

type httpErr struct {
	Error string `json:"error"`
}

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

// newUploadRequest builds a multipart request with a "file" part plus form
// fields. The part's content type is derived from the filename extension the
// way browsers set it.
func newUploadRequest(t *testing.T, method, path, token, filename, content string, fields map[string]string) (*http.Request, *httptest.ResponseRecorder) {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("newUploadRequest(): %v", err)
		}
	}
	contentType := mime.TypeByExtension(filepath.Ext(filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	hdr.Set("Content-Type", contentType)
	fw, err := w.CreatePart(hdr)
	if err != nil {
		t.Fatalf("newUploadRequest(): %v", err)
	}
	if _, err = io.WriteString(fw, content); err != nil {
		t.Fatalf("newUploadRequest(): %v", err)
	}
	if err = w.Close(); err != nil {
		t.Fatalf("newUploadRequest(): %v", err)
	}

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func getToken(t *testing.T, usr user.User) string {
	t.Helper()
	claims := GetUserClaims(usr)
	token, err := GenerateToken(claims)
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj(): %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	t.Helper()
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
