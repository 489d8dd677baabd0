package echoapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecolehq/ecole/core/user"
)

func Test_userApi_register(t *testing.T) {
	app, deps := setup(t)
	createUser(t, deps.usrSvc, "Awa", "awa@test.local", "passwd123", user.RoleStudent, true)

	tests := []httpTest{
		{
			name:     "valid registration",
			body:     []byte(`{"first_name":"Joe","last_name":"Doe","email":"joe@test.local","password":"passwd123","password_confirm":"passwd123"}`),
			wantCode: http.StatusCreated,
		},
		{
			name:     "duplicate email",
			body:     []byte(`{"first_name":"Awa","last_name":"Doe","email":"awa@test.local","password":"passwd123","password_confirm":"passwd123"}`),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, map[string]string{"email": user.ErrEmailExists.Error()}),
		},
		{
			name:     "password mismatch",
			body:     []byte(`{"first_name":"Joe","last_name":"Doe","email":"joe2@test.local","password":"passwd123","password_confirm":"nope"}`),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "missing fields",
			body:     []byte(`{"email":"joe3@test.local"}`),
			wantCode: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/v1/auth/register", tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("registered user is an active student", func(t *testing.T) {
		usr, err := deps.usrSvc.GetByEmail("joe@test.local")
		require.NoError(t, err)
		assert.Equal(t, user.RoleStudent, usr.Role)
		assert.True(t, usr.IsActive)
	})
}

func Test_userApi_login(t *testing.T) {
	app, deps := setup(t)
	createUser(t, deps.usrSvc, "Awa", "awa@test.local", "passwd123", user.RoleStudent, true)
	createUser(t, deps.usrSvc, "Idle", "idle@test.local", "passwd123", user.RoleStudent, false)

	tests := []httpTest{
		{
			name:     "valid credentials",
			body:     []byte(`{"email":"awa@test.local","password":"passwd123"}`),
			wantCode: http.StatusOK,
		},
		{
			name:     "wrong password",
			body:     []byte(`{"email":"awa@test.local","password":"nope"}`),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name:     "unknown email",
			body:     []byte(`{"email":"ghost@test.local","password":"passwd123"}`),
			wantCode: http.StatusBadRequest,
			wantData: marshallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name:     "deactivated account",
			body:     []byte(`{"email":"idle@test.local","password":"passwd123"}`),
			wantCode: http.StatusForbidden,
			wantData: marshallObj(t, httpErr{Error: "account deactivated"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/v1/auth/login", tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("last login is recorded", func(t *testing.T) {
		usr, err := deps.usrSvc.GetByEmail("awa@test.local")
		require.NoError(t, err)
		assert.True(t, usr.LastLogin.Valid)
	})
}

func Test_userApi_passwordReset(t *testing.T) {
	app, deps := setup(t)
	usr := createUser(t, deps.usrSvc, "Awa", "awa@test.local", "passwd123", user.RoleStudent, true)

	t.Run("request always succeeds", func(t *testing.T) {
		for _, email := range []string{"awa@test.local", "ghost@test.local"} {
			req, rec := newRequest(http.MethodPost, "/v1/auth/password-reset", marshallObj(t, map[string]string{"email": email}))
			app.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusOK, rec.Code)
		}
	})

	t.Run("confirm with valid token", func(t *testing.T) {
		token, err := user.MakeToken(usr)
		require.NoError(t, err)

		body := marshallObj(t, map[string]string{
			"uid":              user.EncodeUID(usr),
			"token":            token,
			"password":         "newpasswd123",
			"password_confirm": "newpasswd123",
		})
		req, rec := newRequest(http.MethodPost, "/v1/auth/password-reset-confirm", body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		req, rec = newRequest(http.MethodPost, "/v1/auth/login", []byte(`{"email":"awa@test.local","password":"newpasswd123"}`))
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("confirm with garbage token", func(t *testing.T) {
		body := marshallObj(t, map[string]string{
			"uid":              user.EncodeUID(usr),
			"token":            "bogus-token",
			"password":         "newpasswd123",
			"password_confirm": "newpasswd123",
		})
		req, rec := newRequest(http.MethodPost, "/v1/auth/password-reset-confirm", body)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func Test_userApi_detail(t *testing.T) {
	app, deps := setup(t)
	student := createUser(t, deps.usrSvc, "Awa", "awa@test.local", "passwd123", user.RoleStudent, true)
	other := createUser(t, deps.usrSvc, "Joe", "joe@test.local", "passwd123", user.RoleStudent, true)
	admin := createUser(t, deps.usrSvc, "Root", "admin@test.local", "passwd123", user.RoleAdmin, true)

	studentToken := getToken(t, student)
	adminToken := getToken(t, admin)

	tests := []httpTest{
		{
			name:     "anonymous is rejected",
			method:   http.MethodGet,
			path:     "/v1/users/" + student.ID,
			wantCode: http.StatusUnauthorized,
			wantData: marshallObj(t, errMissingToken),
		},
		{
			name:     "user can read self",
			method:   http.MethodGet,
			path:     "/v1/users/" + student.ID,
			token:    studentToken,
			wantCode: http.StatusOK,
			wantData: marshallObj(t, student),
		},
		{
			name:     "user cannot read others",
			method:   http.MethodGet,
			path:     "/v1/users/" + other.ID,
			token:    studentToken,
			wantCode: http.StatusNotFound,
			wantData: marshallObj(t, httpErr{Error: "not found"}),
		},
		{
			name:     "admin can read anyone",
			method:   http.MethodGet,
			path:     "/v1/users/" + other.ID,
			token:    adminToken,
			wantCode: http.StatusOK,
			wantData: marshallObj(t, other),
		},
		{
			name:     "unknown id is not found",
			method:   http.MethodGet,
			path:     "/v1/users/deadbeef-0000-0000-0000-000000000000",
			token:    adminToken,
			wantCode: http.StatusNotFound,
			wantData: marshallObj(t, httpErr{Error: "not found"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_update(t *testing.T) {
	app, deps := setup(t)
	student := createUser(t, deps.usrSvc, "Awa", "awa@test.local", "passwd123", user.RoleStudent, true)
	admin := createUser(t, deps.usrSvc, "Root", "admin@test.local", "passwd123", user.RoleAdmin, true)

	t.Run("user can edit own profile", func(t *testing.T) {
		body := []byte(`{"first_name":"Awesome","bio":"polyglot"}`)
		req, rec := newAuthRequest(http.MethodPut, "/v1/users/"+student.ID, getToken(t, student), body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		usr, err := deps.usrSvc.GetByID(student.ID)
		require.NoError(t, err)
		assert.Equal(t, "Awesome", usr.FirstName.String)
		assert.Equal(t, "polyglot", usr.Bio.String)
	})

	t.Run("role and active flag are dropped for non-admins", func(t *testing.T) {
		body := []byte(`{"role":"admin","is_active":false,"email":"stolen@test.local"}`)
		req, rec := newAuthRequest(http.MethodPut, "/v1/users/"+student.ID, getToken(t, student), body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		usr, err := deps.usrSvc.GetByID(student.ID)
		require.NoError(t, err)
		assert.Equal(t, user.RoleStudent, usr.Role)
		assert.True(t, usr.IsActive)
		assert.Equal(t, "awa@test.local", usr.Email)
	})

	t.Run("admin can promote", func(t *testing.T) {
		body := []byte(`{"role":"instructor"}`)
		req, rec := newAuthRequest(http.MethodPut, "/v1/users/"+student.ID, getToken(t, admin), body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		usr, err := deps.usrSvc.GetByID(student.ID)
		require.NoError(t, err)
		assert.Equal(t, user.RoleInstructor, usr.Role)
	})
}

func Test_userApi_destroy(t *testing.T) {
	app, deps := setup(t)

	t.Run("self delete removes identity too", func(t *testing.T) {
		usr := createUser(t, deps.usrSvc, "Gone", "gone@test.local", "passwd123", user.RoleStudent, true)
		req, rec := newAuthRequest(http.MethodDelete, "/v1/users/"+usr.ID, getToken(t, usr))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		_, err := deps.usrSvc.GetByID(usr.ID)
		assert.Equal(t, user.ErrNotFound, err)
	})

	t.Run("admin delete keeps the identity", func(t *testing.T) {
		admin := createUser(t, deps.usrSvc, "Root", "admin@test.local", "passwd123", user.RoleAdmin, true)
		usr := createUser(t, deps.usrSvc, "Half", "half@test.local", "passwd123", user.RoleStudent, true)

		req, rec := newAuthRequest(http.MethodDelete, "/v1/users/"+usr.ID, getToken(t, admin))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		// identity survives without a profile
		left, err := deps.usrSvc.GetByID(usr.ID)
		require.NoError(t, err)
		assert.False(t, left.HasProfile())
		assert.Equal(t, "half@test.local", left.Email)
	})
}

func Test_userApi_uploadAvatar(t *testing.T) {
	app, deps := setup(t)
	student := createUser(t, deps.usrSvc, "Awa", "awa@test.local", "passwd123", user.RoleStudent, true)
	token := getToken(t, student)

	t.Run("image upload sets the avatar", func(t *testing.T) {
		req, rec := newUploadRequest(t, http.MethodPost, "/v1/users/avatar", token, "me.png", "pngdata", nil)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		usr, err := deps.usrSvc.GetByID(student.ID)
		require.NoError(t, err)
		assert.True(t, usr.AvatarURL.Valid)
		assert.Contains(t, usr.AvatarURL.String, "/media/avatars/"+student.ID+"/")
	})

	t.Run("non-image upload is rejected", func(t *testing.T) {
		before, err := deps.usrSvc.GetByID(student.ID)
		require.NoError(t, err)

		req, rec := newUploadRequest(t, http.MethodPost, "/v1/users/avatar", token, "malware.exe", "MZ...", nil)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "only image files are allowed")

		after, err := deps.usrSvc.GetByID(student.ID)
		require.NoError(t, err)
		assert.Equal(t, before.AvatarURL, after.AvatarURL)
	})
}

func Test_userApi_tokenRefresh(t *testing.T) {
	app, deps := setup(t)
	student := createUser(t, deps.usrSvc, "Awa", "awa@test.local", "passwd123", user.RoleStudent, true)

	req, rec := newAuthRequest(http.MethodPost, "/v1/auth/token-refresh", getToken(t, student))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "token")
}
