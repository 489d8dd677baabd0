package echoapi

import (
	"mime/multipart"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	gocache "github.com/patrickmn/go-cache"
	"github.com/pkg/errors"

	"github.com/ecolehq/ecole/core"
	"github.com/ecolehq/ecole/core/course"
	"github.com/ecolehq/ecole/core/user"
)

const catalogCacheKey = "catalog"

type courseApi struct {
	svc      course.ServiceInterface
	usrSvc   user.ServiceInterface
	validate *validator.Validate

	// catalog is read far more than it changes; the unfiltered listing is
	// cached and flushed on any course mutation.
	cache *gocache.Cache
}

func registerCourseAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc course.ServiceInterface,
	usrSvc user.ServiceInterface,
	validate *validator.Validate,
) {
	api := courseApi{
		svc:      svc,
		usrSvc:   usrSvc,
		validate: validate,
		cache:    gocache.New(time.Minute, 5*time.Minute),
	}

	cg := g.Group("/courses")

	// public catalog
	cg.GET("", api.query)
	cg.GET("/:id", api.retrieve)

	// management; course and lesson records are admin-only, uploads are open
	// to instructors too
	cg.POST("", api.create, jwt, adminMiddleware(usrSvc))
	cg.PUT("/:id", api.update, jwt, adminMiddleware(usrSvc))
	cg.DELETE("/:id", api.destroy, jwt, adminMiddleware(usrSvc))
	cg.POST("/:id/lessons", api.createLesson, jwt, adminMiddleware(usrSvc))
	cg.POST("/:id/materials", api.addMaterial, jwt, staffMiddleware(usrSvc))

	// learning
	cg.POST("/:id/enroll", api.enroll, jwt)
	cg.GET("/:id/progress", api.progress, jwt)
	cg.GET("/:id/materials", api.materials, jwt)

	lg := g.Group("/lessons", jwt)
	lg.GET("/:id", api.viewLesson)
	lg.PUT("/:id", api.updateLesson, adminMiddleware(usrSvc))
	lg.DELETE("/:id", api.destroyLesson, adminMiddleware(usrSvc))
	lg.POST("/:id/complete", api.completeLesson)
	lg.PUT("/:id/notes", api.updateNotes)
	lg.POST("/:id/content", api.addContent, staffMiddleware(usrSvc))
	lg.GET("/:id/content", api.contents)

	g.GET("/enrollments", api.enrollments, jwt)
}

// Courses

func (api *courseApi) query(ctx echo.Context) error {
	filter := new(course.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []course.Course{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx, "title", "level", "price", "created_at")

	cacheable := filter.IsEmpty() && len(ordering.Orderings) == 0
	if cacheable {
		if cached, ok := api.cache.Get(catalogCacheKey); ok {
			return ctx.JSON(http.StatusOK, cached.([]course.Course))
		}
	}

	courses, err := api.svc.QueryCourses(filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	if courses == nil {
		courses = []course.Course{}
	}
	if cacheable {
		api.cache.SetDefault(catalogCacheKey, courses)
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *courseApi) retrieve(ctx echo.Context) error {
	crs, err := api.svc.GetCourse(ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, crs)
}

func (api *courseApi) create(ctx echo.Context) error {
	var data course.NewCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	crs, err := api.svc.CreateCourse(data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	api.cache.Flush()
	return ctx.JSON(http.StatusCreated, crs)
}

func (api *courseApi) update(ctx echo.Context) error {
	crs, err := api.svc.GetCourse(ctx.Param("id"))
	if err != nil {
		return err
	}

	var data course.UpdateCourse
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateCourse")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	crs, err = api.svc.UpdateCourse(crs, data)
	if err != nil {
		return err
	}
	api.cache.Flush()
	return ctx.JSON(http.StatusOK, crs)
}

func (api *courseApi) destroy(ctx echo.Context) error {
	if err := api.svc.DeleteCourse(ctx.Param("id")); err != nil {
		return err
	}
	api.cache.Flush()
	return ctx.NoContent(http.StatusNoContent)
}

// Lessons

func (api *courseApi) createLesson(ctx echo.Context) error {
	var data course.NewLesson
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewLesson")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	lsn, err := api.svc.CreateLesson(ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, lsn)
}

func (api *courseApi) updateLesson(ctx echo.Context) error {
	lsn, err := api.svc.GetLesson(ctx.Param("id"))
	if err != nil {
		return err
	}

	var data course.UpdateLesson
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateLesson")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	lsn, err = api.svc.UpdateLesson(lsn, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, lsn)
}

func (api *courseApi) destroyLesson(ctx echo.Context) error {
	if err := api.svc.DeleteLesson(ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Enrollment

func (api *courseApi) enroll(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	enr, err := api.svc.Enroll(ctxUsr, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, enr)
}

func (api *courseApi) enrollments(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	enrs, err := api.svc.UserEnrollments(ctxUsr)
	if err != nil {
		return errors.Wrap(err, "querying enrollments")
	}
	if enrs == nil {
		enrs = []course.UserEnrollment{}
	}
	return ctx.JSON(http.StatusOK, enrs)
}

func (api *courseApi) progress(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	prog, err := api.svc.CourseProgress(ctxUsr, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, prog)
}

// Lesson progress

func (api *courseApi) viewLesson(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	lsn, prog, err := api.svc.ViewLesson(ctxUsr, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, LessonResponse{Lesson: lsn, Progress: prog})
}

func (api *courseApi) completeLesson(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	prog, err := api.svc.MarkComplete(ctxUsr, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, prog)
}

func (api *courseApi) updateNotes(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data NotesRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NotesRequest")
	}

	prog, err := api.svc.UpdateNotes(ctxUsr, ctx.Param("id"), core.CleanString(data.Notes))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, prog)
}

// Materials

// bindUpload reads the multipart form into an Upload; screening happens before
// any storage write. The returned file is open and must be closed by the
// caller.
func (api *courseApi) bindUpload(ctx echo.Context) (course.Upload, multipart.File, error) {
	fh, err := ctx.FormFile("file")
	if err != nil {
		return course.Upload{}, nil, core.NewValidationError(nil, core.FieldError{Field: "file", Error: "this field is required"})
	}
	f, err := fh.Open()
	if err != nil {
		return course.Upload{}, nil, errors.Wrap(err, "opening upload")
	}

	up := course.Upload{
		Title:       ctx.FormValue("title"),
		Description: ctx.FormValue("description"),
		FileName:    fh.Filename,
		FileType:    fh.Header.Get("Content-Type"),
		FileSize:    fh.Size,
		Content:     f,
	}
	if err := up.Validate(api.validate); err != nil {
		_ = f.Close()
		return course.Upload{}, nil, err
	}
	return up, f, nil
}

func (api *courseApi) addMaterial(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	up, f, err := api.bindUpload(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	m, err := api.svc.AddCourseMaterial(ctxUsr, ctx.Param("id"), up)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, m)
}

func (api *courseApi) materials(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	materials, err := api.svc.CourseMaterials(ctxUsr, ctx.Param("id"))
	if err != nil {
		return err
	}
	if materials == nil {
		materials = []course.Material{}
	}
	return ctx.JSON(http.StatusOK, materials)
}

func (api *courseApi) addContent(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	up, f, err := api.bindUpload(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	m, err := api.svc.AddLessonContent(ctxUsr, ctx.Param("id"), up)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, m)
}

func (api *courseApi) contents(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	materials, err := api.svc.LessonContents(ctxUsr, ctx.Param("id"))
	if err != nil {
		return err
	}
	if materials == nil {
		materials = []course.Material{}
	}
	return ctx.JSON(http.StatusOK, materials)
}

type (
	LessonResponse struct {
		course.Lesson
		Progress course.LessonProgress `json:"progress"`
	}

	NotesRequest struct {
		Notes string `json:"notes"`
	}
)
