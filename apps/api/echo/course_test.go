package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoffroyotegbeye/codesens/core/catalog"
)

func courseSlugs(courses []catalog.Course) []string {
	slugs := make([]string, 0, len(courses))
	for _, c := range courses {
		slugs = append(slugs, c.Slug)
	}
	return slugs
}

func Test_courseApi(t *testing.T) {
	f := setup(t)
	adminToken := f.token(t, f.admin)
	studentToken := f.token(t, f.student)

	t.Run("create", func(t *testing.T) {
		rec := f.do(http.MethodPost, "/api/v1/courses", f.token(t, f.mentor), []byte(`{"title":"Go"}`))
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = f.do(http.MethodPost, "/api/v1/courses", adminToken, []byte(`{"title":"Go","level":"expert","currency":"eur"}`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"level":"must be one of beginner, intermediate or advanced","currency":"must be a 3-letter uppercase currency code"}`,
			rec.Body.String())

		rec = f.do(http.MethodPost, "/api/v1/courses", adminToken, []byte(`{"title":"Go","instructor_id":"`+f.student.ID+`"}`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"instructor_id":"user cannot teach courses"}`, rec.Body.String())
	})

	var intro, advanced catalog.Course
	decode(t, f.do(http.MethodPost, "/api/v1/courses", adminToken,
		[]byte(`{"title":"Intro to Go","description":"<p>Learn <b>Go</b></p>","instructor_id":"`+f.mentor.ID+`","is_published":true}`)),
		http.StatusCreated, &intro)
	assert.Equal(t, "intro-to-go", intro.Slug)
	assert.Equal(t, catalog.LevelBeginner, intro.Level)
	assert.Equal(t, catalog.DefaultCurrency, intro.Currency)
	assert.Equal(t, "Learn Go", intro.Summary)
	assert.True(t, intro.IsFree())

	decode(t, f.do(http.MethodPost, "/api/v1/courses", adminToken,
		[]byte(`{"title":"Advanced Go","level":"advanced","price_cents":4900}`)),
		http.StatusCreated, &advanced)
	assert.False(t, advanced.IsPublished)

	t.Run("visitors only see published courses", func(t *testing.T) {
		var page catalog.CoursePage
		decode(t, f.do(http.MethodGet, "/api/v1/courses", ""), http.StatusOK, &page)
		assert.Equal(t, 1, page.Count)
		assert.Equal(t, []string{"intro-to-go"}, courseSlugs(page.Results))

		rec := f.do(http.MethodGet, "/api/v1/courses/advanced-go", studentToken)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.JSONEq(t, `{"error":"course not found"}`, rec.Body.String())

		var course catalog.Course
		decode(t, f.do(http.MethodGet, "/api/v1/courses/intro-to-go", ""), http.StatusOK, &course)
		assert.Equal(t, intro.ID, course.ID)
		assert.Equal(t, "Grace Mentor", course.InstructorName)
	})

	t.Run("admins see every course", func(t *testing.T) {
		var page catalog.CoursePage
		decode(t, f.do(http.MethodGet, "/api/v1/courses", adminToken), http.StatusOK, &page)
		assert.Equal(t, 2, page.Count)

		decode(t, f.do(http.MethodGet, "/api/v1/courses?level=advanced", adminToken), http.StatusOK, &page)
		assert.Equal(t, []string{"advanced-go"}, courseSlugs(page.Results))

		rec := f.do(http.MethodGet, "/api/v1/courses/advanced-go", adminToken)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("enrollment", func(t *testing.T) {
		rec := f.do(http.MethodPost, "/api/v1/courses/"+intro.ID+"/enrollment", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		rec = f.do(http.MethodPost, "/api/v1/courses/"+advanced.ID+"/enrollment", studentToken)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		var enr catalog.Enrollment
		decode(t, f.do(http.MethodPost, "/api/v1/courses/"+intro.ID+"/enrollment", studentToken), http.StatusCreated, &enr)
		assert.Equal(t, f.student.ID, enr.UserID)
		assert.Equal(t, intro.ID, enr.CourseID)

		rec = f.do(http.MethodPost, "/api/v1/courses/"+intro.ID+"/enrollment", studentToken)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.JSONEq(t, `{"error":"already enrolled in this course"}`, rec.Body.String())

		var enrs []catalog.Enrollment
		decode(t, f.do(http.MethodGet, "/api/v1/users/me/enrollments", studentToken), http.StatusOK, &enrs)
		require.Len(t, enrs, 1)
		require.NotNil(t, enrs[0].Course)
		assert.Equal(t, "intro-to-go", enrs[0].Course.Slug)

		rec = f.do(http.MethodDelete, "/api/v1/courses/"+intro.ID+"/enrollment", studentToken)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		rec = f.do(http.MethodDelete, "/api/v1/courses/"+intro.ID+"/enrollment", studentToken)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		decode(t, f.do(http.MethodGet, "/api/v1/users/me/enrollments", studentToken), http.StatusOK, &enrs)
		assert.Empty(t, enrs)
	})

	t.Run("update and delete", func(t *testing.T) {
		var course catalog.Course
		decode(t, f.do(http.MethodPut, "/api/v1/courses/"+advanced.ID, adminToken,
			[]byte(`{"title":"Advanced Go","level":"advanced","price_cents":4900,"is_published":true}`)),
			http.StatusOK, &course)
		assert.Equal(t, "advanced-go", course.Slug)
		assert.True(t, course.IsPublished)

		rec := f.do(http.MethodGet, "/api/v1/courses/advanced-go", "")
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = f.do(http.MethodDelete, "/api/v1/courses/"+advanced.ID, adminToken)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		rec = f.do(http.MethodGet, "/api/v1/courses/advanced-go", adminToken)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		rec = f.do(http.MethodPut, "/api/v1/courses/"+advanced.ID, adminToken, []byte(`{"title":"Gone"}`))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
