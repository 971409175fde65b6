package echoapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/geoffroyotegbeye/codesens/apps/api/echo"
	"github.com/geoffroyotegbeye/codesens/core"
	"github.com/geoffroyotegbeye/codesens/core/blog"
	"github.com/geoffroyotegbeye/codesens/core/catalog"
	"github.com/geoffroyotegbeye/codesens/core/mentoring"
	"github.com/geoffroyotegbeye/codesens/core/user"
	"github.com/geoffroyotegbeye/codesens/services/callroom"
	"github.com/geoffroyotegbeye/codesens/services/email"
	"github.com/geoffroyotegbeye/codesens/storage/database/sqlxrepos"
	"github.com/geoffroyotegbeye/codesens/storage/files"
	"github.com/geoffroyotegbeye/codesens/tests"
)

// monday is a Monday, 08:00 UTC.
var monday = time.Date(2030, time.January, 7, 8, 0, 0, 0, time.UTC)

var (
	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errForbidden    = httpErr{Error: "permission denied"}
	errNotFound     = httpErr{Error: "not found"}
)

type apiFixture struct {
	srv          *Server
	conf         *core.Config
	clock        clockwork.FakeClock
	mailSvc      *emailsvc.ConsoleServiceMock
	usrRepo      user.Repository
	usrSvc       user.Service
	blogSvc      blog.Service
	catalogSvc   catalog.Service
	mentoringSvc mentoring.Service
	hub          *callroom.Hub

	admin   user.User
	mentor  user.User
	student user.User
}

func setup(t *testing.T, configure ...func(conf *core.Config)) *apiFixture {
	t.Helper()
	conf := testutil.NewConfig()
	conf.Uploads.Dir = t.TempDir()
	for _, fn := range configure {
		fn(conf)
	}
	logger := testutil.NewLogger()

	// set up DB & repos
	db := testutil.PrepareDB(t)
	usrRepo := sqlxrepos.NewUserRepository(db)

	// set up validators
	translator := core.NewTranslator()
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	catalog.InitValidators(validate, translator)
	mentoring.InitValidators(validate, translator)
	core.ParseEmailTemplates(conf, logger)

	// set up services
	clock := clockwork.NewFakeClockAt(monday)
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	usrSvc := user.NewService(usrRepo, mailSvc, nil, conf, logger)
	blogSvc := blog.NewService(sqlxrepos.NewBlogRepository(db), nil, logger)
	catalogSvc := catalog.NewService(sqlxrepos.NewCatalogRepository(db), blogSvc, usrSvc, nil, conf, logger)
	mentoringSvc := mentoring.NewService(sqlxrepos.NewMentoringRepository(db), usrSvc, mailSvc, conf, clock)

	storage, err := files.NewStorage(context.Background(), conf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })
	hub := callroom.NewHub(clock, logger, callroom.Options{})
	t.Cleanup(hub.Stop)

	// set up server
	srv := NewServer(&Options{
		Conf:           conf,
		Logger:         logger,
		DisableReqLogs: true,
		DB:             db,
		Validate:       validate,
		Translator:     translator,
		Clock:          clock,
		UserSvc:        usrSvc,
		BlogSvc:        blogSvc,
		CatalogSvc:     catalogSvc,
		MentoringSvc:   mentoringSvc,
		CallHub:        hub,
		Storage:        storage,
	})

	now := time.Now().UTC().Truncate(time.Second)
	return &apiFixture{
		srv:          srv,
		conf:         conf,
		clock:        clock,
		mailSvc:      mailSvc,
		usrRepo:      usrRepo,
		usrSvc:       usrSvc,
		blogSvc:      blogSvc,
		catalogSvc:   catalogSvc,
		mentoringSvc: mentoringSvc,
		hub:          hub,
		admin:        testutil.CreateUser(t, usrRepo, "Admin", "admin", "admin@test.com", "Tr0ub4dor&3x", []string{user.RoleAdmin}, true, now),
		mentor:       testutil.CreateUser(t, usrRepo, "Grace Mentor", "grace", "grace@test.com", "Tr0ub4dor&3x", []string{user.RoleMentor}, true, now),
		student:      testutil.CreateUser(t, usrRepo, "Sam Student", "sam", "sam@test.com", "Tr0ub4dor&3x", []string{user.RoleStudent}, true, now),
	}
}

// do serves a single request and returns its recorder.
func (f *apiFixture) do(method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, data...)
	f.srv.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) run(t *testing.T, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(tt.method, tt.path, tt.token, tt.body)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func (f *apiFixture) token(t *testing.T, usr user.User) string {
	return getToken(t, f.conf, usr)
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte // not compared when nil
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

func getToken(t *testing.T, conf *core.Config, usr user.User) string {
	t.Helper()
	jc := NewJWTConfig(conf)
	token, err := jc.GenerateToken(jc.UserClaims(usr))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

// decode unmarshals the body of rec into dest after checking its status code.
func decode(t *testing.T, rec *httptest.ResponseRecorder, wantCode int, dest interface{}) {
	t.Helper()
	require.Equal(t, wantCode, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dest), rec.Body.String())
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
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
	l1, ok1 := j1.([]interface{})
	l2, ok2 := j2.([]interface{})
	if ok1 && ok2 {
		return assert.ElementsMatch(t, l1, l2), nil
	}
	return false, nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %v", rec.Code, tt.wantCode, rec.Body.String())
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
