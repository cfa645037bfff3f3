package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/2001118301/bullying-detection-system/internal/analysis"
	"github.com/2001118301/bullying-detection-system/internal/api/handler"
	"github.com/2001118301/bullying-detection-system/internal/evidence"
	"github.com/2001118301/bullying-detection-system/internal/identity"
	"github.com/2001118301/bullying-detection-system/internal/ledger"
	"github.com/2001118301/bullying-detection-system/internal/reports"
	"github.com/2001118301/bullying-detection-system/internal/users"
)

var ctx = context.Background()

// testEnv wires real services over a ledger in a temp dir.
type testEnv struct {
	router *gin.Engine
	ledger *ledger.Ledger
	users  *users.UserService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	logger := zap.NewNop()

	l, err := ledger.OpenFile(ctx, filepath.Join(dir, "chain.json"), logger)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	ev, err := evidence.NewStore(filepath.Join(dir, "uploads"))
	if err != nil {
		t.Fatal(err)
	}
	sessions, err := identity.NewSessionIssuer("handler-test", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	userSvc := users.NewUserService(l, logger)
	userSvc.SetHashCost(bcrypt.MinCost)
	reportSvc := reports.NewReportService(l, ev,
		analysis.NewRuleBasedTextAnalyzer(), analysis.NewEvidenceAnalyzer(), logger)

	auth := handler.NewAuthenticator(sessions, userSvc, logger)
	authH := handler.NewAuthHandler(userSvc, sessions, logger)
	reportH := handler.NewReportHandler(reportSvc, auth, logger)
	ledgerH := handler.NewLedgerHandler(l, logger)
	evidenceH := handler.NewEvidenceHandler(ev)

	r := gin.New()
	v1 := r.Group("/api/v1")
	authH.Register(v1)
	reportH.Register(v1)
	ledgerH.Register(v1)
	root := &r.RouterGroup
	authH.Register(root)
	reportH.RegisterCompat(root)
	evidenceH.Register(root)
	r.GET("/healthz", ledgerH.Health)

	return &testEnv{router: r, ledger: l, users: userSvc}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) postJSON(t *testing.T, path, token string, v any) *httptest.ResponseRecorder {
	t.Helper()
	raw, _ := json.Marshal(v)
	return e.do(t, http.MethodPost, path, token, bytes.NewReader(raw), "application/json")
}

// login registers userID with role and returns a session token.
func (e *testEnv) login(t *testing.T, userID, role string) string {
	t.Helper()
	if w := e.postJSON(t, "/register", "", map[string]string{
		"user_id": userID, "password": "pw", "role": role,
	}); w.Code != http.StatusOK {
		t.Fatalf("register %s: %d %s", userID, w.Code, w.Body.String())
	}
	w := e.postJSON(t, "/login", "", map[string]string{"user_id": userID, "password": "pw"})
	if w.Code != http.StatusOK {
		t.Fatalf("login %s: %d %s", userID, w.Code, w.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	return resp.Token
}

// submitForm builds a multipart report submission.
func submitForm(t *testing.T, fields map[string]string, filename string, content []byte) (io.Reader, string) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		w.WriteField(k, v)
	}
	if filename != "" {
		part, err := w.CreateFormFile("evidence", filename)
		if err != nil {
			t.Fatal(err)
		}
		part.Write(content)
	}
	w.Close()
	return &body, w.FormDataContentType()
}

func (e *testEnv) submit(t *testing.T, token string) string {
	t.Helper()
	body, ct := submitForm(t, map[string]string{
		"student_id":  "S-7",
		"description": "they called him a loser every day",
		"witness":     "Jo",
		"date":        "2026-02-01",
	}, "clip.png", []byte("not really a png"))
	w := e.do(t, http.MethodPost, "/submit_report", token, body, ct)
	if w.Code != http.StatusOK {
		t.Fatalf("submit: %d %s", w.Code, w.Body.String())
	}
	var resp struct {
		ReportID string `json:"report_id"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.ReportID == "" {
		t.Fatalf("no report id in %s", w.Body.String())
	}
	return resp.ReportID
}
