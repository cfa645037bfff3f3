package handler_test

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/2001118301/bullying-detection-system/internal/ledger"
	"github.com/2001118301/bullying-detection-system/internal/users"
)

func TestReports_RequireSession(t *testing.T) {
	env := newTestEnv(t)

	paths := []struct{ method, path string }{
		{http.MethodGet, "/get_reports?role=Reporter"},
		{http.MethodGet, "/api/v1/reports?role=Reporter"},
		{http.MethodPost, "/submit_report"},
		{http.MethodPost, "/update_report"},
	}
	for _, p := range paths {
		if w := env.do(t, p.method, p.path, "", nil, ""); w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s without token: %d", p.method, p.path, w.Code)
		}
		if w := env.do(t, p.method, p.path, "garbage", nil, ""); w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s with bad token: %d", p.method, p.path, w.Code)
		}
	}
}

func TestReports_SubmitValidation(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "kid@s.test", "Reporter")

	body, ct := submitForm(t, map[string]string{"student_id": "S-1", "description": "d"}, "", nil)
	w := env.do(t, http.MethodPost, "/api/v1/reports", token, body, ct)
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "evidence") {
		t.Errorf("missing evidence: %d %s", w.Code, w.Body.String())
	}

	body, ct = submitForm(t, map[string]string{"student_id": "S-1"}, "a.png", []byte("x"))
	w = env.do(t, http.MethodPost, "/api/v1/reports", token, body, ct)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing description: %d %s", w.Code, w.Body.String())
	}
}

func TestReports_Workflow(t *testing.T) {
	env := newTestEnv(t)
	kid := env.login(t, "kid@s.test", "Reporter")
	other := env.login(t, "other@s.test", "Reporter")
	admin := env.login(t, "head@s.test", "Admin")
	validator := env.login(t, "board@s.test", "Validator")

	id := env.submit(t, kid)

	created := env.ledger.Timeline(id)[0]
	if got := created.StringField("ai_text"); got != "Potential bullying detected. Flags: insult" {
		t.Errorf("ai_text = %q", got)
	}
	if got := created.StringField("evidence"); got != id+"_clip.png" {
		t.Errorf("evidence = %q", got)
	}

	// Reporter view via the legacy route is an array of timelines.
	w := env.do(t, http.MethodGet, "/get_reports?role=Reporter", kid, nil, "")
	var timelines [][]ledger.Block
	if err := json.Unmarshal(w.Body.Bytes(), &timelines); err != nil || len(timelines) != 1 {
		t.Fatalf("reporter view: %v %s", err, w.Body.String())
	}
	w = env.do(t, http.MethodGet, "/get_reports?role=Reporter", other, nil, "")
	json.Unmarshal(w.Body.Bytes(), &timelines)
	if len(timelines) != 0 {
		t.Errorf("other reporter sees %d reports", len(timelines))
	}

	// Reporter cannot ask for the admin view.
	if w := env.do(t, http.MethodGet, "/get_reports?role=Admin", kid, nil, ""); w.Code != http.StatusForbidden {
		t.Errorf("reporter admin view: %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/get_reports?role=Nope", admin, nil, ""); w.Code != http.StatusBadRequest {
		t.Errorf("invalid role: %d", w.Code)
	}

	// Reporter cannot update.
	if w := env.postJSON(t, "/update_report", kid, map[string]string{
		"report_id": id, "action_type": "Closed",
	}); w.Code != http.StatusForbidden {
		t.Errorf("reporter update: %d", w.Code)
	}
	if w := env.postJSON(t, "/update_report", admin, map[string]string{
		"report_id": "missing", "action_type": "Closed",
	}); w.Code != http.StatusNotFound {
		t.Errorf("unknown report update: %d", w.Code)
	}
	if w := env.postJSON(t, "/update_report", admin, map[string]string{"report_id": id}); w.Code != http.StatusBadRequest {
		t.Errorf("missing action update: %d", w.Code)
	}

	// Validator sees nothing until escalation.
	w = env.do(t, http.MethodGet, "/get_reports?role=Validator", validator, nil, "")
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("validator before escalation: %s", w.Body.String())
	}

	if w := env.postJSON(t, "/update_report", admin, map[string]string{
		"report_id": id, "action_type": ledger.ActionEscalated, "remarks": "repeat",
	}); w.Code != http.StatusOK {
		t.Fatalf("escalate: %d %s", w.Code, w.Body.String())
	}
	if w := env.postJSON(t, "/api/v1/reports/"+id+"/updates", validator, map[string]string{
		"action_type": ledger.ActionValidated, "remarks": "confirmed",
	}); w.Code != http.StatusOK {
		t.Fatalf("validate: %d %s", w.Code, w.Body.String())
	}

	// Admin legacy view is keyed by report id.
	w = env.do(t, http.MethodGet, "/get_reports?role=Admin", admin, nil, "")
	var byID map[string][]ledger.Block
	if err := json.Unmarshal(w.Body.Bytes(), &byID); err != nil {
		t.Fatalf("admin view: %v", err)
	}
	tl := byID[id]
	if len(tl) != 3 {
		t.Fatalf("timeline length = %d, want 3", len(tl))
	}
	if tl[1].Actor != string(users.RoleAdmin) || tl[2].Actor != string(users.RoleValidator) {
		t.Errorf("actors = %q, %q", tl[1].Actor, tl[2].Actor)
	}

	// v1 listing carries derived fields.
	w = env.do(t, http.MethodGet, "/api/v1/reports?role=Validator", validator, nil, "")
	var listed struct {
		Count   int `json:"count"`
		Reports []struct {
			ReportID   string `json:"report_id"`
			Status     string `json:"status"`
			SLAOverdue bool   `json:"sla_overdue"`
		} `json:"reports"`
	}
	json.Unmarshal(w.Body.Bytes(), &listed)
	if listed.Count != 1 || listed.Reports[0].ReportID != id || listed.Reports[0].Status != ledger.ActionValidated {
		t.Errorf("v1 validator view = %+v", listed)
	}

	// Single report access.
	if w := env.do(t, http.MethodGet, "/api/v1/reports/"+id, kid, nil, ""); w.Code != http.StatusOK {
		t.Errorf("owner get: %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/v1/reports/"+id, other, nil, ""); w.Code != http.StatusNotFound {
		t.Errorf("other reporter get: %d", w.Code)
	}

	if err := env.ledger.Verify(); err != nil {
		t.Errorf("chain invalid after workflow: %v", err)
	}
}

func TestReports_ReRegistrationChangesRole(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t, "switch@s.test", "Reporter")

	env.postJSON(t, "/register", "", map[string]string{
		"user_id": "switch@s.test", "password": "pw", "role": "Admin",
	})

	// The old token still names the user, whose current role is now Admin.
	if w := env.do(t, http.MethodGet, "/get_reports?role=Admin", token, nil, ""); w.Code != http.StatusOK {
		t.Errorf("status = %d: %s", w.Code, w.Body.String())
	}
}
