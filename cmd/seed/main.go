// Command seed drives a running incident service through a demo workflow for
// development: it registers one account per role, files a few reports and
// walks them through escalation and validation.
//
// Re-running is safe: registration replaces the previous account records and
// every run files new reports.
//
// Usage:
//
//	go run ./cmd/seed
//	INCIDENT_SERVER=http://localhost:5000 go run ./cmd/seed
package main

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"time"

	"github.com/2001118301/bullying-detection-system/pkg/client"
)

const defaultServer = "http://localhost:5000"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "seed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	server := os.Getenv("INCIDENT_SERVER")
	if server == "" {
		server = defaultServer
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	sessions, err := seedUsers(ctx, server)
	if err != nil {
		return fmt.Errorf("seed users: %w", err)
	}
	ids, err := seedReports(ctx, sessions[roleReporter])
	if err != nil {
		return fmt.Errorf("seed reports: %w", err)
	}
	if err := seedWorkflow(ctx, sessions, ids); err != nil {
		return fmt.Errorf("seed workflow: %w", err)
	}

	v, err := sessions[roleAdmin].VerifyLedger(ctx)
	if err != nil {
		return fmt.Errorf("verify ledger: %w", err)
	}
	if !v.Valid {
		return fmt.Errorf("ledger failed verification: %s", v.Error)
	}
	o, err := sessions[roleAdmin].LedgerOverview(ctx)
	if err != nil {
		return fmt.Errorf("ledger overview: %w", err)
	}
	fmt.Printf("\nseed complete: %d blocks, root %s\n", o.Entries, o.Root)
	return nil
}

// ── Users ────────────────────────────────────────────────────────────────────

const (
	roleReporter  = "Reporter"
	roleAdmin     = "Admin"
	roleValidator = "Validator"
)

type seedUser struct {
	Email    string
	Password string
	Role     string
	Device   string
}

var users = []seedUser{
	{Email: "reporter@school.test", Password: "reporter-pass", Role: roleReporter, Device: "demo-phone"},
	{Email: "admin@school.test", Password: "admin-pass", Role: roleAdmin},
	{Email: "validator@school.test", Password: "validator-pass", Role: roleValidator},
}

// seedUsers registers every seed user and returns a logged-in client per role.
func seedUsers(ctx context.Context, server string) (map[string]*client.Client, error) {
	sessions := make(map[string]*client.Client, len(users))
	for _, u := range users {
		c, err := client.New(server)
		if err != nil {
			return nil, err
		}
		if _, err := c.Register(ctx, client.Registration{
			UserID:     u.Email,
			Password:   u.Password,
			Role:       u.Role,
			DeviceHash: u.Device,
		}); err != nil {
			return nil, fmt.Errorf("register %s: %w", u.Email, err)
		}
		if _, err := c.Login(ctx, u.Email, u.Password, u.Device); err != nil {
			return nil, fmt.Errorf("login %s: %w", u.Email, err)
		}
		fmt.Printf("  user   %-24s %s\n", u.Email, u.Role)
		sessions[u.Role] = c
	}
	return sessions, nil
}

// ── Reports ──────────────────────────────────────────────────────────────────

type seedReport struct {
	StudentID   string
	Description string
	Witness     string
}

var reports = []seedReport{
	{
		StudentID:   "S-1001",
		Description: "He keeps pushing me in the corridor and said I will hurt you after class.",
		Witness:     "Ms. Patel",
	},
	{
		StudentID:   "S-1002",
		Description: "A group told everyone to leave her out and nobody likes you in the group chat.",
	},
	{
		StudentID:   "S-1003",
		Description: "Someone took my lunch again.",
		Witness:     "Cafeteria staff",
	},
}

func seedReports(ctx context.Context, reporter *client.Client) ([]string, error) {
	evidence, err := evidencePNG()
	if err != nil {
		return nil, err
	}
	today := time.Now().Format("2006-01-02")

	ids := make([]string, 0, len(reports))
	for i, r := range reports {
		id, err := reporter.SubmitReport(ctx, client.ReportSubmission{
			StudentID:    r.StudentID,
			Description:  r.Description,
			Witness:      r.Witness,
			Date:         today,
			EvidenceName: fmt.Sprintf("evidence-%d.png", i+1),
			Evidence:     bytes.NewReader(evidence),
		})
		if err != nil {
			return nil, fmt.Errorf("submit %s: %w", r.StudentID, err)
		}
		fmt.Printf("  report %s  student %s\n", id, r.StudentID)
		ids = append(ids, id)
	}
	return ids, nil
}

// evidencePNG renders a small placeholder photo.
func evidencePNG() ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 5), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode evidence: %w", err)
	}
	return buf.Bytes(), nil
}

// ── Workflow ─────────────────────────────────────────────────────────────────

type step struct {
	Role    string
	Action  string
	Remarks string
}

// workflows is applied to the seeded reports in order; the last report is
// left untouched so the admin queue is not empty.
var workflows = [][]step{
	{
		{Role: roleAdmin, Action: "Under Review", Remarks: "Talking to both students."},
		{Role: roleAdmin, Action: "Escalated to Validator", Remarks: "Threat of harm, needs sign-off."},
		{Role: roleValidator, Action: "Validated", Remarks: "Confirmed with witness."},
	},
	{
		{Role: roleAdmin, Action: "Escalated to Validator", Remarks: "Repeated exclusion."},
	},
}

func seedWorkflow(ctx context.Context, sessions map[string]*client.Client, ids []string) error {
	for i, steps := range workflows {
		if i >= len(ids) {
			break
		}
		for _, s := range steps {
			b, err := sessions[s.Role].UpdateReport(ctx, ids[i], s.Action, s.Remarks)
			if err != nil {
				return fmt.Errorf("%s %q on %s: %w", s.Role, s.Action, ids[i], err)
			}
			fmt.Printf("  block  #%d %-24s %s\n", b.Index, s.Action, ids[i])
		}
	}

	queue, err := sessions[roleValidator].Reports(ctx, roleValidator)
	if err != nil {
		return fmt.Errorf("validator queue: %w", err)
	}
	fmt.Printf("  validator queue: %d report(s)\n", len(queue))
	return nil
}
