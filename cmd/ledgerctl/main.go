// Command ledgerctl inspects an incident ledger chain file offline, or a
// running server's ledger over HTTP. It never creates or modifies a chain.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/2001118301/bullying-detection-system/internal/ledger"
	"github.com/2001118301/bullying-detection-system/pkg/client"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var (
	chainPath    string
	cfgFile      string
	outputFormat string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Inspect an incident ledger",
		Long: `ledgerctl reads an incident ledger chain file and prints its blocks,
report timelines, and user registrations, or verifies its hash chain.

The chain file is opened read-only; a missing file is an error.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			if cfgFile != "" {
				v.SetConfigFile(cfgFile)
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("read config: %w", err)
				}
			}
			v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
			v.AutomaticEnv()
			v.SetDefault("ledger.path", "blockchain.json")
			if !cmd.Flags().Changed("chain") {
				chainPath = v.GetString("ledger.path")
			}
			if outputFormat != "text" && outputFormat != "json" {
				return fmt.Errorf("unknown --format %q (want text or json)", outputFormat)
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&chainPath, "chain", "blockchain.json", "path of the chain file (or ledger.path in config / LEDGER_PATH)")
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "server config file to read ledger.path from")
	root.PersistentFlags().StringVar(&outputFormat, "format", "text", "output format: text or json")

	root.AddCommand(
		newVerifyCmd(),
		newShowCmd(),
		newTimelineCmd(),
		newReportsCmd(),
		newUserCmd(),
		newRemoteCmd(),
		newVersionCmd(),
	)
	return root
}

// ── chain loading ────────────────────────────────────────────────────────────

// readOnlyStore wraps a FileStore so that opening never writes.
type readOnlyStore struct {
	fs *ledger.FileStore
}

var errReadOnly = errors.New("ledgerctl opens chains read-only")

func (s readOnlyStore) Load(ctx context.Context) ([]ledger.Block, error) {
	chain, err := s.fs.Load(ctx)
	if err != nil {
		return nil, err
	}
	if chain == nil {
		return nil, fmt.Errorf("no chain file at %s", s.fs.Path())
	}
	return chain, nil
}

func (s readOnlyStore) Save(context.Context, []ledger.Block) error { return errReadOnly }

func openLedger(ctx context.Context) (*ledger.Ledger, error) {
	return ledger.Open(ctx, readOnlyStore{fs: ledger.NewFileStore(chainPath)}, zap.NewNop())
}

// ── verify ───────────────────────────────────────────────────────────────────

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Verify the hash chain and report the first broken link",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			chain, err := readOnlyStore{fs: ledger.NewFileStore(chainPath)}.Load(cmd.Context())
			if err != nil {
				return err
			}
			verr := ledger.VerifyChain(chain)
			var root string
			if len(chain) > 0 {
				root, _ = ledger.DigestBlock(chain[len(chain)-1])
			}

			out := cmd.OutOrStdout()
			if outputFormat == "json" {
				res := map[string]any{"valid": verr == nil, "entries": len(chain), "root": root}
				if verr != nil {
					res["error"] = verr.Error()
				}
				if err := writeJSON(out, res); err != nil {
					return err
				}
			} else if verr == nil {
				fmt.Fprintf(out, "chain valid: %d blocks, root %s\n", len(chain), root)
			}
			if verr != nil {
				return fmt.Errorf("chain invalid: %w", verr)
			}
			return nil
		},
	}
}

// ── show ─────────────────────────────────────────────────────────────────────

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [index]",
		Short: "Show one block, or a summary of every block",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openLedger(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				idx, err := strconv.Atoi(args[0])
				if err != nil || idx < 0 {
					return fmt.Errorf("index must be a non-negative integer, got %q", args[0])
				}
				b, err := l.Get(idx)
				if err != nil {
					return err
				}
				return writeJSON(out, b)
			}

			blocks := l.Snapshot()
			if outputFormat == "json" {
				return writeJSON(out, blocks)
			}
			printBlocks(out, blocks)
			return nil
		},
	}
}

// ── timeline ─────────────────────────────────────────────────────────────────

func newTimelineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "timeline <report-id>",
		Short: "Print every block recorded against a report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openLedger(cmd.Context())
			if err != nil {
				return err
			}
			tl := l.Timeline(args[0])
			if len(tl) == 0 {
				return fmt.Errorf("report %q not found", args[0])
			}
			out := cmd.OutOrStdout()
			if outputFormat == "json" {
				return writeJSON(out, tl)
			}
			printBlocks(out, tl)
			if ledger.Overdue(tl, time.Now()) {
				fmt.Fprintln(out, "\nSLA: overdue")
			}
			return nil
		},
	}
}

// ── reports ──────────────────────────────────────────────────────────────────

func newReportsCmd() *cobra.Command {
	var reporter string
	var escalated bool

	cmd := &cobra.Command{
		Use:   "reports",
		Short: "List reports with their current status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if reporter != "" && escalated {
				return errors.New("--reporter and --escalated are mutually exclusive")
			}
			l, err := openLedger(cmd.Context())
			if err != nil {
				return err
			}

			var timelines [][]ledger.Block
			switch {
			case reporter != "":
				timelines = l.ReportsByReporter(reporter)
			case escalated:
				timelines = l.EscalatedReports()
			default:
				all := l.AllReports()
				for _, id := range l.ReportIDs() {
					timelines = append(timelines, all[id])
				}
			}

			out := cmd.OutOrStdout()
			if outputFormat == "json" {
				return writeJSON(out, timelines)
			}

			now := time.Now()
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "REPORT\tREPORTER\tSTATUS\tBLOCKS\tSLA")
			for _, tl := range timelines {
				first, last := tl[0], tl[len(tl)-1]
				sla := "ok"
				if ledger.Overdue(tl, now) {
					sla = "overdue"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
					first.ReportID, first.StringField(ledger.FieldReporterEmail), last.ActionType, len(tl), sla)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&reporter, "reporter", "", "only reports created by this reporter email")
	cmd.Flags().BoolVar(&escalated, "escalated", false, "only reports escalated to the validator")
	return cmd
}

// ── user ─────────────────────────────────────────────────────────────────────

func newUserCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "user <user-id>",
		Short: "Show the current registration of a user (password hash omitted)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openLedger(cmd.Context())
			if err != nil {
				return err
			}
			data, err := l.ResolveUser(args[0])
			if err != nil {
				return err
			}
			delete(data, "password_hash")
			return writeJSON(cmd.OutOrStdout(), data)
		},
	}
}

// ── remote ───────────────────────────────────────────────────────────────────

func newRemoteCmd() *cobra.Command {
	var server string
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Ask a running server to verify its ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.New(server)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			o, err := c.LedgerOverview(ctx)
			if err != nil {
				return err
			}
			v, err := c.VerifyLedger(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if outputFormat == "json" {
				if err := writeJSON(out, map[string]any{"entries": o.Entries, "root": o.Root, "valid": v.Valid, "error": v.Error}); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(out, "%s: %d blocks, root %s, valid %t\n", server, o.Entries, o.Root, v.Valid)
			}
			if !v.Valid {
				return fmt.Errorf("remote chain invalid: %s", v.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", "http://localhost:5000", "server base URL")
	return cmd
}

// ── version ──────────────────────────────────────────────────────────────────

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the ledgerctl version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "ledgerctl", version)
		},
	}
}

// ── output helpers ───────────────────────────────────────────────────────────

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printBlocks(out io.Writer, blocks []ledger.Block) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tTIME\tACTION\tREPORT\tACTOR\tDATA")
	for _, b := range blocks {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			b.Index, b.Timestamp.Format(time.RFC3339), b.ActionType, dash(b.ReportID), b.Actor, summarize(b.Data))
	}
	w.Flush()
}

// summarize renders a payload as sorted key=value pairs, hiding secrets and
// truncating long values.
func summarize(data map[string]any) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := fmt.Sprint(data[k])
		if k == "password_hash" {
			v = "***"
		}
		if len(v) > 40 {
			v = v[:37] + "..."
		}
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, " ")
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
