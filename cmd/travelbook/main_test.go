package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/MarkoPoloResearchLab/travelbook/internal/chain"
	"github.com/MarkoPoloResearchLab/travelbook/pkg/booking"
)

func TestResolveDriver(test *testing.T) {
	dir := test.TempDir()
	testCases := []struct {
		dsn          string
		expected     string
		expectedPath string
	}{
		{dsn: "postgres://user@localhost/travelbook", expected: driverPostgres},
		{dsn: "postgresql://user@localhost/travelbook", expected: driverPostgres},
		{dsn: "sqlite://" + filepath.Join(dir, "journal.db"), expected: driverSQLite, expectedPath: filepath.Join(dir, "journal.db")},
		{dsn: ":memory:", expected: driverSQLite, expectedPath: ":memory:"},
		{dsn: filepath.Join(dir, "nested", "plain.db"), expected: driverSQLite, expectedPath: filepath.Join(dir, "nested", "plain.db")},
	}
	for _, testCase := range testCases {
		driver, path, err := resolveDriver(testCase.dsn)
		if err != nil {
			test.Fatalf("resolve %q: %v", testCase.dsn, err)
		}
		if driver != testCase.expected || path != testCase.expectedPath {
			test.Fatalf("resolve %q: got (%s, %s)", testCase.dsn, driver, path)
		}
	}
}

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	registerRuntimeFlags(cmd.Flags())
	return cmd
}

func TestLoadRuntimeConfigReadsEnvironment(test *testing.T) {
	test.Setenv("TRAVELBOOK_RPC_URL", "http://localhost:8545")
	test.Setenv("TRAVELBOOK_FINALITY_TIMEOUT", "45s")
	test.Setenv("TRAVELBOOK_QUERY_CONCURRENCY", "8")
	cmd := newConfigCommand()
	if err := cmd.Flags().Parse([]string{"--grace-period=500ms"}); err != nil {
		test.Fatalf("parse flags: %v", err)
	}

	cfg, err := loadRuntimeConfig(newViper(), cmd)
	if err != nil {
		test.Fatalf("load config: %v", err)
	}
	if cfg.RPCURL != "http://localhost:8545" {
		test.Fatalf("expected rpc url from env, got %q", cfg.RPCURL)
	}
	if cfg.FinalityTimeout != 45*time.Second || cfg.QueryConcurrency != 8 {
		test.Fatalf("unexpected env overrides: %+v", cfg)
	}
	if cfg.GracePeriod != 500*time.Millisecond {
		test.Fatalf("expected grace period flag, got %s", cfg.GracePeriod)
	}
	if cfg.DatabaseURL != defaultDatabaseURL || cfg.PollInterval != defaultPollInterval {
		test.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadRuntimeConfigRejectsBadValues(test *testing.T) {
	test.Setenv("TRAVELBOOK_QUERY_CONCURRENCY", "0")
	if _, err := loadRuntimeConfig(newViper(), newConfigCommand()); err == nil {
		test.Fatalf("expected concurrency error")
	}
}

func TestPromptConfirm(test *testing.T) {
	test.Parallel()
	var out bytes.Buffer
	confirm := promptConfirm(strings.NewReader("y\nno\n"), &out)
	request := chain.ConfirmRequest{
		Kind:        booking.CallApproval,
		Contract:    common.HexToAddress("0xd9145CCE52D386f254917e481eB44e9943F39138"),
		Method:      "approve",
		Description: "approve spending",
	}

	approved, err := confirm(context.Background(), request)
	if err != nil || !approved {
		test.Fatalf("expected approval, got %t %v", approved, err)
	}
	approved, err = confirm(context.Background(), request)
	if err != nil || approved {
		test.Fatalf("expected rejection, got %t %v", approved, err)
	}
	approved, err = confirm(context.Background(), request)
	if err != nil || approved {
		test.Fatalf("expected rejection on end of input, got %t %v", approved, err)
	}
	if !strings.Contains(out.String(), "approve spending (approve on 0xd9145CCE52D386f254917e481eB44e9943F39138)") {
		test.Fatalf("unexpected prompt %q", out.String())
	}
}

func TestProgressPrinterShowsStatusMessages(test *testing.T) {
	test.Parallel()
	var out bytes.Buffer
	printer := progressPrinter(&out)
	printer.LogOperation(context.Background(), booking.OperationLog{Operation: booking.OperationStart, AttemptID: "a", Message: "Initiating token purchase..."})
	printer.LogOperation(context.Background(), booking.OperationLog{Operation: booking.OperationStart, Message: "ignored"})
	printer.LogOperation(context.Background(), booking.OperationLog{Operation: booking.OperationReturn, AttemptID: "a", Message: "ignored"})
	printer.LogOperation(context.Background(), booking.OperationLog{Operation: booking.OperationTransition, AttemptID: "a", Message: "Creating reservation..."})

	if out.String() != "Initiating token purchase...\nCreating reservation...\n" {
		test.Fatalf("unexpected progress output %q", out.String())
	}
}

func TestParseCriteria(test *testing.T) {
	test.Parallel()
	criteria, err := parseCriteria("rome", "2025-03-01", true)
	if err != nil {
		test.Fatalf("parse: %v", err)
	}
	if criteria.Search != "rome" || !criteria.RequireHotel || criteria.Date.Day() != 1 {
		test.Fatalf("unexpected criteria %+v", criteria)
	}
	if _, err := parseCriteria("", "01/03/2025", false); err == nil {
		test.Fatalf("expected date error")
	}
}

func TestRenderReservationsMarksPartialView(test *testing.T) {
	test.Parallel()
	var out bytes.Buffer
	view := booking.ReservationView{Entries: []booking.ReservationEntry{
		{Number: 5, Reservation: &booking.Reservation{Number: 5, OfferID: 7, Price: booking.MustParseTokenAmount("0.05"), Completed: true}},
		{Number: 2, Err: booking.ErrConnectivity},
	}}
	if err := renderReservations(&out, view); err != nil {
		test.Fatalf("render: %v", err)
	}
	rendered := out.String()
	for _, fragment := range []string{"completed", "0.05", "unavailable", "1 reservation(s) could not be loaded."} {
		if !strings.Contains(rendered, fragment) {
			test.Fatalf("expected %q in %q", fragment, rendered)
		}
	}
}

func TestRenderReviews(test *testing.T) {
	test.Parallel()
	var out bytes.Buffer
	reviewer, err := booking.NewAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	if err != nil {
		test.Fatalf("address: %v", err)
	}
	reviews := []booking.Review{{Reviewer: reviewer, Comment: "smooth ride", Rating: 4, Verified: true, PostedAt: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)}}
	if err := renderReviews(&out, reviews); err != nil {
		test.Fatalf("render: %v", err)
	}
	rendered := out.String()
	for _, fragment := range []string{"smooth ride", "4/5", "true", "2026-03-01 09:30"} {
		if !strings.Contains(rendered, fragment) {
			test.Fatalf("expected %q in %q", fragment, rendered)
		}
	}

	out.Reset()
	if err := renderReviews(&out, nil); err != nil {
		test.Fatalf("render empty: %v", err)
	}
	if !strings.Contains(out.String(), "No reviews yet.") {
		test.Fatalf("unexpected empty rendering %q", out.String())
	}
}

func TestRootCommandRegistersSubcommands(test *testing.T) {
	test.Parallel()
	root := newRootCommand()
	for _, name := range []string{"serve", "offers", "reserve", "reservations", "review", "reviews", "attempts"} {
		if found, _, err := root.Find([]string{name}); err != nil || found.Name() != name {
			test.Fatalf("expected subcommand %s", name)
		}
	}
}
