package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

const inverters = `
(layout
  (layer 0 metal "M1")
  (template inv (size 10 10)
    (port a (at 0 5) (dir in) (diameter 1))
    (port y (at 10 5) (dir out) (diameter 1)))
  (gate g1 (template inv) (at 0 0))
  (gate g2 (template inv) (at 0 20))
  (wire w1 (layer 0) (from 0 5) (to 0 25) (diameter 1)))
`

// workspace writes a layout and an empty config into a fresh directory.
func workspace(t *testing.T) (dir, layout, conf string) {
	t.Helper()
	dir = t.TempDir()
	t.Setenv("HOME", dir)
	layout = filepath.Join(dir, "inv.otl")
	conf = filepath.Join(dir, "otn.yaml")
	if err := os.WriteFile(layout, []byte(inverters), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(conf, []byte("log:\n  level: error\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir, layout, conf
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	// Reset flags to prevent accumulation between tests
	verbose, configPath = false, ""
	netsJSON, netsKiCad, netsAll = false, false, false
	checkState, checkStrict, checkJSON, checkAll, checkMetricsFile, checkJobs = "", false, false, false, "", 0
	reviewState = ""

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

var idPattern = regexp.MustCompile(`[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)

func TestNetsE2E(t *testing.T) {
	_, layout, conf := workspace(t)

	out, err := execute(t, "nets", "--config", conf, layout)
	if err != nil {
		t.Fatalf("nets failed: %v", err)
	}
	if !strings.Contains(out, "g1.a") || !strings.Contains(out, "g2.a") || !strings.Contains(out, "w1") {
		t.Errorf("input net missing from output:\n%s", out)
	}

	out, err = execute(t, "nets", "--config", conf, "--json", layout)
	if err != nil {
		t.Fatalf("nets --json failed: %v", err)
	}
	var doc struct {
		NetCount int `json:"net_count"`
	}
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if doc.NetCount != 3 {
		t.Errorf("net_count = %d, want 3", doc.NetCount)
	}

	if _, err := execute(t, "nets", "--config", conf, "--json", "--kicad", layout); err == nil {
		t.Error("expected --json and --kicad to conflict")
	}
}

func TestCheckAndReviewE2E(t *testing.T) {
	dir, layout, conf := workspace(t)

	out, err := execute(t, "check", "--config", conf, "--strict", layout)
	if err == nil {
		t.Fatalf("expected --strict to fail with pending errors\n%s", out)
	}
	for _, want := range []string{"net.not_feeded", "open_port", "3 violation(s)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	var notFeeded string
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "net.not_feeded") {
			notFeeded = idPattern.FindString(line)
		}
	}
	if notFeeded == "" {
		t.Fatalf("no id for net.not_feeded in:\n%s", out)
	}
	ids := idPattern.FindAllString(out, -1)

	args := append([]string{"review", "accept", "--config", conf, layout}, notFeeded[:8])
	if _, err := execute(t, args...); err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	for _, id := range ids {
		if id == notFeeded {
			continue
		}
		if _, err := execute(t, "review", "reject", "--config", conf, layout, id); err != nil {
			t.Fatalf("reject failed: %v", err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "inv.review.yaml")); err != nil {
		t.Fatalf("decisions file not written: %v", err)
	}

	out, err = execute(t, "check", "--config", conf, "--strict", layout)
	if err != nil {
		t.Fatalf("check after review failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "accepted") || strings.Contains(out, "rejected ") {
		t.Errorf("unexpected review states:\n%s", out)
	}

	out, err = execute(t, "review", "list", "--config", conf, layout)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if strings.Count(out, "\n") != len(ids) {
		t.Errorf("want %d decisions, got:\n%s", len(ids), out)
	}

	if _, err := execute(t, "review", "accept", "--config", conf, layout, "zzzz"); err == nil {
		t.Error("expected unknown id to fail")
	}
}

func TestCheckGlobsE2E(t *testing.T) {
	dir, _, conf := workspace(t)
	sub := filepath.Join(dir, "boards", "alu")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "alu.otl"), []byte(inverters), 0o644); err != nil {
		t.Fatal(err)
	}

	metricsFile := filepath.Join(dir, "erc.prom")
	out, err := execute(t, "check", "--config", conf, "--json", "--metrics-file", metricsFile, filepath.Join(dir, "**", "*.otl"))
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	var reports []LayoutReport
	if err := json.Unmarshal([]byte(out), &reports); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if len(reports) != 2 {
		t.Fatalf("want 2 layouts, got %d", len(reports))
	}
	for _, r := range reports {
		if r.Summary.Total != 3 {
			t.Errorf("%s: %d violations, want 3", r.Layout, r.Summary.Total)
		}
	}

	prom, err := os.ReadFile(metricsFile)
	if err != nil {
		t.Fatalf("metrics not written: %v", err)
	}
	for _, r := range reports {
		if !strings.Contains(string(prom), `layout="`+r.Layout+`"`) {
			t.Errorf("metrics missing layout %s:\n%s", r.Layout, prom)
		}
	}

	if _, err := execute(t, "check", "--config", conf, "--state", "x.yaml", filepath.Join(dir, "**", "*.otl")); err == nil {
		t.Error("expected --state with several layouts to fail")
	}
	if _, err := execute(t, "check", "--config", conf, filepath.Join(dir, "none", "*.otl")); err == nil {
		t.Error("expected an unmatched pattern to fail")
	}
}

func TestRulesE2E(t *testing.T) {
	dir, layout, _ := workspace(t)
	rulesFile := filepath.Join(dir, "house.rules")
	conf := filepath.Join(dir, "house.yaml")
	if err := os.WriteFile(rulesFile, []byte("rule open_port { severity warning }\ndisable net.not_feeded\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(conf, []byte("checks:\n  rules_file: "+rulesFile+"\nlog:\n  level: error\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "rules", "--config", conf)
	if err != nil {
		t.Fatalf("rules failed: %v", err)
	}
	var notFeeded, openPort string
	for _, line := range strings.Split(out, "\n") {
		switch {
		case strings.HasPrefix(line, "net.not_feeded "):
			notFeeded = line
		case strings.HasPrefix(line, "open_port "):
			openPort = line
		}
	}
	if !strings.Contains(notFeeded, " off ") {
		t.Errorf("net.not_feeded should be off: %q", notFeeded)
	}
	if !strings.Contains(openPort, "warning") {
		t.Errorf("open_port should be a warning: %q", openPort)
	}

	out, err = execute(t, "check", "--config", conf, "--strict", layout)
	if err != nil {
		t.Fatalf("only warnings remain, check should pass: %v\n%s", err, out)
	}

	if _, err := execute(t, "rules", "lint", "--config", conf, rulesFile); err != nil {
		t.Errorf("lint failed: %v", err)
	}
	bad := filepath.Join(dir, "bad.rules")
	if err := os.WriteFile(bad, []byte("rule nope { severity error }\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "rules", "lint", "--config", conf, bad); err == nil {
		t.Error("expected unknown rule to fail lint")
	}
}
