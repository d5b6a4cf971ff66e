package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testNetwork = `
name: cli-test
populations:
  - name: exc
    model: iaf_psc_alpha
    n: 4
  - name: rec
    model: spike_recorder
    n: 1
    shape: device
projections:
  - source: exc
    target: exc
    conn_spec: {rule: all_to_all, autapses: false}
    syn_spec: {weight: 0.5, delay: 1.5}
  - source: exc
    target: rec
    conn_spec: {rule: all_to_all}
`

// 4x3 recurrent plus one recorder connection per neuron
const testConnections = 16

// isolateHome points HOME at a temp directory so tests never touch the
// real ~/.connectome/.
func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func writeNetwork(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "net.yaml")
	if err := os.WriteFile(path, []byte(testNetwork), 0600); err != nil {
		t.Fatalf("writing network: %v", err)
	}
	return path
}

// run executes the root command with args and returns its stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func runJSON(t *testing.T, v any, args ...string) {
	t.Helper()
	out, err := run(t, append(args, "--json")...)
	if err != nil {
		t.Fatalf("%s error = %v", strings.Join(args, " "), err)
	}
	if err := json.Unmarshal([]byte(out), v); err != nil {
		t.Fatalf("%s: decoding %q: %v", strings.Join(args, " "), out, err)
	}
}

func TestVersionCmd(t *testing.T) {
	var got map[string]string
	runJSON(t, &got, "version")
	if got["version"] != version {
		t.Errorf("version = %q, want %q", got["version"], version)
	}

	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.Contains(out, "connectome version") {
		t.Errorf("version output = %q", out)
	}
}

func TestBuildCmd(t *testing.T) {
	isolateHome(t)
	net := writeNetwork(t)

	tests := []struct {
		name string
		args []string
	}{
		{"single process", nil},
		{"two processes prepared", []string{"--processes", "2", "--threads", "2", "--prepare"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var res buildResult
			runJSON(t, &res, append([]string{"build", net}, tt.args...)...)

			if res.Network != "cli-test" {
				t.Errorf("Network = %q, want cli-test", res.Network)
			}
			if res.NumConnections != testConnections {
				t.Errorf("NumConnections = %d, want %d", res.NumConnections, testConnections)
			}
			if res.Populations["exc"] != 4 || res.Populations["rec"] != 1 {
				t.Errorf("Populations = %v", res.Populations)
			}
			if res.Models["static_synapse"] != testConnections {
				t.Errorf("Models = %v", res.Models)
			}
			if res.MaxDelayMS < 1.5-1e-9 || res.MinDelayMS > 1+1e-9 {
				t.Errorf("delay window = [%g, %g], want [1, 1.5]", res.MinDelayMS, res.MaxDelayMS)
			}
		})
	}
}

func TestBuildCmd_Errors(t *testing.T) {
	isolateHome(t)

	if _, err := run(t, "build", filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("build of missing file expected error")
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("populations: []\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, "build", bad); err == nil {
		t.Error("build of empty network expected error")
	}

	if _, err := run(t, "build", writeNetwork(t), "--threads", "0"); err == nil {
		t.Error("build with zero threads expected error")
	}
}

func TestConnectionsCmd(t *testing.T) {
	isolateHome(t)
	net := writeNetwork(t)

	var got struct {
		Connections []struct {
			Source uint64  `json:"source"`
			Target uint64  `json:"target"`
			Weight float64 `json:"weight"`
		} `json:"connections"`
		Count int `json:"count"`
		Total int `json:"total"`
	}
	runJSON(t, &got, "connections", net, "--source", "1")
	if got.Count != 4 || got.Total != 4 {
		t.Errorf("from node 1: count %d total %d, want 4", got.Count, got.Total)
	}
	for _, c := range got.Connections {
		if c.Source != 1 {
			t.Errorf("connection from %d, want 1", c.Source)
		}
	}

	runJSON(t, &got, "connections", net, "--limit", "5", "--processes", "2")
	if got.Count != 5 || got.Total != testConnections {
		t.Errorf("limit 5: count %d total %d", got.Count, got.Total)
	}

	out, err := run(t, "connections", net, "--target", "5")
	if err != nil {
		t.Fatalf("connections error = %v", err)
	}
	if lines := strings.Count(out, "\n"); lines != 5 {
		t.Errorf("table has %d lines, want header plus 4:\n%s", lines, out)
	}
}

func TestModelsAndStatusCmd(t *testing.T) {
	isolateHome(t)
	net := writeNetwork(t)

	var models struct {
		Models []struct {
			Name           string `json:"name"`
			NumConnections int64  `json:"num_connections"`
		} `json:"models"`
		Count int `json:"count"`
	}
	runJSON(t, &models, "models", net)
	if models.Count == 0 {
		t.Fatal("models listed none")
	}
	for _, m := range models.Models {
		if m.Name == "static_synapse" && m.NumConnections != testConnections {
			t.Errorf("static_synapse connections = %d, want %d", m.NumConnections, testConnections)
		}
	}

	var status map[string]any
	runJSON(t, &status, "status", net, "--prepare")
	if status["prepared"] != true {
		t.Errorf("status prepared = %v, want true", status["prepared"])
	}
	if status["num_connections"] != float64(testConnections) {
		t.Errorf("status num_connections = %v, want %d", status["num_connections"], testConnections)
	}
}

func TestSnapshotWorkflow(t *testing.T) {
	isolateHome(t)
	net := writeNetwork(t)

	var res buildResult
	runJSON(t, &res, "build", net, "--snapshot", "initial", "--processes", "2")
	if res.SnapshotID == "" {
		t.Fatal("build --snapshot returned no id")
	}

	var list struct {
		Snapshots []struct {
			ID             string `json:"id"`
			Name           string `json:"name"`
			NumConnections int64  `json:"num_connections"`
		} `json:"snapshots"`
		TotalCount int `json:"total_count"`
	}
	runJSON(t, &list, "snapshot", "list")
	if list.TotalCount != 1 || list.Snapshots[0].ID != res.SnapshotID {
		t.Fatalf("snapshot list = %+v", list)
	}
	if list.Snapshots[0].NumConnections != testConnections {
		t.Errorf("listed %d connections, want %d", list.Snapshots[0].NumConnections, testConnections)
	}

	var show struct {
		Count int `json:"count"`
	}
	runJSON(t, &show, "snapshot", "show", res.SnapshotID, "--source", "1")
	if show.Count != 4 {
		t.Errorf("show --source 1 count = %d, want 4", show.Count)
	}

	archivePath := filepath.Join(t.TempDir(), "initial.connectome.gz")
	if _, err := run(t, "snapshot", "export", res.SnapshotID, "-o", archivePath); err != nil {
		t.Fatalf("snapshot export error = %v", err)
	}

	var verify struct {
		Valid bool `json:"valid"`
	}
	runJSON(t, &verify, "snapshot", "verify", archivePath)
	if !verify.Valid {
		t.Error("verify reported exported archive invalid")
	}

	var imported map[string]string
	runJSON(t, &imported, "snapshot", "import", archivePath)
	if imported["id"] == "" || imported["id"] == res.SnapshotID {
		t.Errorf("import id = %q, want a new id", imported["id"])
	}

	runJSON(t, &list, "snapshot", "list")
	if list.TotalCount != 2 {
		t.Errorf("after import total_count = %d, want 2", list.TotalCount)
	}

	if _, err := run(t, "snapshot", "delete", res.SnapshotID); err != nil {
		t.Fatalf("snapshot delete error = %v", err)
	}
	if _, err := run(t, "snapshot", "show", res.SnapshotID); err == nil {
		t.Error("show of deleted snapshot expected error")
	}
}

func TestSnapshotVerify_Corrupt(t *testing.T) {
	isolateHome(t)
	path := filepath.Join(t.TempDir(), "junk.connectome.gz")
	if err := os.WriteFile(path, []byte("not an archive"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, "snapshot", "verify", path); err == nil {
		t.Error("verify of junk expected error")
	}
}

func TestSnapshotPrune(t *testing.T) {
	isolateHome(t)
	net := writeNetwork(t)
	dir := t.TempDir()

	var res buildResult
	runJSON(t, &res, "build", net, "--snapshot", "for-prune")
	for _, name := range []string{"a.connectome.gz", "b.connectome.gz", "c.connectome.gz"} {
		if _, err := run(t, "snapshot", "export", res.SnapshotID, "-o", filepath.Join(dir, name)); err != nil {
			t.Fatalf("export error = %v", err)
		}
	}

	if _, err := run(t, "snapshot", "prune", "--dir", dir); err == nil {
		t.Error("prune without a rule expected error")
	}

	var pruned struct {
		Count int `json:"count"`
	}
	runJSON(t, &pruned, "snapshot", "prune", "--dir", dir, "--keep-last", "1")
	if pruned.Count != 2 {
		t.Errorf("pruned %d, want 2", pruned.Count)
	}

	var archives struct {
		TotalCount int `json:"total_count"`
	}
	runJSON(t, &archives, "snapshot", "archives", "--dir", dir)
	if archives.TotalCount != 1 {
		t.Errorf("archives left = %d, want 1", archives.TotalCount)
	}
}

func TestConfigCmd(t *testing.T) {
	home := isolateHome(t)

	if _, err := run(t, "config", "set", "kernel.threads", "4"); err != nil {
		t.Fatalf("config set error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(home, ".connectome", "config.yaml")); err != nil {
		t.Errorf("config file not written: %v", err)
	}

	var got map[string]any
	runJSON(t, &got, "config", "get", "kernel.threads")
	if got["value"] != float64(4) {
		t.Errorf("kernel.threads = %v, want 4", got["value"])
	}

	tests := []struct {
		name string
		args []string
	}{
		{"unknown key", []string{"config", "set", "nope", "1"}},
		{"not a number", []string{"config", "set", "kernel.threads", "many"}},
		{"fails validation", []string{"config", "set", "kernel.threads", "0"}},
		{"get unknown", []string{"config", "get", "nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := run(t, tt.args...); err == nil {
				t.Errorf("%v expected error", tt.args)
			}
		})
	}

	out, err := run(t, "config", "list")
	if err != nil {
		t.Fatalf("config list error = %v", err)
	}
	if !strings.Contains(out, "kernel.threads:") || !strings.Contains(out, "4") {
		t.Errorf("config list output:\n%s", out)
	}
}

func TestGraphCmd(t *testing.T) {
	isolateHome(t)
	net := writeNetwork(t)

	dot, err := run(t, "graph", net)
	if err != nil {
		t.Fatalf("graph error = %v", err)
	}
	for _, want := range []string{`digraph "cli-test"`, `"exc" -> "exc" [label="static_synapse (12)"`, `"exc" -> "rec" [label="static_synapse (4)"`} {
		if !strings.Contains(dot, want) {
			t.Errorf("graph output missing %s:\n%s", want, dot)
		}
	}

	var g struct {
		NodeCount int `json:"node_count"`
		Edges     []struct {
			Source string `json:"source"`
			Target string `json:"target"`
			Count  int64  `json:"count"`
		} `json:"edges"`
	}
	runJSON(t, &g, "graph", net)
	if g.NodeCount != 2 || len(g.Edges) != 2 {
		t.Fatalf("graph --json = %+v, want 2 nodes and 2 edges", g)
	}
	if g.Edges[0].Count+g.Edges[1].Count != testConnections {
		t.Errorf("edge counts sum to %d, want %d", g.Edges[0].Count+g.Edges[1].Count, testConnections)
	}

	out := filepath.Join(t.TempDir(), "net.dot")
	if _, err := run(t, "graph", net, "-o", out); err != nil {
		t.Fatalf("graph -o error = %v", err)
	}
	if data, err := os.ReadFile(out); err != nil || !strings.HasPrefix(string(data), "digraph") {
		t.Errorf("graph file = %q, %v", data, err)
	}

	if _, err := run(t, "graph", net, "--format", "html"); err == nil {
		t.Error("graph --format html expected error")
	}
}
