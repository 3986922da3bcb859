package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"boletodesk/internal/config"
	"boletodesk/internal/mockbackend"
	"boletodesk/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	mb         *testsupport.MockBackend
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	mb := testsupport.StartMockBackend(t)
	opts = append([]testsupport.ConfigOption{
		testsupport.WithBackendURL(mb.BaseURL),
		testsupport.WithToken(mb.Token),
	}, opts...)
	cfg := testsupport.NewConfig(t, opts...)
	base := testsupport.BaseDir(cfg)
	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{cfg: cfg, mb: mb, configPath: configPath, baseDir: base}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	return runCLIWithInput(t, args, configPath, "")
}

func runCLIWithInput(t *testing.T, args []string, configPath, input string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(input))
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func mustRun(t *testing.T, env *cliTestEnv, args ...string) string {
	t.Helper()
	out, stderr, err := runCLI(t, args, env.configPath)
	if err != nil {
		t.Fatalf("%s: %v\nstdout: %s\nstderr: %s", strings.Join(args, " "), err, out, stderr)
	}
	return out
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

// writeBatch writes one collection PDF with two slips and their notes.
func writeBatch(t *testing.T, dir string) (pdf string, xmls []string) {
	t.Helper()
	slip := func(number string, amount float64) mockbackend.DocumentFields {
		return mockbackend.DocumentFields{
			Payer:         "Padaria Sol",
			TaxID:         "11.222.333/0001-44",
			InvoiceNumber: number,
			DueDate:       "10-06",
			Amount:        testsupport.Amount(amount),
		}
	}
	note := func(number string, amount float64) mockbackend.NoteFields {
		return mockbackend.NoteFields{
			InvoiceNumber: number,
			TaxID:         "11222333000144",
			RecipientName: "PADARIA SOL",
			TotalAmount:   testsupport.Amount(amount),
			Emails:        "contas@padariasol.com.br",
		}
	}
	pdf = testsupport.WritePDF(t, dir, "lote.pdf", slip("801", 100), slip("802", 200))
	xmls = []string{
		testsupport.WriteNFe(t, dir, "801.xml", note("801", 100)),
		testsupport.WriteNFe(t, dir, "802.xml", note("802", 200)),
	}
	return pdf, xmls
}
