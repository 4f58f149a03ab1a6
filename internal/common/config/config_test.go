package config

import (
	"path/filepath"
	"strings"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Service: ServiceConfig{Host: "localhost", Port: 40653, StartTimeout: 60},
		Export:  ExportConfig{Format: "HTML", BatchSize: 5000},
	}
}

func TestValidate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestValidateBadPort(t *testing.T) {
	cfg := validConfig()
	cfg.Service.Port = 70000
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for out-of-range port")
	}
}

func TestValidateBadFormat(t *testing.T) {
	cfg := validConfig()
	cfg.Export.Format = "PDF"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestValidateFormatCaseInsensitive(t *testing.T) {
	cfg := validConfig()
	cfg.Export.Format = "json"
	if err := cfg.Validate(); err != nil {
		t.Errorf("lowercase format should be accepted: %v", err)
	}
}

func TestBaseURL(t *testing.T) {
	svc := ServiceConfig{Host: "localhost", Port: 40653}
	if got := svc.BaseURL(); got != "http://localhost:40653" {
		t.Errorf("unexpected base URL: %s", got)
	}
	if got := svc.WebSocketURL(); got != "ws://localhost:40653" {
		t.Errorf("unexpected websocket URL: %s", got)
	}
}

func TestDefaultExportSetters(t *testing.T) {
	orig := DefaultExport()
	defer SetDefaultExport(orig)

	SetExportDir("/tmp/exports")
	SetExportFormat("json")

	got := DefaultExport()
	if got.OutputDir != "/tmp/exports" {
		t.Errorf("expected output dir /tmp/exports, got %s", got.OutputDir)
	}
	if got.Format != "JSON" {
		t.Errorf("expected format normalized to JSON, got %s", got.Format)
	}

	// The returned value is a copy; mutating it must not leak back.
	got.Format = "TXT"
	if DefaultExport().Format != "JSON" {
		t.Error("mutation of the returned copy leaked into the default")
	}
}

func TestOutputPathTemplate(t *testing.T) {
	cfg := ExportConfig{
		Format:           "HTML",
		OutputDir:        "/data/out",
		FileNameTemplate: "{name}_{type}",
	}
	got := cfg.OutputPath("My Group", "group")
	want := filepath.Join("/data/out", "My Group_group.html")
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestOutputPathSanitizesName(t *testing.T) {
	cfg := ExportConfig{Format: "TXT", OutputDir: "/data/out", FileNameTemplate: "{name}"}
	got := cfg.OutputPath(`a/b:c?`, "group")
	if strings.ContainsAny(filepath.Base(got), `/:?`) {
		t.Errorf("file name not sanitized: %s", got)
	}
}

func TestOutputPathExtensions(t *testing.T) {
	excel := ExportConfig{Format: "EXCEL", OutputDir: "/o", FileNameTemplate: "{name}"}
	if got := excel.OutputPath("chat", "group"); !strings.HasSuffix(got, ".xlsx") {
		t.Errorf("EXCEL should map to .xlsx, got %s", got)
	}

	zipped := ExportConfig{Format: "HTML", ExportAsZip: true, OutputDir: "/o", FileNameTemplate: "{name}"}
	if got := zipped.OutputPath("chat", "group"); !strings.HasSuffix(got, ".zip") {
		t.Errorf("zip export should map to .zip, got %s", got)
	}
}
