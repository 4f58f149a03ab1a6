package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Process-wide default export configuration. Loaded once, mutated only
// through the explicit setters below; there is no implicit reload.
var (
	defaultExportMu sync.RWMutex
	defaultExport   = ExportConfig{
		Format:                "HTML",
		FileNameTemplate:      "{name}_{date}",
		BatchSize:             5000,
		IncludeResourceLinks:  true,
		IncludeSystemMessages: true,
		PrettyFormat:          true,
	}
)

// DefaultExport returns a copy of the process-wide default export configuration.
func DefaultExport() ExportConfig {
	defaultExportMu.RLock()
	defer defaultExportMu.RUnlock()
	return defaultExport
}

// SetDefaultExport replaces the process-wide default export configuration.
func SetDefaultExport(cfg ExportConfig) {
	defaultExportMu.Lock()
	defer defaultExportMu.Unlock()
	defaultExport = cfg
}

// SetExportDir updates only the default output directory.
func SetExportDir(dir string) {
	defaultExportMu.Lock()
	defer defaultExportMu.Unlock()
	defaultExport.OutputDir = dir
}

// SetExportFormat updates only the default export format.
func SetExportFormat(format string) {
	defaultExportMu.Lock()
	defer defaultExportMu.Unlock()
	defaultExport.Format = strings.ToUpper(format)
}

// ConfigDir returns the NapCat-QCE configuration directory
// (~/.qq-chat-exporter, falling back to the working directory).
func ConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".qq-chat-exporter"
	}
	return filepath.Join(home, ".qq-chat-exporter")
}

// OutputPath builds the output file path for an export using the template
// variables {name}, {date}, {time} and {type}.
func (c ExportConfig) OutputPath(name, chatType string) string {
	dir := c.OutputDir
	if dir == "" {
		dir = filepath.Join(ConfigDir(), "exports")
	}

	now := time.Now()
	fileName := c.FileNameTemplate
	if fileName == "" {
		fileName = "{name}_{date}"
	}
	replacer := strings.NewReplacer(
		"{name}", sanitizeFileName(name),
		"{date}", now.Format("20060102"),
		"{time}", now.Format("150405"),
		"{type}", chatType,
	)
	fileName = replacer.Replace(fileName)

	ext := strings.ToLower(c.Format)
	if ext == "excel" {
		ext = "xlsx"
	}
	if c.ExportAsZip {
		ext = "zip"
	}
	if ext == "" {
		ext = "html"
	}

	return filepath.Join(dir, fileName+"."+ext)
}

func sanitizeFileName(name string) string {
	const invalid = `<>:"/\|?*`
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(invalid, r) {
			return '_'
		}
		return r
	}, name)
}
