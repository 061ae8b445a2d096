// Package fsutil provides file, path, and naming helpers shared by the job
// runner, assembler, and CLI client.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

const (
	defaultDirPermissions = 0o750
	defaultSlug           = "file"
	slugSeparator         = "-"
)

// Time and size formatting constants.
const (
	secondsInMinute = 60
	secondsInHour   = 3600
	formatSeconds   = "%ds"
	formatMinutes   = "%dm %ds"
	formatHours     = "%dh %dm"
	formatGB        = "%.1f GB"
	formatMB        = "%.1f MB"
	formatKB        = "%.1f KB"
	formatBytes     = "%d B"
)

// Data size constants.
const (
	byteUnit = 1
	kilobyte = byteUnit * 1024
	megabyte = kilobyte * 1024
	gigabyte = megabyte * 1024
)

// EnsureDir ensures a directory exists at the given path, creating it if it doesn't.
func EnsureDir(path string) error {
	_, statErr := os.Stat(path)
	if os.IsNotExist(statErr) {
		// MkdirAll is used to create parent directories as needed.
		mkdirErr := os.MkdirAll(path, defaultDirPermissions)
		if mkdirErr != nil {
			return fmt.Errorf("failed to create directory %s: %w", path, mkdirErr)
		}
	}

	return nil
}

// SafeSlug turns an arbitrary filename into a lowercase, hyphen-separated
// token safe for object keys and output filenames. The extension is dropped.
// An empty or fully-unsafe input yields "file".
func SafeSlug(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))

	var builder strings.Builder

	lastWasSeparator := true

	for _, r := range strings.ToLower(base) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			builder.WriteRune(r)

			lastWasSeparator = false
		case !lastWasSeparator:
			builder.WriteString(slugSeparator)

			lastWasSeparator = true
		}
	}

	slug := strings.Trim(builder.String(), slugSeparator)
	if slug == "" {
		return defaultSlug
	}

	return slug
}

// FormatDuration formats a whole-second duration in a human-readable string
// (e.g. "1h 15m", "5m 30s", "45s").
func FormatDuration(seconds int) string {
	if seconds < secondsInMinute {
		return fmt.Sprintf(formatSeconds, seconds)
	}

	if seconds < secondsInHour {
		return fmt.Sprintf(formatMinutes, seconds/secondsInMinute, seconds%secondsInMinute)
	}

	return fmt.Sprintf(formatHours, seconds/secondsInHour, (seconds%secondsInHour)/secondsInMinute)
}

// FormatFileSize formats a file size in a human-readable string (e.g., "1.2 GB", "500.5
// MB").
func FormatFileSize(bytes int64) string {
	switch {
	case bytes >= gigabyte:
		return fmt.Sprintf(formatGB, float64(bytes)/gigabyte)
	case bytes >= megabyte:
		return fmt.Sprintf(formatMB, float64(bytes)/megabyte)
	case bytes >= kilobyte:
		return fmt.Sprintf(formatKB, float64(bytes)/kilobyte)
	default:
		return fmt.Sprintf(formatBytes, bytes)
	}
}
