package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"codeberg.org/mutker/mccli/internal/errors"
	"codeberg.org/mutker/mccli/internal/logger"
	"codeberg.org/mutker/mccli/internal/telemetry"
)

const (
	defaultFilePerm = 0o644
	defaultDirPerm  = 0o755

	reportPrefix = "mccli_"
	reportLayout = "01_02_2006_15:04:05"
	reportSuffix = ".csv"
)

// Options selects what Render emits.
type Options struct {
	Fields          []string
	IncludeCommands bool
	// MomentOfInertia in kg·m²; required for motor_torque.
	MomentOfInertia *float64
}

// Render writes the header line and one line per log entry. Pairwise
// fields use the preceding sample as reference and are 0.0 on the first
// sample; command markers never take part in that chain.
func Render(entries []telemetry.Entry, opts Options) (string, error) {
	columns, err := resolve(opts)
	if err != nil {
		return "", err
	}

	header := make([]string, len(opts.Fields))
	for i, name := range opts.Fields {
		header[i] = strings.TrimSpace(name)
	}

	lines := make([]string, 0, len(entries)+1)
	lines = append(lines, strings.Join(header, ","))

	var (
		prev    telemetry.StateSample
		hasPrev bool
		values  = make([]string, len(columns))
	)

	for _, entry := range entries {
		switch e := entry.(type) {
		case telemetry.StateSample:
			for i, col := range columns {
				values[i] = telemetry.FormatFloat(col(e, prev, hasPrev))
			}
			lines = append(lines, strings.Join(values, ","))
			prev, hasPrev = e, true
		case telemetry.CommandMarker:
			if opts.IncludeCommands {
				lines = append(lines, fmt.Sprintf("# (%s) %q", telemetry.FormatFloat(e.At), e.Text))
			}
		}
	}

	return strings.Join(lines, "\n"), nil
}

// ReportName returns the file name for a report generated at now.
func ReportName(now time.Time) string {
	return reportPrefix + now.Format(reportLayout) + reportSuffix
}

// WriteReport writes content to a new timestamped file under dir and
// returns its path. An existing file is never overwritten.
func WriteReport(dir string, now time.Time, content string) (string, error) {
	errFactory := errors.New()

	if dir == "" {
		dir = "."
	}

	if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
		return "", errFactory.WithData(errors.ErrExportWrite, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  dir,
			Error: err.Error(),
		})
	}

	path := filepath.Join(dir, ReportName(now))

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, defaultFilePerm)
	if err != nil {
		return "", errFactory.WithData(errors.ErrExportWrite, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_file",
			Path:  path,
			Error: err.Error(),
		})
	}

	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return "", errFactory.Wrap(errors.ErrExportWrite, err)
	}

	if err := f.Close(); err != nil {
		return "", errFactory.Wrap(errors.ErrExportWrite, err)
	}

	logger.Info().Str("path", path).Int("bytes", len(content)).Msg("Report written")

	return path, nil
}
