package converter

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Target names a LibreOffice output format, optionally with an import filter
// for reading PDFs.
type Target struct {
	// Format as passed to --convert-to, e.g. "pdf" or "docx".
	Format string
	// InFilter is the import filter, needed when the input is a PDF.
	InFilter string
}

var (
	TargetPDF  = Target{Format: "pdf"}
	TargetDocx = Target{Format: "docx", InFilter: "writer_pdf_import"}
	TargetPptx = Target{Format: "pptx", InFilter: "impress_pdf_import"}
	TargetXlsx = Target{Format: "xlsx"}
)

// LibreOffice converts documents through headless soffice.
type LibreOffice struct {
	binary    string
	timeout   time.Duration
	semaphore chan struct{}
}

// Result represents the outcome of a conversion.
type Result struct {
	Success     bool
	OutputPath  string
	Error       string
	Duration    time.Duration
	IsProtected bool
}

// NewLibreOffice creates a converter. maxConcurrent caps parallel soffice
// processes; each one is memory hungry.
func NewLibreOffice(binary string, maxConcurrent int, timeout time.Duration) *LibreOffice {
	if binary == "" {
		binary = "soffice"
	}
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	return &LibreOffice{
		binary:    binary,
		timeout:   timeout,
		semaphore: make(chan struct{}, maxConcurrent),
	}
}

// IsAvailable reports whether the soffice binary is on PATH.
func (l *LibreOffice) IsAvailable() bool {
	_, err := exec.LookPath(l.binary)
	return err == nil
}

// Version returns the installed LibreOffice version string.
func (l *LibreOffice) Version() (string, error) {
	output, err := exec.Command(l.binary, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("LibreOffice not found in PATH: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}

// Convert converts inputPath to the target format, writing next to outPath.
// The produced file is renamed to outPath.
func (l *LibreOffice) Convert(ctx context.Context, inputPath, outPath string, target Target) Result {
	startTime := time.Now()

	select {
	case l.semaphore <- struct{}{}:
	case <-ctx.Done():
		return Result{Success: false, Error: "cancelled while waiting for converter slot", Duration: time.Since(startTime)}
	}
	defer func() { <-l.semaphore }()

	log.Info().Str("input", inputPath).Str("output", outPath).Str("format", target.Format).Msg("starting conversion")

	if err := l.validateInput(inputPath); err != nil {
		return Result{Success: false, Error: fmt.Sprintf("input validation failed: %v", err), Duration: time.Since(startTime)}
	}

	if isProtected, err := l.checkPasswordProtection(inputPath); err != nil {
		log.Warn().Err(err).Str("file", inputPath).Msg("could not check password protection")
	} else if isProtected {
		return Result{
			Success:     false,
			Error:       "document is password protected",
			Duration:    time.Since(startTime),
			IsProtected: true,
		}
	}

	// Unique profile dir so parallel soffice instances don't fight over the
	// user installation lock.
	profileDir := filepath.Join(os.TempDir(), fmt.Sprintf("soffice_profile_%s", uuid.New().String()))
	if err := os.MkdirAll(profileDir, 0o755); err != nil {
		return Result{Success: false, Error: fmt.Sprintf("failed to create profile directory: %v", err), Duration: time.Since(startTime)}
	}
	defer os.RemoveAll(profileDir)

	outputDir := filepath.Dir(outPath)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return Result{Success: false, Error: fmt.Sprintf("failed to create output directory: %v", err), Duration: time.Since(startTime)}
	}

	args := []string{
		fmt.Sprintf("-env:UserInstallation=file://%s", profileDir),
		"--headless",
		"--nologo",
		"--nolockcheck",
	}
	if target.InFilter != "" && strings.EqualFold(filepath.Ext(inputPath), ".pdf") {
		args = append(args, fmt.Sprintf("--infilter=%s", target.InFilter))
	}
	args = append(args, "--convert-to", target.Format, "--outdir", outputDir, inputPath)

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, l.binary, args...)
	log.Debug().Str("cmd", strings.Join(cmd.Args, " ")).Msg("LibreOffice command")

	if output, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return Result{Success: false, Error: fmt.Sprintf("conversion timeout after %v", l.timeout), Duration: time.Since(startTime)}
		}
		return Result{Success: false, Error: fmt.Sprintf("conversion failed: %v: %s", err, strings.TrimSpace(string(output))), Duration: time.Since(startTime)}
	}

	// LibreOffice names the output after the input file.
	produced := l.producedPath(inputPath, outputDir, target.Format)
	if produced != outPath {
		if _, err := os.Stat(produced); err == nil {
			if err := os.Rename(produced, outPath); err != nil {
				log.Warn().Err(err).Str("from", produced).Str("to", outPath).Msg("failed to rename")
				outPath = produced
			}
		}
	}

	if _, err := os.Stat(outPath); err != nil {
		return Result{Success: false, Error: fmt.Sprintf("output file not created: %v", err), Duration: time.Since(startTime)}
	}

	log.Info().Str("output", outPath).Dur("duration", time.Since(startTime)).Msg("conversion successful")

	return Result{Success: true, OutputPath: outPath, Duration: time.Since(startTime)}
}

// validateInput checks if the input file is readable
func (l *LibreOffice) validateInput(filePath string) error {
	info, err := os.Stat(filePath)
	if err != nil {
		return fmt.Errorf("file not found: %w", err)
	}

	if info.IsDir() {
		return fmt.Errorf("path is a directory, not a file")
	}

	if info.Size() == 0 {
		return fmt.Errorf("file is empty")
	}

	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("file not readable: %w", err)
	}
	file.Close()

	return nil
}

// checkPasswordProtection checks if a document is password protected
func (l *LibreOffice) checkPasswordProtection(filePath string) (bool, error) {
	cmd := exec.Command(l.binary, "--headless", "--cat", filePath)

	output, err := cmd.CombinedOutput()
	if err != nil {
		outputStr := strings.ToLower(string(output))
		if strings.Contains(outputStr, "password") ||
			strings.Contains(outputStr, "encrypted") ||
			strings.Contains(outputStr, "protected") {
			return true, nil
		}
	}

	return false, nil
}

// producedPath is where LibreOffice writes the converted file.
func (l *LibreOffice) producedPath(inputPath, outputDir, format string) string {
	baseName := filepath.Base(inputPath)
	nameWithoutExt := strings.TrimSuffix(baseName, filepath.Ext(baseName))
	return filepath.Join(outputDir, nameWithoutExt+"."+format)
}
