package utils

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/Global-Optima/zeep-print-agent/internal/model"
)

// SystemInfo holds information about the current system
type SystemInfo struct {
	OS            string
	Architecture  string
	ChromePresent bool
	ChromePath    string
}

func DetectSystem() SystemInfo {
	return SystemInfo{
		OS:           runtime.GOOS,
		Architecture: runtime.GOARCH,
	}
}

// --------------------------------------
// CHROME CHECK
// --------------------------------------

// CheckChrome looks for google-chrome or chromium on PATH and in the usual
// install locations.
func CheckChrome() (bool, string) {
	binaries := []string{
		"google-chrome",
		"google-chrome-stable",
		"chromium",
		"chromium-browser",
	}
	for _, bin := range binaries {
		if path, err := exec.LookPath(bin); err == nil {
			return true, path
		}
	}
	for _, path := range commonChromePaths(runtime.GOOS) {
		if _, err := os.Stat(path); err == nil {
			return true, path
		}
	}
	return false, ""
}

func commonChromePaths(goos string) []string {
	switch goos {
	case "darwin":
		return []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
		}
	case "linux":
		return []string{
			"/usr/bin/google-chrome",
			"/usr/bin/google-chrome-stable",
			"/usr/bin/chromium",
			"/usr/bin/chromium-browser",
			"/snap/bin/chromium",
		}
	case "windows":
		return []string{
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
		}
	default:
		return nil
	}
}

// --------------------------------------
// VALIDATION
// --------------------------------------

// ValidateSystemRequirements prints a report of what the configured agent
// needs from the host and returns an error listing every missing piece.
func ValidateSystemRequirements(out io.Writer, cfg model.Config) error {
	sysInfo := DetectSystem()
	fmt.Fprintf(out, "System Information:\n")
	fmt.Fprintf(out, "  OS: %s\n", sysInfo.OS)
	fmt.Fprintf(out, "  Architecture: %s\n\n", sysInfo.Architecture)

	var problems []error

	if cfg.Receipts.Enabled {
		path := cfg.Receipts.ChromePath
		ok := false
		if path != "" {
			_, err := os.Stat(path)
			ok = err == nil
		} else {
			ok, path = CheckChrome()
		}
		if ok {
			fmt.Fprintf(out, "✓ Chrome/Chromium found at: %s\n", path)
			fmt.Fprintf(out, "  Version: %s\n", chromeVersion(path))
		} else {
			fmt.Fprintln(out, "✗ Chrome / Chromium not found!")
			fmt.Fprintln(out, "  It is required for receipt rendering using headless Chrome.")
			showChromeInstallationInstructions(out, sysInfo.OS)
			problems = append(problems, errors.New("chrome/chromium is required but not installed"))
		}
	}

	receiptCUPS := cfg.Receipts.Enabled && cfg.Receipts.Printer.Mode == model.PrinterModeCUPS
	if cfg.Printer.Mode == model.PrinterModeCUPS || receiptCUPS {
		if path, err := exec.LookPath("lp"); err == nil {
			fmt.Fprintf(out, "✓ lp found at: %s\n", path)
		} else {
			fmt.Fprintln(out, "✗ lp not found; install CUPS client tools.")
			problems = append(problems, errors.New("lp is required for cups printing"))
		}
	}

	if cfg.Store.RedisURL == "" {
		dir := filepath.Dir(cfg.Store.SQLitePath)
		if err := checkWritable(dir); err != nil {
			fmt.Fprintf(out, "✗ settings directory %s is not writable: %v\n", dir, err)
			problems = append(problems, err)
		} else {
			fmt.Fprintf(out, "✓ settings stored in %s\n", cfg.Store.SQLitePath)
		}
	}

	if cfg.Printer.Mode == model.PrinterModeSave || cfg.Printer.SaveInsteadOfPrint {
		if err := checkWritable(cfg.Printer.SpoolDir); err != nil {
			fmt.Fprintf(out, "✗ spool directory %s is not writable: %v\n", cfg.Printer.SpoolDir, err)
			problems = append(problems, err)
		} else {
			fmt.Fprintf(out, "✓ labels saved to %s\n", cfg.Printer.SpoolDir)
		}
	}

	if cfg.Receipts.Enabled && cfg.Receipts.Printer.Mode == model.PrinterModeSave {
		dir := cfg.Receipts.Printer.SpoolDir
		if err := checkWritable(dir); err != nil {
			fmt.Fprintf(out, "✗ receipt spool directory %s is not writable: %v\n", dir, err)
			problems = append(problems, err)
		} else {
			fmt.Fprintf(out, "✓ receipts saved to %s\n", dir)
		}
	}

	return errors.Join(problems...)
}

func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

func chromeVersion(path string) string {
	output, err := exec.Command(path, "--version").Output()
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(output))
}

// --------------------------------------
// INSTALLATION INSTRUCTIONS
// --------------------------------------

func showChromeInstallationInstructions(out io.Writer, osType string) {
	fmt.Fprintln(out, "Installation Instructions:")

	switch osType {
	case "linux":
		fmt.Fprintln(out, "  Ubuntu / Debian: sudo apt install chromium-browser")
		fmt.Fprintln(out, "  Fedora: sudo dnf install chromium")
		fmt.Fprintln(out, "  Arch: sudo pacman -S chromium")
	case "darwin":
		fmt.Fprintln(out, "  brew install --cask google-chrome")
	case "windows":
		fmt.Fprintln(out, "  Download Google Chrome: https://www.google.com/chrome/")
	default:
		fmt.Fprintln(out, "  Please install Chrome or Chromium for your OS.")
	}
	fmt.Fprintln(out, "After installation, restart this application.")
}
