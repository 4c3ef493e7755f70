// Package installer locates the helper binary and installs/uninstalls it as
// a long-running privileged service (spec §4.10). Grounded on
// original_source's kftray-helper/src/client/{binary_finder,installation,
// uninstallation}.rs, generalized from the original's cargo-workspace-aware
// search into a Go-module-aware one.
package installer

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// DefaultServiceName is used when the caller does not override it (spec
// §6 CLI surface: "Default service name kftray.helper").
const DefaultServiceName = "kftray.helper"

func helperBinaryName() string {
	if runtime.GOOS == "windows" {
		return "kftray-helper.exe"
	}
	return "kftray-helper"
}

// FindHelperBinary searches, in order, the executable directory, a
// resources/ or bin/ sidecar directory, and, whenever a go.mod is found
// above the executable directory, that module's root and its bin/
// directory, returning a hard error if none exist (spec §4.10). The module
// search is not limited to debug builds.
func FindHelperBinary() (string, error) {
	exePath, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolving current executable: %w", err)
	}
	return findHelperBinaryIn(filepath.Dir(exePath))
}

func findHelperBinaryIn(exeDir string) (string, error) {
	name := helperBinaryName()

	candidates := []string{
		filepath.Join(exeDir, name),
		filepath.Join(exeDir, "resources", name),
		filepath.Join(exeDir, "resources", "bin", name),
		filepath.Join(exeDir, "bin", name),
	}

	if debugRoot, ok := findModuleRoot(exeDir); ok {
		candidates = append(candidates,
			filepath.Join(debugRoot, "bin", name),
			filepath.Join(debugRoot, name),
		)
	}

	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, nil
		}
	}

	return "", errors.New("helper binary not found: checked executable, resources, and bin sidecar directories")
}

// findModuleRoot walks upward from start looking for go.mod, the Go
// analogue of the original's Cargo.toml workspace-root search. Every
// FindHelperBinary call uses it, whatever kind of build is running.
func findModuleRoot(start string) (string, bool) {
	dir := start
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// Install elevates and runs "<helperPath> install <serviceName>", using the
// platform-specific elevation strategy (spec §4.10).
func Install(helperPath, serviceName string) error {
	if serviceName == "" {
		serviceName = DefaultServiceName
	}

	switch runtime.GOOS {
	case "darwin":
		if out, err := exec.Command(helperPath, "install", serviceName).CombinedOutput(); err == nil {
			return nil
		} else {
			script := fmt.Sprintf(`do shell script "%s install %s" with administrator privileges`, helperPath, serviceName)
			if out2, err2 := exec.Command("osascript", "-e", script).CombinedOutput(); err2 != nil {
				return fmt.Errorf("installing helper with admin privileges: %w: %s", err2, out2)
			}
			_ = out
		}
	case "windows":
		cmd := fmt.Sprintf(`Start-Process -FilePath "%s" -ArgumentList "install %s" -Verb RunAs -Wait`, helperPath, serviceName)
		if out, err := exec.Command("powershell", "-Command", cmd).CombinedOutput(); err != nil {
			return fmt.Errorf("installing helper with elevation: %w: %s", err, out)
		}
	default:
		if out, err := exec.Command("pkexec", helperPath, "install", serviceName).CombinedOutput(); err != nil {
			if out2, err2 := exec.Command("sudo", helperPath, "install", serviceName).CombinedOutput(); err2 != nil {
				return fmt.Errorf("installing helper with sudo: %w: %s", err2, out2)
			}
		} else {
			_ = out
		}
	}
	return nil
}

// Uninstall elevates and runs "<helperPath> uninstall <serviceName>".
func Uninstall(helperPath, serviceName string) error {
	if serviceName == "" {
		serviceName = DefaultServiceName
	}

	switch runtime.GOOS {
	case "darwin":
		if _, err := exec.Command(helperPath, "uninstall", serviceName).CombinedOutput(); err == nil {
			return nil
		}
		script := fmt.Sprintf(`do shell script "%s uninstall %s" with administrator privileges`, helperPath, serviceName)
		if out, err := exec.Command("osascript", "-e", script).CombinedOutput(); err != nil {
			return fmt.Errorf("uninstalling helper with admin privileges: %w: %s", err, out)
		}
	case "windows":
		cmd := fmt.Sprintf(`Start-Process -FilePath "%s" -ArgumentList "uninstall %s" -Verb RunAs -Wait`, helperPath, serviceName)
		if out, err := exec.Command("powershell", "-Command", cmd).CombinedOutput(); err != nil {
			return fmt.Errorf("uninstalling helper with elevation: %w: %s", err, out)
		}
	default:
		if _, err := exec.Command("pkexec", helperPath, "uninstall", serviceName).CombinedOutput(); err != nil {
			if out2, err2 := exec.Command("sudo", helperPath, "uninstall", serviceName).CombinedOutput(); err2 != nil {
				return fmt.Errorf("uninstalling helper with sudo: %w: %s", err2, out2)
			}
		}
	}
	return nil
}
