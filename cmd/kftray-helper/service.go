package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// installPlatformService registers exePath as a service named name, using
// the OS's native service manager: systemd on Linux, launchd on macOS, the
// Service Control Manager on Windows.
func installPlatformService(name, exePath string) error {
	switch runtime.GOOS {
	case "linux":
		return installSystemdService(name, exePath)
	case "darwin":
		return installLaunchdService(name, exePath)
	case "windows":
		return installWindowsService(name, exePath)
	default:
		return fmt.Errorf("unsupported platform %q", runtime.GOOS)
	}
}

func uninstallPlatformService(name string) error {
	switch runtime.GOOS {
	case "linux":
		return uninstallSystemdService(name)
	case "darwin":
		return uninstallLaunchdService(name)
	case "windows":
		return uninstallWindowsService(name)
	default:
		return fmt.Errorf("unsupported platform %q", runtime.GOOS)
	}
}

const systemdUnitTemplate = `[Unit]
Description=kftray helper daemon
After=network.target

[Service]
ExecStart=%s service
Restart=on-failure

[Install]
WantedBy=multi-user.target
`

func installSystemdService(name, exePath string) error {
	unitPath := filepath.Join("/etc/systemd/system", name+".service")
	unit := fmt.Sprintf(systemdUnitTemplate, exePath)
	if err := os.WriteFile(unitPath, []byte(unit), 0o644); err != nil {
		return fmt.Errorf("writing unit file %s: %w", unitPath, err)
	}
	if out, err := exec.Command("systemctl", "daemon-reload").CombinedOutput(); err != nil {
		return fmt.Errorf("systemctl daemon-reload: %w: %s", err, out)
	}
	if out, err := exec.Command("systemctl", "enable", "--now", name).CombinedOutput(); err != nil {
		return fmt.Errorf("systemctl enable --now %s: %w: %s", name, err, out)
	}
	return nil
}

func uninstallSystemdService(name string) error {
	_, _ = exec.Command("systemctl", "disable", "--now", name).CombinedOutput()
	unitPath := filepath.Join("/etc/systemd/system", name+".service")
	if err := os.Remove(unitPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing unit file %s: %w", unitPath, err)
	}
	_, _ = exec.Command("systemctl", "daemon-reload").CombinedOutput()
	return nil
}

const launchdPlistTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>%s</string>
	<key>ProgramArguments</key>
	<array>
		<string>%s</string>
		<string>service</string>
	</array>
	<key>RunAtLoad</key>
	<true/>
	<key>KeepAlive</key>
	<true/>
</dict>
</plist>
`

func launchdPlistPath(name string) string {
	return filepath.Join("/Library/LaunchDaemons", name+".plist")
}

func installLaunchdService(name, exePath string) error {
	plistPath := launchdPlistPath(name)
	plist := fmt.Sprintf(launchdPlistTemplate, name, exePath)
	if err := os.WriteFile(plistPath, []byte(plist), 0o644); err != nil {
		return fmt.Errorf("writing launchd plist %s: %w", plistPath, err)
	}
	if out, err := exec.Command("launchctl", "load", "-w", plistPath).CombinedOutput(); err != nil {
		return fmt.Errorf("launchctl load %s: %w: %s", plistPath, err, out)
	}
	return nil
}

func uninstallLaunchdService(name string) error {
	plistPath := launchdPlistPath(name)
	_, _ = exec.Command("launchctl", "unload", "-w", plistPath).CombinedOutput()
	if err := os.Remove(plistPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing launchd plist %s: %w", plistPath, err)
	}
	return nil
}

func installWindowsService(name, exePath string) error {
	binPath := fmt.Sprintf("%s service", exePath)
	if out, err := exec.Command("sc.exe", "create", name, "binPath=", binPath, "start=", "auto").CombinedOutput(); err != nil {
		return fmt.Errorf("sc.exe create %s: %w: %s", name, err, out)
	}
	if out, err := exec.Command("sc.exe", "start", name).CombinedOutput(); err != nil {
		return fmt.Errorf("sc.exe start %s: %w: %s", name, err, out)
	}
	return nil
}

func uninstallWindowsService(name string) error {
	_, _ = exec.Command("sc.exe", "stop", name).CombinedOutput()
	if out, err := exec.Command("sc.exe", "delete", name).CombinedOutput(); err != nil {
		return fmt.Errorf("sc.exe delete %s: %w: %s", name, err, out)
	}
	return nil
}
