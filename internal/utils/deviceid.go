package utils

import (
	"bytes"
	"errors"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// ErrNoHardwareID is returned when the platform exposes no stable identifier.
var ErrNoHardwareID = errors.New("no hardware identifier available")

// HardwareIDProvider reads the platform's stable hardware identifier.
type HardwareIDProvider struct{}

// HardwareID returns the platform's stable hardware identifier.
// On mobile platforms the app supplies it instead, see mobile.Config.
func (HardwareIDProvider) HardwareID() (string, error) {
	switch runtime.GOOS {
	case "darwin":
		return getMacOSUUID()
	case "linux":
		return getLinuxUUID()
	case "windows":
		return getWindowsUUID()
	default:
		return "", ErrNoHardwareID
	}
}

// DeviceModel returns a best-effort hardware model name.
func DeviceModel() string {
	if runtime.GOOS == "linux" {
		if b, err := os.ReadFile("/sys/class/dmi/id/product_name"); err == nil {
			if m := strings.TrimSpace(string(b)); m != "" {
				return m
			}
		}
	}
	if runtime.GOOS == "darwin" {
		if out, err := exec.Command("sysctl", "-n", "hw.model").Output(); err == nil {
			if m := strings.TrimSpace(string(out)); m != "" {
				return m
			}
		}
	}
	return runtime.GOOS + "-" + runtime.GOARCH
}

// SanitizeModel strips all whitespace from a device model.
func SanitizeModel(model string) string {
	return strings.Join(strings.Fields(model), "")
}

func getMacOSUUID() (string, error) {
	out, err := exec.Command("ioreg", "-rd1", "-c", "IOPlatformExpertDevice").Output()
	if err != nil {
		return "", err
	}
	for _, line := range strings.Split(string(out), "\n") {
		if strings.Contains(line, "IOPlatformUUID") {
			parts := strings.Split(line, "\"")
			if len(parts) >= 4 && parts[3] != "" {
				return parts[3], nil
			}
		}
	}
	return "", ErrNoHardwareID
}

func getLinuxUUID() (string, error) {
	for _, path := range []string{"/sys/class/dmi/id/product_uuid", "/etc/machine-id", "/var/lib/dbus/machine-id"} {
		b, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if id := strings.TrimSpace(string(b)); id != "" {
			return id, nil
		}
	}
	// Boards without DMI (Raspberry Pi and friends) expose a serial in cpuinfo.
	cpuinfo, err := os.ReadFile("/proc/cpuinfo")
	if err == nil {
		for _, line := range strings.Split(string(cpuinfo), "\n") {
			if strings.HasPrefix(line, "Serial") {
				parts := strings.Split(line, ":")
				if len(parts) == 2 {
					if id := strings.TrimSpace(parts[1]); id != "" {
						return id, nil
					}
				}
			}
		}
	}
	return "", ErrNoHardwareID
}

func getWindowsUUID() (string, error) {
	for _, args := range [][]string{{"csproduct", "get", "UUID"}, {"cpu", "get", "ProcessorId"}} {
		out, err := exec.Command("wmic", args...).Output()
		if err != nil {
			continue
		}
		header := args[len(args)-1]
		for _, line := range bytes.Split(out, []byte("\n")) {
			s := strings.TrimSpace(string(line))
			if s != "" && !strings.EqualFold(s, header) {
				return s, nil
			}
		}
	}
	return "", ErrNoHardwareID
}
