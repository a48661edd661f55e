//go:build windows

// pkg/inventory/adapters_windows.go - registry, WMI and filesystem backed
// inventory sources.

package inventory

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/yusufpapurcu/wmi"
	"golang.org/x/sys/windows/registry"
)

// uninstallHives are the registry locations that list installed desktop
// applications, covering 64-bit, 32-bit and per-user installs.
var uninstallHives = []struct {
	root registry.Key
	path string
}{
	{registry.LOCAL_MACHINE, `Software\Microsoft\Windows\CurrentVersion\Uninstall`},
	{registry.LOCAL_MACHINE, `Software\Wow6432Node\Microsoft\Windows\CurrentVersion\Uninstall`},
	{registry.CURRENT_USER, `Software\Microsoft\Windows\CurrentVersion\Uninstall`},
}

type registryUninstallSource struct{}

// NewRegistryUninstallSource enumerates the registry Uninstall hives.
func NewRegistryUninstallSource() Source {
	return registryUninstallSource{}
}

func (registryUninstallSource) Name() string   { return "registry-uninstall" }
func (registryUninstallSource) Origin() Origin { return OriginRegistry }

func (registryUninstallSource) Collect(ctx context.Context) ([]RawRecord, error) {
	var records []RawRecord
	for _, hive := range uninstallHives {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		key, err := registry.OpenKey(hive.root, hive.path, registry.READ)
		if err != nil {
			continue
		}
		subKeys, err := key.ReadSubKeyNames(0)
		key.Close()
		if err != nil {
			continue
		}
		for _, subKey := range subKeys {
			fullPath := hive.path + `\` + subKey
			sub, err := registry.OpenKey(hive.root, fullPath, registry.READ)
			if err != nil {
				continue
			}

			fields := map[string]string{"KeyName": subKey, "KeyPath": fullPath}
			if name, _, err := sub.GetStringValue("DisplayName"); err == nil {
				fields["DisplayName"] = name
			}
			if ver, _, err := sub.GetStringValue("DisplayVersion"); err == nil {
				fields["Version"] = ver
			}
			if uninstall, _, err := sub.GetStringValue("UninstallString"); err == nil {
				fields["UninstallString"] = uninstall
			}
			if quiet, _, err := sub.GetStringValue("QuietUninstallString"); err == nil {
				fields["QuietUninstallString"] = quiet
			}
			if publisher, _, err := sub.GetStringValue("Publisher"); err == nil {
				fields["Publisher"] = publisher
			}
			sub.Close()

			// Entries with neither a display name nor an uninstall command
			// are leftovers we can do nothing with.
			if fields["DisplayName"] == "" && fields["UninstallString"] == "" {
				continue
			}
			records = append(records, RawRecord{Origin: OriginRegistry, Fields: fields})
		}
	}
	return records, nil
}

// Win32_Service mirrors the WMI class of the same name; the type name is
// significant because the wmi package derives the query from it.
type Win32_Service struct {
	Name        string
	DisplayName string
	State       string
	StartMode   string
	PathName    string
}

type serviceSource struct{}

// NewServiceSource lists Windows services via WMI.
func NewServiceSource() Source {
	return serviceSource{}
}

func (serviceSource) Name() string   { return "wmi-services" }
func (serviceSource) Origin() Origin { return OriginService }

func (serviceSource) Collect(ctx context.Context) ([]RawRecord, error) {
	var services []Win32_Service
	query := wmi.CreateQuery(&services, "")
	if err := wmi.Query(query, &services); err != nil {
		return nil, err
	}

	records := make([]RawRecord, 0, len(services))
	for _, svc := range services {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		records = append(records, RawRecord{
			Origin: OriginService,
			Fields: map[string]string{
				"Name":        svc.Name,
				"DisplayName": svc.DisplayName,
				"State":       svc.State,
				"StartMode":   svc.StartMode,
				"PathName":    svc.PathName,
			},
		})
	}
	return records, nil
}

type shortcutSource struct {
	dirs []string
}

// NewShortcutSource walks the common and per-user start menu directories.
func NewShortcutSource() Source {
	return &shortcutSource{
		dirs: []string{
			filepath.Join(os.Getenv("ProgramData"), `Microsoft\Windows\Start Menu\Programs`),
			filepath.Join(os.Getenv("APPDATA"), `Microsoft\Windows\Start Menu\Programs`),
		},
	}
}

func (*shortcutSource) Name() string   { return "start-menu-shortcuts" }
func (*shortcutSource) Origin() Origin { return OriginShortcut }

func (s *shortcutSource) Collect(ctx context.Context) ([]RawRecord, error) {
	var records []RawRecord
	for _, dir := range s.dirs {
		if dir == "" {
			continue
		}
		filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return nil // unreadable entries are skipped, not fatal
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if info.IsDir() || !strings.EqualFold(filepath.Ext(path), ".lnk") {
				return nil
			}
			name := strings.TrimSuffix(info.Name(), filepath.Ext(info.Name()))
			records = append(records, RawRecord{
				Origin: OriginShortcut,
				Fields: map[string]string{"Name": name, "Path": path},
			})
			return nil
		})
	}
	return records, ctx.Err()
}

// startupRunKeys are the registry locations for login-time auto-start
// entries.
var startupRunKeys = []struct {
	root registry.Key
	path string
}{
	{registry.LOCAL_MACHINE, `Software\Microsoft\Windows\CurrentVersion\Run`},
	{registry.LOCAL_MACHINE, `Software\Wow6432Node\Microsoft\Windows\CurrentVersion\Run`},
	{registry.CURRENT_USER, `Software\Microsoft\Windows\CurrentVersion\Run`},
}

type startupSource struct{}

// NewStartupSource lists auto-start entries from the Run registry keys and
// the Startup folders.
func NewStartupSource() Source {
	return startupSource{}
}

func (startupSource) Name() string   { return "startup-entries" }
func (startupSource) Origin() Origin { return OriginStartup }

func (startupSource) Collect(ctx context.Context) ([]RawRecord, error) {
	var records []RawRecord

	for _, run := range startupRunKeys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		key, err := registry.OpenKey(run.root, run.path, registry.READ)
		if err != nil {
			continue
		}
		names, err := key.ReadValueNames(0)
		if err != nil {
			key.Close()
			continue
		}
		for _, name := range names {
			command, _, err := key.GetStringValue(name)
			if err != nil {
				continue
			}
			records = append(records, RawRecord{
				Origin: OriginStartup,
				Fields: map[string]string{
					"Name":    name,
					"Command": command,
					"KeyPath": run.path,
				},
			})
		}
		key.Close()
	}

	startupDirs := []string{
		filepath.Join(os.Getenv("ProgramData"), `Microsoft\Windows\Start Menu\Programs\StartUp`),
		filepath.Join(os.Getenv("APPDATA"), `Microsoft\Windows\Start Menu\Programs\Startup`),
	}
	for _, dir := range startupDirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || strings.EqualFold(entry.Name(), "desktop.ini") {
				continue
			}
			name := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
			records = append(records, RawRecord{
				Origin: OriginStartup,
				Fields: map[string]string{
					"Name":    name,
					"Command": filepath.Join(dir, entry.Name()),
				},
			})
		}
	}

	return records, nil
}
