// pkg/inventory/adapters.go - inventory sources backed by external tools.
//
// These adapters shell out through command.Runner, so the parsing logic is
// testable with canned tool output. Registry- and WMI-backed adapters live
// in adapters_windows.go.

package inventory

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/windowsadmins/reclaim/pkg/command"
)

// toolSource is the common shape of an adapter that invokes one external tool.
type toolSource struct {
	name    string
	origin  Origin
	runner  command.Runner
	timeout time.Duration
	collect func(ctx context.Context, s *toolSource) ([]RawRecord, error)
}

func (s *toolSource) Name() string   { return s.name }
func (s *toolSource) Origin() Origin { return s.origin }

func (s *toolSource) Collect(ctx context.Context) ([]RawRecord, error) {
	return s.collect(ctx, s)
}

// NewWingetSource lists packages known to the winget package manager.
func NewWingetSource(runner command.Runner, timeout time.Duration) Source {
	return &toolSource{
		name:    "winget-list",
		origin:  OriginWinget,
		runner:  runner,
		timeout: timeout,
		collect: collectWinget,
	}
}

func collectWinget(ctx context.Context, s *toolSource) ([]RawRecord, error) {
	result, err := s.runner.Run(ctx, "winget",
		[]string{"list", "--disable-interactivity", "--accept-source-agreements"}, s.timeout)
	if err != nil {
		return nil, fmt.Errorf("winget list: %w", err)
	}
	return parseWingetTable(result.Stdout), nil
}

// parseWingetTable parses winget's fixed-width table output. Column offsets
// are taken from the header line, so localized column contents still line up.
func parseWingetTable(output string) []RawRecord {
	lines := strings.Split(strings.ReplaceAll(output, "\r\n", "\n"), "\n")

	headerIdx := -1
	var nameStart, idStart, versionStart int
	for i, line := range lines {
		idIdx := strings.Index(line, "Id")
		verIdx := strings.Index(line, "Version")
		if strings.HasPrefix(strings.TrimSpace(line), "Name") && idIdx > 0 && verIdx > idIdx {
			headerIdx = i
			nameStart = strings.Index(line, "Name")
			idStart = idIdx
			versionStart = verIdx
			break
		}
	}
	if headerIdx < 0 {
		return nil
	}

	var records []RawRecord
	for _, line := range lines[headerIdx+1:] {
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "---") {
			continue
		}
		if len(line) <= idStart {
			continue
		}
		name := strings.TrimSpace(sliceColumn(line, nameStart, idStart))
		end := versionStart
		if end > len(line) {
			end = len(line)
		}
		id := strings.TrimSpace(sliceColumn(line, idStart, end))
		ver := ""
		if versionStart < len(line) {
			rest := strings.Fields(line[versionStart:])
			if len(rest) > 0 {
				ver = rest[0]
			}
		}
		if name == "" && id == "" {
			continue
		}
		records = append(records, RawRecord{
			Origin: OriginWinget,
			Fields: map[string]string{"Name": name, "Id": id, "Version": ver},
		})
	}
	return records
}

func sliceColumn(line string, start, end int) string {
	if start >= len(line) {
		return ""
	}
	if end > len(line) {
		end = len(line)
	}
	return line[start:end]
}

// NewChocoSource lists packages installed via Chocolatey.
func NewChocoSource(runner command.Runner, timeout time.Duration) Source {
	return &toolSource{
		name:    "choco-list",
		origin:  OriginChoco,
		runner:  runner,
		timeout: timeout,
		collect: collectChoco,
	}
}

func collectChoco(ctx context.Context, s *toolSource) ([]RawRecord, error) {
	result, err := s.runner.Run(ctx, "choco",
		[]string{"list", "--local-only", "--limit-output"}, s.timeout)
	if err != nil {
		return nil, fmt.Errorf("choco list: %w", err)
	}
	return parseChocoList(result.Stdout), nil
}

// parseChocoList parses choco's --limit-output format: one "name|version"
// pair per line.
func parseChocoList(output string) []RawRecord {
	var records []RawRecord
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !strings.Contains(line, "|") {
			continue
		}
		parts := strings.SplitN(line, "|", 2)
		record := RawRecord{
			Origin: OriginChoco,
			Fields: map[string]string{"Name": parts[0]},
		}
		if len(parts) == 2 {
			record.Fields["Version"] = strings.TrimSpace(parts[1])
		}
		records = append(records, record)
	}
	return records
}

// NewAppxSource lists AppX packages installed for the current user context.
func NewAppxSource(runner command.Runner, timeout time.Duration) Source {
	return &toolSource{
		name:    "appx-packages",
		origin:  OriginAppx,
		runner:  runner,
		timeout: timeout,
		collect: collectAppx,
	}
}

func collectAppx(ctx context.Context, s *toolSource) ([]RawRecord, error) {
	script := "Get-AppxPackage | Select-Object Name,PackageFullName,PackageFamilyName,Version | ConvertTo-Json -Compress"
	result, err := runPowerShell(ctx, s.runner, script, s.timeout)
	if err != nil {
		return nil, fmt.Errorf("appx query: %w", err)
	}
	return parsePowerShellJSON(result.Stdout, OriginAppx), nil
}

// NewProvisionedSource lists AppX packages provisioned into the OS image,
// which would auto-install for new user profiles.
func NewProvisionedSource(runner command.Runner, timeout time.Duration) Source {
	return &toolSource{
		name:    "provisioned-packages",
		origin:  OriginProvisioned,
		runner:  runner,
		timeout: timeout,
		collect: collectProvisioned,
	}
}

func collectProvisioned(ctx context.Context, s *toolSource) ([]RawRecord, error) {
	script := "Get-AppxProvisionedPackage -Online | Select-Object DisplayName,PackageName,Version | ConvertTo-Json -Compress"
	result, err := runPowerShell(ctx, s.runner, script, s.timeout)
	if err != nil {
		return nil, fmt.Errorf("provisioned package query: %w", err)
	}
	return parsePowerShellJSON(result.Stdout, OriginProvisioned), nil
}

// NewFeatureSource lists enabled Windows optional features.
func NewFeatureSource(runner command.Runner, timeout time.Duration) Source {
	return &toolSource{
		name:    "windows-features",
		origin:  OriginFeature,
		runner:  runner,
		timeout: timeout,
		collect: collectFeatures,
	}
}

func collectFeatures(ctx context.Context, s *toolSource) ([]RawRecord, error) {
	script := "Get-WindowsOptionalFeature -Online | Where-Object {$_.State -eq 'Enabled'} | Select-Object FeatureName | ConvertTo-Json -Compress"
	result, err := runPowerShell(ctx, s.runner, script, s.timeout)
	if err != nil {
		return nil, fmt.Errorf("optional feature query: %w", err)
	}
	return parsePowerShellJSON(result.Stdout, OriginFeature), nil
}

// NewScheduledTaskSource lists registered scheduled tasks.
func NewScheduledTaskSource(runner command.Runner, timeout time.Duration) Source {
	return &toolSource{
		name:    "scheduled-tasks",
		origin:  OriginTask,
		runner:  runner,
		timeout: timeout,
		collect: collectScheduledTasks,
	}
}

func collectScheduledTasks(ctx context.Context, s *toolSource) ([]RawRecord, error) {
	result, err := s.runner.Run(ctx, "schtasks", []string{"/Query", "/FO", "CSV"}, s.timeout)
	if err != nil {
		return nil, fmt.Errorf("schtasks query: %w", err)
	}
	return parseTaskCSV(result.Stdout), nil
}

// parseTaskCSV parses schtasks CSV output. The first column is the full
// task path ("\Vendor\Task"); the base name doubles as the display name.
func parseTaskCSV(output string) []RawRecord {
	reader := csv.NewReader(strings.NewReader(output))
	reader.FieldsPerRecord = -1

	var records []RawRecord
	seen := make(map[string]struct{})
	for {
		row, err := reader.Read()
		if err != nil {
			break
		}
		if len(row) == 0 || row[0] == "TaskName" || !strings.HasPrefix(row[0], `\`) {
			continue
		}
		taskPath := row[0]
		if _, dup := seen[taskPath]; dup {
			continue
		}
		seen[taskPath] = struct{}{}

		name := taskPath
		if idx := strings.LastIndex(taskPath, `\`); idx >= 0 {
			name = taskPath[idx+1:]
		}
		fields := map[string]string{"TaskName": name, "TaskPath": taskPath}
		if len(row) > 2 {
			fields["Status"] = row[2]
		}
		records = append(records, RawRecord{Origin: OriginTask, Fields: fields})
	}
	return records
}

// runPowerShell executes a one-line script, preferring PowerShell Core when
// it is on PATH.
func runPowerShell(ctx context.Context, runner command.Runner, script string, timeout time.Duration) (command.Result, error) {
	args := []string{"-NoLogo", "-NoProfile", "-NonInteractive", "-Command", script}
	result, err := runner.Run(ctx, "powershell.exe", args, timeout)
	if err != nil && result.ExitCode == -1 {
		// powershell.exe not found at all; try pwsh before giving up.
		return runner.Run(ctx, "pwsh.exe", args, timeout)
	}
	return result, err
}

// parsePowerShellJSON decodes ConvertTo-Json output into raw records.
// A single result serializes as one object rather than an array.
func parsePowerShellJSON(output string, origin Origin) []RawRecord {
	output = strings.TrimSpace(output)
	if output == "" {
		return nil
	}

	var objects []map[string]interface{}
	if strings.HasPrefix(output, "[") {
		if err := json.Unmarshal([]byte(output), &objects); err != nil {
			return nil
		}
	} else {
		var single map[string]interface{}
		if err := json.Unmarshal([]byte(output), &single); err != nil {
			return nil
		}
		objects = append(objects, single)
	}

	records := make([]RawRecord, 0, len(objects))
	for _, obj := range objects {
		fields := make(map[string]string, len(obj))
		for key, value := range obj {
			switch v := value.(type) {
			case string:
				fields[key] = v
			case float64:
				fields[key] = strings.TrimSuffix(fmt.Sprintf("%f", v), ".000000")
			}
		}
		if len(fields) == 0 {
			continue
		}
		records = append(records, RawRecord{Origin: origin, Fields: fields})
	}
	return records
}
