// Package preflight provides startup validation checks.
package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
)

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// RunAll executes all preflight checks.
func RunAll(chains, parallel int, modelExe, dataFile, outputDir string) *Result {
	result := &Result{
		Checks: make([]Check, 0, 6),
		Passed: true,
	}

	add := func(c Check) {
		result.Checks = append(result.Checks, c)
		if !c.Passed {
			result.Passed = false
		}
	}

	add(checkModelExe(modelExe))
	if dataFile != "" {
		add(checkDataFile(dataFile))
	}
	add(checkOutputDir(outputDir))
	add(checkFileDescriptors(chains))

	// Advisory only.
	result.Checks = append(result.Checks, checkCPUs(parallel))

	return result
}

// checkModelExe verifies the compiled model exists and is executable.
func checkModelExe(path string) Check {
	info, err := os.Stat(path)
	if err != nil {
		return Check{
			Name:    "model_exe",
			Passed:  false,
			Message: fmt.Sprintf("not found at %s: %v", path, err),
		}
	}
	if info.IsDir() {
		return Check{
			Name:    "model_exe",
			Passed:  false,
			Message: fmt.Sprintf("%s is a directory", path),
		}
	}
	if runtime.GOOS != "windows" && info.Mode()&0o111 == 0 {
		return Check{
			Name:    "model_exe",
			Passed:  false,
			Message: fmt.Sprintf("%s is not executable", path),
		}
	}

	return Check{
		Name:    "model_exe",
		Passed:  true,
		Message: fmt.Sprintf("found at %s (%d bytes)", path, info.Size()),
	}
}

// checkDataFile verifies the data file is readable.
func checkDataFile(path string) Check {
	f, err := os.Open(path)
	if err != nil {
		return Check{
			Name:    "data_file",
			Passed:  false,
			Message: fmt.Sprintf("cannot read %s: %v", path, err),
		}
	}
	f.Close()

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".json" && ext != ".r" {
		return Check{
			Name:    "data_file",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("%s has unusual extension %q (expected .json or .R)", path, ext),
		}
	}

	return Check{
		Name:    "data_file",
		Passed:  true,
		Message: fmt.Sprintf("readable at %s", path),
	}
}

// checkOutputDir verifies the output directory is writable by
// actually creating a file in it.
func checkOutputDir(dir string) Check {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Check{
			Name:    "output_dir",
			Passed:  false,
			Message: fmt.Sprintf("cannot create %s: %v", dir, err),
		}
	}

	probe, err := os.CreateTemp(dir, ".preflight-*")
	if err != nil {
		return Check{
			Name:    "output_dir",
			Passed:  false,
			Message: fmt.Sprintf("%s is not writable: %v", dir, err),
		}
	}
	probe.Close()
	os.Remove(probe.Name())

	return Check{
		Name:    "output_dir",
		Passed:  true,
		Message: fmt.Sprintf("writable at %s", dir),
	}
}

// checkFileDescriptors verifies sufficient file descriptors are
// available. Each chain holds a console file, an output CSV, and
// pipes; the orchestrator adds the metrics listener and logging.
func checkFileDescriptors(chains int) Check {
	var limit syscall.Rlimit
	syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit)

	required := chains*10 + 64
	actual := int(limit.Cur)

	return Check{
		Name:     "file_descriptors",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -n %d (need %d for %d chains)", actual, required, chains),
	}
}

// checkCPUs warns when more chains run at once than there are CPUs.
func checkCPUs(parallel int) Check {
	cpus := runtime.NumCPU()
	return Check{
		Name:     "cpus",
		Required: parallel,
		Actual:   cpus,
		Passed:   true,
		Warning:  parallel > cpus,
		Message:  fmt.Sprintf("%d CPUs for %d parallel chains", cpus, parallel),
	}
}

// PrintResults prints the preflight check results to stdout.
func PrintResults(result *Result) {
	fmt.Println("Preflight checks:")
	for _, check := range result.Checks {
		fmt.Println(check.String())
		if !check.Passed {
			fmt.Printf("    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Println()
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "model_exe":
		return "compile the model with CmdStan's make, or pass the right path"
	case "data_file":
		return "pass --data with a readable JSON data file"
	case "output_dir":
		return "pass --output-dir pointing at a writable directory"
	case "file_descriptors":
		return "ulimit -n 4096 (or reduce --chains)"
	default:
		return "see documentation"
	}
}
