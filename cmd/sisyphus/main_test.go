package main

import (
	"errors"
	"os"
	"os/exec"
	"strings"
	"testing"

	"github.com/ekorchmar/sisyphus/pkg/sisyphus"
)

// TestMain_PanicExitCode re-executes the test binary with the panic hook
// armed and verifies the recover path exits with ExitPanic and prints a
// stack trace.
func TestMain_PanicExitCode(t *testing.T) {
	if os.Getenv("SISYPHUS_TEST_PANIC") == "1" {
		main()
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestMain_PanicExitCode")
	cmd.Env = append(os.Environ(), "SISYPHUS_TEST_PANIC=1")
	output, err := cmd.CombinedOutput()

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected the subprocess to exit with an error, got %v", err)
	}
	if code := exitErr.ExitCode(); code != sisyphus.ExitPanic {
		t.Errorf("exit code = %d, want %d", code, sisyphus.ExitPanic)
	}
	if !strings.Contains(string(output), "intentional test panic") {
		t.Errorf("panic message missing from output:\n%s", output)
	}
}
