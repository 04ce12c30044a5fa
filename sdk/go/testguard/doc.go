// Package testguard runs Go tests inside a sandbox enforcement session.
// While a session is active, operations routed through the gateway
// (network dials, subprocesses, file writes, env mutation, clock control)
// are decided against the policy and every decision lands in the audit log.
//
// Usage:
//
//	func TestMain(m *testing.M) {
//	    os.Exit(testguard.Run(m))
//	}
//
//	func TestWrite(t *testing.T) {
//	    err := testguard.Default.WriteFile("/etc/hosts", nil, 0o644)
//	    if errors.Is(err, testguard.ErrFilesystemWriteBlocked) { ... }
//	}
//
// Test mode must be enabled in the policy (test_mode: true) or with
// TESTGUARD_TEST_MODE=1; otherwise no session is started.
package testguard
