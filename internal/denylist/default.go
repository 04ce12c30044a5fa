package denylist

// DefaultProtectedFiles are blocked for writes even under an allowed root:
// the project's secrets file and the watchdog liveness marker.
var DefaultProtectedFiles = []string{
	".env",
	"watchdog.alive",
}
