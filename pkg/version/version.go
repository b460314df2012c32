// Package version provides version information for the marketpulse application.
package version

// Version is the current version of the marketpulse application.
const Version = "0.3.0"

// AgentString returns the User-Agent sent to upstream providers.
// Format: marketpulse/v{version}
func AgentString() string {
	return "marketpulse/v" + Version
}
