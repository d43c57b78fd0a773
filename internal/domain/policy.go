package domain

import "fmt"

// MissingJoinPolicy controls how a message sender without a recorded join
// timestamp is classified.
type MissingJoinPolicy string

const (
	// PolicyAssumeNew synthesizes a join timestamp of "now" for unknown
	// senders, putting them on probation.
	PolicyAssumeNew MissingJoinPolicy = "assume-new"
	// PolicyTrusted treats unknown senders as established members and skips
	// scanning entirely.
	PolicyTrusted MissingJoinPolicy = "trusted"
)

// ParseMissingJoinPolicy validates a policy string from configuration.
func ParseMissingJoinPolicy(value string) (MissingJoinPolicy, error) {
	switch MissingJoinPolicy(value) {
	case PolicyAssumeNew:
		return PolicyAssumeNew, nil
	case PolicyTrusted:
		return PolicyTrusted, nil
	default:
		return "", fmt.Errorf("invalid missing-join policy %q: must be %q or %q",
			value, PolicyAssumeNew, PolicyTrusted)
	}
}
