package validate

import (
	"fmt"
	"regexp"
)

// channelPattern matches spec.md §3: lowercase, [a-z0-9][a-z0-9-]{0,19}.
var channelPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,19}$`)

// DefaultChannel is the reserved channel that always exists and cannot be
// renamed or deleted.
const DefaultChannel = "general"

// ChannelName validates a channel name against spec.md §3's pattern.
func ChannelName(name string) error {
	if !channelPattern.MatchString(name) {
		return fmt.Errorf("channel name must match [a-z0-9][a-z0-9-]{0,19}")
	}
	return nil
}

// ChannelMutable reports whether a rename/delete operation is permitted for
// the given channel name. The default channel is reserved.
func ChannelMutable(name string) error {
	if name == DefaultChannel {
		return fmt.Errorf("channel %q cannot be renamed or deleted", DefaultChannel)
	}
	return nil
}
