// Package util provides small helpers shared across RobotChat components.
package util

import (
	"math/rand/v2"
	"strings"
)

// GenerateRandomHex returns a random lowercase hexadecimal string of the given length.
// It is meant for collision-avoidance suffixes, not for secrets.
func GenerateRandomHex(length int) string {
	if length <= 0 {
		return ""
	}

	const hexChars = "0123456789abcdef"
	var builder strings.Builder
	builder.Grow(length)
	for i := 0; i < length; i++ {
		builder.WriteByte(hexChars[rand.IntN(16)])
	}
	return builder.String()
}
