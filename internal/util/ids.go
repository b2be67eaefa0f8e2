package util

import (
	"strings"

	"github.com/google/uuid"
)

// Id prefixes
const (
	FlowIDPrefix = "f_"
)

// GenerateID returns prefix followed by a random UUID in compact hex form.
func GenerateID(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// GenerateFlowID generates a unique flow session id with the "f_" prefix.
func GenerateFlowID() string {
	return GenerateID(FlowIDPrefix)
}

// IsFlowID reports whether id has the shape produced by GenerateFlowID.
func IsFlowID(id string) bool {
	rest, ok := strings.CutPrefix(id, FlowIDPrefix)
	if !ok || len(rest) != 32 {
		return false
	}
	_, err := uuid.Parse(rest)
	return err == nil
}
