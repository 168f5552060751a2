package utility

import (
	"github.com/google/uuid"
	"strconv"
	"strings"
)

// ToFloat converts a string like "16.5" to a float, rejecting empty and non-numeric input
func ToFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// Normalize folds an enumeration name for comparison: "Suspended EVSE", "suspended_evse" and
// "SuspendedEVSE" all become "suspendedevse"
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "_", "")
	s = strings.ReplaceAll(s, " ", "")
	return strings.ToLower(s)
}

func NewUUID() string {
	return uuid.New().String()
}
