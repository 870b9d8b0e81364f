package utils

import (
	"strings"
)

// NormalizeToken folds operator-supplied enum values ("North ", "MANUAL",
// "in-active") into their canonical lower-case form.
func NormalizeToken(raw string) string {
	normalized := strings.TrimSpace(raw)
	normalized = strings.ReplaceAll(normalized, " ", "")
	normalized = strings.ReplaceAll(normalized, "-", "")
	normalized = strings.ReplaceAll(normalized, "_", "")
	normalized = strings.ToLower(normalized)
	return normalized
}
