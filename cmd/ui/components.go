package ui

import (
	"fmt"
	"strings"
)

// FormatKind renders an object kind with its color.
func FormatKind(kind string) string {
	switch kind {
	case "commit":
		return CommitStyle.Render(kind)
	case "tree":
		return TreeStyle.Render(kind)
	case "tag":
		return TagStyle.Render(kind)
	default:
		return BlobStyle.Render(kind)
	}
}

// SuccessMessage creates a success message with a checkmark icon
func SuccessMessage(message string, details ...string) string {
	var parts []string
	parts = append(parts, Green(IconCheckmark), Green(message))

	for _, detail := range details {
		parts = append(parts, Blue(detail))
	}

	return strings.Join(parts, " ")
}

// ErrorMessage creates an error message with a cross icon
func ErrorMessage(message string) string {
	return fmt.Sprintf("%s %s", Red(IconCross), Red(message))
}

// RefInfo formats a reference with its icon
func RefInfo(name string) string {
	return fmt.Sprintf("%s %s", Cyan(IconRef), Blue(name))
}

// PackInfo formats a pack digest with its icon
func PackInfo(digest string, count int) string {
	return fmt.Sprintf("%s %s (%d objects)", Cyan(IconPack), Blue(digest), count)
}

// ObjectLine formats one object for listing output
func ObjectLine(hash, kind string, size int64) string {
	return fmt.Sprintf("%s %s %s %d", IconObject, Yellow(hash), FormatKind(kind), size)
}
