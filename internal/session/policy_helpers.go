package session

import (
	"path/filepath"
	"strings"
)

// destructivePatterns are path-touching commands the direct executor
// variant cannot sandbox, so the policy gate's rule 4 treats them as
// requiring approval rather than relying on process isolation.
var destructivePatterns = []string{
	"rm -rf", "rm -r", "mkfs", "dd if=", ":(){ :|:& };:", "> /dev/sd",
}

func isDestructivePattern(path string) bool {
	if path == "" {
		return false
	}
	lower := strings.ToLower(path)
	for _, p := range destructivePatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// pathWithin reports whether candidate resolves to a location inside root.
func pathWithin(root, candidate string) bool {
	rel, err := filepath.Rel(root, candidate)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
