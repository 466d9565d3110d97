package engine

import "strings"

// Classify maps one raw line of workflow output to a severity. A line
// mentioning an error token is ERROR unless it also mentions a warning
// token, in which case the warning takes precedence. Everything else is
// INFO. Matching is case-insensitive.
func Classify(line string) Level {
	lower := strings.ToLower(line)
	if strings.Contains(lower, "error") {
		if strings.Contains(lower, "warning") {
			return LevelWarning
		}
		return LevelError
	}
	return LevelInfo
}

// sanitizeLine strips the characters the engine is known to leak into its
// output stream before a line is stored.
func sanitizeLine(line string) string {
	r := strings.NewReplacer("'", "", ",", "", "\r", "", "\n", "")
	return strings.TrimSpace(r.Replace(line))
}
