package migration

import "strings"

// splitStatements splits script content on semicolons and drops fragments
// that are empty or contain only comment lines. The split is naive: it does
// not understand semicolons inside string literals or procedural blocks, so
// migration authors must keep one statement per semicolon-terminated step.
func splitStatements(content string) []string {
	var statements []string
	for _, fragment := range strings.Split(content, ";") {
		fragment = strings.TrimSpace(fragment)
		if fragment == "" {
			continue
		}
		var lines []string
		for _, line := range strings.Split(fragment, "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "--") {
				continue
			}
			lines = append(lines, line)
		}
		if len(lines) == 0 {
			continue
		}
		statements = append(statements, strings.Join(lines, "\n"))
	}
	return statements
}
