package migration

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

const rollbackSuffix = ".rollback.sql"

// Forward scripts are named YYYYMMDD_HHMMSS_description.sql. The date and
// time prefix forms the version; the description becomes the display name.
var filenamePattern = regexp.MustCompile(`^(\d{8})_(\d{6})_(.+)\.sql$`)

// parseFilename extracts (version, name) from a forward migration filename.
// The version is the joined date and time prefix; the name is the description
// with separators replaced by spaces and each word capitalized.
func parseFilename(filename string) (version, name string, err error) {
	matches := filenamePattern.FindStringSubmatch(filename)
	if matches == nil {
		return "", "", fmt.Errorf("%w: %s", ErrInvalidFilename, filename)
	}
	version = matches[1] + "_" + matches[2]
	name = titleWords(strings.ReplaceAll(matches[3], "_", " "))
	return version, name, nil
}

// rollbackFilename returns the companion rollback script name for an applied
// version, reconstructed from the ledger entry's display name.
func rollbackFilename(version, name string) string {
	description := strings.ReplaceAll(strings.ToLower(name), " ", "_")
	return version + "_" + description + rollbackSuffix
}

// isRollbackFilename reports whether the file is a rollback companion, which
// forward discovery must never surface.
func isRollbackFilename(filename string) bool {
	return strings.HasSuffix(filename, rollbackSuffix)
}

func titleWords(s string) string {
	words := strings.Fields(s)
	for i, word := range words {
		runes := []rune(word)
		runes[0] = unicode.ToUpper(runes[0])
		for j := 1; j < len(runes); j++ {
			runes[j] = unicode.ToLower(runes[j])
		}
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
