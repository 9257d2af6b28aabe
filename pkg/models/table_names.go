package models

import (
	"path"
	"regexp"
	"strings"

	"github.com/jinzhu/inflection"
)

// TargetTablePrefix prefixes every warehouse table created by a workflow.
const TargetTablePrefix = "ETL_"

var nonIdentifierChars = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// fileStem returns the base name up to its first dot.
func fileStem(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if i := strings.Index(base, "."); i >= 0 {
		base = base[:i]
	}
	return base
}

// TargetTableName derives the warehouse table for an uploaded file:
// "customers.csv" becomes "ETL_CUSTOMERS".
func TargetTableName(filename string) string {
	stem := nonIdentifierChars.ReplaceAllString(fileStem(filename), "_")
	if stem == "" {
		stem = "DATA"
	}
	return TargetTablePrefix + strings.ToUpper(stem)
}

// TargetTableCandidates returns the canonical target table followed by its
// singular and plural variants, without duplicates. Generated scripts do not
// always keep the file's grammatical number.
func TargetTableCandidates(filename string) []string {
	primary := TargetTableName(filename)
	stem := strings.ToLower(strings.TrimPrefix(primary, TargetTablePrefix))

	out := []string{primary}
	seen := map[string]bool{primary: true}
	for _, variant := range []string{inflection.Singular(stem), inflection.Plural(stem)} {
		name := TargetTablePrefix + strings.ToUpper(variant)
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}
