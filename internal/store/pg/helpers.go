package pg

import (
	"strings"
	"time"
)

// --- Nullable helpers ---

func nilStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// --- PostgreSQL array helpers ---

// pqStringArray converts a Go string slice to a PostgreSQL text[] literal.
// Elements are voice or channel ids, which never contain commas or quotes.
func pqStringArray(arr []string) string {
	return "{" + strings.Join(arr, ",") + "}"
}

// scanStringArray parses a PostgreSQL text[] column (scanned as []byte) into a Go string slice.
func scanStringArray(data []byte, dest *[]string) {
	*dest = []string{}
	if len(data) == 0 {
		return
	}
	s := string(data)
	s = strings.TrimPrefix(s, "{")
	s = strings.TrimSuffix(s, "}")
	if s == "" {
		return
	}
	for _, part := range strings.Split(s, ",") {
		*dest = append(*dest, strings.Trim(part, `"`))
	}
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
