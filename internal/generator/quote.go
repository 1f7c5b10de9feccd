package generator

import (
	"regexp"
	"strconv"
	"strings"
)

// shellQuote wraps s in single quotes for POSIX shells.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// groovyString returns s as a single-quoted Groovy string literal.
func groovyString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`, "\r", `\r`)
	return "'" + r.Replace(s) + "'"
}

// groovyScript escapes s for the body of a triple-single-quoted Groovy string.
func groovyScript(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}

var nonIdent = regexp.MustCompile(`[^A-Za-z0-9_]+`)

// identifier derives a shell-safe identifier from name.
func identifier(name string) string {
	id := strings.Trim(nonIdent.ReplaceAllString(name, "_"), "_")
	if id == "" {
		return "action"
	}
	return id
}

// uniqueNames maps each name to a distinct identifier built by mk.
func uniqueNames(names []string, mk func(string) string) map[string]string {
	out := make(map[string]string, len(names))
	used := make(map[string]bool, len(names))
	for _, n := range names {
		base := mk(n)
		id := base
		for i := 2; used[id]; i++ {
			id = base + "_" + strconv.Itoa(i)
		}
		used[id] = true
		out[n] = id
	}
	return out
}

var nonKey = regexp.MustCompile(`[^A-Z0-9]+`)

// bambooKey derives an upper-case alphanumeric key that starts with a letter.
func bambooKey(s, fallback string) string {
	key := nonKey.ReplaceAllString(strings.ToUpper(s), "")
	if key == "" {
		return fallback
	}
	if key[0] < 'A' || key[0] > 'Z' {
		key = fallback[:1] + key
	}
	return key
}

// bambooEnv renders bindings in the space-separated NAME=value form of script tasks.
func bambooEnv(pairs [][2]string) string {
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		v := p[1]
		if v == "" || strings.ContainsAny(v, " \t\n\"'\\") {
			v = `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`).Replace(v) + `"`
		}
		parts = append(parts, p[0]+"="+v)
	}
	return strings.Join(parts, " ")
}
