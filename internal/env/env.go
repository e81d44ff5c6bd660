// Package env loads dotenv files into the process environment.
// Variables already present in the environment always win.
package env

import (
	"bufio"
	"os"
	"strings"
)

// Load reads each file in order and returns the keys it set. Later files
// override earlier ones. Missing files are skipped.
func Load(paths ...string) []string {
	pre := map[string]struct{}{}
	for _, e := range os.Environ() {
		if i := strings.IndexByte(e, '='); i > 0 {
			pre[e[:i]] = struct{}{}
		}
	}
	var set []string
	seen := map[string]struct{}{}
	for _, p := range paths {
		if p == "" {
			continue
		}
		f, err := os.Open(p)
		if err != nil {
			continue
		}
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			k, v, ok := parseLine(sc.Text())
			if !ok {
				continue
			}
			if _, exists := pre[k]; exists {
				continue
			}
			if os.Setenv(k, v) != nil {
				continue
			}
			if _, dup := seen[k]; !dup {
				seen[k] = struct{}{}
				set = append(set, k)
			}
		}
		_ = f.Close()
	}
	return set
}

func parseLine(raw string) (string, string, bool) {
	line := strings.TrimSpace(raw)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
	i := strings.IndexByte(line, '=')
	if i <= 0 {
		return "", "", false
	}
	k := strings.TrimSpace(line[:i])
	v := strings.TrimSpace(line[i+1:])
	if unq, ok := unquote(v); ok {
		return k, unq, true
	}
	if j := strings.Index(v, " #"); j >= 0 {
		v = strings.TrimSpace(v[:j])
	}
	return k, v, true
}

func unquote(v string) (string, bool) {
	if len(v) < 2 {
		return "", false
	}
	q := v[0]
	if (q == '"' || q == '\'') && v[len(v)-1] == q {
		return v[1 : len(v)-1], true
	}
	return "", false
}
