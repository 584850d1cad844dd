package lighthouse

import "strings"

// EnsureScheme prefixes https:// when input carries no scheme. A
// protocol-relative //host counts as scheme-less.
func EnsureScheme(input string) string {
	input = strings.TrimSpace(input)
	if input == "" || strings.Contains(input, "://") {
		return input
	}
	return "https://" + strings.TrimPrefix(input, "//")
}

// BareDomain strips the scheme, any userinfo, a leading www. and everything
// from the first path, query or fragment delimiter.
func BareDomain(input string) string {
	d := strings.TrimSpace(input)
	if i := strings.Index(d, "://"); i >= 0 {
		d = d[i+3:]
	}
	d = strings.TrimPrefix(d, "//")
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	if i := strings.LastIndex(d, "@"); i >= 0 {
		d = d[i+1:]
	}
	d = strings.ToLower(d)
	return strings.TrimPrefix(d, "www.")
}

// Candidates returns the four alternate forms of input in the order they are
// tried.
func Candidates(input string) []string {
	d := BareDomain(input)
	if d == "" {
		return nil
	}
	return []string{
		"https://" + d,
		"https://www." + d,
		"http://" + d,
		"http://www." + d,
	}
}

// sameInput compares two URLs ignoring case and a trailing slash.
func sameInput(a, b string) bool {
	return strings.EqualFold(strings.TrimSuffix(a, "/"), strings.TrimSuffix(b, "/"))
}
