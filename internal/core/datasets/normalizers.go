package datasets

import "strings"

// distributionAliases maps common spellings of distribution channels to
// their canonical enum value.
var distributionAliases = map[string]string{
	"traditional market": "traditional",
	"pasar tradisional":  "traditional",
	"modern market":      "modern",
	"modern retail":      "modern",
	"supermarket":        "modern",
	"bulog":              "government",
	"government program": "government",
	"mix":                "mixed",
}

// NormalizeChannel lowercases a distribution channel and resolves aliases.
func NormalizeChannel(s string) string {
	s = strings.ToLower(strings.Join(strings.Fields(s), " "))
	if canonical, ok := distributionAliases[s]; ok {
		return canonical
	}
	return s
}

// NormalizeKernel lowercases a kernel name and drops a trailing "kernel".
func NormalizeKernel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimSpace(strings.TrimSuffix(s, "kernel"))
	if s == "bi-square" {
		return "bisquare"
	}
	return s
}
