package domain

import (
	"regexp"
	"sort"
	"strings"
)

var leadingTag = regexp.MustCompile(`^\[([A-Za-z0-9]+)\]`)

// ExtractTags splits `[A][B] text` into tags and the remaining text.
func ExtractTags(desc string) ([]string, string) {
	var tags []string
	for {
		m := leadingTag.FindStringSubmatch(desc)
		if m == nil {
			break
		}
		tags = append(tags, m[1])
		desc = desc[len(m[0]):]
	}
	return tags, strings.TrimSpace(desc)
}

// MergeTags adds tags to a description that may already start with tags.
func MergeTags(desc string, tags []string) string {
	oldTags, text := ExtractTags(desc)
	seen := map[string]bool{}
	var merged []string
	for _, tag := range append(append([]string{}, tags...), oldTags...) {
		if !seen[tag] {
			seen[tag] = true
			merged = append(merged, tag)
		}
	}
	if len(merged) == 0 {
		return text
	}
	sort.Strings(merged)
	return strings.TrimSpace("[" + strings.Join(merged, "][") + "] " + text)
}
