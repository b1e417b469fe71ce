/*
 * Email Sleuth - Pattern Generation Module
 *
 * Author: Dr.Anach
 * Telegram: @dranach
 */

package main

import (
	"strings"
)

// patternRule is one canonical local-part template with its base confidence.
// The table order is the fixed priority order; ties later collapse to the
// earliest entry.
type patternRule struct {
	build      func(f, l, fi, li string) string
	confidence int
	needsFirst bool
	needsLast  bool
}

var patternTable = []patternRule{
	{func(f, l, fi, li string) string { return f + "." + l }, 7, true, true},
	{func(f, l, fi, li string) string { return f + l }, 6, true, true},
	{func(f, l, fi, li string) string { return fi + l }, 6, true, true},
	{func(f, l, fi, li string) string { return f + "_" + l }, 5, true, true},
	{func(f, l, fi, li string) string { return fi + "." + l }, 6, true, true},
	{func(f, l, fi, li string) string { return f + "-" + l }, 5, true, true},
	{func(f, l, fi, li string) string { return l + "." + f }, 4, true, true},
	{func(f, l, fi, li string) string { return l + f }, 3, true, true},
	{func(f, l, fi, li string) string { return fi }, 3, true, false},
	{func(f, l, fi, li string) string { return f }, 5, true, false},
	{func(f, l, fi, li string) string { return l }, 4, false, true},
	{func(f, l, fi, li string) string { return f + li }, 4, true, true},
}

// asciiFoldTable maps common accented runes onto their plain ASCII forms.
var asciiFoldTable = map[rune]string{
	'à': "a", 'á': "a", 'â': "a", 'ã': "a", 'ä': "a", 'å': "a", 'æ': "ae",
	'ç': "c", 'è': "e", 'é': "e", 'ê': "e", 'ë': "e",
	'ì': "i", 'í': "i", 'î': "i", 'ï': "i",
	'ñ': "n", 'ò': "o", 'ó': "o", 'ô': "o", 'õ': "o", 'ö': "o", 'ø': "o",
	'ù': "u", 'ú': "u", 'û': "u", 'ü': "u",
	'ý': "y", 'ÿ': "y", 'ß': "ss", 'œ': "oe",
}

// normalizeNamePart lowercases, ASCII-folds and strips everything but
// letters and digits from one name token.
func normalizeNamePart(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if folded, ok := asciiFoldTable[r]; ok {
			b.WriteString(folded)
			continue
		}
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizedName is the cleaned first/last pair pattern generation runs on.
type NormalizedName struct {
	First string
	Last  string
}

// NormalizeContactName derives the normalized name from a contact. Middle
// names are discarded: when only full_name is present, the first token is the
// first name and the final token is the last name.
func NormalizeContactName(c Contact) NormalizedName {
	first := normalizeNamePart(c.FirstName)
	last := normalizeNamePart(c.LastName)
	if first == "" && last == "" && c.FullName != "" {
		tokens := strings.Fields(c.FullName)
		if len(tokens) == 1 {
			first = normalizeNamePart(tokens[0])
		} else if len(tokens) > 1 {
			first = normalizeNamePart(tokens[0])
			last = normalizeNamePart(tokens[len(tokens)-1])
		}
	}
	return NormalizedName{First: first, Last: last}
}

// GeneratePatternCandidates produces the canonical candidate addresses for a
// normalized name at a domain. It is a pure function: identical inputs yield
// the identical ordered sequence. Duplicates collapse to the earliest
// (highest-priority) pattern.
func GeneratePatternCandidates(name NormalizedName, domain string) []*Candidate {
	f, l := name.First, name.Last
	fi, li := "", ""
	if f != "" {
		fi = f[:1]
	}
	if l != "" {
		li = l[:1]
	}

	seen := make(map[string]bool)
	var out []*Candidate
	for i, rule := range patternTable {
		if rule.needsFirst && f == "" {
			continue
		}
		if rule.needsLast && l == "" {
			continue
		}
		local := rule.build(f, l, fi, li)
		if local == "" {
			continue
		}
		email := local + "@" + domain
		if seen[email] {
			continue
		}
		seen[email] = true
		out = append(out, &Candidate{
			Email:          email,
			Source:         SourcePattern,
			IsGeneric:      isGenericLocalPart(local),
			baseConfidence: rule.confidence,
			priority:       i,
		})
	}
	return out
}
