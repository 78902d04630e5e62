package query

import (
	"sort"
	"strings"
)

// channelSlugs special-cases raw source slugs whose display form is not
// plain title-casing. The same table serves the filter-option list and
// record matching; the two must always agree or matches silently fail.
var channelSlugs = map[string]string{
	"linkedin":       "LinkedIn",
	"facebook_ads":   "Facebook Ads",
	"google_ads":     "Google Ads",
	"seo":            "SEO",
	"ppc":            "PPC",
	"word_of_mouth":  "Word of Mouth",
	"email_campaign": "Email Campaign",
}

// DisplayChannel normalizes a raw channel label to its display form:
// known slugs map through the table, everything else is title-cased
// word by word. Empty input stays empty.
func DisplayChannel(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	key := strings.ReplaceAll(strings.ToLower(trimmed), " ", "_")
	key = strings.ReplaceAll(key, "-", "_")
	if display, ok := channelSlugs[key]; ok {
		return display
	}

	words := strings.Fields(strings.NewReplacer("_", " ", "-", " ").Replace(strings.ToLower(trimmed)))
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}

// Channels returns the distinct normalized channel names present in the
// projected collection, sorted for a stable option list.
func Channels(fields []Fields) []string {
	seen := make(map[string]struct{})
	for _, f := range fields {
		display := DisplayChannel(f.Channel)
		if display == "" {
			continue
		}
		seen[display] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
