package chat

import "regexp"

var clipPattern = regexp.MustCompile(`(?i)\b(?:https?://)?(?:clips\.twitch\.tv/|(?:www\.|m\.)?twitch\.tv/[a-z0-9_]+/clip/)([a-z0-9_-]+)`)

// ExtractClipSlugs returns the distinct clip slugs referenced in text, in
// order of first appearance.
func ExtractClipSlugs(text string) []string {
	matches := clipPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	slugs := make([]string, 0, len(matches))
	for _, m := range matches {
		slug := m[1]
		if _, ok := seen[slug]; ok {
			continue
		}
		seen[slug] = struct{}{}
		slugs = append(slugs, slug)
	}
	return slugs
}
