package materialize

import "unicode/utf8"

// EstimateTokens derives a context's token count from its content.
// The count is a deterministic local heuristic (roughly four characters per
// token); it is always recomputed here so the projection can never disagree
// with the content it was derived from.
func EstimateTokens(content string) int {
	runes := utf8.RuneCountInString(content)
	if runes == 0 {
		return 0
	}
	return (runes + 3) / 4
}
