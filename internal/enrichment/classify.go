package enrichment

// Classify maps a fetch result and the extraction attempted on it to an
// Outcome. A 404 wins regardless of body; any other fetch failure and an
// extraction miss both collapse into NotFound.
func Classify(res FetchResult, match Match, matched bool) Outcome {
	switch res.Status {
	case FetchNotFound:
		return BrokenLink()
	case FetchError:
		return NotFound(MissFetchError, res.Description)
	}
	if matched && match.ImageURL != "" {
		return Found(match.ImageURL, match.Heuristic)
	}
	return NotFound(MissNoMatch, "")
}
