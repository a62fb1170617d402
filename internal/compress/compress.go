package compress

import "strings"

// truncationMarker is appended when the strategy's output exceeds
// target_tokens and is cut to target_tokens*4 bytes.
const truncationMarker = "\n... [truncated]"

// CompressedContent is the result of Compress.
type CompressedContent struct {
	Text         string
	Ratio        float64
	QualityScore float64
}

// EstimateTokens is the cheap deterministic token estimate used throughout
// the compressor: length/4.
func EstimateTokens(text string) int {
	return len(text) / 4
}

// Compress applies strategy to text, targeting targetTokens, and returns
// the resulting CompressedContent.
func Compress(text string, strategy Strategy, targetTokens int) CompressedContent {
	if text == "" {
		return CompressedContent{Text: "", Ratio: 1.0, QualityScore: 1.0}
	}

	originalTokens := EstimateTokens(text)
	out := applyStrategy(strategy, text, targetTokens)

	if targetTokens > 0 && EstimateTokens(out) > targetTokens {
		cutoff := targetTokens * 4
		if cutoff < len(out) {
			out = out[:cutoff] + truncationMarker
		}
	}

	compressedTokens := EstimateTokens(out)
	ratio := 1.0
	if originalTokens > 0 {
		ratio = float64(compressedTokens) / float64(originalTokens)
	}

	return CompressedContent{
		Text:         out,
		Ratio:        ratio,
		QualityScore: qualityScore(ratio, text, out),
	}
}

// qualityScore = 0.3*ratio + 0.7*fraction of declaration keywords from the
// original text still present in the compressed output.
func qualityScore(ratio float64, original, compressed string) float64 {
	present := 0
	total := 0
	for _, kw := range declarationKeywords {
		if strings.Contains(original, kw) {
			total++
			if strings.Contains(compressed, kw) {
				present++
			}
		}
	}
	fraction := 1.0
	if total > 0 {
		fraction = float64(present) / float64(total)
	}
	return 0.3*ratio + 0.7*fraction
}
