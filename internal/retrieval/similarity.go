package retrieval

import (
	"regexp"
	"strings"
)

var wordPattern = regexp.MustCompile(`[A-Za-z0-9_]+`)

func tokenize(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range wordPattern.FindAllString(strings.ToLower(s), -1) {
		if len(w) > 2 {
			out[w] = true
		}
	}
	return out
}

// capitalizedTerms is a deterministic, payload-only stand-in for an entity
// extractor: words starting with an uppercase letter, lowercased for
// comparison, are treated as named-entity candidates.
func capitalizedTerms(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range wordPattern.FindAllString(s, -1) {
		if len(w) > 2 && w[0] >= 'A' && w[0] <= 'Z' {
			out[strings.ToLower(w)] = true
		}
	}
	return out
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if b[k] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// entityOverlap approximates shared named entities between two chunks'
// content using capitalizedTerms as the entity proxy.
func entityOverlap(a, b Result) float64 {
	return jaccard(capitalizedTerms(a.Content), capitalizedTerms(b.Content))
}

// topicOverlap approximates shared subject matter via token Jaccard
// similarity over full chunk content.
func topicOverlap(a, b Result) float64 {
	return jaccard(tokenize(a.Content), tokenize(b.Content))
}

// metadataOverlap scores the fraction of shared payload keys whose values
// also agree, excluding identifying/content fields that are never equal
// across distinct documents.
func metadataOverlap(a, b Result) float64 {
	skip := map[string]bool{"document_id": true, "chunk_index": true, "content": true, "ancestors": true}
	matches, total := 0, 0
	for k, v := range a.Payload {
		if skip[k] {
			continue
		}
		if bv, ok := b.Payload[k]; ok {
			total++
			if bv == v {
				matches++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(matches) / float64(total)
}

// hierarchyDistance returns a 0-1 proximity score (1 = same parent or
// identical ancestor chain, 0 = disjoint) derived from each side's
// ancestors payload field.
func hierarchyDistance(a, b Result) float64 {
	aAnc := strings.Split(a.Payload["ancestors"], ",")
	bAnc := strings.Split(b.Payload["ancestors"], ",")
	aSet, bSet := map[string]bool{}, map[string]bool{}
	for _, id := range aAnc {
		if id != "" {
			aSet[id] = true
		}
	}
	for _, id := range bAnc {
		if id != "" {
			bSet[id] = true
		}
	}
	if len(aSet) == 0 && len(bSet) == 0 {
		return 0
	}
	return jaccard(aSet, bSet)
}

// compositeSimilarity is the weighted-sum scoring function every
// cross-document retrieval tool is built on.
func compositeSimilarity(a, b Result, w CompositeWeights) float64 {
	return w.Entity*entityOverlap(a, b) +
		w.Topic*topicOverlap(a, b) +
		w.Metadata*metadataOverlap(a, b) +
		w.Hierarchy*hierarchyDistance(a, b)
}
