package supplier

import (
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"nouhin/internal"
	"nouhin/internal/normalize"
)

// Infer assigns a discovered file to a known supplier. Segments are folder
// names ordered from the watch root down to the file's parent; they are
// searched innermost first so the folder closest to the file wins. A
// candidate matches a segment by normalized code or name equality, or by its
// code or name appearing inside the normalized file name. Ties at the same
// segment go to the first-declared candidate.
//
// When neither the path pass nor the filename fallback finds anything, a
// fuzzy pass fills the inferred code/name hint fields only, leaving
// SupplierID nil so the item still lands in pending_supplier.
func Infer(segments []string, fileName string, candidates []internal.Supplier) internal.SupplierMatch {
	fileKey := normalize.Key(fileName)

	for i := len(segments) - 1; i >= 0; i-- {
		segmentKey := normalize.Key(segments[i])
		for _, candidate := range candidates {
			if matches(candidate, segmentKey, fileKey) {
				return matched(candidate)
			}
		}
	}

	for _, candidate := range candidates {
		code := normalize.Key(deref(candidate.Code))
		name := normalize.Key(candidate.Name)
		if (code != "" && strings.Contains(fileKey, code)) || (name != "" && strings.Contains(fileKey, name)) {
			return matched(candidate)
		}
	}

	return hintOnly(segments, fileKey, candidates)
}

func matches(candidate internal.Supplier, segmentKey, fileKey string) bool {
	code := normalize.Key(deref(candidate.Code))
	name := normalize.Key(candidate.Name)
	if code != "" && (code == segmentKey || strings.Contains(fileKey, code)) {
		return true
	}
	if name != "" && (name == segmentKey || strings.Contains(fileKey, name)) {
		return true
	}
	return false
}

func matched(candidate internal.Supplier) internal.SupplierMatch {
	id := candidate.ID
	name := candidate.Name
	return internal.SupplierMatch{
		SupplierID:   &id,
		InferredCode: candidate.Code,
		InferredName: &name,
	}
}

// hintOnly ranks candidate names by edit distance against the file name
// (extension and digits stripped) and the innermost folder, surfacing a best
// guess for the operator. A candidate only qualifies when the distance is
// under half its own name length, so unrelated names never become hints.
func hintOnly(segments []string, fileKey string, candidates []internal.Supplier) internal.SupplierMatch {
	targets := []string{stripNoise(fileKey)}
	if len(segments) > 0 {
		targets = append(targets, normalize.Key(segments[len(segments)-1]))
	}

	bestDistance := -1
	var best *internal.Supplier
	for i, candidate := range candidates {
		name := normalize.Key(candidate.Name)
		if name == "" {
			continue
		}
		for _, target := range targets {
			if target == "" {
				continue
			}
			distance := fuzzy.LevenshteinDistance(name, target)
			if distance*2 >= len([]rune(name)) {
				continue
			}
			if bestDistance < 0 || distance < bestDistance {
				bestDistance = distance
				best = &candidates[i]
			}
		}
	}

	if best == nil {
		return internal.SupplierMatch{}
	}
	name := best.Name
	return internal.SupplierMatch{
		InferredCode: best.Code,
		InferredName: &name,
	}
}

// stripNoise drops the extension and any digits from a normalized file key,
// leaving the part a supplier name could plausibly live in.
func stripNoise(fileKey string) string {
	if idx := strings.LastIndex(fileKey, "."); idx > 0 {
		fileKey = fileKey[:idx]
	}
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return -1
		}
		return r
	}, fileKey)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
