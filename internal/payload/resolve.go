package payload

import "errors"

// ErrForeignShape marks output that parsed cleanly but is not an insight
// extraction (e.g. a keyword or theme extraction from another prompt).
// Callers treat it as zero candidates, not as a failure.
var ErrForeignShape = errors.New("payload is not an insight extraction")

// ResolvePayload recovers a candidate list from an agent result. It tries a
// de-duplicated set of text candidates derived from the direct text output
// and the raw provider object, and accepts the first recovered value that is
// an array, an object with an insights/items field, or a single-insight
// object. When no text candidate qualifies it inspects the raw object
// directly, one level deep. Returns (nil, nil) when nothing is recoverable.
func ResolvePayload(text string, raw any) ([]Candidate, error) {
	for _, t := range candidateTexts(text, raw) {
		v := RecoverStructure(t)
		if v == nil {
			continue
		}
		list, err := classify(v)
		if err != nil {
			return nil, err
		}
		if list != nil {
			return decodeCandidates(list), nil
		}
	}

	if list := rawList(raw); list != nil {
		return decodeCandidates(list), nil
	}
	return nil, nil
}

// candidateTexts builds the ordered, de-duplicated set of strings to try.
func candidateTexts(text string, raw any) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(s string) {
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}

	add(text)
	add(sanitize(text))
	add(braceRe.FindString(text))

	extracted := ExtractText(raw)
	add(extracted)
	add(sanitize(extracted))
	add(braceRe.FindString(extracted))

	return out
}

// classify decides whether a recovered value carries insight candidates.
// Returns (nil, nil) for unusable shapes so the caller keeps trying.
func classify(v any) ([]any, error) {
	switch val := v.(type) {
	case []any:
		return val, nil
	case map[string]any:
		if l, ok := val["insights"].([]any); ok {
			return l, nil
		}
		if l, ok := val["items"].([]any); ok {
			return l, nil
		}
		for _, k := range []string{"keywords", "themes", "topics", "key_phrases"} {
			if _, ok := val[k]; ok {
				return nil, ErrForeignShape
			}
		}
		// A lone insight object gets wrapped into a one-element list.
		if _, ok := val["content"]; ok {
			return []any{val}, nil
		}
		if _, ok := val["summary"]; ok {
			return []any{val}, nil
		}
	}
	return nil, nil
}

// rawList looks for an insights/items list directly on the raw provider
// object, including one level of nesting under a content field.
func rawList(raw any) []any {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil
	}
	if l, ok := m["insights"].([]any); ok {
		return l
	}
	if l, ok := m["items"].([]any); ok {
		return l
	}
	if c, ok := m["content"].(map[string]any); ok {
		if l, ok := c["insights"].([]any); ok {
			return l
		}
		if l, ok := c["items"].([]any); ok {
			return l
		}
	}
	return nil
}
