package chat

import "errors"

// ErrNoJSON means the completion carried no parseable JSON object. It is a
// semantic failure of the model output, not a transport error.
var ErrNoJSON = errors.New("no JSON object in completion")

// ExtractJSONObject returns the first balanced {...} span in s, honoring
// string literals and escapes. Models often wrap JSON in prose or markdown
// fences; callers parse the returned span directly.
func ExtractJSONObject(s string) (string, error) {
	start := -1
	for i := 0; i < len(s); i++ {
		if s[i] == '{' {
			start = i
			break
		}
	}
	if start == -1 {
		return "", ErrNoJSON
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]

		if escaped {
			escaped = false
			continue
		}
		if inString {
			switch ch {
			case '\\':
				escaped = true
			case '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", ErrNoJSON
}
