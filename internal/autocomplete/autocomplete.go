// Package autocomplete produces mocked code-completion suggestions from
// plain text heuristics. It is stateless: every request is answered from
// the submitted buffer alone.
package autocomplete

import "strings"

type Request struct {
	Code           string `json:"code"`
	CursorPosition int    `json:"cursorPosition"`
	Language       string `json:"language"`
}

type Response struct {
	Suggestion     string  `json:"suggestion"`
	InsertPosition int     `json:"insertPosition"`
	Confidence     float64 `json:"confidence"`
}

// Suggest returns a completion for the text left of the cursor. Syntax
// closure (unbalanced brackets, quotes, missing semicolons) wins over
// pattern-based suggestions.
func Suggest(req Request) Response {
	current := currentLinePrefix(req.Code, req.CursorPosition)

	if s := syntaxCompletion(current, req.Language); s != "" {
		return Response{Suggestion: s, InsertPosition: req.CursorPosition, Confidence: 0.9}
	}

	return Response{
		Suggestion:     patternSuggestion(current, req.Language),
		InsertPosition: req.CursorPosition,
		Confidence:     0.7,
	}
}

// currentLinePrefix extracts the text on the cursor's line up to the
// cursor position.
func currentLinePrefix(code string, cursor int) string {
	if cursor < 0 {
		return ""
	}
	if cursor > len(code) {
		cursor = len(code)
	}
	before := code[:cursor]
	if i := strings.LastIndexByte(before, '\n'); i >= 0 {
		return before[i+1:]
	}
	return before
}

func syntaxCompletion(text, language string) string {
	text = strings.TrimSpace(text)

	switch strings.ToLower(language) {
	case "python":
		if n := strings.Count(text, "(") - strings.Count(text, ")"); n > 0 {
			return strings.Repeat(")", n)
		}
		if n := strings.Count(text, "[") - strings.Count(text, "]"); n > 0 {
			return strings.Repeat("]", n)
		}
		if n := strings.Count(text, "{") - strings.Count(text, "}"); n > 0 {
			return strings.Repeat("}", n)
		}
		if strings.Count(text, `"`)%2 == 1 {
			return `"`
		}
		if strings.Count(text, "'")%2 == 1 {
			return "'"
		}

	case "cpp":
		if n := strings.Count(text, "(") - strings.Count(text, ")"); n > 0 {
			return strings.Repeat(")", n)
		}
		if n := strings.Count(text, "{") - strings.Count(text, "}"); n > 0 {
			return strings.Repeat("}", n)
		}
		if text != "" &&
			!strings.HasSuffix(text, ";") && !strings.HasSuffix(text, "{") &&
			!strings.HasSuffix(text, "}") && !strings.HasSuffix(text, ":") &&
			!strings.HasPrefix(text, "#") && !strings.HasPrefix(text, "//") &&
			!strings.HasPrefix(text, "/*") {
			return ";"
		}
	}

	return ""
}

func patternSuggestion(text, language string) string {
	switch strings.ToLower(language) {
	case "python":
		switch {
		case strings.Contains(text, "def "):
			return "function_name():"
		case strings.Contains(text, "class "):
			return "ClassName:"
		case strings.Contains(text, "if "):
			return "condition:"
		case strings.Contains(text, "for "):
			return "item in items:"
		case strings.Contains(text, "print("):
			return `"Hello, World!"`
		default:
			return "pass"
		}
	case "cpp":
		switch {
		case strings.Contains(text, "#include"):
			return "<iostream>"
		case strings.Contains(text, "int main"):
			return "() {\n    return 0;\n}"
		case strings.Contains(text, "cout"):
			return ` << "Hello, World!" << endl;`
		case strings.Contains(text, "cin"):
			return " >> variable;"
		default:
			return "// TODO"
		}
	default:
		return "// Complete this"
	}
}
