package security

import (
	"encoding/base64"
	"regexp"
	"strconv"
	"strings"
)

// NormalizeCommand reduces a shell command to a canonical form for pattern
// matching. It undoes the common obfuscation tricks: backslash-escaped
// letters, quote splicing, ANSI-C $'...' escapes, inline printf/echo -e hex
// and octal encoding, base64-decode pipes, and command substitution used to
// reconstruct a blocked token.
//
// This is a matching aid, not a shell parser. It only ever grows the set of
// commands a pattern can catch; the original text is matched as well.
func NormalizeCommand(cmd string) string {
	s := strings.TrimSpace(cmd)
	s = decodeANSIQuoting(s)
	s = decodeInlinePrintf(s)
	s = appendBase64Payloads(s)
	s = flattenSubstitution(s)
	s = stripQuoteSplicing(s)
	s = collapseWhitespace(s)
	return s
}

var (
	ansiQuotePattern    = regexp.MustCompile(`\$'((?:[^'\\]|\\.)*)'`)
	substitutionPattern = regexp.MustCompile("\\$\\(([^()]*)\\)|`([^`]*)`")
	printfPattern       = regexp.MustCompile(`(?i)\b(?:printf|echo\s+-e)\s+'((?:[^'\\]|\\.)*)'|\b(?:printf|echo\s+-e)\s+"((?:[^"\\]|\\.)*)"`)
	base64PipePattern   = regexp.MustCompile(`(?i)\b(?:echo|printf)\s+['"]?([A-Za-z0-9+/=]{8,})['"]?\s*\|\s*base64\s+(?:-d|-D|--decode)`)
	whitespacePattern   = regexp.MustCompile(`[ \t]+`)
)

// stripQuoteSplicing removes unescaped quote characters and the backslashes
// used to split tokens, so `r"m" -\rf` matches the same patterns as `rm -rf`.
func stripQuoteSplicing(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	escaped := false
	for _, r := range s {
		if escaped {
			// A backslash before an ordinary character is token
			// splicing; keep the character, drop the backslash.
			b.WriteRune(r)
			escaped = false
			continue
		}
		switch r {
		case '\\':
			escaped = true
		case '\'', '"':
			// dropped
		default:
			b.WriteRune(r)
		}
	}
	if escaped {
		b.WriteByte('\\')
	}
	return b.String()
}

// decodeANSIQuoting expands $'...' sequences, which support \xNN hex and
// \NNN octal escapes that can hide arbitrary bytes.
func decodeANSIQuoting(s string) string {
	return ansiQuotePattern.ReplaceAllStringFunc(s, func(match string) string {
		inner := match[2 : len(match)-1]
		return decodeEscapes(inner)
	})
}

// decodeInlinePrintf expands printf '...' and echo -e '...' arguments whose
// escape sequences reconstruct command text.
func decodeInlinePrintf(s string) string {
	return printfPattern.ReplaceAllStringFunc(s, func(match string) string {
		sub := printfPattern.FindStringSubmatch(match)
		inner := sub[1]
		if inner == "" {
			inner = sub[2]
		}
		return decodeEscapes(inner)
	})
}

// flattenSubstitution replaces $(inner) and `inner` with inner, so that
// `$(echo rm) -rf /` normalizes to text containing "rm -rf /". Applied
// repeatedly to unwrap one level of nesting per pass, bounded to avoid
// pathological input.
func flattenSubstitution(s string) string {
	for range 4 {
		replaced := substitutionPattern.ReplaceAllStringFunc(s, func(match string) string {
			sub := substitutionPattern.FindStringSubmatch(match)
			inner := sub[1]
			if inner == "" {
				inner = sub[2]
			}
			// echo inside a substitution yields its arguments.
			inner = strings.TrimSpace(inner)
			if rest, ok := strings.CutPrefix(inner, "echo "); ok {
				inner = strings.TrimSpace(rest)
			}
			return inner
		})
		if replaced == s {
			break
		}
		s = replaced
	}
	return s
}

// appendBase64Payloads decodes literal base64 arguments that are piped into
// a decoder and appends the plaintext so patterns can see it. The original
// text is kept: the pipe itself may also be a pattern target.
func appendBase64Payloads(s string) string {
	matches := base64PipePattern.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return s
	}
	var b strings.Builder
	b.WriteString(s)
	for _, m := range matches {
		decoded, err := base64.StdEncoding.DecodeString(m[1])
		if err != nil {
			continue
		}
		if plain := printableOnly(string(decoded)); plain != "" {
			b.WriteString(" ")
			b.WriteString(plain)
		}
	}
	return b.String()
}

// decodeEscapes expands \xNN, \NNN, \n, \t and \\ sequences.
func decodeEscapes(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 >= len(s) {
			b.WriteByte(s[i])
			continue
		}
		i++
		switch c := s[i]; {
		case c == 'x' && i+2 < len(s):
			if n, err := strconv.ParseUint(s[i+1:i+3], 16, 8); err == nil {
				b.WriteByte(byte(n))
				i += 2
			} else {
				b.WriteByte(c)
			}
		case c >= '0' && c <= '7':
			end := i + 1
			for end < len(s) && end < i+3 && s[end] >= '0' && s[end] <= '7' {
				end++
			}
			if n, err := strconv.ParseUint(s[i:end], 8, 16); err == nil && n < 256 {
				b.WriteByte(byte(n))
				i = end - 1
			} else {
				b.WriteByte(c)
			}
		case c == 'n':
			b.WriteByte('\n')
		case c == 't':
			b.WriteByte('\t')
		case c == '\\':
			b.WriteByte('\\')
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// printableOnly keeps decoded payload text only when it looks like command
// text; binary junk is useless for pattern matching.
func printableOnly(s string) string {
	for _, r := range s {
		if r < 0x09 || (r > 0x0d && r < 0x20) || r > 0x7e {
			return ""
		}
	}
	return strings.TrimSpace(s)
}

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
}
