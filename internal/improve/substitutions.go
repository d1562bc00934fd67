package improve

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

const defaultPassLimit = 30

type substitution interface {
	apply(input string) (string, bool)
}

// Substitutions rewrites recurring recognition mistakes before cleanup.
//
// Each non-comment line is either a phrase rule (`deep gram => Deepgram`,
// matched case-insensitively) or a sed-style rule (`s/pattern/replacement/flags`
// with flags g, i, m, s). Rules are applied in file order, repeatedly, until a
// full pass changes nothing or the pass limit is reached.
type Substitutions struct {
	rules     []substitution
	passLimit int
}

// LoadSubstitutions reads rules from path. An empty path or a missing file
// yields an empty rule set.
func LoadSubstitutions(path string, passLimit int) (*Substitutions, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return &Substitutions{passLimit: normalizePassLimit(passLimit)}, nil
	}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Substitutions{passLimit: normalizePassLimit(passLimit)}, nil
		}
		return nil, fmt.Errorf("open substitutions %q: %w", path, err)
	}
	defer file.Close()

	subs, err := ParseSubstitutions(file, passLimit)
	if err != nil {
		return nil, fmt.Errorf("substitutions %q: %w", path, err)
	}
	return subs, nil
}

// ParseSubstitutions compiles rules from r.
func ParseSubstitutions(r io.Reader, passLimit int) (*Substitutions, error) {
	subs := &Substitutions{passLimit: normalizePassLimit(passLimit)}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var (
			rule substitution
			err  error
		)
		switch {
		case isSedRule(line):
			rule, err = compileSedRule(line)
			if err != nil && strings.Contains(line, "=>") {
				// Phrases such as "s.o.s => SOS" look like sed rules.
				rule, err = compilePhraseRule(line)
			}
		case strings.Contains(line, "=>"):
			rule, err = compilePhraseRule(line)
		default:
			err = errors.New("expected `from => to` or `s/pattern/replacement/flags`")
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		subs.rules = append(subs.rules, rule)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read substitutions: %w", err)
	}
	return subs, nil
}

// Len reports the number of compiled rules.
func (s *Substitutions) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rules)
}

// Apply runs every rule until the text is stable.
func (s *Substitutions) Apply(text string) string {
	if s.Len() == 0 {
		return text
	}

	for pass := 0; pass < s.passLimit; pass++ {
		changed := false
		for _, rule := range s.rules {
			if next, ok := rule.apply(text); ok {
				text = next
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return text
}

func normalizePassLimit(limit int) int {
	if limit <= 0 {
		return defaultPassLimit
	}
	return limit
}

type phraseRule struct {
	pattern     *regexp.Regexp
	replacement string
}

func compilePhraseRule(line string) (substitution, error) {
	from, to, _ := strings.Cut(line, "=>")
	from = strings.TrimSpace(from)
	if from == "" {
		return nil, errors.New("phrase rule has an empty source")
	}
	return phraseRule{
		pattern:     regexp.MustCompile("(?i)" + regexp.QuoteMeta(from)),
		replacement: strings.TrimSpace(to),
	}, nil
}

func (r phraseRule) apply(input string) (string, bool) {
	output := r.pattern.ReplaceAllLiteralString(input, r.replacement)
	return output, output != input
}

type sedRule struct {
	pattern     *regexp.Regexp
	replacement string
	global      bool
}

// compileSedRule accepts s<d>pattern<d>replacement<d>flags for any
// punctuation delimiter d. Patterns always match case-insensitively.
func compileSedRule(line string) (substitution, error) {
	delim := line[1]
	pattern, rest, err := splitDelimited(line[2:], delim)
	if err != nil {
		return nil, fmt.Errorf("pattern: %w", err)
	}
	replacement, flags, err := splitDelimited(rest, delim)
	if err != nil {
		return nil, fmt.Errorf("replacement: %w", err)
	}

	inline := "i"
	global := false
	for _, flag := range strings.TrimSpace(flags) {
		switch flag {
		case 'g':
			global = true
		case 'i':
		case 'm', 's':
			if !strings.ContainsRune(inline, flag) {
				inline += string(flag)
			}
		case ' ', '\t':
		default:
			return nil, fmt.Errorf("unsupported flag %q", flag)
		}
	}

	re, err := regexp.Compile("(?" + inline + ")" + pattern)
	if err != nil {
		return nil, fmt.Errorf("compile pattern: %w", err)
	}
	return sedRule{pattern: re, replacement: replacement, global: global}, nil
}

func (r sedRule) apply(input string) (string, bool) {
	if r.global {
		output := r.pattern.ReplaceAllString(input, r.replacement)
		return output, output != input
	}

	match := r.pattern.FindStringSubmatchIndex(input)
	if match == nil {
		return input, false
	}
	expanded := r.pattern.ExpandString(nil, r.replacement, input, match)
	output := input[:match[0]] + string(expanded) + input[match[1]:]
	return output, output != input
}

// splitDelimited returns the text before the first unescaped delim and the
// remainder after it. Escapes are preserved for the regexp compiler.
func splitDelimited(s string, delim byte) (string, string, error) {
	escaped := false
	for i := 0; i < len(s); i++ {
		switch {
		case escaped:
			escaped = false
		case s[i] == '\\':
			escaped = true
		case s[i] == delim:
			return s[:i], s[i+1:], nil
		}
	}
	return "", "", errors.New("unterminated expression")
}

func isSedRule(line string) bool {
	if len(line) < 2 || line[0] != 's' {
		return false
	}
	c := line[1]
	isWordOrSpace := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9') || c == ' ' || c == '\t' || c == '_'
	return !isWordOrSpace
}
