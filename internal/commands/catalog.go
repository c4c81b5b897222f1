package commands

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"voxcam/internal/domain"
)

type matcher interface {
	Match(phrase string) (domain.CommandKind, bool)
}

// EntryParser parses one catalog line into a matcher.
type EntryParser interface {
	CanParse(line string) bool
	Parse(line string) (matcher, error)
}

// Catalog maps normalized phrases to command kinds.
type Catalog struct {
	phrases  map[string]domain.CommandKind
	patterns []matcher
}

var defaultPhrases = map[domain.CommandKind][]string{
	domain.CommandCapturePhoto: {
		"take photo", "snap photo", "take picture", "snap picture", "photo", "picture",
		"open camera for photo", "capture photo", "capture picture",
	},
	domain.CommandCaptureVideo: {
		"record video", "start video", "video", "capture video", "film video",
		"start recording", "begin video",
	},
	domain.CommandComposeMessage: {
		"send message", "send text", "message", "text", "write message", "compose message",
	},
}

// Default returns the built-in phrase set.
func Default() *Catalog {
	c := &Catalog{phrases: make(map[string]domain.CommandKind)}
	for kind, phrases := range defaultPhrases {
		for _, phrase := range phrases {
			c.phrases[phrase] = kind
		}
	}
	return c
}

// Load extends the defaults with entries from path. A missing file yields the defaults.
func Load(path string) (*Catalog, error) {
	return LoadWithParsers(path, defaultEntryParsers())
}

// LoadWithParsers allows parser extension without catalog changes.
func LoadWithParsers(path string, parsers []EntryParser) (*Catalog, error) {
	catalog := Default()
	if len(parsers) == 0 {
		parsers = defaultEntryParsers()
	}
	if strings.TrimSpace(path) == "" {
		return catalog, nil
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return catalog, nil
		}
		return nil, fmt.Errorf("failed to read commands file %q: %w", path, err)
	}

	if err := catalog.parse(string(contents), parsers); err != nil {
		return nil, fmt.Errorf("failed to parse commands file %q: %w", path, err)
	}
	return catalog, nil
}

// Lookup resolves a phrase. Unknown phrases map to CommandUnrecognized.
func (c *Catalog) Lookup(phrase string) domain.CommandKind {
	normalized := normalize(phrase)
	if kind, ok := c.phrases[normalized]; ok {
		return kind
	}
	for _, m := range c.patterns {
		if kind, ok := m.Match(normalized); ok {
			return kind
		}
	}
	return domain.CommandUnrecognized
}

// Phrases lists literal phrases in sorted order.
func (c *Catalog) Phrases() []string {
	out := make([]string, 0, len(c.phrases))
	for phrase := range c.phrases {
		out = append(out, phrase)
	}
	sort.Strings(out)
	return out
}

// Grammar renders the literal phrases as a JSGF grammar named name.
func (c *Catalog) Grammar(name string) string {
	if name == "" {
		name = "commands"
	}
	var b strings.Builder
	b.WriteString("#JSGF V1.0;\n\n")
	fmt.Fprintf(&b, "grammar %s;\n\n", name)
	fmt.Fprintf(&b, "public <%s> = %s;\n", name, strings.Join(c.Phrases(), " | "))
	return b.String()
}

func (c *Catalog) parse(contents string, parsers []EntryParser) error {
	for index, raw := range strings.Split(contents, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parsed := false
		for _, parser := range parsers {
			if !parser.CanParse(line) {
				continue
			}
			m, err := parser.Parse(line)
			if err != nil {
				return fmt.Errorf("line %d: %w", index+1, err)
			}
			if lit, ok := m.(literalEntry); ok {
				c.phrases[lit.phrase] = lit.kind
			} else {
				c.patterns = append(c.patterns, m)
			}
			parsed = true
			break
		}
		if !parsed {
			return fmt.Errorf("line %d: unsupported entry format", index+1)
		}
	}
	return nil
}

func defaultEntryParsers() []EntryParser {
	return []EntryParser{patternEntryParser{}, literalEntryParser{}}
}

type literalEntryParser struct{}

func (literalEntryParser) CanParse(line string) bool {
	return strings.Contains(line, "=>")
}

func (literalEntryParser) Parse(line string) (matcher, error) {
	parts := strings.SplitN(line, "=>", 2)
	phrase := normalize(parts[0])
	if phrase == "" {
		return nil, errors.New("phrase cannot be empty")
	}
	kind, err := domain.ParseCommandKind(parts[1])
	if err != nil {
		return nil, err
	}
	return literalEntry{phrase: phrase, kind: kind}, nil
}

type literalEntry struct {
	phrase string
	kind   domain.CommandKind
}

func (e literalEntry) Match(phrase string) (domain.CommandKind, bool) {
	return e.kind, phrase == e.phrase
}

type patternEntryParser struct{}

// CanParse accepts m/<regex>/<kind>, with any non-alphanumeric delimiter.
func (patternEntryParser) CanParse(line string) bool {
	return len(line) > 1 && line[0] == 'm' && !isAlphaNumericOrSpace(line[1])
}

func (patternEntryParser) Parse(line string) (matcher, error) {
	delim := line[1]
	pattern, pos, err := parseDelimited(line, 2, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}
	kindText, _, err := parseDelimited(line, pos, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern kind: %w", err)
	}
	kind, err := domain.ParseCommandKind(kindText)
	if err != nil {
		return nil, err
	}
	re, err := regexp.Compile("(?i)^(?:" + pattern + ")$")
	if err != nil {
		return nil, fmt.Errorf("invalid regex: %w", err)
	}
	return patternEntry{re: re, kind: kind}, nil
}

type patternEntry struct {
	re   *regexp.Regexp
	kind domain.CommandKind
}

func (e patternEntry) Match(phrase string) (domain.CommandKind, bool) {
	return e.kind, e.re.MatchString(phrase)
}

func parseDelimited(line string, start int, delim byte) (string, int, error) {
	if start >= len(line) {
		return "", 0, errors.New("unexpected end of expression")
	}

	var builder strings.Builder
	escaped := false
	for index := start; index < len(line); index++ {
		char := line[index]
		if escaped {
			builder.WriteByte(char)
			escaped = false
			continue
		}
		if char == '\\' {
			escaped = true
			builder.WriteByte(char)
			continue
		}
		if char == delim {
			return builder.String(), index + 1, nil
		}
		builder.WriteByte(char)
	}
	return "", 0, errors.New("unterminated expression")
}

func isAlphaNumericOrSpace(char byte) bool {
	return (char >= 'a' && char <= 'z') ||
		(char >= 'A' && char <= 'Z') ||
		(char >= '0' && char <= '9') ||
		char == ' ' || char == '\t'
}

func normalize(phrase string) string {
	return strings.Join(strings.Fields(strings.ToLower(phrase)), " ")
}
