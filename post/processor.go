package post

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/kmoai/kmoai/common/logger"
	"github.com/kmoai/kmoai/llm"
	"github.com/kmoai/kmoai/storage"
)

// DefaultResponse is returned whenever no usable answer could be produced.
const DefaultResponse = "Sorry, the question was not clear, or the information is not in the knowledge base. Please rephrase your question."

// KnowledgeBase replaces tool names in user-facing answers.
const KnowledgeBase = "the knowledge base"

var (
	parenCitation   = regexp.MustCompile(`\((.*?)\)`)
	bracketCitation = regexp.MustCompile(`\[(.*?)\]`)
	spaceRun        = regexp.MustCompile(`[ \t]{2,}`)
	spaceBeforeStop = regexp.MustCompile(`[ \t]+([.,;:!?])`)
)

// Processor turns raw agent output into a user-facing answer plus the list
// of sources it cites.
type Processor struct {
	Rules  []Rule
	Signer storage.Signer
	tools  []*regexp.Regexp
}

// NewProcessor builds a processor that also hides the given tool names.
// A nil signer drops blob citations.
func NewProcessor(signer storage.Signer, toolNames ...string) *Processor {
	names := append([]string(nil), toolNames...)
	// longest first so "Unified Search" wins over a shorter overlapping name
	sort.SliceStable(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })
	p := &Processor{Rules: ScaffoldRules, Signer: signer}
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			p.tools = append(p.tools, regexp.MustCompile(`\b`+regexp.QuoteMeta(n)+`\b`))
		}
	}
	return p
}

// Process cleans raw and extracts its citations. Sources are deduplicated
// in first-seen order; the answer is never empty.
func (p *Processor) Process(raw string) (string, []string) {
	text := raw
	for _, r := range p.Rules {
		text = r.Apply(text)
	}
	text = strings.ReplaceAll(text, llm.EndOfTurn, "")

	var candidates []string
	for _, re := range []*regexp.Regexp{parenCitation, bracketCitation} {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			candidates = append(candidates, m[1])
		}
		text = re.ReplaceAllString(text, "")
	}
	sources := p.resolve(candidates)

	// citations are already out of text, so names inside them survive
	for _, re := range p.tools {
		text = re.ReplaceAllString(text, KnowledgeBase)
	}

	text = strings.NewReplacer("[", "", "]", "").Replace(text)
	text = spaceBeforeStop.ReplaceAllString(spaceRun.ReplaceAllString(text, " "), "$1")
	text = strings.TrimSpace(text)
	if text == "" {
		text = DefaultResponse
	}
	return text, sources
}

func (p *Processor) resolve(candidates []string) []string {
	sources := make([]string, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	add := func(s string) {
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		sources = append(sources, s)
	}

	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if container, blob, ok := blobRef(c); ok {
			if p.Signer == nil {
				continue
			}
			link, err := p.Signer.SignedLink(container, blob)
			if err != nil {
				logger.Warnf("post: signing %s failed: %v", c, err)
				continue
			}
			add(link)
			continue
		}
		if isWebURL(c) {
			add(c)
		}
	}
	return sources
}

// blobRef accepts exactly "container/blob" with both parts non-empty.
func blobRef(s string) (string, string, bool) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return "", "", false
	}
	container, blob := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	if container == "" || blob == "" {
		return "", "", false
	}
	return container, blob, true
}

func isWebURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
