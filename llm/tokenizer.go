package llm

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/kmoai/kmoai/common/logger"
)

// Tokenizer encodes text the way the completion model counts it.
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
	ModelLimit(model string) int
}

// modelLimits is the context window per model family. Lookups match the
// longest prefix so dated snapshots resolve to their family.
var modelLimits = map[string]int{
	"gpt-35-turbo":      4096,
	"gpt-35-turbo-16k":  16384,
	"gpt-3.5-turbo":     4096,
	"gpt-3.5-turbo-16k": 16384,
	"gpt-4":             8192,
	"gpt-4-32k":         32768,
	"gpt-4-turbo":       128000,
	"gpt-4o":            128000,
	"gpt-4o-mini":       128000,
	"text-davinci-003":  4097,
}

const defaultModelLimit = 4096

func modelLimit(model string) int {
	model = strings.ToLower(strings.TrimSpace(model))
	best, limit := "", defaultModelLimit
	for prefix, n := range modelLimits {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
			best, limit = prefix, n
		}
	}
	return limit
}

// TiktokenTokenizer wraps a BPE encoding from tiktoken-go.
type TiktokenTokenizer struct {
	enc *tiktoken.Tiktoken
}

var tokenizers sync.Map // model -> Tokenizer

// NewTokenizer returns the BPE tokenizer for model. Unknown models use
// cl100k_base; when no encoding can be loaded the rune tokenizer is used,
// which over-counts and therefore keeps every budget conservative.
func NewTokenizer(model string) Tokenizer {
	if t, ok := tokenizers.Load(model); ok {
		return t.(Tokenizer)
	}
	var tok Tokenizer
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err != nil {
		logger.Warnf("llm: tiktoken encoding unavailable for %s, counting runes: %v", model, err)
		tok = RuneTokenizer{}
	} else {
		tok = &TiktokenTokenizer{enc: enc}
	}
	actual, _ := tokenizers.LoadOrStore(model, tok)
	return actual.(Tokenizer)
}

func (t *TiktokenTokenizer) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

func (t *TiktokenTokenizer) Decode(tokens []int) string {
	return t.enc.Decode(tokens)
}

func (t *TiktokenTokenizer) ModelLimit(model string) int { return modelLimit(model) }

// RuneTokenizer treats every rune as one token.
type RuneTokenizer struct{}

func (RuneTokenizer) Encode(text string) []int {
	rs := []rune(text)
	out := make([]int, len(rs))
	for i, r := range rs {
		out[i] = int(r)
	}
	return out
}

func (RuneTokenizer) Decode(tokens []int) string {
	rs := make([]rune, len(tokens))
	for i, t := range tokens {
		rs[i] = rune(t)
	}
	return string(rs)
}

func (RuneTokenizer) ModelLimit(model string) int { return modelLimit(model) }

// Count returns the encoded length of text.
func Count(t Tokenizer, text string) int {
	return len(t.Encode(text))
}

// Head keeps the first n tokens of text.
func Head(t Tokenizer, text string, n int) string {
	if n <= 0 {
		return ""
	}
	toks := t.Encode(text)
	if len(toks) <= n {
		return text
	}
	return t.Decode(toks[:n])
}

// Tail keeps the last n tokens of text. BPE decode/encode is not always a
// round trip, so the window shrinks until the re-encoded result fits.
func Tail(t Tokenizer, text string, n int) string {
	if n <= 0 {
		return ""
	}
	toks := t.Encode(text)
	if len(toks) <= n {
		return text
	}
	for keep := n; keep > 0; keep-- {
		out := t.Decode(toks[len(toks)-keep:])
		if Count(t, out) <= n {
			return out
		}
	}
	return ""
}
