package post

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSigner struct {
	err   error
	calls int
}

func (f *fakeSigner) SignedLink(container, blob string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "https://acct.blob.core.windows.net/" + container + "/" + blob + "?sig=x", nil
}

type recordingSigner struct {
	fakeSigner
	blobs []string
}

func (r *recordingSigner) SignedLink(container, blob string) (string, error) {
	r.blobs = append(r.blobs, container+"/"+blob)
	return r.fakeSigner.SignedLink(container, blob)
}

func TestScaffoldRules(t *testing.T) {
	tests := map[string]struct {
		in   string
		want string
	}{
		"action block":         {"Action: Search\nAction Input: vpn reset", ""},
		"action input":         {"Action Input: vpn", "vpn"},
		"action none":          {"Action: None needed. Done", " Done"},
		"action":               {"Action: reply", "reply"},
		"numbered action":      {"Action 3: Search[x]", " Search[x]"},
		"online search":        {"Online Search: results", " results"},
		"numbered thought":     {"Thought 1: hmm", " hmm"},
		"numbered observation": {"Observation 2: data", " data"},
		"final answer label":   {"Final Answer: yes", " yes"},
		"final answer":         {"Final Answer yes", " yes"},
		"finish":               {"Finish[yes]", "yes]"},
		"human":                {"Human: hi", " hi"},
		"ai":                   {"AI: hello", " hello"},
		"dashes":               {"a -- b", "a  b"},
		"heading":              {"### Title", " Title"},
	}
	require.Len(t, ScaffoldRules, len(tests))
	for _, r := range ScaffoldRules {
		tt, ok := tests[r.Name]
		require.True(t, ok, "no case for rule %q", r.Name)
		t.Run(r.Name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Apply(tt.in))
		})
	}
}

func TestProcessCitationRoundTrip(t *testing.T) {
	signer := &fakeSigner{}
	p := NewProcessor(signer)

	answer, sources := p.Process("Leave is 25 days (policies/leave.pdf). See [https://x] too.")
	assert.Equal(t, "Leave is 25 days. See too.", answer)
	assert.Equal(t, []string{
		"https://acct.blob.core.windows.net/policies/leave.pdf?sig=x",
		"https://x",
	}, sources)
	assert.Equal(t, 1, signer.calls)
}

func TestProcessDeduplicatesSources(t *testing.T) {
	p := NewProcessor(&fakeSigner{})
	_, sources := p.Process("A [it/vpn.pdf]. B [it/vpn.pdf]. C (https://go.dev) [https://go.dev]")
	assert.Equal(t, []string{
		"https://go.dev",
		"https://acct.blob.core.windows.net/it/vpn.pdf?sig=x",
	}, sources)
}

func TestProcessDropsUnusableCandidates(t *testing.T) {
	p := NewProcessor(&fakeSigner{err: errors.New("forbidden")})
	answer, sources := p.Process("Use the portal (for example the HR one) [hr/guide.pdf] [a/b/c] [ftp://x]")
	assert.Equal(t, "Use the portal", answer)
	assert.Empty(t, sources)
}

func TestProcessWithoutSignerDropsBlobs(t *testing.T) {
	p := NewProcessor(nil)
	answer, sources := p.Process("Answer [docs/a.pdf] [https://example.com/a]")
	assert.Equal(t, "Answer", answer)
	assert.Equal(t, []string{"https://example.com/a"}, sources)
}

func TestProcessReplacesToolNames(t *testing.T) {
	p := NewProcessor(nil, "Unified Search", "Semantic Lookup", "Online Search")
	answer, _ := p.Process("I checked Unified Search and Semantic Lookup, then Online Search again.")
	assert.Equal(t, "I checked the knowledge base and the knowledge base, then the knowledge base again.", answer)
}

func TestProcessToolNamesLeaveCitationsAlone(t *testing.T) {
	signer := &recordingSigner{}
	p := NewProcessor(signer, "Unified Search", "Online Search")

	answer, sources := p.Process("Open Google Search Console and use the Lookup table, not Unified Search " +
		"(docs/Unified Search Guide.pdf) [https://example.com/Online-Search]")
	assert.Equal(t, "Open Google Search Console and use the Lookup table, not the knowledge base", answer)
	assert.Equal(t, []string{
		"https://acct.blob.core.windows.net/docs/Unified Search Guide.pdf?sig=x",
		"https://example.com/Online-Search",
	}, sources)
	assert.Equal(t, []string{"docs/Unified Search Guide.pdf"}, signer.blobs)
}

func TestProcessStripsScaffoldAndMarker(t *testing.T) {
	p := NewProcessor(nil)
	answer, _ := p.Process("Final Answer: The VPN is reset from the portal.<|im_end|>")
	assert.Equal(t, "The VPN is reset from the portal.", answer)
}

func TestProcessEmptyAnswerIsDefault(t *testing.T) {
	p := NewProcessor(nil)
	for _, raw := range []string{"", "   ", "Final Answer: <|im_end|>", "[https://x]"} {
		answer, _ := p.Process(raw)
		assert.Equal(t, DefaultResponse, answer, "raw=%q", raw)
	}
}
