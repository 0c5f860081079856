package agent

import (
	"context"
	"strings"

	"github.com/kmoai/kmoai/retriever"
)

// ToolKind is the closed set of tools an agent can call.
type ToolKind int

const (
	ToolUnifiedSearch ToolKind = iota
	ToolKeywordSearch
	ToolIndexSearch
	ToolSemanticLookup
	ToolOnlineSearch
	ToolDocSearch
	ToolDocLookup
)

// Tool is a named action bound to one request's filter.
type Tool struct {
	Kind        ToolKind
	Name        string
	Description string
	Run         func(ctx context.Context, input string) (string, error)
}

// UnifiedSearcher is the fan-out search over every enabled back-end.
type UnifiedSearcher interface {
	Search(ctx context.Context, query string, filter string) (string, error)
}

// BackendSearcher runs a single back-end.
type BackendSearcher interface {
	Has(kind retriever.Kind) bool
	Search(ctx context.Context, kind retriever.Kind, query string, filter string) (string, error)
}

// Backends are the search capabilities tools are built from. A nil Unified
// means unified search is disabled.
type Backends struct {
	Unified UnifiedSearcher
	Single  BackendSearcher
}

type toolSpec struct {
	name        string
	description string
	// unified tools use the aggregator; the others run backend alone.
	unified bool
	backend retriever.Kind
	// generic names are ordinary words and stay visible in answers.
	generic bool
}

var toolTable = map[ToolKind]toolSpec{
	ToolUnifiedSearch: {
		name:        "Unified Search",
		description: "the first tool to try for any question about the organisation's documents. It searches every knowledge base source at once and returns relevant passages with their sources. Input should be a search query.",
		unified:     true,
	},
	ToolKeywordSearch: {
		name:        "Keyword Search",
		description: "useful for exact terms, names, product codes and acronyms in the knowledge base. Input should be a few keywords.",
		backend:     retriever.KindKeyword,
	},
	ToolIndexSearch: {
		name:        "Index Search",
		description: "useful for full-text questions over the document index when other searches return nothing relevant. Input should be a search query.",
		backend:     retriever.KindIndex,
	},
	ToolSemanticLookup: {
		name:        "Semantic Lookup",
		description: "useful when the question is phrased differently from the wording of the documents. Input should be a full question.",
		backend:     retriever.KindSemantic,
	},
	ToolOnlineSearch: {
		name:        "Online Search",
		description: "useful for public or current information that is not in the knowledge base. Input should be a web search query.",
		backend:     retriever.KindWeb,
	},
	ToolDocSearch: {
		name:        "Search",
		description: "searches the knowledge base and returns the most relevant passages.",
		unified:     true,
		generic:     true,
	},
	ToolDocLookup: {
		name:        "Lookup",
		description: "looks up passages whose meaning is close to the given phrase.",
		backend:     retriever.KindSemantic,
		generic:     true,
	},
}

// ToolNames lists the tool names hidden from answers. The docstore
// "Search" and "Lookup" are left out.
func ToolNames() []string {
	names := make([]string, 0, len(toolTable))
	for k := ToolUnifiedSearch; k <= ToolDocLookup; k++ {
		if !toolTable[k].generic {
			names = append(names, toolTable[k].name)
		}
	}
	return names
}

// bind returns the tool for kind, or false when its back-end is disabled.
// Unified tools fall back to keyword search when unified search is off.
func bind(kind ToolKind, b Backends, filter string) (Tool, bool) {
	spec := toolTable[kind]
	t := Tool{Kind: kind, Name: spec.name, Description: spec.description}
	switch {
	case spec.unified && b.Unified != nil:
		t.Run = func(ctx context.Context, input string) (string, error) {
			return b.Unified.Search(ctx, cleanInput(input), filter)
		}
	case spec.unified && kind == ToolDocSearch && b.Single != nil && b.Single.Has(retriever.KindKeyword):
		t.Run = func(ctx context.Context, input string) (string, error) {
			return b.Single.Search(ctx, retriever.KindKeyword, cleanInput(input), filter)
		}
	case !spec.unified && b.Single != nil && b.Single.Has(spec.backend):
		backend := spec.backend
		t.Run = func(ctx context.Context, input string) (string, error) {
			return b.Single.Search(ctx, backend, cleanInput(input), filter)
		}
	default:
		return Tool{}, false
	}
	return t, true
}

// ZeroShotTools returns the zs tool set in prompt order.
func ZeroShotTools(b Backends, filter string) []Tool {
	return bindAll(b, filter, ToolUnifiedSearch, ToolKeywordSearch, ToolIndexSearch, ToolSemanticLookup, ToolOnlineSearch)
}

// DocstoreTools returns the ds Search/Lookup pair.
func DocstoreTools(b Backends, filter string) []Tool {
	return bindAll(b, filter, ToolDocSearch, ToolDocLookup)
}

func bindAll(b Backends, filter string, kinds ...ToolKind) []Tool {
	var tools []Tool
	for _, k := range kinds {
		if t, ok := bind(k, b, filter); ok {
			tools = append(tools, t)
		}
	}
	return tools
}

// cleanInput drops the quotes models like to put around action inputs.
func cleanInput(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"'`)
}
