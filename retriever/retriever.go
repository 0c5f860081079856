package retriever

import (
	"context"
	"fmt"
	"strings"
)

// Kind identifies one retrieval back-end.
type Kind int

const (
	KindKeyword Kind = iota
	KindSemantic
	KindIndex
	KindWeb
)

// Kinds lists every back-end in enablement order.
var Kinds = []Kind{KindKeyword, KindSemantic, KindIndex, KindWeb}

var kindInfo = map[Kind]struct {
	name  string
	field string
}{
	KindKeyword:  {"keyword", "redis_search_response"},
	KindSemantic: {"semantic", "semantic_lookup_response"},
	KindIndex:    {"index", "index_search_response"},
	KindWeb:      {"web", "web_search_response"},
}

func (k Kind) String() string {
	if info, ok := kindInfo[k]; ok {
		return info.name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// CacheField is the cache field holding the grounded result of this back-end.
func (k Kind) CacheField() string {
	return kindInfo[k].field
}

// Retriever defines a unified search interface across different backends.
// filter is opaque and passed through; "" means no filter.
type Retriever interface {
	Kind() Kind
	Search(ctx context.Context, query string, filter string) ([]string, error)
}

// Passage renders content with its citation the way answers quote it:
// blob sources as [container/blob], web sources as [url].
func Passage(content, source string) string {
	content = strings.TrimSpace(content)
	source = strings.TrimSpace(source)
	if source == "" {
		return content
	}
	return content + " [" + source + "]"
}

// BlobSource joins a container and blob name into a citation.
func BlobSource(container, blob string) string {
	if container == "" || blob == "" {
		return ""
	}
	return container + "/" + blob
}
