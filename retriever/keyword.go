package retriever

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"
)

// Commander is the slice of the redis client the keyword back-end needs.
type Commander interface {
	Do(ctx context.Context, args ...interface{}) *redis.Cmd
}

// KeywordRetriever runs full-text queries against a RediSearch index.
// Documents carry content, container and filename fields.
type KeywordRetriever struct {
	Client       Commander
	Index        string
	ContentField string
	TopK         int
}

func (r *KeywordRetriever) Kind() Kind { return KindKeyword }

var redisQueryEscaper = strings.NewReplacer(
	",", " ", ".", " ", "<", " ", ">", " ", "{", " ", "}", " ", "[", " ", "]", " ",
	"\"", " ", "'", " ", ":", " ", ";", " ", "!", " ", "@", " ", "#", " ", "$", " ",
	"%", " ", "^", " ", "&", " ", "*", " ", "(", " ", ")", " ", "-", " ", "+", " ",
	"=", " ", "~", " ", "|", " ", "/", " ", "\\", " ",
)

// buildQuery scopes the free-text query by filter; "" and "*" match all.
func buildQuery(query, filter string) string {
	terms := strings.Join(strings.Fields(redisQueryEscaper.Replace(query)), " ")
	filter = strings.TrimSpace(filter)
	if filter == "" {
		filter = "*"
	}
	switch {
	case terms == "":
		return filter
	case filter == "*":
		return terms
	default:
		return "(" + filter + ") " + terms
	}
}

func (r *KeywordRetriever) Search(ctx context.Context, query string, filter string) ([]string, error) {
	if r.Client == nil || r.Index == "" {
		return []string{}, nil
	}
	topK := r.TopK
	if topK <= 0 {
		topK = 5
	}
	field := r.ContentField
	if field == "" {
		field = "content"
	}

	res, err := r.Client.Do(ctx, "FT.SEARCH", r.Index, buildQuery(query, filter),
		"RETURN", 3, field, "container", "filename",
		"LIMIT", 0, topK,
	).Result()
	if err != nil {
		return nil, fmt.Errorf("keyword search %s: %w", r.Index, err)
	}
	return parseSearchReply(res, field)
}

// parseSearchReply reads the RESP2 FT.SEARCH layout:
// [total, id1, [k, v, ...], id2, [k, v, ...], ...].
func parseSearchReply(res interface{}, field string) ([]string, error) {
	arr, ok := res.([]interface{})
	if !ok || len(arr) == 0 {
		return nil, fmt.Errorf("unexpected FT.SEARCH reply %T", res)
	}
	out := make([]string, 0, (len(arr)-1)/2)
	for i := 1; i+1 < len(arr); i += 2 {
		fields, ok := arr[i+1].([]interface{})
		if !ok {
			continue
		}
		m := make(map[string]string, len(fields)/2)
		for j := 0; j+1 < len(fields); j += 2 {
			k, _ := fields[j].(string)
			v, _ := fields[j+1].(string)
			m[k] = v
		}
		if strings.TrimSpace(m[field]) == "" {
			continue
		}
		out = append(out, Passage(m[field], BlobSource(m["container"], m["filename"])))
	}
	return out, nil
}
