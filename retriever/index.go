package retriever

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"

	"github.com/tidwall/gjson"

	"github.com/kmoai/kmoai/common/httpx"
)

// IndexRetriever queries an Elasticsearch-like backend using a simple multi_match.
// Endpoint example: http://es:9200
// Index example: kmoai_docs
type IndexRetriever struct {
	Endpoint string
	Index    string
	APIKey   string
	Client   *httpx.Client
	TopK     int
}

func (r *IndexRetriever) Kind() Kind { return KindIndex }

func (r *IndexRetriever) buildRequest(query, filter string, topK int) map[string]interface{} {
	match := map[string]interface{}{
		"multi_match": map[string]interface{}{
			"query":  query,
			"fields": []string{"content^2", "title", "filename"},
		},
	}
	q := match
	if filter != "" {
		q = map[string]interface{}{
			"bool": map[string]interface{}{
				"must":   match,
				"filter": map[string]interface{}{"query_string": map[string]interface{}{"query": filter}},
			},
		}
	}
	return map[string]interface{}{
		"size":    topK,
		"query":   q,
		"_source": []string{"content", "title", "container", "filename", "url"},
	}
}

func (r *IndexRetriever) Search(ctx context.Context, query string, filter string) ([]string, error) {
	if r.Endpoint == "" || r.Index == "" {
		return []string{}, nil
	}
	topK := r.TopK
	if topK <= 0 {
		topK = 5
	}
	bs, err := json.Marshal(r.buildRequest(query, filter, topK))
	if err != nil {
		return nil, err
	}
	// Build URL: {endpoint}/{index}/_search
	u, err := url.Parse(r.Endpoint)
	if err != nil {
		return nil, err
	}
	u.Path = path.Join(u.Path, r.Index, "_search")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(bs))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.APIKey != "" {
		req.Header.Set("Authorization", "ApiKey "+r.APIKey)
	}
	if r.Client == nil {
		return nil, fmt.Errorf("index http client not configured")
	}
	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("index search http status %d: %s", resp.StatusCode, gjson.GetBytes(body, "error.reason").String())
	}

	hits := gjson.GetBytes(body, "hits.hits")
	out := make([]string, 0, len(hits.Array()))
	hits.ForEach(func(_, hit gjson.Result) bool {
		src := hit.Get("_source")
		content := src.Get("content").String()
		if content == "" {
			content = src.Get("title").String()
		}
		if content == "" {
			return true
		}
		source := BlobSource(src.Get("container").String(), src.Get("filename").String())
		if source == "" {
			source = src.Get("url").String()
		}
		out = append(out, Passage(content, source))
		return true
	})
	return out, nil
}
