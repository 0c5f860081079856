package retriever

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/kmoai/kmoai/common/httpx"
)

// WebRetriever calls a web search API.
// Bing endpoint example: https://api.bing.microsoft.com/v7.0/search
// DuckDuckGo endpoint example: https://api.duckduckgo.com/
type WebRetriever struct {
	Provider string // bing or duckduckgo
	Endpoint string
	APIKey   string
	Client   *httpx.Client
	TopK     int
}

func (r *WebRetriever) Kind() Kind { return KindWeb }

type webHit struct {
	url     string
	snippet string
}

// Search ignores filter: the index filters do not apply to the open web.
func (r *WebRetriever) Search(ctx context.Context, query string, _ string) ([]string, error) {
	if r.Client == nil {
		return nil, fmt.Errorf("web http client not configured")
	}
	topK := r.TopK
	if topK <= 0 {
		topK = 10
	}

	var (
		hits []webHit
		err  error
	)
	switch strings.ToLower(r.Provider) {
	case "duckduckgo":
		hits, err = r.searchDuckDuckGo(ctx, query, topK)
	default:
		hits, err = r.searchBing(ctx, query, topK)
	}
	if err != nil {
		return nil, fmt.Errorf("web search failed: %w", err)
	}

	out := make([]string, 0, len(hits))
	for _, h := range hits {
		if strings.TrimSpace(h.snippet) == "" {
			continue
		}
		out = append(out, Passage(h.snippet, h.url))
	}
	return out, nil
}

func (r *WebRetriever) get(ctx context.Context, endpoint string, params url.Values, header http.Header) ([]byte, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (r *WebRetriever) searchBing(ctx context.Context, query string, topK int) ([]webHit, error) {
	if r.Endpoint == "" || r.APIKey == "" {
		return nil, nil
	}
	h := http.Header{}
	// Bing API key header
	h.Set("Ocp-Apim-Subscription-Key", r.APIKey)
	body, err := r.get(ctx, r.Endpoint, url.Values{
		"q":     {query},
		"count": {strconv.Itoa(topK)},
	}, h)
	if err != nil {
		return nil, err
	}
	var hits []webHit
	gjson.GetBytes(body, "webPages.value").ForEach(func(_, v gjson.Result) bool {
		hits = append(hits, webHit{url: v.Get("url").String(), snippet: v.Get("snippet").String()})
		return len(hits) < topK
	})
	return hits, nil
}

// searchDuckDuckGo uses the Instant Answer API: the abstract first, then
// related topics.
func (r *WebRetriever) searchDuckDuckGo(ctx context.Context, query string, topK int) ([]webHit, error) {
	endpoint := "https://api.duckduckgo.com/"
	if r.Endpoint != "" {
		endpoint = r.Endpoint
	}
	body, err := r.get(ctx, endpoint, url.Values{
		"q":      {query},
		"format": {"json"},
	}, http.Header{"User-Agent": {"kmoai/1.0"}})
	if err != nil {
		return nil, err
	}

	res := gjson.ParseBytes(body)
	hits := make([]webHit, 0, topK)
	if abs := res.Get("AbstractText").String(); abs != "" {
		hits = append(hits, webHit{url: res.Get("AbstractURL").String(), snippet: abs})
	}
	res.Get("RelatedTopics").ForEach(func(_, t gjson.Result) bool {
		if len(hits) >= topK {
			return false
		}
		if text, link := t.Get("Text").String(), t.Get("FirstURL").String(); text != "" && link != "" {
			hits = append(hits, webHit{url: link, snippet: text})
		}
		return true
	})
	return hits, nil
}
