package agent

import (
	"fmt"

	"github.com/kmoai/kmoai/config"
	"github.com/kmoai/kmoai/llm"
)

// Factory builds chains for one request. Tools close over the request
// filter, so a chain is never shared between requests.
type Factory struct {
	Provider      llm.Provider
	Tokenizer     llm.Tokenizer
	Model         string
	MaxOutput     int
	MaxIterations int
	Backends      Backends
}

// New returns the chain registered under name (zs, ds or os).
func (f *Factory) New(name string, filter string) (Chain, error) {
	switch name {
	case config.ChainZeroShot:
		return NewZeroShot(f.Provider, f.Tokenizer, f.Model, f.MaxOutput, f.MaxIterations, ZeroShotTools(f.Backends, filter)), nil
	case config.ChainDocstore:
		return NewDocstore(f.Provider, f.Tokenizer, f.Model, f.MaxOutput, f.MaxIterations, DocstoreTools(f.Backends, filter)), nil
	case config.ChainDirect:
		search, _ := bind(ToolDocSearch, f.Backends, filter)
		return &DirectSearch{
			Provider:  f.Provider,
			Tokenizer: f.Tokenizer,
			Model:     f.Model,
			MaxOutput: f.MaxOutput,
			Search:    search,
		}, nil
	default:
		return nil, fmt.Errorf("unknown agent chain %q", name)
	}
}
