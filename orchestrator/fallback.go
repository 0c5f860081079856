package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kmoai/kmoai/agent"
	"github.com/kmoai/kmoai/common/logger"
	"github.com/kmoai/kmoai/config"
	"github.com/kmoai/kmoai/metrics"
)

var errEmptyRecovery = errors.New("nothing left after cleaning unparseable output")

// rung is one step of the fallback ladder.
type rung struct {
	name string
	// enter decides whether the rung runs given the previous failure.
	enter func(prev error) bool
	run   func(ctx context.Context, in agent.Input, prev error) (string, error)
}

func isParseError(err error) bool {
	var perr *agent.ParseError
	return errors.As(err, &perr)
}

// rungs is the ladder for one request: the configured chain, recovery of an
// unparseable answer, a second try of the chain, direct search, then the
// docstore agent.
func (o *Orchestrator) rungs(filter string) []rung {
	primary := config.ChainZeroShot
	if o.Cfg != nil && o.Cfg.Agent.Chain != "" {
		primary = o.Cfg.Agent.Chain
	}
	chain := func(name string) func(context.Context, agent.Input, error) (string, error) {
		return func(ctx context.Context, in agent.Input, _ error) (string, error) {
			c, err := o.Chains.New(name, filter)
			if err != nil {
				return "", err
			}
			return c.Run(ctx, in)
		}
	}
	always := func(error) bool { return true }

	return []rung{
		{name: "primary:" + primary, enter: always, run: chain(primary)},
		{name: "recover", enter: isParseError, run: func(_ context.Context, _ agent.Input, prev error) (string, error) {
			var perr *agent.ParseError
			errors.As(prev, &perr)
			out := perr.Recover()
			if out == "" {
				return "", errEmptyRecovery
			}
			return out, nil
		}},
		{name: "retry:" + primary, enter: func(prev error) bool { return !isParseError(prev) }, run: chain(primary)},
		{name: "direct:" + config.ChainDirect, enter: always, run: chain(config.ChainDirect)},
		{name: "docstore:" + config.ChainDocstore, enter: always, run: chain(config.ChainDocstore)},
	}
}

// control runs the fallback ladder and post-processes the first answer it
// yields. When every rung fails it returns DefaultResponse without sources.
func (o *Orchestrator) control(ctx context.Context, in agent.Input, filter string) (string, []string) {
	raw, ok := o.climb(ctx, in, filter)
	if !ok {
		return DefaultResponse, nil
	}
	if o.Post == nil {
		return strings.TrimSpace(raw), nil
	}
	return o.Post.Process(raw)
}

func (o *Orchestrator) climb(ctx context.Context, in agent.Input, filter string) (string, bool) {
	if o.Chains == nil {
		return "", false
	}
	rm := metrics.FromContext(ctx)
	var prev error
	for i, r := range o.rungs(filter) {
		if i > 0 && !r.enter(prev) {
			continue
		}
		out, err := attempt(ctx, r, in, prev)
		rm.AddRung(r.name, err == nil)
		if err == nil {
			metrics.IncFallbackRung(r.name, "success")
			logger.Debugf("fallback: %s answered", r.name)
			return out, true
		}
		metrics.IncFallbackRung(r.name, "failure")
		logger.Warnf("fallback: %s failed: %v", r.name, err)
		prev = err
	}
	return "", false
}

// attempt runs a rung and turns a panic into an error.
func attempt(ctx context.Context, r rung, in agent.Input, prev error) (out string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%s panicked: %v", r.name, p)
		}
	}()
	return r.run(ctx, in, prev)
}
