package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/kmoai/kmoai/common/logger"
	"github.com/kmoai/kmoai/llm"
)

// Input is what every chain answers from.
type Input struct {
	Query      string
	History    string
	PreContext string
}

// Chain produces a raw answer for an input. Raw answers still carry
// citations and may carry scaffolding; post-processing cleans them.
type Chain interface {
	Name() string
	Run(ctx context.Context, in Input) (string, error)
}

// DefaultMaxIterations bounds the think/act loop.
const DefaultMaxIterations = 8

const observationStop = "\nObservation"

// step is one parsed completion.
type step struct {
	final  bool
	answer string
	tool   string
	input  string
}

// style is the prompt dialect of a ReAct agent.
type style interface {
	name() string
	template() string
	describe(tools []Tool) (list, names string)
	parse(text string) (step, error)
	// record renders a finished iteration i into the scratchpad.
	record(i int, out, observation string) string
	// prefix opens the scratchpad before the first iteration.
	prefix() string
}

// ReAct is a think/act/observe agent over a fixed tool set.
type ReAct struct {
	Provider      llm.Provider
	Tokenizer     llm.Tokenizer
	Model         string
	MaxOutput     int
	MaxIterations int
	Tools         []Tool

	style style
}

// NewZeroShot builds the zs agent.
func NewZeroShot(p llm.Provider, tok llm.Tokenizer, model string, maxOutput, maxIter int, tools []Tool) *ReAct {
	return &ReAct{Provider: p, Tokenizer: tok, Model: model, MaxOutput: maxOutput, MaxIterations: maxIter, Tools: tools, style: zeroShot{}}
}

// NewDocstore builds the ds agent.
func NewDocstore(p llm.Provider, tok llm.Tokenizer, model string, maxOutput, maxIter int, tools []Tool) *ReAct {
	return &ReAct{Provider: p, Tokenizer: tok, Model: model, MaxOutput: maxOutput, MaxIterations: maxIter, Tools: tools, style: docstore{}}
}

func (a *ReAct) Name() string { return a.style.name() }

func (a *ReAct) Run(ctx context.Context, in Input) (string, error) {
	maxIter := a.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}
	byName := make(map[string]Tool, len(a.Tools))
	for _, t := range a.Tools {
		byName[strings.ToLower(t.Name)] = t
	}

	scratch := a.style.prefix()
	for i := 1; i <= maxIter; i++ {
		out, err := a.complete(ctx, in, scratch)
		if err != nil {
			return "", err
		}
		st, err := a.style.parse(out)
		if err != nil {
			return "", err
		}
		if st.final {
			logger.Debugf("agent: %s finished after %d steps", a.Name(), i)
			return st.answer, nil
		}

		observation, err := a.act(ctx, byName, st)
		if err != nil {
			return "", err
		}
		scratch += a.style.record(i, out, observation)
	}

	// early stopping: ask once more for an answer from what was gathered
	logger.Infof("agent: %s hit %d iterations, generating final answer", a.Name(), maxIter)
	out, err := a.complete(ctx, in, scratch+finalAnswerNudge)
	if err != nil {
		return "", err
	}
	if st, err := a.style.parse(out); err == nil && st.final {
		return st.answer, nil
	}
	return strings.TrimSpace(out), nil
}

func (a *ReAct) act(ctx context.Context, byName map[string]Tool, st step) (string, error) {
	t, ok := byName[strings.ToLower(strings.TrimSpace(st.tool))]
	if !ok {
		return fmt.Sprintf("%s is not a valid tool, try another one.", st.tool), nil
	}
	logger.Debugf("agent: %s -> %s(%q)", a.Name(), t.Name, st.input)
	obs, err := t.Run(ctx, st.input)
	if err != nil {
		return "", fmt.Errorf("tool %s: %w", t.Name, err)
	}
	return obs, nil
}

func (a *ReAct) complete(ctx context.Context, in Input, scratch string) (string, error) {
	prompt := a.render(in, llm.Tail(a.Tokenizer, scratch, a.scratchAllowance(in)))
	out, err := a.Provider.GenerateCompletion(ctx, prompt,
		llm.WithMaxTokens(a.MaxOutput),
		llm.WithStop(observationStop),
	)
	if err != nil {
		return "", fmt.Errorf("agent completion: %w", err)
	}
	return out, nil
}

// scratchAllowance is the token room left for the scratchpad once the
// template, the input parts and the completion are accounted for.
func (a *ReAct) scratchAllowance(in Input) int {
	empty := llm.Count(a.Tokenizer, a.render(Input{}, ""))
	n := a.Tokenizer.ModelLimit(a.Model) - a.MaxOutput - empty -
		llm.Count(a.Tokenizer, in.Query) -
		llm.Count(a.Tokenizer, in.History) -
		llm.Count(a.Tokenizer, in.PreContext)
	if n < 0 {
		return 0
	}
	return n
}

func (a *ReAct) render(in Input, scratch string) string {
	list, names := a.style.describe(a.Tools)
	return strings.NewReplacer(
		"{tools}", list,
		"{tool_names}", names,
		"{history}", in.History,
		"{pre_context}", in.PreContext,
		"{input}", in.Query,
		"{agent_scratchpad}", scratch,
	).Replace(a.style.template())
}

// zeroShot is the MRKL "Action / Action Input / Final Answer" dialect.
type zeroShot struct{}

var (
	zsFinal  = regexp.MustCompile(`(?s)Final Answer\s*:(.*)`)
	zsAction = regexp.MustCompile(`(?s)Action\s*\d*\s*:[\s]*(.*?)[\s]*Action\s*\d*\s*Input\s*\d*\s*:[\s]*(.*)`)
)

func (zeroShot) name() string     { return "zs" }
func (zeroShot) template() string { return zeroShotTemplate }
func (zeroShot) prefix() string   { return "" }

func (zeroShot) describe(tools []Tool) (string, string) {
	lines := make([]string, len(tools))
	names := make([]string, len(tools))
	for i, t := range tools {
		lines[i] = t.Name + ": " + t.Description
		names[i] = t.Name
	}
	return strings.Join(lines, "\n"), strings.Join(names, ", ")
}

func (zeroShot) parse(text string) (step, error) {
	if m := zsFinal.FindStringSubmatch(text); m != nil {
		return step{final: true, answer: strings.TrimSpace(m[1])}, nil
	}
	if m := zsAction.FindStringSubmatch(text); m != nil {
		return step{tool: strings.TrimSpace(m[1]), input: strings.TrimSpace(m[2])}, nil
	}
	return step{}, &ParseError{Output: text}
}

func (zeroShot) record(_ int, out, observation string) string {
	return out + "\nObservation: " + observation + "\nThought:"
}

// docstore is the numbered "Thought N / Action N: Tool[input]" dialect.
type docstore struct{}

var dsAction = regexp.MustCompile(`(?s)Action\s*\d*\s*:\s*(\w+)\[(.*)\]`)

func (docstore) name() string     { return "ds" }
func (docstore) template() string { return docstoreTemplate }
func (docstore) prefix() string   { return "Thought 1:" }

func (docstore) describe(tools []Tool) (string, string) {
	lines := make([]string, 0, len(tools)+1)
	names := make([]string, 0, len(tools)+1)
	for i, t := range tools {
		lines = append(lines, fmt.Sprintf("(%d) %s[input], which %s", i+1, t.Name, t.Description))
		names = append(names, t.Name)
	}
	lines = append(lines, fmt.Sprintf("(%d) Finish[answer], which returns the answer and finishes the task.", len(tools)+1))
	names = append(names, "Finish")
	return strings.Join(lines, "\n"), strings.Join(names, ", ")
}

func (docstore) parse(text string) (step, error) {
	m := dsAction.FindStringSubmatch(text)
	if m == nil {
		return step{}, &ParseError{Output: text}
	}
	if strings.EqualFold(m[1], "Finish") {
		return step{final: true, answer: strings.TrimSpace(m[2])}, nil
	}
	return step{tool: m[1], input: strings.TrimSpace(m[2])}, nil
}

func (docstore) record(i int, out, observation string) string {
	return fmt.Sprintf("%s\nObservation %d: %s\nThought %d:", out, i, observation, i+1)
}
