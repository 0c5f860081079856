package post

import "regexp"

// Rule deletes every match of Pattern from an answer.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
}

// Apply returns s with all matches removed.
func (r Rule) Apply(s string) string {
	return r.Pattern.ReplaceAllString(s, "")
}

// ScaffoldRules strip agent scaffolding from final answers. Order matters:
// specific forms run before the generic prefixes they contain.
var ScaffoldRules = []Rule{
	{Name: "action block", Pattern: regexp.MustCompile(`(?m)^\s*Action:[^\n]*\n\s*Action Input:[^\n]*$`)},
	{Name: "action input", Pattern: regexp.MustCompile(`Action Input:\s+`)},
	{Name: "action none", Pattern: regexp.MustCompile(`(?i)Action:\s+None(?: needed)?\.?`)},
	{Name: "action", Pattern: regexp.MustCompile(`Action:\s+`)},
	{Name: "numbered action", Pattern: regexp.MustCompile(`Action \d+:`)},
	{Name: "online search", Pattern: regexp.MustCompile(`Online Search:`)},
	{Name: "numbered thought", Pattern: regexp.MustCompile(`Thought \d+:`)},
	{Name: "numbered observation", Pattern: regexp.MustCompile(`Observation \d+:`)},
	{Name: "final answer label", Pattern: regexp.MustCompile(`Final Answer:`)},
	{Name: "final answer", Pattern: regexp.MustCompile(`Final Answer`)},
	{Name: "finish", Pattern: regexp.MustCompile(`Finish\[`)},
	{Name: "human", Pattern: regexp.MustCompile(`Human:`)},
	{Name: "ai", Pattern: regexp.MustCompile(`AI:`)},
	{Name: "dashes", Pattern: regexp.MustCompile(`--`)},
	{Name: "heading", Pattern: regexp.MustCompile(`###`)},
}
