package question

import (
	"sort"
	"strings"

	"clariond/internal/types"
)

// GenericDomain is the fallback when no domain signal matches.
const GenericDomain = "generic"

// Template is a parameterized clarifying-question form tied to a domain.
type Template struct {
	ID       string   `json:"id"`
	Domain   string   `json:"domain"`
	Question string   `json:"question"`
	Options  []string `json:"options,omitempty"`
}

// domainKeywords are the per-domain signal banks used for inference.
// Matching is case-insensitive over prompt, history, and project hints.
var domainKeywords = map[string][]string{
	"web": {
		"flask", "fastapi", "react", "django", "node", "express",
		"http", "rest", "endpoint", "frontend", "backend", "website",
	},
	"data": {
		"csv", "sql", "pandas", "numpy", "dataframe", "database",
		"query", "etl", "spreadsheet", "dataset",
	},
	"ml": {
		"tensorflow", "pytorch", "transformer", "model", "training",
		"neural", "embedding", "inference", "fine-tune", "llm",
	},
	"devops": {
		"docker", "kubernetes", "aws", "azure", "gcp", "terraform",
		"deploy", "container", "ci/cd", "pipeline", "helm",
	},
}

// staticBank is the fallback question bank, used until a domain has learned
// templates with enough samples to trust.
var staticBank = map[string][]Template{
	"web": {
		{ID: "web.framework", Domain: "web", Question: "Which web framework or stack is this for?",
			Options: []string{"Flask", "FastAPI", "Django", "React", "Node.js", "Other"}},
		{ID: "web.surface", Domain: "web", Question: "Is this about the API, the UI, or both?",
			Options: []string{"API", "UI", "Both"}},
		{ID: "web.environment", Domain: "web", Question: "Should this change apply to development, production, or both?",
			Options: []string{"Development", "Production", "Both"}},
	},
	"data": {
		{ID: "data.source", Domain: "data", Question: "Where does the data live right now?",
			Options: []string{"CSV files", "SQL database", "Pandas/NumPy in memory", "External API", "Other"}},
		{ID: "data.shape", Domain: "data", Question: "Roughly how large is the dataset you're working with?",
			Options: []string{"Fits in memory", "Larger than memory", "Streaming", "Not sure"}},
		{ID: "data.output", Domain: "data", Question: "What form should the result take?",
			Options: []string{"Table/report", "Cleaned dataset", "Chart", "Other"}},
	},
	"ml": {
		{ID: "ml.framework", Domain: "ml", Question: "Which ML framework are you using?",
			Options: []string{"PyTorch", "TensorFlow", "Transformers", "scikit-learn", "Other"}},
		{ID: "ml.stage", Domain: "ml", Question: "Is this about training, evaluation, or inference?",
			Options: []string{"Training", "Evaluation", "Inference"}},
		{ID: "ml.goal", Domain: "ml", Question: "What metric or behavior are you trying to improve?"},
	},
	"devops": {
		{ID: "devops.platform", Domain: "devops", Question: "Which platform is this targeting?",
			Options: []string{"Docker", "Kubernetes", "AWS", "Azure", "GCP", "Other"}},
		{ID: "devops.environment", Domain: "devops", Question: "Which environment does this affect?",
			Options: []string{"Local", "Staging", "Production", "All"}},
		{ID: "devops.change", Domain: "devops", Question: "Is this a new setup or a change to an existing one?",
			Options: []string{"New setup", "Existing change"}},
	},
	GenericDomain: {
		{ID: "generic.goal", Domain: GenericDomain, Question: "What outcome are you trying to achieve?"},
		{ID: "generic.target", Domain: GenericDomain, Question: "Which file, component, or system should this apply to?"},
		{ID: "generic.constraints", Domain: GenericDomain, Question: "Are there constraints I should respect (performance, compatibility, style)?"},
	},
}

// templateIndex maps template id to its definition across all banks.
var templateIndex = buildTemplateIndex()

func buildTemplateIndex() map[string]Template {
	idx := make(map[string]Template)
	for _, templates := range staticBank {
		for _, t := range templates {
			idx[t.ID] = t
		}
	}
	return idx
}

// TemplateByID looks up a template definition by id.
func TemplateByID(id string) (Template, bool) {
	t, ok := templateIndex[id]
	return t, ok
}

// StaticTemplates returns the fallback bank for a domain, defaulting to the
// generic bank for unknown domains.
func StaticTemplates(domain string) []Template {
	if templates, ok := staticBank[domain]; ok {
		return templates
	}
	return staticBank[GenericDomain]
}

// InferDomain matches the prompt, prior turns, and project hints against the
// per-domain keyword banks. Returns the best-matching domain and whether any
// signal matched; no match (or a nil context) degrades to "generic".
func InferDomain(prompt string, ctx *types.ConversationContext) (string, bool) {
	var sb strings.Builder
	sb.WriteString(strings.ToLower(prompt))
	if ctx != nil {
		for _, turn := range ctx.History {
			sb.WriteByte(' ')
			sb.WriteString(strings.ToLower(turn.Content))
		}
		for _, hint := range ctx.ProjectHints {
			sb.WriteByte(' ')
			sb.WriteString(strings.ToLower(hint))
		}
	}
	haystack := sb.String()

	best := GenericDomain
	bestHits := 0
	// Iterate in sorted order so ties resolve deterministically.
	domains := make([]string, 0, len(domainKeywords))
	for domain := range domainKeywords {
		domains = append(domains, domain)
	}
	sort.Strings(domains)

	for _, domain := range domains {
		hits := 0
		for _, kw := range domainKeywords[domain] {
			if strings.Contains(haystack, kw) {
				hits++
			}
		}
		if hits > bestHits {
			best = domain
			bestHits = hits
		}
	}
	return best, bestHits > 0
}
