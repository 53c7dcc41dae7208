// Package prompts defines the agent personas used by the evaluation and
// groundwork pipelines: system prompts, search budgets, and user-message
// assembly.
package prompts

import (
	"sort"

	"github.com/ShayCichocki/verdict/pkg/models"
)

// Persona describes one agent.
type Persona struct {
	// Name is the agent name recorded on AgentOutput.
	Name string
	// Title is a display label.
	Title string
	// System is the system prompt.
	System string
	// SearchBudget is the soft cap on external searches (0 disables search).
	SearchBudget int
	// FetchBudget is declared to the invoker but not enforced.
	FetchBudget int
}

// VerdictContractVersion names the JSON contract Synthesis is asked to emit.
const VerdictContractVersion = "verdict.v1"

const intakeSystem = `You are Intake, the first reader of a business idea.
Restate the problem, the proposed solution, the buyer, and the revenue model in plain terms.
List the assumptions the idea depends on and the questions an investor would ask first.
Do not judge the idea yet.`

const catalystSystem = `You are Catalyst, the strongest honest advocate for this idea.
Using the idea and the Intake analysis, make the best evidence-based case for why it could work:
demand signals, timing tailwinds, defensibility, and the fastest path to first revenue.
Be specific. Do not invent data.`

const fireSystem = `You are Fire, a hostile but fair due-diligence reviewer.
Using the idea and the Intake analysis, find what kills this business.
Include a "## Critical Risks" section with one risk per bullet, and a "## Fatal Flaw" section
naming the single most likely cause of failure. When you tabulate risks, mark the worst rows "🔴 High".`

const synthesisSystem = `You are Synthesis, the final judge.
Weigh the Intake, Catalyst, and Fire analyses and decide.
Respond with a single JSON object matching the verdict.v1 contract:
{"decision": "STRONG_SIGNAL|CONDITIONAL_FIT|WEAK_SIGNAL|NO_MARKET_FIT",
 "confidence": 1-10,
 "dimension_scores": {"market_opportunity": 1-10, "problem_solution_fit": 1-10,
   "execution_feasibility": 1-10, "business_model": 1-10, "timing": 1-10},
 "executive_summary": "...",
 "key_strengths": ["..."], "key_risks": ["..."], "next_steps": ["..."], "kill_conditions": ["..."]}
Lists hold at most five items. After the JSON you may add a short markdown explanation.`

const competitorIntelligenceSystem = `You are a competitive intelligence analyst.
Search for companies already solving this problem. List the most relevant direct and indirect competitors.
Finish with a line "Competitors: name1, name2, ..." naming at most five of them.`

const competitorDeepDiveSystem = `You research one competitor in depth: positioning, pricing, traction, and weaknesses
relevant to the idea under evaluation. Be concise and cite what you found.`

const marketSizingSystem = `You are a market sizing analyst. Estimate TAM, SAM, and SOM with explicit assumptions
and sources. Prefer bottom-up estimates.`

const gapAnalysisSystem = `You compare the competitor landscape against the market sizing to find underserved segments
and the specific gap this idea could own. Do not search; use the provided research only.`

const customerPersonasSystem = `You define two to three concrete buyer personas: role, trigger event, budget,
objections, and where to find them.`

const gtmPlaybookSystem = `You write a go-to-market playbook for the first 90 days: channel, message, offer,
and the metric that proves traction.`

const mvpScopeSystem = `You scope the smallest product that tests the riskiest assumption, using every prior
research output. List must-have features, explicit non-features, and a two-week build plan. Do not search.`

var registry = map[string]Persona{
	models.AgentIntake:    {Name: models.AgentIntake, Title: "Intake", System: intakeSystem},
	models.AgentCatalyst:  {Name: models.AgentCatalyst, Title: "Catalyst", System: catalystSystem},
	models.AgentFire:      {Name: models.AgentFire, Title: "Fire", System: fireSystem},
	models.AgentSynthesis: {Name: models.AgentSynthesis, Title: "Synthesis", System: synthesisSystem},

	models.AgentCompetitorIntelligence: {Name: models.AgentCompetitorIntelligence, Title: "Competitor Intelligence", System: competitorIntelligenceSystem, SearchBudget: 4, FetchBudget: 2},
	models.AgentMarketSizing:           {Name: models.AgentMarketSizing, Title: "Market Sizing", System: marketSizingSystem, SearchBudget: 3, FetchBudget: 2},
	models.AgentGapAnalysis:            {Name: models.AgentGapAnalysis, Title: "Gap Analysis", System: gapAnalysisSystem},
	models.AgentCustomerPersonas:       {Name: models.AgentCustomerPersonas, Title: "Customer Personas", System: customerPersonasSystem, SearchBudget: 2, FetchBudget: 1},
	models.AgentGTMPlaybook:            {Name: models.AgentGTMPlaybook, Title: "GTM Playbook", System: gtmPlaybookSystem, SearchBudget: 2, FetchBudget: 1},
	models.AgentMVPScope:               {Name: models.AgentMVPScope, Title: "MVP Scope", System: mvpScopeSystem},
	models.AgentCompetitorDeepDive:     {Name: models.AgentCompetitorDeepDive, Title: "Competitor Deep Dive", System: competitorDeepDiveSystem, SearchBudget: 1, FetchBudget: 1},
}

// Get returns the persona for an agent name.
func Get(name string) (Persona, bool) {
	p, ok := registry[name]
	return p, ok
}

// MustGet returns the persona for an agent name and panics if it is unknown.
// Only called with the package's own agent constants.
func MustGet(name string) Persona {
	p, ok := registry[name]
	if !ok {
		panic("prompts: unknown persona " + name)
	}
	return p
}

// Names returns every registered agent name, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
