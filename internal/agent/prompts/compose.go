package prompts

import (
	"context"
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/clara-care/server/internal/agent/model"
	"github.com/clara-care/server/internal/agent/tools"
)

//go:embed template/system_prompt.txt
var systemPromptTemplate string

// Page addenda. pageChecks is evaluated in order and the first match wins.
const (
	InstitutionalAddendum = "The visitor is browsing the institutional page. They likely represent a care facility, company or insurer. Focus on volume arrangements, integration with existing care staff and offer to capture a lead for a tailored proposal."
	PersonalCareAddendum  = "The visitor is browsing the personal care page. They are likely looking for care for themselves or a family member. Focus on peace of mind, the personal alarm plans and how quickly help arrives."
	DevicesAddendum       = "The visitor is browsing the devices page. Focus on which devices fit their situation and what each device adds to the monthly price."
	NursesAddendum        = "The visitor is browsing the nurses page. They may be a nurse interested in working with us or someone looking for nursing care. Ask which one applies before going further."
)

var pageChecks = []struct {
	match    []string
	addendum string
}{
	{match: []string{"institutional", "commercial"}, addendum: InstitutionalAddendum},
	{match: []string{"personal-care"}, addendum: PersonalCareAddendum},
	{match: []string{"devices"}, addendum: DevicesAddendum},
	{match: []string{"nurses"}, addendum: NursesAddendum},
}

var languageNames = map[string]string{
	"en": "English",
	"es": "Spanish",
	"nl": "Dutch",
}

// Input is everything the composed system prompt depends on.
type Input struct {
	Configuration model.AgentConfiguration
	Knowledge     []model.KnowledgeEntry
	Page          string
	Language      string
	// MaxKnowledgeChars caps the knowledge block; lowest priority entries go first. 0 means no cap.
	MaxKnowledgeChars int
}

type knowledgeBlock struct {
	Category string
	Title    string
	Content  string
}

func (b knowledgeBlock) size() int {
	// "[" category "] " title ":\n" content, plus the blank line separating blocks
	return len(b.Category) + len(b.Title) + len(b.Content) + 7
}

// Compose renders the system prompt: base prompt, knowledge by descending
// priority, at most one page addendum, lease and sales rules, language directive.
// It performs no I/O and is deterministic for a given Input.
func Compose(ctx context.Context, in Input) (string, error) {
	tpl := prompt.FromMessages(schema.GoTemplate, schema.SystemMessage(systemPromptTemplate))
	vars := map[string]any{
		"BasePrompt":   strings.TrimSpace(in.Configuration.SystemPrompt),
		"Knowledge":    knowledgeBlocks(in.Knowledge, in.MaxKnowledgeChars),
		"PageContext":  PageAddendum(in.Page),
		"Language":     LanguageName(in.Language),
		"PlansTool":    tools.ToolGetPricingPlans,
		"ProductsTool": tools.ToolGetProducts,
		"QuoteTool":    tools.ToolBuildQuote,
		"CheckoutTool": tools.ToolCreateCheckout,
		"LeadTool":     tools.ToolCaptureLead,
	}
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("system prompt render: %w", err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("system prompt render: empty result")
	}
	return msgs[0].Content, nil
}

// PageAddendum returns the addendum of the first page check page matches, or "".
func PageAddendum(page string) string {
	p := strings.ToLower(page)
	if p == "" {
		return ""
	}
	for _, c := range pageChecks {
		for _, m := range c.match {
			if strings.Contains(p, m) {
				return c.addendum
			}
		}
	}
	return ""
}

// LanguageName maps a language code to its English name. Unknown codes are English.
func LanguageName(code string) string {
	return languageNames[LanguageCode(code)]
}

// LanguageCode normalises code to a supported language code, "en" when unsupported.
func LanguageCode(code string) string {
	c := strings.ToLower(strings.TrimSpace(code))
	if _, ok := languageNames[c]; ok {
		return c
	}
	return "en"
}

func knowledgeBlocks(entries []model.KnowledgeEntry, maxChars int) []knowledgeBlock {
	sorted := make([]model.KnowledgeEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority > sorted[j].Priority
		}
		return sorted[i].Title < sorted[j].Title
	})

	blocks := make([]knowledgeBlock, 0, len(sorted))
	total := 0
	for _, e := range sorted {
		b := knowledgeBlock{Category: e.Category, Title: e.Title, Content: e.Content}
		if maxChars > 0 && total+b.size() > maxChars {
			break
		}
		total += b.size()
		blocks = append(blocks, b)
	}
	return blocks
}
