package inference

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/sells-group/bom-cli/internal/model"
)

const jsonOnly = "Respond with a single JSON object and nothing else."

var mappingSystem = "You are an expert manufacturing analyst. You identify the key columns of a bill of materials (BOM). " + jsonOnly

func mappingPrompt(table string) string {
	return fmt.Sprintf(`Identify the columns in the following BOM snippet for manufacturer_part_number, designators, quantity and description.
Use the exact column header text. If a field cannot be confidently identified, its value must be null.
The description field is the most important one to map.

Schema:
%s

BOM data:
`+"```markdown\n%s\n```", mappingSchemaJSON, table)
}

var rowSystem = "You are an expert AI that parses a single BOM row into a JSON object conforming to the provided schema. " +
	"If quantity is missing, count the designators. " + jsonOnly

func rowPrompt(rowJSON string, mapping model.ColumnMapping) string {
	return fmt.Sprintf(`Parse the following single BOM row.
The column mapping is: %s.
Your output MUST conform to this JSON schema:
%s

Full row data (JSON):
%s`, mapping.String(), parsedItemSchemaJSON, rowJSON)
}

var judgeSystem = "You are an electronics component engineer who decides whether a candidate part is a valid drop-in substitute " +
	"for an original part under the given project assumptions. Reply with is_valid and a one-sentence reasoning. " + jsonOnly

func judgePrompt(assumptions model.Assumptions, original, candidate model.PartSummary) string {
	return fmt.Sprintf(`Project assumptions:
%s

Original part:
%s

Candidate alternative:
%s

Is the candidate a valid substitute for the original in this project?
Output schema:
%s`, indentJSON(assumptions), indentJSON(original), indentJSON(candidate), verdictSchemaJSON)
}

var judgePartSystem = "You are an electronics component engineer who checks whether a part satisfies a project's requirements. " +
	"Reply with is_valid and a one-sentence reasoning. " + jsonOnly

func judgePartPrompt(assumptions model.Assumptions, part model.PartSummary) string {
	return fmt.Sprintf(`Project assumptions:
%s

Part:
%s

Does this part satisfy the project assumptions?
Output schema:
%s`, indentJSON(assumptions), indentJSON(part), verdictSchemaJSON)
}

var questionsSystem = "You are an expert manufacturing analyst who prepares a sourcing project. " + jsonOnly

func questionsPrompt(table string) string {
	return fmt.Sprintf(`I have just received this bill of materials (BOM).
Based on the components you see here, what are the three most important questions I should ask the user to find the best and most cost-effective alternative parts?
Frame them as direct questions to the user. Also ask for the total order quantity.

Output schema:
%s

BOM data:
`+"```markdown\n%s\n```", questionsSchemaJSON, table)
}

var recommendSystem = "You are an expert assistant that selects electronic components for a project and explains the choice in Markdown."

func recommendPrompt(assumptions model.Assumptions, original model.PartSummary, candidates []model.PartSummary, kb KnowledgeBase) string {
	var b strings.Builder
	b.WriteString("# Components\n")
	b.WriteString("All components below are similar to each other, with minor differences in specifications, price and availability.\n\n")
	b.WriteString("Original part:\n")
	b.WriteString(indentJSON(original))
	b.WriteString("\n\nAlternatives:\n")
	b.WriteString(indentJSON(candidates))
	b.WriteString("\n\n**Project assumptions**:\n")
	b.WriteString(indentJSON(assumptions))
	b.WriteString("\n\n")
	kb.write(&b)
	b.WriteString(`# Task
Choose the component to use for this project, optimizing for minimum price at the target quantity.
All electrical characteristics must match the project requirements and industry. Prefer reliable suppliers.
A certification that is not mentioned is not necessarily absent.

# Output format
State how many alternatives you considered, then the selected component with manufacturer and price and at most three sentences on why.
Then a Markdown table ranking the selected component and every other suitable alternative (rank, name, manufacturer, best price, seller and country, key attributes).
Then list unsuitable alternatives with a short reason, and finally the project requirements you identified as a bulleted list.`)
	return b.String()
}

// KnowledgeBase holds sourcing preferences used by the recommendation report.
type KnowledgeBase struct {
	PreferredSuppliers  []string          `yaml:"preferred_suppliers" mapstructure:"preferred_suppliers"`
	SupplierReliability map[string]string `yaml:"supplier_reliability" mapstructure:"supplier_reliability"`
	AvoidCountries      []string          `yaml:"avoid_countries" mapstructure:"avoid_countries"`
	PreferRegions       []string          `yaml:"prefer_regions" mapstructure:"prefer_regions"`
}

func (kb KnowledgeBase) empty() bool {
	return len(kb.PreferredSuppliers) == 0 && len(kb.SupplierReliability) == 0 &&
		len(kb.AvoidCountries) == 0 && len(kb.PreferRegions) == 0
}

func (kb KnowledgeBase) write(b *strings.Builder) {
	if kb.empty() {
		return
	}
	b.WriteString("# Knowledge base\n")
	writeList(b, "Preferred suppliers", kb.PreferredSuppliers)
	if len(kb.SupplierReliability) > 0 {
		b.WriteString("Known supplier reliability:\n")
		for _, name := range slices.Sorted(maps.Keys(kb.SupplierReliability)) {
			fmt.Fprintf(b, "- %s: %s\n", name, kb.SupplierReliability[name])
		}
	}
	writeList(b, "Countries to avoid", kb.AvoidCountries)
	writeList(b, "Preferred countries or regions", kb.PreferRegions)
	b.WriteString("\n")
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	b.WriteString(title + ":\n")
	for _, it := range items {
		b.WriteString("- " + it + "\n")
	}
}

func indentJSON(v any) string {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(out)
}

// MarkdownTable renders rows as a pipe table using the first row's columns.
func MarkdownTable(rows []model.RawRow) string {
	if len(rows) == 0 {
		return ""
	}
	cols := rows[0].Columns()
	var b strings.Builder
	b.WriteString("| " + strings.Join(escapeCells(cols), " | ") + " |\n")
	sep := make([]string, len(cols))
	for i := range sep {
		sep[i] = "---"
	}
	b.WriteString("| " + strings.Join(sep, " | ") + " |\n")
	for _, r := range rows {
		cells := make([]string, len(cols))
		for i, c := range cols {
			cells[i] = r.Text(c)
		}
		b.WriteString("| " + strings.Join(escapeCells(cells), " | ") + " |\n")
	}
	return b.String()
}

func escapeCells(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		c = strings.ReplaceAll(c, "|", `\|`)
		out[i] = strings.ReplaceAll(c, "\n", " ")
	}
	return out
}
