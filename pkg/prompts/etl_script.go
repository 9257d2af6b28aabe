package prompts

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-etl/pkg/models"
)

// ScriptTemperature is used for script generation and insight requests. Low
// temperature keeps generated code close to the instructions.
const ScriptTemperature = 0.1

// ScriptContext is everything the generator tells the model about one run.
type ScriptContext struct {
	File          models.FileRef
	Requirements  string
	Profile       *models.DatasetProfile // nil in degraded mode
	TargetTable   string
	WarehouseType string
	EnvVars       []string
}

// BuildETLScriptSystemMessage returns the system message for script generation.
func BuildETLScriptSystemMessage() string {
	return `You are an expert Python developer specializing in ETL processes. Generate clean, production-ready Python code with proper error handling and logging. Respond with a single fenced python code block.`
}

// BuildETLScriptPrompt creates the prompt asking the model for a complete,
// executable ETL script. The profile section is omitted when no profile is
// available so the model falls back to inspecting the file at runtime.
func BuildETLScriptPrompt(sc ScriptContext) string {
	var prompt strings.Builder

	prompt.WriteString("# ETL Script Generation\n\n")
	prompt.WriteString("Generate a complete Python ETL script that loads the source file into the warehouse.\n\n")

	prompt.WriteString("## File Information\n\n")
	prompt.WriteString(fmt.Sprintf("- **Source**: %s\n", sc.File.Locator))
	prompt.WriteString(fmt.Sprintf("- **Original filename**: %s\n", valueOrNA(sc.File.Filename)))
	prompt.WriteString(fmt.Sprintf("- **File type**: %s\n", valueOrNA(fileExtension(sc.File.Filename))))
	prompt.WriteString(fmt.Sprintf("- **Content type**: %s\n\n", valueOrNA(sc.File.ContentType)))

	prompt.WriteString("## User Requirements\n\n")
	if strings.TrimSpace(sc.Requirements) == "" {
		prompt.WriteString("No additional requirements. Load every row as-is.\n\n")
	} else {
		prompt.WriteString(strings.TrimSpace(sc.Requirements))
		prompt.WriteString("\n\n")
	}

	if sc.Profile != nil {
		writeProfileSection(&prompt, sc.Profile)
	} else {
		prompt.WriteString("## Data Profile\n\n")
		prompt.WriteString("Profiling was not available. Inspect the file at runtime and infer column types before creating the table.\n\n")
	}

	prompt.WriteString("## Target\n\n")
	prompt.WriteString(fmt.Sprintf("- **Target table**: %s\n", sc.TargetTable))
	if sc.WarehouseType != "" {
		prompt.WriteString(fmt.Sprintf("- **Warehouse type**: %s\n", sc.WarehouseType))
	}
	prompt.WriteString("- Create the table if it does not exist, using the recommended SQL types.\n\n")

	prompt.WriteString("## Environment\n\n")
	prompt.WriteString("Read all connection settings from environment variables. Never hard-code credentials.\n")
	for _, name := range sc.EnvVars {
		prompt.WriteString(fmt.Sprintf("- `%s`\n", name))
	}
	prompt.WriteString("\n")

	prompt.WriteString("## Technical Requirements\n\n")
	prompt.WriteString("1. Use pandas for data manipulation\n")
	prompt.WriteString("2. Include error handling and logging\n")
	prompt.WriteString("3. Validate data before loading\n")
	prompt.WriteString("4. Exit with a non-zero status code on any failure\n")
	prompt.WriteString("5. After loading, print exactly one line `Successfully loaded N rows` where N is the number of rows written\n\n")

	prompt.WriteString("## Output Format\n\n")
	prompt.WriteString("Return ONLY the script inside a single ```python fenced block.\n")

	return prompt.String()
}

func writeProfileSection(prompt *strings.Builder, p *models.DatasetProfile) {
	prompt.WriteString("## Data Profile\n\n")
	prompt.WriteString(fmt.Sprintf("- **Rows**: %d\n", p.TotalRows))
	prompt.WriteString(fmt.Sprintf("- **Columns**: %d\n", p.TotalColumns))
	prompt.WriteString(fmt.Sprintf("- **Data quality**: %.2f (%s)\n\n", p.DataQuality.Score, p.DataQuality.Tier))

	prompt.WriteString("### Columns\n")
	for _, col := range p.Columns {
		nullInfo := ""
		if col.NullCount > 0 && p.TotalRows > 0 {
			nullInfo = fmt.Sprintf(" (%.1f%% null)", float64(col.NullCount)/float64(p.TotalRows)*100)
		}
		format := ""
		if col.DateFormat != "" {
			format = fmt.Sprintf(" [format %s]", col.DateFormat)
		}
		prompt.WriteString(fmt.Sprintf("- %s: %s → %s%s%s\n", col.Name, col.InferredType, col.SQLType, format, nullInfo))
	}
	prompt.WriteString("\n")

	if len(p.PrimaryKeyCandidates) > 0 {
		prompt.WriteString("### Primary Key Candidates\n")
		for _, k := range p.PrimaryKeyCandidates {
			prompt.WriteString(fmt.Sprintf("- %s (%s confidence, %.1f%% unique)\n", k.Column, k.Confidence, k.Uniqueness*100))
		}
		prompt.WriteString("\n")
	}

	if len(p.DateColumns) > 0 {
		prompt.WriteString("### Date Columns\n")
		prompt.WriteString("Parse these as timestamps: ")
		prompt.WriteString(strings.Join(p.DateColumns, ", "))
		prompt.WriteString("\n\n")
	}

	if p.InsightText != "" {
		prompt.WriteString("### Analyst Notes\n")
		prompt.WriteString(strings.TrimSpace(p.InsightText))
		prompt.WriteString("\n\n")
	}
}

func fileExtension(name string) string {
	i := strings.LastIndex(name, ".")
	if i < 0 || i == len(name)-1 {
		return ""
	}
	return strings.ToLower(name[i+1:])
}

func valueOrNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
