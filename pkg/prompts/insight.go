package prompts

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-etl/pkg/models"
)

// BuildInsightSystemMessage returns the system message for profile insights.
func BuildInsightSystemMessage() string {
	return `You are a data engineering expert providing practical advice.`
}

// BuildInsightPrompt asks for short, actionable recommendations about a
// profiled dataset.
func BuildInsightPrompt(file models.FileRef, p *models.DatasetProfile) string {
	var prompt strings.Builder

	prompt.WriteString("# Dataset Review\n\n")
	prompt.WriteString(fmt.Sprintf("File: %s\n", valueOrNA(file.Filename)))
	prompt.WriteString(fmt.Sprintf("Type: %s\n\n", valueOrNA(file.ContentType)))

	if p != nil {
		writeProfileSection(&prompt, p)
	}

	prompt.WriteString("## Please Suggest\n\n")
	prompt.WriteString("1. Data validation checks worth adding\n")
	prompt.WriteString("2. Transformations the load should apply\n")
	prompt.WriteString("3. Table design for the warehouse\n")
	prompt.WriteString("4. Data quality issues to monitor\n\n")
	prompt.WriteString("Keep recommendations practical and under 200 words. Respond in plain text.\n")

	return prompt.String()
}
