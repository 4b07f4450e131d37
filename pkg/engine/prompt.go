package engine

import (
	"fmt"
	"strings"

	"github.com/rhuss/aython/pkg/api"
)

// DefaultSystemPrompt frames the backend as a Python script author.
const DefaultSystemPrompt = `You are a Python expert that writes complete, runnable Python scripts.
The script runs as "python script.py" inside a python:3.11-slim container.
Put every pip package the script needs in "deps"; use [] when there are none.
Choose a snake_case "name" for the script.`

// buildInstructions renders the instruction text for one attempt.
// feedback is the previous candidate's syntax error, or empty.
func buildInstructions(req *api.GenerationRequest, feedback string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Create a Python function that does the following: %s.\n", strings.TrimSpace(req.Requirement))

	if ctx := strings.TrimSpace(req.Context); ctx != "" {
		b.WriteString("\nCurrent context (code and output already in the session):\n")
		b.WriteString(ctx)
		b.WriteString("\n")
	}

	if len(req.Dependencies) > 0 {
		fmt.Fprintf(&b, "\nThese packages are already installed and may be used: %s.\n",
			strings.Join(req.Dependencies, ", "))
	}

	if feedback != "" {
		fmt.Fprintf(&b, "\nYour previous answer was rejected: %s. Return corrected code.\n", feedback)
	}

	b.WriteString(`
Return ONLY valid JSON in this format without any extra text, comments, or explanation:
{
  "name": "<snake_case_name>",
  "code_snippet": "<your python code here>",
  "deps": []
}
`)
	return b.String()
}
