package service

import (
	"strings"

	"github.com/a11ylint/a11ylint-server/internal/model"
)

// BuildPrompt renders the audit instructions for one component. The output
// depends only on req.
func BuildPrompt(req *model.AnalysisRequest) string {
	name := req.Framework.Name
	var b strings.Builder

	b.WriteString("You are an accessibility expert. Analyze this ")
	b.WriteString(name)
	b.WriteString(" component for accessibility issues in these categories:\n")
	b.WriteString("1. Semantic HTML (use proper elements like button, nav, header, etc.)\n")
	b.WriteString("2. Color Contrast (WCAG AA requires 4.5:1 for normal text, 3:1 for large text)\n")
	b.WriteString("3. Keyboard Navigation (tab order, focus management, keyboard shortcuts)\n")
	b.WriteString("4. Screen Reader (ARIA labels, roles, alt text, sr-only content)\n\n")

	b.WriteString(name)
	b.WriteString(" component code:\n```")
	b.WriteString(req.Framework.Mode)
	b.WriteString("\n")
	b.WriteString(req.Code)
	b.WriteString("\n```\n\n")

	b.WriteString("Respond with ONLY a JSON object (no markdown, no preamble) with this structure:\n")
	b.WriteString(`{
  "issues": [
    {
      "category": "semantic" | "contrast" | "keyboard" | "screenReader",
      "severity": "critical" | "warning" | "suggestion",
      "title": "Brief issue title",
      "description": "Detailed explanation",
      "lineNumber": 5,
      "fix": "How to fix it"
    }
  ],
  "fixedCode": "Complete corrected `)
	b.WriteString(name)
	b.WriteString(` component code"
}`)

	return b.String()
}
