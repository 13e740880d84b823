package model

type Framework struct {
	Name string `json:"name"`
	Mode string `json:"mode"`
}

type AnalysisRequest struct {
	Code      string     `json:"code"`
	Framework *Framework `json:"framework"`
}

type Issue struct {
	Category    IssueCategory `json:"category"`
	Severity    IssueSeverity `json:"severity"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	LineNumber  int           `json:"lineNumber"`
	Fix         string        `json:"fix"`
}

type AnalysisResult struct {
	Issues    []Issue `json:"issues"`
	FixedCode string  `json:"fixedCode"`
}
