package model

import "time"

// ArchiveInfo records the server settings the archived reports were produced with.
type ArchiveInfo struct {
	LLMModel      string `json:"llm_model"`
	PromptVariant string `json:"prompt_variant"`
	NumQuestions  int    `json:"num_questions"`
}

// ReportExport is the top-level JSON structure written by the export command.
type ReportExport struct {
	Application   string      `json:"application"`
	GeneratedDate time.Time   `json:"generated_date"`
	Archive       ArchiveInfo `json:"archive"`
	Count         int         `json:"count"`
	Reports       []Report    `json:"reports"`
}
