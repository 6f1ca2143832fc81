package domain

import "io"

// UploadedDocument is the raw upload as received at the boundary.
type UploadedDocument struct {
	Filename string
	MimeType string
	Size     int64
	Body     io.Reader
}

type Summary struct {
	Text           string `json:"summary"`
	OriginalLength int    `json:"original_length"`
	SummaryLength  int    `json:"summary_length"`
}

type Stage string

const (
	StageReceived     Stage = "received"
	StageValidated    Stage = "validated"
	StageMaterialized Stage = "materialized"
	StageExtracted    Stage = "extracted"
	StageSummarized   Stage = "summarized"
	StageResponded    Stage = "responded"
	StageErrored      Stage = "errored"
)
