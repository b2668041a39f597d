package session

// Message types sent to the browser client as JSON text frames. Audio itself
// follows each audio_chunk_meta as one binary frame.
const (
	TypeUserText       = "user_text"
	TypeAudioReset     = "audio_reset"
	TypeRAGSources     = "rag_sources"
	TypeAITextChunk    = "ai_text_chunk"
	TypeAudioChunkMeta = "audio_chunk_meta"
	TypeAudioDropped   = "audio_dropped"
	TypeAIText         = "ai_text"
	TypeLatencyMetrics = "latency_metrics"
)

type textMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Agent   string `json:"agent,omitempty"`
	Model   string `json:"model,omitempty"`
	Source  string `json:"source,omitempty"`
}

type audioMeta struct {
	Type       string  `json:"type"`
	Index      int     `json:"index"`
	Text       string  `json:"text"`
	DurationMS float64 `json:"duration_ms,omitempty"`
}

type audioDropped struct {
	Type   string `json:"type"`
	Text   string `json:"text"`
	Reason string `json:"reason"`
}

// Latency holds stage timings in seconds.
type Latency struct {
	STT     float64 `json:"stt"`
	Routing float64 `json:"routing"`
	RAG     float64 `json:"rag"`
	LLM     float64 `json:"llm"`
	TTFA    float64 `json:"ttfa"`
	Total   float64 `json:"total"`
	Model   string  `json:"model,omitempty"`
}

type latencyMessage struct {
	Type string  `json:"type"`
	Data Latency `json:"data"`
}
