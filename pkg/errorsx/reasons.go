package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonVADClassify ReasonCode = "vad_classify"

	ReasonSTTTranscribe ReasonCode = "stt_transcribe"
	ReasonSTTEmpty      ReasonCode = "stt_empty"

	ReasonTTSSynthesize  ReasonCode = "tts_synthesize"
	ReasonTTSEmptyAudio  ReasonCode = "tts_empty_audio"
	ReasonTTSRateLimit   ReasonCode = "tts_rate_limit"
	ReasonTTSCircuitOpen ReasonCode = "tts_circuit_open"

	ReasonLLMGenerate  ReasonCode = "llm_generate"
	ReasonLLMStream    ReasonCode = "llm_stream"
	ReasonLLMRateLimit ReasonCode = "llm_rate_limit"
	ReasonLLMRoute     ReasonCode = "llm_route"

	ReasonRetrieve ReasonCode = "retrieve"

	ReasonTransportSend    ReasonCode = "transport_send"
	ReasonTransportUpgrade ReasonCode = "transport_upgrade"

	ReasonShutdownTimeout ReasonCode = "shutdown_timeout"
	ReasonConfig          ReasonCode = "config"
)
