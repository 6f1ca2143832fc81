package domain

type Device string

const (
	DeviceAuto        Device = "auto"
	DeviceAccelerator Device = "accelerator"
	DeviceCPU         Device = "cpu"
)

// ModelSpec identifies the fine-tuned weights to serve.
type ModelSpec struct {
	// Name is the identifier the runtime serves the adapter under.
	Name string
	// Path is the adapter location on the runtime's filesystem.
	Path      string
	BaseModel string
	Device    Device
}

// DecodingParams is the fixed decoding configuration for one generation call.
type DecodingParams struct {
	MaxNewTokens  int
	NumBeams      int
	Temperature   float64
	TopP          float64
	DoSample      bool
	EarlyStopping bool
	// Seed pins the runtime's random source; nil leaves sampling unseeded.
	Seed *int64
}

// Generation is the raw output of one decode. Tokens may be empty when the
// runtime only returns text.
type Generation struct {
	Tokens       []int
	Text         string
	FinishReason string
	PromptTokens int
}
