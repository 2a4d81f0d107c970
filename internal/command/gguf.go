package command

import (
	gguf_parser "github.com/gpustack/gguf-parser-go"
)

// ProbeModelContextLength best-effort parses a GGUF file's header to
// discover its native training context length, so a recipe's max_model_len
// can be compared against what the model actually supports. Build does not
// call it, and neither does the launch coordinator; no code path in this
// module compares max_model_len against it.
//
// A parse failure, or a header without a context length, is reported as
// ok=false rather than as an error.
func ProbeModelContextLength(modelPath string) (int, bool) {
	f, err := gguf_parser.ParseGGUFFile(modelPath)
	if err != nil {
		return 0, false
	}
	meta := f.Metadata()
	if meta == nil || meta.ContextLength == 0 {
		return 0, false
	}
	return int(meta.ContextLength), true
}
