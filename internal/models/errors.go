package models

import "errors"

// Error kinds shared by the pipeline stages. Callers wrap them with fmt.Errorf("%w: ...")
// and match with errors.Is.
var (
	// ErrLoad means a source file is unreadable, unsupported, or empty after extraction.
	ErrLoad = errors.New("load error")
	// ErrEncoding means the embedding encoder rejected the input or failed internally.
	ErrEncoding = errors.New("encoding error")
	// ErrStoreCorrupt means the persisted vector store cannot be read or is inconsistent.
	ErrStoreCorrupt = errors.New("vector store corrupt")
	// ErrUnsupportedBackend means the configured LLM variant is unknown or misconfigured.
	ErrUnsupportedBackend = errors.New("unsupported LLM backend")
	// ErrGeneration means the LLM runtime failed for the current prompt.
	ErrGeneration = errors.New("generation error")
	// ErrInvalidChunking means chunk size/overlap parameters are out of range.
	ErrInvalidChunking = errors.New("invalid chunking parameters")
)
