package orientation

import "fmt"

// Backend names accepted by NewDetector
const (
	BackendNone     = "none"
	BackendEXIF     = "exif"
	BackendService  = "service"
	BackendOllama   = "ollama"
	BackendLlamaCpp = "llamacpp"
	BackendChain    = "chain"
)

// NewDetector builds the detector for a backend name. The chain backend reads
// EXIF first and falls back to the service. BackendNone returns a nil
// detector, which a Corrector treats as always falling back.
func NewDetector(backend, url, model string) (Detector, error) {
	switch backend {
	case BackendNone, "":
		return nil, nil
	case BackendEXIF:
		return NewEXIFDetector(), nil
	case BackendService:
		return NewServiceDetector(url), nil
	case BackendOllama:
		d, err := NewOllamaDetector(url, model)
		if err != nil {
			return nil, err
		}
		return d, nil
	case BackendLlamaCpp:
		d, err := NewLlamaCppDetector(url, model)
		if err != nil {
			return nil, err
		}
		return d, nil
	case BackendChain:
		return Chain{NewEXIFDetector(), NewServiceDetector(url)}, nil
	default:
		return nil, fmt.Errorf("unknown orientation backend: %s", backend)
	}
}
