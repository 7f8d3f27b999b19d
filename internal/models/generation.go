package models

// ParseMode records which strategy the response parser used
type ParseMode string

const (
	ParseModeStructured ParseMode = "structured"
	ParseModeMarkdown   ParseMode = "markdown"
	ParseModePlaintext  ParseMode = "plaintext"
)

// DefaultTitle is used when a response carries no title
const DefaultTitle = "Generated Code"

// ErrorTitle is the title of results produced from a pipeline fault
const ErrorTitle = "Error"

// GenerationRequest is the input of one generation call
type GenerationRequest struct {
	UserMessage string          `json:"user_message"`
	Context     ContextSnapshot `json:"context"`
}

// GenerationResult is the parsed answer of the generation service.
// Error is set only when a pipeline stage failed.
type GenerationResult struct {
	Title     string    `json:"title"`
	Plan      []string  `json:"plan"`
	Code      string    `json:"code"`
	Notes     string    `json:"notes"`
	ParseMode ParseMode `json:"parse_mode"`
	Error     *string   `json:"error"`
}

// ErrorResult builds the result returned to the caller when a stage faults.
func ErrorResult(msg string) GenerationResult {
	return GenerationResult{
		Title: ErrorTitle,
		Plan:  []string{},
		Error: &msg,
	}
}
