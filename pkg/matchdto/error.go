package matchdto

// ErrorResponse is the uniform error body. Unknown or unauthorized match
// identifiers intentionally share one generic message so callers cannot
// probe the identifier space.
type ErrorResponse struct {
	Error string `json:"error"`
}

const GenericNotFoundMessage = "something went wrong"
