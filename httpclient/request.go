package httpclient

// Request is one call to a backend.
type Request struct {
	// Operation names the call in errors, e.g. "token exchange".
	Operation string
	Method    string
	// Path is joined to Config.BaseURL unless it is already absolute.
	Path string
	// Body is sent as-is for []byte and string, JSON-encoded otherwise.
	Body any
	// Bearer, when set, is sent as "Authorization: Bearer <token>".
	Bearer string
}

// Response is a fully read response.
type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// IsSuccess reports a 2xx status.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}
