package remote

// ExecuteRequest is the body of POST /execute on the sandbox server.
type ExecuteRequest struct {
	Code           string   `json:"code"`
	TimeoutSeconds int      `json:"timeout_seconds"`
	Requirements   []string `json:"requirements,omitempty"`
}

// ExecuteResponse is the reply to POST /execute. Status is "success" for
// a zero exit code and "error" otherwise.
type ExecuteResponse struct {
	Status          string `json:"status"`
	Stdout          string `json:"stdout"`
	Stderr          string `json:"stderr"`
	ExitCode        int    `json:"exit_code"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
}

// HealthResponse is the reply to GET /health.
type HealthResponse struct {
	Status         string `json:"status"`
	RuntimeVersion string `json:"runtime_version"`
	Capacity       int    `json:"capacity"`
	CurrentLoad    int    `json:"current_load"`
	UptimeSecs     int64  `json:"uptime_seconds"`
}

// ErrorResponse is returned with non-200 statuses.
type ErrorResponse struct {
	Error string `json:"error"`
}
