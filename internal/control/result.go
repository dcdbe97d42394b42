package control

import "net/http"

// Status is the outcome vocabulary of a control action.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusPartial  Status = "partial"
	StatusNotFound Status = "not_found"
	StatusError    Status = "error"
)

// Result is returned to the caller of a Wi-Fi action.
type Result struct {
	Status  Status `json:"status"`
	Message string `json:"message"`
}

// HTTPStatus maps the result to the status code the dashboard expects.
func (r Result) HTTPStatus() int {
	switch r.Status {
	case StatusSuccess:
		return http.StatusOK
	case StatusPartial:
		return http.StatusAccepted
	case StatusNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
