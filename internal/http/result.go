package httpapi

// Result response envelope shared by every endpoint.
// - code: ResultSuccess = 2000
// - type: 'success' | 'error'
// - message: string
// - result: any
type Result[T any] struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
	Result  T      `json:"result"`
}

const (
	ResultSuccess = 2000
	ResultError   = -1
	// ResultTokenExpired 使用 code=60401 + HTTP 401
	ResultTokenExpired = 60401
)

func Ok[T any](result T) Result[T] {
	return Result[T]{Code: ResultSuccess, Type: "success", Message: "ok", Result: result}
}

func Fail(message string) Result[any] {
	return Result[any]{Code: ResultError, Type: "error", Message: message, Result: nil}
}

// FailWith carries details (validation fields) alongside the message.
func FailWith(message string, details any) Result[any] {
	return Result[any]{Code: ResultError, Type: "error", Message: message, Result: details}
}
