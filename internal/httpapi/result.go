package httpapi

// Result 统一响应包（与移动端约定）
// - code: 2000 成功，-1 失败
// - type: 'success' | 'error'
type Result[T any] struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
	Result  T      `json:"result"`
}

// List 列表类结果
type List[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

const (
	ResultSuccess = 2000
	ResultError   = -1
)

func Ok[T any](result T) Result[T] {
	return Result[T]{Code: ResultSuccess, Type: "success", Message: "ok", Result: result}
}

// OkList nil 切片输出为 []
func OkList[T any](items []T) Result[List[T]] {
	if items == nil {
		items = []T{}
	}
	return Ok(List[T]{Items: items, Total: len(items)})
}

func Fail(message string) Result[any] {
	return Result[any]{Code: ResultError, Type: "error", Message: message}
}
