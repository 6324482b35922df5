package httpapi

// Result 组织架构查询接口的响应包
// HTTP 状态码恒为 200，成败只看 code：
// - 2000：查询成功，result 为用户/部门/领导等数据
// - -1：参数非法、记录不存在或同步被拒绝，message 为原因，result 为 null
type Result[T any] struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
	Result  T      `json:"result"`
}

const (
	ResultSuccess = 2000
	ResultError   = -1
)

// Ok 包装查询结果
func Ok[T any](result T) Result[T] {
	return Result[T]{Code: ResultSuccess, Type: "success", Message: "ok", Result: result}
}

// Fail 包装失败原因
func Fail(message string) Result[any] {
	return Result[any]{Code: ResultError, Type: "error", Message: message, Result: nil}
}
