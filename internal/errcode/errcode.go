package errcode

// 错误码约定：
// - 0：无错误
// - 4xxx：请求方可修正的错误（参数、版式、鉴权、限流、资源缺失）
// - 5xxx：系统错误（渲染中断、依赖不可用）
const (
	OK              = 0
	InvalidRequest  = 4000
	Unauthorized    = 4001
	InvalidGeometry = 4002
	ResourceMissing = 4004
	RateLimited     = 4029
	SystemError     = 5000
	RenderFailed    = 5001
)
