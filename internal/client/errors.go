package client

import "errors"

// 拉取失败的三类错误，monitor 对其处理方式相同（记录、保留上次数据）
var (
	ErrNetwork = errors.New("network error")
	ErrParse   = errors.New("parse error")
	ErrNoData  = errors.New("no data for truck")

	// ErrThresholdsUnavailable Parameter 接口返回 status != 0
	ErrThresholdsUnavailable = errors.New("thresholds unavailable")
)

// Kind 错误类别（显示层使用的 lastError 值）
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoData):
		return "no_data"
	case errors.Is(err, ErrParse):
		return "parse_error"
	case errors.Is(err, ErrThresholdsUnavailable):
		return "thresholds_unavailable"
	default:
		return "network_error"
	}
}
