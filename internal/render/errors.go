package render

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrAssetUnavailable 表示资源无法获取或解码，调用方按缺失处理。
	ErrAssetUnavailable = errors.New("asset unavailable")
	// ErrInvalidGeometry 表示网格参数非法，在写出任何字节之前返回。
	ErrInvalidGeometry = errors.New("invalid geometry")
	// ErrSinkFailure 表示输出流写入失败，渲染被终止。
	ErrSinkFailure = errors.New("document sink failure")
	// ErrUnknownKind 表示不支持的文档类型。
	ErrUnknownKind = errors.New("unknown document kind")
)

// ErrorKind classifies render failures for callers that map them onto transport codes.
type ErrorKind string

const (
	KindAssetUnavailable ErrorKind = "asset_unavailable"
	KindInvalidGeometry  ErrorKind = "invalid_geometry"
	KindInvalidInput     ErrorKind = "invalid_input"
	KindSinkFailure      ErrorKind = "sink_failure"
	KindCanceled         ErrorKind = "canceled"
	KindInternal         ErrorKind = "internal"
)

// KindFromError 把错误归类到 ErrorKind。
func KindFromError(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidGeometry):
		return KindInvalidGeometry
	case errors.Is(err, ErrUnknownKind):
		return KindInvalidInput
	case errors.Is(err, ErrSinkFailure):
		return KindSinkFailure
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.Is(err, ErrAssetUnavailable):
		return KindAssetUnavailable
	default:
		return KindInternal
	}
}

// AssetError 记录某个资源引用的获取失败原因。
type AssetError struct {
	Ref AssetRef
	Err error
}

func (e *AssetError) Error() string {
	return fmt.Sprintf("resolve asset %s: %v", e.Ref, e.Err)
}

func (e *AssetError) Unwrap() []error {
	return []error{ErrAssetUnavailable, e.Err}
}

func assetError(ref AssetRef, err error) error {
	return &AssetError{Ref: ref, Err: err}
}
