package render

import (
	"fmt"
	"strings"
	"time"
)

// Kind 标识文档类型。
type Kind string

const (
	KindIDCard      Kind = "id-card"
	KindAdmitCard   Kind = "admit-card"
	KindResultSheet Kind = "result-sheet"
)

// ContentType is the MIME type of every document the engine produces.
const ContentType = "application/pdf"

// Kinds lists the supported document kinds.
func Kinds() []Kind {
	return []Kind{KindIDCard, KindAdmitCard, KindResultSheet}
}

// ParseKind 接受 "id-card"、"id_card"、"id-cards" 等写法。
func ParseKind(raw string) (Kind, bool) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.ReplaceAll(normalized, "_", "-")
	normalized = strings.TrimSuffix(normalized, "s")
	switch Kind(normalized) {
	case KindIDCard, KindAdmitCard, KindResultSheet:
		return Kind(normalized), true
	}
	return "", false
}

// Filename 返回形如 id-card-20240102-150405.pdf 的下载文件名。
func Filename(kind Kind, now time.Time) string {
	return fmt.Sprintf("%s-%s.pdf", kind, now.Format("20060102-150405"))
}
