package storage

import (
	"fmt"
	"path"
	"strings"
	"unicode/utf8"
)

const maxObjectKeyLength = 200

var imageExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".webp"}

// SchoolPrefix 返回学校（租户）对象的 key 前缀。
func SchoolPrefix(schoolID uint) string {
	return fmt.Sprintf("schools/%d/", schoolID)
}

// PhotoKey 返回学生照片的对象 key。
func PhotoKey(schoolID uint, fileName string) string {
	return SchoolPrefix(schoolID) + "photos/" + path.Base(fileName)
}

// BackgroundKey 返回卡片背景图的对象 key。
func BackgroundKey(schoolID uint, fileName string) string {
	return SchoolPrefix(schoolID) + "backgrounds/" + path.Base(fileName)
}

// ValidObjectKey 校验 key 属于该租户前缀，且是受支持的图片类型。
func ValidObjectKey(prefix, key string) bool {
	if key == "" || !utf8.ValidString(key) {
		return false
	}
	if !strings.HasPrefix(key, prefix) {
		return false
	}
	if strings.Contains(key, "..") || strings.Contains(key, "\\") || strings.Contains(key, "//") {
		return false
	}
	if len(key) > maxObjectKeyLength {
		return false
	}
	lower := strings.ToLower(strings.TrimSpace(key))
	for _, ext := range imageExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
