package render

import (
	"net/url"
	"strings"
)

// AssetSource 区分资源来源。
type AssetSource int

const (
	SourceRemote AssetSource = iota + 1
	SourceStored
)

// AssetRef 是 Remote(url) 或 Stored(key) 二选一的资源引用。
type AssetRef struct {
	Source   AssetSource
	Location string
}

// Remote references an image fetched over HTTP; relative URLs are resolved against the base origin.
func Remote(rawURL string) AssetRef {
	return AssetRef{Source: SourceRemote, Location: rawURL}
}

// Stored references an object in the blob store.
func Stored(key string) AssetRef {
	return AssetRef{Source: SourceStored, Location: key}
}

func (r AssetRef) String() string {
	switch r.Source {
	case SourceRemote:
		return "remote:" + r.Location
	case SourceStored:
		return "stored:" + r.Location
	default:
		return "unknown:" + r.Location
	}
}

// ParseAssetRef 解析数据库中保存的资源字符串。
// "stored:"/"blob:" 前缀为对象存储；带 scheme 或以 "/" 开头为远程地址；其余按对象 key 处理。
func ParseAssetRef(raw string) (AssetRef, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return AssetRef{}, false
	}
	for _, prefix := range []string{"stored:", "blob:"} {
		if strings.HasPrefix(raw, prefix) {
			key := strings.TrimSpace(strings.TrimPrefix(raw, prefix))
			if key == "" {
				return AssetRef{}, false
			}
			return Stored(key), true
		}
	}
	if strings.HasPrefix(raw, "/") {
		return Remote(raw), true
	}
	if u, err := url.Parse(raw); err == nil && u.Scheme != "" && u.Host != "" {
		return Remote(raw), true
	}
	return Stored(raw), true
}
