package crawlers

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// DefaultHashRouteMarkers 默认的哈希路由路径标记段
var DefaultHashRouteMarkers = []string{"spa"}

// Canonicalizer URL规范化器
// 同一页面的不同写法映射到同一个字符串,结果满足幂等: c(c(x)) == c(x)
type Canonicalizer struct {
	// hashRouteMarkers 路径中出现这些段时,页面被视为哈希路由,保留任意片段
	hashRouteMarkers []string
}

// NewCanonicalizer 创建规范化器, markers为空时使用默认标记
func NewCanonicalizer(markers []string) *Canonicalizer {
	if len(markers) == 0 {
		markers = DefaultHashRouteMarkers
	}
	normalized := make([]string, 0, len(markers))
	for _, m := range markers {
		m = strings.ToLower(strings.Trim(strings.TrimSpace(m), "/"))
		if m != "" {
			normalized = append(normalized, m)
		}
	}
	return &Canonicalizer{hashRouteMarkers: normalized}
}

var defaultCanonicalizer = NewCanonicalizer(nil)

// Canonicalize 使用默认标记规范化URL
func Canonicalize(raw, origin string) (string, error) {
	return defaultCanonicalizer.Canonicalize(raw, origin)
}

// Canonicalize 规范化URL
// 处理顺序:
//  1. 出现两个及以上'#'时从第二个'#'截断,末尾孤立的'#'去掉
//  2. 相对地址基于origin解析(处理 . 和 ..)
//  3. 仅接受http/https
//  4. 去掉默认端口和查询串, 在转义形式上清理路径
//  5. 片段仅在虚拟路由("#/")或哈希路由页面上保留
func (c *Canonicalizer) Canonicalize(raw, origin string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("%w: 空地址", ErrMalformedURL)
	}
	s = truncateFragments(s)

	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrMalformedURL, raw, err)
	}

	if u.Scheme == "" {
		if origin == "" {
			return "", fmt.Errorf("%w: 相对地址缺少来源页面: %s", ErrMalformedURL, raw)
		}
		base, err := url.Parse(origin)
		if err != nil || !isHTTPScheme(base.Scheme) || base.Host == "" {
			return "", fmt.Errorf("%w: 来源页面无效: %s", ErrMalformedURL, origin)
		}
		u = base.ResolveReference(u)
	}

	if !isHTTPScheme(u.Scheme) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedScheme, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: 缺少主机名: %s", ErrMalformedURL, raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if port := u.Port(); (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		u.Host = strings.TrimSuffix(u.Host, ":"+port)
	}
	u.Opaque = ""
	u.RawQuery = ""
	u.ForceQuery = false

	// 在转义形式上清理路径, %2F不会被当作分隔符
	escaped := cleanPath(u.EscapedPath())
	decoded, err := url.PathUnescape(escaped)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrMalformedURL, raw, err)
	}
	u.Path = decoded
	u.RawPath = escaped

	if u.Fragment != "" && !isVirtualRoute(u.Fragment) && !c.isHashRouted(u.Path) {
		u.Fragment = ""
	}
	u.RawFragment = ""

	return u.String(), nil
}

// truncateFragments 截断第二个'#'及之后的内容, 去掉末尾孤立的'#'
func truncateFragments(s string) string {
	first := strings.IndexByte(s, '#')
	if first < 0 {
		return s
	}
	if second := strings.IndexByte(s[first+1:], '#'); second >= 0 {
		s = s[:first+1+second]
	}
	return strings.TrimSuffix(s, "#")
}

// cleanPath 清理 . 和 .. 段以及重复的'/', 保留末尾'/'
func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	cleaned := path.Clean("/" + p)
	if strings.HasSuffix(p, "/") && cleaned != "/" {
		cleaned += "/"
	}
	return cleaned
}

// isVirtualRoute 片段是否为客户端路由("#/page" 或 "#!/page")
func isVirtualRoute(fragment string) bool {
	return strings.HasPrefix(fragment, "/") || strings.HasPrefix(fragment, "!/")
}

// isHashRouted 路径中是否包含哈希路由标记段
func (c *Canonicalizer) isHashRouted(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		seg = strings.ToLower(seg)
		for _, marker := range c.hashRouteMarkers {
			if seg == marker {
				return true
			}
		}
	}
	return false
}

func isHTTPScheme(scheme string) bool {
	s := strings.ToLower(scheme)
	return s == "http" || s == "https"
}
