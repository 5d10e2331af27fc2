package utils

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"

	"github.com/RecoveryAshes/sitecrawl/internal/models"
)

// MaxHeaderValueLength HTTP头部值最大长度 (8KB)
const MaxHeaderValueLength = 8192

var (
	headerNamePattern  = regexp.MustCompile(`^[A-Za-z0-9-]+$`)
	headerValuePattern = regexp.MustCompile(`^[\x20-\x7E\t]*$`)

	// 由HTTP客户端或浏览器管理的头部
	managedHeaders = map[string]bool{
		"host":              true,
		"content-length":    true,
		"transfer-encoding": true,
		"connection":        true,
	}

	// 头部名称中出现这些片段时, 日志里只输出脱敏值
	secretFragments = []string{"authorization", "cookie", "token", "key", "secret", "password", "credential"}
)

// CheckHeader 校验单个头部, 不合法时返回*models.ValidationError
func CheckHeader(name, value string) error {
	switch {
	case name == "":
		return &models.ValidationError{Field: "name", Reason: "头部名称不能为空"}
	case managedHeaders[strings.ToLower(name)]:
		return &models.ValidationError{
			Field:      "name",
			HeaderName: name,
			Reason:     "此头部由HTTP客户端自动管理,不允许自定义",
			Suggestion: fmt.Sprintf("移除 '%s' 头部配置", name),
		}
	case !headerNamePattern.MatchString(name):
		return &models.ValidationError{
			Field:      "name",
			HeaderName: name,
			Reason:     "头部名称包含非法字符 (仅允许字母、数字和连字符)",
			Suggestion: "使用如 'User-Agent', 'X-Custom-Header' 的名称",
		}
	case len(value) > MaxHeaderValueLength:
		return &models.ValidationError{
			Field:      "value",
			HeaderName: name,
			Reason:     fmt.Sprintf("头部值过长: %d 字节 (最大 %d)", len(value), MaxHeaderValueLength),
		}
	case !headerValuePattern.MatchString(value):
		return &models.ValidationError{
			Field:      "value",
			HeaderName: name,
			Reason:     "头部值包含非法字符 (仅允许可打印ASCII字符)",
			Suggestion: "移除控制字符和非ASCII字符",
		}
	}
	return nil
}

// CheckHeaders 校验整组头部, 返回所有错误的合并
func CheckHeaders(headers http.Header) error {
	var errs []error
	for _, name := range sortedNames(headers) {
		for _, value := range headers[name] {
			if err := CheckHeader(name, value); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// IsSecretHeader 判断头部是否携带凭据
func IsSecretHeader(name string) bool {
	lower := strings.ToLower(name)
	for _, frag := range secretFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}

// MaskHeaderValue 脱敏单个头部值
func MaskHeaderValue(name, value string) string {
	if !IsSecretHeader(name) {
		return value
	}
	if scheme, _, ok := strings.Cut(value, " "); ok && (scheme == "Bearer" || scheme == "Basic") {
		return scheme + " ***"
	}
	if len(value) > 8 {
		return value[:4] + "***" + value[len(value)-4:]
	}
	return "***"
}

// RedactHeaders 返回按名称排序、已脱敏的头部描述, 用于日志输出
func RedactHeaders(headers http.Header) string {
	parts := make([]string, 0, len(headers))
	for _, name := range sortedNames(headers) {
		if len(headers[name]) == 0 {
			continue
		}
		parts = append(parts, name+": "+MaskHeaderValue(name, headers[name][0]))
	}
	return strings.Join(parts, ", ")
}

func sortedNames(headers http.Header) []string {
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
