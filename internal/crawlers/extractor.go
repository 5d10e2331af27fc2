package crawlers

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/sitecrawl/internal/models"
	"golang.org/x/net/html"
)

// ExcludeFromSearchAttr 带有此属性的链接不参与抓取
const ExcludeFromSearchAttr = "data-search-exclude"

var (
	// nonContentSelectors 提取正文前移除的子树
	nonContentSelectors = []string{
		"script", "style", "noscript", "template",
		"svg", "img", "picture", "button",
		"nav", "menu", "aside", "header",
	}

	// binaryExtensions 不会被加入队列的二进制资源扩展名
	binaryExtensions = map[string]bool{
		".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true,
		".svg": true, ".ico": true, ".bmp": true, ".tif": true, ".tiff": true,
		".pdf": true, ".zip": true, ".gz": true, ".tar": true, ".7z": true,
		".mp3": true, ".mp4": true, ".webm": true, ".woff": true, ".woff2": true,
		".ttf": true, ".eot": true,
	}

	// documentExtensions 文本文档扩展名, 解析相对链接时先去掉此类文件名
	documentExtensions = map[string]bool{
		".html": true, ".htm": true, ".xhtml": true, ".shtml": true,
		".php": true, ".asp": true, ".aspx": true, ".jsp": true,
		".md": true, ".txt": true,
	}

	// notFoundPlaceholders 哈希路由站点渲染的"页面不存在"占位文本
	notFoundPlaceholders = []string{
		"404 - not found",
		"404 not found",
		"page not found",
	}

	horizontalSpace = regexp.MustCompile(`[^\S\n]+`)
	lineBreaks      = regexp.MustCompile(`\s*\n\s*`)
)

// Extract 解析页面HTML, 返回标题、正文和规范化后的外链
// canon为nil时使用默认规范化器
// 正文为空或为哈希路由的404占位时, 返回页面与ErrNoContent, 调用方仍可使用其中的外链
func Extract(rawHTML, pageURL string, canon *Canonicalizer) (*models.ParsedPage, error) {
	base, err := linkBase(pageURL)
	if err != nil {
		return nil, err
	}
	self, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedURL, pageURL)
	}
	if canon == nil {
		canon = defaultCanonicalizer
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("解析HTML失败 [%s]: %w", pageURL, err)
	}

	// 链接需在移除导航区域之前提取
	links := extractLinks(doc, self, base, canon)
	title := strings.TrimSpace(doc.Find("title").First().Text())

	doc.Find(strings.Join(nonContentSelectors, ", ")).Remove()

	var sb strings.Builder
	for _, n := range doc.Find("body").Nodes {
		collectText(n, &sb)
	}
	content := normalizeText(sb.String())

	page := &models.ParsedPage{
		URL:          pageURL,
		Title:        title,
		Content:      content,
		OutboundURLs: links,
		CrawledAt:    time.Now().UTC(),
	}

	if content == "" || isNotFoundPlaceholder(pageURL, content) {
		return page, ErrNoContent
	}
	return page, nil
}

// extractLinks 按首次出现顺序收集规范化并去重后的链接
func extractLinks(doc *goquery.Document, self, base *url.URL, canon *Canonicalizer) []string {
	origin := self.String()
	seen := make(map[string]bool)
	links := make([]string, 0)

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if _, excluded := s.Attr(ExcludeFromSearchAttr); excluded {
			return
		}
		href, _ := s.Attr("href")
		link, ok := resolveHref(self, base, strings.TrimSpace(href))
		if !ok {
			return
		}
		canonical, err := canon.Canonicalize(link, origin)
		if err != nil || seen[canonical] {
			return
		}
		seen[canonical] = true
		links = append(links, canonical)
	})

	return links
}

// resolveHref 将href转换为绝对地址
// 只含片段或查询串的href相对页面自身解析, 其余相对目录基准解析
func resolveHref(self, base *url.URL, href string) (string, bool) {
	if href == "" || href == "#" || strings.Contains(href, "##") {
		return "", false
	}

	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}

	var link string
	switch {
	case isHTTPScheme(ref.Scheme):
		link = href
	case ref.Scheme != "":
		// mailto:, javascript:, tel: 等
		return "", false
	case ref.Host == "" && ref.Path == "" && ref.Opaque == "":
		link = self.ResolveReference(ref).String()
	default:
		link = base.ResolveReference(ref).String()
	}

	if hasBinaryExtension(link) {
		return "", false
	}
	return link, true
}

// linkBase 计算解析相对链接的基准地址
// 末段为文档文件名时去掉文件名, 否则把末段当作目录
func linkBase(pageURL string) (*url.URL, error) {
	u, err := url.Parse(pageURL)
	if err != nil || !isHTTPScheme(u.Scheme) || u.Host == "" {
		return nil, fmt.Errorf("%w: %s", ErrMalformedURL, pageURL)
	}

	b := *u
	b.RawQuery = ""
	b.Fragment = ""
	b.RawFragment = ""
	b.RawPath = ""

	dir, file := path.Split(b.Path)
	switch {
	case file == "":
	case documentExtensions[strings.ToLower(path.Ext(file))]:
		b.Path = dir
	default:
		b.Path += "/"
	}
	if b.Path == "" {
		b.Path = "/"
	}
	return &b, nil
}

func hasBinaryExtension(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return binaryExtensions[strings.ToLower(path.Ext(u.Path))]
}

// collectText 深度优先收集文本节点, 节点之间以空格分隔
func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
		sb.WriteByte(' ')
		return
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		collectText(child, sb)
	}
}

// normalizeText 折叠空白和空行
func normalizeText(s string) string {
	s = horizontalSpace.ReplaceAllString(s, " ")
	s = lineBreaks.ReplaceAllString(s, "\n")
	return strings.TrimSpace(s)
}

func isNotFoundPlaceholder(pageURL, content string) bool {
	u, err := url.Parse(pageURL)
	if err != nil || !isVirtualRoute(u.Fragment) {
		return false
	}
	for _, p := range notFoundPlaceholders {
		if strings.EqualFold(content, p) {
			return true
		}
	}
	return false
}
