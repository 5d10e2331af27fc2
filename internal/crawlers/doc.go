// Package crawlers 提供单站点爬取所需的页面级组件
//
// # 概述
//
// crawlers包负责"一个页面"范围内的所有工作: URL规范化、前沿队列、
// 页面抓取(静态Colly或动态go-rod)以及正文与链接抽取。
// 页面之间的调度由core包的爬取主循环完成。
//
// # 核心组件
//
// ## Canonicalizer
//
// 将同一页面的不同写法映射为同一个字符串, 结果幂等。
// 查询串总是去掉; 片段只在客户端路由("#/page")或哈希路由页面上保留。
//
//	canonical, err := Canonicalize("../guide.html?x=1", "https://example.com/docs/a/")
//	// canonical == "https://example.com/docs/guide.html"
//
// ## Frontier
//
// FIFO待处理队列加URL状态表。每个规范化URL至多入队一次,
// 只有位于站点作用域(规范化后的种子URL)内的链接才会入队。
//
//	frontier := NewFrontier(FrontierOptions{StrictScope: true})
//	scope, err := frontier.Seed("https://example.com/")
//	for item, ok := frontier.Next(); ok; item, ok = frontier.Next() {
//	    // 抓取 item.URL ...
//	    frontier.Offer(page.OutboundURLs, item.URL, item.Depth+1)
//	    frontier.MarkVisited(item.URL)
//	}
//
// ## Fetcher
//
// StaticFetcher 基于Colly发送单个HTTP请求, 支持brotli/deflate解压。
// DynamicFetcher 基于go-rod在单个标签页中渲染页面, 返回渲染后的DOM。
// 两者都以ctx的截止时间作为单页超时, 非2xx状态返回*FetchError。
//
//	fetcher, err := NewFetcher(config, headerManager)
//	if err != nil { /* ErrTransportInit, 致命 */ }
//	defer fetcher.Close()
//
// ## Extract
//
// 基于goquery抽取标题、正文和外链。外链在移除导航区域之前收集并经过规范化,
// 只含片段或查询串的链接相对页面自身解析。
// 正文提取前移除脚本、图片、按钮以及nav/menu/aside/header区域。
// 正文为空时返回ErrNoContent, 此时页面中的外链仍然可用。
//
// ## SampleResources
//
// 通过gopsutil采样系统内存与CPU, 用于诊断快照。
package crawlers
