package index

import (
	"context"
	"errors"
	"fmt"

	"github.com/RecoveryAshes/sitecrawl/internal/models"
	"golang.org/x/sync/errgroup"
)

// ErrIndexWrite 文档写入失败
// 爬取流程只记录该错误, 不会因此中断
var ErrIndexWrite = errors.New("索引写入失败")

// Sink 接收待索引文档
type Sink interface {
	IndexDocument(ctx context.Context, doc *models.IndexDocument) error
}

// MultiSink 将同一文档并行写入多个Sink
// 任一Sink失败时返回第一个错误, 其余Sink照常写入
type MultiSink []Sink

// IndexDocument 实现Sink接口
func (m MultiSink) IndexDocument(ctx context.Context, doc *models.IndexDocument) error {
	var g errgroup.Group
	for _, sink := range m {
		sink := sink
		g.Go(func() error {
			return sink.IndexDocument(ctx, doc)
		})
	}

	err := g.Wait()
	if err != nil && !errors.Is(err, ErrIndexWrite) {
		return fmt.Errorf("%w: %v", ErrIndexWrite, err)
	}
	return err
}
