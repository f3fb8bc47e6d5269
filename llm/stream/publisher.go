package stream

import "context"

// Publisher 接收增量文本。Start 在首个非空文本到达时恰好调用一次，
// 之后每次追加都以截至当前的完整文本调用 Update。
type Publisher interface {
	Start(ctx context.Context) error
	Update(ctx context.Context, content string) error
}

type discard struct{}

func (discard) Start(context.Context) error          { return nil }
func (discard) Update(context.Context, string) error { return nil }

// Discard 丢弃所有发布的文本。
var Discard Publisher = discard{}
