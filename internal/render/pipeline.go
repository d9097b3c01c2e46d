package render

import (
	"context"
	"image"

	"golang.org/x/sync/errgroup"
)

// preparedEntity 是取数阶段的产出：已解码的图片与缺失记录。
type preparedEntity struct {
	background image.Image
	photo      image.Image
	code       image.Image
	missing    []missingAsset
	failed     error
}

type missingAsset struct {
	role string
	ref  AssetRef
	err  error
}

type prepareFunc func(ctx context.Context, index int) preparedEntity

// prefetcher 按输入顺序交付 preparedEntity。
type prefetcher interface {
	next(ctx context.Context, index int) (preparedEntity, error)
	stop()
}

func newPrefetcher(ctx context.Context, n, workers, window int, prepare prepareFunc) prefetcher {
	if window <= 0 || n == 0 {
		return sequentialFetcher{prepare: prepare}
	}
	return startWindowFetcher(ctx, n, workers, window, prepare)
}

// sequentialFetcher 在绘制阶段内联取数，实体 N+1 在 N 绘制完之后才开始解析。
type sequentialFetcher struct {
	prepare prepareFunc
}

func (f sequentialFetcher) next(ctx context.Context, index int) (preparedEntity, error) {
	if err := ctx.Err(); err != nil {
		return preparedEntity{}, err
	}
	return f.prepare(ctx, index), nil
}

func (sequentialFetcher) stop() {}

// windowFetcher 用有限的 worker 提前解析最多 window 个实体，
// 结果写入按下标分配的槽位，绘制阶段按顺序读取。
type windowFetcher struct {
	slots  []chan preparedEntity
	tokens chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

func startWindowFetcher(parent context.Context, n, workers, window int, prepare prepareFunc) *windowFetcher {
	if workers < 1 {
		workers = 1
	}
	if window < workers {
		window = workers
	}
	ctx, cancel := context.WithCancel(parent)
	f := &windowFetcher{
		slots:  make([]chan preparedEntity, n),
		tokens: make(chan struct{}, window),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	for i := range f.slots {
		f.slots[i] = make(chan preparedEntity, 1)
	}

	go func() {
		defer close(f.done)
		var g errgroup.Group
		g.SetLimit(workers)
		for i := 0; i < n; i++ {
			select {
			case f.tokens <- struct{}{}:
			case <-ctx.Done():
				_ = g.Wait()
				return
			}
			// 取消后不再启动新的解析
			if ctx.Err() != nil {
				<-f.tokens
				break
			}
			index := i
			g.Go(func() error {
				f.slots[index] <- prepare(ctx, index)
				return nil
			})
		}
		_ = g.Wait()
	}()
	return f
}

func (f *windowFetcher) next(ctx context.Context, index int) (preparedEntity, error) {
	select {
	case item := <-f.slots[index]:
		<-f.tokens
		return item, nil
	case <-ctx.Done():
		return preparedEntity{}, ctx.Err()
	}
}

// stop 取消未开始的解析并等待进行中的 worker 退出。
func (f *windowFetcher) stop() {
	f.cancel()
	<-f.done
}
