package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"time"
)

const roleBackground = "background"

// Options 控制引擎的取数并发与缓存策略。
type Options struct {
	// PrefetchWorkers bounds concurrent asset resolutions.
	PrefetchWorkers int
	// PrefetchWindow bounds how many entities may be resolved ahead of drawing.
	// Zero resolves each entity inline, right before it is drawn.
	PrefetchWindow int
	// CacheTemplateAssets resolves the template background once per pass and
	// reuses the outcome, including absence, for every entity.
	CacheTemplateAssets bool
	Observer            Observer
	NewWriter           WriterFactory
}

// Engine 把实体列表与模板渲染为分页文档。Engine 本身无状态，可被多个请求并发使用；
// 每次 Render 拥有独立的 Writer。
type Engine struct {
	resolver AssetResolver
	logger   *slog.Logger
	opts     Options
}

// NewEngine 创建渲染引擎。
func NewEngine(resolver AssetResolver, logger *slog.Logger, opts Options) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.NewWriter == nil {
		opts.NewWriter = newPDFWriter
	}
	if opts.PrefetchWorkers < 1 {
		opts.PrefetchWorkers = 1
	}
	return &Engine{resolver: resolver, logger: logger, opts: opts}
}

// ValidateJob 返回该类文档实际使用的 geometry；非法时返回 ErrInvalidGeometry。
// 调用方可以在写出响应头之前先调用它。
func ValidateJob(job Job) (Geometry, error) {
	program, ok := programs[job.Kind]
	if !ok {
		return Geometry{}, fmt.Errorf("%w: %q", ErrUnknownKind, job.Kind)
	}
	geom := program.geometry(job.Geometry)
	if err := geom.Validate(); err != nil {
		return Geometry{}, err
	}
	return geom, nil
}

// Render 执行一次渲染并把文档流式写入 sink。
// 单个实体或资源的失败只会记录日志；geometry 非法或 sink 写入失败会中止渲染。
func (e *Engine) Render(ctx context.Context, job Job, sink io.Writer) (stats Stats, err error) {
	geom, err := ValidateJob(job)
	if err != nil {
		return stats, err
	}
	if sink == nil {
		return stats, errors.New("render: nil sink")
	}

	stats.Entities = len(job.Entities)
	logger := e.logger.With(
		slog.String("kind", string(job.Kind)),
		slog.Int("entities", len(job.Entities)),
	)
	start := time.Now()
	e.opts.Observer.PassStarted(job.Kind)
	defer func() {
		e.opts.Observer.PassFinished(job.Kind, stats, time.Since(start), err)
	}()

	w := e.opts.NewWriter(sink, geom.PageWidth, geom.PageHeight, job.Meta)
	pass := &renderPass{
		engine:  e,
		job:     job,
		program: programs[job.Kind],
		geom:    geom,
		tpl:     job.Template.Resolve(job.Kind),
		w:       w,
		log:     logger,
		stats:   &stats,
	}

	runErr := pass.run(ctx)
	finishErr := w.Finish()
	stats.Pages = w.Pages()
	if counter, ok := w.(interface{ BytesWritten() int64 }); ok {
		stats.Bytes = counter.BytesWritten()
	}

	if runErr != nil {
		logger.Error("render pass aborted",
			slog.Int("pages", stats.Pages),
			slog.Any("error", runErr),
		)
		return stats, runErr
	}
	if finishErr != nil {
		logger.Error("finish document failed", slog.Any("error", finishErr))
		return stats, fmt.Errorf("%w: %w", ErrSinkFailure, finishErr)
	}

	logger.Info("render pass finished",
		slog.Int("pages", stats.Pages),
		slog.Int("missing_assets", stats.MissingAssets),
		slog.Int("failed_entities", stats.FailedEntities),
		slog.Int64("bytes", stats.Bytes),
		slog.Duration("elapsed", time.Since(start)),
	)
	return stats, nil
}

// renderPass 持有一次渲染的全部可变状态，不与其他渲染共享。
type renderPass struct {
	engine  *Engine
	job     Job
	program kindProgram
	geom    Geometry
	tpl     ResolvedTemplate
	w       Writer
	log     *slog.Logger
	stats   *Stats

	sharedBackground bool
	background       image.Image
}

func (p *renderPass) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts := p.engine.opts
	if opts.CacheTemplateAssets && p.tpl.Background != nil && len(p.job.Entities) > 0 {
		p.sharedBackground = true
		img, err := p.loadImage(ctx, *p.tpl.Background)
		if err != nil {
			p.recordMissing("", missingAsset{role: roleBackground, ref: *p.tpl.Background, err: err})
		}
		p.background = img
	}

	fetcher := newPrefetcher(ctx, len(p.job.Entities), opts.PrefetchWorkers, opts.PrefetchWindow, p.prepare)
	defer fetcher.stop()

	for index, entity := range p.job.Entities {
		if err := ctx.Err(); err != nil {
			return err
		}
		item, err := fetcher.next(ctx, index)
		if err != nil {
			return err
		}
		for _, m := range item.missing {
			p.recordMissing(entity.ID, m)
		}

		if err := p.drawEntity(index, item); err != nil {
			var pe *pageError
			if errors.As(err, &pe) {
				// 停止后续解析，Finish 由 Render 调用
				cancel()
				return fmt.Errorf("%w: %w", ErrSinkFailure, pe.err)
			}
			p.stats.FailedEntities++
			p.log.Warn("entity skipped",
				slog.Int("index", index),
				slog.String("entity_id", entity.ID),
				slog.Any("error", err),
			)
		}
	}
	return nil
}

// prepare 在取数阶段运行，可能与其他实体的 prepare 并发执行。
func (p *renderPass) prepare(ctx context.Context, index int) (item preparedEntity) {
	defer func() {
		if r := recover(); r != nil {
			item = preparedEntity{failed: fmt.Errorf("panic while resolving assets: %v", r)}
		}
	}()

	entity := p.job.Entities[index]
	if p.sharedBackground {
		item.background = p.background
	} else if ref := p.tpl.Background; ref != nil {
		img, err := p.loadImage(ctx, *ref)
		if err != nil {
			item.missing = append(item.missing, missingAsset{role: roleBackground, ref: *ref, err: err})
		}
		item.background = img
	}

	if entity.Photo != nil {
		img, err := p.loadImage(ctx, *entity.Photo)
		if err != nil {
			item.missing = append(item.missing, missingAsset{role: FieldPhoto, ref: *entity.Photo, err: err})
		}
		item.photo = img
	}

	if p.program.usesCode() {
		code, err := qrImage(entity.QRContent())
		if err != nil {
			p.log.Warn("generate qr code failed", slog.String("entity_id", entity.ID), slog.Any("error", err))
		}
		item.code = code
	}
	return item
}

func (p *renderPass) loadImage(ctx context.Context, ref AssetRef) (image.Image, error) {
	if p.engine.resolver == nil {
		return nil, assetError(ref, errors.New("no resolver configured"))
	}
	data, err := p.engine.resolver.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	img, err := decodeImage(data)
	if err != nil {
		return nil, assetError(ref, err)
	}
	return img, nil
}

func (p *renderPass) recordMissing(entityID string, m missingAsset) {
	p.stats.MissingAssets++
	p.engine.opts.Observer.AssetMissing(p.job.Kind, m.role)
	p.log.Warn("asset unavailable",
		slog.String("entity_id", entityID),
		slog.String("role", m.role),
		slog.String("ref", m.ref.String()),
		slog.Any("error", m.err),
	)
}

func (p *renderPass) drawEntity(index int, item preparedEntity) error {
	origin := p.program.origin(index, p.geom)
	if index == 0 || origin.NewPage {
		if err := p.newPage(); err != nil {
			return err
		}
	}
	if item.failed != nil {
		return item.failed
	}
	return p.compose(p.job.Entities[index], origin, item)
}

func (p *renderPass) newPage() error {
	if err := p.w.NewPage(); err != nil {
		return &pageError{err: err}
	}
	return nil
}

// pageError 标记分页失败，这类错误会终止整个渲染。
type pageError struct {
	err error
}

func (e *pageError) Error() string {
	return "start page: " + e.err.Error()
}

func (e *pageError) Unwrap() error {
	return e.err
}
