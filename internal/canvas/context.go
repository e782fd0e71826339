package canvas

import (
	"image"
	"image/color"

	"golang.org/x/text/message"

	"github.com/pspoerri/xcftiles/internal/i18n"
	"github.com/pspoerri/xcftiles/internal/tile"
)

// ColorSource supplies the current foreground and background colors.
type ColorSource interface {
	Foreground() color.NRGBA
	Background() color.NRGBA
}

// StaticColors is a ColorSource with fixed colors.
type StaticColors struct {
	FG, BG color.NRGBA
}

func (c StaticColors) Foreground() color.NRGBA { return c.FG }
func (c StaticColors) Background() color.NRGBA { return c.BG }

// UndoSink receives the storage a drawable had before an operation replaced
// it. rect is in drawable coordinates.
type UndoSink interface {
	PushPriorState(d Drawable, rect image.Rectangle, prior *tile.Manager)
}

// BusyNotifier is told when a long operation starts and ends.
type BusyNotifier interface {
	Busy()
	Idle()
}

type nopBusy struct{}

func (nopBusy) Busy() {}
func (nopBusy) Idle() {}

// Context is the application-level state shared by the images it creates:
// the drawable registry and the collaborators the core calls out to.
type Context struct {
	registry *Registry
	colors   ColorSource
	undo     UndoSink
	busy     BusyNotifier
	printer  *message.Printer
	cache    *tile.Cache
}

// ContextOption configures a Context.
type ContextOption func(*Context)

// WithColors sets the foreground/background color source.
func WithColors(c ColorSource) ContextOption {
	return func(ctx *Context) { ctx.colors = c }
}

// WithUndo sets the sink that receives replaced drawable storage.
func WithUndo(u UndoSink) ContextOption {
	return func(ctx *Context) { ctx.undo = u }
}

// WithBusy sets the busy notifier.
func WithBusy(b BusyNotifier) ContextOption {
	return func(ctx *Context) { ctx.busy = b }
}

// WithPrinter sets the printer used for user-visible strings.
func WithPrinter(p *message.Printer) ContextOption {
	return func(ctx *Context) { ctx.printer = p }
}

// WithCache puts every tile manager created through the context under the
// memory limit of c.
func WithCache(c *tile.Cache) ContextOption {
	return func(ctx *Context) { ctx.cache = c }
}

// NewContext returns a context with black foreground, white background, an
// in-memory undo log and no busy notification, modified by opts.
func NewContext(opts ...ContextOption) *Context {
	ctx := &Context{
		registry: NewRegistry(),
		colors: StaticColors{
			FG: color.NRGBA{A: 255},
			BG: color.NRGBA{R: 255, G: 255, B: 255, A: 255},
		},
		undo:    NewUndoLog(DefaultUndoLimit),
		busy:    nopBusy{},
		printer: i18n.Default(),
	}
	for _, opt := range opts {
		opt(ctx)
	}
	return ctx
}

func (ctx *Context) Registry() *Registry       { return ctx.registry }
func (ctx *Context) Colors() ColorSource       { return ctx.colors }
func (ctx *Context) Undo() UndoSink            { return ctx.undo }
func (ctx *Context) Busy() BusyNotifier        { return ctx.busy }
func (ctx *Context) Printer() *message.Printer { return ctx.printer }
func (ctx *Context) Cache() *tile.Cache        { return ctx.cache }

func (ctx *Context) newManager(width, height, bpp int) *tile.Manager {
	m := tile.NewManager(width, height, bpp)
	if ctx.cache != nil {
		m.SetCache(ctx.cache)
	}
	return m
}

// Registry maps process-lifetime ids to images and drawables.
type Registry struct {
	next  int
	items map[int]any
}

func NewRegistry() *Registry {
	return &Registry{next: 1, items: make(map[int]any)}
}

func (r *Registry) add(v any) int {
	id := r.next
	r.next++
	r.items[id] = v
	return id
}

func (r *Registry) remove(id int) {
	delete(r.items, id)
}

// Drawable returns the drawable registered under id, or nil.
func (r *Registry) Drawable(id int) Drawable {
	d, _ := r.items[id].(Drawable)
	return d
}

// Image returns the image registered under id, or nil.
func (r *Registry) Image(id int) *Image {
	img, _ := r.items[id].(*Image)
	return img
}

// Len returns the number of registered objects.
func (r *Registry) Len() int { return len(r.items) }

// DefaultUndoLimit is the number of entries an UndoLog keeps by default.
const DefaultUndoLimit = 32

// UndoEntry is one recorded prior state.
type UndoEntry struct {
	Drawable Drawable
	Rect     image.Rectangle
	Tiles    *tile.Manager
}

// UndoLog is a bounded in-memory UndoSink. When full, the oldest entry is
// dropped and its storage released.
type UndoLog struct {
	limit   int
	entries []UndoEntry
}

func NewUndoLog(limit int) *UndoLog {
	return &UndoLog{limit: max(1, limit)}
}

func (u *UndoLog) PushPriorState(d Drawable, rect image.Rectangle, prior *tile.Manager) {
	if len(u.entries) == u.limit {
		u.entries[0].Tiles.Release()
		u.entries = u.entries[1:]
	}
	u.entries = append(u.entries, UndoEntry{Drawable: d, Rect: rect, Tiles: prior})
}

// Pop removes and returns the most recent entry.
func (u *UndoLog) Pop() (UndoEntry, bool) {
	if len(u.entries) == 0 {
		return UndoEntry{}, false
	}
	e := u.entries[len(u.entries)-1]
	u.entries = u.entries[:len(u.entries)-1]
	return e, true
}

// Len returns the number of entries.
func (u *UndoLog) Len() int { return len(u.entries) }
