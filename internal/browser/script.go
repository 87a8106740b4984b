package browser

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/dop251/goja"
	"github.com/dop251/goja/parser"
	"golang.org/x/net/html"
)

const (
	// defaultScriptBudget bounds one task (a script, a timer callback or a listener).
	defaultScriptBudget = 5 * time.Second

	// minTimerInterval is the clamp browsers apply to repeating timers.
	minTimerInterval = 4 * time.Millisecond
)

var errScriptBudget = errors.New("script exceeded its time budget")

// jsTimer is a pending setTimeout or setInterval callback.
type jsTimer struct {
	id       int64
	seq      int64
	due      time.Time
	interval time.Duration
	repeat   bool
	fn       goja.Callable
	args     []goja.Value
}

// scriptHost runs the classic scripts of a page in a goja VM and owns the
// page's task queue. The VM is not safe for concurrent use; every method must
// be called from the goroutine that drives the page.
type scriptHost struct {
	vm         *goja.Runtime
	page       *url.URL
	doc        *goquery.Document
	origin     time.Time
	budget     time.Duration
	logger     *slog.Logger
	report     func(ErrorEvent)
	readyState string

	timers    map[int64]*jsTimer
	nextTimer int64
	seq       int64

	listeners map[string][]goja.Callable
	elements  map[*html.Node]*goja.Object
}

func newScriptHost(page *url.URL, doc *goquery.Document, origin time.Time, userAgent string, logger *slog.Logger, report func(ErrorEvent)) *scriptHost {
	h := &scriptHost{
		vm:         goja.New(),
		page:       page,
		doc:        doc,
		origin:     origin,
		budget:     defaultScriptBudget,
		logger:     logger,
		report:     report,
		readyState: "loading",
		timers:     make(map[int64]*jsTimer),
		listeners:  make(map[string][]goja.Callable),
		elements:   make(map[*html.Node]*goja.Object),
	}
	h.vm.SetMaxCallStackSize(1024)
	h.installGlobals(userAgent)
	return h
}

func (h *scriptHost) installGlobals(userAgent string) {
	vm := h.vm
	global := vm.GlobalObject()

	for _, name := range []string{"require", "process", "module", "exports"} {
		_ = global.Delete(name)
	}
	_ = global.Set("window", global)
	_ = global.Set("self", global)

	console := vm.NewObject()
	for _, level := range []string{"log", "info", "debug", "warn", "error"} {
		_ = console.Set(level, h.consoleFunc(level))
	}
	_ = global.Set("console", console)

	_ = global.Set("setTimeout", h.setTimer(false))
	_ = global.Set("setInterval", h.setTimer(true))
	_ = global.Set("clearTimeout", h.clearTimer)
	_ = global.Set("clearInterval", h.clearTimer)
	_ = global.Set("queueMicrotask", h.queueMicrotask)
	_ = global.Set("addEventListener", h.addListener("window"))
	_ = global.Set("removeEventListener", func(goja.FunctionCall) goja.Value { return goja.Undefined() })

	perf := vm.NewObject()
	_ = perf.Set("now", func(goja.FunctionCall) goja.Value {
		return vm.ToValue(sinceMillis(h.origin, time.Now()))
	})
	_ = perf.Set("timeOrigin", float64(h.origin.UnixMicro())/1000)
	_ = global.Set("performance", perf)

	location := h.locationObject()
	_ = global.Set("location", location)

	navigator := vm.NewObject()
	_ = navigator.Set("userAgent", userAgent)
	_ = navigator.Set("language", "en-US")
	_ = global.Set("navigator", navigator)

	_ = global.Set("document", h.documentObject(location))
}

func (h *scriptHost) locationObject() *goja.Object {
	loc := h.vm.NewObject()
	_ = loc.Set("href", h.page.String())
	_ = loc.Set("protocol", h.page.Scheme+":")
	_ = loc.Set("host", h.page.Host)
	_ = loc.Set("hostname", h.page.Hostname())
	_ = loc.Set("port", h.page.Port())
	_ = loc.Set("pathname", h.page.EscapedPath())
	search := ""
	if h.page.RawQuery != "" {
		search = "?" + h.page.RawQuery
	}
	_ = loc.Set("search", search)
	_ = loc.Set("hash", "")
	_ = loc.Set("origin", h.page.Scheme+"://"+h.page.Host)
	_ = loc.Set("toString", func(goja.FunctionCall) goja.Value { return h.vm.ToValue(h.page.String()) })
	return loc
}

func (h *scriptHost) documentObject(location *goja.Object) *goja.Object {
	vm := h.vm
	doc := vm.NewObject()
	root := h.doc.Selection

	_ = doc.Set("URL", h.page.String())
	_ = doc.Set("location", location)
	_ = doc.DefineAccessorProperty("title", vm.ToValue(func(goja.FunctionCall) goja.Value {
		return vm.ToValue(strings.TrimSpace(h.doc.Find("title").First().Text()))
	}), nil, goja.FLAG_TRUE, goja.FLAG_TRUE)
	_ = doc.DefineAccessorProperty("readyState", vm.ToValue(func(goja.FunctionCall) goja.Value {
		return vm.ToValue(h.readyState)
	}), nil, goja.FLAG_TRUE, goja.FLAG_TRUE)
	_ = doc.DefineAccessorProperty("body", vm.ToValue(func(goja.FunctionCall) goja.Value {
		return h.first(h.doc.Find("body"))
	}), nil, goja.FLAG_TRUE, goja.FLAG_TRUE)
	_ = doc.DefineAccessorProperty("head", vm.ToValue(func(goja.FunctionCall) goja.Value {
		return h.first(h.doc.Find("head"))
	}), nil, goja.FLAG_TRUE, goja.FLAG_TRUE)
	_ = doc.DefineAccessorProperty("documentElement", vm.ToValue(func(goja.FunctionCall) goja.Value {
		return h.first(h.doc.Find("html"))
	}), nil, goja.FLAG_TRUE, goja.FLAG_TRUE)

	_ = doc.Set("getElementById", func(call goja.FunctionCall) goja.Value {
		id := call.Argument(0).String()
		var found *html.Node
		root.Find("[id]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if attr(s.Get(0), "id") == id {
				found = s.Get(0)
				return false
			}
			return true
		})
		if found == nil {
			return goja.Null()
		}
		return h.element(found)
	})
	_ = doc.Set("getElementsByTagName", func(call goja.FunctionCall) goja.Value {
		return h.list(root.Find(strings.ToLower(call.Argument(0).String())))
	})
	h.installQueries(doc, root)
	_ = doc.Set("addEventListener", h.addListener("document"))
	_ = doc.Set("removeEventListener", func(goja.FunctionCall) goja.Value { return goja.Undefined() })
	return doc
}

// installQueries adds querySelector and querySelectorAll scoped to scope.
func (h *scriptHost) installQueries(obj *goja.Object, scope *goquery.Selection) {
	match := func(call goja.FunctionCall) *goquery.Selection {
		sel, err := cascadia.Compile(call.Argument(0).String())
		if err != nil {
			panic(h.vm.NewTypeError("'%s' is not a valid selector", call.Argument(0).String()))
		}
		return scope.FindMatcher(sel)
	}
	_ = obj.Set("querySelector", func(call goja.FunctionCall) goja.Value {
		return h.first(match(call))
	})
	_ = obj.Set("querySelectorAll", func(call goja.FunctionCall) goja.Value {
		return h.list(match(call))
	})
}

func (h *scriptHost) first(s *goquery.Selection) goja.Value {
	if s.Length() == 0 {
		return goja.Null()
	}
	return h.element(s.Get(0))
}

func (h *scriptHost) list(s *goquery.Selection) goja.Value {
	out := make([]any, 0, s.Length())
	for _, n := range s.Nodes {
		out = append(out, h.element(n))
	}
	return h.vm.NewArray(out...)
}

// element returns the script view of n. The same node always maps to the same object.
func (h *scriptHost) element(n *html.Node) goja.Value {
	if obj, ok := h.elements[n]; ok {
		return obj
	}
	vm := h.vm
	obj := vm.NewObject()
	h.elements[n] = obj

	_ = obj.Set("tagName", strings.ToUpper(n.Data))
	_ = obj.Set("nodeName", strings.ToUpper(n.Data))
	_ = obj.DefineAccessorProperty("id", vm.ToValue(func(goja.FunctionCall) goja.Value {
		return vm.ToValue(attr(n, "id"))
	}), nil, goja.FLAG_TRUE, goja.FLAG_TRUE)
	_ = obj.DefineAccessorProperty("className", vm.ToValue(func(goja.FunctionCall) goja.Value {
		return vm.ToValue(attr(n, "class"))
	}), nil, goja.FLAG_TRUE, goja.FLAG_TRUE)
	_ = obj.DefineAccessorProperty("textContent", vm.ToValue(func(goja.FunctionCall) goja.Value {
		return vm.ToValue(goquery.NewDocumentFromNode(n).Text())
	}), nil, goja.FLAG_TRUE, goja.FLAG_TRUE)
	_ = obj.Set("getAttribute", func(call goja.FunctionCall) goja.Value {
		v, ok := attrValue(n, call.Argument(0).String())
		if !ok {
			return goja.Null()
		}
		return vm.ToValue(v)
	})
	_ = obj.Set("hasAttribute", func(call goja.FunctionCall) goja.Value {
		_, ok := attrValue(n, call.Argument(0).String())
		return vm.ToValue(ok)
	})
	_ = obj.Set("setAttribute", func(call goja.FunctionCall) goja.Value {
		setAttr(n, strings.ToLower(call.Argument(0).String()), call.Argument(1).String())
		return goja.Undefined()
	})
	_ = obj.Set("removeAttribute", func(call goja.FunctionCall) goja.Value {
		removeAttr(n, call.Argument(0).String())
		return goja.Undefined()
	})
	_ = obj.Set("addEventListener", func(goja.FunctionCall) goja.Value { return goja.Undefined() })
	_ = obj.Set("style", vm.NewObject())
	h.installQueries(obj, goquery.NewDocumentFromNode(n).Selection)
	return obj
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	attrs := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Namespace != "" || !strings.EqualFold(a.Key, key) {
			attrs = append(attrs, a)
		}
	}
	n.Attr = attrs
}

func (h *scriptHost) consoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, a := range call.Arguments {
			parts[i] = a.String()
		}
		h.logger.Debug("page console", "level", level, "message", strings.Join(parts, " "), "url", h.page.String())
		return goja.Undefined()
	}
}

func (h *scriptHost) setTimer(repeat bool) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			src := call.Argument(0).String()
			fn = func(goja.Value, ...goja.Value) (goja.Value, error) {
				return h.vm.RunString(src)
			}
		}
		ms := call.Argument(1).ToFloat()
		if math.IsNaN(ms) || ms < 0 {
			ms = 0
		}
		delay := time.Duration(ms * float64(time.Millisecond))
		if repeat && delay < minTimerInterval {
			delay = minTimerInterval
		}
		var args []goja.Value
		if len(call.Arguments) > 2 {
			args = append(args, call.Arguments[2:]...)
		}
		return h.vm.ToValue(h.schedule(fn, args, delay, repeat))
	}
}

func (h *scriptHost) schedule(fn goja.Callable, args []goja.Value, delay time.Duration, repeat bool) int64 {
	h.nextTimer++
	h.seq++
	h.timers[h.nextTimer] = &jsTimer{
		id:       h.nextTimer,
		seq:      h.seq,
		due:      time.Now().Add(delay),
		interval: delay,
		repeat:   repeat,
		fn:       fn,
		args:     args,
	}
	return h.nextTimer
}

func (h *scriptHost) clearTimer(call goja.FunctionCall) goja.Value {
	delete(h.timers, call.Argument(0).ToInteger())
	return goja.Undefined()
}

func (h *scriptHost) queueMicrotask(call goja.FunctionCall) goja.Value {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(h.vm.NewTypeError("queueMicrotask: argument is not a function"))
	}
	h.schedule(fn, nil, 0, false)
	return goja.Undefined()
}

func (h *scriptHost) addListener(target string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(1))
		if ok {
			key := target + ":" + call.Argument(0).String()
			h.listeners[key] = append(h.listeners[key], fn)
		}
		return goja.Undefined()
	}
}

// runScript compiles and runs one classic script. name is the script URL
// used in error locations.
func (h *scriptHost) runScript(name, src string) {
	program, err := parser.ParseFile(nil, name, src, 0, parser.WithDisableSourceMaps)
	if err != nil {
		h.report(syntaxErrorEvent(err, name))
		return
	}
	prog, err := goja.CompileAST(program, false)
	if err != nil {
		h.fail(err, name)
		return
	}
	h.guard(name, func() error {
		_, err := h.vm.RunProgram(prog)
		return err
	})
}

// dispatch fires an event to the listeners of target, then to the matching
// on<event> property of the global object for window events.
func (h *scriptHost) dispatch(target, event string) {
	ev := h.vm.NewObject()
	_ = ev.Set("type", event)

	for _, fn := range h.listeners[target+":"+event] {
		h.guard(h.page.String(), func() error {
			_, err := fn(goja.Undefined(), ev)
			return err
		})
	}
	if target != "window" {
		return
	}
	if fn, ok := goja.AssertFunction(h.vm.GlobalObject().Get("on" + event)); ok {
		h.guard(h.page.String(), func() error {
			_, err := fn(goja.Undefined(), ev)
			return err
		})
	}
}

// runTasks runs due timers until deadline or ctx is done. Timers that are
// due at the same time fire in the order they were scheduled.
func (h *scriptHost) runTasks(ctx context.Context, deadline time.Time) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		next := h.nextDue()
		now := time.Now()
		if next != nil && !next.due.After(now) {
			h.fire(next, now)
			continue
		}
		if !now.Before(deadline) {
			return nil
		}

		wait := deadline.Sub(now)
		if next != nil && next.due.Sub(now) < wait {
			wait = next.due.Sub(now)
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (h *scriptHost) nextDue() *jsTimer {
	if len(h.timers) == 0 {
		return nil
	}
	pending := make([]*jsTimer, 0, len(h.timers))
	for _, t := range h.timers {
		pending = append(pending, t)
	}
	sort.Slice(pending, func(i, j int) bool {
		if !pending[i].due.Equal(pending[j].due) {
			return pending[i].due.Before(pending[j].due)
		}
		return pending[i].seq < pending[j].seq
	})
	return pending[0]
}

func (h *scriptHost) fire(t *jsTimer, now time.Time) {
	if t.repeat {
		h.seq++
		t.seq = h.seq
		t.due = now.Add(t.interval)
	} else {
		delete(h.timers, t.id)
	}
	h.guard(h.page.String(), func() error {
		_, err := t.fn(goja.Undefined(), t.args...)
		return err
	})
}

// pendingTimers returns the number of scheduled timers.
func (h *scriptHost) pendingTimers() int {
	return len(h.timers)
}

// guard runs one task under the time budget and turns an uncaught exception
// into an ErrorEvent.
func (h *scriptHost) guard(source string, run func() error) {
	stop := time.AfterFunc(h.budget, func() {
		h.vm.Interrupt(errScriptBudget)
	})
	err := run()
	stop.Stop()
	h.vm.ClearInterrupt()

	if err != nil {
		h.fail(err, source)
	}
}

func (h *scriptHost) fail(err error, source string) {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		h.logger.Warn("script interrupted", "url", source, "error", interrupted.Error())
		return
	}
	h.report(exceptionEvent(err, source))
}

// exceptionEvent describes an uncaught error the way a browser error event does.
func exceptionEvent(err error, source string) ErrorEvent {
	ev := ErrorEvent{Filename: source, Time: time.Now()}

	var exc *goja.Exception
	if !errors.As(err, &exc) {
		ev.Message = "Uncaught " + err.Error()
		return ev
	}

	ev.Message = "Uncaught " + describeValue(exc.Value())
	if frames := exc.Stack(); len(frames) > 0 {
		pos := frames[0].Position()
		if pos.Filename != "" {
			ev.Filename = pos.Filename
		}
		ev.Line = pos.Line
		ev.Column = pos.Column
	}
	if obj, ok := exc.Value().(*goja.Object); ok {
		if stack := obj.Get("stack"); stack != nil && !goja.IsUndefined(stack) && !goja.IsNull(stack) {
			ev.Stack = stack.String()
		}
	}
	return ev
}

// syntaxErrorEvent describes a script that failed to parse.
func syntaxErrorEvent(err error, source string) ErrorEvent {
	ev := ErrorEvent{Filename: source, Message: "Uncaught SyntaxError: " + err.Error(), Time: time.Now()}
	var list parser.ErrorList
	if errors.As(err, &list) && len(list) > 0 {
		ev.Message = "Uncaught SyntaxError: " + list[0].Message
		ev.Line = list[0].Position.Line
		ev.Column = list[0].Position.Column
	}
	return ev
}

func describeValue(v goja.Value) string {
	if v == nil {
		return "undefined"
	}
	return v.String()
}
