// Package browser loads pages and exposes the introspection surface the
// audit reads: the DOM, the navigation and resource timeline, computed
// display and visibility, the JavaScript heap and uncaught runtime errors.
//
// # Engines
//
// Two engines implement Engine:
//
//   - StaticEngine fetches the document and its sub-resources with a
//     transport.Client, applies author stylesheets with douceur and cascadia
//     and runs classic scripts in a goja VM. It records no paint entries and
//     has no heap probe.
//   - ChromeEngine drives headless Chrome with chromedp and reads the same
//     surface from the browser's own Performance API.
//
// Both engines dispatch DOMContentLoaded and load before Open returns. Errors
// raised before OnError is called are not replayed; a page keeps running
// timers only while Idle is in progress.
//
// # Usage
//
//	engine := browser.NewStaticEngine(transport.NewDirectClient(timeout))
//	page, err := engine.Open(ctx, target)
//	if err != nil {
//		return err
//	}
//	defer page.Close()
package browser
