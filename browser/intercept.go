package browser

import (
	"net/http"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/shelfwatch/shelfwatch/fetch"
)

// resourceTypeNames maps config strings to Rod protocol resource types.
var resourceTypeNames = map[string]proto.NetworkResourceType{
	"Image":      proto.NetworkResourceTypeImage,
	"Stylesheet": proto.NetworkResourceTypeStylesheet,
	"Font":       proto.NetworkResourceTypeFont,
	"Media":      proto.NetworkResourceTypeMedia,
	"Script":     proto.NetworkResourceTypeScript,
}

// maxCapturedBody caps how much of one intercepted response body is kept.
const maxCapturedBody = 256 * 1024

// networkLog collects intercepted responses. Hijack handlers run on Rod's
// event goroutines, so appends are mutex-guarded.
type networkLog struct {
	mu      sync.Mutex
	entries []fetch.NetworkEntry
}

func (l *networkLog) add(e fetch.NetworkEntry) {
	l.mu.Lock()
	l.entries = append(l.entries, e)
	l.mu.Unlock()
}

func (l *networkLog) snapshot() []fetch.NetworkEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]fetch.NetworkEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// mountRouter installs a request interceptor on the page. Blocked resource
// types are failed with BlockedByClient; when capture is enabled, every
// remaining response is recorded into the returned log (bodies kept for
// textual content types only).
//
// Returns nil router when there is nothing to block and nothing to capture.
// Must be mounted before navigation, otherwise in-flight requests escape it.
func mountRouter(page *rod.Page, blockedTypes []string, capture bool) (*rod.HijackRouter, *networkLog) {
	blocked := make(map[proto.NetworkResourceType]struct{}, len(blockedTypes))
	for _, name := range blockedTypes {
		if rt, ok := resourceTypeNames[name]; ok {
			blocked[rt] = struct{}{}
		}
	}
	if len(blocked) == 0 && !capture {
		return nil, nil
	}

	log := &networkLog{}
	router := page.HijackRequests()

	// Pattern "*" + empty resourceType = intercept every request, then
	// decide per-request.
	_ = router.Add("*", "", func(ctx *rod.Hijack) {
		if _, shouldBlock := blocked[ctx.Request.Type()]; shouldBlock {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}

		if !capture {
			ctx.ContinueRequest(&proto.FetchContinueRequest{})
			return
		}

		// Capture means Rod performs the request itself so the response
		// passes through us before reaching the page.
		if err := ctx.LoadResponse(http.DefaultClient, true); err != nil {
			ctx.Response.Fail(proto.NetworkErrorReasonFailed)
			return
		}

		entry := fetch.NetworkEntry{
			URL:        ctx.Request.URL().String(),
			StatusCode: ctx.Response.Payload().ResponseCode,
			Headers:    fetch.FlattenHeaders(ctx.Response.Headers()),
		}
		if fetch.TextualContentType(ctx.Response.Headers().Get("Content-Type")) {
			body := ctx.Response.Body()
			if len(body) > maxCapturedBody {
				body = body[:maxCapturedBody]
			}
			entry.Body = body
		}
		log.add(entry)
	})

	// router.Run() blocks until router.Stop().
	go router.Run()

	return router, log
}
