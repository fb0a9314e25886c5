package browser

import (
	"context"
	"fmt"
	"time"

	"log/slog"

	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/shelfwatch/shelfwatch/fetch"
)

// AuthRequest describes a login-then-fetch sequence. The session cookies
// set during login live in the shared browser, so the target fetch sees
// the authenticated session.
type AuthRequest struct {
	LoginURL string
	Username string
	Password string

	// CSS selectors for the login form.
	UsernameSelector string
	PasswordSelector string

	// SubmitSelector is optional; when empty the form is submitted by
	// pressing Enter in the password field.
	SubmitSelector string

	// Page is the fetch performed after login succeeds.
	Page PageRequest
}

// FetchAuthenticated logs in through the given form and then fetches the
// target page with the resulting session.
func (e *Engine) FetchAuthenticated(ctx context.Context, req *AuthRequest) (*PageResult, error) {
	if req.LoginURL == "" || req.UsernameSelector == "" || req.PasswordSelector == "" {
		return nil, fetch.NewBrowser("login requires a URL and username/password selectors", nil)
	}
	if err := e.login(ctx, req); err != nil {
		return nil, err
	}
	return e.FetchPage(ctx, &req.Page)
}

func (e *Engine) login(ctx context.Context, req *AuthRequest) error {
	timeout := req.Page.Timeout
	if timeout <= 0 {
		timeout = e.cfg.NavigationTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	page, release, err := e.acquirePage(ctx)
	if err != nil {
		return err
	}
	defer release()

	if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
		slog.Warn("stealth injection failed on login page", "error", evalErr)
	}

	p := page.Context(ctx)

	if navErr := p.Navigate(req.LoginURL); navErr != nil {
		return categorize(navErr, "navigation to login page failed")
	}
	if loadErr := p.WaitLoad(); loadErr != nil {
		return categorize(loadErr, "login page did not load")
	}

	userEl, err := p.Element(req.UsernameSelector)
	if err != nil {
		return fetch.NewBrowser(fmt.Sprintf("username field %q not found", req.UsernameSelector), err)
	}
	if err := userEl.Input(req.Username); err != nil {
		return categorize(err, "failed to fill username")
	}

	passEl, err := p.Element(req.PasswordSelector)
	if err != nil {
		return fetch.NewBrowser(fmt.Sprintf("password field %q not found", req.PasswordSelector), err)
	}
	if err := passEl.Input(req.Password); err != nil {
		return categorize(err, "failed to fill password")
	}

	if req.SubmitSelector != "" {
		submitEl, err := p.Element(req.SubmitSelector)
		if err != nil {
			return fetch.NewBrowser(fmt.Sprintf("submit button %q not found", req.SubmitSelector), err)
		}
		if err := submitEl.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return categorize(err, "failed to click submit")
		}
	} else {
		if err := passEl.Type(input.Enter); err != nil {
			return categorize(err, "failed to submit login form")
		}
	}

	// Let the post-login navigation and session cookies land.
	if err := p.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		slog.Debug("post-login DOM did not stabilize", "error", err)
	}
	sleepCtx(ctx, e.cfg.SettleDelay)
	return nil
}
