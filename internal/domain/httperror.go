package domain

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	cloudflareCaptchaSuspension  = 15 * 24 * time.Hour
	cloudflareFirewallSuspension = 24 * time.Hour
	recaptchaSuspension          = 7 * 24 * time.Hour
)

func isCloudflareChallenge(resp *Response) bool {
	text := resp.Text()
	switch resp.StatusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		if strings.Contains(text, "__cf_chl_jschl_tk__=") {
			return true
		}
		return strings.Contains(text, "/cdn-cgi/challenge-platform/") &&
			strings.Contains(text, "orchestrate/jsch/v1") &&
			strings.Contains(text, "window._cf_chl_enter(")
	case http.StatusForbidden:
		return strings.Contains(text, "__cf_chl_captcha_tk__=")
	}
	return false
}

func isCloudflareFirewall(resp *Response) bool {
	return resp.StatusCode == http.StatusForbidden &&
		strings.Contains(resp.Text(), `<span class="cf-error-code">1020</span>`)
}

func raiseForCaptcha(resp *Response) error {
	if strings.HasPrefix(resp.Header.Get("Server"), "cloudflare") {
		if isCloudflareChallenge(resp) {
			return NewCaptchaError("Cloudflare CAPTCHA", resp.StatusCode, cloudflareCaptchaSuspension)
		}
		if isCloudflareFirewall(resp) {
			return NewAccessDeniedError("Cloudflare Firewall", resp.StatusCode, cloudflareFirewallSuspension)
		}
	}
	if resp.StatusCode == http.StatusServiceUnavailable &&
		strings.Contains(resp.Text(), `"https://www.google.com/recaptcha/`) {
		return NewCaptchaError("ReCAPTCHA", resp.StatusCode, recaptchaSuspension)
	}
	return nil
}

// RaiseForHTTPError turns an error status into a classified engine error.
// Responses below 400 yield nil.
func RaiseForHTTPError(resp *Response) error {
	if resp == nil || resp.StatusCode < 400 {
		return nil
	}
	if err := raiseForCaptcha(resp); err != nil {
		return err
	}
	msg := fmt.Sprintf("HTTP error %d", resp.StatusCode)
	switch resp.StatusCode {
	case http.StatusPaymentRequired, http.StatusForbidden:
		return NewAccessDeniedError(msg, resp.StatusCode, 0)
	case http.StatusTooManyRequests:
		return NewTooManyRequestsError("", 0)
	}
	return NewHTTPError(msg, resp.StatusCode, nil)
}
