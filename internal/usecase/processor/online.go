package processor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/text/language"

	"metasearch/internal/domain"
)

// Online runs engines that call an upstream over HTTP.
type Online struct {
	base
	fetcher   Fetcher
	userAgent string
}

// NewOnline creates an online processor.
func NewOnline(engine *domain.Engine, deps Deps, fetcher Fetcher, userAgent string) *Online {
	return &Online{base: newBase(engine, deps), fetcher: fetcher, userAgent: userAgent}
}

func (p *Online) Kind() domain.ProcessorKind { return domain.ProcessorOnline }

// GetParams adds the HTTP request defaults to the common parameters.
func (p *Online) GetParams(q domain.SearchQuery, category string) *domain.RequestParams {
	params := p.base.GetParams(q, category)
	if params == nil {
		return nil
	}
	p.httpDefaults(params)
	return params
}

func (p *Online) httpDefaults(params *domain.RequestParams) {
	params.Method = http.MethodGet
	params.Headers = http.Header{}
	if p.userAgent != "" {
		params.Headers.Set("User-Agent", p.userAgent)
	}
	if p.engine.SendAcceptLanguageHeader {
		if al := acceptLanguage(params.Language); al != "" {
			params.Headers.Set("Accept-Language", al)
		}
	}
	params.Data = url.Values{}
	params.Cookies = map[string]string{}
	params.Verify = true
	params.AllowRedirects = true
	params.MaxRedirects = p.engine.MaxRedirects
	params.SoftMaxRedirects = p.engine.SoftMaxRedirects
	params.RaiseForHTTPError = true
}

// acceptLanguage builds "fr-CA,fr;q=0.9,*;q=0.5" from a language tag.
func acceptLanguage(lang string) string {
	if lang == "" || lang == "all" {
		return ""
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return ""
	}
	lang2, _ := tag.Base()
	region, conf := tag.Region()
	if conf == language.Exact {
		return fmt.Sprintf("%s-%s,%s;q=0.9,*;q=0.5", lang2, region, lang2)
	}
	return fmt.Sprintf("%s,*;q=0.5", lang2)
}

func (p *Online) Search(ctx context.Context, call Call, c Container) {
	p.run(ctx, call, c, p.exec)
}

func (p *Online) exec(ctx context.Context, call Call) ([]domain.Result, error) {
	return p.fetch(ctx, call.Query, call.Params)
}

// fetch lets the adapter build the request, sends it and hands the reply
// back to the adapter. An adapter that leaves the URL empty opts out.
func (p *Online) fetch(ctx context.Context, query string, params *domain.RequestParams) ([]domain.Result, error) {
	adapter := p.engine.Online
	if err := adapter.Request(query, params); err != nil {
		return nil, adapterError("build request", err)
	}
	if params.URL == "" {
		return nil, nil
	}

	req := &domain.HTTPRequest{
		Method:         params.Method,
		URL:            params.URL,
		Header:         params.Headers,
		Body:           params.Body,
		Form:           params.Data,
		Cookies:        params.Cookies,
		AllowRedirects: params.AllowRedirects,
	}
	verify := params.Verify
	req.Verify = &verify
	if params.MaxRedirects > 0 {
		maxRedirects := params.MaxRedirects
		req.MaxRedirects = &maxRedirects
	}

	resp, err := p.fetcher.Request(ctx, req)
	if err != nil {
		return nil, &transportError{err: err}
	}

	soft := params.SoftMaxRedirects
	if soft <= 0 {
		soft = params.MaxRedirects
	}
	if soft > 0 && resp.Redirects > soft {
		p.stats.SoftError(p.engine.Name, fmt.Sprintf("%d redirects, maximum: %d", resp.Redirects, soft))
	}

	if params.RaiseForHTTPError {
		if err := domain.RaiseForHTTPError(resp); err != nil {
			return nil, err
		}
	}

	resp.Params = params
	results, err := adapter.Response(resp)
	if err != nil {
		return nil, adapterError("parse response", err)
	}
	return results, nil
}

// adapterError keeps errors the adapter classified itself and reports
// anything else as Unexpected, whatever its message says.
func adapterError(op string, err error) error {
	var ee *domain.EngineError
	if errors.As(err, &ee) {
		return err
	}
	return domain.NewUnexpectedError(fmt.Errorf("%s: %w", op, err))
}
