package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"

	"github.com/valyala/fastjson"
)

// LoadFeedConfig parses a feed configuration document: a flat JSON object
// mapping a human-readable feed name to either a local file path or an
// http(s) URL. Key order is load-bearing — it fixes the feed index each
// name is assigned, per the identifier-prefixing scheme — so this uses
// fastjson's token-order object walk rather than encoding/json, whose
// map decoding does not preserve source order.
func LoadFeedConfig(data []byte) ([]FeedSource, error) {
	var p fastjson.Parser
	v, err := p.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("parsing feed config: %w", err)
	}
	obj, err := v.Object()
	if err != nil {
		return nil, fmt.Errorf("feed config must be a JSON object: %w", err)
	}

	var sources []FeedSource
	var visitErr error
	obj.Visit(func(key []byte, val *fastjson.Value) {
		if visitErr != nil {
			return
		}
		sb, err := val.StringBytes()
		if err != nil {
			visitErr = fmt.Errorf("feed %q: value must be a string path or URL", key)
			return
		}
		location := string(sb)
		sources = append(sources, FeedSource{
			Name:   string(key),
			Opener: openerFor(location),
		})
	})
	if visitErr != nil {
		return nil, visitErr
	}
	return sources, nil
}

// openerFor picks a file-backed or http-backed Opener depending on whether
// location parses as an http(s) URL.
func openerFor(location string) func(ctx context.Context) (io.ReadCloser, int64, error) {
	if u, err := url.Parse(location); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return httpOpener(location)
	}
	return fileOpener(location)
}

func fileOpener(path string) func(ctx context.Context) (io.ReadCloser, int64, error) {
	return func(ctx context.Context) (io.ReadCloser, int64, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, 0, fmt.Errorf("opening feed file %q: %w", path, err)
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, 0, fmt.Errorf("statting feed file %q: %w", path, err)
		}
		return f, info.Size(), nil
	}
}

func httpOpener(rawURL string) func(ctx context.Context) (io.ReadCloser, int64, error) {
	return func(ctx context.Context) (io.ReadCloser, int64, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, 0, err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, 0, fmt.Errorf("fetching feed %q: %w: %w", rawURL, ErrNetworkUnavailable, err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, 0, fmt.Errorf("fetching feed %q: status %s: %w", rawURL, resp.Status, ErrNetworkUnavailable)
		}
		return resp.Body, resp.ContentLength, nil
	}
}
