package util

import (
	"net/http"
	"net/url"

	"golang.org/x/net/http/httpproxy"
)

// ProxyFunc selects a proxy for an outbound request
type ProxyFunc func(*http.Request) (*url.URL, error)

// NewProxyFunc builds a proxy selector from explicit settings. noProxy follows
// the NO_PROXY syntax (comma-separated hosts, domains and CIDRs). With no proxy
// configured every request goes direct.
func NewProxyFunc(httpProxy, httpsProxy, noProxy string) ProxyFunc {
	if httpProxy == "" && httpsProxy == "" {
		return nil
	}
	cfg := &httpproxy.Config{
		HTTPProxy:  httpProxy,
		HTTPSProxy: httpsProxy,
		NoProxy:    noProxy,
	}
	return fromConfig(cfg)
}

// EnvProxyFunc reads HTTP_PROXY, HTTPS_PROXY and NO_PROXY once. Only the CLI
// calls this; library code receives the resulting func.
func EnvProxyFunc() ProxyFunc {
	return fromConfig(httpproxy.FromEnvironment())
}

func fromConfig(cfg *httpproxy.Config) ProxyFunc {
	pick := cfg.ProxyFunc()
	return func(req *http.Request) (*url.URL, error) {
		return pick(req.URL)
	}
}
