package testguard

import (
	"net"
	"net/http"
)

// Transport returns a RoundTripper that decides each request's host
// through g before handing it to base. Nil g means Default and nil base
// means http.DefaultTransport.
func Transport(g *Gateway, base http.RoundTripper) http.RoundTripper {
	if g == nil {
		g = Default
	}
	if base == nil {
		base = http.DefaultTransport
	}
	return &guardedTransport{gw: g, base: base}
}

type guardedTransport struct {
	gw   *Gateway
	base http.RoundTripper
}

func (t *guardedTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if err := t.gw.CheckNetwork(hostPort(r)); err != nil {
		if r.Body != nil {
			r.Body.Close()
		}
		return nil, err
	}
	return t.base.RoundTrip(r)
}

// hostPort maps a request to the address a dial would use.
func hostPort(r *http.Request) string {
	host, port := r.URL.Hostname(), r.URL.Port()
	if host == "" {
		h, p, err := net.SplitHostPort(r.Host)
		if err != nil {
			h, p = r.Host, ""
		}
		host, port = h, p
	}
	if port == "" {
		port = "80"
		if r.URL.Scheme == "https" {
			port = "443"
		}
	}
	return net.JoinHostPort(host, port)
}
