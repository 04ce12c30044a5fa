package enforce

import (
	"context"
	"net"
	"net/http"

	"github.com/ppiankov/testguard/internal/model"
)

// Dial connects to address on the named network.
func (g *Gateway) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	if _, err := g.guard(model.Network, model.SurfaceDial, network+"://"+address); err != nil {
		return nil, err
	}
	var d net.Dialer
	return d.DialContext(ctx, network, address)
}

// Listen announces on the local network address.
func (g *Gateway) Listen(network, address string) (net.Listener, error) {
	if _, err := g.guard(model.Network, model.SurfaceListen, network+"://"+address); err != nil {
		return nil, err
	}
	return net.Listen(network, address)
}

// ListenPacket announces on the local packet network address.
func (g *Gateway) ListenPacket(network, address string) (net.PacketConn, error) {
	if _, err := g.guard(model.Network, model.SurfaceListenPacket, network+"://"+address); err != nil {
		return nil, err
	}
	return net.ListenPacket(network, address)
}

// HTTPClient returns a client whose connections are opened through Dial.
func (g *Gateway) HTTPClient() *http.Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.DialContext = g.Dial
	tr.Proxy = nil
	return &http.Client{Transport: tr}
}

// CheckNetwork decides a connection to address without opening it.
func (g *Gateway) CheckNetwork(address string) error {
	_, err := g.guard(model.Network, model.SurfaceDial, address)
	return err
}
