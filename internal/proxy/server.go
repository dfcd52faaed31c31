package proxy

import (
	"crypto/tls"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync"

	"github.com/warden-proxy/warden/internal/middleware"
)

// CertAuthority is the subset of ca.Authority the MITM server depends on.
type CertAuthority interface {
	CertificateFor(host string) (*tls.Certificate, error)
}

// Server is the forward/intercepting proxy entry point: a plain HTTP request
// in absolute-URI form is rewritten and relayed with httputil.ReverseProxy; a
// CONNECT request either gets tunneled byte-for-byte or, when the handler
// decides to intercept it, terminated locally with a host certificate minted
// by authority and served as a second, inner HTTP server over that TLS
// connection.
type Server struct {
	Handler   *Handler
	Authority CertAuthority
	transport http.RoundTripper
}

// NewServer builds a Server. authority may be ca.NoCa{} when CA material is
// disabled; Handler.WithCA being false keeps ShouldIntercept from ever
// reaching it.
func NewServer(handler *Handler, authority CertAuthority) *Server {
	return &Server{Handler: handler, Authority: authority, transport: http.DefaultTransport}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodConnect {
		s.serveConnect(w, r)
		return
	}
	s.serveForward(w, r)
}

// serveForward handles a plain (non-CONNECT) proxied request: rewrite its
// URI per the routing table, then relay it with a ReverseProxy.
func (s *Server) serveForward(w http.ResponseWriter, r *http.Request) {
	newURI, ok := s.Handler.Rewrite(r.URL)
	if !ok {
		newURI = r.URL
	} else if route, has := middleware.RouteInfoFromContext(r.Context()); has {
		route.Matched = true
		route.Target = newURI.Host
	}

	rp := &httputil.ReverseProxy{
		Transport: s.transport,
		Rewrite: func(pr *httputil.ProxyRequest) {
			// newURI already carries the fully rewritten scheme, host, and
			// path (see Rewrite's path-transform algebra); SetURL would
			// additionally join it against the inbound path, double-applying
			// the rewrite, so the outbound URL is replaced wholesale instead.
			pr.Out.URL = newURI
			pr.Out.Host = newURI.Host
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			slog.Error("forward proxy error",
				slog.String("uri", newURI.String()),
				slog.Any("error", err),
			)
			http.Error(w, "bad gateway", http.StatusBadGateway)
		},
	}
	rp.ServeHTTP(w, r)
}

// serveConnect handles a CONNECT tunnel request. It decides whether to
// intercept based on the host alone (no routing table lookup has a request
// URI to inspect yet at this point), then either terminates TLS locally with
// a host certificate or tunnels the raw bytes through untouched.
func (s *Server) serveConnect(w http.ResponseWriter, r *http.Request) {
	host := r.URL.Host
	if host == "" {
		host = r.Host
	}

	hj, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "hijacking not supported", http.StatusInternalServerError)
		return
	}
	clientConn, _, err := hj.Hijack()
	if err != nil {
		http.Error(w, "hijack failed", http.StatusInternalServerError)
		return
	}
	defer clientConn.Close()

	if _, err := clientConn.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n")); err != nil {
		return
	}

	if !s.shouldInterceptHost(host) {
		s.tunnel(clientConn, host)
		return
	}

	s.interceptTLS(clientConn, host)
}

// shouldInterceptHost mirrors Handler.ShouldIntercept, but it runs before any
// request URI exists (CONNECT only carries a host:port), so it constructs a
// synthetic https URL for the lookup.
func (s *Server) shouldInterceptHost(hostport string) bool {
	target := synthesizeHTTPSURL(hostport)
	return s.Handler.ShouldIntercept(target)
}

func (s *Server) tunnel(clientConn net.Conn, hostport string) {
	upstreamConn, err := net.Dial("tcp", hostport)
	if err != nil {
		slog.Error("connect tunnel dial failed", slog.String("host", hostport), slog.Any("error", err))
		return
	}
	defer upstreamConn.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		io.Copy(upstreamConn, clientConn)
	}()
	go func() {
		defer wg.Done()
		io.Copy(clientConn, upstreamConn)
	}()
	wg.Wait()
}

func (s *Server) interceptTLS(clientConn net.Conn, hostport string) {
	host := hostport
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		host = h
	}

	tlsConfig := &tls.Config{
		GetCertificate: func(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
			name := hello.ServerName
			if name == "" {
				name = host
			}
			return s.Authority.CertificateFor(name)
		},
		MinVersion: tls.VersionTLS12,
	}

	tlsConn := tls.Server(clientConn, tlsConfig)
	defer tlsConn.Close()

	if err := tlsConn.Handshake(); err != nil {
		slog.Debug("MITM TLS handshake failed", slog.String("host", host), slog.Any("error", err))
		return
	}

	listener := newSingleConnListener(tlsConn)
	innerSrv := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Scheme == "" {
				r.URL.Scheme = "https"
			}
			if r.URL.Host == "" {
				r.URL.Host = host
			}
			s.serveForward(w, r)
		}),
	}
	innerSrv.Serve(listener)
}

// singleConnListener adapts one already-accepted net.Conn into a net.Listener
// that yields it exactly once, so http.Server.Serve can drive the inner MITM
// connection's request loop without a second accept loop. The second Accept
// call blocks until the connection closes, then reports io.EOF so Serve
// returns instead of busy-looping.
type singleConnListener struct {
	conn   net.Conn
	mu     sync.Mutex
	served bool
	closed chan struct{}
}

func newSingleConnListener(conn net.Conn) *singleConnListener {
	return &singleConnListener{conn: conn, closed: make(chan struct{})}
}

func (l *singleConnListener) Accept() (net.Conn, error) {
	l.mu.Lock()
	if !l.served {
		l.served = true
		l.mu.Unlock()
		return l.conn, nil
	}
	l.mu.Unlock()
	<-l.closed
	return nil, io.EOF
}

func (l *singleConnListener) Close() error {
	l.mu.Lock()
	select {
	case <-l.closed:
	default:
		close(l.closed)
	}
	l.mu.Unlock()
	return l.conn.Close()
}

func (l *singleConnListener) Addr() net.Addr { return l.conn.LocalAddr() }

// synthesizeHTTPSURL builds the https URL a CONNECT request's host:port
// would resolve to, for routing table lookups that happen before any
// decrypted request line exists.
func synthesizeHTTPSURL(hostport string) *url.URL {
	return &url.URL{Scheme: "https", Host: hostport}
}
