package capture

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/elazarl/goproxy"
	"go.uber.org/zap"

	"github.com/devicelab-dev/tagscout/pkg/traffic"
)

const maxBodyBytes = 10 << 20

// static assets are forwarded but never recorded
var staticMarkers = []string{".jpg", ".png", ".mp4", ".css", ".woff"}

// ProxyOptions configures a Proxy.
type ProxyOptions struct {
	Session    *Session
	Classifier *traffic.Classifier
	// CA signs the per-host certificates used to decrypt HTTPS. Nil uses
	// goproxy's built-in CA.
	CA *tls.Certificate
	// Transport reaches upstream servers. Nil uses goproxy's default.
	Transport *http.Transport
	Metrics   *Metrics
	Logger    *zap.Logger
}

// Proxy is an HTTP(S) forward proxy that records every non-static request to
// the session log. HTTPS is decrypted with the configured CA so each request
// on a tunnel is recorded with its path and body. Requests addressed to the
// proxy itself are served by the control endpoints.
type Proxy struct {
	session    *Session
	classifier *traffic.Classifier
	ca         *tls.Certificate
	metrics    *Metrics
	logger     *zap.Logger
	control    *http.ServeMux
	gp         *goproxy.ProxyHttpServer
}

// NewProxy builds a proxy around an existing session.
func NewProxy(opts ProxyOptions) *Proxy {
	p := &Proxy{
		session:    opts.Session,
		classifier: opts.Classifier,
		ca:         opts.CA,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
	}
	if p.classifier == nil {
		p.classifier = traffic.NewClassifier(nil, nil, nil)
	}
	if p.ca == nil {
		p.ca = &goproxy.GoproxyCa
	}
	if p.metrics == nil {
		p.metrics = NewMetrics()
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}

	p.control = http.NewServeMux()
	p.control.HandleFunc("/mark_action", p.handleMarkAction)
	p.control.HandleFunc("/activity", p.handleActivity)
	p.control.HandleFunc("/start_session", p.handleStartSession)
	p.control.HandleFunc("/ca.pem", p.handleCA)
	p.control.Handle("/metrics", p.metrics.Handler())

	gp := goproxy.NewProxyHttpServer()
	gp.Logger = goproxyLogger{p.logger.Sugar()}
	gp.NonproxyHandler = p.control
	if opts.Transport != nil {
		gp.Tr = opts.Transport
	}

	mitm := &goproxy.ConnectAction{
		Action:    goproxy.ConnectMitm,
		TLSConfig: goproxy.TLSConfigFromCA(p.ca),
	}
	gp.OnRequest().HandleConnect(goproxy.FuncHttpsHandler(
		func(host string, ctx *goproxy.ProxyCtx) (*goproxy.ConnectAction, string) {
			return mitm, host
		}))
	gp.OnRequest().DoFunc(p.onRequest)
	gp.OnResponse().DoFunc(p.onResponse)
	p.gp = gp

	return p
}

// ServeHTTP implements http.Handler.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodConnect && !r.URL.IsAbs() {
		p.control.ServeHTTP(w, r)
		return
	}
	p.gp.ServeHTTP(w, r)
}

// onRequest records each proxied request, plain or decrypted, before it is
// forwarded upstream.
func (p *Proxy) onRequest(r *http.Request, ctx *goproxy.ProxyCtx) (*http.Request, *http.Response) {
	if r.URL.Path == "/mark_action" {
		p.mark()
		return r, goproxy.NewResponse(r, "application/json", http.StatusOK, `{"ok":true}`)
	}

	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			p.metrics.errors.WithLabelValues("read_body").Inc()
			return r, goproxy.NewResponse(r, goproxy.ContentTypeText, http.StatusBadRequest, "read request body")
		}
		r.Body = readCloser{io.MultiReader(bytes.NewReader(body), r.Body), r.Body}
	}

	p.record(r.Method, r.URL.Hostname(), r.URL.String(), r.URL.RequestURI(), body)
	return r, nil
}

// onResponse turns upstream failures into 502 responses.
func (p *Proxy) onResponse(resp *http.Response, ctx *goproxy.ProxyCtx) *http.Response {
	if resp != nil {
		return resp
	}
	p.metrics.errors.WithLabelValues("upstream").Inc()
	msg := "upstream request failed"
	if ctx.Error != nil {
		msg = ctx.Error.Error()
		p.logger.Debug("upstream request failed", zap.String("url", ctx.Req.URL.String()), zap.Error(ctx.Error))
	}
	return goproxy.NewResponse(ctx.Req, goproxy.ContentTypeText, http.StatusBadGateway, msg)
}

func (p *Proxy) mark() {
	p.session.MarkAction()
	p.metrics.marks.Inc()
	p.logger.Debug("action marked")
}

func (p *Proxy) handleMarkAction(w http.ResponseWriter, r *http.Request) {
	p.mark()
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (p *Proxy) handleActivity(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, p.session.Activity())
}

func (p *Proxy) handleStartSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	d, err := p.session.Start()
	if err != nil {
		p.metrics.errors.WithLabelValues("session").Inc()
		p.logger.Error("start capture session", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	p.metrics.sessions.Inc()
	writeJSON(w, http.StatusOK, d)
}

// handleCA serves the signing CA certificate for installation on the device.
func (p *Proxy) handleCA(w http.ResponseWriter, r *http.Request) {
	if len(p.ca.Certificate) == 0 {
		http.Error(w, "no CA configured", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/x-pem-file")
	_ = pem.Encode(w, &pem.Block{Type: "CERTIFICATE", Bytes: p.ca.Certificate[0]})
}

func (p *Proxy) record(method, host, url, path string, body []byte) {
	if isStatic(url) {
		p.metrics.filtered.Inc()
		return
	}
	category := p.classifier.Classify(host, url)
	rec := traffic.Record{
		Host:     host,
		Method:   method,
		URL:      url,
		Path:     path,
		Category: category,
		Body:     decodeBody(body),
	}
	if err := p.session.Record(rec); err != nil {
		p.metrics.errors.WithLabelValues("record").Inc()
		p.logger.Warn("record request", zap.String("url", url), zap.Error(err))
		return
	}
	p.metrics.requests.WithLabelValues(string(category)).Inc()
	p.logger.Debug("request recorded",
		zap.String("host", host),
		zap.String("method", method),
		zap.String("path", path),
		zap.String("category", string(category)),
	)
}

// LoadCA reads a PEM certificate and key pair used to sign decrypted hosts.
func LoadCA(certFile, keyFile string) (*tls.Certificate, error) {
	ca, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load capture CA: %w", err)
	}
	if ca.Leaf, err = x509.ParseCertificate(ca.Certificate[0]); err != nil {
		return nil, fmt.Errorf("parse capture CA: %w", err)
	}
	if !ca.Leaf.IsCA {
		return nil, fmt.Errorf("capture CA %s is not a CA certificate", certFile)
	}
	return &ca, nil
}

func isStatic(url string) bool {
	for _, m := range staticMarkers {
		if strings.Contains(url, m) {
			return true
		}
	}
	return false
}

// decodeBody keeps a JSON body as is and stores anything else as a string.
func decodeBody(body []byte) json.RawMessage {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	s, err := json.Marshal(strings.ToValidUTF8(string(body), ""))
	if err != nil {
		return nil
	}
	return s
}

type readCloser struct {
	io.Reader
	io.Closer
}

// goproxyLogger routes goproxy's printf logging into zap at debug level.
type goproxyLogger struct {
	s *zap.SugaredLogger
}

func (l goproxyLogger) Printf(format string, v ...interface{}) {
	l.s.Debugf(format, v...)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
