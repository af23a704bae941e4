package application

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lk2023060901/danmu-chat-go/internal/chat"
	"github.com/lk2023060901/danmu-chat-go/internal/network/acceptor"
	"github.com/lk2023060901/danmu-chat-go/internal/network/codec"
	"github.com/lk2023060901/danmu-chat-go/internal/network/compressor"
	"github.com/lk2023060901/danmu-chat-go/internal/network/framer"
	"github.com/lk2023060901/danmu-chat-go/internal/network/serializer"
	"github.com/lk2023060901/danmu-chat-go/internal/network/session"
	"github.com/lk2023060901/danmu-chat-go/pkg/log"
	"github.com/lk2023060901/danmu-chat-go/pkg/metrics"
	"github.com/lk2023060901/danmu-chat-go/pkg/util/hardware"
	"github.com/lk2023060901/danmu-chat-go/pkg/util/retry"
	"github.com/lk2023060901/danmu-chat-go/pkg/version"
)

const shutdownTimeout = 5 * time.Second

// Application is the runtime container of the chat server.
// It owns the listeners of every enabled transport and the metrics endpoint.
//
// Each transport keeps its own registry: a username logged in over UDP is not
// visible to TCP clients and the other way round.
type Application struct {
	cfg *Config

	line     *acceptor.BaseAcceptor
	object   *acceptor.BaseAcceptor
	datagram *acceptor.PacketAcceptor

	metricsListener net.Listener
	metricsServer   *http.Server

	closers []func()
	ready   chan struct{}
}

// New creates an Application for cfg. Nothing is bound until Run.
func New(cfg *Config) *Application {
	return &Application{cfg: cfg, ready: make(chan struct{})}
}

// Main resolves and loads the configuration from args, installs the global
// logger and runs the server until ctx is cancelled.
func Main(ctx context.Context, args []string) error {
	path, explicit, err := ResolveConfigPath(args)
	if err != nil {
		return err
	}
	cfg, err := LoadConfig(path, explicit)
	if err != nil {
		return err
	}
	if err := InitLogging(&cfg.Log); err != nil {
		return err
	}
	log.Info("configuration loaded", zap.String("path", path), zap.Bool("explicit", explicit))
	return New(cfg).Run(ctx)
}

// InitLogging installs the process-wide logger described by cfg.
func InitLogging(cfg *log.Config) error {
	logger, props, err := log.InitLogger(cfg)
	if err != nil {
		return errors.Wrap(err, "init global logger")
	}
	log.ReplaceGlobals(logger, props)
	return nil
}

// Ready is closed once every listener is bound.
func (a *Application) Ready() <-chan struct{} {
	return a.ready
}

// LineAddr returns the bound address of the text listener, or nil when disabled.
// Like the other address getters it is only meaningful after Ready.
func (a *Application) LineAddr() net.Addr {
	if a.line == nil {
		return nil
	}
	return a.line.Addr()
}

// ObjectAddr returns the bound address of the object listener, or nil when disabled.
func (a *Application) ObjectAddr() net.Addr {
	if a.object == nil {
		return nil
	}
	return a.object.Addr()
}

// DatagramAddr returns the bound address of the UDP listener, or nil when disabled.
func (a *Application) DatagramAddr() net.Addr {
	if a.datagram == nil {
		return nil
	}
	return a.datagram.Addr()
}

// MetricsAddr returns the bound address of the metrics endpoint, or nil when disabled.
func (a *Application) MetricsAddr() net.Addr {
	if a.metricsListener == nil {
		return nil
	}
	return a.metricsListener.Addr()
}

// Run binds every enabled listener and serves until ctx is cancelled or one of
// the listeners fails. Listener failures cancel the others.
func (a *Application) Run(ctx context.Context) error {
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	defer a.release()

	log.Info("chat server starting",
		zap.String("version", version.String()),
		zap.String("commit", version.GitCommit),
		zap.String("buildTime", version.BuildTime),
		zap.Int("cpus", hardware.GetCPUNum()),
		zap.Uint64("memory", hardware.GetMemoryCount()))
	metrics.BuildInfo.WithLabelValues(version.String(), version.GitCommit).Set(1)

	if err := a.bind(ctx); err != nil {
		return err
	}
	close(a.ready)

	g, gctx := errgroup.WithContext(ctx)
	if a.line != nil {
		h := chat.NewStreamHandler(chat.NewRegistry(), chat.LineBinding{})
		g.Go(func() error { return a.line.Serve(gctx, h) })
	}
	if a.object != nil {
		h := chat.NewStreamHandler(chat.NewRegistry(), chat.ObjectBinding{})
		g.Go(func() error { return a.object.Serve(gctx, h) })
	}
	if a.datagram != nil {
		h := chat.NewDatagramHandler(chat.NewRegistry())
		g.Go(func() error { return a.datagram.Serve(gctx, h) })
	}
	if a.metricsServer != nil {
		g.Go(func() error {
			err := a.metricsServer.Serve(a.metricsListener)
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return errors.Wrap(err, "metrics server")
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return a.metricsServer.Shutdown(shutdownCtx)
		})
	}

	err := g.Wait()
	if err != nil {
		log.Error("chat server stopped with error", zap.Error(err))
		return err
	}
	log.Info("chat server stopped")
	return nil
}

// bind opens all enabled listeners, retrying transient failures such as a
// port still held by a previous process.
func (a *Application) bind(ctx context.Context) error {
	opts := []retry.Option{
		retry.Attempts(a.cfg.ListenRetry.Attempts),
		retry.Sleep(a.cfg.ListenRetry.Sleep),
		retry.MaxSleepTime(a.cfg.ListenRetry.MaxSleep),
	}
	listen := func(fn func() error) error {
		return retry.Do(ctx, fn, opts...)
	}

	if c := a.cfg.Stream; c.Enabled {
		lineCodec, err := codec.NewText(framer.NewLineFramer(c.MaxLineLength))
		if err != nil {
			return err
		}
		sessCfg := session.Config{SendQueueSize: c.SendQueueSize, WriteTimeout: c.WriteTimeout}
		if err := listen(func() (err error) {
			a.line, err = acceptor.NewTCPAcceptor(chat.TransportLine, c.Address, lineCodec, sessCfg)
			return err
		}); err != nil {
			return errors.Wrapf(err, "listen %s on %s", chat.TransportLine, c.Address)
		}
		a.closers = append(a.closers, func() { _ = a.line.Close() })
	}

	if c := a.cfg.Object; c.Enabled {
		objectCodec, err := a.objectCodec(c)
		if err != nil {
			return err
		}
		sessCfg := session.Config{SendQueueSize: c.SendQueueSize, WriteTimeout: c.WriteTimeout}
		if err := listen(func() (err error) {
			a.object, err = acceptor.NewTCPAcceptor(chat.TransportObject, c.Address, objectCodec, sessCfg)
			return err
		}); err != nil {
			return errors.Wrapf(err, "listen %s on %s", chat.TransportObject, c.Address)
		}
		a.closers = append(a.closers, func() { _ = a.object.Close() })
	}

	if c := a.cfg.Datagram; c.Enabled {
		packetCfg := acceptor.PacketConfig{
			MaxPacketSize: c.MaxPacketSize,
			Workers:       c.Workers,
			PeerRate:      c.PeerRate,
			PeerBurst:     c.PeerBurst,
			PreAlloc:      c.PreAlloc,
			WorkerExpiry:  c.WorkerExpiry,
		}
		if err := listen(func() (err error) {
			a.datagram, err = acceptor.ListenPacket(chat.TransportDatagram, c.Address, packetCfg)
			return err
		}); err != nil {
			return errors.Wrapf(err, "listen %s on %s", chat.TransportDatagram, c.Address)
		}
		a.closers = append(a.closers, func() { _ = a.datagram.Close() })
	}

	if c := a.cfg.Metrics; c.Enabled {
		if err := listen(func() (err error) {
			a.metricsListener, err = net.Listen("tcp", c.Address)
			return err
		}); err != nil {
			return errors.Wrapf(err, "listen metrics on %s", c.Address)
		}
		a.metricsServer = newMetricsServer(c.Path)
		log.Info("metrics endpoint listening", zap.Stringer("addr", a.metricsListener.Addr()), zap.String("path", c.Path))
	}
	return nil
}

func (a *Application) objectCodec(c ObjectConfig) (codec.Codec, error) {
	s, err := serializer.New(c.Serializer)
	if err != nil {
		return nil, err
	}
	comp, err := compressor.New(c.Compression)
	if err != nil {
		return nil, err
	}
	if z, ok := comp.(*compressor.ZstdCompressor); ok {
		a.closers = append(a.closers, z.Close)
	}
	return codec.New(codec.Options{
		Framer:            framer.NewLengthPrefixedFramer(uint32(c.MaxFrameSize)),
		Serializer:        s,
		Compressor:        comp,
		EnableCompression: comp.Name() != compressor.NameNone,
		CompressThreshold: c.CompressThreshold,
	})
}

// newMetricsServer serves the chat collectors plus the Go runtime and process
// collectors from a dedicated registry.
func newMetricsServer(path string) *http.Server {
	registry := prometheus.NewRegistry()
	metrics.Register(registry)
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// release closes everything bind opened, in reverse order.
func (a *Application) release() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	if a.metricsServer == nil && a.metricsListener != nil {
		_ = a.metricsListener.Close()
	}
}
