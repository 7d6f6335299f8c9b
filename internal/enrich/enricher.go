// Package enrich attaches externally resolved metadata (geolocation, process
// attribution) to live connections. Lookups run off the analysis path and
// their results arrive asynchronously; a failed or slow lookup leaves the
// fields unset, it never fails the pipeline.
package enrich

import (
	"context"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"netlens/internal/model"
)

// GeoResolver looks up geolocation facts for an address. Implementations are
// expected to be cache-backed; the enricher adds a timeout around each call.
type GeoResolver interface {
	Lookup(ctx context.Context, ip net.IP) (model.GeoInfo, error)
}

// ProcessResolver attributes a connection tuple to a local process.
type ProcessResolver interface {
	Lookup(ctx context.Context, key model.ConnKey) (model.ProcessInfo, error)
}

// Target receives resolved metadata. The connection tracker satisfies this.
type Target interface {
	Enrich(key model.ConnKey, geo *model.GeoInfo, proc *model.ProcessInfo)
}

// Enricher fans connection-open notifications out to the resolvers.
type Enricher struct {
	geo     GeoResolver
	proc    ProcessResolver
	target  Target
	timeout time.Duration

	requests chan model.Connection
	done     chan struct{}
	wg       sync.WaitGroup
}

// New creates an Enricher. Either resolver may be nil, in which case that
// kind of metadata is simply never attached.
func New(geo GeoResolver, proc ProcessResolver, target Target, timeout time.Duration) *Enricher {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Enricher{
		geo:      geo,
		proc:     proc,
		target:   target,
		timeout:  timeout,
		requests: make(chan model.Connection, 256),
		done:     make(chan struct{}),
	}
}

// Start launches the lookup worker.
func (e *Enricher) Start() {
	e.wg.Add(1)
	go e.run()
}

// Submit queues a connection for enrichment without blocking. When the queue
// is full the request is dropped; the connection stays unenriched.
func (e *Enricher) Submit(conn model.Connection) {
	select {
	case e.requests <- conn:
	default:
	}
}

// Stop shuts the worker down after draining queued requests.
func (e *Enricher) Stop() {
	close(e.done)
	e.wg.Wait()
}

func (e *Enricher) run() {
	defer e.wg.Done()
	for {
		select {
		case conn := <-e.requests:
			e.resolve(conn)
		case <-e.done:
			for {
				select {
				case conn := <-e.requests:
					e.resolve(conn)
				default:
					return
				}
			}
		}
	}
}

func (e *Enricher) resolve(conn model.Connection) {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	var geo *model.GeoInfo
	if e.geo != nil {
		// The remote endpoint is the interesting one for geolocation.
		ip := conn.Key.PublicIP()
		if info, err := e.geo.Lookup(ctx, ip); err != nil {
			log.WithError(err).WithField("conn", conn.Key.String()).
				Debug("geo lookup unavailable")
		} else {
			geo = &info
		}
	}

	var proc *model.ProcessInfo
	if e.proc != nil {
		if info, err := e.proc.Lookup(ctx, conn.Key); err != nil {
			log.WithError(err).WithField("conn", conn.Key.String()).
				Debug("process lookup unavailable")
		} else {
			proc = &info
		}
	}

	if geo != nil || proc != nil {
		e.target.Enrich(conn.Key, geo, proc)
	}
}
