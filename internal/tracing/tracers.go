// Package tracing provides the opentracing tracers of the client. The tracers
// report to the jaeger agent described by the JAEGER_* environment variables.
package tracing

import (
	"io"
	"sync"

	opentracing "github.com/opentracing/opentracing-go"
	jaegercfg "github.com/uber/jaeger-client-go/config"
	"golang.org/x/xerrors"
)

const (
	// OperationTag is the span tag that denotes the operation on a post.
	OperationTag = "operation"

	// ComponentTag is the tag added to every span of the client.
	ComponentTag = "component"

	component = "chainblog"
)

type entry struct {
	tracer opentracing.Tracer
	closer io.Closer
}

var registry = struct {
	sync.Mutex
	tracers map[string]entry
}{
	tracers: make(map[string]entry),
}

// GetTracer returns the tracer of the service. The tracer is created on the
// first call and then reused until CloseAll is called.
func GetTracer(service string) (opentracing.Tracer, error) {
	registry.Lock()
	defer registry.Unlock()

	e, found := registry.tracers[service]
	if found {
		return e.tracer, nil
	}

	cfg, err := jaegercfg.FromEnv()
	if err != nil {
		return nil, xerrors.Errorf("failed to read jaeger environment: %v", err)
	}

	cfg.ServiceName = service
	cfg.Tags = append(cfg.Tags, opentracing.Tag{Key: ComponentTag, Value: component})

	tracer, closer, err := cfg.NewTracer()
	if err != nil {
		return nil, xerrors.Errorf("failed to create tracer: %v", err)
	}

	registry.tracers[service] = entry{
		tracer: tracer,
		closer: closer,
	}

	return tracer, nil
}

// CloseAll flushes and closes the tracers. It stops at the first failure.
func CloseAll() error {
	registry.Lock()
	defer registry.Unlock()

	for service, e := range registry.tracers {
		err := e.closer.Close()
		if err != nil {
			return xerrors.Errorf("failed to close tracer of '%s': %v", service, err)
		}

		delete(registry.tracers, service)
	}

	return nil
}
