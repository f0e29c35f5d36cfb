// Package server manages the lifetimes of the engine's background services:
// ordered startup, signal-driven shutdown, and reverse-order stop.
package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// stopBudget is how long a single service may take to stop before the
// lifecycle logs it as slow. Shutdown still waits; the log is the escalation.
const stopBudget = 15 * time.Second

// Service is a long-running component such as the expiration sweeper or the
// skip scheduler's shutdown hook.
type Service interface {
	// Start runs the service and blocks until Stop is called or the service
	// fails. A nil return means a clean exit.
	Start() error
	// Stop asks the service to shut down and returns once it has.
	Stop()
}

// FuncService adapts a start/stop function pair into a Service.
type FuncService struct {
	StartFn func() error
	StopFn  func()
}

func (f *FuncService) Start() error { return f.StartFn() }
func (f *FuncService) Stop()        { f.StopFn() }

type namedService struct {
	name    string
	service Service
}

// Lifecycle starts registered services in order and stops them in reverse
// order when a termination signal arrives, the context is cancelled, or any
// service fails.
type Lifecycle struct {
	mu       sync.Mutex
	logger   *zap.Logger
	services []namedService
}

// NewLifecycle creates an empty Lifecycle.
//
// Precondition: logger must be non-nil.
func NewLifecycle(logger *zap.Logger) *Lifecycle {
	return &Lifecycle{logger: logger}
}

// Add registers a named service. Registration order is start order; stop
// order is the reverse. Add is not safe to call after Run.
func (l *Lifecycle) Add(name string, svc Service) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.services = append(l.services, namedService{name: name, service: svc})
}

// Run starts every registered service, then blocks until SIGINT/SIGTERM, a
// context cancellation, or a service error, and shuts everything down.
//
// Postcondition: every service's Stop has returned when Run returns.
func (l *Lifecycle) Run(ctx context.Context) error {
	start := time.Now()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, len(l.services))
	for _, ns := range l.services {
		ns := ns
		go func() {
			l.logger.Info("service starting", zap.String("service", ns.name))
			if err := ns.service.Start(); err != nil {
				errCh <- fmt.Errorf("service %s: %w", ns.name, err)
				cancel()
			}
		}()
	}
	l.logger.Info("engine running",
		zap.Int("services", len(l.services)),
		zap.Duration("startup", time.Since(start)),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case sig := <-sigCh:
		l.logger.Info("signal received, shutting down", zap.String("signal", sig.String()))
	case runErr = <-errCh:
		l.logger.Error("service failed, shutting down", zap.Error(runErr))
	case <-ctx.Done():
		l.logger.Info("context cancelled, shutting down")
	}

	l.stopAll()

	l.logger.Info("shutdown complete", zap.Duration("uptime", time.Since(start)))
	return runErr
}

// stopAll stops services in reverse registration order, waiting for each one
// and flagging any that exceed the stop budget.
func (l *Lifecycle) stopAll() {
	for i := len(l.services) - 1; i >= 0; i-- {
		ns := l.services[i]
		stopStart := time.Now()

		done := make(chan struct{})
		go func() {
			ns.service.Stop()
			close(done)
		}()

		slow := time.NewTimer(stopBudget)
		select {
		case <-done:
		case <-slow.C:
			l.logger.Warn("service slow to stop, still waiting",
				zap.String("service", ns.name),
				zap.Duration("waited", stopBudget),
			)
			<-done
		}
		slow.Stop()

		l.logger.Info("service stopped",
			zap.String("service", ns.name),
			zap.Duration("elapsed", time.Since(stopStart)),
		)
	}
}
