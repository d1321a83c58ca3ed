// Package views declares every dashboard view as a configuration of the
// shared state store, plus the few views that are plain point reads.
package views

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/ehr-chainview/internal/contract"
	"github.com/jwalitptl/ehr-chainview/internal/eventlog"
	"github.com/jwalitptl/ehr-chainview/internal/merger"
	"github.com/jwalitptl/ehr-chainview/internal/refresh"
	"github.com/jwalitptl/ehr-chainview/internal/statestore"
	"github.com/jwalitptl/ehr-chainview/internal/txn"
	"github.com/jwalitptl/ehr-chainview/pkg/metrics"
)

// Runtime is everything a view needs from the process: chain access, the
// mount registry and the write path. One is built at startup and shared.
type Runtime struct {
	Head         statestore.HeadReader
	Fetcher      *eventlog.Fetcher
	Readers      contract.Readers
	Deployment   contract.Deployment
	Registry     *refresh.Registry
	Watcher      *refresh.Watcher
	Executor     *txn.Executor
	Publisher    refresh.Publisher
	StoreOptions statestore.Options
	ViewTimeout  time.Duration
	DeployBlock  uint64
	AuditLimit   int
	Logger       *zerolog.Logger
	Metrics      *metrics.Metrics
}

// Filter resolves a contract event into a fetcher filter starting at the
// deploy block.
func (rt *Runtime) Filter(name contract.Name, event string, indexed ...[]interface{}) (eventlog.Filter, error) {
	addr, err := rt.Deployment.Address(name)
	if err != nil {
		return eventlog.Filter{}, err
	}
	a, err := contract.ABI(name)
	if err != nil {
		return eventlog.Filter{}, err
	}
	if _, ok := a.Events[event]; !ok {
		return eventlog.Filter{}, fmt.Errorf("%s has no event %s", name, event)
	}
	return eventlog.Filter{
		Name:      event,
		Address:   addr,
		ABI:       a,
		Event:     event,
		Indexed:   indexed,
		FromBlock: rt.DeployBlock,
	}, nil
}

// ViewOptions are the refresh options every view shares.
func (rt *Runtime) ViewOptions() refresh.Options {
	opts := refresh.Options{
		Timeout:   rt.ViewTimeout,
		Publisher: rt.Publisher,
		Logger:    rt.Logger,
		Metrics:   rt.Metrics,
	}
	if rt.Watcher != nil {
		opts.Status = rt.Watcher.Status
	}
	return opts
}

// Rows is the data of a store backed view.
type Rows[P any] []merger.Row[P]

// NewStore builds the state store for spec.
func NewStore[P any](rt *Runtime, spec statestore.Spec[P]) *statestore.Store[P] {
	return statestore.New(spec, rt.Head, rt.Fetcher, rt.StoreOptions, rt.Logger, rt.Metrics)
}

// StoreLoader adapts a store to a view loader.
func StoreLoader[P any](store *statestore.Store[P]) refresh.Loader[Rows[P]] {
	return func(ctx context.Context) (refresh.Result[Rows[P]], error) {
		snap, err := store.Load(ctx)
		if err != nil {
			return refresh.Result[Rows[P]]{}, err
		}
		return refresh.Result[Rows[P]]{Data: snap.Rows, Warnings: snap.Warnings, Block: snap.Block}, nil
	}
}

// Log returns the runtime logger, or a nop logger when none is set.
func (rt *Runtime) Log() *zerolog.Logger {
	if rt.Logger == nil {
		nop := zerolog.Nop()
		return &nop
	}
	return rt.Logger
}

// Mount mounts the view built by build under key. A build error unmounts
// the placeholder view again and is returned.
func Mount[T any](ctx context.Context, rt *Runtime, key string, build func() (refresh.Loader[T], error)) (*refresh.View[T], error) {
	var buildErr error
	view, err := refresh.MountView(ctx, rt.Registry, key, func() *refresh.View[T] {
		load, err := build()
		if err != nil {
			buildErr = err
			load = func(context.Context) (refresh.Result[T], error) {
				return refresh.Result[T]{}, err
			}
		}
		return refresh.NewView(key, load, rt.ViewOptions())
	})
	if err != nil {
		return nil, err
	}
	if buildErr != nil {
		rt.Registry.Unmount(key)
		return nil, buildErr
	}
	return view, nil
}

// MountStore mounts the store backed view for spec under key.
func MountStore[P any](ctx context.Context, rt *Runtime, key string, spec func() (statestore.Spec[P], error)) (*refresh.View[Rows[P]], error) {
	return Mount(ctx, rt, key, func() (refresh.Loader[Rows[P]], error) {
		s, err := spec()
		if err != nil {
			return nil, err
		}
		return StoreLoader(NewStore(rt, s)), nil
	})
}

// MountLoader mounts a view with a fixed loader under key.
func MountLoader[T any](ctx context.Context, rt *Runtime, key string, load refresh.Loader[T]) (*refresh.View[T], error) {
	return Mount(ctx, rt, key, func() (refresh.Loader[T], error) {
		return load, nil
	})
}
