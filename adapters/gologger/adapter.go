// Package gologger bridges the engine's glog logging contracts into the
// go-job contracts, so queue-backed dispatch logs through whatever the
// host wired into the engine.
package gologger

import (
	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

// QueueComponent is the logger name queue adapters resolve under.
const QueueComponent = "captainhook.queue"

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
}

// ToJobProvider maps a glog provider to the go-job logger provider contract.
func ToJobProvider(provider glog.LoggerProvider) job.LoggerProvider {
	if provider == nil {
		return nil
	}
	return job.GoLoggerProvider(provider)
}

// ToJobLogger maps a glog logger to the go-job logger contract.
func ToJobLogger(logger glog.Logger) job.Logger {
	if logger == nil {
		return nil
	}
	return job.GoLogger(logger)
}

// QueueLogger resolves the queue-side logger from whatever the host
// provided and returns it on the go-job contract. Nil inputs resolve to
// the nop logger, so the result is always safe to call.
func QueueLogger(provider glog.LoggerProvider, logger glog.Logger) job.Logger {
	_, resolved := Resolve(QueueComponent, provider, logger)
	return ToJobLogger(resolved)
}

// ResolveForJob resolves glog logger/provider then returns equivalent go-job adapters.
func ResolveForJob(
	name string,
	provider glog.LoggerProvider,
	logger glog.Logger,
) (glog.LoggerProvider, glog.Logger, job.LoggerProvider, job.Logger) {
	resolvedProvider, resolvedLogger := Resolve(name, provider, logger)
	return resolvedProvider, resolvedLogger, ToJobProvider(resolvedProvider), ToJobLogger(resolvedLogger)
}
