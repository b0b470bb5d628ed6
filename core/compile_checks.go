package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ EventStore        = (*MemoryEventStore)(nil)
	_ ActionStore       = (*MemoryActionStore)(nil)
	_ ProviderStore     = (*MemoryProviderStore)(nil)
	_ ActionConfigStore = (*MemoryActionConfigStore)(nil)
	_ RateCounterStore  = (*MemoryRateCounterStore)(nil)
	_ Action            = (ActionFunc)(nil)
	_ MetricsRecorder   = NopMetricsRecorder{}
	_ ConfigProvider    = (*CfgxConfigProvider)(nil)
	_ OptionsResolver   = GoOptionsResolver{}

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
