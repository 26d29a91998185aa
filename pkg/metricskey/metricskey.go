package metricskey

import "github.com/effective-security/metrics"

// Stats
var (
	StatsRunsSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_runs_succeeded",
		Help:         "stats_runs_succeeded provides total orchestrator runs that produced an answer",
		RequiredTags: []string{"model"},
	}

	StatsRunsFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_runs_failed",
		Help:         "stats_runs_failed provides total orchestrator runs that failed",
		RequiredTags: []string{"model"},
	}

	StatsRunsAborted = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_runs_aborted",
		Help:         "stats_runs_aborted provides total orchestrator runs stopped at the step limit",
		RequiredTags: []string{"model"},
	}

	StatsLLMMessagesSent = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_messages_sent",
		Help:         "stats_llm_messages_sent provides total messages sent to LLM",
		RequiredTags: []string{"model"},
	}

	StatsLLMBytesSent = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_llm_bytes_sent",
		Help:         "stats_llm_bytes_sent provides total bytes sent to LLM",
		RequiredTags: []string{"model"},
	}

	StatsToolDispatchesSucceeded = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_dispatches_succeeded",
		Help:         "stats_tool_dispatches_succeeded provides total tool dispatches succeeded",
		RequiredTags: []string{"tool", "provider"},
	}

	StatsToolDispatchesFailed = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_tool_dispatches_failed",
		Help:         "stats_tool_dispatches_failed provides total tool dispatches failed",
		RequiredTags: []string{"tool", "provider"},
	}

	StatsRegistryRefreshes = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_registry_refreshes",
		Help:         "stats_registry_refreshes provides total registry refreshes",
		RequiredTags: []string{},
	}

	StatsRegistryCollisions = metrics.Describe{
		Type:         metrics.TypeCounter,
		Name:         "stats_registry_collisions",
		Help:         "stats_registry_collisions provides total tool name collisions rejected",
		RequiredTags: []string{"tool"},
	}
)

// Perf
var (
	PerfRun = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_orchestrator_run",
		Help:         "perf_orchestrator_run provides the duration of an orchestrator run",
		RequiredTags: []string{"model"},
	}

	PerfLLMCall = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_llm_call",
		Help:         "perf_llm_call provides the duration of one model completion",
		RequiredTags: []string{"model"},
	}

	PerfToolDispatch = metrics.Describe{
		Type:         metrics.TypeSample,
		Name:         "perf_tool_dispatch",
		Help:         "perf_tool_dispatch provides the duration of one tool dispatch",
		RequiredTags: []string{"tool"},
	}
)

// Metrics returns all the metrics defined in this package.
func Metrics() []*metrics.Describe {
	return []*metrics.Describe{
		&StatsRunsSucceeded,
		&StatsRunsFailed,
		&StatsRunsAborted,
		&StatsLLMMessagesSent,
		&StatsLLMBytesSent,
		&StatsToolDispatchesSucceeded,
		&StatsToolDispatchesFailed,
		&StatsRegistryRefreshes,
		&StatsRegistryCollisions,
		&PerfRun,
		&PerfLLMCall,
		&PerfToolDispatch,
	}
}
