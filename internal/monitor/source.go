package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"

	"github.com/axmon/axmon-backend-go/internal/core/alerting"
)

// Source produces the current metric snapshot for one monitored environment.
// Implementations must return within a bounded timeout; a failed source call
// skips the evaluation cycle rather than blocking it.
type Source interface {
	Current(ctx context.Context) (alerting.MetricSnapshot, error)
}

// MultiSource merges snapshots from several sources. A failing member is
// logged and skipped so one slow collector never hides the others' data; it
// fails only when every member fails.
type MultiSource struct {
	sources []Source
	logger  *logrus.Logger
}

// NewMultiSource combines sources into one.
func NewMultiSource(logger *logrus.Logger, sources ...Source) *MultiSource {
	return &MultiSource{sources: sources, logger: logger}
}

func (m *MultiSource) Current(ctx context.Context) (alerting.MetricSnapshot, error) {
	merged := make(map[string]float64)
	ok := false

	for _, source := range m.sources {
		snapshot, err := source.Current(ctx)
		if err != nil {
			m.logger.WithError(err).Warn("Metric source failed, continuing with remaining sources")
			continue
		}
		for name, value := range snapshot.Values() {
			merged[name] = value
		}
		ok = true
	}

	if !ok {
		return alerting.MetricSnapshot{}, fmt.Errorf("all metric sources failed")
	}
	return alerting.NewSnapshot(time.Now(), merged), nil
}

// HostSource contributes collector-host CPU and memory signals via gopsutil.
// Used for environments polled without direct SQL Server access, and as a
// health signal for the collector itself.
type HostSource struct {
	logger *logrus.Logger
}

// NewHostSource creates a host metric source.
func NewHostSource(logger *logrus.Logger) *HostSource {
	return &HostSource{logger: logger}
}

func (h *HostSource) Current(ctx context.Context) (alerting.MetricSnapshot, error) {
	values := make(map[string]float64)

	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err == nil && len(percents) > 0 {
		values["host_cpu_percent"] = percents[0]
	} else if err != nil {
		h.logger.WithError(err).Debug("Failed to read host CPU usage")
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err == nil {
		values["host_memory_percent"] = vm.UsedPercent
	} else {
		h.logger.WithError(err).Debug("Failed to read host memory usage")
	}

	if len(values) == 0 {
		return alerting.MetricSnapshot{}, fmt.Errorf("no host metrics available")
	}
	return alerting.NewSnapshot(time.Now(), values), nil
}
