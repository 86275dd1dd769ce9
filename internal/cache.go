package monitop

import (
	"context"
	"sync"

	"github.com/jondoveston/monitop/internal/client"
	"github.com/jondoveston/monitop/internal/snapshot"
)

// Source is the monitoring API the dashboard polls. *client.Client satisfies it.
type Source interface {
	ServiceInfo(ctx context.Context) (*client.ServiceInfo, error)
	Metrics(ctx context.Context, unit string) (*snapshot.Snapshot, error)
	GoRoutines(ctx context.Context) (*client.GoRoutinesStats, error)
	ServiceMetrics(ctx context.Context, req client.HistoryRequest) ([]snapshot.Point, error)
	Reports(ctx context.Context, req client.ReportRequest) ([]client.ReportRow, error)
	Functions(ctx context.Context) (client.Functions, error)
	FunctionDetails(ctx context.Context, name, reportType string) (*client.FunctionDetails, error)
}

// Cache memoises the service identity, which only changes when the service restarts
type Cache struct {
	Source

	mu   sync.Mutex
	info *client.ServiceInfo
}

func (c *Cache) ServiceInfo(ctx context.Context) (*client.ServiceInfo, error) {
	c.mu.Lock()
	info := c.info
	c.mu.Unlock()
	if info != nil {
		return info, nil
	}

	info, err := c.Source.ServiceInfo(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.info = info
	c.mu.Unlock()
	return info, nil
}

func (c *Cache) clear() {
	c.mu.Lock()
	c.info = nil
	c.mu.Unlock()
}
