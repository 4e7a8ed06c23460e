package config

import (
	"fmt"

	"github.com/jpalmerr/itemcollector"
	"github.com/jpalmerr/itemcollector/internal/gateway"
)

// BuildApps converts the configured apps into SDK App objects, preserving
// their order.
func BuildApps(ic ItemCollector) ([]itemcollector.App, error) {
	apps := make([]itemcollector.App, 0, len(ic.Apps))
	for i, ac := range ic.Apps {
		app, err := itemcollector.NewApp(ac.AppID, ac.Name, ac.Items...)
		if err != nil {
			return nil, fmt.Errorf("item_collector.apps[%d]: %w", i, err)
		}
		apps = append(apps, app)
	}
	return apps, nil
}

// BuildOptions converts parsed configuration into collector options.
//
// The returned options cover the port and the item_collector section;
// callers append their own logger, registry and callbacks.
func BuildOptions(cfg *Config) ([]itemcollector.Option, error) {
	apps, err := BuildApps(cfg.ItemCollector)
	if err != nil {
		return nil, err
	}

	return []itemcollector.Option{
		itemcollector.WithPort(cfg.Port),
		itemcollector.WithEnabled(cfg.ItemCollector.Enabled),
		itemcollector.WithDropCheckInterval(cfg.ItemCollector.Interval()),
		itemcollector.WithApps(apps...),
	}, nil
}

// BuildGatewayClientConfig converts the gateway section into client settings.
func BuildGatewayClientConfig(gw GatewayConfig) gateway.ClientConfig {
	return gateway.ClientConfig{
		URL:               gw.URL,
		APIKey:            gw.APIKey,
		Timeout:           gw.Timeout.Duration(),
		RequestsPerSecond: gw.RequestsPerSecond,
	}
}
