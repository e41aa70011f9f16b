// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/dukex/flowrun/pkg/actions/fileoperation"
	"github.com/dukex/flowrun/pkg/actions/httprequest"
	"github.com/dukex/flowrun/pkg/actions/notification"
	"github.com/dukex/flowrun/pkg/actions/script"
	"github.com/dukex/flowrun/pkg/actions/transform"
	"github.com/dukex/flowrun/pkg/eventbus"
	"github.com/dukex/flowrun/pkg/registry"
)

func registerActionPlugins(reg *registry.Registry, pluginsPath string) error {
	actionPlugins, err := reg.LoadActionPlugins(pluginsPath)
	if err != nil {
		return fmt.Errorf("failed to load action plugins: %w", err)
	}

	for _, plugin := range actionPlugins {
		reg.RegisterAction(plugin)
	}

	return nil
}

func registerNativeActions(reg *registry.Registry, publisher eventbus.Publisher, filesRoot string) {
	reg.RegisterAction(httprequest.NewActionFactory())
	reg.RegisterAction(transform.NewActionFactory())
	reg.RegisterAction(script.NewActionFactory())
	reg.RegisterAction(fileoperation.NewActionFactory(filesRoot))
	reg.RegisterAction(notification.NewActionFactory(publisher))
}

// NewRegistry registers plugins first so native actions win on id clashes.
func NewRegistry(log *slog.Logger, pluginsPath string, publisher eventbus.Publisher, filesRoot string) (*registry.Registry, error) {
	reg := registry.NewRegistry(log)

	if pluginsPath != "" {
		if err := registerActionPlugins(reg, pluginsPath); err != nil {
			return nil, err
		}
	}

	registerNativeActions(reg, publisher, filesRoot)

	return reg, nil
}
