package itemcollector

import (
	"errors"
	"fmt"

	"github.com/jpalmerr/itemcollector/internal/poller"
)

// App is an application whose playtime is exchanged for item drops.
//
// App is immutable after creation via [NewApp]. Items are the item
// definition ids checked for this application, in priority order: within
// one cycle the first item that drops ends the scan of this application.
type App struct {
	appID uint32
	name  string
	items []uint32
}

// AppID returns the application id.
func (a App) AppID() uint32 {
	return a.appID
}

// Name returns the display name used in logs and the API.
// May be empty.
func (a App) Name() string {
	return a.name
}

// Items returns a copy of the item definition ids, in check order.
func (a App) Items() []uint32 {
	return append([]uint32(nil), a.items...)
}

// NewApp creates an [App].
//
// Returns an error if appID is zero, no items are given, or any item id is
// zero.
//
// Example:
//
//	app, err := itemcollector.NewApp(2923300, "Banana", 1, 2, 3)
func NewApp(appID uint32, name string, items ...uint32) (App, error) {
	if appID == 0 {
		return App{}, errors.New("app id must be positive")
	}
	if len(items) == 0 {
		return App{}, fmt.Errorf("app %d: at least one item is required", appID)
	}
	for i, item := range items {
		if item == 0 {
			return App{}, fmt.Errorf("app %d: item %d must be positive", appID, i)
		}
	}

	return App{
		appID: appID,
		name:  name,
		items: append([]uint32(nil), items...),
	}, nil
}

// toPollerApps converts App slice to poller.App slice.
func toPollerApps(apps []App) []poller.App {
	result := make([]poller.App, len(apps))
	for i, app := range apps {
		result[i] = poller.App{
			AppID: app.appID,
			Name:  app.name,
			Items: app.Items(),
		}
	}
	return result
}
