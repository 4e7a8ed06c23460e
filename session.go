package itemcollector

import "github.com/jpalmerr/itemcollector/internal/session"

// Session contracts implemented by the host. See [Collector.Register].
type (
	Session                 = session.Session
	InventoryService        = session.InventoryService
	Capabilities            = session.Capabilities
	Notifier                = session.Notifier
	GamesPlayed             = session.GamesPlayed
	ConsumePlaytimeResponse = session.ConsumePlaytimeResponse
	PlayingState            = session.PlayingState
)
