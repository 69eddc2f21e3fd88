package types

// NetworkListener is invoked on every online/offline transition.
type NetworkListener func(online bool)

type NetworkMonitor interface {
	LifecycleManager
	IsOnline() bool
	// SetOnline reports a host-observed transition. Listeners fire only on
	// actual state changes.
	SetOnline(online bool)
	// Subscribe registers a listener and returns an unsubscribe func.
	Subscribe(listener NetworkListener) func()
}
