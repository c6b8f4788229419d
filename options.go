package stopkeep

import (
	"github.com/raykavin/stopkeep/core"
	"github.com/raykavin/stopkeep/venue"
)

// Option is a functional option for configuring a Service instance
type Option func(*Service)

// WithLogger replaces the ambient logger before any component is wired
func WithLogger(log core.Logger) Option {
	return func(service *Service) {
		service.log = log
	}
}

// WithStorage sets the stop registry, by default it uses a local file called stopkeep.db
func WithStorage(storage core.StopStorage) Option {
	return func(service *Service) {
		service.storage = storage
	}
}

// WithOracle replaces the settings-driven price feed router
func WithOracle(oracle core.PriceOracle) Option {
	return func(service *Service) {
		service.oracle = oracle
	}
}

// WithVault sets the asset ledger backing the execution gateway
func WithVault(vault *venue.Vault) Option {
	return func(service *Service) {
		service.vault = vault
	}
}

// WithClock sets the time source shared by the engine, keeper and gateway
func WithClock(clock core.Clock) Option {
	return func(service *Service) {
		service.clock = clock
	}
}

// WithNotifier registers a notifier for keeper activity and engine events
func WithNotifier(notifier core.Notifier) Option {
	return func(service *Service) {
		service.notifier = notifier
	}
}

// WithVenue registers a swap venue under the given reference alongside the
// settings-driven ones
func WithVenue(name string, v core.SwapVenue) Option {
	return func(service *Service) {
		service.venues[name] = v
	}
}

// WithPaperDefaults enables the simulated venue even when the settings leave
// it disabled, applying the given venue options on top of the configured ones
func WithPaperDefaults(options ...venue.PaperOption) Option {
	return func(service *Service) {
		service.paperDefaults = true
		service.paperOptions = append(service.paperOptions, options...)
	}
}
