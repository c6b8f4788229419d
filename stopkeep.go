// Package stopkeep assembles the trailing stop engine, the keeper and
// the outward surfaces into one runnable service. Components are wired
// from Settings; functional options replace individual pieces for tests
// and embedders.
package stopkeep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/raykavin/stopkeep/api"
	"github.com/raykavin/stopkeep/audit"
	"github.com/raykavin/stopkeep/core"
	"github.com/raykavin/stopkeep/engine"
	"github.com/raykavin/stopkeep/event"
	"github.com/raykavin/stopkeep/gateway"
	"github.com/raykavin/stopkeep/keeper"
	"github.com/raykavin/stopkeep/pricefeed"
	"github.com/raykavin/stopkeep/storage"
	"github.com/raykavin/stopkeep/venue"
)

// DefaultLog is the default logger instance
var DefaultLog core.Logger

// defaultPaperAccount is the simulated venue's liquidity account when the
// settings leave it unset.
var defaultPaperAccount = common.BytesToAddress([]byte("stopkeep:paper"))

const shutdownTimeout = 10 * time.Second

// Service is the assembled trailing stop keeper.
type Service struct {
	settings *core.Settings
	log      core.Logger
	clock    core.Clock

	storage  core.StopStorage
	oracle   core.PriceOracle
	vault    *venue.Vault
	events   *event.Feed
	pause    *core.PauseSwitch
	notifier core.Notifier

	venues        map[string]core.SwapVenue
	paperDefaults bool
	paperOptions  []venue.PaperOption

	engine  *engine.Engine
	gateway *gateway.Gateway
	keeper  *keeper.Keeper

	server   *api.Server
	telegram core.NotifierWithStart
	journal  *audit.Journal
}

// New creates a service instance with the provided settings. Nil
// settings fall back to the defaults; partial settings are filled in
// place. Orders listed in the settings are configured and watched before
// the call returns.
func New(ctx context.Context, settings *core.Settings, options ...Option) (*Service, error) {
	if settings == nil {
		settings = core.DefaultSettings()
	} else {
		settings.ApplyDefaults()
	}

	service := &Service{
		settings: settings,
		log:      DefaultLog,
		clock:    core.SystemClock{},
		events:   event.NewFeed(),
		pause:    new(core.PauseSwitch),
		venues:   make(map[string]core.SwapVenue),
	}

	// Apply custom options
	for _, option := range options {
		option(service)
	}

	if err := initializeLogger(service); err != nil {
		return nil, err
	}
	if err := initializeStorage(service); err != nil {
		return nil, err
	}
	initializeOracle(service)
	if err := initializeGateway(service); err != nil {
		return nil, err
	}

	service.engine = engine.New(service.storage, service.oracle, service.log,
		engine.WithClock(service.clock),
		engine.WithPauseSwitch(service.pause),
		engine.WithEventFeed(service.events),
		engine.WithOracleTimeout(settings.Oracle.Timeout.Std()),
		engine.WithMaxPriceAge(settings.Oracle.MaxAge.Std()),
	)

	service.keeper = keeper.NewKeeper(service.engine, service.gateway, service.storage, service.log,
		keeper.WithInterval(settings.Keeper.Interval.Std()),
		keeper.WithClock(service.clock),
		keeper.WithEventFeed(service.events),
	)

	if err := initializeAudit(service); err != nil {
		return nil, err
	}
	if err := initializeAPI(service); err != nil {
		return nil, err
	}
	if err := initializeNotifications(service); err != nil {
		return nil, err
	}

	if service.notifier != nil {
		service.keeper.SetNotifier(service.notifier)
		service.events.SubscribeAll(service.notifier.OnEvent)
	}

	if err := bootstrapOrders(ctx, service); err != nil {
		return nil, err
	}

	return service, nil
}

// initializeStorage opens the registry backend named in the settings
func initializeStorage(service *Service) error {
	if service.storage != nil {
		return nil
	}

	var err error
	switch service.settings.Database.Driver {
	case "", "buntdb":
		service.storage, err = storage.FromFile(service.settings.Database.Path)
	case "sqlite":
		service.storage, err = storage.FromSQLite(service.settings.Database.Path)
	default:
		return fmt.Errorf("unknown database driver %q", service.settings.Database.Driver)
	}
	if err != nil {
		return fmt.Errorf("failed to open registry: %w", err)
	}
	return nil
}

// initializeOracle builds the price feed router from the settings
func initializeOracle(service *Service) {
	if service.oracle != nil {
		return
	}

	router := pricefeed.NewRouter()
	if service.settings.Oracle.Binance.Enabled {
		router.Register("binance", pricefeed.NewBinance())
	}
	for _, feed := range service.settings.Oracle.HTTPFeeds {
		router.Register(feed.Scheme, pricefeed.NewHTTP(feed.BaseURL, feed.PricePath,
			pricefeed.WithHTTPTimeout(feed.Timeout.Std()),
			pricefeed.WithHTTPRetries(feed.Retries),
		))
	}
	service.oracle = router
}

// initializeGateway funds the vault, builds the gateway and registers
// the venues named in the settings
func initializeGateway(service *Service) error {
	if service.vault == nil {
		vaultOptions := make([]venue.VaultOption, 0, len(service.settings.Venue.Paper.Funds))
		for _, fund := range service.settings.Venue.Paper.Funds {
			owner, err := core.ParseAddress("fund owner", fund.Owner)
			if err != nil {
				return err
			}
			asset, err := core.ParseAddress("fund asset", fund.Asset)
			if err != nil {
				return err
			}
			amount, err := core.ParsePrice(fund.Amount)
			if err != nil {
				return fmt.Errorf("invalid fund amount for %s: %w", fund.Owner, err)
			}
			vaultOptions = append(vaultOptions, venue.WithFunds(owner, asset, amount))
		}
		service.vault = venue.NewVault(service.log, vaultOptions...)
	}

	gatewayOptions := []gateway.Option{
		gateway.WithClock(service.clock),
		gateway.WithPauseSwitch(service.pause),
		gateway.WithEventFeed(service.events),
		gateway.WithSwapTimeout(service.settings.Gateway.SwapTimeout.Std()),
	}
	if service.settings.Gateway.Escrow != "" {
		escrow, err := core.ParseAddress("escrow", service.settings.Gateway.Escrow)
		if err != nil {
			return err
		}
		gatewayOptions = append(gatewayOptions, gateway.WithEscrow(escrow))
	}
	service.gateway = gateway.New(service.vault, service.log, gatewayOptions...)

	if service.settings.Venue.Paper.Enabled || service.paperDefaults {
		paper, err := buildPaperVenue(service)
		if err != nil {
			return err
		}
		service.gateway.RegisterVenue("paper", paper)
	}
	for name, v := range service.venues {
		service.gateway.RegisterVenue(name, v)
	}
	return nil
}

// buildPaperVenue assembles the simulated venue from the settings
func buildPaperVenue(service *Service) (*venue.Paper, error) {
	cfg := service.settings.Venue.Paper

	account := defaultPaperAccount
	if cfg.Account != "" {
		parsed, err := core.ParseAddress("venue account", cfg.Account)
		if err != nil {
			return nil, err
		}
		account = parsed
	}

	paperOptions := []venue.PaperOption{venue.WithFee(cfg.FeeBps)}
	for _, rate := range cfg.Rates {
		in, err := core.ParseAddress("rate in", rate.In)
		if err != nil {
			return nil, err
		}
		out, err := core.ParseAddress("rate out", rate.Out)
		if err != nil {
			return nil, err
		}
		value, err := core.ParsePrice(rate.Rate)
		if err != nil {
			return nil, fmt.Errorf("invalid venue rate %s/%s: %w", rate.In, rate.Out, err)
		}
		paperOptions = append(paperOptions, venue.WithRate(in, out, value))
	}
	paperOptions = append(paperOptions, service.paperOptions...)

	return venue.NewPaper(account, service.log, paperOptions...), nil
}

// initializeAudit opens the event journal and subscribes it to the feed
func initializeAudit(service *Service) error {
	if !service.settings.Audit.Enabled || service.journal != nil {
		return nil
	}

	journal, err := audit.New(service.settings.Audit.Path, service.log)
	if err != nil {
		return fmt.Errorf("failed to open audit journal: %w", err)
	}

	service.journal = journal
	service.events.SubscribeAll(journal.OnEvent)
	return nil
}

// initializeAPI builds the HTTP server when the settings enable it
func initializeAPI(service *Service) error {
	if !service.settings.API.Enabled {
		return nil
	}

	options := []api.Option{
		api.WithAddr(service.settings.API.Addr),
		api.WithToken(service.settings.API.Token),
		api.WithClock(service.clock),
		api.WithEventFeed(service.events),
	}
	if service.journal != nil {
		options = append(options, api.WithJournal(service.journal))
	}

	service.server = api.New(service.engine, service.keeper, service.gateway, service.log, options...)
	return nil
}

// bootstrapOrders configures and watches the orders listed in the
// settings. Ids that are already in the registry keep their ratchet and
// are watched as-is.
func bootstrapOrders(ctx context.Context, service *Service) error {
	for _, order := range service.settings.Keeper.Orders {
		id, err := core.ParseOrderID(order.ID)
		if err != nil {
			return err
		}

		var intent *core.ExecRequest
		if order.Exec != nil {
			intent, err = parseExec(id, order.Exec)
			if err != nil {
				return fmt.Errorf("invalid intent for order %s: %w", order.ID, err)
			}
		}

		_, err = service.storage.Stop(ctx, id)
		switch {
		case err == nil:
			// already configured, keep the ratchet where it is
		case errors.Is(err, core.ErrNotConfigured):
			initialStop, err := core.ParsePrice(order.InitialStop)
			if err != nil {
				return fmt.Errorf("invalid initial stop for order %s: %w", order.ID, err)
			}
			_, err = service.engine.Configure(ctx, engine.ConfigureParams{
				OrderID:     id,
				Oracle:      core.OracleRef(order.Oracle),
				InitialStop: initialStop,
				DistanceBps: order.DistanceBps,
				UpdateEvery: order.UpdateEvery.Std(),
			})
			if err != nil {
				return fmt.Errorf("failed to configure order %s: %w", order.ID, err)
			}
		default:
			return err
		}

		service.keeper.Watch(id, intent)
	}
	return nil
}

// parseExec converts a settings intent into the keeper's execution request
func parseExec(id common.Hash, exec *core.ExecSettings) (*core.ExecRequest, error) {
	if exec.Venue == "" {
		return nil, fmt.Errorf("venue is required")
	}

	req := core.ExecRequest{OrderID: id, Venue: exec.Venue}

	var err error
	if req.Maker, err = core.ParseAddress("maker", exec.Maker); err != nil {
		return nil, err
	}
	req.Receiver = req.Maker
	if exec.Receiver != "" {
		if req.Receiver, err = core.ParseAddress("receiver", exec.Receiver); err != nil {
			return nil, err
		}
	}
	if req.MakerAsset, err = core.ParseAddress("maker asset", exec.MakerAsset); err != nil {
		return nil, err
	}
	if req.TakerAsset, err = core.ParseAddress("taker asset", exec.TakerAsset); err != nil {
		return nil, err
	}
	if req.MakingAmount, err = core.ParsePrice(exec.MakingAmount); err != nil {
		return nil, fmt.Errorf("invalid making amount: %w", err)
	}
	if req.MinOutput, err = core.ParsePrice(exec.MinOutput); err != nil {
		return nil, fmt.Errorf("invalid min output: %w", err)
	}
	if exec.Payload != "" {
		if req.Payload, err = hexutil.Decode(exec.Payload); err != nil {
			return nil, fmt.Errorf("invalid payload: %w", err)
		}
	}

	return &req, nil
}

// Engine returns the trailing stop engine
func (s *Service) Engine() *engine.Engine { return s.engine }

// Keeper returns the automation daemon
func (s *Service) Keeper() *keeper.Keeper { return s.keeper }

// Gateway returns the execution gateway
func (s *Service) Gateway() *gateway.Gateway { return s.gateway }

// Events returns the feed every component publishes on
func (s *Service) Events() *event.Feed { return s.events }

// Run starts the event feed, the keeper and the configured surfaces,
// then blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.events.Start()

	if s.telegram != nil {
		s.telegram.Start()
	}

	s.keeper.Start(ctx)

	if s.server != nil {
		s.server.Start()
	}

	s.log.Infof("Stopkeep running, watching %d orders", len(s.keeper.Watched()))

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown stops the keeper and the API server, then closes the journal
// and the registry. The first failure is returned, later ones are logged.
func (s *Service) Shutdown(ctx context.Context) error {
	s.keeper.Stop(ctx)

	var firstErr error
	fail := func(err error) {
		s.log.Errorf("Shutdown: %v", err)
		if firstErr == nil {
			firstErr = err
		}
	}

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			fail(fmt.Errorf("failed to stop api server: %w", err))
		}
	}

	s.events.Stop()

	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			fail(fmt.Errorf("failed to close journal: %w", err))
		}
	}
	if closer, ok := s.storage.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			fail(fmt.Errorf("failed to close registry: %w", err))
		}
	}

	return firstErr
}
