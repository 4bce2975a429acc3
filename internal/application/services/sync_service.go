package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bimakw/nft-market-sync/internal/application/catalog"
	"github.com/bimakw/nft-market-sync/internal/config"
	"github.com/bimakw/nft-market-sync/internal/domain/currency"
	"github.com/bimakw/nft-market-sync/internal/domain/entities"
	"github.com/bimakw/nft-market-sync/internal/domain/repositories"
	"github.com/bimakw/nft-market-sync/internal/infrastructure/ethereum"
	"github.com/bimakw/nft-market-sync/internal/infrastructure/notify"
)

const defaultRebindDelay = time.Second

// Events mirrored into the backend and the catalog
var syncedEvents = []string{
	ethereum.EventCollectionCreated,
	ethereum.EventNFTMinted,
	ethereum.EventNFTPriceSet,
	ethereum.EventAuctionStarted,
	ethereum.EventNewBidPlaced,
	ethereum.EventAuctionEnded,
	ethereum.EventNFTSold,
}

// ContractSession binds contracts to the current wallet session
type ContractSession interface {
	Bind(ctx context.Context, target ethereum.Target) (*ethereum.Handle, error)
	Account() (common.Address, bool)
	OnRebuild(fn func(generation uint64))
}

// MetadataEnricher resolves display metadata for records that lack it
type MetadataEnricher interface {
	Enrich(ctx context.Context, nfts []entities.NFT) []entities.NFT
	EnrichCollections(ctx context.Context, cols []entities.Collection) []entities.Collection
}

// SyncService mirrors marketplace contract events into the backend and the
// in-memory catalog
type SyncService struct {
	session     ContractSession
	records     repositories.RecordRepository
	checkpoints repositories.CheckpointRepository
	fetcher     *ethereum.Fetcher
	store       *catalog.Store
	enricher    MetadataEnricher
	sink        notify.Sink
	config      config.SyncConfig
	chainID     int64
	logger      *zap.Logger
	metrics     *SyncMetrics
	now         func() time.Time

	mu      sync.Mutex
	watches map[common.Address]*watch
	rebuilt chan struct{}
	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type watch struct {
	target ethereum.Target
	cancel context.CancelFunc
}

// NewSyncService creates a new synchronizer. fetcher and checkpoints may be
// nil, in which case no catch-up replay is done; enricher and sink may be nil.
func NewSyncService(
	session ContractSession,
	records repositories.RecordRepository,
	checkpoints repositories.CheckpointRepository,
	fetcher *ethereum.Fetcher,
	store *catalog.Store,
	enricher MetadataEnricher,
	sink notify.Sink,
	cfg config.SyncConfig,
	chainID int64,
	metrics *SyncMetrics,
	logger *zap.Logger,
) *SyncService {
	if metrics == nil {
		metrics = NewSyncMetrics(nil)
	}

	s := &SyncService{
		session:     session,
		records:     records,
		checkpoints: checkpoints,
		fetcher:     fetcher,
		store:       store,
		enricher:    enricher,
		sink:        sink,
		config:      cfg,
		chainID:     chainID,
		logger:      logger.Named("sync"),
		metrics:     metrics,
		now:         time.Now,
		watches:     make(map[common.Address]*watch),
		rebuilt:     make(chan struct{}),
	}
	session.OnRebuild(s.onRebuild)
	return s
}

// Start loads the catalog from the backend and begins watching targets
func (s *SyncService) Start(ctx context.Context, targets []ethereum.Target) error {
	s.mu.Lock()
	if s.baseCtx != nil {
		s.mu.Unlock()
		return errors.New("sync service already started")
	}
	s.baseCtx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.logger.Info("Starting sync service", zap.Int("contracts", len(targets)))

	for _, target := range targets {
		if _, err := s.Watch(s.baseCtx, target); err != nil {
			return fmt.Errorf("failed to watch %s: %w", target.Name, err)
		}
	}

	if err := s.Refresh(ctx); err != nil {
		s.logger.Warn("Initial catalog load failed", zap.Error(err))
	}

	return nil
}

// Stop cancels every watch and waits for them to finish
func (s *SyncService) Stop() {
	s.logger.Info("Stopping sync service")

	s.mu.Lock()
	for addr, w := range s.watches {
		w.cancel()
		delete(s.watches, addr)
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// Watching reports whether a watch is registered for address
func (s *SyncService) Watching(address common.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.watches[address]
	return ok
}

// Watch keeps listeners for target registered across session rebuilds until
// the returned stop func is called or ctx is done. Watching an address twice
// returns the existing watch.
func (s *SyncService) Watch(ctx context.Context, target ethereum.Target) (func(), error) {
	if target.Address == (common.Address{}) {
		return nil, entities.NewValidationError("address", "contract address is empty")
	}
	if target.ABI == nil {
		return nil, entities.NewValidationError("abi", "contract ABI is nil")
	}

	s.mu.Lock()
	if w, ok := s.watches[target.Address]; ok {
		s.mu.Unlock()
		return s.stopFunc(w), nil
	}

	wctx, cancel := context.WithCancel(ctx)
	w := &watch{target: target, cancel: cancel}
	s.watches[target.Address] = w
	s.wg.Add(1)
	s.mu.Unlock()

	go s.runWatch(wctx, w)

	s.logger.Debug("Watching contract",
		zap.String("name", target.Name),
		zap.String("address", target.Address.Hex()),
	)
	return s.stopFunc(w), nil
}

func (s *SyncService) stopFunc(w *watch) func() {
	return func() {
		s.mu.Lock()
		if cur, ok := s.watches[w.target.Address]; ok && cur == w {
			delete(s.watches, w.target.Address)
		}
		s.mu.Unlock()
		w.cancel()
	}
}

func (s *SyncService) onRebuild(generation uint64) {
	s.mu.Lock()
	close(s.rebuilt)
	s.rebuilt = make(chan struct{})
	base := s.baseCtx
	if base == nil || base.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		if err := s.RefreshAccount(base); err != nil && base.Err() == nil {
			s.logger.Warn("Failed to load wallet records",
				zap.Uint64("generation", generation),
				zap.Error(err),
			)
		}
	}()
}

func (s *SyncService) rebuildSignal() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rebuilt
}

func (s *SyncService) runWatch(ctx context.Context, w *watch) {
	defer s.wg.Done()

	delay := s.config.RebindDelay
	if delay <= 0 {
		delay = defaultRebindDelay
	}

	for {
		rebuilt := s.rebuildSignal()

		gate := &liveGate{}
		h, cancels, err := s.attach(ctx, w.target, gate)
		if err != nil {
			s.logger.Debug("Contract not bound, waiting for session",
				zap.String("contract", w.target.Address.Hex()),
				zap.Error(err),
			)

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-rebuilt:
				timer.Stop()
			case <-timer.C:
			}
			continue
		}

		alive := s.serve(ctx, w.target, h, gate, rebuilt, delay)
		detach(cancels)
		if !alive {
			return
		}
	}
}

// serve replays missed logs for one attachment and keeps it until the
// subscription ends or the session is rebuilt. It returns false once ctx is
// done.
func (s *SyncService) serve(ctx context.Context, target ethereum.Target, h *ethereum.Handle, gate *liveGate, rebuilt <-chan struct{}, delay time.Duration) bool {
	synced := s.resync(ctx, target, h, gate)

	for {
		var retry <-chan time.Time
		if !synced {
			retry = time.After(delay)
		}

		select {
		case <-ctx.Done():
			return false
		case <-h.Done():
			s.logger.Warn("Contract subscription ended, rebinding",
				zap.String("contract", target.Address.Hex()),
			)
			return true
		case <-rebuilt:
			return true
		case <-retry:
			synced = s.resync(ctx, target, h, gate)
		}
	}
}

// resync catches up from the checkpoint, then hands the live logs held by
// gate to the handler, skipping those the replay already covered. It reports
// whether the replay succeeded.
func (s *SyncService) resync(ctx context.Context, target ethereum.Target, h *ethereum.Handle, gate *liveGate) bool {
	deliver := func(log types.Log) {
		if h.Alive() {
			s.handleLive(ctx, target, gate, log)
		}
	}

	if !s.config.CatchUp {
		gate.release(-1, true, deliver)
		return true
	}

	replayed, err := s.catchUp(ctx, target)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("Catch-up failed",
				zap.String("contract", target.Address.Hex()),
				zap.Error(err),
			)
		}
		// Live logs still reach the catalog; the checkpoint stays put until a
		// replay succeeds
		gate.release(-1, false, deliver)
		return false
	}

	gate.release(replayed, true, deliver)
	return true
}

// attach binds target and registers one listener per synced event
func (s *SyncService) attach(ctx context.Context, target ethereum.Target, gate *liveGate) (*ethereum.Handle, []func(), error) {
	h, err := s.session.Bind(ctx, target)
	if err != nil {
		return nil, nil, err
	}

	cancels := make([]func(), 0, len(syncedEvents))
	for _, event := range syncedEvents {
		if _, ok := target.ABI.Events[event]; !ok {
			continue
		}

		name := "sync:" + target.Address.Hex() + ":" + event
		cancel, err := h.Listen(name, event, s.liveHandler(ctx, h, target, gate))
		if err != nil {
			detach(cancels)
			return nil, nil, err
		}
		cancels = append(cancels, cancel)
	}

	return h, cancels, nil
}

func detach(cancels []func()) {
	for _, cancel := range cancels {
		cancel()
	}
}

func (s *SyncService) liveHandler(ctx context.Context, h *ethereum.Handle, target ethereum.Target, gate *liveGate) ethereum.LogHandler {
	return func(log types.Log) {
		// Handle from a previous session
		if !h.Alive() {
			return
		}
		if gate.hold(log) {
			return
		}
		s.handleLive(ctx, target, gate, log)
	}
}

func (s *SyncService) handleLive(ctx context.Context, target ethereum.Target, gate *liveGate, log types.Log) {
	if err := s.HandleLog(ctx, target, log, s.now().UTC()); err != nil {
		return
	}
	if gate.caughtUp() {
		s.advance(ctx, target, int64(log.BlockNumber), 1)
	}
}

// liveGate holds live logs while a catch-up replay runs
type liveGate struct {
	mu      sync.Mutex
	open    bool
	synced  bool
	pending []types.Log
}

// hold queues log while the gate is closed and reports whether it did
func (g *liveGate) hold(log types.Log) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.open {
		return false
	}
	g.pending = append(g.pending, log)
	return true
}

// release passes queued logs above replayed to deliver in arrival order and
// then opens the gate. synced controls whether live logs move the checkpoint.
func (g *liveGate) release(replayed int64, synced bool, deliver func(types.Log)) {
	g.mu.Lock()
	g.synced = synced
	g.mu.Unlock()

	for {
		g.mu.Lock()
		pending := g.pending
		g.pending = nil
		if len(pending) == 0 {
			g.open = true
			g.mu.Unlock()
			return
		}
		g.mu.Unlock()

		for _, log := range pending {
			if int64(log.BlockNumber) > replayed {
				deliver(log)
			}
		}
	}
}

func (g *liveGate) caughtUp() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.synced
}

// HandleLog decodes a single contract log and applies it. observedAt is used
// where the event carries no timestamp of its own.
func (s *SyncService) HandleLog(ctx context.Context, target ethereum.Target, log types.Log, observedAt time.Time) error {
	if log.Removed {
		s.logger.Debug("Skipping removed log", zap.String("tx", log.TxHash.Hex()))
		return nil
	}

	event, err := ethereum.ParseEvent(target.ABI, log)
	if err != nil {
		if errors.Is(err, ethereum.ErrUnknownEvent) {
			return nil
		}
		s.metrics.EventsFailed.WithLabelValues("undecodable").Inc()
		s.logger.Warn("Failed to decode log",
			zap.String("contract", log.Address.Hex()),
			zap.String("tx", log.TxHash.Hex()),
			zap.Error(err),
		)
		return err
	}

	return s.apply(ctx, event, observedAt)
}

// apply writes a decoded event to the backend and merges the canonical record
// into the catalog. On failure the catalog is left unchanged.
func (s *SyncService) apply(ctx context.Context, event interface{}, at time.Time) error {
	var (
		name string
		err  error
	)

	switch e := event.(type) {
	case *ethereum.CollectionCreatedEvent:
		name = ethereum.EventCollectionCreated
		err = s.onCollectionCreated(ctx, e)
	case *ethereum.NFTMintedEvent:
		name = ethereum.EventNFTMinted
		err = s.onMinted(ctx, e)
	case *ethereum.NFTPriceSetEvent:
		name = ethereum.EventNFTPriceSet
		err = s.mergeResult(ctx, func() (*entities.NFT, error) {
			return s.records.SetFixedPrice(ctx, repositories.SetFixedPriceInput{
				TokenRef: tokenRef(e.Raw.Address, e.TokenId),
				Price:    toDecimalAmount(e.Price),
			})
		})
	case *ethereum.AuctionStartedEvent:
		name = ethereum.EventAuctionStarted
		err = s.onAuctionStarted(ctx, e)
	case *ethereum.NewBidPlacedEvent:
		name = ethereum.EventNewBidPlaced
		err = s.mergeResult(ctx, func() (*entities.NFT, error) {
			return s.records.RecordBid(ctx, repositories.RecordBidInput{
				TokenRef: tokenRef(e.Raw.Address, e.TokenId),
				Bidder:   e.Bidder.Hex(),
				Price:    toDecimalAmount(e.Amount),
				Date:     at,
				TxHash:   e.Raw.TxHash.Hex(),
			})
		})
	case *ethereum.AuctionEndedEvent:
		name = ethereum.EventAuctionEnded
		err = s.mergeResult(ctx, func() (*entities.NFT, error) {
			return s.records.RecordAuctionEnd(ctx, repositories.RecordAuctionEndInput{
				TokenRef: tokenRef(e.Raw.Address, e.TokenId),
				Winner:   e.Winner.Hex(),
				Price:    toDecimalAmount(e.Amount),
			})
		})
	case *ethereum.NFTSoldEvent:
		name = ethereum.EventNFTSold
		err = s.mergeResult(ctx, func() (*entities.NFT, error) {
			return s.records.RecordPurchase(ctx, repositories.RecordPurchaseInput{
				TokenRef: tokenRef(e.Raw.Address, e.TokenId),
				Buyer:    e.Buyer.Hex(),
				Price:    toDecimalAmount(e.Price),
				TxHash:   e.Raw.TxHash.Hex(),
			})
		})
	default:
		return fmt.Errorf("unsupported event %T", event)
	}

	raw := ethereum.RawLog(event)
	if err != nil {
		s.metrics.EventsFailed.WithLabelValues(name).Inc()
		s.logger.Error("Failed to sync event",
			zap.String("event", name),
			zap.String("contract", raw.Address.Hex()),
			zap.Uint64("block", raw.BlockNumber),
			zap.String("tx", raw.TxHash.Hex()),
			zap.Error(err),
		)
		s.reportBackendError(ctx, err)
		return err
	}

	s.metrics.EventsProcessed.WithLabelValues(name).Inc()
	s.logger.Debug("Synced event",
		zap.String("event", name),
		zap.String("contract", raw.Address.Hex()),
		zap.Uint64("block", raw.BlockNumber),
	)
	return nil
}

// reportBackendError sends each backend message to the user as its own
// notification
func (s *SyncService) reportBackendError(ctx context.Context, err error) {
	var backendErr *entities.BackendError
	if s.sink == nil || !errors.As(err, &backendErr) {
		return
	}
	for _, msg := range backendErr.Messages {
		s.sink.Notify(ctx, msg, notify.SeverityError)
	}
}

func (s *SyncService) onCollectionCreated(ctx context.Context, e *ethereum.CollectionCreatedEvent) error {
	// New collections are watched even if the backend write fails
	s.watchDiscovered(e.Collection, e.Name)

	col, err := s.records.CreateCollection(ctx, repositories.CreateCollectionInput{
		Name:            e.Name,
		Symbol:          e.Symbol,
		Owner:           e.Owner.Hex(),
		ContractAddress: e.Collection.Hex(),
		MetadataURI:     e.MetadataURI,
	})
	if err != nil {
		return err
	}

	rec := *col
	if s.enricher != nil && rec.NeedsMetadata() {
		rec = s.enricher.EnrichCollections(ctx, []entities.Collection{rec})[0]
	}
	s.store.MergeCollection(rec)
	return nil
}

func (s *SyncService) onMinted(ctx context.Context, e *ethereum.NFTMintedEvent) error {
	if e.Royalty == nil || !e.Royalty.IsInt64() {
		return entities.NewValidationError("royalty", "royalty out of range")
	}

	symbol, _ := currency.NativeSymbol(s.chainID)
	return s.mergeResult(ctx, func() (*entities.NFT, error) {
		return s.records.CreateNFT(ctx, repositories.CreateNFTInput{
			Owner:      e.Owner.Hex(),
			TokenID:    tokenRef(e.Raw.Address, e.TokenId).TokenID,
			TokenURI:   e.TokenURI,
			Royalty:    int(e.Royalty.Int64()),
			Collection: e.Raw.Address.Hex(),
			Currency:   symbol,
		})
	})
}

func (s *SyncService) onAuctionStarted(ctx context.Context, e *ethereum.AuctionStartedEvent) error {
	if e.EndTime == nil || !e.EndTime.IsInt64() {
		return entities.NewValidationError("endTime", "auction end time out of range")
	}

	return s.mergeResult(ctx, func() (*entities.NFT, error) {
		return s.records.SetAuction(ctx, repositories.SetAuctionInput{
			TokenRef:   tokenRef(e.Raw.Address, e.TokenId),
			StartBid:   toDecimalAmount(e.StartBid),
			BidEndDate: time.Unix(e.EndTime.Int64(), 0).UTC(),
		})
	})
}

// mergeResult runs a backend write and merges the returned record
func (s *SyncService) mergeResult(ctx context.Context, write func() (*entities.NFT, error)) error {
	nft, err := write()
	if err != nil {
		return err
	}
	if nft == nil {
		return errors.New("backend returned no record")
	}

	rec := *nft
	if s.enricher != nil && rec.NeedsMetadata() {
		rec = s.enricher.Enrich(ctx, []entities.NFT{rec})[0]
	}
	s.store.MergeNFT(rec)
	return nil
}

// watchDiscovered starts watching a collection found at runtime
func (s *SyncService) watchDiscovered(address common.Address, name string) {
	s.mu.Lock()
	base := s.baseCtx
	s.mu.Unlock()

	if base == nil || base.Err() != nil {
		return
	}

	_, err := s.Watch(base, ethereum.Target{
		Name:    "collection:" + name,
		Address: address,
		ABI:     &ethereum.CollectionABI,
	})
	if err != nil {
		s.logger.Warn("Failed to watch collection", zap.String("address", address.Hex()), zap.Error(err))
	}
}

// CatchUp replays the logs of target from its checkpoint up to the chain
// head. The checkpoint only moves up to the confirmed block, so the
// unconfirmed tail is replayed again on the next run.
func (s *SyncService) CatchUp(ctx context.Context, target ethereum.Target) error {
	_, err := s.catchUp(ctx, target)
	return err
}

// catchUp returns the last block it covered, or -1 when replay is disabled
func (s *SyncService) catchUp(ctx context.Context, target ethereum.Target) (int64, error) {
	if s.fetcher == nil || s.checkpoints == nil {
		return -1, nil
	}

	addr := target.Address.Hex()

	cp, err := s.checkpoints.Get(ctx, addr)
	if err != nil {
		return 0, fmt.Errorf("failed to get checkpoint: %w", err)
	}

	fromBlock := s.config.StartBlock
	if cp == nil {
		if err := s.checkpoints.Upsert(ctx, &entities.SyncCheckpoint{
			ContractAddress: addr,
			ContractName:    target.Name,
			LastSyncedBlock: fromBlock - 1,
		}); err != nil {
			return 0, fmt.Errorf("failed to create checkpoint: %w", err)
		}
	} else {
		fromBlock = cp.LastSyncedBlock + 1
	}

	head, err := s.fetcher.GetHeadBlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get head block number: %w", err)
	}
	if fromBlock > head {
		// Already up to date
		return head, nil
	}
	safeBlock := s.fetcher.SafeBlock(head)

	ranges := ethereum.SplitBlockRange(fromBlock, head, s.config.BatchSize)
	total := 0

	for i, r := range ranges {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
		}

		start := time.Now()
		result, err := s.fetcher.FetchEvents(ctx, target.Address, target.ABI, r.From, r.To)
		if err != nil {
			return 0, fmt.Errorf("failed to fetch events for blocks %d-%d: %w", r.From, r.To, err)
		}

		for _, fe := range result.Events {
			// Failures are logged and counted by apply
			_ = s.apply(ctx, fe.Event, fe.Timestamp)
		}

		mark := min(r.To, safeBlock)
		if err := s.checkpoints.Advance(ctx, addr, mark, int64(len(result.Events))); err != nil {
			return 0, fmt.Errorf("failed to update checkpoint: %w", err)
		}

		total += len(result.Events)
		s.metrics.LastSyncedBlock.WithLabelValues(strings.ToLower(addr)).Set(float64(mark))
		s.metrics.CatchUpLatency.Observe(time.Since(start).Seconds())

		s.logger.Debug("Replayed block range",
			zap.String("contract", addr),
			zap.Int("batch", i+1),
			zap.Int("total_batches", len(ranges)),
			zap.Int64("from", r.From),
			zap.Int64("to", r.To),
			zap.Int("events", len(result.Events)),
		)
	}

	s.logger.Info("Catch-up completed",
		zap.String("contract", addr),
		zap.Int64("from_block", fromBlock),
		zap.Int64("to_block", head),
		zap.Int64("safe_block", safeBlock),
		zap.Int("events", total),
	)
	return head, nil
}

func (s *SyncService) advance(ctx context.Context, target ethereum.Target, block int64, events int64) {
	if s.checkpoints == nil {
		return
	}

	addr := target.Address.Hex()
	if err := s.checkpoints.Advance(ctx, addr, block, events); err != nil {
		s.logger.Warn("Failed to advance checkpoint", zap.String("contract", addr), zap.Error(err))
		return
	}
	s.metrics.LastSyncedBlock.WithLabelValues(strings.ToLower(addr)).Set(float64(block))
}

// Refresh reloads the collection and NFT lists from the backend, merges them
// into the catalog and watches every known collection
func (s *SyncService) Refresh(ctx context.Context) error {
	since := s.store.Version()

	cols, err := s.records.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	for _, c := range cols {
		addr, err := ethereum.ParseAddress(c.ContractAddress)
		if err != nil {
			s.logger.Warn("Skipping collection with bad address", zap.String("address", c.ContractAddress))
			continue
		}
		s.watchDiscovered(addr, c.Name)
	}

	workers := s.config.WorkerCount
	if workers <= 0 {
		workers = 1
	}

	lists := make([][]entities.NFT, len(cols))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, c := range cols {
		i, c := i, c
		g.Go(func() error {
			nfts, err := s.records.ListCollectionNFTs(gCtx, c.ContractAddress)
			if err != nil {
				return fmt.Errorf("failed to list NFTs of %s: %w", c.ContractAddress, err)
			}
			lists[i] = nfts
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	nfts := make([]entities.NFT, 0)
	for _, l := range lists {
		nfts = append(nfts, l...)
	}

	if s.enricher != nil {
		cols = s.enricher.EnrichCollections(ctx, cols)
		nfts = s.enricher.Enrich(ctx, nfts)
	}

	// Live events merged while the lists were loading are newer
	s.store.MergeCollections(cols, since)
	s.store.MergeNFTs(nfts, since)

	s.logger.Info("Catalog loaded",
		zap.Int("collections", len(cols)),
		zap.Int("nfts", len(nfts)),
	)
	return nil
}

// RefreshAccount loads the collections created by and the NFTs owned by the
// connected wallet and merges them into the catalog. It is a no-op without a
// wallet.
func (s *SyncService) RefreshAccount(ctx context.Context) error {
	account, ok := s.session.Account()
	if !ok {
		return nil
	}
	owner := account.Hex()
	since := s.store.Version()

	var (
		cols []entities.Collection
		nfts []entities.NFT
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		list, err := s.records.ListCollectionsByOwner(gCtx, owner)
		if err != nil {
			return fmt.Errorf("failed to list collections of %s: %w", owner, err)
		}
		cols = list
		return nil
	})
	g.Go(func() error {
		list, err := s.records.ListNFTsByOwner(gCtx, owner)
		if err != nil {
			return fmt.Errorf("failed to list NFTs of %s: %w", owner, err)
		}
		nfts = list
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	for _, c := range cols {
		if addr, err := ethereum.ParseAddress(c.ContractAddress); err == nil {
			s.watchDiscovered(addr, c.Name)
		}
	}

	if s.enricher != nil {
		cols = s.enricher.EnrichCollections(ctx, cols)
		nfts = s.enricher.Enrich(ctx, nfts)
	}

	s.store.MergeCollections(cols, since)
	s.store.MergeNFTs(nfts, since)

	s.logger.Info("Wallet records loaded",
		zap.String("owner", owner),
		zap.Int("collections", len(cols)),
		zap.Int("nfts", len(nfts)),
	)
	return nil
}

func tokenRef(collection common.Address, tokenID *big.Int) repositories.TokenRef {
	id := "0"
	if tokenID != nil {
		id = tokenID.String()
	}
	return repositories.TokenRef{Collection: collection.Hex(), TokenID: id}
}

func toDecimalAmount(v *big.Int) decimal.Decimal {
	return currency.ToDecimal(currency.NewWei(v))
}
