// Package pipeline moves order requests through matching, settlement
// submission and confirmation. Three stages run over channels:
//
//	intake  -> book operations; matched trades pass a dry-run gate
//	submit  -> bounded workers broadcast trade transactions
//	confirm -> bounded polling resolves receipts into book outcomes
//
// Every failure downstream of a match compensates through the same path:
// the pending trade is resolved as failed so no order stays stuck in flight.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/junhoyeo/dexmatch/pkg/book"
	"github.com/junhoyeo/dexmatch/pkg/feed"
	"github.com/junhoyeo/dexmatch/pkg/order"
	"github.com/junhoyeo/dexmatch/pkg/settle"
	"github.com/junhoyeo/dexmatch/pkg/util"
)

// ErrShuttingDown is returned by Enqueue once Run's context is cancelled.
var ErrShuttingDown = errors.New("pipeline shutting down")

// Config bounds the pipeline's concurrency and patience.
type Config struct {
	// SubmitWorkers caps concurrent trade broadcasts. All trades go out
	// from a single signer account, so concurrency here is concurrency on
	// its nonce sequence; keep it modest.
	SubmitWorkers int
	PollAttempts  int
	PollInterval  time.Duration
	QueueSize     int
}

func (c Config) withDefaults() Config {
	if c.SubmitWorkers <= 0 {
		c.SubmitWorkers = 20
	}
	if c.PollAttempts <= 0 {
		c.PollAttempts = 10
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	return c
}

type pendingTx struct {
	txHash common.Hash
	match  order.Match
	sentAt time.Time
}

// Pipeline owns the stage goroutines. Build with New, start with Run,
// feed with Enqueue.
type Pipeline struct {
	book    *book.OrderBook
	exec    settle.Executor
	pub     feed.Publisher
	clock   util.Clock
	log     *zap.Logger
	cfg     Config
	metrics *Metrics

	intake  chan *order.Request
	submit  chan order.Match
	confirm chan pendingTx

	closing chan struct{}
	once    sync.Once
}

func New(b *book.OrderBook, exec settle.Executor, pub feed.Publisher, clock util.Clock, metrics *Metrics, log *zap.Logger, cfg Config) *Pipeline {
	cfg = cfg.withDefaults()
	return &Pipeline{
		book:    b,
		exec:    exec,
		pub:     pub,
		clock:   clock,
		log:     log,
		cfg:     cfg,
		metrics: metrics,
		intake:  make(chan *order.Request, cfg.QueueSize),
		submit:  make(chan order.Match, cfg.QueueSize),
		confirm: make(chan pendingTx, cfg.QueueSize),
		closing: make(chan struct{}),
	}
}

// Enqueue validates and queues a request. It blocks while the intake queue
// is full and fails once shutdown begins.
func (p *Pipeline) Enqueue(ctx context.Context, req *order.Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	select {
	case <-p.closing:
		return ErrShuttingDown
	default:
	}
	select {
	case p.intake <- req:
		return nil
	case <-p.closing:
		return ErrShuttingDown
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes requests until ctx is cancelled, then drains every stage:
// queued requests are routed, in-flight submissions broadcast, and pending
// receipts polled to resolution before Run returns.
func (p *Pipeline) Run(ctx context.Context) {
	var submitWG, confirmWG sync.WaitGroup

	for i := 0; i < p.cfg.SubmitWorkers; i++ {
		submitWG.Add(1)
		go func() {
			defer submitWG.Done()
			p.submitWorker()
		}()
	}
	for i := 0; i < p.cfg.SubmitWorkers; i++ {
		confirmWG.Add(1)
		go func() {
			defer confirmWG.Done()
			p.confirmWorker()
		}()
	}

	// Intake runs on this goroutine so cancellation and drain stay ordered:
	// stop accepting, finish routing, then let downstream stages empty.
	for {
		select {
		case <-ctx.Done():
			p.once.Do(func() { close(p.closing) })
			p.drainIntake()
			close(p.submit)
			submitWG.Wait()
			close(p.confirm)
			confirmWG.Wait()
			return
		case req := <-p.intake:
			p.route(req)
		}
	}
}

func (p *Pipeline) drainIntake() {
	for {
		select {
		case req := <-p.intake:
			p.route(req)
		default:
			return
		}
	}
}

// route is stage one. Book operations execute inline; matched trades pass
// the dry-run gate before entering the submission queue.
func (p *Pipeline) route(req *order.Request) {
	ctx := context.Background()
	p.metrics.RequestsTotal.WithLabelValues(string(req.Action)).Inc()

	switch req.Action {
	case order.ActionTrade:
		p.admit(ctx, *req.Match)
		return
	case order.ActionConfirmedTrade, order.ActionFailedTrade:
		if _, err := p.book.HandleRequest(ctx, req); err != nil {
			p.metrics.RequestErrors.WithLabelValues(string(req.Action)).Inc()
			p.log.Warn("trade resolution failed",
				zap.String("action", string(req.Action)),
				zap.String("trade_id", req.Match.PendingTradeID),
				zap.Error(err),
			)
			return
		}
		kind := feed.EventTradeConfirmed
		if req.Action == order.ActionFailedTrade {
			kind = feed.EventTradeFailed
		}
		p.publish(ctx, kind, *req.Match, req.TxHash)
		return
	}

	matches, err := p.book.HandleRequest(ctx, req)
	if err != nil {
		p.metrics.RequestErrors.WithLabelValues(string(req.Action)).Inc()
		p.log.Warn("request failed",
			zap.String("action", string(req.Action)),
			zap.Error(err),
		)
		return
	}
	for i := range matches {
		p.admit(ctx, matches[i])
	}
}

// admit gates one matched trade through simulation. A rejected or failed
// dry run compensates immediately; the trade never reaches a worker.
func (p *Pipeline) admit(ctx context.Context, m order.Match) {
	ok, err := p.exec.Simulate(ctx, &m)
	if err != nil {
		p.log.Warn("trade simulation errored",
			zap.String("trade_id", m.PendingTradeID),
			zap.Error(err),
		)
	}
	if !ok {
		p.metrics.SimulateRejections.Inc()
		p.compensate(ctx, m, "simulate")
		return
	}
	p.publish(ctx, feed.EventTradePending, m, "")
	p.metrics.SubmitQueueDepth.Inc()
	p.submit <- m
}

// submitWorker is stage two: broadcast one trade at a time.
func (p *Pipeline) submitWorker() {
	for m := range p.submit {
		p.metrics.SubmitQueueDepth.Dec()
		ctx := context.Background()
		txHash, err := p.exec.Execute(ctx, &m)
		if err != nil {
			p.log.Warn("trade submission failed",
				zap.String("trade_id", m.PendingTradeID),
				zap.Error(err),
			)
			p.compensate(ctx, m, "submit")
			continue
		}
		p.metrics.TradesSubmitted.Inc()
		p.confirm <- pendingTx{txHash: txHash, match: m, sentAt: p.clock.Now()}
	}
}

// confirmWorker is stage three: poll for a receipt a bounded number of
// times, then resolve the trade either way. A transaction that is still
// unmined after the last attempt is treated as failed; if it lands later
// the operator replays it as a confirmed trade.
func (p *Pipeline) confirmWorker() {
	for pt := range p.confirm {
		ctx := context.Background()
		receipt := p.awaitReceipt(ctx, pt.txHash)
		p.metrics.SettleSeconds.Observe(p.clock.Now().Sub(pt.sentAt).Seconds())

		switch {
		case receipt == nil:
			p.log.Warn("trade receipt timed out",
				zap.String("trade_id", pt.match.PendingTradeID),
				zap.String("tx_hash", pt.txHash.Hex()),
			)
			p.compensate(ctx, pt.match, "receipt_timeout")
		case !receipt.Succeeded:
			p.log.Warn("trade reverted on-chain",
				zap.String("trade_id", pt.match.PendingTradeID),
				zap.String("tx_hash", pt.txHash.Hex()),
				zap.Uint64("block", receipt.BlockNumber),
			)
			p.compensate(ctx, pt.match, "reverted")
		default:
			if err := p.book.ResolveTrade(ctx, pt.match.PendingTradeID, book.OutcomeConfirmed); err != nil {
				p.log.Error("confirmed trade resolution failed",
					zap.String("trade_id", pt.match.PendingTradeID),
					zap.Error(err),
				)
				continue
			}
			p.metrics.TradesConfirmed.Inc()
			p.publish(ctx, feed.EventTradeConfirmed, pt.match, pt.txHash.Hex())
			p.log.Info("trade confirmed",
				zap.String("trade_id", pt.match.PendingTradeID),
				zap.String("tx_hash", pt.txHash.Hex()),
				zap.Uint64("block", receipt.BlockNumber),
			)
		}
	}
}

func (p *Pipeline) awaitReceipt(ctx context.Context, txHash common.Hash) *settle.Receipt {
	for attempt := 0; attempt < p.cfg.PollAttempts; attempt++ {
		if attempt > 0 {
			<-p.clock.After(p.cfg.PollInterval)
		}
		receipt, err := p.exec.PollReceipt(ctx, txHash)
		if err != nil {
			p.log.Warn("receipt poll failed",
				zap.String("tx_hash", txHash.Hex()),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}
		if receipt != nil {
			return receipt
		}
	}
	return nil
}

// compensate resolves a trade as failed so its orders leave the in-flight
// state. Used uniformly by every post-match failure path.
func (p *Pipeline) compensate(ctx context.Context, m order.Match, stage string) {
	p.metrics.TradesFailed.WithLabelValues(stage).Inc()
	if err := p.book.ResolveTrade(ctx, m.PendingTradeID, book.OutcomeFailed); err != nil {
		p.log.Error("trade compensation failed",
			zap.String("trade_id", m.PendingTradeID),
			zap.String("stage", stage),
			zap.Error(err),
		)
		return
	}
	p.publish(ctx, feed.EventTradeFailed, m, "")
}

func (p *Pipeline) publish(ctx context.Context, kind feed.EventKind, m order.Match, txHash string) {
	ticker, err := p.book.Markets().TickerFor(m.BaseToken, m.QuoteToken)
	if err != nil {
		ticker = fmt.Sprintf("%s/%s", m.BaseToken.Hex(), m.QuoteToken.Hex())
	}
	event := feed.TradeEvent{
		Kind:           kind,
		PendingTradeID: m.PendingTradeID,
		Ticker:         ticker,
		MakerOrderID:   m.MakerOrderID,
		TakerOrderID:   m.TakerOrderID,
		BaseAmount:     m.BaseAmountFilled.String(),
		QuoteAmount:    m.QuoteAmountFilled.String(),
		TxHash:         txHash,
		Timestamp:      p.clock.Now().Unix(),
	}
	if err := p.pub.Publish(ctx, event); err != nil {
		p.log.Warn("trade event publish failed",
			zap.String("trade_id", m.PendingTradeID),
			zap.Error(err),
		)
	}
}
