package services

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"lottery-bot/internal/clients"
	"lottery-bot/internal/metrics"
	"lottery-bot/internal/models"
)

const (
	// historyWindow is the block span of one event scan.
	historyWindow = 1024
	// historyMaxWindows caps worst-case RPC volume for one report.
	historyMaxWindows = 40
	// historyMaxRounds stops the scan once enough rounds were found.
	historyMaxRounds = 10
	// historyFanout bounds concurrent per-round view calls.
	historyFanout = 4
)

// HistoryService rebuilds a user's participation history from EnteredMarket
// logs. Each report is a one-shot scan; nothing is cached between requests.
type HistoryService struct {
	client *clients.LotteryClient
	logger *logrus.Logger
}

// NewHistoryService creates a history reconstructor.
func NewHistoryService(client *clients.LotteryClient, logger *logrus.Logger) *HistoryService {
	return &HistoryService{client: client, logger: logger}
}

// Reconstruct scans backward from the current block in fixed windows until
// historyMaxRounds distinct rounds were collected or historyMaxWindows
// windows were scanned, whichever comes first. Round ids keep first-seen
// order: windows run newest to oldest, and events within a window are
// reversed so each window contributes in chronological order. The user's
// stake per round sums every matching event, then pool and winner are
// filled in with bounded concurrent view calls.
func (h *HistoryService) Reconstruct(ctx context.Context, user common.Address) ([]*models.RoundRecord, error) {
	metrics.HistoryScans.Inc()

	latest, err := h.client.BlockNumber(ctx)
	if err != nil {
		return nil, err
	}

	var (
		records    []*models.RoundRecord
		indexByKey = make(map[string]int)
		allEvents  []clients.EnteredMarketEvent
		windows    int
	)

	cursor := latest
	for len(records) < historyMaxRounds && windows < historyMaxWindows {
		var fromBlock uint64
		if cursor > historyWindow {
			fromBlock = cursor - historyWindow
		}

		events, err := h.client.EnteredMarketLogs(ctx, user, fromBlock, cursor)
		if err != nil {
			return nil, err
		}
		windows++

		// Newest events come last in the window; reverse so first-seen
		// order within the window is chronological.
		for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
			events[i], events[j] = events[j], events[i]
		}
		for _, ev := range events {
			key := ev.MarketID.String()
			if _, seen := indexByKey[key]; !seen {
				// The round cap holds inside a dense window too: once
				// it is reached, events for uncollected rounds are
				// dropped entirely so they cannot leak into stakes.
				if len(records) >= historyMaxRounds {
					continue
				}
				indexByKey[key] = len(records)
				records = append(records, &models.RoundRecord{
					MarketID:  ev.MarketID,
					UserStake: new(big.Int),
				})
			}
			allEvents = append(allEvents, ev)
		}

		if cursor <= historyWindow {
			break // reached genesis
		}
		cursor -= historyWindow + 1
	}
	metrics.HistoryWindowsScanned.Observe(float64(windows))

	for _, ev := range allEvents {
		rec := records[indexByKey[ev.MarketID.String()]]
		rec.UserStake.Add(rec.UserStake, ev.Amount)
	}

	// Pool and winner lookups are independent reads; fan out with a cap.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(historyFanout)
	for _, rec := range records {
		rec := rec
		g.Go(func() error {
			pool, err := h.client.RoundPool(gctx, user, rec.MarketID)
			if err != nil {
				return err
			}
			winner, err := h.client.RoundWinner(gctx, user, rec.MarketID)
			if err != nil {
				return err
			}
			rec.PoolAmount = pool
			rec.Winner = winner
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	h.logger.WithFields(logrus.Fields{
		"user":    user.Hex(),
		"windows": windows,
		"rounds":  len(records),
		"events":  len(allEvents),
	}).Info("history reconstructed")

	return records, nil
}
