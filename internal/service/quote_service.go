package service

import (
	"context"
	"fmt"
	"log"

	"github.com/shopspring/decimal"

	"github.com/account-rollup/internal/models"
)

// QuoteStore reads quote rows from the relational store.
type QuoteStore interface {
	GetBySymbol(ctx context.Context, symbol string) (*models.Quote, error)
}

// PriceCache is the hot-path price cache in front of the quote rows.
type PriceCache interface {
	GetPrice(ctx context.Context, symbol string) (decimal.Decimal, bool, error)
	SetPrice(ctx context.Context, symbol string, price decimal.Decimal) error
}

// QuoteService serves latest prices cache-aside: Redis first, quotes
// table on a miss, cache repopulated after the fallback. Cache failures
// degrade to the relational read and never fail the request.
type QuoteService struct {
	quoteRepo QuoteStore
	cache     PriceCache
}

// NewQuoteService creates a new quote service
func NewQuoteService(quoteRepo QuoteStore, cache PriceCache) *QuoteService {
	return &QuoteService{quoteRepo: quoteRepo, cache: cache}
}

// Price returns the latest known price for a symbol. The second return
// value reports whether the symbol is known at all.
func (s *QuoteService) Price(ctx context.Context, symbol string) (decimal.Decimal, bool, error) {
	if s.cache != nil {
		price, hit, err := s.cache.GetPrice(ctx, symbol)
		if err != nil {
			log.Printf("[Quote] Cache read failed for %s, falling back: %v", symbol, err)
		} else if hit {
			return price, true, nil
		}
	}

	quote, err := s.quoteRepo.GetBySymbol(ctx, symbol)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("failed to load quote for %s: %w", symbol, err)
	}
	if quote == nil {
		return decimal.Zero, false, nil
	}

	if s.cache != nil {
		if err := s.cache.SetPrice(ctx, symbol, quote.Price); err != nil {
			log.Printf("[Quote] Cache write failed for %s: %v", symbol, err)
		}
	}

	return quote.Price, true, nil
}
