package domain

import (
	"context"
	"time"
)

// Fund identifies one member of the investable universe
type Fund struct {
	Name        string        `json:"name"`
	Ticker      string        `json:"ticker"`
	Category    string        `json:"category"`
	BackupFile  string        `json:"backup_file,omitempty"`
	Description string        `json:"description,omitempty"`
	Metadata    *FundMetadata `json:"metadata,omitempty"`
}

// FundMetadata is display-only information about a fund
type FundMetadata struct {
	LongName      string  `json:"long_name,omitempty" msgpack:"long_name"`
	Exchange      string  `json:"exchange,omitempty" msgpack:"exchange"`
	QuoteType     string  `json:"quote_type,omitempty" msgpack:"quote_type"`
	ExpenseRatio  float64 `json:"expense_ratio,omitempty" msgpack:"expense_ratio"`
	FundSize      string  `json:"fund_size,omitempty" msgpack:"fund_size"`
	FundManager   string  `json:"fund_manager,omitempty" msgpack:"fund_manager"`
	InceptionDate string  `json:"inception_date,omitempty" msgpack:"inception_date"`
}

// Merge fills the empty fields of m from other
func (m FundMetadata) Merge(other FundMetadata) FundMetadata {
	if m.LongName == "" {
		m.LongName = other.LongName
	}
	if m.Exchange == "" {
		m.Exchange = other.Exchange
	}
	if m.QuoteType == "" {
		m.QuoteType = other.QuoteType
	}
	if m.ExpenseRatio == 0 {
		m.ExpenseRatio = other.ExpenseRatio
	}
	if m.FundSize == "" {
		m.FundSize = other.FundSize
	}
	if m.FundManager == "" {
		m.FundManager = other.FundManager
	}
	if m.InceptionDate == "" {
		m.InceptionDate = other.InceptionDate
	}
	return m
}

// PriceSource fetches a price history for a fund over [from, to].
// Implementations are the live market client and the backup snapshot stores.
type PriceSource interface {
	FetchHistory(ctx context.Context, fund Fund, from, to time.Time) (PriceSeries, error)
	Name() string
}

// MetadataSource is implemented by price sources that can also describe a fund
type MetadataSource interface {
	FetchMetadata(ctx context.Context, fund Fund) (FundMetadata, error)
}
