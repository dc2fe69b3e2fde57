package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProgrammeRecord is one advertiser relationship as last observed for a
// network and country. The (network, advertiser_id, country) triple is
// unique.
type ProgrammeRecord struct {
	Network      string
	AdvertiserID string
	Name         string
	Status       string
	Relationship string
	Country      string
	FirstSeen    time.Time
	LastSeen     time.Time
}

// AlertLogEntry is one append-only audit row. It is written for every
// dispatch attempt whether or not the email went out.
type AlertLogEntry struct {
	ID           int64
	TS           time.Time
	Event        string
	Country      string
	AdvertiserID *string
	Name         string
	Details      string
	EmailSent    bool
	EmailInfo    string
}

// EarningsRow is one network's normalized result within a snapshot run.
type EarningsRow struct {
	RunID          uuid.UUID
	RunAt          time.Time
	Network        string
	WindowStart    time.Time
	WindowEnd      time.Time
	Countries      []string
	SubIDs         []string
	SubIDContains  bool
	Currency       string
	SourceCurrency string
	FXRate         decimal.Decimal
	Total          decimal.Decimal
	Confirmed      decimal.Decimal
	Pending        decimal.Decimal
	RawRows        int
	FilteredRows   int
	Reason         string
	CreatedAt      time.Time
}
