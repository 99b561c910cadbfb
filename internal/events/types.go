// internal/events/types.go
package events

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// EventType represents the type of event.
type EventType string

const (
	// Market events
	PaymentReceived   EventType = "market.payment"
	SwapExecuted      EventType = "market.swap"
	BuybackExecuted   EventType = "market.buyback"
	MarketMigrated    EventType = "market.migrated"
	AuthorityRevoked  EventType = "market.authority_revoked"
	ReflectionSettled EventType = "reflection.settled"
	ReflectionClaimed EventType = "reflection.claimed"

	// Collaborator events
	ReferralFeesClaimed EventType = "referral.claimed"
	AirdropClaimed      EventType = "airdrop.claimed"
	AirdropExpired      EventType = "airdrop.expired"
)

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common fields for all events.
type BaseEvent struct {
	EventType EventType `json:"type"`
	EventTime time.Time `json:"time"`
}

// Type returns the event type.
func (e BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// NewBase stamps an event of type t at now.
func NewBase(t EventType, now time.Time) BaseEvent {
	return BaseEvent{EventType: t, EventTime: now}
}

// Swap directions. Only buys exist.
const DirectionBuy = "buy"

// PaymentEvent confirms the buyer's payment reached the market, before fees.
type PaymentEvent struct {
	BaseEvent
	User        solana.PublicKey `json:"user"`
	Market      solana.PublicKey `json:"market"`
	QuoteAmount uint64           `json:"quote_amount"`
	BaseAmount  uint64           `json:"base_amount"`
}

// SwapEvent is emitted for every completed purchase.
type SwapEvent struct {
	BaseEvent
	User         solana.PublicKey `json:"user"`
	Market       solana.PublicKey `json:"market"`
	Direction    string           `json:"direction"`
	BaseAmount   uint64           `json:"base_amount"`
	QuoteAmount  uint64           `json:"quote_amount"`
	CreatorFee   uint64           `json:"creator_fee"`
	ProtocolFee  uint64           `json:"protocol_fee"`
	ReferralFee  uint64           `json:"referral_fee"`
	StakingFee   uint64           `json:"staking_fee"` // always zero
	ReferralPaid string           `json:"referral_paid,omitempty"`
}

// BuybackEvent records buyback spend.
type BuybackEvent struct {
	BaseEvent
	Market        solana.PublicKey `json:"market"`
	LamportsSpent uint64           `json:"lamports_spent"`
	TokensBought  uint64           `json:"tokens_bought"`
}

// MigrationEvent is emitted once per market.
type MigrationEvent struct {
	BaseEvent
	Market               solana.PublicKey `json:"market"`
	TriggeredBy          solana.PublicKey `json:"triggered_by"`
	TotalBuybackLamports uint64           `json:"total_buyback_lamports"`
	CreatorPaid          uint64           `json:"creator_paid"`
}

// AuthorityRevokedEvent is emitted when mint and freeze authority are dropped.
type AuthorityRevokedEvent struct {
	BaseEvent
	Market    solana.PublicKey `json:"market"`
	RevokedBy solana.PublicKey `json:"revoked_by"`
}

// ReflectionSettledEvent records tokens credited to the pool.
type ReflectionSettledEvent struct {
	BaseEvent
	Market      solana.PublicKey `json:"market"`
	AddedTokens uint64           `json:"added_tokens"`
	PerShare    string           `json:"per_share"`
}

// ReflectionClaimedEvent records a holder's payout.
type ReflectionClaimedEvent struct {
	BaseEvent
	Market solana.PublicKey `json:"market"`
	Holder solana.PublicKey `json:"holder"`
	Amount uint64           `json:"amount"`
}

// ReferralClaimEvent records referral fees paid to a referrer.
type ReferralClaimEvent struct {
	BaseEvent
	Referrer        solana.PublicKey `json:"referrer"`
	QuoteMint       solana.PublicKey `json:"quote_mint"`
	FeesDistributed uint64           `json:"fees_distributed"`
}

// AirdropClaimedEvent records one airdrop allocation paid.
type AirdropClaimedEvent struct {
	BaseEvent
	Airdrop  solana.PublicKey `json:"airdrop"`
	Claimant solana.PublicKey `json:"claimant"`
	Index    uint64           `json:"index"`
	Amount   uint64           `json:"amount"`
}

// AirdropExpiredEvent summarizes expiry processing.
type AirdropExpiredEvent struct {
	BaseEvent
	Airdrop   solana.PublicKey `json:"airdrop"`
	Burned    uint64           `json:"burned"`
	Swapped   uint64           `json:"swapped"`
	Forwarded bool             `json:"forwarded"`
}
