// internal/export/record.go
package export

import (
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/rovshanmuradov/tokenmill/internal/events"
)

// Record is one event flattened to a row. Amount columns that do not apply
// to the event type stay zero.
type Record struct {
	Time        time.Time        `json:"time"`
	Type        events.EventType `json:"type"`
	Market      string           `json:"market,omitempty"`
	Actor       string           `json:"actor,omitempty"`
	BaseAmount  uint64           `json:"base_amount"`
	QuoteAmount uint64           `json:"quote_amount"`
	CreatorFee  uint64           `json:"creator_fee"`
	ProtocolFee uint64           `json:"protocol_fee"`
	ReferralFee uint64           `json:"referral_fee"`
	Detail      string           `json:"detail,omitempty"`
}

func key(k solana.PublicKey) string {
	if k.IsZero() {
		return ""
	}
	return k.String()
}

// Flatten maps a market event onto a Record.
func Flatten(e events.Event) Record {
	r := Record{Time: e.Timestamp(), Type: e.Type()}

	switch ev := e.(type) {
	case *events.PaymentEvent:
		r.Market, r.Actor = key(ev.Market), key(ev.User)
		r.BaseAmount, r.QuoteAmount = ev.BaseAmount, ev.QuoteAmount
	case *events.SwapEvent:
		r.Market, r.Actor = key(ev.Market), key(ev.User)
		r.BaseAmount, r.QuoteAmount = ev.BaseAmount, ev.QuoteAmount
		r.CreatorFee, r.ProtocolFee, r.ReferralFee = ev.CreatorFee, ev.ProtocolFee, ev.ReferralFee
		r.Detail = ev.ReferralPaid
	case *events.BuybackEvent:
		r.Market = key(ev.Market)
		r.BaseAmount, r.QuoteAmount = ev.TokensBought, ev.LamportsSpent
	case *events.MigrationEvent:
		r.Market, r.Actor = key(ev.Market), key(ev.TriggeredBy)
		r.QuoteAmount = ev.TotalBuybackLamports
		r.CreatorFee = ev.CreatorPaid
	case *events.AuthorityRevokedEvent:
		r.Market, r.Actor = key(ev.Market), key(ev.RevokedBy)
	case *events.ReflectionSettledEvent:
		r.Market = key(ev.Market)
		r.BaseAmount = ev.AddedTokens
		r.Detail = "per_share=" + ev.PerShare
	case *events.ReflectionClaimedEvent:
		r.Market, r.Actor = key(ev.Market), key(ev.Holder)
		r.BaseAmount = ev.Amount
	case *events.ReferralClaimEvent:
		r.Actor = key(ev.Referrer)
		r.QuoteAmount = ev.FeesDistributed
	case *events.AirdropClaimedEvent:
		r.Market, r.Actor = key(ev.Airdrop), key(ev.Claimant)
		r.BaseAmount = ev.Amount
		r.Detail = "index=" + strconv.FormatUint(ev.Index, 10)
	case *events.AirdropExpiredEvent:
		r.Market = key(ev.Airdrop)
		r.BaseAmount = ev.Burned + ev.Swapped
		r.Detail = "burned=" + strconv.FormatUint(ev.Burned, 10) + " swapped=" + strconv.FormatUint(ev.Swapped, 10)
	}
	return r
}

// CSVHeaders returns the column names matching ToCSV.
func CSVHeaders() []string {
	return []string{
		"time", "type", "market", "actor",
		"base_amount", "quote_amount",
		"creator_fee", "protocol_fee", "referral_fee",
		"detail",
	}
}

func (r Record) ToCSV() []string {
	u := func(v uint64) string { return strconv.FormatUint(v, 10) }
	return []string{
		r.Time.UTC().Format(time.RFC3339),
		string(r.Type),
		r.Market,
		r.Actor,
		u(r.BaseAmount),
		u(r.QuoteAmount),
		u(r.CreatorFee),
		u(r.ProtocolFee),
		u(r.ReferralFee),
		r.Detail,
	}
}
