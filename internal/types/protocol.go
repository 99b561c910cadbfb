// internal/types/protocol.go
package types

import (
	"github.com/gagliardetto/solana-go"
)

// MaxExcluded caps the DAO exclusion list.
const MaxExcluded = 128

// ProtocolConfig is shared by every market created under it.
type ProtocolConfig struct {
	Authority               solana.PublicKey
	PendingAuthority        solana.PublicKey
	ProtocolFeeRecipient    solana.PublicKey
	DefaultProtocolFeeShare uint16
	ReferralFeeShare        uint16
	CpiWhitelist            []solana.PublicKey
	MaxForwardedAccounts    uint8
}

// IsWhitelisted reports whether program may receive forwarded calls.
func (c *ProtocolConfig) IsWhitelisted(program solana.PublicKey) bool {
	for _, p := range c.CpiWhitelist {
		if p.Equals(program) {
			return true
		}
	}
	return false
}

// ReferralAccount accrues referral fees for a referred user.
type ReferralAccount struct {
	Bump            uint8
	Config          solana.PublicKey
	Referrer        solana.PublicKey
	Owner           solana.PublicKey
	PendingLamports uint64
}

// ExclusionList holds holders barred from reflection claims.
type ExclusionList struct {
	Admin    solana.PublicKey
	Bump     uint8
	Excluded []solana.PublicKey
}

// Contains reports whether holder is excluded.
func (l *ExclusionList) Contains(holder solana.PublicKey) bool {
	for _, k := range l.Excluded {
		if k.Equals(holder) {
			return true
		}
	}
	return false
}

// AirdropState tracks a merkle airdrop funded from its own vault.
type AirdropState struct {
	Admin         solana.PublicKey
	Mint          solana.PublicKey
	Bump          uint8
	Root          [32]byte
	Expiry        int64
	ClaimedBitmap []byte
}

var (
	configDiscriminator    = discriminator("ProtocolConfig")
	referralDiscriminator  = discriminator("ReferralAccount")
	exclusionDiscriminator = discriminator("ExclusionList")
	airdropDiscriminator   = discriminator("AirdropState")
)

func (*ProtocolConfig) Discriminator() Discriminator  { return configDiscriminator }
func (*ReferralAccount) Discriminator() Discriminator { return referralDiscriminator }
func (*ExclusionList) Discriminator() Discriminator   { return exclusionDiscriminator }
func (*AirdropState) Discriminator() Discriminator    { return airdropDiscriminator }
