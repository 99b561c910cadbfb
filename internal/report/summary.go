// internal/report/summary.go

// Package report renders simulation results for the terminal.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/rovshanmuradov/tokenmill/internal/market/migration"
	"github.com/rovshanmuradov/tokenmill/internal/node"
	"github.com/rovshanmuradov/tokenmill/internal/types"
)

// narrowWidth is the terminal width below which panels stack vertically.
const narrowWidth = 100

// FormatSOL renders lamports as SOL with nine decimals.
func FormatSOL(lamports uint64) string {
	return fmt.Sprintf("%d.%09d SOL", lamports/types.LamportsPerSOL, lamports%types.LamportsPerSOL)
}

func rows(s Styles, kv [][2]string) string {
	lines := make([]string, 0, len(kv))
	for _, pair := range kv {
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, s.Label.Render(pair[0]), s.Value.Render(pair[1])))
	}
	return strings.Join(lines, "\n")
}

func panel(s Styles, heading string, body string) string {
	return s.Panel.Render(lipgloss.JoinVertical(lipgloss.Left, s.Heading.Render(heading), body))
}

// Render draws r as panels fitted to width.
func Render(r *node.Report, width int) string {
	s := NewStyles(DefaultPalette())
	snap := r.Snapshot

	var quote, creator, protocol, referral uint64
	for _, p := range r.Purchases {
		quote += p.QuoteAmount
		creator += p.Fees.Creator
		protocol += p.Fees.ProtocolNet
		referral += p.Fees.Referral
	}

	state := s.Warn.Render(snap.State.String())
	if snap.State == migration.Migrated {
		state = s.Good.Render(snap.State.String())
	}

	marketPanel := panel(s, "Market", rows(s, [][2]string{
		{"address", snap.Address.String()},
		{"mint", r.Mint.String()},
		{"state", state},
		{"supply", fmt.Sprintf("%d", snap.Market.TotalSupply)},
		{"spot price", fmt.Sprintf("%d lamports", snap.SpotPrice)},
		{"treasury", FormatSOL(snap.Treasury)},
	}))

	feesPanel := panel(s, "Purchases", rows(s, [][2]string{
		{"count", fmt.Sprintf("%d", len(r.Purchases))},
		{"quote volume", FormatSOL(quote)},
		{"creator fees", FormatSOL(creator)},
		{"protocol fees", FormatSOL(protocol)},
		{"referral fees", FormatSOL(referral)},
	}))

	buybackPanel := panel(s, "Buyback & migration", rows(s, [][2]string{
		{"buyback spend", FormatSOL(snap.Buyback.TotalBuybackLamports)},
		{"buyback tokens", fmt.Sprintf("%d", snap.Buyback.TotalBuybackTokens)},
		{"reflection claimed", fmt.Sprintf("%d", r.Reflection)},
		{"per share", snap.Reflection.PerShare.String()},
		{"creator paid", FormatSOL(r.Migration.CreatorPaid)},
	}))

	var body string
	if width < narrowWidth {
		body = lipgloss.JoinVertical(lipgloss.Left, marketPanel, feesPanel, buybackPanel)
	} else {
		body = lipgloss.JoinVertical(lipgloss.Left,
			marketPanel,
			lipgloss.JoinHorizontal(lipgloss.Top, feesPanel, buybackPanel))
	}

	title := s.Title.Render(fmt.Sprintf("tokenmill simulation (%s)", r.Duration.Round(time.Millisecond)))
	return lipgloss.JoinVertical(lipgloss.Left, title, body)
}
