package model

import "time"

// ActionType classifies a corporate action.
type ActionType string

const (
	ActionDividend ActionType = "dividend"
	ActionSplit    ActionType = "split"
	ActionBonus    ActionType = "bonus"
	ActionRights   ActionType = "rights"
	ActionOther    ActionType = "other"
)

// CorporateAction is a single declared action affecting a security's price
// continuity. (Symbol, ExDate, Type) uniquely identifies an action, so
// re-ingesting the same feed is idempotent.
//
// DividendAmount is meaningful only for dividends; the split ratio only for
// splits (default 1:1); the bonus ratio only for bonus issues (default 0:0,
// a no-op). Rights issues carry no price multiplier: computing one would
// need the issue price, which the feed does not provide.
type CorporateAction struct {
	Symbol string
	ExDate time.Time
	Type   ActionType

	DividendAmount float64
	SplitRatioFrom float64
	SplitRatioTo   float64
	BonusRatioFrom float64
	BonusRatioTo   float64
}
