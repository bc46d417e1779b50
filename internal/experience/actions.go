package experience

import "fmt"

// Action names an activity that earns experience.
type Action string

const (
	ActionGenerate         Action = "generate"
	ActionGenerateExtended Action = "generate_extended"
	ActionSwipe            Action = "swipe"
	ActionFeedComplete     Action = "feed_complete"
	ActionSubscribe        Action = "subscribe"
	ActionPurchaseUsage    Action = "purchase_usage"
	ActionExchangeCredits  Action = "exchange_credits"
)

var baseXP = map[Action]int64{
	ActionGenerate:         25,
	ActionGenerateExtended: 40,
	ActionSwipe:            5,
	ActionFeedComplete:     50,
	ActionSubscribe:        100,
	ActionPurchaseUsage:    30,
	ActionExchangeCredits:  15,
}

// BaseXP returns the unscaled experience for action.
func BaseXP(action Action) (int64, error) {
	xp, ok := baseXP[action]
	if !ok {
		return 0, fmt.Errorf("unknown experience action %q", action)
	}
	return xp, nil
}
