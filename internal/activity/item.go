package activity

import "time"

// Kind discriminates the activity variants.
type Kind string

const (
	KindTip                 Kind = "tip"
	KindSwipe               Kind = "swipe"
	KindMatch               Kind = "match"
	KindBoost               Kind = "boost"
	KindPost                Kind = "post"
	KindComment             Kind = "comment"
	KindGamePlayed          Kind = "game_played"
	KindStaked              Kind = "staked"
	KindUnstaked            Kind = "unstaked"
	KindSwapBought          Kind = "swap_bought"
	KindSwapSold            Kind = "swap_sold"
	KindAgentCreated        Kind = "agent_created"
	KindPixelPlaced         Kind = "pixel_placed"
	KindRewardClaimed       Kind = "reward_claimed"
	KindReferral            Kind = "referral"
	KindGiftSent            Kind = "gift_sent"
	KindNFTMinted           Kind = "nft_minted"
	KindTokenLaunched       Kind = "token_launched"
	KindDecay               Kind = "decay"
	KindRankChanged         Kind = "rank_changed"
	KindAchievementUnlocked Kind = "achievement_unlocked"
	KindPredictionPlaced    Kind = "prediction_placed"
	KindCheckin             Kind = "checkin"
	KindLotteryWon          Kind = "lottery_won"
)

// Actor is the display identity of a user taking part in an activity.
type Actor struct {
	DisplayName string  `json:"display_name"`
	AvatarURL   *string `json:"avatar_url"`
}

// Item is the normalized form of one backend event. It is the only type
// that crosses from the engine to its consumers.
type Item struct {
	ID        string         `json:"id"` // source:row
	Source    string         `json:"source"`
	RowID     string         `json:"row_id"`
	Kind      Kind           `json:"kind"`
	Actor     Actor          `json:"actor"`
	Target    *Actor         `json:"target,omitempty"` // second party of tips, swipes, matches, boosts
	Amount    float64        `json:"amount"`
	Timestamp time.Time      `json:"timestamp"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// CompositeID joins a source id and a row id into the dedup key.
func CompositeID(source, rowID string) string {
	return source + ":" + rowID
}

// Actors returns the identifiers of everyone involved, primary first.
func (it Item) Actors() []string {
	if it.Target == nil {
		return []string{it.Actor.DisplayName}
	}
	return []string{it.Actor.DisplayName, it.Target.DisplayName}
}
