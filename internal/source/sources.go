package source

import (
	"fmt"
	"strings"

	"github.com/gyaneshwarpardhi/livefeed/internal/activity"
)

func one(rel, col string) []ActorRef {
	return []ActorRef{{Relation: rel, Column: col, Required: true}}
}

func two(rel1, col1, rel2, col2 string) []ActorRef {
	return []ActorRef{
		{Relation: rel1, Column: col1, Required: true},
		{Relation: rel2, Column: col2, Required: true},
	}
}

// extra collects non-empty variant fields.
type extra map[string]any

func (e extra) str(key string, r Row, col string) extra {
	if v := r.String(col); v != "" {
		e[key] = v
	}
	return e
}

func (e extra) num(key string, r Row, col string) extra {
	if v, ok := r.Number(col); ok {
		e[key] = v
	}
	return e
}

func (e extra) preview(key string, r Row, col string) extra {
	if v := Preview(r.String(col)); v != "" {
		e[key] = v
	}
	return e
}

func (e extra) into(it *activity.Item) {
	if len(e) > 0 {
		it.Extra = e
	}
}

// builtin returns a fresh copy of the source table in priority order.
func builtin() []*Descriptor {
	return []*Descriptor{
		{
			ID: "tips", Entity: "tips", TimeColumn: "created_at",
			Actors: two("sender", "sender_id", "recipient", "recipient_id"),
			Kinds:  []activity.Kind{activity.KindTip}, PollLimit: 3, SnapshotLimit: 10, Incremental: true,
			fill: func(r Row, it *activity.Item) error {
				it.Amount = Amount(r, "settled_amount", "amount")
				extra{}.preview("message", r, "message").into(it)
				return nil
			},
		},
		{
			ID: "swipes", Entity: "swipes", TimeColumn: "created_at", Filter: `direction == "right"`,
			Actors: two("swiper", "swiper_id", "swiped", "swiped_id"),
			Kinds:  []activity.Kind{activity.KindSwipe}, PollLimit: 5, SnapshotLimit: 15, Incremental: true,
			fill: func(r Row, it *activity.Item) error {
				it.Amount = Amount(r, "display_amount", "token_amount")
				return nil
			},
		},
		{
			ID: "matches", Entity: "matches", TimeColumn: "created_at",
			Actors: two("user_a", "user_a_id", "user_b", "user_b_id"),
			Kinds:  []activity.Kind{activity.KindMatch}, PollLimit: 3, SnapshotLimit: 10, Incremental: true,
			fill: func(r Row, it *activity.Item) error {
				it.Amount = Amount(r, "reward_amount")
				return nil
			},
		},
		{
			ID: "boosts", Entity: "boosts", TimeColumn: "created_at",
			Actors: two("booster", "booster_id", "boosted", "boosted_id"),
			Kinds:  []activity.Kind{activity.KindBoost}, PollLimit: 2, SnapshotLimit: 5, Incremental: true,
			fill: func(r Row, it *activity.Item) error {
				it.Amount = Amount(r, "settled_cost", "cost")
				extra{}.num("duration_minutes", r, "duration_minutes").into(it)
				return nil
			},
		},
		{
			ID: "posts", Entity: "posts", TimeColumn: "created_at", Filter: "deleted == false",
			Actors: one("author", "author_id"),
			Kinds:  []activity.Kind{activity.KindPost}, PollLimit: 3, SnapshotLimit: 10, Incremental: true,
			fill: func(r Row, it *activity.Item) error {
				e := extra{}.preview("preview", r, "content")
				if r.String("image_url") != "" {
					e["has_image"] = true
				}
				e.into(it)
				return nil
			},
		},
		{
			ID: "comments", Entity: "comments", TimeColumn: "created_at", Filter: "deleted == false",
			Actors: one("author", "author_id"),
			Kinds:  []activity.Kind{activity.KindComment}, PollLimit: 3, SnapshotLimit: 10, Incremental: true,
			fill: func(r Row, it *activity.Item) error {
				extra{}.preview("preview", r, "content").str("post_id", r, "post_id").into(it)
				return nil
			},
		},
		{
			ID: "game_sessions", Entity: "game_sessions", TimeColumn: "ended_at", Filter: `status == "completed"`,
			Actors: one("player", "player_id"),
			Kinds:  []activity.Kind{activity.KindGamePlayed}, PollLimit: 3, SnapshotLimit: 10, Incremental: true,
			fill: func(r Row, it *activity.Item) error {
				it.Amount = Amount(r, "points_earned")
				extra{}.str("game_title", r, "game_title").num("score", r, "score").into(it)
				return nil
			},
		},
		{
			ID: "stakes", Entity: "stakes", TimeColumn: "created_at",
			Actors: one("staker", "staker_id"),
			Kinds:  []activity.Kind{activity.KindStaked, activity.KindUnstaked}, PollLimit: 3, SnapshotLimit: 10, Incremental: true,
			fill: func(r Row, it *activity.Item) error {
				switch strings.ToLower(r.String("action")) {
				case "stake", "staked":
					it.Kind = activity.KindStaked
				case "unstake", "unstaked":
					it.Kind = activity.KindUnstaked
				default:
					return fmt.Errorf("%w: stake action %q", ErrFiltered, r.String("action"))
				}
				it.Amount = Amount(r, "usd_value", "amount")
				extra{}.str("token_symbol", r, "token_symbol").into(it)
				return nil
			},
		},
		{
			ID: "swaps", Entity: "token_swaps", TimeColumn: "created_at",
			Actors: one("trader", "trader_id"),
			Kinds:  []activity.Kind{activity.KindSwapBought, activity.KindSwapSold}, PollLimit: 5, SnapshotLimit: 15, Incremental: true,
			fill: func(r Row, it *activity.Item) error {
				switch strings.ToLower(r.String("side")) {
				case "buy":
					it.Kind = activity.KindSwapBought
				case "sell":
					it.Kind = activity.KindSwapSold
				default:
					return fmt.Errorf("%w: swap side %q", ErrFiltered, r.String("side"))
				}
				it.Amount = Amount(r, "usd_value", "amount_out")
				extra{}.str("token_symbol", r, "token_symbol").str("token_logo", r, "token_logo_url").into(it)
				return nil
			},
		},
		{
			ID: "agents", Entity: "ai_agents", TimeColumn: "created_at",
			Actors: one("creator", "creator_id"),
			Kinds:  []activity.Kind{activity.KindAgentCreated}, PollLimit: 2, SnapshotLimit: 5, Incremental: true,
			fill: func(r Row, it *activity.Item) error {
				extra{}.str("agent_name", r, "name").into(it)
				return nil
			},
		},
		{
			ID: "pixels", Entity: "pixel_placements", TimeColumn: "created_at",
			Actors: one("painter", "painter_id"),
			Kinds:  []activity.Kind{activity.KindPixelPlaced}, PollLimit: 5, SnapshotLimit: 15, Incremental: true,
			fill: func(r Row, it *activity.Item) error {
				it.Amount = Amount(r, "cost")
				extra{}.num("x", r, "x").num("y", r, "y").str("color", r, "color").into(it)
				return nil
			},
		},
		{
			ID: "rewards", Entity: "reward_claims", TimeColumn: "created_at",
			Actors: one("claimer", "user_id"),
			Kinds:  []activity.Kind{activity.KindRewardClaimed}, PollLimit: 2, SnapshotLimit: 5, Incremental: true,
			fill: func(r Row, it *activity.Item) error {
				it.Amount = Amount(r, "settled_amount", "amount")
				extra{}.str("reward_type", r, "reward_type").into(it)
				return nil
			},
		},
		{
			ID: "referrals", Entity: "referrals", TimeColumn: "created_at",
			Actors: two("referrer", "referrer_id", "referred", "referred_id"),
			Kinds:  []activity.Kind{activity.KindReferral}, PollLimit: 2, SnapshotLimit: 5, Incremental: true,
			fill: func(r Row, it *activity.Item) error {
				it.Amount = Amount(r, "bonus_amount")
				return nil
			},
		},
		{
			ID: "gifts", Entity: "gifts", TimeColumn: "created_at",
			Actors: two("sender", "sender_id", "recipient", "recipient_id"),
			Kinds:  []activity.Kind{activity.KindGiftSent}, PollLimit: 2, SnapshotLimit: 5, Incremental: true,
			fill: func(r Row, it *activity.Item) error {
				it.Amount = Amount(r, "settled_price", "price")
				extra{}.str("gift_name", r, "gift_name").into(it)
				return nil
			},
		},
		{
			ID: "nft_mints", Entity: "nft_mints", TimeColumn: "created_at",
			Actors: one("minter", "minter_id"),
			Kinds:  []activity.Kind{activity.KindNFTMinted}, PollLimit: 2, SnapshotLimit: 5, Incremental: true,
			fill: func(r Row, it *activity.Item) error {
				it.Amount = Amount(r, "mint_price")
				extra{}.str("collection", r, "collection_name").str("token_id", r, "token_id").into(it)
				return nil
			},
		},
		{
			ID: "token_launches", Entity: "token_launches", TimeColumn: "created_at",
			Actors: one("creator", "creator_id"),
			Kinds:  []activity.Kind{activity.KindTokenLaunched}, SnapshotLimit: 5,
			fill: func(r Row, it *activity.Item) error {
				it.Amount = Amount(r, "initial_liquidity")
				extra{}.str("token_symbol", r, "token_symbol").str("token_logo", r, "token_logo_url").into(it)
				return nil
			},
		},
		{
			ID: "decay_events", Entity: "decay_events", TimeColumn: "created_at",
			Actors: one("user", "user_id"),
			Kinds:  []activity.Kind{activity.KindDecay}, SnapshotLimit: 5,
			fill: func(r Row, it *activity.Item) error {
				it.Amount = Amount(r, "points_lost")
				extra{}.str("reason", r, "reason").into(it)
				return nil
			},
		},
		{
			ID: "leaderboard", Entity: "leaderboard_changes", TimeColumn: "created_at", Filter: "new_rank <= 100",
			Actors: one("user", "user_id"),
			Kinds:  []activity.Kind{activity.KindRankChanged}, SnapshotLimit: 10,
			fill: func(r Row, it *activity.Item) error {
				extra{}.num("rank", r, "new_rank").num("previous_rank", r, "old_rank").str("board", r, "board").into(it)
				return nil
			},
		},
		{
			ID: "achievements", Entity: "achievements_unlocked", TimeColumn: "created_at",
			Actors: one("user", "user_id"),
			Kinds:  []activity.Kind{activity.KindAchievementUnlocked}, SnapshotLimit: 5,
			fill: func(r Row, it *activity.Item) error {
				it.Amount = Amount(r, "points")
				extra{}.str("achievement", r, "achievement_name").into(it)
				return nil
			},
		},
		{
			ID: "predictions", Entity: "predictions", TimeColumn: "created_at",
			Actors: one("predictor", "predictor_id"),
			Kinds:  []activity.Kind{activity.KindPredictionPlaced}, SnapshotLimit: 10,
			fill: func(r Row, it *activity.Item) error {
				it.Amount = Amount(r, "settled_stake", "stake")
				extra{}.preview("market", r, "market_title").str("outcome", r, "outcome").into(it)
				return nil
			},
		},
		{
			ID: "checkins", Entity: "daily_checkins", TimeColumn: "created_at",
			Actors: one("user", "user_id"),
			Kinds:  []activity.Kind{activity.KindCheckin}, SnapshotLimit: 5,
			fill: func(r Row, it *activity.Item) error {
				it.Amount = Amount(r, "points")
				extra{}.num("streak", r, "streak").into(it)
				return nil
			},
		},
		{
			ID: "lottery_wins", Entity: "lottery_draws", TimeColumn: "created_at", Filter: "winner_id != null",
			Actors: one("winner", "winner_id"),
			Kinds:  []activity.Kind{activity.KindLotteryWon}, SnapshotLimit: 5,
			fill: func(r Row, it *activity.Item) error {
				it.Amount = Amount(r, "settled_prize", "prize")
				extra{}.num("draw", r, "draw_number").into(it)
				return nil
			},
		},
	}
}
