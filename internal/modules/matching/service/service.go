package matching

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"anoa.com/lostfound/internal/config"
	"anoa.com/lostfound/internal/entity"
	itemRepo "anoa.com/lostfound/internal/modules/item/repository"
	notifService "anoa.com/lostfound/internal/modules/notification/service"
	userRepo "anoa.com/lostfound/internal/modules/user/repository"
	"anoa.com/lostfound/internal/ratelimit"
	"anoa.com/lostfound/pkg/apperror"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	MatchTypeAuto   = "auto"
	MatchTypeManual = "manual"

	pairLockPrefix = "match:lock"
	pairLockTTL    = 30 * time.Second
)

// ConversationStarter opens the chat between the owners of a matched pair.
type ConversationStarter interface {
	CreateFromMatch(ctx context.Context, a, b *entity.Item) (*entity.Conversation, error)
}

type Suggestion struct {
	ItemID      uuid.UUID    `json:"item_id"`
	ItemTitle   string       `json:"item_title"`
	MatchedItem *entity.Item `json:"matched_item"`
	Score       float64      `json:"score"`
	MatchedAt   time.Time    `json:"matched_at"`
}

type ManualMatch struct {
	Score   float64 `json:"score"`
	Created bool    `json:"created"`
}

type SweepResult struct {
	Processed int `json:"processed"`
	Matched   int `json:"matched"`
}

type MatchService interface {
	// ProcessMatches finds, scores and records matches for one item.
	// Failures are logged and reported as zero matches.
	ProcessMatches(ctx context.Context, itemID uuid.UUID) int
	// ProcessMatch records a scored pair with its side effects. It reports
	// false when the pair was already linked.
	ProcessMatch(ctx context.Context, a, b *entity.Item, score float64) (bool, error)
	RunGlobalMatching(ctx context.Context) SweepResult
	ProcessManualMatch(ctx context.Context, itemA, itemB, actingUserID uuid.UUID) (*ManualMatch, error)
	GetUserMatchSuggestions(ctx context.Context, userID uuid.UUID) ([]Suggestion, error)
}

type matchService struct {
	itemRepo      itemRepo.ItemRepository
	userRepo      userRepo.UserRepository
	notifications notifService.NotificationService
	conversations ConversationStarter
	guard         ratelimit.Guard
	scorer        *Scorer
	cfg           config.MatchConfig
	now           func() time.Time
}

func NewMatchService(
	itemRepo itemRepo.ItemRepository,
	userRepo userRepo.UserRepository,
	notifications notifService.NotificationService,
	conversations ConversationStarter,
	guard ratelimit.Guard,
	cfg config.MatchConfig,
) MatchService {
	if cfg.TopN < 1 {
		cfg.TopN = 1
	}

	return &matchService{
		itemRepo:      itemRepo,
		userRepo:      userRepo,
		notifications: notifications,
		conversations: conversations,
		guard:         guard,
		scorer: NewScorer(Weights{
			Category: cfg.CategoryWeight,
			Location: cfg.LocationWeight,
			Date:     cfg.DateWeight,
			Keyword:  cfg.KeywordWeight,
		}),
		cfg: cfg,
		now: time.Now,
	}
}

type scoredItem struct {
	item  *entity.Item
	score float64
}

func (s *matchService) ProcessMatches(ctx context.Context, itemID uuid.UUID) int {
	matched, err := s.processMatches(ctx, itemID)
	if err != nil {
		log.Printf("❌ [matching] item %s: %v", itemID, err)
		return 0
	}
	return matched
}

func (s *matchService) processMatches(ctx context.Context, itemID uuid.UUID) (int, error) {
	item, err := s.itemRepo.FindByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("load item: %w", err)
	}

	filter := itemRepo.CandidateFilter{
		Type:      item.Type.Opposite(),
		From:      item.Date.Add(-s.cfg.Window),
		To:        item.Date.Add(s.cfg.Window),
		ExcludeID: item.ID,
		Limit:     s.cfg.CandidateLimit,
	}
	if item.Category != entity.CategoryOther {
		filter.Category = item.Category
	}

	candidates, err := s.itemRepo.FindCandidates(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("find candidates: %w", err)
	}

	var strong []scoredItem
	for _, candidate := range candidates {
		if score := s.scorer.Score(item, candidate); score >= s.cfg.Threshold {
			strong = append(strong, scoredItem{item: candidate, score: score})
		}
	}
	if len(strong) == 0 {
		return 0, nil
	}

	sort.SliceStable(strong, func(i, j int) bool { return strong[i].score > strong[j].score })
	if len(strong) > s.cfg.TopN {
		strong = strong[:s.cfg.TopN]
	}

	matched := 0
	for _, m := range strong {
		created, err := s.processMatch(ctx, item, m.item, m.score, MatchTypeAuto)
		if err != nil {
			log.Printf("❌ [matching] pair %s/%s: %v", item.ID, m.item.ID, err)
			continue
		}
		if created {
			matched++
		}
	}
	return matched, nil
}

func (s *matchService) ProcessMatch(ctx context.Context, a, b *entity.Item, score float64) (bool, error) {
	return s.processMatch(ctx, a, b, score, MatchTypeAuto)
}

func (s *matchService) processMatch(ctx context.Context, a, b *entity.Item, score float64, matchType string) (bool, error) {
	if a.ID == b.ID {
		return false, fmt.Errorf("an item cannot match itself: %w", apperror.ErrInvalidOperation)
	}
	// links preloaded with the item settle the common case without a query
	if a.HasMatchWith(b.ID) || b.HasMatchWith(a.ID) {
		return false, nil
	}

	if s.guard != nil {
		key := ratelimit.PairKey(pairLockPrefix, a.ID, b.ID)
		acquired, err := s.guard.Acquire(ctx, key, pairLockTTL)
		if err != nil {
			log.Printf("⚠️ [matching] pair lock unavailable, continuing without it: %v", err)
		} else if !acquired {
			return false, nil
		} else {
			defer func() {
				if err := s.guard.Release(context.Background(), key); err != nil {
					log.Printf("⚠️ [matching] failed to release pair lock: %v", err)
				}
			}()
		}
	}

	exists, err := s.itemRepo.HasMatchLink(ctx, a.ID, b.ID)
	if err != nil {
		return false, fmt.Errorf("check existing link: %w", err)
	}
	if exists {
		return false, nil
	}

	if err := s.itemRepo.CreateMatchPair(ctx, a.ID, b.ID, score, s.now()); err != nil {
		return false, fmt.Errorf("store match links: %w", err)
	}

	s.notifyOwners(ctx, a, b, score, matchType)

	if s.conversations != nil {
		if _, err := s.conversations.CreateFromMatch(ctx, a, b); err != nil {
			log.Printf("❌ [matching] conversation for %s/%s: %v", a.ID, b.ID, err)
		}
	}

	log.Printf("🔗 [matching] linked %s and %s (score %.2f, %s)", a.ID, b.ID, score, matchType)
	return true, nil
}

func (s *matchService) notifyOwners(ctx context.Context, a, b *entity.Item, score float64, matchType string) {
	if s.notifications == nil {
		return
	}

	percentage := int(math.Round(score * 100))
	for _, pair := range [][2]*entity.Item{{a, b}, {b, a}} {
		own, other := pair[0], pair[1]
		itemID, senderID := own.ID, other.OwnerID
		_, err := s.notifications.Emit(ctx, notifService.Emission{
			UserID:   own.OwnerID,
			Title:    "Potential Match Found!",
			Body:     fmt.Sprintf("We found a %d%% match for your %s item %q. Check your dashboard for details.", percentage, own.Type, own.Title),
			ItemID:   &itemID,
			SenderID: &senderID,
			Payload: notifService.MatchFound{
				MatchedItemID:  other.ID,
				OriginalItemID: own.ID,
				Score:          score,
				MatchType:      matchType,
			},
		})
		if err != nil {
			log.Printf("❌ [matching] notify owner %s: %v", own.OwnerID, err)
		}
	}
}

func (s *matchService) RunGlobalMatching(ctx context.Context) SweepResult {
	var result SweepResult

	items, err := s.itemRepo.FindActive(ctx, s.cfg.SweepBatch)
	if err != nil {
		log.Printf("❌ [matching] sweep could not load active items: %v", err)
		return result
	}

	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		matched, err := s.processMatches(ctx, item.ID)
		result.Processed++
		if err != nil {
			log.Printf("❌ [matching] sweep item %s: %v", item.ID, err)
			continue
		}
		result.Matched += matched
	}

	log.Printf("✅ [matching] sweep processed %d items, %d new matches", result.Processed, result.Matched)
	return result
}

func (s *matchService) ProcessManualMatch(ctx context.Context, itemA, itemB, actingUserID uuid.UUID) (*ManualMatch, error) {
	if itemA == itemB {
		return nil, fmt.Errorf("an item cannot match itself: %w", apperror.ErrInvalidOperation)
	}

	a, err := s.findItem(ctx, itemA)
	if err != nil {
		return nil, err
	}
	b, err := s.findItem(ctx, itemB)
	if err != nil {
		return nil, err
	}

	if a.Type == b.Type {
		return nil, fmt.Errorf("both items are %s reports: %w", a.Type, apperror.ErrInvalidOperation)
	}

	if actingUserID != a.OwnerID && actingUserID != b.OwnerID {
		user, err := s.userRepo.FindByID(ctx, actingUserID)
		if err != nil || !user.IsAdmin() {
			return nil, fmt.Errorf("only an item owner or an admin can link items: %w", apperror.ErrForbidden)
		}
	}

	// manual matches skip the threshold but keep the real score
	score := s.scorer.Score(a, b)
	created, err := s.processMatch(ctx, a, b, score, MatchTypeManual)
	if err != nil {
		return nil, err
	}

	return &ManualMatch{Score: score, Created: created}, nil
}

func (s *matchService) findItem(ctx context.Context, id uuid.UUID) (*entity.Item, error) {
	item, err := s.itemRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("item %s not found: %w", id, apperror.ErrNotFound)
		}
		return nil, err
	}
	return item, nil
}

func (s *matchService) GetUserMatchSuggestions(ctx context.Context, userID uuid.UUID) ([]Suggestion, error) {
	items, err := s.itemRepo.FindActiveByOwner(ctx, userID)
	if err != nil {
		return nil, err
	}

	suggestions := make([]Suggestion, 0)
	for _, item := range items {
		for _, link := range item.MatchLinks {
			suggestions = append(suggestions, Suggestion{
				ItemID:      item.ID,
				ItemTitle:   item.Title,
				MatchedItem: link.MatchedItem,
				Score:       link.Score,
				MatchedAt:   link.MatchedAt,
			})
		}
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		if suggestions[i].Score != suggestions[j].Score {
			return suggestions[i].Score > suggestions[j].Score
		}
		return suggestions[i].MatchedAt.After(suggestions[j].MatchedAt)
	})
	return suggestions, nil
}
