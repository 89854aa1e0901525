// Package quests implements the quest module: definitions registered
// in memory, assignments persisted per user, wildcard event-driven
// objective progress, and atomic all-or-nothing completion.
package quests

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/R3E-Network/gamification-engine/internal/bus"
	"github.com/R3E-Network/gamification-engine/internal/modules"
	plerrors "github.com/R3E-Network/gamification-engine/internal/platform/errors"
	"github.com/R3E-Network/gamification-engine/internal/rules"
)

const keyPrefix = "quests"

// Status is an assignment's lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusExpired   Status = "expired"
)

// Objective is one countable step of a quest definition.
type Objective struct {
	ID         string
	Target     int64
	Event      string
	Conditions rules.Condition
}

// Definition is a registered quest.
type Definition struct {
	ID             string
	Name           string
	Category       string
	Objectives     []Objective
	Rewards        map[string]interface{}
	TimeLimit      time.Duration
	Repeatable     bool
	MaxCompletions int
	Dependencies   []string
	ChainID        string
	ChainOrder     int
}

// Assignment is a user's instance of a quest.
type Assignment struct {
	UserID    string
	QuestID   string
	StartedAt time.Time
	Deadline  time.Time
	Progress  map[string]int64
	Status    Status
}

// Config tunes assignment limits.
type Config struct {
	MaxActiveQuests int
	DailyQuestLimit int
}

// Module implements modules.Module for quests.
type Module struct {
	*modules.Base
	cfg Config

	mu          sync.RWMutex
	catalog     map[string]Definition
	byEventName map[string][]string // event name -> quest IDs with an objective on it
	chains      map[string][]string // chainID -> quest IDs ordered by chainOrder
}

// New constructs the quests module.
func New(cfg Config) *Module {
	return &Module{
		Base:        modules.NewBase("quests"),
		cfg:         cfg,
		catalog:     make(map[string]Definition),
		byEventName: make(map[string][]string),
		chains:      make(map[string][]string),
	}
}

// RegisterQuest adds or replaces a catalog entry and rebuilds the
// event-name and chain indexes for it.
func (m *Module) RegisterQuest(def Definition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.catalog[def.ID] = def
	for _, obj := range def.Objectives {
		m.byEventName[obj.Event] = appendUnique(m.byEventName[obj.Event], def.ID)
	}
	if def.ChainID != "" {
		m.chains[def.ChainID] = appendUnique(m.chains[def.ChainID], def.ID)
	}
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

// Initialise subscribes to every event for objective progress and
// starts the expiry scan.
func (m *Module) Initialise(ctx context.Context) error {
	if m.Bus() != nil {
		if _, err := m.Bus().OnWildcard("*", m.handleEvent); err != nil {
			return fmt.Errorf("quests: subscribe: %w", err)
		}
	}
	m.AddTickerWorker(time.Minute, m.scanExpired, modules.WithWorkerLabel("quests-expiry"))
	m.Start(ctx)
	return nil
}

func assignmentKey(userID, questID string) string {
	return fmt.Sprintf("%s:assignment:%s:%s", keyPrefix, userID, questID)
}
func progressKey(userID, questID string) string {
	return fmt.Sprintf("%s:progress:%s:%s", keyPrefix, userID, questID)
}
func activeSetKey(userID string) string    { return fmt.Sprintf("%s:active:%s", keyPrefix, userID) }
func completedSetKey(userID string) string { return fmt.Sprintf("%s:completed:%s", keyPrefix, userID) }
func completionsKey(userID, questID string) string {
	return fmt.Sprintf("%s:completions:%s:%s", keyPrefix, userID, questID)
}
func dailyCountKey(userID, day string) string {
	return fmt.Sprintf("%s:daily:%s:%s", keyPrefix, userID, day)
}
func assignmentIndexKey() string { return fmt.Sprintf("%s:index", keyPrefix) }

// AssignQuest validates maxActiveQuests, dailyQuestLimit, dependencies,
// and maxCompletions before creating a new active assignment with
// deadline = now + timeLimit.
func (m *Module) AssignQuest(ctx context.Context, userID, questID string) (Assignment, error) {
	m.mu.RLock()
	def, ok := m.catalog[questID]
	m.mu.RUnlock()
	if !ok {
		return Assignment{}, plerrors.GamNotFound("quest", questID)
	}

	activeIDs, err := m.Storage().SMembers(ctx, activeSetKey(userID))
	if err != nil {
		return Assignment{}, fmt.Errorf("quests: list active: %w", err)
	}
	if m.cfg.MaxActiveQuests > 0 && len(activeIDs) >= m.cfg.MaxActiveQuests {
		return Assignment{}, plerrors.GamLimitExceeded("max_active_quests")
	}

	now := time.Now()
	if m.cfg.DailyQuestLimit > 0 {
		day := now.UTC().Format("2006-01-02")
		count, err := m.Storage().Increment(ctx, dailyCountKey(userID, day), 0)
		if err != nil {
			return Assignment{}, fmt.Errorf("quests: read daily count: %w", err)
		}
		if count >= int64(m.cfg.DailyQuestLimit) {
			return Assignment{}, plerrors.GamLimitExceeded("daily_quest_limit")
		}
	}

	for _, dep := range def.Dependencies {
		done, err := m.Storage().SIsMember(ctx, completedSetKey(userID), dep)
		if err != nil {
			return Assignment{}, fmt.Errorf("quests: check dependency: %w", err)
		}
		if !done {
			return Assignment{}, plerrors.GamLimitExceeded("dependency_not_met:" + dep)
		}
	}

	if def.MaxCompletions > 0 {
		raw, ok, err := m.Storage().Get(ctx, completionsKey(userID, questID))
		if err != nil {
			return Assignment{}, fmt.Errorf("quests: read completions: %w", err)
		}
		if ok {
			completions, _ := strconv.ParseInt(raw, 10, 64)
			if completions >= int64(def.MaxCompletions) {
				return Assignment{}, plerrors.GamLimitExceeded("max_completions")
			}
		}
	}

	assignment := Assignment{
		UserID: userID, QuestID: questID, StartedAt: now, Status: StatusActive,
		Progress: make(map[string]int64, len(def.Objectives)),
	}
	if def.TimeLimit > 0 {
		assignment.Deadline = now.Add(def.TimeLimit)
	}
	for _, obj := range def.Objectives {
		assignment.Progress[obj.ID] = 0
	}

	if err := m.saveAssignment(ctx, assignment); err != nil {
		return Assignment{}, err
	}
	if _, err := m.Storage().SAdd(ctx, activeSetKey(userID), questID); err != nil {
		return Assignment{}, fmt.Errorf("quests: mark active: %w", err)
	}
	if _, err := m.Storage().SAdd(ctx, assignmentIndexKey(), indexMember(userID, questID)); err != nil {
		return Assignment{}, fmt.Errorf("quests: index assignment: %w", err)
	}
	if m.cfg.DailyQuestLimit > 0 {
		day := now.UTC().Format("2006-01-02")
		if _, err := m.Storage().Increment(ctx, dailyCountKey(userID, day), 1); err != nil {
			return Assignment{}, fmt.Errorf("quests: bump daily count: %w", err)
		}
	}

	if m.Bus() != nil {
		m.Bus().Emit("quest.assigned", map[string]interface{}{"userId": userID, "questId": questID})
	}
	return assignment, nil
}

func (m *Module) handleEvent(ev bus.Event) error {
	m.mu.RLock()
	questIDs := append([]string(nil), m.byEventName[ev.Name]...)
	m.mu.RUnlock()
	if len(questIDs) == 0 {
		return nil
	}

	ctxData, _ := ev.Data.(map[string]interface{})
	userID, _ := ctxData["userId"].(string)
	if userID == "" {
		return nil
	}

	ctx := context.Background()
	for _, questID := range questIDs {
		isActive, err := m.Storage().SIsMember(ctx, activeSetKey(userID), questID)
		if err != nil || !isActive {
			continue
		}
		m.progressQuest(ctx, userID, questID, ev.Name, ctxData)
	}
	return nil
}

func (m *Module) progressQuest(ctx context.Context, userID, questID, eventName string, ctxData map[string]interface{}) {
	m.mu.RLock()
	def, ok := m.catalog[questID]
	m.mu.RUnlock()
	if !ok {
		return
	}

	advanced := false
	for _, obj := range def.Objectives {
		if obj.Event != eventName {
			continue
		}
		passed, err := rules.EvaluateCondition(obj.Conditions, ctxData)
		if err != nil || !passed {
			continue
		}
		if _, err := m.Storage().HIncrBy(ctx, progressKey(userID, questID), obj.ID, 1); err != nil {
			m.Logger().WithError(err).Warn("quest objective progress failed")
			continue
		}
		advanced = true
	}
	if !advanced {
		return
	}

	if m.Bus() != nil {
		m.Bus().Emit("quest.progressed", map[string]interface{}{"userId": userID, "questId": questID})
	}

	m.maybeComplete(ctx, userID, questID, def)
}

// maybeComplete checks every objective's target against stored
// progress and, only if ALL are met, performs the single atomic
// completion transition: an SAdd on the completed-guard set is the
// compare-and-set that makes completion fire exactly once even if two
// qualifying events race each other — either all objectives are met and
// completion happens once, or it does not happen at all.
func (m *Module) maybeComplete(ctx context.Context, userID, questID string, def Definition) {
	fields, err := m.Storage().HGetAll(ctx, progressKey(userID, questID))
	if err != nil {
		m.Logger().WithError(err).Warn("quest completion check failed")
		return
	}
	for _, obj := range def.Objectives {
		current := parseInt(fields[obj.ID])
		if current < obj.Target {
			return
		}
	}

	completionGuardKey := fmt.Sprintf("%s:completed-guard:%s", keyPrefix, userID)
	added, err := m.Storage().SAdd(ctx, completionGuardKey, questID)
	if err != nil || added == 0 {
		return // already completing, or storage error; do not double-complete
	}

	m.completeAssignment(ctx, userID, questID, def)
}

func (m *Module) completeAssignment(ctx context.Context, userID, questID string, def Definition) {
	assignment, exists, err := m.loadAssignment(ctx, userID, questID)
	if err != nil || !exists {
		return
	}
	assignment.Status = StatusCompleted
	if err := m.saveAssignment(ctx, assignment); err != nil {
		m.Logger().WithError(err).Warn("quest completion save failed")
		return
	}

	_, _ = m.Storage().SRem(ctx, activeSetKey(userID), questID)
	_, _ = m.Storage().SAdd(ctx, completedSetKey(userID), questID)
	_, _ = m.Storage().Increment(ctx, completionsKey(userID, questID), 1)
	completionGuardKey := fmt.Sprintf("%s:completed-guard:%s", keyPrefix, userID)
	_, _ = m.Storage().SRem(ctx, completionGuardKey, questID)

	if m.Bus() != nil {
		m.Bus().Emit("quest.completed", map[string]interface{}{"userId": userID, "questId": questID})
		for reward, value := range def.Rewards {
			m.Bus().Emit("quest.reward", map[string]interface{}{
				"userId": userID, "questId": questID, "reward": reward, "value": value,
			})
		}
		m.maybeEmitChainCompletion(userID, def)
	}
}

// maybeEmitChainCompletion emits a chain-completion event consumers may
// react to when questID is the last element of its chain, ordered by
// ChainOrder. The module itself never reaches into other quests beyond
// reading its own catalog — no cross-quest coupling lives here.
func (m *Module) maybeEmitChainCompletion(userID string, def Definition) {
	if def.ChainID == "" {
		return
	}
	m.mu.RLock()
	members := m.chains[def.ChainID]
	maxOrder := -1
	for _, id := range members {
		if other, ok := m.catalog[id]; ok && other.ChainOrder > maxOrder {
			maxOrder = other.ChainOrder
		}
	}
	m.mu.RUnlock()
	if def.ChainOrder == maxOrder {
		m.Bus().Emit("quest.chain.completed", map[string]interface{}{
			"userId": userID, "chainId": def.ChainID,
		})
	}
}

// scanExpired flips any active assignment past its deadline to expired.
func (m *Module) scanExpired(ctx context.Context) error {
	members, err := m.Storage().SMembers(ctx, assignmentIndexKey())
	if err != nil {
		return fmt.Errorf("quests: scan: list assignments: %w", err)
	}
	now := time.Now()
	for _, member := range members {
		userID, questID, ok := splitIndexMember(member)
		if !ok {
			continue
		}
		assignment, exists, err := m.loadAssignment(ctx, userID, questID)
		if err != nil || !exists || assignment.Status != StatusActive {
			continue
		}
		if assignment.Deadline.IsZero() || now.Before(assignment.Deadline) {
			continue
		}
		assignment.Status = StatusExpired
		if err := m.saveAssignment(ctx, assignment); err != nil {
			continue
		}
		_, _ = m.Storage().SRem(ctx, activeSetKey(userID), questID)
		if m.Bus() != nil {
			m.Bus().Emit("quest.expired", map[string]interface{}{"userId": userID, "questId": questID})
		}
	}
	return nil
}

func indexMember(userID, questID string) string { return userID + "\x1f" + questID }

func splitIndexMember(member string) (userID, questID string, ok bool) {
	for i := 0; i < len(member); i++ {
		if member[i] == '\x1f' {
			return member[:i], member[i+1:], true
		}
	}
	return "", "", false
}

func parseInt(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func (m *Module) loadAssignment(ctx context.Context, userID, questID string) (Assignment, bool, error) {
	fields, err := m.Storage().HGetAll(ctx, assignmentKey(userID, questID))
	if err != nil {
		return Assignment{}, false, fmt.Errorf("quests: load assignment: %w", err)
	}
	if len(fields) == 0 {
		return Assignment{}, false, nil
	}
	progressFields, err := m.Storage().HGetAll(ctx, progressKey(userID, questID))
	if err != nil {
		return Assignment{}, false, fmt.Errorf("quests: load progress: %w", err)
	}
	progress := make(map[string]int64, len(progressFields))
	for field, value := range progressFields {
		progress[field] = parseInt(value)
	}
	startedAt, _ := time.Parse(time.RFC3339, fields["startedAt"])
	var deadline time.Time
	if raw := fields["deadline"]; raw != "" {
		deadline, _ = time.Parse(time.RFC3339, raw)
	}
	return Assignment{
		UserID: userID, QuestID: questID, StartedAt: startedAt, Deadline: deadline,
		Progress: progress, Status: Status(fields["status"]),
	}, true, nil
}

func (m *Module) saveAssignment(ctx context.Context, a Assignment) error {
	fields := map[string]string{
		"startedAt": a.StartedAt.Format(time.RFC3339),
		"status":    string(a.Status),
	}
	if !a.Deadline.IsZero() {
		fields["deadline"] = a.Deadline.Format(time.RFC3339)
	}
	for field, value := range fields {
		if err := m.Storage().HSet(ctx, assignmentKey(a.UserID, a.QuestID), field, value); err != nil {
			return fmt.Errorf("quests: save assignment: %w", err)
		}
	}
	return nil
}

// GetUserStats satisfies modules.Module.
func (m *Module) GetUserStats(ctx context.Context, userID string) (map[string]interface{}, error) {
	active, err := m.Storage().SMembers(ctx, activeSetKey(userID))
	if err != nil {
		return nil, err
	}
	completed, err := m.Storage().SMembers(ctx, completedSetKey(userID))
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"active": active, "completed": completed}, nil
}

// ResetUser clears a user's quest assignments, progress, and indexes.
func (m *Module) ResetUser(ctx context.Context, userID string) error {
	active, err := m.Storage().SMembers(ctx, activeSetKey(userID))
	if err != nil {
		return err
	}
	m.mu.RLock()
	allIDs := make([]string, 0, len(m.catalog))
	for id := range m.catalog {
		allIDs = append(allIDs, id)
	}
	m.mu.RUnlock()

	for _, questID := range allIDs {
		if _, err := m.Storage().Delete(ctx, assignmentKey(userID, questID)); err != nil {
			return err
		}
		if _, err := m.Storage().Delete(ctx, progressKey(userID, questID)); err != nil {
			return err
		}
		if _, err := m.Storage().Delete(ctx, completionsKey(userID, questID)); err != nil {
			return err
		}
		_, _ = m.Storage().SRem(ctx, assignmentIndexKey(), indexMember(userID, questID))
	}
	for _, questID := range active {
		_, _ = m.Storage().SRem(ctx, activeSetKey(userID), questID)
	}
	if _, err := m.Storage().Delete(ctx, activeSetKey(userID)); err != nil {
		return err
	}
	if _, err := m.Storage().Delete(ctx, completedSetKey(userID)); err != nil {
		return err
	}
	return nil
}

// Routes returns nil: quests has no module-owned HTTP surface.
func (m *Module) Routes() chi.Router { return nil }
