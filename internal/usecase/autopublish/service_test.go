package autopublish

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"autonews-pipeline/internal/domain"
)

type engineDrafts struct {
	pending   []domain.PendingDraft
	published []int64
	failures  []failureCall
}

type failureCall struct {
	draftID     int64
	lastError   string
	maxAttempts int
}

func (s *engineDrafts) CreateDraft(_ context.Context, d domain.PendingDraft) (domain.PendingDraft, error) {
	return d, nil
}
func (s *engineDrafts) GetDraft(context.Context, int64) (domain.PendingDraft, error) {
	return domain.PendingDraft{}, domain.ErrDraftNotFound
}
func (s *engineDrafts) ListEligiblePending(context.Context, int) ([]domain.PendingDraft, error) {
	return s.pending, nil
}
func (s *engineDrafts) ListUnscoredPending(context.Context, int) ([]domain.PendingDraft, error) {
	return nil, nil
}
func (s *engineDrafts) ListPendingWithoutSpecs(context.Context, int) ([]domain.PendingDraft, error) {
	return nil, nil
}
func (s *engineDrafts) HasActiveDuplicate(context.Context, domain.RawItem) (bool, error) {
	return false, nil
}
func (s *engineDrafts) MarkPublished(_ context.Context, id int64, _ bool) error {
	s.published = append(s.published, id)
	return nil
}
func (s *engineDrafts) SetQualityScore(context.Context, int64, int) error       { return nil }
func (s *engineDrafts) SetSpecs(context.Context, int64, *domain.CarSpecs) error { return nil }
func (s *engineDrafts) RecordPublishFailure(_ context.Context, id int64, lastError string, _ time.Time, maxAttempts int) (int, bool, error) {
	s.failures = append(s.failures, failureCall{draftID: id, lastError: lastError, maxAttempts: maxAttempts})
	attempts := 0
	for _, f := range s.failures {
		if f.draftID == id {
			attempts++
		}
	}
	return attempts, attempts >= maxAttempts, nil
}

type engineFeeds struct {
	feeds map[int64]domain.SourceFeed
}

func (s *engineFeeds) GetFeed(_ context.Context, id int64) (domain.SourceFeed, error) {
	feed, ok := s.feeds[id]
	if !ok {
		return domain.SourceFeed{}, domain.ErrFeedNotFound
	}
	return feed, nil
}

type engineSettings struct {
	settings   domain.AutomationSettings
	todayCount int
	locked     bool
	acquires   int
	releases   int
}

func (s *engineSettings) GetSettings(context.Context, time.Time) (domain.AutomationSettings, error) {
	return s.settings, nil
}
func (s *engineSettings) IncrementTodayCount(context.Context, time.Time) (bool, error) {
	if s.todayCount >= s.settings.AutoPublishMaxPerDay {
		return false, nil
	}
	s.todayCount++
	return true, nil
}
func (s *engineSettings) AcquireTaskLock(context.Context, domain.TaskType, time.Time, time.Duration) (bool, error) {
	s.acquires++
	if s.locked {
		return false, nil
	}
	s.locked = true
	return true, nil
}
func (s *engineSettings) ReleaseTaskLock(context.Context, domain.TaskType) error {
	s.releases++
	s.locked = false
	return nil
}
func (s *engineSettings) TaskLocked(context.Context, domain.TaskType, time.Time, time.Duration) (bool, error) {
	return s.locked, nil
}

type engineLog struct {
	entries []domain.AutoPublishLog
	limited int
}

func (s *engineLog) Append(_ context.Context, entry domain.AutoPublishLog) (domain.AutoPublishLog, error) {
	entry.ID = int64(len(s.entries) + 1)
	s.entries = append(s.entries, entry)
	if entry.Decision.CountsAgainstLimit() {
		s.limited++
	}
	return entry, nil
}
func (s *engineLog) CountLimitedSince(context.Context, time.Time) (int, error) {
	return s.limited, nil
}
func (s *engineLog) AnnotateReview(context.Context, int64, int, string) error { return nil }
func (s *engineLog) List(context.Context, domain.LogFilter) ([]domain.AutoPublishLog, error) {
	return s.entries, nil
}
func (s *engineLog) Stats(context.Context, int) (domain.DecisionStats, error) {
	return domain.DecisionStats{}, nil
}

type stubPublisher struct {
	err      error
	asDrafts []bool
	nextID   int64
}

func (s *stubPublisher) Publish(_ context.Context, _ domain.PendingDraft, asDraft bool) (domain.Article, error) {
	if s.err != nil {
		return domain.Article{}, s.err
	}
	s.asDrafts = append(s.asDrafts, asDraft)
	s.nextID++
	return domain.Article{ID: s.nextID, IsPublished: !asDraft}, nil
}

func defaultSettings() domain.AutomationSettings {
	return domain.AutomationSettings{
		AutoPublishEnabled:         true,
		AutoPublishMinQuality:      7,
		AutoPublishMaxPerHour:      3,
		AutoPublishMaxPerDay:       20,
		AutoPublishRequireImage:    true,
		AutoPublishRequireSafeFeed: true,
		MaxItemsPerCycle:           20,
	}
}

func safeFeed() domain.SourceFeed {
	return domain.SourceFeed{
		ID:            1,
		Name:          "Press Room",
		LicenseStatus: domain.LicenseUnrestricted,
		SafetyChecks:  map[string]bool{"tos": true},
		ImagePolicy:   domain.ImagePolicyOriginal,
	}
}

func eligibleDraft(id int64) domain.PendingDraft {
	return domain.PendingDraft{
		ID:           id,
		FeedID:       1,
		Title:        "2026 Audi Q5 Review",
		ContentHTML:  "<p>body</p>",
		Status:       domain.DraftPending,
		QualityScore: 8,
		Images:       []string{"https://cdn.example.com/q5.jpg"},
	}
}

type fixture struct {
	drafts    *engineDrafts
	feeds     *engineFeeds
	settings  *engineSettings
	log       *engineLog
	publisher *stubPublisher
	svc       *Service
}

func newFixture(drafts ...domain.PendingDraft) *fixture {
	f := &fixture{
		drafts:    &engineDrafts{pending: drafts},
		feeds:     &engineFeeds{feeds: map[int64]domain.SourceFeed{1: safeFeed()}},
		settings:  &engineSettings{settings: defaultSettings()},
		log:       &engineLog{},
		publisher: &stubPublisher{},
	}
	f.svc = NewService(f.drafts, f.feeds, f.settings, f.log, f.publisher, Config{}, zerolog.Nop())
	f.svc.now = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }
	return f
}

func (f *fixture) run(t *testing.T) SweepResult {
	t.Helper()
	result, err := f.svc.RunSweep(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку прохода: %v", err)
	}
	return result
}

func TestRunSweepPublishes(t *testing.T) {
	f := newFixture(eligibleDraft(10))
	result := f.run(t)

	if result.Decisions[domain.DecisionPublished] != 1 {
		t.Fatalf("ожидали решение published: %+v", result.Decisions)
	}
	if len(f.log.entries) != 1 {
		t.Fatalf("на одну оценку приходится ровно одна запись журнала, получили %d", len(f.log.entries))
	}
	entry := f.log.entries[0]
	if entry.Decision != domain.DecisionPublished || entry.DraftID != 10 {
		t.Fatalf("неожиданная запись журнала: %+v", entry)
	}
	if entry.ArticleID == nil || *entry.ArticleID != 1 {
		t.Fatalf("запись published должна ссылаться на статью")
	}
	if entry.SafetyScore != domain.SafetySafe || !entry.HasImage {
		t.Fatalf("снимок контекста неполон: %+v", entry)
	}
	if len(f.drafts.published) != 1 || f.drafts.published[0] != 10 {
		t.Fatalf("черновик должен переводиться в published")
	}
	if f.settings.todayCount != 1 {
		t.Fatalf("дневной счётчик должен увеличиться, получили %d", f.settings.todayCount)
	}
}

func TestRunSweepDisabled(t *testing.T) {
	f := newFixture(eligibleDraft(1))
	f.settings.settings.AutoPublishEnabled = false
	result := f.run(t)

	if result.Evaluated != 0 || len(f.log.entries) != 0 {
		t.Fatalf("при выключенной автопубликации оценок быть не должно")
	}
	if f.settings.releases != 1 {
		t.Fatalf("блокировка должна сниматься и при раннем выходе")
	}
}

func TestRunSweepQualityGate(t *testing.T) {
	draft := eligibleDraft(1)
	draft.QualityScore = 6
	f := newFixture(draft)
	result := f.run(t)

	if result.Decisions[domain.DecisionSkippedQuality] != 1 {
		t.Fatalf("ожидали skipped_quality: %+v", result.Decisions)
	}
	if len(f.publisher.asDrafts) != 0 {
		t.Fatalf("паблишер не должен вызываться")
	}
	if f.settings.todayCount != 0 {
		t.Fatalf("пропуск не должен расходовать дневной лимит")
	}
	if len(f.log.entries) != 1 {
		t.Fatalf("пропуск тоже фиксируется в журнале")
	}
}

func TestRunSweepSafetyGate(t *testing.T) {
	f := newFixture(eligibleDraft(1))
	feed := safeFeed()
	feed.LicenseStatus = domain.LicenseRestricted
	f.feeds.feeds[1] = feed
	result := f.run(t)

	if result.Decisions[domain.DecisionSkippedSafety] != 1 {
		t.Fatalf("ожидали skipped_safety: %+v", result.Decisions)
	}
	if f.log.entries[0].SafetyScore != domain.SafetyUnsafe {
		t.Fatalf("снимок должен фиксировать unsafe")
	}
}

func TestRunSweepReviewFeedPasses(t *testing.T) {
	f := newFixture(eligibleDraft(1))
	feed := safeFeed()
	feed.LicenseStatus = domain.LicenseUnknown
	f.feeds.feeds[1] = feed
	result := f.run(t)

	// Барьер отсекает только unsafe; review публикуется.
	if result.Decisions[domain.DecisionPublished] != 1 {
		t.Fatalf("лента review не должна блокироваться: %+v", result.Decisions)
	}
}

func TestRunSweepMissingFeedTreatedAsReview(t *testing.T) {
	draft := eligibleDraft(1)
	draft.FeedID = 99
	f := newFixture(draft)
	result := f.run(t)

	if result.Decisions[domain.DecisionPublished] != 1 {
		t.Fatalf("черновик без ленты оценивается как review: %+v", result.Decisions)
	}
	if f.log.entries[0].SafetyScore != domain.SafetyReview {
		t.Fatalf("снимок должен фиксировать review")
	}
}

func TestRunSweepImageGate(t *testing.T) {
	draft := eligibleDraft(1)
	draft.Images = nil
	f := newFixture(draft)
	result := f.run(t)

	if result.Decisions[domain.DecisionSkippedNoImage] != 1 {
		t.Fatalf("ожидали skipped_no_image: %+v", result.Decisions)
	}
}

func TestRunSweepHourlyLimitShortCircuits(t *testing.T) {
	f := newFixture(eligibleDraft(1), eligibleDraft(2), eligibleDraft(3))
	f.log.limited = 3
	result := f.run(t)

	if result.Evaluated != 1 {
		t.Fatalf("достигнутый лимит должен останавливать проход, оценено %d", result.Evaluated)
	}
	if result.Decisions[domain.DecisionSkippedLimit] != 1 {
		t.Fatalf("ожидали skipped_limit: %+v", result.Decisions)
	}
	if len(f.log.entries) != 1 {
		t.Fatalf("записей журнала должно быть по числу оценок")
	}
}

func TestRunSweepDailyLimit(t *testing.T) {
	f := newFixture(eligibleDraft(1))
	f.settings.settings.AutoPublishMaxPerDay = 5
	f.settings.todayCount = 5
	result := f.run(t)

	if result.Decisions[domain.DecisionSkippedLimit] != 1 {
		t.Fatalf("ожидали skipped_limit по дневному счётчику: %+v", result.Decisions)
	}
	if len(f.publisher.asDrafts) != 0 {
		t.Fatalf("паблишер не должен вызываться")
	}
}

func TestRunSweepAsDraft(t *testing.T) {
	f := newFixture(eligibleDraft(1))
	f.settings.settings.AutoPublishAsDraft = true
	result := f.run(t)

	if result.Decisions[domain.DecisionDrafted] != 1 {
		t.Fatalf("ожидали drafted: %+v", result.Decisions)
	}
	if len(f.publisher.asDrafts) != 1 || !f.publisher.asDrafts[0] {
		t.Fatalf("паблишер должен получать asDraft=true")
	}
	if f.settings.todayCount != 1 {
		t.Fatalf("drafted тоже расходует дневной лимит")
	}
}

func TestRunSweepPublishFailure(t *testing.T) {
	f := newFixture(eligibleDraft(1), eligibleDraft(2))
	f.publisher.err = &domain.PublishError{Stage: "image", Err: errors.New("все кандидаты отпали")}
	result := f.run(t)

	if result.Decisions[domain.DecisionFailed] != 2 {
		t.Fatalf("ожидали failed для обоих черновиков: %+v", result.Decisions)
	}
	if len(f.log.entries) != 2 {
		t.Fatalf("сбой тоже попадает в журнал, получили %d записей", len(f.log.entries))
	}
	if f.log.entries[0].Error == "" {
		t.Fatalf("запись failed должна нести текст ошибки")
	}
	if len(f.drafts.failures) != 2 {
		t.Fatalf("каждый сбой фиксируется счётчиком попыток")
	}
	if f.drafts.failures[0].maxAttempts != DefaultMaxAttempts {
		t.Fatalf("порог предохранителя должен передаваться в репозиторий")
	}
}

func TestRunSweepCircuitBreakerTrips(t *testing.T) {
	f := newFixture(eligibleDraft(7))
	f.publisher.err = errors.New("хранилище недоступно")
	f.svc.cfg.MaxAttempts = 2

	f.run(t)
	f.run(t)

	last := f.drafts.failures[len(f.drafts.failures)-1]
	if last.maxAttempts != 2 {
		t.Fatalf("ожидали порог 2, получили %d", last.maxAttempts)
	}
	attempts, tripped, err := f.drafts.RecordPublishFailure(context.Background(), 7, "проверка", time.Now(), 2)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if attempts != 3 || !tripped {
		t.Fatalf("после исчерпания попыток предохранитель должен срабатывать")
	}
}

func TestRunSweepLocked(t *testing.T) {
	f := newFixture(eligibleDraft(1))
	f.settings.locked = true

	_, err := f.svc.RunSweep(context.Background())
	if !errors.Is(err, ErrSweepLocked) {
		t.Fatalf("ожидали ErrSweepLocked, получили %v", err)
	}
	if len(f.log.entries) != 0 {
		t.Fatalf("под чужой блокировкой оценок быть не должно")
	}
}

func TestRunSweepReleasesLock(t *testing.T) {
	f := newFixture(eligibleDraft(1))
	f.run(t)

	if f.settings.locked {
		t.Fatalf("после прохода блокировка должна быть снята")
	}
	if f.settings.acquires != 1 || f.settings.releases != 1 {
		t.Fatalf("ожидали парные захват и снятие: %d/%d", f.settings.acquires, f.settings.releases)
	}

	// Повторный проход захватывает блокировку заново.
	f.run(t)
	if f.settings.acquires != 2 {
		t.Fatalf("повторный проход должен захватывать блокировку")
	}
}

func TestRunSweepOneLogRowPerEvaluation(t *testing.T) {
	lowQuality := eligibleDraft(2)
	lowQuality.QualityScore = 3
	noImage := eligibleDraft(3)
	noImage.Images = nil
	f := newFixture(eligibleDraft(1), lowQuality, noImage)
	result := f.run(t)

	if result.Evaluated != 3 {
		t.Fatalf("ожидали три оценки, получили %d", result.Evaluated)
	}
	if len(f.log.entries) != result.Evaluated {
		t.Fatalf("записей журнала должно быть ровно по числу оценок: %d != %d", len(f.log.entries), result.Evaluated)
	}
	seen := map[int64]bool{}
	for _, entry := range f.log.entries {
		if seen[entry.DraftID] {
			t.Fatalf("черновик %d получил больше одной записи", entry.DraftID)
		}
		seen[entry.DraftID] = true
	}
}
