package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"autonews-pipeline/internal/domain"
	"autonews-pipeline/internal/infra/metrics"
)

const settingsColumns = `auto_publish_enabled, auto_publish_min_quality, auto_publish_max_per_hour,
auto_publish_max_per_day, auto_publish_require_image, auto_publish_require_safe_feed,
auto_publish_as_draft, max_items_per_cycle, auto_publish_today_count, counters_reset_date, updated_at`

// GetSettings возвращает строку настроек, предварительно сбросив дневные
// счётчики, если дата ушла вперёд. Сброс — одиночный условный UPDATE,
// поэтому под конкурирующими задачами срабатывает ровно один раз.
func (p *Postgres) GetSettings(ctx context.Context, today time.Time) (domain.AutomationSettings, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	day := dateOnly(today)

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
UPDATE automation_settings
SET auto_publish_today_count = 0, counters_reset_date = $1, updated_at = now()
WHERE id = 1 AND counters_reset_date < $1
`, day)
	metrics.ObserveNetworkRequest("postgres", "settings_reset_counters", "automation_settings", start, err)
	if err != nil {
		return domain.AutomationSettings{}, err
	}

	start = time.Now()
	var s domain.AutomationSettings
	err = p.pool.QueryRow(ctx, `SELECT `+settingsColumns+` FROM automation_settings WHERE id = 1`).
		Scan(&s.AutoPublishEnabled, &s.AutoPublishMinQuality, &s.AutoPublishMaxPerHour,
			&s.AutoPublishMaxPerDay, &s.AutoPublishRequireImage, &s.AutoPublishRequireSafeFeed,
			&s.AutoPublishAsDraft, &s.MaxItemsPerCycle, &s.AutoPublishTodayCount,
			&s.CountersResetDate, &s.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "settings_get", "automation_settings", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.AutomationSettings{}, domain.ErrSettingsMissing
	}
	return s, err
}

// IncrementTodayCount увеличивает дневной счётчик публикаций, если лимит
// не исчерпан и дата счётчика актуальна. Возвращает false при отказе.
func (p *Postgres) IncrementTodayCount(ctx context.Context, today time.Time) (bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.pool.Exec(ctx, `
UPDATE automation_settings
SET auto_publish_today_count = auto_publish_today_count + 1, updated_at = now()
WHERE id = 1
  AND counters_reset_date = $1
  AND auto_publish_today_count < auto_publish_max_per_day
`, dateOnly(today))
	metrics.ObserveNetworkRequest("postgres", "settings_increment_today", "automation_settings", start, err)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

// AcquireTaskLock захватывает блокировку задачи, если она свободна или
// протухла. Одиночный условный upsert: под конкуренцией выигрывает один.
func (p *Postgres) AcquireTaskLock(ctx context.Context, task domain.TaskType, now time.Time, staleAfter time.Duration) (bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	staleBefore := now.Add(-staleAfter)

	start := time.Now()
	res, err := p.pool.Exec(ctx, `
INSERT INTO task_locks (task, locked, locked_at)
VALUES ($1, true, $2)
ON CONFLICT (task) DO UPDATE SET locked = true, locked_at = $2
WHERE task_locks.locked = false OR task_locks.locked_at < $3
`, string(task), now, staleBefore)
	metrics.ObserveNetworkRequest("postgres", "task_lock_acquire", "task_locks", start, err)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

// ReleaseTaskLock всегда снимает блокировку.
func (p *Postgres) ReleaseTaskLock(ctx context.Context, task domain.TaskType) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
UPDATE task_locks SET locked = false WHERE task = $1
`, string(task))
	metrics.ObserveNetworkRequest("postgres", "task_lock_release", "task_locks", start, err)
	return err
}

// TaskLocked сообщает, удерживается ли непротухшая блокировка.
func (p *Postgres) TaskLocked(ctx context.Context, task domain.TaskType, now time.Time, staleAfter time.Duration) (bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	var locked bool
	err := p.pool.QueryRow(ctx, `
SELECT locked AND locked_at >= $2 FROM task_locks WHERE task = $1
`, string(task), now.Add(-staleAfter)).Scan(&locked)
	metrics.ObserveNetworkRequest("postgres", "task_lock_check", "task_locks", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return locked, err
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
