package domain

import "time"

// SourceKind описывает тип источника контента.
type SourceKind string

const (
	// SourceYouTube — элемент получен из YouTube-канала.
	SourceYouTube SourceKind = "youtube"
	// SourceRSS — элемент получен из RSS-ленты пресс-релизов.
	SourceRSS SourceKind = "rss"
)

// RawItem — нормализованный элемент источника до генерации.
// Живёт один цикл сканирования и не сохраняется в БД.
type RawItem struct {
	SourceKind      SourceKind
	SourceRef       string
	ContentHash     string
	Title           string
	Body            string
	ImageCandidates []string
	FeedID          int64
	PublishedAt     *time.Time
}

// DraftStatus описывает состояние черновика.
type DraftStatus string

const (
	DraftPending    DraftStatus = "pending"
	DraftApproved   DraftStatus = "approved"
	DraftRejected   DraftStatus = "rejected"
	DraftPublished  DraftStatus = "published"
	DraftAutoFailed DraftStatus = "auto_failed"
)

// Terminal сообщает, является ли состояние конечным.
func (s DraftStatus) Terminal() bool {
	return s == DraftRejected || s == DraftPublished || s == DraftAutoFailed
}

// ImageSource описывает происхождение изображений черновика.
type ImageSource string

const (
	ImageFromSource ImageSource = "source"
	ImageFromStock  ImageSource = "stock"
	ImageNone       ImageSource = "none"
)

// PendingDraft — сгенерированная статья, ожидающая решения о публикации.
type PendingDraft struct {
	ID                     int64
	FeedID                 int64
	VideoID                string
	SourceURL              string
	ContentHash            string
	Title                  string
	ContentHTML            string
	Summary                string
	Status                 DraftStatus
	QualityScore           int
	AutoPublishAttempts    int
	AutoPublishLastError   string
	AutoPublishLastAttempt *time.Time
	Images                 []string
	ImageSource            ImageSource
	Specs                  *CarSpecs
	Tags                   []string
	IsAutoPublished        bool
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// HasImage сообщает, есть ли у черновика хотя бы одно изображение.
func (d PendingDraft) HasImage() bool {
	return len(d.Images) > 0
}

// CarSpecs — извлечённые характеристики автомобиля.
// Известные поля типизированы, остальное уходит в Extra.
type CarSpecs struct {
	Make         string            `json:"make,omitempty"`
	Model        string            `json:"model,omitempty"`
	Year         int               `json:"year,omitempty"`
	Engine       string            `json:"engine,omitempty"`
	Horsepower   int               `json:"horsepower,omitempty"`
	Torque       string            `json:"torque,omitempty"`
	Transmission string            `json:"transmission,omitempty"`
	Drivetrain   string            `json:"drivetrain,omitempty"`
	Acceleration string            `json:"acceleration,omitempty"`
	TopSpeed     string            `json:"top_speed,omitempty"`
	Price        string            `json:"price,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"`
}

// Empty сообщает, что характеристики не извлечены.
func (s *CarSpecs) Empty() bool {
	if s == nil {
		return true
	}
	return s.Make == "" && s.Model == "" && s.Year == 0 && s.Engine == "" &&
		s.Horsepower == 0 && s.Price == "" && len(s.Extra) == 0
}

// Article — опубликованная статья.
type Article struct {
	ID          int64
	Slug        string
	Title       string
	Summary     string
	ContentHTML string
	ImageURL    string
	FeedID      int64
	ContentHash string
	SourceURL   string
	IsPublished bool
	IsDeleted   bool
	PublishedAt *time.Time
	CreatedAt   time.Time
}

// ImagePolicy описывает политику изображений ленты.
type ImagePolicy string

const (
	ImagePolicyOriginal      ImagePolicy = "original"
	ImagePolicyStockOnly     ImagePolicy = "pexels_only"
	ImagePolicyStockFallback ImagePolicy = "pexels_fallback"
)

// LicenseStatus описывает статус лицензии ленты.
type LicenseStatus string

const (
	LicenseUnknown      LicenseStatus = "unknown"
	LicenseUnrestricted LicenseStatus = "unrestricted"
	LicenseRestricted   LicenseStatus = "restricted"
)

// SourceFeed — RSS-лента или YouTube-канал.
type SourceFeed struct {
	ID            int64
	Name          string
	Kind          SourceKind
	URL           string
	CategoryName  string
	LicenseStatus LicenseStatus
	SafetyChecks  map[string]bool
	ImagePolicy   ImagePolicy
	IsActive      bool
	CreatedAt     time.Time
}

// AutomationSettings — единственная строка с политикой автопубликации
// и дневными счётчиками.
type AutomationSettings struct {
	AutoPublishEnabled         bool
	AutoPublishMinQuality      int
	AutoPublishMaxPerHour      int
	AutoPublishMaxPerDay       int
	AutoPublishRequireImage    bool
	AutoPublishRequireSafeFeed bool
	AutoPublishAsDraft         bool
	MaxItemsPerCycle           int
	AutoPublishTodayCount      int
	CountersResetDate          time.Time
	UpdatedAt                  time.Time
}

// Decision — итог оценки черновика движком автопубликации.
type Decision string

const (
	DecisionPublished      Decision = "published"
	DecisionDrafted        Decision = "drafted"
	DecisionSkippedQuality Decision = "skipped_quality"
	DecisionSkippedSafety  Decision = "skipped_safety"
	DecisionSkippedNoImage Decision = "skipped_no_image"
	DecisionSkippedLimit   Decision = "skipped_limit"
	DecisionFailed         Decision = "failed"
)

// CountsAgainstLimit сообщает, расходует ли решение лимит публикаций.
// Drafted тоже расходует: генерация и хранение уже потрачены.
func (d Decision) CountsAgainstLimit() bool {
	return d == DecisionPublished || d == DecisionDrafted
}

// AutoPublishLog — неизменяемая запись решения движка.
// Поля-снимки фиксируются в момент оценки.
type AutoPublishLog struct {
	ID              int64
	DraftID         int64
	ArticleID       *int64
	Decision        Decision
	QualityScore    int
	SafetyScore     Safety
	ImagePolicy     ImagePolicy
	FeedName        string
	SourceType      SourceKind
	ContentLength   int
	HasImage        bool
	HasSpecs        bool
	TagCount        int
	CategoryName    string
	SourceIsYouTube bool
	Error           string
	ReviewTimeSec   *int
	ReviewerNotes   string
	CreatedAt       time.Time
}

// Tag — редакционный тег. Новые теги из спеков не создаются,
// при публикации подбираются только существующие.
type Tag struct {
	ID   int64
	Name string
	Slug string
}

// DecisionStats — агрегаты по решениям для операционной панели.
type DecisionStats struct {
	ByDecision      map[Decision]int
	PendingBySafety map[Safety]int
	Recent          []AutoPublishLog
}
