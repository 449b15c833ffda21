package server

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/crystal-mush/mushpost/pkg/gamedb"
	"github.com/crystal-mush/mushpost/pkg/msgs"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// GameConf holds game-level configuration parameters, loaded from YAML.
type GameConf struct {
	// --- Identity ---
	MudName string `yaml:"mud_name" validate:"required"`
	Port    int    `yaml:"port" validate:"min=1,max=65535"`

	// --- Key rooms ---
	PlayerStartingRoom int `yaml:"player_starting_room" validate:"min=0"`
	GodDBRef           int `yaml:"god_dbref" validate:"min=1"` // The God player dbref (default 1)

	// --- Economy ---
	MoneyNameSingular string `yaml:"money_name_singular" validate:"required"`
	MoneyNamePlural   string `yaml:"money_name_plural" validate:"required"`
	StartingMoney     int64  `yaml:"starting_money" validate:"min=0"`

	// --- Idle/timeout ---
	IdleTimeout int `yaml:"idle_timeout" validate:"min=0"` // Seconds, 0 = never

	// --- SQL audit log ---
	SQLEnabled  bool   `yaml:"sql_enabled"`
	SQLDatabase string `yaml:"sql_database" validate:"required_if=SQLEnabled true"` // Path to SQLite3 file
	SQLTimeout  int    `yaml:"sql_timeout" validate:"min=1"`                         // Busy timeout in seconds

	// --- Metrics ---
	MetricsEnabled bool   `yaml:"metrics_enabled"`
	MetricsAddr    string `yaml:"metrics_addr" validate:"required_if=MetricsEnabled true"` // e.g. ":9100"

	// --- Jobs ---
	WeeklyResetCron string `yaml:"weekly_reset_cron" validate:"required"` // When weekly journal counts reset

	Messaging MessagingConf `yaml:"messaging"`
}

// MessagingConf is the "messaging:" section. Zero values fall back to the
// msgs defaults.
type MessagingConf struct {
	HistoryCap      int           `yaml:"history_cap" validate:"min=1,max=1000"`
	PreserveCap     int           `yaml:"preserve_cap" validate:"min=0,max=10000"`
	EditWindow      time.Duration `yaml:"edit_window" validate:"min=1m"`
	Embargo         time.Duration `yaml:"embargo" validate:"min=0"`
	FirstReminder   time.Duration `yaml:"first_reminder" validate:"min=1s"`
	ReminderEvery   time.Duration `yaml:"reminder_every" validate:"min=1m"`
	BoardMaxPosts   int           `yaml:"board_max_posts" validate:"min=1"`
	ArchiveOverflow bool          `yaml:"archive_overflow"`
	DefaultCourier  string        `yaml:"default_courier" validate:"required"`
	DateFormat      string        `yaml:"date_format" validate:"required"`
	ICYearOffset    int           `yaml:"ic_year_offset"` // In-character year minus real year
}

// DefaultGameConf returns a GameConf with the standard defaults.
func DefaultGameConf() *GameConf {
	p := msgs.DefaultPolicy()
	return &GameConf{
		MudName:            "mushpost",
		Port:               6250,
		PlayerStartingRoom: 0,
		GodDBRef:           1,
		MoneyNameSingular:  "silver coin",
		MoneyNamePlural:    "silver coins",
		StartingMoney:      100,
		IdleTimeout:        3600,
		SQLEnabled:         false,
		SQLTimeout:         5,
		MetricsEnabled:     false,
		MetricsAddr:        ":9100",
		WeeklyResetCron:    "0 0 * * 0",
		Messaging: MessagingConf{
			HistoryCap:      p.HistoryCap,
			PreserveCap:     p.PreserveCap,
			EditWindow:      p.EditWindow,
			Embargo:         p.Embargo,
			FirstReminder:   p.FirstReminder,
			ReminderEvery:   p.ReminderEvery,
			BoardMaxPosts:   p.BoardMaxPosts,
			ArchiveOverflow: p.ArchiveOverflow,
			DefaultCourier:  p.DefaultCourier,
			DateFormat:      p.DateFormat,
		},
	}
}

// LoadGameConf loads and validates a YAML game config file. Keys missing
// from the file keep their defaults.
func LoadGameConf(path string) (*GameConf, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("config %s: only .yaml/.yml files are supported", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	gc := DefaultGameConf()
	if err := yaml.Unmarshal(data, gc); err != nil {
		return nil, fmt.Errorf("parsing YAML %s: %w", path, err)
	}
	if err := gc.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return gc, nil
}

// Validate checks the struct tags.
func (gc *GameConf) Validate() error {
	if err := validator.New().Struct(gc); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Policy converts the section to a messaging policy.
func (mc MessagingConf) Policy() msgs.Policy {
	return msgs.Policy{
		HistoryCap:      mc.HistoryCap,
		PreserveCap:     mc.PreserveCap,
		EditWindow:      mc.EditWindow,
		Embargo:         mc.Embargo,
		FirstReminder:   mc.FirstReminder,
		ReminderEvery:   mc.ReminderEvery,
		BoardMaxPosts:   mc.BoardMaxPosts,
		ArchiveOverflow: mc.ArchiveOverflow,
		DefaultCourier:  mc.DefaultCourier,
		DateFormat:      mc.DateFormat,
	}
}

// ICDate renders t as an in-character date.
func (mc MessagingConf) ICDate(t time.Time) string {
	layout := mc.DateFormat
	if layout == "" {
		layout = msgs.DefaultPolicy().DateFormat
	}
	return t.AddDate(mc.ICYearOffset, 0, 0).Format(layout)
}

// --- Apply config to Game ---

// ApplyGameConf installs a parsed config, pushing the messaging policy to
// the running subsystems.
func (g *Game) ApplyGameConf(gc *GameConf) {
	g.confMu.Lock()
	g.Conf = gc
	g.confMu.Unlock()
	if g.Msgs != nil {
		g.Msgs.SetPolicy(gc.Messaging.Policy())
	}

	m := gc.Messaging
	log.Printf("Game config applied: mud_name=%q start_room=#%d god=#%d",
		gc.MudName, gc.PlayerStartingRoom, gc.GodDBRef)
	log.Printf("  messaging: history=%d preserve=%d edit=%s embargo=%s reminders=%s/%s board=%d",
		m.HistoryCap, m.PreserveCap, m.EditWindow, m.Embargo, m.FirstReminder, m.ReminderEvery, m.BoardMaxPosts)
}

// Config returns the current config.
func (g *Game) Config() *GameConf {
	g.confMu.RLock()
	defer g.confMu.RUnlock()
	return g.Conf
}

// StartingRoom returns the configured player starting room.
func (g *Game) StartingRoom() gamedb.DBRef {
	return gamedb.DBRef(g.Config().PlayerStartingRoom)
}

// GodPlayer returns the configured God player dbref.
func (g *Game) GodPlayer() gamedb.DBRef {
	return gamedb.DBRef(g.Config().GodDBRef)
}

// MoneyName returns the singular or plural money name.
func (g *Game) MoneyName(amount int64) string {
	gc := g.Config()
	if amount == 1 {
		return gc.MoneyNameSingular
	}
	return gc.MoneyNamePlural
}
