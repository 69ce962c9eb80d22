package config

// Preset определяет набор листингов источника.
type Preset string

const (
	// PresetRecent - только популярное за последние сутки.
	PresetRecent Preset = "recent"
	// PresetDaily - популярное за сутки и за день.
	PresetDaily Preset = "daily"
	// PresetWeekly - популярное за сутки и за неделю.
	PresetWeekly Preset = "weekly"
	// PresetAll - все доступные представления.
	PresetAll Preset = "all"
)

// Пути представлений источника.
const (
	ListingRecent = "/post/popular_recent"
	ListingByDay  = "/post/popular_by_day"
	ListingByWeek = "/post/popular_by_week"
)

// PresetConfig содержит листинги пресета.
type PresetConfig struct {
	// Primary - основной листинг.
	Primary string
	// Aux - дополнительные листинги.
	Aux []string
}

// Presets содержит все доступные пресеты.
var Presets = map[Preset]PresetConfig{
	PresetRecent: {
		Primary: ListingRecent,
	},
	PresetDaily: {
		Primary: ListingRecent,
		Aux:     []string{ListingByDay},
	},
	PresetWeekly: {
		Primary: ListingRecent,
		Aux:     []string{ListingByWeek},
	},
	PresetAll: {
		Primary: ListingRecent,
		Aux:     []string{ListingByDay, ListingByWeek},
	},
}

// ApplyPreset применяет пресет к конфигурации.
// Возвращает true, если пресет был применён.
func (c *Config) ApplyPreset(preset string) bool {
	p, ok := Presets[Preset(preset)]
	if !ok {
		return false
	}

	c.PrimaryListing = p.Primary
	c.AuxListings = append([]string(nil), p.Aux...)

	return true
}

// ValidPresets возвращает список доступных пресетов.
func ValidPresets() []string {
	return []string{
		string(PresetRecent),
		string(PresetDaily),
		string(PresetWeekly),
		string(PresetAll),
	}
}
