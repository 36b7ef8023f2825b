package maimai

import (
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
)

// IconName returns the lower-cased file name of an icon url without its
// query or fragment, "https://x/img/playlog/SSSplus.png?ver=1" becomes
// "sssplus.png".
func IconName(src string) string {
	src = strings.TrimSpace(src)
	if i := strings.IndexAny(src, "?#"); i >= 0 {
		src = src[:i]
	}
	if unescaped, err := url.PathUnescape(src); err == nil {
		src = unescaped
	}
	src = strings.ReplaceAll(src, `\`, "/")
	name := path.Base("/" + src)
	if name == "/" || name == "." {
		return ""
	}
	return strings.ToLower(name)
}

// iconStem is IconName without the extension and without the "music_icon_"
// prefix the score listing uses for the same icons.
func iconStem(src string) string {
	name := IconName(src)
	name = strings.TrimSuffix(name, path.Ext(name))
	return strings.TrimPrefix(name, "music_icon_")
}

type Chart string

const (
	ChartDeluxe   Chart = "dx"
	ChartStandard Chart = "standard"
	ChartUnknown  Chart = "unknown"
)

func ChartVariant(src string) Chart {
	switch iconStem(src) {
	case "music_dx":
		return ChartDeluxe
	case "music_standard":
		return ChartStandard
	}
	return ChartUnknown
}

type Rank string

const RankUnknown Rank = ""

// ranks is the rank scale from worst to best. The portal ships an icon for
// each of these 14 (img/playlog/d.png through sssplus.png), including the
// plus tiers S+, SS+ and SSS+ added with DX.
var ranks = []Rank{"D", "C", "B", "BB", "BBB", "A", "AA", "AAA", "S", "S+", "SS", "SS+", "SSS", "SSS+"}

var rankIcons = func() map[string]Rank {
	out := map[string]Rank{}
	for _, r := range ranks {
		base := strings.ToLower(strings.TrimSuffix(string(r), "+"))
		if strings.HasSuffix(string(r), "+") {
			out[base+"plus"] = r
			out[base+"p"] = r
			continue
		}
		out[base] = r
	}
	return out
}()

func (r Rank) String() string {
	if r == RankUnknown {
		return "unknown"
	}
	return string(r)
}

// RankOf maps a rank icon ("sssplus.png") to its rank.
func RankOf(src string) Rank {
	r, ok := rankIcons[iconStem(src)]
	if !ok {
		return RankUnknown
	}
	return r
}

type Combo string

const (
	ComboFC      Combo = "FC"
	ComboFCPlus  Combo = "FC+"
	ComboAP      Combo = "AP"
	ComboAPPlus  Combo = "AP+"
	ComboNone    Combo = "none"
	ComboUnknown Combo = "unknown"
)

var comboIcons = map[string]Combo{
	"fc":     ComboFC,
	"fcplus": ComboFCPlus,
	"fcp":    ComboFCPlus,
	"ap":     ComboAP,
	"applus": ComboAPPlus,
	"app":    ComboAPPlus,
}

// ComboGrade maps a combo icon to its grade, placeholder icons (ex.
// "fc_dummy.png") mean no combo was achieved.
func ComboGrade(src string) Combo {
	stem := iconStem(src)
	if strings.Contains(stem, "dummy") {
		return ComboNone
	}
	g, ok := comboIcons[stem]
	if !ok {
		return ComboUnknown
	}
	return g
}

func isComboIcon(src string) bool {
	stem := iconStem(src)
	return strings.HasPrefix(stem, "fc") || strings.HasPrefix(stem, "ap")
}

type Sync string

const (
	SyncPlay    Sync = "SYNC"
	SyncFS      Sync = "FS"
	SyncFSPlus  Sync = "FS+"
	SyncFDX     Sync = "FDX"
	SyncFDXPlus Sync = "FDX+"
	SyncNone    Sync = "none"
	SyncUnknown Sync = "unknown"
)

var syncIcons = map[string]Sync{
	"sync":    SyncPlay,
	"fs":      SyncFS,
	"fsplus":  SyncFSPlus,
	"fsp":     SyncFSPlus,
	"fdx":     SyncFDX,
	"fsd":     SyncFDX,
	"fdxplus": SyncFDXPlus,
	"fsdplus": SyncFDXPlus,
	"fdxp":    SyncFDXPlus,
	"fsdp":    SyncFDXPlus,
}

// SyncGrade maps a sync icon to its grade, placeholder icons mean no sync
// was achieved.
func SyncGrade(src string) Sync {
	stem := iconStem(src)
	if strings.Contains(stem, "dummy") {
		return SyncNone
	}
	g, ok := syncIcons[stem]
	if !ok {
		return SyncUnknown
	}
	return g
}

func isSyncIcon(src string) bool {
	stem := iconStem(src)
	return strings.HasPrefix(stem, "sync") ||
		strings.HasPrefix(stem, "fs") ||
		strings.HasPrefix(stem, "fdx")
}

var starsRegex = regexp.MustCompile(`dxstar_(?:detail)?(\d+)`)

// Stars returns the number of deluxe score stars of a star icon, 0 when
// there are none or the icon is not recognized.
func Stars(src string) int {
	groups := starsRegex.FindStringSubmatch(iconStem(src))
	if len(groups) < 2 {
		return 0
	}
	n, err := strconv.Atoi(groups[1])
	if err != nil || n < 0 {
		return 0
	}
	return min(n, 5)
}

var placements = []string{"1st", "2nd", "3rd", "4th"}

// Placement returns the matching placement ("1st".."4th") an icon stands
// for, "" if none.
func Placement(src string) string {
	name := IconName(src)
	for _, p := range placements {
		if strings.Contains(name, p) {
			return p
		}
	}
	return ""
}

type Difficulty string

const (
	DifficultyBasic    Difficulty = "basic"
	DifficultyAdvanced Difficulty = "advanced"
	DifficultyExpert   Difficulty = "expert"
	DifficultyMaster   Difficulty = "master"
	DifficultyRemaster Difficulty = "remaster"
	DifficultyUtage    Difficulty = "utage"
	DifficultyUnknown  Difficulty = "unknown"
)

// ScoreDifficulties are the difficulties the score listing can be browsed
// by, in the portal's numbering order.
var ScoreDifficulties = []Difficulty{
	DifficultyBasic,
	DifficultyAdvanced,
	DifficultyExpert,
	DifficultyMaster,
	DifficultyRemaster,
}

// Index returns the portal's number for a difficulty, -1 if it has none.
func (d Difficulty) Index() int {
	for i, known := range ScoreDifficulties {
		if known == d {
			return i
		}
	}
	return -1
}

// DifficultyOf maps a difficulty icon ("diff_master.png") to its difficulty.
func DifficultyOf(src string) Difficulty {
	stem := strings.TrimPrefix(iconStem(src), "diff_")
	switch d := Difficulty(stem); d {
	case DifficultyBasic, DifficultyAdvanced, DifficultyExpert,
		DifficultyMaster, DifficultyRemaster, DifficultyUtage:
		return d
	}
	return DifficultyUnknown
}

var trackRegex = regexp.MustCompile(`(?i)\btrack\b`)

// IsTrackLabel returns true for labels like "TRACK 01", anything else in
// the same position of a listing entry is a placement label.
func IsTrackLabel(text string) bool {
	return trackRegex.MatchString(text)
}

var intRegex = regexp.MustCompile(`^\d+$`)

// ParseInt parses an integer that may contain thousands separators
// ("1,234"), nil if the text is anything else.
func ParseInt(text string) *int64 {
	text = strings.Map(func(r rune) rune {
		switch r {
		case ',', ' ', '\t', '\n', '\u00a0', '\u3000':
			return -1
		}
		return r
	}, text)
	if !intRegex.MatchString(text) {
		return nil
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return nil
	}
	return &n
}

// SplitFraction splits "512/600" into its two numbers, a single number
// yields only the first one and anything unparseable yields nil.
func SplitFraction(text string) (cur *int64, total *int64) {
	parts := strings.SplitN(text, "/", 2)
	cur = ParseInt(parts[0])
	if cur == nil {
		return nil, nil
	}
	if len(parts) == 2 {
		total = ParseInt(parts[1])
	}
	return cur, total
}

var percentRegex = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*%?$`)

// ParseAchievement parses an achievement rate ("100.5000%").
func ParseAchievement(text string) (float64, bool) {
	groups := percentRegex.FindStringSubmatch(strings.TrimSpace(text))
	if len(groups) < 2 {
		return 0, false
	}
	f, err := strconv.ParseFloat(groups[1], 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
