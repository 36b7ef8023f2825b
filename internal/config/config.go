package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"maimai-scraper/internal/components/configutil"
)

// FileName is the name of the configuration file inside the application
// data directory.
const FileName = "config.env"

type Region string

const (
	RegionJapan         Region = "jp"
	RegionInternational Region = "intl"
)

func ParseRegion(s string) (Region, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "jp", "japan":
		return RegionJapan, true
	case "intl", "international":
		return RegionInternational, true
	}
	return "", false
}

type Browser string

const (
	BrowserChrome   Browser = "chrome"
	BrowserFirefox  Browser = "firefox"
	BrowserChromium Browser = "chromium"
	BrowserHeadless Browser = "headless"
)

var browsers = []Browser{BrowserChrome, BrowserFirefox, BrowserChromium, BrowserHeadless}

func ParseBrowser(s string) (Browser, bool) {
	b := Browser(strings.ToLower(strings.TrimSpace(s)))
	return b, slices.Contains(browsers, b)
}

// UserAgent returns the user agent the http session presents itself with.
func (b Browser) UserAgent() string {
	switch b {
	case BrowserFirefox:
		return "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:128.0) Gecko/20100101 Firefox/128.0"
	case BrowserHeadless:
		return "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) HeadlessChrome/127.0.0.0 Safari/537.36"
	default:
		return "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/127.0.0.0 Safari/537.36"
	}
}

// LevelCritical is one step above slog.LevelError.
const LevelCritical = slog.LevelError + 4

func ParseLogLevel(s string) (slog.Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug, true
	case "INFO":
		return slog.LevelInfo, true
	case "WARNING", "WARN":
		return slog.LevelWarn, true
	case "ERROR":
		return slog.LevelError, true
	case "CRITICAL":
		return LevelCritical, true
	}
	return 0, false
}

var languages = []string{"en", "ja"}

type Config struct {
	Username string
	Password string
	Browser  Browser
	Region   Region
	Language string

	CheckInterval time.Duration
	// WaitDelay is the base of the randomized delay between page loads.
	WaitDelay time.Duration
	// WaitTimeout bounds every http request.
	WaitTimeout time.Duration
	LogLevel    slog.Level
	// ScoresRefreshCycles is the number of cycles between score listing
	// refreshes, 0 disables them.
	ScoresRefreshCycles int
	// DetailAttempts is the number of cycles a play may come back without a
	// usable detail page before it is given up on.
	DetailAttempts int

	Endpoints Endpoints
}

// Error lists every problem found in a configuration file.
type Error struct {
	Path    string
	Missing []string
	Invalid []string
}

func (e *Error) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid "+strings.Join(e.Invalid, ", "))
	}
	if e.Path != "" {
		return fmt.Sprintf("config %s: %s", e.Path, strings.Join(parts, "; "))
	}
	return "config: " + strings.Join(parts, "; ")
}

// Parse validates the raw KEY=VALUE pairs of a configuration file and fills
// in defaults.
func Parse(env map[string]string) (Config, error) {
	get := func(key string) string {
		return strings.TrimSpace(env[key])
	}
	cerr := &Error{}
	invalid := func(key string) {
		cerr.Invalid = append(cerr.Invalid, fmt.Sprintf("%s=%q", key, get(key)))
	}

	c := Config{
		Username:       get("USERNAME"),
		Password:       get("PASSWORD"),
		Browser:        BrowserChromium,
		Region:         RegionInternational,
		Language:       "en",
		CheckInterval:  5 * time.Minute,
		WaitDelay:      5 * time.Second,
		WaitTimeout:    15 * time.Second,
		LogLevel:       slog.LevelInfo,
		DetailAttempts: 5,
	}
	if c.Username == "" {
		cerr.Missing = append(cerr.Missing, "USERNAME")
	}
	if c.Password == "" {
		cerr.Missing = append(cerr.Missing, "PASSWORD")
	}

	if v := get("BROWSER"); v != "" {
		b, ok := ParseBrowser(v)
		if ok {
			c.Browser = b
		} else {
			invalid("BROWSER")
		}
	}
	if v := get("REGION"); v != "" {
		r, ok := ParseRegion(v)
		if ok {
			c.Region = r
		} else {
			invalid("REGION")
		}
	}
	if v := get("LANGUAGE"); v != "" {
		lang := strings.ToLower(v)
		if slices.Contains(languages, lang) {
			c.Language = lang
		} else {
			invalid("LANGUAGE")
		}
	}
	if v := get("LOGGING"); v != "" {
		level, ok := ParseLogLevel(v)
		if ok {
			c.LogLevel = level
		} else {
			invalid("LOGGING")
		}
	}

	positive := func(key string, least int, out *time.Duration, unit time.Duration) {
		v := get(key)
		if v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < least {
			invalid(key)
			return
		}
		*out = time.Duration(n) * unit
	}
	positive("CHECK_INTERVAL_MINUTES", 1, &c.CheckInterval, time.Minute)
	positive("UI_WAIT_DELAY", 0, &c.WaitDelay, time.Second)
	positive("UI_WAIT_TIMEOUT", 1, &c.WaitTimeout, time.Second)

	if v := get("SCORES_REFRESH_CYCLES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			invalid("SCORES_REFRESH_CYCLES")
		} else {
			c.ScoresRefreshCycles = n
		}
	}
	if v := get("DETAIL_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			invalid("DETAIL_ATTEMPTS")
		} else {
			c.DetailAttempts = n
		}
	}

	if len(cerr.Missing) > 0 || len(cerr.Invalid) > 0 {
		return Config{}, cerr
	}

	endpoints, err := EndpointsFor(c.Region)
	if err != nil {
		return Config{}, err
	}
	c.Endpoints = endpoints

	return c, nil
}

// Load reads the configuration file at path (and its local override). A
// missing file is reported as os.ErrNotExist.
func Load(path string) (Config, error) {
	env, err := configutil.ReadEnv(path)
	if err != nil {
		return Config{}, err
	}
	c, err := Parse(env)
	var cerr *Error
	if errors.As(err, &cerr) {
		cerr.Path = path
	}
	return c, err
}

// DefaultFile is written on first run.
const DefaultFile = `USERNAME=
PASSWORD=
CHECK_INTERVAL_MINUTES=5
BROWSER=chromium
REGION=intl
LANGUAGE=en
LOGGING=INFO

### Do not touch the section below unless you know what you are doing

UI_WAIT_DELAY=5
UI_WAIT_TIMEOUT=15
SCORES_REFRESH_CYCLES=0
DETAIL_ATTEMPTS=5

# These credentials are stored locally only.
# They are never sent anywhere except to the official player portal.
# BROWSER should be one of the following: chrome, firefox, chromium, headless
# REGION should be one of the following: jp, intl
# LANGUAGE should be one of the following: en, ja
# Keys can be overridden by a config.local.env next to this file.
`

// WriteDefault writes DefaultFile to path unless a file already exists
// there, it returns true if the file was created.
func WriteDefault(path string) (bool, error) {
	err := os.MkdirAll(filepath.Dir(path), 0777)
	if err != nil {
		return false, err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if os.IsExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer f.Close()

	_, err = f.WriteString(DefaultFile)
	if err != nil {
		return false, err
	}
	return true, nil
}
