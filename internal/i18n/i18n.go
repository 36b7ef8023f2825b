package i18n

import (
	"golang.org/x/text/language"
)

type Key string

const (
	ServerUnderMaintenance Key = "server_under_maintenance"
	SessionExpired         Key = "session_expired"
	LoginFailed            Key = "login_failed"
	LoginSucceeded         Key = "login_succeeded"
	NoData                 Key = "no_data"
	Welcome                Key = "welcome"
	Goodbye                Key = "goodbye"
	ConfigCreated          Key = "config_created"
	ConfigInvalid          Key = "config_invalid"
	PressEnter             Key = "press_enter"
	NextCheck              Key = "next_check"
)

var english = map[Key]string{
	ServerUnderMaintenance: "Server under maintenance",
	SessionExpired:         "The session has expired, please restart the scraper.",
	LoginFailed:            "Login failed, check your credentials and internet connection.",
	LoginSucceeded:         "Login successful!",
	NoData:                 "No data found",
	Welcome:                "Welcome!",
	Goodbye:                "Goodbye!",
	ConfigCreated:          "First-time setup: a config file has been created, please fill in your USERNAME and PASSWORD.",
	ConfigInvalid:          "The config file is invalid.",
	PressEnter:             "Press Enter to exit...",
	NextCheck:              "Waiting before the next check...",
}

var japanese = map[Key]string{
	ServerUnderMaintenance: "メンテナンス中です",
	SessionExpired:         "セッションが切れました。スクレイパーを再起動してください。",
	LoginFailed:            "ログインに失敗しました。認証情報とインターネット接続を確認してください。",
	LoginSucceeded:         "ログインしました！",
	NoData:                 "データが見つかりません",
	Welcome:                "スクレイパーへようこそ！",
	Goodbye:                "さようなら！",
	ConfigCreated:          "初回セットアップ：設定ファイルを作成しました。USERNAMEとPASSWORDを入力してください。",
	ConfigInvalid:          "設定ファイルが無効です。",
	PressEnter:             "Enterキーを押して終了します...",
	NextCheck:              "次のチェックまで待機中...",
}

var supported = []language.Tag{language.English, language.Japanese}

var catalogs = map[language.Tag]map[Key]string{
	language.English:  english,
	language.Japanese: japanese,
}

var matcher = language.NewMatcher(supported)

// Messages looks up user facing messages in one language.
type Messages struct {
	tag     language.Tag
	catalog map[Key]string
}

// New returns the messages of the closest supported language, unknown or
// malformed languages fall back to English.
func New(lang string) Messages {
	tag := language.English
	parsed, err := language.Parse(lang)
	if err == nil {
		_, i, _ := matcher.Match(parsed)
		tag = supported[i]
	}
	return Messages{tag: tag, catalog: catalogs[tag]}
}

func (m Messages) Language() language.Tag {
	return m.tag
}

// T returns the message of a key, falling back to English and then to the
// key itself.
func (m Messages) T(key Key) string {
	if msg, ok := m.catalog[key]; ok {
		return msg
	}
	if msg, ok := english[key]; ok {
		return msg
	}
	return string(key)
}
