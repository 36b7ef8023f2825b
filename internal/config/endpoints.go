package config

import (
	"fmt"
	"net/url"
)

// Endpoints are the pages of the player portal of one region.
type Endpoints struct {
	LoginPage   string
	LoginSubmit string
	// UsernameField and PasswordField are the names of the login form's
	// credential inputs.
	UsernameField string
	PasswordField string
	// LoginFields are sent along with the credentials in addition to the
	// hidden inputs of the login form.
	LoginFields map[string]string

	Home         string
	PlayerData   string
	Records      string
	RecordDetail string
	ScoreListing string
}

var endpoints = map[Region]Endpoints{
	RegionInternational: {
		LoginPage:     "https://lng-tgk-aime-gw.am-all.net/common_auth/login?site_id=maimaidxex&redirect_url=https://maimaidx-eng.com/maimai-mobile/&back_url=https://maimai.sega.com/",
		LoginSubmit:   "https://lng-tgk-aime-gw.am-all.net/common_auth/login/sid/",
		UsernameField: "sid",
		PasswordField: "password",
		LoginFields:   map[string]string{"retention": "1"},
		Home:          "https://maimaidx-eng.com/maimai-mobile/home/",
		PlayerData:    "https://maimaidx-eng.com/maimai-mobile/playerData/",
		Records:       "https://maimaidx-eng.com/maimai-mobile/record/",
		RecordDetail:  "https://maimaidx-eng.com/maimai-mobile/record/playlogDetail/",
		ScoreListing:  "https://maimaidx-eng.com/maimai-mobile/record/musicGenre/search/",
	},
	RegionJapan: {
		LoginPage:     "https://maimaidx.jp/maimai-mobile/",
		LoginSubmit:   "https://maimaidx.jp/maimai-mobile/submit/",
		UsernameField: "segaId",
		PasswordField: "password",
		LoginFields:   map[string]string{"save_cookie": "on"},
		Home:          "https://maimaidx.jp/maimai-mobile/home/",
		PlayerData:    "https://maimaidx.jp/maimai-mobile/playerData/",
		Records:       "https://maimaidx.jp/maimai-mobile/record/",
		RecordDetail:  "https://maimaidx.jp/maimai-mobile/record/playlogDetail/",
		ScoreListing:  "https://maimaidx.jp/maimai-mobile/record/musicGenre/search/",
	},
}

// EndpointsFor returns the endpoints of a region.
func EndpointsFor(region Region) (Endpoints, error) {
	e, ok := endpoints[region]
	if !ok {
		return Endpoints{}, fmt.Errorf("no endpoints for region %q", region)
	}
	return e, nil
}

// Detail returns the url of the detail page of a play.
func (e Endpoints) Detail(idx string) string {
	return e.RecordDetail + "?idx=" + url.QueryEscape(idx)
}

// Scores returns the url of the score listing of every song on one
// difficulty, `diff` is the portal's difficulty number (basic = 0).
func (e Endpoints) Scores(diff int) string {
	return fmt.Sprintf("%s?genre=99&diff=%d", e.ScoreListing, diff)
}
