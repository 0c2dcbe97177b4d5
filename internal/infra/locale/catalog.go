package locale

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"boardnotice/internal/domain/notice"

	"github.com/BurntSushi/toml"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.toml
var localeFiles embed.FS

// Message IDs of the banner copy.
const (
	MsgCardsHiddenTitle = "notification-box-card-limit-reached.title"
	MsgWarningTitle     = "notification-box-cards-hidden.title"
	MsgUpgradeText      = "notification-box.card-limit-reached.text"
	MsgUpgradeLink      = "notification-box-card-limit-reached.link"
	MsgContactAdminText = "notification-box.card-limit-reached.not-admin.text"
	MsgCloseTooltip     = "notification-box-card-limit-reached.close-tooltip"
)

var _ notice.Copywriter = (*Catalog)(nil)

// Catalog localizes the banner copy with go-i18n.
type Catalog struct {
	bundle   *i18n.Bundle
	matcher  language.Matcher
	fallback string
}

// NewCatalog loads the embedded message files. defaultLang is used when no
// requested language is supported.
func NewCatalog(defaultLang string) (*Catalog, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	files, err := fs.Glob(localeFiles, "locales/*.toml")
	if err != nil {
		return nil, fmt.Errorf("listing locale files: %w", err)
	}
	for _, f := range files {
		if _, err := bundle.LoadMessageFileFS(localeFiles, f); err != nil {
			return nil, fmt.Errorf("loading locale file %s: %w", f, err)
		}
	}

	if defaultLang == "" {
		defaultLang = language.English.String()
	}

	return &Catalog{
		bundle:   bundle,
		matcher:  language.NewMatcher(bundle.LanguageTags()),
		fallback: defaultLang,
	}, nil
}

// Match picks the best supported language for the given candidates
// (language tags or Accept-Language values). Empty candidates are skipped.
func (c *Catalog) Match(candidates ...string) string {
	for _, cand := range candidates {
		if cand == "" {
			continue
		}
		tags, _, err := language.ParseAcceptLanguage(cand)
		if err != nil || len(tags) == 0 {
			continue
		}
		_, idx, conf := c.matcher.Match(tags...)
		if conf != language.No {
			return c.bundle.LanguageTags()[idx].String()
		}
	}
	return c.fallback
}

// Copy localizes the banner for lang.
func (c *Catalog) Copy(lang string, banner *notice.Banner) *notice.BannerView {
	loc := i18n.NewLocalizer(c.bundle, lang, c.fallback)

	view := &notice.BannerView{
		Banner:       *banner,
		CloseTooltip: c.localize(loc, &i18n.LocalizeConfig{MessageID: MsgCloseTooltip}),
	}

	if banner.Kind == notice.KindCardsHidden {
		view.Title = c.localize(loc, &i18n.LocalizeConfig{
			MessageID:    MsgCardsHiddenTitle,
			PluralCount:  banner.HiddenCards,
			TemplateData: map[string]any{"Cards": banner.HiddenCards},
		})
	} else {
		view.Title = c.localize(loc, &i18n.LocalizeConfig{MessageID: MsgWarningTitle})
	}

	if banner.CanUpgrade {
		view.LinkText = c.localize(loc, &i18n.LocalizeConfig{MessageID: MsgUpgradeLink})
		view.Text = c.localize(loc, &i18n.LocalizeConfig{
			MessageID:    MsgUpgradeText,
			TemplateData: map[string]any{"Link": view.LinkText},
		})
	} else {
		view.Text = c.localize(loc, &i18n.LocalizeConfig{MessageID: MsgContactAdminText})
	}

	return view
}

func (c *Catalog) localize(loc *i18n.Localizer, cfg *i18n.LocalizeConfig) string {
	msg, err := loc.Localize(cfg)
	if err != nil {
		slog.Debug("translation error", "message_id", cfg.MessageID, "error", err)
		return cfg.MessageID
	}
	return msg
}
