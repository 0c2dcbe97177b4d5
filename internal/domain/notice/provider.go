package notice

// Copywriter produces the localized copy of a banner.
// Implementations live in infra/locale/.
type Copywriter interface {
	// Copy localizes the banner for the given language tag list.
	Copy(lang string, banner *Banner) *BannerView
}

// FragmentRenderer renders a banner as an HTML fragment.
// Implementations live in infra/template/.
type FragmentRenderer interface {
	RenderBanner(view *BannerView) (string, error)
}
