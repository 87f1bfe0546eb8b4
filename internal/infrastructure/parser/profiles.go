package parser

// Built-in list-page profiles. Each is registered as its own scanner so
// every site keeps its own request stream.
var (
	CafeFProfile = ListProfile{
		Name:             "cafef",
		BaseURL:          "https://cafef.vn",
		ItemSelector:     "div.tlitem, li.tlitem, div.box-category-item",
		TitleSelectors:   []string{"h3 a", "h2 a", "a.title", "a[title]"},
		SummarySelectors: []string{"p.sapo", "div.sapo", "p.summary", "span.summary"},
		TimeSelectors:    []string{"span.time", "span.date", "time"},
		FallbackSelector: "h3 a[href], h2 a[href]",
		SkipFragments:    []string{"/video/", "/photo/"},
	}

	VnExpressProfile = ListProfile{
		Name:             "vnexpress",
		BaseURL:          "https://vnexpress.net",
		ItemSelector:     "article.item-news, div.item-news, div.item-news-common",
		TitleSelectors:   []string{"h3.title-news a", "h2.title-news a", "a.title-news", "h3 a", "h2 a"},
		SummarySelectors: []string{"p.description a", "p.description", "p.sapo"},
		TimeSelectors:    []string{"time[datetime]", "span.time-public", "span.time"},
		FallbackSelector: "h3 a[href^='https://vnexpress.net']",
		SkipFragments:    []string{"/video/", "/photo/", "/infographics/"},
		AbsoluteOnly:     true,
	}

	VietStockProfile = ListProfile{
		Name:             "vietstock",
		BaseURL:          "https://vietstock.vn",
		ItemSelector:     "div.item-news, div.news-item, article.item, div.m-b-15",
		TitleSelectors:   []string{"h4 a", "h3 a", "h2 a", "a.title", "a[title]"},
		SummarySelectors: []string{"p.summary", "div.summary", "p.sapo", "p.description"},
		TimeSelectors:    []string{"span.time", "span.date", "time"},
		FallbackSelector: "h3 a[href], h2 a[href], h4 a[href]",
		SkipFragments:    []string{"/video/"},
	}
)

// ListProfiles returns the built-in profiles in registration order.
func ListProfiles() []ListProfile {
	return []ListProfile{CafeFProfile, VnExpressProfile, VietStockProfile}
}
