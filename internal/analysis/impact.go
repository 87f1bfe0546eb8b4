package analysis

import (
	"FinNewsScanner/internal/domain"
	"FinNewsScanner/internal/ports"
)

// ImpactWeights are the scoring constants of the impact classifier.
type ImpactWeights struct {
	High            int
	Medium          int
	TickerCap       int
	HighThreshold   int
	MediumThreshold int
}

// DefaultImpactWeights returns 3/1 points per keyword, a five ticker cap
// and tiers at 8 and 4.
func DefaultImpactWeights() ImpactWeights {
	return ImpactWeights{
		High:            3,
		Medium:          1,
		TickerCap:       5,
		HighThreshold:   8,
		MediumThreshold: 4,
	}
}

// Tier maps a score to its bucket.
func (w ImpactWeights) Tier(score int) domain.ImpactTier {
	switch {
	case score >= w.HighThreshold:
		return domain.ImpactHigh
	case score >= w.MediumThreshold:
		return domain.ImpactMedium
	default:
		return domain.ImpactLow
	}
}

var (
	highImpactTerms = []string{
		"ngan hang nha nuoc", "nhnn", "lai suat", "ty gia", "lam phat",
		"gdp", "cpi", "fed", "chinh sach tien te", "trai phieu chinh phu",
		"room tin dung", "thue", "thuong mai", "xuat khau", "nhap khau",
		"gia xang", "gia dau", "vn-index", "vnindex", "thi truong chung khoan",
		"bat dong san", "khung hoang", "suy thoai", "thao tung", "pha san",
		"vo no", "giai ngan dau tu cong",
	}

	mediumImpactTerms = []string{
		"doanh thu", "loi nhuan", "co tuc", "mua lai co phieu", "chia co tuc",
		"phat hanh", "trai phieu doanh nghiep", "m&a", "sap nhap",
		"hop tac chien luoc", "nang hang", "ha hang", "khoi ngoai",
		"mua rong", "ban rong", "thanh khoan",
	}

	topicTerms = []struct {
		tag   string
		terms []string
	}{
		{"lai_suat", []string{"lai suat", "nhnn", "fed", "chinh sach tien te"}},
		{"ty_gia", []string{"ty gia", "usd", "ngoai hoi"}},
		{"lam_phat", []string{"lam phat", "cpi"}},
		{"tang_truong", []string{"gdp", "tang truong kinh te"}},
		{"co_phieu", []string{"vn-index", "vnindex", "thi truong chung khoan", "co phieu"}},
		{"ngan_hang", []string{"ngan hang", "tin dung", "room tin dung"}},
		{"bat_dong_san", []string{"bat dong san", "nha o", "du an"}},
		{"nang_luong", []string{"gia xang", "gia dau", "nang luong"}},
		{"thuong_mai", []string{"xuat khau", "nhap khau", "thuong mai"}},
	}
)

type topic struct {
	tag string
	set *KeywordSet
}

// ImpactClassifier scores the expected market significance of an article.
type ImpactClassifier struct {
	weights ImpactWeights
	high    *KeywordSet
	medium  *KeywordSet
	topics  []topic
}

var _ ports.ImpactScorer = (*ImpactClassifier)(nil)

func NewImpactClassifier(weights ImpactWeights) *ImpactClassifier {
	c := &ImpactClassifier{
		weights: weights,
		high:    NewKeywordSet(highImpactTerms),
		medium:  NewKeywordSet(mediumImpactTerms),
	}
	for _, t := range topicTerms {
		c.topics = append(c.topics, topic{tag: t.tag, set: NewKeywordSet(t.terms)})
	}
	return c
}

// Score is deterministic for a given input and never negative.
func (c *ImpactClassifier) Score(title, body string, tickers []string) domain.ImpactResult {
	folded := foldText(title + " " + body)

	score := c.weights.High*c.high.Count(folded) + c.weights.Medium*c.medium.Count(folded)
	score += min(len(tickers), c.weights.TickerCap)
	if score < 0 {
		score = 0
	}

	tags := []string{}
	for _, t := range c.topics {
		if t.set.Any(folded) {
			tags = append(tags, t.tag)
		}
	}

	tier := c.weights.Tier(score)
	return domain.ImpactResult{
		Score:        score,
		Tier:         tier,
		Tags:         tags,
		IsHighImpact: tier == domain.ImpactHigh,
	}
}
