package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"FinNewsScanner/internal/domain"
	"FinNewsScanner/internal/ports"
)

// promptTextLimit bounds the article excerpt sent to the model, in runes.
const promptTextLimit = 1000

const sentimentPrompt = `Bạn là chuyên gia phân tích cảm xúc tin tức tài chính Việt Nam.

Phân tích bài báo sau và trả lời CHÍNH XÁC theo format:
NHAN: POSITIVE hoặc NEGATIVE hoặc NEUTRAL
DIEM: (số thực từ -1.0 đến 1.0)
TIN_DON: TRUE hoặc FALSE

Bài báo:
%s`

var (
	positiveTerms = []string{
		"tăng trưởng", "lợi nhuận", "tăng mạnh", "đột phá", "kỷ lục",
		"vượt kế hoạch", "tăng vốn", "chia cổ tức", "doanh thu tăng",
		"lãi lớn", "lãi ròng", "tích cực", "khởi sắc", "phục hồi",
		"bứt phá", "cải thiện", "thuận lợi", "lạc quan", "triển vọng tốt",
		"tăng điểm", "xanh sàn", "thanh khoản cao", "dòng tiền vào",
		"nâng hạng", "mua ròng", "khối ngoại mua", "VN-Index tăng",
		"bull", "uptrend", "breakout", "hỗ trợ",
		"nâng mục tiêu giá", "khuyến nghị mua", "outperform",
		"overweight", "upgrade", "growth", "profit", "record",
	}

	negativeTerms = []string{
		"thua lỗ", "lỗ lũy kế", "giảm mạnh", "sụt giảm", "tụt dốc",
		"phá sản", "giải thể", "nợ xấu", "nợ quá hạn", "vi phạm",
		"bị phạt", "gian lận", "lừa đảo", "thao túng", "rủi ro",
		"giảm điểm", "đỏ sàn", "bán tháo", "cắt lỗ", "sàn chứng khoán đỏ",
		"khối ngoại bán", "bán ròng", "thanh khoản thấp", "VN-Index giảm",
		"bear", "downtrend", "breakdown", "kháng cự", "margin call",
		"hạ mục tiêu giá", "khuyến nghị bán", "underperform",
		"underweight", "downgrade", "loss", "fraud", "bankrupt",
		"lạm phát tăng", "lãi suất tăng", "tỷ giá tăng", "thất nghiệp tăng",
		"suy thoái", "đình trệ", "khủng hoảng",
	}

	rumorTerms = []string{
		"tin đồn", "chưa xác nhận", "nguồn tin giấu tên", "rò rỉ",
		"chưa kiểm chứng", "có thông tin", "nghe nói", "đồn đoán",
		"rumor", "unverified", "anonymous source",
	}
)

// SentimentClassifier asks an optional completion model first and falls
// back to keyword counting whenever the model is absent or its answer is
// unusable.
type SentimentClassifier struct {
	completer ports.Completer
	timeout   time.Duration
	logger    *slog.Logger

	positive *KeywordSet
	negative *KeywordSet
	rumor    *KeywordSet
}

var _ ports.SentimentScorer = (*SentimentClassifier)(nil)

// NewSentimentClassifier accepts a nil completer for keyword-only scoring.
func NewSentimentClassifier(completer ports.Completer, timeout time.Duration, logger *slog.Logger) *SentimentClassifier {
	return &SentimentClassifier{
		completer: completer,
		timeout:   timeout,
		logger:    logger,
		positive:  NewKeywordSet(positiveTerms),
		negative:  NewKeywordSet(negativeTerms),
		rumor:     NewKeywordSet(rumorTerms),
	}
}

// Score never fails. Empty text is neutral.
func (s *SentimentClassifier) Score(ctx context.Context, text string) domain.SentimentResult {
	if strings.TrimSpace(text) == "" {
		return domain.SentimentResult{Label: domain.SentimentNeutral}
	}

	if s.completer != nil {
		if res, ok := s.scoreWithModel(ctx, text); ok {
			return res
		}
	}
	return s.KeywordScore(text)
}

func (s *SentimentClassifier) scoreWithModel(ctx context.Context, text string) (domain.SentimentResult, bool) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	answer, err := s.completer.Complete(ctx, fmt.Sprintf(sentimentPrompt, truncateRunes(text, promptTextLimit)))
	if err != nil {
		s.debug("model sentiment failed, using keywords", "error", err)
		return domain.SentimentResult{}, false
	}

	res, ok := ParseModelAnswer(answer)
	if !ok {
		s.debug("model sentiment answer unusable, using keywords", "answer", truncateRunes(answer, 200))
	}
	return res, ok
}

// ParseModelAnswer reads the three-line NHAN/DIEM/TIN_DON answer. Both the
// label and the score lines are required; a missing rumor line means false.
func ParseModelAnswer(answer string) (domain.SentimentResult, bool) {
	var res domain.SentimentResult
	var hasLabel, hasScore bool

	for _, line := range strings.Split(strings.TrimSpace(answer), "\n") {
		line = strings.TrimSpace(line)
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		value = strings.TrimSpace(value)

		switch strings.TrimSpace(key) {
		case "NHAN":
			upper := strings.ToUpper(value)
			switch {
			case strings.Contains(upper, "POSITIVE"):
				res.Label = domain.SentimentPositive
			case strings.Contains(upper, "NEGATIVE"):
				res.Label = domain.SentimentNegative
			default:
				res.Label = domain.SentimentNeutral
			}
			hasLabel = true
		case "DIEM":
			score, err := strconv.ParseFloat(value, 64)
			if err != nil || math.IsNaN(score) || math.IsInf(score, 0) {
				return domain.SentimentResult{}, false
			}
			res.Score = domain.ClampScore(score)
			hasScore = true
		case "TIN_DON":
			res.IsRumor = strings.EqualFold(value, "TRUE")
		}
	}

	if !hasLabel || !hasScore {
		return domain.SentimentResult{}, false
	}
	return res, true
}

// KeywordScore is the deterministic offline tier.
func (s *SentimentClassifier) KeywordScore(text string) domain.SentimentResult {
	folded := foldText(text)
	pos := s.positive.Count(folded)
	neg := s.negative.Count(folded)
	rumor := s.rumor.Any(folded)

	res := domain.SentimentResult{Label: domain.SentimentNeutral, IsRumor: rumor}
	if total := pos + neg; total > 0 {
		res.Score = domain.ClampScore(float64(pos-neg) / float64(total))
	}
	switch {
	case pos > neg:
		res.Label = domain.SentimentPositive
	case neg > pos:
		res.Label = domain.SentimentNegative
	}

	if rumor {
		res.Score *= 0.5
	}
	res.Score = math.Round(res.Score*10000) / 10000
	return res
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func (s *SentimentClassifier) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
