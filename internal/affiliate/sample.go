package affiliate

import "github.com/hitoshi/lootsy/internal/model"

type sampleDeal struct {
	id, title, description, category string
	price                            float64
	link, image                      string
}

var sampleDeals = []sampleDeal{
	{"nike-air-max-901", "20% rabatt på Nike Air Max", "Exklusiv rabatt denna vecka", "Mode", 799,
		"https://example.com/nike-air-max", "https://images.unsplash.com/photo-1542291026-7eec264c27ff"},
	{"philips-airfryer", "Philips Airfryer XXL 25%", "Hälsosam fritering, begränsad kampanj", "Hem", 1990,
		"https://example.com/airfryer", "https://images.unsplash.com/photo-1526312426976-593c2e6159d3"},
	{"macbook-air-m3", "MacBook Air M3 på rea", "Begränsat antal", "Elektronik", 12999,
		"https://example.com/macbook-air-m3", "https://images.unsplash.com/photo-1517336714731-489689fd1ca8"},
	{"apple-airpods-pro", "AirPods Pro 2 - kampanj", "Brusreducering i toppklass", "Elektronik", 2490,
		"https://example.com/airpods-pro", "https://images.unsplash.com/photo-1588422333073-3b3b4a3a3a3a"},
	{"adidas-ultraboost", "Adidas Ultraboost - 30% rabatt", "Löparfavorit på kampanj", "Sport", 1299,
		"https://example.com/ultraboost", "https://images.unsplash.com/photo-1542291026-7eec264c27ff"},
}

// SampleDeals は同梱のサンプルディールを毎回新しいスライスとして返す。
// APIキー未設定時や上流から取得できなかった場合のフォールバックに使用する。
func SampleDeals() []model.RawDeal {
	deals := make([]model.RawDeal, 0, len(sampleDeals))
	for _, s := range sampleDeals {
		description := s.description
		category := s.category
		price := s.price
		currency := DefaultCurrency
		image := s.image
		deals = append(deals, model.RawDeal{
			Source:      model.SourceSample,
			SourceID:    s.id,
			Title:       s.title,
			Description: &description,
			Category:    &category,
			Price:       &price,
			Currency:    &currency,
			LinkURL:     s.link,
			ImageURL:    &image,
		})
	}
	return deals
}
